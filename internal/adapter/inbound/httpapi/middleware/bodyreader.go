package middleware

import (
	"bytes"
	"errors"
	"io"
	"net/http"
)

// MaxBodyBytes caps request bodies. Executor requests are a few hundred bytes.
const MaxBodyBytes = 1 << 20

// BodyReader reads and buffers the request body so handlers get a complete, size-checked
// payload. Bodies over MaxBodyBytes are rejected with 413.
func BodyReader(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
				return
			}
			writeError(w, http.StatusBadRequest, "failed to read request body")
			return
		}
		r.Body.Close()

		// Restore body so downstream handlers can read it again
		r.Body = io.NopCloser(bytes.NewReader(body))
		next.ServeHTTP(w, r)
	})
}
