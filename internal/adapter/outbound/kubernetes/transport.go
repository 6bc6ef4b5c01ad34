package kubernetes

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"k8s.io/client-go/rest"

	"github.com/jonny/executor-provisioner/pkg/apierror"
)

// Request is one abstract control-plane call. Path is already namespaced and escaped.
type Request struct {
	Method string
	Path   string
	Body   []byte
}

// Response carries the platform's real status code and the complete body.
type Response struct {
	Status int
	Body   []byte
}

// RequestExecutor turns a Request into exactly one HTTP exchange.
type RequestExecutor interface {
	Do(ctx context.Context, req Request) (Response, error)
}

// Transport is the RequestExecutor backed by an HTTP client built from a rest.Config.
// It never retries and never looks inside the body.
type Transport struct {
	baseURL    *url.URL
	httpClient *http.Client
	logger     *slog.Logger
	metrics    *Metrics
}

var _ RequestExecutor = (*Transport)(nil)

// NewTransport builds a Transport whose TLS, credentials and timeout come from config.
func NewTransport(config *rest.Config, logger *slog.Logger, metrics *Metrics) (*Transport, error) {
	httpClient, err := rest.HTTPClientFor(config)
	if err != nil {
		return nil, fmt.Errorf("building control plane http client: %w", err)
	}
	baseURL, _, err := rest.DefaultServerUrlFor(config)
	if err != nil {
		return nil, fmt.Errorf("parsing control plane host %q: %w", config.Host, err)
	}
	return NewTransportWithClient(baseURL, httpClient, logger, metrics), nil
}

// NewTransportWithClient builds a Transport around an existing client.
func NewTransportWithClient(baseURL *url.URL, httpClient *http.Client, logger *slog.Logger, metrics *Metrics) *Transport {
	if logger == nil {
		logger = slog.Default()
	}
	return &Transport{
		baseURL:    baseURL,
		httpClient: httpClient,
		logger:     logger,
		metrics:    metrics,
	}
}

// Do performs the exchange. Unsupported methods fail with *apierror.CallerInputError before
// any I/O; network failures come back as *apierror.TransportError.
func (t *Transport) Do(ctx context.Context, req Request) (Response, error) {
	switch req.Method {
	case http.MethodGet, http.MethodPost, http.MethodDelete:
	default:
		return Response{}, apierror.NewCallerInput("method", fmt.Sprintf("unsupported method %q", req.Method))
	}

	target, err := t.resolve(req.Path)
	if err != nil {
		return Response{}, err
	}

	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, target, body)
	if err != nil {
		return Response{}, &apierror.TransportError{Method: req.Method, URL: target, Err: err}
	}
	httpReq.Header.Set("Accept", "application/json")
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	t.logger.Info("control plane request", "method", req.Method, "url", target, "body", string(req.Body))

	start := time.Now()
	resp, err := t.httpClient.Do(httpReq)
	if err != nil {
		t.metrics.observeRequest(req.Method, 0, time.Since(start))
		t.logger.Error("control plane request failed", "method", req.Method, "url", target, "error", err)
		return Response{}, &apierror.TransportError{Method: req.Method, URL: target, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	elapsed := time.Since(start)
	t.metrics.observeRequest(req.Method, resp.StatusCode, elapsed)
	if err != nil {
		t.logger.Error("reading control plane response", "method", req.Method, "url", target,
			"status", resp.StatusCode, "error", err)
		return Response{}, &apierror.TransportError{Method: req.Method, URL: target, Err: fmt.Errorf("reading response body: %w", err)}
	}

	t.logger.Info("control plane response",
		"method", req.Method,
		"url", target,
		"status", resp.StatusCode,
		"body", string(data),
		"duration", elapsed.Round(time.Millisecond),
	)

	return Response{Status: resp.StatusCode, Body: data}, nil
}

// resolve joins an absolute API path onto the base address, keeping any path prefix the
// base carries (e.g. a proxy mount point).
func (t *Transport) resolve(p string) (string, error) {
	ref, err := url.Parse(p)
	if err != nil || ref.IsAbs() || !strings.HasPrefix(ref.Path, "/") {
		return "", apierror.NewCallerInput("path", fmt.Sprintf("%q is not an absolute API path", p))
	}

	u := *t.baseURL
	prefix := strings.TrimSuffix(u.Path, "/")
	u.Path = prefix + ref.Path
	u.RawPath = ""
	if ref.RawPath != "" {
		u.RawPath = prefix + ref.RawPath
	}
	u.RawQuery = ref.RawQuery
	return u.String(), nil
}
