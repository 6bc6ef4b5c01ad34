package kubernetes

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"unicode/utf8"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/version"

	"github.com/jonny/executor-provisioner/pkg/apierror"
)

// OutcomeKind tags the result of a decode session.
type OutcomeKind int

const (
	// OutcomeNeedMoreData means the buffered bytes are a prefix of a document; append more
	// bytes of the same response and parse again.
	OutcomeNeedMoreData OutcomeKind = iota
	OutcomeSuccess
	// OutcomeUnexpected means the body is well formed but is not the success shape.
	OutcomeUnexpected
	OutcomeMalformed
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeNeedMoreData:
		return "need_more_data"
	case OutcomeSuccess:
		return "success"
	case OutcomeUnexpected:
		return "unexpected"
	case OutcomeMalformed:
		return "malformed"
	default:
		return fmt.Sprintf("OutcomeKind(%d)", int(k))
	}
}

var (
	errInvalidUTF8 = errors.New("response body is not valid UTF-8")
	errMissingName = errors.New("object has no metadata.name")
	errNotObject   = errors.New("document is not a JSON object")
)

// Outcome is the decided (or undecided) result of parsing a response.
type Outcome[T any] struct {
	Kind      OutcomeKind
	Operation string
	Status    int
	// Value is set for OutcomeSuccess.
	Value T
	// Raw is the parsed body for OutcomeUnexpected, nil when the body was empty.
	Raw any
	// Diagnostic is set for OutcomeMalformed.
	Diagnostic error
	// Received is the number of body bytes the outcome was computed from.
	Received int
}

// Result converts the outcome into a value or one of the apierror types. NeedMoreData at
// this point means the body ended early and becomes an *apierror.IncompleteResponseError.
func (o Outcome[T]) Result() (T, error) {
	var zero T
	switch o.Kind {
	case OutcomeSuccess:
		return o.Value, nil
	case OutcomeUnexpected:
		uv := &apierror.UnexpectedVariantError{Operation: o.Operation, Status: o.Status, Value: o.Raw}
		uv.Reason, uv.Message = statusDetails(o.Raw)
		if isCallerInputStatus(o.Status, uv.Reason) {
			return zero, &apierror.CallerInputError{Err: uv}
		}
		return zero, uv
	case OutcomeMalformed:
		return zero, &apierror.MalformedResponseError{Operation: o.Operation, Status: o.Status, Diagnostic: o.Diagnostic}
	default:
		return zero, &apierror.IncompleteResponseError{Operation: o.Operation, Status: o.Status, Received: o.Received}
	}
}

// Grammar describes the response shapes one operation can receive.
type Grammar[T any] struct {
	Operation string
	// Success lists the statuses whose body must decode into T.
	Success []int
	// Decode turns a complete JSON document received with a success status into T.
	Decode func(status int, doc []byte) (T, error)
}

func (g Grammar[T]) isSuccess(status int) bool {
	for _, s := range g.Success {
		if s == status {
			return true
		}
	}
	return false
}

// ResponseBody is one decode session. Bytes accumulate through Append; Parse can be called
// after every Append and never consumes the buffer, so it gives the same answer for the
// same bytes.
type ResponseBody[T any] struct {
	status  int
	grammar Grammar[T]
	buf     []byte
}

// NewResponseBody starts a decode session for a response that arrived with status.
func NewResponseBody[T any](status int, grammar Grammar[T]) *ResponseBody[T] {
	return &ResponseBody[T]{status: status, grammar: grammar}
}

func (b *ResponseBody[T]) Append(p []byte) {
	b.buf = append(b.buf, p...)
}

func (b *ResponseBody[T]) Len() int { return len(b.buf) }

func (b *ResponseBody[T]) Parse() Outcome[T] {
	out := Outcome[T]{Operation: b.grammar.Operation, Status: b.status, Received: len(b.buf)}

	if !utf8.Valid(b.buf) {
		if endsInPartialRune(b.buf) {
			return out
		}
		out.Kind, out.Diagnostic = OutcomeMalformed, errInvalidUTF8
		return out
	}

	if !b.grammar.isSuccess(b.status) {
		if len(bytes.TrimSpace(b.buf)) == 0 {
			out.Kind = OutcomeUnexpected
			return out
		}
		doc, complete, err := scanDocument(b.buf)
		switch {
		case err != nil:
			out.Kind, out.Diagnostic = OutcomeMalformed, err
		case complete:
			var raw any
			if err := json.Unmarshal(doc, &raw); err != nil {
				out.Kind, out.Diagnostic = OutcomeMalformed, err
				return out
			}
			out.Kind, out.Raw = OutcomeUnexpected, raw
		}
		return out
	}

	doc, complete, err := scanDocument(b.buf)
	if err != nil {
		out.Kind, out.Diagnostic = OutcomeMalformed, err
		return out
	}
	if !complete {
		return out
	}
	v, err := b.grammar.Decode(b.status, doc)
	if err != nil {
		out.Kind, out.Diagnostic = OutcomeMalformed, err
		return out
	}
	out.Kind, out.Value = OutcomeSuccess, v
	return out
}

// Decode runs a one-shot session over a complete response.
func Decode[T any](grammar Grammar[T], resp Response) Outcome[T] {
	body := NewResponseBody(resp.Status, grammar)
	body.Append(resp.Body)
	return body.Parse()
}

// scanDocument reports whether buf holds one complete JSON document followed only by
// whitespace. A truncated document is not an error.
func scanDocument(buf []byte) (json.RawMessage, bool, error) {
	dec := json.NewDecoder(bytes.NewReader(buf))
	var doc json.RawMessage
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, false, nil
		}
		return nil, false, err
	}
	offset := dec.InputOffset()
	if rest := bytes.TrimSpace(buf[offset:]); len(rest) > 0 {
		return nil, false, fmt.Errorf("unexpected data after JSON document at offset %d", offset)
	}
	return doc, true, nil
}

// endsInPartialRune reports whether the only invalid UTF-8 in buf is an incomplete
// multi-byte sequence at the very end, which the next fragment may complete.
func endsInPartialRune(buf []byte) bool {
	for i := 1; i < utf8.UTFMax && i <= len(buf); i++ {
		start := len(buf) - i
		if utf8.RuneStart(buf[start]) {
			return !utf8.FullRune(buf[start:]) && utf8.Valid(buf[:start])
		}
	}
	return false
}

// decodeObject unmarshals doc into v. The document must be an object whose kind is kind;
// apiVersion, when sent, must be the core group version.
func decodeObject(doc []byte, kind string, v any) error {
	meta, err := typeMeta(doc)
	if err != nil {
		return err
	}
	if meta.Kind != kind {
		return fmt.Errorf("expected kind %s, got %q", kind, meta.Kind)
	}
	if meta.APIVersion != "" && meta.APIVersion != corev1.SchemeGroupVersion.String() {
		return fmt.Errorf("expected apiVersion %s, got %q", corev1.SchemeGroupVersion, meta.APIVersion)
	}
	return json.Unmarshal(doc, v)
}

// typeMeta reads kind and apiVersion, rejecting documents that are not JSON objects.
func typeMeta(doc []byte) (metav1.TypeMeta, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(doc, &fields); err != nil {
		return metav1.TypeMeta{}, err
	}
	if fields == nil {
		return metav1.TypeMeta{}, errNotObject
	}
	var meta metav1.TypeMeta
	if err := json.Unmarshal(doc, &meta); err != nil {
		return metav1.TypeMeta{}, err
	}
	return meta, nil
}

// statusDetails extracts reason and message when raw is a platform Status object.
func statusDetails(raw any) (reason, message string) {
	obj, ok := raw.(map[string]any)
	if !ok || obj["kind"] != "Status" {
		return "", ""
	}
	reason, _ = obj["reason"].(string)
	message, _ = obj["message"].(string)
	return reason, message
}

func isCallerInputStatus(status int, reason string) bool {
	switch metav1.StatusReason(reason) {
	case metav1.StatusReasonInvalid, metav1.StatusReasonBadRequest:
		return true
	}
	return status == http.StatusBadRequest || status == http.StatusUnprocessableEntity
}

var createSuccess = []int{http.StatusOK, http.StatusCreated, http.StatusAccepted}

// CreateWorkloadGrammar decodes the response to a pod create.
var CreateWorkloadGrammar = Grammar[*corev1.Pod]{
	Operation: "create workload",
	Success:   createSuccess,
	Decode: func(_ int, doc []byte) (*corev1.Pod, error) {
		var pod corev1.Pod
		if err := decodeObject(doc, "Pod", &pod); err != nil {
			return nil, err
		}
		if pod.Name == "" {
			return nil, errMissingName
		}
		return &pod, nil
	},
}

// CreateServiceGrammar decodes the response to a service create.
var CreateServiceGrammar = Grammar[*corev1.Service]{
	Operation: "create service",
	Success:   createSuccess,
	Decode: func(_ int, doc []byte) (*corev1.Service, error) {
		var svc corev1.Service
		if err := decodeObject(doc, "Service", &svc); err != nil {
			return nil, err
		}
		if svc.Name == "" {
			return nil, errMissingName
		}
		return &svc, nil
	},
}

// DeleteKind is which of the three legal delete confirmations the platform sent.
type DeleteKind int

const (
	// DeleteStatus is a 200 carrying only a Status object.
	DeleteStatus DeleteKind = iota
	// DeleteValue is a 200 carrying the object being deleted.
	DeleteValue
	// DeleteAccepted is a 202: deletion is pending.
	DeleteAccepted
)

func (k DeleteKind) String() string {
	switch k {
	case DeleteStatus:
		return "status"
	case DeleteValue:
		return "value"
	case DeleteAccepted:
		return "accepted"
	default:
		return fmt.Sprintf("DeleteKind(%d)", int(k))
	}
}

// DeleteConfirmation is the success payload of a workload delete.
type DeleteConfirmation struct {
	Kind   DeleteKind
	Status *metav1.Status
	Pod    *corev1.Pod
}

// DeleteWorkloadGrammar decodes the response to a pod delete.
var DeleteWorkloadGrammar = Grammar[DeleteConfirmation]{
	Operation: "delete workload",
	Success:   []int{http.StatusOK, http.StatusAccepted},
	Decode: func(status int, doc []byte) (DeleteConfirmation, error) {
		meta, err := typeMeta(doc)
		if err != nil {
			return DeleteConfirmation{}, err
		}
		if status == http.StatusAccepted || meta.Kind == "Status" {
			var st metav1.Status
			if err := decodeObject(doc, "Status", &st); err != nil {
				return DeleteConfirmation{}, err
			}
			kind := DeleteStatus
			if status == http.StatusAccepted {
				kind = DeleteAccepted
			}
			return DeleteConfirmation{Kind: kind, Status: &st}, nil
		}
		var pod corev1.Pod
		if err := decodeObject(doc, "Pod", &pod); err != nil {
			return DeleteConfirmation{}, err
		}
		return DeleteConfirmation{Kind: DeleteValue, Pod: &pod}, nil
	},
}

// ListWorkloadsGrammar decodes a pod list into names in the order the platform returned them.
// One nameless item fails the whole list.
var ListWorkloadsGrammar = Grammar[[]string]{
	Operation: "list workloads",
	Success:   []int{http.StatusOK},
	Decode: func(_ int, doc []byte) ([]string, error) {
		var list corev1.PodList
		if err := decodeObject(doc, "PodList", &list); err != nil {
			return nil, err
		}
		names := make([]string, 0, len(list.Items))
		for i := range list.Items {
			if list.Items[i].Name == "" {
				return nil, fmt.Errorf("item %d: %w", i, errMissingName)
			}
			names = append(names, list.Items[i].Name)
		}
		return names, nil
	},
}

// VersionGrammar decodes the server version used by health checks.
var VersionGrammar = Grammar[version.Info]{
	Operation: "get version",
	Success:   []int{http.StatusOK},
	Decode: func(_ int, doc []byte) (version.Info, error) {
		var info version.Info
		err := json.Unmarshal(doc, &info)
		return info, err
	},
}
