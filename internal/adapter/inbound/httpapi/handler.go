package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/jonny/executor-provisioner/internal/domain/model"
	"github.com/jonny/executor-provisioner/internal/domain/port/inbound"
	"github.com/jonny/executor-provisioner/internal/domain/port/outbound"
	"github.com/jonny/executor-provisioner/pkg/apierror"
)

// Handler exposes the provisioning port as a JSON API.
type Handler struct {
	provisioner inbound.ProvisioningPort
	logger      *slog.Logger
}

// NewHandler creates a new Handler.
func NewHandler(provisioner inbound.ProvisioningPort, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{provisioner: provisioner, logger: logger}
}

type workloadRequest struct {
	Name  string `json:"name"`
	Image string `json:"image"`
}

type serviceRequest struct {
	Name string `json:"name"`
}

type listResponse[T any] struct {
	Items      []T   `json:"items"`
	TotalCount int64 `json:"total_count,omitempty"`
	Page       int   `json:"page,omitempty"`
	Size       int   `json:"size,omitempty"`
}

// partialResponse carries the completed phases next to the error so callers can compensate.
type partialResponse struct {
	*apierror.Error
	Result model.ExecutorResult `json:"result"`
}

// CreateExecutor handles POST /v1/executors.
func (h *Handler) CreateExecutor(w http.ResponseWriter, r *http.Request) {
	var req model.ExecutorRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := requireFields(map[string]string{"namespace": req.Namespace, "name": req.Name, "image": req.Image}); err != nil {
		h.writeError(w, r, err)
		return
	}

	result, err := h.provisioner.CreateExecutor(r.Context(), req)
	var partial *model.PartialExecutorError
	switch {
	case errors.As(err, &partial):
		apiErr := apierror.FromError(err)
		writeJSON(w, apiErr.Code, partialResponse{Error: apiErr, Result: result})
	case err != nil:
		h.writeError(w, r, err)
	default:
		writeJSON(w, http.StatusCreated, result)
	}
}

// ListExecutors handles GET /v1/executors.
func (h *Handler) ListExecutors(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := outbound.ExecutorFilter{
		Namespace: q.Get("namespace"),
		Phase:     model.ExecutorPhase(q.Get("phase")),
	}
	page, err := pageFromQuery(q.Get("page"), q.Get("size"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	page.Desc = true

	result, err := h.provisioner.ListExecutors(r.Context(), filter, page)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	items := result.Items
	if items == nil {
		items = []model.ExecutorRecord{}
	}
	writeJSON(w, http.StatusOK, listResponse[model.ExecutorRecord]{
		Items:      items,
		TotalCount: result.TotalCount,
		Page:       result.Page,
		Size:       result.Size,
	})
}

// GetExecutor handles GET /v1/namespaces/{namespace}/executors/{name}.
func (h *Handler) GetExecutor(w http.ResponseWriter, r *http.Request) {
	record, err := h.provisioner.GetExecutor(r.Context(), r.PathValue("namespace"), r.PathValue("name"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

// CreateWorkload handles POST /v1/namespaces/{namespace}/workloads.
func (h *Handler) CreateWorkload(w http.ResponseWriter, r *http.Request) {
	var req workloadRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := requireFields(map[string]string{"name": req.Name, "image": req.Image}); err != nil {
		h.writeError(w, r, err)
		return
	}

	ns := r.PathValue("namespace")
	if err := h.provisioner.CreateWorkload(r.Context(), ns, req.Name, req.Image); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"namespace": ns, "name": req.Name})
}

// CreateService handles POST /v1/namespaces/{namespace}/services.
func (h *Handler) CreateService(w http.ResponseWriter, r *http.Request) {
	var req serviceRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := requireFields(map[string]string{"name": req.Name}); err != nil {
		h.writeError(w, r, err)
		return
	}

	ns := r.PathValue("namespace")
	if err := h.provisioner.CreateService(r.Context(), ns, req.Name); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"namespace": ns, "name": req.Name})
}

// DeleteWorkload handles DELETE /v1/namespaces/{namespace}/workloads/{name}.
func (h *Handler) DeleteWorkload(w http.ResponseWriter, r *http.Request) {
	if err := h.provisioner.DeleteWorkload(r.Context(), r.PathValue("namespace"), r.PathValue("name")); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListWorkloads handles GET /v1/namespaces/{namespace}/workloads.
func (h *Handler) ListWorkloads(w http.ResponseWriter, r *http.Request) {
	names, err := h.provisioner.ListWorkloads(r.Context(), r.PathValue("namespace"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if names == nil {
		names = []string{}
	}
	writeJSON(w, http.StatusOK, listResponse[string]{Items: names})
}

// HealthHandler returns an http.HandlerFunc for the /health endpoint.
func HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	apiErr := apierror.FromError(err)
	if errors.Is(err, model.ErrNotFound) {
		apiErr = apierror.WithDetail(http.StatusNotFound, "executor not found", err.Error())
	}
	if apiErr.Code >= http.StatusInternalServerError {
		h.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	writeJSON(w, apiErr.Code, apiErr)
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return &apierror.CallerInputError{Field: "body", Reason: "invalid JSON", Err: err}
	}
	return nil
}

func requireFields(fields map[string]string) error {
	for _, name := range []string{"namespace", "name", "image"} {
		if v, ok := fields[name]; ok && v == "" {
			return apierror.NewCallerInput(name, "is required")
		}
	}
	return nil
}

func pageFromQuery(pageStr, sizeStr string) (outbound.PageRequest, error) {
	var page outbound.PageRequest
	if pageStr != "" {
		n, err := strconv.Atoi(pageStr)
		if err != nil || n < 0 {
			return page, apierror.NewCallerInput("page", fmt.Sprintf("invalid page %q", pageStr))
		}
		page.Page = n
	}
	if sizeStr != "" {
		n, err := strconv.Atoi(sizeStr)
		if err != nil || n <= 0 || n > 500 {
			return page, apierror.NewCallerInput("size", fmt.Sprintf("invalid size %q", sizeStr))
		}
		page.Size = n
	}
	return page, nil
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
