package httpapi_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/jonny/executor-provisioner/internal/adapter/inbound/httpapi"
	"github.com/jonny/executor-provisioner/internal/domain/model"
	"github.com/jonny/executor-provisioner/internal/domain/port/outbound"
	"github.com/jonny/executor-provisioner/pkg/apierror"
)

// fakeProvisioner records calls and returns canned results.
type fakeProvisioner struct {
	mu    sync.Mutex
	calls []string

	result     model.ExecutorResult
	record     model.ExecutorRecord
	records    []model.ExecutorRecord
	workloads  []string
	lastFilter outbound.ExecutorFilter
	lastPage   outbound.PageRequest
	err        error
}

func (f *fakeProvisioner) track(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeProvisioner) called() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	copy(out, f.calls)
	return out
}

func (f *fakeProvisioner) CreateExecutor(_ context.Context, req model.ExecutorRequest) (model.ExecutorResult, error) {
	f.track("executor:" + req.Namespace + "/" + req.Name + "@" + req.Image)
	return f.result, f.err
}

func (f *fakeProvisioner) CreateWorkload(_ context.Context, namespace, name, image string) error {
	f.track("workload:" + namespace + "/" + name + "@" + image)
	return f.err
}

func (f *fakeProvisioner) CreateService(_ context.Context, namespace, name string) error {
	f.track("service:" + namespace + "/" + name)
	return f.err
}

func (f *fakeProvisioner) DeleteWorkload(_ context.Context, namespace, name string) error {
	f.track("delete:" + namespace + "/" + name)
	return f.err
}

func (f *fakeProvisioner) ListWorkloads(_ context.Context, namespace string) ([]string, error) {
	f.track("list:" + namespace)
	return f.workloads, f.err
}

func (f *fakeProvisioner) GetExecutor(_ context.Context, namespace, name string) (model.ExecutorRecord, error) {
	f.track("get:" + namespace + "/" + name)
	return f.record, f.err
}

func (f *fakeProvisioner) ListExecutors(_ context.Context, filter outbound.ExecutorFilter, page outbound.PageRequest) (outbound.PageResult[model.ExecutorRecord], error) {
	f.track("executors")
	f.lastFilter = filter
	f.lastPage = page
	if f.err != nil {
		return outbound.PageResult[model.ExecutorRecord]{}, f.err
	}
	return outbound.PageResult[model.ExecutorRecord]{Items: f.records, TotalCount: int64(len(f.records)), Page: 1, Size: 20}, nil
}

func newTestServer(t *testing.T, fake *fakeProvisioner, token string) *httptest.Server {
	t.Helper()
	srv := httpapi.NewServer(httpapi.ServerConfig{APIToken: token, RequestsPerMinute: 1000},
		httpapi.NewHandler(fake, nil), nil, prometheus.NewRegistry())
	ts := httptest.NewServer(srv.SetupRoutes())
	t.Cleanup(ts.Close)
	return ts
}

func do(t *testing.T, ts *httptest.Server, method, path, body string) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, ts.URL+path, strings.NewReader(body))
	if err != nil {
		t.Fatalf("building request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	var decoded map[string]any
	if resp.StatusCode != http.StatusNoContent {
		_ = json.NewDecoder(resp.Body).Decode(&decoded)
	}
	return resp, decoded
}

func TestHandler_CreateExecutor_Success(t *testing.T) {
	fake := &fakeProvisioner{result: model.ExecutorResult{
		Record:          model.ExecutorRecord{ID: "id-1", Namespace: "default", Name: "exec-1", Phase: model.ExecutorPhaseReady},
		WorkloadCreated: true,
		ServiceCreated:  true,
	}}
	ts := newTestServer(t, fake, "")

	resp, body := do(t, ts, http.MethodPost, "/v1/executors", `{"namespace":"default","name":"exec-1","image":"ballista:latest"}`)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d (%v)", resp.StatusCode, body)
	}
	if body["service_created"] != true {
		t.Errorf("expected service_created=true, got %v", body["service_created"])
	}
	if got := fake.called(); len(got) != 1 || got[0] != "executor:default/exec-1@ballista:latest" {
		t.Errorf("unexpected calls %v", got)
	}
}

func TestHandler_CreateExecutor_MissingField(t *testing.T) {
	fake := &fakeProvisioner{}
	ts := newTestServer(t, fake, "")

	resp, body := do(t, ts, http.MethodPost, "/v1/executors", `{"namespace":"default","name":"exec-1"}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
	if !strings.Contains(fmt.Sprint(body["detail"]), "image") {
		t.Errorf("expected detail to name the missing field, got %v", body["detail"])
	}
	if len(fake.called()) != 0 {
		t.Error("provisioner should not be called for an invalid request")
	}
}

func TestHandler_CreateExecutor_InvalidJSON(t *testing.T) {
	ts := newTestServer(t, &fakeProvisioner{}, "")

	resp, _ := do(t, ts, http.MethodPost, "/v1/executors", `{"namespace":`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}

	resp, _ = do(t, ts, http.MethodPost, "/v1/executors", `{"namespace":"a","name":"b","image":"c","replicas":3}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400 for unknown field, got %d", resp.StatusCode)
	}
}

func TestHandler_CreateExecutor_Partial(t *testing.T) {
	cause := &apierror.UnexpectedVariantError{Operation: "create service", Status: http.StatusForbidden, Reason: "Forbidden"}
	fake := &fakeProvisioner{
		result: model.ExecutorResult{
			Record:          model.ExecutorRecord{ID: "id-2", Namespace: "default", Name: "exec-2", Phase: model.ExecutorPhasePartial},
			WorkloadCreated: true,
		},
		err: &model.PartialExecutorError{Namespace: "default", Name: "exec-2", Err: cause},
	}
	ts := newTestServer(t, fake, "")

	resp, body := do(t, ts, http.MethodPost, "/v1/executors", `{"namespace":"default","name":"exec-2","image":"ballista:latest"}`)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 from the service failure, got %d", resp.StatusCode)
	}
	result, ok := body["result"].(map[string]any)
	if !ok {
		t.Fatalf("expected result in body, got %v", body)
	}
	if result["workload_created"] != true || result["service_created"] != false {
		t.Errorf("unexpected phases %v", result)
	}
	if body["code"] != float64(http.StatusForbidden) {
		t.Errorf("expected code 403, got %v", body["code"])
	}
}

func TestHandler_ErrorMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"blocked namespace", apierror.NewCallerInput("namespace", "namespace kube-system is blocked"), http.StatusBadRequest},
		{"conflict", &apierror.UnexpectedVariantError{Operation: "create workload", Status: 409}, http.StatusConflict},
		{"transport", &apierror.TransportError{Method: "POST", URL: "http://x", Err: errors.New("refused")}, http.StatusBadGateway},
		{"incomplete", &apierror.IncompleteResponseError{Operation: "create workload", Status: 201, Received: 5}, http.StatusBadGateway},
		{"other", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ts := newTestServer(t, &fakeProvisioner{err: tc.err}, "")
			resp, body := do(t, ts, http.MethodPost, "/v1/namespaces/default/workloads", `{"name":"exec-1","image":"ballista:latest"}`)
			if resp.StatusCode != tc.want {
				t.Errorf("expected %d, got %d (%v)", tc.want, resp.StatusCode, body)
			}
			if body["detail"] == nil {
				t.Error("expected error detail in body")
			}
		})
	}
}

func TestHandler_CreateWorkload(t *testing.T) {
	fake := &fakeProvisioner{}
	ts := newTestServer(t, fake, "")

	resp, body := do(t, ts, http.MethodPost, "/v1/namespaces/team-a/workloads", `{"name":"exec-1","image":"ballista:latest"}`)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	if body["namespace"] != "team-a" || body["name"] != "exec-1" {
		t.Errorf("unexpected body %v", body)
	}
	if got := fake.called(); len(got) != 1 || got[0] != "workload:team-a/exec-1@ballista:latest" {
		t.Errorf("unexpected calls %v", got)
	}
}

func TestHandler_CreateService(t *testing.T) {
	fake := &fakeProvisioner{}
	ts := newTestServer(t, fake, "")

	resp, _ := do(t, ts, http.MethodPost, "/v1/namespaces/team-a/services", `{"name":"exec-1"}`)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	if got := fake.called(); len(got) != 1 || got[0] != "service:team-a/exec-1" {
		t.Errorf("unexpected calls %v", got)
	}

	resp, _ = do(t, ts, http.MethodPost, "/v1/namespaces/team-a/services", `{}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400 for a missing name, got %d", resp.StatusCode)
	}
}

func TestHandler_DeleteWorkload(t *testing.T) {
	fake := &fakeProvisioner{}
	ts := newTestServer(t, fake, "")

	resp, _ := do(t, ts, http.MethodDelete, "/v1/namespaces/team-a/workloads/exec-1", "")
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp.StatusCode)
	}
	if got := fake.called(); len(got) != 1 || got[0] != "delete:team-a/exec-1" {
		t.Errorf("unexpected calls %v", got)
	}
}

func TestHandler_DeleteWorkload_NotFoundOnCluster(t *testing.T) {
	fake := &fakeProvisioner{err: &apierror.UnexpectedVariantError{Operation: "delete workload", Status: 404, Reason: "NotFound"}}
	ts := newTestServer(t, fake, "")

	resp, _ := do(t, ts, http.MethodDelete, "/v1/namespaces/team-a/workloads/missing", "")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404, got %d", resp.StatusCode)
	}
}

func TestHandler_ListWorkloads(t *testing.T) {
	fake := &fakeProvisioner{workloads: []string{"exec-b", "exec-a"}}
	ts := newTestServer(t, fake, "")

	resp, body := do(t, ts, http.MethodGet, "/v1/namespaces/team-a/workloads", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	items, _ := body["items"].([]any)
	if len(items) != 2 || items[0] != "exec-b" || items[1] != "exec-a" {
		t.Errorf("expected platform order, got %v", items)
	}
}

func TestHandler_ListWorkloads_Empty(t *testing.T) {
	ts := newTestServer(t, &fakeProvisioner{}, "")

	_, body := do(t, ts, http.MethodGet, "/v1/namespaces/team-a/workloads", "")
	items, ok := body["items"].([]any)
	if !ok || len(items) != 0 {
		t.Errorf("expected an empty items array, got %v", body["items"])
	}
}

func TestHandler_GetExecutor(t *testing.T) {
	fake := &fakeProvisioner{record: model.ExecutorRecord{ID: "id-1", Namespace: "default", Name: "exec-1", Phase: model.ExecutorPhaseReady}}
	ts := newTestServer(t, fake, "")

	resp, body := do(t, ts, http.MethodGet, "/v1/namespaces/default/executors/exec-1", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if body["phase"] != "ready" {
		t.Errorf("unexpected body %v", body)
	}
}

func TestHandler_GetExecutor_NotFound(t *testing.T) {
	fake := &fakeProvisioner{err: fmt.Errorf("get executor default/missing: %w", model.ErrNotFound)}
	ts := newTestServer(t, fake, "")

	resp, _ := do(t, ts, http.MethodGet, "/v1/namespaces/default/executors/missing", "")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404, got %d", resp.StatusCode)
	}
}

func TestHandler_ListExecutors(t *testing.T) {
	fake := &fakeProvisioner{records: []model.ExecutorRecord{{ID: "id-1", Phase: model.ExecutorPhasePartial}}}
	ts := newTestServer(t, fake, "")

	resp, body := do(t, ts, http.MethodGet, "/v1/executors?phase=partial&namespace=default&page=2&size=5", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if body["total_count"] != float64(1) {
		t.Errorf("unexpected total_count %v", body["total_count"])
	}
	if fake.lastFilter.Phase != model.ExecutorPhasePartial || fake.lastFilter.Namespace != "default" {
		t.Errorf("unexpected filter %+v", fake.lastFilter)
	}
	if fake.lastPage.Page != 2 || fake.lastPage.Size != 5 || !fake.lastPage.Desc {
		t.Errorf("unexpected page %+v", fake.lastPage)
	}
}

func TestHandler_ListExecutors_BadPaging(t *testing.T) {
	ts := newTestServer(t, &fakeProvisioner{}, "")

	for _, q := range []string{"page=x", "size=0", "size=10000"} {
		resp, _ := do(t, ts, http.MethodGet, "/v1/executors?"+q, "")
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", q, resp.StatusCode)
		}
	}
}

func TestServer_Auth(t *testing.T) {
	ts := newTestServer(t, &fakeProvisioner{}, "s3cret")

	resp, _ := do(t, ts, http.MethodGet, "/health", "")
	if resp.StatusCode != http.StatusOK {
		t.Errorf("health should skip auth, got %d", resp.StatusCode)
	}

	resp, _ = do(t, ts, http.MethodGet, "/v1/namespaces/default/workloads", "")
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401 without a token, got %d", resp.StatusCode)
	}

	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/v1/namespaces/default/workloads", nil)
	req.Header.Set("Authorization", "Bearer s3cret")
	authed, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	authed.Body.Close()
	if authed.StatusCode != http.StatusOK {
		t.Errorf("expected 200 with a valid token, got %d", authed.StatusCode)
	}
}

func TestServer_MethodNotAllowed(t *testing.T) {
	ts := newTestServer(t, &fakeProvisioner{}, "")

	resp, _ := do(t, ts, http.MethodPut, "/v1/namespaces/default/workloads/exec-1", "")
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("expected 405, got %d", resp.StatusCode)
	}
}

func TestServer_SecurityHeaders(t *testing.T) {
	ts := newTestServer(t, &fakeProvisioner{}, "")

	resp, _ := do(t, ts, http.MethodGet, "/health", "")
	if resp.Header.Get("X-Content-Type-Options") != "nosniff" {
		t.Errorf("expected nosniff header, got %q", resp.Header.Get("X-Content-Type-Options"))
	}
}

func TestSetupRoutes_RebuildOnSameRegistry(t *testing.T) {
	srv := httpapi.NewServer(httpapi.ServerConfig{}, httpapi.NewHandler(&fakeProvisioner{}, nil), nil, prometheus.NewRegistry())

	_ = srv.SetupRoutes()
	h := srv.SetupRoutes()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}
