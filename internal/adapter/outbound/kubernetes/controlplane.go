package kubernetes

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/jonny/executor-provisioner/internal/domain/port/outbound"
)

// ControlPlaneOptions configures a ControlPlane.
type ControlPlaneOptions struct {
	Policy *Policy
	// ValidateNames rejects names the platform would reject without a round trip.
	ValidateNames bool
	// DeleteGracePeriodSeconds is sent with deletes when set.
	DeleteGracePeriodSeconds *int64
	Logger                   *slog.Logger
	Metrics                  *Metrics
}

// ControlPlane implements outbound.ControlPlane by building descriptors, sending them through
// a RequestExecutor and decoding the responses. It holds no per-call state.
type ControlPlane struct {
	exec        RequestExecutor
	policy      *Policy
	validate    bool
	gracePeriod *int64
	logger      *slog.Logger
	metrics     *Metrics
}

var _ outbound.ControlPlane = (*ControlPlane)(nil)

// NewControlPlane creates a ControlPlane on top of exec.
func NewControlPlane(exec RequestExecutor, opts ControlPlaneOptions) *ControlPlane {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &ControlPlane{
		exec:        exec,
		policy:      opts.Policy,
		validate:    opts.ValidateNames,
		gracePeriod: opts.DeleteGracePeriodSeconds,
		logger:      logger,
		metrics:     opts.Metrics,
	}
}

// CreateWorkload creates the executor pod.
func (c *ControlPlane) CreateWorkload(ctx context.Context, namespace, name, image string) error {
	if err := c.policy.AdmitNamespace(namespace); err != nil {
		return fmt.Errorf("create workload %s/%s: %w", namespace, name, err)
	}
	if err := c.policy.AdmitImage(image); err != nil {
		return fmt.Errorf("create workload %s/%s: %w", namespace, name, err)
	}

	pod := workloadDescriptor(namespace, name, image)
	if c.validate {
		var err error
		if pod, err = BuildWorkloadDescriptor(namespace, name, image); err != nil {
			return fmt.Errorf("create workload %s/%s: %w", namespace, name, err)
		}
	}

	body, err := json.Marshal(pod)
	if err != nil {
		return fmt.Errorf("marshalling workload %s/%s: %w", namespace, name, err)
	}

	created, err := call(ctx, c, Request{Method: http.MethodPost, Path: podsPath(namespace), Body: body}, CreateWorkloadGrammar)
	if err != nil {
		return fmt.Errorf("create workload %s/%s: %w", namespace, name, err)
	}
	c.logger.Info("created workload", "namespace", namespace, "name", created.Name)
	return nil
}

// CreateService creates the cluster-internal service for the executor.
func (c *ControlPlane) CreateService(ctx context.Context, namespace, name string) error {
	if err := c.policy.AdmitNamespace(namespace); err != nil {
		return fmt.Errorf("create service %s/%s: %w", namespace, name, err)
	}

	svc := serviceDescriptor(namespace, name)
	if c.validate {
		var err error
		if svc, err = BuildServiceDescriptor(namespace, name); err != nil {
			return fmt.Errorf("create service %s/%s: %w", namespace, name, err)
		}
	}

	body, err := json.Marshal(svc)
	if err != nil {
		return fmt.Errorf("marshalling service %s/%s: %w", namespace, name, err)
	}

	created, err := call(ctx, c, Request{Method: http.MethodPost, Path: servicesPath(namespace), Body: body}, CreateServiceGrammar)
	if err != nil {
		return fmt.Errorf("create service %s/%s: %w", namespace, name, err)
	}
	c.logger.Info("created service", "namespace", namespace, "name", created.Name)
	return nil
}

// DeleteWorkload deletes the executor pod. The platform may confirm with a Status, with the
// pod itself, or with 202 Accepted; all three count as success.
func (c *ControlPlane) DeleteWorkload(ctx context.Context, namespace, name string) error {
	if err := c.policy.AdmitNamespace(namespace); err != nil {
		return fmt.Errorf("delete workload %s/%s: %w", namespace, name, err)
	}

	opts := metav1.DeleteOptions{
		TypeMeta:           metav1.TypeMeta{APIVersion: "v1", Kind: "DeleteOptions"},
		GracePeriodSeconds: c.gracePeriod,
	}
	body, err := json.Marshal(opts)
	if err != nil {
		return fmt.Errorf("marshalling delete options: %w", err)
	}

	confirmation, err := call(ctx, c, Request{Method: http.MethodDelete, Path: podPath(namespace, name), Body: body}, DeleteWorkloadGrammar)
	if err != nil {
		return fmt.Errorf("delete workload %s/%s: %w", namespace, name, err)
	}
	c.logger.Info("deleted workload", "namespace", namespace, "name", name, "confirmation", confirmation.Kind.String())
	return nil
}

// ListWorkloads returns pod names in the order the platform returned them.
func (c *ControlPlane) ListWorkloads(ctx context.Context, namespace string) ([]string, error) {
	names, err := call(ctx, c, Request{Method: http.MethodGet, Path: podsPath(namespace)}, ListWorkloadsGrammar)
	if err != nil {
		return nil, fmt.Errorf("list workloads in %s: %w", namespace, err)
	}
	return names, nil
}

// HealthCheck verifies the control plane answers GET /version.
func (c *ControlPlane) HealthCheck(ctx context.Context) error {
	info, err := call(ctx, c, Request{Method: http.MethodGet, Path: versionPath}, VersionGrammar)
	if err != nil {
		return fmt.Errorf("control plane health check failed: %w", err)
	}
	c.logger.Debug("control plane reachable", "gitVersion", info.GitVersion)
	return nil
}

// call sends req and decodes the complete response against grammar.
func call[T any](ctx context.Context, c *ControlPlane, req Request, grammar Grammar[T]) (T, error) {
	var zero T
	resp, err := c.exec.Do(ctx, req)
	if err != nil {
		return zero, err
	}

	outcome := Decode(grammar, resp)
	c.metrics.observeOutcome(grammar.Operation, outcome.Kind)
	if outcome.Kind != OutcomeSuccess {
		c.logger.Warn("control plane call did not succeed",
			"operation", grammar.Operation,
			"status", resp.Status,
			"outcome", outcome.Kind.String(),
		)
	}
	return outcome.Result()
}
