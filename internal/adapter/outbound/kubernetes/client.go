package kubernetes

import (
	"fmt"
	"time"

	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
)

// ClientConfig selects where the control-plane address and credentials come from.
type ClientConfig struct {
	InCluster  bool
	Kubeconfig string
	// Host overrides the server address. With neither InCluster nor Kubeconfig set it is
	// used on its own, unauthenticated, which suits a local `kubectl proxy`.
	Host    string
	Timeout time.Duration
}

// NewRESTConfig builds a rest.Config from in-cluster config, a kubeconfig file, or a bare host.
func NewRESTConfig(cfg ClientConfig) (*rest.Config, error) {
	var config *rest.Config
	var err error

	switch {
	case cfg.InCluster:
		config, err = rest.InClusterConfig()
		if err == nil && cfg.Host != "" {
			config.Host = cfg.Host
		}
	case cfg.Kubeconfig != "":
		config, err = clientcmd.BuildConfigFromFlags(cfg.Host, cfg.Kubeconfig)
	case cfg.Host != "":
		config = &rest.Config{Host: cfg.Host}
	default:
		err = fmt.Errorf("no in-cluster config, kubeconfig or host given")
	}
	if err != nil {
		return nil, fmt.Errorf("building k8s config: %w", err)
	}

	config.Timeout = cfg.Timeout
	return config, nil
}
