package kubernetes

import (
	"fmt"
	"strings"

	"github.com/jonny/executor-provisioner/pkg/apierror"
)

// PolicyConfig holds the namespaces executors may not touch and the image prefixes they may run.
type PolicyConfig struct {
	BlockedNamespaces    []string
	AllowedImagePrefixes []string
}

// Policy enforces namespace and image access control before any request is built.
type Policy struct {
	blockedNS     map[string]bool
	imagePrefixes []string
}

// NewPolicy creates a Policy. An empty AllowedImagePrefixes allows every image.
func NewPolicy(cfg PolicyConfig) *Policy {
	prefixes := make([]string, 0, len(cfg.AllowedImagePrefixes))
	for _, p := range cfg.AllowedImagePrefixes {
		if p = strings.TrimSpace(p); p != "" {
			prefixes = append(prefixes, p)
		}
	}
	return &Policy{
		blockedNS:     toSet(cfg.BlockedNamespaces),
		imagePrefixes: prefixes,
	}
}

// IsNamespaceBlocked reports whether ns is in the blocked-namespace set.
func (p *Policy) IsNamespaceBlocked(ns string) bool {
	if p == nil {
		return false
	}
	return p.blockedNS[strings.ToLower(ns)]
}

// IsImageAllowed reports whether image starts with one of the allowed prefixes.
func (p *Policy) IsImageAllowed(image string) bool {
	if p == nil || len(p.imagePrefixes) == 0 {
		return true
	}
	for _, prefix := range p.imagePrefixes {
		if strings.HasPrefix(image, prefix) {
			return true
		}
	}
	return false
}

// AdmitNamespace rejects mutations in blocked namespaces.
func (p *Policy) AdmitNamespace(ns string) error {
	if p.IsNamespaceBlocked(ns) {
		return apierror.NewCallerInput("namespace", fmt.Sprintf("namespace %s is blocked", ns))
	}
	return nil
}

// AdmitImage rejects images outside the allowed prefixes.
func (p *Policy) AdmitImage(image string) error {
	if !p.IsImageAllowed(image) {
		return apierror.NewCallerInput("image", fmt.Sprintf("image %s is not from an allowed registry", image))
	}
	return nil
}

func toSet(items []string) map[string]bool {
	s := make(map[string]bool, len(items))
	for _, item := range items {
		s[strings.ToLower(item)] = true
	}
	return s
}
