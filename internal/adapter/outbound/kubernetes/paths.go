package kubernetes

import "net/url"

const (
	coreV1Prefix = "/api/v1"
	versionPath  = "/version"
)

func podsPath(namespace string) string {
	return coreV1Prefix + "/namespaces/" + url.PathEscape(namespace) + "/pods"
}

func podPath(namespace, name string) string {
	return podsPath(namespace) + "/" + url.PathEscape(name)
}

func servicesPath(namespace string) string {
	return coreV1Prefix + "/namespaces/" + url.PathEscape(namespace) + "/services"
}
