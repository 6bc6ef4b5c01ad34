package kubernetes

import (
	"strings"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/intstr"
	"k8s.io/apimachinery/pkg/util/validation"

	"github.com/jonny/executor-provisioner/pkg/apierror"
)

const (
	// ExecutorPort is the single gRPC port every executor listens on.
	ExecutorPort int32 = 50051
	// ExecutorPortName names the service port.
	ExecutorPortName = "grpc"

	// TODO: make the pull policy a config option once executors run pinned image digests.
	executorImagePullPolicy = corev1.PullAlways

	labelInstance  = "app.kubernetes.io/instance"
	labelManagedBy = "app.kubernetes.io/managed-by"
	managerName    = "executor-provisioner"
)

// BuildWorkloadDescriptor returns the pod for one executor. The result depends only on the
// arguments. Names that the platform would reject come back as *apierror.CallerInputError.
func BuildWorkloadDescriptor(namespace, name, image string) (*corev1.Pod, error) {
	if err := ValidateWorkloadInputs(namespace, name, image); err != nil {
		return nil, err
	}
	return workloadDescriptor(namespace, name, image), nil
}

// BuildServiceDescriptor returns the cluster-internal service fronting the executor pod.
func BuildServiceDescriptor(namespace, name string) (*corev1.Service, error) {
	if err := ValidateServiceInputs(namespace, name); err != nil {
		return nil, err
	}
	return serviceDescriptor(namespace, name), nil
}

func workloadDescriptor(namespace, name, image string) *corev1.Pod {
	return &corev1.Pod{
		TypeMeta: metav1.TypeMeta{APIVersion: "v1", Kind: "Pod"},
		ObjectMeta: metav1.ObjectMeta{
			Name:      name,
			Namespace: namespace,
			Labels:    executorLabels(name),
		},
		Spec: corev1.PodSpec{
			Containers: []corev1.Container{{
				Name:            name,
				Image:           image,
				ImagePullPolicy: executorImagePullPolicy,
				Ports:           []corev1.ContainerPort{{ContainerPort: ExecutorPort}},
			}},
		},
	}
}

func serviceDescriptor(namespace, name string) *corev1.Service {
	return &corev1.Service{
		TypeMeta: metav1.TypeMeta{APIVersion: "v1", Kind: "Service"},
		ObjectMeta: metav1.ObjectMeta{
			Name:      name,
			Namespace: namespace,
			Labels:    executorLabels(name),
		},
		Spec: corev1.ServiceSpec{
			Type:     corev1.ServiceTypeClusterIP,
			Selector: map[string]string{labelInstance: name},
			Ports: []corev1.ServicePort{{
				Name:       ExecutorPortName,
				Port:       ExecutorPort,
				TargetPort: intstr.FromInt32(ExecutorPort),
			}},
		},
	}
}

func executorLabels(name string) map[string]string {
	return map[string]string{
		labelInstance:  name,
		labelManagedBy: managerName,
	}
}

// ValidateWorkloadInputs applies the platform's naming rules locally. The container shares
// the pod's name, so the name has to be a DNS-1123 label rather than a subdomain.
func ValidateWorkloadInputs(namespace, name, image string) error {
	if err := validateNamespace(namespace); err != nil {
		return err
	}
	if errs := validation.IsDNS1123Label(name); len(errs) > 0 {
		return apierror.NewCallerInput("name", strings.Join(errs, "; "))
	}
	if image == "" {
		return apierror.NewCallerInput("image", "must not be empty")
	}
	if strings.TrimSpace(image) != image {
		return apierror.NewCallerInput("image", "must not have leading or trailing whitespace")
	}
	return nil
}

// ValidateServiceInputs applies the service naming rules (DNS-1035 label).
func ValidateServiceInputs(namespace, name string) error {
	if err := validateNamespace(namespace); err != nil {
		return err
	}
	if errs := validation.IsDNS1035Label(name); len(errs) > 0 {
		return apierror.NewCallerInput("name", strings.Join(errs, "; "))
	}
	return nil
}

func validateNamespace(namespace string) error {
	if errs := validation.IsDNS1123Label(namespace); len(errs) > 0 {
		return apierror.NewCallerInput("namespace", strings.Join(errs, "; "))
	}
	return nil
}
