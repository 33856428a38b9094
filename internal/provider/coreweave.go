package provider

import (
	"context"
	"fmt"
	"log"

	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
)

// coreweaveGPUClassLabel is the node label CoreWeave schedules GPU
// workloads by.
const coreweaveGPUClassLabel = "gpu.nvidia.com/class"

// CoreWeaveAdapter provisions deployments on CoreWeave, which exposes
// its capacity through the Kubernetes API: a namespace per deployment,
// volume claims for model storage, and Deployment/Service pairs for
// compute.
type CoreWeaveAdapter struct {
	client kubernetes.Interface

	// ingressDomain is the DNS suffix under which LoadBalancer
	// services become reachable.
	ingressDomain string
}

// NewCoreWeave creates a CoreWeave adapter over an established
// Kubernetes client.
func NewCoreWeave(client kubernetes.Interface, ingressDomain string) *CoreWeaveAdapter {
	if ingressDomain == "" {
		ingressDomain = "coreweave.cloud"
	}
	return &CoreWeaveAdapter{client: client, ingressDomain: ingressDomain}
}

func (a *CoreWeaveAdapter) Name() ID { return CoreWeave }

// classify maps Kubernetes API errors onto the provider error
// taxonomy. Quota failures arrive as 403 Forbidden with an "exceeded
// quota" cause.
func (a *CoreWeaveAdapter) classify(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case apierrors.IsForbidden(err):
		return Capacity(CoreWeave, op, err)
	case apierrors.IsUnauthorized(err),
		apierrors.IsServerTimeout(err),
		apierrors.IsTimeout(err),
		apierrors.IsTooManyRequests(err),
		apierrors.IsServiceUnavailable(err),
		apierrors.IsInternalError(err),
		apierrors.IsConflict(err):
		return Transient(CoreWeave, op, err)
	default:
		return Fatal(CoreWeave, op, err)
	}
}

func (a *CoreWeaveAdapter) CreateNetwork(ctx context.Context, spec NetworkSpec) (Handle, error) {
	ns := &corev1.Namespace{
		ObjectMeta: metav1.ObjectMeta{
			Name:   spec.Name,
			Labels: spec.Labels,
		},
	}
	if _, err := a.client.CoreV1().Namespaces().Create(ctx, ns, metav1.CreateOptions{}); err != nil {
		if !apierrors.IsAlreadyExists(err) {
			return Handle{}, a.classify("CreateNetwork", err)
		}
	}
	return Handle{Kind: KindNetwork, ID: spec.Name}, nil
}

func (a *CoreWeaveAdapter) DeleteNetwork(ctx context.Context, handle Handle) error {
	err := a.client.CoreV1().Namespaces().Delete(ctx, handle.ID, metav1.DeleteOptions{})
	if err != nil && !apierrors.IsNotFound(err) {
		return a.classify("DeleteNetwork", err)
	}
	return nil
}

func (a *CoreWeaveAdapter) CreateStorage(ctx context.Context, spec StorageSpec) (Handle, error) {
	size := spec.SizeGB
	if size <= 0 {
		size = 100
	}
	pvc := &corev1.PersistentVolumeClaim{
		ObjectMeta: metav1.ObjectMeta{
			Name:      spec.Name,
			Namespace: spec.Network.ID,
			Labels:    spec.Labels,
		},
		Spec: corev1.PersistentVolumeClaimSpec{
			AccessModes: []corev1.PersistentVolumeAccessMode{corev1.ReadWriteOnce},
			Resources: corev1.VolumeResourceRequirements{
				Requests: corev1.ResourceList{
					corev1.ResourceStorage: *resource.NewQuantity(int64(size)<<30, resource.BinarySI),
				},
			},
		},
	}
	if _, err := a.client.CoreV1().PersistentVolumeClaims(spec.Network.ID).Create(ctx, pvc, metav1.CreateOptions{}); err != nil {
		if !apierrors.IsAlreadyExists(err) {
			return Handle{}, a.classify("CreateStorage", err)
		}
	}
	return Handle{
		Kind: KindStorage,
		ID:   spec.Name,
		Meta: map[string]string{"namespace": spec.Network.ID},
	}, nil
}

func (a *CoreWeaveAdapter) DeleteStorage(ctx context.Context, handle Handle) error {
	err := a.client.CoreV1().PersistentVolumeClaims(handle.Meta["namespace"]).
		Delete(ctx, handle.ID, metav1.DeleteOptions{})
	if err != nil && !apierrors.IsNotFound(err) {
		return a.classify("DeleteStorage", err)
	}
	return nil
}

func (a *CoreWeaveAdapter) CreateComputeService(ctx context.Context, spec ComputeSpec) (ComputeResult, error) {
	for i, attempt := range fallbackChain(spec) {
		result, err := a.createWorkload(ctx, attempt)
		if err != nil {
			if IsCapacity(err) {
				log.Printf("[coreweave] capacity failure for %s (%d× %s), trying fallback: %v",
					attempt.Name, attempt.GPUCount, attempt.GPUType, err)
				continue
			}
			return ComputeResult{}, err
		}
		result.Degraded = i > 0
		if result.Degraded {
			log.Printf("[coreweave] %s provisioned degraded: %d× %s instead of %d× %s",
				spec.Name, attempt.GPUCount, attempt.GPUType, spec.GPUCount, spec.GPUType)
		}
		return result, nil
	}
	return ComputeResult{}, Fatal(CoreWeave, "CreateComputeService",
		fmt.Errorf("capacity exhausted for %d× %s and all fallbacks", spec.GPUCount, spec.GPUType))
}

func (a *CoreWeaveAdapter) createWorkload(ctx context.Context, spec ComputeSpec) (ComputeResult, error) {
	namespace := spec.Network.ID

	limits := corev1.ResourceList{
		corev1.ResourceCPU:    *resource.NewMilliQuantity(int64(spec.CPU), resource.DecimalSI),
		corev1.ResourceMemory: *resource.NewQuantity(int64(spec.MemoryMB)<<20, resource.BinarySI),
	}
	var nodeSelector map[string]string
	if spec.GPUCount > 0 {
		class, ok := coreweaveGPUClasses[spec.GPUType]
		if !ok {
			return ComputeResult{}, Fatal(CoreWeave, "CreateComputeService",
				fmt.Errorf("unsupported GPU type %q", spec.GPUType))
		}
		limits["nvidia.com/gpu"] = *resource.NewQuantity(int64(spec.GPUCount), resource.DecimalSI)
		nodeSelector = map[string]string{coreweaveGPUClassLabel: class}
	}

	env := make([]corev1.EnvVar, 0, len(spec.Env))
	for k, v := range spec.Env {
		env = append(env, corev1.EnvVar{Name: k, Value: v})
	}

	replicas := int32(1)
	podLabels := map[string]string{"app": spec.Name}
	workload := &appsv1.Deployment{
		ObjectMeta: metav1.ObjectMeta{
			Name:      spec.Name,
			Namespace: namespace,
			Labels:    spec.Labels,
		},
		Spec: appsv1.DeploymentSpec{
			Replicas: &replicas,
			Selector: &metav1.LabelSelector{MatchLabels: podLabels},
			Template: corev1.PodTemplateSpec{
				ObjectMeta: metav1.ObjectMeta{Labels: podLabels},
				Spec: corev1.PodSpec{
					NodeSelector: nodeSelector,
					Containers: []corev1.Container{{
						Name:  spec.Name,
						Image: spec.Image,
						Env:   env,
						Ports: []corev1.ContainerPort{{ContainerPort: int32(spec.Port)}},
						Resources: corev1.ResourceRequirements{
							Limits: limits,
						},
					}},
				},
			},
		},
	}

	if _, err := a.client.AppsV1().Deployments(namespace).Create(ctx, workload, metav1.CreateOptions{}); err != nil {
		if !apierrors.IsAlreadyExists(err) {
			return ComputeResult{}, a.classify("CreateComputeService", err)
		}
	}

	svc := &corev1.Service{
		ObjectMeta: metav1.ObjectMeta{
			Name:      spec.Name,
			Namespace: namespace,
			Labels:    spec.Labels,
		},
		Spec: corev1.ServiceSpec{
			Selector: podLabels,
			Type:     corev1.ServiceTypeClusterIP,
			Ports: []corev1.ServicePort{{
				Port: int32(spec.Port),
			}},
		},
	}
	if _, err := a.client.CoreV1().Services(namespace).Create(ctx, svc, metav1.CreateOptions{}); err != nil {
		if !apierrors.IsAlreadyExists(err) {
			return ComputeResult{}, a.classify("CreateComputeService", err)
		}
	}

	return ComputeResult{
		Handle: Handle{
			Kind: KindCompute,
			ID:   spec.Name,
			Meta: map[string]string{"namespace": namespace},
		},
		URL: fmt.Sprintf("http://%s.%s.%s:%d", spec.Name, namespace, a.ingressDomain, spec.Port),
	}, nil
}

// SetPublicAccess switches the workload's service to a LoadBalancer so
// CoreWeave assigns it a public address.
func (a *CoreWeaveAdapter) SetPublicAccess(ctx context.Context, handle Handle) error {
	namespace := handle.Meta["namespace"]
	svc, err := a.client.CoreV1().Services(namespace).Get(ctx, handle.ID, metav1.GetOptions{})
	if err != nil {
		return a.classify("SetPublicAccess", err)
	}
	svc.Spec.Type = corev1.ServiceTypeLoadBalancer
	if _, err := a.client.CoreV1().Services(namespace).Update(ctx, svc, metav1.UpdateOptions{}); err != nil {
		return a.classify("SetPublicAccess", err)
	}
	return nil
}

func (a *CoreWeaveAdapter) GetStatus(ctx context.Context, handle Handle) (ServiceStatus, error) {
	namespace := handle.Meta["namespace"]
	workload, err := a.client.AppsV1().Deployments(namespace).Get(ctx, handle.ID, metav1.GetOptions{})
	if err != nil {
		return StatusFailed, a.classify("GetStatus", err)
	}
	for _, cond := range workload.Status.Conditions {
		if cond.Type == appsv1.DeploymentReplicaFailure && cond.Status == corev1.ConditionTrue {
			return StatusFailed, nil
		}
	}
	if workload.Status.ReadyReplicas >= 1 {
		return StatusReady, nil
	}
	return StatusProvisioning, nil
}

func (a *CoreWeaveAdapter) DeleteComputeService(ctx context.Context, handle Handle) error {
	namespace := handle.Meta["namespace"]
	if err := a.client.CoreV1().Services(namespace).Delete(ctx, handle.ID, metav1.DeleteOptions{}); err != nil {
		if !apierrors.IsNotFound(err) {
			return a.classify("DeleteComputeService", err)
		}
	}
	if err := a.client.AppsV1().Deployments(namespace).Delete(ctx, handle.ID, metav1.DeleteOptions{}); err != nil {
		if !apierrors.IsNotFound(err) {
			return a.classify("DeleteComputeService", err)
		}
	}
	return nil
}
