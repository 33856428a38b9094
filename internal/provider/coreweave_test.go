package provider

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/client-go/kubernetes/fake"
	k8stesting "k8s.io/client-go/testing"
)

func TestCoreWeaveAdapter_CreateNetwork(t *testing.T) {
	client := fake.NewSimpleClientset()
	a := NewCoreWeave(client, "")

	handle, err := a.CreateNetwork(context.Background(), NetworkSpec{
		Name:   "dep-abc",
		Labels: map[string]string{"modelgrid.dev/org": "acme"},
	})
	require.NoError(t, err)
	assert.Equal(t, Handle{Kind: KindNetwork, ID: "dep-abc"}, handle)

	ns, err := client.CoreV1().Namespaces().Get(context.Background(), "dep-abc", metav1.GetOptions{})
	require.NoError(t, err)
	assert.Equal(t, "acme", ns.Labels["modelgrid.dev/org"])

	// Creating the same namespace again is not an error.
	_, err = a.CreateNetwork(context.Background(), NetworkSpec{Name: "dep-abc"})
	assert.NoError(t, err)
}

func TestCoreWeaveAdapter_CreateStorage(t *testing.T) {
	client := fake.NewSimpleClientset()
	a := NewCoreWeave(client, "")

	handle, err := a.CreateStorage(context.Background(), StorageSpec{
		Name:    "model-cache",
		SizeGB:  200,
		Network: Handle{Kind: KindNetwork, ID: "dep-abc"},
	})
	require.NoError(t, err)
	assert.Equal(t, "dep-abc", handle.Meta["namespace"])

	pvc, err := client.CoreV1().PersistentVolumeClaims("dep-abc").
		Get(context.Background(), "model-cache", metav1.GetOptions{})
	require.NoError(t, err)
	storage := pvc.Spec.Resources.Requests[corev1.ResourceStorage]
	assert.Equal(t, int64(200)<<30, storage.Value())
}

func TestCoreWeaveAdapter_CreateComputeService(t *testing.T) {
	client := fake.NewSimpleClientset()
	a := NewCoreWeave(client, "cw.example.net")

	result, err := a.CreateComputeService(context.Background(), ComputeSpec{
		Name:     "llama-70b",
		Image:    "registry.local/vllm:latest",
		GPUType:  GPUTypeH100,
		GPUCount: 2,
		CPU:      16000,
		MemoryMB: 131072,
		Port:     8000,
		Network:  Handle{Kind: KindNetwork, ID: "dep-abc"},
	})
	require.NoError(t, err)
	assert.Equal(t, "http://llama-70b.dep-abc.cw.example.net:8000", result.URL)
	assert.False(t, result.Degraded)

	workload, err := client.AppsV1().Deployments("dep-abc").
		Get(context.Background(), "llama-70b", metav1.GetOptions{})
	require.NoError(t, err)

	pod := workload.Spec.Template.Spec
	assert.Equal(t, "H100_NVLINK_80GB", pod.NodeSelector[coreweaveGPUClassLabel])
	gpus := pod.Containers[0].Resources.Limits["nvidia.com/gpu"]
	assert.Equal(t, int64(2), gpus.Value())

	svc, err := client.CoreV1().Services("dep-abc").
		Get(context.Background(), "llama-70b", metav1.GetOptions{})
	require.NoError(t, err)
	assert.Equal(t, corev1.ServiceTypeClusterIP, svc.Spec.Type)
}

func TestCoreWeaveAdapter_CreateComputeService_QuotaFallback(t *testing.T) {
	client := fake.NewSimpleClientset()
	client.PrependReactor("create", "deployments",
		func(action k8stesting.Action) (bool, runtime.Object, error) {
			create := action.(k8stesting.CreateAction)
			workload := create.GetObject().(*appsv1.Deployment)
			limits := workload.Spec.Template.Spec.Containers[0].Resources.Limits
			if _, hasGPU := limits["nvidia.com/gpu"]; hasGPU {
				return true, nil, apierrors.NewForbidden(
					schema.GroupResource{Resource: "pods"}, workload.Name,
					errors.New("exceeded quota: gpu-quota"))
			}
			return false, nil, nil
		})

	a := NewCoreWeave(client, "")
	result, err := a.CreateComputeService(context.Background(), ComputeSpec{
		Name:     "llama-70b",
		Image:    "registry.local/vllm:latest",
		GPUType:  GPUTypeA100_80,
		GPUCount: 4,
		CPU:      16000,
		MemoryMB: 131072,
		Port:     8000,
		Network:  Handle{Kind: KindNetwork, ID: "dep-abc"},
	})

	require.NoError(t, err)
	assert.True(t, result.Degraded)

	workload, err := client.AppsV1().Deployments("dep-abc").
		Get(context.Background(), "llama-70b", metav1.GetOptions{})
	require.NoError(t, err)
	limits := workload.Spec.Template.Spec.Containers[0].Resources.Limits
	_, hasGPU := limits["nvidia.com/gpu"]
	assert.False(t, hasGPU, "fallback workload should be CPU-only")
}

func TestCoreWeaveAdapter_Classify(t *testing.T) {
	a := NewCoreWeave(fake.NewSimpleClientset(), "")
	gr := schema.GroupResource{Resource: "pods"}

	tests := []struct {
		name string
		err  error
		want Class
	}{
		{"forbidden is capacity", apierrors.NewForbidden(gr, "x", errors.New("quota")), ClassCapacity},
		{"unauthorized is transient", apierrors.NewUnauthorized("expired"), ClassTransient},
		{"timeout is transient", apierrors.NewTimeoutError("slow", 1), ClassTransient},
		{"too many requests is transient", apierrors.NewTooManyRequests("throttled", 1), ClassTransient},
		{"conflict is transient", apierrors.NewConflict(gr, "x", errors.New("modified")), ClassTransient},
		{"bad request is fatal", apierrors.NewBadRequest("nope"), ClassFatal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassOf(a.classify("op", tt.err)))
		})
	}
}

func TestCoreWeaveAdapter_GetStatus(t *testing.T) {
	handle := Handle{Kind: KindCompute, ID: "svc", Meta: map[string]string{"namespace": "ns"}}

	tests := []struct {
		name   string
		status appsv1.DeploymentStatus
		want   ServiceStatus
	}{
		{"ready", appsv1.DeploymentStatus{ReadyReplicas: 1}, StatusReady},
		{"pending", appsv1.DeploymentStatus{ReadyReplicas: 0}, StatusProvisioning},
		{
			"replica failure",
			appsv1.DeploymentStatus{Conditions: []appsv1.DeploymentCondition{{
				Type:   appsv1.DeploymentReplicaFailure,
				Status: corev1.ConditionTrue,
			}}},
			StatusFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := fake.NewSimpleClientset(&appsv1.Deployment{
				ObjectMeta: metav1.ObjectMeta{Name: "svc", Namespace: "ns"},
				Status:     tt.status,
			})
			a := NewCoreWeave(client, "")

			status, err := a.GetStatus(context.Background(), handle)
			require.NoError(t, err)
			assert.Equal(t, tt.want, status)
		})
	}
}

func TestCoreWeaveAdapter_SetPublicAccess(t *testing.T) {
	client := fake.NewSimpleClientset(&corev1.Service{
		ObjectMeta: metav1.ObjectMeta{Name: "svc", Namespace: "ns"},
		Spec:       corev1.ServiceSpec{Type: corev1.ServiceTypeClusterIP},
	})
	a := NewCoreWeave(client, "")

	err := a.SetPublicAccess(context.Background(),
		Handle{Kind: KindCompute, ID: "svc", Meta: map[string]string{"namespace": "ns"}})
	require.NoError(t, err)

	svc, err := client.CoreV1().Services("ns").Get(context.Background(), "svc", metav1.GetOptions{})
	require.NoError(t, err)
	assert.Equal(t, corev1.ServiceTypeLoadBalancer, svc.Spec.Type)
}

func TestCoreWeaveAdapter_Delete_AlreadyGone(t *testing.T) {
	a := NewCoreWeave(fake.NewSimpleClientset(), "")
	handle := Handle{Kind: KindCompute, ID: "gone", Meta: map[string]string{"namespace": "ns"}}

	assert.NoError(t, a.DeleteComputeService(context.Background(), handle))
	assert.NoError(t, a.DeleteNetwork(context.Background(), Handle{Kind: KindNetwork, ID: "gone"}))
	assert.NoError(t, a.DeleteStorage(context.Background(), handle))
}
