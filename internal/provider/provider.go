// Package provider defines the cloud provider adapter interface and its
// implementations for CoreWeave, AWS, GCP, and Azure.
//
// Every adapter exposes the same capability set: create/delete network,
// create/delete object storage, create/delete a GPU-backed compute
// service, public-access configuration, and status checks. Adapters own
// provider-specific GPU type naming, instance sizing rules, and capacity
// fallback behavior.
package provider

import (
	"context"
	"fmt"
)

// ID identifies a supported cloud provider.
type ID string

const (
	CoreWeave ID = "coreweave"
	AWS       ID = "aws"
	GCP       ID = "gcp"
	Azure     ID = "azure"

	// Mock is a sandbox/test variant. It is only ever selected by
	// explicit configuration, never as a runtime fallback when
	// credentials are missing.
	Mock ID = "mock"
)

// ResourceKind categorizes provisioned resources for ordered cleanup.
type ResourceKind string

const (
	KindNetwork ResourceKind = "network"
	KindStorage ResourceKind = "storage"
	KindCompute ResourceKind = "compute"
)

// ServiceStatus is the lifecycle status of a compute service.
type ServiceStatus string

const (
	StatusReady        ServiceStatus = "ready"
	StatusProvisioning ServiceStatus = "provisioning"
	StatusFailed       ServiceStatus = "failed"
)

// Handle is an opaque provider-specific reference to a created cloud
// resource, tracked for later deletion.
type Handle struct {
	Kind ResourceKind      `json:"kind" yaml:"kind"`
	ID   string            `json:"id" yaml:"id"`
	Meta map[string]string `json:"meta,omitempty" yaml:"meta,omitempty"`
}

func (h Handle) String() string {
	return fmt.Sprintf("%s/%s", h.Kind, h.ID)
}

// NetworkSpec describes an isolated network for a deployment.
type NetworkSpec struct {
	Name   string
	Region string
	CIDR   string
	Labels map[string]string
}

// StorageSpec describes durable storage for a deployment: an object
// storage bucket on the hyperscalers, a volume claim on CoreWeave.
type StorageSpec struct {
	Name      string
	Region    string
	SizeGB    int
	Encrypted bool

	// Network is the handle of the deployment's network, created
	// before storage. Adapters that scope storage to a network use it;
	// others ignore it.
	Network Handle

	Labels map[string]string
}

// ComputeSpec describes a container-backed compute service.
type ComputeSpec struct {
	Name     string
	Region   string
	Image    string
	GPUType  string
	GPUCount int
	CPU      int // millicores
	MemoryMB int
	Env      map[string]string
	Port     int

	// Network and Storage reference earlier provisioning results.
	// Compute services are always created after both exist.
	Network Handle
	Storage Handle

	Labels map[string]string
}

// ComputeResult is the outcome of a compute service creation.
type ComputeResult struct {
	Handle Handle

	// URL is the reachable endpoint of the service once ready.
	URL string

	// Degraded is set when a capacity fallback substituted a CPU-only
	// service for the requested GPU configuration.
	Degraded bool
}

// Adapter is the capability set implemented once per cloud provider.
//
// All delete operations tolerate "already gone": deleting a resource
// that no longer exists returns nil, since cleanup may run after
// partial external deletion.
type Adapter interface {
	Name() ID

	CreateNetwork(ctx context.Context, spec NetworkSpec) (Handle, error)
	CreateStorage(ctx context.Context, spec StorageSpec) (Handle, error)
	CreateComputeService(ctx context.Context, spec ComputeSpec) (ComputeResult, error)

	// SetPublicAccess makes the compute service internet-reachable.
	SetPublicAccess(ctx context.Context, handle Handle) error

	GetStatus(ctx context.Context, handle Handle) (ServiceStatus, error)

	DeleteComputeService(ctx context.Context, handle Handle) error
	DeleteStorage(ctx context.Context, handle Handle) error
	DeleteNetwork(ctx context.Context, handle Handle) error
}

// Delete dispatches a handle to the matching adapter delete operation.
func Delete(ctx context.Context, a Adapter, handle Handle) error {
	switch handle.Kind {
	case KindCompute:
		return a.DeleteComputeService(ctx, handle)
	case KindStorage:
		return a.DeleteStorage(ctx, handle)
	case KindNetwork:
		return a.DeleteNetwork(ctx, handle)
	default:
		return fmt.Errorf("unknown resource kind %q", handle.Kind)
	}
}

// SupportedProviders lists the provider identifiers accepted on a
// deployment request. Mock is excluded: it must be selected explicitly
// through sandbox configuration.
func SupportedProviders() []ID {
	return []ID{CoreWeave, AWS, GCP, Azure}
}

// Valid reports whether id names a real (non-sandbox) provider.
func (id ID) Valid() bool {
	switch id {
	case CoreWeave, AWS, GCP, Azure:
		return true
	default:
		return false
	}
}
