// Package deployment defines the core entities of the orchestrator:
// the immutable deployment request, the mutable deployment record, its
// status state machine, and the persistence store contract.
package deployment

import (
	"fmt"
	"time"

	"github.com/modelgrid/modelgrid/internal/provider"
)

// Industry is the compliance profile a deployment is configured for.
type Industry string

const (
	IndustryLegal      Industry = "legal"
	IndustryHealthcare Industry = "healthcare"
	IndustryFinance    Industry = "finance"
	IndustryGeneral    Industry = "general"
)

// Valid reports whether the industry is a known profile.
func (i Industry) Valid() bool {
	switch i {
	case IndustryLegal, IndustryHealthcare, IndustryFinance, IndustryGeneral:
		return true
	default:
		return false
	}
}

// ModelSize is the deployment's model size tier. Each tier maps to a
// GPU requirement; the large tier additionally provisions auxiliary
// services (workflow engine, chat front end).
type ModelSize string

const (
	SizeSmall  ModelSize = "small"
	SizeMedium ModelSize = "medium"
	SizeLarge  ModelSize = "large"
)

// Valid reports whether the size is a known tier.
func (s ModelSize) Valid() bool {
	switch s {
	case SizeSmall, SizeMedium, SizeLarge:
		return true
	default:
		return false
	}
}

// GPURequirements is the default compute sizing for a model tier,
// applied when the request does not pin a GPU configuration.
type GPURequirements struct {
	GPUType  string
	GPUCount int
	CPU      int // millicores
	MemoryMB int
}

// Requirements returns the tier's default GPU configuration.
func (s ModelSize) Requirements() GPURequirements {
	switch s {
	case SizeSmall:
		return GPURequirements{GPUType: provider.GPUTypeA100, GPUCount: 1, CPU: 4000, MemoryMB: 16384}
	case SizeMedium:
		return GPURequirements{GPUType: provider.GPUTypeA100_80, GPUCount: 1, CPU: 8000, MemoryMB: 32768}
	default:
		return GPURequirements{GPUType: provider.GPUTypeA100_80, GPUCount: 2, CPU: 16000, MemoryMB: 65536}
	}
}

// Request is the validated, immutable input that creates a deployment.
type Request struct {
	OrganizationID string            `yaml:"organization_id" json:"organization_id"`
	Name           string            `yaml:"name" json:"name"`
	Industry       Industry          `yaml:"industry" json:"industry"`
	Provider       provider.ID       `yaml:"provider" json:"provider"`
	Region         string            `yaml:"region" json:"region"`
	ModelSize      ModelSize         `yaml:"model_size" json:"model_size"`
	GPUType        string            `yaml:"gpu_type,omitempty" json:"gpu_type,omitempty"`
	GPUCount       int               `yaml:"gpu_count,omitempty" json:"gpu_count,omitempty"`
	Config         map[string]string `yaml:"config,omitempty" json:"config,omitempty"`
}

// Normalize fills GPU fields from the model size tier when the request
// leaves them unset.
func (r *Request) Normalize() {
	if r.Industry == "" {
		r.Industry = IndustryGeneral
	}
	if r.GPUType == "" || r.GPUCount == 0 {
		reqs := r.ModelSize.Requirements()
		if r.GPUType == "" {
			r.GPUType = reqs.GPUType
		}
		if r.GPUCount == 0 {
			r.GPUCount = reqs.GPUCount
		}
	}
}

// Validate checks the request fields the orchestrator depends on.
// Schema-level validation is the intake collaborator's responsibility;
// this is the last line of defense before money is spent.
func (r *Request) Validate() error {
	switch {
	case r.OrganizationID == "":
		return fmt.Errorf("organization_id is required")
	case r.Name == "":
		return fmt.Errorf("name is required")
	case !r.Provider.Valid() && r.Provider != provider.Mock:
		return fmt.Errorf("unknown provider %q", r.Provider)
	case r.Region == "":
		return fmt.Errorf("region is required")
	case !r.ModelSize.Valid():
		return fmt.Errorf("unknown model size %q", r.ModelSize)
	case !r.Industry.Valid():
		return fmt.Errorf("unknown industry %q", r.Industry)
	case r.GPUCount < 0:
		return fmt.Errorf("gpu_count must not be negative")
	}
	return nil
}

// Resource is one provisioned cloud resource: the kind that orders
// cleanup, and the provider handle that names it.
type Resource struct {
	Kind   provider.ResourceKind `json:"kind"`
	Handle provider.Handle       `json:"handle"`
}

// Deployment is the unit of work representing one organization's
// hosted model instance. It is mutated exclusively by the provisioning
// pipeline and the termination entry point, through the Store.
type Deployment struct {
	ID string `json:"id"`

	// Request fields, copied at creation.
	OrganizationID string            `json:"organization_id"`
	Name           string            `json:"name"`
	Industry       Industry          `json:"industry"`
	Provider       provider.ID       `json:"provider"`
	Region         string            `json:"region"`
	ModelSize      ModelSize         `json:"model_size"`
	GPUType        string            `json:"gpu_type"`
	GPUCount       int               `json:"gpu_count"`
	Config         map[string]string `json:"config,omitempty"`

	Status Status `json:"status"`

	// CostPerHour is the quote at creation time. It never changes when
	// pricing tables are updated later; re-quoting is a distinct
	// operation outside this core.
	CostPerHour float64 `json:"cost_per_hour"`

	// EndpointURL is set once the compute service is reachable.
	EndpointURL string `json:"endpoint_url,omitempty"`

	// ProvisionedResources records each resource as its creation step
	// succeeds, in creation order. It is the authoritative record for
	// cleanup: a resource appears here only after its create returned
	// success.
	ProvisionedResources []Resource `json:"provisioned_resources,omitempty"`

	// ResidualResources lists resources cleanup could not remove,
	// preserved for manual reconciliation.
	ResidualResources []Resource `json:"residual_resources,omitempty"`

	// ErrorMessage is set only in the error state.
	ErrorMessage string `json:"error_message,omitempty"`

	// Degraded marks a capacity fallback having substituted for the
	// requested GPU configuration.
	Degraded bool `json:"degraded,omitempty"`

	// Version supports optimistic concurrency in the store: a Save
	// whose Version does not match the stored row is rejected.
	Version int64 `json:"version"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// New creates a pending deployment from a normalized request.
func New(id string, req Request, costPerHour float64, now time.Time) *Deployment {
	cfg := make(map[string]string, len(req.Config))
	for k, v := range req.Config {
		cfg[k] = v
	}
	return &Deployment{
		ID:             id,
		OrganizationID: req.OrganizationID,
		Name:           req.Name,
		Industry:       req.Industry,
		Provider:       req.Provider,
		Region:         req.Region,
		ModelSize:      req.ModelSize,
		GPUType:        req.GPUType,
		GPUCount:       req.GPUCount,
		Config:         cfg,
		Status:         StatusPending,
		CostPerHour:    costPerHour,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// AppendResource records a successfully created resource.
func (d *Deployment) AppendResource(handle provider.Handle) {
	d.ProvisionedResources = append(d.ProvisionedResources, Resource{
		Kind:   handle.Kind,
		Handle: handle,
	})
}

// Clone returns a deep copy, so store snapshots cannot be mutated
// through shared slices or maps.
func (d *Deployment) Clone() *Deployment {
	out := *d
	if d.Config != nil {
		out.Config = make(map[string]string, len(d.Config))
		for k, v := range d.Config {
			out.Config[k] = v
		}
	}
	out.ProvisionedResources = cloneResources(d.ProvisionedResources)
	out.ResidualResources = cloneResources(d.ResidualResources)
	return &out
}

func cloneResources(in []Resource) []Resource {
	if in == nil {
		return nil
	}
	out := make([]Resource, len(in))
	for i, r := range in {
		out[i] = r
		if r.Handle.Meta != nil {
			meta := make(map[string]string, len(r.Handle.Meta))
			for k, v := range r.Handle.Meta {
				meta[k] = v
			}
			out[i].Handle.Meta = meta
		}
	}
	return out
}
