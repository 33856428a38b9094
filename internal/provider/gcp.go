package provider

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"
)

const (
	gcpComputeEndpoint = "https://compute.googleapis.com/compute/v1"
	gcpStorageEndpoint = "https://storage.googleapis.com/storage/v1"
	gcpRunEndpoint     = "https://run.googleapis.com/v2"
)

// GCPAdapter provisions deployments on Google Cloud: VPC networks,
// Cloud Storage buckets, and Cloud Run services with GPU attachments.
type GCPAdapter struct {
	project string
	rest    *restClient

	// Endpoint overrides for tests.
	computeURL string
	storageURL string
	runURL     string
}

// NewGCP creates a Google Cloud adapter for the given project using an
// OAuth2 access token.
func NewGCP(project, token string, timeout time.Duration) *GCPAdapter {
	return &GCPAdapter{
		project:    project,
		rest:       newRESTClient(GCP, token, timeout),
		computeURL: gcpComputeEndpoint,
		storageURL: gcpStorageEndpoint,
		runURL:     gcpRunEndpoint,
	}
}

func (a *GCPAdapter) Name() ID { return GCP }

type gcpNetworkBody struct {
	Name                  string `json:"name"`
	AutoCreateSubnetworks bool   `json:"autoCreateSubnetworks"`
	Description           string `json:"description,omitempty"`
}

func (a *GCPAdapter) CreateNetwork(ctx context.Context, spec NetworkSpec) (Handle, error) {
	url := fmt.Sprintf("%s/projects/%s/global/networks", a.computeURL, a.project)
	body := gcpNetworkBody{
		Name:                  spec.Name,
		AutoCreateSubnetworks: true,
		Description:           "managed by modelgrid",
	}
	if err := a.rest.do(ctx, "CreateNetwork", http.MethodPost, url, body, nil); err != nil {
		return Handle{}, err
	}
	return Handle{
		Kind: KindNetwork,
		ID:   spec.Name,
		Meta: map[string]string{"project": a.project},
	}, nil
}

func (a *GCPAdapter) DeleteNetwork(ctx context.Context, handle Handle) error {
	url := fmt.Sprintf("%s/projects/%s/global/networks/%s", a.computeURL, a.project, handle.ID)
	err := a.rest.do(ctx, "DeleteNetwork", http.MethodDelete, url, nil, nil)
	if isNotFound(err) {
		return nil
	}
	return err
}

type gcpBucketBody struct {
	Name       string            `json:"name"`
	Location   string            `json:"location"`
	Encryption *gcpBucketEncConf `json:"encryption,omitempty"`
	Labels     map[string]string `json:"labels,omitempty"`
}

type gcpBucketEncConf struct {
	DefaultKMSKeyName string `json:"defaultKmsKeyName,omitempty"`
}

func (a *GCPAdapter) CreateStorage(ctx context.Context, spec StorageSpec) (Handle, error) {
	url := fmt.Sprintf("%s/b?project=%s", a.storageURL, a.project)
	body := gcpBucketBody{
		Name:     spec.Name,
		Location: spec.Region,
		Labels:   spec.Labels,
	}
	if err := a.rest.do(ctx, "CreateStorage", http.MethodPost, url, body, nil); err != nil {
		return Handle{}, err
	}
	return Handle{Kind: KindStorage, ID: spec.Name}, nil
}

func (a *GCPAdapter) DeleteStorage(ctx context.Context, handle Handle) error {
	url := fmt.Sprintf("%s/b/%s", a.storageURL, handle.ID)
	err := a.rest.do(ctx, "DeleteStorage", http.MethodDelete, url, nil, nil)
	if isNotFound(err) {
		return nil
	}
	return err
}

// Cloud Run v2 request/response shapes, reduced to the fields we use.
type gcpRunService struct {
	Template gcpRunTemplate    `json:"template"`
	Labels   map[string]string `json:"labels,omitempty"`

	// Response-only fields.
	URI               string           `json:"uri,omitempty"`
	TerminalCondition *gcpRunCondition `json:"terminalCondition,omitempty"`
}

type gcpRunTemplate struct {
	Containers   []gcpRunContainer `json:"containers"`
	NodeSelector map[string]string `json:"nodeSelector,omitempty"`
}

type gcpRunContainer struct {
	Image     string          `json:"image"`
	Env       []gcpRunEnvVar  `json:"env,omitempty"`
	Ports     []gcpRunPort    `json:"ports,omitempty"`
	Resources gcpRunResources `json:"resources"`
}

type gcpRunEnvVar struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type gcpRunPort struct {
	ContainerPort int `json:"containerPort"`
}

type gcpRunResources struct {
	Limits map[string]string `json:"limits"`
}

type gcpRunCondition struct {
	Type  string `json:"type"`
	State string `json:"state"`
}

func (a *GCPAdapter) serviceURL(region, name string) string {
	return fmt.Sprintf("%s/projects/%s/locations/%s/services/%s", a.runURL, a.project, region, name)
}

func (a *GCPAdapter) CreateComputeService(ctx context.Context, spec ComputeSpec) (ComputeResult, error) {
	for i, attempt := range fallbackChain(spec) {
		result, err := a.createRunService(ctx, attempt)
		if err != nil {
			if IsCapacity(err) {
				log.Printf("[gcp] capacity failure for %s (%d× %s), trying fallback: %v",
					attempt.Name, attempt.GPUCount, attempt.GPUType, err)
				continue
			}
			return ComputeResult{}, err
		}
		result.Degraded = i > 0
		if result.Degraded {
			log.Printf("[gcp] %s provisioned degraded: %d× %s instead of %d× %s",
				spec.Name, attempt.GPUCount, attempt.GPUType, spec.GPUCount, spec.GPUType)
		}
		return result, nil
	}
	return ComputeResult{}, Fatal(GCP, "CreateComputeService",
		fmt.Errorf("capacity exhausted for %d× %s and all fallbacks", spec.GPUCount, spec.GPUType))
}

func (a *GCPAdapter) createRunService(ctx context.Context, spec ComputeSpec) (ComputeResult, error) {
	limits := map[string]string{
		"cpu":    fmt.Sprintf("%dm", spec.CPU),
		"memory": fmt.Sprintf("%dMi", spec.MemoryMB),
	}
	var nodeSelector map[string]string
	if spec.GPUCount > 0 {
		accel, ok := gcpAccelerators[spec.GPUType]
		if !ok {
			return ComputeResult{}, Fatal(GCP, "CreateComputeService",
				fmt.Errorf("unsupported GPU type %q", spec.GPUType))
		}
		limits["nvidia.com/gpu"] = fmt.Sprintf("%d", spec.GPUCount)
		nodeSelector = map[string]string{"run.googleapis.com/accelerator": accel}
	}

	env := make([]gcpRunEnvVar, 0, len(spec.Env))
	for k, v := range spec.Env {
		env = append(env, gcpRunEnvVar{Name: k, Value: v})
	}

	body := gcpRunService{
		Labels: spec.Labels,
		Template: gcpRunTemplate{
			NodeSelector: nodeSelector,
			Containers: []gcpRunContainer{{
				Image:     spec.Image,
				Env:       env,
				Ports:     []gcpRunPort{{ContainerPort: spec.Port}},
				Resources: gcpRunResources{Limits: limits},
			}},
		},
	}

	createURL := fmt.Sprintf("%s/projects/%s/locations/%s/services?serviceId=%s",
		a.runURL, a.project, spec.Region, spec.Name)
	if err := a.rest.do(ctx, "CreateComputeService", http.MethodPost, createURL, body, nil); err != nil {
		return ComputeResult{}, err
	}

	// The service URI is assigned at creation; readiness is checked
	// separately via GetStatus.
	var svc gcpRunService
	if err := a.rest.do(ctx, "CreateComputeService", http.MethodGet,
		a.serviceURL(spec.Region, spec.Name), nil, &svc); err != nil {
		return ComputeResult{}, err
	}

	return ComputeResult{
		Handle: Handle{
			Kind: KindCompute,
			ID:   spec.Name,
			Meta: map[string]string{"region": spec.Region},
		},
		URL: svc.URI,
	}, nil
}

type gcpIAMPolicy struct {
	Bindings []gcpIAMBinding `json:"bindings"`
}

type gcpIAMBinding struct {
	Role    string   `json:"role"`
	Members []string `json:"members"`
}

// SetPublicAccess grants unauthenticated invocation on the Cloud Run
// service.
func (a *GCPAdapter) SetPublicAccess(ctx context.Context, handle Handle) error {
	url := a.serviceURL(handle.Meta["region"], handle.ID) + ":setIamPolicy"
	body := map[string]gcpIAMPolicy{
		"policy": {
			Bindings: []gcpIAMBinding{{
				Role:    "roles/run.invoker",
				Members: []string{"allUsers"},
			}},
		},
	}
	return a.rest.do(ctx, "SetPublicAccess", http.MethodPost, url, body, nil)
}

func (a *GCPAdapter) GetStatus(ctx context.Context, handle Handle) (ServiceStatus, error) {
	var svc gcpRunService
	err := a.rest.do(ctx, "GetStatus", http.MethodGet,
		a.serviceURL(handle.Meta["region"], handle.ID), nil, &svc)
	if err != nil {
		return StatusFailed, err
	}
	if svc.TerminalCondition == nil {
		return StatusProvisioning, nil
	}
	switch svc.TerminalCondition.State {
	case "CONDITION_SUCCEEDED":
		return StatusReady, nil
	case "CONDITION_FAILED":
		return StatusFailed, nil
	default:
		return StatusProvisioning, nil
	}
}

func (a *GCPAdapter) DeleteComputeService(ctx context.Context, handle Handle) error {
	err := a.rest.do(ctx, "DeleteComputeService", http.MethodDelete,
		a.serviceURL(handle.Meta["region"], handle.ID), nil, nil)
	if isNotFound(err) {
		return nil
	}
	return err
}
