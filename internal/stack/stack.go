// Package stack turns a deployment request into a provider-agnostic
// infrastructure description: an industry compliance template merged
// with resource definitions and the service topology for the model
// size. The result marshals to YAML for inspection and drives the
// provisioning pipeline's adapter calls.
package stack

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/modelgrid/modelgrid/internal/provider"
)

// ServiceRole distinguishes the primary model server from auxiliary
// services in the topology.
type ServiceRole string

const (
	RoleModelServer    ServiceRole = "model-server"
	RoleWorkflowEngine ServiceRole = "workflow-engine"
	RoleChatUI         ServiceRole = "chat-ui"
)

// Compliance is the industry template's control settings.
type Compliance struct {
	Profile          string `yaml:"profile"`
	EncryptionAtRest bool   `yaml:"encryption_at_rest"`
	AuditLogging     bool   `yaml:"audit_logging"`
	DataResidency    string `yaml:"data_residency"`
	RetentionDays    int    `yaml:"retention_days"`
}

// Network describes the deployment's isolated network.
type Network struct {
	Name string `yaml:"name"`
	CIDR string `yaml:"cidr"`
}

// Storage describes the deployment's durable storage.
type Storage struct {
	Name      string `yaml:"name"`
	SizeGB    int    `yaml:"size_gb"`
	Encrypted bool   `yaml:"encrypted"`
}

// Service describes one compute service in the topology.
type Service struct {
	Name     string            `yaml:"name"`
	Role     ServiceRole       `yaml:"role"`
	Image    string            `yaml:"image"`
	GPUType  string            `yaml:"gpu_type,omitempty"`
	GPUCount int               `yaml:"gpu_count,omitempty"`
	CPU      int               `yaml:"cpu_millicores"`
	MemoryMB int               `yaml:"memory_mb"`
	Port     int               `yaml:"port"`
	Env      map[string]string `yaml:"env,omitempty"`
}

// Stack is the complete infrastructure description for one deployment.
type Stack struct {
	DeploymentID string            `yaml:"deployment_id"`
	Provider     provider.ID       `yaml:"provider"`
	Region       string            `yaml:"region"`
	Compliance   Compliance        `yaml:"compliance"`
	Network      Network           `yaml:"network"`
	Storage      Storage           `yaml:"storage"`
	Services     []Service         `yaml:"services"`
	Labels       map[string]string `yaml:"labels,omitempty"`
}

// Marshal renders the stack as YAML.
func (s *Stack) Marshal() ([]byte, error) {
	out, err := yaml.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal stack: %w", err)
	}
	return out, nil
}

// Primary returns the model-server service. Every generated stack has
// exactly one.
func (s *Stack) Primary() Service {
	for _, svc := range s.Services {
		if svc.Role == RoleModelServer {
			return svc
		}
	}
	return Service{}
}

// Auxiliary returns the non-primary services, in topology order.
func (s *Stack) Auxiliary() []Service {
	var out []Service
	for _, svc := range s.Services {
		if svc.Role != RoleModelServer {
			out = append(out, svc)
		}
	}
	return out
}

// NetworkSpec converts the network definition to an adapter spec.
func (s *Stack) NetworkSpec() provider.NetworkSpec {
	return provider.NetworkSpec{
		Name:   s.Network.Name,
		Region: s.Region,
		CIDR:   s.Network.CIDR,
		Labels: s.Labels,
	}
}

// StorageSpec converts the storage definition to an adapter spec,
// scoped to the created network.
func (s *Stack) StorageSpec(network provider.Handle) provider.StorageSpec {
	return provider.StorageSpec{
		Name:      s.Storage.Name,
		Region:    s.Region,
		SizeGB:    s.Storage.SizeGB,
		Encrypted: s.Storage.Encrypted,
		Network:   network,
		Labels:    s.Labels,
	}
}

// ComputeSpec converts a service definition to an adapter spec wired
// to the created network and storage.
func (s *Stack) ComputeSpec(svc Service, network, storage provider.Handle) provider.ComputeSpec {
	return provider.ComputeSpec{
		Name:     svc.Name,
		Region:   s.Region,
		Image:    svc.Image,
		GPUType:  svc.GPUType,
		GPUCount: svc.GPUCount,
		CPU:      svc.CPU,
		MemoryMB: svc.MemoryMB,
		Env:      svc.Env,
		Port:     svc.Port,
		Network:  network,
		Storage:  storage,
		Labels:   s.Labels,
	}
}
