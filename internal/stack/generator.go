package stack

import (
	"fmt"

	"github.com/modelgrid/modelgrid/internal/deployment"
)

// Default container images per service role.
const (
	modelServerImage    = "ghcr.io/modelgrid/model-server:latest"
	workflowEngineImage = "ghcr.io/modelgrid/workflow-engine:latest"
	chatUIImage         = "ghcr.io/modelgrid/chat-ui:latest"
)

const (
	modelServerPort    = 8000
	workflowEnginePort = 8080
	chatUIPort         = 8501
)

// complianceTemplates maps industry profiles to their control
// settings. The per-industry workflow template content lives in an
// external service; only the infrastructure-relevant controls appear
// here.
var complianceTemplates = map[deployment.Industry]Compliance{
	deployment.IndustryLegal: {
		Profile:          "legal",
		EncryptionAtRest: true,
		AuditLogging:     true,
		DataResidency:    "in-region",
		RetentionDays:    2555,
	},
	deployment.IndustryHealthcare: {
		Profile:          "healthcare",
		EncryptionAtRest: true,
		AuditLogging:     true,
		DataResidency:    "in-region",
		RetentionDays:    2190,
	},
	deployment.IndustryFinance: {
		Profile:          "finance",
		EncryptionAtRest: true,
		AuditLogging:     true,
		DataResidency:    "in-region",
		RetentionDays:    2555,
	},
	deployment.IndustryGeneral: {
		Profile:          "general",
		EncryptionAtRest: true,
		AuditLogging:     false,
		DataResidency:    "any",
		RetentionDays:    90,
	},
}

// storageSizes maps model tiers to model-artifact storage size.
var storageSizes = map[deployment.ModelSize]int{
	deployment.SizeSmall:  100,
	deployment.SizeMedium: 250,
	deployment.SizeLarge:  500,
}

// Generator builds infrastructure stacks from deployment records.
type Generator struct{}

// NewGenerator creates a stack generator.
func NewGenerator() *Generator {
	return &Generator{}
}

// Generate merges the deployment's industry compliance template with
// resource definitions and the model-size service topology. Large-tier
// deployments get auxiliary workflow-engine and chat-ui services next
// to the model server.
func (g *Generator) Generate(d *deployment.Deployment) (*Stack, error) {
	compliance, ok := complianceTemplates[d.Industry]
	if !ok {
		return nil, fmt.Errorf("no compliance template for industry %q", d.Industry)
	}

	reqs := d.ModelSize.Requirements()
	cpu, memory := reqs.CPU, reqs.MemoryMB

	prefix := fmt.Sprintf("mg-%s", shortID(d.ID))
	labels := map[string]string{
		"modelgrid.dev/deployment": d.ID,
		"modelgrid.dev/org":        d.OrganizationID,
		"modelgrid.dev/industry":   string(d.Industry),
	}

	s := &Stack{
		DeploymentID: d.ID,
		Provider:     d.Provider,
		Region:       d.Region,
		Compliance:   compliance,
		Network: Network{
			Name: prefix + "-net",
			CIDR: "10.0.0.0/16",
		},
		Storage: Storage{
			Name:      prefix + "-models",
			SizeGB:    storageSizes[d.ModelSize],
			Encrypted: compliance.EncryptionAtRest,
		},
		Labels: labels,
	}

	modelEnv := map[string]string{
		"MODEL_SIZE":    string(d.ModelSize),
		"DEPLOYMENT_ID": d.ID,
	}
	if compliance.AuditLogging {
		modelEnv["AUDIT_LOGGING"] = "enabled"
	}
	for k, v := range d.Config {
		modelEnv[k] = v
	}

	s.Services = append(s.Services, Service{
		Name:     prefix + "-model",
		Role:     RoleModelServer,
		Image:    modelServerImage,
		GPUType:  d.GPUType,
		GPUCount: d.GPUCount,
		CPU:      cpu,
		MemoryMB: memory,
		Port:     modelServerPort,
		Env:      modelEnv,
	})

	if d.ModelSize == deployment.SizeLarge {
		modelURL := fmt.Sprintf("http://%s:%d", s.Primary().Name, modelServerPort)

		s.Services = append(s.Services, Service{
			Name:     prefix + "-workflow",
			Role:     RoleWorkflowEngine,
			Image:    workflowEngineImage,
			CPU:      2000,
			MemoryMB: 4096,
			Port:     workflowEnginePort,
			Env: map[string]string{
				"API_ENDPOINT":  modelURL,
				"DEPLOYMENT_ID": d.ID,
			},
		})

		s.Services = append(s.Services, Service{
			Name:     prefix + "-chat",
			Role:     RoleChatUI,
			Image:    chatUIImage,
			CPU:      1000,
			MemoryMB: 2048,
			Port:     chatUIPort,
			Env: map[string]string{
				"API_ENDPOINT":      modelURL,
				"DEPLOYMENT_ID":     d.ID,
				"INDUSTRY_TEMPLATE": string(d.Industry),
			},
		})
	}

	return s, nil
}

// shortID returns the first eight characters of a deployment id, used
// as a resource name prefix.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
