package provider

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"
)

const (
	azureManagementEndpoint = "https://management.azure.com"

	azureNetworkAPIVersion   = "2023-09-01"
	azureStorageAPIVersion   = "2023-01-01"
	azureContainerAPIVersion = "2023-05-01"
)

// AzureAdapter provisions deployments on Azure: virtual networks,
// storage accounts, and container groups with GPU SKUs, all inside one
// resource group per organization.
type AzureAdapter struct {
	subscription  string
	resourceGroup string
	rest          *restClient

	// Endpoint override for tests.
	managementURL string
}

// NewAzure creates an Azure adapter scoped to a subscription and
// resource group, authenticated with an ARM access token.
func NewAzure(subscription, resourceGroup, token string, timeout time.Duration) *AzureAdapter {
	return &AzureAdapter{
		subscription:  subscription,
		resourceGroup: resourceGroup,
		rest:          newRESTClient(Azure, token, timeout),
		managementURL: azureManagementEndpoint,
	}
}

func (a *AzureAdapter) Name() ID { return Azure }

func (a *AzureAdapter) resourceURL(rProvider, rType, name, apiVersion string) string {
	return fmt.Sprintf("%s/subscriptions/%s/resourceGroups/%s/providers/%s/%s/%s?api-version=%s",
		a.managementURL, a.subscription, a.resourceGroup, rProvider, rType, name, apiVersion)
}

type azureVNet struct {
	Location   string            `json:"location"`
	Tags       map[string]string `json:"tags,omitempty"`
	Properties azureVNetProps    `json:"properties"`
}

type azureVNetProps struct {
	AddressSpace azureAddressSpace `json:"addressSpace"`
}

type azureAddressSpace struct {
	AddressPrefixes []string `json:"addressPrefixes"`
}

func (a *AzureAdapter) CreateNetwork(ctx context.Context, spec NetworkSpec) (Handle, error) {
	cidr := spec.CIDR
	if cidr == "" {
		cidr = "10.0.0.0/16"
	}
	url := a.resourceURL("Microsoft.Network", "virtualNetworks", spec.Name, azureNetworkAPIVersion)
	body := azureVNet{
		Location: spec.Region,
		Tags:     spec.Labels,
		Properties: azureVNetProps{
			AddressSpace: azureAddressSpace{AddressPrefixes: []string{cidr}},
		},
	}
	if err := a.rest.do(ctx, "CreateNetwork", http.MethodPut, url, body, nil); err != nil {
		return Handle{}, err
	}
	return Handle{Kind: KindNetwork, ID: spec.Name}, nil
}

func (a *AzureAdapter) DeleteNetwork(ctx context.Context, handle Handle) error {
	url := a.resourceURL("Microsoft.Network", "virtualNetworks", handle.ID, azureNetworkAPIVersion)
	err := a.rest.do(ctx, "DeleteNetwork", http.MethodDelete, url, nil, nil)
	if isNotFound(err) {
		return nil
	}
	return err
}

type azureStorageAccount struct {
	Location   string                   `json:"location"`
	Kind       string                   `json:"kind"`
	SKU        azureSKU                 `json:"sku"`
	Tags       map[string]string        `json:"tags,omitempty"`
	Properties azureStorageAccountProps `json:"properties"`
}

type azureSKU struct {
	Name string `json:"name"`
}

type azureStorageAccountProps struct {
	SupportsHTTPSTrafficOnly bool `json:"supportsHttpsTrafficOnly"`
}

// storageAccountName derives a valid storage account name: lowercase
// alphanumeric, at most 24 characters.
func storageAccountName(name string) string {
	cleaned := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		case r >= 'A' && r <= 'Z':
			return r + ('a' - 'A')
		default:
			return -1
		}
	}, name)
	if len(cleaned) > 24 {
		cleaned = cleaned[:24]
	}
	return cleaned
}

func (a *AzureAdapter) CreateStorage(ctx context.Context, spec StorageSpec) (Handle, error) {
	account := storageAccountName(spec.Name)
	url := a.resourceURL("Microsoft.Storage", "storageAccounts", account, azureStorageAPIVersion)
	body := azureStorageAccount{
		Location:   spec.Region,
		Kind:       "StorageV2",
		SKU:        azureSKU{Name: "Standard_LRS"},
		Tags:       spec.Labels,
		Properties: azureStorageAccountProps{SupportsHTTPSTrafficOnly: true},
	}
	if err := a.rest.do(ctx, "CreateStorage", http.MethodPut, url, body, nil); err != nil {
		return Handle{}, err
	}
	return Handle{Kind: KindStorage, ID: account}, nil
}

func (a *AzureAdapter) DeleteStorage(ctx context.Context, handle Handle) error {
	url := a.resourceURL("Microsoft.Storage", "storageAccounts", handle.ID, azureStorageAPIVersion)
	err := a.rest.do(ctx, "DeleteStorage", http.MethodDelete, url, nil, nil)
	if isNotFound(err) {
		return nil
	}
	return err
}

// Container group shapes, reduced to the fields we use.
type azureContainerGroup struct {
	Location   string                   `json:"location"`
	Tags       map[string]string        `json:"tags,omitempty"`
	Properties azureContainerGroupProps `json:"properties"`
}

type azureContainerGroupProps struct {
	Containers    []azureContainer `json:"containers"`
	OSType        string           `json:"osType"`
	RestartPolicy string           `json:"restartPolicy"`
	IPAddress     *azureIPAddress  `json:"ipAddress,omitempty"`

	// Response-only field.
	ProvisioningState string `json:"provisioningState,omitempty"`
}

type azureContainer struct {
	Name       string              `json:"name"`
	Properties azureContainerProps `json:"properties"`
}

type azureContainerProps struct {
	Image                string                `json:"image"`
	Ports                []azurePort           `json:"ports,omitempty"`
	EnvironmentVariables []azureEnvVar         `json:"environmentVariables,omitempty"`
	Resources            azureResourceRequests `json:"resources"`
}

type azurePort struct {
	Port     int    `json:"port"`
	Protocol string `json:"protocol"`
}

type azureEnvVar struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type azureResourceRequests struct {
	Requests azureResourceLimits `json:"requests"`
}

type azureResourceLimits struct {
	CPU        float64        `json:"cpu"`
	MemoryInGB float64        `json:"memoryInGB"`
	GPU        *azureGPULimit `json:"gpu,omitempty"`
}

type azureGPULimit struct {
	Count int    `json:"count"`
	SKU   string `json:"sku"`
}

type azureIPAddress struct {
	Type  string      `json:"type"`
	Ports []azurePort `json:"ports"`

	// Response-only fields.
	IP   string `json:"ip,omitempty"`
	FQDN string `json:"fqdn,omitempty"`
}

// azureGPUSKUs maps canonical GPU types to container-group GPU SKUs.
var azureGPUSKUs = map[string]string{
	GPUTypeT4:      "T4",
	GPUTypeV100:    "V100",
	GPUTypeA100:    "A100",
	GPUTypeA100_80: "A100",
	GPUTypeH100:    "H100",
}

func (a *AzureAdapter) CreateComputeService(ctx context.Context, spec ComputeSpec) (ComputeResult, error) {
	for i, attempt := range fallbackChain(spec) {
		result, err := a.createContainerGroup(ctx, attempt)
		if err != nil {
			if IsCapacity(err) {
				log.Printf("[azure] capacity failure for %s (%d× %s), trying fallback: %v",
					attempt.Name, attempt.GPUCount, attempt.GPUType, err)
				continue
			}
			return ComputeResult{}, err
		}
		result.Degraded = i > 0
		if result.Degraded {
			log.Printf("[azure] %s provisioned degraded: %d× %s instead of %d× %s",
				spec.Name, attempt.GPUCount, attempt.GPUType, spec.GPUCount, spec.GPUType)
		}
		return result, nil
	}
	return ComputeResult{}, Fatal(Azure, "CreateComputeService",
		fmt.Errorf("capacity exhausted for %d× %s and all fallbacks", spec.GPUCount, spec.GPUType))
}

func (a *AzureAdapter) createContainerGroup(ctx context.Context, spec ComputeSpec) (ComputeResult, error) {
	limits := azureResourceLimits{
		CPU:        float64(spec.CPU) / 1000,
		MemoryInGB: float64(spec.MemoryMB) / 1024,
	}
	if spec.GPUCount > 0 {
		sku, ok := azureGPUSKUs[spec.GPUType]
		if !ok {
			return ComputeResult{}, Fatal(Azure, "CreateComputeService",
				fmt.Errorf("unsupported GPU type %q", spec.GPUType))
		}
		// The VM size behind the group is validated up front so sizing
		// failures surface before the ARM call.
		if _, err := azureVMSize(spec.GPUType, spec.GPUCount); err != nil {
			return ComputeResult{}, Fatal(Azure, "CreateComputeService", err)
		}
		limits.GPU = &azureGPULimit{Count: spec.GPUCount, SKU: sku}
	}

	env := make([]azureEnvVar, 0, len(spec.Env))
	for k, v := range spec.Env {
		env = append(env, azureEnvVar{Name: k, Value: v})
	}

	body := azureContainerGroup{
		Location: spec.Region,
		Tags:     spec.Labels,
		Properties: azureContainerGroupProps{
			OSType:        "Linux",
			RestartPolicy: "Always",
			Containers: []azureContainer{{
				Name: spec.Name,
				Properties: azureContainerProps{
					Image:                spec.Image,
					Ports:                []azurePort{{Port: spec.Port, Protocol: "TCP"}},
					EnvironmentVariables: env,
					Resources:            azureResourceRequests{Requests: limits},
				},
			}},
		},
	}

	url := a.resourceURL("Microsoft.ContainerInstance", "containerGroups", spec.Name, azureContainerAPIVersion)
	var created azureContainerGroup
	if err := a.rest.do(ctx, "CreateComputeService", http.MethodPut, url, body, &created); err != nil {
		return ComputeResult{}, err
	}

	result := ComputeResult{
		Handle: Handle{
			Kind: KindCompute,
			ID:   spec.Name,
			Meta: map[string]string{"port": fmt.Sprintf("%d", spec.Port)},
		},
	}
	if ip := created.Properties.IPAddress; ip != nil {
		if ip.FQDN != "" {
			result.URL = fmt.Sprintf("http://%s:%d", ip.FQDN, spec.Port)
		} else if ip.IP != "" {
			result.URL = fmt.Sprintf("http://%s:%d", ip.IP, spec.Port)
		}
	}
	return result, nil
}

// SetPublicAccess patches the container group with a public IP
// address exposing the service port.
func (a *AzureAdapter) SetPublicAccess(ctx context.Context, handle Handle) error {
	url := a.resourceURL("Microsoft.ContainerInstance", "containerGroups", handle.ID, azureContainerAPIVersion)

	var group azureContainerGroup
	if err := a.rest.do(ctx, "SetPublicAccess", http.MethodGet, url, nil, &group); err != nil {
		return err
	}

	var ports []azurePort
	for _, c := range group.Properties.Containers {
		ports = append(ports, c.Properties.Ports...)
	}
	group.Properties.IPAddress = &azureIPAddress{Type: "Public", Ports: ports}
	group.Properties.ProvisioningState = ""

	return a.rest.do(ctx, "SetPublicAccess", http.MethodPut, url, group, nil)
}

func (a *AzureAdapter) GetStatus(ctx context.Context, handle Handle) (ServiceStatus, error) {
	url := a.resourceURL("Microsoft.ContainerInstance", "containerGroups", handle.ID, azureContainerAPIVersion)
	var group azureContainerGroup
	if err := a.rest.do(ctx, "GetStatus", http.MethodGet, url, nil, &group); err != nil {
		return StatusFailed, err
	}
	switch group.Properties.ProvisioningState {
	case "Succeeded":
		return StatusReady, nil
	case "Failed", "Canceled":
		return StatusFailed, nil
	default:
		return StatusProvisioning, nil
	}
}

func (a *AzureAdapter) DeleteComputeService(ctx context.Context, handle Handle) error {
	url := a.resourceURL("Microsoft.ContainerInstance", "containerGroups", handle.ID, azureContainerAPIVersion)
	err := a.rest.do(ctx, "DeleteComputeService", http.MethodDelete, url, nil, nil)
	if isNotFound(err) {
		return nil
	}
	return err
}
