package provider

import "fmt"

// Canonical GPU type identifiers accepted on deployment requests.
// Each adapter maps these to its own SKU naming.
const (
	GPUTypeT4      = "T4"
	GPUTypeV100    = "V100"
	GPUTypeA100    = "A100-40GB"
	GPUTypeA100_80 = "A100-80GB"
	GPUTypeH100    = "H100-80GB"
	GPUTypeL40S    = "L40S"
)

// gcpAccelerators maps canonical GPU types to GCP accelerator names.
var gcpAccelerators = map[string]string{
	GPUTypeT4:      "nvidia-tesla-t4",
	GPUTypeV100:    "nvidia-tesla-v100",
	GPUTypeA100:    "nvidia-tesla-a100",
	GPUTypeA100_80: "nvidia-a100-80gb",
	GPUTypeH100:    "nvidia-h100-80gb",
	GPUTypeL40S:    "nvidia-l4",
}

// azureVMSizes maps canonical GPU types to ARM VM size families, keyed
// by GPU count.
var azureVMSizes = map[string]map[int]string{
	GPUTypeT4: {
		1: "Standard_NC4as_T4_v3",
		2: "Standard_NC16as_T4_v3",
		4: "Standard_NC64as_T4_v3",
	},
	GPUTypeV100: {
		1: "Standard_NC6s_v3",
		2: "Standard_NC12s_v3",
		4: "Standard_NC24s_v3",
	},
	GPUTypeA100: {
		1: "Standard_NC24ads_A100_v4",
		2: "Standard_NC48ads_A100_v4",
		4: "Standard_NC96ads_A100_v4",
	},
	GPUTypeA100_80: {
		1: "Standard_NC24ads_A100_v4",
		2: "Standard_NC48ads_A100_v4",
		4: "Standard_NC96ads_A100_v4",
	},
	GPUTypeH100: {
		1: "Standard_NC40ads_H100_v5",
		2: "Standard_NC80adis_H100_v5",
	},
}

func azureVMSize(gpuType string, count int) (string, error) {
	sizes, ok := azureVMSizes[gpuType]
	if !ok {
		return "", fmt.Errorf("no Azure VM size for GPU type %q", gpuType)
	}
	size, ok := sizes[count]
	if !ok {
		return "", fmt.Errorf("no Azure VM size for %d× %s", count, gpuType)
	}
	return size, nil
}

// coreweaveGPUClasses maps canonical GPU types to CoreWeave node class
// labels used as node selectors.
var coreweaveGPUClasses = map[string]string{
	GPUTypeT4:      "Tesla_T4",
	GPUTypeV100:    "Tesla_V100",
	GPUTypeA100:    "A100_PCIE_40GB",
	GPUTypeA100_80: "A100_NVLINK_80GB",
	GPUTypeH100:    "H100_NVLINK_80GB",
	GPUTypeL40S:    "L40S",
}

// awsInstanceFamilies maps canonical GPU types to the EC2 instance
// family backing the ECS capacity for that GPU.
var awsInstanceFamilies = map[string]string{
	GPUTypeT4:      "g4dn",
	GPUTypeV100:    "p3",
	GPUTypeA100:    "p4d",
	GPUTypeA100_80: "p4de",
	GPUTypeH100:    "p5",
	GPUTypeL40S:    "g6e",
}

// SupportsGPU checks that the provider can size the requested GPU
// configuration. It runs during request intake so an impossible
// (provider, GPU) pair is rejected before a deployment is created,
// instead of burning network and storage only to fail at the compute
// step.
func SupportsGPU(id ID, gpuType string, gpuCount int) error {
	if gpuType == "" || gpuCount == 0 {
		return nil
	}
	switch id {
	case CoreWeave:
		if _, ok := coreweaveGPUClasses[gpuType]; !ok {
			return fmt.Errorf("coreweave does not offer GPU type %q", gpuType)
		}
	case AWS:
		if _, ok := awsInstanceFamilies[gpuType]; !ok {
			return fmt.Errorf("aws does not offer GPU type %q", gpuType)
		}
	case GCP:
		if _, ok := gcpAccelerators[gpuType]; !ok {
			return fmt.Errorf("gcp does not offer GPU type %q", gpuType)
		}
	case Azure:
		if _, ok := azureGPUSKUs[gpuType]; !ok {
			return fmt.Errorf("azure does not offer GPU type %q", gpuType)
		}
		if _, err := azureVMSize(gpuType, gpuCount); err != nil {
			return err
		}
	}
	return nil
}

// cpuFallback returns a CPU-only copy of spec, sized so the model can
// still serve (slowly) on CPU. Used as the last entry of an adapter's
// capacity fallback chain.
func cpuFallback(spec ComputeSpec) ComputeSpec {
	out := spec
	out.GPUType = ""
	out.GPUCount = 0
	if out.CPU < 8000 {
		out.CPU = 8000
	}
	if out.MemoryMB < 32768 {
		out.MemoryMB = 32768
	}
	return out
}

// fallbackChain is the ordered list of compute configurations an
// adapter attempts when the provider reports a capacity failure. The
// chain is explicit so the chosen path is inspectable: requested
// configuration first, then halved GPU count (when even), then
// CPU-only.
func fallbackChain(spec ComputeSpec) []ComputeSpec {
	chain := []ComputeSpec{spec}
	if spec.GPUCount >= 2 && spec.GPUCount%2 == 0 {
		halved := spec
		halved.GPUCount = spec.GPUCount / 2
		chain = append(chain, halved)
	}
	if spec.GPUCount > 0 {
		chain = append(chain, cpuFallback(spec))
	}
	return chain
}
