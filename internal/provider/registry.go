package provider

import (
	"context"
	"fmt"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/tools/clientcmd"
)

// Credentials carries the per-provider settings needed to construct
// adapters. Loaded from the environment by the config package.
type Credentials struct {
	// CoreWeave access is a kubeconfig for the tenant namespace group.
	CoreWeaveKubeconfig    string
	CoreWeaveIngressDomain string

	AWSRegion          string
	AWSAccessKeyID     string
	AWSSecretAccessKey string
	AWSServiceDomain   string

	GCPProject string
	GCPToken   string

	AzureSubscription  string
	AzureResourceGroup string
	AzureToken         string

	// CallTimeout bounds each REST management call.
	CallTimeout time.Duration

	// SandboxEnabled permits selecting the mock provider. The mock is
	// never substituted implicitly: requesting it without sandbox mode
	// is an error, as is any unknown provider identifier.
	SandboxEnabled bool
}

// ForProvider constructs the adapter variant for the given provider
// identifier.
func ForProvider(ctx context.Context, id ID, creds Credentials) (Adapter, error) {
	switch id {
	case CoreWeave:
		restCfg, err := clientcmd.BuildConfigFromFlags("", creds.CoreWeaveKubeconfig)
		if err != nil {
			return nil, fmt.Errorf("coreweave kubeconfig: %w", err)
		}
		client, err := kubernetes.NewForConfig(restCfg)
		if err != nil {
			return nil, fmt.Errorf("coreweave client: %w", err)
		}
		return NewCoreWeave(client, creds.CoreWeaveIngressDomain), nil

	case AWS:
		cfg, err := awsconfig.LoadDefaultConfig(ctx,
			awsconfig.WithCredentialsProvider(
				credentials.NewStaticCredentialsProvider(creds.AWSAccessKeyID, creds.AWSSecretAccessKey, "")),
			awsconfig.WithRegion(creds.AWSRegion),
		)
		if err != nil {
			return nil, fmt.Errorf("aws config: %w", err)
		}
		return NewAWS(cfg, creds.AWSServiceDomain), nil

	case GCP:
		return NewGCP(creds.GCPProject, creds.GCPToken, creds.CallTimeout), nil

	case Azure:
		return NewAzure(creds.AzureSubscription, creds.AzureResourceGroup, creds.AzureToken, creds.CallTimeout), nil

	case Mock:
		if !creds.SandboxEnabled {
			return nil, fmt.Errorf("mock provider requires sandbox mode")
		}
		return NewMock(), nil

	default:
		return nil, fmt.Errorf("unknown provider %q", id)
	}
}
