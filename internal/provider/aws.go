package provider

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/aws/aws-sdk-go-v2/service/ecs"
	ecstypes "github.com/aws/aws-sdk-go-v2/service/ecs/types"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

// SDK client surfaces used by the adapter, narrowed for tests.
type awsEC2API interface {
	CreateVpc(ctx context.Context, in *ec2.CreateVpcInput, opts ...func(*ec2.Options)) (*ec2.CreateVpcOutput, error)
	CreateSubnet(ctx context.Context, in *ec2.CreateSubnetInput, opts ...func(*ec2.Options)) (*ec2.CreateSubnetOutput, error)
	CreateSecurityGroup(ctx context.Context, in *ec2.CreateSecurityGroupInput, opts ...func(*ec2.Options)) (*ec2.CreateSecurityGroupOutput, error)
	AuthorizeSecurityGroupIngress(ctx context.Context, in *ec2.AuthorizeSecurityGroupIngressInput, opts ...func(*ec2.Options)) (*ec2.AuthorizeSecurityGroupIngressOutput, error)
	DeleteVpc(ctx context.Context, in *ec2.DeleteVpcInput, opts ...func(*ec2.Options)) (*ec2.DeleteVpcOutput, error)
	DeleteSubnet(ctx context.Context, in *ec2.DeleteSubnetInput, opts ...func(*ec2.Options)) (*ec2.DeleteSubnetOutput, error)
	DeleteSecurityGroup(ctx context.Context, in *ec2.DeleteSecurityGroupInput, opts ...func(*ec2.Options)) (*ec2.DeleteSecurityGroupOutput, error)
}

type awsECSAPI interface {
	CreateCluster(ctx context.Context, in *ecs.CreateClusterInput, opts ...func(*ecs.Options)) (*ecs.CreateClusterOutput, error)
	RegisterTaskDefinition(ctx context.Context, in *ecs.RegisterTaskDefinitionInput, opts ...func(*ecs.Options)) (*ecs.RegisterTaskDefinitionOutput, error)
	CreateService(ctx context.Context, in *ecs.CreateServiceInput, opts ...func(*ecs.Options)) (*ecs.CreateServiceOutput, error)
	DescribeServices(ctx context.Context, in *ecs.DescribeServicesInput, opts ...func(*ecs.Options)) (*ecs.DescribeServicesOutput, error)
	DeleteService(ctx context.Context, in *ecs.DeleteServiceInput, opts ...func(*ecs.Options)) (*ecs.DeleteServiceOutput, error)
	DeleteCluster(ctx context.Context, in *ecs.DeleteClusterInput, opts ...func(*ecs.Options)) (*ecs.DeleteClusterOutput, error)
}

type awsS3API interface {
	CreateBucket(ctx context.Context, in *s3.CreateBucketInput, opts ...func(*s3.Options)) (*s3.CreateBucketOutput, error)
	DeleteBucket(ctx context.Context, in *s3.DeleteBucketInput, opts ...func(*s3.Options)) (*s3.DeleteBucketOutput, error)
}

// AWSAdapter provisions deployments on AWS: a VPC per deployment, an
// S3 bucket for model artifacts, and an ECS service for compute.
type AWSAdapter struct {
	region string
	ec2    awsEC2API
	ecs    awsECSAPI
	s3     awsS3API

	// serviceDomain is the wildcard DNS zone fronting deployment
	// services (managed outside this system).
	serviceDomain string
}

// NewAWS creates an AWS adapter from a resolved SDK configuration.
func NewAWS(cfg aws.Config, serviceDomain string) *AWSAdapter {
	if serviceDomain == "" {
		serviceDomain = "deployments.modelgrid.dev"
	}
	return &AWSAdapter{
		region:        cfg.Region,
		ec2:           ec2.NewFromConfig(cfg),
		ecs:           ecs.NewFromConfig(cfg),
		s3:            s3.NewFromConfig(cfg),
		serviceDomain: serviceDomain,
	}
}

func (a *AWSAdapter) Name() ID { return AWS }

// classify maps SDK errors onto the provider taxonomy via smithy API
// error codes; 5xx responses without a code fall back to transient.
func (a *AWSAdapter) classify(op string, err error) error {
	if err == nil {
		return nil
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch code := apiErr.ErrorCode(); code {
		case "Throttling", "ThrottlingException", "RequestLimitExceeded",
			"ServiceUnavailable", "InternalError", "InternalFailure",
			"ExpiredToken", "ExpiredTokenException", "RequestExpired":
			return Transient(AWS, op, err)
		case "InsufficientInstanceCapacity", "InstanceLimitExceeded",
			"LimitExceededException", "VcpuLimitExceeded":
			return Capacity(AWS, op, err)
		default:
			if strings.Contains(strings.ToLower(apiErr.ErrorMessage()), "quota") {
				return Capacity(AWS, op, err)
			}
			return Fatal(AWS, op, err)
		}
	}

	var respErr *awshttp.ResponseError
	if errors.As(err, &respErr) && respErr.HTTPStatusCode() >= 500 {
		return Transient(AWS, op, err)
	}

	return Transient(AWS, op, err)
}

// isAWSNotFound reports whether the SDK error means the resource is
// already gone.
func isAWSNotFound(err error) bool {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	code := apiErr.ErrorCode()
	return strings.Contains(code, "NotFound") ||
		code == "NoSuchBucket" ||
		code == "ClusterNotFoundException" ||
		code == "ServiceNotFoundException"
}

func (a *AWSAdapter) ec2Tags(resourceType ec2types.ResourceType, name string, labels map[string]string) []ec2types.TagSpecification {
	tags := []ec2types.Tag{{Key: aws.String("Name"), Value: aws.String(name)}}
	for k, v := range labels {
		tags = append(tags, ec2types.Tag{Key: aws.String(k), Value: aws.String(v)})
	}
	return []ec2types.TagSpecification{{ResourceType: resourceType, Tags: tags}}
}

func (a *AWSAdapter) CreateNetwork(ctx context.Context, spec NetworkSpec) (Handle, error) {
	cidr := spec.CIDR
	if cidr == "" {
		cidr = "10.0.0.0/16"
	}

	vpcOut, err := a.ec2.CreateVpc(ctx, &ec2.CreateVpcInput{
		CidrBlock:         aws.String(cidr),
		TagSpecifications: a.ec2Tags(ec2types.ResourceTypeVpc, spec.Name, spec.Labels),
	})
	if err != nil {
		return Handle{}, a.classify("CreateNetwork", err)
	}
	vpcID := aws.ToString(vpcOut.Vpc.VpcId)

	subnetOut, err := a.ec2.CreateSubnet(ctx, &ec2.CreateSubnetInput{
		VpcId:             aws.String(vpcID),
		CidrBlock:         aws.String(subnetCIDR(cidr)),
		TagSpecifications: a.ec2Tags(ec2types.ResourceTypeSubnet, spec.Name, spec.Labels),
	})
	if err != nil {
		return Handle{}, a.classify("CreateNetwork", err)
	}

	sgOut, err := a.ec2.CreateSecurityGroup(ctx, &ec2.CreateSecurityGroupInput{
		GroupName:         aws.String(spec.Name),
		Description:       aws.String("modelgrid deployment security group"),
		VpcId:             aws.String(vpcID),
		TagSpecifications: a.ec2Tags(ec2types.ResourceTypeSecurityGroup, spec.Name, spec.Labels),
	})
	if err != nil {
		return Handle{}, a.classify("CreateNetwork", err)
	}

	return Handle{
		Kind: KindNetwork,
		ID:   vpcID,
		Meta: map[string]string{
			"subnet":        aws.ToString(subnetOut.Subnet.SubnetId),
			"securityGroup": aws.ToString(sgOut.GroupId),
		},
	}, nil
}

// subnetCIDR narrows a /16 VPC block to a /24 for the single subnet.
func subnetCIDR(vpcCIDR string) string {
	if idx := strings.LastIndex(vpcCIDR, "/"); idx > 0 {
		return vpcCIDR[:idx] + "/24"
	}
	return vpcCIDR
}

func (a *AWSAdapter) DeleteNetwork(ctx context.Context, handle Handle) error {
	if sg := handle.Meta["securityGroup"]; sg != "" {
		if _, err := a.ec2.DeleteSecurityGroup(ctx, &ec2.DeleteSecurityGroupInput{
			GroupId: aws.String(sg),
		}); err != nil && !isAWSNotFound(err) {
			return a.classify("DeleteNetwork", err)
		}
	}
	if subnet := handle.Meta["subnet"]; subnet != "" {
		if _, err := a.ec2.DeleteSubnet(ctx, &ec2.DeleteSubnetInput{
			SubnetId: aws.String(subnet),
		}); err != nil && !isAWSNotFound(err) {
			return a.classify("DeleteNetwork", err)
		}
	}
	if _, err := a.ec2.DeleteVpc(ctx, &ec2.DeleteVpcInput{
		VpcId: aws.String(handle.ID),
	}); err != nil && !isAWSNotFound(err) {
		return a.classify("DeleteNetwork", err)
	}
	return nil
}

func (a *AWSAdapter) CreateStorage(ctx context.Context, spec StorageSpec) (Handle, error) {
	input := &s3.CreateBucketInput{
		Bucket: aws.String(spec.Name),
	}
	// us-east-1 rejects an explicit location constraint.
	if spec.Region != "us-east-1" {
		input.CreateBucketConfiguration = &s3types.CreateBucketConfiguration{
			LocationConstraint: s3types.BucketLocationConstraint(spec.Region),
		}
	}
	if _, err := a.s3.CreateBucket(ctx, input); err != nil {
		if !isBucketAlreadyOwned(err) {
			return Handle{}, a.classify("CreateStorage", err)
		}
	}
	return Handle{Kind: KindStorage, ID: spec.Name}, nil
}

func (a *AWSAdapter) DeleteStorage(ctx context.Context, handle Handle) error {
	if _, err := a.s3.DeleteBucket(ctx, &s3.DeleteBucketInput{
		Bucket: aws.String(handle.ID),
	}); err != nil && !isAWSNotFound(err) {
		return a.classify("DeleteStorage", err)
	}
	return nil
}

func isBucketAlreadyOwned(err error) bool {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	code := apiErr.ErrorCode()
	return code == "BucketAlreadyOwnedByYou" || code == "BucketAlreadyExists"
}

func (a *AWSAdapter) CreateComputeService(ctx context.Context, spec ComputeSpec) (ComputeResult, error) {
	for i, attempt := range fallbackChain(spec) {
		result, err := a.createService(ctx, attempt)
		if err != nil {
			if IsCapacity(err) {
				log.Printf("[aws] capacity failure for %s (%d× %s), trying fallback: %v",
					attempt.Name, attempt.GPUCount, attempt.GPUType, err)
				continue
			}
			return ComputeResult{}, err
		}
		result.Degraded = i > 0
		if result.Degraded {
			log.Printf("[aws] %s provisioned degraded: %d× %s instead of %d× %s",
				spec.Name, attempt.GPUCount, attempt.GPUType, spec.GPUCount, spec.GPUType)
		}
		return result, nil
	}
	return ComputeResult{}, Fatal(AWS, "CreateComputeService",
		fmt.Errorf("capacity exhausted for %d× %s and all fallbacks", spec.GPUCount, spec.GPUType))
}

func (a *AWSAdapter) createService(ctx context.Context, spec ComputeSpec) (ComputeResult, error) {
	clusterName := spec.Network.Meta["cluster"]
	if clusterName == "" {
		clusterName = spec.Network.ID
	}
	if _, err := a.ecs.CreateCluster(ctx, &ecs.CreateClusterInput{
		ClusterName: aws.String(clusterName),
	}); err != nil {
		return ComputeResult{}, a.classify("CreateComputeService", err)
	}

	env := make([]ecstypes.KeyValuePair, 0, len(spec.Env))
	for k, v := range spec.Env {
		env = append(env, ecstypes.KeyValuePair{Name: aws.String(k), Value: aws.String(v)})
	}

	container := ecstypes.ContainerDefinition{
		Name:  aws.String(spec.Name),
		Image: aws.String(spec.Image),
		PortMappings: []ecstypes.PortMapping{{
			ContainerPort: aws.Int32(int32(spec.Port)),
		}},
		Environment: env,
	}

	taskInput := &ecs.RegisterTaskDefinitionInput{
		Family:               aws.String(spec.Name),
		Cpu:                  aws.String(strconv.Itoa(spec.CPU)),
		Memory:               aws.String(strconv.Itoa(spec.MemoryMB)),
		NetworkMode:          ecstypes.NetworkModeAwsvpc,
		ContainerDefinitions: []ecstypes.ContainerDefinition{container},
	}

	launchType := ecstypes.LaunchTypeFargate
	var placement []ecstypes.PlacementConstraint
	if spec.GPUCount > 0 {
		family, ok := awsInstanceFamilies[spec.GPUType]
		if !ok {
			return ComputeResult{}, Fatal(AWS, "CreateComputeService",
				fmt.Errorf("unsupported GPU type %q", spec.GPUType))
		}
		// GPU tasks require EC2 capacity pinned to the matching
		// instance family.
		launchType = ecstypes.LaunchTypeEc2
		taskInput.RequiresCompatibilities = []ecstypes.Compatibility{ecstypes.CompatibilityEc2}
		taskInput.ContainerDefinitions[0].ResourceRequirements = []ecstypes.ResourceRequirement{{
			Type:  ecstypes.ResourceTypeGpu,
			Value: aws.String(strconv.Itoa(spec.GPUCount)),
		}}
		placement = []ecstypes.PlacementConstraint{{
			Type:       ecstypes.PlacementConstraintTypeMemberOf,
			Expression: aws.String(fmt.Sprintf("attribute:ecs.instance-type =~ %s.*", family)),
		}}
	} else {
		taskInput.RequiresCompatibilities = []ecstypes.Compatibility{ecstypes.CompatibilityFargate}
	}

	taskOut, err := a.ecs.RegisterTaskDefinition(ctx, taskInput)
	if err != nil {
		return ComputeResult{}, a.classify("CreateComputeService", err)
	}

	svcInput := &ecs.CreateServiceInput{
		Cluster:              aws.String(clusterName),
		ServiceName:          aws.String(spec.Name),
		TaskDefinition:       taskOut.TaskDefinition.TaskDefinitionArn,
		DesiredCount:         aws.Int32(1),
		LaunchType:           launchType,
		PlacementConstraints: placement,
		NetworkConfiguration: &ecstypes.NetworkConfiguration{
			AwsvpcConfiguration: &ecstypes.AwsVpcConfiguration{
				Subnets:        []string{spec.Network.Meta["subnet"]},
				SecurityGroups: []string{spec.Network.Meta["securityGroup"]},
			},
		},
	}
	if _, err := a.ecs.CreateService(ctx, svcInput); err != nil {
		return ComputeResult{}, a.classify("CreateComputeService", err)
	}

	return ComputeResult{
		Handle: Handle{
			Kind: KindCompute,
			ID:   spec.Name,
			Meta: map[string]string{
				"cluster":       clusterName,
				"securityGroup": spec.Network.Meta["securityGroup"],
				"port":          strconv.Itoa(spec.Port),
			},
		},
		URL: fmt.Sprintf("http://%s.%s:%d", spec.Name, a.serviceDomain, spec.Port),
	}, nil
}

// SetPublicAccess opens the service port to the internet on the
// deployment's security group.
func (a *AWSAdapter) SetPublicAccess(ctx context.Context, handle Handle) error {
	port, err := strconv.Atoi(handle.Meta["port"])
	if err != nil {
		return Fatal(AWS, "SetPublicAccess", fmt.Errorf("handle missing port: %w", err))
	}
	_, err = a.ec2.AuthorizeSecurityGroupIngress(ctx, &ec2.AuthorizeSecurityGroupIngressInput{
		GroupId:    aws.String(handle.Meta["securityGroup"]),
		IpProtocol: aws.String("tcp"),
		FromPort:   aws.Int32(int32(port)),
		ToPort:     aws.Int32(int32(port)),
		CidrIp:     aws.String("0.0.0.0/0"),
	})
	if err != nil {
		return a.classify("SetPublicAccess", err)
	}
	return nil
}

func (a *AWSAdapter) GetStatus(ctx context.Context, handle Handle) (ServiceStatus, error) {
	out, err := a.ecs.DescribeServices(ctx, &ecs.DescribeServicesInput{
		Cluster:  aws.String(handle.Meta["cluster"]),
		Services: []string{handle.ID},
	})
	if err != nil {
		return StatusFailed, a.classify("GetStatus", err)
	}
	if len(out.Services) == 0 {
		return StatusFailed, nil
	}
	svc := out.Services[0]
	switch {
	case aws.ToString(svc.Status) != "ACTIVE":
		return StatusFailed, nil
	case svc.RunningCount >= 1:
		return StatusReady, nil
	default:
		return StatusProvisioning, nil
	}
}

func (a *AWSAdapter) DeleteComputeService(ctx context.Context, handle Handle) error {
	cluster := handle.Meta["cluster"]
	if _, err := a.ecs.DeleteService(ctx, &ecs.DeleteServiceInput{
		Cluster: aws.String(cluster),
		Service: aws.String(handle.ID),
		Force:   aws.Bool(true),
	}); err != nil && !isAWSNotFound(err) {
		return a.classify("DeleteComputeService", err)
	}
	if _, err := a.ecs.DeleteCluster(ctx, &ecs.DeleteClusterInput{
		Cluster: aws.String(cluster),
	}); err != nil && !isAWSNotFound(err) {
		return a.classify("DeleteComputeService", err)
	}
	return nil
}
