// Package aws implements the instance inventory over the EC2 API.
package aws

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"

	"github.com/yairfalse/reaper/types"
)

// EC2API is the slice of the EC2 client the provider uses, so tests can
// fake it.
type EC2API interface {
	DescribeInstances(ctx context.Context, params *ec2.DescribeInstancesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeInstancesOutput, error)
	CreateTags(ctx context.Context, params *ec2.CreateTagsInput, optFns ...func(*ec2.Options)) (*ec2.CreateTagsOutput, error)
	TerminateInstances(ctx context.Context, params *ec2.TerminateInstancesInput, optFns ...func(*ec2.Options)) (*ec2.TerminateInstancesOutput, error)
}

// Provider implements providers.InstanceAPI using the AWS SDK.
type Provider struct {
	client EC2API
	region string
}

// NewProvider creates a provider from the default AWS config chain.
func NewProvider(ctx context.Context, region string) (*Provider, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return &Provider{client: ec2.NewFromConfig(cfg), region: region}, nil
}

// NewProviderWithClient wires an explicit client, used in tests.
func NewProviderWithClient(client EC2API, region string) *Provider {
	return &Provider{client: client, region: region}
}

// Region returns the AWS region the provider operates in.
func (p *Provider) Region() string {
	return p.region
}

// GetInstance fetches a single instance with its current tags.
func (p *Provider) GetInstance(ctx context.Context, id string) (*types.Instance, error) {
	output, err := p.client.DescribeInstances(ctx, &ec2.DescribeInstancesInput{
		InstanceIds: []string{id},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to describe instance %s: %w", id, err)
	}

	for _, reservation := range output.Reservations {
		for _, instance := range reservation.Instances {
			converted := convertInstance(instance)
			return &converted, nil
		}
	}
	return nil, fmt.Errorf("instance %s not found", id)
}

// CreateTags writes tags onto an instance in one atomic call.
func (p *Provider) CreateTags(ctx context.Context, id string, tags map[string]string) error {
	_, err := p.client.CreateTags(ctx, &ec2.CreateTagsInput{
		Resources: []string{id},
		Tags:      convertToEC2Tags(tags),
	})
	if err != nil {
		return fmt.Errorf("failed to tag instance %s: %w", id, err)
	}
	return nil
}

// ListRunning enumerates every running instance in the region.
func (p *Provider) ListRunning(ctx context.Context) ([]types.Instance, error) {
	input := &ec2.DescribeInstancesInput{
		Filters: []ec2types.Filter{
			{
				Name:   aws.String("instance-state-name"),
				Values: []string{"running"},
			},
		},
	}

	var instances []types.Instance
	paginator := ec2.NewDescribeInstancesPaginator(p.client, input)
	for paginator.HasMorePages() {
		output, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list running instances: %w", err)
		}
		for _, reservation := range output.Reservations {
			for _, instance := range reservation.Instances {
				instances = append(instances, convertInstance(instance))
			}
		}
	}

	return instances, nil
}

// TerminateInstances terminates the given instances.
func (p *Provider) TerminateInstances(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := p.client.TerminateInstances(ctx, &ec2.TerminateInstancesInput{
		InstanceIds: ids,
	})
	if err != nil {
		return fmt.Errorf("failed to terminate instances %v: %w", ids, err)
	}
	return nil
}

// convertInstance converts an SDK instance to the reaper's view of it.
func convertInstance(instance ec2types.Instance) types.Instance {
	converted := types.Instance{
		ID:   aws.ToString(instance.InstanceId),
		Tags: convertFromEC2Tags(instance.Tags),
	}
	if instance.State != nil {
		converted.State = string(instance.State.Name)
	}
	if instance.LaunchTime != nil {
		converted.LaunchedAt = *instance.LaunchTime
	}
	return converted
}
