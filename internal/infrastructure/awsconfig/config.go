package awsconfig

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
)

// Options selects the region and, for LocalStack-style deployments, a custom
// endpoint with static credentials.
type Options struct {
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
}

func Load(ctx context.Context, opts Options) (aws.Config, error) {
	loadOpts := make([]func(*config.LoadOptions) error, 0, 2)
	if opts.Region != "" {
		loadOpts = append(loadOpts, config.WithRegion(opts.Region))
	}
	if opts.AccessKeyID != "" && opts.SecretAccessKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretAccessKey, ""),
		))
	}

	cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("load aws sdk config: %w", err)
	}
	return cfg, nil
}

// BaseEndpoint returns nil when no override is configured so service clients
// keep their default resolution.
func BaseEndpoint(opts Options) *string {
	if opts.Endpoint == "" {
		return nil
	}
	return aws.String(opts.Endpoint)
}
