// Package s3blob stores the execution archive in an S3-compatible bucket
// (AWS S3, MinIO, Cloudflare R2) as JSONL objects.
package s3blob

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// ClientConfig locates the archive bucket.
type ClientConfig struct {
	Endpoint string // empty means AWS S3
	Region   string
	Bucket   string

	// Static credentials. Both empty falls back to the default AWS chain.
	AccessKey string
	SecretKey string

	UseSSL         bool // only consulted when Endpoint has no scheme
	ForcePathStyle bool // MinIO needs path-style addressing
}

// New builds a Bucket for cfg. It does not contact the store; call Ping for
// that.
func New(ctx context.Context, cfg ClientConfig) (*Bucket, error) {
	var problems []error
	if cfg.Bucket == "" {
		problems = append(problems, errors.New("bucket is required"))
	}
	if cfg.Region == "" {
		problems = append(problems, errors.New("region is required"))
	}
	if err := errors.Join(problems...); err != nil {
		return nil, fmt.Errorf("s3blob: %w", err)
	}

	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" || cfg.SecretKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("s3blob: load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(withScheme(cfg.Endpoint, cfg.UseSSL))
		}
		o.UsePathStyle = cfg.ForcePathStyle
	})

	return &Bucket{
		client: client,
		uploader: manager.NewUploader(client, func(u *manager.Uploader) {
			u.PartSize = multipartThreshold
		}),
		name: cfg.Bucket,
	}, nil
}

// Ping checks that the bucket exists and the credentials can reach it.
func (b *Bucket) Ping(ctx context.Context) error {
	if _, err := b.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(b.name)}); err != nil {
		return fmt.Errorf("s3blob: ping bucket %s: %w", b.name, err)
	}
	return nil
}

// Name returns the bucket name.
func (b *Bucket) Name() string {
	return b.name
}

func withScheme(endpoint string, useSSL bool) string {
	if strings.Contains(endpoint, "://") {
		return endpoint
	}
	if useSSL {
		return "https://" + endpoint
	}
	return "http://" + endpoint
}
