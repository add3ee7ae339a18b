// Package s3store uploads synchronized artifacts to an S3-compatible bucket.
//
// It is the alternative to the cloud ingestion endpoint for installations
// that mirror captures straight into object storage (AWS S3, Cloudflare R2,
// MinIO).
package s3store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/pithecene-io/boothbridge/types"
)

// Config holds configuration for the S3 backend.
type Config struct {
	// Bucket is the S3 bucket name (required).
	Bucket string
	// Prefix is the key prefix within the bucket (optional).
	Prefix string
	// Region is the AWS region (optional, uses default chain if empty).
	Region string
	// Endpoint is a custom S3 endpoint URL for S3-compatible providers
	// (e.g. Cloudflare R2, MinIO). Empty uses the default AWS endpoint.
	Endpoint string
	// UsePathStyle forces path-style addressing (bucket in path, not subdomain).
	UsePathStyle bool
	// AccessKeyID and SecretAccessKey select static credentials.
	// Empty uses the default credential chain (env, shared config, IAM role).
	AccessKeyID     string
	SecretAccessKey string
	// PublicBaseURL is prepended to object keys to form the artifact URL.
	// Empty yields s3://bucket/key URLs.
	PublicBaseURL string
}

// Validate checks that required configuration is present.
func (c *Config) Validate() error {
	if c.Bucket == "" {
		return errors.New("S3 bucket is required")
	}
	if (c.AccessKeyID == "") != (c.SecretAccessKey == "") {
		return errors.New("S3 access key id and secret must be set together")
	}
	return nil
}

// ParsePath parses a path in format "bucket/prefix" or "bucket".
func ParsePath(p string) (bucket, prefix string) {
	parts := strings.SplitN(p, "/", 2)
	bucket = parts[0]
	if len(parts) > 1 {
		prefix = parts[1]
	}
	return bucket, prefix
}

// NewClient builds an S3 client from cfg. Shared with the journal's S3 backend.
func NewClient(ctx context.Context, cfg Config) (*s3.Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var opts []func(*config.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsConfig, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		endpoint := cfg.Endpoint
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = &endpoint
		})
	}
	if cfg.UsePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	}
	return s3.NewFromConfig(awsConfig, s3Opts...), nil
}

// PutObjectAPI is the subset of the S3 client used by Uploader.
type PutObjectAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Uploader writes artifacts as objects under Prefix/<sync key>.
type Uploader struct {
	api PutObjectAPI
	cfg Config
}

// NewUploader creates an uploader over an S3 API.
func NewUploader(api PutObjectAPI, cfg Config) (*Uploader, error) {
	if api == nil {
		return nil, errors.New("s3store: client is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Uploader{api: api, cfg: cfg}, nil
}

// ObjectKey returns the bucket key for a sync key.
func (u *Uploader) ObjectKey(syncKey string) string {
	if u.cfg.Prefix == "" {
		return syncKey
	}
	return path.Join(u.cfg.Prefix, syncKey)
}

// URL returns the public URL of an object key.
func (u *Uploader) URL(objectKey string) string {
	if u.cfg.PublicBaseURL == "" {
		return "s3://" + u.cfg.Bucket + "/" + objectKey
	}
	return strings.TrimRight(u.cfg.PublicBaseURL, "/") + "/" + objectKey
}

// Upload puts the artifact and returns the object key as the remote id.
func (u *Uploader) Upload(ctx context.Context, a types.ArtifactUpload) (types.ArtifactReceipt, error) {
	if a.Key == "" {
		return types.ArtifactReceipt{}, errors.New("s3store: artifact key is required")
	}
	key := u.ObjectKey(a.Key)

	in := &s3.PutObjectInput{
		Bucket:      aws.String(u.cfg.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(a.Data),
		ContentType: aws.String(a.ContentType),
	}
	if a.Category != "" {
		in.Metadata = map[string]string{"category": a.Category}
	}

	if _, err := u.api.PutObject(ctx, in); err != nil {
		return types.ArtifactReceipt{}, wrap("put", key, err)
	}
	return types.ArtifactReceipt{ID: key, URL: u.URL(key)}, nil
}
