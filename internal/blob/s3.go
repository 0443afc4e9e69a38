package blob

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// DefaultBucket is the bucket rendered artifacts are uploaded to.
const DefaultBucket = "flow-artifacts"

// S3API is the subset of the S3 client used here.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Store uploads objects to an S3 bucket.
type S3Store struct {
	client    S3API
	bucket    string
	region    string
	publicURL string
}

// S3Option configures an S3Store.
type S3Option func(*S3Store)

// WithPublicURL serves objects from base (e.g. a CDN) instead of the bucket endpoint.
func WithPublicURL(base string) S3Option {
	return func(s *S3Store) {
		s.publicURL = strings.TrimSuffix(base, "/")
	}
}

// WithS3Client replaces the SDK client, mainly for tests.
func WithS3Client(client S3API) S3Option {
	return func(s *S3Store) {
		s.client = client
	}
}

// NewS3Store creates a store for bucket. Credentials come from the default AWS chain.
func NewS3Store(ctx context.Context, bucket, region string, opts ...S3Option) (*S3Store, error) {
	if bucket == "" {
		bucket = DefaultBucket
	}
	s := &S3Store{bucket: bucket, region: region}
	for _, opt := range opts {
		opt(s)
	}
	if s.client != nil {
		return s, nil
	}

	var loadOpts []func(*config.LoadOptions) error
	if region != "" {
		loadOpts = append(loadOpts, config.WithRegion(region))
	}
	cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	if s.region == "" {
		s.region = cfg.Region
	}
	s.client = s3.NewFromConfig(cfg)
	return s, nil
}

// Put uploads data and returns its URL.
func (s *S3Store) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	if err := validateKey(key); err != nil {
		return "", err
	}
	if contentType == "" {
		contentType = DetectContentType(key, data)
	}

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(int64(len(data))),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload %s to s3://%s: %w", key, s.bucket, err)
	}
	return s.url(key), nil
}

func (s *S3Store) url(key string) string {
	if s.publicURL != "" {
		return s.publicURL + "/" + key
	}
	region := s.region
	if region == "" {
		region = "us-east-1"
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.bucket, region, key)
}
