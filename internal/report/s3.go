package report

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"

	"github.com/example/erp/tools/acctest/internal/config"
)

// ErrMissingBucket is returned when an S3 sink is built without a bucket.
var ErrMissingBucket = errors.New("report: s3 bucket is required")

// ObjectPutter is the subset of *s3.Client the S3 sink uses.
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Sink uploads result files to an S3-compatible bucket.
type S3Sink struct {
	client ObjectPutter
	bucket string
	prefix string
	logger *zap.Logger
}

// S3SinkOption configures an S3Sink.
type S3SinkOption func(*S3Sink)

// WithS3Logger sets the logger.
func WithS3Logger(logger *zap.Logger) S3SinkOption {
	return func(s *S3Sink) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithS3Client replaces the S3 client, e.g. with a fake in tests.
func WithS3Client(client ObjectPutter) S3SinkOption {
	return func(s *S3Sink) {
		s.client = client
	}
}

// NewS3Sink creates a sink from configuration. Static credentials are used
// when an access key is configured, otherwise the default AWS chain applies.
// Objects are stored under prefix/runID/.
func NewS3Sink(ctx context.Context, cfg config.S3Config, runID string, opts ...S3SinkOption) (*S3Sink, error) {
	if cfg.Bucket == "" {
		return nil, ErrMissingBucket
	}

	sink := &S3Sink{
		bucket: cfg.Bucket,
		prefix: path.Join(strings.Trim(cfg.Prefix, "/"), runID),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(sink)
	}
	if sink.client != nil {
		return sink, nil
	}

	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if cfg.AccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS config: %w", err)
	}

	endpoint := cfg.Endpoint
	if endpoint != "" {
		if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
			endpoint = "https://" + endpoint
		}
		if _, err := url.Parse(endpoint); err != nil {
			return nil, fmt.Errorf("invalid s3 endpoint: %w", err)
		}
	}

	sink.client = s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.UsePathStyle
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})

	return sink, nil
}

// Key returns the object key for name.
func (s *S3Sink) Key(name string) string {
	return path.Join(s.prefix, name)
}

// Put uploads data as bucket/prefix/runID/name.
func (s *S3Sink) Put(ctx context.Context, name string, data []byte) error {
	key := s.Key(name)
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType(name)),
	})
	if err != nil {
		return fmt.Errorf("uploading s3://%s/%s: %w", s.bucket, key, err)
	}

	s.logger.Debug("uploaded result file",
		zap.String("bucket", s.bucket),
		zap.String("key", key),
		zap.Int("size", len(data)),
	)
	return nil
}

func (s *S3Sink) String() string {
	return "s3://" + path.Join(s.bucket, s.prefix)
}

func contentType(name string) string {
	switch path.Ext(name) {
	case ".csv":
		return "text/csv"
	case ".json":
		return "application/json"
	default:
		return "application/octet-stream"
	}
}
