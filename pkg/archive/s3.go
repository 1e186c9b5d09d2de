package archive

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

// objectAPI is the subset of the S3 client the archive uses.
type objectAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	HeadBucket(ctx context.Context, in *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
}

// S3Archive uploads bundles to an S3 bucket.
type S3Archive struct {
	api    objectAPI
	bucket string
	prefix string
}

// New creates an archive for cfg. No request is made; call Check to verify
// the bucket is reachable.
func New(ctx context.Context, cfg Config) (*S3Archive, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	awsCfg, err := loadAWSConfig(ctx, cfg)
	if err != nil {
		return nil, &Error{Op: "New", Bucket: cfg.Bucket, Err: err}
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
		if cfg.ForcePathStyle {
			o.UsePathStyle = true
		}
	})
	return newWithAPI(client, cfg), nil
}

func newWithAPI(api objectAPI, cfg Config) *S3Archive {
	return &S3Archive{api: api, bucket: cfg.Bucket, prefix: cfg.Prefix}
}

func loadAWSConfig(ctx context.Context, cfg Config) (aws.Config, error) {
	var opts []func(*config.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}
	if cfg.Profile != "" {
		opts = append(opts, config.WithSharedConfigProfile(cfg.Profile))
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, err
	}
	awsCfg.Region = resolveRegion(cfg.Endpoint, awsCfg.Region)
	return awsCfg, nil
}

// Bucket returns the destination bucket.
func (a *S3Archive) Bucket() string {
	return a.bucket
}

// Key returns the object key for a bundle: prefix + engine + the bundle's
// extension.
func (a *S3Archive) Key(engine, bundlePath string) string {
	ext := strings.ToLower(filepath.Ext(bundlePath))
	if ext == "" {
		ext = ".json"
	}
	return path.Join(a.prefix, engine+ext)
}

// Check verifies the bucket exists and is accessible.
func (a *S3Archive) Check(ctx context.Context) error {
	_, err := a.api.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(a.bucket)})
	if err != nil {
		return a.wrapError("HeadBucket", "", err)
	}
	return nil
}

// Store uploads the bundle at bundlePath under Key(engine, bundlePath).
// An existing object is overwritten.
func (a *S3Archive) Store(ctx context.Context, engine, bundlePath string) error {
	f, err := os.Open(bundlePath)
	if err != nil {
		return fmt.Errorf("open bundle: %w", err)
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat bundle: %w", err)
	}

	key := a.Key(engine, bundlePath)
	size := info.Size()
	_, err = a.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(a.bucket),
		Key:           aws.String(key),
		Body:          f,
		ContentLength: &size,
		ContentType:   aws.String(contentType(bundlePath)),
		Metadata:      map[string]string{"engine": engine},
	})
	if err != nil {
		return a.wrapError("PutObject", key, err)
	}
	return nil
}

func contentType(bundlePath string) string {
	switch strings.ToLower(filepath.Ext(bundlePath)) {
	case ".yaml", ".yml":
		return "application/yaml"
	default:
		return "application/json"
	}
}

// wrapError classifies S3 failures onto the package sentinels.
func (a *S3Archive) wrapError(op, key string, err error) error {
	wrapped := &Error{Op: op, Bucket: a.bucket, Key: key, Err: err}

	var notFound *types.NotFound
	var noSuchKey *types.NoSuchKey
	var noSuchBucket *types.NoSuchBucket
	switch {
	case errors.As(err, &noSuchBucket):
		wrapped.Kind = ErrBucketNotFound
		return wrapped
	case errors.As(err, &notFound), errors.As(err, &noSuchKey):
		// HeadBucket reports a missing bucket as a bare NotFound.
		if key == "" {
			wrapped.Kind = ErrBucketNotFound
		} else {
			wrapped.Kind = ErrNotFound
		}
		return wrapped
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		wrapped.Kind = kindForCode(apiErr.ErrorCode())
		return wrapped
	}

	msg := err.Error()
	switch {
	case strings.Contains(msg, "NoSuchBucket"):
		wrapped.Kind = ErrBucketNotFound
	case strings.Contains(msg, "AccessDenied") || strings.Contains(msg, "Forbidden") || strings.Contains(msg, "403"):
		wrapped.Kind = ErrAccessDenied
	case strings.Contains(msg, "InvalidAccessKeyId") || strings.Contains(msg, "SignatureDoesNotMatch"):
		wrapped.Kind = ErrInvalidCredentials
	case strings.Contains(msg, "SlowDown") || strings.Contains(msg, "Throttling") || strings.Contains(msg, "429"):
		wrapped.Kind = ErrThrottled
	case strings.Contains(msg, "ServiceUnavailable") || strings.Contains(msg, "503"):
		wrapped.Kind = ErrUnavailable
	}
	return wrapped
}

func kindForCode(code string) error {
	switch code {
	case "NoSuchKey", "NotFound":
		return ErrNotFound
	case "NoSuchBucket":
		return ErrBucketNotFound
	case "AccessDenied", "Forbidden":
		return ErrAccessDenied
	case "InvalidAccessKeyId", "SignatureDoesNotMatch":
		return ErrInvalidCredentials
	case "SlowDown", "Throttling", "RequestLimitExceeded":
		return ErrThrottled
	case "ServiceUnavailable", "InternalError":
		return ErrUnavailable
	}
	return nil
}
