// Package s3 stores attachments in an S3 bucket (or an S3-compatible service
// such as MinIO).
package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/transfermanager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/google/uuid"

	"correspondence/internal/attachment"
	"correspondence/internal/platform/config"
	"correspondence/pkg/platform/sentinel"
)

const keyPrefix = "attachments"

// Store implements attachment.Store. Paths have the form s3://bucket/key.
type Store struct {
	client *s3.Client
	tm     *transfermanager.Client
	bucket string
	now    func() time.Time
	logger *slog.Logger
}

var _ attachment.Store = (*Store)(nil)

// New builds a client from cfg. Static credentials are used when both keys
// are set; otherwise the default AWS credential chain applies.
func New(ctx context.Context, cfg config.S3Config, logger *slog.Logger) (*Store, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("s3 bucket is required")
	}

	optFns := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		optFns = append(optFns, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, optFns...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = cfg.UsePathStyle
		}
	})
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		client: client,
		tm:     transfermanager.New(client),
		bucket: cfg.Bucket,
		now:    time.Now,
		logger: logger,
	}, nil
}

// Save uploads content under attachments/<folder>/<uuid>/YYYYMMDD_HHMMSS_<name>.
func (s *Store) Save(ctx context.Context, folder, filename string, content io.Reader) (string, error) {
	key := path.Join(keyPrefix, folder, uuid.NewString(), attachment.ObjectName(s.now(), filename))

	_, err := s.tm.UploadObject(ctx, &transfermanager.UploadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   content,
	})
	if err != nil {
		return "", fmt.Errorf("upload to s3: %w", err)
	}

	s.logger.DebugContext(ctx, "uploaded attachment to s3", "bucket", s.bucket, "key", key)
	return fmt.Sprintf("s3://%s/%s", s.bucket, key), nil
}

// Delete removes the object. S3 reports success for missing keys.
func (s *Store) Delete(ctx context.Context, uri string) error {
	bucket, key, err := parseURI(uri)
	if err != nil {
		return err
	}
	_, err = s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("delete object from s3: %w", err)
	}
	return nil
}

func (s *Store) Exists(ctx context.Context, uri string) (bool, error) {
	bucket, key, err := parseURI(uri)
	if err != nil {
		return false, err
	}
	_, err = s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if isNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("head object in s3: %w", err)
	}
	return true, nil
}

func (s *Store) Open(ctx context.Context, uri string) (io.ReadCloser, error) {
	bucket, key, err := parseURI(uri)
	if err != nil {
		return nil, err
	}
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if isNotFound(err) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get object from s3: %w", err)
	}
	return out.Body, nil
}

func isNotFound(err error) bool {
	if err == nil {
		return false
	}
	var noKey *types.NoSuchKey
	var notFound *types.NotFound
	if errors.As(err, &noKey) || errors.As(err, &notFound) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return true
		}
	}
	return false
}

// parseURI splits s3://bucket/key.
func parseURI(uri string) (bucket, key string, err error) {
	rest, ok := strings.CutPrefix(uri, "s3://")
	if !ok {
		return "", "", fmt.Errorf("invalid s3 uri: %s", uri)
	}
	bucket, key, ok = strings.Cut(rest, "/")
	if !ok || bucket == "" || key == "" {
		return "", "", fmt.Errorf("invalid s3 uri (no key): %s", uri)
	}
	return bucket, key, nil
}
