// Package storage moves audio and transcript objects in and out of S3-compatible storage.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"

	"audio-event-pipeline/internal/observability/logging"
)

// ErrInvalidURI is returned for object URIs that are not s3://bucket/key.
var ErrInvalidURI = errors.New("invalid object uri")

// API is the subset of the S3 client used by the transfer managers.
type API interface {
	manager.DownloadAPIClient
	manager.UploadAPIClient
}

// Config holds the connection settings for the object store.
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Region    string
}

// Client uploads and downloads whole objects.
type Client struct {
	api        API
	uploader   *manager.Uploader
	downloader *manager.Downloader
	logger     zerolog.Logger
}

// New creates a client for cfg. A non-empty endpoint selects path-style
// addressing against that host, as MinIO requires.
func New(ctx context.Context, cfg Config) (*Client, error) {
	resolver := aws.EndpointResolverWithOptionsFunc(func(service, region string, options ...interface{}) (aws.Endpoint, error) { // nolint:staticcheck
		if cfg.Endpoint != "" {
			return aws.Endpoint{ // nolint:staticcheck
				PartitionID:       "aws",
				URL:               cfg.Endpoint,
				HostnameImmutable: true,
			}, nil
		}
		return aws.Endpoint{}, &aws.EndpointNotFoundError{} // nolint:staticcheck
	})

	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithEndpointResolverWithOptions(resolver), // nolint:staticcheck
		awsconfig.WithRegion(region),
	}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load object store config: %w", err)
	}

	api := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = true
	})
	return NewFromAPI(api), nil
}

// NewFromAPI wraps an existing S3 API client.
func NewFromAPI(api API) *Client {
	return &Client{
		api:        api,
		uploader:   manager.NewUploader(api),
		downloader: manager.NewDownloader(api),
		logger:     logging.WithComponent("storage"),
	}
}

// UploadFile uploads the file at localPath and returns its s3:// URI.
func (c *Client) UploadFile(ctx context.Context, localPath, bucket, key string) (string, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", localPath, err)
	}
	defer f.Close()

	return c.UploadObject(ctx, bucket, key, f)
}

// UploadObject streams data to bucket/key and returns its s3:// URI.
func (c *Client) UploadObject(ctx context.Context, bucket, key string, data io.Reader) (string, error) {
	_, err := c.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
		Body:   data,
	})
	if err != nil {
		return "", fmt.Errorf("upload s3://%s/%s: %w", bucket, key, err)
	}

	uri := URI(bucket, key)
	c.logger.Info().Str("uri", uri).Msg("Object uploaded")
	return uri, nil
}

// DownloadFile writes bucket/key to localPath, creating parent directories.
// A partially written file is removed on failure.
func (c *Client) DownloadFile(ctx context.Context, bucket, key, localPath string) error {
	if err := os.MkdirAll(filepath.Dir(localPath), 0o755); err != nil {
		return fmt.Errorf("create directory for %s: %w", localPath, err)
	}

	f, err := os.Create(localPath)
	if err != nil {
		return fmt.Errorf("create %s: %w", localPath, err)
	}

	n, err := c.downloader.Download(ctx, f, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	closeErr := f.Close()
	if err != nil {
		_ = os.Remove(localPath)
		return fmt.Errorf("download s3://%s/%s: %w", bucket, key, err)
	}
	if closeErr != nil {
		return fmt.Errorf("close %s: %w", localPath, closeErr)
	}

	c.logger.Debug().Str("uri", URI(bucket, key)).Str("path", localPath).Int64("bytes", n).Msg("Object downloaded")
	return nil
}

// URI formats bucket and key as s3://bucket/key.
func URI(bucket, key string) string {
	return fmt.Sprintf("s3://%s/%s", bucket, key)
}

// ParseURI splits s3://bucket/key.
func ParseURI(uri string) (bucket, key string, err error) {
	rest, ok := strings.CutPrefix(uri, "s3://")
	if !ok {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidURI, uri)
	}
	bucket, key, _ = strings.Cut(rest, "/")
	if bucket == "" || key == "" {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidURI, uri)
	}
	return bucket, key, nil
}

// IsURI reports whether s looks like an object URI rather than a local path.
func IsURI(s string) bool {
	return strings.HasPrefix(s, "s3://")
}
