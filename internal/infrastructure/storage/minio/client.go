package minio

import (
	"context"
	"io"
	"net/url"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/turtacn/ShortCut-Intelligence/internal/config"
	"github.com/turtacn/ShortCut-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/ShortCut-Intelligence/pkg/errors"
)

const (
	connectProbeTimeout  = 10 * time.Second
	defaultBucket        = "shortcut-reports"
	defaultPresignExpiry = time.Hour
)

// MinIOAPI is the slice of the minio-go client this package uses, abstracted
// for testing.
type MinIOAPI interface {
	ListBuckets(ctx context.Context) ([]minio.BucketInfo, error)
	BucketExists(ctx context.Context, bucketName string) (bool, error)
	MakeBucket(ctx context.Context, bucketName string, opts minio.MakeBucketOptions) error
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	GetObject(ctx context.Context, bucketName, objectName string, opts minio.GetObjectOptions) (io.ReadCloser, error)
	StatObject(ctx context.Context, bucketName, objectName string, opts minio.StatObjectOptions) (minio.ObjectInfo, error)
	RemoveObject(ctx context.Context, bucketName, objectName string, opts minio.RemoveObjectOptions) error
	PresignedGetObject(ctx context.Context, bucketName, objectName string, expiry time.Duration, reqParams url.Values) (*url.URL, error)
}

// apiAdapter narrows *minio.Client to MinIOAPI.  GetObject is wrapped so the
// interface can return io.ReadCloser instead of the concrete *minio.Object.
type apiAdapter struct {
	*minio.Client
}

func (a apiAdapter) GetObject(ctx context.Context, bucketName, objectName string, opts minio.GetObjectOptions) (io.ReadCloser, error) {
	return a.Client.GetObject(ctx, bucketName, objectName, opts)
}

// Client wraps object storage for exported analysis reports.
type Client struct {
	api           MinIOAPI
	bucket        string
	presignExpiry time.Duration
	log           logging.Logger
}

// NewClient connects, probes the endpoint, and makes sure the report bucket
// exists.
func NewClient(cfg config.MinIOConfig, log logging.Logger) (*Client, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New(errors.ErrCodeConfiguration, "minio endpoint is required")
	}

	mc, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeConfiguration, "create minio client failed")
	}
	api := apiAdapter{mc}

	c := newClientWithAPI(api, cfg, log)

	ctx, cancel := context.WithTimeout(context.Background(), connectProbeTimeout)
	defer cancel()
	if _, err := api.ListBuckets(ctx); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeUpstreamConnect, "connect to minio failed")
	}
	if err := c.ensureBucket(ctx); err != nil {
		return nil, err
	}

	log.Info("minio connected",
		logging.String("endpoint", cfg.Endpoint),
		logging.String("bucket", c.bucket),
		logging.Bool("ssl", cfg.UseSSL),
	)
	return c, nil
}

func newClientWithAPI(api MinIOAPI, cfg config.MinIOConfig, log logging.Logger) *Client {
	bucket := cfg.Bucket
	if bucket == "" {
		bucket = defaultBucket
	}
	expiry := cfg.PresignExpiry
	if expiry <= 0 {
		expiry = defaultPresignExpiry
	}
	return &Client{
		api:           api,
		bucket:        bucket,
		presignExpiry: expiry,
		log:           log.Named("minio"),
	}
}

func (c *Client) ensureBucket(ctx context.Context) error {
	exists, err := c.api.BucketExists(ctx, c.bucket)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeStorageError, "check bucket existence failed")
	}
	if exists {
		return nil
	}
	if err := c.api.MakeBucket(ctx, c.bucket, minio.MakeBucketOptions{}); err != nil {
		return errors.Wrap(err, errors.ErrCodeStorageError, "create bucket failed")
	}
	c.log.Info("bucket created", logging.String("bucket", c.bucket))
	return nil
}

// Bucket returns the configured report bucket name.
func (c *Client) Bucket() string {
	return c.bucket
}

// HealthCheck verifies the endpoint answers and the bucket is present.
func (c *Client) HealthCheck(ctx context.Context) error {
	exists, err := c.api.BucketExists(ctx, c.bucket)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeServiceUnavailable, "minio health check failed")
	}
	if !exists {
		return errors.Newf(errors.ErrCodeStorageError, "bucket %q missing", c.bucket)
	}
	return nil
}
