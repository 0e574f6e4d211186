// Package blobstore wraps object storage for uploaded CSV/JSONL files
// (spec §4.F). Grounded on the teacher's internal/bigdata.DataLakeClient
// (MinIO/S3 wrapper), narrowed from conversation/debate archiving to
// streaming reads of a single uploaded object plus the existence check the
// importer needs before it can safely buffer a batch.
package blobstore

import (
	"context"
	"fmt"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/sirupsen/logrus"

	"github.com/devflowinc/trieve-sub001/internal/config"
	"github.com/devflowinc/trieve-sub001/internal/errs"
)

// Store is the subset of object-storage operations the importer depends on.
type Store interface {
	// Exists reports whether key is present in the bucket. The importer
	// uses this to decide whether to stream now or re-enqueue and wait
	// (spec §4.F: "on object not yet present... re-enqueues").
	Exists(ctx context.Context, key string) (bool, error)
	// Open returns a stream over key's bytes; the caller must Close it.
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

// Client is the production Store backed by MinIO/S3.
type Client struct {
	client *minio.Client
	bucket string
	logger *logrus.Logger
}

func NewClient(cfg config.BlobConfig, logger *logrus.Logger) (*Client, error) {
	if logger == nil {
		logger = logrus.New()
	}
	mc, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, errs.Transient(errs.CodeRemoteStatus, "failed to create blob storage client", err)
	}

	ctx := context.Background()
	exists, err := mc.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, errs.Transient(errs.CodeRemoteStatus, "failed to check bucket existence", err)
	}
	if !exists {
		logger.WithField("bucket", cfg.Bucket).Info("creating upload bucket")
		if err := mc.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, errs.Transient(errs.CodeRemoteStatus, "failed to create bucket", err)
		}
	}

	return &Client{client: mc, bucket: cfg.Bucket, logger: logger}, nil
}

var _ Store = (*Client)(nil)

func (c *Client) Exists(ctx context.Context, key string) (bool, error) {
	_, err := c.client.StatObject(ctx, c.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		resp := minio.ToErrorResponse(err)
		if resp.Code == "NoSuchKey" || resp.Code == "NoSuchBucket" {
			return false, nil
		}
		return false, errs.Transient(errs.CodeRemoteStatus, "failed to stat object", err)
	}
	return true, nil
}

func (c *Client) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	obj, err := c.client.GetObject(ctx, c.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, errs.Transient(errs.CodeRemoteStatus, "failed to open object", err)
	}
	// GetObject does not fail until the first read; force it now so a
	// missing-object error surfaces from Open rather than mid-stream.
	if _, err := obj.Stat(); err != nil {
		_ = obj.Close()
		resp := minio.ToErrorResponse(err)
		if resp.Code == "NoSuchKey" {
			return nil, errs.NotFound(errs.CodeNotFound, fmt.Sprintf("object %q not found", key), err)
		}
		return nil, errs.Transient(errs.CodeRemoteStatus, "failed to stat opened object", err)
	}
	return obj, nil
}
