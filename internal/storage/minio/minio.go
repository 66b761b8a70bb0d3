package minio

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/rs/zerolog/log"
)

const (
	// ImagesBucket holds the uploaded report screenshots.
	ImagesBucket = "report-images"
	// ExportsBucket holds generated PDF exports.
	ExportsBucket = "report-exports"
)

type Client struct {
	client *minio.Client
}

// NewClient creates a new Minio client and ensures buckets exist
func NewClient(endpoint, accessKey, secretKey string, useSSL bool) (*Client, error) {
	minioClient, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	client := &Client{client: minioClient}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	buckets := []string{ImagesBucket, ExportsBucket}
	for _, bucketName := range buckets {
		if err := client.ensureBucketExists(ctx, bucketName); err != nil {
			return nil, fmt.Errorf("failed to ensure bucket %s exists: %w", bucketName, err)
		}
	}

	log.Info().Strs("buckets", buckets).Msg("Minio client initialized")
	return client, nil
}

func (c *Client) ensureBucketExists(ctx context.Context, bucketName string) error {
	exists, err := c.client.BucketExists(ctx, bucketName)
	if err != nil {
		return fmt.Errorf("failed to check if bucket exists: %w", err)
	}
	if exists {
		return nil
	}

	if err := c.client.MakeBucket(ctx, bucketName, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("failed to create bucket: %w", err)
	}
	log.Info().Str("bucket", bucketName).Msg("Created bucket")
	return nil
}

// UploadFile uploads a file to the specified bucket
func (c *Client) UploadFile(ctx context.Context, bucketName, objectName string, reader io.Reader, size int64, contentType string) (minio.UploadInfo, error) {
	uploadInfo, err := c.client.PutObject(ctx, bucketName, objectName, reader, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return minio.UploadInfo{}, fmt.Errorf("failed to upload %s: %w", objectName, err)
	}

	log.Debug().Str("bucket", bucketName).Str("object", objectName).Int64("size", uploadInfo.Size).Msg("Uploaded object")
	return uploadInfo, nil
}

// GetFileLink generates a presigned URL for file download. This is the
// shareable link handed out for exports.
func (c *Client) GetFileLink(ctx context.Context, bucketName, objectName string, expires time.Duration) (string, error) {
	presignedURL, err := c.client.PresignedGetObject(ctx, bucketName, objectName, expires, nil)
	if err != nil {
		return "", fmt.Errorf("failed to generate presigned URL: %w", err)
	}

	return presignedURL.String(), nil
}

// DownloadFile reads an object fully. Report screenshots are bounded by the
// upload limit, so buffering is fine.
func (c *Client) DownloadFile(ctx context.Context, bucketName, objectName string) ([]byte, error) {
	object, err := c.client.GetObject(ctx, bucketName, objectName, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to download %s: %w", objectName, err)
	}
	defer object.Close()

	data, err := io.ReadAll(object)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", objectName, err)
	}
	return data, nil
}

// RemoveObjects deletes objects from a bucket, stopping at the first failure.
func (c *Client) RemoveObjects(ctx context.Context, bucketName string, objectNames ...string) error {
	for _, name := range objectNames {
		if err := c.client.RemoveObject(ctx, bucketName, name, minio.RemoveObjectOptions{}); err != nil {
			return fmt.Errorf("failed to remove %s: %w", name, err)
		}
	}
	return nil
}

// Ping checks that the images bucket is reachable.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.client.BucketExists(ctx, ImagesBucket)
	return err
}
