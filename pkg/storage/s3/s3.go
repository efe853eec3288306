// Package s3 handles offsite copies of backup archives in S3-compatible
// object storage.
package s3

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/galenelijah/USC-PIS-sub001/pkg/config"
)

// Client represents an S3 client for offsite archive copies.
type Client struct {
	s3Client *s3.Client
	cfg      *config.AppConfig
}

// NewClient creates a new S3 client from the global configuration.
func NewClient() (*Client, error) {
	if !config.CFG.S3.Enabled {
		return nil, fmt.Errorf("S3 offsite copy is not enabled in configuration")
	}

	s3Client, err := getS3Client()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize S3 client: %w", err)
	}

	return &Client{
		s3Client: s3Client,
		cfg:      &config.CFG,
	}, nil
}

// getS3Client initializes an S3 client based on configuration.
func getS3Client() (*s3.Client, error) {
	ctx := context.Background()

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(config.CFG.S3.Region),
	}

	if config.CFG.S3.AccessKey != "" && config.CFG.S3.SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(
				config.CFG.S3.AccessKey, config.CFG.S3.SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS configuration: %w", err)
	}

	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if config.CFG.S3.Endpoint != "" {
			o.BaseEndpoint = aws.String(config.CFG.S3.Endpoint)
		}
		o.UsePathStyle = config.CFG.S3.PathStyle
	}), nil
}

// ArchiveKey returns the object key for a backup's offsite copy.
func (c *Client) ArchiveKey(backupID, extension string) string {
	return path.Join(c.cfg.S3.Prefix, backupID+extension)
}

// UploadArchive copies archive bytes to the configured bucket.
func (c *Client) UploadArchive(key string, data []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	_, err := c.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(c.cfg.S3.Bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return fmt.Errorf("failed to upload archive to s3://%s/%s: %w", c.cfg.S3.Bucket, key, err)
	}

	log.Printf("Uploaded offsite archive copy to s3://%s/%s", c.cfg.S3.Bucket, key)
	return nil
}

// DeleteArchive removes a backup's offsite copy. Missing objects are
// tolerated so retention cleanup is idempotent.
func (c *Client) DeleteArchive(key string) error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	_, err := c.s3Client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(c.cfg.S3.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete offsite archive s3://%s/%s: %w", c.cfg.S3.Bucket, key, err)
	}
	return nil
}
