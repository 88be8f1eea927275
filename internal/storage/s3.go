package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3Storage implements ObjectStorage for AWS S3.
//
// The client is built with a single attempt per call: failures surface to the
// writer as-is instead of being hidden by SDK retries.
type S3Storage struct {
	client *s3.Client
}

// S3Config holds configuration for S3 storage.
type S3Config struct {
	// Region is the AWS region for the bucket.
	Region string
	// Endpoint is an optional custom endpoint (for MinIO, LocalStack, etc.).
	Endpoint string
	// UsePathStyle enables path-style addressing (required for MinIO).
	UsePathStyle bool
}

// NewS3Storage creates a new S3 storage client.
func NewS3Storage(ctx context.Context, cfg S3Config) (*S3Storage, error) {
	opts := []func(*config.LoadOptions) error{
		config.WithRetryMaxAttempts(1),
	}
	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		})
	}
	if cfg.UsePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	}

	return &S3Storage{client: s3.NewFromConfig(awsCfg, s3Opts...)}, nil
}

// NewS3StorageWithClient wraps a pre-configured client.
func NewS3StorageWithClient(client *s3.Client) *S3Storage {
	return &S3Storage{client: client}
}

// PutObject uploads body as one object.
func (s *S3Storage) PutObject(ctx context.Context, dest Destination, body []byte, contentType string) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(dest.Bucket),
		Key:           aws.String(dest.Key),
		Body:          bytes.NewReader(body),
		ContentLength: aws.Int64(int64(len(body))),
		ContentType:   aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}
	return nil
}

// CreateMultipartUpload starts a multipart upload.
func (s *S3Storage) CreateMultipartUpload(ctx context.Context, dest Destination, contentType string) (string, error) {
	resp, err := s.client.CreateMultipartUpload(ctx, &s3.CreateMultipartUploadInput{
		Bucket:      aws.String(dest.Bucket),
		Key:         aws.String(dest.Key),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("%w: create multipart upload: %v", ErrUploadFailed, err)
	}
	return aws.ToString(resp.UploadId), nil
}

// UploadPart uploads one part.
func (s *S3Storage) UploadPart(ctx context.Context, dest Destination, uploadID string, partNumber int32, body []byte) (string, error) {
	resp, err := s.client.UploadPart(ctx, &s3.UploadPartInput{
		Bucket:        aws.String(dest.Bucket),
		Key:           aws.String(dest.Key),
		UploadId:      aws.String(uploadID),
		PartNumber:    aws.Int32(partNumber),
		Body:          bytes.NewReader(body),
		ContentLength: aws.Int64(int64(len(body))),
	})
	if err != nil {
		return "", fmt.Errorf("%w: upload part %d: %v", ErrUploadFailed, partNumber, err)
	}
	return aws.ToString(resp.ETag), nil
}

// CompleteMultipartUpload finalizes the upload.
func (s *S3Storage) CompleteMultipartUpload(ctx context.Context, dest Destination, uploadID string, parts []CompletedPart) error {
	completed := make([]types.CompletedPart, len(parts))
	for i, p := range parts {
		completed[i] = types.CompletedPart{
			ETag:       aws.String(p.ETag),
			PartNumber: aws.Int32(p.PartNumber),
		}
	}

	_, err := s.client.CompleteMultipartUpload(ctx, &s3.CompleteMultipartUploadInput{
		Bucket:   aws.String(dest.Bucket),
		Key:      aws.String(dest.Key),
		UploadId: aws.String(uploadID),
		MultipartUpload: &types.CompletedMultipartUpload{
			Parts: completed,
		},
	})
	if err != nil {
		return fmt.Errorf("%w: complete multipart upload: %v", ErrUploadFailed, err)
	}
	return nil
}

// AbortMultipartUpload releases the server-side parts of an upload.
func (s *S3Storage) AbortMultipartUpload(ctx context.Context, dest Destination, uploadID string) error {
	_, err := s.client.AbortMultipartUpload(ctx, &s3.AbortMultipartUploadInput{
		Bucket:   aws.String(dest.Bucket),
		Key:      aws.String(dest.Key),
		UploadId: aws.String(uploadID),
	})
	if err != nil {
		var noUpload *types.NoSuchUpload
		if errors.As(err, &noUpload) {
			return ErrUploadNotFound
		}
		return fmt.Errorf("abort multipart upload: %w", err)
	}
	return nil
}

// StatObject issues a HeadObject.
func (s *S3Storage) StatObject(ctx context.Context, dest Destination) (ObjectInfo, error) {
	resp, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(dest.Bucket),
		Key:    aws.String(dest.Key),
	})
	if err != nil {
		var notFound *types.NotFound
		if errors.As(err, &notFound) {
			return ObjectInfo{}, ErrObjectNotFound
		}
		return ObjectInfo{}, fmt.Errorf("head object: %w", err)
	}
	return ObjectInfo{
		Size: aws.ToInt64(resp.ContentLength),
		ETag: aws.ToString(resp.ETag),
	}, nil
}
