// Package storage provides the object storage contract used by the workload
// handler, its S3 and local filesystem implementations, and the Writer that
// drives single-shot and multipart writes against it.
package storage

import (
	"context"
	"errors"
	"fmt"
)

// Common errors for storage operations.
var (
	ErrObjectNotFound   = errors.New("object not found")
	ErrUploadNotFound   = errors.New("multipart upload not found")
	ErrUploadFailed     = errors.New("upload failed")
	ErrPartOutOfOrder   = errors.New("parts not in ascending order")
	ErrShortPartStream  = errors.New("source ended before all parts were read")
	ErrInvalidPartCount = errors.New("invalid part count")
)

// Destination is the bucket and key of one object.
type Destination struct {
	Bucket string `json:"bucket"`
	Key    string `json:"key"`
}

// String returns an s3:// style URI.
func (d Destination) String() string {
	return fmt.Sprintf("s3://%s/%s", d.Bucket, d.Key)
}

// CompletedPart identifies one acknowledged part of a multipart upload.
type CompletedPart struct {
	PartNumber int32
	ETag       string
}

// ObjectInfo describes a stored object.
type ObjectInfo struct {
	Size int64
	ETag string
}

// ObjectStorage abstracts the object store calls the writer issues.
// Implementations include S3 and the local filesystem; tests substitute fakes.
type ObjectStorage interface {
	// PutObject writes one object in a single call.
	PutObject(ctx context.Context, dest Destination, body []byte, contentType string) error

	// CreateMultipartUpload opens a multipart upload and returns its id.
	CreateMultipartUpload(ctx context.Context, dest Destination, contentType string) (string, error)

	// UploadPart uploads one part and returns its ETag.
	// Part numbers start at 1.
	UploadPart(ctx context.Context, dest Destination, uploadID string, partNumber int32, body []byte) (string, error)

	// CompleteMultipartUpload finalizes the object from the given parts,
	// which must be in ascending part-number order.
	CompleteMultipartUpload(ctx context.Context, dest Destination, uploadID string, parts []CompletedPart) error

	// AbortMultipartUpload discards an in-progress upload and its parts.
	AbortMultipartUpload(ctx context.Context, dest Destination, uploadID string) error

	// StatObject returns the size and ETag of an object.
	StatObject(ctx context.Context, dest Destination) (ObjectInfo, error)
}

// PartCount returns ceil(total/partSize), or 0 for a non-positive total.
func PartCount(total, partSize int64) int {
	if total <= 0 || partSize <= 0 {
		return 0
	}
	return int((total + partSize - 1) / partSize)
}

// PartSize returns the size of part number n (1-based) of a total split into
// partSize chunks. The last part carries the remainder.
func PartSize(total, partSize int64, n int) int64 {
	offset := int64(n-1) * partSize
	size := partSize
	if offset+size > total {
		size = total - offset
	}
	return size
}
