package storage

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// LocalStorage implements ObjectStorage on the local filesystem.
// Buckets map to directories under basePath. Multipart parts are staged under
// .multipart/<uploadID>/ and concatenated on completion.
type LocalStorage struct {
	basePath string
	mu       sync.Mutex
	uploads  map[string]Destination
}

// NewLocalStorage creates a new local filesystem storage.
func NewLocalStorage(basePath string) (*LocalStorage, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}

	return &LocalStorage{
		basePath: basePath,
		uploads:  make(map[string]Destination),
	}, nil
}

// PutObject writes body to the destination path.
func (l *LocalStorage) PutObject(ctx context.Context, dest Destination, body []byte, _ string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	path := l.objectPath(dest)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}
	if err := os.WriteFile(path, body, 0644); err != nil {
		return fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}
	return nil
}

// CreateMultipartUpload allocates a staging directory for parts.
func (l *LocalStorage) CreateMultipartUpload(ctx context.Context, dest Destination, _ string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	uploadID := uuid.NewString()
	if err := os.MkdirAll(l.stagingDir(uploadID), 0755); err != nil {
		return "", fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}

	l.mu.Lock()
	l.uploads[uploadID] = dest
	l.mu.Unlock()
	return uploadID, nil
}

// UploadPart stages one part and returns its md5 as the ETag.
func (l *LocalStorage) UploadPart(ctx context.Context, dest Destination, uploadID string, partNumber int32, body []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := l.checkUpload(dest, uploadID); err != nil {
		return "", err
	}

	path := filepath.Join(l.stagingDir(uploadID), fmt.Sprintf("%05d", partNumber))
	if err := os.WriteFile(path, body, 0644); err != nil {
		return "", fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}

	sum := md5.Sum(body)
	return hex.EncodeToString(sum[:]), nil
}

// CompleteMultipartUpload concatenates the staged parts in order.
func (l *LocalStorage) CompleteMultipartUpload(ctx context.Context, dest Destination, uploadID string, parts []CompletedPart) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := l.checkUpload(dest, uploadID); err != nil {
		return err
	}
	if len(parts) == 0 {
		return ErrInvalidPartCount
	}
	if !sort.SliceIsSorted(parts, func(i, j int) bool { return parts[i].PartNumber < parts[j].PartNumber }) {
		return ErrPartOutOfOrder
	}

	path := l.objectPath(dest)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}

	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}
	defer out.Close()

	for _, p := range parts {
		if err := l.appendPart(out, uploadID, p.PartNumber); err != nil {
			return err
		}
	}

	if err := out.Sync(); err != nil {
		return fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}
	return l.dropUpload(uploadID)
}

func (l *LocalStorage) appendPart(out io.Writer, uploadID string, partNumber int32) error {
	in, err := os.Open(filepath.Join(l.stagingDir(uploadID), fmt.Sprintf("%05d", partNumber)))
	if err != nil {
		return fmt.Errorf("%w: part %d: %v", ErrUploadFailed, partNumber, err)
	}
	defer in.Close()

	if _, err := io.Copy(out, in); err != nil {
		return fmt.Errorf("%w: part %d: %v", ErrUploadFailed, partNumber, err)
	}
	return nil
}

// AbortMultipartUpload removes the staged parts.
func (l *LocalStorage) AbortMultipartUpload(_ context.Context, dest Destination, uploadID string) error {
	if err := l.checkUpload(dest, uploadID); err != nil {
		return err
	}
	return l.dropUpload(uploadID)
}

// StatObject returns the size and md5 ETag of a stored object.
func (l *LocalStorage) StatObject(ctx context.Context, dest Destination) (ObjectInfo, error) {
	if err := ctx.Err(); err != nil {
		return ObjectInfo{}, err
	}

	f, err := os.Open(l.objectPath(dest))
	if err != nil {
		if os.IsNotExist(err) {
			return ObjectInfo{}, ErrObjectNotFound
		}
		return ObjectInfo{}, err
	}
	defer f.Close()

	hash := md5.New()
	n, err := io.Copy(hash, f)
	if err != nil {
		return ObjectInfo{}, err
	}
	return ObjectInfo{Size: n, ETag: hex.EncodeToString(hash.Sum(nil))}, nil
}

// PendingUploads returns the number of multipart uploads neither completed nor aborted.
func (l *LocalStorage) PendingUploads() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.uploads)
}

func (l *LocalStorage) checkUpload(dest Destination, uploadID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	got, ok := l.uploads[uploadID]
	if !ok || got != dest {
		return ErrUploadNotFound
	}
	return nil
}

func (l *LocalStorage) dropUpload(uploadID string) error {
	l.mu.Lock()
	delete(l.uploads, uploadID)
	l.mu.Unlock()
	if err := os.RemoveAll(l.stagingDir(uploadID)); err != nil {
		return fmt.Errorf("remove staged parts: %w", err)
	}
	return nil
}

func (l *LocalStorage) objectPath(dest Destination) string {
	return filepath.Join(l.basePath, dest.Bucket, filepath.FromSlash(dest.Key))
}

func (l *LocalStorage) stagingDir(uploadID string) string {
	return filepath.Join(l.basePath, ".multipart", uploadID)
}
