package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"golang.org/x/sync/semaphore"

	bencherrors "github.com/ingestbench/ingestbench/internal/errors"
	"github.com/ingestbench/ingestbench/internal/logging"
)

const (
	ContentTypeJSONLines = "application/x-ndjson"
	ContentTypeBinary    = "application/octet-stream"
)

// WriterConfig configures a Writer.
type WriterConfig struct {
	// PartConcurrency bounds the number of parts in flight. Values below 2
	// upload parts strictly one after another.
	PartConcurrency int
}

// Outcome describes a finished write.
type Outcome struct {
	Destination Destination
	Bytes       int64
	Parts       int
	PartSize    int64
	UploadID    string
}

// Writer issues single-shot and multipart writes against an ObjectStorage.
// A multipart write either completes exactly once after every part is
// acknowledged, or aborts exactly once and reports a write failure.
type Writer struct {
	store ObjectStorage
	cfg   WriterConfig
	log   *slog.Logger
}

// NewWriter creates a Writer over store.
func NewWriter(store ObjectStorage, cfg WriterConfig) *Writer {
	if cfg.PartConcurrency < 1 {
		cfg.PartConcurrency = 1
	}
	return &Writer{
		store: store,
		cfg:   cfg,
		log:   logging.Component("writer"),
	}
}

// WriteSingle stores data as one object in a single call.
func (w *Writer) WriteSingle(ctx context.Context, dest Destination, data []byte, contentType string) (Outcome, error) {
	if err := w.store.PutObject(ctx, dest, data, contentType); err != nil {
		return Outcome{}, bencherrors.NewWriteFailure(fmt.Sprintf("put %s", dest), err)
	}
	return Outcome{Destination: dest, Bytes: int64(len(data))}, nil
}

// WriteMultipart streams totalBytes from src as ceil(totalBytes/partSize)
// parts. Parts are numbered from 1 and every part except the last is exactly
// partSize bytes.
func (w *Writer) WriteMultipart(ctx context.Context, dest Destination, src io.Reader, totalBytes, partSize int64) (Outcome, error) {
	if totalBytes <= 0 {
		return Outcome{}, bencherrors.NewInvalidParameter(fmt.Sprintf("total bytes must be positive, got %d", totalBytes))
	}
	if partSize <= 0 {
		return Outcome{}, bencherrors.NewInvalidParameter(fmt.Sprintf("part size must be positive, got %d", partSize))
	}

	uploadID, err := w.store.CreateMultipartUpload(ctx, dest, ContentTypeBinary)
	if err != nil {
		return Outcome{}, bencherrors.NewWriteFailure(fmt.Sprintf("create multipart upload %s", dest), err)
	}

	count := PartCount(totalBytes, partSize)
	var parts []CompletedPart
	if w.cfg.PartConcurrency > 1 && count > 1 {
		parts, err = w.uploadConcurrent(ctx, dest, uploadID, src, totalBytes, partSize, count)
	} else {
		parts, err = w.uploadSequential(ctx, dest, uploadID, src, totalBytes, partSize, count)
	}
	if err != nil {
		return Outcome{}, w.abort(ctx, dest, uploadID, err)
	}

	if err := w.store.CompleteMultipartUpload(ctx, dest, uploadID, parts); err != nil {
		return Outcome{}, w.abort(ctx, dest, uploadID, fmt.Errorf("complete: %w", err))
	}

	return Outcome{
		Destination: dest,
		Bytes:       totalBytes,
		Parts:       count,
		PartSize:    partSize,
		UploadID:    uploadID,
	}, nil
}

func (w *Writer) uploadSequential(ctx context.Context, dest Destination, uploadID string, src io.Reader, total, partSize int64, count int) ([]CompletedPart, error) {
	parts := make([]CompletedPart, 0, count)
	buf := make([]byte, partSize)

	for n := 1; n <= count; n++ {
		body, err := readPart(src, buf, PartSize(total, partSize, n), n)
		if err != nil {
			return nil, err
		}
		etag, err := w.store.UploadPart(ctx, dest, uploadID, int32(n), body)
		if err != nil {
			return nil, fmt.Errorf("part %d: %w", n, err)
		}
		parts = append(parts, CompletedPart{PartNumber: int32(n), ETag: etag})
	}
	return parts, nil
}

// uploadConcurrent reads parts in order and uploads up to PartConcurrency of
// them at once. The first failure cancels the remaining uploads.
func (w *Writer) uploadConcurrent(ctx context.Context, dest Destination, uploadID string, src io.Reader, total, partSize int64, count int) ([]CompletedPart, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sem := semaphore.NewWeighted(int64(w.cfg.PartConcurrency))
	parts := make([]CompletedPart, count)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)
	fail := func(err error) {
		mu.Lock()
		if firstErr == nil {
			firstErr = err
			cancel()
		}
		mu.Unlock()
	}

	for n := 1; n <= count; n++ {
		if err := sem.Acquire(ctx, 1); err != nil {
			fail(err)
			break
		}

		body, err := readPart(src, make([]byte, partSize), PartSize(total, partSize, n), n)
		if err != nil {
			sem.Release(1)
			fail(err)
			break
		}

		wg.Add(1)
		go func(n int, body []byte) {
			defer wg.Done()
			defer sem.Release(1)

			etag, err := w.store.UploadPart(ctx, dest, uploadID, int32(n), body)
			if err != nil {
				fail(fmt.Errorf("part %d: %w", n, err))
				return
			}
			parts[n-1] = CompletedPart{PartNumber: int32(n), ETag: etag}
		}(n, body)
	}

	wg.Wait()
	if firstErr != nil {
		return nil, firstErr
	}
	return parts, nil
}

// abort releases the upload once and wraps cause as a write failure. It runs
// even when ctx is already cancelled.
func (w *Writer) abort(ctx context.Context, dest Destination, uploadID string, cause error) error {
	abortErr := w.store.AbortMultipartUpload(context.WithoutCancel(ctx), dest, uploadID)
	if abortErr != nil {
		w.log.Warn("abort multipart upload failed",
			"destination", dest.String(),
			"upload_id", uploadID,
			"error", abortErr,
		)
		cause = errors.Join(cause, fmt.Errorf("abort: %w", abortErr))
	}
	return bencherrors.NewWriteFailure(fmt.Sprintf("multipart upload %s aborted", dest), cause)
}

func readPart(src io.Reader, buf []byte, size int64, n int) ([]byte, error) {
	body := buf[:size]
	if _, err := io.ReadFull(src, body); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("part %d: %w", n, ErrShortPartStream)
		}
		return nil, fmt.Errorf("part %d: read: %w", n, err)
	}
	return body, nil
}
