package storage

import (
	"context"
	"fmt"
	"sync"
)

// fakeStore records every call and can be told to fail a given part.
type fakeStore struct {
	mu sync.Mutex

	failPut      error
	failCreate   error
	failPart     int32
	failComplete error
	failStat     map[Destination]error
	sizes        map[Destination]int64

	puts      int
	creates   int
	completes int
	aborts    int
	partSizes map[int32]int
	completed []CompletedPart
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		partSizes: make(map[int32]int),
		sizes:     make(map[Destination]int64),
		failStat:  make(map[Destination]error),
	}
}

func (f *fakeStore) PutObject(_ context.Context, dest Destination, body []byte, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.puts++
	if f.failPut != nil {
		return f.failPut
	}
	f.sizes[dest] = int64(len(body))
	return nil
}

func (f *fakeStore) CreateMultipartUpload(context.Context, Destination, string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creates++
	if f.failCreate != nil {
		return "", f.failCreate
	}
	return "upload-1", nil
}

func (f *fakeStore) UploadPart(_ context.Context, _ Destination, _ string, n int32, body []byte) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if n == f.failPart {
		return "", fmt.Errorf("injected failure on part %d", n)
	}
	f.partSizes[n] = len(body)
	return fmt.Sprintf("etag-%d", n), nil
}

func (f *fakeStore) CompleteMultipartUpload(_ context.Context, dest Destination, _ string, parts []CompletedPart) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completes++
	if f.failComplete != nil {
		return f.failComplete
	}
	f.completed = append([]CompletedPart(nil), parts...)
	var total int64
	for _, p := range parts {
		total += int64(f.partSizes[p.PartNumber])
	}
	f.sizes[dest] = total
	return nil
}

func (f *fakeStore) AbortMultipartUpload(context.Context, Destination, string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.aborts++
	return nil
}

func (f *fakeStore) StatObject(_ context.Context, dest Destination) (ObjectInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failStat[dest]; err != nil {
		return ObjectInfo{}, err
	}
	size, ok := f.sizes[dest]
	if !ok {
		return ObjectInfo{}, ErrObjectNotFound
	}
	return ObjectInfo{Size: size}, nil
}
