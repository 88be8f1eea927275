package results

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/golang/snappy"

	"github.com/ingestbench/ingestbench/pkg/types"
)

// maxLineBytes bounds a single record line when reading.
const maxLineBytes = 1 << 20

// JSONLWriter appends records as JSON Lines. Paths ending in ".sz" are written
// as a snappy framed stream; appending to an existing one starts a new frame
// sequence, which the framed format allows.
type JSONLWriter struct {
	mu     sync.Mutex
	path   string
	file   *os.File
	sz     *snappy.Writer
	buf    *bufio.Writer
	enc    *json.Encoder
	count  int64
	closed bool
}

// NewJSONLWriter opens path for appending, creating parent directories.
func NewJSONLWriter(path string) (*JSONLWriter, error) {
	format, err := DetectFormat(path)
	if err != nil {
		return nil, err
	}
	if format != FormatJSONL && format != FormatJSONLSnappy {
		return nil, fmt.Errorf("%w: %s is not a JSON Lines file", ErrUnsupportedFormat, path)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}

	w := &JSONLWriter{path: path, file: f}
	var dst io.Writer = f
	if format == FormatJSONLSnappy {
		w.sz = snappy.NewBufferedWriter(f)
		dst = w.sz
	}
	w.buf = bufio.NewWriter(dst)
	w.enc = json.NewEncoder(w.buf)
	return w, nil
}

// Write appends records and flushes them through to the file.
func (w *JSONLWriter) Write(records []types.InvocationRecord) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrWriterClosed
	}
	for i := range records {
		if err := w.enc.Encode(&records[i]); err != nil {
			return fmt.Errorf("encode record: %w", err)
		}
		w.count++
	}
	return w.flush()
}

// WriteTrial implements Sink.
func (w *JSONLWriter) WriteTrial(_ context.Context, trial *types.TrialResult) error {
	return w.Write(trial.Records)
}

func (w *JSONLWriter) flush() error {
	if err := w.buf.Flush(); err != nil {
		return fmt.Errorf("flush: %w", err)
	}
	if w.sz != nil {
		if err := w.sz.Flush(); err != nil {
			return fmt.Errorf("flush snappy frame: %w", err)
		}
	}
	return nil
}

// Count returns the number of records written through this writer.
func (w *JSONLWriter) Count() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.count
}

// Path returns the file path.
func (w *JSONLWriter) Path() string {
	return w.path
}

// Close flushes and closes the file.
func (w *JSONLWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true

	if err := w.flush(); err != nil {
		w.file.Close()
		return err
	}
	if w.sz != nil {
		if err := w.sz.Close(); err != nil {
			w.file.Close()
			return fmt.Errorf("close snappy writer: %w", err)
		}
	}
	return w.file.Close()
}

// ReadJSONL reads a JSON Lines record file, plain or snappy framed. Blank
// lines are skipped; a malformed line fails the read with its line number.
func ReadJSONL(path string) ([]types.InvocationRecord, error) {
	format, err := DetectFormat(path)
	if err != nil {
		return nil, err
	}
	if format != FormatJSONL && format != FormatJSONLSnappy {
		return nil, fmt.Errorf("%w: %s is not a JSON Lines file", ErrUnsupportedFormat, path)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer f.Close()

	var src io.Reader = f
	if format == FormatJSONLSnappy {
		src = snappy.NewReader(f)
	}
	return DecodeJSONL(src)
}

// DecodeJSONL decodes records from r.
func DecodeJSONL(r io.Reader) ([]types.InvocationRecord, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)

	var out []types.InvocationRecord
	line := 0
	for scanner.Scan() {
		line++
		data := scanner.Bytes()
		if len(data) == 0 {
			continue
		}
		var rec types.InvocationRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		out = append(out, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read records: %w", err)
	}
	return out, nil
}
