// Package results persists invocation records: JSON Lines files (optionally
// snappy framed), a SQLite result store, flat CSV and Parquet exports.
// Load reads any of the record encodings back.
//
// Record files are the driver's source of truth. Everything the aggregator
// prints is recomputed from them.
package results

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/ingestbench/ingestbench/pkg/types"
)

var (
	// ErrUnsupportedFormat is returned for inputs with an unknown extension.
	ErrUnsupportedFormat = errors.New("results: unsupported input format")

	// ErrWriterClosed is returned when writing after Close.
	ErrWriterClosed = errors.New("results: writer is closed")
)

// Format identifies a record file encoding.
type Format int

const (
	FormatJSONL Format = iota
	FormatJSONLSnappy
	FormatSQLite
	FormatParquet
)

// DetectFormat maps a path to its format by extension.
func DetectFormat(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jsonl", ".json", ".ndjson":
		return FormatJSONL, nil
	case ".sz":
		return FormatJSONLSnappy, nil
	case ".db", ".sqlite", ".sqlite3":
		return FormatSQLite, nil
	case ".parquet":
		return FormatParquet, nil
	default:
		return 0, fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}
}

// Load reads every record stored at path.
func Load(ctx context.Context, path string) ([]types.InvocationRecord, error) {
	format, err := DetectFormat(path)
	if err != nil {
		return nil, err
	}
	switch format {
	case FormatSQLite:
		store, err := OpenSQLiteStore(path)
		if err != nil {
			return nil, err
		}
		defer store.Close()
		return store.Records(ctx, "")
	case FormatParquet:
		return ReadRecordsParquet(path)
	default:
		return ReadJSONL(path)
	}
}

// LoadAll concatenates the records of several inputs in argument order.
func LoadAll(ctx context.Context, paths []string) ([]types.InvocationRecord, error) {
	var all []types.InvocationRecord
	for _, p := range paths {
		recs, err := Load(ctx, p)
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", p, err)
		}
		all = append(all, recs...)
	}
	return all, nil
}

// Sink receives finished trials. The driver's trial callback feeds one.
type Sink interface {
	WriteTrial(ctx context.Context, trial *types.TrialResult) error
	Close() error
}
