// Package dataset manages the append-only CSV files that hold exported telemetry.
//
// A dataset's columns are fixed by its first write. Later records are aligned to that header:
// unknown fields are dropped and missing fields are written empty. Maintenance operations
// (Deduplicate, NormalizeTimestamps) rewrite a dataset through a temporary file that replaces
// the original only once it is complete.
//
// All operations assume a single writer per data directory; no file locking is done.
package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/itarang/telematics-exporter/internal/record"
)

// Writer appends records to datasets in a directory.
type Writer struct {
	dir     string
	headers map[string][]string
}

// NewWriter returns a writer for datasets stored in dir.
func NewWriter(dir string) *Writer {
	return &Writer{
		dir:     dir,
		headers: make(map[string][]string),
	}
}

// Path returns the file path of the named dataset.
func (w *Writer) Path(name string) string {
	return filepath.Join(w.dir, name)
}

// Append writes one row per record to the named dataset and returns the number of rows written.
// A new dataset takes its header from the key order of the first record.
func (w *Writer) Append(name string, records ...*record.Record) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}
	path := w.Path(name)

	header, exists, err := w.header(name, path)
	if err != nil {
		return 0, err
	}
	if !exists {
		header = records[0].Keys()
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return 0, fmt.Errorf("failed to open dataset %s: %w", name, err)
	}
	defer f.Close() //nolint:errcheck // closed explicitly below

	cw := csv.NewWriter(f)
	if !exists {
		if err := cw.Write(header); err != nil {
			return 0, fmt.Errorf("failed to write header of %s: %w", name, err)
		}
	}
	for _, rec := range records {
		if err := cw.Write(rec.Row(header)); err != nil {
			return 0, fmt.Errorf("failed to write row to %s: %w", name, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return 0, fmt.Errorf("failed to flush %s: %w", name, err)
	}
	if err := f.Close(); err != nil {
		return 0, fmt.Errorf("failed to close dataset %s: %w", name, err)
	}

	w.headers[name] = header
	return len(records), nil
}

// header returns the established header of a dataset. Only the first line of an existing file
// is read, and only once per writer. A file without a header reports exists=false.
func (w *Writer) header(name, path string) ([]string, bool, error) {
	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		delete(w.headers, name)
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to stat dataset %s: %w", name, err)
	}
	if info.Size() == 0 {
		return nil, false, nil
	}
	if header, ok := w.headers[name]; ok {
		return header, true, nil
	}

	header, err := ReadHeader(path)
	if err != nil {
		return nil, false, err
	}
	if len(header) == 0 {
		// Blank lines only: the next record establishes the header.
		return nil, false, nil
	}
	w.headers[name] = header
	return header, true, nil
}

// ReadHeader returns the column names of the dataset at path.
func ReadHeader(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open dataset: %w", err)
	}
	defer f.Close() //nolint:errcheck // read only

	header, err := newReader(f).Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read header of %s: %w", path, err)
	}
	return header, nil
}

func newReader(r io.Reader) *csv.Reader {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	return cr
}
