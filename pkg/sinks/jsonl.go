package sinks

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/gofrs/flock"
	"github.com/oarkflow/json"

	"github.com/oarkflow/hl7/pkg/contracts"
	"github.com/oarkflow/hl7/pkg/utils"
)

// Writer encodes each record as one JSON line on an io.Writer.
type Writer struct {
	mu sync.Mutex
	w  io.Writer
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

func (s *Writer) Setup(_ context.Context) error {
	return nil
}

func (s *Writer) StoreBatch(_ context.Context, batch []utils.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return writeLines(s.w, batch)
}

func (s *Writer) StoreSingle(ctx context.Context, rec utils.Record) error {
	return s.StoreBatch(ctx, []utils.Record{rec})
}

func (s *Writer) Close() error {
	return nil
}

func writeLines(w io.Writer, batch []utils.Record) error {
	bw := bufio.NewWriter(w)
	for _, rec := range batch {
		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("jsonl: encode record: %w", err)
		}
		if _, err := bw.Write(data); err != nil {
			return err
		}
		if err := bw.WriteByte('\n'); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// JSONLines appends records to a file, one JSON document per line. Writes
// take an advisory lock on path+".lock" so several processes can share
// the output file.
type JSONLines struct {
	path     string
	file     *os.File
	fileLock *flock.Flock
	mu       sync.Mutex
}

func NewJSONLines(path string) *JSONLines {
	return &JSONLines{path: path, fileLock: flock.New(path + ".lock")}
}

func (s *JSONLines) Setup(_ context.Context) error {
	f, err := os.OpenFile(s.path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("jsonl: open %s: %w", s.path, err)
	}
	s.file = f
	return nil
}

func (s *JSONLines) StoreBatch(_ context.Context, batch []utils.Record) error {
	if s.file == nil {
		return fmt.Errorf("jsonl: Setup was not called")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fileLock.Lock(); err != nil {
		return fmt.Errorf("jsonl: lock: %w", err)
	}
	defer s.fileLock.Unlock()
	if err := writeLines(s.file, batch); err != nil {
		return err
	}
	return s.file.Sync()
}

func (s *JSONLines) StoreSingle(ctx context.Context, rec utils.Record) error {
	return s.StoreBatch(ctx, []utils.Record{rec})
}

func (s *JSONLines) Close() error {
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}

var (
	_ contracts.Loader = (*Writer)(nil)
	_ contracts.Loader = (*JSONLines)(nil)
)
