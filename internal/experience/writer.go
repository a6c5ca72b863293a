package experience

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

// WriterStats contains statistics about written transitions
type WriterStats struct {
	TotalWritten  int64
	BytesWritten  int64
	WriteErrors   int64
	LastWriteTime time.Time
}

// Writer appends transitions as protojson lines
type Writer struct {
	mu     sync.Mutex
	out    *bufio.Writer
	closer io.Closer
	stats  WriterStats
	logger zerolog.Logger
}

// NewWriter writes to w; Close flushes but does not close w.
func NewWriter(w io.Writer, logger zerolog.Logger) *Writer {
	return &Writer{
		out:    bufio.NewWriter(w),
		logger: logger.With().Str("component", "experience_writer").Logger(),
	}
}

// OpenFile appends to the file at path, creating it and its directory.
func OpenFile(path string, logger zerolog.Logger) (*Writer, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create export directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open export file: %w", err)
	}
	w := NewWriter(f, logger)
	w.closer = f
	return w, nil
}

// Write appends transitions, one JSON object per line.
func (w *Writer) Write(transitions []Transition) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	for _, t := range transitions {
		s, err := t.Struct()
		if err != nil {
			w.stats.WriteErrors++
			return fmt.Errorf("failed to convert transition: %w", err)
		}
		data, err := protojson.Marshal(s)
		if err != nil {
			w.stats.WriteErrors++
			return fmt.Errorf("failed to marshal transition: %w", err)
		}
		n, err := w.out.Write(append(data, '\n'))
		if err != nil {
			w.stats.WriteErrors++
			return fmt.Errorf("failed to write transition: %w", err)
		}
		w.stats.TotalWritten++
		w.stats.BytesWritten += int64(n)
	}
	w.stats.LastWriteTime = time.Now()
	return nil
}

// Flush writes buffered lines to the underlying writer.
func (w *Writer) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.out.Flush()
}

// Close flushes and closes the file opened by OpenFile.
func (w *Writer) Close() error {
	if err := w.Flush(); err != nil {
		return err
	}
	w.logger.Debug().Int64("written", w.Stats().TotalWritten).Msg("Experience writer closed")
	if w.closer != nil {
		return w.closer.Close()
	}
	return nil
}

// Stats returns a snapshot of writer statistics.
func (w *Writer) Stats() WriterStats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stats
}

// ReadAll parses every line written by a Writer.
func ReadAll(r io.Reader) ([]Transition, error) {
	var out []Transition
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for line := 1; scanner.Scan(); line++ {
		if len(scanner.Bytes()) == 0 {
			continue
		}
		s := &structpb.Struct{}
		if err := protojson.Unmarshal(scanner.Bytes(), s); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		t, err := FromStruct(s)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		out = append(out, t)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read transitions: %w", err)
	}
	return out, nil
}
