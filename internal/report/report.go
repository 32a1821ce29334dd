// Package report appends a human readable summary of every completed run to
// a text file.
package report

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/copyleftdev/blackopt/internal/errors"
	"github.com/copyleftdev/blackopt/internal/optimization/vector"
)

// DefaultPath is where reports go when no path is configured
const DefaultPath = "optimization_report.txt"

const rule = "======================================================================"

// Record is the immutable summary of one completed run
type Record struct {
	Method      string
	Evaluator   string
	Direction   string
	Initial     vector.Vector
	Final       vector.Vector
	BestScore   float64
	Elapsed     time.Duration
	Evaluations int
	Termination string
}

// Format renders rec as a report block, starting with a blank line
func Format(rec Record) string {
	var b strings.Builder
	b.WriteString("\n" + rule + "\n")
	fmt.Fprintf(&b, " Method: %s\n", rec.Method)
	fmt.Fprintf(&b, " Evaluator: %s\n", rec.Evaluator)
	fmt.Fprintf(&b, " Elapsed: %.3f seconds\n", rec.Elapsed.Seconds())
	fmt.Fprintf(&b, " Total evaluations: %d\n", rec.Evaluations)
	b.WriteString("\nInitial parameters:\n")
	b.WriteString("  " + rec.Initial.String() + "\n")
	b.WriteString("\nBest configuration found:\n")
	b.WriteString("  " + rec.Final.String() + "\n")
	fmt.Fprintf(&b, "\nBest score: %.6f\n", rec.BestScore)
	b.WriteString(rule + "\n")
	return b.String()
}

// Write writes the block for rec to w in a single call
func Write(w io.Writer, rec Record) error {
	_, err := io.WriteString(w, Format(rec))
	return err
}

// Writer appends records to a file. It is safe for concurrent use; blocks
// from concurrent runs never interleave.
type Writer struct {
	path string
	mu   sync.Mutex
}

// NewWriter returns a writer for path. The file is created on first append.
func NewWriter(path string) *Writer {
	if path == "" {
		path = DefaultPath
	}
	return &Writer{path: path}
}

// Path returns the report file path
func (w *Writer) Path() string {
	return w.path
}

// Append adds the block for rec to the end of the file
func (w *Writer) Append(rec Record) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if dir := filepath.Dir(w.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.Wrap(err, "create report directory").WithComponent("report").WithOperation("append")
		}
	}

	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return errors.Wrap(err, "open report").WithComponent("report").WithOperation("append")
	}

	if err := Write(f, rec); err != nil {
		f.Close()
		return errors.Wrap(err, "write report").WithComponent("report").WithOperation("append")
	}
	if err := f.Close(); err != nil {
		return errors.Wrap(err, "close report").WithComponent("report").WithOperation("append")
	}
	return nil
}
