// Package csvtable stores a single table as a delimited text file with a header row.
//
// Every read loads the whole file and every write replaces it. Access to a given
// path is serialized by a process-wide mutex, so load-modify-persist cycles in one
// process never interleave. Nothing coordinates separate processes.
package csvtable

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"sync"
)

// ErrCorruptRecord is returned when the file does not match the declared schema.
var ErrCorruptRecord = errors.New("corrupt record")

// CorruptRecordError locates a malformed row. Line is 1-based and counts the header.
type CorruptRecordError struct {
	Path   string
	Line   int
	Reason string
}

func (e *CorruptRecordError) Error() string {
	return fmt.Sprintf("%s:%d: corrupt record: %s", e.Path, e.Line, e.Reason)
}

// Unwrap lets errors.Is match ErrCorruptRecord.
func (e *CorruptRecordError) Unwrap() error {
	return ErrCorruptRecord
}

// Corrupt builds a CorruptRecordError for callers that validate field contents.
func Corrupt(path string, line int, format string, args ...any) error {
	return &CorruptRecordError{Path: path, Line: line, Reason: fmt.Sprintf(format, args...)}
}

var locks sync.Map // absolute path -> *sync.Mutex

func lockFor(path string) *sync.Mutex {
	mu, _ := locks.LoadOrStore(path, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// Table is a handle on one delimited file.
type Table struct {
	path   string
	header []string
	mu     *sync.Mutex
}

// Open returns a Table for path, creating the file with only the header if it does not exist.
func Open(path string, header []string) (*Table, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", path, err)
	}
	t := &Table{path: abs, header: slices.Clone(header), mu: lockFor(abs)}

	t.mu.Lock()
	defer t.mu.Unlock()
	if _, err := os.Stat(abs); errors.Is(err, os.ErrNotExist) {
		if err := t.write(nil); err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, fmt.Errorf("stat %s: %w", abs, err)
	}
	return t, nil
}

// Path returns the absolute file path.
func (t *Table) Path() string {
	return t.path
}

// Read returns every data row.
func (t *Table) Read() ([][]string, error) {
	var rows [][]string
	err := t.View(func(r [][]string) error {
		rows = r
		return nil
	})
	return rows, err
}

// View loads the table under the lock and passes the rows to fn.
func (t *Table) View(fn func(rows [][]string) error) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	rows, err := t.read()
	if err != nil {
		return err
	}
	return fn(rows)
}

// Update loads the table, applies fn and writes the result back, all under the lock.
// If fn returns an error nothing is written.
func (t *Table) Update(fn func(rows [][]string) ([][]string, error)) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	rows, err := t.read()
	if err != nil {
		return err
	}
	rows, err = fn(rows)
	if err != nil {
		return err
	}
	return t.write(rows)
}

// Write replaces the table contents with rows.
func (t *Table) Write(rows [][]string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.write(rows)
}

func (t *Table) read() ([][]string, error) {
	f, err := os.Open(t.path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", t.path, err)
	}
	defer f.Close()

	return Parse(f, t.path, t.header)
}

// Parse reads a header row matching header followed by data rows.
// name is only used in error messages.
func Parse(r io.Reader, name string, header []string) ([][]string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	got, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, Corrupt(name, 1, "missing header")
	}
	if err != nil {
		return nil, parseError(name, err)
	}
	if !slices.Equal(got, header) {
		return nil, Corrupt(name, 1, "header %v, want %v", got, header)
	}

	var rows [][]string
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return rows, nil
		}
		if err != nil {
			return nil, parseError(name, err)
		}
		if len(rec) != len(header) {
			line, _ := cr.FieldPos(0)
			return nil, Corrupt(name, line, "%d fields, want %d", len(rec), len(header))
		}
		rows = append(rows, rec)
	}
}

func parseError(name string, err error) error {
	var pe *csv.ParseError
	if errors.As(err, &pe) {
		return Corrupt(name, pe.StartLine, "%v", pe.Err)
	}
	return fmt.Errorf("read %s: %w", name, err)
}

// Encode writes header and rows to w.
func Encode(w io.Writer, header []string, rows [][]string) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return err
	}
	if err := cw.WriteAll(rows); err != nil {
		return err
	}
	return cw.Error()
}

// write replaces the file via a temp file in the same directory so a reader
// never sees a partially written table.
func (t *Table) write(rows [][]string) error {
	return WriteFile(t.path, t.header, rows)
}

// WriteFile atomically replaces path with header and rows.
func WriteFile(path string, header []string, rows [][]string) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	if err = Encode(tmp, header, rows); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("sync %s: %w", path, err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}
