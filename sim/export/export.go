// Package export writes run results as day-partitioned CSV tables. Appends
// are idempotent: a row whose primary key is already in the partition file
// is skipped.
package export

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
)

// Table describes one output table. The first KeyColumns columns form the
// primary key.
type Table struct {
	Name       string
	Header     []string
	KeyColumns int
}

func (t Table) key(row []string) string {
	return strings.Join(row[:t.KeyColumns], "|")
}

// Writer appends tables under a root directory, one sub-directory per day.
type Writer struct {
	root string
}

// NewWriter returns a writer rooted at root.
func NewWriter(root string) (*Writer, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("creating export root: %w", err)
	}
	return &Writer{root: root}, nil
}

// Path returns the file holding partition of t.
func (w *Writer) Path(t Table, partition string) string {
	return filepath.Join(w.root, partition, t.Name+".csv")
}

// Append writes the rows whose key is not yet present in the partition and
// returns how many were written.
func (w *Writer) Append(t Table, partition string, rows [][]string) (int, error) {
	path := w.Path(t, partition)
	seen, exists, err := readKeys(t, path)
	if err != nil {
		return 0, err
	}
	var fresh [][]string
	for _, row := range rows {
		if len(row) != len(t.Header) {
			return 0, fmt.Errorf("%s row has %d columns, want %d", t.Name, len(row), len(t.Header))
		}
		k := t.key(row)
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		fresh = append(fresh, row)
	}
	if len(fresh) == 0 {
		return 0, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return 0, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	cw := csv.NewWriter(f)
	if !exists {
		if err := cw.Write(t.Header); err != nil {
			return 0, err
		}
	}
	if err := cw.WriteAll(fresh); err != nil {
		return 0, fmt.Errorf("writing %s: %w", path, err)
	}
	logrus.Debugf("appended %d rows to %s", len(fresh), path)
	return len(fresh), f.Close()
}

func readKeys(t Table, path string) (map[string]struct{}, bool, error) {
	seen := make(map[string]struct{})
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return seen, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	defer f.Close()
	r := csv.NewReader(f)
	r.FieldsPerRecord = len(t.Header)
	header, err := r.Read()
	if err == io.EOF {
		return seen, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("reading %s: %w", path, err)
	}
	if strings.Join(header, ",") != strings.Join(t.Header, ",") {
		return nil, false, fmt.Errorf("%s has header %v, want %v", path, header, t.Header)
	}
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, false, fmt.Errorf("reading %s: %w", path, err)
		}
		seen[t.key(row)] = struct{}{}
	}
	return seen, true, nil
}
