// Package checkpoint persists the agent population between runs as a
// directory of compressed newline-delimited records plus run metadata.
package checkpoint

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

var (
	// ErrNothingToLoad is returned by Load when no checkpoint exists.
	ErrNothingToLoad = errors.New("no checkpoint to load")
	// ErrCorrupt means a checkpoint directory does not hold exactly one
	// agent file and one metadata file, or a file cannot be parsed.
	ErrCorrupt = errors.New("corrupt checkpoint")
)

const (
	// DefaultRetention is how many checkpoint directories are kept.
	DefaultRetention = 5

	dirPrefix    = "ckpt_"
	agentsBase   = "agents.jsonl"
	metadataFile = "metadata.jsonl"
	clockLayout  = "20060102T150405.000"
)

// Metadata describes one completed run.
type Metadata struct {
	RunID         string         `json:"run_id"`
	StartDate     string         `json:"start_date"`
	FinishDate    string         `json:"finish_date"`
	DaysSimulated int            `json:"days_simulated"`
	Seed          int64          `json:"seed"`
	SavedAt       time.Time      `json:"saved_at"`
	Counts        map[string]int `json:"counts,omitempty"`
}

// Snapshot is a loaded checkpoint.
type Snapshot struct {
	Dir     string
	Records [][]byte
	// Metadata is the history entry with the latest finish date.
	Metadata Metadata
	History  []Metadata
}

// Option configures a Store.
type Option func(*Store)

// WithCodec sets the compression used for new checkpoints.
func WithCodec(c Codec) Option { return func(s *Store) { s.codec = c } }

// WithRetention sets how many checkpoint directories survive a save.
func WithRetention(n int) Option { return func(s *Store) { s.retain = n } }

// WithClock replaces the wall clock used to name directories.
func WithClock(now func() time.Time) Option { return func(s *Store) { s.now = now } }

// Store reads and writes checkpoints under one root directory. It is not
// safe for concurrent runs against the same root.
type Store struct {
	root   string
	codec  Codec
	retain int
	now    func() time.Time
}

// New returns a store rooted at root, creating the directory if needed.
func New(root string, opts ...Option) (*Store, error) {
	s := &Store{root: root, codec: Zstd{}, retain: DefaultRetention, now: time.Now}
	for _, o := range opts {
		o(s)
	}
	if s.retain < 1 {
		return nil, fmt.Errorf("checkpoint retention must be positive, got %d", s.retain)
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("creating checkpoint root: %w", err)
	}
	return s, nil
}

// Root returns the checkpoint root directory.
func (s *Store) Root() string { return s.root }

// List returns checkpoint directory names, oldest first. Names sort by
// simulated finish date, then by wall-clock save time.
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() && strings.HasPrefix(e.Name(), dirPrefix) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// Save writes records and meta as a new checkpoint, then prunes old
// directories and verifies every retained one. The new metadata file holds
// the previous checkpoint's history followed by meta.
func (s *Store) Save(ctx context.Context, records [][]byte, meta Metadata) (string, error) {
	if meta.FinishDate == "" {
		return "", errors.New("checkpoint metadata needs a finish date")
	}
	if meta.SavedAt.IsZero() {
		meta.SavedAt = s.now().UTC()
	}
	history, err := s.latestHistory()
	if err != nil && !errors.Is(err, ErrNothingToLoad) {
		return "", err
	}
	history = append(history, meta)

	name := dirPrefix + meta.FinishDate + "_" + s.now().UTC().Format(clockLayout)
	tmp := filepath.Join(s.root, "."+name+".tmp")
	if err := os.MkdirAll(tmp, 0o755); err != nil {
		return "", err
	}
	if err := s.writeAgents(ctx, filepath.Join(tmp, agentsBase+"."+s.codec.Extension()), records); err != nil {
		os.RemoveAll(tmp)
		return "", err
	}
	if err := writeMetadata(filepath.Join(tmp, metadataFile), history); err != nil {
		os.RemoveAll(tmp)
		return "", err
	}
	dir := filepath.Join(s.root, name)
	if err := os.Rename(tmp, dir); err != nil {
		os.RemoveAll(tmp)
		return "", fmt.Errorf("publishing checkpoint: %w", err)
	}
	logrus.WithFields(logrus.Fields{
		"dir":     name,
		"agents":  len(records),
		"run_id":  meta.RunID,
		"finish":  meta.FinishDate,
		"history": len(history),
	}).Info("checkpoint saved")

	if err := s.prune(); err != nil {
		return dir, err
	}
	return dir, s.Verify()
}

func (s *Store) writeAgents(ctx context.Context, path string, records [][]byte) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	w, err := s.codec.Writer(f)
	if err != nil {
		return fmt.Errorf("creating compressor: %w", err)
	}
	buf := bufio.NewWriter(w)
	for i, r := range records {
		if i%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		if bytes.IndexByte(r, '\n') >= 0 {
			return fmt.Errorf("agent record %d spans lines", i)
		}
		buf.Write(r)
		buf.WriteByte('\n')
	}
	if err := buf.Flush(); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return f.Close()
}

func writeMetadata(path string, history []Metadata) error {
	var b bytes.Buffer
	enc := json.NewEncoder(&b)
	for _, m := range history {
		if err := enc.Encode(m); err != nil {
			return err
		}
	}
	return os.WriteFile(path, b.Bytes(), 0o644)
}

func (s *Store) prune() error {
	names, err := s.List()
	if err != nil {
		return err
	}
	for len(names) > s.retain {
		old := filepath.Join(s.root, names[0])
		if err := os.RemoveAll(old); err != nil {
			return fmt.Errorf("pruning %s: %w", names[0], err)
		}
		logrus.Debugf("pruned checkpoint %s", names[0])
		names = names[1:]
	}
	return nil
}

// Verify checks that every checkpoint directory holds exactly one agent
// file and one metadata file.
func (s *Store) Verify() error {
	names, err := s.List()
	if err != nil {
		return err
	}
	var errs []error
	for _, name := range names {
		if _, err := locate(filepath.Join(s.root, name)); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// locate returns the agent file of dir.
func locate(dir string) (string, error) {
	agents, err := filepath.Glob(filepath.Join(dir, agentsBase+"*"))
	if err != nil {
		return "", err
	}
	metas, err := filepath.Glob(filepath.Join(dir, "metadata*"))
	if err != nil {
		return "", err
	}
	if len(agents) != 1 || len(metas) != 1 {
		return "", fmt.Errorf("%w: %s has %d agent files and %d metadata files",
			ErrCorrupt, filepath.Base(dir), len(agents), len(metas))
	}
	return agents[0], nil
}

func (s *Store) latest() (string, error) {
	names, err := s.List()
	if err != nil {
		return "", err
	}
	if len(names) == 0 {
		return "", ErrNothingToLoad
	}
	return filepath.Join(s.root, names[len(names)-1]), nil
}

func (s *Store) latestHistory() ([]Metadata, error) {
	dir, err := s.latest()
	if err != nil {
		return nil, err
	}
	return readMetadata(filepath.Join(dir, metadataFile))
}

func readMetadata(path string) ([]Metadata, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	var out []Metadata
	dec := json.NewDecoder(bytes.NewReader(data))
	for {
		var m Metadata
		if err := dec.Decode(&m); err == io.EOF {
			break
		} else if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrCorrupt, path, err)
		}
		out = append(out, m)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: %s is empty", ErrCorrupt, path)
	}
	return out, nil
}

// Metadata returns the newest checkpoint's history and its entry with the
// latest finish date, without reading agent records.
func (s *Store) Metadata() (Metadata, []Metadata, error) {
	history, err := s.latestHistory()
	if err != nil {
		return Metadata{}, nil, err
	}
	return latestFinished(history), history, nil
}

func latestFinished(history []Metadata) Metadata {
	best := history[0]
	for _, m := range history[1:] {
		if m.FinishDate >= best.FinishDate {
			best = m
		}
	}
	return best
}

// Load reads the newest checkpoint. Agent records are returned raw, one
// per line of the agent file.
func (s *Store) Load(ctx context.Context) (*Snapshot, error) {
	dir, err := s.latest()
	if err != nil {
		return nil, err
	}
	path, err := locate(dir)
	if err != nil {
		return nil, err
	}
	history, err := readMetadata(filepath.Join(dir, metadataFile))
	if err != nil {
		return nil, err
	}
	records, err := readAgents(ctx, path)
	if err != nil {
		return nil, err
	}
	snap := &Snapshot{
		Dir:      dir,
		Records:  records,
		Metadata: latestFinished(history),
		History:  history,
	}
	logrus.WithFields(logrus.Fields{
		"dir":    filepath.Base(dir),
		"agents": len(records),
		"finish": snap.Metadata.FinishDate,
	}).Info("checkpoint loaded")
	return snap, nil
}

func readAgents(ctx context.Context, path string) ([][]byte, error) {
	ext := strings.TrimPrefix(filepath.Ext(path), ".")
	codec, ok := codecForExtension(ext)
	if !ok {
		return nil, fmt.Errorf("%w: unknown agent file extension %q", ErrCorrupt, ext)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	r, err := codec.Reader(f)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	defer r.Close()

	var records [][]byte
	br := bufio.NewReader(r)
	for {
		line, err := br.ReadBytes('\n')
		if line = bytes.TrimSpace(line); len(line) > 0 {
			records = append(records, line)
			if len(records)%1024 == 0 {
				if cerr := ctx.Err(); cerr != nil {
					return nil, cerr
				}
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: reading %s: %v", ErrCorrupt, filepath.Base(path), err)
		}
	}
	return records, nil
}
