// Package store owns the persisted work records and their image assets.
//
// Records live in a single JSON array file that is always replaced as a
// whole; assets are immutable files in one directory. Every mutating
// operation and every full read takes the same process-wide mutex, so a
// read-modify-write append can never lose a concurrent append. Running more
// than one process against the same files needs an external lock, which this
// package does not provide.
package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	apperrors "lhtl/internal/errors"
	"lhtl/internal/logging"
	"lhtl/internal/works"
)

// Observer receives timing for store operations.
type Observer interface {
	ObserveStoreOp(op string, duration time.Duration, err error)
}

// Config locates the record file and the asset directory.
type Config struct {
	DataFile string
	AssetDir string
}

// Option customises a Store.
type Option func(*Store)

// WithLogger overrides the component logger.
func WithLogger(logger logging.Logger) Option {
	return func(s *Store) {
		s.logger = logging.OrNop(logger)
	}
}

// WithObserver attaches an operation observer.
func WithObserver(observer Observer) Option {
	return func(s *Store) {
		s.observer = observer
	}
}

// Store is the Content Store.
type Store struct {
	mu       sync.Mutex
	dataFile string
	assets   *AssetStore
	logger   logging.Logger
	observer Observer

	rename   func(oldpath, newpath string) error
	readFile func(name string) ([]byte, error)
	now      func() time.Time
}

// New prepares the data directory and asset root.
func New(cfg Config, opts ...Option) (*Store, error) {
	s := &Store{
		logger: logging.NewComponentLogger("ContentStore"),
		rename:   os.Rename,
		readFile: os.ReadFile,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	dataFile := strings.TrimSpace(cfg.DataFile)
	if dataFile == "" {
		return nil, fmt.Errorf("store: data file is required")
	}
	dir, err := prepareDir(filepath.Dir(dataFile))
	if err != nil {
		return nil, fmt.Errorf("store: %w", err)
	}
	s.dataFile = filepath.Join(dir, filepath.Base(dataFile))

	assets, err := NewAssetStore(cfg.AssetDir, s.logger)
	if err != nil {
		return nil, err
	}
	s.assets = assets
	return s, nil
}

// DataFile returns the absolute path of the record file.
func (s *Store) DataFile() string {
	return s.dataFile
}

// Assets exposes the underlying asset store.
func (s *Store) Assets() *AssetStore {
	return s.assets
}

// LoadAll returns the stored collection. A missing file is an empty
// collection. An unreadable or undecodable file is also returned as empty,
// together with a *errors.CorruptStoreError the caller should log; it is a
// warning, not a failure.
func (s *Store) LoadAll(ctx context.Context) ([]works.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked()
}

// SaveAll atomically replaces the stored collection. On failure the previous
// collection stays visible and a *errors.PersistError is returned.
func (s *Store) SaveAll(ctx context.Context, records []works.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked(records)
}

// Append adds rec to the end of the collection in one locked
// read-modify-write. A record file that was read but does not decode is
// moved aside first so its bytes are not overwritten. A file that cannot be
// read is left alone and the append fails with *errors.PersistError.
func (s *Store) Append(ctx context.Context, rec works.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	data, err := s.readLocked()
	if err != nil {
		s.observe("load", start, err)
		return &apperrors.PersistError{Op: "read records", Err: err}
	}
	records, err := s.decode(data)
	s.observe("load", start, err)
	if err != nil {
		s.logger.Warn("%v", err)
		if qerr := s.quarantineLocked(); qerr != nil {
			return &apperrors.PersistError{Op: "quarantine corrupt store", Err: qerr}
		}
	}
	return s.saveLocked(append(records, rec))
}

// PutAsset stores data as a new asset and returns its filename.
func (s *Store) PutAsset(ctx context.Context, data []byte, role, ext string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	name, err := s.assets.Put(ctx, data, role, ext)
	s.observe("put_asset", start, err)
	return name, err
}

// RemoveAsset deletes an asset on a best-effort basis.
func (s *Store) RemoveAsset(filename string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	s.assets.Remove(filename)
	s.observe("remove_asset", start, nil)
}

// ResolveAsset maps filename to a path confined to the asset root.
func (s *Store) ResolveAsset(filename string) (string, error) {
	return s.assets.Resolve(filename)
}

func (s *Store) loadLocked() (records []works.Record, err error) {
	start := time.Now()
	defer func() { s.observe("load", start, err) }()

	data, err := s.readLocked()
	if err != nil {
		return []works.Record{}, &apperrors.CorruptStoreError{Path: s.dataFile, Err: err}
	}
	return s.decode(data)
}

// readLocked returns the raw record file; a missing file reads as empty.
func (s *Store) readLocked() ([]byte, error) {
	data, err := s.readFile(s.dataFile)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	return data, err
}

func (s *Store) decode(data []byte) ([]works.Record, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return []works.Record{}, nil
	}

	var entries []json.RawMessage
	if err := json.Unmarshal(data, &entries); err != nil {
		return []works.Record{}, &apperrors.CorruptStoreError{Path: s.dataFile, Err: err}
	}

	records := make([]works.Record, 0, len(entries))
	for _, entry := range entries {
		records = append(records, works.DecodeRecord(entry))
	}
	return records, nil
}

func (s *Store) saveLocked(records []works.Record) (err error) {
	start := time.Now()
	defer func() { s.observe("save", start, err) }()

	if records == nil {
		records = []works.Record{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(records); err != nil {
		return &apperrors.PersistError{Op: "encode records", Err: err}
	}

	if err := writeFileAtomic(filepath.Dir(s.dataFile), filepath.Base(s.dataFile), buf.Bytes(), s.rename); err != nil {
		return &apperrors.PersistError{Op: "save records", Err: err}
	}
	s.logger.Debug("Saved %d records to %s", len(records), s.dataFile)
	return nil
}

func (s *Store) quarantineLocked() error {
	target := fmt.Sprintf("%s.corrupt-%d", s.dataFile, s.now().Unix())
	if err := os.Rename(s.dataFile, target); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}
	s.logger.Warn("Moved unreadable record store aside to %s", target)
	return nil
}

func (s *Store) observe(op string, start time.Time, err error) {
	if s.observer == nil {
		return
	}
	s.observer.ObserveStoreOp(op, time.Since(start), err)
}
