// Package cache memoizes the external calls of pipeline stages. Entries are
// content addressed: the key is a hash of the stage name and a canonical
// serialization of the stage's semantic inputs, so a changed input simply
// misses. Entries are never invalidated, evicted or expired.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/vk/langforge/internal/ctxlog"
)

// ErrNotFound is returned by a Backend when no entry exists for a key.
var ErrNotFound = errors.New("cache entry not found")

// Entry is a single memoized stage output.
type Entry struct {
	Stage     string          `json:"stage"`
	InputHash string          `json:"input_hash"`
	Input     json.RawMessage `json:"input"`
	Output    string          `json:"output"`
	Timestamp time.Time       `json:"timestamp"`
}

// Backend persists entries keyed by (stage, input hash).
type Backend interface {
	Load(ctx context.Context, stage, hash string) (*Entry, error)
	Save(ctx context.Context, e *Entry) error
	Close() error
}

// Options is constructed once at process start and handed to New. Stages
// never consult cache toggles themselves.
type Options struct {
	Dir   string
	Read  bool
	Write bool
	// Backend selects the storage engine: "fs" (default) or "sqlite".
	Backend string
}

// Store is the cache front used by stages. A nil *Store behaves as a
// disabled cache.
type Store struct {
	opts    Options
	backend Backend
	now     func() time.Time
}

// New opens the configured backend. When neither reads nor writes are
// enabled no storage is touched.
func New(opts Options) (*Store, error) {
	if !opts.Read && !opts.Write {
		return &Store{opts: opts, now: time.Now}, nil
	}
	if opts.Dir == "" {
		return nil, errors.New("cache directory must not be empty")
	}

	var (
		backend Backend
		err     error
	)
	switch opts.Backend {
	case "", "fs":
		backend, err = NewFSBackend(opts.Dir)
	case "sqlite":
		backend, err = NewSQLiteBackend(opts.Dir)
	default:
		return nil, fmt.Errorf("unknown cache backend %q: must be 'fs' or 'sqlite'", opts.Backend)
	}
	if err != nil {
		return nil, err
	}
	return NewWithBackend(opts, backend), nil
}

// NewWithBackend wraps an already opened backend.
func NewWithBackend(opts Options, backend Backend) *Store {
	return &Store{opts: opts, backend: backend, now: time.Now}
}

// Key derives the content address of input for stage. The input is
// serialized canonically: object keys are always sorted, so maps and
// structs holding the same fields and values hash identically. Slice order
// is significant.
func Key(stage string, input any) (string, []byte, error) {
	canonical, err := canonicalJSON(input)
	if err != nil {
		return "", nil, fmt.Errorf("failed to serialize %s cache input: %w", stage, err)
	}
	h := sha256.New()
	h.Write([]byte(stage))
	h.Write([]byte{0})
	h.Write(canonical)
	return hex.EncodeToString(h.Sum(nil)), canonical, nil
}

// canonicalJSON round-trips v through generic JSON values. encoding/json
// writes map keys in sorted order, which makes the result independent of
// struct field order and map insertion order.
func canonicalJSON(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, err
	}
	return json.Marshal(generic)
}

// Get returns the memoized output for input, if any. Any storage failure is
// reported as a miss.
func (s *Store) Get(ctx context.Context, stage string, input any) (*Entry, bool) {
	if s == nil || !s.opts.Read || s.backend == nil {
		return nil, false
	}
	logger := ctxlog.FromContext(ctx).With("cache_stage", stage)

	hash, _, err := Key(stage, input)
	if err != nil {
		logger.Debug("Cache key derivation failed, treating as miss.", "error", err)
		return nil, false
	}
	entry, err := s.backend.Load(ctx, stage, hash)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			logger.Debug("Cache read failed, treating as miss.", "hash", hash, "error", err)
		}
		return nil, false
	}
	logger.Debug("Cache hit.", "hash", hash)
	return entry, true
}

// Put memoizes output for input. Failures are logged and swallowed.
func (s *Store) Put(ctx context.Context, stage string, input any, output string) {
	if s == nil || !s.opts.Write || s.backend == nil {
		return
	}
	logger := ctxlog.FromContext(ctx).With("cache_stage", stage)

	hash, canonical, err := Key(stage, input)
	if err != nil {
		logger.Warn("Cache key derivation failed, entry not stored.", "error", err)
		return
	}
	entry := &Entry{
		Stage:     stage,
		InputHash: hash,
		Input:     canonical,
		Output:    output,
		Timestamp: s.now().UTC(),
	}
	if err := s.backend.Save(ctx, entry); err != nil {
		logger.Warn("Cache write failed, continuing without it.", "hash", hash, "error", err)
		return
	}
	logger.Debug("Cache entry stored.", "hash", hash)
}

// Close releases the backend.
func (s *Store) Close() error {
	if s == nil || s.backend == nil {
		return nil
	}
	return s.backend.Close()
}
