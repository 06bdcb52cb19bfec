package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

var errCorrupt = errors.New("corrupt cache entry")

// CacheService is a keyed store of small records that outlives a run.
type CacheService[T any] interface {
	Get(key string) (T, bool)
	Put(key string, record T) error
	Key(parts ...any) string
}

type entry struct {
	SavedAt  time.Time       `json:"saved_at"`
	Checksum string          `json:"checksum"`
	Record   json.RawMessage `json:"record"`
}

// FileCache keeps one JSON file per key under <dir>/<key[:2]>/<key>.json.
// Entries older than MaxAge or failing their checksum read as missing. A
// zero MaxAge keeps entries forever.
type FileCache[T any] struct {
	dir    string
	MaxAge time.Duration
	now    func() time.Time
}

func NewFileCache[T any](dir string, maxAge time.Duration) *FileCache[T] {
	return &FileCache[T]{dir: dir, MaxAge: maxAge, now: time.Now}
}

func (fc *FileCache[T]) Dir() string {
	return fc.dir
}

// Key hashes the parts into a hex sha256 key.
func (fc *FileCache[T]) Key(parts ...any) string {
	strs := make([]string, len(parts))
	for i, p := range parts {
		strs[i] = fmt.Sprint(p)
	}
	sum := sha256.Sum256([]byte(strings.Join(strs, "|")))
	return hex.EncodeToString(sum[:])
}

func (fc *FileCache[T]) path(key string) string {
	shard := key
	if len(shard) > 2 {
		shard = shard[:2]
	}
	return filepath.Join(fc.dir, shard, key+".json")
}

func (fc *FileCache[T]) Get(key string) (T, bool) {
	var zero T
	e, err := readEntry(fc.path(key))
	if err != nil || fc.expired(e) {
		return zero, false
	}

	var record T
	if err := json.Unmarshal(e.Record, &record); err != nil {
		return zero, false
	}
	return record, true
}

func (fc *FileCache[T]) Put(key string, record T) error {
	raw, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal cache record: %w", err)
	}
	data, err := json.Marshal(entry{SavedAt: fc.now().UTC(), Checksum: checksum(raw), Record: raw})
	if err != nil {
		return fmt.Errorf("failed to marshal cache entry: %w", err)
	}

	path := fc.path(key)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}

	// Each writer gets its own temp file so concurrent puts of a key never
	// interleave.
	tmp, err := os.CreateTemp(filepath.Dir(path), key+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create cache file: %w", err)
	}
	_, writeErr := tmp.Write(data)
	closeErr := tmp.Close()
	if err := errors.Join(writeErr, closeErr); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write cache file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to store cache entry: %w", err)
	}
	return nil
}

func (fc *FileCache[T]) Delete(key string) error {
	if err := os.Remove(fc.path(key)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete cache entry: %w", err)
	}
	return nil
}

// Prune removes expired, corrupt and abandoned temp files and returns how
// many files were removed. A missing cache directory is not an error.
func (fc *FileCache[T]) Prune() (int, error) {
	removed := 0
	err := filepath.WalkDir(fc.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if d.IsDir() {
			return nil
		}

		stale := strings.HasSuffix(path, ".tmp")
		if !stale && strings.HasSuffix(path, ".json") {
			e, err := readEntry(path)
			stale = err != nil || fc.expired(e)
		}
		if !stale {
			return nil
		}
		if err := os.Remove(path); err != nil {
			return err
		}
		removed++
		return nil
	})
	if err != nil {
		return removed, fmt.Errorf("failed to prune cache %s: %w", fc.dir, err)
	}
	return removed, nil
}

func (fc *FileCache[T]) expired(e entry) bool {
	return fc.MaxAge > 0 && fc.now().Sub(e.SavedAt) > fc.MaxAge
}

func readEntry(path string) (entry, error) {
	var e entry
	data, err := os.ReadFile(path)
	if err != nil {
		return e, err
	}
	if err := json.Unmarshal(data, &e); err != nil {
		return e, fmt.Errorf("%w: %v", errCorrupt, err)
	}
	if e.Checksum != checksum(e.Record) {
		return e, errCorrupt
	}
	return e, nil
}

func checksum(raw []byte) string {
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}
