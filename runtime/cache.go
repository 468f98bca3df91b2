package runtime

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/pithecene-io/scriptrun/types"
)

// indexFile is the msgpack-encoded cache index inside the cache directory.
const indexFile = "index.msgpack"

// CacheEntry describes one cached snippet file.
type CacheEntry struct {
	Hash      string         `msgpack:"hash" json:"hash"`
	Language  types.Language `msgpack:"language" json:"language"`
	Size      int64          `msgpack:"size" json:"size"`
	Hits      int64          `msgpack:"hits" json:"hits"`
	CreatedAt time.Time      `msgpack:"created_at" json:"created_at"`
	LastUsed  time.Time      `msgpack:"last_used" json:"last_used"`
}

// SnippetCache stores snippet bodies on disk keyed by content hash so
// repeated executions reuse the same file.
type SnippetCache struct {
	dir string
	mu  sync.Mutex
	now func() time.Time
}

// NewSnippetCache creates a cache rooted at dir.
func NewSnippetCache(dir string) *SnippetCache {
	return &SnippetCache{dir: dir, now: time.Now}
}

// DefaultCacheDir returns the per-user cache directory.
func DefaultCacheDir() string {
	base, err := os.UserCacheDir()
	if err != nil {
		base = os.TempDir()
	}
	return filepath.Join(base, "scriptrun", "snippets")
}

// Dir returns the cache directory.
func (c *SnippetCache) Dir() string {
	return c.dir
}

// Hash returns the content hash used as the cache key.
func Hash(snippet types.Snippet) string {
	sum := sha256.Sum256([]byte(string(snippet.Language) + "\x00" + snippet.Body))
	return hex.EncodeToString(sum[:])
}

// Put ensures the snippet body is on disk and returns its path and whether
// it was already cached.
func (c *SnippetCache) Put(snippet types.Snippet) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return "", false, fmt.Errorf("failed to create cache directory: %w", err)
	}

	hash := Hash(snippet)
	path := filepath.Join(c.dir, hash+snippet.Language.Extension())

	index, err := c.readIndex()
	if err != nil {
		return "", false, err
	}

	now := c.now().UTC()
	entry, known := index[hash]
	info, statErr := os.Stat(path)
	hit := known && statErr == nil && info.Size() == int64(len(snippet.Body))

	if !hit {
		if err := writeFileAtomic(path, []byte(snippet.Body)); err != nil {
			return "", false, fmt.Errorf("failed to write snippet: %w", err)
		}
		entry = CacheEntry{
			Hash:      hash,
			Language:  snippet.Language,
			Size:      int64(len(snippet.Body)),
			CreatedAt: now,
		}
	}
	entry.Hits++
	entry.LastUsed = now
	index[hash] = entry

	if err := c.writeIndex(index); err != nil {
		return "", false, err
	}
	return path, hit, nil
}

// List returns all entries, most recently used first.
func (c *SnippetCache) List() ([]CacheEntry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	index, err := c.readIndex()
	if err != nil {
		return nil, err
	}
	entries := make([]CacheEntry, 0, len(index))
	for _, e := range index {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].LastUsed.Equal(entries[j].LastUsed) {
			return entries[i].Hash < entries[j].Hash
		}
		return entries[i].LastUsed.After(entries[j].LastUsed)
	})
	return entries, nil
}

// Clear removes cached snippets. An empty language clears everything.
// Returns the number of entries removed.
func (c *SnippetCache) Clear(lang types.Language) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	index, err := c.readIndex()
	if err != nil {
		return 0, err
	}

	removed := 0
	for hash, e := range index {
		if lang != "" && e.Language != lang {
			continue
		}
		matches, _ := filepath.Glob(filepath.Join(c.dir, hash+"*"))
		for _, m := range matches {
			if err := os.Remove(m); err != nil && !errors.Is(err, os.ErrNotExist) {
				return removed, fmt.Errorf("failed to remove %s: %w", m, err)
			}
		}
		delete(index, hash)
		removed++
	}

	if err := c.writeIndex(index); err != nil {
		return removed, err
	}
	return removed, nil
}

func (c *SnippetCache) readIndex() (map[string]CacheEntry, error) {
	data, err := os.ReadFile(filepath.Join(c.dir, indexFile))
	if errors.Is(err, os.ErrNotExist) {
		return make(map[string]CacheEntry), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read cache index: %w", err)
	}
	index := make(map[string]CacheEntry)
	if err := msgpack.Unmarshal(data, &index); err != nil {
		// A corrupt index is rebuilt from scratch; snippet files are
		// rewritten on their next use.
		return make(map[string]CacheEntry), nil
	}
	return index, nil
}

func (c *SnippetCache) writeIndex(index map[string]CacheEntry) error {
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}
	data, err := msgpack.Marshal(index)
	if err != nil {
		return fmt.Errorf("failed to encode cache index: %w", err)
	}
	return writeFileAtomic(filepath.Join(c.dir, indexFile), data)
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+strings.TrimPrefix(filepath.Base(path), ".")+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, path)
}
