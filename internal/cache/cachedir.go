package cache

import (
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/gofrs/flock"

	"github.com/openmined/syftcache/internal/utils"
)

const (
	metadataDir = ".syftcache"
	lockFile    = "syftcache.lock"
	journalFile = "journal.json"
)

// CacheDir owns the local directory holding cached resource files. Entries
// live flat in the root named by file name only; the journal and the process
// lock live in a metadata dot-dir.
type CacheDir struct {
	Root        string
	MetadataDir string

	flock *flock.Flock
}

// OpenCacheDir resolves and creates the cache directory and acquires its
// process lock. Two processes must not share one cache dir: entry writes are
// atomic per file, but the journal would be overwritten wholesale.
func OpenCacheDir(rootDir string) (*CacheDir, error) {
	root, err := utils.ResolvePath(rootDir)
	if err != nil {
		return nil, fmt.Errorf("resolve cache dir %s: %w", rootDir, err)
	}

	metaDir := filepath.Join(root, metadataDir)
	if err := utils.EnsureDir(metaDir); err != nil {
		return nil, fmt.Errorf("create cache dir %s: %w", metaDir, err)
	}

	lock := flock.New(filepath.Join(metaDir, lockFile))
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("lock cache dir: %w", err)
	}
	if !locked {
		return nil, ErrCacheLocked
	}

	slog.Debug("cache dir opened", "root", root)
	return &CacheDir{
		Root:        root,
		MetadataDir: metaDir,
		flock:       lock,
	}, nil
}

// Close releases the process lock.
func (c *CacheDir) Close() error {
	if !c.flock.Locked() {
		return nil
	}
	return c.flock.Unlock()
}

// EntryPath returns the local path for a cached file name.
func (c *CacheDir) EntryPath(name string) string {
	return filepath.Join(c.Root, name)
}

// JournalPath returns the path of the durable journal blob.
func (c *CacheDir) JournalPath() string {
	return filepath.Join(c.MetadataDir, journalFile)
}
