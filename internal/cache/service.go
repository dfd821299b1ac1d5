package cache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/dustin/go-humanize"
	"github.com/goccy/go-json"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/errgroup"

	"github.com/openmined/syftcache/internal/blob"
	"github.com/openmined/syftcache/internal/utils"
)

// Strategy selects how remote revision tags are discovered.
type Strategy string

const (
	// StrategyList enumerates the manifest folder in one round trip.
	StrategyList Strategy = "list"
	// StrategyHead issues one metadata request per resource. Same result
	// when tags are present, but N round trips instead of one.
	StrategyHead Strategy = "head"
)

const (
	// DefaultMaxObjectSize caps how many bytes a single fetch may buffer.
	DefaultMaxObjectSize = 1 << 20 // 1 MiB
	// DefaultFetchWorkers bounds concurrent in-flight content fetches.
	DefaultFetchWorkers = 4

	decodedCacheSize = 64
)

// Entry binds a cached file name to its local path and the revision tag it
// was fetched under.
type Entry struct {
	Name string
	ETag string
	Path string
	Size int64
}

type Option func(*Service)

func WithStrategy(strategy Strategy) Option {
	return func(s *Service) { s.strategy = strategy }
}

func WithMaxObjectSize(size int64) Option {
	return func(s *Service) { s.maxObjectSize = size }
}

func WithFetchWorkers(workers int) Option {
	return func(s *Service) { s.fetchWorkers = workers }
}

// WithStrict makes Synchronize report manifest entries that have no remote
// counterpart instead of silently leaving them uncached.
func WithStrict(strict bool) Option {
	return func(s *Service) { s.strict = strict }
}

// Service is a revalidating cache for one manifest's resources. It owns its
// cache directory, journal and in-memory index; callers construct one per
// resource group and pass it around explicitly.
type Service struct {
	client  blob.Client
	dir     *CacheDir
	journal *Journal

	strategy      Strategy
	maxObjectSize int64
	fetchWorkers  int
	strict        bool

	syncMu  sync.Mutex
	index   atomic.Pointer[map[string]*Entry]
	decoded *lru.Cache[string, any]
}

func New(client blob.Client, cacheDir string, opts ...Option) (*Service, error) {
	dir, err := OpenCacheDir(cacheDir)
	if err != nil {
		return nil, err
	}

	decoded, err := lru.New[string, any](decodedCacheSize)
	if err != nil {
		dir.Close()
		return nil, err
	}

	s := &Service{
		client:        client,
		dir:           dir,
		journal:       OpenJournal(dir.JournalPath()),
		strategy:      StrategyList,
		maxObjectSize: DefaultMaxObjectSize,
		fetchWorkers:  DefaultFetchWorkers,
		decoded:       decoded,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Close releases the cache directory lock.
func (s *Service) Close() error {
	return s.dir.Close()
}

// Synchronize reconciles the manifest against remote state. Resources whose
// persisted tag matches the remote tag are reused from disk with no content
// fetch; stale ones are fetched, written atomically and re-recorded. A fresh
// index is published only after every resource has settled, so readers never
// observe a half-updated cache. Per-resource failures do not abort the pass;
// they are joined into the returned error and successfully fetched resources
// keep their journal rows.
func (s *Service) Synchronize(ctx context.Context, m *Manifest) error {
	s.syncMu.Lock()
	defer s.syncMu.Unlock()

	byName, err := m.lookup()
	if err != nil {
		return err
	}

	remoteTags, err := s.remoteTags(ctx, m, byName)
	if err != nil {
		return err
	}

	var (
		mu       sync.Mutex
		errs     []error
		newIndex = make(map[string]*Entry, len(byName))
		fetched  int
	)

	if s.strict {
		for name := range byName {
			if _, ok := remoteTags[name]; !ok {
				errs = append(errs, fmt.Errorf("%w: %s", ErrResourceMissing, name))
			}
		}
	}

	// Classify everything before the first fetch so the journal and index
	// are never read and mutated concurrently.
	type staleResource struct {
		name string
		key  string
		etag string
	}
	var stale []staleResource

	for name, etag := range remoteTags {
		localPath := s.dir.EntryPath(name)

		if prev, ok := s.journal.Get(name); ok && prev == etag && utils.FileExists(localPath) {
			info, err := os.Stat(localPath)
			if err != nil {
				errs = append(errs, fmt.Errorf("stat cached %s: %w", name, err))
				continue
			}
			newIndex[name] = &Entry{Name: name, ETag: etag, Path: localPath, Size: info.Size()}
			slog.Debug("cache sync", "op", "reuse", "name", name, "etag", etag)
			continue
		}

		stale = append(stale, staleResource{name: name, key: m.Key(byName[name]), etag: etag})
	}

	var g errgroup.Group
	g.SetLimit(s.fetchWorkers)

	for _, res := range stale {
		g.Go(func() error {
			entry, err := s.fetch(ctx, res.key, res.name, res.etag)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, fmt.Errorf("fetch %s: %w", res.name, err))
				return nil
			}
			s.journal.Set(entry.Name, entry.ETag)
			newIndex[entry.Name] = entry
			fetched++
			return nil
		})
	}
	g.Wait()

	if err := s.journal.Save(); err != nil {
		errs = append(errs, err)
	}

	s.index.Store(&newIndex)
	slog.Info("cache sync complete", "folder", m.Folder,
		"entries", len(newIndex), "fetched", fetched, "errors", len(errs))
	return errors.Join(errs...)
}

// remoteTags resolves the current revision tag for every known resource.
// Resources without a remote counterpart (or without a tag) are absent from
// the result; the caller decides whether that is an error.
func (s *Service) remoteTags(ctx context.Context, m *Manifest, byName map[string]Resource) (map[string]string, error) {
	tags := make(map[string]string, len(byName))

	switch s.strategy {
	case StrategyHead:
		for name, res := range byName {
			info, err := s.client.HeadObject(ctx, m.Key(res))
			if err != nil {
				return nil, fmt.Errorf("head %s: %w", m.Key(res), err)
			}
			if info == nil || info.ETag == "" {
				slog.Debug("cache sync", "op", "skip", "name", name, "reason", "no remote tag")
				continue
			}
			tags[name] = info.ETag
		}

	default:
		prefix := strings.TrimSuffix(m.Folder, "/") + "/"
		objects, err := s.client.ListObjects(ctx, prefix)
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", prefix, err)
		}
		for _, obj := range objects {
			name := strings.TrimPrefix(obj.Key, prefix)
			if _, ok := byName[name]; !ok || obj.ETag == "" {
				continue
			}
			tags[name] = obj.ETag
		}
	}

	return tags, nil
}

// fetch downloads one object, caps the bytes read and writes the entry
// atomically into the cache dir.
func (s *Service) fetch(ctx context.Context, key, name, etag string) (*Entry, error) {
	resp, err := s.client.GetObject(ctx, key)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, s.maxObjectSize+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > s.maxObjectSize {
		return nil, fmt.Errorf("%w: cap %s", ErrContentTooLarge, humanize.Bytes(uint64(s.maxObjectSize)))
	}

	// Prefer the tag observed on the content itself. If it drifted from the
	// metadata tag, the next pass revalidates against the fresher one.
	if resp.ETag != "" {
		etag = resp.ETag
	}

	localPath := s.dir.EntryPath(name)
	if err := utils.WriteFileAtomic(localPath, data, 0o644); err != nil {
		return nil, err
	}

	slog.Info("cache sync", "op", "fetch", "name", name, "etag", etag,
		"size", humanize.Bytes(uint64(len(data))))
	return &Entry{Name: name, ETag: etag, Path: localPath, Size: int64(len(data))}, nil
}

func (s *Service) entry(name string) (*Entry, error) {
	idx := s.index.Load()
	if idx == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotCached, name)
	}
	e, ok := (*idx)[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotCached, name)
	}
	return e, nil
}

// GetRaw returns the cached bytes for a resource.
func (s *Service) GetRaw(res Resource) ([]byte, error) {
	e, err := s.entry(res.Name)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(e.Path)
	if err != nil {
		return nil, fmt.Errorf("read cached %s: %w", res.Name, err)
	}
	return data, nil
}

// Decoded returns the cached resource unmarshaled into T. Decoded values are
// memoized per (name, tag), so repeated reads of an unchanged resource skip
// re-parsing. A decode failure is not self-healing: the local file stays
// until a later Synchronize replaces it under a new tag.
func Decoded[T any](s *Service, res Resource) (T, error) {
	var zero T

	e, err := s.entry(res.Name)
	if err != nil {
		return zero, err
	}

	cacheKey := e.Name + "@" + e.ETag
	if v, ok := s.decoded.Get(cacheKey); ok {
		if t, ok := v.(T); ok {
			return t, nil
		}
	}

	data, err := os.ReadFile(e.Path)
	if err != nil {
		return zero, fmt.Errorf("read cached %s: %w", res.Name, err)
	}

	var out T
	if err := json.Unmarshal(data, &out); err != nil {
		return zero, fmt.Errorf("%w: %s: %v", ErrDecode, res.Name, err)
	}

	s.decoded.Add(cacheKey, out)
	return out, nil
}

// Entries returns a snapshot of the current index, sorted by name.
func (s *Service) Entries() []*Entry {
	idx := s.index.Load()
	if idx == nil {
		return nil
	}

	entries := make([]*Entry, 0, len(*idx))
	for _, e := range *idx {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries
}
