package cache

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/goccy/go-json"

	"github.com/openmined/syftcache/internal/utils"
)

// Journal is the durable record of which revision tag each cached file was
// last fetched under. It is one flat name->etag mapping serialized as a
// single JSON blob, replaced atomically on every save.
type Journal struct {
	path string
	tags map[string]string
}

// OpenJournal loads the journal at the given path. A missing file starts an
// empty journal (first run). An unparseable file is treated as empty too: the
// journal is only a fetch-avoidance record, and rebuilding it costs one full
// re-download, never incorrect data.
func OpenJournal(path string) *Journal {
	j := &Journal{
		path: path,
		tags: make(map[string]string),
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			slog.Warn("journal read failed, starting empty", "path", path, "error", err)
		}
		return j
	}

	if err := json.Unmarshal(data, &j.tags); err != nil {
		slog.Warn("journal corrupt, starting empty", "path", path, "error", err)
		j.tags = make(map[string]string)
	}
	return j
}

// Get returns the last recorded tag for a file name.
func (j *Journal) Get(name string) (string, bool) {
	tag, ok := j.tags[name]
	return tag, ok
}

// Set records the tag for a file name. The change is not durable until Save.
func (j *Journal) Set(name string, etag string) {
	j.tags[name] = etag
}

// Count returns the number of recorded entries.
func (j *Journal) Count() int {
	return len(j.tags)
}

// Save writes the full mapping to disk. The blob is written to a temp file
// in the same directory and renamed over the old one, so a concurrent reader
// never observes a partial record.
func (j *Journal) Save() error {
	data, err := json.MarshalIndent(j.tags, "", "  ")
	if err != nil {
		return fmt.Errorf("journal encode: %w", err)
	}

	if err := utils.WriteFileAtomic(j.path, data, 0o644); err != nil {
		return fmt.Errorf("journal write: %w", err)
	}

	slog.Debug("journal saved", "path", j.path, "entries", len(j.tags))
	return nil
}
