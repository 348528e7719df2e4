package journal

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Entry is anything the journal can age out by time.
type Entry interface {
	OccurredAt() time.Time
}

// Journal is a bounded, time-windowed journal: an in-memory slice of entries
// mirrored to a single JSON file. Append drops everything older than the
// retention window (across all owners, not just the appender's) and rewrites
// the whole file; reads never touch disk.
//
// The file write is not atomic. A crash mid-write can leave a truncated file
// behind; each completed write is self-consistent.
type Journal[E Entry] struct {
	mu        sync.Mutex
	path      string
	retention time.Duration
	entries   []E
	log       zerolog.Logger
	now       func() time.Time
}

// Open loads the journal from path, creating an empty file when absent.
func Open[E Entry](path string, retention time.Duration, log zerolog.Logger) (*Journal[E], error) {
	j := &Journal[E]{path: path, retention: retention, log: log, now: time.Now}
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		if werr := os.WriteFile(path, []byte("[]"), 0o644); werr != nil {
			return nil, fmt.Errorf("create journal %s: %w", path, werr)
		}
		return j, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open journal %s: %w", path, err)
	}
	if len(raw) == 0 {
		return j, nil
	}
	if err := json.Unmarshal(raw, &j.entries); err != nil {
		return nil, fmt.Errorf("decode journal %s: %w", path, err)
	}
	return j, nil
}

// Append adds e, prunes the entire data set to the retention window, and
// rewrites the backing file before returning. A persistence failure is
// reported on the logger, never returned: the in-memory state is already
// updated and the caller's request must not fail on it.
func (j *Journal[E]) Append(e E) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, e)
	cutoff := j.now().Add(-j.retention)
	kept := j.entries[:0]
	for _, entry := range j.entries {
		if entry.OccurredAt().After(cutoff) {
			kept = append(kept, entry)
		}
	}
	j.entries = kept
	j.persistLocked()
}

func (j *Journal[E]) persistLocked() {
	entries := j.entries
	if entries == nil {
		entries = []E{}
	}
	data, err := json.Marshal(entries)
	if err != nil {
		j.log.Error().Err(err).Str("path", j.path).Msg("encode journal")
		return
	}
	if err := os.WriteFile(j.path, data, 0o644); err != nil {
		j.log.Error().Err(err).Str("path", j.path).Msg("write journal")
	}
}

// Select returns the entries matching keep. It does not prune or persist, so
// expired entries are still visible until the next Append.
func (j *Journal[E]) Select(keep func(E) bool) []E {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]E, 0, len(j.entries))
	for _, e := range j.entries {
		if keep(e) {
			out = append(out, e)
		}
	}
	return out
}

// Entries returns a copy of every entry currently held.
func (j *Journal[E]) Entries() []E {
	return j.Select(func(E) bool { return true })
}
