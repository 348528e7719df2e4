package repository

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/birdhouse-labs/aviary/internal/model"
)

// ErrNotFound is returned when no record matches the requested id.
var ErrNotFound = errors.New("bird not found")

// PageSize is the fixed page length for List.
const PageSize = 48

// Persistence loads and saves the full record collection. Every mutation
// rewrites the whole collection; there is no partial write.
type Persistence interface {
	Load() ([]model.Bird, error)
	Save(birds []model.Bird) error
}

// BirdRepository owns the in-memory record list and mirrors every mutation
// through its Persistence before returning. A mutex serializes mutations so
// two concurrent writers resolve to last-writer-wins at the granularity of
// one full-collection rewrite.
type BirdRepository struct {
	mu      sync.Mutex
	birds   []model.Bird
	persist Persistence
	log     zerolog.Logger
	now     func() time.Time
}

// New loads the collection through p.
func New(p Persistence, log zerolog.Logger) (*BirdRepository, error) {
	birds, err := p.Load()
	if err != nil {
		return nil, err
	}
	return &BirdRepository{birds: birds, persist: p, log: log, now: time.Now}, nil
}

// List returns one page (1-based, 48 records) of the collection, newest
// first, plus whether more pages remain. A non-empty search keeps only
// records whose name contains it, case-insensitively. Pages below 1 behave
// as page 1.
func (r *BirdRepository) List(page int, search string) ([]model.Bird, bool) {
	if page < 1 {
		page = 1
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	filtered := r.birds
	if search != "" {
		needle := strings.ToLower(search)
		filtered = make([]model.Bird, 0, len(r.birds))
		for _, b := range r.birds {
			if strings.Contains(strings.ToLower(b.Name), needle) {
				filtered = append(filtered, b)
			}
		}
	}
	start := (page - 1) * PageSize
	end := start + PageSize
	if start > len(filtered) {
		start = len(filtered)
	}
	if end > len(filtered) {
		end = len(filtered)
	}
	items := make([]model.Bird, end-start)
	copy(items, filtered[start:end])
	return items, end < len(filtered)
}

// Get returns the record with the given id.
func (r *BirdRepository) Get(id int64) (model.Bird, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, b := range r.birds {
		if b.ID == id {
			return b, nil
		}
	}
	return model.Bird{}, ErrNotFound
}

// Counts returns the total number of records and the number of distinct
// names.
func (r *BirdRepository) Counts() (total, distinct int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make(map[string]struct{}, len(r.birds))
	for _, b := range r.birds {
		names[b.Name] = struct{}{}
	}
	return len(r.birds), len(names)
}

// Create assigns the current Unix-millisecond time as id, prepends the record
// so the list stays newest-first, and persists before returning. Two creates
// in the same millisecond share an id; the store does not deduplicate.
func (r *BirdRepository) Create(name, imageFile string) model.Bird {
	r.mu.Lock()
	defer r.mu.Unlock()
	b := model.Bird{ID: r.now().UnixMilli(), Name: name, ImageURL: imageFile}
	r.birds = append([]model.Bird{b}, r.birds...)
	r.persistLocked()
	return b
}

// Update replaces only the supplied fields and returns the updated record
// along with the image filename it displaced, empty when none.
func (r *BirdRepository) Update(id int64, name, imageFile *string) (model.Bird, string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.birds {
		if r.birds[i].ID != id {
			continue
		}
		displaced := ""
		if name != nil {
			r.birds[i].Name = *name
		}
		if imageFile != nil {
			displaced = r.birds[i].ImageURL
			r.birds[i].ImageURL = *imageFile
		}
		r.persistLocked()
		return r.birds[i], displaced, nil
	}
	return model.Bird{}, "", ErrNotFound
}

// Delete removes the record and returns its image filename so the caller can
// clean up the sidecar file.
func (r *BirdRepository) Delete(id int64) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, b := range r.birds {
		if b.ID != id {
			continue
		}
		r.birds = append(r.birds[:i], r.birds[i+1:]...)
		r.persistLocked()
		return b.ImageURL, nil
	}
	return "", ErrNotFound
}

// persistLocked mirrors the collection to stable storage. A failure is logged
// and the in-memory mutation stands; memory and disk diverge until the next
// successful write.
func (r *BirdRepository) persistLocked() {
	if err := r.persist.Save(append([]model.Bird(nil), r.birds...)); err != nil {
		r.log.Error().Err(err).Msg("persist bird records")
	}
}
