package ratelimit

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/birdhouse-labs/aviary/internal/journal"
)

// Entry is one recorded mutating operation for an IP.
type Entry struct {
	IP        string    `json:"ip"`
	Timestamp time.Time `json:"timestamp"`
	Method    string    `json:"method"`
	Path      string    `json:"path"`
}

// OccurredAt implements journal.Entry.
func (e Entry) OccurredAt() time.Time { return e.Timestamp }

// Decision is the outcome of a Check call. RetryAfter and ResetAt describe
// when the saturated window reopens and are set on rejections only.
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
	ResetAt    time.Time
}

// RetryAfterSeconds rounds the retry hint up to whole seconds.
func (d Decision) RetryAfterSeconds() int {
	return int((d.RetryAfter + time.Second - 1) / time.Second)
}

// Limiter counts mutating operations per IP over a sliding window, persisting
// every recorded operation to a journal shared by all IPs. A mutex serializes
// the quota read with the record so concurrent requests from one IP cannot
// all observe a count below the cap and slip past it.
type Limiter struct {
	mu      sync.Mutex
	journal *journal.Journal[Entry]
	limit   int
	window  time.Duration
	now     func() time.Time
}

// Open loads the limiter's journal from path, creating it when absent.
func Open(path string, limit int, window time.Duration, log zerolog.Logger) (*Limiter, error) {
	j, err := journal.Open[Entry](path, window, log)
	if err != nil {
		return nil, err
	}
	return &Limiter{journal: j, limit: limit, window: window, now: time.Now}, nil
}

// Check applies the sliding window for ip and, when allowed, records the
// operation, prunes the whole data set to the window, and persists it.
//
// A rejected attempt is not recorded and triggers no prune or persist, so
// entries past the window linger until the next allowed call from any IP.
func (l *Limiter) Check(ip, method, path string) Decision {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	cutoff := now.Add(-l.window)
	recent := l.journal.Select(func(e Entry) bool {
		return e.IP == ip && e.Timestamp.After(cutoff)
	})
	if len(recent) >= l.limit {
		windowStart := recent[0].Timestamp
		for _, e := range recent[1:] {
			if e.Timestamp.Before(windowStart) {
				windowStart = e.Timestamp
			}
		}
		resetAt := windowStart.Add(l.window)
		retry := resetAt.Sub(now)
		if retry < 0 {
			retry = 0
		}
		return Decision{Allowed: false, Limit: l.limit, RetryAfter: retry, ResetAt: resetAt}
	}
	l.journal.Append(Entry{IP: ip, Timestamp: now, Method: method, Path: path})
	return Decision{
		Allowed:   true,
		Limit:     l.limit,
		Remaining: l.limit - len(recent) - 1,
	}
}

// Entries returns a copy of every recorded operation, expired ones included.
func (l *Limiter) Entries() []Entry {
	return l.journal.Entries()
}
