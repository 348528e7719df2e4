package oplog

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/birdhouse-labs/aviary/internal/journal"
)

// DefaultRetention is how long operation entries are kept before pruning.
const DefaultRetention = 30 * 24 * time.Hour

// Entry is one recorded mutating operation. Entries are append-only and never
// mutated.
type Entry struct {
	Timestamp time.Time `json:"timestamp"`
	IP        string    `json:"ip"`
	Operation string    `json:"operation"`
	Method    string    `json:"method"`
	Path      string    `json:"path"`
	UserAgent string    `json:"userAgent"`
}

// OccurredAt implements journal.Entry.
func (e Entry) OccurredAt() time.Time { return e.Timestamp }

// Logger records one entry per mutating request into a time-windowed journal,
// 30 days by default. It is purely observational: recording never blocks or
// rejects the request it describes.
type Logger struct {
	journal *journal.Journal[Entry]
	now     func() time.Time
}

// Open loads the operation log from path, creating it when absent.
func Open(path string, retention time.Duration, log zerolog.Logger) (*Logger, error) {
	if retention <= 0 {
		retention = DefaultRetention
	}
	j, err := journal.Open[Entry](path, retention, log)
	if err != nil {
		return nil, err
	}
	return &Logger{journal: j, now: time.Now}, nil
}

// Record appends one entry and rewrites the log with entries older than the
// retention window dropped.
func (l *Logger) Record(ip, operation, method, path, userAgent string) {
	l.journal.Append(Entry{
		Timestamp: l.now(),
		IP:        ip,
		Operation: operation,
		Method:    method,
		Path:      path,
		UserAgent: userAgent,
	})
}

// Entries returns a copy of the current log contents.
func (l *Logger) Entries() []Entry {
	return l.journal.Entries()
}
