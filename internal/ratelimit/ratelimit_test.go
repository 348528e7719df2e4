package ratelimit

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

const window = 24 * time.Hour

func limiterPath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "ratelimit.json")
}

func seedEntries(t *testing.T, path string, entries []Entry) {
	t.Helper()
	raw, err := json.Marshal(entries)
	if err != nil {
		t.Fatalf("marshal seed: %v", err)
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		t.Fatalf("write seed: %v", err)
	}
}

func TestAllowsUpToLimitThenRejects(t *testing.T) {
	l, err := Open(limiterPath(t), 8, window, zerolog.Nop())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	for i := 0; i < 8; i++ {
		d := l.Check("203.0.113.7", "POST", "/api/birds")
		if !d.Allowed {
			t.Fatalf("request %d unexpectedly rejected", i+1)
		}
		if want := 8 - i - 1; d.Remaining != want {
			t.Fatalf("request %d: remaining = %d, want %d", i+1, d.Remaining, want)
		}
	}
	d := l.Check("203.0.113.7", "POST", "/api/birds")
	if d.Allowed {
		t.Fatal("9th request unexpectedly allowed")
	}
	if d.Remaining != 0 {
		t.Fatalf("rejected remaining = %d, want 0", d.Remaining)
	}
	if d.RetryAfter <= 0 || d.RetryAfter > window {
		t.Fatalf("retry after out of range: %v", d.RetryAfter)
	}
	if secs := d.RetryAfterSeconds(); secs < 1 || secs > 24*3600 {
		t.Fatalf("retry seconds out of range: %d", secs)
	}
}

func TestConcurrentChecksRespectLimit(t *testing.T) {
	l, err := Open(limiterPath(t), 8, window, zerolog.Nop())
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	var allowed atomic.Int64
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if d := l.Check("203.0.113.7", "POST", "/api/birds"); d.Allowed {
				allowed.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	if got := allowed.Load(); got != 8 {
		t.Fatalf("concurrent checks admitted %d requests, want 8", got)
	}
	if got := len(l.Entries()); got != 8 {
		t.Fatalf("journal holds %d entries, want 8", got)
	}
}

func TestOtherIPsAreUnaffected(t *testing.T) {
	l, err := Open(limiterPath(t), 8, window, zerolog.Nop())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	for i := 0; i < 8; i++ {
		l.Check("203.0.113.7", "POST", "/api/birds")
	}
	if d := l.Check("203.0.113.7", "DELETE", "/api/birds/1"); d.Allowed {
		t.Fatal("saturated IP unexpectedly allowed")
	}
	d := l.Check("198.51.100.2", "POST", "/api/birds")
	if !d.Allowed {
		t.Fatal("second IP rejected by first IP's quota")
	}
	if d.Remaining != 7 {
		t.Fatalf("second IP remaining = %d, want 7", d.Remaining)
	}
}

func TestRejectionDoesNotRecordOrPrune(t *testing.T) {
	path := limiterPath(t)
	now := time.Now()
	entries := make([]Entry, 0, 9)
	// One entry past the window plus a full quota inside it.
	entries = append(entries, Entry{IP: "198.51.100.9", Timestamp: now.Add(-25 * time.Hour), Method: "POST", Path: "/api/birds"})
	for i := 0; i < 8; i++ {
		entries = append(entries, Entry{IP: "203.0.113.7", Timestamp: now.Add(-time.Hour), Method: "POST", Path: "/api/birds"})
	}
	seedEntries(t, path, entries)
	before, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read seed: %v", err)
	}

	l, err := Open(path, 8, window, zerolog.Nop())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if d := l.Check("203.0.113.7", "POST", "/api/birds"); d.Allowed {
		t.Fatal("expected rejection")
	}
	if got := len(l.Entries()); got != 9 {
		t.Fatalf("rejection changed entry count: %d", got)
	}
	after, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read file: %v", err)
	}
	if string(before) != string(after) {
		t.Fatal("rejection rewrote the journal file")
	}
}

func TestAllowedCallPrunesAllIPs(t *testing.T) {
	path := limiterPath(t)
	now := time.Now()
	seedEntries(t, path, []Entry{
		{IP: "198.51.100.9", Timestamp: now.Add(-25 * time.Hour), Method: "POST", Path: "/api/birds"},
		{IP: "203.0.113.7", Timestamp: now.Add(-time.Hour), Method: "POST", Path: "/api/birds"},
	})
	l, err := Open(path, 8, window, zerolog.Nop())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if d := l.Check("192.0.2.50", "PUT", "/api/birds/1"); !d.Allowed {
		t.Fatal("expected allowance")
	}
	for _, e := range l.Entries() {
		if e.IP == "198.51.100.9" {
			t.Fatal("expired entry for another IP survived an allowed call")
		}
	}
}

func TestExpiredEntriesDoNotCount(t *testing.T) {
	path := limiterPath(t)
	now := time.Now()
	entries := make([]Entry, 0, 8)
	for i := 0; i < 8; i++ {
		entries = append(entries, Entry{IP: "203.0.113.7", Timestamp: now.Add(-25 * time.Hour), Method: "POST", Path: "/api/birds"})
	}
	seedEntries(t, path, entries)
	l, err := Open(path, 8, window, zerolog.Nop())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	d := l.Check("203.0.113.7", "POST", "/api/birds")
	if !d.Allowed {
		t.Fatal("expired entries still counted against quota")
	}
	if d.Remaining != 7 {
		t.Fatalf("remaining = %d, want 7", d.Remaining)
	}
}
