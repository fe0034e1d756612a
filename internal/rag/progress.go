package rag

import (
	"fmt"
	"sync"
)

// ProgressLog is an append-only list of human-readable status lines scoped
// to one request. It is safe for concurrent use. The zero value is ready.
type ProgressLog struct {
	mu      sync.Mutex
	entries []string
	observe func(string)
}

// NewProgressLog returns a log that also forwards every entry to observe,
// which may be nil. observe runs outside the log's lock.
func NewProgressLog(observe func(string)) *ProgressLog {
	return &ProgressLog{observe: observe}
}

// Add formats and appends one entry.
func (p *ProgressLog) Add(format string, args ...any) {
	msg := format
	if len(args) > 0 {
		msg = fmt.Sprintf(format, args...)
	}
	p.mu.Lock()
	p.entries = append(p.entries, msg)
	observe := p.observe
	p.mu.Unlock()
	if observe != nil {
		observe(msg)
	}
}

// Append adds already formatted entries, e.g. a sub-step's trail.
func (p *ProgressLog) Append(entries ...string) {
	for _, e := range entries {
		p.Add(e)
	}
}

// Entries returns a copy of the entries recorded so far. Never nil, so the
// JSON form is always an array.
func (p *ProgressLog) Entries() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.entries))
	copy(out, p.entries)
	return out
}

// Len reports the number of entries.
func (p *ProgressLog) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}
