// Package ratelimit provides a per-session, in-memory request limiter with
// minute, hour, and day windows. State lives only in process memory and is
// recreated empty on restart.
package ratelimit

import (
	"fmt"
	"sync"
	"time"
)

// window counts requests until resetAt, after which it is lazily reset.
type window struct {
	count   int
	resetAt time.Time
}

// bucket holds the three windows for one session.
type bucket struct {
	minute window
	hour   window
	day    window
}

// Limiter tracks request counts per session across three fixed windows.
// All methods are safe for concurrent use.
type Limiter struct {
	mu        sync.Mutex
	perMinute int
	perHour   int
	perDay    int
	buckets   map[string]*bucket

	now func() time.Time
}

// New creates a Limiter with the given per-window limits.
func New(perMinute, perHour, perDay int) *Limiter {
	return &Limiter{
		perMinute: perMinute,
		perHour:   perHour,
		perDay:    perDay,
		buckets:   make(map[string]*bucket),
		now:       time.Now,
	}
}

// Check decides whether one more request from the session is allowed.
// Counters are incremented only when all three windows have capacity, so a
// denied request consumes nothing.
func (l *Limiter) Check(sessionID string) (bool, string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	b, ok := l.buckets[sessionID]
	if !ok {
		// Windows start full-length: seeding resetAt with now would let the
		// next call reset the window and drop this request's count.
		b = &bucket{
			minute: window{resetAt: now.Add(time.Minute)},
			hour:   window{resetAt: now.Add(time.Hour)},
			day:    window{resetAt: now.Add(24 * time.Hour)},
		}
		l.buckets[sessionID] = b
	}

	if now.After(b.minute.resetAt) {
		b.minute = window{resetAt: now.Add(time.Minute)}
	}
	if b.minute.count >= l.perMinute {
		resetIn := int(b.minute.resetAt.Sub(now).Seconds())
		return false, fmt.Sprintf("Rate limit: %d req/min exceeded (resets in %ds)", l.perMinute, resetIn)
	}

	if now.After(b.hour.resetAt) {
		b.hour = window{resetAt: now.Add(time.Hour)}
	}
	if b.hour.count >= l.perHour {
		resetIn := int(b.hour.resetAt.Sub(now).Minutes())
		return false, fmt.Sprintf("Rate limit: %d req/hour exceeded (resets in %dm)", l.perHour, resetIn)
	}

	if now.After(b.day.resetAt) {
		b.day = window{resetAt: now.Add(24 * time.Hour)}
	}
	if b.day.count >= l.perDay {
		resetIn := int(b.day.resetAt.Sub(now).Hours())
		return false, fmt.Sprintf("Rate limit: %d req/day exceeded (resets in %dh)", l.perDay, resetIn)
	}

	b.minute.count++
	b.hour.count++
	b.day.count++
	return true, "OK"
}

// WindowUsage reports consumption of a single window.
type WindowUsage struct {
	Used      int
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// Usage reports current consumption across all three windows for a session.
// Sessions with no recorded requests report zero usage.
func (l *Limiter) Usage(sessionID string) map[string]WindowUsage {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	b, ok := l.buckets[sessionID]
	if !ok {
		return map[string]WindowUsage{
			"minute": {Limit: l.perMinute, Remaining: l.perMinute, ResetAt: now.Add(time.Minute)},
			"hour":   {Limit: l.perHour, Remaining: l.perHour, ResetAt: now.Add(time.Hour)},
			"day":    {Limit: l.perDay, Remaining: l.perDay, ResetAt: now.Add(24 * time.Hour)},
		}
	}

	return map[string]WindowUsage{
		"minute": usageOf(b.minute, l.perMinute),
		"hour":   usageOf(b.hour, l.perHour),
		"day":    usageOf(b.day, l.perDay),
	}
}

func usageOf(w window, limit int) WindowUsage {
	remaining := limit - w.count
	if remaining < 0 {
		remaining = 0
	}
	return WindowUsage{Used: w.count, Limit: limit, Remaining: remaining, ResetAt: w.resetAt}
}

// Reset clears all windows for a session. Administrative use only.
func (l *Limiter) Reset(sessionID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.buckets, sessionID)
}

// Sessions returns the IDs of all tracked sessions.
func (l *Limiter) Sessions() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	ids := make([]string, 0, len(l.buckets))
	for id := range l.buckets {
		ids = append(ids, id)
	}
	return ids
}
