package ratelimit

import (
	"strings"
	"sync"
	"testing"
	"time"
)

func TestCheck_AllowsUpToLimit(t *testing.T) {
	l := New(3, 100, 500)

	for i := 0; i < 3; i++ {
		allowed, reason := l.Check("s")
		if !allowed {
			t.Fatalf("request %d denied: %s", i+1, reason)
		}
	}

	allowed, reason := l.Check("s")
	if allowed {
		t.Fatal("4th request within the minute should be denied")
	}
	if !strings.Contains(reason, "3 req/min") {
		t.Errorf("reason = %q, want mention of 3 req/min", reason)
	}
}

func TestCheck_WindowResets(t *testing.T) {
	l := New(3, 100, 500)
	base := time.Now()
	l.now = func() time.Time { return base }

	for i := 0; i < 3; i++ {
		l.Check("s")
	}
	if allowed, _ := l.Check("s"); allowed {
		t.Fatal("expected denial at limit")
	}

	// Advance past the minute window; the bucket resets lazily.
	l.now = func() time.Time { return base.Add(61 * time.Second) }
	if allowed, reason := l.Check("s"); !allowed {
		t.Fatalf("expected allow after window reset, got %s", reason)
	}
}

func TestCheck_DenialDoesNotConsume(t *testing.T) {
	l := New(1, 1, 500)

	if allowed, _ := l.Check("s"); !allowed {
		t.Fatal("first request should pass")
	}
	// Denied on the minute window; hour count must not move.
	l.Check("s")

	usage := l.Usage("s")
	if usage["hour"].Used != 1 {
		t.Errorf("hour used = %d, want 1 (denials consume nothing)", usage["hour"].Used)
	}
}

func TestCheck_FreshBucketKeepsFirstCount(t *testing.T) {
	l := New(1, 100, 500)

	if allowed, _ := l.Check("s"); !allowed {
		t.Fatal("first request should pass")
	}
	// The bucket was created on the first call; its windows must not reset
	// just because the clock moved forward a few nanoseconds.
	if allowed, _ := l.Check("s"); allowed {
		t.Error("second request admitted; fresh window discarded the first count")
	}
}

func TestCheck_SessionsIndependent(t *testing.T) {
	l := New(1, 100, 500)

	l.Check("a")
	if allowed, _ := l.Check("b"); !allowed {
		t.Error("session b should not share session a's bucket")
	}
}

func TestCheck_Concurrent(t *testing.T) {
	l := New(10, 100, 500)

	var wg sync.WaitGroup
	admitted := make(chan bool, 50)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, _ := l.Check("s")
			admitted <- ok
		}()
	}
	wg.Wait()
	close(admitted)

	count := 0
	for ok := range admitted {
		if ok {
			count++
		}
	}
	if count != 10 {
		t.Errorf("admitted %d requests, want exactly 10", count)
	}
}

func TestUsage_UntrackedSession(t *testing.T) {
	l := New(10, 100, 500)
	usage := l.Usage("ghost")
	if usage["minute"].Used != 0 || usage["minute"].Remaining != 10 {
		t.Errorf("untracked session usage = %+v", usage["minute"])
	}
}

func TestReset(t *testing.T) {
	l := New(1, 100, 500)
	l.Check("s")
	if allowed, _ := l.Check("s"); allowed {
		t.Fatal("expected denial at limit")
	}

	l.Reset("s")
	if allowed, _ := l.Check("s"); !allowed {
		t.Error("expected allow after reset")
	}
}

func TestSessions(t *testing.T) {
	l := New(10, 100, 500)
	l.Check("a")
	l.Check("b")

	got := l.Sessions()
	if len(got) != 2 {
		t.Errorf("Sessions() = %v, want 2 entries", got)
	}
}
