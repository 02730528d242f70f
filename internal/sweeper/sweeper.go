// Package sweeper ages out expired conversations and approval tokens on a
// cron schedule.
package sweeper

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/dannystocker/mcp-multiagent-bridge/internal/guard"
	"github.com/dannystocker/mcp-multiagent-bridge/internal/store"
	"github.com/robfig/cron/v3"
	"gorm.io/gorm"
)

// Report summarizes one sweep.
type Report struct {
	ConversationsPurged int64
	TokensPurged        int
}

// Sweeper purges expired conversations (with their messages and status rows)
// and expired approval tokens.
type Sweeper struct {
	db    *gorm.DB
	guard *guard.Guard
	now   func() time.Time
}

// New creates a Sweeper. The guard may be nil when only conversation state
// should be swept.
func New(db *gorm.DB, g *guard.Guard) (*Sweeper, error) {
	if db == nil {
		return nil, fmt.Errorf("sweeper: db is required")
	}
	return &Sweeper{db: db, guard: g, now: time.Now}, nil
}

// Sweep runs one cleanup pass.
func (s *Sweeper) Sweep() (Report, error) {
	var report Report

	purged, err := store.PurgeExpired(s.db, s.now().UTC())
	if err != nil {
		return report, err
	}
	report.ConversationsPurged = purged

	if s.guard != nil {
		removed, err := s.guard.Cleanup()
		if err != nil {
			return report, fmt.Errorf("sweeper: token cleanup: %w", err)
		}
		report.TokensPurged = removed
	}
	return report, nil
}

// Run sweeps on the given 5-field cron schedule until ctx is cancelled.
// Sweep errors are reported to out and do not stop the schedule.
func (s *Sweeper) Run(ctx context.Context, schedule string, out io.Writer) error {
	c := cron.New()
	_, err := c.AddFunc(schedule, func() {
		report, err := s.Sweep()
		if err != nil {
			fmt.Fprintf(out, "sweep failed: %v\n", err)
			return
		}
		if report.ConversationsPurged > 0 || report.TokensPurged > 0 {
			fmt.Fprintf(out, "swept %d conversations, %d tokens\n",
				report.ConversationsPurged, report.TokensPurged)
		}
	})
	if err != nil {
		return fmt.Errorf("sweeper: schedule %q: %w", schedule, err)
	}

	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	return nil
}
