package membership

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"
)

// DefaultSweepSchedule runs the sweep hourly at minute 7
const DefaultSweepSchedule = "7 * * * *"

// Sweeper periodically hard-deletes expired membership rows. Purely storage
// hygiene: resolution filters on not_after, so a missed sweep never grants
// anything.
type Sweeper struct {
	store    *Store
	schedule string
	cron     *cron.Cron
	now      func() time.Time
}

// NewSweeper creates a sweeper over the store. An empty schedule selects
// DefaultSweepSchedule.
func NewSweeper(store *Store, schedule string) *Sweeper {
	if schedule == "" {
		schedule = DefaultSweepSchedule
	}
	return &Sweeper{
		store:    store,
		schedule: schedule,
		now:      time.Now,
	}
}

// Start schedules the sweep and begins running it
func (s *Sweeper) Start() error {
	c := cron.New()
	_, err := c.AddFunc(s.schedule, func() {
		if count, err := s.SweepOnce(context.Background()); err != nil {
			log.Printf("Membership sweep failed: %v", err)
		} else if count > 0 {
			log.Printf("Membership sweep removed %d expired rows", count)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule membership sweep: %w", err)
	}
	c.Start()
	s.cron = c
	return nil
}

// Stop halts the schedule and waits for a running sweep to finish
func (s *Sweeper) Stop() {
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
}

// SweepOnce deletes expired rows immediately and returns the count removed
func (s *Sweeper) SweepOnce(ctx context.Context) (int64, error) {
	return s.store.DeleteExpired(ctx, s.now())
}
