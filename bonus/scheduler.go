/*
Package bonus grants every known account a free credit once per day.

PURPOSE:
  A single background task fires at a fixed local time-of-day in one anchor
  timezone - "today" rolls over at the same moment for every user, wherever
  they are. Each firing sweeps all known accounts and calls the ledger's
  once-per-day grant, which is idempotent on (account, calendar date): a
  restart or double fire within the same local day grants nothing twice.

DESIGN:
  - NextRun computes the next occurrence of the trigger time strictly after
    now; a start at 10:00:00.5 targets tomorrow, not a half-second ago.
  - The sweep never aborts on one account's failure; it logs and moves on.
  - Notification is best-effort and bounded per user. The grant is final
    once its ledger entry commits; a lost notification does not roll it
    back, and a slow chat API cannot stall the rest of the day's run.

CONFIGURATION:
  Amount, trigger time, and timezone come from deployment config. The
  clock is injectable for tests.

USAGE:
  sched := bonus.NewScheduler(ledger, notifier, bonus.Config{...})
  sched.Start()
  // ... later
  sched.Stop()

SEE ALSO:
  - ledger/: GrantOncePerDay, the idempotency primitive this relies on
  - api/handlers.go: Manual trigger endpoint for operators
*/
package bonus

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/nanoavatar/avatar-engine/ledger"
)

// Notifier delivers the "you received a bonus" message. Best-effort: errors
// are logged, never retried, never rolled back.
type Notifier interface {
	NotifyBonus(ctx context.Context, id ledger.Identity, amount int64) error
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(ctx context.Context, id ledger.Identity, amount int64) error

func (f NotifierFunc) NotifyBonus(ctx context.Context, id ledger.Identity, amount int64) error {
	return f(ctx, id, amount)
}

// Config holds the deployment knobs for the daily grant.
type Config struct {
	Amount   int64          // credits granted per day
	Hour     int            // local trigger hour in Location
	Minute   int            // local trigger minute
	Location *time.Location // anchor timezone for "today"

	// PerUserTimeout bounds one account's grant+notify. Zero means 10s.
	PerUserTimeout time.Duration
}

// SweepStats summarizes one firing, for logs and the admin surface.
type SweepStats struct {
	Day     ledger.Day `json:"day"`
	Swept   int        `json:"swept"`
	Granted int        `json:"granted"`
	Skipped int        `json:"skipped"`
	Failed  int        `json:"failed"`
}

// Scheduler owns the recurring grant task.
type Scheduler struct {
	ledger   *ledger.Ledger
	notifier Notifier
	cfg      Config

	// now is the clock, swappable in tests.
	now func() time.Time

	mu      sync.Mutex
	stop    chan struct{}
	wg      sync.WaitGroup
	started bool
}

func NewScheduler(l *ledger.Ledger, n Notifier, cfg Config) *Scheduler {
	if cfg.PerUserTimeout <= 0 {
		cfg.PerUserTimeout = 10 * time.Second
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &Scheduler{
		ledger:   l,
		notifier: n,
		cfg:      cfg,
		now:      time.Now,
		stop:     make(chan struct{}),
	}
}

// NextRun returns the next trigger instant strictly after now: today's
// occurrence of the configured local time if still ahead, else tomorrow's.
func (s *Scheduler) NextRun(now time.Time) time.Time {
	local := now.In(s.cfg.Location)
	target := time.Date(local.Year(), local.Month(), local.Day(),
		s.cfg.Hour, s.cfg.Minute, 0, 0, s.cfg.Location)
	if !target.After(local) {
		target = target.AddDate(0, 0, 1)
	}
	return target
}

// Start launches the background task. Safe to call once.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true
	s.wg.Add(1)
	go s.run()
	log.Printf("[Bonus] Scheduler started: %d credit(s) daily at %02d:%02d %s",
		s.cfg.Amount, s.cfg.Hour, s.cfg.Minute, s.cfg.Location)
}

// Stop halts the background task and waits for an in-flight sweep.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return
	}
	close(s.stop)
	s.wg.Wait()
	s.started = false
	log.Println("[Bonus] Scheduler stopped")
}

func (s *Scheduler) run() {
	defer s.wg.Done()

	for {
		next := s.NextRun(s.now())
		wait := time.Until(next)
		log.Printf("[Bonus] Next sweep at %v (in %v)", next, wait.Round(time.Second))

		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
			stats := s.RunOnce(context.Background())
			log.Printf("[Bonus] Sweep for %s: %d swept, %d granted, %d skipped, %d failed",
				stats.Day, stats.Swept, stats.Granted, stats.Skipped, stats.Failed)
		case <-s.stop:
			timer.Stop()
			return
		}
	}
}

// RunOnce performs one sweep for the current local day. Re-running within
// the same day is harmless: every already-granted account is skipped.
// Exposed so operators can trigger a sweep manually.
func (s *Scheduler) RunOnce(ctx context.Context) SweepStats {
	day := ledger.DayOf(s.now(), s.cfg.Location)
	stats := SweepStats{Day: day}

	ids, err := s.ledger.Identities(ctx)
	if err != nil {
		log.Printf("[Bonus] Could not enumerate accounts: %v", err)
		stats.Failed++
		return stats
	}

	for _, id := range ids {
		stats.Swept++
		granted, err := s.grantOne(ctx, id, day)
		switch {
		case err != nil:
			// One account's failure must not abort the rest of the sweep.
			log.Printf("[Bonus] Grant failed for account %d: %v", id, err)
			stats.Failed++
		case granted:
			stats.Granted++
		default:
			stats.Skipped++
		}
	}
	return stats
}

func (s *Scheduler) grantOne(ctx context.Context, id ledger.Identity, day ledger.Day) (bool, error) {
	userCtx, cancel := context.WithTimeout(ctx, s.cfg.PerUserTimeout)
	defer cancel()

	granted, err := s.ledger.GrantOncePerDay(userCtx, id, s.cfg.Amount, day)
	if err != nil || !granted {
		return false, err
	}

	if s.notifier != nil {
		if err := s.notifier.NotifyBonus(userCtx, id, s.cfg.Amount); err != nil {
			// The bonus is final once its entry committed.
			log.Printf("[Bonus] Notification failed for account %d: %v", id, err)
		}
	}
	return true, nil
}

// SetClock swaps the time source. Test hook.
func (s *Scheduler) SetClock(now func() time.Time) { s.now = now }
