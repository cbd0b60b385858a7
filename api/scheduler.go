/*
scheduler.go - Automated settlement scheduler

PURPOSE:
  Periodically settles past days for every student so that a parent who
  forgets to press "settle" does not leave days open forever.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Settles today minus LagDays for each student
  - Days that are already settled are skipped (ErrAlreadySettled is the
    expected outcome on every tick after the first)
  - Off by default; a lag of at least 1 leaves today open for entry

CONFIGURATION:
  - CheckInterval: How often to check (default: 1 hour)
  - LagDays:       How far back the settled day is (default: 1)
  - Enabled:       Whether scheduler is active (default: false)

USAGE:
  scheduler := NewSettlementScheduler(store, svc, loc, log)
  scheduler.Enabled = true
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go:       SettleDay endpoint (manual settlement)
  - ledger/service.go: Settle
*/
package api

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/warp/gametime/generic"
	"github.com/warp/gametime/ledger"
)

// SettlementScheduler settles past days automatically.
type SettlementScheduler struct {
	Store         generic.UserStore
	Ledger        *ledger.Service
	Loc           *time.Location
	Log           *zap.Logger
	CheckInterval time.Duration
	LagDays       int
	Enabled       bool

	now    func() time.Time
	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// RunSummary counts the outcome of one pass.
type RunSummary struct {
	Day     generic.Day
	Settled int
	Skipped int // already settled
	Failed  int
}

// NewSettlementScheduler creates a disabled scheduler with defaults.
func NewSettlementScheduler(store generic.UserStore, svc *ledger.Service, loc *time.Location, log *zap.Logger) *SettlementScheduler {
	if log == nil {
		log = zap.NewNop()
	}
	if loc == nil {
		loc = time.UTC
	}
	return &SettlementScheduler{
		Store:         store,
		Ledger:        svc,
		Loc:           loc,
		Log:           log.Named("scheduler"),
		CheckInterval: time.Hour,
		LagDays:       1,
		now:           time.Now,
	}
}

// Start begins the scheduler.
func (s *SettlementScheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.Enabled {
		s.Log.Info("disabled, not starting")
		return
	}
	if s.ticker != nil {
		return
	}

	s.ticker = time.NewTicker(s.CheckInterval)
	s.stop = make(chan struct{})
	s.wg.Add(1)

	go s.run()

	s.Log.Info("started",
		zap.Duration("interval", s.CheckInterval),
		zap.Int("lag_days", s.LagDays),
	)
}

// Stop stops the scheduler and waits for an in-flight pass.
func (s *SettlementScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ticker != nil {
		s.ticker.Stop()
		close(s.stop)
		s.wg.Wait()
		s.ticker = nil
		s.Log.Info("stopped")
	}
}

func (s *SettlementScheduler) run() {
	defer s.wg.Done()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-s.stop
		cancel()
	}()

	// Run immediately on start
	s.RunNow(ctx)

	for {
		select {
		case <-s.ticker.C:
			s.RunNow(ctx)
		case <-s.stop:
			return
		}
	}
}

// RunNow settles today minus LagDays for every student.
func (s *SettlementScheduler) RunNow(ctx context.Context) RunSummary {
	day := generic.DayOf(s.now(), s.Loc).AddDays(-s.LagDays)
	summary := RunSummary{Day: day}

	students, err := s.Store.Students(ctx)
	if err != nil {
		s.Log.Error("listing students", zap.Error(err))
		return summary
	}

	for _, st := range students {
		if ctx.Err() != nil {
			break
		}
		_, err := s.Ledger.Settle(ctx, st.ID, day)
		switch {
		case err == nil:
			summary.Settled++
		case errors.Is(err, generic.ErrAlreadySettled):
			summary.Skipped++
		default:
			summary.Failed++
			s.Log.Error("settling",
				zap.Int64("user", int64(st.ID)),
				zap.Stringer("day", day),
				zap.Error(err),
			)
		}
	}

	if summary.Settled > 0 || summary.Failed > 0 {
		s.Log.Info("pass completed",
			zap.Stringer("day", day),
			zap.Int("settled", summary.Settled),
			zap.Int("skipped", summary.Skipped),
			zap.Int("failed", summary.Failed),
		)
	}
	return summary
}
