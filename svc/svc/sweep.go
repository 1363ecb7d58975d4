package svc

import (
	"context"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"punt/metrics"
	"punt/svc/db"
	"punt/svc/util"
)

// Sweeper deletes expired rows on a fixed interval. Reads already filter
// on expires_at, so sweeping is storage hygiene rather than correctness;
// a missed cycle only delays reclamation.
type Sweeper struct {
	store    *db.SQLite
	interval time.Duration
	started  atomic.Bool
	quit     chan struct{}
	done     chan struct{}
}

func NewSweeper(store *db.SQLite, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = time.Hour
	}
	return &Sweeper{
		store:    store,
		interval: interval,
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start launches the sweep loop. Calling it twice is a no-op.
func (s *Sweeper) Start() {
	if !s.started.CompareAndSwap(false, true) {
		return
	}
	go s.run()
}

func (s *Sweeper) Stop() {
	if !s.started.Load() {
		return
	}
	close(s.quit)
	select {
	case <-s.done:
	case <-time.After(10 * time.Second):
		util.Warn().Msg("sweeper didn't stop in time")
	}
}

func (s *Sweeper) run() {
	defer close(s.done)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.sweepOnce()
		case <-s.quit:
			return
		}
	}
}

func (s *Sweeper) sweepOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	now := time.Now().Unix()

	var pastes, counters, codes int64
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		pastes, err = s.store.SweepPastes(ctx, now)
		return err
	})
	g.Go(func() (err error) {
		counters, err = s.store.SweepCounters(ctx, now)
		return err
	})
	g.Go(func() (err error) {
		codes, err = s.store.SweepDeviceCodes(ctx, now)
		return err
	})
	if err := g.Wait(); err != nil {
		util.Warn().Err(err).Msg("sweep cycle failed")
		return
	}

	metrics.SweepCycles.Inc()
	metrics.SweptRows.WithLabelValues("pastes").Add(float64(pastes))
	metrics.SweptRows.WithLabelValues("quota_counters").Add(float64(counters))
	metrics.SweptRows.WithLabelValues("device_codes").Add(float64(codes))
	if pastes+counters+codes > 0 {
		util.Info().
			Int64("pastes", pastes).
			Int64("counters", counters).
			Int64("device_codes", codes).
			Msg("sweep cycle complete")
	}
}
