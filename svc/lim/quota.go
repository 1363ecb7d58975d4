package lim

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/time/rate"

	"punt/cfg"
	"punt/pkg/domain"
	"punt/svc/db"
	"punt/svc/util"
)

// Op names a quota-gated operation. Creation is bounded per calendar day;
// the sensitive endpoints are bounded per calendar minute.
type Op string

const (
	OpCreate     Op = "create"
	OpDeviceInit Op = "device_init"
	OpReport     Op = "report"
)

type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// Limiter tracks per-identity creation counts against a ceiling. The
// check and the increment are two separate store round trips: a burst of
// simultaneous requests from one identity can transiently overshoot the
// ceiling. That slop is accepted; the increment itself is atomic.
type Limiter struct {
	store    *db.SQLite
	rdb      *db.Redis
	quota    cfg.QuotaCfg
	fallback *expirable.LRU[string, *rate.Limiter]
}

func New(store *db.SQLite, rdb *db.Redis, quota cfg.QuotaCfg) *Limiter {
	return &Limiter{
		store:    store,
		rdb:      rdb,
		quota:    quota,
		fallback: expirable.NewLRU[string, *rate.Limiter](10000, nil, 30*time.Minute),
	}
}

func (l *Limiter) ceiling(op Op, ident domain.Identity) int {
	switch op {
	case OpCreate:
		if ident.Authenticated() {
			return l.quota.AuthDaily
		}
		return l.quota.AnonDaily
	case OpDeviceInit:
		return l.quota.DeviceInitMinute
	case OpReport:
		return l.quota.ReportMinute
	default:
		return l.quota.AnonDaily
	}
}

func window(op Op) time.Duration {
	if op == OpCreate {
		return 24 * time.Hour
	}
	return time.Minute
}

// resetAt is the start of the next window: the next UTC midnight for daily
// windows, the next minute boundary otherwise.
func resetAt(op Op, now time.Time) time.Time {
	now = now.UTC()
	if op == OpCreate {
		return now.Truncate(24 * time.Hour).Add(24 * time.Hour)
	}
	return now.Truncate(time.Minute).Add(time.Minute)
}

func bucket(op Op, ident domain.Identity, now time.Time) string {
	now = now.UTC()
	var stamp string
	if op == OpCreate {
		stamp = now.Format("2006-01-02")
	} else {
		stamp = now.Format("2006-01-02T15:04")
	}
	return string(op) + ":" + ident.Key() + ":" + stamp
}

func (l *Limiter) Check(ctx context.Context, ident domain.Identity, op Op) *Result {
	now := time.Now()
	limit := l.ceiling(op, ident)
	reset := resetAt(op, now)
	key := bucket(op, ident, now)

	count, err := l.count(ctx, key, op)
	if err != nil {
		util.Warn().Err(err).Str("bucket", key).Msg("quota backend unavailable, using local fallback")
		return l.failClosedLocal(ident, op, reset)
	}
	remaining := limit - count
	if remaining < 0 {
		remaining = 0
	}
	return &Result{
		Allowed:   count < limit,
		Limit:     limit,
		Remaining: remaining,
		ResetAt:   reset,
	}
}

// Increment records one admitted operation. Called only after the guarded
// operation succeeded.
func (l *Limiter) Increment(ctx context.Context, ident domain.Identity, op Op) error {
	now := time.Now()
	key := bucket(op, ident, now)
	if l.rdb != nil && op != OpCreate {
		return l.rdb.CounterIncr(ctx, key, window(op))
	}
	return l.store.CounterIncr(ctx, key, resetAt(op, now).Unix())
}

func (l *Limiter) count(ctx context.Context, key string, op Op) (int, error) {
	if l.rdb != nil && op != OpCreate {
		return l.rdb.CounterGet(ctx, key)
	}
	return l.store.CounterGet(ctx, key)
}

// failClosedLocal admits a trickle through an in-process token bucket when
// the store is down, instead of either refusing everyone or waving
// everyone through.
func (l *Limiter) failClosedLocal(ident domain.Identity, op Op, reset time.Time) *Result {
	key := string(op) + ":" + ident.Key()
	lm, ok := l.fallback.Get(key)
	if !ok {
		perMin := l.quota.FallbackPerMin
		if perMin < 1 {
			perMin = 1
		}
		lm = rate.NewLimiter(rate.Limit(perMin)/60.0, perMin)
		l.fallback.Add(key, lm)
	}
	return &Result{
		Allowed:   lm.Allow(),
		Limit:     l.quota.FallbackPerMin,
		Remaining: 0,
		ResetAt:   reset,
	}
}
