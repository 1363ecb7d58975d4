package lim

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"punt/cfg"
	"punt/pkg/domain"
	"punt/svc/db"
)

func newTestLimiter(t *testing.T, quota cfg.QuotaCfg) (*Limiter, *db.SQLite) {
	t.Helper()
	store, err := db.NewSQLite(filepath.Join(t.TempDir(), "lim.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })
	return New(store, nil, quota), store
}

func TestCheckAllowsUpToCeiling(t *testing.T) {
	l, _ := newTestLimiter(t, cfg.QuotaCfg{
		AnonDaily: 3, AuthDaily: 10, DeviceInitMinute: 10, ReportMinute: 5, FallbackPerMin: 5,
	})
	ctx := context.Background()
	ident := domain.Identity{Addr: "1.2.3.4"}

	for i := 0; i < 3; i++ {
		result := l.Check(ctx, ident, OpCreate)
		if !result.Allowed {
			t.Fatalf("request %d should be allowed", i+1)
		}
		if result.Limit != 3 {
			t.Errorf("limit = %d, want 3", result.Limit)
		}
		if result.Remaining != 3-i {
			t.Errorf("remaining = %d, want %d", result.Remaining, 3-i)
		}
		if err := l.Increment(ctx, ident, OpCreate); err != nil {
			t.Fatal(err)
		}
	}

	result := l.Check(ctx, ident, OpCreate)
	if result.Allowed {
		t.Error("fourth request should be rejected")
	}
	if result.Remaining != 0 {
		t.Errorf("remaining = %d, want 0", result.Remaining)
	}
	if !result.ResetAt.After(time.Now()) {
		t.Errorf("resetAt %v should be in the future", result.ResetAt)
	}
}

func TestCeilingByIdentityClass(t *testing.T) {
	l, _ := newTestLimiter(t, cfg.QuotaCfg{
		AnonDaily: 100, AuthDaily: 1000, DeviceInitMinute: 10, ReportMinute: 5, FallbackPerMin: 5,
	})
	ctx := context.Background()

	anon := l.Check(ctx, domain.Identity{Addr: "1.2.3.4"}, OpCreate)
	if anon.Limit != 100 {
		t.Errorf("anonymous limit = %d, want 100", anon.Limit)
	}
	authed := l.Check(ctx, domain.Identity{OwnerID: "user-1"}, OpCreate)
	if authed.Limit != 1000 {
		t.Errorf("authenticated limit = %d, want 1000", authed.Limit)
	}
}

func TestIdentitiesDoNotShareBuckets(t *testing.T) {
	l, _ := newTestLimiter(t, cfg.QuotaCfg{
		AnonDaily: 1, AuthDaily: 10, DeviceInitMinute: 10, ReportMinute: 5, FallbackPerMin: 5,
	})
	ctx := context.Background()

	first := domain.Identity{Addr: "1.2.3.4"}
	if err := l.Increment(ctx, first, OpCreate); err != nil {
		t.Fatal(err)
	}
	if l.Check(ctx, first, OpCreate).Allowed {
		t.Error("first identity should be exhausted")
	}
	if !l.Check(ctx, domain.Identity{Addr: "5.6.7.8"}, OpCreate).Allowed {
		t.Error("a different address must have its own bucket")
	}
	// The same address authenticated is a different identity entirely.
	if !l.Check(ctx, domain.Identity{OwnerID: "user-1", Addr: "1.2.3.4"}, OpCreate).Allowed {
		t.Error("authenticated identity must not inherit the address bucket")
	}
}

func TestMinuteWindowOps(t *testing.T) {
	l, _ := newTestLimiter(t, cfg.QuotaCfg{
		AnonDaily: 100, AuthDaily: 1000, DeviceInitMinute: 2, ReportMinute: 5, FallbackPerMin: 5,
	})
	ctx := context.Background()
	ident := domain.Identity{Addr: "1.2.3.4"}

	for i := 0; i < 2; i++ {
		if !l.Check(ctx, ident, OpDeviceInit).Allowed {
			t.Fatalf("device init %d should be allowed", i+1)
		}
		if err := l.Increment(ctx, ident, OpDeviceInit); err != nil {
			t.Fatal(err)
		}
	}
	result := l.Check(ctx, ident, OpDeviceInit)
	if result.Allowed {
		t.Error("third device init in one minute should be rejected")
	}
	if until := time.Until(result.ResetAt); until <= 0 || until > time.Minute {
		t.Errorf("minute window resetAt is %v away", until)
	}

	// Device-init exhaustion must not affect the report window.
	if !l.Check(ctx, ident, OpReport).Allowed {
		t.Error("report op has its own window")
	}
}

func TestFailClosedFallback(t *testing.T) {
	l, store := newTestLimiter(t, cfg.QuotaCfg{
		AnonDaily: 100, AuthDaily: 1000, DeviceInitMinute: 10, ReportMinute: 5, FallbackPerMin: 2,
	})
	store.Close()
	ctx := context.Background()
	ident := domain.Identity{Addr: "1.2.3.4"}

	allowed := 0
	for i := 0; i < 10; i++ {
		if l.Check(ctx, ident, OpCreate).Allowed {
			allowed++
		}
	}
	if allowed == 0 {
		t.Error("fallback should admit a trickle, not refuse everyone")
	}
	if allowed > 2 {
		t.Errorf("fallback admitted %d, burst ceiling is 2", allowed)
	}
}
