package domain

import (
	"errors"
	"testing"
	"time"
)

func TestResolveTTLDefault(t *testing.T) {
	d, warning, err := ResolveTTL("", Identity{Addr: "1.2.3.4"})
	if err != nil {
		t.Fatal(err)
	}
	if d != DefaultTTL {
		t.Errorf("expected default TTL %v, got %v", DefaultTTL, d)
	}
	if warning != "" {
		t.Errorf("unexpected warning %q", warning)
	}
}

func TestResolveTTLRawSeconds(t *testing.T) {
	d, warning, err := ResolveTTL("3600", Identity{Addr: "1.2.3.4"})
	if err != nil {
		t.Fatal(err)
	}
	if d != time.Hour {
		t.Errorf("expected 1h, got %v", d)
	}
	if warning != "" {
		t.Errorf("unexpected warning %q", warning)
	}
}

func TestResolveTTLCompound(t *testing.T) {
	cases := map[string]time.Duration{
		"1d":      24 * time.Hour,
		"2h":      2 * time.Hour,
		"30m":     30 * time.Minute,
		"90s":     90 * time.Second,
		"1d12h":   36 * time.Hour,
		"1d12h30m": 36*time.Hour + 30*time.Minute,
	}
	for raw, want := range cases {
		d, _, err := ResolveTTL(raw, Identity{Addr: "1.2.3.4"})
		if err != nil {
			t.Errorf("ResolveTTL(%q): %v", raw, err)
			continue
		}
		if d != want {
			t.Errorf("ResolveTTL(%q) = %v, want %v", raw, d, want)
		}
	}
}

func TestResolveTTLMalformed(t *testing.T) {
	for _, raw := range []string{"abc", "1x", "d", "12", "-5", "0", "1h30", "h1"} {
		// "12" is raw seconds below the minimum: clamped, not rejected.
		if raw == "12" {
			d, warning, err := ResolveTTL(raw, Identity{})
			if err != nil {
				t.Errorf("ResolveTTL(%q) rejected, want clamp: %v", raw, err)
			}
			if d != MinTTL || warning == "" {
				t.Errorf("ResolveTTL(%q) = %v warning=%q, want clamp to %v", raw, d, warning, MinTTL)
			}
			continue
		}
		_, _, err := ResolveTTL(raw, Identity{})
		if err == nil {
			t.Errorf("ResolveTTL(%q) succeeded, want error", raw)
			continue
		}
		if !errors.Is(err, ErrInvalidTTL) {
			t.Errorf("ResolveTTL(%q) error = %v, want ErrInvalidTTL", raw, err)
		}
	}
}

func TestResolveTTLClampMin(t *testing.T) {
	d, warning, err := ResolveTTL("10s", Identity{})
	if err != nil {
		t.Fatal(err)
	}
	if d != MinTTL {
		t.Errorf("expected clamp to %v, got %v", MinTTL, d)
	}
	if warning == "" {
		t.Error("expected a clamp warning")
	}
}

func TestResolveTTLClampMaxByIdentity(t *testing.T) {
	anon := Identity{Addr: "1.2.3.4"}
	authed := Identity{OwnerID: "user-1"}

	d, warning, err := ResolveTTL("14d", anon)
	if err != nil {
		t.Fatal(err)
	}
	if d != MaxTTLAnonymous {
		t.Errorf("anonymous 14d should clamp to %v, got %v", MaxTTLAnonymous, d)
	}
	if warning == "" {
		t.Error("expected a clamp warning for anonymous")
	}

	d, warning, err = ResolveTTL("14d", authed)
	if err != nil {
		t.Fatal(err)
	}
	if d != 14*24*time.Hour {
		t.Errorf("authenticated 14d should pass through, got %v", d)
	}
	if warning != "" {
		t.Errorf("unexpected warning for authenticated: %q", warning)
	}

	d, _, err = ResolveTTL("60d", authed)
	if err != nil {
		t.Fatal(err)
	}
	if d != MaxTTLAuthenticated {
		t.Errorf("authenticated 60d should clamp to %v, got %v", MaxTTLAuthenticated, d)
	}
}

func TestFormatRemaining(t *testing.T) {
	now := int64(1000000)
	cases := []struct {
		expiresAt int64
		want      string
	}{
		{now - 1, "expired"},
		{now, "expired"},
		{now + 30, "less than a minute"},
		{now + 120, "2m"},
		{now + 3600, "1h"},
		{now + 3*3600 + 15*60, "3h 15m"},
		{now + 2*86400, "2d"},
		{now + 2*86400 + 5*3600, "2d 5h"},
	}
	for _, c := range cases {
		if got := FormatRemaining(c.expiresAt, now); got != c.want {
			t.Errorf("FormatRemaining(%d) = %q, want %q", c.expiresAt, got, c.want)
		}
	}
}

func TestIdentityKey(t *testing.T) {
	anon := Identity{Addr: "1.2.3.4"}
	if anon.Key() != "ip:1.2.3.4" {
		t.Errorf("anon key = %q", anon.Key())
	}
	if anon.Authenticated() {
		t.Error("anon should not be authenticated")
	}
	authed := Identity{OwnerID: "user-1", Addr: "1.2.3.4"}
	if authed.Key() != "user:user-1" {
		t.Errorf("authed key = %q", authed.Key())
	}
	if !authed.Authenticated() {
		t.Error("authed should be authenticated")
	}
}
