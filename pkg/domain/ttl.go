package domain

import (
	"fmt"
	"strconv"
	"time"

	"github.com/pkg/errors"
)

const (
	MinTTL              = 60 * time.Second
	DefaultTTL          = 24 * time.Hour
	MaxTTLAnonymous     = 7 * 24 * time.Hour
	MaxTTLAuthenticated = 30 * 24 * time.Hour
)

// MaxTTL is the creation-time ceiling for the given identity class.
func MaxTTL(ident Identity) time.Duration {
	if ident.Authenticated() {
		return MaxTTLAuthenticated
	}
	return MaxTTLAnonymous
}

// ResolveTTL parses a requested TTL ("2h", "1d12h30m", or raw seconds) and
// clamps it into [MinTTL, MaxTTL(ident)]. Out-of-range values are clamped
// with a warning attached, never rejected; a malformed string is rejected.
// An empty request resolves to DefaultTTL.
func ResolveTTL(raw string, ident Identity) (time.Duration, string, error) {
	if raw == "" {
		return DefaultTTL, "", nil
	}
	d, err := parseTTL(raw)
	if err != nil {
		return 0, "", errors.Wrap(ErrInvalidTTL, err.Error())
	}
	max := MaxTTL(ident)
	if d < MinTTL {
		return MinTTL, fmt.Sprintf("TTL too short, minimum is %ds", int(MinTTL.Seconds())), nil
	}
	if d > max {
		return max, fmt.Sprintf("TTL too long, maximum is %dd", int(max.Hours()/24)), nil
	}
	return d, "", nil
}

func parseTTL(raw string) (time.Duration, error) {
	// Raw seconds first, matching the wire format the CLI sends.
	if secs, err := strconv.ParseInt(raw, 10, 64); err == nil {
		if secs <= 0 {
			return 0, errors.Errorf("ttl must be positive, got %d", secs)
		}
		return time.Duration(secs) * time.Second, nil
	}
	var total time.Duration
	var n int64
	digits := false
	matched := false
	for _, r := range raw {
		switch {
		case r >= '0' && r <= '9':
			n = n*10 + int64(r-'0')
			digits = true
			if n > 1<<31 {
				return 0, errors.Errorf("ttl component too large in %q", raw)
			}
		case r == 'd' || r == 'h' || r == 'm' || r == 's':
			if !digits {
				return 0, errors.Errorf("invalid ttl format %q", raw)
			}
			switch r {
			case 'd':
				total += time.Duration(n) * 24 * time.Hour
			case 'h':
				total += time.Duration(n) * time.Hour
			case 'm':
				total += time.Duration(n) * time.Minute
			case 's':
				total += time.Duration(n) * time.Second
			}
			n = 0
			digits = false
			matched = true
		default:
			return 0, errors.Errorf("invalid ttl format %q", raw)
		}
	}
	if digits || !matched {
		return 0, errors.Errorf("invalid ttl format %q", raw)
	}
	if total <= 0 {
		return 0, errors.Errorf("ttl must be positive in %q", raw)
	}
	return total, nil
}

// FormatRemaining renders time left until expiry for human output.
func FormatRemaining(expiresAt, now int64) string {
	remaining := expiresAt - now
	if remaining <= 0 {
		return "expired"
	}
	days := remaining / 86400
	hours := (remaining % 86400) / 3600
	minutes := (remaining % 3600) / 60
	switch {
	case days > 0 && hours > 0:
		return fmt.Sprintf("%dd %dh", days, hours)
	case days > 0:
		return fmt.Sprintf("%dd", days)
	case hours > 0 && minutes > 0:
		return fmt.Sprintf("%dh %dm", hours, minutes)
	case hours > 0:
		return fmt.Sprintf("%dh", hours)
	case minutes > 0:
		return fmt.Sprintf("%dm", minutes)
	default:
		return "less than a minute"
	}
}
