package svc

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"punt/cfg"
	"punt/metrics"
	"punt/pkg/domain"
	"punt/svc/db"
	"punt/svc/util"
)

// Device runs the device authorization flow: a non-browser client obtains
// a bearer token through a short code approved in an authenticated
// browser session. Codes move PENDING -> APPROVED -> CONSUMED (row
// deleted) or expire; an approved code is consumed by exactly one poll.
type Device struct {
	store  *db.SQLite
	tokens *Tokens
	cfg    *cfg.Cfg
}

func NewDevice(store *db.SQLite, tokens *Tokens, c *cfg.Cfg) *Device {
	if store == nil || tokens == nil || c == nil {
		panic("device service: nil dependency (store, tokens, or cfg)")
	}
	return &Device{store: store, tokens: tokens, cfg: c}
}

// Init creates a pending code with a fixed short expiry. The caller is
// rate-limited per network address before this runs.
func (d *Device) Init(ctx context.Context) (string, int64, error) {
	code, err := util.NewDeviceCode()
	if err != nil {
		return "", 0, errors.Wrap(err, "gen device code")
	}
	now := time.Now().Unix()
	expiresAt := now + int64(d.cfg.DeviceCodeTTL.Seconds())
	if err := d.store.DeviceInsert(ctx, code, now, expiresAt); err != nil {
		return "", 0, errors.Wrap(err, "persist device code")
	}
	metrics.DeviceCodeCreated.Inc()
	return code, expiresAt, nil
}

// Approve issues a credential for the authenticated owner and stages its
// plaintext on the code row. A second approval of the same code fails;
// idempotency here is rejection, not silent success. If the conditional
// update loses a race the just-issued credential is revoked so no orphan
// token survives.
func (d *Device) Approve(ctx context.Context, code, ownerID string) error {
	if ownerID == "" {
		return domain.ErrUnauthorized
	}
	now := time.Now().Unix()
	dc, err := d.store.DeviceGet(ctx, code)
	if err != nil {
		return err
	}
	if dc.ExpiresAt <= now {
		return domain.ErrCodeNotFound
	}
	if dc.Approved {
		return domain.ErrCodeApproved
	}
	plaintext, cred, err := d.tokens.Issue(ctx, ownerID, "CLI token")
	if err != nil {
		return errors.Wrap(err, "issue token for device code")
	}
	ok, err := d.store.DeviceApprove(ctx, code, ownerID, plaintext, now)
	if err != nil {
		return errors.Wrap(err, "approve device code")
	}
	if !ok {
		if _, rerr := d.tokens.Revoke(ctx, cred.ID, ownerID); rerr != nil {
			util.Warn().Err(rerr).Str("credential_id", cred.ID).Msg("failed to revoke orphan token")
		}
		return domain.ErrCodeApproved
	}
	metrics.DeviceCodeApproved.Inc()
	util.Info().Str("code", code).Msg("device code approved")
	return nil
}

// Poll reports the code's state. The first poll that observes the
// approved state consumes the row while reading the token; any later poll
// for the same code finds nothing and reports expired, so a replayed or
// intercepted poll response cannot yield the token twice.
func (d *Device) Poll(ctx context.Context, code string) (*domain.DevicePollResult, error) {
	dc, err := d.store.DeviceGet(ctx, code)
	if err != nil {
		if errors.Is(err, domain.ErrCodeNotFound) {
			return &domain.DevicePollResult{Status: domain.DeviceExpired}, nil
		}
		return nil, err
	}
	if dc.ExpiresAt <= time.Now().Unix() {
		return &domain.DevicePollResult{Status: domain.DeviceExpired}, nil
	}
	if !dc.Approved {
		return &domain.DevicePollResult{Status: domain.DevicePending}, nil
	}
	token, consumed, err := d.store.DeviceConsume(ctx, code)
	if err != nil {
		return nil, errors.Wrap(err, "consume device code")
	}
	if !consumed {
		// Lost the consumption race; the winner already has the token.
		return &domain.DevicePollResult{Status: domain.DeviceExpired}, nil
	}
	metrics.DeviceCodeConsumed.Inc()
	return &domain.DevicePollResult{Status: domain.DeviceApproved, Token: token}, nil
}
