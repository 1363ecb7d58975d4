package db

import (
	"context"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"

	"punt/pkg/domain"
)

func newTestStore(t *testing.T) *SQLite {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := NewSQLite(path)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testPaste(id string, now int64) *domain.Paste {
	return &domain.Paste{
		ID:        id,
		Content:   "hello world",
		CreatedAt: now,
		ExpiresAt: now + 3600,
		DeleteKey: "dk-" + id,
	}
}

func TestPasteRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().Unix()

	p := testPaste("abc1234", now)
	p.Language = "go"
	p.OwnerID = "user-1"
	if err := s.CreatePaste(ctx, p); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetPaste(ctx, "abc1234", now)
	if err != nil {
		t.Fatal(err)
	}
	if got.Content != "hello world" || got.Language != "go" || got.OwnerID != "user-1" {
		t.Errorf("round trip mismatch: %+v", got)
	}
	if got.Views != 0 {
		t.Errorf("fresh paste views = %d", got.Views)
	}

	exists, err := s.PasteExists(ctx, "abc1234")
	if err != nil {
		t.Fatal(err)
	}
	if !exists {
		t.Error("expected paste to exist")
	}
}

func TestGetPasteExpiredIsAbsent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().Unix()

	p := testPaste("expired", now-7200)
	p.ExpiresAt = now - 3600
	if err := s.CreatePaste(ctx, p); err != nil {
		t.Fatal(err)
	}
	_, err := s.GetPaste(ctx, "expired", now)
	if !errors.Is(err, domain.ErrPasteNotFound) {
		t.Errorf("expired paste should be not-found, got %v", err)
	}
}

func TestFirstViewExactlyOneWinner(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().Unix()

	p := testPaste("burnme1", now)
	p.BurnAfterRead = true
	if err := s.CreatePaste(ctx, p); err != nil {
		t.Fatal(err)
	}

	const readers = 50
	var winners atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < readers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			won, err := s.FirstView(ctx, "burnme1")
			if err != nil {
				t.Error(err)
				return
			}
			if won {
				winners.Add(1)
			}
		}()
	}
	wg.Wait()
	if winners.Load() != 1 {
		t.Fatalf("expected exactly 1 first-view winner, got %d", winners.Load())
	}
}

func TestDeletePasteWithKey(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().Unix()

	if err := s.CreatePaste(ctx, testPaste("delme11", now)); err != nil {
		t.Fatal(err)
	}

	deleted, err := s.DeletePasteWithKey(ctx, "delme11", "wrong-key")
	if err != nil {
		t.Fatal(err)
	}
	if deleted {
		t.Error("wrong key must not delete")
	}

	deleted, err = s.DeletePasteWithKey(ctx, "delme11", "dk-delme11")
	if err != nil {
		t.Fatal(err)
	}
	if !deleted {
		t.Error("correct key should delete")
	}

	deleted, err = s.DeletePasteWithKey(ctx, "delme11", "dk-delme11")
	if err != nil {
		t.Fatal(err)
	}
	if deleted {
		t.Error("second delete should report nothing deleted")
	}
}

func TestExtendPaste(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().Unix()

	p := testPaste("extend1", now)
	p.OwnerID = "user-1"
	if err := s.CreatePaste(ctx, p); err != nil {
		t.Fatal(err)
	}

	extended, err := s.ExtendPaste(ctx, "extend1", "user-2", 600)
	if err != nil {
		t.Fatal(err)
	}
	if extended {
		t.Error("extension by a non-owner must fail")
	}

	extended, err = s.ExtendPaste(ctx, "extend1", "user-1", 600)
	if err != nil {
		t.Fatal(err)
	}
	if !extended {
		t.Fatal("owner extension should succeed")
	}
	got, err := s.GetPaste(ctx, "extend1", now)
	if err != nil {
		t.Fatal(err)
	}
	if got.ExpiresAt != p.ExpiresAt+600 {
		t.Errorf("expires_at = %d, want %d", got.ExpiresAt, p.ExpiresAt+600)
	}
}

func TestOwnerStatsAndList(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().Unix()

	for i, id := range []string{"owned01", "owned02", "owned03"} {
		p := testPaste(id, now-int64(i))
		p.OwnerID = "user-1"
		if i == 2 {
			p.ExpiresAt = now - 1
		}
		if err := s.CreatePaste(ctx, p); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.IncrViews(ctx, "owned01"); err != nil {
		t.Fatal(err)
	}

	stats, err := s.OwnerStats(ctx, "user-1", now)
	if err != nil {
		t.Fatal(err)
	}
	if stats.TotalPastes != 3 || stats.ActivePastes != 2 || stats.TotalViews != 1 {
		t.Errorf("stats = %+v", stats)
	}

	pastes, err := s.ListOwnedPastes(ctx, "user-1", now)
	if err != nil {
		t.Fatal(err)
	}
	if len(pastes) != 2 {
		t.Errorf("listed %d pastes, want 2 (expired excluded)", len(pastes))
	}
}

func TestSweepPastes(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().Unix()

	live := testPaste("live111", now)
	dead := testPaste("dead111", now-7200)
	dead.ExpiresAt = now - 3600
	if err := s.CreatePaste(ctx, live); err != nil {
		t.Fatal(err)
	}
	if err := s.CreatePaste(ctx, dead); err != nil {
		t.Fatal(err)
	}

	n, err := s.SweepPastes(ctx, now)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("swept %d rows, want 1", n)
	}
	if _, err := s.GetPaste(ctx, "live111", now); err != nil {
		t.Errorf("live paste should survive the sweep: %v", err)
	}
}

func TestCounters(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().Unix()

	count, err := s.CounterGet(ctx, "create:ip:1.2.3.4:2026-01-01")
	if err != nil {
		t.Fatal(err)
	}
	if count != 0 {
		t.Errorf("missing bucket should read 0, got %d", count)
	}

	for i := 0; i < 3; i++ {
		if err := s.CounterIncr(ctx, "create:ip:1.2.3.4:2026-01-01", now+3600); err != nil {
			t.Fatal(err)
		}
	}
	count, err = s.CounterGet(ctx, "create:ip:1.2.3.4:2026-01-01")
	if err != nil {
		t.Fatal(err)
	}
	if count != 3 {
		t.Errorf("count = %d, want 3", count)
	}

	if err := s.CounterIncr(ctx, "stale-bucket", now-1); err != nil {
		t.Fatal(err)
	}
	n, err := s.SweepCounters(ctx, now)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("swept %d counters, want 1", n)
	}
}

func TestCredentialLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().Unix()

	cred := &domain.Credential{
		ID:        "cred-1",
		TokenHash: "hash-1",
		OwnerID:   "user-1",
		Name:      "CLI token",
		CreatedAt: now,
	}
	if err := s.CredentialInsert(ctx, cred); err != nil {
		t.Fatal(err)
	}

	got, err := s.CredentialByHash(ctx, "hash-1")
	if err != nil {
		t.Fatal(err)
	}
	if got.OwnerID != "user-1" || got.Revoked {
		t.Errorf("credential = %+v", got)
	}

	if _, err := s.CredentialByHash(ctx, "nope"); !errors.Is(err, domain.ErrTokenNotFound) {
		t.Errorf("unknown hash should be token-not-found, got %v", err)
	}

	if err := s.CredentialTouch(ctx, "cred-1", now+10); err != nil {
		t.Fatal(err)
	}
	got, err = s.CredentialByHash(ctx, "hash-1")
	if err != nil {
		t.Fatal(err)
	}
	if got.LastUsedAt != now+10 {
		t.Errorf("last_used_at = %d, want %d", got.LastUsedAt, now+10)
	}

	revoked, err := s.CredentialRevoke(ctx, "cred-1", "user-2")
	if err != nil {
		t.Fatal(err)
	}
	if revoked {
		t.Error("revocation by a non-owner must fail")
	}
	revoked, err = s.CredentialRevoke(ctx, "cred-1", "user-1")
	if err != nil {
		t.Fatal(err)
	}
	if !revoked {
		t.Fatal("owner revocation should succeed")
	}
	revoked, err = s.CredentialRevoke(ctx, "cred-1", "user-1")
	if err != nil {
		t.Fatal(err)
	}
	if revoked {
		t.Error("second revocation should report nothing changed")
	}

	creds, err := s.CredentialList(ctx, "user-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(creds) != 0 {
		t.Errorf("revoked credentials must not be listed, got %d", len(creds))
	}
}

func TestDeviceCodeLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().Unix()

	if err := s.DeviceInsert(ctx, "code-1", now, now+300); err != nil {
		t.Fatal(err)
	}

	dc, err := s.DeviceGet(ctx, "code-1")
	if err != nil {
		t.Fatal(err)
	}
	if dc.Approved || dc.Token != "" {
		t.Errorf("fresh code = %+v", dc)
	}

	if _, err := s.DeviceGet(ctx, "missing"); !errors.Is(err, domain.ErrCodeNotFound) {
		t.Errorf("unknown code should be not-found, got %v", err)
	}

	// Consuming an unapproved code must fail.
	_, consumed, err := s.DeviceConsume(ctx, "code-1")
	if err != nil {
		t.Fatal(err)
	}
	if consumed {
		t.Fatal("unapproved code must not be consumable")
	}

	ok, err := s.DeviceApprove(ctx, "code-1", "user-1", "punt_secret", now)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("approval of a pending code should succeed")
	}

	ok, err = s.DeviceApprove(ctx, "code-1", "user-2", "punt_other", now)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("second approval must lose the approved=0 guard")
	}

	token, consumed, err := s.DeviceConsume(ctx, "code-1")
	if err != nil {
		t.Fatal(err)
	}
	if !consumed || token != "punt_secret" {
		t.Fatalf("consume = (%q, %v)", token, consumed)
	}

	_, consumed, err = s.DeviceConsume(ctx, "code-1")
	if err != nil {
		t.Fatal(err)
	}
	if consumed {
		t.Fatal("a consumed code must not be consumable again")
	}
}

func TestDeviceApproveExpired(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().Unix()

	if err := s.DeviceInsert(ctx, "stale-1", now-600, now-300); err != nil {
		t.Fatal(err)
	}
	ok, err := s.DeviceApprove(ctx, "stale-1", "user-1", "punt_secret", now)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("approving an expired code must fail")
	}

	n, err := s.SweepDeviceCodes(ctx, now)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("swept %d codes, want 1", n)
	}
}

func TestDeviceConsumeConcurrent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().Unix()

	if err := s.DeviceInsert(ctx, "race-01", now, now+300); err != nil {
		t.Fatal(err)
	}
	if ok, err := s.DeviceApprove(ctx, "race-01", "user-1", "punt_secret", now); err != nil || !ok {
		t.Fatalf("approve = (%v, %v)", ok, err)
	}

	const pollers = 30
	var winners atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < pollers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, consumed, err := s.DeviceConsume(ctx, "race-01")
			if err != nil {
				t.Error(err)
				return
			}
			if consumed {
				winners.Add(1)
			}
		}()
	}
	wg.Wait()
	if winners.Load() != 1 {
		t.Fatalf("expected exactly 1 consumer, got %d", winners.Load())
	}
}

func TestReportInsert(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().Unix()

	if err := s.ReportInsert(ctx, "abc1234", "spam", "1.2.3.4", now); err != nil {
		t.Fatal(err)
	}
	var count int
	if err := s.DB().QueryRow(`SELECT COUNT(*) FROM reports WHERE paste_id = ?`, "abc1234").Scan(&count); err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Errorf("report count = %d", count)
	}
}
