package cache

import (
	"testing"
	"time"

	"punt/pkg/domain"
)

func TestCredentialsCache(t *testing.T) {
	c, err := NewCredentials(8, time.Minute)
	if err != nil {
		t.Fatal(err)
	}

	if _, _, ok := c.Get("missing"); ok {
		t.Error("empty cache should miss")
	}

	ident := domain.Identity{OwnerID: "user-1"}
	c.Set("hash-1", ident, "cred-1")
	got, credID, ok := c.Get("hash-1")
	if !ok || got.OwnerID != "user-1" || credID != "cred-1" {
		t.Errorf("get = (%+v, %q, %v)", got, credID, ok)
	}
}

func TestDropCredential(t *testing.T) {
	c, err := NewCredentials(8, time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	c.Set("hash-1", domain.Identity{OwnerID: "user-1"}, "cred-1")
	c.Set("hash-2", domain.Identity{OwnerID: "user-2"}, "cred-2")

	c.DropCredential("cred-1")
	if _, _, ok := c.Get("hash-1"); ok {
		t.Error("dropped credential still cached")
	}
	if _, _, ok := c.Get("hash-2"); !ok {
		t.Error("unrelated entry evicted")
	}
}

func TestNewCredentialsBounds(t *testing.T) {
	if _, err := NewCredentials(0, time.Minute); err == nil {
		t.Error("zero size should be rejected")
	}
	if _, err := NewCredentials(200000, time.Minute); err == nil {
		t.Error("absurd size should be rejected")
	}
}
