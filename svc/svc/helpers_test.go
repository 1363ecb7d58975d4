package svc

import (
	"path/filepath"
	"testing"
	"time"

	"punt/cfg"
	"punt/svc/cache"
	"punt/svc/db"
)

func newTestCfg() *cfg.Cfg {
	return &cfg.Cfg{
		MaxPasteSize:  4 * 1024 * 1024,
		ViewWorkers:   2,
		DeviceCodeTTL: 5 * time.Minute,
		PollInterval:  2 * time.Second,
	}
}

func newTestStore(t *testing.T) *db.SQLite {
	t.Helper()
	store, err := db.NewSQLite(filepath.Join(t.TempDir(), "svc.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func newTestCache(t *testing.T) *cache.Credentials {
	t.Helper()
	creds, err := cache.NewCredentials(128, time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	return creds
}
