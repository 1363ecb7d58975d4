package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"

	"punt/pkg/domain"
)

func TestCreateSendsOptionHeaders(t *testing.T) {
	var got *http.Request
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Clone(context.Background())
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(CreateResult{ID: "abc1234", DeleteKey: "dk", ExpiresAt: 42})
	}))
	defer ts.Close()

	c := New(ts.URL, WithToken("punt_testtoken"))
	result, err := c.Create(context.Background(), []byte("hi"), CreateOpts{
		TTL: "1h", BurnAfterRead: true, Private: true, Language: "go",
	})
	if err != nil {
		t.Fatal(err)
	}
	if result.ID != "abc1234" || result.DeleteKey != "dk" {
		t.Errorf("result = %+v", result)
	}
	if got.Method != "POST" || got.URL.Path != "/api/paste" {
		t.Errorf("request = %s %s", got.Method, got.URL.Path)
	}
	if got.Header.Get("X-TTL") != "1h" ||
		got.Header.Get("X-Burn-After-Read") != "1" ||
		got.Header.Get("X-Private") != "1" ||
		got.Header.Get("X-Language") != "go" {
		t.Errorf("option headers = %v", got.Header)
	}
	if got.Header.Get("Authorization") != "Bearer punt_testtoken" {
		t.Errorf("auth header = %q", got.Header.Get("Authorization"))
	}
}

func TestRawPassesViewKey(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/paste/abc1234/raw" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if r.URL.Query().Get("key") != "vk123" {
			t.Errorf("key = %q", r.URL.Query().Get("key"))
		}
		w.Write([]byte("raw content"))
	}))
	defer ts.Close()

	content, err := New(ts.URL).Raw(context.Background(), "abc1234", "vk123")
	if err != nil {
		t.Fatal(err)
	}
	if string(content) != "raw content" {
		t.Errorf("content = %q", content)
	}
}

func TestErrorResponseDecoding(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusGone)
		json.NewEncoder(w).Encode(domain.ToResp(domain.ErrPasteBurned))
	}))
	defer ts.Close()

	_, err := New(ts.URL).Raw(context.Background(), "gone123", "")
	if err == nil {
		t.Fatal("expected an error")
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error type %T", err)
	}
	if apiErr.StatusCode != http.StatusGone || apiErr.Code != "PASTE_BURNED" {
		t.Errorf("apiErr = %+v", apiErr)
	}
}

func TestLoginPollsUntilApproved(t *testing.T) {
	var polls atomic.Int64
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/cli/init":
			json.NewEncoder(w).Encode(LoginInit{
				Code:        "code1234",
				ExpiresAt:   time.Now().Add(5 * time.Minute).Unix(),
				ApprovalURL: "http://punt.test/cli/approve?code=code1234",
				Interval:    1,
			})
		case "/api/cli/poll":
			if r.URL.Query().Get("code") != "code1234" {
				t.Errorf("poll code = %q", r.URL.Query().Get("code"))
			}
			result := domain.DevicePollResult{Status: domain.DevicePending}
			if polls.Add(1) >= 2 {
				result = domain.DevicePollResult{Status: domain.DeviceApproved, Token: "punt_minted"}
			}
			json.NewEncoder(w).Encode(result)
		default:
			t.Errorf("unexpected path %q", r.URL.Path)
		}
	}))
	defer ts.Close()

	var sawInit bool
	token, err := New(ts.URL).Login(context.Background(), func(init *LoginInit) {
		sawInit = true
		if init.ApprovalURL == "" {
			t.Error("empty approval URL")
		}
	})
	if err != nil {
		t.Fatal(err)
	}
	if token != "punt_minted" {
		t.Errorf("token = %q", token)
	}
	if !sawInit {
		t.Error("onInit callback never ran")
	}
	if polls.Load() < 2 {
		t.Errorf("polled %d times, want at least 2", polls.Load())
	}
}

func TestLoginStopsOnExpiredCode(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/cli/init":
			json.NewEncoder(w).Encode(LoginInit{
				Code:      "code1234",
				ExpiresAt: time.Now().Add(5 * time.Minute).Unix(),
				Interval:  1,
			})
		case "/api/cli/poll":
			json.NewEncoder(w).Encode(domain.DevicePollResult{Status: domain.DeviceExpired})
		}
	}))
	defer ts.Close()

	_, err := New(ts.URL).Login(context.Background(), nil)
	if err == nil {
		t.Fatal("expected an error for an expired code")
	}
}

func TestLoginHonorsContextCancellation(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/cli/init":
			json.NewEncoder(w).Encode(LoginInit{
				Code:      "code1234",
				ExpiresAt: time.Now().Add(5 * time.Minute).Unix(),
				Interval:  1,
			})
		case "/api/cli/poll":
			json.NewEncoder(w).Encode(domain.DevicePollResult{Status: domain.DevicePending})
		}
	}))
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 1500*time.Millisecond)
	defer cancel()
	_, err := New(ts.URL).Login(ctx, nil)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want deadline exceeded", err)
	}
}

func TestTokensAndRevoke(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == "GET" && r.URL.Path == "/api/me/tokens":
			json.NewEncoder(w).Encode([]domain.Credential{{ID: "cred-1", Name: "laptop"}})
		case r.Method == "DELETE" && r.URL.Path == "/api/me/tokens/cred-1":
			json.NewEncoder(w).Encode(map[string]string{"status": "revoked"})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer ts.Close()

	c := New(ts.URL, WithToken("punt_t"))
	creds, err := c.Tokens(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(creds) != 1 || creds[0].ID != "cred-1" {
		t.Errorf("creds = %+v", creds)
	}
	if err := c.RevokeToken(context.Background(), "cred-1"); err != nil {
		t.Fatal(err)
	}
}
