package svc

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"punt/metrics"
	"punt/pkg/domain"
	"punt/svc/cache"
	"punt/svc/db"
	"punt/svc/util"
)

// Tokens issues, validates, and revokes long-lived bearer credentials.
// The plaintext token is handed out once at issuance; only its SHA-256
// digest ever touches the store or the logs.
type Tokens struct {
	store *db.SQLite
	creds *cache.Credentials
}

func NewTokens(store *db.SQLite, creds *cache.Credentials) *Tokens {
	if store == nil {
		panic("token service: nil store")
	}
	return &Tokens{store: store, creds: creds}
}

// HashToken is the digest persisted in place of the plaintext token.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func (t *Tokens) Issue(ctx context.Context, ownerID, name string) (string, *domain.Credential, error) {
	if ownerID == "" {
		return "", nil, domain.ErrUnauthorized
	}
	if name == "" {
		name = "CLI token"
	}
	raw, err := util.RandString(util.TokenLen)
	if err != nil {
		return "", nil, errors.Wrap(err, "gen token")
	}
	plaintext := domain.TokenPrefix + raw
	cred := &domain.Credential{
		ID:        uuid.New().String(),
		TokenHash: HashToken(plaintext),
		OwnerID:   ownerID,
		Name:      name,
		CreatedAt: time.Now().Unix(),
	}
	if err := t.store.CredentialInsert(ctx, cred); err != nil {
		return "", nil, errors.Wrap(err, "persist credential")
	}
	metrics.TokenIssued.Inc()
	util.Info().Str("credential_id", cred.ID).Msg("token issued")
	return plaintext, cred, nil
}

// Validate resolves a plaintext token to the identity it was issued for.
// Unknown, revoked, and expired credentials all come back as
// ErrUnauthorized; the caller cannot tell which. last_used_at is updated
// best-effort off the request path.
func (t *Tokens) Validate(ctx context.Context, plaintext string) (domain.Identity, error) {
	if !strings.HasPrefix(plaintext, domain.TokenPrefix) {
		return domain.Identity{}, domain.ErrUnauthorized
	}
	hash := HashToken(plaintext)
	if t.creds != nil {
		if ident, credID, ok := t.creds.Get(hash); ok {
			metrics.CredCacheHits.Inc()
			t.touch(credID)
			return ident, nil
		}
		metrics.CredCacheMisses.Inc()
	}
	cred, err := t.store.CredentialByHash(ctx, hash)
	if err != nil {
		if errors.Is(err, domain.ErrTokenNotFound) {
			return domain.Identity{}, domain.ErrUnauthorized
		}
		return domain.Identity{}, errors.Wrap(err, "lookup credential")
	}
	if cred.Revoked {
		return domain.Identity{}, domain.ErrUnauthorized
	}
	if cred.ExpiresAt > 0 && cred.ExpiresAt < time.Now().Unix() {
		return domain.Identity{}, domain.ErrUnauthorized
	}
	ident := domain.Identity{OwnerID: cred.OwnerID}
	if t.creds != nil {
		t.creds.Set(hash, ident, cred.ID)
	}
	t.touch(cred.ID)
	return ident, nil
}

func (t *Tokens) touch(credID string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := t.store.CredentialTouch(ctx, credID, time.Now().Unix()); err != nil {
			util.Debug().Err(err).Str("credential_id", credID).Msg("last_used_at update failed")
		}
	}()
}

// Revoke is one-way and owner-scoped. The cache entry is dropped so the
// token dies immediately on this instance.
func (t *Tokens) Revoke(ctx context.Context, id, ownerID string) (bool, error) {
	revoked, err := t.store.CredentialRevoke(ctx, id, ownerID)
	if err != nil {
		return false, errors.Wrap(err, "revoke credential")
	}
	if revoked {
		if t.creds != nil {
			t.creds.DropCredential(id)
		}
		metrics.TokenRevoked.Inc()
		util.Info().Str("credential_id", id).Msg("token revoked")
	}
	return revoked, nil
}

// List returns credential metadata only; hashes are scrubbed before the
// slice leaves this package.
func (t *Tokens) List(ctx context.Context, ownerID string) ([]domain.Credential, error) {
	creds, err := t.store.CredentialList(ctx, ownerID)
	if err != nil {
		return nil, errors.Wrap(err, "list credentials")
	}
	for i := range creds {
		creds[i].TokenHash = ""
	}
	return creds, nil
}
