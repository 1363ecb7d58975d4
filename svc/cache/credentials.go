package cache

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/pkg/errors"

	"punt/pkg/domain"
)

type entry struct {
	ident  domain.Identity
	credID string
}

// Credentials is a short-TTL cache in front of the token table so that a
// chatty authenticated client does not cost one store read per request.
// Entries are dropped eagerly on revocation; the TTL bounds staleness for
// revocations issued by another instance.
type Credentials struct {
	c *expirable.LRU[string, entry]
}

func NewCredentials(size int, ttl time.Duration) (*Credentials, error) {
	if size <= 0 {
		return nil, errors.New("cache size must be positive")
	}
	if size > 100000 {
		return nil, errors.New("cache size too large")
	}
	return &Credentials{
		c: expirable.NewLRU[string, entry](size, nil, ttl),
	}, nil
}

func (c *Credentials) Get(tokenHash string) (domain.Identity, string, bool) {
	e, ok := c.c.Get(tokenHash)
	if !ok {
		return domain.Identity{}, "", false
	}
	return e.ident, e.credID, true
}

func (c *Credentials) Set(tokenHash string, ident domain.Identity, credID string) {
	c.c.Add(tokenHash, entry{ident: ident, credID: credID})
}

// DropCredential evicts whatever hash maps to the given credential id.
// Revocation knows only the row id, so this walks the (small) cache.
func (c *Credentials) DropCredential(credID string) {
	for _, k := range c.c.Keys() {
		if e, ok := c.c.Peek(k); ok && e.credID == credID {
			c.c.Remove(k)
		}
	}
}
