package domain

const MaxPasteSize = 4 * 1024 * 1024

// Identity is the caller of a quota-gated or ownership-scoped operation.
// Anonymous callers are keyed by network address, authenticated callers by
// the account id their credential resolves to.
type Identity struct {
	OwnerID string
	Addr    string
}

func (i Identity) Authenticated() bool { return i.OwnerID != "" }

// Key returns the quota bucket component for this identity.
func (i Identity) Key() string {
	if i.Authenticated() {
		return "user:" + i.OwnerID
	}
	return "ip:" + i.Addr
}

type Paste struct {
	ID            string `json:"id"`
	Content       string `json:"content"`
	CreatedAt     int64  `json:"created_at"`
	ExpiresAt     int64  `json:"expires_at"`
	Views         int64  `json:"views"`
	DeleteKey     string `json:"-"`
	BurnAfterRead bool   `json:"burn_after_read"`
	IsPrivate     bool   `json:"is_private"`
	ViewKey       string `json:"-"`
	OwnerID       string `json:"-"`
	Language      string `json:"language,omitempty"`
	CreatorAddr   string `json:"-"`
}

type CreateParams struct {
	Content       string
	TTL           string
	BurnAfterRead bool
	Private       bool
	Language      string
	Identity      Identity
}

// CreateResult carries everything the creator needs and nobody else gets to
// see again: the delete key is only ever returned here.
type CreateResult struct {
	Paste      *Paste
	DeleteKey  string
	ViewKey    string
	TTLWarning string
}

type OwnerStats struct {
	TotalPastes  int64 `json:"total_pastes"`
	ActivePastes int64 `json:"active_pastes"`
	TotalViews   int64 `json:"total_views"`
}
