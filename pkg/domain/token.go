package domain

// TokenPrefix makes issued bearer tokens recognizable to secret scanners.
const TokenPrefix = "punt_"

// Credential is a long-lived bearer credential. The plaintext token is
// returned exactly once at issuance; only its digest is ever stored.
type Credential struct {
	ID         string `json:"id"`
	TokenHash  string `json:"-"`
	OwnerID    string `json:"-"`
	Name       string `json:"name"`
	CreatedAt  int64  `json:"created_at"`
	LastUsedAt int64  `json:"last_used_at,omitempty"`
	ExpiresAt  int64  `json:"expires_at,omitempty"`
	Revoked    bool   `json:"-"`
}

// DeviceCode is the short-lived secret exchanged during the device
// authorization flow. The row is consumed the first time an approved code
// is polled; that single consumption is the core contract of the flow.
type DeviceCode struct {
	Code      string
	OwnerID   string
	Token     string
	CreatedAt int64
	ExpiresAt int64
	Approved  bool
}

type DeviceStatus string

const (
	DevicePending  DeviceStatus = "pending"
	DeviceApproved DeviceStatus = "approved"
	DeviceExpired  DeviceStatus = "expired"
)

type DevicePollResult struct {
	Status DeviceStatus `json:"status"`
	Token  string       `json:"token,omitempty"`
}
