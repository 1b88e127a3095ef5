package credentials

import (
	"errors"
	"log/slog"
	"time"
)

// MaxTokenAge caps how long an access token is trusted, whatever lifetime the authority claims.
const MaxTokenAge = 30 * time.Minute

var (
	ErrNotAuthorized   = errors.New("credentials: not authorized")
	ErrRefreshRejected = errors.New("credentials: refresh token rejected")
)

// CredentialSet is the persisted OAuth state for the source account.
type CredentialSet struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	TokenType    string    `json:"token_type"`
	Scope        string    `json:"scope"`
	ExpiresIn    int64     `json:"expires_in"`
	GrantedAt    time.Time `json:"granted_at"`
	RefreshedAt  time.Time `json:"refreshed_at"`
}

// Lifetime is the effective token lifetime: the claimed one, capped at MaxTokenAge.
func (c *CredentialSet) Lifetime() time.Duration {
	claimed := time.Duration(c.ExpiresIn) * time.Second
	return min(claimed, MaxTokenAge)
}

// IsExpired reports whether the access token is older than its effective lifetime at now.
func (c *CredentialSet) IsExpired(now time.Time) bool {
	return now.Sub(c.RefreshedAt) > c.Lifetime()
}

func (c *CredentialSet) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("token_type", c.TokenType),
		slog.Int64("expires_in", c.ExpiresIn),
		slog.Time("refreshed_at", c.RefreshedAt),
	)
}
