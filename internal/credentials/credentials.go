// Package credentials carries the backend credential triple and persists it
// in the encrypted local vault.
package credentials

import (
	"context"
	"net/url"
	"strings"
)

// Query keys the host application uses when it redirects into the editor.
const (
	QueryAccessToken = "access_token"
	QueryUserID      = "useId"
	QueryCompanyID   = "companyId"
)

// Credentials authenticate calls to the backend.
type Credentials struct {
	AccessToken string `json:"access_token"`
	UserID      string `json:"use_id"`
	CompanyID   string `json:"company_id"`
}

// Valid reports whether all three parts are present.
func (c Credentials) Valid() bool {
	return c.AccessToken != "" && c.UserID != "" && c.CompanyID != ""
}

// Merge fills the fields of c that are empty from other. A partial callback
// never erases a part that is already known.
func (c Credentials) Merge(other Credentials) Credentials {
	if other.AccessToken != "" {
		c.AccessToken = other.AccessToken
	}
	if other.UserID != "" {
		c.UserID = other.UserID
	}
	if other.CompanyID != "" {
		c.CompanyID = other.CompanyID
	}
	return c
}

// Redacted returns a copy safe for logging.
func (c Credentials) Redacted() Credentials {
	if n := len(c.AccessToken); n > 0 {
		keep := min(4, n/4)
		c.AccessToken = c.AccessToken[:keep] + strings.Repeat("*", 8)
	}
	return c
}

// FromQuery extracts credentials from callback query parameters.
// Missing keys leave the corresponding field empty.
func FromQuery(q url.Values) Credentials {
	return Credentials{
		AccessToken: strings.TrimSpace(q.Get(QueryAccessToken)),
		UserID:      strings.TrimSpace(q.Get(QueryUserID)),
		CompanyID:   strings.TrimSpace(q.Get(QueryCompanyID)),
	}
}

// Supplier yields the credentials for the next backend call.
type Supplier interface {
	Credentials(ctx context.Context) (Credentials, error)
}

// Static is a Supplier that always returns the same triple.
type Static Credentials

func (s Static) Credentials(context.Context) (Credentials, error) {
	return Credentials(s), nil
}
