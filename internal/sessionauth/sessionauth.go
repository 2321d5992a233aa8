// Package sessionauth decodes the cookie the session gateway receives at
// connect time into the {userId, activeOrganizationId} pair the rest of
// the system needs. It is a thin domain wrapper over internal/jwt.
package sessionauth

import (
	"net/http"

	gojwt "github.com/golang-jwt/jwt/v5"

	"github.com/kbukum/sttrelay/internal/jwt"
)

// SessionClaims is the decoded shape of the session cookie.
type SessionClaims struct {
	gojwt.RegisteredClaims
	UserID               string `json:"userId"`
	ActiveOrganizationID string `json:"activeOrganizationId,omitempty"`
}

// CookieName is the cookie the external auth collaborator sets on login.
// Session authentication itself (login, social auth, token issuance) is
// out of scope for this system; only decoding is implemented here.
const CookieName = "session"

// Authenticator decodes and validates the session cookie.
type Authenticator struct {
	svc *jwt.Service[*SessionClaims]
}

// New constructs an Authenticator from JWT config.
func New(cfg jwt.Config) (*Authenticator, error) {
	svc, err := jwt.NewService(&cfg, func() *SessionClaims { return &SessionClaims{} })
	if err != nil {
		return nil, err
	}
	return &Authenticator{svc: svc}, nil
}

// Decode validates the session cookie's token string and returns the
// caller's identity and active organization.
func (a *Authenticator) Decode(tokenString string) (*SessionClaims, error) {
	return a.svc.Parse(tokenString)
}

// FromRequest extracts and decodes the session cookie from an HTTP request,
// used at the websocket upgrade handshake.
func (a *Authenticator) FromRequest(r *http.Request) (*SessionClaims, error) {
	cookie, err := r.Cookie(CookieName)
	if err != nil {
		return nil, err
	}
	return a.Decode(cookie.Value)
}
