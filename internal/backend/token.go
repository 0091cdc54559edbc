package backend

import (
	"sync"
	"time"

	"golang.org/x/oauth2"
)

// Credential is an oauth2.TokenSource over a bearer token issued elsewhere.
// It never refreshes; once the token is expired or revoked every call fails
// with ErrAuthExpired until SetToken installs a new one.
type Credential struct {
	mu    sync.Mutex
	token *oauth2.Token
	now   func() time.Time
}

func NewCredential(accessToken string, expiry time.Time) *Credential {
	c := &Credential{now: time.Now}
	c.SetToken(accessToken, expiry)
	return c
}

func (c *Credential) SetToken(accessToken string, expiry time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if accessToken == "" {
		c.token = nil
		return
	}
	c.token = &oauth2.Token{AccessToken: accessToken, TokenType: "Bearer", Expiry: expiry}
}

// Revoke drops the token, for example after the server answered 401.
func (c *Credential) Revoke() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = nil
}

func (c *Credential) Token() (*oauth2.Token, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token == nil || c.token.AccessToken == "" {
		return nil, ErrAuthExpired
	}
	if !c.token.Expiry.IsZero() && !c.now().Before(c.token.Expiry) {
		return nil, ErrAuthExpired
	}
	tok := *c.token
	return &tok, nil
}
