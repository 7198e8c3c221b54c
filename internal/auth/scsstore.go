package auth

import (
	"context"
	"time"

	scs "github.com/alexedwards/scs/v2"
	"golang.org/x/oauth2"
)

// session data keys used by SessionTokens
const (
	sessAccessToken  = "access_token"
	sessRefreshToken = "refresh_token"
	sessExpiresAt    = "expires_at" // unix milliseconds
)

// SessionTokens keeps the token pair in a browser session. Every call reads
// the session bound to ctx, so ctx must come from a request wrapped by
// SessionManager.LoadAndSave.
type SessionTokens struct {
	sess *scs.SessionManager
	now  func() time.Time
}

// NewSessionTokens wraps a session manager
func NewSessionTokens(sess *scs.SessionManager) *SessionTokens {
	return &SessionTokens{sess: sess, now: time.Now}
}

// SetTokens implements Credentials
func (st *SessionTokens) SetTokens(ctx context.Context, t AuthTokens) error {
	tok := t.Token(st.now())
	st.sess.Put(ctx, sessAccessToken, tok.AccessToken)
	st.sess.Put(ctx, sessRefreshToken, tok.RefreshToken)
	if tok.Expiry.IsZero() {
		st.sess.Remove(ctx, sessExpiresAt)
	} else {
		st.sess.Put(ctx, sessExpiresAt, tok.Expiry.UnixMilli())
	}
	return nil
}

// Token implements Credentials
func (st *SessionTokens) Token(ctx context.Context) (*oauth2.Token, bool) {
	access := st.sess.GetString(ctx, sessAccessToken)
	if access == "" {
		return nil, false
	}
	tok := &oauth2.Token{
		AccessToken:  access,
		RefreshToken: st.sess.GetString(ctx, sessRefreshToken),
		TokenType:    "Bearer",
	}
	if ms := st.sess.GetInt64(ctx, sessExpiresAt); ms > 0 {
		tok.Expiry = time.UnixMilli(ms)
	}
	return tok, true
}

// IsAuthenticated implements CredentialStore
func (st *SessionTokens) IsAuthenticated(ctx context.Context) bool {
	return st.sess.GetString(ctx, sessAccessToken) != ""
}

// ExpiringSoon implements Credentials
func (st *SessionTokens) ExpiringSoon(ctx context.Context) bool {
	tok, ok := st.Token(ctx)
	if !ok {
		return false
	}
	return expiringSoon(tok, st.now())
}

// Clear implements CredentialStore
func (st *SessionTokens) Clear(ctx context.Context) error {
	st.sess.Remove(ctx, sessAccessToken)
	st.sess.Remove(ctx, sessRefreshToken)
	st.sess.Remove(ctx, sessExpiresAt)
	return nil
}
