package auth

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
)

// TokenKey is the storage key for the persisted token pair
const TokenKey = "auth_tokens"

// ExpiringSoonWindow is how close to expiry a token counts as expiring
const ExpiringSoonWindow = 5 * time.Minute

// AuthTokens is the token pair returned by login and refresh endpoints
type AuthTokens struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    int64  `json:"expiresIn"` // seconds
}

// Token converts the response to an oauth2 token expiring ExpiresIn after now
func (t AuthTokens) Token(now time.Time) *oauth2.Token {
	tok := &oauth2.Token{
		AccessToken:  t.AccessToken,
		RefreshToken: t.RefreshToken,
		TokenType:    "Bearer",
	}
	if t.ExpiresIn > 0 {
		tok.Expiry = now.Add(time.Duration(t.ExpiresIn) * time.Second)
	}
	return tok
}

// Credentials is the token surface an API client needs. Both TokenStore and
// SessionTokens implement it.
type Credentials interface {
	CredentialStore
	Token(ctx context.Context) (*oauth2.Token, bool)
	SetTokens(ctx context.Context, t AuthTokens) error
	ExpiringSoon(ctx context.Context) bool
}

// Persister stores the serialized token state, like a browser's localStorage
type Persister interface {
	Load() ([]byte, error) // nil, nil when nothing is stored
	Save(data []byte) error
	Remove() error
}

// storedTokens is the persisted shape; expiresAt is unix milliseconds
type storedTokens struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresAt    int64  `json:"expiresAt,omitempty"`
}

// TokenStore holds the current token pair in memory and mirrors it to a
// Persister
type TokenStore struct {
	mu      sync.RWMutex
	tok     *oauth2.Token
	persist Persister
	now     func() time.Time
	log     zerolog.Logger
}

// TokenStoreOption configures a TokenStore
type TokenStoreOption func(*TokenStore)

// WithTokenClock replaces time.Now
func WithTokenClock(now func() time.Time) TokenStoreOption {
	return func(s *TokenStore) { s.now = now }
}

// WithTokenLogger sets the logger
func WithTokenLogger(l zerolog.Logger) TokenStoreOption {
	return func(s *TokenStore) { s.log = l }
}

// NewTokenStore loads any persisted tokens. Unreadable state is logged and
// cleared rather than returned as an error.
func NewTokenStore(p Persister, opts ...TokenStoreOption) *TokenStore {
	s := &TokenStore{persist: p, now: time.Now, log: zerolog.Nop()}
	for _, o := range opts {
		o(s)
	}
	if err := s.load(); err != nil {
		s.log.Error().Err(err).Msg("failed to load auth tokens")
		_ = s.Clear(context.Background())
	}
	return s
}

func (s *TokenStore) load() error {
	data, err := s.persist.Load()
	if err != nil || len(data) == 0 {
		return err
	}
	var st storedTokens
	if err := json.Unmarshal(data, &st); err != nil {
		return err
	}
	tok := &oauth2.Token{AccessToken: st.AccessToken, RefreshToken: st.RefreshToken, TokenType: "Bearer"}
	if st.ExpiresAt > 0 {
		tok.Expiry = time.UnixMilli(st.ExpiresAt)
	}
	s.tok = tok
	return nil
}

// SetTokens replaces the token pair and persists it. A persistence failure
// is logged; the in-memory pair is still updated.
func (s *TokenStore) SetTokens(_ context.Context, t AuthTokens) error {
	tok := t.Token(s.now())
	s.mu.Lock()
	s.tok = tok
	s.mu.Unlock()

	st := storedTokens{AccessToken: tok.AccessToken, RefreshToken: tok.RefreshToken}
	if !tok.Expiry.IsZero() {
		st.ExpiresAt = tok.Expiry.UnixMilli()
	}
	data, err := json.Marshal(st)
	if err != nil {
		return err
	}
	if err := s.persist.Save(data); err != nil {
		s.log.Error().Err(err).Msg("failed to save auth tokens")
		return err
	}
	return nil
}

// Token returns a copy of the current token
func (s *TokenStore) Token(_ context.Context) (*oauth2.Token, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.tok == nil || s.tok.AccessToken == "" {
		return nil, false
	}
	cp := *s.tok
	return &cp, true
}

// AccessToken returns the access token or ""
func (s *TokenStore) AccessToken(ctx context.Context) string {
	if tok, ok := s.Token(ctx); ok {
		return tok.AccessToken
	}
	return ""
}

// RefreshToken returns the refresh token or ""
func (s *TokenStore) RefreshToken(ctx context.Context) string {
	if tok, ok := s.Token(ctx); ok {
		return tok.RefreshToken
	}
	return ""
}

// IsAuthenticated reports whether an access token is held
func (s *TokenStore) IsAuthenticated(ctx context.Context) bool {
	return s.AccessToken(ctx) != ""
}

// ExpiringSoon reports whether the token expires within ExpiringSoonWindow
func (s *TokenStore) ExpiringSoon(ctx context.Context) bool {
	tok, ok := s.Token(ctx)
	if !ok {
		return false
	}
	return expiringSoon(tok, s.now())
}

// Clear drops the token pair from memory and storage
func (s *TokenStore) Clear(_ context.Context) error {
	s.mu.Lock()
	s.tok = nil
	s.mu.Unlock()
	return s.persist.Remove()
}

func expiringSoon(tok *oauth2.Token, now time.Time) bool {
	if tok.Expiry.IsZero() {
		return false
	}
	return tok.Expiry.Sub(now) < ExpiringSoonWindow
}

// MemoryPersister keeps the serialized state in memory
type MemoryPersister struct {
	mu   sync.Mutex
	data []byte
}

// NewMemoryPersister creates a persister optionally seeded with data
func NewMemoryPersister(data []byte) *MemoryPersister {
	return &MemoryPersister{data: data}
}

func (m *MemoryPersister) Load() ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data, nil
}

func (m *MemoryPersister) Save(data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = append([]byte(nil), data...)
	return nil
}

func (m *MemoryPersister) Remove() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = nil
	return nil
}
