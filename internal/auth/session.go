// Package auth holds the client-side login state: the persisted credential
// store, the in-memory session that derives "logged in" from it, and the
// locale-aware login redirect and prompt helpers.
package auth

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"
)

var errEmptyProfile = errors.New("profile response was empty")

// State is the lifecycle position of a Session
type State int

const (
	StateInitializing State = iota
	StateLoggedOut
	StateLoggedIn
)

func (s State) String() string {
	switch s {
	case StateInitializing:
		return "initializing"
	case StateLoggedOut:
		return "logged_out"
	case StateLoggedIn:
		return "logged_in"
	default:
		return "unknown"
	}
}

// Authenticator reports whether a credential is currently present
type Authenticator interface {
	IsAuthenticated(ctx context.Context) bool
}

// CredentialStore owns the persisted credential. The session never reads the
// credential value itself, only this predicate and Clear.
type CredentialStore interface {
	Authenticator
	Clear(ctx context.Context) error
}

// ProfileFetcher loads the signed-in user's profile
type ProfileFetcher interface {
	GetMyProfile(ctx context.Context) (*UserProfile, error)
}

// Navigator performs the navigation to the login entry point on logout
type Navigator interface {
	Navigate(ctx context.Context, target string)
}

// NavigatorFunc adapts a function to Navigator
type NavigatorFunc func(ctx context.Context, target string)

func (f NavigatorFunc) Navigate(ctx context.Context, target string) { f(ctx, target) }

// SessionOption configures a Session
type SessionOption func(*Session)

// WithLogger sets the session logger
func WithLogger(l zerolog.Logger) SessionOption {
	return func(s *Session) { s.log = l }
}

// WithNavigator sets the navigator used by Logout
func WithNavigator(n Navigator) SessionOption {
	return func(s *Session) { s.nav = n }
}

// Session is a single consumer's view of who is logged in
type Session struct {
	creds    CredentialStore
	profiles ProfileFetcher
	nav      Navigator
	log      zerolog.Logger

	mu      sync.RWMutex
	user    *UserProfile
	loading bool
}

// NewSession creates a session in the Initializing state
func NewSession(creds CredentialStore, profiles ProfileFetcher, opts ...SessionOption) *Session {
	s := &Session{
		creds:    creds,
		profiles: profiles,
		log:      zerolog.Nop(),
		loading:  true,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Initialize resolves the session from the credential store. Without a
// credential no profile is fetched. A failed profile fetch means the
// credential is no longer usable, so it is cleared. Loading is false
// afterwards on every path.
func (s *Session) Initialize(ctx context.Context) {
	defer s.setLoading(false)

	if !s.creds.IsAuthenticated(ctx) {
		s.setUser(nil)
		return
	}

	profile, err := s.profiles.GetMyProfile(ctx)
	if err == nil && profile == nil {
		err = errEmptyProfile
	}
	if err != nil {
		s.log.Error().Err(err).Msg("failed to load user profile")
		s.setUser(nil)
		if cerr := s.creds.Clear(ctx); cerr != nil {
			s.log.Error().Err(cerr).Msg("failed to clear credentials")
		}
		return
	}

	p := *profile
	s.setUser(&p)
}

// Login sets the user directly. The caller must already have stored the
// credential.
func (s *Session) Login(profile UserProfile) {
	s.setUser(&profile)
	s.setLoading(false)
}

// Logout clears the user and the credential, then navigates to the login
// page for the locale of the current path in ctx. It returns that target.
func (s *Session) Logout(ctx context.Context) string {
	s.setUser(nil)
	if err := s.creds.Clear(ctx); err != nil {
		s.log.Error().Err(err).Msg("failed to clear credentials")
	}

	target := LoginPath(CurrentPath(ctx))
	if s.nav != nil {
		s.nav.Navigate(ctx, target)
	}
	return target
}

// UpdateUser merges u into the current user; it does nothing when no user
// is set
func (s *Session) UpdateUser(u ProfileUpdate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.user == nil {
		return
	}
	next := *s.user
	u.Apply(&next)
	s.user = &next
}

// User returns a copy of the current user
func (s *Session) User() (UserProfile, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return UserProfile{}, false
	}
	return *s.user, true
}

// Loading reports whether Initialize has not yet finished
func (s *Session) Loading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loading
}

// IsLoggedIn is true iff a user is held in memory AND the credential store
// still reports a credential. Both are checked on every call, so a
// credential revoked elsewhere is seen even while the user copy is stale.
func (s *Session) IsLoggedIn(ctx context.Context) bool {
	s.mu.RLock()
	hasUser := s.user != nil
	s.mu.RUnlock()
	return hasUser && s.creds.IsAuthenticated(ctx)
}

// State derives the lifecycle state
func (s *Session) State(ctx context.Context) State {
	if s.Loading() {
		return StateInitializing
	}
	if s.IsLoggedIn(ctx) {
		return StateLoggedIn
	}
	return StateLoggedOut
}

func (s *Session) setUser(u *UserProfile) {
	s.mu.Lock()
	s.user = u
	s.mu.Unlock()
}

func (s *Session) setLoading(v bool) {
	s.mu.Lock()
	s.loading = v
	s.mu.Unlock()
}
