package social

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/briangreenhill/youthloop/cache"
	"github.com/briangreenhill/youthloop/internal/auth"
)

const anonScope = "anon"

// Cached reads through a shared cache.Store. Per-user entries are keyed by
// the token subject so two users sharing a store never see each other's data.
type Cached struct {
	*Client
	store *cache.Store
	ttl   time.Duration
}

// NewCached wraps c; ttl <= 0 uses cache.DefaultTTL
func NewCached(c *Client, store *cache.Store, ttl time.Duration) *Cached {
	if ttl <= 0 {
		ttl = cache.DefaultTTL
	}
	return &Cached{Client: c, store: store, ttl: ttl}
}

// Store returns the backing store
func (cc *Cached) Store() *cache.Store { return cc.store }

// Scope identifies the current user for cache keys: the JWT subject, a
// digest of an opaque token, or "anon"
func (cc *Cached) Scope(ctx context.Context) string {
	if cc.creds == nil {
		return anonScope
	}
	tok, ok := cc.creds.Token(ctx)
	if !ok {
		return anonScope
	}
	if sub, err := auth.Subject(tok.AccessToken); err == nil {
		return sub
	}
	sum := sha256.Sum256([]byte(tok.AccessToken))
	return "t" + hex.EncodeToString(sum[:8])
}

func (cc *Cached) pointsKey(ctx context.Context, what string) string {
	return "points:" + cc.Scope(ctx) + ":" + what
}

func (cc *Cached) PointsAccount(ctx context.Context) (PointsAccount, error) {
	return cache.Fetch[PointsAccount](ctx, cc.store, cc.pointsKey(ctx, "account"), cc.ttl, cc.GetPointsAccount)
}

func (cc *Cached) DailyTasks(ctx context.Context) ([]DailyTask, error) {
	return cache.Fetch[[]DailyTask](ctx, cc.store, cc.pointsKey(ctx, "tasks"), cc.ttl, cc.GetDailyTasks)
}

func (cc *Cached) Profile(ctx context.Context) (*auth.UserProfile, error) {
	return cache.Fetch[*auth.UserProfile](ctx, cc.store, "me:"+cc.Scope(ctx)+":profile", cc.ttl, cc.GetMyProfile)
}

// Cards is shared by all users
func (cc *Cached) Cards(ctx context.Context, includePolicy bool) (CardCatalog, error) {
	key := cache.KeyFor("cards", map[string]string{"includePolicy": strconv.FormatBool(includePolicy)})
	return cache.Fetch[CardCatalog](ctx, cc.store, key, cc.ttl, func(ctx context.Context) (CardCatalog, error) {
		return cc.ListCards(ctx, includePolicy)
	})
}

// Signin signs in and drops the user's cached points data
func (cc *Cached) Signin(ctx context.Context) (SigninRecord, error) {
	prefix := "points:" + cc.Scope(ctx) + ":"
	rec, err := cc.Client.Signin(ctx)
	if err != nil {
		return rec, err
	}
	cc.store.DeleteByPrefix(prefix)
	return rec, nil
}

// UpdateMyProfile updates the profile and drops the cached copy
func (cc *Cached) UpdateMyProfile(ctx context.Context, u auth.ProfileUpdate) error {
	key := "me:" + cc.Scope(ctx) + ":profile"
	if err := cc.Client.UpdateMyProfile(ctx, u); err != nil {
		return err
	}
	cc.store.Delete(key)
	return nil
}

// Invalidate drops every entry under prefix and returns how many
func (cc *Cached) Invalidate(prefix string) int {
	return cc.store.DeleteByPrefix(prefix)
}

// ErrForeignPrefix is returned by InvalidateScoped for prefixes outside the
// caller's own entries
var ErrForeignPrefix = errors.New("prefix is not a per-user namespace")

// userNamespaces hold entries keyed <namespace>:<scope>:<what>
var userNamespaces = map[string]bool{"points": true, "me": true}

// InvalidateScoped drops the current user's entries under prefix. prefix
// starts with a per-user namespace ("points", "me"), optionally followed by
// ':' and a key suffix, and is rewritten under the caller's scope. An empty
// prefix drops all of the user's entries.
func (cc *Cached) InvalidateScoped(ctx context.Context, prefix string) (int, error) {
	if prefix == "" {
		return cc.InvalidateUser(ctx), nil
	}
	ns, rest, _ := strings.Cut(prefix, ":")
	if !userNamespaces[ns] {
		return 0, ErrForeignPrefix
	}
	return cc.store.DeleteByPrefix(ns + ":" + cc.Scope(ctx) + ":" + rest), nil
}

// InvalidateUser drops every per-user entry of the current user
func (cc *Cached) InvalidateUser(ctx context.Context) int {
	scope := cc.Scope(ctx)
	return cc.store.DeleteByPrefix("points:"+scope+":") + cc.store.DeleteByPrefix("me:"+scope+":")
}
