package routes

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alexedwards/scs/v2"
	"github.com/briangreenhill/youthloop/cache"
	"github.com/briangreenhill/youthloop/internal/auth"
	"github.com/briangreenhill/youthloop/internal/metrics"
	"github.com/briangreenhill/youthloop/social"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type upstream struct {
	accountHits atomic.Int32
	profileBody atomic.Value
}

func reply(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"success": true, "code": 0, "data": data})
}

func authed(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer acc" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		h(w, r)
	}
}

func newUpstream(t *testing.T) (*upstream, string) {
	u := &upstream{}
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/auth/login/password", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Data social.PasswordLogin `json:"data"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body.Data.Password != "pw" {
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(map[string]any{"success": false, "code": 1001, "message": "bad password"})
			return
		}
		reply(w, auth.AuthTokens{AccessToken: "acc", RefreshToken: "ref", ExpiresIn: 3600})
	})
	mux.HandleFunc("/api/v1/me/profile", authed(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			b, _ := io.ReadAll(r.Body)
			u.profileBody.Store(string(b))
			reply(w, nil)
			return
		}
		reply(w, auth.UserProfile{UserID: "u1", Nickname: "leaf", Points: 10})
	}))
	mux.HandleFunc("/api/v1/points/account", authed(func(w http.ResponseWriter, r *http.Request) {
		n := u.accountHits.Add(1)
		reply(w, social.PointsAccount{UserID: "u1", TotalPoints: 10 + 5*int(n-1), Level: 1})
	}))
	mux.HandleFunc("/api/v1/points/tasks", authed(func(w http.ResponseWriter, r *http.Request) {
		reply(w, []social.DailyTask{{ID: "t1", TaskName: "read", Points: 5, MaxCompletions: 1}})
	}))
	mux.HandleFunc("/api/v1/points/signins", authed(func(w http.ResponseWriter, r *http.Request) {
		reply(w, social.SigninRecord{UserID: "u1", Points: 5, ConsecutiveDays: 3})
	}))
	mux.HandleFunc("/api/v1/game/cards", func(w http.ResponseWriter, r *http.Request) {
		reply(w, social.CardCatalog{Items: []social.CardMeta{{CardID: "c1", ChineseName: "风电", CardType: social.CardCore}}})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return u, srv.URL
}

type harness struct {
	up     *upstream
	server *Server
	url    string
	http   *http.Client
	reg    *prometheus.Registry
}

func newHarness(t *testing.T) *harness {
	up, apiURL := newUpstream(t)

	sess := scs.New()
	sess.Lifetime = time.Hour
	client, err := social.New(
		social.WithSocialBaseURL(apiURL),
		social.WithGameBaseURL(apiURL),
		social.WithCredentials(auth.NewSessionTokens(sess)),
	)
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	s := New(ServerOptions{
		Sess:     sess,
		API:      social.NewCached(client, cache.NewStore(cache.WithRecorder(m)), time.Minute),
		Metrics:  m,
		Gatherer: reg,
		Log:      zerolog.Nop(),
	})
	ts := httptest.NewServer(s.Router)
	t.Cleanup(ts.Close)

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &harness{up: up, server: s, url: ts.URL, http: &http.Client{Jar: jar}, reg: reg}
}

func (h *harness) do(t *testing.T, method, path string, body any, out any) int {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, h.url+path, rd)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Current-Path", "/en/points")
	resp, err := h.http.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil && resp.StatusCode != http.StatusNoContent {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func (h *harness) login(t *testing.T) {
	t.Helper()
	var v sessionView
	code := h.do(t, http.MethodPost, "/api/session/login", map[string]string{"account": "leaf", "password": "pw"}, &v)
	require.Equal(t, http.StatusOK, code)
	require.True(t, v.LoggedIn)
}

func TestHealthz(t *testing.T) {
	h := newHarness(t)
	resp, err := h.http.Get(h.url + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	assert.Equal(t, "ok", string(b))
}

func TestAnonymousSession(t *testing.T) {
	h := newHarness(t)
	var v sessionView
	require.Equal(t, http.StatusOK, h.do(t, http.MethodGet, "/api/session", nil, &v))
	assert.Equal(t, "logged_out", v.State)
	assert.False(t, v.LoggedIn)
	assert.False(t, v.Loading)
	assert.Nil(t, v.User)
}

func TestAnonymousBrowsersAreNotTracked(t *testing.T) {
	h := newHarness(t)
	for i := 0; i < 5; i++ {
		resp, err := http.Get(h.url + "/api/session")
		require.NoError(t, err)
		resp.Body.Close()
		assert.Empty(t, resp.Cookies())
	}
	assert.Equal(t, 0, h.server.sessions.len())

	h.login(t)
	assert.Equal(t, 1, h.server.sessions.len())
}

func TestLoginAndLogout(t *testing.T) {
	h := newHarness(t)
	h.login(t)

	var v sessionView
	require.Equal(t, http.StatusOK, h.do(t, http.MethodGet, "/api/session", nil, &v))
	assert.True(t, v.LoggedIn)
	require.NotNil(t, v.User)
	assert.Equal(t, "leaf", v.User.Nickname)

	var out map[string]string
	require.Equal(t, http.StatusOK, h.do(t, http.MethodPost, "/api/session/logout", nil, &out))
	assert.Equal(t, "/en/login", out["redirect"])

	require.Equal(t, http.StatusOK, h.do(t, http.MethodGet, "/api/session", nil, &v))
	assert.False(t, v.LoggedIn)
	assert.Equal(t, 0, h.server.sessions.len())
}

func TestLoginRejected(t *testing.T) {
	h := newHarness(t)
	var out map[string]any
	code := h.do(t, http.MethodPost, "/api/session/login", map[string]string{"account": "leaf", "password": "nope"}, &out)
	assert.Equal(t, http.StatusBadGateway, code)
	assert.Equal(t, "bad password", out["error"])

	code = h.do(t, http.MethodPost, "/api/session/login", map[string]string{"account": "leaf"}, &out)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestProtectedRoutesRequireLogin(t *testing.T) {
	h := newHarness(t)
	for _, p := range []string{"/api/points", "/api/game/session"} {
		var out map[string]string
		code := h.do(t, http.MethodGet, p, nil, &out)
		assert.Equal(t, http.StatusUnauthorized, code, p)
		assert.Equal(t, "/en/login", out["redirect"], p)
	}
}

func TestPrompt(t *testing.T) {
	h := newHarness(t)
	var p auth.LoginPrompt
	require.Equal(t, http.StatusOK, h.do(t, http.MethodGet, "/api/session/prompt?path=/en/cards", nil, &p))
	assert.True(t, p.Open)
	assert.Equal(t, "Login Required", p.Title)
	assert.Equal(t, "/en/login", p.Target)

	require.Equal(t, http.StatusOK, h.do(t, http.MethodGet, "/api/session/prompt?path=/zh/cards&message=hi", nil, &p))
	assert.Equal(t, "hi", p.Message)
	assert.Equal(t, "/zh/login", p.Target)

	h.login(t)
	assert.Equal(t, http.StatusNoContent, h.do(t, http.MethodGet, "/api/session/prompt?path=/en/cards", nil, nil))
}

func TestPointsAreCached(t *testing.T) {
	h := newHarness(t)
	h.login(t)

	var pv pointsView
	require.Equal(t, http.StatusOK, h.do(t, http.MethodGet, "/api/points", nil, &pv))
	require.Equal(t, http.StatusOK, h.do(t, http.MethodGet, "/api/points", nil, &pv))
	assert.Equal(t, int32(1), h.up.accountHits.Load())
	assert.Equal(t, 10, pv.Account.TotalPoints)
	require.Len(t, pv.Tasks, 1)

	var rec social.SigninRecord
	require.Equal(t, http.StatusOK, h.do(t, http.MethodPost, "/api/points/signin", nil, &rec))
	assert.Equal(t, 3, rec.ConsecutiveDays)
	assert.Equal(t, int32(2), h.up.accountHits.Load())

	var v sessionView
	require.Equal(t, http.StatusOK, h.do(t, http.MethodGet, "/api/session", nil, &v))
	assert.Equal(t, 15, v.User.Points)
}

func TestUpdateUser(t *testing.T) {
	h := newHarness(t)
	h.login(t)

	var v sessionView
	code := h.do(t, http.MethodPatch, "/api/session/user", map[string]any{"nickname": "sprout", "points": 99}, &v)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "sprout", v.User.Nickname)
	assert.Equal(t, 99, v.User.Points)

	body, _ := h.up.profileBody.Load().(string)
	assert.Contains(t, body, `"nickname":"sprout"`)
	assert.NotContains(t, body, "points")

	assert.Equal(t, http.StatusBadRequest, h.do(t, http.MethodPatch, "/api/session/user", map[string]any{}, &v))
}

func TestCardsAndCacheClear(t *testing.T) {
	h := newHarness(t)
	var catalog social.CardCatalog
	require.Equal(t, http.StatusOK, h.do(t, http.MethodGet, "/api/game/cards", nil, &catalog))
	require.Len(t, catalog.Items, 1)
	assert.Equal(t, 1, h.server.API.Store().Len())

	h.login(t)
	var out map[string]any
	require.Equal(t, http.StatusBadRequest, h.do(t, http.MethodPost, "/api/cache/clear?prefix=cards", nil, &out))
	assert.Equal(t, 1, h.server.API.Store().Len())
}

func TestCacheClearKeepsOtherUsersEntries(t *testing.T) {
	h := newHarness(t)
	store := h.server.API.Store()
	store.Set("points:other:account", social.PointsAccount{UserID: "other"})
	store.Set("me:other:profile", auth.UserProfile{UserID: "other"})

	h.login(t)
	require.Equal(t, http.StatusOK, h.do(t, http.MethodGet, "/api/points", nil, &pointsView{}))

	var out map[string]int
	require.Equal(t, http.StatusOK, h.do(t, http.MethodPost, "/api/cache/clear?prefix=points:", nil, &out))
	assert.Equal(t, 2, out["removed"])
	require.Equal(t, http.StatusOK, h.do(t, http.MethodPost, "/api/cache/clear?prefix=me:", nil, &out))
	assert.Equal(t, 0, out["removed"])
	require.Equal(t, http.StatusOK, h.do(t, http.MethodPost, "/api/cache/clear", nil, &out))
	assert.Equal(t, 0, out["removed"])

	assert.Equal(t, []string{"me:other:profile", "points:other:account"}, store.Keys())
}

func TestMetricsEndpoint(t *testing.T) {
	h := newHarness(t)
	h.do(t, http.MethodGet, "/api/game/cards", nil, &social.CardCatalog{})

	resp, err := h.http.Get(h.url + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	assert.True(t, strings.Contains(string(b), "youthloop_cache_misses_total"))
}

func TestSessionRegistryPrunes(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	sr := newSessionRegistry(time.Hour, func() *auth.Session { return auth.NewSession(nil, nil) })
	sr.now = func() time.Time { return now }

	a := sr.get("a")
	assert.Same(t, a, sr.get("a"))
	sr.get("b")
	assert.Equal(t, 2, sr.len())

	now = now.Add(2 * time.Hour)
	sr.get("b")
	assert.Equal(t, 1, sr.len())
	assert.NotSame(t, a, sr.get("a"))
}
