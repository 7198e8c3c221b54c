package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/briangreenhill/youthloop/cache"
	"github.com/briangreenhill/youthloop/internal/auth"
	"github.com/briangreenhill/youthloop/internal/i18n"
	"github.com/briangreenhill/youthloop/social"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ok(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"success": true, "code": 0, "data": data})
}

func fakeServer(t *testing.T) *httptest.Server {
	mux := http.NewServeMux()
	login := func(w http.ResponseWriter, r *http.Request) {
		ok(w, auth.AuthTokens{AccessToken: "acc", RefreshToken: "ref", ExpiresIn: 3600})
	}
	mux.HandleFunc("/api/v1/auth/login/password", login)
	mux.HandleFunc("/api/v1/auth/login/otp/email", login)
	mux.HandleFunc("/api/v1/auth/otp/email", func(w http.ResponseWriter, r *http.Request) { ok(w, nil) })
	mux.HandleFunc("/api/v1/me/profile", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer acc" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"success":false,"code":2001,"message":"bad token"}`))
			return
		}
		ok(w, auth.UserProfile{UserID: "u1", Nickname: "leaf", Points: 10})
	})
	mux.HandleFunc("/api/v1/points/account", func(w http.ResponseWriter, r *http.Request) {
		ok(w, social.PointsAccount{UserID: "u1", TotalPoints: 120, AvailablePoints: 80, Level: 3, LevelName: "Sprout"})
	})
	mux.HandleFunc("/api/v1/points/tasks", func(w http.ResponseWriter, r *http.Request) {
		ok(w, []social.DailyTask{
			{ID: "1", TaskName: "Read an article", Points: 5, MaxCompletions: 1, CurrentCompletions: 1, Completed: true},
			{ID: "2", TaskName: "Quiz", Points: 10, MaxCompletions: 1},
		})
	})
	mux.HandleFunc("/api/v1/points/signins", func(w http.ResponseWriter, r *http.Request) {
		ok(w, social.SigninRecord{UserID: "u1", Points: 5, ConsecutiveDays: 3})
	})
	mux.HandleFunc("/api/v1/game/cards", func(w http.ResponseWriter, r *http.Request) {
		items := []social.CardMeta{{CardNo: 1, ChineseName: "风电", EnglishName: "Wind Farm", CardType: "core", Star: 2}}
		if r.URL.Query().Get("includePolicy") == "true" {
			items = append(items, social.CardMeta{CardNo: 2, ChineseName: "碳税", EnglishName: "Carbon Tax", CardType: "policy", Star: 1})
		}
		ok(w, social.CardCatalog{Items: items})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

type harness struct {
	reg    *Registry
	out    *bytes.Buffer
	tokens *auth.TokenStore
}

func newHarness(t *testing.T, locale string) *harness {
	srv := fakeServer(t)
	tokens := auth.NewTokenStore(auth.NewMemoryPersister(nil))
	client, err := social.New(social.WithSocialBaseURL(srv.URL), social.WithGameBaseURL(srv.URL), social.WithCredentials(tokens))
	require.NoError(t, err)
	tr, err := i18n.New("zh", zerolog.Nop())
	require.NoError(t, err)

	var out bytes.Buffer
	reg := NewRegistry()
	Register(reg, &Env{
		Out:     &out,
		Locale:  locale,
		Creds:   tokens,
		API:     social.NewCached(client, cache.NewStore(), 0),
		Session: auth.NewSession(tokens, client),
		T:       tr,
	})
	return &harness{reg: reg, out: &out, tokens: tokens}
}

func (h *harness) run(t *testing.T, args ...string) error {
	t.Helper()
	cmd, found := h.reg.Lookup(args[0])
	require.True(t, found, "command %s", args[0])
	return cmd.Run(context.Background(), args[1:])
}

func TestRegisterAll(t *testing.T) {
	h := newHarness(t, "en")
	assert.Equal(t, []string{"cards", "login", "login-otp", "logout", "points", "signin", "tasks", "whoami"}, h.reg.List())
}

func TestLoginWhoamiLogout(t *testing.T) {
	h := newHarness(t, "en")

	require.NoError(t, h.run(t, "login", "leaf@example.com", "pw"))
	assert.Contains(t, h.out.String(), "Logged in as leaf")
	assert.Equal(t, "acc", h.tokens.AccessToken(context.Background()))

	h.out.Reset()
	require.NoError(t, h.run(t, "whoami"))
	assert.Equal(t, "leaf (u1), 10 points\n", h.out.String())

	h.out.Reset()
	require.NoError(t, h.run(t, "logout"))
	assert.Equal(t, "Logged out\n", h.out.String())
	assert.False(t, h.tokens.IsAuthenticated(context.Background()))

	h.out.Reset()
	assert.ErrorIs(t, h.run(t, "whoami"), ErrLoginRequired)
	assert.Equal(t, "Not logged in\n", h.out.String())
}

func TestLoginUsage(t *testing.T) {
	h := newHarness(t, "en")
	assert.Error(t, h.run(t, "login", "only-account"))
}

func TestLoginOTP(t *testing.T) {
	h := newHarness(t, "zh")

	require.NoError(t, h.run(t, "login-otp", "leaf@example.com"))
	assert.Equal(t, "验证码已发送至 leaf@example.com\n", h.out.String())

	h.out.Reset()
	require.NoError(t, h.run(t, "login-otp", "leaf@example.com", "123456"))
	assert.Equal(t, "已登录：leaf\n", h.out.String())
}

func TestPointsRequireLogin(t *testing.T) {
	h := newHarness(t, "en")

	for _, name := range []string{"points", "tasks", "signin"} {
		h.out.Reset()
		assert.ErrorIs(t, h.run(t, name), ErrLoginRequired)
		assert.Equal(t, "Login Required: Please login first to view this content\n", h.out.String())
	}
}

func TestPointsTasksSignin(t *testing.T) {
	h := newHarness(t, "en")
	require.NoError(t, h.run(t, "login", "leaf", "pw"))

	h.out.Reset()
	require.NoError(t, h.run(t, "points"))
	assert.Equal(t, "Level 3 Sprout: 80 of 120 points available\n", h.out.String())

	h.out.Reset()
	require.NoError(t, h.run(t, "tasks"))
	assert.Equal(t, "[x] Read an article: 1/1 (+5)\n[ ] Quiz: 0/1 (+10)\n", h.out.String())

	h.out.Reset()
	require.NoError(t, h.run(t, "signin"))
	assert.Equal(t, "Signed in, +5 points, 3 days in a row\n", h.out.String())
}

func TestCards(t *testing.T) {
	h := newHarness(t, "en")

	require.NoError(t, h.run(t, "cards"))
	lines := strings.Split(strings.TrimSpace(h.out.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "1 cards", lines[0])
	assert.Contains(t, lines[1], "Wind Farm")

	h.out.Reset()
	require.NoError(t, h.run(t, "cards", "-policy"))
	assert.Contains(t, h.out.String(), "2 cards")
	assert.Contains(t, h.out.String(), "Carbon Tax")

	assert.Error(t, h.run(t, "cards", "-bogus"))
}
