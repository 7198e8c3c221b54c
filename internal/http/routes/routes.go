package routes

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/alexedwards/scs/v2"
	"github.com/briangreenhill/youthloop/internal/auth"
	appmw "github.com/briangreenhill/youthloop/internal/http/middleware"
	"github.com/briangreenhill/youthloop/internal/metrics"
	"github.com/briangreenhill/youthloop/social"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
)

const sessionIDKey = "session_id"

type Server struct {
	Router   *chi.Mux
	Sess     *scs.SessionManager
	API      *social.Cached
	T        auth.Translator
	Metrics  *metrics.Metrics
	Gatherer prometheus.Gatherer
	Log      zerolog.Logger

	sessions *sessionRegistry
}

// ServerOptions configures New. API must authenticate with
// auth.SessionTokens over Sess.
type ServerOptions struct {
	Sess     *scs.SessionManager
	API      *social.Cached
	T        auth.Translator
	Metrics  *metrics.Metrics    // optional
	Gatherer prometheus.Gatherer // optional; enables /metrics
	Log      zerolog.Logger
}

func New(opts ServerOptions) *Server {
	s := &Server{
		Router:   chi.NewRouter(),
		Sess:     opts.Sess,
		API:      opts.API,
		T:        opts.T,
		Metrics:  opts.Metrics,
		Gatherer: opts.Gatherer,
		Log:      opts.Log,
	}
	s.sessions = newSessionRegistry(opts.Sess.Lifetime, func() *auth.Session {
		return auth.NewSession(s.API.Credentials(), s.API.Client, auth.WithLogger(s.Log))
	})

	r := s.Router
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(hlog.NewHandler(s.Log))
	r.Use(hlog.AccessHandler(func(r *http.Request, status, size int, d time.Duration) {
		hlog.FromRequest(r).Info().
			Str("request_id", chimw.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Int("size", size).
			Dur("duration", d).
			Msg("request")
	}))
	r.Use(chimw.Recoverer)
	if s.Metrics != nil {
		r.Use(s.Metrics.Middleware)
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte("ok")) })
	if s.Gatherer != nil {
		r.Handle("/metrics", metrics.Handler(s.Gatherer))
	}

	r.Route("/api", func(api chi.Router) {
		api.Use(s.Sess.LoadAndSave)
		api.Use(s.sessionToContext)

		api.Get("/session", s.getSession)
		api.Post("/session/login", s.login)
		api.Post("/session/otp", s.sendOTP)
		api.Post("/session/logout", s.logout)
		api.Get("/session/prompt", s.prompt)
		api.Get("/game/cards", s.cards)

		api.Group(func(pr chi.Router) {
			pr.Use(appmw.RequireLogin)
			pr.Patch("/session/user", s.updateUser)
			pr.Get("/points", s.points)
			pr.Post("/points/signin", s.signin)
			pr.Get("/game/session", s.gameSession)
			pr.Post("/cache/clear", s.clearCache)
		})
	})
	return s
}

// sessionToContext attaches the browser's auth.Session, initializing it on
// first use. Browsers without a credential get a throwaway session and are
// not tracked.
func (s *Server) sessionToContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if p := r.Header.Get(appmw.CurrentPathHeader); p != "" {
			ctx = auth.WithCurrentPath(ctx, p)
		}

		var as *auth.Session
		if s.Sess.GetString(ctx, sessionIDKey) != "" || s.API.Credentials().IsAuthenticated(ctx) {
			as = s.register(ctx)
		} else {
			as = s.sessions.create()
		}
		if as.Loading() {
			as.Initialize(ctx)
		}
		next.ServeHTTP(w, r.WithContext(appmw.WithSession(ctx, as)))
	})
}

// register returns the tracked session of this browser, assigning it an id
// on first use
func (s *Server) register(ctx context.Context) *auth.Session {
	id := s.Sess.GetString(ctx, sessionIDKey)
	if id == "" {
		id = uuid.NewString()
		s.Sess.Put(ctx, sessionIDKey, id)
	}
	return s.sessions.get(id)
}

type sessionView struct {
	State    string            `json:"state"`
	LoggedIn bool              `json:"isLoggedIn"`
	Loading  bool              `json:"loading"`
	User     *auth.UserProfile `json:"user"`
}

func (s *Server) view(r *http.Request) sessionView {
	as, _ := appmw.SessionFrom(r.Context())
	v := sessionView{
		State:    as.State(r.Context()).String(),
		LoggedIn: as.IsLoggedIn(r.Context()),
		Loading:  as.Loading(),
	}
	if u, ok := as.User(); ok && v.LoggedIn {
		v.User = &u
	}
	return v
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("reload") == "1" {
		as, _ := appmw.SessionFrom(r.Context())
		as.Initialize(r.Context())
	}
	writeJSON(w, http.StatusOK, s.view(r))
}

type loginRequest struct {
	Account  string `json:"account"`
	Password string `json:"password"`
	Email    string `json:"email"`
	OTP      string `json:"otp"`
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	ctx := r.Context()

	var err error
	switch {
	case req.Email != "" && req.OTP != "":
		_, err = s.API.LoginWithEmailOTP(ctx, req.Email, req.OTP)
	case req.Account != "" && req.Password != "":
		_, err = s.API.LoginWithPassword(ctx, req.Account, req.Password)
	default:
		writeError(w, r, http.StatusBadRequest, "account and password, or email and otp, are required")
		return
	}
	if err != nil {
		s.apiError(w, r, err)
		return
	}

	// new cookie token once the session holds a credential
	if err := s.Sess.RenewToken(ctx); err != nil {
		writeError(w, r, http.StatusInternalServerError, "session error")
		return
	}

	profile, err := s.API.GetMyProfile(ctx)
	if err != nil {
		s.apiError(w, r, err)
		return
	}
	as := s.register(ctx)
	as.Login(*profile)
	writeJSON(w, http.StatusOK, s.view(r.WithContext(appmw.WithSession(ctx, as))))
}

func (s *Server) sendOTP(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email   string `json:"email"`
		Purpose string `json:"purpose"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email == "" {
		writeError(w, r, http.StatusBadRequest, "email is required")
		return
	}
	if req.Purpose == "" {
		req.Purpose = social.OTPLogin
	}
	if err := s.API.SendEmailOTP(r.Context(), req.Email, req.Purpose); err != nil {
		s.apiError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	s.API.InvalidateUser(ctx)
	as, _ := appmw.SessionFrom(ctx)
	target := as.Logout(ctx)
	if id := s.Sess.PopString(ctx, sessionIDKey); id != "" {
		s.sessions.drop(id)
	}
	writeJSON(w, http.StatusOK, map[string]string{"redirect": target})
}

// prompt returns the login dialog for path, or 204 when no login is needed
func (s *Server) prompt(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	path := q.Get("path")
	if path == "" {
		path = auth.CurrentPath(r.Context())
	}
	if _, ok := auth.CheckLogin(r.Context(), s.API.Credentials(), path, q.Get("redirect")); ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, auth.NewLoginPrompt(s.T, path, q.Get("message")))
}

func (s *Server) updateUser(w http.ResponseWriter, r *http.Request) {
	var u auth.ProfileUpdate
	if err := json.NewDecoder(r.Body).Decode(&u); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	if u.IsEmpty() {
		writeError(w, r, http.StatusBadRequest, "no fields to update")
		return
	}
	ctx := r.Context()
	// points are local only; everything else goes to the profile API
	remote := u
	remote.Points = nil
	if !remote.IsEmpty() {
		if err := s.API.UpdateMyProfile(ctx, remote); err != nil {
			s.apiError(w, r, err)
			return
		}
	}
	as, _ := appmw.SessionFrom(ctx)
	as.UpdateUser(u)
	writeJSON(w, http.StatusOK, s.view(r))
}

type pointsView struct {
	Account social.PointsAccount `json:"account"`
	Tasks   []social.DailyTask   `json:"tasks"`
}

func (s *Server) points(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	acct, err := s.API.PointsAccount(ctx)
	if err != nil {
		s.apiError(w, r, err)
		return
	}
	tasks, err := s.API.DailyTasks(ctx)
	if err != nil {
		s.apiError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pointsView{Account: acct, Tasks: tasks})
}

func (s *Server) signin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	rec, err := s.API.Signin(ctx)
	if err != nil {
		s.apiError(w, r, err)
		return
	}
	if acct, err := s.API.PointsAccount(ctx); err == nil {
		as, _ := appmw.SessionFrom(ctx)
		as.UpdateUser(auth.ProfileUpdate{Points: &acct.TotalPoints})
	} else {
		hlog.FromRequest(r).Warn().Err(err).Msg("failed to reload points after signin")
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) cards(w http.ResponseWriter, r *http.Request) {
	includePolicy, _ := strconv.ParseBool(r.URL.Query().Get("includePolicy"))
	catalog, err := s.API.Cards(r.Context(), includePolicy)
	if err != nil {
		s.apiError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, catalog)
}

func (s *Server) gameSession(w http.ResponseWriter, r *http.Request) {
	gs, err := s.API.GetCurrentGameSession(r.Context())
	if err != nil {
		s.apiError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, gs)
}

// clearCache drops the caller's entries under ?prefix=, or all of them
func (s *Server) clearCache(w http.ResponseWriter, r *http.Request) {
	n, err := s.API.InvalidateScoped(r.Context(), r.URL.Query().Get("prefix"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"removed": n})
}

// apiError maps client errors onto responses. Expired sessions look like a
// logout to the browser.
func (s *Server) apiError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, social.ErrSessionExpired) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{
			"error":    "session expired",
			"redirect": auth.LoginPath(auth.CurrentPath(r.Context())),
		})
		return
	}
	var apiErr *social.APIError
	if errors.As(err, &apiErr) {
		status := apiErr.Status
		if status < 400 {
			status = http.StatusBadGateway
		}
		writeJSON(w, status, map[string]any{
			"error":   apiErr.Message,
			"code":    apiErr.Code,
			"traceId": apiErr.TraceID,
			"fields":  apiErr.Fields,
		})
		return
	}
	hlog.FromRequest(r).Error().Err(err).Msg("upstream request failed")
	writeError(w, r, http.StatusBadGateway, "upstream unavailable")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	hlog.FromRequest(r).Debug().Int("status", status).Msg(msg)
	writeJSON(w, status, map[string]string{"error": msg})
}

// sessionRegistry holds one auth.Session per browser. Entries idle for
// longer than ttl are pruned lazily.
type sessionRegistry struct {
	mu        sync.Mutex
	entries   map[string]*sessionEntry
	ttl       time.Duration
	now       func() time.Time
	lastPrune time.Time
	create    func() *auth.Session
}

type sessionEntry struct {
	session  *auth.Session
	lastSeen time.Time
}

func newSessionRegistry(ttl time.Duration, create func() *auth.Session) *sessionRegistry {
	return &sessionRegistry{
		entries: make(map[string]*sessionEntry),
		ttl:     ttl,
		now:     time.Now,
		create:  create,
	}
}

func (sr *sessionRegistry) get(id string) *auth.Session {
	sr.mu.Lock()
	defer sr.mu.Unlock()

	now := sr.now()
	if sr.ttl > 0 && now.Sub(sr.lastPrune) > time.Minute {
		for k, e := range sr.entries {
			if now.Sub(e.lastSeen) > sr.ttl {
				delete(sr.entries, k)
			}
		}
		sr.lastPrune = now
	}

	e, ok := sr.entries[id]
	if !ok {
		e = &sessionEntry{session: sr.create()}
		sr.entries[id] = e
	}
	e.lastSeen = now
	return e.session
}

func (sr *sessionRegistry) drop(id string) {
	sr.mu.Lock()
	delete(sr.entries, id)
	sr.mu.Unlock()
}

func (sr *sessionRegistry) len() int {
	sr.mu.Lock()
	defer sr.mu.Unlock()
	return len(sr.entries)
}
