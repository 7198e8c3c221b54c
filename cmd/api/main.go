// cmd/api/main.go
package main

import (
	"net/http"
	"os"

	scs "github.com/alexedwards/scs/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"

	"github.com/briangreenhill/youthloop/cache"
	"github.com/briangreenhill/youthloop/internal/auth"
	"github.com/briangreenhill/youthloop/internal/config"
	"github.com/briangreenhill/youthloop/internal/http/routes"
	"github.com/briangreenhill/youthloop/internal/i18n"
	"github.com/briangreenhill/youthloop/internal/metrics"
	"github.com/briangreenhill/youthloop/social"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config error")
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("config error")
	}

	// Logger
	logger := cfg.Logger(os.Stdout, false)
	logger.Info().Str("port", cfg.Server.Port).Msg("starting app")

	// Sessions
	sess := scs.New()
	sess.Lifetime = cfg.Server.SessionLifetime
	sess.Cookie.HttpOnly = true
	sess.Cookie.SameSite = http.SameSiteLaxMode
	sess.Cookie.Secure = cfg.Server.SecureCookies

	// Metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	// API client; tokens live in each browser's session
	client, err := social.New(
		social.WithHTTPClient(&http.Client{Timeout: cfg.API.Timeout}),
		social.WithSocialBaseURL(cfg.API.SocialOrigin),
		social.WithGameBaseURL(cfg.API.GameOrigin),
		social.WithCredentials(auth.NewSessionTokens(sess)),
		social.WithLogger(logger),
	)
	if err != nil {
		logger.Fatal().Err(err).Msg("api client error")
	}

	storeOpts := []cache.Option{cache.WithLogger(logger), cache.WithRecorder(m)}
	if cfg.Cache.SingleFlight {
		storeOpts = append(storeOpts, cache.WithSingleFlight())
	}
	store := cache.NewStore(storeOpts...)

	tr, err := i18n.New(cfg.Locale, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("i18n error")
	}

	// Router / server
	s := routes.New(routes.ServerOptions{
		Sess:     sess,
		API:      social.NewCached(client, store, cfg.Cache.TTL),
		T:        tr,
		Metrics:  m,
		Gatherer: reg,
		Log:      logger,
	})

	srv := &http.Server{Addr: ":" + cfg.Server.Port, Handler: s.Router}
	logger.Fatal().Err(srv.ListenAndServe()).Msg("server stopped")
}
