package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/briangreenhill/youthloop/cache"
	"github.com/briangreenhill/youthloop/internal/auth"
	"github.com/briangreenhill/youthloop/internal/commands"
	"github.com/briangreenhill/youthloop/internal/config"
	"github.com/briangreenhill/youthloop/internal/i18n"
	"github.com/briangreenhill/youthloop/social"
	"github.com/gregjones/httpcache"
	"github.com/rs/zerolog"
)

const version = "YouthLoop v0.1.0"

func main() {
	if err := runCLI(context.Background(), os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runCLI(ctx context.Context, args []string, out io.Writer) error {
	if len(args) == 0 {
		args = []string{"help"}
	}
	switch args[0] {
	case "help", "--help", "-h":
		printHelp(out)
		return nil
	case "version", "--version", "-v":
		fmt.Fprintln(out, version)
		return nil
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	registry, err := setupRegistry(cfg, out)
	if err != nil {
		return err
	}
	cmd, exists := registry.Lookup(args[0])
	if !exists {
		return fmt.Errorf("unknown command: %s (available: %v)", args[0], registry.List())
	}
	return cmd.Run(ctx, args[1:])
}

func printHelp(out io.Writer) {
	registry := commands.NewRegistry()
	commands.Register(registry, &commands.Env{})

	fmt.Fprintln(out, "Usage: youthloop <command> [args]")
	fmt.Fprintln(out, "Commands:")
	fmt.Fprintln(out, "  help                         show this help message")
	fmt.Fprintln(out, "  version                      print the version")
	for _, name := range registry.List() {
		cmd, _ := registry.Lookup(name)
		fmt.Fprintf(out, "  %s\n", cmd.Usage())
	}
	fmt.Fprintln(out, "Environment:")
	fmt.Fprintln(out, "  SOCIAL_API_ORIGIN     social API origin (default http://localhost:8080)")
	fmt.Fprintln(out, "  GAME_API_ORIGIN       game API origin (default http://localhost:8081)")
	fmt.Fprintln(out, "  YOUTHLOOP_LOCALE      zh or en (default zh)")
	fmt.Fprintln(out, "  YOUTHLOOP_TOKEN_FILE  token file (default ~/.youthloop/auth_tokens.json)")
	fmt.Fprintln(out, "  YOUTHLOOP_CACHE_TTL   response cache TTL (default 5m)")
	fmt.Fprintln(out, "  LOG_LEVEL             zerolog level (default info)")
}

// setupRegistry wires the token file, API client, cache and translator into
// the command set
func setupRegistry(cfg *config.Config, out io.Writer) (*commands.Registry, error) {
	logger := cfg.Logger(os.Stderr, true)

	persister, err := auth.NewFilePersister(cfg.Auth.TokenFile)
	if err != nil {
		return nil, fmt.Errorf("token file: %w", err)
	}
	tokens := auth.NewTokenStore(persister, auth.WithTokenLogger(logger))

	// Create HTTP client with caching transport
	transport := httpcache.NewMemoryCacheTransport()
	transport.MarkCachedResponses = true
	httpClient := &http.Client{Transport: transport, Timeout: cfg.API.Timeout}

	client, err := social.New(
		social.WithHTTPClient(httpClient),
		social.WithSocialBaseURL(cfg.API.SocialOrigin),
		social.WithGameBaseURL(cfg.API.GameOrigin),
		social.WithCredentials(tokens),
		social.WithLogger(logger),
	)
	if err != nil {
		return nil, err
	}

	storeOpts := []cache.Option{cache.WithLogger(logger)}
	if cfg.Cache.SingleFlight {
		storeOpts = append(storeOpts, cache.WithSingleFlight())
	}
	cached := social.NewCached(client, cache.NewStore(storeOpts...), cfg.Cache.TTL)

	tr, err := i18n.New(cfg.Locale, logger.Level(zerolog.ErrorLevel))
	if err != nil {
		return nil, err
	}

	registry := commands.NewRegistry()
	commands.Register(registry, &commands.Env{
		Out:     out,
		Locale:  cfg.Locale,
		Creds:   tokens,
		API:     cached,
		Session: auth.NewSession(tokens, client, auth.WithLogger(logger)),
		T:       tr,
	})
	return registry, nil
}
