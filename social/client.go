// Package social is the HTTP client for the YouthLoop social and game APIs.
// It attaches the bearer token from an auth.Credentials, refreshes it when it
// is about to expire or the server answers 401, and unwraps the common
// response envelope.
package social

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/briangreenhill/youthloop/internal/auth"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultSocialBaseURL = "http://localhost:8080"
	DefaultGameBaseURL   = "http://localhost:8081"

	refreshPath = "/api/v1/auth/token/refresh"
)

var (
	// ErrSessionExpired means the credential could not be refreshed and has
	// been cleared; the user has to log in again
	ErrSessionExpired = errors.New("session expired")
	ErrNoRefreshToken = errors.New("no refresh token available")
)

// authCodes are envelope codes that invalidate the credential
var authCodes = map[int]bool{2000: true, 2001: true, 2002: true}

// APIError is a failed envelope or a non-2xx response
type APIError struct {
	Status  int
	Code    int
	Message string
	TraceID string
	Fields  []FieldError
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("api error %d: %s", e.Code, e.Message)
	if e.TraceID != "" {
		msg += " (trace " + e.TraceID + ")"
	}
	return msg
}

// Is makes auth failures match ErrSessionExpired
func (e *APIError) Is(target error) bool {
	return target == ErrSessionExpired && authCodes[e.Code]
}

type Client struct {
	http      *http.Client
	socialURL *url.URL
	gameURL   *url.URL
	creds     auth.Credentials // optional; nil means anonymous
	log       zerolog.Logger

	refreshes singleflight.Group
}

type Option func(*clientConfig)

type clientConfig struct {
	http      *http.Client
	socialURL string
	gameURL   string
	creds     auth.Credentials
	log       zerolog.Logger
}

func WithHTTPClient(h *http.Client) Option {
	return func(c *clientConfig) { c.http = h }
}
func WithSocialBaseURL(raw string) Option {
	return func(c *clientConfig) { c.socialURL = raw }
}
func WithGameBaseURL(raw string) Option {
	return func(c *clientConfig) { c.gameURL = raw }
}
func WithCredentials(creds auth.Credentials) Option {
	return func(c *clientConfig) { c.creds = creds }
}
func WithLogger(l zerolog.Logger) Option {
	return func(c *clientConfig) { c.log = l }
}

func New(opts ...Option) (*Client, error) {
	cfg := clientConfig{
		http:      http.DefaultClient,
		socialURL: DefaultSocialBaseURL,
		gameURL:   DefaultGameBaseURL,
		log:       zerolog.Nop(),
	}
	for _, o := range opts {
		o(&cfg)
	}
	su, err := url.Parse(cfg.socialURL)
	if err != nil {
		return nil, fmt.Errorf("social base url: %w", err)
	}
	gu, err := url.Parse(cfg.gameURL)
	if err != nil {
		return nil, fmt.Errorf("game base url: %w", err)
	}
	return &Client{
		http:      cfg.http,
		socialURL: su,
		gameURL:   gu,
		creds:     cfg.creds,
		log:       cfg.log,
	}, nil
}

// Credentials returns the credential store the client authenticates with
func (c *Client) Credentials() auth.Credentials { return c.creds }

// call describes one API request
type call struct {
	method string
	base   *url.URL
	path   string
	query  url.Values
	body   any
	public bool // no bearer header, no refresh
}

// wrap builds the write envelope; idempotent writes carry a fresh request id
func wrap[T any](data T, idempotent bool) Request[T] {
	r := Request[T]{Data: data}
	if idempotent {
		r.RequestID = uuid.NewString()
	}
	return r
}

func (c *Client) do(ctx context.Context, r call, out any) error {
	authed := !r.public && c.creds != nil
	if authed && c.creds.ExpiringSoon(ctx) {
		if err := c.RefreshToken(ctx); err != nil {
			return err
		}
	}

	status, err := c.send(ctx, r, out)
	if authed && status == http.StatusUnauthorized {
		if _, ok := c.creds.Token(ctx); ok {
			if rerr := c.RefreshToken(ctx); rerr != nil {
				return rerr
			}
			_, err = c.send(ctx, r, out)
		}
	}

	var apiErr *APIError
	if c.creds != nil && errors.As(err, &apiErr) && authCodes[apiErr.Code] {
		c.log.Warn().Int("code", apiErr.Code).Str("path", r.path).Msg("credential rejected, clearing")
		c.expire(ctx)
	}
	return err
}

// send performs a single request and decodes the envelope into out
func (c *Client) send(ctx context.Context, r call, out any) (int, error) {
	u := *r.base
	u.Path = path.Join(u.Path, r.path)
	if len(r.query) > 0 {
		u.RawQuery = r.query.Encode()
	}

	var body io.Reader
	if r.body != nil {
		b, err := json.Marshal(r.body)
		if err != nil {
			return 0, err
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, r.method, u.String(), body)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if !r.public && c.creds != nil {
		if tok, ok := c.creds.Token(ctx); ok {
			tok.SetAuthHeader(req)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	c.log.Debug().
		Str("method", r.method).
		Str("url", u.String()).
		Int("status", resp.StatusCode).
		Bool("from_cache", resp.Header.Get("X-From-Cache") == "1").
		Msg("api request")

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, err
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		if resp.StatusCode >= 300 {
			msg := strings.TrimSpace(string(raw))
			if msg == "" {
				msg = resp.Status
			}
			return resp.StatusCode, &APIError{Status: resp.StatusCode, Message: msg}
		}
		return resp.StatusCode, fmt.Errorf("%s %s: decode response: %w", r.method, r.path, err)
	}

	if env.failed() || resp.StatusCode >= 300 {
		apiErr := &APIError{
			Status:  resp.StatusCode,
			Code:    env.Code,
			Message: env.Message,
			TraceID: env.TraceID,
			Fields:  env.Errors,
		}
		if apiErr.Message == "" {
			apiErr.Message = resp.Status
		}
		return resp.StatusCode, apiErr
	}

	if out != nil && len(env.Data) > 0 && string(env.Data) != "null" {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return resp.StatusCode, fmt.Errorf("%s %s: decode data: %w", r.method, r.path, err)
		}
	}
	return resp.StatusCode, nil
}

// RefreshToken exchanges the refresh token for a new pair and stores it.
// Concurrent refreshes of the same token share one request. On failure the
// credential is cleared and the error matches ErrSessionExpired.
func (c *Client) RefreshToken(ctx context.Context) error {
	if c.creds == nil {
		return ErrNoRefreshToken
	}
	tok, ok := c.creds.Token(ctx)
	if !ok || tok.RefreshToken == "" {
		c.expire(ctx)
		return fmt.Errorf("%w: %w", ErrSessionExpired, ErrNoRefreshToken)
	}

	v, err, _ := c.refreshes.Do(tok.RefreshToken, func() (any, error) {
		var out auth.AuthTokens
		_, err := c.send(context.WithoutCancel(ctx), call{
			method: http.MethodPost,
			base:   c.socialURL,
			path:   refreshPath,
			body:   wrap(refreshRequest{RefreshToken: tok.RefreshToken}, false),
			public: true,
		}, &out)
		if err == nil && out.AccessToken == "" {
			err = errors.New("refresh returned no access token")
		}
		return out, err
	})
	if err != nil {
		c.log.Warn().Err(err).Msg("token refresh failed")
		c.expire(ctx)
		return fmt.Errorf("%w: %w", ErrSessionExpired, err)
	}
	return c.creds.SetTokens(ctx, v.(auth.AuthTokens))
}

func (c *Client) expire(ctx context.Context) {
	if err := c.creds.Clear(ctx); err != nil {
		c.log.Error().Err(err).Msg("failed to clear credentials")
	}
}
