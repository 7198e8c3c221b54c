package social

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/briangreenhill/youthloop/internal/auth"
)

// LoginWithPassword logs in with an account (email or phone) and password
// and stores the returned tokens
func (c *Client) LoginWithPassword(ctx context.Context, account, password string) (auth.AuthTokens, error) {
	return c.login(ctx, "/api/v1/auth/login/password", PasswordLogin{Account: account, Password: password})
}

// SendEmailOTP asks the server to mail a one-time code
func (c *Client) SendEmailOTP(ctx context.Context, email, purpose string) error {
	if purpose == "" {
		purpose = OTPRegister
	}
	return c.do(ctx, call{
		method: http.MethodPost,
		base:   c.socialURL,
		path:   "/api/v1/auth/otp/email",
		body:   wrap(emailOTPRequest{Email: email, Purpose: purpose}, false),
		public: true,
	}, nil)
}

// LoginWithEmailOTP logs in with a mailed one-time code
func (c *Client) LoginWithEmailOTP(ctx context.Context, email, otp string) (auth.AuthTokens, error) {
	return c.login(ctx, "/api/v1/auth/login/otp/email", emailOTPLogin{Email: email, OTP: otp})
}

func (c *Client) login(ctx context.Context, p string, body any) (auth.AuthTokens, error) {
	var out auth.AuthTokens
	err := c.do(ctx, call{
		method: http.MethodPost,
		base:   c.socialURL,
		path:   p,
		body:   wrap(body, false),
		public: true,
	}, &out)
	if err != nil {
		return auth.AuthTokens{}, err
	}
	if c.creds != nil {
		if err := c.creds.SetTokens(ctx, out); err != nil {
			return out, err
		}
	}
	return out, nil
}

// GetMyProfile implements auth.ProfileFetcher
func (c *Client) GetMyProfile(ctx context.Context) (*auth.UserProfile, error) {
	var p auth.UserProfile
	if err := c.do(ctx, call{method: http.MethodGet, base: c.socialURL, path: "/api/v1/me/profile"}, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (c *Client) UpdateMyProfile(ctx context.Context, u auth.ProfileUpdate) error {
	return c.do(ctx, call{
		method: http.MethodPost,
		base:   c.socialURL,
		path:   "/api/v1/me/profile",
		body:   wrap(u, false),
	}, nil)
}

func (c *Client) GetPointsAccount(ctx context.Context) (PointsAccount, error) {
	var out PointsAccount
	err := c.do(ctx, call{method: http.MethodGet, base: c.socialURL, path: "/api/v1/points/account"}, &out)
	return out, err
}

func (c *Client) GetDailyTasks(ctx context.Context) ([]DailyTask, error) {
	var out []DailyTask
	err := c.do(ctx, call{method: http.MethodGet, base: c.socialURL, path: "/api/v1/points/tasks"}, &out)
	return out, err
}

// Signin records today's sign-in. Each call carries a new request id so the
// server can drop retried duplicates.
func (c *Client) Signin(ctx context.Context) (SigninRecord, error) {
	var out SigninRecord
	err := c.do(ctx, call{
		method: http.MethodPost,
		base:   c.socialURL,
		path:   "/api/v1/points/signins",
		body:   wrap(struct{}{}, true),
	}, &out)
	return out, err
}

func (c *Client) ListCards(ctx context.Context, includePolicy bool) (CardCatalog, error) {
	var out CardCatalog
	err := c.do(ctx, call{
		method: http.MethodGet,
		base:   c.gameURL,
		path:   "/api/v1/game/cards",
		query:  url.Values{"includePolicy": {strconv.FormatBool(includePolicy)}},
	}, &out)
	return out, err
}

func (c *Client) GetCurrentGameSession(ctx context.Context) (GameSession, error) {
	var out GameSession
	err := c.do(ctx, call{method: http.MethodGet, base: c.gameURL, path: "/api/v1/game/sessions/current"}, &out)
	return out, err
}
