package commands

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"

	"github.com/briangreenhill/youthloop/internal/auth"
	"github.com/briangreenhill/youthloop/internal/i18n"
	"github.com/briangreenhill/youthloop/social"
)

// ErrLoginRequired is returned by commands that need a stored credential
var ErrLoginRequired = errors.New("login required")

// Env is what the YouthLoop commands run against
type Env struct {
	Out     io.Writer
	Locale  string
	Creds   auth.Credentials
	API     *social.Cached
	Session *auth.Session
	T       auth.Translator
}

// path is the locale root used for login redirects and prompts
func (e *Env) path() string { return "/" + e.Locale }

func (e *Env) t(key, fallback string, values map[string]any) string {
	if e.T == nil {
		return i18n.Substitute(fallback, values)
	}
	return e.T.T(e.Locale, key, fallback, values)
}

func (e *Env) printf(format string, a ...any) {
	_, _ = fmt.Fprintf(e.Out, format, a...)
}

// requireLogin prints the login prompt when no credential is stored
func (e *Env) requireLogin(ctx context.Context) error {
	if _, ok := auth.CheckLogin(ctx, e.Creds, e.path(), ""); ok {
		return nil
	}
	p := auth.NewLoginPrompt(e.T, e.path(), "")
	e.printf("%s: %s\n", p.Title, p.Message)
	p.Dismiss()
	return ErrLoginRequired
}

// Register adds the YouthLoop commands to r
func Register(r *Registry, env *Env) {
	for _, c := range []Func{
		{"login", "login <account> <password>   log in with a password", env.login},
		{"login-otp", "login-otp <email> [code]     mail a code, or log in with it", env.loginOTP},
		{"whoami", "whoami                       show the logged-in user", env.whoami},
		{"logout", "logout                       forget the stored tokens", env.logout},
		{"points", "points                       show the points account", env.points},
		{"tasks", "tasks                        list today's tasks", env.tasks},
		{"signin", "signin                       record today's sign-in", env.signin},
		{"cards", "cards [-policy]              list game cards", env.cards},
	} {
		r.Register(c)
	}
}

func (e *Env) login(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return errors.New("usage: login <account> <password>")
	}
	if _, err := e.API.LoginWithPassword(ctx, args[0], args[1]); err != nil {
		return fmt.Errorf("login: %w", err)
	}
	return e.finishLogin(ctx)
}

func (e *Env) loginOTP(ctx context.Context, args []string) error {
	switch len(args) {
	case 1:
		if err := e.API.SendEmailOTP(ctx, args[0], social.OTPLogin); err != nil {
			return fmt.Errorf("send code: %w", err)
		}
		e.printf("%s\n", e.t("cli_otp_sent", "Code sent to {email}", map[string]any{"email": args[0]}))
		return nil
	case 2:
		if _, err := e.API.LoginWithEmailOTP(ctx, args[0], args[1]); err != nil {
			return fmt.Errorf("login: %w", err)
		}
		return e.finishLogin(ctx)
	default:
		return errors.New("usage: login-otp <email> [code]")
	}
}

func (e *Env) finishLogin(ctx context.Context) error {
	profile, err := e.API.GetMyProfile(ctx)
	if err != nil {
		return fmt.Errorf("load profile: %w", err)
	}
	e.Session.Login(*profile)
	e.printf("%s\n", e.t("cli_login_success", "Logged in as {name}", map[string]any{"name": profile.Nickname}))
	return nil
}

func (e *Env) whoami(ctx context.Context, _ []string) error {
	e.Session.Initialize(ctx)
	u, ok := e.Session.User()
	if !ok || !e.Session.IsLoggedIn(ctx) {
		e.printf("%s\n", e.t("cli_not_logged_in", "Not logged in", nil))
		return ErrLoginRequired
	}
	e.printf("%s\n", e.t("cli_whoami", "{name} ({id}), {points} points", map[string]any{
		"name":   u.Nickname,
		"id":     u.UserID,
		"points": u.Points,
	}))
	return nil
}

func (e *Env) logout(ctx context.Context, _ []string) error {
	e.API.InvalidateUser(ctx)
	e.Session.Logout(auth.WithCurrentPath(ctx, e.path()))
	e.printf("%s\n", e.t("cli_logout_done", "Logged out", nil))
	return nil
}

func (e *Env) points(ctx context.Context, _ []string) error {
	if err := e.requireLogin(ctx); err != nil {
		return err
	}
	acct, err := e.API.PointsAccount(ctx)
	if err != nil {
		return fmt.Errorf("points: %w", err)
	}
	e.printf("%s\n", e.t("points_summary", "Level {level} {levelName}: {available} of {total} points available", map[string]any{
		"level":     acct.Level,
		"levelName": acct.LevelName,
		"available": acct.AvailablePoints,
		"total":     acct.TotalPoints,
	}))
	return nil
}

func (e *Env) tasks(ctx context.Context, _ []string) error {
	if err := e.requireLogin(ctx); err != nil {
		return err
	}
	tasks, err := e.API.DailyTasks(ctx)
	if err != nil {
		return fmt.Errorf("tasks: %w", err)
	}
	for _, task := range tasks {
		mark := " "
		if task.Completed {
			mark = "x"
		}
		e.printf("[%s] %s\n", mark, e.t("points_task_line", "{name}: {current}/{max} (+{points})", map[string]any{
			"name":    task.TaskName,
			"current": task.CurrentCompletions,
			"max":     task.MaxCompletions,
			"points":  task.Points,
		}))
	}
	return nil
}

func (e *Env) signin(ctx context.Context, _ []string) error {
	if err := e.requireLogin(ctx); err != nil {
		return err
	}
	rec, err := e.API.Signin(ctx)
	if err != nil {
		return fmt.Errorf("signin: %w", err)
	}
	e.printf("%s\n", e.t("points_signin_done", "Signed in, +{points} points, {days} days in a row", map[string]any{
		"points": rec.Points,
		"days":   rec.ConsecutiveDays,
	}))
	return nil
}

func (e *Env) cards(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("cards", flag.ContinueOnError)
	fs.SetOutput(e.Out)
	policy := fs.Bool("policy", false, "include policy cards")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cat, err := e.API.Cards(ctx, *policy)
	if err != nil {
		return fmt.Errorf("cards: %w", err)
	}
	e.printf("%s\n", e.t("game_cards_header", "{count} cards", map[string]any{"count": len(cat.Items)}))
	for _, c := range cat.Items {
		e.printf("%3d  %-8s %s %d*\n", c.CardNo, c.CardType, c.Name(e.Locale), c.Star)
	}
	return nil
}
