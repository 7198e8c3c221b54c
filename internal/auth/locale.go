package auth

import (
	"context"
	"regexp"
)

// DefaultLocale is used when a path carries no locale prefix
const DefaultLocale = "zh"

var (
	localeRe   = regexp.MustCompile(`^/(zh|en)(/|$)`)
	prefixedRe = regexp.MustCompile(`^/(zh|en)/`)
)

type pathKey struct{}

// WithCurrentPath records the path the user is on, used to pick the locale
// of the login redirect
func WithCurrentPath(ctx context.Context, path string) context.Context {
	return context.WithValue(ctx, pathKey{}, path)
}

// CurrentPath returns the path stored by WithCurrentPath, or ""
func CurrentPath(ctx context.Context) string {
	p, _ := ctx.Value(pathKey{}).(string)
	return p
}

// Locale returns "zh" or "en" from the leading path segment, defaulting to zh
func Locale(path string) string {
	if m := localeRe.FindStringSubmatch(path); m != nil {
		return m[1]
	}
	return DefaultLocale
}

// LocalePrefix returns "/zh" or "/en" for the path
func LocalePrefix(path string) string {
	return "/" + Locale(path)
}

// LoginPath returns the login entry point for the locale of path
func LoginPath(path string) string {
	return LocalePrefix(path) + "/login"
}

// CheckLogin returns ("", true) when a credential is present. Otherwise it
// returns the redirect target: redirectTo as-is when it already carries a
// locale prefix, else prefixed with the locale of path.
func CheckLogin(ctx context.Context, creds Authenticator, path, redirectTo string) (string, bool) {
	if creds.IsAuthenticated(ctx) {
		return "", true
	}
	if redirectTo == "" {
		redirectTo = "/login"
	}
	if prefixedRe.MatchString(redirectTo) {
		return redirectTo, false
	}
	return LocalePrefix(path) + redirectTo, false
}
