// Package i18n wraps go-i18n with the embedded zh and en message files. A
// lookup never fails: a miss falls back to caller-supplied text.
package i18n

import (
	"embed"
	"fmt"
	"io/fs"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"
	goi18n "github.com/nicksnyder/go-i18n/v2/i18n"
	"github.com/rs/zerolog"
	"golang.org/x/text/language"
)

//go:embed locales/*.toml
var localeFS embed.FS

// Translator resolves message ids per locale
type Translator struct {
	bundle *goi18n.Bundle
	def    string
	log    zerolog.Logger

	mu         sync.Mutex
	localizers map[string]*goi18n.Localizer
}

// New loads the embedded message files. defaultLocale is used for
// messages missing in the requested locale.
func New(defaultLocale string, log zerolog.Logger) (*Translator, error) {
	tag, err := language.Parse(defaultLocale)
	if err != nil {
		return nil, fmt.Errorf("default locale %q: %w", defaultLocale, err)
	}
	bundle := goi18n.NewBundle(tag)
	bundle.RegisterUnmarshalFunc("toml", toml.Unmarshal)

	files, err := fs.Glob(localeFS, "locales/*.toml")
	if err != nil {
		return nil, err
	}
	for _, f := range files {
		if _, err := bundle.LoadMessageFileFS(localeFS, f); err != nil {
			return nil, fmt.Errorf("load %s: %w", f, err)
		}
	}
	return &Translator{
		bundle:     bundle,
		def:        defaultLocale,
		log:        log,
		localizers: make(map[string]*goi18n.Localizer),
	}, nil
}

// Locales lists the languages that have a message file
func (t *Translator) Locales() []string {
	tags := t.bundle.LanguageTags()
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		out = append(out, tag.String())
	}
	return out
}

// T returns the translation of key when one exists and differs from the key
// itself. Otherwise it returns fallback with {name} placeholders replaced
// from values, or the key when fallback is empty.
func (t *Translator) T(locale, key, fallback string, values map[string]any) string {
	msg, err := t.localizer(locale).Localize(&goi18n.LocalizeConfig{
		MessageID:    key,
		TemplateData: values,
	})
	if msg != "" && msg != key {
		return msg
	}

	t.log.Warn().Err(err).Str("locale", locale).Str("key", key).Msg("translation missing, using fallback")
	if fallback == "" {
		return key
	}
	return Substitute(fallback, values)
}

// Substitute replaces each {name} in s with values[name]
func Substitute(s string, values map[string]any) string {
	for k, v := range values {
		s = strings.ReplaceAll(s, "{"+k+"}", fmt.Sprint(v))
	}
	return s
}

func (t *Translator) localizer(locale string) *goi18n.Localizer {
	if locale == "" {
		locale = t.def
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	l, ok := t.localizers[locale]
	if !ok {
		l = goi18n.NewLocalizer(t.bundle, locale)
		t.localizers[locale] = l
	}
	return l
}
