package auth

// Translator looks up a localized string, returning fallback on a miss
type Translator interface {
	T(locale, key, fallback string, values map[string]any) string
}

// Translation keys for the login prompt
const (
	KeyPromptTitle   = "auth_login_required_title"
	KeyPromptMessage = "auth_login_required_message"
	KeyPromptCancel  = "auth_login_required_cancel"
	KeyPromptLogin   = "auth_login_required_login"
)

var promptFallbacks = map[string]map[string]string{
	"zh": {
		KeyPromptTitle:   "需要登录",
		KeyPromptMessage: "请先登录再查看此内容",
		KeyPromptCancel:  "取消",
		KeyPromptLogin:   "去登录",
	},
	"en": {
		KeyPromptTitle:   "Login Required",
		KeyPromptMessage: "Please login first to view this content",
		KeyPromptCancel:  "Cancel",
		KeyPromptLogin:   "Login",
	},
}

// LoginPrompt is the state of the "login required" dialog. Renderers draw it
// while Open is true; Dismiss and Confirm are the two ways it closes.
type LoginPrompt struct {
	Locale      string `json:"locale"`
	Title       string `json:"title"`
	Message     string `json:"message"`
	CancelLabel string `json:"cancelLabel"`
	LoginLabel  string `json:"loginLabel"`
	Target      string `json:"target"`
	Open        bool   `json:"open"`
}

// NewLoginPrompt builds an open prompt for the locale of path. An empty
// message uses the default text. tr may be nil.
func NewLoginPrompt(tr Translator, path, message string) *LoginPrompt {
	locale := Locale(path)
	fallbacks := promptFallbacks[locale]
	t := func(key string) string {
		if tr == nil {
			return fallbacks[key]
		}
		return tr.T(locale, key, fallbacks[key], nil)
	}

	if message == "" {
		message = t(KeyPromptMessage)
	}
	return &LoginPrompt{
		Locale:      locale,
		Title:       t(KeyPromptTitle),
		Message:     message,
		CancelLabel: t(KeyPromptCancel),
		LoginLabel:  t(KeyPromptLogin),
		Target:      LoginPath(path),
		Open:        true,
	}
}

// Dismiss closes the prompt (cancel button or backdrop click)
func (p *LoginPrompt) Dismiss() {
	p.Open = false
}

// Confirm closes the prompt and returns the login page to navigate to
func (p *LoginPrompt) Confirm() string {
	p.Open = false
	return p.Target
}
