package social

import "encoding/json"

// Request wraps every write body
type Request[T any] struct {
	RequestID string `json:"requestId,omitempty"`
	Data      T      `json:"data"`
}

// envelope is the common response shape of both APIs
type envelope struct {
	Success *bool           `json:"success"`
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Errors  []FieldError    `json:"errors"`
	TraceID string          `json:"traceId"`
}

func (e envelope) failed() bool {
	return e.Code != 0 || (e.Success != nil && !*e.Success)
}

// FieldError is a per-field validation message
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// PasswordLogin is the body of LoginWithPassword
type PasswordLogin struct {
	Account  string `json:"account"`
	Password string `json:"password"`
}

// OTPPurpose values accepted by SendEmailOTP
const (
	OTPRegister      = "register"
	OTPLogin         = "login"
	OTPResetPassword = "reset_password"
)

type emailOTPRequest struct {
	Email   string `json:"email"`
	Purpose string `json:"purpose"`
}

type emailOTPLogin struct {
	Email string `json:"email"`
	OTP   string `json:"otp"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type PointsAccount struct {
	UserID          string `json:"userId"`
	TotalPoints     int    `json:"totalPoints"`
	AvailablePoints int    `json:"availablePoints"`
	Level           int    `json:"level"`
	LevelName       string `json:"levelName,omitempty"`
}

type DailyTask struct {
	ID                 string `json:"id"`
	TaskName           string `json:"taskName"`
	Description        string `json:"description"`
	Points             int    `json:"points"`
	MaxCompletions     int    `json:"maxCompletions"`
	CurrentCompletions int    `json:"currentCompletions"`
	Completed          bool   `json:"completed"`
}

type SigninRecord struct {
	UserID          string `json:"userId"`
	SigninDate      string `json:"signinDate"`
	Points          int    `json:"points"`
	ConsecutiveDays int    `json:"consecutiveDays"`
}

type UnlockCost struct {
	Industry   int `json:"industry"`
	Tech       int `json:"tech"`
	Population int `json:"population"`
	Green      int `json:"green"`
}

// Card types and phase buckets
const (
	CardCore   = "core"
	CardPolicy = "policy"
)

type CardMeta struct {
	CardID      string     `json:"cardId"`
	CardNo      int        `json:"cardNo"`
	ChineseName string     `json:"chineseName"`
	EnglishName string     `json:"englishName"`
	CardType    string     `json:"cardType"`
	Domain      string     `json:"domain"`
	Star        int        `json:"star"`
	PhaseBucket string     `json:"phaseBucket"`
	UnlockCost  UnlockCost `json:"unlockCost"`
	ImageKey    string     `json:"imageKey"`
}

// Name picks the card name for a locale
func (c CardMeta) Name(locale string) string {
	if locale == "en" && c.EnglishName != "" {
		return c.EnglishName
	}
	return c.ChineseName
}

type CardCatalog struct {
	Items []CardMeta `json:"items"`
}

type GameSession struct {
	ID           string          `json:"id"`
	UserID       *string         `json:"userId"`
	PondState    json.RawMessage `json:"pondState,omitempty"`
	Score        int             `json:"score"`
	Level        int             `json:"level"`
	StartedAt    string          `json:"startedAt"`
	LastActionAt string          `json:"lastActionAt"`
	Status       int             `json:"status"`
}
