package auth

// Gender values returned by the social API
const (
	GenderMale   = "MALE"
	GenderFemale = "FEMALE"
	GenderOther  = "OTHER"
)

// UserProfile is the signed-in user's profile as returned by the social API.
// The session treats it as an opaque value.
type UserProfile struct {
	UserID    string `json:"userId"`
	Nickname  string `json:"nickname"`
	AvatarURL string `json:"avatarUrl,omitempty"`
	Bio       string `json:"bio,omitempty"`
	Email     string `json:"email,omitempty"`
	Phone     string `json:"phone,omitempty"`
	Gender    string `json:"gender,omitempty"`
	BirthDate string `json:"birthDate,omitempty"`
	Location  string `json:"location,omitempty"`
	Points    int    `json:"points"`
	CreatedAt string `json:"createdAt,omitempty"`
}

// ProfileUpdate is a partial profile; nil fields are left unchanged
type ProfileUpdate struct {
	Nickname  *string `json:"nickname,omitempty"`
	AvatarURL *string `json:"avatarUrl,omitempty"`
	Bio       *string `json:"bio,omitempty"`
	Gender    *string `json:"gender,omitempty"`
	BirthDate *string `json:"birthDate,omitempty"`
	Location  *string `json:"location,omitempty"`
	Points    *int    `json:"points,omitempty"`
}

// Apply merges the set fields of u into p
func (u ProfileUpdate) Apply(p *UserProfile) {
	setString(&p.Nickname, u.Nickname)
	setString(&p.AvatarURL, u.AvatarURL)
	setString(&p.Bio, u.Bio)
	setString(&p.Gender, u.Gender)
	setString(&p.BirthDate, u.BirthDate)
	setString(&p.Location, u.Location)
	if u.Points != nil {
		p.Points = *u.Points
	}
}

// IsEmpty reports whether no field is set
func (u ProfileUpdate) IsEmpty() bool {
	return u.Nickname == nil && u.AvatarURL == nil && u.Bio == nil && u.Gender == nil &&
		u.BirthDate == nil && u.Location == nil && u.Points == nil
}

func setString(dst *string, src *string) {
	if src != nil {
		*dst = *src
	}
}
