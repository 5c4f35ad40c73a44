package models

// UnknownUser is shown wherever a reporter has no display name.
const UnknownUser = "Unknown User"

const (
	RoleAdmin   = "admin"
	RoleStudent = "student"
)

// User is the identity behind an authenticated session.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// Profile is owned by account management; this service only reads it.
type Profile struct {
	ID          string  `json:"id"`
	FullName    *string `json:"full_name"`
	PhoneNumber *string `json:"phone_number"`
	Department  *string `json:"department"`
}

// DisplayName returns the full name or the placeholder.
func (p *Profile) DisplayName() string {
	if p == nil || p.FullName == nil || *p.FullName == "" {
		return UnknownUser
	}
	return *p.FullName
}
