package models

import (
	"time"
)

// User is a registered account. FailedLoginAttempts and IsLocked are owned by
// the authentication path; everything else is profile data.
type User struct {
	ID                  string
	Email               string
	PasswordHash        string
	Nickname            string
	FirstName           string
	LastName            string
	Bio                 string
	ProfilePictureURL   string
	LinkedInProfileURL  string
	GitHubProfileURL    string
	Role                Role
	IsProfessional      bool
	EmailVerified       bool
	FailedLoginAttempts int
	IsLocked            bool
	LastLoginAt         *time.Time
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// ProfileUpdate carries the optional profile fields of an update request.
// A nil field is left untouched.
type ProfileUpdate struct {
	Email              *string
	Nickname           *string
	FirstName          *string
	LastName           *string
	Bio                *string
	ProfilePictureURL  *string
	LinkedInProfileURL *string
	GitHubProfileURL   *string
}

// Empty reports whether no field was provided.
func (u ProfileUpdate) Empty() bool {
	return u.Email == nil && u.Nickname == nil && u.FirstName == nil && u.LastName == nil &&
		u.Bio == nil && u.ProfilePictureURL == nil && u.LinkedInProfileURL == nil && u.GitHubProfileURL == nil
}

// Apply copies the provided fields onto user.
func (u ProfileUpdate) Apply(user *User) {
	if u.Email != nil {
		user.Email = *u.Email
	}
	if u.Nickname != nil {
		user.Nickname = *u.Nickname
	}
	if u.FirstName != nil {
		user.FirstName = *u.FirstName
	}
	if u.LastName != nil {
		user.LastName = *u.LastName
	}
	if u.Bio != nil {
		user.Bio = *u.Bio
	}
	if u.ProfilePictureURL != nil {
		user.ProfilePictureURL = *u.ProfilePictureURL
	}
	if u.LinkedInProfileURL != nil {
		user.LinkedInProfileURL = *u.LinkedInProfileURL
	}
	if u.GitHubProfileURL != nil {
		user.GitHubProfileURL = *u.GitHubProfileURL
	}
}
