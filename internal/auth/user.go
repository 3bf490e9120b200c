// Package auth provides demo identity: a fixed credential set, per-client
// sessions persisted to a key-value backend, and signed session tokens.
package auth

import (
	"crypto/subtle"
	"strings"
)

// Role separates patients from lab administrators.
type Role string

const (
	RolePatient Role = "patient"
	RoleAdmin   Role = "admin"
)

// User is the identity attached to an authenticated session.
type User struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  Role   `json:"role"`
}

func (u User) IsAdmin() bool { return u.Role == RoleAdmin }

// Credential is one accepted email/password pair.
type Credential struct {
	Email    string
	Password string
	User     User
}

// Credentials is the fixed account list checked on login.
type Credentials []Credential

// DemoCredentials returns the admin and patient demo accounts.
func DemoCredentials(adminEmail, patientEmail, password string) Credentials {
	if adminEmail == "" {
		adminEmail = "admin@test.com"
	}
	if patientEmail == "" {
		patientEmail = "patient@test.com"
	}
	if password == "" {
		password = "password"
	}
	return Credentials{
		{
			Email:    adminEmail,
			Password: password,
			User:     User{ID: "admin-123", Name: "Admin User", Email: adminEmail, Role: RoleAdmin},
		},
		{
			Email:    patientEmail,
			Password: password,
			User:     User{ID: "patient-123", Name: "Test Patient", Email: patientEmail, Role: RolePatient},
		},
	}
}

// Match returns the user for an exact email/password pair.
func (c Credentials) Match(email, password string) (User, bool) {
	email = strings.TrimSpace(email)
	for _, cred := range c {
		if !strings.EqualFold(cred.Email, email) {
			continue
		}
		if subtle.ConstantTimeCompare([]byte(cred.Password), []byte(password)) == 1 {
			return cred.User, true
		}
	}
	return User{}, false
}
