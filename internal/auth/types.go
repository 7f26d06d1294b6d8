package auth

import (
	"strings"
	"time"
)

// User is a staff member allowed to operate the sign-out desk.
// Secret hashes never leave this package in API responses.
type User struct {
	ID           string    `json:"id"`
	Rank         string    `json:"rank,omitempty"`
	FirstName    string    `json:"first_name"`
	LastName     string    `json:"last_name"`
	Active       bool      `json:"active"`
	PasswordHash string    `json:"-"`
	PINHash      string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// DisplayName renders the user the way duty logs reference them.
func (u User) DisplayName() string {
	return strings.TrimSpace(strings.Join([]string{u.Rank, u.FirstName, u.LastName}, " "))
}

// Permission is a cataloged fine-grained capability.
type Permission struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Grant records that a user holds a permission and who gave it.
type Grant struct {
	UserID     string    `json:"user_id"`
	Permission string    `json:"permission"`
	GrantedBy  string    `json:"granted_by"`
	GrantedAt  time.Time `json:"granted_at"`
}

// UserGrants is the administrative projection of one user's permission names.
type UserGrants struct {
	UserID      string   `json:"user_id"`
	DisplayName string   `json:"display_name"`
	Active      bool     `json:"active"`
	Permissions []string `json:"permissions"`
}

// UserUpdate carries optional field changes for a user. Password and PIN
// are plaintext here; the service hashes them before storage.
type UserUpdate struct {
	Rank      *string
	FirstName *string
	LastName  *string
	Active    *bool
	Password  *string
	PIN       *string
}
