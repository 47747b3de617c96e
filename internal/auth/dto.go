package auth

import (
	"time"

	"github.com/angelmondragon/digistore-backend/internal/users"
)

// LoginRequest captures the user credentials sent to the login endpoint.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// RegisterRequest creates a customer account.
type RegisterRequest struct {
	Name           string  `json:"name" validate:"required,max=120"`
	Email          string  `json:"email" validate:"required,email"`
	Password       string  `json:"password" validate:"required,min=8,max=128"`
	GitHubUsername *string `json:"githubUsername,omitempty" validate:"omitempty,github_username"`
}

// UpdateProfileRequest edits the caller's own profile.
type UpdateProfileRequest struct {
	GitHubUsername *string `json:"githubUsername" validate:"omitempty,github_username"`
}

// SessionResponse is returned by login and register.
type SessionResponse struct {
	AccessToken string         `json:"accessToken"`
	ExpiresAt   time.Time      `json:"expiresAt"`
	User        *users.UserDTO `json:"user"`
}
