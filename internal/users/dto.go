package users

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/digistore-backend/pkg/db/models"
	"github.com/angelmondragon/digistore-backend/pkg/enums"
)

// UserDTO is the transport shape that omits sensitive credentials.
type UserDTO struct {
	ID             uuid.UUID  `json:"id"`
	Email          string     `json:"email"`
	Name           string     `json:"name"`
	Role           enums.Role `json:"role"`
	GitHubUsername *string    `json:"githubUsername,omitempty"`
	LastLoginAt    *time.Time `json:"lastLoginAt,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
}

// CreateUserDTO holds the data required by the repo to persist a new user.
type CreateUserDTO struct {
	Email          string
	PasswordHash   string
	Name           string
	Role           enums.Role
	GitHubUsername *string
}

func FromModel(u *models.User) *UserDTO {
	if u == nil {
		return nil
	}
	return &UserDTO{
		ID:             u.ID,
		Email:          u.Email,
		Name:           u.Name,
		Role:           u.Role,
		GitHubUsername: u.GitHubUsername,
		LastLoginAt:    u.LastLoginAt,
		CreatedAt:      u.CreatedAt,
	}
}

func (c CreateUserDTO) ToModel() *models.User {
	role := c.Role
	if !role.IsValid() || role == enums.RoleAnonymous {
		role = enums.RoleCustomer
	}
	return &models.User{
		ID:             uuid.New(),
		Email:          strings.ToLower(strings.TrimSpace(c.Email)),
		PasswordHash:   c.PasswordHash,
		Name:           strings.TrimSpace(c.Name),
		Role:           role,
		GitHubUsername: NormalizeGitHubUsername(c.GitHubUsername),
	}
}

// NormalizeGitHubUsername trims a leading @ and whitespace; blank becomes nil.
func NormalizeGitHubUsername(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimPrefix(strings.TrimSpace(*value), "@")
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
