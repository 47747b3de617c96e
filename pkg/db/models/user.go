package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/digistore-backend/pkg/enums"
)

// User is a storefront account; Role drives access predicates.
type User struct {
	ID             uuid.UUID  `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	Email          string     `gorm:"column:email;not null;uniqueIndex" json:"email"`
	PasswordHash   string     `gorm:"column:password_hash;not null" json:"-"`
	Name           string     `gorm:"column:name;not null" json:"name"`
	Role           enums.Role `gorm:"column:role;type:text;not null;default:customer" json:"role"`
	GitHubUsername *string    `gorm:"column:github_username" json:"githubUsername,omitempty"`
	LastLoginAt    *time.Time `gorm:"column:last_login_at" json:"lastLoginAt,omitempty"`
	CreatedAt      time.Time  `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
	UpdatedAt      time.Time  `gorm:"column:updated_at;autoUpdateTime" json:"updatedAt"`
}
