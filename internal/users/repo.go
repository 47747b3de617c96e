package users

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/digistore-backend/pkg/db/models"
)

// Repository persists accounts. Finders return (nil, nil) on a miss so
// callers decide which error a missing user maps to.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) table(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).Model(&models.User{})
}

func (r *Repository) Create(ctx context.Context, dto CreateUserDTO) (*models.User, error) {
	user := dto.ToModel()
	if err := r.db.WithContext(ctx).Create(user).Error; err != nil {
		return nil, err
	}
	return user, nil
}

// FindByEmail expects email already lower-cased and trimmed.
func (r *Repository) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.lookup(r.table(ctx).Where("email = ?", email))
}

func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return r.lookup(r.table(ctx).Where("id = ?", id))
}

func (r *Repository) lookup(q *gorm.DB) (*models.User, error) {
	user := new(models.User)
	switch err := q.Take(user).Error; {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return nil, nil
	case err != nil:
		return nil, err
	}
	return user, nil
}

func (r *Repository) UpdateLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	return r.table(ctx).Where("id = ?", id).UpdateColumn("last_login_at", at).Error
}

// UpdateGitHubUsername sets the handle repo invitations go to; nil clears it.
func (r *Repository) UpdateGitHubUsername(ctx context.Context, id uuid.UUID, username *string) error {
	return r.table(ctx).Where("id = ?", id).Updates(map[string]any{
		"github_username": username,
		"updated_at":      time.Now().UTC(),
	}).Error
}
