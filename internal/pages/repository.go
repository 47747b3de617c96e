package pages

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/digistore-backend/pkg/db/models"
	"github.com/angelmondragon/digistore-backend/pkg/pagination"
)

// Repository persists content pages. Lookups return (nil, nil) when absent.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) FindBySlug(ctx context.Context, slug string) (*models.Page, error) {
	return r.take(ctx, "slug = ?", slug)
}

func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Page, error) {
	return r.take(ctx, "id = ?", id)
}

func (r *Repository) take(ctx context.Context, query string, arg any) (*models.Page, error) {
	var row models.Page
	err := r.db.WithContext(ctx).Where(query, arg).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *Repository) Create(ctx context.Context, page *models.Page) error {
	return r.db.WithContext(ctx).Create(page).Error
}

func (r *Repository) Update(ctx context.Context, page *models.Page) error {
	return r.db.WithContext(ctx).Save(page).Error
}

func (r *Repository) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	result := r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Page{})
	return result.RowsAffected > 0, result.Error
}

// UpsertBySlug inserts or fully replaces the page with the same slug. Used by fixture import.
func (r *Repository) UpsertBySlug(ctx context.Context, page *models.Page) error {
	existing, err := r.FindBySlug(ctx, page.Slug)
	if err != nil {
		return err
	}
	if existing == nil {
		return r.Create(ctx, page)
	}
	page.ID = existing.ID
	page.CreatedAt = existing.CreatedAt
	return r.Update(ctx, page)
}

// List pages newest first; scope narrows to what the caller may read.
func (r *Repository) List(ctx context.Context, scope func(*gorm.DB) *gorm.DB, limit int, cursor *pagination.Cursor) ([]models.Page, *pagination.Cursor, error) {
	query := r.db.WithContext(ctx).Model(&models.Page{})
	if scope != nil {
		query = query.Scopes(scope)
	}
	var rows []models.Page
	if err := query.Scopes(pagination.NewestFirst(cursor, limit)).Find(&rows).Error; err != nil {
		return nil, nil, err
	}
	page, next := pagination.Trim(rows, limit, func(p models.Page) pagination.Cursor {
		return pagination.Cursor{CreatedAt: p.CreatedAt, ID: p.ID}
	})
	return page, next, nil
}
