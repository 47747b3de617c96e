package product

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/digistore-backend/pkg/db/models"
	"github.com/angelmondragon/digistore-backend/pkg/pagination"
)

// Repository wires together all catalog persistence helpers.
type Repository struct {
	db *gorm.DB
}

// NewRepository builds a repository tied to the provided GORM DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx returns a repository bound to the provided transaction.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

// FindByIDs loads products without associations; missing ids are simply absent.
func (r *Repository) FindByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Product, error) {
	if len(ids) == 0 {
		return []models.Product{}, nil
	}
	var rows []models.Product
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *Repository) detail() *gorm.DB {
	return r.db.
		Preload("Category").
		Preload("Technologies").
		Preload("Files", func(db *gorm.DB) *gorm.DB {
			return db.Order("position ASC, created_at ASC")
		})
}

// FindByID returns nil without error when absent.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	var row models.Product
	err := r.detail().WithContext(ctx).Where("id = ?", id).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// FindBySlug applies scope before matching so filtered-out products look absent.
func (r *Repository) FindBySlug(ctx context.Context, slug string, scope func(*gorm.DB) *gorm.DB) (*models.Product, error) {
	var row models.Product
	query := r.detail().WithContext(ctx).Where("slug = ?", slug)
	if scope != nil {
		query = query.Scopes(scope)
	}
	err := query.Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// ListQuery filters the browse listing.
type ListQuery struct {
	Scope          func(*gorm.DB) *gorm.DB
	CategorySlug   string
	TechnologySlug string
	SellerID       *uuid.UUID
	Limit          int
	Cursor         *pagination.Cursor
}

// List pages products newest first.
func (r *Repository) List(ctx context.Context, q ListQuery) ([]models.Product, *pagination.Cursor, error) {
	query := r.db.WithContext(ctx).Model(&models.Product{}).
		Preload("Category").
		Preload("Technologies")
	if q.Scope != nil {
		query = query.Scopes(q.Scope)
	}
	if q.CategorySlug != "" {
		query = query.Where("category_id IN (?)", r.db.Model(&models.Category{}).Select("id").Where("slug = ?", q.CategorySlug))
	}
	if q.TechnologySlug != "" {
		query = query.Where("id IN (?)", r.db.Table("product_technologies AS pt").
			Select("pt.product_id").
			Joins("JOIN technologies t ON t.id = pt.technology_id").
			Where("t.slug = ?", q.TechnologySlug))
	}
	if q.SellerID != nil {
		query = query.Where("seller_id = ?", *q.SellerID)
	}

	var rows []models.Product
	if err := query.Scopes(pagination.NewestFirst(q.Cursor, q.Limit)).Find(&rows).Error; err != nil {
		return nil, nil, err
	}
	page, next := pagination.Trim(rows, q.Limit, func(p models.Product) pagination.Cursor {
		return pagination.Cursor{CreatedAt: p.CreatedAt, ID: p.ID}
	})
	return page, next, nil
}

// Create inserts the product and links its technologies.
func (r *Repository) Create(ctx context.Context, product *models.Product) error {
	technologies := product.Technologies
	if err := r.db.WithContext(ctx).Omit(clause.Associations).Create(product).Error; err != nil {
		return err
	}
	if len(technologies) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Model(product).Association("Technologies").Replace(technologies)
}

var productColumns = []string{
	"title", "slug", "description", "price", "status", "product_type", "images", "category_id",
	"repo_owner", "repo_name", "repo_permission", "repo_token", "updated_at",
}

// Update writes the editable columns and replaces the technology links.
func (r *Repository) Update(ctx context.Context, product *models.Product) error {
	err := r.db.WithContext(ctx).
		Model(&models.Product{}).
		Where("id = ?", product.ID).
		Select(productColumns).
		Updates(product).Error
	if err != nil {
		return err
	}
	return r.db.WithContext(ctx).Model(product).Association("Technologies").Replace(product.Technologies)
}

// Delete removes the product with its files and technology links.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	if err := r.db.WithContext(ctx).Where("product_id = ?", id).Delete(&models.ProductFile{}).Error; err != nil {
		return false, err
	}
	if err := r.db.WithContext(ctx).Exec("DELETE FROM product_technologies WHERE product_id = ?", id).Error; err != nil {
		return false, err
	}
	result := r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Product{})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *Repository) ListFiles(ctx context.Context, productID uuid.UUID) ([]models.ProductFile, error) {
	var rows []models.ProductFile
	err := r.db.WithContext(ctx).
		Where("product_id = ?", productID).
		Order("position ASC, created_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *Repository) CreateFile(ctx context.Context, file *models.ProductFile) error {
	return r.db.WithContext(ctx).Create(file).Error
}

func (r *Repository) DeleteFile(ctx context.Context, productID, fileID uuid.UUID) (bool, error) {
	result := r.db.WithContext(ctx).Where("id = ? AND product_id = ?", fileID, productID).Delete(&models.ProductFile{})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *Repository) ListCategories(ctx context.Context) ([]models.Category, error) {
	var rows []models.Category
	if err := r.db.WithContext(ctx).Order("name ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *Repository) CreateCategory(ctx context.Context, row *models.Category) error {
	return r.db.WithContext(ctx).Create(row).Error
}

func (r *Repository) ListTechnologies(ctx context.Context) ([]models.Technology, error) {
	var rows []models.Technology
	if err := r.db.WithContext(ctx).Order("name ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *Repository) CreateTechnology(ctx context.Context, row *models.Technology) error {
	return r.db.WithContext(ctx).Create(row).Error
}

func (r *Repository) FindTechnologies(ctx context.Context, ids []uuid.UUID) ([]models.Technology, error) {
	if len(ids) == 0 {
		return []models.Technology{}, nil
	}
	var rows []models.Technology
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *Repository) CategoryExists(ctx context.Context, id uuid.UUID) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.Category{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// UpsertCategoryBySlug is used by fixture imports.
func (r *Repository) UpsertCategoryBySlug(ctx context.Context, row *models.Category) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "slug"}},
			DoUpdates: clause.AssignmentColumns([]string{"name"}),
		}).
		Create(row).Error
}

// UpsertTechnologyBySlug is used by fixture imports.
func (r *Repository) UpsertTechnologyBySlug(ctx context.Context, row *models.Technology) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "slug"}},
			DoUpdates: clause.AssignmentColumns([]string{"name"}),
		}).
		Create(row).Error
}
