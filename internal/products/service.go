package product

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm"

	"github.com/angelmondragon/digistore-backend/internal/access"
	"github.com/angelmondragon/digistore-backend/pkg/db"
	"github.com/angelmondragon/digistore-backend/pkg/db/models"
	"github.com/angelmondragon/digistore-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/digistore-backend/pkg/errors"
	"github.com/angelmondragon/digistore-backend/pkg/pagination"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service exposes catalog reads for the storefront and writes for sellers and admins.
type Service interface {
	List(ctx context.Context, actor *access.Actor, input ListInput) (*ListResult, error)
	GetBySlug(ctx context.Context, actor *access.Actor, slug string) (*models.Product, error)
	Create(ctx context.Context, actor *access.Actor, input ProductInput) (*models.Product, error)
	Update(ctx context.Context, actor *access.Actor, id uuid.UUID, input ProductInput) (*models.Product, error)
	Delete(ctx context.Context, actor *access.Actor, id uuid.UUID) error
	AddFile(ctx context.Context, actor *access.Actor, productID uuid.UUID, input FileInput) (*models.ProductFile, error)
	RemoveFile(ctx context.Context, actor *access.Actor, productID, fileID uuid.UUID) error

	ListCategories(ctx context.Context) ([]models.Category, error)
	CreateCategory(ctx context.Context, input TaxonomyInput) (*models.Category, error)
	ListTechnologies(ctx context.Context) ([]models.Technology, error)
	CreateTechnology(ctx context.Context, input TaxonomyInput) (*models.Technology, error)
}

type service struct {
	repo *Repository
	tx   txRunner
	now  func() time.Time
}

// NewService wires the catalog service.
func NewService(repo *Repository, tx txRunner) (Service, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "product repository required")
	}
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "transaction runner required")
	}
	return &service{repo: repo, tx: tx, now: func() time.Time { return time.Now().UTC() }}, nil
}

var productColumnsForAccess = access.Columns{Owner: "seller_id", Status: "status"}

func (s *service) List(ctx context.Context, actor *access.Actor, input ListInput) (*ListResult, error) {
	decision := access.Evaluate(actor, access.Products, access.Read)
	if !decision.Allowed() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "products not readable")
	}
	cursor, err := pagination.ParseCursor(input.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}

	rows, next, err := s.repo.List(ctx, ListQuery{
		Scope:          decision.Scope(productColumnsForAccess),
		CategorySlug:   strings.TrimSpace(input.Category),
		TechnologySlug: strings.TrimSpace(input.Technology),
		SellerID:       input.SellerID,
		Limit:          input.Limit,
		Cursor:         cursor,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list products")
	}

	result := &ListResult{Items: rows}
	if next != nil {
		result.Cursor = pagination.EncodeCursor(*next)
	}
	return result, nil
}

func (s *service) GetBySlug(ctx context.Context, actor *access.Actor, slug string) (*models.Product, error) {
	decision := access.Evaluate(actor, access.Products, access.Read)
	if !decision.Allowed() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "products not readable")
	}
	row, err := s.repo.FindBySlug(ctx, strings.TrimSpace(slug), decision.Scope(productColumnsForAccess))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product")
	}
	if row == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
	}
	return row, nil
}

func (s *service) Create(ctx context.Context, actor *access.Actor, input ProductInput) (*models.Product, error) {
	if !access.Evaluate(actor, access.Products, access.Create).Allowed() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "cannot create products")
	}
	if err := input.validate(); err != nil {
		return nil, err
	}

	sellerID := actor.UserID
	if actor.Role == enums.RoleAdmin && input.SellerID != nil {
		sellerID = *input.SellerID
	}

	now := s.now()
	row := &models.Product{ID: uuid.New(), SellerID: sellerID, CreatedAt: now}
	if err := s.applyInput(ctx, row, input, now); err != nil {
		return nil, err
	}

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		return s.repo.WithTx(tx).Create(ctx, row)
	})
	if err != nil {
		return nil, mapWriteError(err, "create product")
	}
	return row, nil
}

func (s *service) Update(ctx context.Context, actor *access.Actor, id uuid.UUID, input ProductInput) (*models.Product, error) {
	row, err := s.loadWritable(ctx, actor, id, access.Update)
	if err != nil {
		return nil, err
	}
	if err := input.validate(); err != nil {
		return nil, err
	}
	if input.RepoToken == nil {
		input.RepoToken = row.RepoToken
	}
	if err := s.applyInput(ctx, row, input, s.now()); err != nil {
		return nil, err
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		return s.repo.WithTx(tx).Update(ctx, row)
	})
	if err != nil {
		return nil, mapWriteError(err, "update product")
	}
	return row, nil
}

func (s *service) Delete(ctx context.Context, actor *access.Actor, id uuid.UUID) error {
	if _, err := s.loadWritable(ctx, actor, id, access.Delete); err != nil {
		return err
	}
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		_, err := s.repo.WithTx(tx).Delete(ctx, id)
		return err
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete product")
	}
	return nil
}

func (s *service) AddFile(ctx context.Context, actor *access.Actor, productID uuid.UUID, input FileInput) (*models.ProductFile, error) {
	if _, err := s.loadWritable(ctx, actor, productID, access.Update); err != nil {
		return nil, err
	}
	input.FileName = strings.TrimSpace(input.FileName)
	input.ObjectKey = strings.TrimSpace(input.ObjectKey)
	if input.FileName == "" || input.ObjectKey == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "file name and object key are required")
	}
	if input.ContentType == "" {
		input.ContentType = "application/octet-stream"
	}

	file := &models.ProductFile{
		ID:          uuid.New(),
		ProductID:   productID,
		FileName:    input.FileName,
		ObjectKey:   input.ObjectKey,
		ContentType: input.ContentType,
		SizeBytes:   input.SizeBytes,
		Position:    input.Position,
		CreatedAt:   s.now(),
	}
	if err := s.repo.CreateFile(ctx, file); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create product file")
	}
	return file, nil
}

func (s *service) RemoveFile(ctx context.Context, actor *access.Actor, productID, fileID uuid.UUID) error {
	if _, err := s.loadWritable(ctx, actor, productID, access.Update); err != nil {
		return err
	}
	found, err := s.repo.DeleteFile(ctx, productID, fileID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete product file")
	}
	if !found {
		return pkgerrors.New(pkgerrors.CodeNotFound, "product file not found")
	}
	return nil
}

func (s *service) ListCategories(ctx context.Context) ([]models.Category, error) {
	rows, err := s.repo.ListCategories(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list categories")
	}
	return rows, nil
}

func (s *service) CreateCategory(ctx context.Context, input TaxonomyInput) (*models.Category, error) {
	name, slug, err := input.normalize()
	if err != nil {
		return nil, err
	}
	row := &models.Category{ID: uuid.New(), Name: name, Slug: slug, CreatedAt: s.now()}
	if err := s.repo.CreateCategory(ctx, row); err != nil {
		return nil, mapWriteError(err, "create category")
	}
	return row, nil
}

func (s *service) ListTechnologies(ctx context.Context) ([]models.Technology, error) {
	rows, err := s.repo.ListTechnologies(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list technologies")
	}
	return rows, nil
}

func (s *service) CreateTechnology(ctx context.Context, input TaxonomyInput) (*models.Technology, error) {
	name, slug, err := input.normalize()
	if err != nil {
		return nil, err
	}
	row := &models.Technology{ID: uuid.New(), Name: name, Slug: slug, CreatedAt: s.now()}
	if err := s.repo.CreateTechnology(ctx, row); err != nil {
		return nil, mapWriteError(err, "create technology")
	}
	return row, nil
}

// loadWritable loads the product and checks the owner predicate for action.
// Products the actor may not see are reported as missing.
func (s *service) loadWritable(ctx context.Context, actor *access.Actor, id uuid.UUID, action access.Action) (*models.Product, error) {
	decision := access.Evaluate(actor, access.Products, action)
	if !decision.Allowed() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "cannot modify products")
	}
	row, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product")
	}
	if row == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
	}
	if !decision.Permits(row.SellerID, row.IsPublished()) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "product belongs to another seller")
	}
	return row, nil
}

func (s *service) applyInput(ctx context.Context, row *models.Product, input ProductInput, now time.Time) error {
	if input.CategoryID != nil {
		exists, err := s.repo.CategoryExists(ctx, *input.CategoryID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load category")
		}
		if !exists {
			return pkgerrors.New(pkgerrors.CodeValidation, "category not found")
		}
	}
	technologies, err := s.repo.FindTechnologies(ctx, input.TechnologyIDs)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load technologies")
	}
	if len(technologies) != len(uniqueIDs(input.TechnologyIDs)) {
		return pkgerrors.New(pkgerrors.CodeValidation, "unknown technology")
	}

	row.Title = strings.TrimSpace(input.Title)
	row.Slug = input.slug()
	row.Description = strings.TrimSpace(input.Description)
	row.Price = input.Price.Round(2)
	row.Status = input.Status
	if row.Status == "" {
		row.Status = enums.PublishStatusDraft
	}
	row.Type = input.Type
	row.Images = pq.StringArray(input.Images)
	if row.Images == nil {
		row.Images = pq.StringArray{}
	}
	row.CategoryID = input.CategoryID
	row.Technologies = technologies
	row.RepoOwner = input.RepoOwner
	row.RepoName = input.RepoName
	row.RepoPermission = input.RepoPermission
	row.RepoToken = input.RepoToken
	if row.Type != enums.ProductTypeGitHubRepo {
		row.RepoOwner, row.RepoName, row.RepoPermission, row.RepoToken = nil, nil, nil, nil
	}
	row.UpdatedAt = now
	return nil
}

func mapWriteError(err error, action string) error {
	if db.IsUniqueViolation(err, "") {
		return pkgerrors.New(pkgerrors.CodeConflict, "slug already in use")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, action)
}

var slugInvalid = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify lowercases and joins alphanumeric runs with dashes.
func Slugify(value string) string {
	return strings.Trim(slugInvalid.ReplaceAllString(strings.ToLower(value), "-"), "-")
}

func uniqueIDs(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
