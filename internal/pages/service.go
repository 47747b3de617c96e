package pages

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/digistore-backend/internal/access"
	product "github.com/angelmondragon/digistore-backend/internal/products"
	"github.com/angelmondragon/digistore-backend/pkg/db"
	"github.com/angelmondragon/digistore-backend/pkg/db/models"
	dbtypes "github.com/angelmondragon/digistore-backend/pkg/db/types"
	"github.com/angelmondragon/digistore-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/digistore-backend/pkg/errors"
	"github.com/angelmondragon/digistore-backend/pkg/pagination"
)

var pageColumns = access.Columns{Status: "status"}

// Service manages content pages. Non-admin readers only ever see pages that
// are published with a publish time at or before now.
type Service interface {
	List(ctx context.Context, actor *access.Actor, input ListInput) (*ListResult, error)
	GetBySlug(ctx context.Context, actor *access.Actor, slug string) (*models.Page, error)
	Create(ctx context.Context, actor *access.Actor, input PageInput) (*models.Page, error)
	Update(ctx context.Context, actor *access.Actor, id uuid.UUID, input PageInput) (*models.Page, error)
	Delete(ctx context.Context, actor *access.Actor, id uuid.UUID) error
}

type service struct {
	repo *Repository
	now  func() time.Time
}

func NewService(repo *Repository) (Service, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "page repository required")
	}
	return &service{repo: repo, now: func() time.Time { return time.Now().UTC() }}, nil
}

func (s *service) List(ctx context.Context, actor *access.Actor, input ListInput) (*ListResult, error) {
	decision := access.Evaluate(actor, access.Pages, access.Read)
	if !decision.Allowed() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "pages not readable")
	}
	cursor, err := pagination.ParseCursor(input.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	scope := decision.Scope(pageColumns)
	if !decision.Unrestricted() {
		now := s.now()
		base := scope
		scope = func(q *gorm.DB) *gorm.DB {
			return base(q).Where("(published_at IS NULL OR published_at <= ?)", now)
		}
	}
	rows, next, err := s.repo.List(ctx, scope, input.Limit, cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list pages")
	}
	result := &ListResult{Items: rows}
	if next != nil {
		result.Cursor = pagination.EncodeCursor(*next)
	}
	return result, nil
}

func (s *service) GetBySlug(ctx context.Context, actor *access.Actor, slug string) (*models.Page, error) {
	decision := access.Evaluate(actor, access.Pages, access.Read)
	row, err := s.repo.FindBySlug(ctx, strings.ToLower(strings.TrimSpace(slug)))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load page")
	}
	if row == nil || !decision.Permits(uuid.Nil, row.Visible(s.now())) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "page not found")
	}
	return row, nil
}

func (s *service) Create(ctx context.Context, actor *access.Actor, input PageInput) (*models.Page, error) {
	if !access.Evaluate(actor, access.Pages, access.Create).Allowed() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "pages not writable")
	}
	row := &models.Page{ID: uuid.New()}
	if err := s.apply(row, input); err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, row); err != nil {
		return nil, mapWriteError(err, "create page")
	}
	return row, nil
}

func (s *service) Update(ctx context.Context, actor *access.Actor, id uuid.UUID, input PageInput) (*models.Page, error) {
	if !access.Evaluate(actor, access.Pages, access.Update).Allowed() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "pages not writable")
	}
	row, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load page")
	}
	if row == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "page not found")
	}
	if err := s.apply(row, input); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, row); err != nil {
		return nil, mapWriteError(err, "update page")
	}
	return row, nil
}

func (s *service) Delete(ctx context.Context, actor *access.Actor, id uuid.UUID) error {
	if !access.Evaluate(actor, access.Pages, access.Delete).Allowed() {
		return pkgerrors.New(pkgerrors.CodeForbidden, "pages not writable")
	}
	deleted, err := s.repo.Delete(ctx, id)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete page")
	}
	if !deleted {
		return pkgerrors.New(pkgerrors.CodeNotFound, "page not found")
	}
	return nil
}

// apply copies validated input onto row. Publishing without a timestamp stamps now.
func (s *service) apply(row *models.Page, input PageInput) error {
	if err := input.normalize(); err != nil {
		return err
	}
	slug := product.Slugify(input.Slug)
	if slug == "" {
		slug = product.Slugify(input.Title)
	}
	if slug == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "slug is required")
	}
	row.Title = input.Title
	row.Slug = slug
	row.Layout = input.Layout
	row.SEO = dbtypes.NewJSON(input.SEO)
	row.Status = input.Status
	row.Blocks = dbtypes.NewJSON(input.Blocks)
	row.PublishedAt = input.PublishedAt
	if row.Status == enums.PublishStatusPublished && row.PublishedAt == nil {
		now := s.now()
		row.PublishedAt = &now
	}
	return nil
}

func mapWriteError(err error, msg string) error {
	if db.IsUniqueViolation(err, "") {
		return pkgerrors.New(pkgerrors.CodeConflict, "slug already in use")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, msg)
}
