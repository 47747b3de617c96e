package product

import (
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/digistore-backend/pkg/db/models"
	"github.com/angelmondragon/digistore-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/digistore-backend/pkg/errors"
)

// ListInput describes the browse filters.
type ListInput struct {
	Category   string
	Technology string
	SellerID   *uuid.UUID
	Limit      int
	Cursor     string
}

type ListResult struct {
	Items  []models.Product `json:"items"`
	Cursor string           `json:"cursor,omitempty"`
}

// ProductInput is the writable surface of a product. RepoToken left nil on
// update keeps the stored token.
type ProductInput struct {
	Title          string                `json:"title" validate:"required,max=200"`
	Slug           string                `json:"slug" validate:"omitempty,max=200"`
	Description    string                `json:"description"`
	Price          decimal.Decimal       `json:"price"`
	Status         enums.PublishStatus   `json:"status" validate:"omitempty,oneof=draft published"`
	Type           enums.ProductType     `json:"productType" validate:"required,oneof=digital_download github_repo"`
	Images         []string              `json:"images" validate:"omitempty,dive,url"`
	CategoryID     *uuid.UUID            `json:"categoryId"`
	TechnologyIDs  []uuid.UUID           `json:"technologyIds"`
	SellerID       *uuid.UUID            `json:"sellerId"`
	RepoOwner      *string               `json:"repoOwner"`
	RepoName       *string               `json:"repoName"`
	RepoPermission *enums.RepoPermission `json:"repoPermission"`
	RepoToken      *string               `json:"repoToken"`
}

func (in ProductInput) slug() string {
	if slug := Slugify(in.Slug); slug != "" {
		return slug
	}
	return Slugify(in.Title)
}

func (in ProductInput) validate() error {
	if strings.TrimSpace(in.Title) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "title is required")
	}
	if in.slug() == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "slug is required")
	}
	if in.Price.IsNegative() {
		return pkgerrors.New(pkgerrors.CodeValidation, "price cannot be negative")
	}
	if in.Status != "" && !in.Status.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid status")
	}
	if !in.Type.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid product type")
	}
	if in.Type == enums.ProductTypeGitHubRepo {
		if blank(in.RepoOwner) || blank(in.RepoName) {
			return pkgerrors.New(pkgerrors.CodeValidation, "repository owner and name are required")
		}
		if in.RepoPermission != nil && !in.RepoPermission.IsValid() {
			return pkgerrors.New(pkgerrors.CodeValidation, "invalid repository permission")
		}
	}
	return nil
}

func blank(value *string) bool {
	return value == nil || strings.TrimSpace(*value) == ""
}

// FileInput registers an object that was uploaded to the bucket out of band.
type FileInput struct {
	FileName    string `json:"fileName" validate:"required"`
	ObjectKey   string `json:"objectKey" validate:"required"`
	ContentType string `json:"contentType"`
	SizeBytes   int64  `json:"sizeBytes" validate:"min=0"`
	Position    int    `json:"position"`
}

// TaxonomyInput creates a category or technology.
type TaxonomyInput struct {
	Name string `json:"name" validate:"required,max=100"`
	Slug string `json:"slug"`
}

func (in TaxonomyInput) normalize() (string, string, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return "", "", pkgerrors.New(pkgerrors.CodeValidation, "name is required")
	}
	slug := Slugify(in.Slug)
	if slug == "" {
		slug = Slugify(name)
	}
	if slug == "" {
		return "", "", pkgerrors.New(pkgerrors.CodeValidation, "slug is required")
	}
	return name, slug, nil
}
