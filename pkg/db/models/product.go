package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/digistore-backend/pkg/enums"
)

// Product is a catalog listing owned by a seller.
type Product struct {
	ID          uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	SellerID    uuid.UUID           `gorm:"column:seller_id;type:uuid;not null;index" json:"sellerId"`
	Title       string              `gorm:"column:title;not null" json:"title"`
	Slug        string              `gorm:"column:slug;not null;uniqueIndex" json:"slug"`
	Description string              `gorm:"column:description;not null;default:''" json:"description"`
	Price       decimal.Decimal     `gorm:"column:price;type:numeric(12,2);not null" json:"price"`
	Status      enums.PublishStatus `gorm:"column:status;type:text;not null;default:draft" json:"status"`
	Type        enums.ProductType   `gorm:"column:product_type;type:text;not null;default:digital_download" json:"productType"`
	Images      pq.StringArray      `gorm:"column:images;type:text[];not null;default:'{}'" json:"images"`
	CategoryID  *uuid.UUID          `gorm:"column:category_id;type:uuid" json:"categoryId,omitempty"`

	// github_repo fulfillment metadata; the token never leaves the server.
	RepoOwner      *string               `gorm:"column:repo_owner" json:"repoOwner,omitempty"`
	RepoName       *string               `gorm:"column:repo_name" json:"repoName,omitempty"`
	RepoPermission *enums.RepoPermission `gorm:"column:repo_permission;type:text" json:"repoPermission,omitempty"`
	RepoToken      *string               `gorm:"column:repo_token" json:"-"`

	Category     *Category     `gorm:"foreignKey:CategoryID" json:"category,omitempty"`
	Technologies []Technology  `gorm:"many2many:product_technologies;joinForeignKey:ProductID;joinReferences:TechnologyID" json:"technologies,omitempty"`
	Files        []ProductFile `gorm:"foreignKey:ProductID;constraint:OnDelete:CASCADE" json:"files,omitempty"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updatedAt"`
}

// IsPublished reports whether the product may be shown and sold.
func (p *Product) IsPublished() bool {
	return p != nil && p.Status == enums.PublishStatusPublished
}

// FirstImage returns the image used in hosted checkout, if any.
func (p *Product) FirstImage() string {
	if p == nil || len(p.Images) == 0 {
		return ""
	}
	return p.Images[0]
}

// ProductFile is a downloadable asset stored in object storage.
type ProductFile struct {
	ID          uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	ProductID   uuid.UUID `gorm:"column:product_id;type:uuid;not null;index" json:"productId"`
	FileName    string    `gorm:"column:file_name;not null" json:"fileName"`
	ObjectKey   string    `gorm:"column:object_key;not null" json:"-"`
	ContentType string    `gorm:"column:content_type;not null;default:'application/octet-stream'" json:"contentType"`
	SizeBytes   int64     `gorm:"column:size_bytes;not null;default:0" json:"sizeBytes"`
	Position    int       `gorm:"column:position;not null;default:0" json:"position"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
}
