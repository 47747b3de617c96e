package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	dbtypes "github.com/angelmondragon/digistore-backend/pkg/db/types"
	"github.com/angelmondragon/digistore-backend/pkg/enums"
)

// Block is one typed unit of page content; Data is interpreted by the renderer for Type.
type Block struct {
	Type enums.BlockType `json:"type" yaml:"type"`
	Data json.RawMessage `json:"data,omitempty" yaml:"-"`
}

type SEO struct {
	MetaTitle       string `json:"metaTitle,omitempty" yaml:"metaTitle"`
	MetaDescription string `json:"metaDescription,omitempty" yaml:"metaDescription"`
	OGImage         string `json:"ogImage,omitempty" yaml:"ogImage"`
}

type Page struct {
	ID          uuid.UUID             `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	Title       string                `gorm:"column:title;not null" json:"title"`
	Slug        string                `gorm:"column:slug;not null;uniqueIndex" json:"slug"`
	Layout      enums.PageLayout      `gorm:"column:layout;type:text;not null;default:default" json:"layout"`
	SEO         dbtypes.JSON[SEO]     `gorm:"column:seo;type:jsonb;not null;default:'{}'" json:"seo"`
	Status      enums.PublishStatus   `gorm:"column:status;type:text;not null;default:draft" json:"status"`
	PublishedAt *time.Time            `gorm:"column:published_at" json:"publishedAt,omitempty"`
	Blocks      dbtypes.JSON[[]Block] `gorm:"column:blocks;type:jsonb;not null;default:'[]'" json:"blocks"`
	CreatedAt   time.Time             `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
	UpdatedAt   time.Time             `gorm:"column:updated_at;autoUpdateTime" json:"updatedAt"`
}

// Visible reports whether the page is published and its publish time has arrived.
func (p *Page) Visible(now time.Time) bool {
	if p == nil || p.Status != enums.PublishStatusPublished {
		return false
	}
	return p.PublishedAt == nil || !p.PublishedAt.After(now)
}
