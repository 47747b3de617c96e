package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	dbtypes "github.com/angelmondragon/digistore-backend/pkg/db/types"
	"github.com/angelmondragon/digistore-backend/pkg/enums"
)

// DiscountCode is an admin-managed code; UsedCount is written only by checkout completion.
type DiscountCode struct {
	ID                uuid.UUID          `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	Code              string             `gorm:"column:code;not null;uniqueIndex" json:"code"`
	Type              enums.DiscountType `gorm:"column:discount_type;type:text;not null" json:"type"`
	Value             decimal.Decimal    `gorm:"column:value;type:numeric(12,2);not null" json:"value"`
	MinPurchase       *decimal.Decimal   `gorm:"column:min_purchase;type:numeric(12,2)" json:"minPurchase,omitempty"`
	MaxUses           *int               `gorm:"column:max_uses" json:"maxUses,omitempty"`
	UsedCount         int                `gorm:"column:used_count;not null;default:0" json:"usedCount"`
	StartsAt          *time.Time         `gorm:"column:starts_at" json:"startsAt,omitempty"`
	EndsAt            *time.Time         `gorm:"column:ends_at" json:"endsAt,omitempty"`
	Active            bool               `gorm:"column:active;not null" json:"active"`
	ScopedProductIDs  dbtypes.UUIDArray  `gorm:"column:scoped_product_ids;type:uuid[];not null;default:'{}'" json:"scopedProductIds"`
	ScopedCategoryIDs dbtypes.UUIDArray  `gorm:"column:scoped_category_ids;type:uuid[];not null;default:'{}'" json:"scopedCategoryIds"`
	CreatedAt         time.Time          `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
	UpdatedAt         time.Time          `gorm:"column:updated_at;autoUpdateTime" json:"updatedAt"`
}

// Scoped reports whether the code applies only to selected products or categories.
func (d *DiscountCode) Scoped() bool {
	return len(d.ScopedProductIDs) > 0 || len(d.ScopedCategoryIDs) > 0
}
