package models

import (
	"time"

	"github.com/google/uuid"
)

// Cart is keyed by its owner: UserID is both the primary key and the owner reference.
type Cart struct {
	UserID             uuid.UUID  `gorm:"column:user_id;type:uuid;primaryKey" json:"userId"`
	Items              []CartItem `gorm:"foreignKey:CartUserID;references:UserID;constraint:OnDelete:CASCADE" json:"items"`
	AbandonedEmailSent bool       `gorm:"column:abandoned_email_sent;not null;default:false" json:"abandonedEmailSent"`
	CreatedAt          time.Time  `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
	UpdatedAt          time.Time  `gorm:"column:updated_at" json:"updatedAt"`
}

type CartItem struct {
	ID         uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	CartUserID uuid.UUID `gorm:"column:cart_user_id;type:uuid;not null;index" json:"-"`
	ProductID  uuid.UUID `gorm:"column:product_id;type:uuid;not null" json:"productId"`
	Quantity   int       `gorm:"column:quantity;not null" json:"quantity"`
	Position   int       `gorm:"column:position;not null;default:0" json:"position"`

	// Product is nil when the referenced product no longer resolves.
	Product *Product `gorm:"foreignKey:ProductID" json:"product,omitempty"`
}
