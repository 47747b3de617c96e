package cart

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/digistore-backend/pkg/db/models"
)

// Repository exposes persistence operations for carts. A cart row is keyed by
// its owner's user id, so there is at most one per user.
type Repository struct {
	db *gorm.DB
}

// NewRepository constructs a cart repository bound to the provided DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx binds the repository to a transaction.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

// Find loads the cart with items in position order and their products
// preloaded. Items whose product is gone keep a nil Product. A missing cart
// returns nil without error.
func (r *Repository) Find(ctx context.Context, userID uuid.UUID) (*models.Cart, error) {
	var cart models.Cart
	err := r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB {
			return db.Order("position ASC")
		}).
		Preload("Items.Product").
		Where("user_id = ?", userID).
		Take(&cart).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &cart, nil
}

// Touch creates the cart when absent and stamps its last update.
func (r *Repository) Touch(ctx context.Context, userID uuid.UUID, now time.Time) error {
	cart := models.Cart{UserID: userID, CreatedAt: now, UpdatedAt: now}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"updated_at"}),
		}).
		Create(&cart).Error
}

// ReplaceItems swaps the full item list.
func (r *Repository) ReplaceItems(ctx context.Context, userID uuid.UUID, items []models.CartItem) error {
	if err := r.db.WithContext(ctx).Where("cart_user_id = ?", userID).Delete(&models.CartItem{}).Error; err != nil {
		return err
	}
	if len(items) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Omit(clause.Associations).Create(&items).Error
}

// NextPosition returns the position after the current last item.
func (r *Repository) NextPosition(ctx context.Context, userID uuid.UUID) (int, error) {
	var max *int
	err := r.db.WithContext(ctx).
		Model(&models.CartItem{}).
		Where("cart_user_id = ?", userID).
		Select("MAX(position)").
		Scan(&max).Error
	if err != nil {
		return 0, err
	}
	if max == nil {
		return 0, nil
	}
	return *max + 1, nil
}

// AddQuantity inserts the item or adds to the existing quantity.
func (r *Repository) AddQuantity(ctx context.Context, item models.CartItem) error {
	return r.db.WithContext(ctx).
		Omit(clause.Associations).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "cart_user_id"}, {Name: "product_id"}},
			DoUpdates: clause.Assignments(map[string]any{"quantity": gorm.Expr("cart_items.quantity + excluded.quantity")}),
		}).
		Create(&item).Error
}

// SetQuantity reports whether the item existed.
func (r *Repository) SetQuantity(ctx context.Context, userID, productID uuid.UUID, quantity int) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.CartItem{}).
		Where("cart_user_id = ? AND product_id = ?", userID, productID).
		UpdateColumn("quantity", quantity)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// RemoveItem reports whether the item existed.
func (r *Repository) RemoveItem(ctx context.Context, userID, productID uuid.UUID) (bool, error) {
	result := r.db.WithContext(ctx).
		Where("cart_user_id = ? AND product_id = ?", userID, productID).
		Delete(&models.CartItem{})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// Delete removes the cart and its items.
func (r *Repository) Delete(ctx context.Context, userID uuid.UUID) error {
	if err := r.db.WithContext(ctx).Where("cart_user_id = ?", userID).Delete(&models.CartItem{}).Error; err != nil {
		return err
	}
	return r.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&models.Cart{}).Error
}

// AbandonedQuery pages through carts still eligible for the reminder e-mail.
type AbandonedQuery struct {
	Limit int
	// After is the last user id of the previous page.
	After *uuid.UUID
	// IdleBefore excludes carts updated after this instant when non-zero.
	IdleBefore time.Time
}

// ListAwaitingAbandonedEmail returns carts whose reminder flag is unset,
// ordered by user id for stable paging.
func (r *Repository) ListAwaitingAbandonedEmail(ctx context.Context, q AbandonedQuery) ([]models.Cart, error) {
	query := r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB {
			return db.Order("position ASC")
		}).
		Preload("Items.Product").
		Where("abandoned_email_sent = ?", false)
	if q.After != nil {
		query = query.Where("user_id > ?", *q.After)
	}
	if !q.IdleBefore.IsZero() {
		query = query.Where("updated_at <= ?", q.IdleBefore)
	}

	var carts []models.Cart
	if err := query.Order("user_id ASC").Limit(q.Limit).Find(&carts).Error; err != nil {
		return nil, err
	}
	return carts, nil
}

// MarkAbandonedEmailSent flips the flag; it reports false when it was already set.
func (r *Repository) MarkAbandonedEmailSent(ctx context.Context, userID uuid.UUID) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Cart{}).
		Where("user_id = ? AND abandoned_email_sent = ?", userID, false).
		UpdateColumn("abandoned_email_sent", true)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}
