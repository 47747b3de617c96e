package transactions

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/digistore-backend/pkg/db/models"
	"github.com/angelmondragon/digistore-backend/pkg/enums"
	"github.com/angelmondragon/digistore-backend/pkg/pagination"
)

// Repository persists transactions, their purchased items and seller earnings.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

func (r *Repository) withItems(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).Preload("Items", func(db *gorm.DB) *gorm.DB {
		return db.Order("product_id")
	})
}

// FindBySessionID returns nil when no transaction references the session.
func (r *Repository) FindBySessionID(ctx context.Context, sessionID string) (*models.Transaction, error) {
	var row models.Transaction
	err := r.withItems(ctx).Where("external_session_id = ?", sessionID).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Transaction, error) {
	var row models.Transaction
	err := r.withItems(ctx).Where("id = ?", id).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// InsertIfAbsent inserts txn unless a row for the same external session exists.
// It reports whether this call created the row. The row and its items commit
// together; a failed items insert leaves nothing behind.
func (r *Repository) InsertIfAbsent(ctx context.Context, txn *models.Transaction) (bool, error) {
	inserted := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "external_session_id"}}, DoNothing: true}).
			Omit("Items").
			Create(txn)
		if result.Error != nil || result.RowsAffected == 0 {
			return result.Error
		}
		for i := range txn.Items {
			txn.Items[i].TransactionID = txn.ID
		}
		if len(txn.Items) > 0 {
			if err := tx.Create(&txn.Items).Error; err != nil {
				return err
			}
		}
		inserted = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return inserted, nil
}

// Completion carries what the provider reported for a paid session.
type Completion struct {
	PaymentIntentID *string
	Amount          decimal.Decimal
	GitHubUsername  *string
	CompletedAt     time.Time
}

// MarkCompleted moves the transaction to completed unless it already is, or was
// refunded. The boolean is true only for the call that performed the transition.
func (r *Repository) MarkCompleted(ctx context.Context, id uuid.UUID, c Completion) (bool, error) {
	updates := map[string]any{
		"status":       enums.TransactionStatusCompleted,
		"completed_at": c.CompletedAt,
		"amount":       c.Amount,
		"updated_at":   c.CompletedAt,
	}
	if c.PaymentIntentID != nil {
		updates["payment_intent_id"] = *c.PaymentIntentID
	}
	if c.GitHubUsername != nil {
		updates["github_username"] = *c.GitHubUsername
	}
	result := r.db.WithContext(ctx).
		Model(&models.Transaction{}).
		Where("id = ? AND status NOT IN ?", id, []enums.TransactionStatus{enums.TransactionStatusCompleted, enums.TransactionStatusRefunded}).
		Updates(updates)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// MarkFailed fails a pending transaction for the session. Missing or settled rows are left alone.
func (r *Repository) MarkFailed(ctx context.Context, sessionID string, now time.Time) (*models.Transaction, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Transaction{}).
		Where("external_session_id = ? AND status = ?", sessionID, enums.TransactionStatusPending).
		Updates(map[string]any{"status": enums.TransactionStatusFailed, "updated_at": now})
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, nil
	}
	return r.FindBySessionID(ctx, sessionID)
}

// MarkRefunded refunds the completed transaction paid by paymentIntentID.
func (r *Repository) MarkRefunded(ctx context.Context, paymentIntentID string, now time.Time) (*models.Transaction, error) {
	var row models.Transaction
	err := r.db.WithContext(ctx).
		Where("payment_intent_id = ? AND status = ?", paymentIntentID, enums.TransactionStatusCompleted).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	result := r.db.WithContext(ctx).
		Model(&models.Transaction{}).
		Where("id = ? AND status = ?", row.ID, enums.TransactionStatusCompleted).
		Updates(map[string]any{"status": enums.TransactionStatusRefunded, "updated_at": now})
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, nil
	}
	row.Status = enums.TransactionStatusRefunded
	return &row, nil
}

// RecordEarnings credits sellers once per (transaction, product).
func (r *Repository) RecordEarnings(ctx context.Context, rows []models.Earning) error {
	if len(rows) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "transaction_id"}, {Name: "product_id"}}, DoNothing: true}).
		Create(&rows).Error
}

// HasCompletedPurchase reports whether buyerID owns productID through a completed transaction.
func (r *Repository) HasCompletedPurchase(ctx context.Context, buyerID, productID uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Table("transactions AS t").
		Joins("JOIN transaction_items ti ON ti.transaction_id = t.id").
		Where("t.buyer_id = ? AND t.status = ? AND ti.product_id = ?", buyerID, enums.TransactionStatusCompleted, productID).
		Count(&count).Error
	return count > 0, err
}

// ListQuery pages transactions or earnings newest first.
type ListQuery struct {
	Scope  func(*gorm.DB) *gorm.DB
	Status *enums.TransactionStatus
	Limit  int
	Cursor *pagination.Cursor
}

func (r *Repository) List(ctx context.Context, q ListQuery) ([]models.Transaction, *pagination.Cursor, error) {
	query := r.withItems(ctx).Model(&models.Transaction{})
	if q.Scope != nil {
		query = query.Scopes(q.Scope)
	}
	if q.Status != nil {
		query = query.Where("status = ?", *q.Status)
	}

	var rows []models.Transaction
	if err := query.Scopes(pagination.NewestFirst(q.Cursor, q.Limit)).Find(&rows).Error; err != nil {
		return nil, nil, err
	}
	page, next := pagination.Trim(rows, q.Limit, func(t models.Transaction) pagination.Cursor {
		return pagination.Cursor{CreatedAt: t.CreatedAt, ID: t.ID}
	})
	return page, next, nil
}

func (r *Repository) ListEarnings(ctx context.Context, q ListQuery) ([]models.Earning, *pagination.Cursor, error) {
	query := r.db.WithContext(ctx).Model(&models.Earning{})
	if q.Scope != nil {
		query = query.Scopes(q.Scope)
	}

	var rows []models.Earning
	if err := query.Scopes(pagination.NewestFirst(q.Cursor, q.Limit)).Find(&rows).Error; err != nil {
		return nil, nil, err
	}
	page, next := pagination.Trim(rows, q.Limit, func(e models.Earning) pagination.Cursor {
		return pagination.Cursor{CreatedAt: e.CreatedAt, ID: e.ID}
	})
	return page, next, nil
}
