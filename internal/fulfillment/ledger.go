package fulfillment

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/digistore-backend/pkg/db/models"
	"github.com/angelmondragon/digistore-backend/pkg/enums"
)

// Ledger records per-product fulfillment outcomes so re-deliveries skip finished work.
type Ledger struct {
	db *gorm.DB
}

func NewLedger(db *gorm.DB) *Ledger {
	return &Ledger{db: db}
}

// Succeeded returns the products of the transaction already fulfilled.
func (l *Ledger) Succeeded(ctx context.Context, transactionID uuid.UUID) (map[uuid.UUID]bool, error) {
	var ids []uuid.UUID
	err := l.db.WithContext(ctx).
		Model(&models.Fulfillment{}).
		Where("transaction_id = ? AND status = ?", transactionID, enums.FulfillmentStatusSucceeded).
		Pluck("product_id", &ids).Error
	if err != nil {
		return nil, err
	}
	done := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		done[id] = true
	}
	return done, nil
}

// Record upserts the outcome of one attempt and bumps the attempt counter.
func (l *Ledger) Record(ctx context.Context, transactionID, productID uuid.UUID, status enums.FulfillmentStatus, cause error, now time.Time) error {
	var lastError *string
	if cause != nil {
		msg := cause.Error()
		lastError = &msg
	}
	row := models.Fulfillment{
		ID:            uuid.New(),
		TransactionID: transactionID,
		ProductID:     productID,
		Status:        status,
		Attempts:      1,
		LastError:     lastError,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	return l.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "transaction_id"}, {Name: "product_id"}},
			DoUpdates: clause.Assignments(map[string]any{
				"status":     status,
				"last_error": lastError,
				"updated_at": now,
				"attempts":   gorm.Expr("fulfillments.attempts + 1"),
			}),
		}).
		Create(&row).Error
}

// ForTransaction lists the ledger rows of a transaction.
func (l *Ledger) ForTransaction(ctx context.Context, transactionID uuid.UUID) ([]models.Fulfillment, error) {
	var rows []models.Fulfillment
	err := l.db.WithContext(ctx).Where("transaction_id = ?", transactionID).Order("created_at").Find(&rows).Error
	return rows, err
}
