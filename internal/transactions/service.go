package transactions

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/digistore-backend/internal/access"
	"github.com/angelmondragon/digistore-backend/pkg/db/models"
	"github.com/angelmondragon/digistore-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/digistore-backend/pkg/errors"
	"github.com/angelmondragon/digistore-backend/pkg/pagination"
	"github.com/angelmondragon/digistore-backend/pkg/security"
)

// Service lists purchase history and seller earnings behind the access predicates.
type Service interface {
	List(ctx context.Context, actor *access.Actor, input ListInput) (*ListResult, error)
	Get(ctx context.Context, actor *access.Actor, id uuid.UUID) (*models.Transaction, error)
	ListEarnings(ctx context.Context, actor *access.Actor, params pagination.Params) (*EarningsResult, error)
}

type ListInput struct {
	pagination.Params
	Status string
}

type ListResult struct {
	Items  []models.Transaction `json:"items"`
	Cursor string               `json:"cursor,omitempty"`
}

type EarningsResult struct {
	Items  []models.Earning `json:"items"`
	Cursor string           `json:"cursor,omitempty"`
}

type service struct {
	repo *Repository
}

func NewService(repo *Repository) (Service, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "transaction repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) List(ctx context.Context, actor *access.Actor, input ListInput) (*ListResult, error) {
	decision := access.Evaluate(actor, access.Transactions, access.Read)
	if !decision.Allowed() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "transactions not readable")
	}
	cursor, err := pagination.ParseCursor(input.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	query := ListQuery{
		Scope:  decision.Scope(access.Columns{Owner: "buyer_id"}),
		Limit:  input.Limit,
		Cursor: cursor,
	}
	if raw := strings.TrimSpace(input.Status); raw != "" {
		status, err := enums.ParseTransactionStatus(raw)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status")
		}
		query.Status = &status
	}

	rows, next, err := s.repo.List(ctx, query)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list transactions")
	}
	result := &ListResult{Items: rows}
	if next != nil {
		result.Cursor = pagination.EncodeCursor(*next)
	}
	return result, nil
}

func (s *service) Get(ctx context.Context, actor *access.Actor, id uuid.UUID) (*models.Transaction, error) {
	decision := access.Evaluate(actor, access.Transactions, access.Read)
	if !decision.Allowed() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "transactions not readable")
	}
	row, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load transaction")
	}
	if row == nil || !decision.Permits(buyerOf(row), false) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "transaction not found")
	}
	return row, nil
}

func (s *service) ListEarnings(ctx context.Context, actor *access.Actor, params pagination.Params) (*EarningsResult, error) {
	decision := access.Evaluate(actor, access.Earnings, access.Read)
	if !decision.Allowed() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "earnings not readable")
	}
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	rows, next, err := s.repo.ListEarnings(ctx, ListQuery{
		Scope:  decision.Scope(access.Columns{Owner: "seller_id"}),
		Limit:  params.Limit,
		Cursor: cursor,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list earnings")
	}
	result := &EarningsResult{Items: rows}
	if next != nil {
		result.Cursor = pagination.EncodeCursor(*next)
	}
	return result, nil
}

func buyerOf(row *models.Transaction) uuid.UUID {
	if row.BuyerID == nil {
		return uuid.Nil
	}
	return *row.BuyerID
}

// NewOrderNumber formats the human-facing order reference, e.g. DS-20261016-K7QM2XWA.
func NewOrderNumber(now time.Time) string {
	return fmt.Sprintf("DS-%s-%s", now.UTC().Format("20060102"), security.RandomCode(8))
}
