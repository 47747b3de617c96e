package discounts

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/digistore-backend/pkg/db"
	"github.com/angelmondragon/digistore-backend/pkg/db/models"
	dbtypes "github.com/angelmondragon/digistore-backend/pkg/db/types"
	"github.com/angelmondragon/digistore-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/digistore-backend/pkg/errors"
)

// Service validates codes for shoppers and manages them for admins.
type Service interface {
	// Check evaluates a code without side effects. A rejection is returned
	// separately from infrastructure errors.
	Check(ctx context.Context, code string, cartTotal decimal.Decimal, items []LineItem) (*Result, *Rejection, error)
	// Validate is Check with the rejection mapped to a validation error.
	Validate(ctx context.Context, code string, cartTotal decimal.Decimal, items []LineItem) (*Result, error)
	RecordUse(ctx context.Context, tx *gorm.DB, code string) error

	List(ctx context.Context) ([]models.DiscountCode, error)
	Get(ctx context.Context, id uuid.UUID) (*models.DiscountCode, error)
	Create(ctx context.Context, input AdminInput) (*models.DiscountCode, error)
	Update(ctx context.Context, id uuid.UUID, input AdminInput) (*models.DiscountCode, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// AdminInput is the writable surface of a discount code. The used count is
// absent on purpose so callers cannot set it.
type AdminInput struct {
	Code              string             `json:"code" validate:"required,discount_code"`
	Type              enums.DiscountType `json:"type" validate:"required,oneof=percentage fixed"`
	Value             decimal.Decimal    `json:"value"`
	MinPurchase       *decimal.Decimal   `json:"minPurchase"`
	MaxUses           *int               `json:"maxUses" validate:"omitempty,min=1"`
	StartsAt          *time.Time         `json:"startsAt"`
	EndsAt            *time.Time         `json:"endsAt"`
	Active            *bool              `json:"active"`
	ScopedProductIDs  []uuid.UUID        `json:"scopedProductIds"`
	ScopedCategoryIDs []uuid.UUID        `json:"scopedCategoryIds"`
}

type service struct {
	repo Repository
	now  func() time.Time
}

func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "discount repository required")
	}
	return &service{repo: repo, now: func() time.Time { return time.Now().UTC() }}, nil
}

func (s *service) Check(ctx context.Context, code string, cartTotal decimal.Decimal, items []LineItem) (*Result, *Rejection, error) {
	normalized := NormalizeCode(code)
	if normalized == "" {
		return nil, &Rejection{Reason: ReasonInvalid, Message: "invalid discount code"}, nil
	}
	row, err := s.repo.FindByCode(ctx, normalized)
	if err != nil {
		return nil, nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load discount code")
	}
	result, rejection := Evaluate(row, s.now(), cartTotal, items)
	return result, rejection, nil
}

func (s *service) Validate(ctx context.Context, code string, cartTotal decimal.Decimal, items []LineItem) (*Result, error) {
	result, rejection, err := s.Check(ctx, code, cartTotal, items)
	if err != nil {
		return nil, err
	}
	if rejection != nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, rejection.Message).WithDetails(rejection)
	}
	return result, nil
}

// RecordUse bumps the used count inside the caller's transaction.
func (s *service) RecordUse(ctx context.Context, tx *gorm.DB, code string) error {
	if NormalizeCode(code) == "" {
		return nil
	}
	if _, err := s.repo.WithTx(tx).IncrementUsed(ctx, code); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record discount use")
	}
	return nil
}

func (s *service) List(ctx context.Context) ([]models.DiscountCode, error) {
	rows, err := s.repo.List(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list discount codes")
	}
	return rows, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*models.DiscountCode, error) {
	row, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load discount code")
	}
	if row == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "discount code not found")
	}
	return row, nil
}

func (s *service) Create(ctx context.Context, input AdminInput) (*models.DiscountCode, error) {
	if err := input.validate(); err != nil {
		return nil, err
	}
	now := s.now()
	row := &models.DiscountCode{ID: uuid.New(), CreatedAt: now}
	input.apply(row, now)

	if err := s.repo.Create(ctx, row); err != nil {
		if db.IsUniqueViolation(err, "") {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "discount code already exists")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create discount code")
	}
	return row, nil
}

func (s *service) Update(ctx context.Context, id uuid.UUID, input AdminInput) (*models.DiscountCode, error) {
	if err := input.validate(); err != nil {
		return nil, err
	}
	row, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	input.apply(row, s.now())

	if err := s.repo.Update(ctx, row); err != nil {
		if db.IsUniqueViolation(err, "") {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "discount code already exists")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update discount code")
	}
	return row, nil
}

func (s *service) Delete(ctx context.Context, id uuid.UUID) error {
	found, err := s.repo.Delete(ctx, id)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete discount code")
	}
	if !found {
		return pkgerrors.New(pkgerrors.CodeNotFound, "discount code not found")
	}
	return nil
}

func (in AdminInput) validate() error {
	if NormalizeCode(in.Code) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "code is required")
	}
	if !in.Type.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "type must be percentage or fixed")
	}
	if !in.Value.IsPositive() {
		return pkgerrors.New(pkgerrors.CodeValidation, "value must be positive")
	}
	if in.Type == enums.DiscountTypePercentage && in.Value.GreaterThan(hundred) {
		return pkgerrors.New(pkgerrors.CodeValidation, "percentage cannot exceed 100")
	}
	if in.MinPurchase != nil && in.MinPurchase.IsNegative() {
		return pkgerrors.New(pkgerrors.CodeValidation, "minimum purchase cannot be negative")
	}
	if in.StartsAt != nil && in.EndsAt != nil && in.EndsAt.Before(*in.StartsAt) {
		return pkgerrors.New(pkgerrors.CodeValidation, "end date must follow start date")
	}
	return nil
}

func (in AdminInput) apply(row *models.DiscountCode, now time.Time) {
	row.Code = NormalizeCode(in.Code)
	row.Type = in.Type
	row.Value = in.Value.Round(2)
	row.MinPurchase = in.MinPurchase
	row.MaxUses = in.MaxUses
	row.StartsAt = in.StartsAt
	row.EndsAt = in.EndsAt
	row.Active = true
	if in.Active != nil {
		row.Active = *in.Active
	}
	row.ScopedProductIDs = dbtypes.UUIDArray(in.ScopedProductIDs)
	row.ScopedCategoryIDs = dbtypes.UUIDArray(in.ScopedCategoryIDs)
	if row.ScopedProductIDs == nil {
		row.ScopedProductIDs = dbtypes.UUIDArray{}
	}
	if row.ScopedCategoryIDs == nil {
		row.ScopedCategoryIDs = dbtypes.UUIDArray{}
	}
	row.UpdatedAt = now
}
