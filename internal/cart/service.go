package cart

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/digistore-backend/internal/discounts"
	"github.com/angelmondragon/digistore-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/digistore-backend/pkg/errors"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type productLoader interface {
	FindByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Product, error)
}

type discountChecker interface {
	Check(ctx context.Context, code string, cartTotal decimal.Decimal, items []discounts.LineItem) (*discounts.Result, *discounts.Rejection, error)
}

// Service exposes cart operations for the owning user.
type Service interface {
	Get(ctx context.Context, userID uuid.UUID) (*Summary, error)
	ReplaceItems(ctx context.Context, userID uuid.UUID, items []ItemInput) (*Summary, error)
	AddItem(ctx context.Context, userID uuid.UUID, item ItemInput) (*Summary, error)
	UpdateQuantity(ctx context.Context, userID, productID uuid.UUID, quantity int) (*Summary, error)
	RemoveItem(ctx context.Context, userID, productID uuid.UUID) (*Summary, error)
	Clear(ctx context.Context, userID uuid.UUID) error
	// Summary totals the cart and evaluates an optional code without using it up.
	Summary(ctx context.Context, userID uuid.UUID, code string) (*Summary, error)

	ListAwaitingAbandonedEmail(ctx context.Context, limit int, after *uuid.UUID) ([]models.Cart, error)
	MarkAbandonedEmailSent(ctx context.Context, userID uuid.UUID) error
}

// ItemInput is a requested cart line.
type ItemInput struct {
	ProductID uuid.UUID `json:"productId" validate:"required"`
	Quantity  int       `json:"quantity" validate:"min=1"`
}

// Summary is the priced view of a cart.
type Summary struct {
	UserID            uuid.UUID            `json:"userId"`
	Items             []models.CartItem    `json:"items"`
	Subtotal          decimal.Decimal      `json:"subtotal"`
	Discount          *discounts.Result    `json:"discount,omitempty"`
	DiscountRejection *discounts.Rejection `json:"discountRejection,omitempty"`
	Total             decimal.Decimal      `json:"total"`
	UpdatedAt         *time.Time           `json:"updatedAt,omitempty"`
}

// Options tunes the service; IdleWindow keeps recently edited carts out of the
// abandoned sweep and zero disables that filter.
type Options struct {
	IdleWindow time.Duration
}

type service struct {
	repo     *Repository
	tx       txRunner
	products productLoader
	discount discountChecker
	opts     Options
	now      func() time.Time
}

// NewService builds a cart service backed by the provided stack.
func NewService(repo *Repository, tx txRunner, products productLoader, discount discountChecker, opts Options) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if products == nil {
		return nil, fmt.Errorf("product loader required")
	}
	if discount == nil {
		return nil, fmt.Errorf("discount checker required")
	}
	return &service{
		repo:     repo,
		tx:       tx,
		products: products,
		discount: discount,
		opts:     opts,
		now:      func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *service) Get(ctx context.Context, userID uuid.UUID) (*Summary, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user id required")
	}
	cart, err := s.repo.Find(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
	}
	return summarize(userID, cart), nil
}

func (s *service) ReplaceItems(ctx context.Context, userID uuid.UUID, items []ItemInput) (*Summary, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user id required")
	}
	merged, err := mergeItems(items)
	if err != nil {
		return nil, err
	}
	ids := make([]uuid.UUID, 0, len(merged))
	for _, item := range merged {
		ids = append(ids, item.ProductID)
	}
	if err := s.requireProducts(ctx, ids...); err != nil {
		return nil, err
	}

	rows := make([]models.CartItem, 0, len(merged))
	for i, item := range merged {
		rows = append(rows, models.CartItem{
			ID:         uuid.New(),
			CartUserID: userID,
			ProductID:  item.ProductID,
			Quantity:   item.Quantity,
			Position:   i,
		})
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.Touch(ctx, userID, s.now()); err != nil {
			return err
		}
		return repo.ReplaceItems(ctx, userID, rows)
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "replace cart items")
	}
	return s.Get(ctx, userID)
}

func (s *service) AddItem(ctx context.Context, userID uuid.UUID, item ItemInput) (*Summary, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user id required")
	}
	if item.ProductID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id required")
	}
	if item.Quantity < 1 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be at least 1")
	}
	if err := s.requireProducts(ctx, item.ProductID); err != nil {
		return nil, err
	}

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.Touch(ctx, userID, s.now()); err != nil {
			return err
		}
		position, err := repo.NextPosition(ctx, userID)
		if err != nil {
			return err
		}
		return repo.AddQuantity(ctx, models.CartItem{
			ID:         uuid.New(),
			CartUserID: userID,
			ProductID:  item.ProductID,
			Quantity:   item.Quantity,
			Position:   position,
		})
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "add cart item")
	}
	return s.Get(ctx, userID)
}

func (s *service) UpdateQuantity(ctx context.Context, userID, productID uuid.UUID, quantity int) (*Summary, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user id required")
	}
	if quantity < 1 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be at least 1")
	}

	var found bool
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		var err error
		found, err = repo.SetQuantity(ctx, userID, productID, quantity)
		if err != nil || !found {
			return err
		}
		return repo.Touch(ctx, userID, s.now())
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update cart item")
	}
	if !found {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "cart item not found")
	}
	return s.Get(ctx, userID)
}

func (s *service) RemoveItem(ctx context.Context, userID, productID uuid.UUID) (*Summary, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user id required")
	}

	var found bool
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		var err error
		found, err = repo.RemoveItem(ctx, userID, productID)
		if err != nil || !found {
			return err
		}
		return repo.Touch(ctx, userID, s.now())
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "remove cart item")
	}
	if !found {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "cart item not found")
	}
	return s.Get(ctx, userID)
}

func (s *service) Clear(ctx context.Context, userID uuid.UUID) error {
	if userID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		return s.repo.WithTx(tx).Delete(ctx, userID)
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "clear cart")
	}
	return nil
}

func (s *service) Summary(ctx context.Context, userID uuid.UUID, code string) (*Summary, error) {
	summary, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if discounts.NormalizeCode(code) == "" {
		return summary, nil
	}

	result, rejection, err := s.discount.Check(ctx, code, summary.Subtotal, LineItems(summary.Items))
	if err != nil {
		return nil, err
	}
	summary.DiscountRejection = rejection
	if result != nil {
		summary.Discount = result
		summary.Total = summary.Subtotal.Sub(result.DiscountAmount)
		if summary.Total.IsNegative() {
			summary.Total = decimal.Zero
		}
	}
	return summary, nil
}

func (s *service) ListAwaitingAbandonedEmail(ctx context.Context, limit int, after *uuid.UUID) ([]models.Cart, error) {
	if limit <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "limit must be positive")
	}
	q := AbandonedQuery{Limit: limit, After: after}
	if s.opts.IdleWindow > 0 {
		q.IdleBefore = s.now().Add(-s.opts.IdleWindow)
	}
	carts, err := s.repo.ListAwaitingAbandonedEmail(ctx, q)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list abandoned carts")
	}
	return carts, nil
}

func (s *service) MarkAbandonedEmailSent(ctx context.Context, userID uuid.UUID) error {
	if _, err := s.repo.MarkAbandonedEmailSent(ctx, userID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark abandoned email sent")
	}
	return nil
}

func (s *service) requireProducts(ctx context.Context, ids ...uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	products, err := s.products.FindByIDs(ctx, ids)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load products")
	}
	published := make(map[uuid.UUID]bool, len(products))
	for i := range products {
		published[products[i].ID] = products[i].IsPublished()
	}
	for _, id := range ids {
		if !published[id] {
			return pkgerrors.New(pkgerrors.CodeValidation, "product unavailable").WithDetails(map[string]any{"productId": id})
		}
	}
	return nil
}

func mergeItems(items []ItemInput) ([]ItemInput, error) {
	merged := make([]ItemInput, 0, len(items))
	index := make(map[uuid.UUID]int, len(items))
	for _, item := range items {
		if item.ProductID == uuid.Nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id required")
		}
		if item.Quantity < 1 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be at least 1")
		}
		if i, ok := index[item.ProductID]; ok {
			merged[i].Quantity += item.Quantity
			continue
		}
		index[item.ProductID] = len(merged)
		merged = append(merged, item)
	}
	return merged, nil
}

func summarize(userID uuid.UUID, cart *models.Cart) *Summary {
	summary := &Summary{UserID: userID, Items: []models.CartItem{}}
	if cart != nil {
		summary.Items = cart.Items
		updated := cart.UpdatedAt
		summary.UpdatedAt = &updated
	}
	summary.Subtotal = Subtotal(summary.Items)
	summary.Total = summary.Subtotal
	return summary
}

// Subtotal sums price times quantity over items whose product resolved.
// Unresolved items contribute nothing.
func Subtotal(items []models.CartItem) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		if item.Product == nil {
			continue
		}
		total = total.Add(item.Product.Price.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}
	return total
}

// LineItems converts resolved items into the discount evaluator's snapshot.
func LineItems(items []models.CartItem) []discounts.LineItem {
	out := make([]discounts.LineItem, 0, len(items))
	for _, item := range items {
		if item.Product == nil {
			continue
		}
		out = append(out, discounts.LineItem{
			ProductID:  item.ProductID,
			CategoryID: item.Product.CategoryID,
			Price:      item.Product.Price,
			Quantity:   item.Quantity,
		})
	}
	return out
}
