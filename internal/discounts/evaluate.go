package discounts

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/digistore-backend/pkg/db/models"
	"github.com/angelmondragon/digistore-backend/pkg/enums"
)

// Reason identifies why a code was rejected.
type Reason string

const (
	ReasonInvalid       Reason = "invalid"
	ReasonExpired       Reason = "expired"
	ReasonNotYetValid   Reason = "not_yet_valid"
	ReasonExhausted     Reason = "exhausted"
	ReasonBelowMinimum  Reason = "below_minimum"
	ReasonNotApplicable Reason = "not_applicable"
)

// Rejection is a user-facing refusal of a code.
type Rejection struct {
	Reason  Reason `json:"reason"`
	Message string `json:"message"`
}

func (r *Rejection) Error() string {
	return r.Message
}

// LineItem is the cart snapshot a code is evaluated against.
type LineItem struct {
	ProductID  uuid.UUID       `json:"productId" validate:"required"`
	CategoryID *uuid.UUID      `json:"categoryId,omitempty"`
	Price      decimal.Decimal `json:"price"`
	Quantity   int             `json:"quantity" validate:"min=1"`
}

// Subtotal is price times quantity.
func (l LineItem) Subtotal() decimal.Decimal {
	return l.Price.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Result describes an applicable discount.
type Result struct {
	Code           string             `json:"code"`
	Type           enums.DiscountType `json:"type"`
	Value          decimal.Decimal    `json:"value"`
	DiscountAmount decimal.Decimal    `json:"discountAmount"`
	// Scoped is true when DiscountAmount covers only the in-scope items.
	Scoped         bool               `json:"-"`
}

var hundred = decimal.NewFromInt(100)

// Evaluate applies the eligibility rules in order and computes the amount.
// It never mutates the code.
func Evaluate(code *models.DiscountCode, now time.Time, cartTotal decimal.Decimal, items []LineItem) (*Result, *Rejection) {
	if code == nil || !code.Active {
		return nil, &Rejection{Reason: ReasonInvalid, Message: "invalid discount code"}
	}
	if code.EndsAt != nil && code.EndsAt.Before(now) {
		return nil, &Rejection{Reason: ReasonExpired, Message: "discount code has expired"}
	}
	if code.StartsAt != nil && code.StartsAt.After(now) {
		return nil, &Rejection{Reason: ReasonNotYetValid, Message: "discount code is not yet valid"}
	}
	if code.MaxUses != nil && code.UsedCount >= *code.MaxUses {
		return nil, &Rejection{Reason: ReasonExhausted, Message: "discount code has reached its maximum uses"}
	}
	if code.MinPurchase != nil && cartTotal.LessThan(*code.MinPurchase) {
		return nil, &Rejection{
			Reason:  ReasonBelowMinimum,
			Message: "minimum purchase of " + code.MinPurchase.StringFixed(2) + " required",
		}
	}

	applicable := cartTotal
	if code.Scoped() {
		var matched bool
		applicable, matched = scopedSubtotal(code, items)
		if !matched {
			return nil, &Rejection{Reason: ReasonNotApplicable, Message: "discount code does not apply to the items in your cart"}
		}
	}

	var amount decimal.Decimal
	switch code.Type {
	case enums.DiscountTypePercentage:
		amount = applicable.Mul(code.Value).Div(hundred)
	case enums.DiscountTypeFixed:
		// fixed amounts ignore scope filtering; scope only gates applicability
		amount = code.Value
	default:
		return nil, &Rejection{Reason: ReasonInvalid, Message: "invalid discount code"}
	}

	return &Result{
		Code:           code.Code,
		Type:           code.Type,
		Value:          code.Value,
		DiscountAmount: amount.Round(2),
		Scoped:         code.Scoped(),
	}, nil
}

func scopedSubtotal(code *models.DiscountCode, items []LineItem) (decimal.Decimal, bool) {
	products := code.ScopedProductIDs.Set()
	categories := code.ScopedCategoryIDs.Set()

	total := decimal.Zero
	matched := false
	for _, item := range items {
		_, inProducts := products[item.ProductID]
		inCategories := false
		if item.CategoryID != nil {
			_, inCategories = categories[*item.CategoryID]
		}
		if !inProducts && !inCategories {
			continue
		}
		matched = true
		total = total.Add(item.Subtotal())
	}
	return total, matched
}
