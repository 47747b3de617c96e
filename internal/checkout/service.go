package checkout

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v84"

	"github.com/angelmondragon/digistore-backend/internal/cart"
	"github.com/angelmondragon/digistore-backend/internal/discounts"
	"github.com/angelmondragon/digistore-backend/internal/transactions"
	"github.com/angelmondragon/digistore-backend/pkg/config"
	"github.com/angelmondragon/digistore-backend/pkg/db/models"
	"github.com/angelmondragon/digistore-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/digistore-backend/pkg/errors"
	"github.com/angelmondragon/digistore-backend/pkg/logger"
	"github.com/angelmondragon/digistore-backend/pkg/metrics"
)

// Gateway is the hosted-payment provider surface checkout depends on.
type Gateway interface {
	CreateSession(ctx context.Context, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
	GetSession(ctx context.Context, id string) (*stripe.CheckoutSession, error)
	EnsurePercentCoupon(ctx context.Context, percent decimal.Decimal) (string, error)
}

type productLoader interface {
	FindByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Product, error)
}

type discountChecker interface {
	Check(ctx context.Context, code string, cartTotal decimal.Decimal, items []discounts.LineItem) (*discounts.Result, *discounts.Rejection, error)
}

type transactionStore interface {
	FindBySessionID(ctx context.Context, sessionID string) (*models.Transaction, error)
	InsertIfAbsent(ctx context.Context, txn *models.Transaction) (bool, error)
}

// Service opens hosted checkout sessions and records the pending transaction on return.
type Service interface {
	CreateSession(ctx context.Context, buyer *Buyer, items []ItemInput, discountCode string) (*SessionResult, error)
	ConfirmSuccess(ctx context.Context, sessionID string) (*models.Transaction, error)
}

// Buyer identifies the signed-in purchaser. A nil Buyer checks out as guest.
type Buyer struct {
	UserID         uuid.UUID
	Email          string
	GitHubUsername string
}

type ItemInput struct {
	ProductID uuid.UUID `json:"productId" validate:"required"`
	Quantity  int       `json:"quantity" validate:"min=1,max=100"`
}

type SessionResult struct {
	SessionID string `json:"sessionId"`
	URL       string `json:"url"`
}

type Deps struct {
	Gateway      Gateway
	Products     productLoader
	Discounts    discountChecker
	Transactions transactionStore
	Coupons      couponCache
	Storefront   config.StorefrontConfig
	CouponTTL    time.Duration
	Metrics      *metrics.StoreMetrics
	Logger       *logger.Logger
}

type service struct {
	gateway      Gateway
	products     productLoader
	discounts    discountChecker
	transactions transactionStore
	coupons      couponCache
	couponTTL    time.Duration
	storefront   config.StorefrontConfig
	metrics      *metrics.StoreMetrics
	logg         *logger.Logger
	now          func() time.Time
}

// NewService builds the checkout service. Coupons and Metrics are optional.
func NewService(deps Deps) (Service, error) {
	if deps.Gateway == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "payment gateway required")
	}
	if deps.Products == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "product loader required")
	}
	if deps.Discounts == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "discount checker required")
	}
	if deps.Transactions == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "transaction store required")
	}
	return &service{
		gateway:      deps.Gateway,
		products:     deps.Products,
		discounts:    deps.Discounts,
		transactions: deps.Transactions,
		coupons:      deps.Coupons,
		couponTTL:    deps.CouponTTL,
		storefront:   deps.Storefront,
		metrics:      deps.Metrics,
		logg:         deps.Logger,
		now:          func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *service) CreateSession(ctx context.Context, buyer *Buyer, items []ItemInput, discountCode string) (*SessionResult, error) {
	lines, err := s.resolve(ctx, items)
	if err != nil {
		s.metrics.CheckoutSession(metrics.OutcomeFailure)
		return nil, err
	}

	var discount *discounts.Result
	if code := strings.TrimSpace(discountCode); code != "" {
		result, rejection, err := s.discounts.Check(ctx, code, cart.Subtotal(lines), cart.LineItems(lines))
		if err != nil {
			return nil, err
		}
		if rejection != nil {
			s.metrics.CheckoutSession(metrics.OutcomeFailure)
			return nil, pkgerrors.New(pkgerrors.CodeValidation, rejection.Message).
				WithDetails(map[string]any{"reason": rejection.Reason})
		}
		discount = result
	}

	params, err := s.buildParams(ctx, buyer, lines, discount)
	if err != nil {
		s.metrics.CheckoutSession(metrics.OutcomeFailure)
		return nil, err
	}

	sess, err := s.gateway.CreateSession(ctx, params)
	if err != nil {
		s.metrics.CheckoutSession(metrics.OutcomeFailure)
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create checkout session")
	}
	s.metrics.CheckoutSession(metrics.OutcomeSuccess)
	if s.logg != nil {
		s.logg.Info(s.logg.WithSessionID(ctx, sess.ID), "checkout.session_created")
	}
	return &SessionResult{SessionID: sess.ID, URL: sess.URL}, nil
}

// resolve loads every requested product; one missing or unpublished product rejects the request.
func (s *service) resolve(ctx context.Context, items []ItemInput) ([]models.CartItem, error) {
	if len(items) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "checkout requires at least one item")
	}
	merged := make([]models.CartItem, 0, len(items))
	index := make(map[uuid.UUID]int, len(items))
	ids := make([]uuid.UUID, 0, len(items))
	for _, item := range items {
		if item.ProductID == uuid.Nil || item.Quantity < 1 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "each item needs a product and a positive quantity")
		}
		if pos, ok := index[item.ProductID]; ok {
			merged[pos].Quantity += item.Quantity
			continue
		}
		index[item.ProductID] = len(merged)
		merged = append(merged, models.CartItem{ProductID: item.ProductID, Quantity: item.Quantity})
		ids = append(ids, item.ProductID)
	}
	if len(merged) > MaxItems {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "checkout supports at most %d distinct products", MaxItems)
	}

	products, err := s.products.FindByIDs(ctx, ids)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load products")
	}
	byID := make(map[uuid.UUID]models.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}
	for i := range merged {
		p, ok := byID[merged[i].ProductID]
		if !ok || !p.IsPublished() {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "product unavailable").
				WithDetails(map[string]any{"productId": merged[i].ProductID})
		}
		merged[i].Product = &p
	}
	return merged, nil
}

func (s *service) buildParams(ctx context.Context, buyer *Buyer, lines []models.CartItem, discount *discounts.Result) (*stripe.CheckoutSessionParams, error) {
	currency := strings.ToLower(s.storefront.Currency)
	if currency == "" {
		currency = "usd"
	}

	params := &stripe.CheckoutSessionParams{
		Mode:       stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL: stripe.String(s.storefront.SuccessURL()),
		CancelURL:  stripe.String(s.storefront.CancelURL()),
	}

	needsGitHub := false
	for i, line := range lines {
		p := line.Product
		cents := toCents(p.Price)
		productData := &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
			Name:     stripe.String(p.Title),
			Metadata: map[string]string{"product_id": p.ID.String()},
		}
		if desc := strings.TrimSpace(p.Description); desc != "" {
			productData.Description = stripe.String(desc)
		}
		if image := p.FirstImage(); image != "" {
			productData.Images = []*string{stripe.String(image)}
		}
		params.LineItems = append(params.LineItems, &stripe.CheckoutSessionLineItemParams{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:    stripe.String(currency),
				UnitAmount:  stripe.Int64(cents),
				ProductData: productData,
			},
			Quantity: stripe.Int64(int64(line.Quantity)),
		})
		params.AddMetadata(metaItemPrefix+strconv.Itoa(i), encodeItem(p.ID, line.Quantity, cents))
		if p.Type.RequiresExternalFulfillment() {
			needsGitHub = true
		}
	}
	params.AddMetadata(MetaItemCount, strconv.Itoa(len(lines)))

	if discount != nil {
		params.AddMetadata(MetaDiscountCode, discount.Code)
		params.AddMetadata(MetaDiscountAmount, discount.DiscountAmount.StringFixed(2))
		switch discount.Type {
		case enums.DiscountTypePercentage:
			couponID, err := s.percentCoupon(ctx, discount.Value)
			if err != nil {
				return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "resolve coupon")
			}
			params.Discounts = []*stripe.CheckoutSessionDiscountParams{{Coupon: stripe.String(couponID)}}
			if discount.Scoped && s.logg != nil {
				// Stripe applies the coupon to the whole session; metadata keeps the scoped amount.
				s.logg.Warn(s.logg.WithFields(ctx, map[string]any{
					"discount_code":   discount.Code,
					"coupon_id":       couponID,
					"discount_amount": discount.DiscountAmount.StringFixed(2),
				}), "checkout.scoped_percentage_coupon")
			}
		case enums.DiscountTypeFixed:
			params.LineItems = append(params.LineItems, &stripe.CheckoutSessionLineItemParams{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(currency),
					UnitAmount: stripe.Int64(-toCents(discount.DiscountAmount)),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String("Discount (" + discount.Code + ")"),
					},
				},
				Quantity: stripe.Int64(1),
			})
		}
	}

	if buyer != nil && buyer.UserID != uuid.Nil {
		params.ClientReferenceID = stripe.String(buyer.UserID.String())
		params.AddMetadata(MetaUserID, buyer.UserID.String())
		if buyer.Email != "" {
			params.CustomerEmail = stripe.String(buyer.Email)
		}
		if buyer.GitHubUsername != "" {
			params.AddMetadata(MetaGitHubUsername, buyer.GitHubUsername)
		}
	} else {
		params.ClientReferenceID = stripe.String(GuestReference)
		params.AddMetadata(MetaUserID, GuestReference)
	}

	if needsGitHub {
		params.CustomFields = []*stripe.CheckoutSessionCustomFieldParams{{
			Key:  stripe.String(GitHubFieldKey),
			Type: stripe.String(string(stripe.CheckoutSessionCustomFieldTypeText)),
			Label: &stripe.CheckoutSessionCustomFieldLabelParams{
				Type:   stripe.String("custom"),
				Custom: stripe.String("GitHub username"),
			},
			Optional: stripe.Bool(buyer != nil && buyer.GitHubUsername != ""),
		}}
	}
	return params, nil
}

// ConfirmSuccess records the pending transaction for a returning buyer. Concurrent
// visits for the same session converge on one row.
func (s *service) ConfirmSuccess(ctx context.Context, sessionID string) (*models.Transaction, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "session_id is required")
	}
	existing, err := s.transactions.FindBySessionID(ctx, sessionID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load transaction")
	}
	if existing != nil {
		return existing, nil
	}

	sess, err := s.gateway.GetSession(ctx, sessionID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "retrieve checkout session")
	}
	txn, err := TransactionFromSession(sess, s.now())
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "checkout session is not from this store")
	}
	created, err := s.transactions.InsertIfAbsent(ctx, txn)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create transaction")
	}
	if created && s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{"session_id": sessionID, "transaction_id": txn.ID.String()})
		s.logg.Info(logCtx, "checkout.transaction_created")
	}

	row, err := s.transactions.FindBySessionID(ctx, sessionID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load transaction")
	}
	if row == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction missing after insert")
	}
	return row, nil
}

var _ transactionStore = (*transactions.Repository)(nil)
