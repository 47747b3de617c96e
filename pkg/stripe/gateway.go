package stripe

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/checkout/session"
	"github.com/stripe/stripe-go/v84/coupon"
	"github.com/stripe/stripe-go/v84/webhook"
)

// PercentCouponPrefix prefixes the shared coupon ids created per percentage value.
const PercentCouponPrefix = "pct_"

// Gateway is the subset of hosted-checkout operations the storefront needs.
type Gateway struct {
	client *Client
}

// NewGateway binds checkout operations to an initialized client.
func NewGateway(client *Client) (*Gateway, error) {
	if client == nil {
		return nil, errors.New("stripe client is required")
	}
	return &Gateway{client: client}, nil
}

// CreateSession opens a hosted checkout session.
func (g *Gateway) CreateSession(ctx context.Context, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	if params == nil {
		return nil, errors.New("checkout session params are required")
	}
	params.Context = ctx
	return session.New(params)
}

// GetSession fetches a session with its line items expanded.
func (g *Gateway) GetSession(ctx context.Context, id string) (*stripe.CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	params.AddExpand("line_items")
	return session.Get(id, params)
}

// PercentCouponID derives the deterministic coupon id for a percentage.
func PercentCouponID(percent decimal.Decimal) string {
	return PercentCouponPrefix + strings.ReplaceAll(percent.String(), ".", "_")
}

// EnsurePercentCoupon returns the shared coupon for percent, creating it on first use.
func (g *Gateway) EnsurePercentCoupon(ctx context.Context, percent decimal.Decimal) (string, error) {
	if !percent.IsPositive() || percent.GreaterThan(decimal.NewFromInt(100)) {
		return "", fmt.Errorf("percent off must be in (0, 100], got %s", percent)
	}
	id := PercentCouponID(percent)

	getParams := &stripe.CouponParams{}
	getParams.Context = ctx
	existing, err := coupon.Get(id, getParams)
	if err == nil {
		return existing.ID, nil
	}
	if !IsNotFound(err) {
		return "", fmt.Errorf("fetch coupon %s: %w", id, err)
	}

	off, _ := percent.Float64()
	createParams := &stripe.CouponParams{
		ID:         stripe.String(id),
		Name:       stripe.String(fmt.Sprintf("%s%% off", percent.String())),
		PercentOff: stripe.Float64(off),
		Duration:   stripe.String(string(stripe.CouponDurationOnce)),
	}
	createParams.Context = ctx
	created, err := coupon.New(createParams)
	if err != nil {
		// A concurrent request may have created it first.
		if IsAlreadyExists(err) {
			return id, nil
		}
		return "", fmt.Errorf("create coupon %s: %w", id, err)
	}
	return created.ID, nil
}

// VerifyEvent checks the Stripe-Signature header against the signing secret.
func (g *Gateway) VerifyEvent(payload []byte, header string) (stripe.Event, error) {
	return webhook.ConstructEvent(payload, header, g.client.SigningSecret())
}

// SigningSecret exposes the webhook secret for handlers that verify on their own.
func (g *Gateway) SigningSecret() string {
	return g.client.SigningSecret()
}

// IsNotFound reports a missing-resource API error.
func IsNotFound(err error) bool {
	var stripeErr *stripe.Error
	if !errors.As(err, &stripeErr) {
		return false
	}
	return stripeErr.HTTPStatusCode == http.StatusNotFound || stripeErr.Code == stripe.ErrorCodeResourceMissing
}

// IsAlreadyExists reports a duplicate-id API error.
func IsAlreadyExists(err error) bool {
	var stripeErr *stripe.Error
	if !errors.As(err, &stripeErr) {
		return false
	}
	return stripeErr.Code == stripe.ErrorCodeResourceAlreadyExists
}
