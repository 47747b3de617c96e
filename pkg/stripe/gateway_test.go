package stripe

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v84"

	"github.com/angelmondragon/digistore-backend/pkg/config"
)

func TestPercentCouponID(t *testing.T) {
	cases := map[string]string{
		"10":   "pct_10",
		"12.5": "pct_12_5",
		"100":  "pct_100",
	}
	for in, want := range cases {
		if got := PercentCouponID(decimal.RequireFromString(in)); got != want {
			t.Fatalf("PercentCouponID(%s) = %q, want %q", in, got, want)
		}
	}
}

func TestIsNotFound(t *testing.T) {
	missing := &stripe.Error{HTTPStatusCode: http.StatusNotFound, Code: stripe.ErrorCodeResourceMissing}
	if !IsNotFound(fmt.Errorf("wrapped: %w", missing)) {
		t.Fatal("expected wrapped resource_missing to be not found")
	}
	if IsNotFound(errors.New("boom")) {
		t.Fatal("plain errors are not stripe not-found errors")
	}
	exists := &stripe.Error{HTTPStatusCode: http.StatusBadRequest, Code: stripe.ErrorCodeResourceAlreadyExists}
	if !IsAlreadyExists(exists) {
		t.Fatal("expected resource_already_exists to be detected")
	}
}

func TestNewClient_ValidatesKeys(t *testing.T) {
	if _, err := NewClient(t.Context(), config.StripeConfig{Secret: "whsec"}, nil); err == nil {
		t.Fatal("expected missing api key to fail")
	}
	if _, err := NewClient(t.Context(), config.StripeConfig{APIKey: "sk_live_x", Secret: "whsec", Env: "test"}, nil); err == nil {
		t.Fatal("expected live key in test env to fail")
	}
	if _, err := NewClient(t.Context(), config.StripeConfig{APIKey: "sk_test_x", Secret: "whsec", Env: "staging"}, nil); err == nil {
		t.Fatal("expected unknown env to fail")
	}
	if _, err := NewClient(t.Context(), config.StripeConfig{APIKey: "sk_test_x", Env: "test"}, nil); err == nil {
		t.Fatal("expected missing signing secret to fail")
	}
	client, err := NewClient(t.Context(), config.StripeConfig{APIKey: "rk_test_x", Secret: "whsec", Env: "TEST"}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if client.SigningSecret() != "whsec" || client.Environment() != "test" {
		t.Fatalf("unexpected client state: %+v", client)
	}
}
