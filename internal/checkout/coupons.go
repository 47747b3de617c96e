package checkout

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/digistore-backend/pkg/redis"
	pkgstripe "github.com/angelmondragon/digistore-backend/pkg/stripe"
)

type couponCache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	CacheKey(parts ...string) string
}

// percentCoupon resolves the shared provider coupon for a percentage, reading
// through the cache under coupon:pct:<value>. Cache failures fall back to the gateway.
func (s *service) percentCoupon(ctx context.Context, percent decimal.Decimal) (string, error) {
	if s.coupons == nil {
		return s.gateway.EnsurePercentCoupon(ctx, percent)
	}
	key := s.coupons.CacheKey("coupon", "pct", percent.String())
	cached, err := s.coupons.Get(ctx, key)
	if err == nil && cached != "" {
		return cached, nil
	}
	if err != nil && !redis.IsNil(err) {
		s.warn(ctx, "checkout.coupon_cache_read_failed", err)
	}

	id, err := s.gateway.EnsurePercentCoupon(ctx, percent)
	if err != nil {
		return "", err
	}
	if id == "" {
		id = pkgstripe.PercentCouponID(percent)
	}
	if err := s.coupons.Set(ctx, key, id, s.couponTTL); err != nil {
		s.warn(ctx, "checkout.coupon_cache_write_failed", err)
	}
	return id, nil
}

func (s *service) warn(ctx context.Context, msg string, err error) {
	if s.logg == nil {
		return
	}
	s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), msg)
}
