package auth

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/digistore-backend/pkg/config"
	"github.com/angelmondragon/digistore-backend/pkg/enums"
)

func testJWTConfig() config.JWTConfig {
	return config.JWTConfig{
		Secret:            "secret",
		Issuer:            "digistore",
		ExpirationMinutes: 30,
	}
}

func TestMintAndParseAccessToken(t *testing.T) {
	cfg := testJWTConfig()
	now := time.Now().UTC()
	userID := uuid.New()

	token, err := MintAccessToken(cfg, now, AccessTokenPayload{
		UserID: userID,
		Email:  "seller@example.com",
		Role:   enums.RoleSeller,
	})
	if err != nil {
		t.Fatalf("mint access token: %v", err)
	}

	claims, err := ParseAccessToken(cfg, token)
	if err != nil {
		t.Fatalf("parse access token: %v", err)
	}
	if claims.UserID != userID || claims.Subject != userID.String() {
		t.Fatalf("expected user %s, got %s/%s", userID, claims.UserID, claims.Subject)
	}
	if claims.Role != enums.RoleSeller {
		t.Fatalf("unexpected role %s", claims.Role)
	}
	if claims.Issuer != cfg.Issuer {
		t.Fatalf("unexpected issuer %s", claims.Issuer)
	}
	if claims.ID == "" {
		t.Fatal("expected generated jti")
	}
	wantExpiry := now.Add(30 * time.Minute).Unix()
	if claims.ExpiresAt == nil || claims.ExpiresAt.Unix() != wantExpiry {
		t.Fatalf("unexpected expiry %v", claims.ExpiresAt)
	}
}

func TestMintAccessTokenRejectsBadPayload(t *testing.T) {
	cfg := testJWTConfig()
	now := time.Now()

	if _, err := MintAccessToken(cfg, now, AccessTokenPayload{UserID: uuid.New(), Role: enums.RoleAnonymous}); err == nil {
		t.Fatal("anonymous role must not be minted")
	}
	if _, err := MintAccessToken(cfg, now, AccessTokenPayload{Role: enums.RoleCustomer}); err == nil {
		t.Fatal("missing user id must fail")
	}
	cfg.Secret = ""
	if _, err := MintAccessToken(cfg, now, AccessTokenPayload{UserID: uuid.New(), Role: enums.RoleCustomer}); err == nil {
		t.Fatal("missing secret must fail")
	}
}

func TestParseAccessTokenRejects(t *testing.T) {
	cfg := testJWTConfig()
	token, err := MintAccessToken(cfg, time.Now().Add(-time.Hour), AccessTokenPayload{UserID: uuid.New(), Role: enums.RoleCustomer})
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if _, err := ParseAccessToken(cfg, token); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expired token must fail with ErrTokenExpired, got %v", err)
	}

	fresh, err := MintAccessToken(cfg, time.Now(), AccessTokenPayload{UserID: uuid.New(), Role: enums.RoleCustomer})
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	other := cfg
	other.Issuer = "someone-else"
	if _, err := ParseAccessToken(other, fresh); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("wrong issuer must fail with ErrTokenInvalid, got %v", err)
	}
	other = cfg
	other.Secret = "different"
	if _, err := ParseAccessToken(other, fresh); !errors.Is(err, ErrTokenInvalid) || !strings.Contains(err.Error(), "signature") {
		t.Fatalf("wrong secret must fail with signature error, got %v", err)
	}
}

func TestParseAccessTokenToleratesSkewAndChecksSubject(t *testing.T) {
	cfg := testJWTConfig()
	cfg.ExpirationMinutes = 1
	justExpired, err := MintAccessToken(cfg, time.Now().Add(-time.Minute-10*time.Second), AccessTokenPayload{UserID: uuid.New(), Role: enums.RoleCustomer})
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if _, err := ParseAccessToken(cfg, justExpired); err != nil {
		t.Fatalf("expected leeway to accept a token 10s past expiry, got %v", err)
	}

	forged := jwt.NewWithClaims(jwt.SigningMethodHS256, AccessTokenClaims{
		UserID: uuid.New(),
		Role:   enums.RoleAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   uuid.NewString(),
			Issuer:    cfg.Issuer,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		},
	})
	raw, err := forged.SignedString([]byte(cfg.Secret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := ParseAccessToken(cfg, raw); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected subject mismatch to be rejected, got %v", err)
	}
}
