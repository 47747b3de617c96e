package auth

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/digistore-backend/internal/users"
	pkgAuth "github.com/angelmondragon/digistore-backend/pkg/auth"
	"github.com/angelmondragon/digistore-backend/pkg/config"
	"github.com/angelmondragon/digistore-backend/pkg/db/models"
	"github.com/angelmondragon/digistore-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/digistore-backend/pkg/errors"
)

var testJWT = config.JWTConfig{Secret: "secret", Issuer: "digistore", ExpirationMinutes: 30}

var testPassword = config.PasswordConfig{ArgonMemoryKB: 8 * 1024, ArgonTime: 1, ArgonParallelism: 1, ArgonSaltLen: 16, ArgonKeyLen: 32}

func TestServiceRegisterIssuesCustomerToken(t *testing.T) {
	repo := newMemoryUsers()
	svc := buildTestService(t, repo)

	handle := "@octocat"
	resp, err := svc.Register(context.Background(), RegisterRequest{
		Name:           "Buyer",
		Email:          "Buyer@Example.com",
		Password:       "correct horse",
		GitHubUsername: &handle,
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if resp.User.Role != enums.RoleCustomer {
		t.Fatalf("expected customer role, got %s", resp.User.Role)
	}
	if resp.User.Email != "buyer@example.com" {
		t.Fatalf("expected normalized email, got %s", resp.User.Email)
	}
	if resp.User.GitHubUsername == nil || *resp.User.GitHubUsername != "octocat" {
		t.Fatalf("expected github username octocat, got %v", resp.User.GitHubUsername)
	}

	claims, err := pkgAuth.ParseAccessToken(testJWT, resp.AccessToken)
	if err != nil {
		t.Fatalf("parse access token: %v", err)
	}
	if claims.UserID != resp.User.ID || claims.Role != enums.RoleCustomer {
		t.Fatalf("unexpected claims %+v", claims)
	}

	_, err = svc.Register(context.Background(), RegisterRequest{Name: "Again", Email: "buyer@example.com", Password: "another one"})
	if got := pkgerrors.As(err); got == nil || got.Code() != pkgerrors.CodeConflict {
		t.Fatalf("expected conflict on duplicate email, got %v", err)
	}
}

func TestServiceRegisterRejectsShortPassword(t *testing.T) {
	svc := buildTestService(t, newMemoryUsers())
	_, err := svc.Register(context.Background(), RegisterRequest{Name: "x", Email: "x@example.com", Password: "short"})
	if got := pkgerrors.As(err); got == nil || got.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestServiceLogin(t *testing.T) {
	repo := newMemoryUsers()
	svc := buildTestService(t, repo)
	if _, err := svc.Register(context.Background(), RegisterRequest{Name: "Seller", Email: "seller@example.com", Password: "seller-secret"}); err != nil {
		t.Fatalf("register: %v", err)
	}
	for _, u := range repo.byID {
		u.Role = enums.RoleSeller
	}

	resp, err := svc.Login(context.Background(), LoginRequest{Email: " SELLER@example.com", Password: "seller-secret"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	claims, err := pkgAuth.ParseAccessToken(testJWT, resp.AccessToken)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.Role != enums.RoleSeller {
		t.Fatalf("expected seller claim, got %s", claims.Role)
	}
	if resp.User.LastLoginAt == nil {
		t.Fatal("expected last login to be recorded")
	}

	for _, req := range []LoginRequest{
		{Email: "seller@example.com", Password: "wrong-secret"},
		{Email: "nobody@example.com", Password: "seller-secret"},
		{Email: "", Password: "seller-secret"},
	} {
		_, err := svc.Login(context.Background(), req)
		if got := pkgerrors.As(err); got == nil || got.Code() != pkgerrors.CodeUnauthorized {
			t.Fatalf("expected unauthorized for %q, got %v", req.Email, err)
		}
	}
}

func TestServiceMeAndUpdateProfile(t *testing.T) {
	repo := newMemoryUsers()
	svc := buildTestService(t, repo)
	resp, err := svc.Register(context.Background(), RegisterRequest{Name: "Dev", Email: "dev@example.com", Password: "dev-secret"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	handle := " hubber "
	updated, err := svc.UpdateProfile(context.Background(), resp.User.ID, UpdateProfileRequest{GitHubUsername: &handle})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.GitHubUsername == nil || *updated.GitHubUsername != "hubber" {
		t.Fatalf("expected hubber, got %v", updated.GitHubUsername)
	}

	_, err = svc.Me(context.Background(), uuid.New())
	if got := pkgerrors.As(err); got == nil || got.Code() != pkgerrors.CodeUnauthorized {
		t.Fatalf("expected unauthorized for unknown user, got %v", err)
	}
}

func buildTestService(t *testing.T, repo *memoryUsers) Service {
	t.Helper()
	svc, err := NewService(ServiceParams{UserRepo: repo, JWTConfig: testJWT, PasswordConfig: testPassword})
	if err != nil {
		t.Fatalf("build service: %v", err)
	}
	return svc
}

type memoryUsers struct {
	byID map[uuid.UUID]*models.User
}

func newMemoryUsers() *memoryUsers {
	return &memoryUsers{byID: map[uuid.UUID]*models.User{}}
}

func (m *memoryUsers) Create(_ context.Context, dto users.CreateUserDTO) (*models.User, error) {
	user := dto.ToModel()
	user.CreatedAt = time.Now()
	m.byID[user.ID] = user
	return user, nil
}

func (m *memoryUsers) FindByEmail(_ context.Context, email string) (*models.User, error) {
	for _, u := range m.byID {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, nil
}

func (m *memoryUsers) FindByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	return m.byID[id], nil
}

func (m *memoryUsers) UpdateLastLogin(_ context.Context, id uuid.UUID, at time.Time) error {
	if u, ok := m.byID[id]; ok {
		u.LastLoginAt = &at
	}
	return nil
}

func (m *memoryUsers) UpdateGitHubUsername(_ context.Context, id uuid.UUID, username *string) error {
	if u, ok := m.byID[id]; ok {
		u.GitHubUsername = username
	}
	return nil
}
