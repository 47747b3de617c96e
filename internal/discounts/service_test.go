package discounts

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/digistore-backend/pkg/db/dbtest"
	"github.com/angelmondragon/digistore-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/digistore-backend/pkg/errors"
)

func newTestService(t *testing.T) (Service, Repository) {
	t.Helper()
	repo := NewRepository(dbtest.New(t))
	svc, err := NewService(repo)
	require.NoError(t, err)
	return svc, repo
}

func TestServiceCreateNormalizesAndValidates(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	created, err := svc.Create(ctx, AdminInput{Code: " save10 ", Type: enums.DiscountTypePercentage, Value: dec("10")})
	require.NoError(t, err)
	require.Equal(t, "SAVE10", created.Code)
	require.True(t, created.Active)
	require.Zero(t, created.UsedCount)

	result, err := svc.Validate(ctx, "Save10", dec("40"), nil)
	require.NoError(t, err)
	require.True(t, result.DiscountAmount.Equal(dec("4")))

	_, err = svc.Create(ctx, AdminInput{Code: "SAVE10", Type: enums.DiscountTypeFixed, Value: dec("1")})
	require.Error(t, err)
	require.Equal(t, pkgerrors.CodeConflict, pkgerrors.As(err).Code())

	_, err = svc.Create(ctx, AdminInput{Code: "TOOMUCH", Type: enums.DiscountTypePercentage, Value: dec("150")})
	require.Equal(t, pkgerrors.CodeValidation, pkgerrors.As(err).Code())
}

func TestServiceCreateInactive(t *testing.T) {
	ctx := context.Background()
	svc, repo := newTestService(t)

	inactive := false
	_, err := svc.Create(ctx, AdminInput{Code: "OFF", Type: enums.DiscountTypeFixed, Value: dec("2"), Active: &inactive})
	require.NoError(t, err)

	row, err := repo.FindByCode(ctx, "off")
	require.NoError(t, err)
	require.False(t, row.Active)

	_, rejection, err := svc.Check(ctx, "off", dec("10"), nil)
	require.NoError(t, err)
	require.Equal(t, ReasonInvalid, rejection.Reason)
}

func TestServiceValidateMapsRejection(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	_, err := svc.Validate(ctx, "NOPE", dec("10"), nil)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	require.Equal(t, pkgerrors.CodeValidation, typed.Code())
	require.Equal(t, "invalid discount code", typed.Message())
}

func TestServiceRecordUseIncrements(t *testing.T) {
	ctx := context.Background()
	conn := dbtest.New(t)
	repo := NewRepository(conn)
	svc, err := NewService(repo)
	require.NoError(t, err)

	maxUses := 1
	_, err = svc.Create(ctx, AdminInput{Code: "ONCE", Type: enums.DiscountTypeFixed, Value: dec("3"), MaxUses: &maxUses})
	require.NoError(t, err)

	require.NoError(t, conn.Transaction(func(tx *gorm.DB) error {
		return svc.RecordUse(ctx, tx, "once")
	}))

	row, err := repo.FindByCode(ctx, "ONCE")
	require.NoError(t, err)
	require.Equal(t, 1, row.UsedCount)

	_, rejection, err := svc.Check(ctx, "ONCE", dec("10"), nil)
	require.NoError(t, err)
	require.Equal(t, ReasonExhausted, rejection.Reason)
}

func TestServiceUpdateKeepsUsedCount(t *testing.T) {
	ctx := context.Background()
	svc, repo := newTestService(t)

	created, err := svc.Create(ctx, AdminInput{Code: "KEEP", Type: enums.DiscountTypeFixed, Value: dec("3")})
	require.NoError(t, err)
	_, err = repo.IncrementUsed(ctx, "KEEP")
	require.NoError(t, err)

	ends := time.Now().UTC().Add(48 * time.Hour)
	updated, err := svc.Update(ctx, created.ID, AdminInput{Code: "keep", Type: enums.DiscountTypePercentage, Value: dec("20"), EndsAt: &ends})
	require.NoError(t, err)
	require.Equal(t, enums.DiscountTypePercentage, updated.Type)

	row, err := repo.FindByCode(ctx, "KEEP")
	require.NoError(t, err)
	require.Equal(t, 1, row.UsedCount)
	require.True(t, row.Value.Equal(dec("20")))

	require.NoError(t, svc.Delete(ctx, created.ID))
	require.Equal(t, pkgerrors.CodeNotFound, pkgerrors.As(svc.Delete(ctx, uuid.New())).Code())
}
