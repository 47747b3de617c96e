package cart

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/digistore-backend/internal/discounts"
	"github.com/angelmondragon/digistore-backend/pkg/db"
	"github.com/angelmondragon/digistore-backend/pkg/db/dbtest"
	"github.com/angelmondragon/digistore-backend/pkg/db/models"
	"github.com/angelmondragon/digistore-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/digistore-backend/pkg/errors"
)

type gormProducts struct {
	conn *gorm.DB
}

func (g gormProducts) FindByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Product, error) {
	var rows []models.Product
	err := g.conn.WithContext(ctx).Where("id IN ?", ids).Find(&rows).Error
	return rows, err
}

type stubDiscounts struct {
	result    *discounts.Result
	rejection *discounts.Rejection
	seenTotal decimal.Decimal
	seenItems []discounts.LineItem
}

func (s *stubDiscounts) Check(_ context.Context, _ string, total decimal.Decimal, items []discounts.LineItem) (*discounts.Result, *discounts.Rejection, error) {
	s.seenTotal = total
	s.seenItems = items
	return s.result, s.rejection, nil
}

type fixture struct {
	conn     *gorm.DB
	svc      Service
	discount *stubDiscounts
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	conn := dbtest.New(t)
	stub := &stubDiscounts{}
	svc, err := NewService(NewRepository(conn), db.Wrap(conn), gormProducts{conn: conn}, stub, opts)
	require.NoError(t, err)
	return &fixture{conn: conn, svc: svc, discount: stub}
}

func (f *fixture) product(t *testing.T, price string, status enums.PublishStatus) models.Product {
	t.Helper()
	p := models.Product{
		ID:       uuid.New(),
		SellerID: uuid.New(),
		Title:    "Starter kit",
		Slug:     "kit-" + uuid.NewString(),
		Price:    decimal.RequireFromString(price),
		Status:   status,
		Type:     enums.ProductTypeDigitalDownload,
	}
	require.NoError(t, f.conn.Create(&p).Error)
	return p
}

func TestReplaceItemsMergesDuplicatesAndTotals(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})
	a := f.product(t, "20.00", enums.PublishStatusPublished)
	b := f.product(t, "5.50", enums.PublishStatusPublished)
	user := uuid.New()

	summary, err := f.svc.ReplaceItems(ctx, user, []ItemInput{
		{ProductID: a.ID, Quantity: 1},
		{ProductID: b.ID, Quantity: 2},
		{ProductID: a.ID, Quantity: 1},
	})
	require.NoError(t, err)
	require.Len(t, summary.Items, 2)
	require.Equal(t, a.ID, summary.Items[0].ProductID)
	require.Equal(t, 2, summary.Items[0].Quantity)
	require.True(t, summary.Subtotal.Equal(decimal.RequireFromString("51.00")), summary.Subtotal.String())

	summary, err = f.svc.ReplaceItems(ctx, user, []ItemInput{{ProductID: b.ID, Quantity: 1}})
	require.NoError(t, err)
	require.Len(t, summary.Items, 1)
	require.True(t, summary.Total.Equal(decimal.RequireFromString("5.50")))
}

func TestReplaceItemsRejectsInvalidInput(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})
	draft := f.product(t, "1.00", enums.PublishStatusDraft)

	_, err := f.svc.ReplaceItems(ctx, uuid.New(), []ItemInput{{ProductID: draft.ID, Quantity: 1}})
	require.Equal(t, pkgerrors.CodeValidation, pkgerrors.As(err).Code())

	_, err = f.svc.ReplaceItems(ctx, uuid.New(), []ItemInput{{ProductID: uuid.New(), Quantity: 0}})
	require.Equal(t, pkgerrors.CodeValidation, pkgerrors.As(err).Code())

	_, err = f.svc.ReplaceItems(ctx, uuid.New(), []ItemInput{{ProductID: uuid.New(), Quantity: 1}})
	require.Equal(t, pkgerrors.CodeValidation, pkgerrors.As(err).Code())
}

func TestItemMutations(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})
	a := f.product(t, "10.00", enums.PublishStatusPublished)
	b := f.product(t, "3.00", enums.PublishStatusPublished)
	user := uuid.New()

	_, err := f.svc.AddItem(ctx, user, ItemInput{ProductID: a.ID, Quantity: 1})
	require.NoError(t, err)
	_, err = f.svc.AddItem(ctx, user, ItemInput{ProductID: b.ID, Quantity: 1})
	require.NoError(t, err)
	summary, err := f.svc.AddItem(ctx, user, ItemInput{ProductID: a.ID, Quantity: 2})
	require.NoError(t, err)
	require.Len(t, summary.Items, 2)
	require.Equal(t, 3, summary.Items[0].Quantity)
	require.Equal(t, b.ID, summary.Items[1].ProductID)

	summary, err = f.svc.UpdateQuantity(ctx, user, b.ID, 4)
	require.NoError(t, err)
	require.True(t, summary.Subtotal.Equal(decimal.RequireFromString("42.00")))

	_, err = f.svc.UpdateQuantity(ctx, user, uuid.New(), 1)
	require.Equal(t, pkgerrors.CodeNotFound, pkgerrors.As(err).Code())

	summary, err = f.svc.RemoveItem(ctx, user, a.ID)
	require.NoError(t, err)
	require.Len(t, summary.Items, 1)

	require.NoError(t, f.svc.Clear(ctx, user))
	summary, err = f.svc.Get(ctx, user)
	require.NoError(t, err)
	require.Empty(t, summary.Items)
	require.Nil(t, summary.UpdatedAt)

	var orphans int64
	require.NoError(t, f.conn.Model(&models.CartItem{}).Where("cart_user_id = ?", user).Count(&orphans).Error)
	require.Zero(t, orphans)
}

func TestSubtotalSkipsUnresolvedProducts(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})
	a := f.product(t, "7.25", enums.PublishStatusPublished)
	gone := f.product(t, "100.00", enums.PublishStatusPublished)
	user := uuid.New()

	_, err := f.svc.ReplaceItems(ctx, user, []ItemInput{{ProductID: a.ID, Quantity: 2}, {ProductID: gone.ID, Quantity: 1}})
	require.NoError(t, err)
	require.NoError(t, f.conn.Delete(&models.Product{}, "id = ?", gone.ID).Error)

	summary, err := f.svc.Get(ctx, user)
	require.NoError(t, err)
	require.Len(t, summary.Items, 2)
	require.True(t, summary.Subtotal.Equal(decimal.RequireFromString("14.50")))
	require.Len(t, LineItems(summary.Items), 1)
}

func TestSummaryAppliesDiscount(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})
	a := f.product(t, "20.00", enums.PublishStatusPublished)
	user := uuid.New()
	_, err := f.svc.ReplaceItems(ctx, user, []ItemInput{{ProductID: a.ID, Quantity: 2}})
	require.NoError(t, err)

	f.discount.result = &discounts.Result{Code: "SAVE10", Type: enums.DiscountTypePercentage, Value: decimal.NewFromInt(10), DiscountAmount: decimal.RequireFromString("4.00")}
	summary, err := f.svc.Summary(ctx, user, "save10")
	require.NoError(t, err)
	require.True(t, f.discount.seenTotal.Equal(decimal.RequireFromString("40")))
	require.Len(t, f.discount.seenItems, 1)
	require.True(t, summary.Total.Equal(decimal.RequireFromString("36.00")))

	f.discount.result = nil
	f.discount.rejection = &discounts.Rejection{Reason: discounts.ReasonExpired, Message: "discount code has expired"}
	summary, err = f.svc.Summary(ctx, user, "OLD")
	require.NoError(t, err)
	require.Nil(t, summary.Discount)
	require.Equal(t, discounts.ReasonExpired, summary.DiscountRejection.Reason)
	require.True(t, summary.Total.Equal(summary.Subtotal))
}

func TestAbandonedListingAndFlag(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{IdleWindow: time.Hour})
	a := f.product(t, "9.00", enums.PublishStatusPublished)
	idle := uuid.New()
	active := uuid.New()

	_, err := f.svc.ReplaceItems(ctx, idle, []ItemInput{{ProductID: a.ID, Quantity: 1}})
	require.NoError(t, err)
	_, err = f.svc.ReplaceItems(ctx, active, []ItemInput{{ProductID: a.ID, Quantity: 1}})
	require.NoError(t, err)
	require.NoError(t, f.conn.Model(&models.Cart{}).Where("user_id = ?", idle).
		UpdateColumn("updated_at", time.Now().UTC().Add(-2*time.Hour)).Error)

	carts, err := f.svc.ListAwaitingAbandonedEmail(ctx, 10, nil)
	require.NoError(t, err)
	require.Len(t, carts, 1)
	require.Equal(t, idle, carts[0].UserID)
	require.NotNil(t, carts[0].Items[0].Product)

	require.NoError(t, f.svc.MarkAbandonedEmailSent(ctx, idle))
	carts, err = f.svc.ListAwaitingAbandonedEmail(ctx, 10, nil)
	require.NoError(t, err)
	require.Empty(t, carts)

	// editing the cart afterwards does not re-arm the reminder
	_, err = f.svc.AddItem(ctx, idle, ItemInput{ProductID: a.ID, Quantity: 1})
	require.NoError(t, err)
	var cart models.Cart
	require.NoError(t, f.conn.Where("user_id = ?", idle).Take(&cart).Error)
	require.True(t, cart.AbandonedEmailSent)
}
