package fulfillment

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/digistore-backend/internal/notifications"
	"github.com/angelmondragon/digistore-backend/pkg/db/dbtest"
	"github.com/angelmondragon/digistore-backend/pkg/db/models"
	"github.com/angelmondragon/digistore-backend/pkg/enums"
	"github.com/angelmondragon/digistore-backend/pkg/github"
)

type recordingNotifier struct {
	mu    sync.Mutex
	items []notifications.CreateInput
}

func (r *recordingNotifier) Create(_ context.Context, _ *gorm.DB, input notifications.CreateInput) (*models.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append(r.items, input)
	return &models.Notification{ID: uuid.New()}, nil
}

func (r *recordingNotifier) ofType(kind enums.NotificationType) []notifications.CreateInput {
	var out []notifications.CreateInput
	for _, item := range r.items {
		if item.Type == kind {
			out = append(out, item)
		}
	}
	return out
}

type fakeGranter struct {
	mu     sync.Mutex
	grants []github.Grant
	fail   map[string]error
}

func (f *fakeGranter) Grant(_ context.Context, grant github.Grant) (github.Outcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail[grant.Repo]; err != nil {
		return github.Outcome{}, err
	}
	f.grants = append(f.grants, grant)
	return github.Outcome{InvitationID: int64(len(f.grants))}, nil
}

func str(v string) *string { return &v }

func repoProduct(name string) models.Product {
	return models.Product{
		ID:        uuid.New(),
		SellerID:  uuid.New(),
		Title:     name,
		Type:      enums.ProductTypeGitHubRepo,
		RepoOwner: str("acme"),
		RepoName:  str(name),
		RepoToken: str("ghp_" + name),
	}
}

func TestDispatcherIsolatesFailuresAndRecordsLedger(t *testing.T) {
	ctx := context.Background()
	conn := dbtest.New(t)
	ledger := NewLedger(conn)
	notify := &recordingNotifier{}
	granter := &fakeGranter{fail: map[string]error{"broken": errors.New("github add collaborator: 404 Not Found")}}

	d, err := NewDispatcher(map[enums.ProductType]Fulfiller{
		enums.ProductTypeGitHubRepo: NewGitHubFulfiller(granter),
	}, ledger, notify, Options{})
	require.NoError(t, err)

	buyer := uuid.New()
	txn := &models.Transaction{ID: uuid.New(), OrderNumber: "DS-1", BuyerID: &buyer, GitHubUsername: str("octocat")}
	download := models.Product{ID: uuid.New(), SellerID: uuid.New(), Title: "ebook", Type: enums.ProductTypeDigitalDownload}
	good := repoProduct("kit")
	bad := repoProduct("broken")

	report := d.Run(ctx, txn, []models.Product{download, good, bad})
	require.Equal(t, 2, report.Succeeded)
	require.Equal(t, 1, report.Failed)
	require.ErrorContains(t, report.Err, "404")

	require.Len(t, granter.grants, 1)
	require.Equal(t, github.Grant{Owner: "acme", Repo: "kit", Username: "octocat", Permission: "pull", Token: "ghp_kit"}, granter.grants[0])

	granted := notify.ofType(enums.NotificationTypeRepoAccessGranted)
	require.Len(t, granted, 1)
	require.Equal(t, buyer, granted[0].UserID)
	failed := notify.ofType(enums.NotificationTypeRepoAccessFailed)
	require.Len(t, failed, 1)
	require.Equal(t, bad.SellerID, failed[0].UserID)
	require.Contains(t, failed[0].Message, "404")

	rows, err := ledger.ForTransaction(ctx, txn.ID)
	require.NoError(t, err)
	require.Len(t, rows, 3)

	// Redelivery only retries the failed product.
	delete(granter.fail, "broken")
	report = d.Run(ctx, txn, []models.Product{download, good, bad})
	require.Equal(t, 2, report.Skipped)
	require.Equal(t, 1, report.Succeeded)
	require.NoError(t, report.Err)
	require.Len(t, granter.grants, 2)

	var retried models.Fulfillment
	require.NoError(t, conn.Where("transaction_id = ? AND product_id = ?", txn.ID, bad.ID).Take(&retried).Error)
	require.Equal(t, enums.FulfillmentStatusSucceeded, retried.Status)
	require.Equal(t, 2, retried.Attempts)
	require.Nil(t, retried.LastError)
}

func TestGitHubFulfillerRequiresUsername(t *testing.T) {
	granter := &fakeGranter{}
	p := repoProduct("kit")
	err := NewGitHubFulfiller(granter).Fulfill(context.Background(), Request{Transaction: &models.Transaction{}, Product: &p})
	require.ErrorIs(t, err, errMissingUsername)
	require.Empty(t, granter.grants)
}

type memoryLedger struct {
	mu   sync.Mutex
	rows map[uuid.UUID]enums.FulfillmentStatus
}

func (m *memoryLedger) Succeeded(context.Context, uuid.UUID) (map[uuid.UUID]bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := map[uuid.UUID]bool{}
	for id, status := range m.rows {
		if status == enums.FulfillmentStatusSucceeded {
			out[id] = true
		}
	}
	return out, nil
}

func (m *memoryLedger) Record(_ context.Context, _, productID uuid.UUID, status enums.FulfillmentStatus, _ error, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[productID] = status
	return nil
}

type slowFulfiller struct {
	active  atomic.Int32
	peak    atomic.Int32
	panicOn uuid.UUID
}

func (s *slowFulfiller) Fulfill(_ context.Context, req Request) error {
	n := s.active.Add(1)
	defer s.active.Add(-1)
	for {
		peak := s.peak.Load()
		if n <= peak || s.peak.CompareAndSwap(peak, n) {
			break
		}
	}
	if req.Product.ID == s.panicOn {
		panic("boom")
	}
	time.Sleep(10 * time.Millisecond)
	return nil
}

func TestDispatcherBoundsParallelismAndRecoversPanics(t *testing.T) {
	products := make([]models.Product, 6)
	for i := range products {
		products[i] = repoProduct("repo")
	}
	f := &slowFulfiller{panicOn: products[3].ID}
	d, err := NewDispatcher(map[enums.ProductType]Fulfiller{enums.ProductTypeGitHubRepo: f},
		&memoryLedger{rows: map[uuid.UUID]enums.FulfillmentStatus{}}, &recordingNotifier{}, Options{Parallelism: 2})
	require.NoError(t, err)

	report := d.Run(context.Background(), &models.Transaction{ID: uuid.New()}, products)
	require.Equal(t, 5, report.Succeeded)
	require.Equal(t, 1, report.Failed)
	require.ErrorContains(t, report.Err, "panic")
	require.LessOrEqual(t, f.peak.Load(), int32(2))
}

type unreadableLedger struct{}

func (unreadableLedger) Succeeded(context.Context, uuid.UUID) (map[uuid.UUID]bool, error) {
	return nil, errors.New("connection reset")
}

func (unreadableLedger) Record(context.Context, uuid.UUID, uuid.UUID, enums.FulfillmentStatus, error, time.Time) error {
	return errors.New("connection reset")
}

func TestDispatcherReportsUnreadableLedger(t *testing.T) {
	granter := &fakeGranter{}
	notify := &recordingNotifier{}
	d, err := NewDispatcher(map[enums.ProductType]Fulfiller{
		enums.ProductTypeGitHubRepo: NewGitHubFulfiller(granter),
	}, unreadableLedger{}, notify, Options{})
	require.NoError(t, err)

	report := d.Run(context.Background(), &models.Transaction{ID: uuid.New(), GitHubUsername: str("octocat")}, []models.Product{repoProduct("kit")})
	require.ErrorContains(t, report.Unavailable, "connection reset")
	require.NoError(t, report.Err)
	require.Zero(t, report.Succeeded+report.Failed+report.Skipped)
	require.Empty(t, granter.grants)
	require.Empty(t, notify.items)
}
