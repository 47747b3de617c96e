// Package fulfillment runs the post-payment action of each purchased product.
package fulfillment

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/angelmondragon/digistore-backend/internal/notifications"
	"github.com/angelmondragon/digistore-backend/pkg/db/models"
	"github.com/angelmondragon/digistore-backend/pkg/enums"
	"github.com/angelmondragon/digistore-backend/pkg/logger"
	"github.com/angelmondragon/digistore-backend/pkg/metrics"
)

// Request is one product of one completed transaction.
type Request struct {
	Transaction *models.Transaction
	Product     *models.Product
}

// Fulfiller performs the external action for a product type.
type Fulfiller interface {
	Fulfill(ctx context.Context, req Request) error
}

type ledger interface {
	Succeeded(ctx context.Context, transactionID uuid.UUID) (map[uuid.UUID]bool, error)
	Record(ctx context.Context, transactionID, productID uuid.UUID, status enums.FulfillmentStatus, cause error, now time.Time) error
}

type notifier interface {
	Create(ctx context.Context, tx *gorm.DB, input notifications.CreateInput) (*models.Notification, error)
}

// Report summarizes one dispatch. Err aggregates per-product failures.
// Unavailable is set when the ledger could not be read; no product was
// attempted and the whole run must be retried.
type Report struct {
	Succeeded   int
	Failed      int
	Skipped     int
	Err         error
	Unavailable error
}

// Dispatcher fans a transaction's products out to their fulfillers with bounded parallelism.
type Dispatcher struct {
	fulfillers  map[enums.ProductType]Fulfiller
	ledger      ledger
	notify      notifier
	parallelism int
	metrics     *metrics.StoreMetrics
	logg        *logger.Logger
	now         func() time.Time
}

type Options struct {
	Parallelism int
	Metrics     *metrics.StoreMetrics
	Logger      *logger.Logger
}

// NewDispatcher wires the dispatcher. Product types without a fulfiller complete with no external action.
func NewDispatcher(fulfillers map[enums.ProductType]Fulfiller, ledger ledger, notify notifier, opts Options) (*Dispatcher, error) {
	if ledger == nil {
		return nil, fmt.Errorf("fulfillment ledger required")
	}
	if notify == nil {
		return nil, fmt.Errorf("notifier required")
	}
	if opts.Parallelism < 1 {
		opts.Parallelism = 1
	}
	if fulfillers == nil {
		fulfillers = map[enums.ProductType]Fulfiller{}
	}
	return &Dispatcher{
		fulfillers:  fulfillers,
		ledger:      ledger,
		notify:      notify,
		parallelism: opts.Parallelism,
		metrics:     opts.Metrics,
		logg:        opts.Logger,
		now:         func() time.Time { return time.Now().UTC() },
	}, nil
}

type outcome struct {
	skipped bool
	err     error
}

// Run fulfills every product. One product failing never stops the others.
func (d *Dispatcher) Run(ctx context.Context, txn *models.Transaction, products []models.Product) Report {
	done, err := d.ledger.Succeeded(ctx, txn.ID)
	if err != nil {
		return Report{Unavailable: fmt.Errorf("load fulfillment ledger: %w", err)}
	}

	outcomes := make([]outcome, len(products))
	var group errgroup.Group
	group.SetLimit(d.parallelism)
	for i := range products {
		product := &products[i]
		if done[product.ID] {
			outcomes[i] = outcome{skipped: true}
			d.metrics.Fulfillment(string(product.Type), metrics.OutcomeSkipped)
			continue
		}
		group.Go(func() error {
			outcomes[i] = d.fulfillOne(ctx, txn, product)
			return nil
		})
	}
	_ = group.Wait()

	var report Report
	for i, o := range outcomes {
		switch {
		case o.skipped:
			report.Skipped++
		case o.err != nil:
			report.Failed++
			report.Err = multierr.Append(report.Err, fmt.Errorf("product %s: %w", products[i].ID, o.err))
		default:
			report.Succeeded++
		}
	}
	return report
}

func (d *Dispatcher) fulfillOne(ctx context.Context, txn *models.Transaction, product *models.Product) (result outcome) {
	logCtx := ctx
	if d.logg != nil {
		logCtx = d.logg.WithFields(ctx, map[string]any{
			"transaction_id": txn.ID.String(),
			"product_id":     product.ID.String(),
			"product_type":   string(product.Type),
		})
	}
	defer func() {
		if r := recover(); r != nil {
			result = outcome{err: fmt.Errorf("fulfiller panic: %v", r)}
		}
	}()

	var cause error
	if f, ok := d.fulfillers[product.Type]; ok {
		cause = f.Fulfill(ctx, Request{Transaction: txn, Product: product})
	}

	status := enums.FulfillmentStatusSucceeded
	if cause != nil {
		status = enums.FulfillmentStatusFailed
	}
	if err := d.ledger.Record(ctx, txn.ID, product.ID, status, cause, d.now()); err != nil && d.logg != nil {
		d.logg.Error(logCtx, "fulfillment.ledger_write_failed", err)
	}

	if cause != nil {
		d.metrics.Fulfillment(string(product.Type), metrics.OutcomeFailure)
		if d.logg != nil {
			d.logg.Warn(d.logg.WithField(logCtx, "error", cause.Error()), "fulfillment.failed")
		}
		d.notifyFailure(logCtx, txn, product, cause)
		return outcome{err: cause}
	}

	d.metrics.Fulfillment(string(product.Type), metrics.OutcomeSuccess)
	if product.Type.RequiresExternalFulfillment() {
		d.notifyGranted(logCtx, txn, product)
	}
	return outcome{}
}

func (d *Dispatcher) notifyGranted(ctx context.Context, txn *models.Transaction, product *models.Product) {
	if txn.BuyerID == nil {
		return
	}
	repo := ""
	if product.RepoOwner != nil && product.RepoName != nil {
		repo = *product.RepoOwner + "/" + *product.RepoName
	}
	d.create(ctx, notifications.CreateInput{
		UserID:  *txn.BuyerID,
		Type:    enums.NotificationTypeRepoAccessGranted,
		Title:   "Repository access granted",
		Message: fmt.Sprintf("You have been invited to %s for %q. Check GitHub to accept the invitation.", repo, product.Title),
		Link:    "https://github.com/" + repo,
	})
}

func (d *Dispatcher) notifyFailure(ctx context.Context, txn *models.Transaction, product *models.Product, cause error) {
	d.create(ctx, notifications.CreateInput{
		UserID:  product.SellerID,
		Type:    enums.NotificationTypeRepoAccessFailed,
		Title:   "Fulfillment failed",
		Message: fmt.Sprintf("Order %s: %q could not be fulfilled: %s", txn.OrderNumber, product.Title, cause.Error()),
	})
}

func (d *Dispatcher) create(ctx context.Context, input notifications.CreateInput) {
	if _, err := d.notify.Create(ctx, nil, input); err != nil && d.logg != nil {
		d.logg.Error(ctx, "fulfillment.notification_failed", err)
	}
}
