package abandoned

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"

	"github.com/angelmondragon/digistore-backend/pkg/config"
	"github.com/angelmondragon/digistore-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/digistore-backend/pkg/errors"
	"github.com/angelmondragon/digistore-backend/pkg/logger"
	"github.com/angelmondragon/digistore-backend/pkg/mailer"
	"github.com/angelmondragon/digistore-backend/pkg/metrics"
)

const defaultBatchSize = 100

type cartSource interface {
	ListAwaitingAbandonedEmail(ctx context.Context, limit int, after *uuid.UUID) ([]models.Cart, error)
	MarkAbandonedEmailSent(ctx context.Context, userID uuid.UUID) error
}

type recipientLookup interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// SweepResult summarizes one pass over unreminded carts.
type SweepResult struct {
	Scanned int `json:"scanned"`
	Emailed int `json:"emailed"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

type Options struct {
	BatchSize  int
	Storefront config.StorefrontConfig
	Metrics    *metrics.StoreMetrics
	Logger     *logger.Logger
}

// Sweeper e-mails a one-time reminder for carts whose flag is still unset.
type Sweeper struct {
	carts      cartSource
	users      recipientLookup
	sender     mailer.Sender
	batchSize  int
	storefront config.StorefrontConfig
	metrics    *metrics.StoreMetrics
	logg       *logger.Logger
}

func NewSweeper(carts cartSource, users recipientLookup, sender mailer.Sender, opts Options) (*Sweeper, error) {
	if carts == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "cart source required")
	}
	if users == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "user lookup required")
	}
	if sender == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "mail sender required")
	}
	batch := opts.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}
	return &Sweeper{
		carts:      carts,
		users:      users,
		sender:     sender,
		batchSize:  batch,
		storefront: opts.Storefront,
		metrics:    opts.Metrics,
		logg:       opts.Logger,
	}, nil
}

// Sweep pages through every eligible cart. Per-cart failures are counted and
// logged but never stop the pass; only a failed page read aborts it.
func (s *Sweeper) Sweep(ctx context.Context) (*SweepResult, error) {
	result := &SweepResult{}
	var failures error
	var after *uuid.UUID

	for {
		carts, err := s.carts.ListAwaitingAbandonedEmail(ctx, s.batchSize, after)
		if err != nil {
			return result, err
		}
		for i := range carts {
			cart := &carts[i]
			result.Scanned++
			sent, err := s.remind(ctx, cart)
			switch {
			case err != nil:
				result.Failed++
				failures = multierr.Append(failures, fmt.Errorf("cart %s: %w", cart.UserID, err))
				s.metrics.RecoveryEmail(metrics.OutcomeFailure)
			case sent:
				result.Emailed++
				s.metrics.RecoveryEmail(metrics.OutcomeSuccess)
			default:
				result.Skipped++
				s.metrics.RecoveryEmail(metrics.OutcomeSkipped)
			}
		}
		if len(carts) < s.batchSize {
			break
		}
		last := carts[len(carts)-1].UserID
		after = &last
	}

	if s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"scanned": result.Scanned,
			"emailed": result.Emailed,
			"skipped": result.Skipped,
			"failed":  result.Failed,
		})
		for _, err := range multierr.Errors(failures) {
			s.logg.Error(logCtx, "abandoned.reminder_failed", err)
		}
		s.logg.Info(logCtx, "abandoned.sweep_complete")
	}
	return result, nil
}

// remind reports false without error when the cart has nothing to remind about.
func (s *Sweeper) remind(ctx context.Context, cart *models.Cart) (bool, error) {
	if cart.UserID == uuid.Nil || len(cart.Items) == 0 {
		return false, nil
	}
	user, err := s.users.FindByID(ctx, cart.UserID)
	if err != nil {
		return false, fmt.Errorf("load owner: %w", err)
	}
	if user == nil || user.Email == "" {
		return false, nil
	}

	view := reminderView{
		StoreName: s.storefront.Name,
		Name:      user.Name,
		CartURL:   s.storefront.CartURL(),
	}
	total := decimal.Zero
	for _, item := range cart.Items {
		// Products deleted since they were added are left out of the reminder and its total.
		if item.Product == nil {
			continue
		}
		line := item.Product.Price.Mul(decimal.NewFromInt(int64(item.Quantity)))
		total = total.Add(line)
		view.Lines = append(view.Lines, reminderLine{
			Title:    item.Product.Title,
			Quantity: item.Quantity,
			Price:    formatMoney(line, s.storefront.Currency),
		})
	}
	if len(view.Lines) == 0 {
		return false, nil
	}
	view.Total = formatMoney(total, s.storefront.Currency)

	html, err := view.html()
	if err != nil {
		return false, fmt.Errorf("render reminder: %w", err)
	}
	if err := s.sender.Send(ctx, mailer.Message{
		ToEmail: user.Email,
		ToName:  user.Name,
		Subject: view.subject(),
		Text:    view.text(),
		HTML:    html,
	}); err != nil {
		return false, fmt.Errorf("send reminder: %w", err)
	}
	// The flag flips only after delivery so failed sends are retried next sweep.
	if err := s.carts.MarkAbandonedEmailSent(ctx, cart.UserID); err != nil {
		return false, fmt.Errorf("mark reminded: %w", err)
	}
	return true, nil
}
