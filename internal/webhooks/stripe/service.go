package stripewebhook

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v84"
	"gorm.io/gorm"

	"github.com/angelmondragon/digistore-backend/internal/checkout"
	"github.com/angelmondragon/digistore-backend/internal/fulfillment"
	"github.com/angelmondragon/digistore-backend/internal/notifications"
	"github.com/angelmondragon/digistore-backend/internal/transactions"
	"github.com/angelmondragon/digistore-backend/pkg/config"
	"github.com/angelmondragon/digistore-backend/pkg/db/models"
	"github.com/angelmondragon/digistore-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/digistore-backend/pkg/errors"
	"github.com/angelmondragon/digistore-backend/pkg/logger"
	"github.com/angelmondragon/digistore-backend/pkg/metrics"
	"github.com/angelmondragon/digistore-backend/pkg/outbox"
	"github.com/angelmondragon/digistore-backend/pkg/outbox/payloads"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type discountRecorder interface {
	RecordUse(ctx context.Context, tx *gorm.DB, code string) error
}

type outboxEmitter interface {
	EmitIfNotExists(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type productLoader interface {
	FindByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Product, error)
}

type dispatcher interface {
	Run(ctx context.Context, txn *models.Transaction, products []models.Product) fulfillment.Report
}

type notifier interface {
	Create(ctx context.Context, tx *gorm.DB, input notifications.CreateInput) (*models.Notification, error)
}

type cartClearer interface {
	Clear(ctx context.Context, userID uuid.UUID) error
}

type ServiceParams struct {
	Transactions      *transactions.Repository
	TransactionRunner txRunner
	Discounts         discountRecorder
	Outbox            outboxEmitter
	Products          productLoader
	Fulfillment       dispatcher
	Notifications     notifier
	Carts             cartClearer
	CreationMode      config.TransactionCreationMode
	Metrics           *metrics.StoreMetrics
	Logger            *logger.Logger
}

// Service applies payment provider events to transactions.
type Service struct {
	transactions *transactions.Repository
	txRunner     txRunner
	discounts    discountRecorder
	outbox       outboxEmitter
	products     productLoader
	fulfillment  dispatcher
	notify       notifier
	carts        cartClearer
	mode         config.TransactionCreationMode
	metrics      *metrics.StoreMetrics
	logg         *logger.Logger
	now          func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Transactions == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction repository required")
	}
	if params.TransactionRunner == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction runner required")
	}
	if params.Discounts == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "discount recorder required")
	}
	if params.Outbox == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "outbox emitter required")
	}
	if params.Products == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "product loader required")
	}
	if params.Fulfillment == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "fulfillment dispatcher required")
	}
	if params.Notifications == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "notifications required")
	}
	mode := params.CreationMode
	if mode == "" {
		mode = config.TransactionCreationSuccessPage
	}
	return &Service{
		transactions: params.Transactions,
		txRunner:     params.TransactionRunner,
		discounts:    params.Discounts,
		outbox:       params.Outbox,
		products:     params.Products,
		fulfillment:  params.Fulfillment,
		notify:       params.Notifications,
		carts:        params.Carts,
		mode:         mode,
		metrics:      params.Metrics,
		logg:         params.Logger,
		now:          func() time.Time { return time.Now().UTC() },
	}, nil
}

// HandleEvent routes a verified event. Unhandled types are acknowledged without action.
func (s *Service) HandleEvent(ctx context.Context, event *stripe.Event) error {
	if event == nil || event.Data == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "stripe event data required")
	}

	var err error
	switch event.Type {
	case stripe.EventTypeCheckoutSessionCompleted, stripe.EventTypeCheckoutSessionAsyncPaymentSucceeded:
		var sess stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode checkout session")
		}
		err = s.completeSession(ctx, &sess)
	case stripe.EventTypeCheckoutSessionExpired, stripe.EventTypeCheckoutSessionAsyncPaymentFailed:
		var sess stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode checkout session")
		}
		err = s.failSession(ctx, &sess)
	case stripe.EventTypeChargeRefunded:
		var charge stripe.Charge
		if err := json.Unmarshal(event.Data.Raw, &charge); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode charge")
		}
		err = s.refundCharge(ctx, &charge)
	default:
		s.metrics.WebhookEvent(string(event.Type), metrics.OutcomeSkipped)
		return nil
	}

	if err != nil {
		s.metrics.WebhookEvent(string(event.Type), metrics.OutcomeFailure)
		return err
	}
	s.metrics.WebhookEvent(string(event.Type), metrics.OutcomeSuccess)
	return nil
}

func (s *Service) completeSession(ctx context.Context, sess *stripe.CheckoutSession) error {
	logCtx := ctx
	if s.logg != nil {
		logCtx = s.logg.WithSessionID(ctx, sess.ID)
	}
	if sess.PaymentStatus == stripe.CheckoutSessionPaymentStatusUnpaid {
		s.info(logCtx, "webhook.session_awaiting_payment")
		return nil
	}

	txn, err := s.findOrCreate(ctx, sess)
	if err != nil {
		return err
	}

	products, err := s.products.FindByIDs(ctx, txn.ProductIDs())
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load purchased products")
	}
	products = inLineOrder(txn, products)

	now := s.now()
	completion := transactions.Completion{
		PaymentIntentID: checkout.PaymentIntentID(sess),
		Amount:          txn.Amount,
		GitHubUsername:  checkout.GitHubUsername(sess),
		CompletedAt:     now,
	}
	if sess.AmountTotal > 0 {
		completion.Amount = checkout.FromCents(sess.AmountTotal)
	}

	var transitioned bool
	err = s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.transactions.WithTx(tx)
		ok, err := repo.MarkCompleted(ctx, txn.ID, completion)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		transitioned = true
		if txn.DiscountCode != nil {
			if err := s.discounts.RecordUse(ctx, tx, *txn.DiscountCode); err != nil {
				return err
			}
		}
		if err := repo.RecordEarnings(ctx, earnings(txn, products, now)); err != nil {
			return err
		}
		return s.outbox.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventTransactionCompleted,
			AggregateType: enums.AggregateTransaction,
			AggregateID:   txn.ID,
			Data:          completedPayload(txn, products, completion),
			OccurredAt:    now,
		})
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "complete transaction")
	}

	// Refresh the fields the transition stamped before fulfillment reads them.
	txn.Status = enums.TransactionStatusCompleted
	if completion.GitHubUsername != nil {
		txn.GitHubUsername = completion.GitHubUsername
	}

	report := s.fulfillment.Run(ctx, txn, products)
	if report.Err != nil && s.logg != nil {
		s.logg.Warn(s.logg.WithField(logCtx, "error", report.Err.Error()), "webhook.fulfillment_incomplete")
	}

	if transitioned {
		s.announce(logCtx, txn)
	} else {
		s.info(logCtx, "webhook.transaction_already_completed")
	}
	if report.Unavailable != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, report.Unavailable, "fulfill purchased products")
	}
	return nil
}

// announce notifies the buyer and clears their cart after the first transition.
func (s *Service) announce(logCtx context.Context, txn *models.Transaction) {
	if txn.BuyerID != nil {
		s.createNotification(logCtx, notifications.CreateInput{
			UserID:  *txn.BuyerID,
			Type:    enums.NotificationTypePurchaseCompleted,
			Title:   "Purchase complete",
			Message: fmt.Sprintf("Order %s is confirmed. Your downloads are ready.", txn.OrderNumber),
			Link:    "/account/orders/" + txn.ID.String(),
		})
		if s.carts != nil {
			if err := s.carts.Clear(logCtx, *txn.BuyerID); err != nil && s.logg != nil {
				s.logg.Error(logCtx, "webhook.cart_clear_failed", err)
			}
		}
	}
	s.info(logCtx, "webhook.transaction_completed")
}

func (s *Service) findOrCreate(ctx context.Context, sess *stripe.CheckoutSession) (*models.Transaction, error) {
	txn, err := s.transactions.FindBySessionID(ctx, sess.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load transaction")
	}
	if txn != nil {
		return txn, nil
	}
	if s.mode != config.TransactionCreationBoth {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "transaction not found")
	}

	candidate, err := checkout.TransactionFromSession(sess, s.now())
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "session metadata incomplete")
	}
	if _, err := s.transactions.InsertIfAbsent(ctx, candidate); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create transaction")
	}
	txn, err = s.transactions.FindBySessionID(ctx, sess.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load transaction")
	}
	if txn == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction missing after insert")
	}
	return txn, nil
}

func (s *Service) failSession(ctx context.Context, sess *stripe.CheckoutSession) error {
	row, err := s.transactions.MarkFailed(ctx, sess.ID, s.now())
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "fail transaction")
	}
	if row == nil {
		return nil
	}
	logCtx := ctx
	if s.logg != nil {
		logCtx = s.logg.WithSessionID(ctx, sess.ID)
	}
	if row.BuyerID != nil {
		s.createNotification(logCtx, notifications.CreateInput{
			UserID:  *row.BuyerID,
			Type:    enums.NotificationTypePaymentFailed,
			Title:   "Payment not completed",
			Message: fmt.Sprintf("We could not collect payment for order %s. Your cart is still saved.", row.OrderNumber),
			Link:    "/cart",
		})
	}
	s.info(logCtx, "webhook.transaction_failed")
	return nil
}

func (s *Service) refundCharge(ctx context.Context, charge *stripe.Charge) error {
	if charge.PaymentIntent == nil || charge.PaymentIntent.ID == "" {
		return nil
	}
	now := s.now()
	return s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		row, err := s.transactions.WithTx(tx).MarkRefunded(ctx, charge.PaymentIntent.ID, now)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "refund transaction")
		}
		if row == nil {
			return nil
		}
		return s.outbox.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventTransactionRefunded,
			AggregateType: enums.AggregateTransaction,
			AggregateID:   row.ID,
			Data: payloads.TransactionRefundedEvent{
				TransactionID: row.ID,
				OrderNumber:   row.OrderNumber,
				Amount:        row.Amount,
				Currency:      row.Currency,
				RefundedAt:    now,
			},
			OccurredAt: now,
		})
	})
}

func (s *Service) createNotification(ctx context.Context, input notifications.CreateInput) {
	if _, err := s.notify.Create(ctx, nil, input); err != nil && s.logg != nil {
		s.logg.Error(ctx, "webhook.notification_failed", err)
	}
}

func (s *Service) info(ctx context.Context, msg string) {
	if s.logg != nil {
		s.logg.Info(ctx, msg)
	}
}

// inLineOrder keeps products in purchase order and drops ids that no longer resolve.
func inLineOrder(txn *models.Transaction, products []models.Product) []models.Product {
	byID := make(map[uuid.UUID]models.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}
	ordered := make([]models.Product, 0, len(products))
	for _, id := range txn.ProductIDs() {
		if p, ok := byID[id]; ok {
			ordered = append(ordered, p)
		}
	}
	return ordered
}

func earnings(txn *models.Transaction, products []models.Product, now time.Time) []models.Earning {
	sellers := make(map[uuid.UUID]uuid.UUID, len(products))
	for _, p := range products {
		sellers[p.ID] = p.SellerID
	}
	rows := make([]models.Earning, 0, len(txn.Items))
	for _, item := range txn.Items {
		seller, ok := sellers[item.ProductID]
		if !ok {
			continue
		}
		rows = append(rows, models.Earning{
			ID:            uuid.New(),
			SellerID:      seller,
			ProductID:     item.ProductID,
			TransactionID: txn.ID,
			Amount:        item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity))),
			CreatedAt:     now,
		})
	}
	return rows
}

func completedPayload(txn *models.Transaction, products []models.Product, c transactions.Completion) payloads.TransactionCompletedEvent {
	sellers := make(map[uuid.UUID]uuid.UUID, len(products))
	for _, p := range products {
		sellers[p.ID] = p.SellerID
	}
	lines := make([]payloads.SaleLine, 0, len(txn.Items))
	for _, item := range txn.Items {
		lines = append(lines, payloads.SaleLine{
			ProductID: item.ProductID,
			SellerID:  sellers[item.ProductID],
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
		})
	}
	return payloads.TransactionCompletedEvent{
		TransactionID:  txn.ID,
		OrderNumber:    txn.OrderNumber,
		BuyerID:        txn.BuyerID,
		Amount:         c.Amount,
		Currency:       txn.Currency,
		DiscountCode:   txn.DiscountCode,
		DiscountAmount: txn.DiscountAmount,
		Lines:          lines,
		CompletedAt:    c.CompletedAt,
	}
}
