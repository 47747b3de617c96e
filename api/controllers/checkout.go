package controllers

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/digistore-backend/api/responses"
	"github.com/angelmondragon/digistore-backend/api/validators"
	"github.com/angelmondragon/digistore-backend/internal/access"
	"github.com/angelmondragon/digistore-backend/internal/checkout"
	"github.com/angelmondragon/digistore-backend/internal/users"
	"github.com/angelmondragon/digistore-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/digistore-backend/pkg/errors"
	"github.com/angelmondragon/digistore-backend/pkg/logger"
)

// BuyerLookup resolves the signed-in buyer's contact details for checkout.
type BuyerLookup interface {
	Me(ctx context.Context, userID uuid.UUID) (*users.UserDTO, error)
}

type checkoutSessionRequest struct {
	Items        []checkout.ItemInput `json:"items" validate:"required,min=1,max=100,dive"`
	DiscountCode string               `json:"discountCode" validate:"max=64"`
}

type transactionSummary struct {
	ID          uuid.UUID `json:"id"`
	OrderNumber string    `json:"orderNumber"`
	Status      string    `json:"status"`
	Amount      string    `json:"amount"`
	Currency    string    `json:"currency"`
	BuyerEmail  string    `json:"buyerEmail"`
}

// CheckoutSession opens a hosted checkout session. Guests may check out; a
// signed-in buyer's id, e-mail and GitHub username travel with the session.
func CheckoutSession(svc checkout.Service, buyers BuyerLookup, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, unavailable("checkout"))
			return
		}

		var body checkoutSessionRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		var buyer *checkout.Buyer
		if actor := access.ActorFrom(ctx); !actor.IsAnonymous() {
			buyer = &checkout.Buyer{UserID: actor.UserID}
			if buyers != nil {
				user, err := buyers.Me(ctx, actor.UserID)
				if err != nil {
					responses.WriteError(ctx, logg, w, err)
					return
				}
				buyer.Email = user.Email
				if user.GitHubUsername != nil {
					buyer.GitHubUsername = *user.GitHubUsername
				}
			}
		}

		result, err := svc.CreateSession(ctx, buyer, body.Items, body.DiscountCode)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}

// CheckoutSuccess records the pending transaction for the returning buyer and
// returns its summary.
func CheckoutSuccess(svc checkout.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, unavailable("checkout"))
			return
		}
		sessionID := strings.TrimSpace(r.URL.Query().Get("session_id"))
		if sessionID == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "session_id is required"))
			return
		}

		txn, err := svc.ConfirmSuccess(r.Context(), sessionID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, summarizeTransaction(txn))
	}
}

func summarizeTransaction(txn *models.Transaction) transactionSummary {
	return transactionSummary{
		ID:          txn.ID,
		OrderNumber: txn.OrderNumber,
		Status:      string(txn.Status),
		Amount:      txn.Amount.StringFixed(2),
		Currency:    txn.Currency,
		BuyerEmail:  txn.BuyerEmail,
	}
}
