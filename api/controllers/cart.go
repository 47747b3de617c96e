package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/digistore-backend/api/responses"
	"github.com/angelmondragon/digistore-backend/api/validators"
	cartsvc "github.com/angelmondragon/digistore-backend/internal/cart"
	"github.com/angelmondragon/digistore-backend/pkg/logger"
)

type replaceCartRequest struct {
	Items []cartsvc.ItemInput `json:"items" validate:"max=100,dive"`
}

type updateQuantityRequest struct {
	Quantity int `json:"quantity" validate:"min=1"`
}

type cartSummaryRequest struct {
	Code string `json:"code" validate:"max=64"`
}

// cartHandler resolves the signed-in owner and hands it to fn.
func cartHandler(svc cartsvc.Service, logg *logger.Logger, fn func(w http.ResponseWriter, r *http.Request, userID uuid.UUID) (any, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, unavailable("cart"))
			return
		}
		userID, err := signedInUser(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := fn(w, r, userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if result == nil {
			responses.WriteOK(w)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

func CartFetch(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return cartHandler(svc, logg, func(_ http.ResponseWriter, r *http.Request, userID uuid.UUID) (any, error) {
		return svc.Get(r.Context(), userID)
	})
}

// CartReplace overwrites the cart with the submitted lines.
func CartReplace(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return cartHandler(svc, logg, func(_ http.ResponseWriter, r *http.Request, userID uuid.UUID) (any, error) {
		var body replaceCartRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			return nil, err
		}
		return svc.ReplaceItems(r.Context(), userID, body.Items)
	})
}

func CartAddItem(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return cartHandler(svc, logg, func(_ http.ResponseWriter, r *http.Request, userID uuid.UUID) (any, error) {
		var body cartsvc.ItemInput
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			return nil, err
		}
		return svc.AddItem(r.Context(), userID, body)
	})
}

func CartUpdateItem(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return cartHandler(svc, logg, func(_ http.ResponseWriter, r *http.Request, userID uuid.UUID) (any, error) {
		productID, err := uuidParam(r, "productId")
		if err != nil {
			return nil, err
		}
		var body updateQuantityRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			return nil, err
		}
		return svc.UpdateQuantity(r.Context(), userID, productID, body.Quantity)
	})
}

func CartRemoveItem(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return cartHandler(svc, logg, func(_ http.ResponseWriter, r *http.Request, userID uuid.UUID) (any, error) {
		productID, err := uuidParam(r, "productId")
		if err != nil {
			return nil, err
		}
		return svc.RemoveItem(r.Context(), userID, productID)
	})
}

func CartClear(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return cartHandler(svc, logg, func(_ http.ResponseWriter, r *http.Request, userID uuid.UUID) (any, error) {
		return nil, svc.Clear(r.Context(), userID)
	})
}

// CartSummary prices the cart and previews an optional discount code
// without consuming it.
func CartSummary(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return cartHandler(svc, logg, func(_ http.ResponseWriter, r *http.Request, userID uuid.UUID) (any, error) {
		var body cartSummaryRequest
		if r.ContentLength != 0 {
			if err := validators.DecodeJSONBody(r, &body); err != nil {
				return nil, err
			}
		}
		return svc.Summary(r.Context(), userID, body.Code)
	})
}
