package controllers

import (
	"context"
	"net/http"
	"strings"

	"github.com/angelmondragon/digistore-backend/api/responses"
	"github.com/angelmondragon/digistore-backend/internal/abandoned"
	pkgerrors "github.com/angelmondragon/digistore-backend/pkg/errors"
	"github.com/angelmondragon/digistore-backend/pkg/logger"
	"github.com/angelmondragon/digistore-backend/pkg/security"
)

// CartSweeper runs one abandoned-cart pass.
type CartSweeper interface {
	Sweep(ctx context.Context) (*abandoned.SweepResult, error)
}

// AbandonedCartSweep lets an external scheduler trigger the sweep. The caller
// must present the configured cron secret as a bearer token; an empty secret
// disables the endpoint.
func AbandonedCartSweep(sweeper CartSweeper, secret string, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if sweeper == nil {
			responses.WriteError(ctx, logg, w, unavailable("abandoned cart"))
			return
		}
		if strings.TrimSpace(secret) == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "cron endpoint disabled"))
			return
		}
		if !security.SecretsEqual(bearerSecret(r), secret) {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid cron secret"))
			return
		}

		result, err := sweeper.Sweep(ctx)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if logg != nil {
			logg.Info(logg.WithFields(ctx, map[string]any{
				"scanned": result.Scanned,
				"emailed": result.Emailed,
				"skipped": result.Skipped,
				"failed":  result.Failed,
			}), "cron.abandoned_carts.completed")
		}
		responses.WriteSuccess(w, result)
	}
}

func bearerSecret(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(header) < 7 || !strings.EqualFold(header[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(header[7:])
}
