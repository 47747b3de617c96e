package controllers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/angelmondragon/digistore-backend/api/responses"
	"github.com/angelmondragon/digistore-backend/internal/access"
	"github.com/angelmondragon/digistore-backend/internal/downloads"
	"github.com/angelmondragon/digistore-backend/pkg/logger"
)

// DownloadOpener authorizes and opens a purchased product's files.
type DownloadOpener interface {
	Open(ctx context.Context, actor *access.Actor, productID uuid.UUID) (*downloads.Stream, error)
}

// Download streams the purchased product's file, or a zip when it has several.
func Download(svc DownloadOpener, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, unavailable("downloads"))
			return
		}
		productID, err := uuidParam(r, "productId")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		stream, err := svc.Open(ctx, access.ActorFrom(ctx), productID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		w.Header().Set("Content-Type", stream.ContentType)
		w.Header().Set("Content-Disposition", stream.ContentDisposition())
		w.Header().Set("Cache-Control", "private, no-store")
		if stream.Size > 0 {
			w.Header().Set("Content-Length", strconv.FormatInt(stream.Size, 10))
		}
		w.WriteHeader(http.StatusOK)

		// Headers are gone by now; a mid-stream failure can only be logged.
		if err := stream.WriteTo(w); err != nil && logg != nil {
			logg.Error(logg.WithField(ctx, "product_id", productID.String()), "download.stream_failed", err)
		}
	}
}
