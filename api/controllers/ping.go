package controllers

import (
	"net/http"

	"github.com/angelmondragon/digistore-backend/api/middleware"
	"github.com/angelmondragon/digistore-backend/api/responses"
)

type pingBody struct {
	Status string `json:"status"`
	Scope  string `json:"scope"`
	UserID string `json:"user_id,omitempty"`
}

// Ping answers liveness probes for a route group. Authenticated groups echo
// the caller so token wiring can be checked end to end.
func Ping(scope string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		responses.WriteSuccess(w, pingBody{
			Status: "ok",
			Scope:  scope,
			UserID: middleware.UserIDFromContext(r.Context()),
		})
	}
}
