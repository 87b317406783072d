package handlers

import (
	"net/http"

	"github.com/hrplatform/docingest/internal/api"
)

// Health reports liveness. It does not touch the database.
func Health(w http.ResponseWriter, r *http.Request) {
	api.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
