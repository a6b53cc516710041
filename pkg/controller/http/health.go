package http

import (
	"encoding/json"
	"net/http"

	"github.com/m-mizutani/ctxlog"
	"github.com/visagekit/blendstream/pkg/domain/model"
	"github.com/visagekit/blendstream/pkg/domain/types"
)

// handleHealth returns a health check handler reporting the engine pool size
func handleHealth(engines int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := &model.HealthStatus{
			Status:  "healthy",
			Service: types.ServiceName,
			Version: types.Version,
			Engines: engines,
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		if err := json.NewEncoder(w).Encode(status); err != nil {
			ctxlog.From(r.Context()).Error("Failed to encode health response", "error", err)
		}
	}
}

// handleRoot serves the service banner
func handleRoot(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(map[string]string{
		"message": types.ServiceName + " is running.",
	}); err != nil {
		ctxlog.From(r.Context()).Error("Failed to encode root response", "error", err)
	}
}
