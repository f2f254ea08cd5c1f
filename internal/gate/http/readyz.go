package http

import (
	"context"
	"net/http"
	"time"

	"github.com/crediflow/scoregate/pkg/httpx"
	"github.com/crediflow/scoregate/pkg/slogx"
)

// ReadyzHandler reports whether the process can serve traffic. With a
// nil check there is nothing external to probe and readiness equals
// liveness.
func ReadyzHandler(startTime time.Time, version string, check func(ctx context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if check != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()

			if err := check(ctx); err != nil {
				slogx.FromContext(r.Context()).Warn("readiness probe failed", "error", err)
				httpx.WriteJSON(w, http.StatusServiceUnavailable, HealthResponse{
					Status:  "unavailable",
					Uptime:  time.Since(startTime).String(),
					Version: version,
				})
				return
			}
		}

		httpx.WriteJSON(w, http.StatusOK, HealthResponse{
			Status:  "ok",
			Uptime:  time.Since(startTime).String(),
			Version: version,
		})
	}
}
