package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/crediflow/scoregate/internal/gate/domain"
	"github.com/crediflow/scoregate/internal/gate/service"
	"github.com/crediflow/scoregate/pkg/httpx"
	"github.com/crediflow/scoregate/pkg/slogx"
)

// TokenHandler serves POST /v1/tokens.
type TokenHandler struct {
	TokenService *service.Issuer
}

// TokenResponse is the issuance result body.
type TokenResponse struct {
	Token         string    `json:"token"`
	TTLSeconds    int       `json:"ttl_seconds"`
	CorrelationID string    `json:"correlation_id"`
	IssuedAt      time.Time `json:"issued_at"`
}

func (h *TokenHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	log := slogx.FromContext(r.Context())

	var req domain.ScoreRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_json", "")
		return
	}

	correlationID := r.Header.Get("X-Correlation-ID")

	issued, err := h.TokenService.Issue(r.Context(), req, correlationID)
	if err != nil {
		var verr *domain.ValidationError
		if errors.As(err, &verr) {
			httpx.WriteJSON(w, http.StatusBadRequest, map[string]any{
				"error":          "missing_fields",
				"missing_fields": verr.Missing,
			})
			return
		}

		log.Error("token issuance failed", "error", err)
		httpx.WriteError(w, http.StatusInternalServerError, "internal_error", correlationID)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, TokenResponse{
		Token:         issued.Token,
		TTLSeconds:    issued.TTLSeconds,
		CorrelationID: issued.CorrelationID,
		IssuedAt:      issued.IssuedAt,
	})
}
