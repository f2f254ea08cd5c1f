package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/crediflow/scoregate/internal/gate/domain"
	"github.com/crediflow/scoregate/internal/gate/service"
	"github.com/crediflow/scoregate/pkg/httpx"
	"github.com/crediflow/scoregate/pkg/slogx"
)

// ScoreHandler serves POST /v1/score: bearer token in, score out.
type ScoreHandler struct {
	ScoreService *service.Checker
}

// ScoreResponse is the accepted-verification result body.
type ScoreResponse struct {
	Score         int       `json:"score"`
	RiskBand      string    `json:"risk_band"`
	ComputedAt    time.Time `json:"computed_at"`
	CorrelationID string    `json:"correlation_id"`
}

func (h *ScoreHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	log := slogx.FromContext(r.Context())

	// Body problems are reported before the token is checked so a 400
	// never consumes the single-use nonce; the caller can fix the body
	// and present the same token again.
	var req domain.ScoreRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_json", "")
		return
	}

	if err := req.Validate(); err != nil {
		var verr *domain.ValidationError
		if errors.As(err, &verr) {
			httpx.WriteJSON(w, http.StatusBadRequest, map[string]any{
				"error":          "missing_fields",
				"missing_fields": verr.Missing,
			})
			return
		}
		httpx.WriteError(w, http.StatusBadRequest, "invalid_json", "")
		return
	}

	token, ok := bearerToken(r)
	if !ok {
		httpx.WriteError(w, http.StatusUnauthorized, service.ErrInvalidToken.Error(), r.Header.Get("X-Correlation-ID"))
		return
	}

	res, err := h.ScoreService.Check(r.Context(), token, req)
	if err != nil {
		var rej *service.Rejection
		if errors.As(err, &rej) {
			// Echo whichever correlation id we have: the one recovered
			// from the token beats the caller-supplied header.
			correlationID := rej.CorrelationID
			if correlationID == "" {
				correlationID = r.Header.Get("X-Correlation-ID")
			}
			httpx.WriteError(w, http.StatusUnauthorized, rej.Kind.Error(), correlationID)
			return
		}

		log.Error("verification failed", "error", err)
		httpx.WriteError(w, http.StatusInternalServerError, "internal_error", r.Header.Get("X-Correlation-ID"))
		return
	}

	httpx.WriteJSON(w, http.StatusOK, ScoreResponse{
		Score:         res.Result.Score,
		RiskBand:      res.Result.RiskBand,
		ComputedAt:    res.Result.ComputedAt,
		CorrelationID: res.CorrelationID,
	})
}

// bearerToken extracts the credential from the Authorization header.
func bearerToken(r *http.Request) (string, bool) {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return "", false
	}

	scheme, token, found := strings.Cut(auth, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}

	token = strings.TrimSpace(token)
	return token, token != ""
}
