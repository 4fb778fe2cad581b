package httpinterface

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/shielded-exchange/withdrawd/internal/core/domain"
	log "github.com/sirupsen/logrus"
)

type errorResponse struct {
	Code    string                   `json:"code"`
	Message string                   `json:"message"`
	Field   string                   `json:"field,omitempty"`
	Result  *domain.WithdrawalResult `json:"result,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.WithError(err).Debug("failed to write response")
	}
}

// writeError maps the error taxonomy of the core to http statuses.
func writeError(w http.ResponseWriter, logger *log.Entry, err error) {
	var (
		validationErr *domain.ValidationError
		submissionErr *domain.SubmissionError
		unknownErr    *domain.UnknownOutcomeError
		configErr     *domain.ConfigurationError
	)

	switch {
	case errors.Is(err, domain.ErrIdempotencyKeyMismatch):
		writeJSON(w, http.StatusConflict, errorResponse{
			Code: "idempotency_key_mismatch", Message: err.Error(),
		})
	case errors.As(err, &validationErr):
		writeJSON(w, http.StatusBadRequest, errorResponse{
			Code:    "invalid_request",
			Message: err.Error(),
			Field:   validationErr.Field,
		})
	case errors.Is(err, domain.ErrInvalidRange):
		writeJSON(w, http.StatusBadRequest, errorResponse{
			Code: "invalid_range", Message: err.Error(),
		})
	case errors.Is(err, domain.ErrConcurrentRequest):
		w.Header().Set("Retry-After", "1")
		writeJSON(w, http.StatusConflict, errorResponse{
			Code: "request_in_progress", Message: err.Error(),
		})
	case errors.Is(err, domain.ErrRecordNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{
			Code: "not_found", Message: err.Error(),
		})
	case errors.Is(err, domain.ErrComplianceDisabled):
		writeJSON(w, http.StatusForbidden, errorResponse{
			Code: "compliance_disabled", Message: err.Error(),
		})
	case errors.Is(err, domain.ErrAuditUnavailable):
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{
			Code: "audit_unavailable", Message: err.Error(),
		})
	case errors.As(err, &unknownErr):
		logger.WithError(err).Error("withdrawal outcome unknown")
		writeJSON(w, http.StatusGatewayTimeout, errorResponse{
			Code: "unknown_outcome", Message: err.Error(),
		})
	case errors.As(err, &submissionErr):
		writeJSON(w, http.StatusBadGateway, errorResponse{
			Code:    "submission_failed",
			Message: err.Error(),
			Result:  submissionErr.Result,
		})
	case errors.As(err, &configErr):
		logger.WithError(err).Error("misconfigured service")
		writeJSON(w, http.StatusInternalServerError, errorResponse{
			Code: "misconfigured", Message: err.Error(),
		})
	default:
		logger.WithError(err).Error("internal error")
		writeJSON(w, http.StatusInternalServerError, errorResponse{
			Code: "internal", Message: "internal error",
		})
	}
}

// outcomeStatus returns the http status of an orchestrator outcome.
func outcomeStatus(outcome *domain.WithdrawalOutcome) int {
	switch outcome.State {
	case domain.StateRateLimited:
		return http.StatusTooManyRequests
	case domain.StateVelocityBlocked:
		return http.StatusForbidden
	}
	return http.StatusOK
}

func setRetryAfter(w http.ResponseWriter, retryAfterMs int64) {
	if retryAfterMs <= 0 {
		return
	}
	secs := (retryAfterMs + 999) / 1000
	w.Header().Set("Retry-After", strconv.FormatInt(secs, 10))
}
