package httpinterface

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shielded-exchange/withdrawd/internal/core/application"
	"github.com/shielded-exchange/withdrawd/internal/core/domain"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

const maxBodySize = 64 << 10

type handler struct {
	withdrawalSvc application.WithdrawalService
	rateLimitSvc  application.RateLimitService
	complianceSvc application.ComplianceService
	auditSvc      application.AuditService
	healthCheck   func(ctx context.Context) error
	logger        *log.Entry
}

type withdrawalRequest struct {
	RequestID   string          `json:"requestId"`
	UserID      string          `json:"userId"`
	FromAddress string          `json:"fromAddress"`
	ToAddress   string          `json:"toAddress"`
	Amount      decimal.Decimal `json:"amount"`
	Memo        string          `json:"memo"`
}

type userAmountRequest struct {
	UserID string          `json:"userId"`
	Amount decimal.Decimal `json:"amount"`
}

type viewingKeysRequest struct {
	UserID     string    `json:"userId"`
	Addresses  []string  `json:"addresses"`
	Start      time.Time `json:"start"`
	End        time.Time `json:"end"`
	ExportedBy string    `json:"exportedBy"`
	Reason     string    `json:"reason"`
}

type resolveFlagRequest struct {
	ResolvedBy string `json:"resolvedBy"`
}

type healthResponse struct {
	Status        string `json:"status"`
	Error         string `json:"error,omitempty"`
	AuditDegraded bool   `json:"auditDegraded"`
}

type auditEventsResponse struct {
	Events []domain.AuditEvent `json:"events"`
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:        "ok",
		AuditDegraded: h.auditSvc.Degraded(),
	}
	if h.healthCheck != nil {
		if err := h.healthCheck(r.Context()); err != nil {
			resp.Status = "unavailable"
			resp.Error = err.Error()
			writeJSON(w, http.StatusServiceUnavailable, resp)
			return
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handler) processWithdrawal(w http.ResponseWriter, r *http.Request) {
	var body withdrawalRequest
	if err := decodeBody(w, r, &body); err != nil {
		writeError(w, h.logger, err)
		return
	}

	req := domain.WithdrawalRequest{
		UserID:      body.UserID,
		FromAddress: body.FromAddress,
		ToAddress:   body.ToAddress,
		Amount:      body.Amount,
		RequestID:   body.RequestID,
	}
	if body.Memo != "" {
		req.Memo = []byte(body.Memo)
	}

	outcome, err := h.withdrawalSvc.ProcessWithdrawal(r.Context(), req)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if outcome.RateLimit != nil && !outcome.RateLimit.Allowed {
		setRetryAfter(w, outcome.RateLimit.RetryAfterMs)
	}
	writeJSON(w, outcomeStatus(outcome), outcome)
}

func (h *handler) withdrawalStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.withdrawalSvc.GetWithdrawalStatus(
		r.Context(), chi.URLParam(r, "requestId"),
	)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (h *handler) checkRateLimit(w http.ResponseWriter, r *http.Request) {
	var body userAmountRequest
	if err := decodeBody(w, r, &body); err != nil {
		writeError(w, h.logger, err)
		return
	}
	if body.UserID == "" {
		writeError(w, h.logger, domain.NewValidationError("userId", "must not be empty"))
		return
	}

	result := h.rateLimitSvc.CheckRateLimit(r.Context(), body.UserID, body.Amount)
	writeJSON(w, http.StatusOK, result)
}

func (h *handler) checkVelocity(w http.ResponseWriter, r *http.Request) {
	var body userAmountRequest
	if err := decodeBody(w, r, &body); err != nil {
		writeError(w, h.logger, err)
		return
	}
	if body.UserID == "" {
		writeError(w, h.logger, domain.NewValidationError("userId", "must not be empty"))
		return
	}

	result, err := h.complianceSvc.CheckVelocity(r.Context(), body.UserID, body.Amount)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *handler) estimateFee(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	amount, err := decimal.NewFromString(query.Get("amount"))
	if err != nil {
		writeError(w, h.logger, domain.NewValidationError(
			"amount", "must be a decimal number",
		))
		return
	}

	estimate, err := h.withdrawalSvc.EstimateWithdrawalFee(
		r.Context(), amount, query.Get("destination"),
	)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, estimate)
}

func (h *handler) complianceReport(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	start, err := parseTime("start", query.Get("start"), true)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	end, err := parseTime("end", query.Get("end"), true)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	report, err := h.complianceSvc.GenerateComplianceReport(
		r.Context(), domain.DateRange{Start: start, End: end},
	)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *handler) exportViewingKeys(w http.ResponseWriter, r *http.Request) {
	var body viewingKeysRequest
	if err := decodeBody(w, r, &body); err != nil {
		writeError(w, h.logger, err)
		return
	}

	bundle, err := h.complianceSvc.ExportViewingKeys(r.Context(), domain.ViewingKeyScope{
		UserID:     body.UserID,
		Addresses:  body.Addresses,
		DateRange:  domain.DateRange{Start: body.Start, End: body.End},
		ExportedBy: body.ExportedBy,
		Reason:     body.Reason,
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, bundle)
}

func (h *handler) resolveFlag(w http.ResponseWriter, r *http.Request) {
	var body resolveFlagRequest
	if err := decodeBody(w, r, &body); err != nil && !errors.Is(err, errEmptyBody) {
		writeError(w, h.logger, err)
		return
	}

	flag, err := h.complianceSvc.ResolveFlag(
		r.Context(), chi.URLParam(r, "flagId"), body.ResolvedBy,
	)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, flag)
}

func (h *handler) auditEvents(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	from, err := parseTime("from", query.Get("from"), false)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	to, err := parseTime("to", query.Get("to"), false)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	filter := domain.AuditFilter{
		From:   from,
		To:     to,
		UserID: query.Get("userId"),
	}
	for _, t := range query["type"] {
		filter.Types = append(filter.Types, domain.EventType(t))
	}
	for _, s := range query["severity"] {
		severity := domain.Severity(s)
		if !severity.IsValid() {
			writeError(w, h.logger, domain.NewValidationError(
				"severity", fmt.Sprintf("unknown value %q", s),
			))
			return
		}
		filter.Severities = append(filter.Severities, severity)
	}
	if l := query.Get("limit"); l != "" {
		limit, err := strconv.Atoi(l)
		if err != nil || limit < 0 {
			writeError(w, h.logger, domain.NewValidationError(
				"limit", "must be a non negative integer",
			))
			return
		}
		filter.Limit = limit
	}

	events, err := h.auditSvc.Query(r.Context(), filter)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if events == nil {
		events = []domain.AuditEvent{}
	}
	writeJSON(w, http.StatusOK, auditEventsResponse{events})
}

var errEmptyBody = domain.NewValidationError("", "request body must not be empty")

func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errEmptyBody
		}
		return &domain.ValidationError{
			Reason: "malformed request body", Err: err,
		}
	}
	return nil
}

func parseTime(field, value string, required bool) (time.Time, error) {
	if value == "" {
		if required {
			return time.Time{}, domain.NewValidationError(field, "must not be empty")
		}
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, domain.NewValidationError(field, "must be an RFC3339 time")
	}
	return t, nil
}
