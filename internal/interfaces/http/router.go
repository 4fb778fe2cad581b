package httpinterface

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
)

const requestTimeout = 3 * time.Minute

// NewHandler returns the router of the REST interface.
func NewHandler(opts ServiceOpts) (http.Handler, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	if opts.Logger == nil {
		opts.Logger = log.WithField("component", "http")
	}
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}

	h := &handler{
		withdrawalSvc: opts.WithdrawalSvc,
		rateLimitSvc:  opts.RateLimitSvc,
		complianceSvc: opts.ComplianceSvc,
		auditSvc:      opts.AuditSvc,
		healthCheck:   opts.HealthCheck,
		logger:        opts.Logger,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(opts.Logger))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", h.health)
	r.Method(
		http.MethodGet, "/metrics",
		promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}),
	)

	r.Route("/v1", func(r chi.Router) {
		r.Use(bearerAuth(opts.APIToken, opts.AuditSvc, opts.Logger))
		r.Use(middleware.Timeout(requestTimeout))

		r.Post("/withdrawals", h.processWithdrawal)
		r.Get("/withdrawals/{requestId}/status", h.withdrawalStatus)
		r.Post("/ratelimit/check", h.checkRateLimit)
		r.Post("/velocity/check", h.checkVelocity)
		r.Get("/fees", h.estimateFee)

		r.Route("/compliance", func(r chi.Router) {
			r.Get("/report", h.complianceReport)
			r.Post("/viewing-keys", h.exportViewingKeys)
			r.Post("/flags/{flagId}/resolve", h.resolveFlag)
		})
		r.Get("/audit/events", h.auditEvents)
	})

	return r, nil
}
