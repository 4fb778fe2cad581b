package httpinterface

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shielded-exchange/withdrawd/internal/core/application"
	interfaces "github.com/shielded-exchange/withdrawd/internal/interfaces"
	log "github.com/sirupsen/logrus"
)

const shutdownTimeout = 10 * time.Second

type service struct {
	opts   ServiceOpts
	server *http.Server
}

type ServiceOpts struct {
	Address string
	// APIToken is the bearer token required on every /v1 route. Leaving it
	// empty disables authentication.
	APIToken string

	WithdrawalSvc application.WithdrawalService
	RateLimitSvc  application.RateLimitService
	ComplianceSvc application.ComplianceService
	AuditSvc      application.AuditService

	// Gatherer serves /metrics. Defaults to the prometheus default
	// registry.
	Gatherer prometheus.Gatherer
	// HealthCheck is called by /healthz when set.
	HealthCheck func(ctx context.Context) error
	Logger      *log.Entry
}

func (o ServiceOpts) validate() error {
	if o.WithdrawalSvc == nil {
		return fmt.Errorf("withdrawal app service must not be null")
	}
	if o.RateLimitSvc == nil {
		return fmt.Errorf("rate limit app service must not be null")
	}
	if o.ComplianceSvc == nil {
		return fmt.Errorf("compliance app service must not be null")
	}
	if o.AuditSvc == nil {
		return fmt.Errorf("audit app service must not be null")
	}
	return nil
}

// NewService returns the REST interface of the daemon, listening on
// opts.Address once started.
func NewService(opts ServiceOpts) (interfaces.Service, error) {
	if err := opts.validate(); err != nil {
		return nil, fmt.Errorf("invalid opts: %s", err)
	}
	if opts.Address == "" {
		return nil, fmt.Errorf("invalid opts: missing listening address")
	}
	handler, err := NewHandler(opts)
	if err != nil {
		return nil, err
	}

	return &service{
		opts: opts,
		server: &http.Server{
			Addr:              opts.Address,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}, nil
}

func (s *service) Start() error {
	lis, err := net.Listen("tcp", s.opts.Address)
	if err != nil {
		return err
	}

	go func() {
		if err := s.server.Serve(lis); err != nil &&
			!errors.Is(err, http.ErrServerClosed) {
			s.logger().WithError(err).Error("http interface stopped")
		}
	}()

	s.logger().Infof("http interface listening on %s", lis.Addr())
	return nil
}

func (s *service) Stop() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		s.logger().WithError(err).Warn("failed to gracefully stop http interface")
		return
	}
	s.logger().Debug("disabled http interface")
}

func (s *service) logger() *log.Entry {
	if s.opts.Logger != nil {
		return s.opts.Logger
	}
	return log.WithField("component", "http")
}
