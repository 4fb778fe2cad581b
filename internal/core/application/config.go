package application

import (
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/shielded-exchange/withdrawd/internal/core/application/audit"
	"github.com/shielded-exchange/withdrawd/internal/core/application/compliance"
	"github.com/shielded-exchange/withdrawd/internal/core/application/withdrawal"
	"github.com/shielded-exchange/withdrawd/internal/core/domain"
	"github.com/shielded-exchange/withdrawd/internal/core/ports"
	dbbadger "github.com/shielded-exchange/withdrawd/internal/infrastructure/storage/db/badger"
	"github.com/shielded-exchange/withdrawd/internal/infrastructure/storage/db/inmemory"
	dbredis "github.com/shielded-exchange/withdrawd/internal/infrastructure/storage/db/redis"
	log "github.com/sirupsen/logrus"
)

const (
	DBInMemory = "inmemory"
	DBBadger   = "badger"
)

var (
	SupportedDBType = map[string]struct{}{
		DBInMemory: {},
		DBBadger:   {},
	}
)

type Config struct {
	DBType   string
	DBConfig interface{}
	// Redis, when set, backs the idempotency and rate limit stores.
	Redis       *redis.Client
	RedisPrefix string

	Submitter    ports.WithdrawalSubmitter
	ViewingKeys  ports.ViewingKeyProvider
	Classifier   ports.AddressClassifier
	FeeEstimator ports.FeeEstimator

	RateLimits         domain.RateLimits
	EnableCompliance   bool
	VelocityThresholds domain.VelocityThresholds
	EnableAuditLogging bool
	Audit              audit.Config
	Withdrawal         withdrawal.Config
	Metrics            *withdrawal.Metrics
	Logger             *log.Logger

	repo       ports.RepoManager
	audit      AuditService
	rateLimit  RateLimitService
	compliance ComplianceService
	withdrawal WithdrawalService
}

func (c *Config) Validate() error {
	if _, ok := SupportedDBType[c.DBType]; !ok {
		return fmt.Errorf("unsupported db type %q", c.DBType)
	}
	if c.Submitter == nil {
		return fmt.Errorf("missing withdrawal submitter")
	}
	if c.Classifier == nil {
		return fmt.Errorf("missing address classifier")
	}
	if _, err := c.repoManager(); err != nil {
		return err
	}
	if _, err := c.withdrawalService(); err != nil {
		return err
	}
	return nil
}

func (c *Config) RepoManager() ports.RepoManager {
	svc, _ := c.repoManager()
	return svc
}

func (c *Config) AuditService() AuditService {
	svc, _ := c.auditService()
	return svc
}

func (c *Config) RateLimitService() RateLimitService {
	svc, _ := c.rateLimitService()
	return svc
}

func (c *Config) ComplianceService() ComplianceService {
	svc, _ := c.complianceService()
	return svc
}

func (c *Config) WithdrawalService() WithdrawalService {
	svc, _ := c.withdrawalService()
	return svc
}

func (c *Config) logger(component string) *log.Entry {
	if c.Logger == nil {
		c.Logger = log.StandardLogger()
	}
	return c.Logger.WithField("component", component)
}

func (c *Config) repoManager() (ports.RepoManager, error) {
	if c.repo == nil {
		var repoManager ports.RepoManager
		switch c.DBType {
		case DBBadger:
			datadir, _ := c.DBConfig.(string)
			badgerRepoManager, err := dbbadger.NewRepoManager(datadir, c.logger("badger"))
			if err != nil {
				return nil, err
			}
			repoManager = badgerRepoManager
		default:
			repoManager = inmemory.NewRepoManager()
		}

		if c.Redis != nil {
			repoManager = dbredis.NewRepoManager(c.Redis, c.RedisPrefix, repoManager)
		}
		c.repo = repoManager
	}
	return c.repo, nil
}

func (c *Config) auditService() (AuditService, error) {
	if c.audit == nil {
		repo, err := c.repoManager()
		if err != nil {
			return nil, err
		}
		sink := audit.NewDiscardSink()
		if c.EnableAuditLogging {
			sink = repo.AuditLogSink()
		}
		svc, err := NewAuditService(sink, c.Audit, c.logger("audit"))
		if err != nil {
			return nil, err
		}
		c.audit = svc
	}
	return c.audit, nil
}

func (c *Config) rateLimitService() (RateLimitService, error) {
	if c.rateLimit == nil {
		repo, err := c.repoManager()
		if err != nil {
			return nil, err
		}
		svc, err := NewRateLimitService(
			repo.RateLimitStore(), c.RateLimits, c.logger("ratelimit"),
		)
		if err != nil {
			return nil, err
		}
		c.rateLimit = svc
	}
	return c.rateLimit, nil
}

func (c *Config) complianceService() (ComplianceService, error) {
	if c.compliance == nil {
		repo, err := c.repoManager()
		if err != nil {
			return nil, err
		}
		auditSvc, err := c.auditService()
		if err != nil {
			return nil, err
		}
		svc, err := NewComplianceService(
			repo, c.ViewingKeys, auditSvc,
			compliance.Config{
				Enabled:    c.EnableCompliance,
				Thresholds: c.VelocityThresholds,
			},
			c.logger("compliance"),
		)
		if err != nil {
			return nil, err
		}
		c.compliance = svc
	}
	return c.compliance, nil
}

func (c *Config) withdrawalService() (WithdrawalService, error) {
	if c.withdrawal == nil {
		repo, err := c.repoManager()
		if err != nil {
			return nil, err
		}
		auditSvc, err := c.auditService()
		if err != nil {
			return nil, err
		}
		rateLimitSvc, err := c.rateLimitService()
		if err != nil {
			return nil, err
		}
		complianceSvc, err := c.complianceService()
		if err != nil {
			return nil, err
		}

		svc, err := NewWithdrawalService(WithdrawalDeps{
			RepoManager:  repo,
			RateLimit:    rateLimitSvc,
			Compliance:   complianceSvc,
			Audit:        auditSvc,
			Classifier:   c.Classifier,
			Submitter:    c.Submitter,
			FeeEstimator: c.FeeEstimator,
			Metrics:      c.Metrics,
		}, c.Withdrawal, c.logger("withdrawal"))
		if err != nil {
			return nil, err
		}
		c.withdrawal = svc
	}
	return c.withdrawal, nil
}
