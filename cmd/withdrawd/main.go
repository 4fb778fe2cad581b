package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/shielded-exchange/withdrawd/internal/config"
	"github.com/shielded-exchange/withdrawd/internal/core/application"
	"github.com/shielded-exchange/withdrawd/internal/core/application/audit"
	"github.com/shielded-exchange/withdrawd/internal/core/application/withdrawal"
	"github.com/shielded-exchange/withdrawd/internal/core/ports"
	dbredis "github.com/shielded-exchange/withdrawd/internal/infrastructure/storage/db/redis"
	"github.com/shielded-exchange/withdrawd/internal/infrastructure/zcashd"
	httpinterface "github.com/shielded-exchange/withdrawd/internal/interfaces/http"
	"github.com/shielded-exchange/withdrawd/pkg/stats"
	"github.com/shielded-exchange/withdrawd/pkg/zaddr"
	"github.com/shielded-exchange/withdrawd/pkg/zip317"
	log "github.com/sirupsen/logrus"
)

type wallet interface {
	ports.WithdrawalSubmitter
	ports.ViewingKeyProvider
}

func main() {
	if err := config.InitConfig(); err != nil {
		log.WithError(err).Fatal("invalid config")
	}

	logger := log.StandardLogger()
	logger.SetLevel(log.Level(config.GetInt(config.LogLevelKey)))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	datadir := config.GetDatadir()
	if config.GetBool(config.EnableProfilerKey) {
		stats.EnableMemoryStatistics(
			ctx, time.Duration(config.GetInt(config.StatsIntervalKey))*time.Second,
			prometheus.DefaultGatherer, filepath.Join(datadir, config.ProfilerLocation),
			logger.WithField("component", "stats"),
		)
	}

	var redisClient *redis.Client
	if addr := config.GetString(config.RedisAddrKey); addr != "" {
		client, err := dbredis.NewClient(addr, config.GetString(config.RedisPasswordKey))
		if err != nil {
			log.WithError(err).Fatal("failed to connect to redis")
		}
		redisClient = client
	}

	w, healthCheck, err := newWallet(ctx, logger)
	if err != nil {
		log.WithError(err).Fatal("failed to connect to wallet")
	}

	classifier := zaddr.NewClassifier()
	feeEstimator, err := zip317.NewEstimator(classifier)
	if err != nil {
		log.WithError(err).Fatal("failed to initialize fee estimator")
	}

	metrics := withdrawal.NewMetrics()
	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		log.WithError(err).Fatal("failed to register metrics")
	}

	appConfig := &application.Config{
		DBType:             config.GetString(config.DBTypeKey),
		DBConfig:           filepath.Join(datadir, config.DbLocation),
		Redis:              redisClient,
		RedisPrefix:        config.GetString(config.RedisPrefixKey),
		Submitter:          w,
		ViewingKeys:        w,
		Classifier:         classifier,
		FeeEstimator:       feeEstimator,
		RateLimits:         config.GetRateLimits(),
		EnableCompliance:   config.GetBool(config.EnableComplianceKey),
		VelocityThresholds: config.GetVelocityThresholds(),
		EnableAuditLogging: config.GetBool(config.EnableAuditLoggingKey),
		Audit: audit.Config{
			AddressPrefixLength: config.GetInt(config.AuditAddressPrefixLengthKey),
			DisclosureThreshold: config.GetDecimal(config.AuditDisclosureThresholdKey),
		},
		Withdrawal: withdrawal.Config{
			Network:       config.GetNetwork(),
			PrivacyPolicy: config.GetPrivacyPolicy(),
			MinConf:       config.GetInt(config.MinConfKey),
			SubmitTimeout: config.GetMilliseconds(config.SubmitTimeoutKey),
		},
		Metrics: metrics,
		Logger:  logger,
	}
	if err := appConfig.Validate(); err != nil {
		log.WithError(err).Fatal("invalid config")
	}
	defer appConfig.RepoManager().Close()

	svc, err := httpinterface.NewService(httpinterface.ServiceOpts{
		Address:       fmt.Sprintf(":%d", config.GetInt(config.HTTPListeningPortKey)),
		APIToken:      config.GetString(config.APITokenKey),
		WithdrawalSvc: appConfig.WithdrawalService(),
		RateLimitSvc:  appConfig.RateLimitService(),
		ComplianceSvc: appConfig.ComplianceService(),
		AuditSvc:      appConfig.AuditService(),
		Gatherer:      prometheus.DefaultGatherer,
		HealthCheck:   healthCheck,
		Logger:        logger.WithField("component", "http"),
	})
	if err != nil {
		log.WithError(err).Fatal("failed to initialize http interface")
	}

	log.Info("starting daemon")
	if err := svc.Start(); err != nil {
		log.WithError(err).Fatal("failed to start http interface")
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)
	<-sigChan

	log.Info("shutting down daemon")
	svc.Stop()
}

// newWallet returns the simulated wallet if explicitly enabled, the zcashd
// one otherwise.
func newWallet(
	ctx context.Context, logger *log.Logger,
) (wallet, func(context.Context) error, error) {
	if config.GetBool(config.DevWalletKey) {
		logger.Warn("dev wallet enabled, withdrawals will be simulated")
		return zcashd.NewDevWallet(0), nil, nil
	}

	w, err := zcashd.NewWallet(zcashd.Config{
		Endpoint:          config.GetString(config.RPCEndpointKey),
		Timeout:           config.GetMilliseconds(config.RPCTimeoutKey),
		RequestsPerSecond: config.GetInt(config.RPCRequestsPerSecondKey),
		PollInterval:      config.GetMilliseconds(config.RPCPollIntervalKey),
		Logger:            logger.WithField("component", "zcashd"),
	})
	if err != nil {
		return nil, nil, err
	}

	checkCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := w.Check(checkCtx); err != nil {
		return nil, nil, err
	}
	return w, w.Check, nil
}
