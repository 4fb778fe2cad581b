package dbbadger

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/dgraph-io/badger/v3"
	"github.com/dgraph-io/badger/v3/options"
	"github.com/shielded-exchange/withdrawd/internal/core/domain"
	"github.com/shielded-exchange/withdrawd/internal/core/ports"
	log "github.com/sirupsen/logrus"
	"github.com/timshannon/badgerhold/v4"
)

const (
	mainDir  = "main"
	auditDir = "audit"
)

type repoManager struct {
	store      *badgerhold.Store
	auditStore *badgerhold.Store

	idempotencyStore domain.IdempotencyStore
	rateLimitStore   domain.RateLimitStore
	auditSink        domain.AuditLogSink
	withdrawalStore  domain.WithdrawalStatusStore
	flagStore        domain.FlagStore
}

// NewRepoManager opens (or creates if not exists) the badger stores under
// baseDbDir. The audit log lives in a dedicated db. If baseDbDir is empty
// the stores are kept in memory.
func NewRepoManager(
	baseDbDir string, logger badger.Logger,
) (ports.RepoManager, error) {
	var mainDbDir, auditDbDir string
	if len(baseDbDir) > 0 {
		mainDbDir = filepath.Join(baseDbDir, mainDir)
		auditDbDir = filepath.Join(baseDbDir, auditDir)
	}

	store, err := createDb(mainDbDir, logger)
	if err != nil {
		return nil, fmt.Errorf("opening main db: %w", err)
	}

	auditStore, err := createDb(auditDbDir, logger)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("opening audit db: %w", err)
	}

	return &repoManager{
		store:            store,
		auditStore:       auditStore,
		idempotencyStore: NewIdempotencyRepositoryImpl(store),
		rateLimitStore:   NewRateLimitRepositoryImpl(store),
		auditSink:        NewAuditRepositoryImpl(auditStore),
		withdrawalStore:  NewWithdrawalRepositoryImpl(store),
		flagStore:        NewFlagRepositoryImpl(store),
	}, nil
}

func (r *repoManager) IdempotencyStore() domain.IdempotencyStore {
	return r.idempotencyStore
}

func (r *repoManager) RateLimitStore() domain.RateLimitStore {
	return r.rateLimitStore
}

func (r *repoManager) AuditLogSink() domain.AuditLogSink {
	return r.auditSink
}

func (r *repoManager) WithdrawalStatusStore() domain.WithdrawalStatusStore {
	return r.withdrawalStore
}

func (r *repoManager) FlagStore() domain.FlagStore {
	return r.flagStore
}

func (r *repoManager) Close() {
	r.store.Close()
	r.auditStore.Close()
}

func createDb(dbDir string, logger badger.Logger) (*badgerhold.Store, error) {
	isInMemory := len(dbDir) <= 0

	opts := badger.DefaultOptions(dbDir)
	opts.Logger = logger

	if isInMemory {
		opts.InMemory = true
	} else {
		opts.Compression = options.ZSTD
	}

	db, err := badgerhold.Open(badgerhold.Options{
		Encoder:          badgerhold.DefaultEncode,
		Decoder:          badgerhold.DefaultDecode,
		SequenceBandwith: 100,
		Options:          opts,
	})
	if err != nil {
		return nil, err
	}

	if !isInMemory {
		ticker := time.NewTicker(30 * time.Minute)

		go func() {
			for {
				<-ticker.C
				if err := db.Badger().RunValueLogGC(0.5); err != nil &&
					err != badger.ErrNoRewrite {
					log.Error(err)
				}
			}
		}()
	}

	return db, nil
}

// update runs fn in a read-write transaction, retrying on conflicts with
// concurrent transactions.
func update(store *badgerhold.Store, fn func(tx *badger.Txn) error) error {
	var err error
	for i := 0; i < maxTxRetries; i++ {
		err = store.Badger().Update(fn)
		if err != badger.ErrConflict {
			return err
		}
	}
	return err
}

const maxTxRetries = 10

func toUnix(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromUnix(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}
