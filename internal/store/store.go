// Package store provides persistence for the contract catalog, buyer
// directory, governance documents, signals, and watchlist.
package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/tenderscope/intel-cli/internal/db"
	"github.com/tenderscope/intel-cli/internal/model"
)

// Store is the persistence interface for the intelligence catalog.
type Store interface {
	// Contracts.
	UpsertContracts(ctx context.Context, contracts []model.Contract) (int64, error)
	ContractIDs(ctx context.Context, source model.Source, noticeIDs []string) (map[string]int64, error)
	CountContracts(ctx context.Context) (int64, error)

	// Buyers.
	UpsertBuyerCounts(ctx context.Context, buyers []model.Buyer) (map[string]int64, error)
	GetBuyer(ctx context.Context, id int64) (*model.Buyer, error)
	ListUnclassifiedBuyers(ctx context.Context, limit int) ([]model.Buyer, error)
	ListBuyersForProfile(ctx context.Context, limit int) ([]model.Buyer, error)
	ListBuyersForScoring(ctx context.Context, version, limit int) ([]model.Buyer, error)
	UpdateBuyerClassification(ctx context.Context, b *model.Buyer) error
	PropagateGovernance(ctx context.Context) (int64, error)
	UpdateBuyerProfile(ctx context.Context, b *model.Buyer) error
	UpdateBuyerScore(ctx context.Context, id int64, score, version int) error
	BoostBuyerPriority(ctx context.Context, id int64) error
	RestoreBuyerPriority(ctx context.Context, id int64) error
	BuyerAggregates(ctx context.Context, id int64) (personnel, documents int, err error)
	BuyerStats(ctx context.Context, ids []int64) (map[int64]model.BuyerStats, error)

	// Data source registry.
	UpsertDataSources(ctx context.Context, sources []model.DataSource) (int64, error)
	ListDataSources(ctx context.Context) ([]model.DataSource, error)

	// Board documents.
	RecentUnprocessedDocuments(ctx context.Context, buyerID int64, limit int) ([]model.BoardDocument, error)
	ListBuyersWithPendingDocuments(ctx context.Context, limit int) ([]int64, error)
	SetDocumentSignalStatus(ctx context.Context, docID int64, status model.ExtractionStatus) error

	// Signals.
	UpsertSignals(ctx context.Context, signals []model.Signal) (int64, error)
	ListSignalBuyers(ctx context.Context, afterID int64, limit int) ([]int64, error)
	ListSignalsByType(ctx context.Context, buyerID int64, signalType model.SignalType) ([]model.Signal, error)
	DeleteSignals(ctx context.Context, ids []int64) error

	// Watchlist.
	CreateWatchEntry(ctx context.Context, e *model.WatchEntry) error
	ListWatchEntries(ctx context.Context) ([]model.WatchEntry, error)
	UpdateWatchSnapshot(ctx context.Context, entryID int64, snapshot *model.WatchSnapshot) error
	InsertNotification(ctx context.Context, n *model.Notification) error
	RecentNotificationExists(ctx context.Context, userID, supplierName, title string, since time.Time) (bool, error)
	ListNotifications(ctx context.Context, userID string, limit int) ([]model.Notification, error)

	Close()
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresStore wraps an existing pool. Used by tests with pgxmock.
func NewPostgresStore(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Pool returns the underlying database pool for subsystems that need direct
// query access (migrations, the job ledger).
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

// Close releases the connection pool.
func (s *PostgresStore) Close() {
	if s.closeFn != nil {
		s.closeFn()
	}
}

var _ Store = (*PostgresStore)(nil)

// collectRows scans all rows with fn, wrapping errors with op.
func collectRows[T any](rows pgx.Rows, op string, fn func(pgx.Rows) (T, error)) ([]T, error) {
	defer rows.Close()
	var out []T
	for rows.Next() {
		v, err := fn(rows)
		if err != nil {
			return nil, eris.Wrapf(err, "postgres: scan %s", op)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrapf(err, "postgres: iterate %s", op)
	}
	return out, nil
}
