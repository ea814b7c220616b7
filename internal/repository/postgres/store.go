package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/utafrali/posledger/internal/domain"
	"github.com/utafrali/posledger/internal/repository"
	"github.com/utafrali/posledger/pkg/database"
)

// IsolationLevel maps a config value to a pgx isolation level.
func IsolationLevel(name string) (pgx.TxIsoLevel, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "read_committed":
		return pgx.ReadCommitted, nil
	case "repeatable_read":
		return pgx.RepeatableRead, nil
	case "serializable":
		return pgx.Serializable, nil
	default:
		return "", fmt.Errorf("unknown transaction isolation %q", name)
	}
}

type repos struct {
	ledger  *LedgerRepository
	catalog *CatalogRepository
	sales   *SaleRepository
}

func newRepos(db database.DBTX) repos {
	return repos{
		ledger:  NewLedgerRepository(db),
		catalog: NewCatalogRepository(db),
		sales:   NewSaleRepository(db),
	}
}

func (r repos) Ledger() repository.LedgerRepository   { return r.ledger }
func (r repos) Catalog() repository.CatalogRepository { return r.catalog }
func (r repos) Sales() repository.SaleRepository      { return r.sales }

// Store implements repository.Store. Outside InTx its repositories run on
// the pool, one statement per implicit transaction.
type Store struct {
	repos
	pool     database.TxBeginner
	isoLevel pgx.TxIsoLevel
}

// NewStore creates a Store whose transactions use isoLevel.
func NewStore(pool database.TxBeginner, isoLevel pgx.TxIsoLevel) *Store {
	return &Store{repos: newRepos(pool), pool: pool, isoLevel: isoLevel}
}

// InTx runs fn with repositories bound to a new transaction. The deferred
// rollback is a no-op after a successful commit and discards everything
// otherwise, including when ctx is cancelled mid-flight. Serialization
// failures, deadlocks and lock timeouts come back wrapped in
// domain.ErrStockRaceDetected.
func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx repository.Repositories) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: s.isoLevel})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(ctx, newRepos(tx)); err != nil {
		return asRace(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return asRace(fmt.Errorf("commit transaction: %w", err))
	}
	return nil
}

func asRace(err error) error {
	if database.IsContention(err) && !errors.Is(err, domain.ErrStockRaceDetected) {
		return fmt.Errorf("%w: %w", domain.ErrStockRaceDetected, err)
	}
	return err
}
