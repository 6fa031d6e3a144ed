package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/storefront-labs/checkout/internal/domain/loyalty"
)

const (
	balanceOfSQL = `SELECT balance FROM loyalty_accounts WHERE user_id = $1`

	upsertBalanceSQL = `INSERT INTO loyalty_accounts (user_id, balance) VALUES ($1, $2)
		ON CONFLICT (user_id) DO UPDATE SET balance = loyalty_accounts.balance + $2`

	insertEntrySQL = `INSERT INTO loyalty_entries (id, user_id, delta, kind, order_id)
		VALUES ($1, $2, $3, $4, NULLIF($5, '')::uuid)`
)

var _ loyalty.Ledger = (*LoyaltyRepository)(nil)

// LoyaltyRepository implements loyalty.Ledger backed by PostgreSQL. The
// cached account balance moves in the same transaction as the ledger entry.
type LoyaltyRepository struct {
	pool *pgxpool.Pool
}

// NewLoyaltyRepository returns a LoyaltyRepository that uses the given pool.
func NewLoyaltyRepository(pool *pgxpool.Pool) *LoyaltyRepository {
	return &LoyaltyRepository{pool: pool}
}

// BalanceOf returns the user's cached point balance; users without an
// account row have a zero balance.
func (r *LoyaltyRepository) BalanceOf(ctx context.Context, userID string) (int64, error) {
	var balance int64
	err := r.pool.QueryRow(ctx, balanceOfSQL, userID).Scan(&balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("getting balance of %q: %w", userID, err)
	}
	return balance, nil
}

// Credit appends a positive ledger entry and moves the cached balance in the
// same transaction.
func (r *LoyaltyRepository) Credit(ctx context.Context, userID string, amount int64, kind loyalty.Kind, orderID string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning credit tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := creditTx(ctx, tx, userID, amount, kind, orderID); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// creditTx writes one credit (entry + balance) inside an existing transaction.
// Shared with the order store's compensation path.
func creditTx(ctx context.Context, tx pgx.Tx, userID string, amount int64, kind loyalty.Kind, orderID string) error {
	if _, err := tx.Exec(ctx, insertEntrySQL, uuid.New().String(), userID, amount, string(kind), orderID); err != nil {
		return fmt.Errorf("inserting ledger entry for %q: %w", userID, err)
	}
	if _, err := tx.Exec(ctx, upsertBalanceSQL, userID, amount); err != nil {
		return fmt.Errorf("updating balance of %q: %w", userID, err)
	}
	return nil
}
