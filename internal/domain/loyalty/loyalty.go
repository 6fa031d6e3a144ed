// Package loyalty models the point ledger: an append-only list of signed
// entries per user. The cached account balance is a projection of the ledger
// and is only ever updated in the same transaction as the entry that moves it.
package loyalty

import (
	"context"
	"time"

	"github.com/go-faster/errors"
)

// Kind classifies a ledger entry.
type Kind string

const (
	KindEarned   Kind = "earned"
	KindRedeemed Kind = "redeemed"
	KindBonus    Kind = "bonus"
	KindRefund   Kind = "refund"
	KindExpired  Kind = "expired"
)

// ErrInsufficientBalance is returned when a debit exceeds the user's balance.
var ErrInsufficientBalance = errors.New("insufficient point balance")

// Entry is one immutable ledger record.
type Entry struct {
	ID        string
	UserID    string
	Delta     int64
	Kind      Kind
	ExpiresAt *time.Time
	OrderID   string
	CreatedAt time.Time
}

// Ledger provides balance reads and credits. Debits only happen inside the
// order commit transaction and are owned by the order store.
type Ledger interface {
	BalanceOf(ctx context.Context, userID string) (int64, error)
	Credit(ctx context.Context, userID string, amount int64, kind Kind, orderID string) error
}

// BalanceFrom derives a balance from raw entries: the running sum of deltas,
// skipping entries already past their expiry.
func BalanceFrom(entries []Entry, now time.Time) int64 {
	var sum int64
	for _, e := range entries {
		if e.ExpiresAt != nil && e.ExpiresAt.Before(now) {
			continue
		}
		sum += e.Delta
	}
	return sum
}
