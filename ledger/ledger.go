/*
ledger.go - The credit ledger operations

PURPOSE:
  The Ledger is the one place balances change. It validates amounts, signs
  them by operation, and delegates atomicity to the Store.

OPERATIONS:
  EnsureAccount:   idempotent account creation with the starting balance
  Balance:         read the cached projection
  Debit:           atomic spend; fails with ErrInsufficientCredits, never
                   leaves a partial state
  Credit:          unconditional credit (refund, top-up); credits cannot
                   be refused
  GrantOncePerDay: idempotent daily bonus keyed by calendar date

INVARIANTS:
  - balance == sum(entries) for every account after every operation
  - a failed Debit appends no entry
  - GrantOncePerDay for the same (identity, day) credits exactly once,
    regardless of retries, restarts, or concurrent scheduler runs
*/
package ledger

import (
	"context"
	"errors"
	"fmt"
)

// Ledger exposes the credit operations over a Store.
type Ledger struct {
	store          Store
	initialBalance int64
}

// NewLedger creates a ledger. initialBalance is the balance a brand-new
// account starts with.
func NewLedger(store Store, initialBalance int64) *Ledger {
	return &Ledger{store: store, initialBalance: initialBalance}
}

// EnsureAccount registers the identity if unknown, returning whether this
// call created it (callers use that to trigger the welcome flow).
func (l *Ledger) EnsureAccount(ctx context.Context, id Identity, displayName string) (bool, error) {
	return l.store.EnsureAccount(ctx, id, displayName, l.initialBalance)
}

// Balance returns the current balance for a known identity.
func (l *Ledger) Balance(ctx context.Context, id Identity) (int64, error) {
	acct, err := l.store.GetAccount(ctx, id)
	if err != nil {
		return 0, err
	}
	return acct.Balance, nil
}

// Account returns the full account projection (balance, display name,
// last bonus day).
func (l *Ledger) Account(ctx context.Context, id Identity) (Account, error) {
	return l.store.GetAccount(ctx, id)
}

// Debit atomically removes amount credits. On a shortfall it returns an
// *InsufficientCreditsError and the ledger is untouched.
func (l *Ledger) Debit(ctx context.Context, id Identity, amount int64, kind EntryKind, payload string) (int64, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("%w: %d", ErrInvalidAmount, amount)
	}
	newBalance, err := l.store.ApplyDelta(ctx, id, -amount, kind, payload)
	if errors.Is(err, ErrInsufficientCredits) {
		balance, berr := l.Balance(ctx, id)
		if berr != nil {
			balance = 0
		}
		return 0, &InsufficientCreditsError{Identity: id, Balance: balance, Requested: amount}
	}
	return newBalance, err
}

// Credit atomically adds amount credits. Credits cannot be refused; an error
// here means the store itself failed, which callers must treat as a ledger
// inconsistency rather than a user-facing condition.
func (l *Ledger) Credit(ctx context.Context, id Identity, amount int64, kind EntryKind, payload string) (int64, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("%w: %d", ErrInvalidAmount, amount)
	}
	return l.store.ApplyDelta(ctx, id, amount, kind, payload)
}

// GrantOncePerDay credits amount at most once per calendar day. It reports
// granted=false when the account's stored last-grant day is day or later -
// the expected outcome on a same-day re-run.
func (l *Ledger) GrantOncePerDay(ctx context.Context, id Identity, amount int64, day Day) (bool, error) {
	if amount <= 0 {
		return false, fmt.Errorf("%w: %d", ErrInvalidAmount, amount)
	}
	granted, _, err := l.store.ApplyGrant(ctx, id, amount, day, KindDailyBonus, "daily_bonus:"+string(day))
	return granted, err
}

// Entries returns the append-ordered history for an account.
func (l *Ledger) Entries(ctx context.Context, id Identity) ([]Entry, error) {
	return l.store.Entries(ctx, id)
}

// Identities returns every known account, for the bonus scheduler sweep.
func (l *Ledger) Identities(ctx context.Context) ([]Identity, error) {
	return l.store.Identities(ctx)
}
