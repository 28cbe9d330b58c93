/*
store.go - Persistence contract for accounts and the entry log

PURPOSE:
  Defines what the ledger needs from storage: a per-identity row with atomic
  conditional read-modify-write, plus an append-only entry log written in the
  same transaction. Any transactional key-value or relational store can
  satisfy this; the repo ships SQLite (production) and in-memory (tests).

ATOMICITY CONTRACT:
  - ApplyDelta and ApplyGrant mutate the balance and append the entry as one
    atomic unit: both happen or neither does.
  - Operations on the same identity are serialized by the implementation;
    operations on different identities may run in parallel.
  - ApplyGrant's compare-and-advance of the last bonus day is part of the
    same atomic unit, which is what makes the daily grant idempotent under
    concurrent scheduler runs.

IMPLEMENTATIONS:
  - store/sqlite:      conditional UPDATE + entry INSERT in one transaction
  - ledger/store:      in-memory, mutex-serialized

SEE ALSO:
  - ledger.go: The operation layer on top of this contract
*/
package ledger

import "context"

// Store is the persistence backend for accounts and entries.
type Store interface {
	// EnsureAccount creates the account with the given starting balance if
	// absent (reporting created=true), otherwise refreshes the display name.
	EnsureAccount(ctx context.Context, id Identity, displayName string, initialBalance int64) (created bool, err error)

	// GetAccount returns the account row, or ErrAccountNotFound.
	GetAccount(ctx context.Context, id Identity) (Account, error)

	// Identities returns every known account identity.
	Identities(ctx context.Context) ([]Identity, error)

	// ApplyDelta atomically adjusts the balance by delta and appends the
	// entry. A negative delta that would take the balance below zero fails
	// with ErrInsufficientCredits and writes nothing.
	ApplyDelta(ctx context.Context, id Identity, delta int64, kind EntryKind, payload string) (newBalance int64, err error)

	// ApplyGrant credits amount and advances the stored last bonus day to
	// day - but only when the stored day is absent or strictly earlier.
	// Otherwise it reports granted=false and changes nothing. The
	// compare-and-advance, the credit, and the entry are one atomic unit.
	ApplyGrant(ctx context.Context, id Identity, amount int64, day Day, kind EntryKind, payload string) (granted bool, newBalance int64, err error)

	// Entries returns the account's full entry history in append order.
	Entries(ctx context.Context, id Identity) ([]Entry, error)
}
