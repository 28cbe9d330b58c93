/*
Package ledger owns credit balances and their transaction history.

PURPOSE:
  Every balance change in the system goes through this package: spending a
  credit on a generation, refunding it when the backend fails, topping up
  after a payment, and the daily bonus. The entry log is append-only and the
  cached balance is maintained transactionally alongside it, so for any
  account: balance == sum(entries.Amount) after every committed operation.

KEY CONCEPTS IN THIS FILE (types.go):
  - Identity: the external chat identity an account is keyed by
  - Entry:    one immutable ledger line (signed amount + correlation payload)
  - Account:  the cached projection (balance, last bonus day)
  - Day:      a calendar date in the bonus anchor timezone, used as the
              idempotency key for the once-per-day grant

DESIGN PRINCIPLES:
  1. Append-only history: corrections are compensating entries, never edits
  2. Per-account atomicity: debit/credit/grant are serialized per identity
     by the Store; different accounts never contend
  3. Debit-before-spend: a debit either commits with its entry or not at all,
     so the expensive external call is always paid for up front and refunded
     on failure

SEE ALSO:
  - ledger.go: The operations (Debit, Credit, GrantOncePerDay)
  - store.go:  The persistence contract
  - generation/: The debit/refund protocol around the external call
*/
package ledger

import (
	"time"
)

// =============================================================================
// IDENTITY
// =============================================================================

// Identity is the stable external user key (the chat id). The ledger treats
// it as opaque.
type Identity int64

// =============================================================================
// ENTRY - One immutable ledger line
// =============================================================================

type EntryKind string

const (
	KindSpend      EntryKind = "SPEND"       // generation debit (negative amount)
	KindRefund     EntryKind = "REFUND"      // compensating credit after a failed generation
	KindTopup      EntryKind = "TOPUP"       // paid top-up
	KindDailyBonus EntryKind = "DAILY_BONUS" // recurring free credit
)

// Entry records a single balance change. Amount is signed: debits are
// negative, credits positive. Payload is an opaque correlation tag - the
// selected leaf id for a SPEND, the same tag for its matching REFUND, the
// invoice payload for a TOPUP, the grant day for a DAILY_BONUS.
type Entry struct {
	ID        int64
	Identity  Identity
	Kind      EntryKind
	Amount    int64
	Payload   string
	CreatedAt time.Time
}

// =============================================================================
// ACCOUNT - Cached projection of the entry log
// =============================================================================

// Account is the per-identity row the Store keeps transactionally in sync
// with the entry log. Balance never goes below zero in a committed state.
type Account struct {
	Identity     Identity
	DisplayName  string
	Balance      int64
	LastBonusDay Day // zero value = never granted
}

// =============================================================================
// DAY - Calendar date period key
// =============================================================================

// Day is a calendar date in ISO form ("2006-01-02"). ISO dates compare
// correctly as strings, which is what the once-per-day grant relies on.
type Day string

// DayOf returns the calendar date of t in the given location.
func DayOf(t time.Time, loc *time.Location) Day {
	return Day(t.In(loc).Format("2006-01-02"))
}

func (d Day) IsZero() bool      { return d == "" }
func (d Day) Before(o Day) bool { return d < o }
func (d Day) String() string    { return string(d) }

// Next returns the following calendar day. Used only by tests and tooling;
// the scheduler derives days from wall-clock time.
func (d Day) Next() Day {
	t, err := time.Parse("2006-01-02", string(d))
	if err != nil {
		return d
	}
	return Day(t.AddDate(0, 0, 1).Format("2006-01-02"))
}
