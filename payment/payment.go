/*
Package payment turns completed checkout events into TOPUP credits.

PURPOSE:
  The user names an amount in rubles; we clamp it up to the provider's
  minimum, issue an invoice tagged with an opaque payload, approve the
  pre-checkout query, and on the completed-payment event convert the
  provider's minor units (kopecks) back into credits and record a single
  TOPUP ledger entry.

MONEY MATH:
  Conversions go through decimals, not floats: 30000 kopecks is exactly
  300 rubles, and at the configured credits-per-ruble rate that is exactly
  300 credits. IntPart truncation only ever drops sub-credit remainders.

TRUST BOUNDARY:
  Payment authenticity is the provider's job. This package validates only
  the payload shape it issued itself.

SEE ALSO:
  - ledger/: Credit with KindTopup
  - bot/router.go: The top-up dialog that feeds CreateInvoice
*/
package payment

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/nanoavatar/avatar-engine/ledger"
)

// payloadPrefix tags invoices issued by this service so completed-payment
// events can be matched back to a top-up.
const payloadPrefix = "TOPUP_"

var (
	// ErrUnknownPayload: a payment completed with a payload this service
	// never issued.
	ErrUnknownPayload = errors.New("unknown payment payload")

	// ErrZeroAmount: the completed payment converts to zero credits.
	ErrZeroAmount = errors.New("payment amount converts to zero credits")
)

// Config holds the deployment's pricing knobs.
type Config struct {
	MinTopupRub   int64  // requested amounts below this are raised to it
	CreditsPerRub int64  // conversion rate applied to completed payments
	Currency      string // ISO code passed through to the provider
}

// Invoice is the logical checkout request handed to the payment provider.
type Invoice struct {
	Identity    ledger.Identity
	AmountRub   int64
	Title       string
	Description string
	Payload     string
}

// Service issues invoices and settles completed payments into the ledger.
type Service struct {
	ledger *ledger.Ledger
	cfg    Config
}

func NewService(l *ledger.Ledger, cfg Config) *Service {
	return &Service{ledger: l, cfg: cfg}
}

// MinTopupRub returns the provider minimum, for user messaging.
func (s *Service) MinTopupRub() int64 { return s.cfg.MinTopupRub }

// CreateInvoice builds the checkout request for a requested ruble amount,
// clamping up to the configured minimum. The clamp is announced to the user
// by the caller; it is never silent shrinkage, only growth.
func (s *Service) CreateInvoice(id ledger.Identity, requestedRub int64) Invoice {
	amount := requestedRub
	if amount < s.cfg.MinTopupRub {
		amount = s.cfg.MinTopupRub
	}
	return Invoice{
		Identity:    id,
		AmountRub:   amount,
		Title:       "Credit top-up",
		Description: fmt.Sprintf("%d credit(s) for generations", amount*s.cfg.CreditsPerRub),
		Payload:     fmt.Sprintf("%s%d", payloadPrefix, amount),
	}
}

// ApprovePreCheckout validates the payload before the provider charges the
// user. Rejecting here cancels the checkout cleanly.
func (s *Service) ApprovePreCheckout(payload string) error {
	if !strings.HasPrefix(payload, payloadPrefix) {
		return fmt.Errorf("%w: %q", ErrUnknownPayload, payload)
	}
	return nil
}

// HandleCompleted settles a completed payment: amountMinorUnits (kopecks)
// becomes rubles, rubles become credits at the configured rate, and a single
// TOPUP entry is recorded with the invoice payload as its correlation tag.
func (s *Service) HandleCompleted(ctx context.Context, id ledger.Identity, amountMinorUnits int64, payload string) (credits int64, newBalance int64, err error) {
	if !strings.HasPrefix(payload, payloadPrefix) {
		return 0, 0, fmt.Errorf("%w: %q", ErrUnknownPayload, payload)
	}

	rub := decimal.NewFromInt(amountMinorUnits).Div(decimal.NewFromInt(100))
	credits = rub.Mul(decimal.NewFromInt(s.cfg.CreditsPerRub)).IntPart()
	if credits <= 0 {
		return 0, 0, fmt.Errorf("%w: %d minor units", ErrZeroAmount, amountMinorUnits)
	}

	newBalance, err = s.ledger.Credit(ctx, id, credits, ledger.KindTopup, payload)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to record top-up: %w", err)
	}

	log.Printf("[Payment] Account %d topped up: %s RUB -> %d credit(s), balance %d",
		id, rub.StringFixed(2), credits, newBalance)
	return credits, newBalance, nil
}
