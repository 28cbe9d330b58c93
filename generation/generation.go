/*
Package generation pairs a ledger debit with the external image call.

PURPOSE:
  This is the one place the catalog, the ledger, and the external backend
  meet. The protocol gives "pay only for a successful result" semantics
  without a two-phase commit:

    1. Fail fast if the balance cannot cover the price (no debit, no call).
    2. Debit the price. A race since step 1 surfaces here and aborts.
    3. Invoke the backend, bounded by a timeout. No ledger lock is held
       while the call is in flight.
    4. Success: return the result. The spend stands.
    5. Any failure: credit the price back with the same correlation tag,
       then report the failure. A refund that itself fails is escalated as
       a LedgerInconsistencyError - that is the one condition requiring
       human reconciliation, and it must never be swallowed.

  The refund-by-compensating-credit is a deliberate trade-off: the backend
  offers no transactional handshake, so the ledger reserves funds up front
  and unwinds on failure.

INVARIANT:
  Every SPEND entry is eventually matched by a usable result or by exactly
  one REFUND entry with the same correlation tag.

SEE ALSO:
  - ledger/: Debit and Credit
  - ai/: The production backend client
*/
package generation

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/nanoavatar/avatar-engine/catalog"
	"github.com/nanoavatar/avatar-engine/ledger"
)

// =============================================================================
// COLLABORATOR CONTRACT
// =============================================================================

// Generator is the external image backend. It may be slow and may fail; the
// orchestrator treats every failure uniformly and owns no retry logic.
type Generator interface {
	Generate(ctx context.Context, prompt string, sourceImage []byte) ([]byte, error)
}

// =============================================================================
// ERRORS
// =============================================================================

// ErrEmptyPrompt is returned when the request resolves to no prompt text at
// all (no leaf fragments and no free text).
var ErrEmptyPrompt = errors.New("nothing to generate from")

// LedgerInconsistencyError reports a refund that could not be recorded: a
// SPEND entry now dangles without its REFUND. Operational alert material,
// never a plain user-facing error.
type LedgerInconsistencyError struct {
	Identity ledger.Identity
	Amount   int64
	Tag      string
	Cause    error
}

func (e *LedgerInconsistencyError) Error() string {
	return fmt.Sprintf("ledger inconsistency: refund of %d for %s (tag %s) failed: %v",
		e.Amount, formatIdentity(e.Identity), e.Tag, e.Cause)
}

func (e *LedgerInconsistencyError) Unwrap() error { return e.Cause }

func formatIdentity(id ledger.Identity) string { return fmt.Sprintf("account %d", id) }

// =============================================================================
// REQUEST / RESULT
// =============================================================================

// Request is one generation attempt. LeafIDs come from the session's
// selection (one leaf under single-select, the active set under multi);
// FreeText and Caption are optional user text appended to the prompt.
type Request struct {
	Identity    ledger.Identity
	LeafIDs     []string
	FreeText    string
	Caption     string
	SourceImage []byte
}

// Result is a successful generation.
type Result struct {
	Image      []byte
	Prompt     string
	NewBalance int64
}

// =============================================================================
// ORCHESTRATOR
// =============================================================================

// Orchestrator runs the debit / generate / refund-on-failure protocol.
type Orchestrator struct {
	catalog   *catalog.Catalog
	ledger    *ledger.Ledger
	generator Generator
	price     int64
	timeout   time.Duration
}

// NewOrchestrator creates an orchestrator. price is the per-call cost in
// credits; timeout bounds the external call (a timeout refunds like any
// other failure).
func NewOrchestrator(c *catalog.Catalog, l *ledger.Ledger, g Generator, price int64, timeout time.Duration) *Orchestrator {
	return &Orchestrator{catalog: c, ledger: l, generator: g, price: price, timeout: timeout}
}

// Price returns the per-call cost in credits.
func (o *Orchestrator) Price() int64 { return o.price }

// Run executes one generation end to end. User-recoverable failures come
// back as *ledger.InsufficientCreditsError or ErrEmptyPrompt; backend
// failures are returned after the refund has been recorded.
func (o *Orchestrator) Run(ctx context.Context, req Request) (Result, error) {
	prompt, err := o.resolvePrompt(req)
	if err != nil {
		return Result{}, err
	}
	tag := correlationTag(req.LeafIDs)

	// Fail fast before touching the balance.
	balance, err := o.ledger.Balance(ctx, req.Identity)
	if err != nil {
		return Result{}, err
	}
	if balance < o.price {
		return Result{}, &ledger.InsufficientCreditsError{
			Identity:  req.Identity,
			Balance:   balance,
			Requested: o.price,
		}
	}

	// Reserve the funds. A concurrent spend since the read surfaces here.
	newBalance, err := o.ledger.Debit(ctx, req.Identity, o.price, ledger.KindSpend, tag)
	if err != nil {
		return Result{}, err
	}

	callCtx, cancel := context.WithTimeout(ctx, o.timeout)
	image, genErr := o.generator.Generate(callCtx, prompt, req.SourceImage)
	cancel()
	if genErr == nil {
		return Result{Image: image, Prompt: prompt, NewBalance: newBalance}, nil
	}

	log.Printf("[Generation] backend call failed for account %d (tag %s): %v", req.Identity, tag, genErr)

	// Unwind. The refund context is fresh: a caller cancellation must not
	// leave the spend dangling.
	refundCtx, cancelRefund := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelRefund()
	if _, refundErr := o.ledger.Credit(refundCtx, req.Identity, o.price, ledger.KindRefund, tag); refundErr != nil {
		return Result{}, &LedgerInconsistencyError{
			Identity: req.Identity,
			Amount:   o.price,
			Tag:      tag,
			Cause:    refundErr,
		}
	}
	return Result{}, fmt.Errorf("generation failed: %w", genErr)
}

// resolvePrompt combines the selected leaves' fragments with the user's
// text, regardless of which selection policy produced the leaf list.
func (o *Orchestrator) resolvePrompt(req Request) (string, error) {
	var parts []string
	for _, leafID := range req.LeafIDs {
		node, err := o.catalog.Get(leafID)
		if err != nil {
			return "", err
		}
		if node.PromptFragment != "" {
			parts = append(parts, node.PromptFragment)
		}
	}
	for _, text := range []string{req.Caption, req.FreeText} {
		if t := strings.TrimSpace(text); t != "" {
			parts = append(parts, t)
		}
	}
	if len(parts) == 0 {
		return "", ErrEmptyPrompt
	}
	return strings.Join(parts, ". "), nil
}

func correlationTag(leafIDs []string) string {
	return "gen:" + strings.Join(leafIDs, "+")
}
