package generation_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nanoavatar/avatar-engine/catalog"
	"github.com/nanoavatar/avatar-engine/generation"
	"github.com/nanoavatar/avatar-engine/ledger"
	"github.com/nanoavatar/avatar-engine/ledger/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

const (
	startingBalance = 15
	price           = 1
)

// fakeGenerator scripts the backend outcome and records what it was asked.
type fakeGenerator struct {
	result     []byte
	err        error
	delay      time.Duration
	lastPrompt string
	calls      int
}

func (f *fakeGenerator) Generate(ctx context.Context, prompt string, _ []byte) ([]byte, error) {
	f.calls++
	f.lastPrompt = prompt
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.result, f.err
}

// failingStore wraps the memory store and fails ApplyDelta after a scripted
// number of successful calls, to simulate storage dying mid-protocol.
type failingStore struct {
	ledger.Store
	failAfter int
	deltas    int
}

func (f *failingStore) ApplyDelta(ctx context.Context, id ledger.Identity, delta int64, kind ledger.EntryKind, payload string) (int64, error) {
	f.deltas++
	if f.deltas > f.failAfter {
		return 0, errors.New("storage unavailable")
	}
	return f.Store.ApplyDelta(ctx, id, delta, kind, payload)
}

func testCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	c, err := catalog.NewBuilder().
		Category("root", "Menu", "").
		Leaf("soft_glam", "Soft glam", "", "soft glam makeup", "root").
		Leaf("evening", "Evening", "", "evening look", "root").
		Leaf("blank", "Blank", "", "", "root").
		Build()
	require.NoError(t, err)
	return c
}

func newTestRig(t *testing.T, gen generation.Generator) (*generation.Orchestrator, *ledger.Ledger) {
	l := ledger.NewLedger(store.NewMemory(), startingBalance)
	_, err := l.EnsureAccount(context.Background(), 100, "alice")
	require.NoError(t, err)
	return generation.NewOrchestrator(testCatalog(t), l, gen, price, time.Second), l
}

func kinds(t *testing.T, l *ledger.Ledger, id ledger.Identity) []ledger.EntryKind {
	t.Helper()
	entries, err := l.Entries(context.Background(), id)
	require.NoError(t, err)
	out := make([]ledger.EntryKind, len(entries))
	for i, e := range entries {
		out[i] = e.Kind
	}
	return out
}

// =============================================================================
// HAPPY PATH
// =============================================================================

func TestOrchestrator_Success_SpendStands(t *testing.T) {
	// GIVEN: Balance 15, price 1, a working backend
	// WHEN: Generating for one selected leaf
	// THEN: Balance 14, exactly one SPEND entry, the image comes back

	gen := &fakeGenerator{result: []byte("image-bytes")}
	o, l := newTestRig(t, gen)

	res, err := o.Run(context.Background(), generation.Request{
		Identity: 100,
		LeafIDs:  []string{"soft_glam"},
	})
	require.NoError(t, err)
	assert.Equal(t, []byte("image-bytes"), res.Image)
	assert.Equal(t, int64(startingBalance-price), res.NewBalance)
	assert.Equal(t, "soft glam makeup", res.Prompt)

	balance, err := l.Balance(context.Background(), 100)
	require.NoError(t, err)
	assert.Equal(t, int64(startingBalance-price), balance)
	assert.Equal(t, []ledger.EntryKind{ledger.KindSpend}, kinds(t, l, 100))
}

func TestOrchestrator_PromptCombinesFragmentsAndText(t *testing.T) {
	gen := &fakeGenerator{result: []byte("ok")}
	o, _ := newTestRig(t, gen)

	_, err := o.Run(context.Background(), generation.Request{
		Identity: 100,
		LeafIDs:  []string{"soft_glam", "evening"},
		FreeText: "golden hour",
	})
	require.NoError(t, err)
	assert.Equal(t, "soft glam makeup. evening look. golden hour", gen.lastPrompt)
}

func TestOrchestrator_EmptyPromptRejectedBeforeLedger(t *testing.T) {
	gen := &fakeGenerator{result: []byte("ok")}
	o, l := newTestRig(t, gen)

	_, err := o.Run(context.Background(), generation.Request{
		Identity: 100,
		LeafIDs:  []string{"blank"},
	})
	assert.ErrorIs(t, err, generation.ErrEmptyPrompt)
	assert.Zero(t, gen.calls)
	assert.Empty(t, kinds(t, l, 100))
}

// =============================================================================
// FAILURE & REFUND
// =============================================================================

func TestOrchestrator_BackendFailure_RefundsWithMatchingTag(t *testing.T) {
	// GIVEN: A backend that fails
	// WHEN: Generating
	// THEN: Balance is back to 15, SPEND and REFUND entries share the tag

	gen := &fakeGenerator{err: errors.New("upstream 502")}
	o, l := newTestRig(t, gen)

	_, err := o.Run(context.Background(), generation.Request{
		Identity: 100,
		LeafIDs:  []string{"soft_glam"},
	})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ledger.ErrInsufficientCredits)

	balance, err := l.Balance(context.Background(), 100)
	require.NoError(t, err)
	assert.Equal(t, int64(startingBalance), balance)

	entries, err := l.Entries(context.Background(), 100)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, ledger.KindSpend, entries[0].Kind)
	assert.Equal(t, ledger.KindRefund, entries[1].Kind)
	assert.Equal(t, entries[0].Payload, entries[1].Payload)
}

func TestOrchestrator_Timeout_TreatedAsFailure(t *testing.T) {
	// A backend slower than the orchestrator timeout refunds like any error.
	gen := &fakeGenerator{result: []byte("late"), delay: 5 * time.Second}
	l := ledger.NewLedger(store.NewMemory(), startingBalance)
	_, err := l.EnsureAccount(context.Background(), 100, "alice")
	require.NoError(t, err)
	o := generation.NewOrchestrator(testCatalog(t), l, gen, price, 50*time.Millisecond)

	_, err = o.Run(context.Background(), generation.Request{
		Identity: 100,
		LeafIDs:  []string{"soft_glam"},
	})
	require.Error(t, err)

	balance, err := l.Balance(context.Background(), 100)
	require.NoError(t, err)
	assert.Equal(t, int64(startingBalance), balance)
	assert.Equal(t, []ledger.EntryKind{ledger.KindSpend, ledger.KindRefund}, kinds(t, l, 100))
}

func TestOrchestrator_RefundFailure_EscalatesAsInconsistency(t *testing.T) {
	// GIVEN: A backend that fails AND storage that dies right after the debit
	// WHEN: Generating
	// THEN: A LedgerInconsistencyError comes back, not a plain failure

	mem := store.NewMemory()
	fs := &failingStore{Store: mem, failAfter: 1} // debit succeeds, refund fails
	l := ledger.NewLedger(fs, startingBalance)
	_, err := l.EnsureAccount(context.Background(), 100, "alice")
	require.NoError(t, err)

	gen := &fakeGenerator{err: errors.New("upstream 502")}
	o := generation.NewOrchestrator(testCatalog(t), l, gen, price, time.Second)

	_, err = o.Run(context.Background(), generation.Request{
		Identity: 100,
		LeafIDs:  []string{"soft_glam"},
	})
	require.Error(t, err)

	var incErr *generation.LedgerInconsistencyError
	require.ErrorAs(t, err, &incErr)
	assert.Equal(t, ledger.Identity(100), incErr.Identity)
	assert.Equal(t, int64(price), incErr.Amount)
}

// =============================================================================
// INSUFFICIENT CREDITS
// =============================================================================

func TestOrchestrator_ZeroBalance_FailsFastWithNoEntries(t *testing.T) {
	// GIVEN: Balance 0
	// WHEN: Generating
	// THEN: InsufficientCredits, zero ledger entries, backend never called

	gen := &fakeGenerator{result: []byte("ok")}
	o, l := newTestRig(t, gen)
	ctx := context.Background()

	_, err := l.Debit(ctx, 100, startingBalance, ledger.KindSpend, "drain")
	require.NoError(t, err)

	_, err = o.Run(ctx, generation.Request{Identity: 100, LeafIDs: []string{"soft_glam"}})
	require.Error(t, err)

	var insErr *ledger.InsufficientCreditsError
	require.ErrorAs(t, err, &insErr)
	assert.Equal(t, int64(0), insErr.Balance)
	assert.Zero(t, gen.calls, "backend must not be called without funds")

	entries, err := l.Entries(ctx, 100)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "only the draining debit")
}
