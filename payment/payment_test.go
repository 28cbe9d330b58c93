package payment_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nanoavatar/avatar-engine/ledger"
	"github.com/nanoavatar/avatar-engine/ledger/store"
	"github.com/nanoavatar/avatar-engine/payment"
)

// =============================================================================
// TEST SETUP
// =============================================================================

const startingBalance = 15

func newTestService(t *testing.T) (*payment.Service, *ledger.Ledger) {
	t.Helper()
	l := ledger.NewLedger(store.NewMemory(), startingBalance)
	_, err := l.EnsureAccount(context.Background(), 100, "alice")
	require.NoError(t, err)

	svc := payment.NewService(l, payment.Config{
		MinTopupRub:   100,
		CreditsPerRub: 1,
		Currency:      "RUB",
	})
	return svc, l
}

// =============================================================================
// INVOICE CREATION
// =============================================================================

func TestService_CreateInvoice_PassesThroughAboveMinimum(t *testing.T) {
	svc, _ := newTestService(t)

	inv := svc.CreateInvoice(100, 300)
	assert.Equal(t, int64(300), inv.AmountRub)
	assert.Equal(t, "TOPUP_300", inv.Payload)
	assert.Equal(t, ledger.Identity(100), inv.Identity)
}

func TestService_CreateInvoice_ClampsUpToMinimum(t *testing.T) {
	svc, _ := newTestService(t)

	for _, requested := range []int64{1, 50, 99} {
		inv := svc.CreateInvoice(100, requested)
		assert.Equal(t, int64(100), inv.AmountRub, "requested %d", requested)
		assert.Equal(t, "TOPUP_100", inv.Payload)
	}

	// Exactly the minimum is not clamped.
	inv := svc.CreateInvoice(100, 100)
	assert.Equal(t, int64(100), inv.AmountRub)
}

// =============================================================================
// PRE-CHECKOUT
// =============================================================================

func TestService_ApprovePreCheckout(t *testing.T) {
	svc, _ := newTestService(t)

	assert.NoError(t, svc.ApprovePreCheckout("TOPUP_300"))
	assert.ErrorIs(t, svc.ApprovePreCheckout("SOMETHING_ELSE"), payment.ErrUnknownPayload)
	assert.ErrorIs(t, svc.ApprovePreCheckout(""), payment.ErrUnknownPayload)
}

// =============================================================================
// SETTLEMENT
// =============================================================================

func TestService_HandleCompleted_CreditsLedger(t *testing.T) {
	// GIVEN: An invoice for 300 RUB at 1 credit/RUB
	// WHEN: The provider reports 30000 kopecks completed
	// THEN: Balance rises by 300 with one TOPUP entry carrying the payload

	svc, l := newTestService(t)
	ctx := context.Background()

	credits, newBalance, err := svc.HandleCompleted(ctx, 100, 30000, "TOPUP_300")
	require.NoError(t, err)
	assert.Equal(t, int64(300), credits)
	assert.Equal(t, int64(startingBalance+300), newBalance)

	entries, err := l.Entries(ctx, 100)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, ledger.KindTopup, entries[0].Kind)
	assert.Equal(t, int64(300), entries[0].Amount)
	assert.Equal(t, "TOPUP_300", entries[0].Payload)
}

func TestService_HandleCompleted_RejectsForeignPayload(t *testing.T) {
	svc, l := newTestService(t)
	ctx := context.Background()

	_, _, err := svc.HandleCompleted(ctx, 100, 30000, "GIFT_CARD")
	assert.ErrorIs(t, err, payment.ErrUnknownPayload)

	entries, err := l.Entries(ctx, 100)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestService_HandleCompleted_RejectsZeroCredits(t *testing.T) {
	svc, l := newTestService(t)

	_, _, err := svc.HandleCompleted(context.Background(), 100, 0, "TOPUP_0")
	assert.ErrorIs(t, err, payment.ErrZeroAmount)

	entries, err := l.Entries(context.Background(), 100)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestService_HandleCompleted_SubRubleRemainderTruncates(t *testing.T) {
	// 150.49 RUB at 1 credit/RUB is 150 credits; kopecks never round up.
	svc, _ := newTestService(t)

	credits, _, err := svc.HandleCompleted(context.Background(), 100, 15049, "TOPUP_150")
	require.NoError(t, err)
	assert.Equal(t, int64(150), credits)
}

func TestService_HandleCompleted_AppliesConversionRate(t *testing.T) {
	l := ledger.NewLedger(store.NewMemory(), startingBalance)
	_, err := l.EnsureAccount(context.Background(), 100, "alice")
	require.NoError(t, err)
	svc := payment.NewService(l, payment.Config{MinTopupRub: 100, CreditsPerRub: 2, Currency: "RUB"})

	credits, _, err := svc.HandleCompleted(context.Background(), 100, 10000, "TOPUP_100")
	require.NoError(t, err)
	assert.Equal(t, int64(200), credits)
}
