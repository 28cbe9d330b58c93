package bot_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nanoavatar/avatar-engine/bot"
	"github.com/nanoavatar/avatar-engine/catalog"
	"github.com/nanoavatar/avatar-engine/generation"
	"github.com/nanoavatar/avatar-engine/ledger"
	"github.com/nanoavatar/avatar-engine/ledger/store"
	"github.com/nanoavatar/avatar-engine/payment"
	"github.com/nanoavatar/avatar-engine/session"
)

// =============================================================================
// TEST DOUBLES
// =============================================================================

type sentText struct {
	chat ledger.Identity
	text string
	menu *bot.Menu
}

// fakeTransport records every outbound call.
type fakeTransport struct {
	texts    []sentText
	edits    []sentText
	images   [][]byte
	captions []string
	invoices []payment.Invoice
}

func (f *fakeTransport) SendText(_ context.Context, chat ledger.Identity, text string, menu *bot.Menu) error {
	f.texts = append(f.texts, sentText{chat: chat, text: text, menu: menu})
	return nil
}

func (f *fakeTransport) EditText(_ context.Context, chat ledger.Identity, _ int64, text string, menu *bot.Menu) error {
	f.edits = append(f.edits, sentText{chat: chat, text: text, menu: menu})
	return nil
}

func (f *fakeTransport) SendImage(_ context.Context, _ ledger.Identity, image []byte, caption string) error {
	f.images = append(f.images, image)
	f.captions = append(f.captions, caption)
	return nil
}

func (f *fakeTransport) SendInvoice(_ context.Context, inv payment.Invoice) error {
	f.invoices = append(f.invoices, inv)
	return nil
}

func (f *fakeTransport) lastText(t *testing.T) sentText {
	t.Helper()
	require.NotEmpty(t, f.texts)
	return f.texts[len(f.texts)-1]
}

type fakeGenerator struct {
	result []byte
	err    error
}

func (f *fakeGenerator) Generate(context.Context, string, []byte) ([]byte, error) {
	return f.result, f.err
}

// =============================================================================
// TEST SETUP
// =============================================================================

const startingBalance = 15

type rig struct {
	router    *bot.Router
	transport *fakeTransport
	ledger    *ledger.Ledger
	generator *fakeGenerator
}

func newRig(t *testing.T, policy session.SelectionPolicy) *rig {
	t.Helper()
	c, err := catalog.NewBuilder().
		Category("root", "Menu", "").
		Category("cat_glam", "Glam", "root").
		Leaf("soft_glam", "Soft glam", "Natural tones, soft light", "soft glam makeup", "cat_glam").
		Leaf("evening", "Evening", "", "evening look", "cat_glam").
		Build()
	require.NoError(t, err)

	l := ledger.NewLedger(store.NewMemory(), startingBalance)
	gen := &fakeGenerator{result: []byte("image-bytes")}
	orch := generation.NewOrchestrator(c, l, gen, 1, time.Second)
	payments := payment.NewService(l, payment.Config{MinTopupRub: 100, CreditsPerRub: 1, Currency: "RUB"})
	transport := &fakeTransport{}
	machine := session.NewMachine(c, policy)
	router := bot.NewRouter(c, session.NewStore(c.RootID()), machine, l, orch, payments, transport)

	return &rig{router: router, transport: transport, ledger: l, generator: gen}
}

// =============================================================================
// CALLBACK DECODING
// =============================================================================

func TestDecodeTap(t *testing.T) {
	tap, err := bot.DecodeTap("NODE:cat_glam")
	require.NoError(t, err)
	assert.Equal(t, bot.TapOpenNode{NodeID: "cat_glam"}, tap)

	tap, err = bot.DecodeTap("BACK:root")
	require.NoError(t, err)
	assert.Equal(t, bot.TapBack{NodeID: "root"}, tap)

	tap, err = bot.DecodeTap("SELECT:soft_glam")
	require.NoError(t, err)
	assert.Equal(t, bot.TapSelect{NodeID: "soft_glam"}, tap)

	tap, err = bot.DecodeTap("EXAMPLE:soft_glam")
	require.NoError(t, err)
	assert.Equal(t, bot.TapExample{NodeID: "soft_glam"}, tap)

	tap, err = bot.DecodeTap("BALANCE")
	require.NoError(t, err)
	assert.Equal(t, bot.TapBalance{}, tap)

	tap, err = bot.DecodeTap("TOPUP")
	require.NoError(t, err)
	assert.Equal(t, bot.TapTopup{}, tap)

	_, err = bot.DecodeTap("MYSTERY:x")
	assert.ErrorIs(t, err, bot.ErrUnknownCallback)
}

// =============================================================================
// START & BALANCE
// =============================================================================

func TestRouter_Start_WelcomesNewcomerAndShowsMenu(t *testing.T) {
	r := newRig(t, session.SelectSingle)
	ctx := context.Background()

	require.NoError(t, r.router.HandleStart(ctx, 100, "alice"))

	require.Len(t, r.transport.texts, 2)
	assert.Contains(t, r.transport.texts[0].text, "15 free credit")
	menuMsg := r.transport.texts[1]
	require.NotNil(t, menuMsg.menu)
	assert.NotEmpty(t, menuMsg.menu.Rows)

	// Second /start: no welcome, just the menu.
	r.transport.texts = nil
	require.NoError(t, r.router.HandleStart(ctx, 100, "alice"))
	require.Len(t, r.transport.texts, 1)
	assert.NotNil(t, r.transport.texts[0].menu)
}

func TestRouter_BalanceCommand(t *testing.T) {
	r := newRig(t, session.SelectSingle)
	ctx := context.Background()

	require.NoError(t, r.router.HandleBalance(ctx, 100, "alice"))
	assert.Contains(t, r.transport.lastText(t).text, "15 credit")
}

// =============================================================================
// GENERATION FLOW (single policy)
// =============================================================================

func TestRouter_SelectThenPhoto_SendsImageAndSpendsCredit(t *testing.T) {
	// Scenario: select a leaf, submit a photo, backend succeeds.
	r := newRig(t, session.SelectSingle)
	ctx := context.Background()
	require.NoError(t, r.router.HandleStart(ctx, 100, "alice"))

	require.NoError(t, r.router.HandleTap(ctx, 100, 1, "NODE:cat_glam"))
	require.NoError(t, r.router.HandleTap(ctx, 100, 1, "SELECT:soft_glam"))
	assert.Contains(t, r.transport.lastText(t).text, "send me the photo")

	require.NoError(t, r.router.HandlePhoto(ctx, 100, "alice", []byte("selfie"), ""))

	require.Len(t, r.transport.images, 1)
	assert.Equal(t, []byte("image-bytes"), r.transport.images[0])
	assert.Contains(t, r.transport.captions[0], "Balance: 14")

	balance, err := r.ledger.Balance(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, int64(startingBalance-1), balance)
}

func TestRouter_GenerationFailure_ApologizesAndRefunds(t *testing.T) {
	r := newRig(t, session.SelectSingle)
	r.generator.err = errors.New("upstream down")
	ctx := context.Background()
	require.NoError(t, r.router.HandleStart(ctx, 100, "alice"))
	require.NoError(t, r.router.HandleTap(ctx, 100, 1, "SELECT:soft_glam"))

	require.NoError(t, r.router.HandlePhoto(ctx, 100, "alice", []byte("selfie"), ""))

	assert.Contains(t, r.transport.lastText(t).text, "credit has been returned")
	assert.Empty(t, r.transport.images)

	balance, err := r.ledger.Balance(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, int64(startingBalance), balance)
}

func TestRouter_PhotoWithoutSelection_NoLedgerActivity(t *testing.T) {
	r := newRig(t, session.SelectSingle)
	ctx := context.Background()
	require.NoError(t, r.router.HandleStart(ctx, 100, "alice"))

	require.NoError(t, r.router.HandlePhoto(ctx, 100, "alice", []byte("selfie"), ""))

	assert.Contains(t, r.transport.lastText(t).text, "Pick a style")
	entries, err := r.ledger.Entries(ctx, 100)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRouter_InsufficientCredits_PointsToTopup(t *testing.T) {
	r := newRig(t, session.SelectSingle)
	ctx := context.Background()
	require.NoError(t, r.router.HandleStart(ctx, 100, "alice"))
	_, err := r.ledger.Debit(ctx, 100, startingBalance, ledger.KindSpend, "drain")
	require.NoError(t, err)

	require.NoError(t, r.router.HandleTap(ctx, 100, 1, "SELECT:soft_glam"))
	require.NoError(t, r.router.HandlePhoto(ctx, 100, "alice", []byte("selfie"), ""))

	last := r.transport.lastText(t).text
	assert.Contains(t, last, "you have 0")
	assert.Contains(t, last, "/topup")
}

// =============================================================================
// MULTI POLICY
// =============================================================================

func TestRouter_Multi_ToggleThenFreeText_Generates(t *testing.T) {
	r := newRig(t, session.SelectMulti)
	ctx := context.Background()
	require.NoError(t, r.router.HandleStart(ctx, 100, "alice"))

	require.NoError(t, r.router.HandleTap(ctx, 100, 1, "NODE:cat_glam"))
	require.NoError(t, r.router.HandleTap(ctx, 100, 1, "SELECT:soft_glam"))

	// The toggled menu marks the active leaf.
	lastEdit := r.transport.edits[len(r.transport.edits)-1]
	require.NotNil(t, lastEdit.menu)
	found := false
	for _, row := range lastEdit.menu.Rows {
		for _, b := range row {
			if strings.Contains(b.Label, "Soft glam") && strings.HasPrefix(b.Label, "✓") {
				found = true
			}
		}
	}
	assert.True(t, found, "active leaf should carry the check mark")

	require.NoError(t, r.router.HandleText(ctx, 100, "alice", "golden hour"))
	require.Len(t, r.transport.images, 1)

	balance, err := r.ledger.Balance(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, int64(startingBalance-1), balance)
}

// =============================================================================
// MENU TAPS
// =============================================================================

func TestRouter_Tap_NavigationEditsInPlace(t *testing.T) {
	r := newRig(t, session.SelectSingle)
	ctx := context.Background()
	require.NoError(t, r.router.HandleStart(ctx, 100, "alice"))

	require.NoError(t, r.router.HandleTap(ctx, 100, 7, "NODE:cat_glam"))
	require.Len(t, r.transport.edits, 1)
	assert.Contains(t, r.transport.edits[0].text, "Glam")

	require.NoError(t, r.router.HandleTap(ctx, 100, 7, "BACK:root"))
	require.Len(t, r.transport.edits, 2)
}

func TestRouter_Tap_ExampleSendsDescription(t *testing.T) {
	r := newRig(t, session.SelectSingle)
	ctx := context.Background()

	require.NoError(t, r.router.HandleTap(ctx, 100, 1, "EXAMPLE:soft_glam"))
	assert.Contains(t, r.transport.lastText(t).text, "Natural tones")
}

func TestRouter_Tap_StaleDataGetsRestartHint(t *testing.T) {
	r := newRig(t, session.SelectSingle)
	ctx := context.Background()

	require.NoError(t, r.router.HandleTap(ctx, 100, 1, "LEGACY:whatever"))
	require.Len(t, r.transport.edits, 1)
	assert.Contains(t, r.transport.edits[0].text, "/start")

	require.NoError(t, r.router.HandleTap(ctx, 100, 1, "NODE:gone"))
	assert.Contains(t, r.transport.lastText(t).text, "/start")
}

// =============================================================================
// TOP-UP FLOW
// =============================================================================

func TestRouter_TopupFlow_EndToEnd(t *testing.T) {
	// /topup -> amount -> invoice -> completed payment -> credited balance.
	r := newRig(t, session.SelectSingle)
	ctx := context.Background()
	require.NoError(t, r.router.HandleStart(ctx, 100, "alice"))

	require.NoError(t, r.router.HandleTopup(ctx, 100, "alice"))
	assert.Contains(t, r.transport.lastText(t).text, "minimum 100")

	require.NoError(t, r.router.HandleText(ctx, 100, "alice", "300"))
	require.Len(t, r.transport.invoices, 1)
	inv := r.transport.invoices[0]
	assert.Equal(t, int64(300), inv.AmountRub)
	assert.Equal(t, "TOPUP_300", inv.Payload)

	require.NoError(t, r.router.ApprovePreCheckout(inv.Payload))

	require.NoError(t, r.router.HandlePaymentCompleted(ctx, 100, 30000, inv.Payload))
	assert.Contains(t, r.transport.lastText(t).text, "+300 credit")

	balance, err := r.ledger.Balance(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, int64(startingBalance+300), balance)
}

func TestRouter_TopupFlow_BadAmountReprompts(t *testing.T) {
	r := newRig(t, session.SelectSingle)
	ctx := context.Background()
	require.NoError(t, r.router.HandleTopup(ctx, 100, "alice"))

	require.NoError(t, r.router.HandleText(ctx, 100, "alice", "lots"))
	assert.Contains(t, r.transport.lastText(t).text, "whole number")
	assert.Empty(t, r.transport.invoices)

	// The dialog is still open; a valid retry works.
	require.NoError(t, r.router.HandleText(ctx, 100, "alice", "150"))
	assert.Len(t, r.transport.invoices, 1)
}

func TestRouter_TopupFlow_ClampAnnounced(t *testing.T) {
	r := newRig(t, session.SelectSingle)
	ctx := context.Background()
	require.NoError(t, r.router.HandleTopup(ctx, 100, "alice"))

	require.NoError(t, r.router.HandleText(ctx, 100, "alice", "50"))
	require.Len(t, r.transport.invoices, 1)
	assert.Equal(t, int64(100), r.transport.invoices[0].AmountRub)

	// The clamp was mentioned before the invoice went out.
	var sawNote bool
	for _, msg := range r.transport.texts {
		if strings.Contains(msg.text, "minimum top-up is 100") {
			sawNote = true
		}
	}
	assert.True(t, sawNote)
}

// =============================================================================
// BONUS NOTIFICATION
// =============================================================================

func TestRouter_NotifyBonus(t *testing.T) {
	r := newRig(t, session.SelectSingle)

	require.NoError(t, r.router.NotifyBonus(context.Background(), 100, 1))
	assert.Contains(t, r.transport.lastText(t).text, "+1 credit")
}
