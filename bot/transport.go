/*
transport.go - The outbound chat surface the router writes to

PURPOSE:
  The router never builds transport-specific keyboard objects. It describes
  menus logically - rows of (label, callback data) - and the Transport
  implementation translates them to whatever the chat platform wants.

IMPLEMENTATIONS:
  - telegram/: production Bot API adapter
  - bot/router_test.go: recording fake
*/
package bot

import (
	"context"

	"github.com/nanoavatar/avatar-engine/ledger"
	"github.com/nanoavatar/avatar-engine/payment"
)

// Button is one tappable menu entry.
type Button struct {
	Label string
	Data  string // encoded callback data, see events.go
}

// Menu is a logical keyboard: rows of buttons.
type Menu struct {
	Rows [][]Button
}

// Transport delivers outbound messages. All methods are synchronous and
// bounded by ctx.
type Transport interface {
	// SendText posts a new message, optionally with a menu.
	SendText(ctx context.Context, chat ledger.Identity, text string, menu *Menu) error

	// EditText rewrites an existing menu message in place.
	EditText(ctx context.Context, chat ledger.Identity, messageID int64, text string, menu *Menu) error

	// SendImage posts generated image bytes with a caption.
	SendImage(ctx context.Context, chat ledger.Identity, image []byte, caption string) error

	// SendInvoice opens the provider checkout for an invoice.
	SendInvoice(ctx context.Context, inv payment.Invoice) error
}
