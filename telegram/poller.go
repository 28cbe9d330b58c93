/*
poller.go - Long-poll loop feeding updates to the router

Each update is dispatched on its own goroutine so one slow generation does
not block unrelated chats; per-chat ordering is the session store's job,
not the poller's. Handler panics are contained per update.
*/
package telegram

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/nanoavatar/avatar-engine/bot"
	"github.com/nanoavatar/avatar-engine/ledger"
)

const (
	longPollSeconds  = 50
	handlerTimeout   = 2 * time.Minute
	pollRetryBackoff = 5 * time.Second
)

// Poller pulls updates and hands them to the router.
type Poller struct {
	client *Client
	router *bot.Router
}

func NewPoller(client *Client, router *bot.Router) *Poller {
	return &Poller{client: client, router: router}
}

// Run long-polls until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) {
	log.Println("[Telegram] Poller started")
	var offset int64

	for {
		select {
		case <-ctx.Done():
			log.Println("[Telegram] Poller stopped")
			return
		default:
		}

		updates, err := p.client.getUpdates(ctx, offset, longPollSeconds)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			log.Printf("[Telegram] getUpdates failed: %v", err)
			time.Sleep(pollRetryBackoff)
			continue
		}

		for _, u := range updates {
			offset = u.UpdateID + 1
			go p.dispatch(u)
		}
	}
}

func (p *Poller) dispatch(u update) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[Telegram] Panic handling update %d: %v", u.UpdateID, r)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()

	var err error
	switch {
	case u.PreCheckoutQuery != nil:
		err = p.handlePreCheckout(ctx, u.PreCheckoutQuery)
	case u.CallbackQuery != nil:
		err = p.handleCallback(ctx, u.CallbackQuery)
	case u.Message != nil:
		err = p.handleMessage(ctx, u.Message)
	}
	if err != nil {
		log.Printf("[Telegram] Update %d failed: %v", u.UpdateID, err)
	}
}

func (p *Poller) handleMessage(ctx context.Context, m *message) error {
	chat := ledger.Identity(m.Chat.ID)
	name := m.From.displayName()

	switch {
	case m.SuccessfulPayment != nil:
		return p.router.HandlePaymentCompleted(ctx, chat,
			m.SuccessfulPayment.TotalAmount, m.SuccessfulPayment.InvoicePayload)

	case len(m.Photo) > 0:
		image, err := p.client.downloadPhoto(ctx, m.Photo)
		if err != nil {
			return err
		}
		return p.router.HandlePhoto(ctx, chat, name, image, m.Caption)

	case strings.HasPrefix(m.Text, "/"):
		return p.handleCommand(ctx, chat, name, m.Text)

	case m.Text != "":
		return p.router.HandleText(ctx, chat, name, m.Text)
	}
	return nil
}

func (p *Poller) handleCommand(ctx context.Context, chat ledger.Identity, name, text string) error {
	cmd := strings.Fields(text)[0]
	// Strip the @botname suffix used in group chats.
	if i := strings.Index(cmd, "@"); i > 0 {
		cmd = cmd[:i]
	}

	switch cmd {
	case "/start":
		return p.router.HandleStart(ctx, chat, name)
	case "/balance":
		return p.router.HandleBalance(ctx, chat, name)
	case "/topup":
		return p.router.HandleTopup(ctx, chat, name)
	default:
		return p.router.HandleStart(ctx, chat, name)
	}
}

func (p *Poller) handleCallback(ctx context.Context, q *callbackQuery) error {
	// Ack first so the client's spinner clears even if handling is slow.
	if err := p.client.answerCallbackQuery(ctx, q.ID); err != nil {
		log.Printf("[Telegram] answerCallbackQuery failed: %v", err)
	}
	if q.Message == nil || q.From == nil {
		return nil
	}
	return p.router.HandleTap(ctx, ledger.Identity(q.Message.Chat.ID), q.Message.MessageID, q.Data)
}

func (p *Poller) handlePreCheckout(ctx context.Context, q *preCheckoutQuery) error {
	if err := p.router.ApprovePreCheckout(q.InvoicePayload); err != nil {
		log.Printf("[Telegram] Pre-checkout rejected: %v", err)
		return p.client.answerPreCheckout(ctx, q.ID, false, "This checkout has expired. Please start the top-up again.")
	}
	return p.client.answerPreCheckout(ctx, q.ID, true, "")
}
