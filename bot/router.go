/*
router.go - Drives the session machine from decoded chat events

PURPOSE:
  One Router method per inbound event class (command, text, photo, menu
  tap, completed payment). Each handler:
    1. ensures the account exists,
    2. runs the session machine under the per-identity lock,
    3. acts on the outcome AFTER the lock is released - in particular the
       generation call, which can take seconds, never runs inside Do.

ERROR POLICY:
  Expected conditions (unknown node, bad amount, empty balance) become
  friendly chat messages and never disturb other sessions. A ledger
  inconsistency is logged on a distinct alert path before the user gets an
  apology - it is the one error a human has to reconcile.

SEE ALSO:
  - session/machine.go: The transition rules executed in step 2
  - generation/: The debit/generate/refund protocol run in step 3
*/
package bot

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/nanoavatar/avatar-engine/catalog"
	"github.com/nanoavatar/avatar-engine/generation"
	"github.com/nanoavatar/avatar-engine/ledger"
	"github.com/nanoavatar/avatar-engine/payment"
	"github.com/nanoavatar/avatar-engine/session"
)

// Router wires the transport to the engine.
type Router struct {
	catalog   *catalog.Catalog
	sessions  session.Store
	machine   *session.Machine
	ledger    *ledger.Ledger
	orch      *generation.Orchestrator
	payments  *payment.Service
	transport Transport
	render    menuRenderer
}

func NewRouter(
	c *catalog.Catalog,
	sessions session.Store,
	machine *session.Machine,
	l *ledger.Ledger,
	orch *generation.Orchestrator,
	payments *payment.Service,
	transport Transport,
) *Router {
	return &Router{
		catalog:   c,
		sessions:  sessions,
		machine:   machine,
		ledger:    l,
		orch:      orch,
		payments:  payments,
		transport: transport,
		render:    menuRenderer{catalog: c, policy: machine.Policy()},
	}
}

// =============================================================================
// COMMANDS
// =============================================================================

// HandleStart registers the account (welcoming newcomers), resets the
// session to the root, and shows the main menu. /start doubles as the
// "please restart" recovery path.
func (r *Router) HandleStart(ctx context.Context, chat ledger.Identity, displayName string) error {
	created, err := r.ledger.EnsureAccount(ctx, chat, displayName)
	if err != nil {
		return err
	}
	if created {
		balance, err := r.ledger.Balance(ctx, chat)
		if err != nil {
			return err
		}
		welcome := fmt.Sprintf("Welcome! You start with %d free credit(s). Pick a style below, send a photo, and get your avatar.", balance)
		if err := r.transport.SendText(ctx, chat, welcome, nil); err != nil {
			log.Printf("[Bot] Welcome message failed for account %d: %v", chat, err)
		}
	}

	var out session.Outcome
	err = r.sessions.Do(chat, func(s *session.Session) error {
		var applyErr error
		out, applyErr = r.machine.Apply(s, session.Reset{})
		return applyErr
	})
	if err != nil {
		return err
	}
	return r.sendMenu(ctx, chat, out.NodeID)
}

// HandleBalance answers the /balance command.
func (r *Router) HandleBalance(ctx context.Context, chat ledger.Identity, displayName string) error {
	if _, err := r.ledger.EnsureAccount(ctx, chat, displayName); err != nil {
		return err
	}
	balance, err := r.ledger.Balance(ctx, chat)
	if err != nil {
		return err
	}
	return r.transport.SendText(ctx, chat, fmt.Sprintf("Your balance: %d credit(s).", balance), nil)
}

// HandleTopup answers the /topup command by opening the amount dialog.
func (r *Router) HandleTopup(ctx context.Context, chat ledger.Identity, displayName string) error {
	if _, err := r.ledger.EnsureAccount(ctx, chat, displayName); err != nil {
		return err
	}
	err := r.sessions.Do(chat, func(s *session.Session) error {
		_, applyErr := r.machine.Apply(s, session.RequestTopup{})
		return applyErr
	})
	if err != nil {
		return err
	}
	return r.promptTopupAmount(ctx, chat)
}

// =============================================================================
// TEXT & PHOTO
// =============================================================================

// HandleText routes plain text by the session's current mode: a top-up
// amount when the dialog is open, otherwise free text for the multi policy.
func (r *Router) HandleText(ctx context.Context, chat ledger.Identity, displayName, text string) error {
	if _, err := r.ledger.EnsureAccount(ctx, chat, displayName); err != nil {
		return err
	}

	var out session.Outcome
	err := r.sessions.Do(chat, func(s *session.Session) error {
		ev := session.Event(session.SubmitFreeText{Text: text})
		if s.Mode == session.ModeAwaitingTopupAmount {
			ev = session.SubmitTopupAmount{Text: text}
		}
		var applyErr error
		out, applyErr = r.machine.Apply(s, ev)
		return applyErr
	})
	if err != nil {
		return r.sendUserError(ctx, chat, err)
	}

	switch out.Action {
	case session.ActionCreateInvoice:
		return r.sendInvoice(ctx, chat, out.TopupAmount)
	case session.ActionGenerate:
		return r.runGeneration(ctx, chat, generation.Request{
			Identity: chat,
			LeafIDs:  out.LeafIDs,
			FreeText: out.FreeText,
		})
	default:
		return nil
	}
}

// HandlePhoto routes an inbound photo to the armed generation, if any.
func (r *Router) HandlePhoto(ctx context.Context, chat ledger.Identity, displayName string, image []byte, caption string) error {
	if _, err := r.ledger.EnsureAccount(ctx, chat, displayName); err != nil {
		return err
	}

	var out session.Outcome
	err := r.sessions.Do(chat, func(s *session.Session) error {
		var applyErr error
		out, applyErr = r.machine.Apply(s, session.SubmitPhoto{Caption: caption})
		return applyErr
	})
	if err != nil {
		return r.sendUserError(ctx, chat, err)
	}

	return r.runGeneration(ctx, chat, generation.Request{
		Identity:    chat,
		LeafIDs:     out.LeafIDs,
		Caption:     out.Caption,
		SourceImage: image,
	})
}

// =============================================================================
// MENU TAPS
// =============================================================================

// HandleTap decodes and executes one menu tap, editing the tapped message
// in place.
func (r *Router) HandleTap(ctx context.Context, chat ledger.Identity, messageID int64, data string) error {
	tap, err := DecodeTap(data)
	if err != nil {
		log.Printf("[Bot] Undecodable tap from account %d: %v", chat, err)
		return r.transport.EditText(ctx, chat, messageID, "This menu is outdated. Send /start for a fresh one.", nil)
	}
	if _, err := r.ledger.EnsureAccount(ctx, chat, ""); err != nil {
		return err
	}

	switch tp := tap.(type) {
	case TapBalance:
		balance, err := r.ledger.Balance(ctx, chat)
		if err != nil {
			return err
		}
		return r.transport.SendText(ctx, chat, fmt.Sprintf("Your balance: %d credit(s).", balance), nil)

	case TapTopup:
		err := r.sessions.Do(chat, func(s *session.Session) error {
			_, applyErr := r.machine.Apply(s, session.RequestTopup{})
			return applyErr
		})
		if err != nil {
			return err
		}
		return r.promptTopupAmount(ctx, chat)

	case TapExample:
		node, err := r.catalog.Get(tp.NodeID)
		if err != nil {
			return r.sendUserError(ctx, chat, err)
		}
		text := node.Description
		if text == "" {
			text = node.Title
		}
		return r.transport.SendText(ctx, chat, text, nil)
	}

	// Remaining taps are session transitions.
	var ev session.Event
	switch tp := tap.(type) {
	case TapOpenNode:
		ev = session.OpenNode{NodeID: tp.NodeID}
	case TapBack:
		ev = session.GoBack{NodeID: tp.NodeID}
	case TapSelect:
		ev = session.SelectLeaf{NodeID: tp.NodeID}
	}

	var out session.Outcome
	var isActive func(string) bool
	err = r.sessions.Do(chat, func(s *session.Session) error {
		var applyErr error
		out, applyErr = r.machine.Apply(s, ev)
		if applyErr != nil {
			return applyErr
		}
		set := append([]string(nil), s.ActiveLeafIDs...)
		isActive = func(id string) bool {
			for _, a := range set {
				if a == id {
					return true
				}
			}
			return false
		}
		return nil
	})
	if err != nil {
		return r.sendUserError(ctx, chat, err)
	}

	switch out.Action {
	case session.ActionShowMenu, session.ActionSelectionChanged:
		text, menu, err := r.render.render(out.NodeID, isActive)
		if err != nil {
			return err
		}
		return r.transport.EditText(ctx, chat, messageID, text, menu)

	case session.ActionPromptPhoto:
		node, err := r.catalog.Get(out.LeafID)
		if err != nil {
			return err
		}
		prompt := fmt.Sprintf("%s it is. Now send me the photo to transform (costs %d credit(s)).",
			node.Title, r.orch.Price())
		return r.transport.SendText(ctx, chat, prompt, nil)

	default:
		return nil
	}
}

// =============================================================================
// PAYMENTS
// =============================================================================

// ApprovePreCheckout validates a checkout before the provider charges.
func (r *Router) ApprovePreCheckout(payload string) error {
	return r.payments.ApprovePreCheckout(payload)
}

// HandlePaymentCompleted settles a finished payment and confirms it.
func (r *Router) HandlePaymentCompleted(ctx context.Context, chat ledger.Identity, amountMinorUnits int64, payload string) error {
	if _, err := r.ledger.EnsureAccount(ctx, chat, ""); err != nil {
		return err
	}
	credits, newBalance, err := r.payments.HandleCompleted(ctx, chat, amountMinorUnits, payload)
	if err != nil {
		log.Printf("[Bot] Payment settlement failed for account %d: %v", chat, err)
		return r.transport.SendText(ctx, chat, "Something went wrong recording your payment. Support has been notified.", nil)
	}
	return r.transport.SendText(ctx, chat,
		fmt.Sprintf("Payment received: +%d credit(s). Your balance: %d.", credits, newBalance), nil)
}

// =============================================================================
// BONUS NOTIFICATIONS
// =============================================================================

// NotifyBonus implements bonus.Notifier over the chat transport.
func (r *Router) NotifyBonus(ctx context.Context, id ledger.Identity, amount int64) error {
	return r.transport.SendText(ctx, id,
		fmt.Sprintf("Daily bonus: +%d credit(s). Come make something!", amount), nil)
}

// =============================================================================
// INTERNALS
// =============================================================================

func (r *Router) sendMenu(ctx context.Context, chat ledger.Identity, nodeID string) error {
	snap, _ := r.sessions.Snapshot(chat)
	text, menu, err := r.render.render(nodeID, snap.IsActive)
	if err != nil {
		return err
	}
	return r.transport.SendText(ctx, chat, text, menu)
}

func (r *Router) promptTopupAmount(ctx context.Context, chat ledger.Identity) error {
	return r.transport.SendText(ctx, chat,
		fmt.Sprintf("How many rubles would you like to add? (minimum %d)", r.payments.MinTopupRub()), nil)
}

func (r *Router) sendInvoice(ctx context.Context, chat ledger.Identity, requestedRub int64) error {
	inv := r.payments.CreateInvoice(chat, requestedRub)
	if inv.AmountRub != requestedRub {
		note := fmt.Sprintf("The minimum top-up is %d RUB, so the invoice is for %d RUB.",
			r.payments.MinTopupRub(), inv.AmountRub)
		if err := r.transport.SendText(ctx, chat, note, nil); err != nil {
			return err
		}
	}
	return r.transport.SendInvoice(ctx, inv)
}

// runGeneration executes the orchestrator outside any session lock and
// reports the outcome to the user.
func (r *Router) runGeneration(ctx context.Context, chat ledger.Identity, req generation.Request) error {
	if err := r.transport.SendText(ctx, chat, "Working on it…", nil); err != nil {
		log.Printf("[Bot] Progress message failed for account %d: %v", chat, err)
	}

	res, err := r.orch.Run(ctx, req)
	if err == nil {
		caption := fmt.Sprintf("Done! Balance: %d credit(s).", res.NewBalance)
		return r.transport.SendImage(ctx, chat, res.Image, caption)
	}

	var incErr *generation.LedgerInconsistencyError
	if errors.As(err, &incErr) {
		// Alert path: a SPEND is dangling without its REFUND.
		log.Printf("[Bot] ALERT ledger inconsistency: %v", incErr)
		return r.transport.SendText(ctx, chat,
			"Something went wrong on our side. Support has been notified; your credit will be restored.", nil)
	}

	var insErr *ledger.InsufficientCreditsError
	if errors.As(err, &insErr) {
		return r.transport.SendText(ctx, chat,
			fmt.Sprintf("Not enough credits: you have %d, this costs %d. Use /topup to add more.",
				insErr.Balance, insErr.Requested), nil)
	}
	if errors.Is(err, generation.ErrEmptyPrompt) {
		return r.transport.SendText(ctx, chat, "Pick a style from the menu first.", nil)
	}

	return r.transport.SendText(ctx, chat,
		"The generation failed, sorry. Your credit has been returned - please try again.", nil)
}

// sendUserError converts expected session errors into chat messages;
// anything unexpected propagates.
func (r *Router) sendUserError(ctx context.Context, chat ledger.Identity, err error) error {
	var msg string
	switch {
	case errors.Is(err, session.ErrNoPendingSelection):
		msg = "Pick a style from the menu first, then send your photo or text."
	case errors.Is(err, session.ErrInvalidTopupAmount):
		msg = "Please send the amount as a whole number, e.g. 300."
	case errors.Is(err, session.ErrUnknownNode), errors.Is(err, catalog.ErrNodeNotFound):
		msg = "That option no longer exists. Send /start for a fresh menu."
	case errors.Is(err, session.ErrUnexpectedInput):
		msg = "I didn't expect that here. Use the menu, or send /start to begin again."
	case errors.Is(err, session.ErrNotACategory), errors.Is(err, session.ErrNotALeaf):
		msg = "That button is stale. Send /start for a fresh menu."
	default:
		return err
	}
	return r.transport.SendText(ctx, chat, msg, nil)
}
