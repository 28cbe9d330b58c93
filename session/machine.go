/*
machine.go - The session transition rules

PURPOSE:
  Given a session and one typed event, compute the next state and the side
  effect the caller must perform. The machine itself performs no I/O: it
  never touches the ledger, the transport, or the generation backend. That
  keeps every transition a pure, lock-cheap step, and keeps the long
  external call out of the session critical section.

EVENT SET:
  Events are a closed set of variants decoded once at the transport
  boundary. Nothing inside the machine inspects raw callback strings.

OUTCOME:
  Apply returns an Outcome naming the action the caller owes the user
  (render a menu, ask for a photo, create an invoice, run a generation).
  An error outcome means the session was left untouched.

SEE ALSO:
  - session.go: The state being transitioned
  - bot/router.go: Decodes transport events and executes outcomes
*/
package session

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/nanoavatar/avatar-engine/catalog"
)

// =============================================================================
// EVENTS - Closed set, decoded at the transport boundary
// =============================================================================

type Event interface{ isEvent() }

// OpenNode navigates into a category.
type OpenNode struct{ NodeID string }

// GoBack navigates to an ancestor category (empty NodeID means root).
type GoBack struct{ NodeID string }

// SelectLeaf picks or toggles a selectable style.
type SelectLeaf struct{ NodeID string }

// RequestTopup starts the top-up amount dialog.
type RequestTopup struct{}

// SubmitTopupAmount is the text reply while awaiting a top-up amount.
type SubmitTopupAmount struct{ Text string }

// SubmitPhoto is an inbound photo (with optional caption).
type SubmitPhoto struct{ Caption string }

// SubmitFreeText is plain text while browsing.
type SubmitFreeText struct{ Text string }

// Reset returns the session to the root in browsing mode and clears every
// selection.
type Reset struct{}

func (OpenNode) isEvent()          {}
func (GoBack) isEvent()            {}
func (SelectLeaf) isEvent()        {}
func (RequestTopup) isEvent()      {}
func (SubmitTopupAmount) isEvent() {}
func (SubmitPhoto) isEvent()       {}
func (SubmitFreeText) isEvent()    {}
func (Reset) isEvent()             {}

// =============================================================================
// OUTCOME - What the caller must do next
// =============================================================================

type Action string

const (
	// ActionShowMenu: render the menu for Outcome.NodeID.
	ActionShowMenu Action = "show_menu"

	// ActionPromptPhoto: a leaf is armed; ask the user for a photo.
	ActionPromptPhoto Action = "prompt_photo"

	// ActionSelectionChanged: a leaf was toggled; re-render the current menu
	// with updated markers.
	ActionSelectionChanged Action = "selection_changed"

	// ActionPromptTopupAmount: ask the user how much to top up.
	ActionPromptTopupAmount Action = "prompt_topup_amount"

	// ActionCreateInvoice: hand Outcome.TopupAmount to the payment flow.
	ActionCreateInvoice Action = "create_invoice"

	// ActionGenerate: run a generation for Outcome.LeafIDs/FreeText/Caption.
	// The caller must perform this AFTER releasing the session lock.
	ActionGenerate Action = "generate"
)

// Outcome is the machine's decision for one event.
type Outcome struct {
	Action Action

	// NodeID is the menu to render for ActionShowMenu/ActionSelectionChanged.
	NodeID string

	// LeafID is the leaf involved in ActionPromptPhoto/ActionSelectionChanged.
	LeafID string

	// Active reports the post-toggle state for ActionSelectionChanged.
	Active bool

	// TopupAmount is the parsed amount (major units) for ActionCreateInvoice.
	TopupAmount int64

	// Generation inputs for ActionGenerate.
	LeafIDs  []string
	FreeText string
	Caption  string
}

// =============================================================================
// MACHINE
// =============================================================================

// Machine applies events to sessions against a fixed catalog and policy.
type Machine struct {
	catalog *catalog.Catalog
	policy  SelectionPolicy
}

func NewMachine(c *catalog.Catalog, policy SelectionPolicy) *Machine {
	return &Machine{catalog: c, policy: policy}
}

// Policy returns the deployment's selection policy.
func (m *Machine) Policy() SelectionPolicy { return m.policy }

// Apply transitions the session for one event. On error the session is
// guaranteed unchanged. Call under the Store's per-identity lock.
func (m *Machine) Apply(s *Session, ev Event) (Outcome, error) {
	switch e := ev.(type) {
	case OpenNode:
		return m.openNode(s, e.NodeID)
	case GoBack:
		return m.goBack(s, e.NodeID)
	case SelectLeaf:
		return m.selectLeaf(s, e.NodeID)
	case RequestTopup:
		return m.requestTopup(s)
	case SubmitTopupAmount:
		return m.submitTopupAmount(s, e.Text)
	case SubmitPhoto:
		return m.submitPhoto(s, e.Caption)
	case SubmitFreeText:
		return m.submitFreeText(s, e.Text)
	case Reset:
		return m.reset(s)
	default:
		return Outcome{}, fmt.Errorf("%w: %T", ErrUnexpectedInput, ev)
	}
}

// openNode moves into a category. Navigation is allowed from any mode and
// always lands back in browsing: tapping the menu while a photo is pending
// abandons the pending selection.
func (m *Machine) openNode(s *Session, nodeID string) (Outcome, error) {
	node, err := m.catalog.Get(nodeID)
	if err != nil {
		return Outcome{}, fmt.Errorf("%w: %q", ErrUnknownNode, nodeID)
	}
	if node.IsLeaf() {
		return Outcome{}, fmt.Errorf("%w: %q", ErrNotACategory, nodeID)
	}

	s.CurrentNodeID = nodeID
	s.Mode = ModeBrowsing
	s.PendingLeafID = ""
	return Outcome{Action: ActionShowMenu, NodeID: nodeID}, nil
}

// goBack is openNode toward an ancestor; empty target means root.
func (m *Machine) goBack(s *Session, nodeID string) (Outcome, error) {
	if nodeID == "" {
		nodeID = m.catalog.RootID()
	}
	return m.openNode(s, nodeID)
}

func (m *Machine) selectLeaf(s *Session, leafID string) (Outcome, error) {
	node, err := m.catalog.Get(leafID)
	if err != nil {
		return Outcome{}, fmt.Errorf("%w: %q", ErrUnknownNode, leafID)
	}
	if !node.IsLeaf() {
		return Outcome{}, fmt.Errorf("%w: %q", ErrNotALeaf, leafID)
	}

	if m.policy == SelectMulti {
		active := s.toggle(leafID)
		return Outcome{
			Action: ActionSelectionChanged,
			NodeID: s.CurrentNodeID,
			LeafID: leafID,
			Active: active,
		}, nil
	}

	s.PendingLeafID = leafID
	s.Mode = ModeAwaitingPhoto
	return Outcome{Action: ActionPromptPhoto, LeafID: leafID}, nil
}

func (m *Machine) requestTopup(s *Session) (Outcome, error) {
	s.Mode = ModeAwaitingTopupAmount
	return Outcome{Action: ActionPromptTopupAmount}, nil
}

func (m *Machine) submitTopupAmount(s *Session, text string) (Outcome, error) {
	if s.Mode != ModeAwaitingTopupAmount {
		return Outcome{}, ErrUnexpectedInput
	}

	amount, err := strconv.ParseInt(strings.TrimSpace(text), 10, 64)
	if err != nil || amount <= 0 {
		// Stay in the dialog so the user can retry.
		return Outcome{}, fmt.Errorf("%w: %q", ErrInvalidTopupAmount, text)
	}

	s.Mode = ModeBrowsing
	return Outcome{Action: ActionCreateInvoice, TopupAmount: amount}, nil
}

// submitPhoto dispatches a generation for the armed leaf. The pending leaf
// is cleared and the session returns to browsing before the caller runs the
// slow external call, so a crash mid-call leaves the session in a safe state.
func (m *Machine) submitPhoto(s *Session, caption string) (Outcome, error) {
	if s.Mode != ModeAwaitingPhoto || s.PendingLeafID == "" {
		return Outcome{}, ErrNoPendingSelection
	}

	leafID := s.PendingLeafID
	s.PendingLeafID = ""
	s.Mode = ModeBrowsing
	return Outcome{
		Action:  ActionGenerate,
		LeafIDs: []string{leafID},
		Caption: caption,
	}, nil
}

// submitFreeText dispatches a generation from the multi-select active set.
// The set stays active afterwards so the user can iterate on the text.
func (m *Machine) submitFreeText(s *Session, text string) (Outcome, error) {
	if m.policy != SelectMulti || s.Mode != ModeBrowsing {
		return Outcome{}, ErrUnexpectedInput
	}
	if len(s.ActiveLeafIDs) == 0 {
		return Outcome{}, ErrNoPendingSelection
	}

	return Outcome{
		Action:   ActionGenerate,
		LeafIDs:  append([]string(nil), s.ActiveLeafIDs...),
		FreeText: text,
	}, nil
}

func (m *Machine) reset(s *Session) (Outcome, error) {
	s.CurrentNodeID = m.catalog.RootID()
	s.Mode = ModeBrowsing
	s.PendingLeafID = ""
	s.ActiveLeafIDs = nil
	return Outcome{Action: ActionShowMenu, NodeID: s.CurrentNodeID}, nil
}
