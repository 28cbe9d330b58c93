/*
errors.go - Expected, user-recoverable session errors

Every sentinel here maps to a re-prompt in the chat, never to a crash. The
machine guarantees that returning one of these leaves the session unchanged.
*/
package session

import "errors"

var (
	// ErrUnknownNode: a menu tap referenced a catalog id that does not
	// exist - stale client state or a catalog redeploy.
	ErrUnknownNode = errors.New("unknown catalog node")

	// ErrNotACategory: OpenNode targeted a leaf.
	ErrNotACategory = errors.New("node is not a category")

	// ErrNotALeaf: SelectLeaf targeted a category.
	ErrNotALeaf = errors.New("node is not a leaf")

	// ErrNoPendingSelection: a photo or free text arrived but nothing is
	// selected, so there is nothing to generate.
	ErrNoPendingSelection = errors.New("no style selected")

	// ErrInvalidTopupAmount: the top-up reply did not parse as a positive
	// integer. The session stays in the awaiting-amount mode.
	ErrInvalidTopupAmount = errors.New("top-up amount must be a positive whole number")

	// ErrUnexpectedInput: the event does not apply in the session's current
	// mode (e.g. free text under the single-select policy).
	ErrUnexpectedInput = errors.New("unexpected input for current state")
)
