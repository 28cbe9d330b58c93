/*
dto.go - JSON shapes for the admin API

Pure data carriers: validation happens in handlers, domain types never
leak field names into the API contract.
*/
package api

import "time"

// AccountDTO is one account in list and detail responses.
type AccountDTO struct {
	Identity     int64  `json:"identity"`
	DisplayName  string `json:"displayName,omitempty"`
	Balance      int64  `json:"balance"`
	LastBonusDay string `json:"lastBonusDay,omitempty"`
}

// EntryDTO is one ledger line.
type EntryDTO struct {
	ID        int64     `json:"id"`
	Kind      string    `json:"kind"`
	Amount    int64     `json:"amount"`
	Payload   string    `json:"payload,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// NodeDTO is one catalog node; categories carry their children inline.
type NodeDTO struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Leaf        bool       `json:"leaf"`
	Children    []*NodeDTO `json:"children,omitempty"`
}

// SessionDTO is a point-in-time session snapshot.
type SessionDTO struct {
	Identity      int64    `json:"identity"`
	CurrentNodeID string   `json:"currentNodeId"`
	Mode          string   `json:"mode"`
	PendingLeafID string   `json:"pendingLeafId,omitempty"`
	ActiveLeafIDs []string `json:"activeLeafIds,omitempty"`
}

// CreditRequest is a manual balance adjustment.
type CreditRequest struct {
	Identity int64  `json:"identity"`
	Amount   int64  `json:"amount"`
	Reason   string `json:"reason"`
}

// ErrorResponse is the uniform error body.
type ErrorResponse struct {
	Error string `json:"error"`
}
