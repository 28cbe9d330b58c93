/*
handlers.go - HTTP handlers for the operator/admin surface

PURPOSE:
  A small read-mostly API for inspecting the engine while it runs, plus two
  operator actions. The chat transport is the product surface; this one is
  for humans debugging balances and the daily grant.

ENDPOINTS:
  Accounts:
    GET  /api/accounts               List accounts with balances
    GET  /api/accounts/{id}          One account
    GET  /api/accounts/{id}/entries  Ledger history
    GET  /api/accounts/{id}/session  Live session snapshot (404 if none)

  Catalog:
    GET  /api/catalog                The whole style tree

  Admin:
    POST /api/admin/credit           Manual credit (support compensations)
    POST /api/admin/bonus/run        Trigger a bonus sweep now

  GET /api/health                    Liveness probe

ERROR HANDLING:
  Errors come back as {"error": ...} with 400/404/500 as appropriate.

SECURITY NOTE:
  No authentication; bind this listener to localhost or a private network.

SEE ALSO:
  - dto.go: Response shapes
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/nanoavatar/avatar-engine/bonus"
	"github.com/nanoavatar/avatar-engine/catalog"
	"github.com/nanoavatar/avatar-engine/ledger"
	"github.com/nanoavatar/avatar-engine/session"
)

// Handler holds the admin API dependencies.
type Handler struct {
	Ledger    *ledger.Ledger
	Catalog   *catalog.Catalog
	Sessions  session.Store
	Scheduler *bonus.Scheduler
}

// =============================================================================
// ACCOUNTS
// =============================================================================

func (h *Handler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	ids, err := h.Ledger.Identities(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	accounts := make([]AccountDTO, 0, len(ids))
	for _, id := range ids {
		dto, err := h.accountDTO(r, id)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		accounts = append(accounts, dto)
	}
	writeJSON(w, http.StatusOK, accounts)
}

func (h *Handler) GetAccount(w http.ResponseWriter, r *http.Request) {
	id, ok := identityParam(w, r)
	if !ok {
		return
	}
	dto, err := h.accountDTO(r, id)
	if errors.Is(err, ledger.ErrAccountNotFound) {
		writeError(w, http.StatusNotFound, err)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, dto)
}

func (h *Handler) GetEntries(w http.ResponseWriter, r *http.Request) {
	id, ok := identityParam(w, r)
	if !ok {
		return
	}
	if _, err := h.Ledger.Balance(r.Context(), id); errors.Is(err, ledger.ErrAccountNotFound) {
		writeError(w, http.StatusNotFound, err)
		return
	}

	entries, err := h.Ledger.Entries(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	dtos := make([]EntryDTO, 0, len(entries))
	for _, e := range entries {
		dtos = append(dtos, EntryDTO{
			ID:        e.ID,
			Kind:      string(e.Kind),
			Amount:    e.Amount,
			Payload:   e.Payload,
			CreatedAt: e.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	id, ok := identityParam(w, r)
	if !ok {
		return
	}
	snap, found := h.Sessions.Snapshot(id)
	if !found {
		writeError(w, http.StatusNotFound, errors.New("no live session"))
		return
	}
	writeJSON(w, http.StatusOK, SessionDTO{
		Identity:      int64(snap.Identity),
		CurrentNodeID: snap.CurrentNodeID,
		Mode:          string(snap.Mode),
		PendingLeafID: snap.PendingLeafID,
		ActiveLeafIDs: snap.ActiveLeafIDs,
	})
}

// =============================================================================
// CATALOG
// =============================================================================

func (h *Handler) GetCatalog(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.nodeDTO(h.Catalog.RootID()))
}

func (h *Handler) nodeDTO(id string) *NodeDTO {
	node, err := h.Catalog.Get(id)
	if err != nil {
		return nil
	}
	dto := &NodeDTO{
		ID:          node.ID,
		Title:       node.Title,
		Description: node.Description,
		Leaf:        node.IsLeaf(),
	}
	for _, childID := range node.ChildIDs {
		dto.Children = append(dto.Children, h.nodeDTO(childID))
	}
	return dto
}

// =============================================================================
// ADMIN ACTIONS
// =============================================================================

// Credit applies a manual TOPUP-kind adjustment, e.g. a support
// compensation. The reason lands in the entry payload for the audit trail.
func (h *Handler) Credit(w http.ResponseWriter, r *http.Request) {
	var req CreditRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.Amount <= 0 {
		writeError(w, http.StatusBadRequest, ledger.ErrInvalidAmount)
		return
	}

	payload := "admin"
	if req.Reason != "" {
		payload = "admin:" + req.Reason
	}
	newBalance, err := h.Ledger.Credit(r.Context(), ledger.Identity(req.Identity), req.Amount, ledger.KindTopup, payload)
	if errors.Is(err, ledger.ErrAccountNotFound) {
		writeError(w, http.StatusNotFound, err)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	log.Printf("[API] Manual credit: account %d +%d (%s)", req.Identity, req.Amount, payload)
	writeJSON(w, http.StatusOK, map[string]int64{"newBalance": newBalance})
}

// RunBonus triggers a sweep for the current local day. Idempotent within a
// day, so a curious operator can press it twice safely.
func (h *Handler) RunBonus(w http.ResponseWriter, r *http.Request) {
	stats := h.Scheduler.RunOnce(r.Context())
	writeJSON(w, http.StatusOK, stats)
}

func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// HELPERS
// =============================================================================

func (h *Handler) accountDTO(r *http.Request, id ledger.Identity) (AccountDTO, error) {
	acct, err := h.Ledger.Account(r.Context(), id)
	if err != nil {
		return AccountDTO{}, err
	}
	return AccountDTO{
		Identity:     int64(acct.Identity),
		DisplayName:  acct.DisplayName,
		Balance:      acct.Balance,
		LastBonusDay: acct.LastBonusDay.String(),
	}, nil
}

func identityParam(w http.ResponseWriter, r *http.Request) (ledger.Identity, bool) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, errors.New("identity must be an integer"))
		return 0, false
	}
	return ledger.Identity(id), true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[API] Response encoding failed: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, ErrorResponse{Error: err.Error()})
}
