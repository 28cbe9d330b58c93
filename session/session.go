/*
Package session holds per-conversation navigation state and its transitions.

PURPOSE:
  One Session exists per active chat identity. It tracks where the user is
  in the catalog tree, which leaves they have selected, and whether the next
  inbound message is expected to be a photo or a top-up amount. Sessions are
  transient: they live in memory only, and a process restart resets every
  conversation to the root in browsing mode, which is always a safe state
  (no partial ledger operation can be pending across a restart).

KEY CONCEPTS IN THIS FILE (session.go):
  - Mode:            what kind of input the session is waiting for
  - SelectionPolicy: single-select (pick one leaf, then send a photo) or
                     multi-select (toggle leaves, then send free text)
  - Session:         the mutable state itself
  - Store:           per-identity serialization contract + sharded in-memory
                     implementation

CONCURRENCY:
  The transport does not serialize events per chat, so the Store does:
  Do(identity, fn) runs fn under the identity's shard lock. Long-latency
  work (the external generation call) must never run inside Do - the
  machine only records the decision, and the caller acts on it after the
  lock is released.

SEE ALSO:
  - machine.go: The transition rules
  - bot/: Decodes transport events and drives the machine
*/
package session

import (
	"sync"

	"github.com/nanoavatar/avatar-engine/ledger"
)

// =============================================================================
// MODE & POLICY
// =============================================================================

// Mode is what the session is currently waiting for.
type Mode string

const (
	ModeBrowsing            Mode = "BROWSING"
	ModeAwaitingPhoto       Mode = "AWAITING_PHOTO"
	ModeAwaitingTopupAmount Mode = "AWAITING_TOPUP_AMOUNT"
)

// SelectionPolicy is fixed per deployment, never per session.
type SelectionPolicy string

const (
	// SelectSingle: tapping a leaf arms it and the session waits for a
	// photo to transform.
	SelectSingle SelectionPolicy = "single"

	// SelectMulti: tapping a leaf toggles it in the active set; sending
	// free text generates from the whole set.
	SelectMulti SelectionPolicy = "multi"
)

// =============================================================================
// SESSION
// =============================================================================

// Session is the transient per-conversation state. All fields are guarded by
// the Store's per-identity lock; never retain a *Session outside Do.
type Session struct {
	Identity      ledger.Identity
	CurrentNodeID string
	Mode          Mode

	// PendingLeafID is the armed leaf under SelectSingle; empty otherwise.
	PendingLeafID string

	// ActiveLeafIDs is the toggled set under SelectMulti, in toggle order.
	// It survives navigation; only Reset clears it.
	ActiveLeafIDs []string
}

// IsActive reports whether leafID is in the multi-select active set.
func (s *Session) IsActive(leafID string) bool {
	for _, id := range s.ActiveLeafIDs {
		if id == leafID {
			return true
		}
	}
	return false
}

func (s *Session) toggle(leafID string) (nowActive bool) {
	for i, id := range s.ActiveLeafIDs {
		if id == leafID {
			s.ActiveLeafIDs = append(s.ActiveLeafIDs[:i], s.ActiveLeafIDs[i+1:]...)
			return false
		}
	}
	s.ActiveLeafIDs = append(s.ActiveLeafIDs, leafID)
	return true
}

// =============================================================================
// STORE
// =============================================================================

// Store serializes access to sessions per identity. The contract: Do runs fn
// with exclusive ownership of the identity's session, and fn must not block
// on I/O. An implementation may back this with a sharded lock table, an
// actor per identity, or a single event loop.
type Store interface {
	Do(id ledger.Identity, fn func(*Session) error) error
	Snapshot(id ledger.Identity) (Session, bool)
	Len() int
}

const shardCount = 32

type shard struct {
	mu       sync.Mutex
	sessions map[ledger.Identity]*Session
}

// shardedStore is the in-memory Store. Mutations to one identity's session
// are serialized; different identities only contend when they share a shard.
type shardedStore struct {
	rootID string
	shards [shardCount]shard
}

// NewStore creates the sharded in-memory session store. rootID is the
// catalog root every new session starts at.
func NewStore(rootID string) Store {
	st := &shardedStore{rootID: rootID}
	for i := range st.shards {
		st.shards[i].sessions = make(map[ledger.Identity]*Session)
	}
	return st
}

func (st *shardedStore) shardFor(id ledger.Identity) *shard {
	return &st.shards[uint64(id)%shardCount]
}

// Do runs fn with exclusive access to the identity's session, creating it at
// the root in browsing mode on first use.
func (st *shardedStore) Do(id ledger.Identity, fn func(*Session) error) error {
	sh := st.shardFor(id)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	s, ok := sh.sessions[id]
	if !ok {
		s = &Session{Identity: id, CurrentNodeID: st.rootID, Mode: ModeBrowsing}
		sh.sessions[id] = s
	}
	return fn(s)
}

// Snapshot returns a copy of the identity's session, if one exists. Used by
// the admin surface; the copy is safe to read without holding any lock.
func (st *shardedStore) Snapshot(id ledger.Identity) (Session, bool) {
	sh := st.shardFor(id)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	s, ok := sh.sessions[id]
	if !ok {
		return Session{}, false
	}
	copied := *s
	copied.ActiveLeafIDs = append([]string(nil), s.ActiveLeafIDs...)
	return copied, true
}

// Len returns the number of live sessions across all shards.
func (st *shardedStore) Len() int {
	n := 0
	for i := range st.shards {
		st.shards[i].mu.Lock()
		n += len(st.shards[i].sessions)
		st.shards[i].mu.Unlock()
	}
	return n
}
