package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nanoavatar/avatar-engine/ledger"
	"github.com/nanoavatar/avatar-engine/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestStore(t *testing.T) *sqlite.Store {
	s, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// =============================================================================
// ACCOUNT TESTS
// =============================================================================

func TestSQLiteStore_EnsureAccount_CreatedFlag(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	created, err := s.EnsureAccount(ctx, 100, "alice", 15)
	require.NoError(t, err)
	assert.True(t, created)

	created, err = s.EnsureAccount(ctx, 100, "alice", 15)
	require.NoError(t, err)
	assert.False(t, created)

	acct, err := s.GetAccount(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, int64(15), acct.Balance)
	assert.Equal(t, "alice", acct.DisplayName)
}

func TestSQLiteStore_EnsureAccount_RefreshesDisplayName(t *testing.T) {
	// GIVEN: An account registered as "alice"
	// WHEN: The same identity shows up with a new display name
	// THEN: The name is refreshed without touching the balance

	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.EnsureAccount(ctx, 100, "alice", 15)
	require.NoError(t, err)
	_, err = s.ApplyDelta(ctx, 100, -5, ledger.KindSpend, "gen:x")
	require.NoError(t, err)

	created, err := s.EnsureAccount(ctx, 100, "alice renamed", 15)
	require.NoError(t, err)
	assert.False(t, created)

	acct, err := s.GetAccount(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, "alice renamed", acct.DisplayName)
	assert.Equal(t, int64(10), acct.Balance)
}

func TestSQLiteStore_GetAccount_NotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.GetAccount(context.Background(), 999)
	assert.ErrorIs(t, err, ledger.ErrAccountNotFound)
}

func TestSQLiteStore_Identities_SortedSweep(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, id := range []ledger.Identity{300, 100, 200} {
		_, err := s.EnsureAccount(ctx, id, "", 15)
		require.NoError(t, err)
	}

	ids, err := s.Identities(ctx)
	require.NoError(t, err)
	assert.Equal(t, []ledger.Identity{100, 200, 300}, ids)
}

// =============================================================================
// DELTA TESTS
// =============================================================================

func TestSQLiteStore_ApplyDelta_DebitAndEntryAreOneUnit(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	_, err := s.EnsureAccount(ctx, 100, "alice", 15)
	require.NoError(t, err)

	newBalance, err := s.ApplyDelta(ctx, 100, -1, ledger.KindSpend, "gen:app_soft_glam")
	require.NoError(t, err)
	assert.Equal(t, int64(14), newBalance)

	entries, err := s.Entries(ctx, 100)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, ledger.KindSpend, entries[0].Kind)
	assert.Equal(t, int64(-1), entries[0].Amount)
}

func TestSQLiteStore_ApplyDelta_GuardRejectsOverdraft(t *testing.T) {
	// GIVEN: A balance of 15
	// WHEN: Applying -16
	// THEN: ErrInsufficientCredits, and neither the row nor the log changed

	s := newTestStore(t)
	ctx := context.Background()
	_, err := s.EnsureAccount(ctx, 100, "alice", 15)
	require.NoError(t, err)

	_, err = s.ApplyDelta(ctx, 100, -16, ledger.KindSpend, "gen:x")
	assert.ErrorIs(t, err, ledger.ErrInsufficientCredits)

	acct, err := s.GetAccount(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, int64(15), acct.Balance)

	entries, err := s.Entries(ctx, 100)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestSQLiteStore_ApplyDelta_MissingAccount(t *testing.T) {
	s := newTestStore(t)

	_, err := s.ApplyDelta(context.Background(), 999, -1, ledger.KindSpend, "")
	assert.ErrorIs(t, err, ledger.ErrAccountNotFound)
}

// =============================================================================
// GRANT TESTS
// =============================================================================

func TestSQLiteStore_ApplyGrant_GuardedByStoredDay(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	_, err := s.EnsureAccount(ctx, 100, "alice", 15)
	require.NoError(t, err)

	day := ledger.Day("2026-08-28")

	granted, balance, err := s.ApplyGrant(ctx, 100, 1, day, ledger.KindDailyBonus, "daily_bonus:2026-08-28")
	require.NoError(t, err)
	assert.True(t, granted)
	assert.Equal(t, int64(16), balance)

	// Same day again: no credit, no entry.
	granted, balance, err = s.ApplyGrant(ctx, 100, 1, day, ledger.KindDailyBonus, "daily_bonus:2026-08-28")
	require.NoError(t, err)
	assert.False(t, granted)
	assert.Equal(t, int64(16), balance)

	entries, err := s.Entries(ctx, 100)
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	// Next day: grants again.
	granted, balance, err = s.ApplyGrant(ctx, 100, 1, day.Next(), ledger.KindDailyBonus, "daily_bonus:2026-08-29")
	require.NoError(t, err)
	assert.True(t, granted)
	assert.Equal(t, int64(17), balance)

	acct, err := s.GetAccount(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, day.Next(), acct.LastBonusDay)
}

func TestSQLiteStore_ApplyGrant_MissingAccount(t *testing.T) {
	s := newTestStore(t)

	_, _, err := s.ApplyGrant(context.Background(), 999, 1, ledger.Day("2026-08-28"), ledger.KindDailyBonus, "")
	assert.ErrorIs(t, err, ledger.ErrAccountNotFound)
}

// =============================================================================
// PERSISTENCE TESTS
// =============================================================================

func TestSQLiteStore_SurvivesReopen(t *testing.T) {
	// GIVEN: Balances and a granted bonus written to a file-backed store
	// WHEN: The store is closed and reopened (process restart)
	// THEN: Balance, last bonus day, and the entry log are all intact

	dbPath := filepath.Join(t.TempDir(), "avatar.db")
	ctx := context.Background()

	s, err := sqlite.New(dbPath)
	require.NoError(t, err)
	_, err = s.EnsureAccount(ctx, 100, "alice", 15)
	require.NoError(t, err)
	_, err = s.ApplyDelta(ctx, 100, -1, ledger.KindSpend, "gen:x")
	require.NoError(t, err)
	_, _, err = s.ApplyGrant(ctx, 100, 1, ledger.Day("2026-08-28"), ledger.KindDailyBonus, "daily_bonus:2026-08-28")
	require.NoError(t, err)
	require.NoError(t, s.Close())

	reopened, err := sqlite.New(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { reopened.Close() })

	acct, err := reopened.GetAccount(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, int64(15), acct.Balance)
	assert.Equal(t, ledger.Day("2026-08-28"), acct.LastBonusDay)

	entries, err := reopened.Entries(ctx, 100)
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	// The grant guard survives the restart too.
	granted, _, err := reopened.ApplyGrant(ctx, 100, 1, ledger.Day("2026-08-28"), ledger.KindDailyBonus, "daily_bonus:2026-08-28")
	require.NoError(t, err)
	assert.False(t, granted)
}
