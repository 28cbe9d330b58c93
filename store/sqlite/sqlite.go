/*
Package sqlite provides the SQLite-backed ledger.Store.

PURPOSE:
  Production persistence for accounts and the entry log. The same patterns
  apply to PostgreSQL with only dialect differences.

KEY TABLES:
  accounts: one row per identity (cached balance, last bonus day)
  entries:  append-only log of every balance change

ATOMICITY:
  Each ledger operation runs in a single database transaction:
  - Debits are a conditional UPDATE guarded by "balance + delta >= 0"; a
    zero-row update distinguishes shortfall from a missing account.
  - The daily grant is a conditional UPDATE guarded by the stored last
    bonus day, so a same-day retry matches zero rows and writes nothing.
  - The entry INSERT commits with the balance UPDATE or not at all.

WAL MODE:
  Opened with WAL so concurrent readers don't block the single writer.

USAGE:
  store, err := sqlite.New("./data/avatar.db")  // ":memory:" for tests
  l := ledger.NewLedger(store, initialBalance)

SEE ALSO:
  - ledger/store.go: The contract this implements
  - ledger/store/memory.go: In-memory equivalent for tests
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/nanoavatar/avatar-engine/ledger"
)

// Store implements ledger.Store on SQLite.
type Store struct {
	db *sql.DB
}

// New opens (and migrates) the database at dbPath. Use ":memory:" for an
// in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite serializes writes anyway; a single connection avoids
	// SQLITE_BUSY under concurrent handlers.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS accounts (
		identity INTEGER PRIMARY KEY,
		display_name TEXT NOT NULL DEFAULT '',
		balance INTEGER NOT NULL CHECK (balance >= 0),
		last_bonus_day TEXT,
		created_at TEXT NOT NULL
	);

	-- Append-only: no UPDATE or DELETE is ever issued against this table.
	CREATE TABLE IF NOT EXISTS entries (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		identity INTEGER NOT NULL,
		kind TEXT NOT NULL,
		amount INTEGER NOT NULL,
		payload TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		FOREIGN KEY(identity) REFERENCES accounts(identity)
	);

	CREATE INDEX IF NOT EXISTS idx_entries_identity ON entries(identity, id);
	CREATE INDEX IF NOT EXISTS idx_entries_kind ON entries(kind);
	`
	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// ACCOUNTS
// =============================================================================

func (s *Store) EnsureAccount(ctx context.Context, id ledger.Identity, displayName string, initialBalance int64) (bool, error) {
	// INSERT OR IGNORE reports zero affected rows when the account already
	// exists, which is exactly the created flag callers need.
	res, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO accounts (identity, display_name, balance, created_at)
		VALUES (?, ?, ?, ?)
	`, int64(id), displayName, initialBalance, now())
	if err != nil {
		return false, fmt.Errorf("failed to ensure account: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if affected > 0 {
		return true, nil
	}

	if displayName != "" {
		_, err = s.db.ExecContext(ctx,
			"UPDATE accounts SET display_name = ? WHERE identity = ?",
			displayName, int64(id),
		)
		if err != nil {
			return false, fmt.Errorf("failed to refresh display name: %w", err)
		}
	}
	return false, nil
}

func (s *Store) GetAccount(ctx context.Context, id ledger.Identity) (ledger.Account, error) {
	var (
		acct     ledger.Account
		identity int64
		bonusDay sql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT identity, display_name, balance, last_bonus_day FROM accounts WHERE identity = ?",
		int64(id),
	).Scan(&identity, &acct.DisplayName, &acct.Balance, &bonusDay)
	if err == sql.ErrNoRows {
		return ledger.Account{}, ledger.ErrAccountNotFound
	}
	if err != nil {
		return ledger.Account{}, fmt.Errorf("failed to load account: %w", err)
	}

	acct.Identity = ledger.Identity(identity)
	if bonusDay.Valid {
		acct.LastBonusDay = ledger.Day(bonusDay.String)
	}
	return acct, nil
}

func (s *Store) Identities(ctx context.Context) ([]ledger.Identity, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT identity FROM accounts ORDER BY identity")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []ledger.Identity
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, ledger.Identity(id))
	}
	return ids, rows.Err()
}

// =============================================================================
// BALANCE MUTATIONS
// =============================================================================

func (s *Store) ApplyDelta(ctx context.Context, id ledger.Identity, delta int64, kind ledger.EntryKind, payload string) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		"UPDATE accounts SET balance = balance + ? WHERE identity = ? AND balance + ? >= 0",
		delta, int64(id), delta,
	)
	if err != nil {
		if isCheckConstraintError(err) {
			return 0, ledger.ErrInsufficientCredits
		}
		return 0, fmt.Errorf("failed to update balance: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if affected == 0 {
		// Either the account is missing or the guard rejected the debit.
		var exists int
		if err := tx.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM accounts WHERE identity = ?", int64(id),
		).Scan(&exists); err != nil {
			return 0, err
		}
		if exists == 0 {
			return 0, ledger.ErrAccountNotFound
		}
		return 0, ledger.ErrInsufficientCredits
	}

	if err := appendEntry(ctx, tx, id, kind, delta, payload); err != nil {
		return 0, err
	}

	var newBalance int64
	if err := tx.QueryRowContext(ctx,
		"SELECT balance FROM accounts WHERE identity = ?", int64(id),
	).Scan(&newBalance); err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit: %w", err)
	}
	return newBalance, nil
}

func (s *Store) ApplyGrant(ctx context.Context, id ledger.Identity, amount int64, day ledger.Day, kind ledger.EntryKind, payload string) (bool, int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// The guard makes the grant idempotent: a second run on the same day
	// (or any earlier day) matches zero rows and writes nothing.
	res, err := tx.ExecContext(ctx, `
		UPDATE accounts SET balance = balance + ?, last_bonus_day = ?
		WHERE identity = ? AND (last_bonus_day IS NULL OR last_bonus_day < ?)
	`, amount, string(day), int64(id), string(day))
	if err != nil {
		return false, 0, fmt.Errorf("failed to apply grant: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, 0, err
	}

	var balance int64
	berr := tx.QueryRowContext(ctx,
		"SELECT balance FROM accounts WHERE identity = ?", int64(id),
	).Scan(&balance)
	if berr == sql.ErrNoRows {
		return false, 0, ledger.ErrAccountNotFound
	}
	if berr != nil {
		return false, 0, berr
	}

	if affected == 0 {
		return false, balance, tx.Commit()
	}

	if err := appendEntry(ctx, tx, id, kind, amount, payload); err != nil {
		return false, 0, err
	}
	if err := tx.Commit(); err != nil {
		return false, 0, fmt.Errorf("failed to commit: %w", err)
	}
	return true, balance, nil
}

// =============================================================================
// ENTRIES
// =============================================================================

func (s *Store) Entries(ctx context.Context, id ledger.Identity) ([]ledger.Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, identity, kind, amount, payload, created_at
		FROM entries WHERE identity = ? ORDER BY id ASC
	`, int64(id))
	if err != nil {
		return nil, fmt.Errorf("failed to query entries: %w", err)
	}
	defer rows.Close()

	var entries []ledger.Entry
	for rows.Next() {
		var (
			e         ledger.Entry
			identity  int64
			createdAt string
		)
		if err := rows.Scan(&e.ID, &identity, &e.Kind, &e.Amount, &e.Payload, &createdAt); err != nil {
			return nil, err
		}
		e.Identity = ledger.Identity(identity)
		e.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func appendEntry(ctx context.Context, tx *sql.Tx, id ledger.Identity, kind ledger.EntryKind, amount int64, payload string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO entries (identity, kind, amount, payload, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, int64(id), string(kind), amount, payload, now())
	if err != nil {
		return fmt.Errorf("failed to append entry: %w", err)
	}
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

func now() string { return time.Now().UTC().Format(time.RFC3339) }

func isCheckConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "CHECK constraint failed")
}
