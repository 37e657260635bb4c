// Package sessionstore keeps portal sessions between invocations of the CLI
// and across restarts of the daemon.
package sessionstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
	"webopac/internal/components/chrono"
	"webopac/internal/libsys"

	_ "embed"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var Schema string

var ErrNotFound = errors.New("session not found")

func wrapOpenDB(err error) error {
	return fmt.Errorf("open session db: %w", err)
}

// OpenDB opens (creating if needed) the sqlite database at path and applies
// the schema. path may be ":memory:".
func OpenDB(path string) (*sql.DB, error) {
	if path != ":memory:" {
		err := os.MkdirAll(filepath.Dir(path), 0777)
		if err != nil {
			return nil, wrapOpenDB(err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, wrapOpenDB(err)
	}

	// a single connection serializes writers, and keeps an in-memory
	// database alive for as long as the handle is open
	db.SetMaxOpenConns(1)
	_, err = db.Exec("PRAGMA journal_mode=WAL")
	if err != nil {
		db.Close()
		return nil, wrapOpenDB(err)
	}
	_, err = db.Exec(Schema)
	if err != nil {
		db.Close()
		return nil, wrapOpenDB(err)
	}

	return db, nil
}

type Store struct {
	db    *sql.DB
	clock chrono.API
}

func NewStore(db *sql.DB, clock chrono.API) Store {
	return Store{db: db, clock: clock}
}

// Entry is a stored session with the account it belongs to.
type Entry struct {
	Account   string
	Session   libsys.Session
	UpdatedAt time.Time
}

// Save replaces the session stored for account.
func (s Store) Save(ctx context.Context, account string, session libsys.Session) error {
	cookies, err := json.Marshal(session.Cookies)
	if err != nil {
		return err
	}
	state, err := session.State.MarshalText()
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(
		ctx,
		`insert or replace into session(account, state, cookies, csrf_token, sca, updated_at)
		values (?, ?, ?, ?, ?, ?)`,
		account,
		string(state),
		string(cookies),
		session.CsrfToken,
		session.Sca,
		s.clock.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("save session of %s: %w", account, err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(row scanner) (Entry, error) {
	var entry Entry
	var state, cookies string
	var updatedAt int64
	err := row.Scan(
		&entry.Account,
		&state,
		&cookies,
		&entry.Session.CsrfToken,
		&entry.Session.Sca,
		&updatedAt,
	)
	if err != nil {
		return Entry{}, err
	}

	err = entry.Session.State.UnmarshalText([]byte(state))
	if err != nil {
		return Entry{}, err
	}
	err = json.Unmarshal([]byte(cookies), &entry.Session.Cookies)
	if err != nil {
		return Entry{}, fmt.Errorf("decode cookies of %s: %w", entry.Account, err)
	}
	if entry.Session.Cookies == nil {
		entry.Session.Cookies = map[string]string{}
	}
	entry.UpdatedAt = time.Unix(updatedAt, 0)
	return entry, nil
}

const selectEntry = `select account, state, cookies, csrf_token, sca, updated_at from session`

// Load returns the session stored for account, ErrNotFound when there is none.
func (s Store) Load(ctx context.Context, account string) (Entry, error) {
	row := s.db.QueryRowContext(ctx, selectEntry+` where account = ?`, account)
	entry, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, ErrNotFound
	}
	if err != nil {
		return Entry{}, fmt.Errorf("load session of %s: %w", account, err)
	}
	entry.UpdatedAt = entry.UpdatedAt.In(s.clock.Location())
	return entry, nil
}

// List returns every stored session ordered by account.
func (s Store) List(ctx context.Context) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, selectEntry+` order by account`)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("list sessions: %w", err)
		}
		entry.UpdatedAt = entry.UpdatedAt.In(s.clock.Location())
		out = append(out, entry)
	}
	return out, rows.Err()
}

// Delete forgets the session of account. Deleting a missing session is not
// an error.
func (s Store) Delete(ctx context.Context, account string) error {
	_, err := s.db.ExecContext(ctx, `delete from session where account = ?`, account)
	if err != nil {
		return fmt.Errorf("delete session of %s: %w", account, err)
	}
	return nil
}
