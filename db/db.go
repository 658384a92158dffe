package db

import (
	"database/sql"
	"errors"

	"github.com/mattn/go-sqlite3"
)

// SQLiteStore keeps accounts and buddy edges in a sqlite database.
type SQLiteStore struct {
	conn  *sql.DB
	locks *ownerLocks
}

func New(path string) (*SQLiteStore, error) {
	conn, err := sql.Open("sqlite3", path+"?_foreign_keys=1&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}
	// A single connection keeps writers from tripping over SQLITE_BUSY.
	conn.SetMaxOpenConns(1)

	db := &SQLiteStore{conn: conn, locks: newOwnerLocks()}
	if err := db.init(); err != nil {
		conn.Close()
		return nil, err
	}

	return db, nil
}

func (db *SQLiteStore) Close() error {
	return db.conn.Close()
}

func (db *SQLiteStore) init() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			login TEXT UNIQUE NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS buddies (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			owner TEXT NOT NULL REFERENCES users(login),
			buddy TEXT NOT NULL REFERENCES users(login),
			UNIQUE(owner, buddy)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_buddies_owner ON buddies(owner)`,
	}

	for _, query := range queries {
		if _, err := db.conn.Exec(query); err != nil {
			return err
		}
	}

	return nil
}

func (db *SQLiteStore) UserExists(login string) (bool, error) {
	var count int
	err := db.conn.QueryRow("SELECT COUNT(*) FROM users WHERE login = ?", login).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (db *SQLiteStore) CreateUser(login string) error {
	if !ValidID(login) {
		return ErrInvalidID
	}

	_, err := db.conn.Exec("INSERT INTO users (login) VALUES (?)", login)
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
		return ErrUserExists
	}
	return err
}

// GetBuddies returns buddies ordered by insertion (autoincrement id).
func (db *SQLiteStore) GetBuddies(owner string) ([]string, error) {
	rows, err := db.conn.Query("SELECT buddy FROM buddies WHERE owner = ? ORDER BY id", owner)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var buddies []string
	for rows.Next() {
		var b string
		if err := rows.Scan(&b); err != nil {
			return nil, err
		}
		buddies = append(buddies, b)
	}

	return buddies, rows.Err()
}

func (db *SQLiteStore) UpdateBuddies(add bool, owner, target string) error {
	unlock := db.locks.lock(owner)
	defer unlock()

	if err := checkEdit(db, add, owner, target); err != nil {
		return err
	}

	var err error
	if add {
		_, err = db.conn.Exec("INSERT OR IGNORE INTO buddies (owner, buddy) VALUES (?, ?)", owner, target)
	} else {
		_, err = db.conn.Exec("DELETE FROM buddies WHERE owner = ? AND buddy = ?", owner, target)
	}
	return err
}

func (db *SQLiteStore) Count() (int, error) {
	var count int
	err := db.conn.QueryRow("SELECT COUNT(*) FROM users").Scan(&count)
	return count, err
}
