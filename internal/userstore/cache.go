// Package userstore's Cache type is a local modernc.org/sqlite-backed
// store (SPEC_FULL.md ADDED-C.6): a password-verification cache and a
// channel-list mirror, so tests and a cold boot don't need a live
// MySQL dependency. Migration idiom (ordered statement slice,
// append-only) is grounded on the teacher's store/store.go.
package userstore

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"

	_ "modernc.org/sqlite"
)

var migrations = []string{
	// v1 -- password verification cache, redesigned per spec.md §9's
	// design note to hold sha256(plaintext) rather than the plaintext
	// itself (see DESIGN.md's "Password cache redesign" entry).
	`CREATE TABLE IF NOT EXISTS password_cache (
		user_id    INTEGER PRIMARY KEY,
		hash       TEXT NOT NULL
	)`,
	// v2 -- local mirror of bancho_channels, refreshed from MySQL at
	// boot and used when the primary store is unreachable.
	`CREATE TABLE IF NOT EXISTS channel_mirror (
		name         TEXT PRIMARY KEY,
		description  TEXT NOT NULL DEFAULT '',
		public_read  INTEGER NOT NULL DEFAULT 1,
		public_write INTEGER NOT NULL DEFAULT 1
	)`,
}

// Cache wraps the local sqlite database.
type Cache struct {
	db *sql.DB
}

// OpenCache opens (or creates) the sqlite database at path, applying
// any pending migrations. Use ":memory:" for tests.
func OpenCache(path string) (*Cache, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("userstore cache: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(4)

	c := &Cache{db: db}
	if err := c.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return c, nil
}

func (c *Cache) Close() error { return c.db.Close() }

func (c *Cache) migrate() error {
	if _, err := c.db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY
	)`); err != nil {
		return fmt.Errorf("userstore cache: create schema_migrations: %w", err)
	}
	var current int
	if err := c.db.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&current); err != nil {
		return fmt.Errorf("userstore cache: read schema version: %w", err)
	}
	for i, stmt := range migrations {
		v := i + 1
		if v <= current {
			continue
		}
		if _, err := c.db.Exec(stmt); err != nil {
			return fmt.Errorf("userstore cache: migration %d: %w", v, err)
		}
		if _, err := c.db.Exec(`INSERT INTO schema_migrations(version) VALUES (?)`, v); err != nil {
			return fmt.Errorf("userstore cache: record migration %d: %w", v, err)
		}
	}
	return nil
}

func hashOf(plaintext string) string {
	sum := sha256.Sum256([]byte(plaintext))
	return hex.EncodeToString(sum[:])
}

// VerifyCached returns the cached hash for userID and whether one
// exists; MatchesCache compares it against a plaintext
// (user_helper.py's "passw = glob.cached_passwords.get(user_id);
// if passw: return password == passw" fast path, hashed per the
// redesign).
func (c *Cache) VerifyCached(userID int32) (hash string, ok bool, err error) {
	err = c.db.QueryRow(`SELECT hash FROM password_cache WHERE user_id = ?`, userID).Scan(&hash)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return hash, true, nil
}

// CachePassword records that plaintext verified successfully against
// the bcrypt hash for userID, so the next login for this user can skip
// bcrypt entirely.
func (c *Cache) CachePassword(userID int32, plaintext string) error {
	_, err := c.db.Exec(
		`INSERT INTO password_cache(user_id, hash) VALUES (?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET hash = excluded.hash`,
		userID, hashOf(plaintext),
	)
	return err
}

// MatchesCache reports whether plaintext matches the cached entry for
// userID, without touching bcrypt.
func (c *Cache) MatchesCache(userID int32, plaintext string) (bool, error) {
	hash, ok, err := c.VerifyCached(userID)
	if err != nil || !ok {
		return false, err
	}
	return hash == hashOf(plaintext), nil
}

// InvalidateCache drops a user's cached password, matching the
// peppy:change_pass pub/sub handler (ADDED-C.7).
func (c *Cache) InvalidateCache(userID int32) error {
	_, err := c.db.Exec(`DELETE FROM password_cache WHERE user_id = ?`, userID)
	return err
}

// RefreshChannelMirror replaces the local channel-list mirror with
// rows, called once at boot after a successful MySQL fetch.
func (c *Cache) RefreshChannelMirror(rows []ChannelRow) error {
	tx, err := c.db.Begin()
	if err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM channel_mirror`); err != nil {
		tx.Rollback()
		return err
	}
	for _, row := range rows {
		if _, err := tx.Exec(
			`INSERT INTO channel_mirror(name, description, public_read, public_write) VALUES (?, ?, ?, ?)`,
			row.Name, row.Description, row.PublicRead, row.PublicWrite,
		); err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// MirroredChannels returns the local channel-list mirror, used when
// the primary store is unreachable at boot.
func (c *Cache) MirroredChannels() ([]ChannelRow, error) {
	rows, err := c.db.Query(`SELECT name, description, public_read, public_write FROM channel_mirror`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ChannelRow
	for rows.Next() {
		var c ChannelRow
		if err := rows.Scan(&c.Name, &c.Description, &c.PublicRead, &c.PublicWrite); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
