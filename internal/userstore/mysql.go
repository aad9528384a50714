package userstore

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

// MySQLStore is the primary Store implementation, backed by the same
// relational schema original_source/config.py and pep.py's SQL calls
// assume (spec.md §6 "Persistent store"): users, bancho_channels,
// chat_logs, chat_chan_logs, ban_logs.
type MySQLStore struct {
	db *sql.DB
}

// DialMySQL opens a connection pool against dsn (user:pass@tcp(host:port)/db)
// and verifies connectivity.
func DialMySQL(dsn string) (*MySQLStore, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("userstore: open: %w", err)
	}
	db.SetMaxOpenConns(16)
	db.SetMaxIdleConns(4)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("userstore: ping: %w", err)
	}
	return &MySQLStore{db: db}, nil
}

func (s *MySQLStore) Close() error { return s.db.Close() }

// UserByName performs the single-query login fetch from
// loginEvent.py's handle (id, privileges, silence_end, country by
// username_safe).
func (s *MySQLStore) UserByName(safeUsername string) (User, bool, error) {
	var u User
	err := s.db.QueryRow(
		`SELECT id, username, privileges, silence_end, country FROM users WHERE username_safe = ? LIMIT 1`,
		safeUsername,
	).Scan(&u.ID, &u.Username, &u.Privileges, &u.SilenceEnd, &u.Country)
	if err == sql.ErrNoRows {
		return User{}, false, nil
	}
	if err != nil {
		return User{}, false, err
	}
	return u, true, nil
}

func (s *MySQLStore) UserByID(userID int32) (User, bool, error) {
	var u User
	err := s.db.QueryRow(
		`SELECT id, username, privileges, silence_end, country FROM users WHERE id = ? LIMIT 1`,
		userID,
	).Scan(&u.ID, &u.Username, &u.Privileges, &u.SilenceEnd, &u.Country)
	if err == sql.ErrNoRows {
		return User{}, false, nil
	}
	if err != nil {
		return User{}, false, err
	}
	return u, true, nil
}

// PasswordHash returns the stored bcrypt(md5(password)) hash, matching
// user_helper.py's verify_password fallback query.
func (s *MySQLStore) PasswordHash(userID int32) (string, error) {
	var hash string
	err := s.db.QueryRow(`SELECT password_md5 FROM users WHERE id = ? LIMIT 1`, userID).Scan(&hash)
	return hash, err
}

func (s *MySQLStore) UpdateSilence(userID int32, until int64) error {
	_, err := s.db.Exec(`UPDATE users SET silence_end = ? WHERE id = ? LIMIT 1`, until, userID)
	return err
}

func (s *MySQLStore) UpdatePrivileges(userID int32, privileges uint64) error {
	_, err := s.db.Exec(`UPDATE users SET privileges = ? WHERE id = ? LIMIT 1`, privileges, userID)
	return err
}

// UpdateCountry persists country (spec.md §4.8 step 9: "set country in
// db if user has no country").
func (s *MySQLStore) UpdateCountry(userID int32, country byte) error {
	_, err := s.db.Exec(`UPDATE users SET country = ? WHERE id = ? LIMIT 1`, country, userID)
	return err
}

// FriendIDs loads the user's friends-list ids (friendAddEvent.py /
// friendRemoveEvent.py's userUtils.addFriend/removeFriend imply a
// relationships table; the concrete schema wasn't part of the
// retrieved source, so this assumes a plausible one: user_relationships
// (user_id, friend_id)).
func (s *MySQLStore) FriendIDs(userID int32) ([]int32, error) {
	rows, err := s.db.Query(`SELECT friend_id FROM user_relationships WHERE user_id = ?`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []int32
	for rows.Next() {
		var id int32
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// ChannelList loads the bancho_channels table (spec.md §4.4 "load on
// startup from the user store").
func (s *MySQLStore) ChannelList() ([]ChannelRow, error) {
	rows, err := s.db.Query(`SELECT name, description, public_read, public_write FROM bancho_channels`)
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

// AppendChatLog inserts into chat_logs (PM branch) or chat_chan_logs
// (channel branch, target starting with "#"), matching spec.md §4.5
// "Persist to chat log".
func (s *MySQLStore) AppendChatLog(fromUserID int32, target string, message string, when time.Time) error {
	table := "chat_logs"
	if strings.HasPrefix(target, "#") {
		table = "chat_chan_logs"
	}
	_, err := s.db.Exec(
		`INSERT INTO `+table+`(from_id, target, message, time) VALUES (?, ?, ?, ?)`,
		fromUserID, target, message, when.Unix(),
	)
	return err
}

func (s *MySQLStore) AppendMatchLog(matchID uint32, message string, when time.Time) error {
	_, err := s.db.Exec(
		`INSERT INTO chat_chan_logs(from_id, target, message, time) VALUES (0, ?, ?, ?)`,
		fmt.Sprintf("#multi_%d", matchID), message, when.Unix(),
	)
	return err
}

func (s *MySQLStore) InsertBan(userID int32, reason string, bannedBy int32, when time.Time) error {
	_, err := s.db.Exec(
		`INSERT INTO ban_logs(user_id, reason, banned_by, time) VALUES (?, ?, ?, ?)`,
		userID, reason, bannedBy, when.Unix(),
	)
	return err
}
