package session

import (
	"database/sql"
	"errors"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

var ErrNotFound = errors.New("session not found")

// Session is the explicit authentication context handed to every per-user
// component at construction. Established on login, cleared on logout.
type Session struct {
	ChatID    int64
	UserID    int64
	Name      string
	Email     string
	Token     string
	CreatedAt time.Time
}

// Store persists sessions so a chat stays logged in across restarts. No
// financial state is ever written here; the Gateway owns all of that.
type Store struct {
	db *sql.DB
}

// Open creates the store and initializes the schema.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}

	s := &Store{db: db}
	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) init() error {
	query := `CREATE TABLE IF NOT EXISTS sessions (
		chat_id INTEGER PRIMARY KEY,
		user_id INTEGER NOT NULL,
		name TEXT NOT NULL,
		email TEXT NOT NULL,
		token TEXT NOT NULL,
		created_at INTEGER NOT NULL
	)`

	_, err := s.db.Exec(query)
	return err
}

// Save stores or replaces the session for a chat.
func (s *Store) Save(sess *Session) error {
	_, err := s.db.Exec(
		`INSERT INTO sessions (chat_id, user_id, name, email, token, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(chat_id) DO UPDATE SET
		   user_id = excluded.user_id,
		   name = excluded.name,
		   email = excluded.email,
		   token = excluded.token,
		   created_at = excluded.created_at`,
		sess.ChatID, sess.UserID, sess.Name, sess.Email, sess.Token, sess.CreatedAt.Unix(),
	)
	return err
}

// ByChat returns the session for a chat, or ErrNotFound.
func (s *Store) ByChat(chatID int64) (*Session, error) {
	var sess Session
	var createdAt int64

	err := s.db.QueryRow(
		`SELECT chat_id, user_id, name, email, token, created_at
		 FROM sessions WHERE chat_id = ?`,
		chatID,
	).Scan(&sess.ChatID, &sess.UserID, &sess.Name, &sess.Email, &sess.Token, &createdAt)

	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	sess.CreatedAt = time.Unix(createdAt, 0)
	return &sess, nil
}

// Delete clears the session for a chat (logout).
func (s *Store) Delete(chatID int64) error {
	_, err := s.db.Exec(`DELETE FROM sessions WHERE chat_id = ?`, chatID)
	return err
}
