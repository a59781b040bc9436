package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

const chatTitleLimit = 35

// ErrChatNotFound reports a chat id that does not exist or belongs to a
// different user.
var ErrChatNotFound = errors.New("chat not found")

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dataSourceName string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err = db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err = store.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) initSchema() error {
	schema := `
    CREATE TABLE IF NOT EXISTS users (
        id TEXT PRIMARY KEY, -- UUID
        email TEXT UNIQUE NOT NULL,
        username TEXT NOT NULL,
        password_hash TEXT NOT NULL DEFAULT '',
        xp INTEGER NOT NULL DEFAULT 0,
        level INTEGER NOT NULL DEFAULT 1,
        streak INTEGER NOT NULL DEFAULT 1,
        completed_tasks INTEGER NOT NULL DEFAULT 0,
        selected_mode TEXT NOT NULL DEFAULT 'general',
        tier TEXT NOT NULL DEFAULT 'free' CHECK (tier IN ('free', 'premium')),
        daily_usage INTEGER NOT NULL DEFAULT 0,
        last_usage_reset TEXT NOT NULL,
        email_verified BOOLEAN NOT NULL DEFAULT FALSE,
        created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
        last_active DATETIME DEFAULT CURRENT_TIMESTAMP
    );

    CREATE TABLE IF NOT EXISTS chats (
        id TEXT PRIMARY KEY, -- UUID
        user_id TEXT NOT NULL,
        title TEXT NOT NULL,
        mode TEXT NOT NULL DEFAULT 'general',
        created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
        updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
        FOREIGN KEY (user_id) REFERENCES users (id)
    );

    CREATE TABLE IF NOT EXISTS messages (
        id TEXT PRIMARY KEY, -- UUID
        chat_id TEXT NOT NULL,
        sender TEXT NOT NULL CHECK (sender IN ('user', 'model')),
        content TEXT NOT NULL,
        mode TEXT NOT NULL DEFAULT '',
        timestamp DATETIME DEFAULT CURRENT_TIMESTAMP,
        FOREIGN KEY (chat_id) REFERENCES chats (id)
    );
    `
	_, err := s.db.Exec(schema)
	return err
}

// User methods

func (s *SQLiteStore) GetUserByEmail(email string) (*User, error) {
	return s.queryUser("SELECT "+userColumns+" FROM users WHERE email = ?", strings.ToLower(email))
}

func (s *SQLiteStore) GetUserByID(id string) (*User, error) {
	return s.queryUser("SELECT "+userColumns+" FROM users WHERE id = ?", id)
}

const userColumns = "id, email, username, password_hash, xp, level, streak, completed_tasks, selected_mode, tier, daily_usage, last_usage_reset, email_verified, created_at, last_active"

func (s *SQLiteStore) queryUser(query string, args ...any) (*User, error) {
	var user User
	err := s.db.QueryRow(query, args...).Scan(
		&user.ID, &user.Email, &user.Username, &user.PasswordHash,
		&user.XP, &user.Level, &user.Streak, &user.CompletedTasks,
		&user.SelectedMode, &user.Tier, &user.DailyUsage, &user.LastUsageReset,
		&user.EmailVerified, &user.CreatedAt, &user.LastActive,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // User not found
		}
		return nil, fmt.Errorf("failed to query user: %w", err)
	}
	return &user, nil
}

func (s *SQLiteStore) CreateUser(user *User) error {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	user.Email = strings.ToLower(user.Email)
	now := time.Now()
	user.CreatedAt = now
	user.LastActive = now

	_, err := s.db.Exec(
		"INSERT INTO users (id, email, username, password_hash, xp, level, streak, completed_tasks, selected_mode, tier, daily_usage, last_usage_reset, email_verified, created_at, last_active) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
		user.ID, user.Email, user.Username, user.PasswordHash,
		user.XP, user.Level, user.Streak, user.CompletedTasks,
		user.SelectedMode, user.Tier, user.DailyUsage, user.LastUsageReset,
		user.EmailVerified, user.CreatedAt, user.LastActive,
	)
	if err != nil {
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

// UpdateUser writes back every mutable profile field except tier. Tier changes
// go through SetUserTier only.
func (s *SQLiteStore) UpdateUser(user *User) error {
	res, err := s.db.Exec(
		"UPDATE users SET username = ?, xp = ?, level = ?, streak = ?, completed_tasks = ?, selected_mode = ?, daily_usage = ?, last_usage_reset = ?, email_verified = ?, last_active = ? WHERE id = ?",
		user.Username, user.XP, user.Level, user.Streak, user.CompletedTasks,
		user.SelectedMode, user.DailyUsage, user.LastUsageReset,
		user.EmailVerified, user.LastActive, user.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return fmt.Errorf("user not found")
	}
	return nil
}

func (s *SQLiteStore) SetUserTier(userID, tier string) error {
	res, err := s.db.Exec("UPDATE users SET tier = ? WHERE id = ?", tier, userID)
	if err != nil {
		return fmt.Errorf("failed to update tier: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return fmt.Errorf("user not found")
	}
	return nil
}

// Chat methods

// DeriveChatTitle produces a session title from the first message of a
// conversation: a fixed-length prefix plus an ellipsis marker, or a
// placeholder when the conversation is empty.
func DeriveChatTitle(messages []Message) string {
	if len(messages) == 0 || messages[0].Content == "" {
		return "New Link"
	}
	text := messages[0].Content
	if runes := []rune(text); len(runes) > chatTitleLimit {
		text = string(runes[:chatTitleLimit])
	}
	return text + "..."
}

// UpsertChat replaces the message list and mode of an existing chat, or
// creates a new chat when chatID is empty. It returns the chat's id. The
// whole operation runs in one transaction so a failed turn never leaves a
// half-written session behind.
func (s *SQLiteStore) UpsertChat(userID, chatID string, messages []Message, mode string) (string, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now()
	if chatID != "" {
		res, err := tx.Exec("UPDATE chats SET mode = ?, updated_at = ? WHERE id = ? AND user_id = ?", mode, now, chatID, userID)
		if err != nil {
			return "", fmt.Errorf("failed to update chat: %w", err)
		}
		affected, _ := res.RowsAffected()
		if affected == 0 {
			return "", ErrChatNotFound
		}
		if _, err := tx.Exec("DELETE FROM messages WHERE chat_id = ?", chatID); err != nil {
			return "", fmt.Errorf("failed to clear chat messages: %w", err)
		}
	} else {
		chatID = uuid.NewString()
		title := DeriveChatTitle(messages)
		_, err := tx.Exec("INSERT INTO chats (id, user_id, title, mode, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)",
			chatID, userID, title, mode, now, now)
		if err != nil {
			return "", fmt.Errorf("failed to insert chat: %w", err)
		}
	}

	for i := range messages {
		msg := &messages[i]
		if msg.ID == "" {
			msg.ID = uuid.NewString()
		}
		if msg.Timestamp.IsZero() {
			msg.Timestamp = now
		}
		msg.ChatID = chatID
		_, err := tx.Exec("INSERT INTO messages (id, chat_id, sender, content, mode, timestamp) VALUES (?, ?, ?, ?, ?, ?)",
			msg.ID, msg.ChatID, msg.Sender, msg.Content, msg.Mode, msg.Timestamp)
		if err != nil {
			return "", fmt.Errorf("failed to insert message: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit chat upsert: %w", err)
	}
	return chatID, nil
}

func (s *SQLiteStore) GetChatByID(chatID, userID string) (*Chat, error) {
	var chat Chat
	err := s.db.QueryRow("SELECT id, user_id, title, mode, created_at, updated_at FROM chats WHERE id = ? AND user_id = ?", chatID, userID).
		Scan(&chat.ID, &chat.UserID, &chat.Title, &chat.Mode, &chat.CreatedAt, &chat.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("failed to get chat: %w", err)
	}
	return &chat, nil
}

func (s *SQLiteStore) GetChatsByUserID(userID string) ([]Chat, error) {
	rows, err := s.db.Query("SELECT id, user_id, title, mode, created_at, updated_at FROM chats WHERE user_id = ? ORDER BY updated_at DESC", userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query chats: %w", err)
	}
	defer rows.Close()

	var chats []Chat
	for rows.Next() {
		var chat Chat
		if err := rows.Scan(&chat.ID, &chat.UserID, &chat.Title, &chat.Mode, &chat.CreatedAt, &chat.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan chat row: %w", err)
		}
		chats = append(chats, chat)
	}
	return chats, nil
}

func (s *SQLiteStore) DeleteChat(chatID, userID string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec("DELETE FROM chats WHERE id = ? AND user_id = ?", chatID, userID)
	if err != nil {
		return fmt.Errorf("failed to delete chat: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return ErrChatNotFound
	}
	if _, err := tx.Exec("DELETE FROM messages WHERE chat_id = ?", chatID); err != nil {
		return fmt.Errorf("failed to delete chat messages: %w", err)
	}
	return tx.Commit()
}

// Message methods

func (s *SQLiteStore) GetMessagesByChatID(chatID string, limit int, offset int) ([]Message, error) {
	query := "SELECT id, chat_id, sender, content, mode, timestamp FROM messages WHERE chat_id = ? ORDER BY timestamp ASC LIMIT ? OFFSET ?"
	rows, err := s.db.Query(query, chatID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		var msg Message
		if err := rows.Scan(&msg.ID, &msg.ChatID, &msg.Sender, &msg.Content, &msg.Mode, &msg.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan message row: %w", err)
		}
		messages = append(messages, msg)
	}
	return messages, nil
}
