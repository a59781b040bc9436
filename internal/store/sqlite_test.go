package store

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"
	"unicode/utf8"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func seedUser(t *testing.T, s *SQLiteStore) *User {
	t.Helper()
	user := &User{
		Email:          "alice@example.com",
		Username:       "alice",
		XP:             50,
		Level:          1,
		Streak:         1,
		SelectedMode:   "general",
		Tier:           "free",
		LastUsageReset: time.Now().Format("2006-01-02"),
	}
	if err := s.CreateUser(user); err != nil {
		t.Fatalf("failed to create user: %v", err)
	}
	return user
}

func TestUserRoundTrip(t *testing.T) {
	s := newTestStore(t)
	user := seedUser(t, s)

	got, err := s.GetUserByEmail("ALICE@example.com")
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	if got == nil {
		t.Fatal("user not found by case-insensitive email")
	}
	if got.ID != user.ID || got.XP != 50 || got.Tier != "free" {
		t.Fatalf("round trip mismatch: %+v", got)
	}

	missing, err := s.GetUserByEmail("nobody@example.com")
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	if missing != nil {
		t.Fatal("expected nil for unknown email")
	}
}

func TestDuplicateEmailInsertFails(t *testing.T) {
	s := newTestStore(t)
	seedUser(t, s)

	err := s.CreateUser(&User{Email: "Alice@Example.com", Username: "imposter", LastUsageReset: "2026-01-01"})
	if err == nil {
		t.Fatal("duplicate email insert should fail")
	}
}

func TestUpdateUserDoesNotTouchTier(t *testing.T) {
	s := newTestStore(t)
	user := seedUser(t, s)

	user.XP = 500
	user.Tier = "premium" // must be ignored by the generic update
	if err := s.UpdateUser(user); err != nil {
		t.Fatalf("update failed: %v", err)
	}

	got, _ := s.GetUserByID(user.ID)
	if got.XP != 500 {
		t.Fatalf("xp not updated: %d", got.XP)
	}
	if got.Tier != "free" {
		t.Fatalf("generic update changed tier: %s", got.Tier)
	}

	if err := s.SetUserTier(user.ID, "premium"); err != nil {
		t.Fatalf("SetUserTier failed: %v", err)
	}
	got, _ = s.GetUserByID(user.ID)
	if got.Tier != "premium" {
		t.Fatalf("tier not set: %s", got.Tier)
	}
}

func TestUpsertChatCreatesExactlyOne(t *testing.T) {
	s := newTestStore(t)
	user := seedUser(t, s)

	msgs := []Message{
		{Sender: "user", Content: "hello"},
		{Sender: "model", Content: "hi there", Mode: "general"},
	}
	chatID, err := s.UpsertChat(user.ID, "", msgs, "general")
	if err != nil {
		t.Fatalf("upsert failed: %v", err)
	}

	chats, err := s.GetChatsByUserID(user.ID)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(chats) != 1 {
		t.Fatalf("expected exactly one chat, got %d", len(chats))
	}
	if chats[0].ID != chatID {
		t.Fatalf("listed chat id mismatch: %s vs %s", chats[0].ID, chatID)
	}
	if chats[0].Title != "hello..." {
		t.Fatalf("unexpected derived title %q", chats[0].Title)
	}
}

func TestUpsertChatKnownIDKeepsCollectionSize(t *testing.T) {
	s := newTestStore(t)
	user := seedUser(t, s)

	msgs := []Message{{Sender: "user", Content: "hello"}}
	chatID, err := s.UpsertChat(user.ID, "", msgs, "general")
	if err != nil {
		t.Fatalf("initial upsert failed: %v", err)
	}

	longer := []Message{
		{Sender: "user", Content: "hello"},
		{Sender: "model", Content: "hi", Mode: "general"},
		{Sender: "user", Content: "more"},
		{Sender: "model", Content: "sure", Mode: "student"},
	}
	sameID, err := s.UpsertChat(user.ID, chatID, longer, "student")
	if err != nil {
		t.Fatalf("second upsert failed: %v", err)
	}
	if sameID != chatID {
		t.Fatalf("upsert with known id returned a different id: %s", sameID)
	}

	chats, _ := s.GetChatsByUserID(user.ID)
	if len(chats) != 1 {
		t.Fatalf("known-id upsert changed collection size: %d", len(chats))
	}
	if chats[0].Mode != "student" {
		t.Fatalf("mode not updated in place: %s", chats[0].Mode)
	}

	messages, err := s.GetMessagesByChatID(chatID, 100, 0)
	if err != nil {
		t.Fatalf("get messages failed: %v", err)
	}
	if len(messages) != 4 {
		t.Fatalf("message list not replaced wholesale: %d", len(messages))
	}
}

func TestUpsertChatUnknownID(t *testing.T) {
	s := newTestStore(t)
	user := seedUser(t, s)

	_, err := s.UpsertChat(user.ID, "missing-id", []Message{{Sender: "user", Content: "x"}}, "general")
	if !errors.Is(err, ErrChatNotFound) {
		t.Fatalf("expected ErrChatNotFound, got %v", err)
	}
}

func TestDeriveChatTitle(t *testing.T) {
	if got := DeriveChatTitle(nil); got != "New Link" {
		t.Fatalf("empty conversation title = %q", got)
	}
	if got := DeriveChatTitle([]Message{{Content: "short"}}); got != "short..." {
		t.Fatalf("short title = %q", got)
	}
	long := strings.Repeat("a", 60)
	got := DeriveChatTitle([]Message{{Content: long}})
	if got != strings.Repeat("a", 35)+"..." {
		t.Fatalf("long title = %q", got)
	}

	// Truncation counts runes, never splitting a multi-byte character.
	wide := strings.Repeat("日", 40)
	got = DeriveChatTitle([]Message{{Content: wide}})
	if !utf8.ValidString(got) {
		t.Fatalf("title is not valid UTF-8: %q", got)
	}
	if got != strings.Repeat("日", 35)+"..." {
		t.Fatalf("wide title = %q", got)
	}
}

func TestDeleteChatRemovesMessages(t *testing.T) {
	s := newTestStore(t)
	user := seedUser(t, s)

	chatID, err := s.UpsertChat(user.ID, "", []Message{{Sender: "user", Content: "bye"}}, "general")
	if err != nil {
		t.Fatalf("upsert failed: %v", err)
	}
	if err := s.DeleteChat(chatID, user.ID); err != nil {
		t.Fatalf("delete failed: %v", err)
	}

	messages, err := s.GetMessagesByChatID(chatID, 100, 0)
	if err != nil {
		t.Fatalf("get messages failed: %v", err)
	}
	if len(messages) != 0 {
		t.Fatalf("messages survived chat deletion: %d", len(messages))
	}
	if err := s.DeleteChat(chatID, user.ID); !errors.Is(err, ErrChatNotFound) {
		t.Fatalf("expected ErrChatNotFound on double delete, got %v", err)
	}
}

func TestChatsOrderedByRecency(t *testing.T) {
	s := newTestStore(t)
	user := seedUser(t, s)

	firstID, _ := s.UpsertChat(user.ID, "", []Message{{Sender: "user", Content: "first"}}, "general")
	time.Sleep(5 * time.Millisecond)
	secondID, _ := s.UpsertChat(user.ID, "", []Message{{Sender: "user", Content: "second"}}, "general")

	chats, _ := s.GetChatsByUserID(user.ID)
	if len(chats) != 2 {
		t.Fatalf("expected 2 chats, got %d", len(chats))
	}
	if chats[0].ID != secondID {
		t.Fatal("most recent chat should come first")
	}

	// Touching the older chat moves it to the front.
	time.Sleep(5 * time.Millisecond)
	if _, err := s.UpsertChat(user.ID, firstID, []Message{{Sender: "user", Content: "first again"}}, "general"); err != nil {
		t.Fatalf("touch failed: %v", err)
	}
	chats, _ = s.GetChatsByUserID(user.ID)
	if chats[0].ID != firstID {
		t.Fatal("updated chat should move to the front")
	}
}
