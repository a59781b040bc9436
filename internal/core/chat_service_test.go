package core

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/muzlabs/muzgpt/internal/store"
)

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	dbStore, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test store: %v", err)
	}
	t.Cleanup(func() { dbStore.Close() })
	return dbStore
}

func newTestUser(t *testing.T, dbStore *store.SQLiteStore, tier string) *store.User {
	t.Helper()
	user := &store.User{
		Email:          "test@example.com",
		Username:       "test",
		XP:             50,
		Level:          1,
		Streak:         1,
		SelectedMode:   string(ModeGeneral),
		Tier:           tier,
		LastUsageReset: DateStamp(time.Now()),
	}
	if err := dbStore.CreateUser(user); err != nil {
		t.Fatalf("failed to create test user: %v", err)
	}
	return user
}

func newTestChatService(dbStore *store.SQLiteStore) *ChatService {
	return NewChatService(dbStore, NewSimRelay(0, 0), NewXPEngine())
}

func TestPostTurnCompletesAndAwardsOnce(t *testing.T) {
	dbStore := newTestStore(t)
	user := newTestUser(t, dbStore, TierFree)
	svc := newTestChatService(dbStore)

	var streamed strings.Builder
	result, err := svc.PostTurn(context.Background(), user.ID, "", ModeGeneral, "hello world", func(c string) {
		streamed.WriteString(c)
	})
	if err != nil {
		t.Fatalf("turn failed: %v", err)
	}

	if result.ChatID == "" {
		t.Fatal("turn should create a chat")
	}
	if result.ModelMsg.Content != streamed.String() {
		t.Fatal("stored model message must equal the streamed fragments")
	}
	if result.ModelMsg.Mode != string(ModeGeneral) {
		t.Fatalf("model message should carry the mode tag, got %q", result.ModelMsg.Mode)
	}
	if result.XPToast.Amount != XPChatTurn || result.XPToast.Reason != ReasonChatTurn {
		t.Fatalf("unexpected toast: %+v", result.XPToast)
	}
	if result.DailyUsage != 1 {
		t.Fatalf("expected usage 1 after first turn, got %d", result.DailyUsage)
	}

	// XP applied exactly once, persisted.
	fresh, err := dbStore.GetUserByID(user.ID)
	if err != nil {
		t.Fatalf("failed to reload user: %v", err)
	}
	if fresh.XP != 50+XPChatTurn {
		t.Fatalf("expected xp %d, got %d", 50+XPChatTurn, fresh.XP)
	}
	if fresh.DailyUsage != 1 {
		t.Fatalf("expected persisted usage 1, got %d", fresh.DailyUsage)
	}
}

func TestPostTurnDeniedAtDailyLimit(t *testing.T) {
	dbStore := newTestStore(t)
	user := newTestUser(t, dbStore, TierFree)
	user.DailyUsage = DailyLimits[TierFree]
	if err := dbStore.UpdateUser(user); err != nil {
		t.Fatalf("failed to set usage: %v", err)
	}
	svc := newTestChatService(dbStore)

	relayCalled := false
	_, err := svc.PostTurn(context.Background(), user.ID, "", ModeGeneral, "sixteenth message", func(string) {
		relayCalled = true
	})
	if err != ErrDailyLimit {
		t.Fatalf("expected ErrDailyLimit, got %v", err)
	}
	if relayCalled {
		t.Fatal("relay must not run on a denied turn")
	}

	// Denial never decrements (or increments) usage.
	fresh, _ := dbStore.GetUserByID(user.ID)
	if fresh.DailyUsage != DailyLimits[TierFree] {
		t.Fatalf("usage changed on denial: %d", fresh.DailyUsage)
	}
	// And no XP was awarded.
	if fresh.XP != 50 {
		t.Fatalf("xp changed on denial: %d", fresh.XP)
	}
}

func TestPostTurnPremiumModeLockedOnFreeTier(t *testing.T) {
	dbStore := newTestStore(t)
	user := newTestUser(t, dbStore, TierFree)
	svc := newTestChatService(dbStore)

	_, err := svc.PostTurn(context.Background(), user.ID, "", ModeStartup, "pitch me", nil)
	if err != ErrModeLocked {
		t.Fatalf("expected ErrModeLocked, got %v", err)
	}

	// The same mode works on premium.
	if err := dbStore.SetUserTier(user.ID, TierPremium); err != nil {
		t.Fatalf("failed to set tier: %v", err)
	}
	if _, err := svc.PostTurn(context.Background(), user.ID, "", ModeStartup, "pitch me", nil); err != nil {
		t.Fatalf("premium turn failed: %v", err)
	}
}

func TestPostTurnIntoExistingChatKeepsOneSession(t *testing.T) {
	dbStore := newTestStore(t)
	user := newTestUser(t, dbStore, TierFree)
	svc := newTestChatService(dbStore)

	first, err := svc.PostTurn(context.Background(), user.ID, "", ModeGeneral, "first", nil)
	if err != nil {
		t.Fatalf("first turn failed: %v", err)
	}
	second, err := svc.PostTurn(context.Background(), user.ID, first.ChatID, ModeGeneral, "second", nil)
	if err != nil {
		t.Fatalf("second turn failed: %v", err)
	}
	if second.ChatID != first.ChatID {
		t.Fatal("turn into an existing chat must not create a new session")
	}

	chats, err := svc.GetChats(user.ID)
	if err != nil {
		t.Fatalf("failed to list chats: %v", err)
	}
	if len(chats) != 1 {
		t.Fatalf("expected 1 chat, got %d", len(chats))
	}

	_, messages, err := svc.GetChatDetails(first.ChatID, user.ID)
	if err != nil {
		t.Fatalf("failed to get chat details: %v", err)
	}
	if len(messages) != 4 {
		t.Fatalf("expected 4 messages after two turns, got %d", len(messages))
	}
}

// recordingStreamer captures the history each turn forwards upstream while
// delegating the actual streaming to the simulation relay.
type recordingStreamer struct {
	inner     *Relay
	histories [][]store.Message
}

func (r *recordingStreamer) Stream(ctx context.Context, mode Mode, prompt string, history []store.Message, onChunk func(string)) error {
	snapshot := make([]store.Message, len(history))
	copy(snapshot, history)
	r.histories = append(r.histories, snapshot)
	return r.inner.Stream(ctx, mode, prompt, history, onChunk)
}

func TestPostTurnTruncatesHistoryForFreeTier(t *testing.T) {
	dbStore := newTestStore(t)
	user := newTestUser(t, dbStore, TierFree)
	rec := &recordingStreamer{inner: NewSimRelay(0, 0)}
	svc := NewChatService(dbStore, rec, NewXPEngine())

	// Seed a session with three prior turns (six messages).
	var seed []store.Message
	for i := 0; i < 3; i++ {
		seed = append(seed,
			store.Message{Sender: "user", Content: "question"},
			store.Message{Sender: "model", Content: "answer"},
		)
	}
	chatID, err := dbStore.UpsertChat(user.ID, "", seed, string(ModeGeneral))
	if err != nil {
		t.Fatalf("failed to seed chat: %v", err)
	}

	if _, err := svc.PostTurn(context.Background(), user.ID, chatID, ModeGeneral, "next", nil); err != nil {
		t.Fatalf("free-tier turn failed: %v", err)
	}
	if len(rec.histories) != 1 {
		t.Fatalf("expected one relay call, got %d", len(rec.histories))
	}
	got := rec.histories[0]
	if len(got) != 4 {
		t.Fatalf("free tier should forward the last 4 messages, got %d", len(got))
	}
	// The window is the tail of the conversation, ending on the latest reply.
	if got[len(got)-1].Sender != "model" || got[0].Sender != "user" {
		t.Fatalf("window is not the conversation tail: %+v", got)
	}

	// Premium forwards the full history (now 8 messages after the turn above).
	if err := dbStore.SetUserTier(user.ID, TierPremium); err != nil {
		t.Fatalf("failed to set tier: %v", err)
	}
	if _, err := svc.PostTurn(context.Background(), user.ID, chatID, ModeGeneral, "again", nil); err != nil {
		t.Fatalf("premium turn failed: %v", err)
	}
	if got := rec.histories[1]; len(got) != 8 {
		t.Fatalf("premium tier should forward all 8 messages, got %d", len(got))
	}
}

func TestPostTurnUnknownChat(t *testing.T) {
	dbStore := newTestStore(t)
	user := newTestUser(t, dbStore, TierFree)
	svc := newTestChatService(dbStore)

	_, err := svc.PostTurn(context.Background(), user.ID, "no-such-chat", ModeGeneral, "hello", nil)
	if err != ErrChatNotFound {
		t.Fatalf("expected ErrChatNotFound, got %v", err)
	}
}

func TestDeleteChatRemovesSession(t *testing.T) {
	dbStore := newTestStore(t)
	user := newTestUser(t, dbStore, TierFree)
	svc := newTestChatService(dbStore)

	result, err := svc.PostTurn(context.Background(), user.ID, "", ModeGeneral, "hello", nil)
	if err != nil {
		t.Fatalf("turn failed: %v", err)
	}

	if err := svc.DeleteChat(result.ChatID, user.ID); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	chats, _ := svc.GetChats(user.ID)
	if len(chats) != 0 {
		t.Fatalf("expected no chats after delete, got %d", len(chats))
	}
	if err := svc.DeleteChat(result.ChatID, user.ID); err != ErrChatNotFound {
		t.Fatalf("expected ErrChatNotFound on double delete, got %v", err)
	}
}
