package core

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/muzlabs/muzgpt/internal/store"
)

var (
	// ErrDailyLimit is a policy denial, not a failure: the caller should
	// surface an upgrade prompt and must not call the relay.
	ErrDailyLimit = errors.New("daily message limit reached")

	// ErrModeLocked means a premium persona was requested on the free tier.
	ErrModeLocked = errors.New("mode requires premium")

	ErrChatNotFound = errors.New("chat not found")
	ErrUserNotFound = errors.New("user not found")
)

// freeHistoryWindow bounds the conversation history forwarded upstream on the
// free tier. A cost-control policy, not a correctness one.
const freeHistoryWindow = 4

// turnDeadline bounds a single generation call so a hung upstream cannot hang
// the turn forever.
const turnDeadline = 2 * time.Minute

// Streamer produces a model reply as an incremental sequence of fragments.
// *Relay is the production implementation.
type Streamer interface {
	Stream(ctx context.Context, mode Mode, prompt string, history []store.Message, onChunk func(string)) error
}

// ChatService owns the turn pipeline: usage gate, streaming relay, XP award
// and session persistence, in that order.
type ChatService struct {
	dbStore *store.SQLiteStore
	relay   Streamer
	engine  *XPEngine
}

func NewChatService(db *store.SQLiteStore, relay Streamer, engine *XPEngine) *ChatService {
	return &ChatService{
		dbStore: db,
		relay:   relay,
		engine:  engine,
	}
}

// TurnResult is what a completed chat turn produces.
type TurnResult struct {
	ChatID     string        `json:"chatId"`
	UserMsg    store.Message `json:"userMessage"`
	ModelMsg   store.Message `json:"modelMessage"`
	XPToast    XPEvent       `json:"xpToast"`
	DailyUsage int           `json:"dailyUsage"`
}

// PostTurn runs one chat turn for the user: gate check, relay streaming into
// an in-flight model message (each fragment also forwarded to onChunk), then
// usage increment, XP award and session upsert. chatID may be empty to start
// a new conversation.
func (s *ChatService) PostTurn(ctx context.Context, userID, chatID string, mode Mode, text string, onChunk func(string)) (*TurnResult, error) {
	user, err := s.dbStore.GetUserByID(userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	if user == nil {
		return nil, ErrUserNotFound
	}

	if !ValidMode(mode) {
		mode = Mode(user.SelectedMode)
		if !ValidMode(mode) {
			mode = ModeGeneral
		}
	}
	if !ModeAllowedForTier(mode, user.Tier) {
		return nil, ErrModeLocked
	}

	if ResetUsageIfStale(user, time.Now()) {
		if err := s.dbStore.UpdateUser(user); err != nil {
			log.Printf("Failed to persist usage reset for user %s: %v", user.ID, err)
		}
	}
	if !AllowTurn(user.Tier, user.DailyUsage) {
		return nil, ErrDailyLimit
	}

	var history []store.Message
	if chatID != "" {
		chat, err := s.dbStore.GetChatByID(chatID, userID)
		if err != nil {
			return nil, fmt.Errorf("failed to verify chat: %w", err)
		}
		if chat == nil {
			return nil, ErrChatNotFound
		}
		history, err = s.dbStore.GetMessagesByChatID(chatID, 1000, 0)
		if err != nil {
			return nil, fmt.Errorf("failed to load chat history: %w", err)
		}
	}

	userMsg := store.Message{
		Sender:  "user",
		Content: text,
	}

	relayHistory := history
	if user.Tier == TierFree && len(relayHistory) > freeHistoryWindow {
		relayHistory = relayHistory[len(relayHistory)-freeHistoryWindow:]
	}

	// The model message grows append-only while fragments arrive.
	var full strings.Builder
	streamCtx, cancel := context.WithTimeout(ctx, turnDeadline)
	defer cancel()

	err = s.relay.Stream(streamCtx, mode, text, relayHistory, func(chunk string) {
		full.WriteString(chunk)
		if onChunk != nil {
			onChunk(chunk)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("relay stream aborted: %w", err)
	}

	modelMsg := store.Message{
		Sender:  "model",
		Content: full.String(),
		Mode:    string(mode),
	}

	// Turn completed: count it and award XP exactly once.
	user.DailyUsage++
	user.SelectedMode = string(mode)
	user.LastActive = time.Now()
	toast := s.engine.Award(user, XPChatTurn, ReasonChatTurn)
	if err := s.dbStore.UpdateUser(user); err != nil {
		log.Printf("Failed to persist turn state for user %s: %v", user.ID, err)
	}

	messages := append(history, userMsg, modelMsg)
	newChatID, err := s.dbStore.UpsertChat(userID, chatID, messages, string(mode))
	if err != nil {
		return nil, fmt.Errorf("failed to save chat session: %w", err)
	}

	return &TurnResult{
		ChatID:     newChatID,
		UserMsg:    messages[len(messages)-2],
		ModelMsg:   messages[len(messages)-1],
		XPToast:    toast,
		DailyUsage: user.DailyUsage,
	}, nil
}

// GetChats lists the user's sessions, most recently updated first.
func (s *ChatService) GetChats(userID string) ([]store.Chat, error) {
	return s.dbStore.GetChatsByUserID(userID)
}

func (s *ChatService) GetChatDetails(chatID, userID string) (*store.Chat, []store.Message, error) {
	chat, err := s.dbStore.GetChatByID(chatID, userID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get chat: %w", err)
	}
	if chat == nil {
		return nil, nil, nil // Not found
	}

	messages, err := s.dbStore.GetMessagesByChatID(chatID, 1000, 0)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get messages for chat: %w", err)
	}
	return chat, messages, nil
}

func (s *ChatService) DeleteChat(chatID, userID string) error {
	err := s.dbStore.DeleteChat(chatID, userID)
	if errors.Is(err, store.ErrChatNotFound) {
		return ErrChatNotFound
	}
	return err
}

// Events exposes the user's live XP toasts.
func (s *ChatService) Events(userID string) []XPEvent {
	return s.engine.Events(userID)
}
