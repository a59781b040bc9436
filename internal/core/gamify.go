package core

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/muzlabs/muzgpt/internal/store"
)

// Fixed award schedule applied by the orchestrator.
const (
	XPChatTurn    = 15
	XPUpgrade     = 250
	XPWelcome     = 50
	XPTaskMinimum = 20 // awards at or above this count as a completed task

	ReasonChatTurn  = "Neural Sync Success"
	ReasonUpgrade   = "Premium Status Active"
	ReasonFirstSync = "Neural Link Established"
)

const toastTTL = 4 * time.Second

type XPEvent struct {
	ID     string `json:"id"`
	Amount int    `json:"amount"`
	Reason string `json:"reason"`
}

// LevelForXP derives the level from total experience. Level 1 starts at zero
// XP and every 100 XP is one level.
func LevelForXP(xp int) int {
	return xp/100 + 1
}

// XPEngine applies experience awards to user records and keeps a short-lived
// queue of toast notifications per user, each toast expiring on its own timer.
type XPEngine struct {
	mu     sync.Mutex
	ttl    time.Duration
	toasts map[string][]XPEvent // keyed by user id
}

func NewXPEngine() *XPEngine {
	return &XPEngine{ttl: toastTTL, toasts: make(map[string][]XPEvent)}
}

// Award adds XP to the user (when amount > 0), recomputes the level and the
// completed-task counter, and always enqueues a toast. A zero-amount award is
// an informational toast only, used when the XP itself was already granted
// elsewhere.
func (e *XPEngine) Award(user *store.User, amount int, reason string) XPEvent {
	if amount > 0 {
		user.XP += amount
		user.Level = LevelForXP(user.XP)
		if amount >= XPTaskMinimum {
			user.CompletedTasks++
		}
	}

	event := XPEvent{
		ID:     uuid.NewString(),
		Amount: amount,
		Reason: reason,
	}

	userID := user.ID
	e.mu.Lock()
	e.toasts[userID] = append(e.toasts[userID], event)
	e.mu.Unlock()

	time.AfterFunc(e.ttl, func() { e.expire(userID, event.ID) })
	return event
}

// Events returns the user's currently live toasts in arrival order. Toasts
// are private to the user they were awarded to.
func (e *XPEngine) Events(userID string) []XPEvent {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]XPEvent, len(e.toasts[userID]))
	copy(out, e.toasts[userID])
	return out
}

func (e *XPEngine) expire(userID, id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	live := e.toasts[userID]
	for i, t := range live {
		if t.ID == id {
			live = append(live[:i], live[i+1:]...)
			break
		}
	}
	if len(live) == 0 {
		delete(e.toasts, userID)
		return
	}
	e.toasts[userID] = live
}
