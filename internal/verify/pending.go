// Package verify holds the time-boxed signup records linking an email to a
// verification code before account creation. The table lives in process
// memory only and is lost on restart; that is an accepted limitation, not a
// durability bug.
package verify

import (
	"crypto/rand"
	"math/big"
	"strings"
	"sync"
	"time"
)

const codeTTL = 10 * time.Minute

type Pending struct {
	Email        string
	Code         string
	Username     string
	PasswordHash string
	Expiry       time.Time
}

type Table struct {
	mu      sync.Mutex
	entries map[string]Pending
	ttl     time.Duration
}

func NewTable() *Table {
	return &Table{
		entries: make(map[string]Pending),
		ttl:     codeTTL,
	}
}

// GenerateCode returns a 6-digit numeric verification code.
func GenerateCode() string {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		// crypto/rand failing means the process has bigger problems
		panic(err)
	}
	return big.NewInt(0).Add(n, big.NewInt(100000)).String()
}

// Put records a pending verification for the email, replacing any earlier
// request for the same address.
func (t *Table) Put(email, code, username, passwordHash string) Pending {
	email = strings.ToLower(email)
	entry := Pending{
		Email:        email,
		Code:         code,
		Username:     username,
		PasswordHash: passwordHash,
		Expiry:       time.Now().Add(t.ttl),
	}
	t.mu.Lock()
	t.entries[email] = entry
	t.mu.Unlock()
	return entry
}

// Get returns the pending entry for the email, if any.
func (t *Table) Get(email string) (Pending, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	entry, ok := t.entries[strings.ToLower(email)]
	return entry, ok
}

func (t *Table) Delete(email string) {
	t.mu.Lock()
	delete(t.entries, strings.ToLower(email))
	t.mu.Unlock()
}

// Expired reports whether the entry's verification window has passed.
func (p Pending) Expired(now time.Time) bool {
	return now.After(p.Expiry)
}
