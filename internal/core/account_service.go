package core

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/muzlabs/muzgpt/internal/auth"
	"github.com/muzlabs/muzgpt/internal/billing"
	"github.com/muzlabs/muzgpt/internal/email"
	"github.com/muzlabs/muzgpt/internal/store"
	"github.com/muzlabs/muzgpt/internal/verify"
)

var (
	ErrEmailTaken         = errors.New("email already registered")
	ErrNoPending          = errors.New("no pending verification for email")
	ErrCodeExpired        = errors.New("verification code expired")
	ErrCodeMismatch       = errors.New("verification code does not match")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrFieldNotAllowed    = errors.New("field is not client-writable")
	ErrPaymentUnverified  = errors.New("payment session not verified")
)

// Fields the generic update path may touch. Tier is deliberately absent:
// the only way tier changes is the billing upgrade path.
var updatableFields = map[string]bool{
	"xp":             true,
	"level":          true,
	"streak":         true,
	"dailyUsage":     true,
	"lastUsageReset": true,
	"lastActive":     true,
}

// AccountService owns user records: signup via email verification, login,
// Google sign-in, profile sync and the premium upgrade path.
type AccountService struct {
	dbStore *store.SQLiteStore
	pending *verify.Table
	mailer  *email.Sender
	billing *billing.Service
	engine  *XPEngine
}

func NewAccountService(db *store.SQLiteStore, pending *verify.Table, mailer *email.Sender, bill *billing.Service, engine *XPEngine) *AccountService {
	return &AccountService{
		dbStore: db,
		pending: pending,
		mailer:  mailer,
		billing: bill,
		engine:  engine,
	}
}

// StartVerification registers a pending signup and mails the code. When the
// mailer is disabled the code is returned so demo deployments still work.
func (s *AccountService) StartVerification(ctx context.Context, emailAddr, username, password string) (demoCode string, err error) {
	existing, err := s.dbStore.GetUserByEmail(emailAddr)
	if err != nil {
		return "", fmt.Errorf("failed to check existing user: %w", err)
	}
	if existing != nil {
		return "", ErrEmailTaken
	}

	if username == "" {
		username = strings.Split(emailAddr, "@")[0]
	}
	passwordHash, err := auth.HashPassword(password)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}

	code := verify.GenerateCode()
	s.pending.Put(emailAddr, code, username, passwordHash)

	if err := s.mailer.SendVerificationCode(ctx, emailAddr, code); err != nil {
		// The pending entry stays live; the user can re-request.
		log.Printf("Failed to send verification code to %s: %v", emailAddr, err)
	}

	if !s.mailer.Enabled() {
		return code, nil
	}
	return "", nil
}

// VerifyCode consumes a pending verification and creates the account with
// the welcome bonus already applied. A wrong code leaves the entry intact; an
// expired one removes it.
func (s *AccountService) VerifyCode(emailAddr, code string) (*store.User, error) {
	entry, ok := s.pending.Get(emailAddr)
	if !ok {
		return nil, ErrNoPending
	}
	if entry.Expired(time.Now()) {
		s.pending.Delete(emailAddr)
		return nil, ErrCodeExpired
	}
	if entry.Code != code {
		return nil, ErrCodeMismatch
	}

	user := &store.User{
		Email:          entry.Email,
		Username:       entry.Username,
		PasswordHash:   entry.PasswordHash,
		XP:             XPWelcome,
		Level:          LevelForXP(XPWelcome),
		Streak:         1,
		SelectedMode:   string(ModeGeneral),
		Tier:           TierFree,
		DailyUsage:     0,
		LastUsageReset: DateStamp(time.Now()),
		EmailVerified:  true,
	}
	if err := s.dbStore.CreateUser(user); err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	s.pending.Delete(emailAddr)
	// Welcome XP is already baked into the record; the toast just announces it.
	s.engine.Award(user, 0, ReasonFirstSync)
	return user, nil
}

// Login verifies credentials and refreshes the login-time state: daily-usage
// reset, streak and last-active.
func (s *AccountService) Login(emailAddr, password string) (*store.User, error) {
	user, err := s.dbStore.GetUserByEmail(emailAddr)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	if user.PasswordHash == "" || !auth.CheckPasswordHash(password, user.PasswordHash) {
		return nil, ErrInvalidCredentials
	}

	s.refreshOnLogin(user)
	if err := s.dbStore.UpdateUser(user); err != nil {
		return nil, fmt.Errorf("failed to persist login state: %w", err)
	}
	return user, nil
}

// GoogleLogin exchanges the access token for a Google profile and creates or
// fetches the matching account. The tier of an existing account is never
// touched here.
func (s *AccountService) GoogleLogin(ctx context.Context, accessToken string) (*store.User, error) {
	gu, err := auth.FetchGoogleUser(ctx, accessToken)
	if err != nil {
		return nil, err
	}

	user, err := s.dbStore.GetUserByEmail(gu.Email)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if user == nil {
		user = &store.User{
			Email:          gu.Email,
			Username:       gu.Name,
			PasswordHash:   "",
			XP:             XPWelcome,
			Level:          LevelForXP(XPWelcome),
			Streak:         1,
			SelectedMode:   string(ModeGeneral),
			Tier:           TierFree,
			DailyUsage:     0,
			LastUsageReset: DateStamp(time.Now()),
			EmailVerified:  true,
		}
		if err := s.dbStore.CreateUser(user); err != nil {
			return nil, fmt.Errorf("failed to create user: %w", err)
		}
		s.engine.Award(user, 0, ReasonFirstSync)
		return user, nil
	}

	s.refreshOnLogin(user)
	if err := s.dbStore.UpdateUser(user); err != nil {
		return nil, fmt.Errorf("failed to persist login state: %w", err)
	}
	return user, nil
}

func (s *AccountService) refreshOnLogin(user *store.User) {
	now := time.Now()
	today := DateStamp(now)
	yesterday := DateStamp(now.AddDate(0, 0, -1))
	switch DateStamp(user.LastActive) {
	case today:
		// second login today, streak unchanged
	case yesterday:
		user.Streak++
	default:
		user.Streak = 1
	}
	user.LastActive = now
	ResetUsageIfStale(user, now)
}

// GetUser fetches a profile, applying the daily reset check at load time.
func (s *AccountService) GetUser(userID string) (*store.User, error) {
	user, err := s.dbStore.GetUserByID(userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	if ResetUsageIfStale(user, time.Now()) {
		if err := s.dbStore.UpdateUser(user); err != nil {
			log.Printf("Failed to persist usage reset for user %s: %v", user.ID, err)
		}
	}
	return user, nil
}

// UpdateUser applies a partial client sync restricted to the allow-list.
// Anything else, tier above all, is rejected outright. Level is recomputed
// from XP so the derived invariant holds no matter what the client sent.
func (s *AccountService) UpdateUser(userID string, updates map[string]any) error {
	for field := range updates {
		if !updatableFields[field] {
			return fmt.Errorf("%w: %s", ErrFieldNotAllowed, field)
		}
	}

	user, err := s.dbStore.GetUserByID(userID)
	if err != nil {
		return err
	}
	if user == nil {
		return ErrUserNotFound
	}

	if v, ok := numberField(updates, "xp"); ok {
		user.XP = v
	}
	if v, ok := numberField(updates, "streak"); ok {
		user.Streak = v
	}
	if v, ok := numberField(updates, "dailyUsage"); ok {
		user.DailyUsage = v
	}
	if v, ok := updates["lastUsageReset"].(string); ok {
		user.LastUsageReset = v
	}
	if v, ok := numberField(updates, "lastActive"); ok {
		user.LastActive = time.UnixMilli(int64(v))
	}
	// "level" is accepted but derived: xp wins.
	user.Level = LevelForXP(user.XP)

	return s.dbStore.UpdateUser(user)
}

func numberField(updates map[string]any, key string) (int, bool) {
	v, ok := updates[key]
	if !ok {
		return 0, false
	}
	f, ok := v.(float64) // JSON numbers decode as float64
	if !ok {
		return 0, false
	}
	return int(f), true
}

// CheckoutURL starts a checkout for the user's premium upgrade.
func (s *AccountService) CheckoutURL(userID string) (string, error) {
	return s.billing.CreateCheckoutSession(userID)
}

// UpgradePremium is the redirect-based confirmation path. In configured mode
// the referenced checkout session must be paid; demo mode upgrades directly.
// Replaying a confirmation for an already-premium user is a no-op success.
func (s *AccountService) UpgradePremium(userID, sessionID string) (string, error) {
	if s.billing.Configured() {
		if sessionID == "" {
			return "", ErrPaymentUnverified
		}
		paid, err := s.billing.SessionPaid(sessionID)
		if err != nil {
			return "", err
		}
		if !paid {
			return "", ErrPaymentUnverified
		}
	}
	return s.elevateTier(userID)
}

// ApplyPaymentEvent is the webhook-driven confirmation path: the event is
// already signature-verified and paid.
func (s *AccountService) ApplyPaymentEvent(userID string) error {
	_, err := s.elevateTier(userID)
	return err
}

func (s *AccountService) elevateTier(userID string) (string, error) {
	user, err := s.dbStore.GetUserByID(userID)
	if err != nil {
		return "", err
	}
	if user == nil {
		return "", ErrUserNotFound
	}
	if user.Tier == TierPremium {
		return TierPremium, nil // idempotent on replay
	}

	if err := s.dbStore.SetUserTier(userID, TierPremium); err != nil {
		return "", err
	}
	user.Tier = TierPremium
	s.engine.Award(user, XPUpgrade, ReasonUpgrade)
	if err := s.dbStore.UpdateUser(user); err != nil {
		log.Printf("Failed to persist upgrade bonus for user %s: %v", userID, err)
	}
	log.Printf("User %s upgraded to PREMIUM", userID)
	return TierPremium, nil
}
