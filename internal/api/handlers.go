package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/muzlabs/muzgpt/internal/auth"
	"github.com/muzlabs/muzgpt/internal/billing"
	"github.com/muzlabs/muzgpt/internal/core"
)

type APIHandler struct {
	accounts *core.AccountService
	chats    *core.ChatService
	billing  *billing.Service
}

func NewAPIHandler(accounts *core.AccountService, chats *core.ChatService, bill *billing.Service) *APIHandler {
	return &APIHandler{
		accounts: accounts,
		chats:    chats,
		billing:  bill,
	}
}

type ctxKey string

const ctxUserID ctxKey = "userID"

func (h *APIHandler) JWTAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			writeError(w, http.StatusUnauthorized, "Authorization header is required")
			return
		}

		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		userID, err := auth.ValidateJWT(tokenString)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "Invalid token")
			return
		}

		ctx := context.WithValue(r.Context(), ctxUserID, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func requestUserID(r *http.Request) string {
	id, _ := r.Context().Value(ctxUserID).(string)
	return id
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("Failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// Auth handlers

type SendVerificationRequest struct {
	Email    string `json:"email"`
	Username string `json:"username,omitempty"`
	Password string `json:"password"`
}

func (h *APIHandler) SendVerificationHandler(w http.ResponseWriter, r *http.Request) {
	var req SendVerificationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "Email and password required")
		return
	}

	demoCode, err := h.accounts.StartVerification(r.Context(), req.Email, req.Username, req.Password)
	if err != nil {
		if errors.Is(err, core.ErrEmailTaken) {
			writeError(w, http.StatusConflict, "Email already registered. Please login instead.")
			return
		}
		log.Printf("Error starting verification for %s: %v", req.Email, err)
		writeError(w, http.StatusInternalServerError, "Failed to send verification code")
		return
	}

	resp := map[string]any{
		"success": true,
		"message": "Verification code sent",
	}
	if demoCode != "" {
		resp["demoCode"] = demoCode
	}
	writeJSON(w, http.StatusOK, resp)
}

type VerifyCodeRequest struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

func (h *APIHandler) VerifyCodeHandler(w http.ResponseWriter, r *http.Request) {
	var req VerifyCodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	user, err := h.accounts.VerifyCode(req.Email, req.Code)
	if err != nil {
		switch {
		case errors.Is(err, core.ErrNoPending):
			writeError(w, http.StatusNotFound, "No pending verification for this email")
		case errors.Is(err, core.ErrCodeExpired):
			writeError(w, http.StatusGone, "Verification code expired")
		case errors.Is(err, core.ErrCodeMismatch):
			writeError(w, http.StatusBadRequest, "Invalid or expired code.")
		default:
			log.Printf("Error verifying code for %s: %v", req.Email, err)
			writeError(w, http.StatusInternalServerError, "Failed to verify code")
		}
		return
	}

	token, err := auth.GenerateJWT(user.ID)
	if err != nil {
		log.Printf("Error generating JWT for user %s: %v", user.ID, err)
		writeError(w, http.StatusInternalServerError, "Failed to generate token")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "user": user, "token": token})
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *APIHandler) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "Email and password required")
		return
	}

	user, err := h.accounts.Login(req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, core.ErrUserNotFound):
			writeError(w, http.StatusNotFound, "No account found for this email")
		case errors.Is(err, core.ErrInvalidCredentials):
			writeError(w, http.StatusUnauthorized, "Invalid credentials.")
		default:
			log.Printf("Error logging in %s: %v", req.Email, err)
			writeError(w, http.StatusInternalServerError, "Failed to log in")
		}
		return
	}

	token, err := auth.GenerateJWT(user.ID)
	if err != nil {
		log.Printf("Error generating JWT for user %s: %v", user.ID, err)
		writeError(w, http.StatusInternalServerError, "Failed to generate token")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "user": user, "token": token})
}

type GoogleAuthRequest struct {
	AccessToken string `json:"accessToken"`
}

func (h *APIHandler) GoogleAuthHandler(w http.ResponseWriter, r *http.Request) {
	var req GoogleAuthRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if req.AccessToken == "" {
		writeError(w, http.StatusBadRequest, "accessToken required")
		return
	}

	user, err := h.accounts.GoogleLogin(r.Context(), req.AccessToken)
	if err != nil {
		if errors.Is(err, auth.ErrBadGoogleToken) {
			writeError(w, http.StatusUnauthorized, "Google token rejected")
			return
		}
		log.Printf("Google auth failed: %v", err)
		writeError(w, http.StatusInternalServerError, "Google auth failed")
		return
	}

	token, err := auth.GenerateJWT(user.ID)
	if err != nil {
		log.Printf("Error generating JWT for user %s: %v", user.ID, err)
		writeError(w, http.StatusInternalServerError, "Failed to generate token")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "user": user, "token": token})
}

type UpdateUserRequest struct {
	UserID  string         `json:"userId"`
	Updates map[string]any `json:"updates"`
}

func (h *APIHandler) UpdateUserHandler(w http.ResponseWriter, r *http.Request) {
	var req UpdateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if req.UserID != requestUserID(r) {
		writeError(w, http.StatusForbidden, "Cannot update another user")
		return
	}

	if err := h.accounts.UpdateUser(req.UserID, req.Updates); err != nil {
		switch {
		case errors.Is(err, core.ErrFieldNotAllowed):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, core.ErrUserNotFound):
			writeError(w, http.StatusNotFound, "User not found")
		default:
			log.Printf("Error updating user %s: %v", req.UserID, err)
			writeError(w, http.StatusInternalServerError, "Failed to update user")
		}
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (h *APIHandler) GetUserHandler(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	if userID != requestUserID(r) {
		writeError(w, http.StatusForbidden, "Cannot read another user")
		return
	}

	user, err := h.accounts.GetUser(userID)
	if err != nil {
		if errors.Is(err, core.ErrUserNotFound) {
			writeError(w, http.StatusNotFound, "Not found")
			return
		}
		log.Printf("Error fetching user %s: %v", userID, err)
		writeError(w, http.StatusInternalServerError, "Failed to fetch user")
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// Billing handlers

type CheckoutRequest struct {
	UserID string `json:"userId"`
}

func (h *APIHandler) CreateCheckoutSessionHandler(w http.ResponseWriter, r *http.Request) {
	var req CheckoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if req.UserID == "" {
		req.UserID = requestUserID(r)
	}

	url, err := h.accounts.CheckoutURL(req.UserID)
	if err != nil {
		log.Printf("Error creating checkout session for %s: %v", req.UserID, err)
		writeError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"url": url})
}

type UpgradeRequest struct {
	UserID    string `json:"userId"`
	SessionID string `json:"sessionId,omitempty"`
}

func (h *APIHandler) UpgradePremiumHandler(w http.ResponseWriter, r *http.Request) {
	var req UpgradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if req.UserID == "" {
		req.UserID = requestUserID(r)
	}
	if req.UserID != requestUserID(r) {
		writeError(w, http.StatusForbidden, "Cannot upgrade another user")
		return
	}

	tier, err := h.accounts.UpgradePremium(req.UserID, req.SessionID)
	if err != nil {
		switch {
		case errors.Is(err, core.ErrUserNotFound):
			writeError(w, http.StatusNotFound, "User not found")
		case errors.Is(err, core.ErrPaymentUnverified):
			writeError(w, http.StatusBadRequest, "Payment not verified")
		default:
			log.Printf("Error upgrading user %s: %v", req.UserID, err)
			writeError(w, http.StatusInternalServerError, "Failed to upgrade")
		}
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "tier": tier})
}

const webhookBodyLimit = 1 << 16

func (h *APIHandler) WebhookHandler(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, webhookBodyLimit))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Failed to read webhook body")
		return
	}

	event, err := h.billing.ParseWebhook(payload, r.Header.Get("Stripe-Signature"))
	if err != nil {
		log.Printf("Webhook rejected: %v", err)
		writeError(w, http.StatusBadRequest, "Webhook signature verification failed")
		return
	}
	if event == nil || !event.Paid || event.UserID == "" {
		writeJSON(w, http.StatusOK, map[string]bool{"received": true})
		return
	}

	if err := h.accounts.ApplyPaymentEvent(event.UserID); err != nil {
		// Log and acknowledge: replays of the same event are harmless, and an
		// unknown user will not become known by retrying.
		log.Printf("Webhook upgrade for user %s failed: %v", event.UserID, err)
	}
	writeJSON(w, http.StatusOK, map[string]bool{"received": true})
}
