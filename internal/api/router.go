package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func NewRouter(apiHandler *APIHandler) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Logger)       // Basic request logging
	r.Use(middleware.Recoverer)    // Recover from panics
	r.Use(middleware.StripSlashes) // Ensure consistent path handling

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})

	// Public auth routes
	r.Route("/auth", func(r chi.Router) {
		r.Post("/send-verification", apiHandler.SendVerificationHandler)
		r.Post("/verify-code", apiHandler.VerifyCodeHandler)
		r.Post("/login", apiHandler.LoginHandler)
		r.Post("/google", apiHandler.GoogleAuthHandler)

		// Profile sync, token-authenticated
		r.Group(func(r chi.Router) {
			r.Use(apiHandler.JWTAuthMiddleware)
			r.Post("/update-user", apiHandler.UpdateUserHandler)
			r.Get("/user/{userID}", apiHandler.GetUserHandler)
			r.Post("/upgrade-premium", apiHandler.UpgradePremiumHandler)
		})
	})

	// Payment-processor callback, verified by signature instead of a token
	r.Post("/webhook", apiHandler.WebhookHandler)

	r.Group(func(r chi.Router) {
		r.Use(apiHandler.JWTAuthMiddleware)

		r.Post("/create-checkout-session", apiHandler.CreateCheckoutSessionHandler)

		// Chat routes
		r.Get("/chats", apiHandler.ListChatsHandler)
		r.Post("/chats/messages", apiHandler.PostMessageHandler)
		r.Get("/chats/{chatID}", apiHandler.GetChatDetailsHandler)
		r.Delete("/chats/{chatID}", apiHandler.DeleteChatHandler)
		r.Post("/chats/{chatID}/messages", apiHandler.PostMessageHandler)

		r.Get("/me/events", apiHandler.EventsHandler)
		r.Get("/modes", apiHandler.ModesHandler)
	})

	return r
}
