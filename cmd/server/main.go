package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/muzlabs/muzgpt/internal/api"
	"github.com/muzlabs/muzgpt/internal/billing"
	"github.com/muzlabs/muzgpt/internal/config"
	"github.com/muzlabs/muzgpt/internal/core"
	"github.com/muzlabs/muzgpt/internal/email"
	"github.com/muzlabs/muzgpt/internal/store"
	"github.com/muzlabs/muzgpt/internal/verify"
)

func main() {
	// Load configuration
	config.LoadConfig()

	// Setup logging
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	if config.AppConfig.LogLevel == "DEBUG" {
		log.Println("Service starting in DEBUG mode")
	}

	// Initialize database store
	dbStore, err := store.NewSQLiteStore(config.AppConfig.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer dbStore.Close()

	// Initialize streaming relay (simulation mode without an API key)
	relay, err := core.NewRelay(context.Background(), config.AppConfig.GeminiAPIKey)
	if err != nil {
		log.Fatalf("Failed to initialize generation relay: %v", err)
	}
	defer relay.Close()
	if relay.Live() {
		log.Println("Generation relay connected")
	} else {
		log.Println("Generation relay in simulation mode")
	}

	// Initialize external collaborators
	mailer, err := email.NewSender(context.Background(), config.AppConfig.AWSRegion, config.AppConfig.SESFromEmail, config.AppConfig.SESFromName)
	if err != nil {
		log.Fatalf("Failed to initialize email sender: %v", err)
	}
	billingSvc := billing.NewService(config.AppConfig.StripeSecretKey, config.AppConfig.StripeWebhookSecret, config.AppConfig.Domain)

	// Initialize core services
	engine := core.NewXPEngine()
	pending := verify.NewTable()
	accountService := core.NewAccountService(dbStore, pending, mailer, billingSvc, engine)
	chatService := core.NewChatService(dbStore, relay, engine)

	// Initialize API Handler and Router
	apiHandler := api.NewAPIHandler(accountService, chatService, billingSvc)
	router := api.NewRouter(apiHandler)

	// Start HTTP server
	serverAddr := fmt.Sprintf(":%s", config.AppConfig.HTTPPort)

	srv := &http.Server{
		Addr:         serverAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 180 * time.Second, // streamed turns can take a while
		IdleTimeout:  120 * time.Second,
	}

	// Graceful shutdown handling
	go func() {
		log.Printf("Starting server on %s. Press Ctrl+C to quit.", serverAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Could not listen on %s: %v\n", serverAddr, err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	// Give active connections time to finish.
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exiting gracefully")
}
