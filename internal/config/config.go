package config

import (
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	HTTPPort            string
	DatabaseURL         string
	LogLevel            string
	JWTSecret           string
	Domain              string
	GeminiAPIKey        string
	StripeSecretKey     string
	StripeWebhookSecret string
	AWSRegion           string
	SESFromEmail        string
	SESFromName         string
}

var AppConfig Config

func LoadConfig() {
	err := godotenv.Load() // Load .env file if it exists
	if err != nil {
		log.Println("No .env file found, relying on environment variables")
	}

	AppConfig = Config{
		HTTPPort:            getEnv("HTTP_PORT", "4242"),
		DatabaseURL:         getEnv("DATABASE_URL", "muzgpt.db"),
		LogLevel:            getEnv("LOG_LEVEL", "INFO"),
		JWTSecret:           getEnv("JWT_SECRET", ""),
		Domain:              getEnv("DOMAIN", "http://localhost:3001"),
		GeminiAPIKey:        getEnv("GEMINI_API_KEY", ""),
		StripeSecretKey:     getEnv("STRIPE_SECRET_KEY", ""),
		StripeWebhookSecret: getEnv("STRIPE_WEBHOOK_SECRET", ""),
		AWSRegion:           getEnv("AWS_REGION", "eu-west-1"),
		SESFromEmail:        getEnv("SES_FROM_EMAIL", ""),
		SESFromName:         getEnv("SES_FROM_NAME", "MUZGPT"),
	}

	if AppConfig.JWTSecret == "" {
		log.Fatal("JWT_SECRET environment variable is required")
	}

	// Gemini, Stripe and SES credentials are optional: each subsystem falls
	// back to a demo mode without them.
	if AppConfig.GeminiAPIKey == "" {
		log.Println("GEMINI_API_KEY not set, chat responses will run in simulation mode")
	}
	if AppConfig.StripeSecretKey == "" || AppConfig.StripeSecretKey == "PLACEHOLDER" {
		log.Println("STRIPE_SECRET_KEY not set, checkout will run in demo mode")
	}
	if AppConfig.SESFromEmail == "" {
		log.Println("SES_FROM_EMAIL not set, verification codes will be returned in responses")
	}
}

func getEnv(key string, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}
