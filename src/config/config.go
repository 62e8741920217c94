package config

import (
	"fmt"
	"os"
	"strconv"
)

// Config holds all environment-driven service configuration
type Config struct {
	Port       int
	PublicHost string // Hostname Twilio uses to reach the media-stream WebSocket

	// Speech model
	ModelProvider string // "openai" (default) or "gemini"
	OpenAIAPIKey  string
	OpenAIModel   string
	GeminiAPIKey  string
	GeminiModel   string

	// Twilio
	TwilioAccountSID string
	TwilioAuthToken  string
	TwilioFromNumber string

	// Agent
	AgentName  string
	AgentPhone string
	AgentEmail string

	// Google collaborators
	GoogleCredentialsJSON string
	SheetID               string
	CalendarID            string
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Port:                  envInt("PORT", 8080),
		PublicHost:            os.Getenv("PUBLIC_HOST"),
		ModelProvider:         envDefault("MODEL_PROVIDER", "openai"),
		OpenAIAPIKey:          os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:           envDefault("OPENAI_REALTIME_MODEL", "gpt-4o-realtime-preview-2024-12-17"),
		GeminiAPIKey:          os.Getenv("GEMINI_API_KEY"),
		GeminiModel:           envDefault("GEMINI_LIVE_MODEL", "gemini-2.0-flash-live-001"),
		TwilioAccountSID:      os.Getenv("TWILIO_ACCOUNT_SID"),
		TwilioAuthToken:       os.Getenv("TWILIO_AUTH_TOKEN"),
		TwilioFromNumber:      os.Getenv("TWILIO_PHONE_NUMBER"),
		AgentName:             envDefault("AGENT_NAME", "Mark Esposito"),
		AgentPhone:            os.Getenv("AGENT_PHONE"),
		AgentEmail:            os.Getenv("AGENT_EMAIL"),
		GoogleCredentialsJSON: os.Getenv("GOOGLE_CREDENTIALS_JSON"),
		SheetID:               os.Getenv("GOOGLE_SHEET_ID"),
		CalendarID:            envDefault("GOOGLE_CALENDAR_ID", "primary"),
	}

	switch cfg.ModelProvider {
	case "openai":
		if cfg.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY is required when MODEL_PROVIDER=openai")
		}
	case "gemini":
		if cfg.GeminiAPIKey == "" {
			return nil, fmt.Errorf("GEMINI_API_KEY is required when MODEL_PROVIDER=gemini")
		}
	default:
		return nil, fmt.Errorf("unknown MODEL_PROVIDER: %s", cfg.ModelProvider)
	}

	return cfg, nil
}

func envDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
