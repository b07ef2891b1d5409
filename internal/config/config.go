// Package config centralizes environment configuration for the backend.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	// Listen address parts. Flags in cmd/server may override these.
	Addr string
	Host string
	Port int

	// Store settings
	StoreEngine string
	DataFile    string

	// OpenAI settings
	OpenAIKey     string
	OpenAIBaseURL string
	ReminderModel string
	ChatModel     string
	LLMTimeout    time.Duration

	// ElevenLabs settings
	ElevenLabsKey  string
	TTSBaseURL     string
	DefaultVoiceID string
	TTSTimeout     time.Duration

	// SendGrid settings
	SendGridKey    string
	AlertFromName  string
	AlertFromEmail string

	// OpenFDA settings
	OpenFDABaseURL string
	DrugTimeout    time.Duration

	// Dose lifecycle engine knobs. The due window and missed threshold
	// are product behavior; they stay configurable rather than guessing
	// different defaults.
	PollInterval time.Duration
	DueWindow    time.Duration
	MissedAfter  time.Duration

	Debug bool
}

// Load reads configuration from environment variables with defaults.
func Load() (*Config, error) {
	cfg := &Config{
		Addr:           getEnv("MEDCOMPANION_ADDR", ":8080"),
		Host:           os.Getenv("MEDCOMPANION_HOST"),
		Port:           getEnvInt("MEDCOMPANION_PORT", 0),
		StoreEngine:    getEnv("MEDCOMPANION_STORE", "sqlite"),
		DataFile:       os.Getenv("MEDCOMPANION_DATA_FILE"),
		OpenAIKey:      os.Getenv("OPENAI_API_KEY"),
		OpenAIBaseURL:  os.Getenv("MEDCOMPANION_OPENAI_BASE_URL"),
		ReminderModel:  getEnv("MEDCOMPANION_REMINDER_MODEL", "gpt-4o-mini"),
		ChatModel:      getEnv("MEDCOMPANION_CHAT_MODEL", "gpt-4.1-mini"),
		LLMTimeout:     getEnvDuration("MEDCOMPANION_LLM_TIMEOUT", 20*time.Second),
		ElevenLabsKey:  os.Getenv("ELEVENLABS_API_KEY"),
		TTSBaseURL:     getEnv("MEDCOMPANION_TTS_BASE_URL", "https://api.elevenlabs.io"),
		DefaultVoiceID: getEnv("MEDCOMPANION_TTS_VOICE_ID", "pNInz6obpgDQGcFmaJgB"),
		TTSTimeout:     getEnvDuration("MEDCOMPANION_TTS_TIMEOUT", 30*time.Second),
		SendGridKey:    os.Getenv("SENDGRID_API_KEY"),
		AlertFromName:  getEnv("MEDCOMPANION_ALERT_FROM_NAME", "Medication Companion"),
		AlertFromEmail: getEnv("MEDCOMPANION_ALERT_FROM_EMAIL", "no-reply@example.com"),
		OpenFDABaseURL: getEnv("MEDCOMPANION_OPENFDA_URL", "https://api.fda.gov/drug/label.json"),
		DrugTimeout:    getEnvDuration("MEDCOMPANION_DRUG_TIMEOUT", 10*time.Second),
		PollInterval:   getEnvDuration("MEDCOMPANION_POLL_INTERVAL", time.Minute),
		DueWindow:      getEnvDuration("MEDCOMPANION_DUE_WINDOW", 5*time.Minute),
		MissedAfter:    getEnvDuration("MEDCOMPANION_MISSED_AFTER", 30*time.Minute),
		Debug:          getEnvBool("MEDCOMPANION_DEBUG", false),
	}
	if cfg.DataFile == "" {
		cfg.DataFile = defaultDataFile(cfg.StoreEngine)
	}
	return cfg, cfg.Validate()
}

func (c *Config) Validate() error {
	if c.PollInterval <= 0 {
		return fmt.Errorf("MEDCOMPANION_POLL_INTERVAL must be positive, got %s", c.PollInterval)
	}
	if c.DueWindow <= 0 {
		return fmt.Errorf("MEDCOMPANION_DUE_WINDOW must be positive, got %s", c.DueWindow)
	}
	if c.MissedAfter <= c.DueWindow {
		return fmt.Errorf("MEDCOMPANION_MISSED_AFTER (%s) must exceed the due window (%s)", c.MissedAfter, c.DueWindow)
	}
	return nil
}

func defaultDataFile(engine string) string {
	if engine == "json" {
		return "data/medcompanion.json"
	}
	return "data/medcompanion.db"
}

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	return v == "true" || v == "1"
}

func getEnvInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}
