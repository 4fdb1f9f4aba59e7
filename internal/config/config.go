// Package config loads process-wide settings from the environment.
//
// Values are read once at startup through viper. A .env file in the working
// directory is honoured by the command entry point before Load is called.
package config

import (
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// ErrMissingAPIKey is returned when GEMINI_API_KEY is unset.
var ErrMissingAPIKey = errors.New("GEMINI_API_KEY is not set")

const (
	ProviderGoogleAI = "googleai"
	ProviderOpenAI   = "openai"
)

// Config holds all application configuration.
type Config struct {
	Addr     string
	WebDir   string
	LogLevel string
	LLM      LLMConfig
	Appwrite AppwriteConfig
}

// LLMConfig selects and configures the generation provider.
type LLMConfig struct {
	Provider      string
	GeminiAPIKey  string
	GeminiModel   string
	OpenAIBaseURL string
	OpenAIAPIKey  string
	OpenAIModel   string
	Timeout       time.Duration
}

// Model returns the model name used for generation by the configured provider.
func (c LLMConfig) Model() string {
	if c.Provider == ProviderOpenAI {
		return c.OpenAIModel
	}
	return c.GeminiModel
}

// AppwriteConfig addresses the remote document store. It is all-or-nothing:
// see Complete.
type AppwriteConfig struct {
	Endpoint                  string
	ProjectID                 string
	APIKey                    string
	DatabaseID                string
	ConversationsCollectionID string
	MessagesCollectionID      string
}

// Complete reports whether every remote-store value is present.
func (c AppwriteConfig) Complete() bool {
	for _, v := range []string{
		c.Endpoint,
		c.ProjectID,
		c.APIKey,
		c.DatabaseID,
		c.ConversationsCollectionID,
		c.MessagesCollectionID,
	} {
		if strings.TrimSpace(v) == "" {
			return false
		}
	}
	return true
}

var defaults = map[string]any{
	"PORT":               "3000",
	"LOG_LEVEL":          "info",
	"LLM_PROVIDER":       ProviderGoogleAI,
	"GEMINI_MODEL":       "gemini-2.5-flash",
	"OPENAI_BASE_URL":    "http://localhost:11434/v1/",
	"OPENAI_MODEL":       "llama3.1:8b",
	"GENERATION_TIMEOUT": "60s",
	"APPWRITE_ENDPOINT":  "https://cloud.appwrite.io/v1",
}

var providerAliases = map[string]string{
	"gemini": ProviderGoogleAI,
	"google": ProviderGoogleAI,
	"ollama": ProviderOpenAI,
}

// New returns a viper instance wired to the environment with defaults applied.
func New() *viper.Viper {
	v := viper.New()
	for key, val := range defaults {
		v.SetDefault(key, val)
	}
	v.AutomaticEnv()
	return v
}

// Load reads the configuration from v. Flags bound to v (ADDR, WEB_DIR,
// LOG_LEVEL) take precedence over the environment.
func Load(v *viper.Viper) (*Config, error) {
	port := strings.TrimSpace(v.GetString("PORT"))
	if _, err := strconv.Atoi(port); err != nil {
		return nil, errors.Wrapf(err, "invalid value for PORT: %q", port)
	}

	addr := strings.TrimSpace(v.GetString("ADDR"))
	if addr == "" {
		addr = ":" + port
	}

	timeoutVal := v.GetString("GENERATION_TIMEOUT")
	timeout, err := time.ParseDuration(timeoutVal)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid value for GENERATION_TIMEOUT: %q", timeoutVal)
	}

	provider := normalizeProvider(v.GetString("LLM_PROVIDER"))
	if provider != ProviderGoogleAI && provider != ProviderOpenAI {
		return nil, errors.Errorf("unknown LLM_PROVIDER: %q", v.GetString("LLM_PROVIDER"))
	}

	apiKey := strings.TrimSpace(v.GetString("GEMINI_API_KEY"))
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}

	return &Config{
		Addr:     addr,
		WebDir:   v.GetString("WEB_DIR"),
		LogLevel: v.GetString("LOG_LEVEL"),
		LLM: LLMConfig{
			Provider:      provider,
			GeminiAPIKey:  apiKey,
			GeminiModel:   strings.TrimPrefix(v.GetString("GEMINI_MODEL"), "models/"),
			OpenAIBaseURL: v.GetString("OPENAI_BASE_URL"),
			OpenAIAPIKey:  v.GetString("OPENAI_API_KEY"),
			OpenAIModel:   v.GetString("OPENAI_MODEL"),
			Timeout:       timeout,
		},
		Appwrite: AppwriteConfig{
			Endpoint:                  v.GetString("APPWRITE_ENDPOINT"),
			ProjectID:                 v.GetString("APPWRITE_PROJECT_ID"),
			APIKey:                    v.GetString("APPWRITE_API_KEY"),
			DatabaseID:                v.GetString("APPWRITE_DATABASE_ID"),
			ConversationsCollectionID: v.GetString("APPWRITE_CONVERSATIONS_COLLECTION_ID"),
			MessagesCollectionID:      v.GetString("APPWRITE_MESSAGES_COLLECTION_ID"),
		},
	}, nil
}

func normalizeProvider(provider string) string {
	provider = strings.ToLower(strings.TrimSpace(provider))
	if canonical, ok := providerAliases[provider]; ok {
		return canonical
	}
	return provider
}
