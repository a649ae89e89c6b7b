package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"strings"
)

// Config holds all configuration for the application. Secrets are required;
// endpoints and scopes carry Fortnox production defaults.
type Config struct {
	Port           string
	DatabaseURL    string
	JWTSecret      string
	AllowedOrigins string

	// TokenEncryptionKey is the 32-byte AES key protecting stored OAuth tokens,
	// supplied as 64 hex characters in TOKEN_ENCRYPTION_KEY.
	TokenEncryptionKey []byte

	Fortnox Fortnox
}

// Fortnox holds the OAuth client registration and API endpoints for the
// accounting provider.
type Fortnox struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	AuthURL      string
	TokenURL     string
	APIBaseURL   string
	Scopes       []string
}

// Load reads configuration from environment variables. It fails on any missing
// secret so a misconfigured deployment stops at startup instead of at the first
// sync attempt.
func Load() (*Config, error) {
	keyHex := os.Getenv("TOKEN_ENCRYPTION_KEY")
	if keyHex == "" {
		return nil, fmt.Errorf("TOKEN_ENCRYPTION_KEY environment variable not set")
	}
	key, err := hex.DecodeString(keyHex)
	if err != nil {
		return nil, fmt.Errorf("TOKEN_ENCRYPTION_KEY is not valid hex: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("TOKEN_ENCRYPTION_KEY must decode to 32 bytes, got %d", len(key))
	}

	clientID := os.Getenv("FORTNOX_CLIENT_ID")
	clientSecret := os.Getenv("FORTNOX_CLIENT_SECRET")
	if clientID == "" || clientSecret == "" {
		return nil, fmt.Errorf("FORTNOX_CLIENT_ID and FORTNOX_CLIENT_SECRET environment variables must be set")
	}

	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET environment variable not set")
	}

	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable not set")
	}

	return &Config{
		Port:               getEnv("PORT", "8080"),
		DatabaseURL:        databaseURL,
		JWTSecret:          jwtSecret,
		AllowedOrigins:     os.Getenv("ALLOWED_ORIGINS"),
		TokenEncryptionKey: key,
		Fortnox: Fortnox{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURI:  getEnv("FORTNOX_REDIRECT_URI", "http://localhost:8080/api/integration/fortnox/callback"),
			AuthURL:      getEnv("FORTNOX_AUTH_URL", "https://apps.fortnox.se/oauth-v1/auth"),
			TokenURL:     getEnv("FORTNOX_TOKEN_URL", "https://apps.fortnox.se/oauth-v1/token"),
			APIBaseURL:   getEnv("FORTNOX_API_BASE_URL", "https://api.fortnox.se/3"),
			Scopes:       splitScopes(getEnv("FORTNOX_SCOPES", "companyinformation project supplierinvoice bookkeeping inbox connectfile")),
		},
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func splitScopes(s string) []string {
	var scopes []string
	for _, part := range strings.Fields(s) {
		scopes = append(scopes, part)
	}
	return scopes
}
