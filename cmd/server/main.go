package main

import (
	"context"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	webAdapter "dealer-inventory/internal/adapters/web"
	"dealer-inventory/internal/app"
	"dealer-inventory/internal/config"
	"dealer-inventory/internal/core"
	"dealer-inventory/internal/db"
	"dealer-inventory/internal/fortnox"
	"dealer-inventory/internal/vault"
)

func main() {
	_ = godotenv.Load()

	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("configuration")
	}

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("database")
	}
	defer pool.Close()

	tokenVault, err := vault.New(cfg.TokenEncryptionKey)
	if err != nil {
		logger.Fatal().Err(err).Msg("token vault")
	}

	fortnoxCfg := fortnox.Config{
		ClientID:     cfg.Fortnox.ClientID,
		ClientSecret: cfg.Fortnox.ClientSecret,
		RedirectURI:  cfg.Fortnox.RedirectURI,
		AuthURL:      cfg.Fortnox.AuthURL,
		TokenURL:     cfg.Fortnox.TokenURL,
		APIBaseURL:   cfg.Fortnox.APIBaseURL,
		Scopes:       cfg.Fortnox.Scopes,
	}
	oauthClient := fortnox.NewOAuthClient(fortnoxCfg)
	apiClient := fortnox.NewClient(fortnoxCfg)

	users := core.NewUserService(pool)
	creds := core.NewCredentialService(pool)
	accounts := core.NewAccountService(pool)
	tokens := core.NewTokenService(oauthClient, tokenVault, creds, logger)
	handshake := core.NewHandshakeService(pool, oauthClient, apiClient, tokenVault, creds, logger)
	syncService := core.NewSyncService(pool, apiClient, creds, tokens, accounts, logger)
	corrections := core.NewCorrectionService(pool, apiClient, creds, tokens, logger)

	svc := app.NewApplicationService(users, creds, handshake, syncService, corrections)
	handler := webAdapter.NewHandler(svc, cfg.AllowedOrigins, cfg.JWTSecret, logger)

	logger.Info().Str("port", cfg.Port).Msg("server starting")
	if err := http.ListenAndServe(":"+cfg.Port, handler); err != nil {
		logger.Fatal().Err(err).Msg("server")
	}
}
