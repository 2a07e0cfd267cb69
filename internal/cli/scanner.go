package cli

import (
	"context"

	"buckify/internal/config"
	applog "buckify/internal/log"
	"buckify/internal/scanner"
	"buckify/internal/services"
)

// NewStatementScanner returns the Gemini scanner when an API key or a
// Google Cloud project is set.
// Without one, or if the client cannot be built, every scan fails and
// imports end up in the failed state.
func NewStatementScanner(ctx context.Context, logger *applog.Logger, cfg *config.Config) services.StatementScanner {
	if !cfg.ScannerEnabled() {
		logger.Warn("GEMINI_API_KEY and GEMINI_PROJECT not set, statement scanning disabled")
		return scanner.Unconfigured{}
	}
	s, err := scanner.NewGemini(ctx, scanner.Config{
		APIKey:   cfg.GeminiAPIKey,
		Project:  cfg.GeminiProject,
		Location: cfg.GeminiLocation,
		Model:    cfg.GeminiModel,
	})
	if err != nil {
		logger.Error("Failed to initialize statement scanner", applog.FieldError, err)
		return scanner.Unconfigured{}
	}
	return s
}
