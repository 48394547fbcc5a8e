package generator

import (
	"time"

	"github.com/astralhq/oraculum/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("generator",
	fx.Provide(Provide),
)

// Provide selects the provider-backed generator when an API key is
// configured and the deterministic one otherwise.
func Provide(cfg config.Config, log *zap.Logger) Generator {
	if cfg.OpenAI.APIKey == "" {
		log.Named("generator").Info("no provider key configured, using static generator")
		return NewStatic()
	}
	return NewOpenAI(OpenAIConfig{
		BaseURL: cfg.OpenAI.BaseURL,
		APIKey:  cfg.OpenAI.APIKey,
		Model:   cfg.OpenAI.Model,
		Timeout: time.Duration(cfg.OpenAI.TimeoutSeconds) * time.Second,
	}, log)
}
