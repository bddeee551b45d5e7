package config

import (
	"fmt"
	"strconv"
)

// applyEnv overlays environment variables on cfg. Unset variables leave the
// file or default value alone.
func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && trim(v) != "" {
			*dst = trim(v)
		}
	}

	str("OPENAI_API_KEY", &cfg.OpenAI.APIKey)
	str("ANTHROPIC_API_KEY", &cfg.Anthropic.APIKey)
	str("GEMINI_API_KEY", &cfg.Gemini.APIKey)
	str("PERPLEXITY_API_KEY", &cfg.Perplexity.APIKey)
	str("DECAGON_API_KEY", &cfg.Decagon.APIKey)
	str("DECAGON_BOT_ID", &cfg.Decagon.BotID)
	str("MODAL_TOKEN_ID", &cfg.Modal.TokenID)
	str("MODAL_TOKEN_SECRET", &cfg.Modal.TokenSecret)
	str("FETCHAI_API_KEY", &cfg.FetchAI.APIKey)
	str("FETCHAI_AGENT_ADDRESS", &cfg.FetchAI.AgentAddress)
	str("BROWSERBASE_API_KEY", &cfg.Browserbase.APIKey)
	str("BROWSERBASE_PROJECT_ID", &cfg.Browserbase.ProjectID)
	str("ZOOM_ACCOUNT_ID", &cfg.Zoom.AccountID)
	str("ZOOM_CLIENT_ID", &cfg.Zoom.ClientID)
	str("ZOOM_CLIENT_SECRET", &cfg.Zoom.ClientSecret)
	str("ZOOM_WEBHOOK_SECRET", &cfg.Zoom.WebhookSecret)

	str("FINVISOR_LISTEN", &cfg.Server.Listen)
	str("FINVISOR_STORAGE_DRIVER", &cfg.Storage.Driver)
	str("FINVISOR_DB_PATH", &cfg.Storage.Path)
	str("FINVISOR_DYNAMO_TABLE", &cfg.Storage.Table)
	str("FINVISOR_AWS_REGION", &cfg.Storage.Region)
	str("FINVISOR_SSM_PREFIX", &cfg.Secrets.SSMPrefix)
	str("FINVISOR_ZOOM_MODE", &cfg.Zoom.Mode)
	str("FINVISOR_SEAL_PASSPHRASE", &cfg.Secrets.SealPassphrase)
	str("FINVISOR_LEDGER_TOKEN", &cfg.Server.LedgerToken)

	if cfg.Secrets.Region == "" {
		cfg.Secrets.Region = cfg.Storage.Region
	}

	for key, dst := range map[string]*bool{
		"FINVISOR_DEBUG":     &cfg.Server.Debug,
		"FINVISOR_JSON_LOGS": &cfg.Server.JSONLogs,
	} {
		if v, ok := lookup(key); ok && trim(v) != "" {
			b, err := strconv.ParseBool(trim(v))
			if err != nil {
				return fmt.Errorf("config: %s: %w", key, err)
			}
			*dst = b
		}
	}

	if v, ok := lookup("FINVISOR_RATE_LIMIT_RPS"); ok && trim(v) != "" {
		f, err := strconv.ParseFloat(trim(v), 64)
		if err != nil {
			return fmt.Errorf("config: FINVISOR_RATE_LIMIT_RPS: %w", err)
		}
		cfg.RateLimit.RequestsPerSecond = f
	}
	if v, ok := lookup("FINVISOR_RATE_LIMIT_BURST"); ok && trim(v) != "" {
		n, err := strconv.Atoi(trim(v))
		if err != nil {
			return fmt.Errorf("config: FINVISOR_RATE_LIMIT_BURST: %w", err)
		}
		cfg.RateLimit.Burst = n
	}

	return nil
}
