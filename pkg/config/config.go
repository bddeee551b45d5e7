// Package config loads finvisor settings from an optional TOML file and the
// environment, and watches the file for hot-reloadable changes.
package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/finvisor/finvisor/pkg/paramstore"
	"github.com/finvisor/finvisor/pkg/provider/httpjson"
)

const (
	StorageMemory   = "memory"
	StorageSQLite   = "sqlite"
	StorageDynamoDB = "dynamodb"

	ZoomDemo  = "demo"
	ZoomOAuth = "oauth"
)

// Config is the full service configuration.
type Config struct {
	Server    ServerConfig    `toml:"server"`
	Storage   StorageConfig   `toml:"storage"`
	Secrets   SecretsConfig   `toml:"secrets"`
	RateLimit RateLimitConfig `toml:"rate_limit"`

	OpenAI      ProviderConfig    `toml:"openai"`
	Anthropic   ProviderConfig    `toml:"anthropic"`
	Gemini      ProviderConfig    `toml:"gemini"`
	Perplexity  ProviderConfig    `toml:"perplexity"`
	Decagon     DecagonConfig     `toml:"decagon"`
	Modal       ModalConfig       `toml:"modal"`
	FetchAI     FetchAIConfig     `toml:"fetchai"`
	Browserbase BrowserbaseConfig `toml:"browserbase"`
	Zoom        ZoomConfig        `toml:"zoom"`
}

type ServerConfig struct {
	Listen   string `toml:"listen"`
	Debug    bool   `toml:"debug"`
	JSONLogs bool   `toml:"json_logs"`

	// MaxBodyBytes caps request bodies. Zero keeps the server default.
	MaxBodyBytes int `toml:"max_body_bytes"`

	// LedgerToken guards /ledger; `finvisor push --token` sends it.
	LedgerToken string `toml:"ledger_token"`
}

type StorageConfig struct {
	Driver string `toml:"driver"` // memory, sqlite or dynamodb
	Path   string `toml:"path"`
	Table  string `toml:"table"`
	Region string `toml:"region"`
}

type SecretsConfig struct {
	// SSMPrefix switches secret resolution to AWS SSM Parameter Store.
	SSMPrefix string `toml:"ssm_prefix"`
	Region    string `toml:"region"`

	// SealPassphrase keys credential sealing. Empty means a random key per process.
	SealPassphrase string `toml:"seal_passphrase"`
}

type RateLimitConfig struct {
	RequestsPerSecond float64 `toml:"requests_per_second"`
	Burst             int     `toml:"burst"`
}

// ProviderConfig is the common shape of a keyed upstream API.
type ProviderConfig struct {
	APIKey  string `toml:"api_key"`
	BaseURL string `toml:"base_url"`
}

type DecagonConfig struct {
	ProviderConfig
	BotID string `toml:"bot_id"`
}

type ModalConfig struct {
	TokenID     string `toml:"token_id"`
	TokenSecret string `toml:"token_secret"`
	BaseURL     string `toml:"base_url"`
}

type FetchAIConfig struct {
	ProviderConfig
	AgentAddress string `toml:"agent_address"`
}

type BrowserbaseConfig struct {
	ProviderConfig
	ProjectID string `toml:"project_id"`
}

type ZoomConfig struct {
	Mode          string `toml:"mode"` // demo or oauth
	AccountID     string `toml:"account_id"`
	ClientID      string `toml:"client_id"`
	ClientSecret  string `toml:"client_secret"`
	WebhookSecret string `toml:"webhook_secret"`
	BaseURL       string `toml:"base_url"`
	TokenURL      string `toml:"token_url"`
}

// Default returns a configuration that runs with no file and no keys: an
// in-memory ledger, the demo advisor and every provider unconfigured.
func Default() *Config {
	return &Config{
		Server: ServerConfig{Listen: ":8080"},
		Storage: StorageConfig{
			Driver: StorageMemory,
			Table:  "finvisor-ledger",
		},
		RateLimit: RateLimitConfig{RequestsPerSecond: 5, Burst: 20},
		Zoom:      ZoomConfig{Mode: ZoomDemo},
	}
}

// Load reads path (when non-empty) over the defaults and applies environment
// overrides from the process environment.
func Load(path string) (*Config, error) {
	return LoadWithEnv(path, os.LookupEnv)
}

// LoadWithEnv is Load with an injectable environment lookup.
func LoadWithEnv(path string, lookup func(string) (string, bool)) (*Config, error) {
	cfg := Default()

	if path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("config: decode %s: %w", path, err)
		}
	}

	if err := applyEnv(cfg, lookup); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks enumerated settings.
func (c *Config) Validate() error {
	var errs []error

	switch c.Storage.Driver {
	case StorageMemory, StorageSQLite, StorageDynamoDB:
	default:
		errs = append(errs, fmt.Errorf("config: unknown storage driver %q", c.Storage.Driver))
	}
	if c.Storage.Driver == StorageSQLite && c.Storage.Path == "" {
		errs = append(errs, errors.New("config: storage.path is required for sqlite"))
	}
	if c.Storage.Driver == StorageDynamoDB && c.Storage.Table == "" {
		errs = append(errs, errors.New("config: storage.table is required for dynamodb"))
	}

	switch c.Zoom.Mode {
	case ZoomDemo, ZoomOAuth:
	default:
		errs = append(errs, fmt.Errorf("config: unknown zoom mode %q", c.Zoom.Mode))
	}

	if c.Server.MaxBodyBytes < 0 {
		errs = append(errs, errors.New("config: server.max_body_bytes must not be negative"))
	}

	if c.RateLimit.RequestsPerSecond < 0 || c.RateLimit.Burst < 0 {
		errs = append(errs, errors.New("config: rate_limit values must not be negative"))
	}

	return errors.Join(errs...)
}

// Provider names used for secret lookup.
const (
	OpenAI      = "openai"
	Anthropic   = "anthropic"
	Gemini      = "gemini"
	Perplexity  = "perplexity"
	Decagon     = "decagon"
	Modal       = "modal"
	FetchAI     = "fetchai"
	Browserbase = "browserbase"
)

// localSecrets returns the keys held directly in the config.
func (c *Config) localSecrets() map[string]string {
	modal := ""
	if c.Modal.TokenID != "" && c.Modal.TokenSecret != "" {
		modal = c.Modal.TokenID + ":" + c.Modal.TokenSecret
	}
	return map[string]string{
		OpenAI:      c.OpenAI.APIKey,
		Anthropic:   c.Anthropic.APIKey,
		Gemini:      c.Gemini.APIKey,
		Perplexity:  c.Perplexity.APIKey,
		Decagon:     c.Decagon.APIKey,
		Modal:       modal,
		FetchAI:     c.FetchAI.APIKey,
		Browserbase: c.Browserbase.APIKey,
	}
}

// Configured reports whether provider has a usable secret source. With an
// SSM prefix every provider is assumed provisioned; a missing parameter then
// surfaces as an upstream error on first use.
func (c *Config) Configured(provider string) bool {
	if c.Secrets.SSMPrefix != "" {
		return true
	}
	return c.localSecrets()[provider] != ""
}

// Keys builds the lazily-resolved provider keys.
type Keys struct {
	getter paramstore.Getter
	prefix string
}

// Keys returns the secret source for provider clients: SSM when a prefix is
// set, otherwise the values from the file and environment.
func (c *Config) Keys(ctx context.Context) (*Keys, error) {
	if c.Secrets.SSMPrefix != "" {
		client, err := paramstore.NewFromEnvironment(ctx, c.Secrets.Region)
		if err != nil {
			return nil, err
		}
		return &Keys{getter: client, prefix: c.Secrets.SSMPrefix}, nil
	}

	static := paramstore.Static{}
	for provider, v := range c.localSecrets() {
		static[paramstore.Name("", provider)] = v
	}
	return &Keys{getter: static}, nil
}

// NewKeys wraps an arbitrary getter, for tests and custom deployments.
func NewKeys(getter paramstore.Getter, prefix string) *Keys {
	return &Keys{getter: getter, prefix: prefix}
}

// For returns the key for provider.
func (k *Keys) For(provider string) *httpjson.Key {
	return httpjson.NewKey(k.getter, paramstore.Name(k.prefix, provider))
}

// Redacted returns a copy safe to log.
func (c *Config) Redacted() Config {
	out := *c
	mask := func(s string) string {
		if s == "" {
			return ""
		}
		return "****"
	}
	out.OpenAI.APIKey = mask(c.OpenAI.APIKey)
	out.Anthropic.APIKey = mask(c.Anthropic.APIKey)
	out.Gemini.APIKey = mask(c.Gemini.APIKey)
	out.Perplexity.APIKey = mask(c.Perplexity.APIKey)
	out.Decagon.APIKey = mask(c.Decagon.APIKey)
	out.Modal.TokenSecret = mask(c.Modal.TokenSecret)
	out.FetchAI.APIKey = mask(c.FetchAI.APIKey)
	out.Browserbase.APIKey = mask(c.Browserbase.APIKey)
	out.Zoom.ClientSecret = mask(c.Zoom.ClientSecret)
	out.Zoom.WebhookSecret = mask(c.Zoom.WebhookSecret)
	out.Secrets.SealPassphrase = mask(c.Secrets.SealPassphrase)
	out.Server.LedgerToken = mask(c.Server.LedgerToken)
	return out
}

func trim(s string) string { return strings.TrimSpace(s) }
