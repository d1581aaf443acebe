// Package provider resolves the active LLM provider from user settings.
package provider

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/ashureev/orcascore/internal/store"
)

// Setting keys read by Load.
const (
	SettingProvider      = "api_provider"
	SettingAnthropicKey  = "anthropic_api_key"
	SettingLiteLLMURL    = "litellm_base_url"
	SettingLiteLLMAPIKey = "litellm_api_key"

	envAnthropicKey  = "ANTHROPIC_API_KEY"
	anthropicVersion = "2023-06-01"
	anthropicBaseURL = "https://api.anthropic.com"
)

// Kind identifies a supported provider.
type Kind string

const (
	// KindAnthropic talks to the Anthropic API directly.
	KindAnthropic Kind = "anthropic"
	// KindLiteLLM talks to a LiteLLM gateway exposing the Anthropic messages API.
	KindLiteLLM Kind = "litellm"
)

// ParseKind parses a provider selector case-insensitively.
func ParseKind(s string) (Kind, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(s))) {
	case KindAnthropic:
		return KindAnthropic, nil
	case KindLiteLLM:
		return KindLiteLLM, nil
	default:
		return "", &ConfigError{Setting: SettingProvider, Msg: fmt.Sprintf("unknown provider: %s", s)}
	}
}

// Config is the capability set every provider exposes.
type Config interface {
	Kind() Kind
	// Endpoint is the chat (messages) URL.
	Endpoint() string
	// ModelsEndpoint is the model listing URL.
	ModelsEndpoint() string
	// Headers are the auth and version headers for every request.
	Headers() map[string]string
	// Validate rejects empty or malformed required fields.
	Validate() error
}

// ConfigError reports a missing or invalid provider setting.
type ConfigError struct {
	Setting string
	Msg     string
}

func (e *ConfigError) Error() string {
	return e.Msg
}

// AnthropicConfig targets api.anthropic.com.
type AnthropicConfig struct {
	APIKey string
}

var _ Config = (*AnthropicConfig)(nil)

func (c *AnthropicConfig) Kind() Kind { return KindAnthropic }

func (c *AnthropicConfig) Endpoint() string { return anthropicBaseURL + "/v1/messages" }

func (c *AnthropicConfig) ModelsEndpoint() string { return anthropicBaseURL + "/v1/models" }

func (c *AnthropicConfig) Headers() map[string]string {
	return map[string]string{
		"x-api-key":         c.APIKey,
		"anthropic-version": anthropicVersion,
	}
}

func (c *AnthropicConfig) Validate() error {
	if strings.TrimSpace(c.APIKey) == "" {
		return &ConfigError{Setting: SettingAnthropicKey, Msg: "Anthropic API key cannot be empty"}
	}
	return nil
}

// LiteLLMConfig targets a self-hosted LiteLLM gateway.
type LiteLLMConfig struct {
	BaseURL string
	APIKey  string
}

var _ Config = (*LiteLLMConfig)(nil)

func (c *LiteLLMConfig) Kind() Kind { return KindLiteLLM }

func (c *LiteLLMConfig) Endpoint() string {
	return strings.TrimRight(c.BaseURL, "/") + "/v1/messages"
}

func (c *LiteLLMConfig) ModelsEndpoint() string {
	return strings.TrimRight(c.BaseURL, "/") + "/v1/models"
}

func (c *LiteLLMConfig) Headers() map[string]string {
	return map[string]string{
		"Authorization": "Bearer " + c.APIKey,
	}
}

func (c *LiteLLMConfig) Validate() error {
	if strings.TrimSpace(c.BaseURL) == "" {
		return &ConfigError{Setting: SettingLiteLLMURL, Msg: "LiteLLM base URL cannot be empty"}
	}
	if strings.TrimSpace(c.APIKey) == "" {
		return &ConfigError{Setting: SettingLiteLLMAPIKey, Msg: "LiteLLM API key cannot be empty"}
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return &ConfigError{Setting: SettingLiteLLMURL, Msg: fmt.Sprintf("Invalid URL format: %v", err)}
	}
	if u.Scheme == "" || u.Host == "" {
		return &ConfigError{Setting: SettingLiteLLMURL, Msg: fmt.Sprintf("Invalid URL format: %q is not an absolute URL", c.BaseURL)}
	}
	return nil
}

// SettingsReader is the read side of the settings store.
type SettingsReader interface {
	GetSetting(ctx context.Context, key string) (string, error)
}

// LookupEnv matches os.LookupEnv.
type LookupEnv func(key string) (string, bool)

// Load builds and validates the provider configuration selected in settings.
// It is called per request so settings changes take effect immediately.
func Load(ctx context.Context, settings SettingsReader, lookupEnv LookupEnv) (Config, error) {
	if lookupEnv == nil {
		lookupEnv = os.LookupEnv
	}

	selector, ok, err := readSetting(ctx, settings, SettingProvider)
	if err != nil {
		return nil, err
	}
	if !ok {
		selector = string(KindAnthropic)
	}

	kind, err := ParseKind(selector)
	if err != nil {
		return nil, err
	}

	var cfg Config
	switch kind {
	case KindAnthropic:
		apiKey, ok, err := readSetting(ctx, settings, SettingAnthropicKey)
		if err != nil {
			return nil, err
		}
		if !ok {
			apiKey, ok = lookupEnv(envAnthropicKey)
		}
		if !ok {
			return nil, &ConfigError{Setting: SettingAnthropicKey, Msg: "Anthropic API key not configured. Please set it in Settings."}
		}
		cfg = &AnthropicConfig{APIKey: apiKey}

	case KindLiteLLM:
		baseURL, ok, err := readSetting(ctx, settings, SettingLiteLLMURL)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, &ConfigError{Setting: SettingLiteLLMURL, Msg: "LiteLLM base URL not configured. Please set it in Settings."}
		}
		apiKey, ok, err := readSetting(ctx, settings, SettingLiteLLMAPIKey)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, &ConfigError{Setting: SettingLiteLLMAPIKey, Msg: "LiteLLM API key not configured. Please set it in Settings."}
		}
		cfg = &LiteLLMConfig{BaseURL: baseURL, APIKey: apiKey}

	default:
		return nil, &ConfigError{Setting: SettingProvider, Msg: fmt.Sprintf("unknown provider: %s", kind)}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func readSetting(ctx context.Context, settings SettingsReader, key string) (string, bool, error) {
	value, err := settings.GetSetting(ctx, key)
	if errors.Is(err, store.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read setting %s: %w", key, err)
	}
	return value, true, nil
}
