package provider

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/ashureev/orcascore/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSettings map[string]string

func (f fakeSettings) GetSetting(_ context.Context, key string) (string, error) {
	v, ok := f[key]
	if !ok {
		return "", fmt.Errorf("setting '%s': %w", key, store.ErrNotFound)
	}
	return v, nil
}

type brokenSettings struct{}

func (brokenSettings) GetSetting(context.Context, string) (string, error) {
	return "", errors.New("disk I/O error")
}

func noEnv(string) (string, bool) { return "", false }

func TestLoad_DefaultsToAnthropic(t *testing.T) {
	cfg, err := Load(context.Background(), fakeSettings{SettingAnthropicKey: "sk-test"}, noEnv)
	require.NoError(t, err)

	assert.Equal(t, KindAnthropic, cfg.Kind())
	assert.Equal(t, "https://api.anthropic.com/v1/messages", cfg.Endpoint())
	assert.Equal(t, "https://api.anthropic.com/v1/models", cfg.ModelsEndpoint())
	assert.Equal(t, "sk-test", cfg.Headers()["x-api-key"])
	assert.Equal(t, "2023-06-01", cfg.Headers()["anthropic-version"])
}

func TestLoad_AnthropicFallsBackToEnv(t *testing.T) {
	env := func(key string) (string, bool) {
		if key == "ANTHROPIC_API_KEY" {
			return "sk-env", true
		}
		return "", false
	}
	cfg, err := Load(context.Background(), fakeSettings{}, env)
	require.NoError(t, err)
	assert.Equal(t, "sk-env", cfg.Headers()["x-api-key"])
}

func TestLoad_AnthropicMissingKey(t *testing.T) {
	_, err := Load(context.Background(), fakeSettings{}, noEnv)
	require.Error(t, err)

	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, SettingAnthropicKey, cfgErr.Setting)
	assert.Contains(t, err.Error(), "Anthropic API key not configured")
}

func TestLoad_AnthropicWhitespaceKeyRejected(t *testing.T) {
	_, err := Load(context.Background(), fakeSettings{SettingAnthropicKey: "   "}, noEnv)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot be empty")
}

func TestLoad_LiteLLM(t *testing.T) {
	settings := fakeSettings{
		SettingProvider:      "LiteLLM",
		SettingLiteLLMURL:    "https://llm.internal.example/",
		SettingLiteLLMAPIKey: "sk-gw",
	}
	cfg, err := Load(context.Background(), settings, noEnv)
	require.NoError(t, err)

	assert.Equal(t, KindLiteLLM, cfg.Kind())
	assert.Equal(t, "https://llm.internal.example/v1/messages", cfg.Endpoint())
	assert.Equal(t, "https://llm.internal.example/v1/models", cfg.ModelsEndpoint())
	assert.Equal(t, "Bearer sk-gw", cfg.Headers()["Authorization"])
}

func TestLoad_LiteLLMErrors(t *testing.T) {
	tests := []struct {
		name     string
		settings fakeSettings
		want     string
	}{
		{
			name:     "missing base url",
			settings: fakeSettings{SettingProvider: "litellm", SettingLiteLLMAPIKey: "k"},
			want:     "LiteLLM base URL not configured",
		},
		{
			name:     "missing api key",
			settings: fakeSettings{SettingProvider: "litellm", SettingLiteLLMURL: "http://localhost:4000"},
			want:     "LiteLLM API key not configured",
		},
		{
			name:     "malformed url",
			settings: fakeSettings{SettingProvider: "litellm", SettingLiteLLMURL: "not a url", SettingLiteLLMAPIKey: "k"},
			want:     "Invalid URL format",
		},
		{
			name:     "blank key",
			settings: fakeSettings{SettingProvider: "litellm", SettingLiteLLMURL: "http://localhost:4000", SettingLiteLLMAPIKey: " "},
			want:     "LiteLLM API key cannot be empty",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(context.Background(), tt.settings, noEnv)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoad_UnknownProvider(t *testing.T) {
	_, err := Load(context.Background(), fakeSettings{SettingProvider: "bedrock"}, noEnv)
	require.Error(t, err)
	assert.Equal(t, "unknown provider: bedrock", err.Error())

	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, SettingProvider, cfgErr.Setting)
}

func TestLoad_StoreFailureIsNotTreatedAsMissing(t *testing.T) {
	_, err := Load(context.Background(), brokenSettings{}, noEnv)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk I/O error")
}
