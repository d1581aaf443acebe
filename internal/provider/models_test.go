package provider

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFriendlyName(t *testing.T) {
	tests := []struct {
		id   string
		want string
	}{
		{"claude-sonnet-4-20250514", "claude-sonnet-4"},
		{"claude-sonnet-4-5-20251012", "claude-sonnet-4-5"},
		{"claude-sonnet-4", "claude-sonnet-4"},
		{"claude-sonnet-4-2025051", "claude-sonnet-4-2025051"},
		{"claude-sonnet-4-202505140", "claude-sonnet-4-202505140"},
		{"claude-sonnet-4_20250514", "claude-sonnet-4_20250514"},
		{"20250514", "20250514"},
		{"gpt-4o-20240513-preview", "gpt-4o-20240513-preview"},
		{"model--20240513", "model-"},
	}

	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			assert.Equal(t, tt.want, FriendlyName(tt.id))
		})
	}
}

func TestParseModels_Anthropic(t *testing.T) {
	body := []byte(`{"data":[
		{"id":"claude-sonnet-4-20250514","display_name":"Claude Sonnet 4"},
		{"id":"claude-opus-4-1","display_name":"Claude Opus 4.1"}
	]}`)

	models, err := ParseModels(KindAnthropic, body)
	require.NoError(t, err)
	require.Len(t, models, 2)
	assert.Equal(t, ModelInfo{ID: "claude-sonnet-4-20250514", DisplayName: "claude-sonnet-4", DisplayLabel: "Claude Sonnet 4"}, models[0])
	assert.Equal(t, "claude-opus-4-1", models[1].DisplayName)
}

func TestParseModels_LiteLLMDerivesLabel(t *testing.T) {
	models, err := ParseModels(KindLiteLLM, []byte(`{"data":[{"id":"claude-haiku-4-20250101"}]}`))
	require.NoError(t, err)
	require.Len(t, models, 1)
	assert.Equal(t, "claude-haiku-4", models[0].DisplayName)
	assert.Equal(t, "Claude Haiku 4", models[0].DisplayLabel)
}

func TestParseModels_InvalidJSON(t *testing.T) {
	_, err := ParseModels(KindAnthropic, []byte(`<html>`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse Anthropic models response")
}

func TestResolveModelID(t *testing.T) {
	models := []ModelInfo{
		{ID: "claude-sonnet-4-20250514", DisplayName: "claude-sonnet-4"},
		{ID: "claude-sonnet-4-20250601", DisplayName: "claude-sonnet-4"},
		{ID: "claude-haiku-4-20250101", DisplayName: "claude-haiku-4"},
	}

	assert.Equal(t, "claude-sonnet-4-20250514", ResolveModelID(models, "claude-sonnet-4"), "first match wins")
	assert.Equal(t, "claude-haiku-4-20250101", ResolveModelID(models, "claude-haiku-4"))
	assert.Equal(t, "claude-opus-4-20250514", ResolveModelID(models, "claude-opus-4-20250514"), "unknown names pass through")
	assert.Equal(t, "claude-sonnet-4-20250514", ResolveModelID(models, "claude-sonnet-4-20250514"), "full ids pass through")
}
