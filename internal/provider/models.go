package provider

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// ModelInfo describes a model offered by the active provider.
type ModelInfo struct {
	ID           string `json:"id"`            // claude-sonnet-4-20250514
	DisplayName  string `json:"display_name"`  // claude-sonnet-4
	DisplayLabel string `json:"display_label"` // Claude Sonnet 4
}

var dateSuffix = regexp.MustCompile(`-\d{8}$`)

// FriendlyName strips a trailing -YYYYMMDD snapshot suffix from a model id.
func FriendlyName(modelID string) string {
	return dateSuffix.ReplaceAllString(modelID, "")
}

// ParseModels decodes a model listing response for the given provider kind.
func ParseModels(kind Kind, body []byte) ([]ModelInfo, error) {
	switch kind {
	case KindAnthropic:
		var resp struct {
			Data []struct {
				ID          string `json:"id"`
				DisplayName string `json:"display_name"`
			} `json:"data"`
		}
		if err := json.Unmarshal(body, &resp); err != nil {
			return nil, fmt.Errorf("parse Anthropic models response: %w", err)
		}
		models := make([]ModelInfo, 0, len(resp.Data))
		for _, m := range resp.Data {
			models = append(models, ModelInfo{
				ID:           m.ID,
				DisplayName:  FriendlyName(m.ID),
				DisplayLabel: m.DisplayName,
			})
		}
		return models, nil

	case KindLiteLLM:
		var resp struct {
			Data []struct {
				ID string `json:"id"`
			} `json:"data"`
		}
		if err := json.Unmarshal(body, &resp); err != nil {
			return nil, fmt.Errorf("parse LiteLLM models response: %w", err)
		}
		models := make([]ModelInfo, 0, len(resp.Data))
		for _, m := range resp.Data {
			friendly := FriendlyName(m.ID)
			models = append(models, ModelInfo{
				ID:           m.ID,
				DisplayName:  friendly,
				DisplayLabel: labelFromFriendly(friendly),
			})
		}
		return models, nil

	default:
		return nil, fmt.Errorf("unknown provider: %s", kind)
	}
}

// labelFromFriendly turns "claude-sonnet-4" into "Claude Sonnet 4".
func labelFromFriendly(friendly string) string {
	words := strings.Fields(strings.ReplaceAll(friendly, "-", " "))
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

// ResolveModelID returns the full id of the first model whose friendly name
// matches. Unknown names are assumed to already be full ids.
func ResolveModelID(models []ModelInfo, friendly string) string {
	for _, m := range models {
		if m.DisplayName == friendly {
			return m.ID
		}
	}
	return friendly
}
