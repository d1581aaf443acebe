package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Roles accepted by the messages API.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Stop reasons the planning loop distinguishes.
const (
	StopEndTurn = "end_turn"
	StopToolUse = "tool_use"
)

// Content block types.
const (
	BlockText    = "text"
	BlockToolUse = "tool_use"
)

// Message is one conversation turn. Content is either a JSON string or an
// array of content blocks / tool results, passed through to the provider.
type Message struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
}

// TextMessage builds a turn whose content is a plain string.
func TextMessage(role, text string) Message {
	b, _ := json.Marshal(text)
	return Message{Role: role, Content: b}
}

// BlocksMessage builds a turn whose content is a structured value such as
// []ContentBlock or []ToolResult.
func BlocksMessage(role string, content any) (Message, error) {
	b, err := json.Marshal(content)
	if err != nil {
		return Message{}, fmt.Errorf("marshal %s content: %w", role, err)
	}
	return Message{Role: role, Content: b}, nil
}

// ContentBlock is the tagged union of response blocks: text{text} or
// tool_use{id, name, input}.
type ContentBlock struct {
	Type  string
	Text  string
	ID    string
	Name  string
	Input json.RawMessage
}

// TextBlock returns a text block.
func TextBlock(text string) ContentBlock {
	return ContentBlock{Type: BlockText, Text: text}
}

// ToolUseBlock returns a tool_use block.
func ToolUseBlock(id, name string, input json.RawMessage) ContentBlock {
	return ContentBlock{Type: BlockToolUse, ID: id, Name: name, Input: input}
}

type textBlockJSON struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type toolUseBlockJSON struct {
	Type  string          `json:"type"`
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input"`
}

// MarshalJSON emits only the fields of the block's variant.
func (b ContentBlock) MarshalJSON() ([]byte, error) {
	switch b.Type {
	case BlockText:
		return json.Marshal(textBlockJSON{Type: BlockText, Text: b.Text})
	case BlockToolUse:
		input := b.Input
		if len(input) == 0 {
			input = json.RawMessage(`{}`)
		}
		return json.Marshal(toolUseBlockJSON{Type: BlockToolUse, ID: b.ID, Name: b.Name, Input: input})
	default:
		return nil, fmt.Errorf("unknown content block type %q", b.Type)
	}
}

// UnmarshalJSON rejects block types other than text and tool_use.
func (b *ContentBlock) UnmarshalJSON(data []byte) error {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return err
	}

	switch head.Type {
	case BlockText:
		var v textBlockJSON
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*b = TextBlock(v.Text)
	case BlockToolUse:
		var v toolUseBlockJSON
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		if v.ID == "" || v.Name == "" {
			return errors.New("tool_use block requires id and name")
		}
		*b = ToolUseBlock(v.ID, v.Name, v.Input)
	case "":
		return errors.New("content block has no type")
	default:
		return fmt.Errorf("unknown content block type %q", head.Type)
	}
	return nil
}

// ToolResult answers one tool_use block in the following user turn.
type ToolResult struct {
	Type      string `json:"type"`
	ToolUseID string `json:"tool_use_id"`
	Content   string `json:"content"`
	IsError   bool   `json:"is_error,omitempty"`
}

// NewToolResult builds a tool_result for the call with the given id.
func NewToolResult(toolUseID, content string, isError bool) ToolResult {
	return ToolResult{Type: "tool_result", ToolUseID: toolUseID, Content: content, IsError: isError}
}

// ToolDefinition describes a tool the model may call.
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema"`
}

// Usage is the token accounting returned with a response.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Response is the subset of a messages API response the planner consumes.
type Response struct {
	Content    []ContentBlock `json:"content"`
	StopReason string         `json:"stop_reason"`
	Usage      *Usage         `json:"usage,omitempty"`
}

// ParseResponse decodes a raw messages API body.
func ParseResponse(body string) (*Response, error) {
	var resp Response
	if err := json.Unmarshal([]byte(body), &resp); err != nil {
		return nil, fmt.Errorf("failed to parse model response: %w", err)
	}
	if resp.StopReason == "" {
		return nil, errors.New("failed to parse model response: missing stop_reason")
	}
	return &resp, nil
}

// ToolCalls returns the tool_use blocks in the order they appeared.
func (r *Response) ToolCalls() []ContentBlock {
	var calls []ContentBlock
	for _, b := range r.Content {
		if b.Type == BlockToolUse {
			calls = append(calls, b)
		}
	}
	return calls
}

// Text concatenates the text blocks.
func (r *Response) Text() string {
	var sb strings.Builder
	for _, b := range r.Content {
		if b.Type == BlockText {
			sb.WriteString(b.Text)
		}
	}
	return sb.String()
}
