package planner

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/kaptinlin/jsonrepair"
)

type createSubtaskInput struct {
	Title       string
	Description string
	AgentID     int64
}

// decodeCreateSubtaskInput validates a create_subtask input object. Models
// occasionally send the object JSON-encoded as a string, sometimes with
// broken syntax; those are unwrapped and repaired first.
func decodeCreateSubtaskInput(raw json.RawMessage) (createSubtaskInput, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && raw[0] == '"' {
		var encoded string
		if err := json.Unmarshal(raw, &encoded); err != nil {
			return createSubtaskInput{}, fmt.Errorf("invalid input: %w", err)
		}
		repaired, err := jsonrepair.JSONRepair(encoded)
		if err != nil {
			return createSubtaskInput{}, fmt.Errorf("invalid input: %w", err)
		}
		raw = json.RawMessage(repaired)
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var fields map[string]any
	if err := dec.Decode(&fields); err != nil || fields == nil {
		return createSubtaskInput{}, errors.New("input must be an object")
	}

	title, ok := fields["title"].(string)
	if !ok {
		return createSubtaskInput{}, errors.New("missing title")
	}
	description, ok := fields["description"].(string)
	if !ok {
		return createSubtaskInput{}, errors.New("missing description")
	}
	num, ok := fields["agent_id"].(json.Number)
	if !ok {
		return createSubtaskInput{}, errors.New("missing agent_id")
	}
	agentID, err := num.Int64()
	if err != nil {
		return createSubtaskInput{}, errors.New("missing agent_id")
	}

	return createSubtaskInput{Title: title, Description: description, AgentID: agentID}, nil
}
