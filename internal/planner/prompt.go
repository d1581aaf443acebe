package planner

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ashureev/orcascore/internal/domain"
	"github.com/ashureev/orcascore/internal/llm"
)

const toolCreateSubtask = "create_subtask"

const seedInstruction = "Please analyze this task and create a comprehensive breakdown using the create_subtask tool. " +
	"Create 3-7 subtasks that cover the complete workflow, and assign each to the most appropriate agent."

// createSubtaskTool is the only tool offered to the planning model.
var createSubtaskTool = llm.ToolDefinition{
	Name:        toolCreateSubtask,
	Description: "Create a new subtask for the task being planned",
	InputSchema: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"task_id": map[string]any{
				"type":        "number",
				"description": "The ID of the parent task (will be auto-filled)",
			},
			"title": map[string]any{
				"type":        "string",
				"description": "Clear, action-oriented title for the subtask",
			},
			"description": map[string]any{
				"type":        "string",
				"description": "Detailed description of subtask scope, deliverables, and expectations",
			},
			"agent_id": map[string]any{
				"type":        "number",
				"description": "ID of the agent best suited for this subtask",
			},
		},
		"required": []string{"task_id", "title", "description", "agent_id"},
	},
}

var toolSchemas = mustToolSchemas(createSubtaskTool)

func mustToolSchemas(defs ...llm.ToolDefinition) []json.RawMessage {
	out := make([]json.RawMessage, 0, len(defs))
	for _, d := range defs {
		b, err := json.Marshal(d)
		if err != nil {
			panic(fmt.Sprintf("marshal tool %s: %v", d.Name, err))
		}
		out = append(out, b)
	}
	return out
}

// buildSystemPrompt appends the task and the worker roster to the planning
// agent's own prompt.
func buildSystemPrompt(agentPrompt string, taskID int64, title string, description *string, workers []domain.Agent) string {
	desc := "No description provided"
	if description != nil {
		desc = *description
	}

	roster := make([]string, 0, len(workers))
	for _, w := range workers {
		roster = append(roster, fmt.Sprintf("**Agent ID %d: %s (Model: %s)**\n%s\n", w.ID, w.Name, w.ModelName, w.AgentPrompt))
	}

	var b strings.Builder
	b.WriteString(agentPrompt)
	b.WriteString("\n\n## Current Planning Task\n\n")
	fmt.Fprintf(&b, "**Task ID**: %d\n**Title**: %s\n**Description**: %s\n\n", taskID, title, desc)
	b.WriteString("## Available Agents for Assignment\n\n")
	b.WriteString(strings.Join(roster, "\n\n"))
	b.WriteString("\n\n## Instructions\n\n")
	b.WriteString("Analyze this task and create appropriate subtasks using the create_subtask tool. " +
		"Each subtask should have a clear title, detailed description, and be assigned to the most " +
		"suitable agent based on their capabilities.")
	return b.String()
}
