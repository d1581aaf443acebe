// Package seed populates an empty agents table from a YAML definition file.
package seed

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/ashureev/orcascore/internal/domain"
	"gopkg.in/yaml.v3"
)

//go:embed default_agents.yaml
var defaultAgents []byte

// Store is the persistence seeding needs.
type Store interface {
	CountAgents(ctx context.Context) (int64, error)
	CreateAgent(ctx context.Context, agent *domain.Agent) error
}

type agentFile struct {
	Agents []agentDef `yaml:"agents"`
}

type agentDef struct {
	Name       string `yaml:"name"`
	Model      string `yaml:"model"`
	Prompt     string `yaml:"prompt"`
	SystemRole string `yaml:"system_role"`
}

// Parse decodes an agent definition file. At most one agent may carry the
// planning role and no other role is accepted.
func Parse(data []byte) ([]domain.Agent, error) {
	var file agentFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("invalid agent definitions: %w", err)
	}
	if len(file.Agents) == 0 {
		return nil, errors.New("agent definitions are empty")
	}

	agents := make([]domain.Agent, 0, len(file.Agents))
	planners := 0
	for i, def := range file.Agents {
		name := strings.TrimSpace(def.Name)
		if name == "" {
			return nil, fmt.Errorf("agent %d: name is required", i+1)
		}
		if strings.TrimSpace(def.Model) == "" {
			return nil, fmt.Errorf("agent %q: model is required", name)
		}

		agent := domain.Agent{
			Name:        name,
			ModelName:   strings.TrimSpace(def.Model),
			AgentPrompt: strings.TrimSpace(def.Prompt),
		}
		switch def.SystemRole {
		case "":
		case domain.SystemRolePlanning:
			planners++
			role := domain.SystemRolePlanning
			agent.SystemRole = &role
		default:
			return nil, fmt.Errorf("agent %q: unknown system_role %q", name, def.SystemRole)
		}
		agents = append(agents, agent)
	}
	if planners > 1 {
		return nil, fmt.Errorf("%d agents declare the planning role, expected at most one", planners)
	}
	return agents, nil
}

// Load reads definitions from path, or the built-in defaults when path is empty.
func Load(path string) ([]domain.Agent, error) {
	if path == "" {
		return Parse(defaultAgents)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read agent definitions: %w", err)
	}
	return Parse(data)
}

// Agents inserts agents if the store has none yet and returns how many were
// created. A non-empty store is left untouched.
func Agents(ctx context.Context, s Store, agents []domain.Agent, logger *slog.Logger) (int, error) {
	if logger == nil {
		logger = slog.Default()
	}

	n, err := s.CountAgents(ctx)
	if err != nil {
		return 0, fmt.Errorf("count agents: %w", err)
	}
	if n > 0 {
		logger.Debug("Agents already present, skipping seed", "count", n)
		return 0, nil
	}

	for i := range agents {
		agent := agents[i]
		if err := s.CreateAgent(ctx, &agent); err != nil {
			return i, fmt.Errorf("create agent %q: %w", agent.Name, err)
		}
		logger.Info("Seeded agent", "id", agent.ID, "name", agent.Name, "planning", !agent.IsWorker())
	}
	return len(agents), nil
}
