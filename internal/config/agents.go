package config

import (
	_ "embed"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed agents.yaml
var defaultAgentsYAML []byte

const projectPlaceholder = "{project_id}"

// AgentDefinition is the prompt and tool set of one chat agent.
type AgentDefinition struct {
	Prompt string   `yaml:"prompt"`
	Tools  []string `yaml:"tools"`
}

// AgentsConfig describes every agent served by the service.
type AgentsConfig struct {
	ProjectDirective string                     `yaml:"project_directive"`
	WebSearchTools   []string                   `yaml:"web_search_tools"`
	Agents           map[string]AgentDefinition `yaml:"agents"`
	Models           struct {
		Aliases map[string]string `yaml:"aliases"`
	} `yaml:"models"`
}

// LoadAgents reads the agent definitions from path, or the embedded defaults when path is empty.
func LoadAgents(path string) (*AgentsConfig, error) {
	raw := defaultAgentsYAML
	if strings.TrimSpace(path) != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read agents config: %w", err)
		}
		raw = data
	}
	return ParseAgents(raw)
}

// ParseAgents decodes and validates an agents YAML document.
func ParseAgents(raw []byte) (*AgentsConfig, error) {
	var cfg AgentsConfig
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("decode agents config: %w", err)
	}
	if len(cfg.Agents) == 0 {
		return nil, fmt.Errorf("agents config defines no agents")
	}
	for name, def := range cfg.Agents {
		if strings.TrimSpace(def.Prompt) == "" {
			return nil, fmt.Errorf("agent %q has an empty prompt", name)
		}
	}
	return &cfg, nil
}

// Agent returns the definition registered under name.
func (c *AgentsConfig) Agent(name string) (AgentDefinition, bool) {
	def, ok := c.Agents[name]
	return def, ok
}

// ProjectDirectiveFor renders the project directive for the given project id.
func (c *AgentsConfig) ProjectDirectiveFor(projectID int64) string {
	if strings.TrimSpace(c.ProjectDirective) == "" {
		return ""
	}
	return strings.ReplaceAll(c.ProjectDirective, projectPlaceholder, strconv.FormatInt(projectID, 10))
}

// ResolveModelAlias maps a configured alias to a concrete model id.
func (c *AgentsConfig) ResolveModelAlias(model string) string {
	if target, ok := c.Models.Aliases[model]; ok && target != "" {
		return target
	}
	return model
}
