package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Agent describes one analysis webhook the dashboard can forward documents to
type Agent struct {
	ID          string `yaml:"id" json:"id"`
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description" json:"description"`
	Webhook     string `yaml:"webhook" json:"-"`
}

// AgentCatalog is the agents file layout
type AgentCatalog struct {
	Agents []Agent `yaml:"agents"`
	// Order is the preferred display order of agent sections in a combined response.
	Order []string `yaml:"order"`
	// Domains optionally fixes the order of domain-wise sections.
	Domains []string `yaml:"domains"`
}

// DefaultAgents returns the built-in catalogue
func DefaultAgents() *AgentCatalog {
	return &AgentCatalog{
		Agents: []Agent{
			{
				ID:          "hiq-document-checker",
				Name:        "HIQ-Document Checker",
				Description: "Validates document completeness and compliance",
				Webhook:     "https://gluagents.xyz/webhook/e91d733a-4fe5-41cf-a024-9b2ec3a6f914",
			},
			{
				ID:          "sample-adequacy-checker",
				Name:        "Sample Adequacy Checker",
				Description: "Checks sample sizes and adequacy against the rule book",
				Webhook:     "https://gluagents.xyz/webhook/c08346a1-e41e-49b7-a64a-35570baf409d",
			},
		},
		Order: []string{
			"Document Checker",
			"Sample Adequacy",
			"Waste Organiser",
			"Danger Detector",
			"EPA rule book",
			"Recycling Hunter",
		},
	}
}

// LoadAgents reads the agent catalogue from a YAML file, or returns the defaults when path is empty
func LoadAgents(path string) (*AgentCatalog, error) {
	if path == "" {
		return DefaultAgents(), nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read agents config: %w", err)
	}

	return ParseAgents(raw)
}

// ParseAgents decodes a YAML agent catalogue. Missing sections fall back to the defaults.
func ParseAgents(raw []byte) (*AgentCatalog, error) {
	var catalog AgentCatalog
	if err := yaml.Unmarshal(raw, &catalog); err != nil {
		return nil, fmt.Errorf("failed to parse agents config: %w", err)
	}

	defaults := DefaultAgents()
	if len(catalog.Agents) == 0 {
		catalog.Agents = defaults.Agents
	}
	if len(catalog.Order) == 0 {
		catalog.Order = defaults.Order
	}

	seen := make(map[string]struct{}, len(catalog.Agents))
	for _, a := range catalog.Agents {
		if a.ID == "" || a.Webhook == "" {
			return nil, fmt.Errorf("agent %q: id and webhook are required", a.Name)
		}
		if _, dup := seen[a.ID]; dup {
			return nil, fmt.Errorf("duplicate agent id %q", a.ID)
		}
		seen[a.ID] = struct{}{}
	}

	return &catalog, nil
}

// Find returns the agent with the given id
func (c *AgentCatalog) Find(id string) (Agent, bool) {
	for _, a := range c.Agents {
		if a.ID == id {
			return a, true
		}
	}
	return Agent{}, false
}
