package agents

import (
	"github.com/localnerve/reportdesk/internal/config"
)

// Registry is the read side of the agent catalogue
type Registry struct {
	catalog *config.AgentCatalog
}

// NewRegistry wraps a catalogue; nil uses the defaults
func NewRegistry(catalog *config.AgentCatalog) *Registry {
	if catalog == nil {
		catalog = config.DefaultAgents()
	}
	return &Registry{catalog: catalog}
}

// List returns the agents in catalogue order
func (r *Registry) List() []config.Agent {
	out := make([]config.Agent, len(r.catalog.Agents))
	copy(out, r.catalog.Agents)
	return out
}

// Find looks an agent up by id
func (r *Registry) Find(id string) (config.Agent, bool) {
	return r.catalog.Find(id)
}

// Order is the preferred display order of agent sections
func (r *Registry) Order() []string {
	return r.catalog.Order
}

// Domains is the canonical order of domain sections
func (r *Registry) Domains() []string {
	return r.catalog.Domains
}
