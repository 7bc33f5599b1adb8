// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package agent

// Registry is an explicit, ordered collection of agents.
//
// Description:
//
//	Registration order defines priority: when two agents report equal
//	confidence for an issue, the earlier-registered one wins. The
//	registry is assembled once at startup and passed to the
//	coordinator's constructor; it is read-only afterwards, so reads
//	need no locking.
type Registry struct {
	agents []Agent
	byName map[string]Agent
}

// NewRegistry creates a registry from the given agents, in priority order.
//
// Outputs:
//
//	*Registry - The populated registry.
//	error - ErrInvalidInput for a nil agent, ErrDuplicateAgent for a
//	repeated name.
func NewRegistry(agents ...Agent) (*Registry, error) {
	r := &Registry{
		agents: make([]Agent, 0, len(agents)),
		byName: make(map[string]Agent, len(agents)),
	}
	for _, a := range agents {
		if err := r.add(a); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// add appends an agent, enforcing name uniqueness.
func (r *Registry) add(a Agent) error {
	if a == nil {
		return ErrInvalidInput
	}
	name := a.Name()
	if name == "" {
		return ErrInvalidInput
	}
	if _, exists := r.byName[name]; exists {
		return NewAgentError(name, ErrDuplicateAgent)
	}
	r.agents = append(r.agents, a)
	r.byName[name] = a
	return nil
}

// All returns the agents in priority order. The slice is shared;
// callers must not modify it.
func (r *Registry) All() []Agent {
	return r.agents
}

// Get returns the agent with the given name.
func (r *Registry) Get(name string) (Agent, bool) {
	a, ok := r.byName[name]
	return a, ok
}

// Len returns the number of registered agents.
func (r *Registry) Len() int {
	return len(r.agents)
}
