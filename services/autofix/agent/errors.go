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

import (
	"errors"
	"fmt"
)

// Sentinel errors for the agent package.
var (
	// ErrNilContext is returned when a nil context is passed.
	ErrNilContext = errors.New("context must not be nil")

	// ErrInvalidInput is returned when input validation fails.
	ErrInvalidInput = errors.New("invalid input")

	// ErrDuplicateAgent is returned when registering two agents with
	// the same name.
	ErrDuplicateAgent = errors.New("agent with this name already registered")

	// ErrNoAgentAvailable marks an issue group no registered agent
	// cleared the confidence threshold for. Not fatal: the group is
	// reported unresolved and coordination continues.
	ErrNoAgentAvailable = errors.New("no agent available for issue type")

	// ErrAgentPanicked marks an agent invocation that raised. The
	// panic is absorbed into a failed fragment.
	ErrAgentPanicked = errors.New("agent panicked during fix")
)

// AgentError wraps an error with the agent that caused it.
type AgentError struct {
	AgentName string
	Err       error
}

// Error returns the error message.
func (e *AgentError) Error() string {
	return fmt.Sprintf("agent %q: %v", e.AgentName, e.Err)
}

// Unwrap returns the underlying error.
func (e *AgentError) Unwrap() error {
	return e.Err
}

// NewAgentError creates an AgentError.
func NewAgentError(name string, err error) *AgentError {
	return &AgentError{AgentName: name, Err: err}
}
