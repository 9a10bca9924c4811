package domain

import (
	"fmt"
	"strings"
)

// HumanInputMode controls whether an agent may pause for a human.
type HumanInputMode string

const (
	HumanInputNever     HumanInputMode = "never"
	HumanInputTerminate HumanInputMode = "terminate"
	HumanInputAlways    HumanInputMode = "always"
)

// Backend names the LLM an agent talks to.
type Backend struct {
	Provider string `json:"provider" yaml:"provider"`
	Model    string `json:"model"    yaml:"model"`
}

// AgentSpec describes one participant of a group conversation. The system
// prompt is fixed at construction. Tools is nil for agents that carry none.
type AgentSpec struct {
	Name         string         `json:"name"`
	Description  string         `json:"description"`
	SystemPrompt string         `json:"system_prompt"`
	Backend      Backend        `json:"backend"`
	Tools        ToolExecutor   `json:"-"`
	HumanInput   HumanInputMode `json:"human_input"`
}

// HasTools reports whether the agent carries a tool set.
func (s AgentSpec) HasTools() bool {
	return s.Tools != nil
}

// Validate checks the fields every agent needs before it can be registered.
func (s AgentSpec) Validate() error {
	var problems []string
	if strings.TrimSpace(s.Name) == "" {
		problems = append(problems, "name is empty")
	}
	if strings.ContainsAny(s.Name, " \t\n") {
		problems = append(problems, fmt.Sprintf("name %q contains whitespace", s.Name))
	}
	if strings.TrimSpace(s.SystemPrompt) == "" {
		problems = append(problems, "system prompt is empty")
	}
	if s.Backend.Provider == "" {
		problems = append(problems, "backend provider is empty")
	}
	if len(problems) > 0 {
		return NewDomainError("AgentSpec.Validate", ErrInvalidInput,
			fmt.Sprintf("%s: %s", s.Name, strings.Join(problems, ", ")))
	}
	return nil
}
