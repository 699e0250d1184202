// Package provenance models the prompt-level chain of custody bundled into
// SOC2/incident evidence exports — the system prompt and turns that produced
// a trace — distinct from the commitment causal DAG in pkg/proofgraph.
package provenance

import "time"

// TurnRole identifies who produced a turn in the envelope.
type TurnRole string

const (
	RoleSystem    TurnRole = "system"
	RoleUser      TurnRole = "user"
	RoleAssistant TurnRole = "assistant"
)

// Turn is a single recorded exchange contributing to an envelope.
type Turn struct {
	Role      TurnRole  `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Envelope bundles the prompt materials behind a traced decision so an
// auditor can reconstruct what the system was told.
type Envelope struct {
	SystemPrompt string    `json:"system_prompt,omitempty"`
	Turns        []Turn    `json:"turns,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// Builder incrementally assembles an Envelope.
type Builder struct {
	env Envelope
}

// NewBuilder creates an empty envelope builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// AddSystemPrompt sets the envelope's system prompt.
func (b *Builder) AddSystemPrompt(prompt string) *Builder {
	b.env.SystemPrompt = prompt
	return b
}

// AddTurn appends a turn to the envelope.
func (b *Builder) AddTurn(role TurnRole, content string, at time.Time) *Builder {
	b.env.Turns = append(b.env.Turns, Turn{Role: role, Content: content, Timestamp: at})
	return b
}

// Build finalizes the envelope.
func (b *Builder) Build() *Envelope {
	e := b.env
	return &e
}
