// Package llm defines the provider-agnostic types shared between the
// capability router, the provider adapters and the skill runtime: messages,
// tool calls, normalized responses and token usage accounting.
package llm

import "encoding/json"

// Capability is a logical class of AI work, independent of any concrete
// provider or model. Tenants map each capability to a provider+model pair.
type Capability string

const (
	CapabilityExtract  Capability = "extract"
	CapabilityClassify Capability = "classify"
	CapabilityReason   Capability = "reason"
	CapabilityGenerate Capability = "generate"
)

// Capabilities lists every routable capability.
var Capabilities = []Capability{
	CapabilityExtract,
	CapabilityClassify,
	CapabilityReason,
	CapabilityGenerate,
}

// Valid reports whether c is a known capability.
func (c Capability) Valid() bool {
	switch c {
	case CapabilityExtract, CapabilityClassify, CapabilityReason, CapabilityGenerate:
		return true
	}
	return false
}

// Role identifies the author of a conversation message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is one turn in a provider-agnostic conversation. Assistant turns
// may carry tool calls; tool turns carry the result of exactly one call,
// correlated by ToolCallID.
type Message struct {
	Role       Role
	Content    string
	ToolCalls  []ToolCall // populated on assistant turns that requested tools
	ToolCallID string     // populated on tool result turns
	ToolName   string     // populated on tool result turns
	IsError    bool       // tool result turns: the tool failed
}

// ToolCall is a provider-normalized request to invoke a registered tool.
type ToolCall struct {
	ID    string
	Name  string
	Input json.RawMessage
}

// ToolDefinition declares a tool to the provider without exposing its
// implementation. Schema is a JSON-schema document for the tool's input.
type ToolDefinition struct {
	Name        string
	Description string
	Schema      json.RawMessage
}

// StopReason is the normalized reason a provider stopped generating.
type StopReason string

const (
	StopEndTurn   StopReason = "end_turn"
	StopToolUse   StopReason = "tool_use"
	StopMaxTokens StopReason = "max_tokens"
	StopOther     StopReason = "other"
)

// Request is the normalized request shape handed to a provider adapter.
type Request struct {
	SystemPrompt string
	Messages     []Message
	Tools        []ToolDefinition
	MaxTokens    int
	Temperature  float32
}

// Response is the single normalized response shape every adapter produces.
type Response struct {
	Content    string
	ToolCalls  []ToolCall
	StopReason StopReason
	Usage      Usage
}

// ProviderModel is a concrete provider+model pair resolved from tenant
// capability routing.
type ProviderModel struct {
	Provider string `mapstructure:"provider" yaml:"provider"`
	Model    string `mapstructure:"model" yaml:"model"`
}

// Credentials carries provider access configuration, either tenant-supplied
// or the platform default.
type Credentials struct {
	APIKey  string `mapstructure:"api_key" yaml:"api_key"`
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`
}

// OutputSchema describes the shape an AI step expects back from the model.
// ItemKeys lists the keys expected on each element when an array is expected;
// they drive the best-effort repair of near-miss responses.
type OutputSchema struct {
	Type     string   `mapstructure:"type" yaml:"type"` // "array" or "object"
	ItemKeys []string `mapstructure:"item_keys" yaml:"item_keys,omitempty"`
}
