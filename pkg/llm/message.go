// Package llm adapts the completion provider's REST protocol to the
// call pipeline, including the two-round tool-calling exchange.
package llm

import (
	"github.com/voxline/voxline/pkg/tools"
)

// Role defines message roles in a completion request.
type Role string

const (
	// RoleSystem is for system instructions.
	RoleSystem Role = "system"

	// RoleUser is for caller utterances.
	RoleUser Role = "user"

	// RoleAssistant is for assistant responses.
	RoleAssistant Role = "assistant"
)

// Message is one entry in a completion request.
type Message struct {
	// Role identifies the message sender.
	Role Role

	// Content is the text content, empty on tool-call messages.
	Content string

	// ToolCalls carries the assistant's tool-call request when
	// replaying round one into round two.
	ToolCalls []tools.Call

	// ToolResults carries executed tool outcomes back to the provider.
	ToolResults []tools.Result
}

// NormalizeRole maps loose provider-agnostic role names onto the three
// wire roles. Unknown roles become user rather than failing the request.
func NormalizeRole(role string) Role {
	switch role {
	case "system", "developer":
		return RoleSystem
	case "assistant":
		return RoleAssistant
	case "user":
		return RoleUser
	default:
		return RoleUser
	}
}

// NewSystemMessage creates a system message.
func NewSystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

// NewUserMessage creates a user message.
func NewUserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// NewAssistantMessage creates an assistant message.
func NewAssistantMessage(content string) Message {
	return Message{Role: RoleAssistant, Content: content}
}

// NewToolCallMessage creates the assistant message replaying a
// tool-call request.
func NewToolCallMessage(calls []tools.Call) Message {
	return Message{Role: RoleAssistant, ToolCalls: calls}
}

// NewToolResultMessage creates the message carrying executed tool
// results into round two.
func NewToolResultMessage(results []tools.Result) Message {
	return Message{Role: RoleAssistant, ToolResults: results}
}
