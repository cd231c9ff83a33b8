// Package tools provides the registry and executor for functions the
// assistant can invoke mid-conversation.
//
// Tools are registered once at process start and looked up by exact
// name. Execution is deliberately forgiving: an unknown tool, bad
// arguments, or a failing handler all produce a descriptive result
// string for the model to speak around, never an error that would kill
// the conversation turn.
package tools

import (
	"context"
)

// Param describes one tool parameter.
type Param struct {
	// Type is a JSON Schema primitive: string, integer, number, boolean.
	Type string

	// Description helps the model fill the parameter correctly.
	Description string

	// Required marks parameters without a usable default.
	Required bool

	// Enum restricts string parameters to a fixed set of values.
	Enum []string
}

// RunContext carries per-call facilities into tool handlers.
// Tools that work outside a call receive a zero value.
type RunContext struct {
	// CallID identifies the active call for telemetry.
	CallID string

	// EndCall requests graceful termination of the active call.
	// Nil when no call is in progress.
	EndCall func(reason string)
}

// Handler executes the tool body. The returned string is spoken back
// through the model; keep it short and conversational.
type Handler func(ctx context.Context, rc *RunContext, args map[string]any) (string, error)

// Tool is a named capability the model can invoke.
type Tool struct {
	// Name is the unique registry key. Lookups are case-sensitive.
	Name string

	// Description explains when the model should call this tool.
	Description string

	// Parameters define the argument schema, keyed by parameter name.
	Parameters map[string]Param

	// Handler is the executable body.
	Handler Handler
}

// JSONSchema renders the parameter set as a JSON Schema object, the
// shape completion providers expect in a tool declaration.
func (t Tool) JSONSchema() map[string]any {
	properties := map[string]any{}
	var required []string

	for name, p := range t.Parameters {
		prop := map[string]any{"type": normalizeType(p.Type)}
		if p.Description != "" {
			prop["description"] = p.Description
		}
		if len(p.Enum) > 0 {
			prop["enum"] = p.Enum
		}
		properties[name] = prop
		if p.Required {
			required = append(required, name)
		}
	}

	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

// normalizeType maps loose type names onto JSON Schema primitives.
// Unknown types fall back to string, the safest thing to speak.
func normalizeType(t string) string {
	switch t {
	case "string", "str", "":
		return "string"
	case "integer", "int":
		return "integer"
	case "number", "float", "float64":
		return "number"
	case "boolean", "bool":
		return "boolean"
	default:
		return "string"
	}
}

// Call is a tool invocation request produced by the completion provider.
type Call struct {
	// ID matches the result back to the request. Generated locally
	// when the provider does not supply one.
	ID string

	// Name of the tool to invoke.
	Name string

	// Arguments parsed from the provider's JSON payload.
	Arguments map[string]any
}

// Result pairs a call with its textual outcome.
type Result struct {
	// CallID matches Call.ID.
	CallID string

	// Name of the tool that ran.
	Name string

	// Content is the string outcome, including error descriptions.
	Content string
}
