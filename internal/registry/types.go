// Package registry holds the tool data model and the immutable tool
// catalog. Definitions are declared once at startup from static tables and
// never mutated during request handling.
package registry

import (
	"context"
	"encoding/json"
	"fmt"
)

// Role is a caller access level. The enumeration is closed; roles are
// supplied by the surrounding session layer, not asserted by tools.
type Role string

const (
	RoleDeveloper   Role = "developer"
	RoleStakeholder Role = "stakeholder"
	RoleAdmin       Role = "admin"
)

// ParseRole validates a role string against the closed enumeration.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleDeveloper, RoleStakeholder, RoleAdmin:
		return Role(s), nil
	}
	return "", fmt.Errorf("unknown role %q (expected developer, stakeholder, or admin)", s)
}

// Permission classifies a tool as read or write against the instance.
type Permission string

const (
	PermissionRead  Permission = "read"
	PermissionWrite Permission = "write"
)

// ExecutionContext carries the per-call identity: which instance to target,
// the caller's role, and the credential reference the client provider uses
// to locate or refresh a token. Created per incoming call, never shared.
type ExecutionContext struct {
	TargetInstance string
	CallerRole     Role
	CredentialRef  string
}

// Handler executes one tool against the target instance and returns a raw
// payload or a typed error for the normalizer.
type Handler func(ctx context.Context, args map[string]any, execCtx ExecutionContext) (any, error)

// ParamSpec describes one named parameter of a tool's input schema.
type ParamSpec struct {
	Name        string
	Type        string // "string", "number", "integer", "boolean", "object", "array"
	Description string
	Default     any
	Enum        []string
	Required    bool
}

// InputSchema is the structural description of a tool's accepted arguments.
// Parameter order is the declaration order and is preserved in generated
// schemas and error messages.
type InputSchema struct {
	Params []ParamSpec
}

// ActionSpec binds one action of a unified tool to its own mandatory
// parameter subset and sub-handler. Required lists parameter names in the
// order they are checked, so the first-missing report is deterministic.
type ActionSpec struct {
	Name        string
	Description string
	Required    []string
	Handler     Handler
}

// ActionSchema is the discriminated union of a unified tool: the name of
// the discriminator parameter and the closed set of actions.
type ActionSchema struct {
	Param   string // discriminator parameter name, conventionally "action"
	Actions []ActionSpec
}

// Action returns the spec for the named action, or nil.
func (s *ActionSchema) Action(name string) *ActionSpec {
	for i := range s.Actions {
		if s.Actions[i].Name == name {
			return &s.Actions[i]
		}
	}
	return nil
}

// ActionNames returns the declared action names in order.
func (s *ActionSchema) ActionNames() []string {
	names := make([]string, len(s.Actions))
	for i, a := range s.Actions {
		names[i] = a.Name
	}
	return names
}

// ToolDefinition is the static description of one registered tool.
type ToolDefinition struct {
	Name         string
	Description  string
	Category     string
	Subcategory  string
	Permission   Permission
	AllowedRoles []Role
	InputSchema  InputSchema
	ActionSchema *ActionSchema // non-nil only for unified tools
}

// Allows reports whether the given role is in the tool's declared role set.
func (d *ToolDefinition) Allows(role Role) bool {
	for _, r := range d.AllowedRoles {
		if r == role {
			return true
		}
	}
	return false
}

// RoleNames returns the allowed roles as plain strings.
func (d *ToolDefinition) RoleNames() []string {
	names := make([]string, len(d.AllowedRoles))
	for i, r := range d.AllowedRoles {
		names[i] = string(r)
	}
	return names
}

// JSONSchema renders the input schema as a JSON Schema object document.
// The shape is stable across restarts for identical definitions: map keys
// marshal in sorted order and the required list follows declaration order.
func (s InputSchema) JSONSchema() json.RawMessage {
	properties := make(map[string]any, len(s.Params))
	var required []string

	for _, p := range s.Params {
		prop := map[string]any{"type": p.Type}
		if p.Description != "" {
			prop["description"] = p.Description
		}
		if len(p.Enum) > 0 {
			prop["enum"] = p.Enum
		}
		if p.Default != nil {
			prop["default"] = p.Default
		}
		properties[p.Name] = prop
		if p.Required {
			required = append(required, p.Name)
		}
	}

	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}

	data, err := json.Marshal(schema)
	if err != nil {
		// Schemas are built from static tables; a marshal failure is a
		// programming error caught by registration-time validation.
		panic(fmt.Sprintf("input schema marshal: %v", err))
	}
	return data
}

// Param returns the spec for the named parameter, or nil.
func (s InputSchema) Param(name string) *ParamSpec {
	for i := range s.Params {
		if s.Params[i].Name == name {
			return &s.Params[i]
		}
	}
	return nil
}
