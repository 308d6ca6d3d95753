package result

import (
	"fmt"
	"strings"
)

// DuplicateToolError reports a second registration under an existing name.
// It only occurs at startup; it never reaches a caller as a ToolResult.
type DuplicateToolError struct {
	Tool string
}

func (e *DuplicateToolError) Error() string {
	return fmt.Sprintf("tool already registered: %s", e.Tool)
}

// UnknownToolError reports a registry lookup miss.
type UnknownToolError struct {
	Tool string
}

func (e *UnknownToolError) Error() string {
	return fmt.Sprintf("unknown tool: %s", e.Tool)
}

// PermissionDeniedError reports a role-gate denial before any side effect.
type PermissionDeniedError struct {
	Tool          string
	RequiredRoles []string
	ActualRole    string
}

func (e *PermissionDeniedError) Error() string {
	return fmt.Sprintf("permission denied for tool %s: role %q not in allowed roles [%s]",
		e.Tool, e.ActualRole, strings.Join(e.RequiredRoles, ", "))
}

// UnknownActionError reports an action discriminator outside a unified
// tool's declared enumeration.
type UnknownActionError struct {
	Tool    string
	Action  string
	Allowed []string
}

func (e *UnknownActionError) Error() string {
	return fmt.Sprintf("unknown action %q for tool %s (allowed: %s)",
		e.Action, e.Tool, strings.Join(e.Allowed, ", "))
}

// MissingParameterError reports the first missing required parameter for a
// unified tool's action. Parameter ordering follows the declared required
// list, so the reported name is deterministic.
type MissingParameterError struct {
	Tool      string
	Action    string
	Parameter string
}

func (e *MissingParameterError) Error() string {
	return fmt.Sprintf("action %q of tool %s requires parameter %q", e.Action, e.Tool, e.Parameter)
}

// InvalidArgumentError reports an argument set that violates the tool's
// input schema.
type InvalidArgumentError struct {
	Tool     string
	Location string
	Reason   string
}

func (e *InvalidArgumentError) Error() string {
	loc := e.Location
	if loc == "" {
		loc = "/"
	}
	return fmt.Sprintf("invalid arguments for tool %s at %s: %s", e.Tool, loc, e.Reason)
}

// AuthenticationError reports that no usable credential could be obtained
// or refreshed for an instance.
type AuthenticationError struct {
	Instance string
	Reason   string
}

func (e *AuthenticationError) Error() string {
	return fmt.Sprintf("authentication failed for instance %s: %s", e.Instance, e.Reason)
}

// UpstreamError carries a non-2xx response from the target instance.
type UpstreamError struct {
	Status int
	Detail string
}

func (e *UpstreamError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("upstream returned status %d", e.Status)
	}
	return fmt.Sprintf("upstream returned status %d: %s", e.Status, e.Detail)
}
