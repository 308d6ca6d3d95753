// Package policy enforces role-based access to tools. The gate is a pure
// predicate evaluated before the dispatcher or any handler runs, so a
// denied call never acquires a token, opens a connection, or performs a
// partial write.
package policy

import (
	"github.com/groeimetai/snow-flow/internal/registry"
	"github.com/groeimetai/snow-flow/internal/result"
)

// Check decides whether the caller may invoke the tool. Role membership in
// the tool's declared set is necessary and sufficient; no other signal is
// consulted. The declared set is honored literally; misdeclared sets are a
// registration-time concern, not the gate's.
func Check(def *registry.ToolDefinition, execCtx registry.ExecutionContext) error {
	if def.Allows(execCtx.CallerRole) {
		return nil
	}
	return &result.PermissionDeniedError{
		Tool:          def.Name,
		RequiredRoles: def.RoleNames(),
		ActualRole:    string(execCtx.CallerRole),
	}
}
