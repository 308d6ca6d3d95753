// Package result defines the uniform tool result contract and the error
// taxonomy shared by the registry, gate, dispatcher, and client provider.
// Every tool invocation, whether it succeeds, fails validation, is denied,
// or hits an upstream error, is reduced to exactly one ToolResult; callers
// branch on the discriminant, never on exceptions.
package result

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrorKind classifies a failed tool invocation. Kinds are listed in
// detection order along the call pipeline.
type ErrorKind string

const (
	KindUnknownTool      ErrorKind = "unknown_tool"
	KindPermissionDenied ErrorKind = "permission_denied"
	KindUnknownAction    ErrorKind = "unknown_action"
	KindMissingParameter ErrorKind = "missing_parameter"
	KindInvalidArgument  ErrorKind = "invalid_argument"
	KindAuthentication   ErrorKind = "authentication"
	KindUpstream         ErrorKind = "upstream"
	KindInternal         ErrorKind = "internal"
)

// ToolResult is the only shape ever returned to a caller.
type ToolResult struct {
	OK        bool           `json:"ok"`
	Data      any            `json:"data,omitempty"`
	ErrorKind ErrorKind      `json:"errorKind,omitempty"`
	Message   string         `json:"message,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
}

// Success wraps a handler payload.
func Success(data any) *ToolResult {
	return &ToolResult{OK: true, Data: data}
}

// Failure builds an error result.
func Failure(kind ErrorKind, message string, details map[string]any) *ToolResult {
	return &ToolResult{OK: false, ErrorKind: kind, Message: message, Details: details}
}

// JSON renders the result as a JSON document. Marshal failures degrade to a
// minimal internal-error document rather than propagating.
func (r *ToolResult) JSON() []byte {
	data, err := json.Marshal(r)
	if err != nil {
		fallback, _ := json.Marshal(Failure(KindInternal, "result serialization failed: "+err.Error(), nil))
		return fallback
	}
	return data
}

// Normalize executes fn and reduces whatever happens (a payload, a typed
// error, or a panic) to a well-formed ToolResult. It never lets a fault
// escape.
func Normalize(fn func() (any, error)) (res *ToolResult) {
	defer func() {
		if rec := recover(); rec != nil {
			res = Failure(KindInternal, fmt.Sprintf("unexpected fault: %v", rec), nil)
		}
	}()

	data, err := fn()
	if err != nil {
		return FromError(err)
	}
	return Success(data)
}

// FromError maps a typed pipeline error to its result kind. Unrecognized
// errors are reclassified as internal.
func FromError(err error) *ToolResult {
	var (
		unknownTool  *UnknownToolError
		denied       *PermissionDeniedError
		unknownAct   *UnknownActionError
		missingParam *MissingParameterError
		invalidArg   *InvalidArgumentError
		authErr      *AuthenticationError
		upstream     *UpstreamError
	)

	switch {
	case errors.As(err, &unknownTool):
		return Failure(KindUnknownTool, err.Error(), map[string]any{"tool": unknownTool.Tool})
	case errors.As(err, &denied):
		return Failure(KindPermissionDenied, err.Error(), map[string]any{
			"tool":          denied.Tool,
			"requiredRoles": denied.RequiredRoles,
			"actualRole":    denied.ActualRole,
		})
	case errors.As(err, &unknownAct):
		return Failure(KindUnknownAction, err.Error(), map[string]any{
			"tool":    unknownAct.Tool,
			"action":  unknownAct.Action,
			"allowed": unknownAct.Allowed,
		})
	case errors.As(err, &missingParam):
		return Failure(KindMissingParameter, err.Error(), map[string]any{
			"action":    missingParam.Action,
			"parameter": missingParam.Parameter,
		})
	case errors.As(err, &invalidArg):
		return Failure(KindInvalidArgument, err.Error(), map[string]any{
			"tool":     invalidArg.Tool,
			"location": invalidArg.Location,
		})
	case errors.As(err, &authErr):
		return Failure(KindAuthentication, err.Error(), map[string]any{"instance": authErr.Instance})
	case errors.As(err, &upstream):
		details := map[string]any{"status": upstream.Status}
		if upstream.Detail != "" {
			details["detail"] = upstream.Detail
		}
		return Failure(KindUpstream, err.Error(), details)
	default:
		return Failure(KindInternal, err.Error(), nil)
	}
}
