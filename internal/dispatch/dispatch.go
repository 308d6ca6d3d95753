// Package dispatch routes unified, multi-action tool invocations. A
// unified tool folds several formerly separate operations behind one name;
// the discriminator parameter selects the sub-handler, and each action
// carries its own mandatory-parameter subset checked before anything runs.
package dispatch

import (
	"context"
	"fmt"

	"github.com/groeimetai/snow-flow/internal/registry"
	"github.com/groeimetai/snow-flow/internal/result"
)

// Resolve validates a unified tool invocation and returns the sub-handler
// bound to the requested action. Validation is complete before the handler
// is returned: an unknown action or a missing required parameter never
// partially executes anything. Required parameters are checked in declared
// order, so the first-missing error is deterministic regardless of how the
// caller ordered the arguments.
func Resolve(def *registry.ToolDefinition, args map[string]any) (registry.Handler, error) {
	schema := def.ActionSchema
	if schema == nil {
		return nil, fmt.Errorf("tool %s is not a unified tool", def.Name)
	}

	raw, present := args[schema.Param]
	actionName, isString := raw.(string)
	if !present || raw == nil || (isString && actionName == "") {
		return nil, &result.MissingParameterError{
			Tool:      def.Name,
			Action:    "",
			Parameter: schema.Param,
		}
	}
	if !isString {
		// Present but not a string: it cannot match any declared action.
		actionName = fmt.Sprint(raw)
	}

	action := schema.Action(actionName)
	if action == nil {
		return nil, &result.UnknownActionError{
			Tool:    def.Name,
			Action:  actionName,
			Allowed: schema.ActionNames(),
		}
	}

	for _, param := range action.Required {
		if missingArg(args, param) {
			return nil, &result.MissingParameterError{
				Tool:      def.Name,
				Action:    action.Name,
				Parameter: param,
			}
		}
	}

	return action.Handler, nil
}

// Invoke resolves and runs the action's sub-handler with the full argument
// set.
func Invoke(ctx context.Context, def *registry.ToolDefinition, args map[string]any, execCtx registry.ExecutionContext) (any, error) {
	handler, err := Resolve(def, args)
	if err != nil {
		return nil, err
	}
	return handler(ctx, args, execCtx)
}

// missingArg treats absent keys, nil values, and empty strings as missing.
// An action-required parameter that is present but empty carries no more
// information than an absent one.
func missingArg(args map[string]any, param string) bool {
	val, ok := args[param]
	if !ok || val == nil {
		return true
	}
	if s, isString := val.(string); isString && s == "" {
		return true
	}
	return false
}
