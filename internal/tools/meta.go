package tools

import (
	"context"

	"github.com/groeimetai/snow-flow/internal/registry"
)

const categoryMeta = "meta"

func (h *Handlers) registerMeta(reg *registry.Registry) error {
	if err := reg.Register(&registry.ToolDefinition{
		Name:         "snow_discover_tools",
		Description:  "Search the tool catalog by keyword or browse by category.",
		Category:     categoryMeta,
		Permission:   registry.PermissionRead,
		AllowedRoles: readRoles,
		InputSchema: registry.InputSchema{Params: []registry.ParamSpec{
			{Name: "query", Type: "string", Description: "Keyword to search tool names and descriptions"},
			{Name: "category", Type: "string", Description: "Restrict results to one category"},
			{Name: "limit", Type: "integer", Description: "Maximum tools to return", Default: 10},
		}},
	}, h.discoverTools); err != nil {
		return err
	}

	return reg.Register(&registry.ToolDefinition{
		Name:         "snow_auth_diagnostics",
		Description:  "Report credential cache state for the configured instances. Never returns token material.",
		Category:     categoryMeta,
		Permission:   registry.PermissionRead,
		AllowedRoles: readRoles,
		InputSchema:  registry.InputSchema{},
	}, h.authDiagnostics)
}

func (h *Handlers) discoverTools(ctx context.Context, args map[string]any, execCtx registry.ExecutionContext) (any, error) {
	results := h.reg.Search(stringArg(args, "query"), stringArg(args, "category"), intArg(args, "limit", 10))
	return map[string]any{
		"tools":      results,
		"count":      len(results),
		"categories": h.reg.Categories(),
	}, nil
}

func (h *Handlers) authDiagnostics(ctx context.Context, args map[string]any, execCtx registry.ExecutionContext) (any, error) {
	return map[string]any{
		"instance":    execCtx.TargetInstance,
		"role":        string(execCtx.CallerRole),
		"credentials": h.provider.Stats(),
	}, nil
}
