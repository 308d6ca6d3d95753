package tools

import (
	"context"
	"fmt"

	"github.com/groeimetai/snow-flow/internal/registry"
	"github.com/groeimetai/snow-flow/internal/snowclient"
)

const categoryAnalytics = "platform-analytics"

func (h *Handlers) registerAnalytics(reg *registry.Registry) error {
	if err := reg.Register(&registry.ToolDefinition{
		Name:         "indicator_create",
		Description:  "Create a Performance Analytics indicator.",
		Category:     categoryAnalytics,
		Permission:   registry.PermissionWrite,
		AllowedRoles: writeRoles,
		InputSchema: registry.InputSchema{Params: []registry.ParamSpec{
			{Name: "name", Type: "string", Description: "Indicator name", Required: true},
			{Name: "description", Type: "string", Description: "What the indicator measures"},
			{Name: "unit", Type: "string", Description: "Unit sys_id or label"},
			{Name: "frequency", Type: "string", Description: "Collection frequency", Enum: []string{"daily", "weekly", "monthly"}},
			{Name: "facts_table", Type: "string", Description: "Source table the indicator aggregates over"},
			{Name: "aggregate", Type: "string", Description: "Aggregation, e.g. COUNT or AVG"},
		}},
	}, h.indicatorCreate); err != nil {
		return err
	}

	return reg.Register(&registry.ToolDefinition{
		Name:         "pa_create",
		Description:  "Create Performance Analytics artifacts: indicators, widgets, thresholds, or breakdowns.",
		Category:     categoryAnalytics,
		Permission:   registry.PermissionWrite,
		AllowedRoles: writeRoles,
		InputSchema: registry.InputSchema{Params: []registry.ParamSpec{
			{Name: "action", Type: "string", Description: "Artifact kind to create", Required: true,
				Enum: []string{"indicator", "widget", "threshold", "breakdown"}},
			{Name: "name", Type: "string", Description: "Artifact name"},
			{Name: "description", Type: "string", Description: "Artifact description"},
			{Name: "indicator", Type: "string", Description: "Indicator sys_id the artifact attaches to"},
			{Name: "value", Type: "number", Description: "Threshold value"},
			{Name: "operator", Type: "string", Description: "Threshold comparison", Enum: []string{">", ">=", "<", "<=", "="}},
			{Name: "frequency", Type: "string", Description: "Collection frequency", Enum: []string{"daily", "weekly", "monthly"}},
			{Name: "facts_table", Type: "string", Description: "Source table for indicators"},
			{Name: "field", Type: "string", Description: "Source field for breakdowns"},
			{Name: "widget_type", Type: "string", Description: "Widget visualization type"},
		}},
		ActionSchema: &registry.ActionSchema{
			Param: "action",
			Actions: []registry.ActionSpec{
				{
					Name:        "indicator",
					Description: "Create an indicator",
					Required:    []string{"name"},
					Handler:     h.paCreateIndicator,
				},
				{
					Name:        "widget",
					Description: "Create a widget bound to an indicator",
					Required:    []string{"name", "indicator"},
					Handler:     h.paCreateWidget,
				},
				{
					Name:        "threshold",
					Description: "Create a threshold on an indicator",
					Required:    []string{"indicator", "value", "operator"},
					Handler:     h.paCreateThreshold,
				},
				{
					Name:        "breakdown",
					Description: "Create a breakdown over a source field",
					Required:    []string{"name", "field"},
					Handler:     h.paCreateBreakdown,
				},
			},
		},
	}, nil)
}

func (h *Handlers) indicatorCreate(ctx context.Context, args map[string]any, execCtx registry.ExecutionContext) (any, error) {
	return h.paInsert(ctx, execCtx, "pa_indicators",
		recordFields(args, "name", "description", "unit", "frequency", "facts_table", "aggregate"))
}

func (h *Handlers) paCreateIndicator(ctx context.Context, args map[string]any, execCtx registry.ExecutionContext) (any, error) {
	return h.paInsert(ctx, execCtx, "pa_indicators",
		recordFields(args, "name", "description", "frequency", "facts_table"))
}

func (h *Handlers) paCreateWidget(ctx context.Context, args map[string]any, execCtx registry.ExecutionContext) (any, error) {
	body := recordFields(args, "name", "description", "indicator")
	if t := stringArg(args, "widget_type"); t != "" {
		body["type"] = t
	}
	return h.paInsert(ctx, execCtx, "pa_widgets", body)
}

func (h *Handlers) paCreateThreshold(ctx context.Context, args map[string]any, execCtx registry.ExecutionContext) (any, error) {
	body := recordFields(args, "indicator", "operator", "description")
	body["value"] = args["value"]
	return h.paInsert(ctx, execCtx, "pa_thresholds", body)
}

func (h *Handlers) paCreateBreakdown(ctx context.Context, args map[string]any, execCtx registry.ExecutionContext) (any, error) {
	return h.paInsert(ctx, execCtx, "pa_breakdowns",
		recordFields(args, "name", "description", "field", "facts_table"))
}

// paInsert inserts one record into a PA table and returns its identity.
func (h *Handlers) paInsert(ctx context.Context, execCtx registry.ExecutionContext, table string, body map[string]any) (any, error) {
	client, err := h.provider.GetClient(ctx, execCtx)
	if err != nil {
		return nil, err
	}
	raw, err := client.Post(ctx, "/api/now/table/"+table, body)
	if err != nil {
		return nil, err
	}
	var created map[string]any
	if err := snowclient.Result(raw, &created); err != nil {
		return nil, fmt.Errorf("decoding %s response: %w", table, err)
	}
	return map[string]any{"table": table, "sys_id": created["sys_id"], "record": created}, nil
}
