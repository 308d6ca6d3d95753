package tools

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/groeimetai/snow-flow/internal/registry"
	"github.com/groeimetai/snow-flow/internal/snowclient"
)

const categoryOperations = "operations"

func (h *Handlers) registerOperations(reg *registry.Registry) error {
	defs := []struct {
		def     *registry.ToolDefinition
		handler registry.Handler
	}{
		{
			def: &registry.ToolDefinition{
				Name:         "collect_data",
				Description:  "Collect recent Performance Analytics indicator scores from the instance.",
				Category:     categoryOperations,
				Permission:   registry.PermissionRead,
				AllowedRoles: readRoles,
				InputSchema: registry.InputSchema{Params: []registry.ParamSpec{
					{Name: "indicator", Type: "string", Description: "Indicator sys_id to filter scores by"},
					{Name: "limit", Type: "integer", Description: "Maximum scores to return", Default: 20},
				}},
			},
			handler: h.collectData,
		},
		{
			def: &registry.ToolDefinition{
				Name:         "snow_query_table",
				Description:  "Query any ServiceNow table with an encoded query string.",
				Category:     categoryOperations,
				Permission:   registry.PermissionRead,
				AllowedRoles: readRoles,
				InputSchema: registry.InputSchema{Params: []registry.ParamSpec{
					{Name: "table", Type: "string", Description: "Table name, e.g. incident", Required: true},
					{Name: "query", Type: "string", Description: "Encoded query, e.g. active=true^priority=1"},
					{Name: "fields", Type: "string", Description: "Comma-separated field list"},
					{Name: "limit", Type: "integer", Description: "Maximum records to return", Default: 10},
					{Name: "display_value", Type: "boolean", Description: "Return display values instead of raw values"},
				}},
			},
			handler: h.queryTable,
		},
		{
			def: &registry.ToolDefinition{
				Name:         "snow_get_record",
				Description:  "Fetch a single record by sys_id.",
				Category:     categoryOperations,
				Permission:   registry.PermissionRead,
				AllowedRoles: readRoles,
				InputSchema: registry.InputSchema{Params: []registry.ParamSpec{
					{Name: "table", Type: "string", Description: "Table name", Required: true},
					{Name: "sys_id", Type: "string", Description: "Record sys_id", Required: true},
					{Name: "fields", Type: "string", Description: "Comma-separated field list"},
				}},
			},
			handler: h.getRecord,
		},
		{
			def: &registry.ToolDefinition{
				Name:         "snow_create_incident",
				Description:  "Create an incident.",
				Category:     categoryOperations,
				Permission:   registry.PermissionWrite,
				AllowedRoles: writeRoles,
				InputSchema: registry.InputSchema{Params: []registry.ParamSpec{
					{Name: "short_description", Type: "string", Description: "Incident summary", Required: true},
					{Name: "description", Type: "string", Description: "Detailed description"},
					{Name: "urgency", Type: "string", Description: "1 (high) to 3 (low)", Enum: []string{"1", "2", "3"}},
					{Name: "impact", Type: "string", Description: "1 (high) to 3 (low)", Enum: []string{"1", "2", "3"}},
					{Name: "caller_id", Type: "string", Description: "Caller sys_id or user name"},
					{Name: "assignment_group", Type: "string", Description: "Assignment group sys_id or name"},
					{Name: "category", Type: "string", Description: "Incident category"},
				}},
			},
			handler: h.createIncident,
		},
		{
			def: &registry.ToolDefinition{
				Name:         "snow_update_incident",
				Description:  "Update fields on an existing incident.",
				Category:     categoryOperations,
				Permission:   registry.PermissionWrite,
				AllowedRoles: writeRoles,
				InputSchema: registry.InputSchema{Params: []registry.ParamSpec{
					{Name: "sys_id", Type: "string", Description: "Incident sys_id", Required: true},
					{Name: "state", Type: "string", Description: "New state value"},
					{Name: "assigned_to", Type: "string", Description: "Assignee sys_id or user name"},
					{Name: "work_notes", Type: "string", Description: "Work note to append"},
					{Name: "short_description", Type: "string", Description: "Replacement summary"},
					{Name: "urgency", Type: "string", Description: "1 (high) to 3 (low)", Enum: []string{"1", "2", "3"}},
					{Name: "close_code", Type: "string", Description: "Resolution code when closing"},
					{Name: "close_notes", Type: "string", Description: "Resolution notes when closing"},
				}},
			},
			handler: h.updateIncident,
		},
		{
			def: &registry.ToolDefinition{
				Name:         "snow_add_comment",
				Description:  "Add a customer-visible comment to a record.",
				Category:     categoryOperations,
				Permission:   registry.PermissionWrite,
				AllowedRoles: writeRoles,
				InputSchema: registry.InputSchema{Params: []registry.ParamSpec{
					{Name: "sys_id", Type: "string", Description: "Record sys_id", Required: true},
					{Name: "comment", Type: "string", Description: "Comment text", Required: true},
					{Name: "table", Type: "string", Description: "Table name", Default: "incident"},
				}},
			},
			handler: h.addComment,
		},
	}

	for _, d := range defs {
		if err := reg.Register(d.def, d.handler); err != nil {
			return err
		}
	}
	return nil
}

func (h *Handlers) collectData(ctx context.Context, args map[string]any, execCtx registry.ExecutionContext) (any, error) {
	client, err := h.provider.GetClient(ctx, execCtx)
	if err != nil {
		return nil, err
	}

	query := url.Values{}
	query.Set("sysparm_limit", strconv.Itoa(intArg(args, "limit", 20)))
	if indicator := stringArg(args, "indicator"); indicator != "" {
		query.Set("sysparm_query", "indicator="+indicator+"^ORDERBYDESCsys_created_on")
	} else {
		query.Set("sysparm_query", "ORDERBYDESCsys_created_on")
	}

	raw, err := client.Get(ctx, "/api/now/table/pa_scores", query)
	if err != nil {
		return nil, err
	}
	var scores []map[string]any
	if err := snowclient.Result(raw, &scores); err != nil {
		return nil, fmt.Errorf("decoding pa_scores response: %w", err)
	}
	return map[string]any{"scores": scores, "count": len(scores)}, nil
}

func (h *Handlers) queryTable(ctx context.Context, args map[string]any, execCtx registry.ExecutionContext) (any, error) {
	var in struct {
		Table        string `json:"table"`
		Query        string `json:"query"`
		Fields       string `json:"fields"`
		Limit        int    `json:"limit"`
		DisplayValue bool   `json:"display_value"`
	}
	if err := bind(args, &in); err != nil {
		return nil, err
	}
	if in.Limit <= 0 {
		in.Limit = 10
	}

	client, err := h.provider.GetClient(ctx, execCtx)
	if err != nil {
		return nil, err
	}

	query := url.Values{}
	query.Set("sysparm_limit", strconv.Itoa(in.Limit))
	if in.Query != "" {
		query.Set("sysparm_query", in.Query)
	}
	if in.Fields != "" {
		query.Set("sysparm_fields", in.Fields)
	}
	if in.DisplayValue {
		query.Set("sysparm_display_value", "true")
	}

	raw, err := client.Get(ctx, "/api/now/table/"+url.PathEscape(in.Table), query)
	if err != nil {
		return nil, err
	}
	var records []map[string]any
	if err := snowclient.Result(raw, &records); err != nil {
		return nil, fmt.Errorf("decoding table response: %w", err)
	}
	return map[string]any{"table": in.Table, "records": records, "count": len(records)}, nil
}

func (h *Handlers) getRecord(ctx context.Context, args map[string]any, execCtx registry.ExecutionContext) (any, error) {
	table := stringArg(args, "table")
	sysID := stringArg(args, "sys_id")

	client, err := h.provider.GetClient(ctx, execCtx)
	if err != nil {
		return nil, err
	}

	query := url.Values{}
	if fields := stringArg(args, "fields"); fields != "" {
		query.Set("sysparm_fields", fields)
	}

	raw, err := client.Get(ctx, "/api/now/table/"+url.PathEscape(table)+"/"+url.PathEscape(sysID), query)
	if err != nil {
		return nil, err
	}
	var record map[string]any
	if err := snowclient.Result(raw, &record); err != nil {
		return nil, fmt.Errorf("decoding record response: %w", err)
	}
	return record, nil
}

func (h *Handlers) createIncident(ctx context.Context, args map[string]any, execCtx registry.ExecutionContext) (any, error) {
	client, err := h.provider.GetClient(ctx, execCtx)
	if err != nil {
		return nil, err
	}

	body := recordFields(args, "short_description", "description", "urgency", "impact", "caller_id", "assignment_group", "category")
	raw, err := client.Post(ctx, "/api/now/table/incident", body)
	if err != nil {
		return nil, err
	}
	var created map[string]any
	if err := snowclient.Result(raw, &created); err != nil {
		return nil, fmt.Errorf("decoding create response: %w", err)
	}
	return map[string]any{
		"sys_id":   created["sys_id"],
		"number":   created["number"],
		"incident": created,
	}, nil
}

func (h *Handlers) updateIncident(ctx context.Context, args map[string]any, execCtx registry.ExecutionContext) (any, error) {
	sysID := stringArg(args, "sys_id")

	client, err := h.provider.GetClient(ctx, execCtx)
	if err != nil {
		return nil, err
	}

	body := recordFields(args, "state", "assigned_to", "work_notes", "short_description", "urgency", "close_code", "close_notes")
	raw, err := client.Patch(ctx, "/api/now/table/incident/"+url.PathEscape(sysID), body)
	if err != nil {
		return nil, err
	}
	var updated map[string]any
	if err := snowclient.Result(raw, &updated); err != nil {
		return nil, fmt.Errorf("decoding update response: %w", err)
	}
	return map[string]any{"sys_id": sysID, "incident": updated}, nil
}

func (h *Handlers) addComment(ctx context.Context, args map[string]any, execCtx registry.ExecutionContext) (any, error) {
	table := stringArg(args, "table")
	if table == "" {
		table = "incident"
	}
	sysID := stringArg(args, "sys_id")

	client, err := h.provider.GetClient(ctx, execCtx)
	if err != nil {
		return nil, err
	}

	raw, err := client.Patch(ctx,
		"/api/now/table/"+url.PathEscape(table)+"/"+url.PathEscape(sysID),
		map[string]any{"comments": stringArg(args, "comment")})
	if err != nil {
		return nil, err
	}
	var updated map[string]any
	if err := snowclient.Result(raw, &updated); err != nil {
		return nil, fmt.Errorf("decoding comment response: %w", err)
	}
	return map[string]any{"sys_id": sysID, "table": table}, nil
}

// recordFields copies the named string arguments that are present and
// non-empty into a request body.
func recordFields(args map[string]any, names ...string) map[string]any {
	body := make(map[string]any, len(names))
	for _, name := range names {
		if v := stringArg(args, name); v != "" {
			body[name] = v
		}
	}
	return body
}
