package tools

import (
	"context"
	"fmt"
	"net/url"

	"github.com/groeimetai/snow-flow/internal/registry"
	"github.com/groeimetai/snow-flow/internal/snowclient"
)

const categoryRecords = "records"

func (h *Handlers) registerRecords(reg *registry.Registry) error {
	return reg.Register(&registry.ToolDefinition{
		Name:         "record_manage",
		Description:  "Create, read, update, or delete a record on any table.",
		Category:     categoryRecords,
		Permission:   registry.PermissionWrite,
		AllowedRoles: writeRoles,
		InputSchema: registry.InputSchema{Params: []registry.ParamSpec{
			{Name: "action", Type: "string", Description: "Operation to perform", Required: true,
				Enum: []string{"create", "read", "update", "delete"}},
			{Name: "table", Type: "string", Description: "Table name", Required: true},
			{Name: "sys_id", Type: "string", Description: "Record sys_id (read, update, delete)"},
			{Name: "fields", Type: "object", Description: "Field values (create, update)"},
		}},
		ActionSchema: &registry.ActionSchema{
			Param: "action",
			Actions: []registry.ActionSpec{
				{
					Name:        "create",
					Description: "Insert a record",
					Required:    []string{"table", "fields"},
					Handler:     h.recordCreate,
				},
				{
					Name:        "read",
					Description: "Fetch a record by sys_id",
					Required:    []string{"table", "sys_id"},
					Handler:     h.recordRead,
				},
				{
					Name:        "update",
					Description: "Update fields on a record",
					Required:    []string{"table", "sys_id", "fields"},
					Handler:     h.recordUpdate,
				},
				{
					Name:        "delete",
					Description: "Delete a record",
					Required:    []string{"table", "sys_id"},
					Handler:     h.recordDelete,
				},
			},
		},
	}, nil)
}

func (h *Handlers) recordCreate(ctx context.Context, args map[string]any, execCtx registry.ExecutionContext) (any, error) {
	table := stringArg(args, "table")
	fields, _ := args["fields"].(map[string]any)

	client, err := h.provider.GetClient(ctx, execCtx)
	if err != nil {
		return nil, err
	}
	raw, err := client.Post(ctx, "/api/now/table/"+url.PathEscape(table), fields)
	if err != nil {
		return nil, err
	}
	var created map[string]any
	if err := snowclient.Result(raw, &created); err != nil {
		return nil, fmt.Errorf("decoding create response: %w", err)
	}
	return map[string]any{"table": table, "sys_id": created["sys_id"], "record": created}, nil
}

func (h *Handlers) recordRead(ctx context.Context, args map[string]any, execCtx registry.ExecutionContext) (any, error) {
	return h.getRecord(ctx, args, execCtx)
}

func (h *Handlers) recordUpdate(ctx context.Context, args map[string]any, execCtx registry.ExecutionContext) (any, error) {
	table := stringArg(args, "table")
	sysID := stringArg(args, "sys_id")
	fields, _ := args["fields"].(map[string]any)

	client, err := h.provider.GetClient(ctx, execCtx)
	if err != nil {
		return nil, err
	}
	raw, err := client.Patch(ctx, "/api/now/table/"+url.PathEscape(table)+"/"+url.PathEscape(sysID), fields)
	if err != nil {
		return nil, err
	}
	var updated map[string]any
	if err := snowclient.Result(raw, &updated); err != nil {
		return nil, fmt.Errorf("decoding update response: %w", err)
	}
	return map[string]any{"table": table, "sys_id": sysID, "record": updated}, nil
}

func (h *Handlers) recordDelete(ctx context.Context, args map[string]any, execCtx registry.ExecutionContext) (any, error) {
	table := stringArg(args, "table")
	sysID := stringArg(args, "sys_id")

	client, err := h.provider.GetClient(ctx, execCtx)
	if err != nil {
		return nil, err
	}
	if _, err := client.Delete(ctx, "/api/now/table/"+url.PathEscape(table)+"/"+url.PathEscape(sysID)); err != nil {
		return nil, err
	}
	return map[string]any{"table": table, "sys_id": sysID, "deleted": true}, nil
}
