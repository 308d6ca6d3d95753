package tools

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/groeimetai/snow-flow/internal/registry"
	"github.com/groeimetai/snow-flow/internal/snowclient"
)

const categoryCatalog = "catalog"

func (h *Handlers) registerCatalog(reg *registry.Registry) error {
	if err := reg.Register(&registry.ToolDefinition{
		Name:         "catalog_item_search",
		Description:  "Search service catalog items by name or description.",
		Category:     categoryCatalog,
		Permission:   registry.PermissionRead,
		AllowedRoles: readRoles,
		InputSchema: registry.InputSchema{Params: []registry.ParamSpec{
			{Name: "query", Type: "string", Description: "Search text", Required: true},
			{Name: "active_only", Type: "boolean", Description: "Only return active items", Default: true},
			{Name: "limit", Type: "integer", Description: "Maximum items to return", Default: 10},
		}},
	}, h.catalogItemSearch); err != nil {
		return err
	}

	return reg.Register(&registry.ToolDefinition{
		Name:         "catalog_item_manage",
		Description:  "Create or update catalog items and add variables to them.",
		Category:     categoryCatalog,
		Permission:   registry.PermissionWrite,
		AllowedRoles: writeRoles,
		InputSchema: registry.InputSchema{Params: []registry.ParamSpec{
			{Name: "action", Type: "string", Description: "Operation to perform", Required: true,
				Enum: []string{"create", "update", "add_variable"}},
			{Name: "name", Type: "string", Description: "Item name (create)"},
			{Name: "sys_id", Type: "string", Description: "Item sys_id (update, add_variable)"},
			{Name: "short_description", Type: "string", Description: "Item summary"},
			{Name: "category", Type: "string", Description: "Catalog category sys_id"},
			{Name: "price", Type: "string", Description: "Item price"},
			{Name: "variable_name", Type: "string", Description: "Variable name (add_variable)"},
			{Name: "variable_type", Type: "string", Description: "Variable type (add_variable)"},
			{Name: "variable_label", Type: "string", Description: "Variable question label (add_variable)"},
		}},
		ActionSchema: &registry.ActionSchema{
			Param: "action",
			Actions: []registry.ActionSpec{
				{
					Name:        "create",
					Description: "Create a catalog item",
					Required:    []string{"name"},
					Handler:     h.catalogItemCreate,
				},
				{
					Name:        "update",
					Description: "Update a catalog item",
					Required:    []string{"sys_id"},
					Handler:     h.catalogItemUpdate,
				},
				{
					Name:        "add_variable",
					Description: "Add a variable to a catalog item",
					Required:    []string{"sys_id", "variable_name", "variable_type"},
					Handler:     h.catalogItemAddVariable,
				},
			},
		},
	}, nil)
}

func (h *Handlers) catalogItemSearch(ctx context.Context, args map[string]any, execCtx registry.ExecutionContext) (any, error) {
	var in struct {
		Query      string `json:"query"`
		ActiveOnly *bool  `json:"active_only"`
		Limit      int    `json:"limit"`
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

	encoded := "nameLIKE" + in.Query + "^ORshort_descriptionLIKE" + in.Query
	if in.ActiveOnly == nil || *in.ActiveOnly {
		encoded = "active=true^" + encoded
	}
	query := url.Values{}
	query.Set("sysparm_query", encoded)
	query.Set("sysparm_limit", strconv.Itoa(in.Limit))
	query.Set("sysparm_fields", "sys_id,name,short_description,category,price,active")

	raw, err := client.Get(ctx, "/api/now/table/sc_cat_item", query)
	if err != nil {
		return nil, err
	}
	var items []map[string]any
	if err := snowclient.Result(raw, &items); err != nil {
		return nil, fmt.Errorf("decoding catalog response: %w", err)
	}
	return map[string]any{"items": items, "count": len(items)}, nil
}

func (h *Handlers) catalogItemCreate(ctx context.Context, args map[string]any, execCtx registry.ExecutionContext) (any, error) {
	client, err := h.provider.GetClient(ctx, execCtx)
	if err != nil {
		return nil, err
	}
	body := recordFields(args, "name", "short_description", "category", "price")
	raw, err := client.Post(ctx, "/api/now/table/sc_cat_item", body)
	if err != nil {
		return nil, err
	}
	var created map[string]any
	if err := snowclient.Result(raw, &created); err != nil {
		return nil, fmt.Errorf("decoding create response: %w", err)
	}
	return map[string]any{"sys_id": created["sys_id"], "item": created}, nil
}

func (h *Handlers) catalogItemUpdate(ctx context.Context, args map[string]any, execCtx registry.ExecutionContext) (any, error) {
	sysID := stringArg(args, "sys_id")

	client, err := h.provider.GetClient(ctx, execCtx)
	if err != nil {
		return nil, err
	}
	body := recordFields(args, "name", "short_description", "category", "price")
	raw, err := client.Patch(ctx, "/api/now/table/sc_cat_item/"+url.PathEscape(sysID), body)
	if err != nil {
		return nil, err
	}
	var updated map[string]any
	if err := snowclient.Result(raw, &updated); err != nil {
		return nil, fmt.Errorf("decoding update response: %w", err)
	}
	return map[string]any{"sys_id": sysID, "item": updated}, nil
}

func (h *Handlers) catalogItemAddVariable(ctx context.Context, args map[string]any, execCtx registry.ExecutionContext) (any, error) {
	client, err := h.provider.GetClient(ctx, execCtx)
	if err != nil {
		return nil, err
	}
	body := map[string]any{
		"cat_item": stringArg(args, "sys_id"),
		"name":     stringArg(args, "variable_name"),
		"type":     stringArg(args, "variable_type"),
	}
	if label := stringArg(args, "variable_label"); label != "" {
		body["question_text"] = label
	}
	raw, err := client.Post(ctx, "/api/now/table/item_option_new", body)
	if err != nil {
		return nil, err
	}
	var created map[string]any
	if err := snowclient.Result(raw, &created); err != nil {
		return nil, fmt.Errorf("decoding variable response: %w", err)
	}
	return map[string]any{"variable_sys_id": created["sys_id"], "cat_item": stringArg(args, "sys_id")}, nil
}
