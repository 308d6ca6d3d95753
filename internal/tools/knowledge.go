package tools

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/groeimetai/snow-flow/internal/registry"
	"github.com/groeimetai/snow-flow/internal/snowclient"
)

const categoryKnowledge = "knowledge"

func (h *Handlers) registerKnowledge(reg *registry.Registry) error {
	if err := reg.Register(&registry.ToolDefinition{
		Name:         "knowledge_search",
		Description:  "Full-text search over published knowledge articles.",
		Category:     categoryKnowledge,
		Permission:   registry.PermissionRead,
		AllowedRoles: readRoles,
		InputSchema: registry.InputSchema{Params: []registry.ParamSpec{
			{Name: "query", Type: "string", Description: "Search text", Required: true},
			{Name: "kb", Type: "string", Description: "Knowledge base sys_id to search within"},
			{Name: "limit", Type: "integer", Description: "Maximum articles to return", Default: 10},
		}},
	}, h.knowledgeSearch); err != nil {
		return err
	}

	return reg.Register(&registry.ToolDefinition{
		Name:         "knowledge_article_get",
		Description:  "Fetch a knowledge article and return its body as plain text.",
		Category:     categoryKnowledge,
		Permission:   registry.PermissionRead,
		AllowedRoles: readRoles,
		InputSchema: registry.InputSchema{Params: []registry.ParamSpec{
			{Name: "sys_id", Type: "string", Description: "Article sys_id", Required: true},
		}},
	}, h.knowledgeArticleGet)
}

func (h *Handlers) knowledgeSearch(ctx context.Context, args map[string]any, execCtx registry.ExecutionContext) (any, error) {
	var in struct {
		Query string `json:"query"`
		KB    string `json:"kb"`
		Limit int    `json:"limit"`
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

	// 123TEXTQUERY321 is the Table API's full-text search operator.
	encoded := "workflow_state=published^123TEXTQUERY321=" + in.Query
	if in.KB != "" {
		encoded = "kb_knowledge_base=" + in.KB + "^" + encoded
	}
	query := url.Values{}
	query.Set("sysparm_query", encoded)
	query.Set("sysparm_limit", strconv.Itoa(in.Limit))
	query.Set("sysparm_fields", "sys_id,number,short_description,kb_knowledge_base,sys_view_count,sys_updated_on")

	raw, err := client.Get(ctx, "/api/now/table/kb_knowledge", query)
	if err != nil {
		return nil, err
	}
	var articles []map[string]any
	if err := snowclient.Result(raw, &articles); err != nil {
		return nil, fmt.Errorf("decoding knowledge response: %w", err)
	}
	return map[string]any{"articles": articles, "count": len(articles)}, nil
}

func (h *Handlers) knowledgeArticleGet(ctx context.Context, args map[string]any, execCtx registry.ExecutionContext) (any, error) {
	sysID := stringArg(args, "sys_id")

	client, err := h.provider.GetClient(ctx, execCtx)
	if err != nil {
		return nil, err
	}

	raw, err := client.Get(ctx, "/api/now/table/kb_knowledge/"+url.PathEscape(sysID), nil)
	if err != nil {
		return nil, err
	}
	var article struct {
		SysID            string `json:"sys_id"`
		Number           string `json:"number"`
		ShortDescription string `json:"short_description"`
		Text             string `json:"text"`
		WorkflowState    string `json:"workflow_state"`
		UpdatedOn        string `json:"sys_updated_on"`
	}
	if err := snowclient.Result(raw, &article); err != nil {
		return nil, fmt.Errorf("decoding article response: %w", err)
	}

	return map[string]any{
		"sys_id":            article.SysID,
		"number":            article.Number,
		"short_description": article.ShortDescription,
		"workflow_state":    article.WorkflowState,
		"updated_on":        article.UpdatedOn,
		"text":              htmlToText(article.Text),
	}, nil
}
