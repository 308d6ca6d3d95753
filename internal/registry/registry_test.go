package registry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/groeimetai/snow-flow/internal/result"
)

func noopHandler(ctx context.Context, args map[string]any, execCtx ExecutionContext) (any, error) {
	return nil, nil
}

func readDef(name string) *ToolDefinition {
	return &ToolDefinition{
		Name:         name,
		Description:  "test tool",
		Category:     "test",
		Permission:   PermissionRead,
		AllowedRoles: []Role{RoleDeveloper, RoleStakeholder, RoleAdmin},
	}
}

func TestRegisterDuplicateName(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(readDef("snow_query_table"), noopHandler))

	err := r.Register(readDef("snow_query_table"), noopHandler)
	require.Error(t, err)

	var dup *result.DuplicateToolError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, "snow_query_table", dup.Tool)
}

func TestRegisterWriteToolRejectsStakeholder(t *testing.T) {
	r := New()
	def := &ToolDefinition{
		Name:         "snow_create_incident",
		Permission:   PermissionWrite,
		AllowedRoles: []Role{RoleDeveloper, RoleStakeholder},
	}
	err := r.Register(def, noopHandler)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stakeholder")
}

func TestRegisterValidation(t *testing.T) {
	tests := []struct {
		name string
		def  *ToolDefinition
	}{
		{"empty name", &ToolDefinition{Permission: PermissionRead, AllowedRoles: []Role{RoleAdmin}}},
		{"bad permission", &ToolDefinition{Name: "t", Permission: "execute", AllowedRoles: []Role{RoleAdmin}}},
		{"empty roles", &ToolDefinition{Name: "t", Permission: PermissionRead}},
		{"bad role", &ToolDefinition{Name: "t", Permission: PermissionRead, AllowedRoles: []Role{"root"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, New().Register(tt.def, noopHandler))
		})
	}
}

func TestRegisterActionSchemaValidation(t *testing.T) {
	base := func() *ToolDefinition {
		return &ToolDefinition{
			Name:         "record_manage",
			Permission:   PermissionWrite,
			AllowedRoles: []Role{RoleDeveloper, RoleAdmin},
			InputSchema: InputSchema{Params: []ParamSpec{
				{Name: "action", Type: "string", Required: true},
				{Name: "table", Type: "string"},
			}},
		}
	}

	t.Run("valid", func(t *testing.T) {
		def := base()
		def.ActionSchema = &ActionSchema{Param: "action", Actions: []ActionSpec{
			{Name: "read", Required: []string{"table"}, Handler: noopHandler},
		}}
		require.NoError(t, New().Register(def, nil))
	})

	t.Run("undeclared discriminator", func(t *testing.T) {
		def := base()
		def.InputSchema = InputSchema{}
		def.ActionSchema = &ActionSchema{Param: "action", Actions: []ActionSpec{
			{Name: "read", Handler: noopHandler},
		}}
		assert.Error(t, New().Register(def, nil))
	})

	t.Run("undeclared required parameter", func(t *testing.T) {
		def := base()
		def.ActionSchema = &ActionSchema{Param: "action", Actions: []ActionSpec{
			{Name: "read", Required: []string{"sys_id"}, Handler: noopHandler},
		}}
		assert.Error(t, New().Register(def, nil))
	})

	t.Run("duplicate action", func(t *testing.T) {
		def := base()
		def.ActionSchema = &ActionSchema{Param: "action", Actions: []ActionSpec{
			{Name: "read", Handler: noopHandler},
			{Name: "read", Handler: noopHandler},
		}}
		assert.Error(t, New().Register(def, nil))
	})

	t.Run("nil action handler", func(t *testing.T) {
		def := base()
		def.ActionSchema = &ActionSchema{Param: "action", Actions: []ActionSpec{
			{Name: "read"},
		}}
		assert.Error(t, New().Register(def, nil))
	})
}

func TestRegisterAfterFreeze(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(readDef("a"), noopHandler))
	r.Freeze()

	err := r.Register(readDef("b"), noopHandler)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "frozen")
}

func TestLookupUnknownTool(t *testing.T) {
	r := New()
	r.Freeze()

	_, err := r.Lookup("nope")
	var unknown *result.UnknownToolError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "nope", unknown.Tool)
}

func TestListSortedSnapshot(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(readDef("zeta"), noopHandler))
	require.NoError(t, r.Register(readDef("alpha"), noopHandler))
	require.NoError(t, r.Register(readDef("mid"), noopHandler))
	r.Freeze()

	defs := r.List(ListFilter{})
	require.Len(t, defs, 3)
	assert.Equal(t, "alpha", defs[0].Name)
	assert.Equal(t, "mid", defs[1].Name)
	assert.Equal(t, "zeta", defs[2].Name)

	// Mutating the returned slice must not affect subsequent listings.
	defs[0] = nil
	again := r.List(ListFilter{})
	require.NotNil(t, again[0])
	assert.Equal(t, "alpha", again[0].Name)
}

func TestListFilters(t *testing.T) {
	r := New()
	write := &ToolDefinition{
		Name:         "record_manage",
		Category:     "records",
		Permission:   PermissionWrite,
		AllowedRoles: []Role{RoleDeveloper, RoleAdmin},
	}
	require.NoError(t, r.Register(readDef("snow_query_table"), noopHandler))
	require.NoError(t, r.Register(write, noopHandler))
	r.Freeze()

	byCategory := r.List(ListFilter{Category: "records"})
	require.Len(t, byCategory, 1)
	assert.Equal(t, "record_manage", byCategory[0].Name)

	byPermission := r.List(ListFilter{Permission: PermissionRead})
	require.Len(t, byPermission, 1)
	assert.Equal(t, "snow_query_table", byPermission[0].Name)
}

func TestSearch(t *testing.T) {
	r := New()
	incident := readDef("snow_create_incident")
	incident.Description = "Create an incident."
	incident.Category = "operations"
	require.NoError(t, r.Register(incident, noopHandler))

	knowledge := readDef("knowledge_search")
	knowledge.Description = "Full-text search over knowledge articles."
	knowledge.Category = "knowledge"
	require.NoError(t, r.Register(knowledge, noopHandler))
	r.Freeze()

	t.Run("name match ranks first", func(t *testing.T) {
		results := r.Search("incident", "", 10)
		require.NotEmpty(t, results)
		assert.Equal(t, "snow_create_incident", results[0].Name)
	})

	t.Run("category browse", func(t *testing.T) {
		results := r.Search("", "knowledge", 10)
		require.Len(t, results, 1)
		assert.Equal(t, "knowledge_search", results[0].Name)
	})

	t.Run("limit respected", func(t *testing.T) {
		results := r.Search("s", "", 1)
		assert.LessOrEqual(t, len(results), 1)
	})
}

func TestInputSchemaJSONSchema(t *testing.T) {
	schema := InputSchema{Params: []ParamSpec{
		{Name: "table", Type: "string", Description: "Table name", Required: true},
		{Name: "limit", Type: "integer", Default: 10},
	}}

	raw := schema.JSONSchema()
	assert.JSONEq(t, `{
		"type": "object",
		"properties": {
			"table": {"type": "string", "description": "Table name"},
			"limit": {"type": "integer", "default": 10}
		},
		"required": ["table"]
	}`, string(raw))

	// Identical definitions must render identically across calls.
	assert.Equal(t, string(raw), string(schema.JSONSchema()))
}
