package registry

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/groeimetai/snow-flow/internal/result"
)

// Entry pairs a tool definition with its bound handler.
type Entry struct {
	Def     *ToolDefinition
	Handler Handler
}

// Registry is the authoritative mapping from tool name to definition and
// handler. It is populated during startup and then frozen; after Freeze,
// lookups and listings need no synchronization because nothing mutates.
type Registry struct {
	mu     sync.Mutex
	tools  map[string]*Entry
	names  []string // sorted on freeze for stable listings
	frozen bool
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{tools: make(map[string]*Entry)}
}

// Register adds a definition and its handler. It fails on a duplicate name
// and on definitions violating the registration-time invariants: a known
// permission, a non-empty valid role set, and no write tool granting the
// read-only stakeholder role. A failed Register leaves the registry
// unchanged.
func (r *Registry) Register(def *ToolDefinition, handler Handler) error {
	if err := validateDefinition(def); err != nil {
		return err
	}
	if handler == nil && def.ActionSchema == nil {
		return fmt.Errorf("tool %s: nil handler", def.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return fmt.Errorf("registry is frozen; cannot register %s", def.Name)
	}
	if _, exists := r.tools[def.Name]; exists {
		return &result.DuplicateToolError{Tool: def.Name}
	}

	r.tools[def.Name] = &Entry{Def: def, Handler: handler}
	r.names = append(r.names, def.Name)
	return nil
}

// MustRegister is Register for static tool tables, where a failure is a
// programming error that must stop startup.
func (r *Registry) MustRegister(def *ToolDefinition, handler Handler) {
	if err := r.Register(def, handler); err != nil {
		panic(err)
	}
}

// Freeze makes the registry read-only. Called once after all tool tables
// have been loaded.
func (r *Registry) Freeze() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frozen = true
	sort.Strings(r.names)
}

// Lookup returns the entry for a tool name.
func (r *Registry) Lookup(name string) (*Entry, error) {
	entry, ok := r.tools[name]
	if !ok {
		return nil, &result.UnknownToolError{Tool: name}
	}
	return entry, nil
}

// ListFilter narrows a listing by category and/or permission. Zero values
// match everything.
type ListFilter struct {
	Category   string
	Permission Permission
}

// List returns a fresh name-sorted snapshot of definitions matching the
// filter. Each call produces an independent slice, so iteration is
// restartable by construction.
func (r *Registry) List(filter ListFilter) []*ToolDefinition {
	defs := make([]*ToolDefinition, 0, len(r.names))
	for _, name := range r.names {
		def := r.tools[name].Def
		if filter.Category != "" && !strings.EqualFold(def.Category, filter.Category) {
			continue
		}
		if filter.Permission != "" && def.Permission != filter.Permission {
			continue
		}
		defs = append(defs, def)
	}
	return defs
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	return len(r.tools)
}

// Categories returns the distinct tool categories, sorted.
func (r *Registry) Categories() []string {
	seen := make(map[string]struct{})
	for _, entry := range r.tools {
		if entry.Def.Category != "" {
			seen[entry.Def.Category] = struct{}{}
		}
	}
	cats := make([]string, 0, len(seen))
	for c := range seen {
		cats = append(cats, c)
	}
	sort.Strings(cats)
	return cats
}

func validateDefinition(def *ToolDefinition) error {
	if def == nil {
		return fmt.Errorf("nil tool definition")
	}
	if strings.TrimSpace(def.Name) == "" {
		return fmt.Errorf("tool definition with empty name")
	}
	if def.Permission != PermissionRead && def.Permission != PermissionWrite {
		return fmt.Errorf("tool %s: invalid permission %q", def.Name, def.Permission)
	}
	if len(def.AllowedRoles) == 0 {
		return fmt.Errorf("tool %s: empty allowed role set", def.Name)
	}
	for _, role := range def.AllowedRoles {
		if _, err := ParseRole(string(role)); err != nil {
			return fmt.Errorf("tool %s: %w", def.Name, err)
		}
	}
	// Stakeholder is read-only system-wide; a write tool granting it is a
	// configuration defect that must fail startup, not surface at call time.
	if def.Permission == PermissionWrite && def.Allows(RoleStakeholder) {
		return fmt.Errorf("tool %s: write tool must not allow role stakeholder", def.Name)
	}
	if def.ActionSchema != nil {
		if err := validateActionSchema(def); err != nil {
			return err
		}
	}
	return nil
}

func validateActionSchema(def *ToolDefinition) error {
	schema := def.ActionSchema
	if strings.TrimSpace(schema.Param) == "" {
		return fmt.Errorf("tool %s: action schema without discriminator parameter", def.Name)
	}
	if len(schema.Actions) == 0 {
		return fmt.Errorf("tool %s: action schema with no actions", def.Name)
	}
	if def.InputSchema.Param(schema.Param) == nil {
		return fmt.Errorf("tool %s: discriminator %q not declared in input schema", def.Name, schema.Param)
	}
	seen := make(map[string]struct{}, len(schema.Actions))
	for _, action := range schema.Actions {
		if strings.TrimSpace(action.Name) == "" {
			return fmt.Errorf("tool %s: action with empty name", def.Name)
		}
		if _, dup := seen[action.Name]; dup {
			return fmt.Errorf("tool %s: duplicate action %q", def.Name, action.Name)
		}
		seen[action.Name] = struct{}{}
		if action.Handler == nil {
			return fmt.Errorf("tool %s: action %q has nil handler", def.Name, action.Name)
		}
		for _, param := range action.Required {
			if def.InputSchema.Param(param) == nil {
				return fmt.Errorf("tool %s: action %q requires undeclared parameter %q", def.Name, action.Name, param)
			}
		}
	}
	return nil
}
