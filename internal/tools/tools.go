// Package tools declares the ServiceNow tool tables and their leaf
// handlers. Each handler validates its inputs, obtains a client from the
// provider, performs one REST call, and returns a plain payload; the
// server's normalizer owns the result contract.
package tools

import (
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/groeimetai/snow-flow/internal/registry"
	"github.com/groeimetai/snow-flow/internal/snowclient"
)

// Handlers carries the dependencies shared by all leaf handlers.
type Handlers struct {
	provider *snowclient.Provider
	reg      *registry.Registry
	logger   *zap.Logger
}

// New creates the handler set.
func New(provider *snowclient.Provider, logger *zap.Logger) *Handlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handlers{provider: provider, logger: logger}
}

// RegisterAll registers every tool table into the registry and freezes it.
// Any invalid definition stops startup.
func (h *Handlers) RegisterAll(reg *registry.Registry) error {
	h.reg = reg
	for _, register := range []func(*registry.Registry) error{
		h.registerOperations,
		h.registerAnalytics,
		h.registerRecords,
		h.registerCatalog,
		h.registerKnowledge,
		h.registerMeta,
	} {
		if err := register(reg); err != nil {
			return err
		}
	}
	reg.Freeze()
	return nil
}

// Role sets used across the tool tables. Stakeholder is read-only
// system-wide, so it only ever appears in readRoles.
var (
	readRoles  = []registry.Role{registry.RoleDeveloper, registry.RoleStakeholder, registry.RoleAdmin}
	writeRoles = []registry.Role{registry.RoleDeveloper, registry.RoleAdmin}
	adminRoles = []registry.Role{registry.RoleAdmin}
)

// bind converts the generic argument map into a typed input struct via a
// JSON round trip, so handlers keep typed inputs while the dispatcher sees
// the raw map.
func bind(args map[string]any, out any) error {
	data, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("encoding arguments: %w", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decoding arguments: %w", err)
	}
	return nil
}

// stringArg returns a string argument or its zero value.
func stringArg(args map[string]any, name string) string {
	s, _ := args[name].(string)
	return s
}

// intArg returns an integer argument, accepting the float64 that JSON
// decoding produces.
func intArg(args map[string]any, name string, def int) int {
	switch v := args[name].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return def
}
