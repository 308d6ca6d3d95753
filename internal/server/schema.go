package server

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/groeimetai/snow-flow/internal/result"
)

// Compiled schemas are cached per tool; definitions are static, so the hash
// component only guards against a tool name being reused across tests.
var schemaCache sync.Map // key -> *jsonschema.Schema

func schemaCacheKey(toolName string, schema json.RawMessage) string {
	sum := sha256.Sum256(schema)
	return toolName + ":" + hex.EncodeToString(sum[:])
}

func compileSchema(toolName string, schema json.RawMessage) (*jsonschema.Schema, error) {
	key := schemaCacheKey(toolName, schema)
	if v, ok := schemaCache.Load(key); ok {
		return v.(*jsonschema.Schema), nil
	}
	s, err := jsonschema.CompileString(toolName+".json", string(schema))
	if err != nil {
		return nil, err
	}
	schemaCache.Store(key, s)
	return s, nil
}

func firstLeafValidationError(err *jsonschema.ValidationError) *jsonschema.ValidationError {
	if err == nil {
		return nil
	}
	if len(err.Causes) == 0 {
		return err
	}
	for _, c := range err.Causes {
		if leaf := firstLeafValidationError(c); leaf != nil {
			return leaf
		}
	}
	return err
}

// validateArgs checks the decoded argument object against the tool's input
// schema and reports the first violation as an InvalidArgumentError.
func validateArgs(toolName string, schema json.RawMessage, args any) error {
	if len(schema) == 0 {
		return nil
	}
	s, err := compileSchema(toolName, schema)
	if err != nil {
		return &result.InvalidArgumentError{Tool: toolName, Reason: "invalid input schema: " + err.Error()}
	}
	if err := s.Validate(args); err != nil {
		if ve, ok := err.(*jsonschema.ValidationError); ok {
			leaf := firstLeafValidationError(ve)
			msg := leaf.Message
			if msg == "" {
				msg = leaf.Error()
			}
			return &result.InvalidArgumentError{
				Tool:     toolName,
				Location: leaf.InstanceLocation,
				Reason:   msg,
			}
		}
		return &result.InvalidArgumentError{Tool: toolName, Reason: err.Error()}
	}
	return nil
}
