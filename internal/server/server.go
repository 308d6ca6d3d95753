// Package server runs the MCP stdio loop and wires the invocation
// pipeline: registry lookup, permission gate, argument validation, action
// dispatch, handler execution, result normalization. Every tools/call
// produces exactly one ToolResult; no call path can surface a Go error to
// the protocol layer.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/groeimetai/snow-flow/internal/audit"
	"github.com/groeimetai/snow-flow/internal/dispatch"
	"github.com/groeimetai/snow-flow/internal/policy"
	"github.com/groeimetai/snow-flow/internal/registry"
	"github.com/groeimetai/snow-flow/internal/result"
	"github.com/groeimetai/snow-flow/pkg/mcp"
)

const (
	serverName      = "snow-flow"
	serverVersion   = "1.0.0"
	protocolVersion = "2024-11-05"
)

// Options configures a Server.
type Options struct {
	Registry        *registry.Registry
	CallerRole      registry.Role
	DefaultInstance string
	CallTimeout     time.Duration
	Audit           audit.Writer
	Logger          *zap.Logger
}

// Server is the MCP server.
type Server struct {
	transport *mcp.Transport
	registry  *registry.Registry
	role      registry.Role
	instance  string
	timeout   time.Duration
	audit     audit.Writer
	logger    *zap.Logger
	ctx       context.Context
	inflight  sync.WaitGroup
}

// New creates a server reading requests from r and writing responses to w.
func New(ctx context.Context, r io.Reader, w io.Writer, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	auditW := opts.Audit
	if auditW == nil {
		auditW = audit.NewNop()
	}
	timeout := opts.CallTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Server{
		transport: mcp.NewTransport(r, w),
		registry:  opts.Registry,
		role:      opts.CallerRole,
		instance:  opts.DefaultInstance,
		timeout:   timeout,
		audit:     auditW,
		logger:    logger,
		ctx:       ctx,
	}
}

// Run processes messages until EOF or context cancellation. Tool calls are
// handled concurrently; there is no ordering between two invocations, and
// the transport serializes response writes.
func (s *Server) Run() error {
	// Responses for in-flight calls are flushed before Run returns.
	defer s.inflight.Wait()

	s.logger.Info("server ready",
		zap.Int("tools", s.registry.Len()),
		zap.String("role", string(s.role)),
		zap.String("instance", s.instance),
	)

	for {
		req, err := s.transport.ReadMessage()
		if err != nil {
			if err == io.EOF {
				return nil
			}
			if s.ctx.Err() != nil {
				return nil
			}
			s.logger.Warn("message read failed", zap.Error(err))
			continue
		}

		if req.Method == "tools/call" {
			s.inflight.Add(1)
			go func(req *mcp.Request) {
				defer s.inflight.Done()
				s.respond(s.handleCallTool(req))
			}(req)
			continue
		}
		s.respond(s.handleRequest(req))
	}
}

func (s *Server) respond(resp *mcp.Response) {
	if resp == nil {
		return
	}
	if err := s.transport.WriteResponse(resp); err != nil {
		s.logger.Warn("response write failed", zap.Error(err))
	}
}

func (s *Server) handleRequest(req *mcp.Request) *mcp.Response {
	switch req.Method {
	case "initialize":
		return s.handleInitialize(req)
	case "notifications/initialized":
		return nil
	case "tools/list":
		return s.handleListTools(req)
	case "ping":
		resp, _ := mcp.NewResponse(req.ID, map[string]any{})
		return resp
	default:
		if req.IsNotification() {
			return nil
		}
		return mcp.NewErrorResponse(req.ID, mcp.MethodNotFound, fmt.Sprintf("Method not found: %s", req.Method))
	}
}

func (s *Server) handleInitialize(req *mcp.Request) *mcp.Response {
	res := mcp.InitializeResult{
		ProtocolVersion: protocolVersion,
		Capabilities: mcp.ServerCapabilities{
			Tools: &mcp.ToolsCapability{ListChanged: false},
		},
		ServerInfo: mcp.ServerInfo{
			Name:    serverName,
			Version: serverVersion,
		},
		Instructions: s.buildInstructions(),
	}
	resp, err := mcp.NewResponse(req.ID, res)
	if err != nil {
		return mcp.NewErrorResponse(req.ID, mcp.InternalError, err.Error())
	}
	return resp
}

func (s *Server) handleListTools(req *mcp.Request) *mcp.Response {
	defs := s.registry.List(registry.ListFilter{})
	tools := make([]mcp.Tool, 0, len(defs))
	for _, def := range defs {
		tools = append(tools, wireTool(def))
	}
	resp, err := mcp.NewResponse(req.ID, mcp.ListToolsResult{Tools: tools})
	if err != nil {
		return mcp.NewErrorResponse(req.ID, mcp.InternalError, err.Error())
	}
	return resp
}

func wireTool(def *registry.ToolDefinition) mcp.Tool {
	return mcp.Tool{
		Name:        def.Name,
		Description: def.Description,
		InputSchema: def.InputSchema.JSONSchema(),
		Annotations: &mcp.ToolAnnotations{
			ReadOnlyHint: def.Permission == registry.PermissionRead,
		},
		Category:     def.Category,
		Permission:   string(def.Permission),
		AllowedRoles: def.RoleNames(),
	}
}

func (s *Server) handleCallTool(req *mcp.Request) *mcp.Response {
	var params mcp.CallToolParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return mcp.NewErrorResponse(req.ID, mcp.InvalidParams, "Invalid params: "+err.Error())
	}

	res := s.CallTool(s.ctx, params.Name, params.Arguments)

	resp, err := mcp.NewResponse(req.ID, &mcp.CallToolResult{
		Content: []mcp.ContentBlock{{Type: "text", Text: string(res.JSON())}},
		IsError: !res.OK,
	})
	if err != nil {
		return mcp.NewErrorResponse(req.ID, mcp.InternalError, err.Error())
	}
	return resp
}

// CallTool runs the full invocation pipeline for one tool call and always
// returns a well-formed result.
func (s *Server) CallTool(ctx context.Context, name string, rawArgs json.RawMessage) *result.ToolResult {
	start := time.Now()
	requestID := uuid.New().String()

	execCtx := registry.ExecutionContext{
		TargetInstance: s.instance,
		CallerRole:     s.role,
		CredentialRef:  s.instance,
	}

	res := result.Normalize(func() (any, error) {
		entry, err := s.registry.Lookup(name)
		if err != nil {
			return nil, err
		}

		// The gate runs before argument parsing and any I/O: a denied
		// call must not cost a token exchange or a partial write.
		if err := policy.Check(entry.Def, execCtx); err != nil {
			return nil, err
		}

		args, err := decodeArgs(name, rawArgs)
		if err != nil {
			return nil, err
		}

		// Action resolution precedes schema validation so an unknown action
		// or missing action parameter is reported as such, not as a generic
		// schema violation against the discriminator's enum.
		handler := entry.Handler
		if entry.Def.ActionSchema != nil {
			handler, err = dispatch.Resolve(entry.Def, args)
			if err != nil {
				return nil, err
			}
		}

		if err := validateArgs(name, entry.Def.InputSchema.JSONSchema(), anyArgs(args)); err != nil {
			return nil, err
		}

		callCtx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()
		return handler(callCtx, args, execCtx)
	})

	duration := time.Since(start)
	s.logCall(requestID, name, res, duration)
	s.audit.Write(&audit.Record{
		RequestID:  requestID,
		Tool:       name,
		Action:     actionOf(rawArgs),
		Role:       string(s.role),
		Instance:   s.instance,
		OK:         res.OK,
		ErrorKind:  string(res.ErrorKind),
		DurationMS: duration.Milliseconds(),
		ExecutedAt: start,
	})
	return res
}

func (s *Server) logCall(requestID, name string, res *result.ToolResult, duration time.Duration) {
	fields := []zap.Field{
		zap.String("request_id", requestID),
		zap.String("tool", name),
		zap.Duration("duration", duration),
	}
	if res.OK {
		s.logger.Info("tool call ok", fields...)
		return
	}
	fields = append(fields,
		zap.String("error_kind", string(res.ErrorKind)),
		zap.String("message", res.Message),
	)
	s.logger.Warn("tool call failed", fields...)
}

// decodeArgs parses the raw argument object. Absent arguments decode to an
// empty map so required-parameter checks report names, not JSON errors.
func decodeArgs(toolName string, raw json.RawMessage) (map[string]any, error) {
	if len(raw) == 0 {
		return map[string]any{}, nil
	}
	var args map[string]any
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, &result.InvalidArgumentError{Tool: toolName, Reason: "arguments must be a JSON object: " + err.Error()}
	}
	if args == nil {
		args = map[string]any{}
	}
	return args, nil
}

// anyArgs widens the argument map for schema validation.
func anyArgs(args map[string]any) any {
	widened := make(map[string]any, len(args))
	for k, v := range args {
		widened[k] = v
	}
	return widened
}

// actionOf extracts the action discriminator for the audit trail without
// re-running validation.
func actionOf(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var probe struct {
		Action string `json:"action"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return ""
	}
	return probe.Action
}

func (s *Server) buildInstructions() string {
	var sb strings.Builder
	sb.WriteString("ServiceNow MCP server. Tools are grouped by category and gated by caller role.\n\n")
	sb.WriteString("Available categories:\n")
	for _, cat := range s.registry.Categories() {
		sb.WriteString("- " + cat + "\n")
	}
	sb.WriteString(fmt.Sprintf("\nTotal tools: %d. Use snow_discover_tools to search by keyword.\n", s.registry.Len()))
	return sb.String()
}
