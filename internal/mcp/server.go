package mcp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/joncrangle/wechat-mcp/internal/wechat"
)

const (
	ServerName = "wechat-mcp-server"

	// maxFrameSize bounds one request line.
	maxFrameSize = 16 << 20
)

// Automator runs sends and reports status.
type Automator interface {
	SendTextMessage(ctx context.Context, contact, message string) wechat.SendOutcome
	GetStatus(ctx context.Context) wechat.Status
}

// Scheduler defers sends.
type Scheduler interface {
	Schedule(contact, message string, delay time.Duration) error
}

// Server dispatches one request at a time. tools/list and tools/call are refused until
// initialize has been handled.
type Server struct {
	automator Automator
	scheduler Scheduler
	logger    *slog.Logger
	version   string

	tools  []*Tool
	byName map[string]*Tool

	mu          sync.Mutex
	initialized bool
}

func NewServer(automator Automator, scheduler Scheduler, logger *slog.Logger, version string) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}
	tools, err := buildTools()
	if err != nil {
		return nil, err
	}
	byName := make(map[string]*Tool, len(tools))
	for _, t := range tools {
		byName[t.Name] = t
	}
	return &Server{
		automator: automator,
		scheduler: scheduler,
		logger:    logger,
		version:   version,
		tools:     tools,
		byName:    byName,
	}, nil
}

// Serve reads newline-delimited requests from r and writes responses to w until r is
// exhausted, ctx is cancelled or writing fails. EOF is a clean shutdown.
func (s *Server) Serve(ctx context.Context, r io.Reader, w io.Writer) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxFrameSize)
	out := bufio.NewWriter(w)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		resp := s.Handle(ctx, line)
		if resp == nil {
			continue
		}
		if err := s.write(out, resp); err != nil {
			return fmt.Errorf("write response: %w", err)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read request: %w", err)
	}
	s.logger.Debug("Request stream closed")
	return nil
}

// write encodes resp as one line. A response that cannot be encoded is replaced by an
// internal error for the same id.
func (s *Server) write(out *bufio.Writer, resp *Response) error {
	data, err := encode(resp)
	if err != nil {
		s.logger.Error("Failed to encode response", slog.String("error", err.Error()))
		data, err = encode(failure(resp.ID, newError(CodeInternalError, "Internal error: %v", err)))
		if err != nil {
			return err
		}
	}
	if _, err := out.Write(data); err != nil {
		return err
	}
	return out.Flush()
}

func encode(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Handle processes one frame. It returns nil for notifications.
func (s *Server) Handle(ctx context.Context, frame []byte) (resp *Response) {
	var req Request
	if err := json.Unmarshal(frame, &req); err != nil {
		s.logger.Warn("Malformed request", slog.String("error", err.Error()))
		return failure(nullID, newError(CodeParseError, "Parse error: %v", err))
	}

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Panic while handling request",
				slog.String("method", req.Method),
				slog.Any("panic", r))
			resp = failure(req.ID, newError(CodeInternalError, "Internal error: %v", r))
			if req.IsNotification() {
				resp = nil
			}
		}
	}()

	s.logger.Debug("Handling request", slog.String("method", req.Method), slog.Bool("notification", req.IsNotification()))

	if req.IsNotification() {
		// notifications/initialized, notifications/cancelled and the like need no answer.
		return nil
	}

	switch req.Method {
	case "initialize":
		return result(req.ID, s.initialize(req.Params))
	case "ping":
		return result(req.ID, map[string]any{})
	case "tools/list":
		if !s.isInitialized() {
			return failure(req.ID, newError(CodeNotInitialized, "Server not initialized"))
		}
		return result(req.ID, map[string]any{"tools": s.tools})
	case "tools/call":
		if !s.isInitialized() {
			return failure(req.ID, newError(CodeNotInitialized, "Server not initialized"))
		}
		res, rpcErr := s.callTool(ctx, req.Params)
		if rpcErr != nil {
			return failure(req.ID, rpcErr)
		}
		return result(req.ID, res)
	case "":
		return failure(req.ID, newError(CodeInvalidRequest, "Invalid request: missing method"))
	default:
		return failure(req.ID, newError(CodeMethodNotFound, "Method not found: %s", req.Method))
	}
}

func (s *Server) initialize(params json.RawMessage) initializeResult {
	var p struct {
		ProtocolVersion string `json:"protocolVersion"`
		ClientInfo      struct {
			Name    string `json:"name"`
			Version string `json:"version"`
		} `json:"clientInfo"`
	}
	if len(params) > 0 {
		_ = json.Unmarshal(params, &p)
	}

	s.mu.Lock()
	s.initialized = true
	s.mu.Unlock()

	s.logger.Info("Server initialized",
		slog.String("client", p.ClientInfo.Name),
		slog.String("client_version", p.ClientInfo.Version),
		slog.String("requested_protocol", p.ProtocolVersion))

	return initializeResult{
		ProtocolVersion: ProtocolVersion,
		Capabilities:    map[string]any{"tools": map[string]any{}},
		ServerInfo:      serverInfo{Name: ServerName, Version: s.version},
	}
}

func (s *Server) isInitialized() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.initialized
}

func (s *Server) callTool(ctx context.Context, params json.RawMessage) (CallToolResult, *Error) {
	var p callParams
	if len(params) > 0 {
		if err := json.Unmarshal(params, &p); err != nil {
			return CallToolResult{}, newError(CodeInvalidParams, "Invalid params: %v", err)
		}
	}

	tool, ok := s.byName[p.Name]
	if !ok {
		return CallToolResult{}, newError(CodeMethodNotFound, "Unknown tool: %s", p.Name)
	}

	args := p.Arguments
	if len(args) == 0 || bytes.Equal(args, nullID) {
		args = json.RawMessage("{}")
	}
	if rpcErr := tool.validate(args); rpcErr != nil {
		s.logger.Debug("Rejected tool arguments", slog.String("tool", tool.Name), slog.String("error", rpcErr.Message))
		return CallToolResult{}, rpcErr
	}

	start := time.Now()
	res, rpcErr := tool.call(ctx, s, args)
	s.logger.Debug("Tool call finished",
		slog.String("tool", tool.Name),
		slog.Bool("is_error", res.IsError),
		slog.Duration("elapsed", time.Since(start)))
	return res, rpcErr
}
