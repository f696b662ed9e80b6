package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/joncrangle/wechat-mcp/internal/wechat"
)

const (
	ToolSend     = "send_wechat_message"
	ToolSchedule = "schedule_wechat_message"
	ToolStatus   = "get_wechat_status"
)

type SendArgs struct {
	ContactName string `json:"contact_name" jsonschema:"WeChat contact or group name to send the message to"`
	Message     string `json:"message" jsonschema:"Text message to send"`
}

type ScheduleArgs struct {
	ContactName  string  `json:"contact_name" jsonschema:"WeChat contact or group name to send the message to"`
	Message      string  `json:"message" jsonschema:"Text message to send"`
	DelaySeconds float64 `json:"delay_seconds" jsonschema:"Seconds to wait before sending"`
}

type StatusArgs struct{}

// maxDelaySeconds is the longest delay a time.Duration can hold.
const maxDelaySeconds = float64(math.MaxInt64) / float64(time.Second)

// Tool is a tools/list entry plus its resolved argument schema.
type Tool struct {
	Name        string             `json:"name"`
	Description string             `json:"description"`
	InputSchema *jsonschema.Schema `json:"inputSchema"`

	resolved *jsonschema.Resolved
	call     func(ctx context.Context, s *Server, args json.RawMessage) (CallToolResult, *Error)
}

func newTool[T any](name, description string, tune func(*jsonschema.Schema),
	call func(ctx context.Context, s *Server, args T) (CallToolResult, *Error)) (*Tool, error) {
	schema, err := jsonschema.For[T](nil)
	if err != nil {
		return nil, fmt.Errorf("schema for %s: %w", name, err)
	}
	// Unknown argument keys are ignored rather than rejected.
	schema.AdditionalProperties = nil
	if tune != nil {
		tune(schema)
	}
	resolved, err := schema.Resolve(nil)
	if err != nil {
		return nil, fmt.Errorf("resolve schema for %s: %w", name, err)
	}

	return &Tool{
		Name:        name,
		Description: description,
		InputSchema: schema,
		resolved:    resolved,
		call: func(ctx context.Context, s *Server, raw json.RawMessage) (CallToolResult, *Error) {
			var args T
			if err := json.Unmarshal(raw, &args); err != nil {
				return CallToolResult{}, newError(CodeInvalidParams, "Invalid arguments for %s: %v", name, err)
			}
			return call(ctx, s, args)
		},
	}, nil
}

// validate checks raw arguments against the tool's schema.
func (t *Tool) validate(raw json.RawMessage) *Error {
	var instance map[string]any
	if err := json.Unmarshal(raw, &instance); err != nil {
		return newError(CodeInvalidParams, "Arguments for %s must be an object: %v", t.Name, err)
	}
	if instance == nil {
		instance = map[string]any{}
	}
	if err := t.resolved.Validate(instance); err != nil {
		return newError(CodeInvalidParams, "Invalid arguments for %s: %v", t.Name, err)
	}
	return nil
}

func buildTools() ([]*Tool, error) {
	send, err := newTool(ToolSend, "Send a text message to a WeChat contact or group", nil, callSend)
	if err != nil {
		return nil, err
	}
	schedule, err := newTool(ToolSchedule, "Schedule a WeChat message to be sent after a delay",
		func(s *jsonschema.Schema) {
			if p, ok := s.Properties["delay_seconds"]; ok {
				p.Minimum = ptr(0.0)
				p.Maximum = ptr(maxDelaySeconds)
			}
		}, callSchedule)
	if err != nil {
		return nil, err
	}
	status, err := newTool(ToolStatus, "Report whether WeChat is running and supported for automation", nil, callStatus)
	if err != nil {
		return nil, err
	}
	return []*Tool{send, schedule, status}, nil
}

func ptr[T any](v T) *T { return &v }

func callSend(ctx context.Context, s *Server, args SendArgs) (CallToolResult, *Error) {
	if args.ContactName == "" || args.Message == "" {
		return CallToolResult{}, newError(CodeInvalidParams, "Missing required parameters: contact_name and message")
	}

	out := s.automator.SendTextMessage(ctx, args.ContactName, args.Message)
	if out.OK {
		return textResult("Message sent successfully", false), nil
	}
	return textResult(failureText(out), true), nil
}

// failureText embeds the outcome so callers can tell an unsupported install from a missing
// window or a failed step without reading logs.
func failureText(out wechat.SendOutcome) string {
	return fmt.Sprintf("Failed to send message (stage=%s, reason=%s, wechat_version=%s, nt=%t)",
		orNull(string(out.Stage)), orNull(out.Reason), orNull(out.WeChatVersion), out.IsNTFramework)
}

func orNull(s string) string {
	if s == "" {
		return "null"
	}
	return s
}

func callSchedule(_ context.Context, s *Server, args ScheduleArgs) (CallToolResult, *Error) {
	if args.ContactName == "" || args.Message == "" {
		return CallToolResult{}, newError(CodeInvalidParams, "Missing required parameters: contact_name, message and delay_seconds")
	}
	if args.DelaySeconds < 0 {
		return CallToolResult{}, newError(CodeInvalidParams, "delay_seconds must not be negative")
	}
	if args.DelaySeconds >= maxDelaySeconds {
		return CallToolResult{}, newError(CodeInvalidParams, "delay_seconds must be less than %.0f", maxDelaySeconds)
	}

	delay := time.Duration(args.DelaySeconds * float64(time.Second))
	if err := s.scheduler.Schedule(args.ContactName, args.Message, delay); err != nil {
		s.logger.Error("Error scheduling message",
			slog.String("contact", args.ContactName),
			slog.String("error", err.Error()))
		if errors.Is(err, wechat.ErrSchedulerClosed) {
			return textResult("Failed to schedule message: server is shutting down", true), nil
		}
		return textResult("Failed to schedule message", true), nil
	}

	seconds := strconv.FormatFloat(args.DelaySeconds, 'f', -1, 64)
	return textResult(fmt.Sprintf("Message scheduled to be sent in %s seconds", seconds), false), nil
}

func callStatus(ctx context.Context, s *Server, _ StatusArgs) (CallToolResult, *Error) {
	status := s.automator.GetStatus(ctx)
	data, err := encode(status)
	if err != nil {
		return CallToolResult{}, newError(CodeInternalError, "Tool execution error: %v", err)
	}
	return textResult(strings.TrimSpace(string(data)), status.Error != ""), nil
}
