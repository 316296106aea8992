package mcpbridge

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/Modelgate-Labs/modelgate/internal/domain/guardrail"
	"github.com/Modelgate-Labs/modelgate/internal/domain/intercept"
	"github.com/Modelgate-Labs/modelgate/internal/service"
)

// Upstream is a connection to the MCP tool server behind the bridge.
type Upstream interface {
	// Start launches the server and returns its stdin (for sending) and
	// stdout (for receiving).
	Start(ctx context.Context) (io.WriteCloser, io.ReadCloser, error)
	// Wait blocks until the server terminates.
	Wait() error
	// Close terminates the connection and cleans up resources.
	Close() error
}

// Bridge proxies newline-delimited JSON-RPC between an agent and an MCP
// tool server. tools/call requests go through the interception pipeline
// before they are forwarded; blocked calls turn into JSON-RPC error
// responses without ever reaching the server. Tool output flowing back is
// run through the output guardrails when a guard service is configured.
type Bridge struct {
	intercepts *service.InterceptService
	guard      *service.GuardService
	logger     *slog.Logger
}

// BridgeOption configures a Bridge.
type BridgeOption func(*Bridge)

// WithInterceptService sets the tool-call interception pipeline.
func WithInterceptService(s *service.InterceptService) BridgeOption {
	return func(b *Bridge) { b.intercepts = s }
}

// WithGuardService enables output filtering of tool results.
func WithGuardService(s *service.GuardService) BridgeOption {
	return func(b *Bridge) { b.guard = s }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) BridgeOption {
	return func(b *Bridge) { b.logger = l }
}

// NewBridge creates a bridge. Without an intercept service every message
// passes through untouched.
func NewBridge(opts ...BridgeOption) *Bridge {
	b := &Bridge{logger: slog.Default()}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Run starts the bidirectional bridge between the agent and the upstream
// tool server. agentIn is where agent messages are read from (typically
// os.Stdin) and agentOut is where messages for the agent are written
// (typically os.Stdout). It blocks until the context is cancelled, the
// agent disconnects, or an error occurs.
func (b *Bridge) Run(ctx context.Context, agentIn io.Reader, agentOut io.Writer, upstream Upstream) error {
	serverIn, serverOut, err := upstream.Start(ctx)
	if err != nil {
		return fmt.Errorf("failed to start tool server: %w", err)
	}
	defer func() { _ = upstream.Close() }()

	parentCtx := ctx
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	var wg sync.WaitGroup
	errCh := make(chan error, 2)

	// agent -> server (requests). agentOut receives error responses for
	// blocked calls.
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer func() { _ = serverIn.Close() }() // signal EOF to the server when the agent disconnects
		if err := b.copyMessages(ctx, agentIn, serverIn, agentOut, AgentToServer); err != nil {
			if !errors.Is(err, context.Canceled) && !errors.Is(err, io.EOF) {
				errCh <- fmt.Errorf("agent->server: %w", err)
			}
		}
		b.logger.Debug("agent->server copy completed")
	}()

	// server -> agent (responses).
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := b.copyMessages(ctx, serverOut, agentOut, nil, ServerToAgent); err != nil {
			if !errors.Is(err, context.Canceled) && !errors.Is(err, io.EOF) {
				errCh <- fmt.Errorf("server->agent: %w", err)
			}
		}
		b.logger.Debug("server->agent copy completed")
		cancel()
	}()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case err := <-errCh:
		cancel()
		<-done
		return err
	}

	if err := upstream.Wait(); err != nil {
		if parentCtx.Err() == nil {
			b.logger.Debug("tool server exited", "error", err)
		}
	}

	// Nil unless the parent context was cancelled externally.
	return parentCtx.Err()
}

// copyMessages reads newline-delimited JSON messages from src, inspects
// them, and writes the survivors to dst. agentOut receives synthesized
// error responses when a call is blocked (agent->server direction only,
// nil otherwise).
func (b *Bridge) copyMessages(ctx context.Context, src io.Reader, dst io.Writer, agentOut io.Writer, direction Direction) error {
	// MCP messages can be large.
	scanner := bufio.NewScanner(src)
	buf := make([]byte, 0, 256*1024)
	scanner.Buffer(buf, 1024*1024)

	for scanner.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		start := time.Now()
		msg := &Message{
			Raw:       append([]byte(nil), scanner.Bytes()...),
			Direction: direction,
			Timestamp: start,
		}
		if decoded, err := DecodeMessage(msg.Raw); err == nil {
			msg.Decoded = decoded
			if direction == AgentToServer {
				_ = msg.ParseParams()
			}
		} else {
			b.logger.Debug("failed to decode message, passing through raw",
				"direction", direction, "error", err)
		}

		out, blocked := b.inspect(ctx, msg)
		if blocked {
			if agentOut != nil && out != nil {
				if err := writeLine(agentOut, out); err != nil {
					return err
				}
			}
			continue
		}

		if err := writeLine(dst, out); err != nil {
			return err
		}

		b.logger.Debug("forwarded message",
			"direction", direction,
			"method", msg.Method(),
			"latency_us", time.Since(start).Microseconds(),
		)
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("scan error: %w", err)
	}
	return nil
}

// inspect decides what happens to one message. It returns the bytes to
// forward, or blocked=true with an error response destined for the agent.
func (b *Bridge) inspect(ctx context.Context, msg *Message) (out []byte, blocked bool) {
	switch msg.Direction {
	case AgentToServer:
		if msg.IsToolCall() && b.intercepts != nil {
			return b.inspectToolCall(ctx, msg)
		}
	case ServerToAgent:
		if msg.IsResponse() && b.guard != nil {
			return b.inspectToolResult(ctx, msg)
		}
	}
	return msg.Raw, false
}

// inspectToolCall runs a tools/call request through the interception
// pipeline. Blocked calls become JSON-RPC errors; modified calls are
// re-encoded with the rewritten arguments.
func (b *Bridge) inspectToolCall(ctx context.Context, msg *Message) ([]byte, bool) {
	call := intercept.ToolCall{
		SessionID: msg.SessionID(),
		ToolName:  msg.ToolName(),
		Arguments: msg.ToolArguments(),
		Timestamp: msg.Timestamp,
	}
	result := b.intercepts.Intercept(ctx, call)

	if result.Action == guardrail.ActionBlock {
		b.logger.Warn("blocked tool call",
			"tool", call.ToolName,
			"session_id", call.SessionID,
			"risk_score", result.RiskScore,
			"reasons", result.Reasons,
		)
		reason := "tool call blocked"
		if len(result.Reasons) > 0 {
			reason = "tool call blocked: " + strings.Join(result.Reasons, "; ")
		}
		return errorResponse(msg.RawID(), -32000, reason), true
	}

	if result.Action == guardrail.ActionModify && result.Call != nil {
		if rewritten, err := rewriteArguments(msg.Raw, result.Call.Arguments); err == nil {
			b.logger.Info("rewrote tool call arguments", "tool", call.ToolName)
			return rewritten, false
		}
	}
	return msg.Raw, false
}

// inspectToolResult runs the text content of a tool result through the
// output guardrails. Redacted text is spliced back in place; a block
// verdict replaces the whole response with a JSON-RPC error.
func (b *Bridge) inspectToolResult(ctx context.Context, msg *Message) ([]byte, bool) {
	var envelope map[string]interface{}
	if err := json.Unmarshal(msg.Raw, &envelope); err != nil {
		return msg.Raw, false
	}
	result, ok := envelope["result"].(map[string]interface{})
	if !ok {
		return msg.Raw, false
	}
	content, ok := result["content"].([]interface{})
	if !ok {
		return msg.Raw, false
	}

	changed := false
	for _, item := range content {
		entry, ok := item.(map[string]interface{})
		if !ok || entry["type"] != "text" {
			continue
		}
		text, ok := entry["text"].(string)
		if !ok || text == "" {
			continue
		}
		res := b.guard.CheckOutput(ctx, "", text, nil)
		if res.Action == guardrail.ActionBlock {
			b.logger.Warn("blocked tool output", "reasons", res.Reasons)
			// Error responses are delivered on the same path as results,
			// so the "block" goes to dst rather than a separate writer.
			return errorResponse(msg.RawID(), -32000, "tool output blocked by guardrails"), false
		}
		if final := res.FinalContent(); final != text {
			entry["text"] = final
			changed = true
		}
	}
	if !changed {
		return msg.Raw, false
	}
	rewritten, err := json.Marshal(envelope)
	if err != nil {
		return msg.Raw, false
	}
	return rewritten, false
}

// rewriteArguments replaces params.arguments in the raw request with the
// interceptor's rewritten arguments, leaving everything else byte-for-byte
// where JSON allows.
func rewriteArguments(raw []byte, args map[string]interface{}) ([]byte, error) {
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, err
	}
	var params map[string]json.RawMessage
	if err := json.Unmarshal(envelope["params"], &params); err != nil {
		return nil, err
	}
	encoded, err := json.Marshal(args)
	if err != nil {
		return nil, err
	}
	params["arguments"] = encoded
	rawParams, err := json.Marshal(params)
	if err != nil {
		return nil, err
	}
	envelope["params"] = rawParams
	return json.Marshal(envelope)
}

func writeLine(w io.Writer, line []byte) error {
	if _, err := w.Write(line); err != nil {
		return fmt.Errorf("write failed: %w", err)
	}
	if _, err := w.Write([]byte("\n")); err != nil {
		return fmt.Errorf("write newline failed: %w", err)
	}
	return nil
}
