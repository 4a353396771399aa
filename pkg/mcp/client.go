package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// maxLineSize bounds one protocol line; large tool results stay under 1MB.
const maxLineSize = 1024 * 1024

// defaultCallTimeout bounds a single protocol call.
const defaultCallTimeout = 30 * time.Second

// Client drives the tool protocol over a line-delimited byte stream, usually
// a child process's stdio. The transport is plain io so tests can use pipes.
type Client struct {
	name    string
	w       io.Writer
	logger  *slog.Logger
	timeout time.Duration

	wmu sync.Mutex // serializes writes

	mu          sync.Mutex
	pending     map[string]chan *response
	initialized bool

	readDone chan struct{}
}

// NewClient creates a Client for one tool source. Initialize must succeed
// before ListTools or CallTool. logger may be nil.
func NewClient(name string, r io.Reader, w io.Writer, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Client{
		name:     name,
		w:        w,
		logger:   logger.With("source", name),
		timeout:  defaultCallTimeout,
		pending:  make(map[string]chan *response),
		readDone: make(chan struct{}),
	}
	go c.readLoop(r)
	return c
}

// SetCallTimeout overrides the per-call timeout.
func (c *Client) SetCallTimeout(d time.Duration) { c.timeout = d }

// Initialize performs the protocol handshake. It must complete before any
// other call.
func (c *Client) Initialize(ctx context.Context) error {
	params := map[string]any{
		"protocolVersion": protocolVersion,
		"clientInfo":      map[string]any{"name": "swarm", "version": "1"},
	}
	var result struct {
		ProtocolVersion string `json:"protocolVersion"`
	}
	if err := c.call(ctx, "initialize", params, &result); err != nil {
		return fmt.Errorf("initialize %s: %w", c.name, err)
	}
	if result.ProtocolVersion != protocolVersion {
		c.logger.Warn("protocol version mismatch",
			"client", protocolVersion, "server", result.ProtocolVersion)
	}

	c.mu.Lock()
	c.initialized = true
	c.mu.Unlock()

	if err := c.notify("notifications/initialized", nil); err != nil {
		c.logger.Warn("initialized notification failed", "error", err)
	}
	return nil
}

// ListTools returns the tools the source exposes.
func (c *Client) ListTools(ctx context.Context) ([]ToolSchema, error) {
	if !c.isInitialized() {
		return nil, fmt.Errorf("source %s not initialized", c.name)
	}
	var result struct {
		Tools []ToolSchema `json:"tools"`
	}
	if err := c.call(ctx, "tools/list", nil, &result); err != nil {
		return nil, fmt.Errorf("tools/list %s: %w", c.name, err)
	}
	return result.Tools, nil
}

// CallTool invokes one tool by its source-local name.
func (c *Client) CallTool(ctx context.Context, name string, arguments map[string]any) (*ToolCallResult, error) {
	if !c.isInitialized() {
		return nil, fmt.Errorf("source %s not initialized", c.name)
	}
	params := map[string]any{"name": name, "arguments": arguments}
	var result ToolCallResult
	if err := c.call(ctx, "tools/call", params, &result); err != nil {
		return nil, fmt.Errorf("tools/call %s: %w", c.name, err)
	}
	return &result, nil
}

func (c *Client) isInitialized() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.initialized
}

// call sends one request and waits for its response, bounded by the call
// timeout and ctx.
func (c *Client) call(ctx context.Context, method string, params any, result any) error {
	id := uuid.NewString()

	respChan := make(chan *response, 1)
	c.mu.Lock()
	c.pending[id] = respChan
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	if err := c.write(newRequest(id, method, params)); err != nil {
		return fmt.Errorf("write %s: %w", method, err)
	}

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()
	select {
	case resp := <-respChan:
		if resp.Error != nil {
			return resp.Error
		}
		if result != nil && resp.Result != nil {
			if err := json.Unmarshal(resp.Result, result); err != nil {
				return fmt.Errorf("decode %s result: %w", method, err)
			}
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%s cancelled: %w", method, ctx.Err())
	case <-timer.C:
		return fmt.Errorf("%s timed out after %s", method, c.timeout)
	case <-c.readDone:
		return fmt.Errorf("%s: source %s closed the stream", method, c.name)
	}
}

// notify sends a request with no id; no response is expected.
func (c *Client) notify(method string, params any) error {
	return c.write(request{JSONRPC: jsonrpcVersion, Method: method, Params: params})
}

// write marshals a message and appends the line delimiter.
func (c *Client) write(msg any) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	data = append(data, '\n')

	c.wmu.Lock()
	defer c.wmu.Unlock()
	_, err = c.w.Write(data)
	return err
}

// readLoop routes responses to pending calls until the stream closes.
func (c *Client) readLoop(r io.Reader) {
	defer close(c.readDone)
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		resp, err := decodeResponse(line)
		if err != nil {
			c.logger.Warn("unparseable protocol line", "error", err)
			continue
		}
		id, ok := resp.ID.(string)
		if !ok {
			// Server-initiated requests and notifications are not handled.
			continue
		}

		c.mu.Lock()
		ch, ok := c.pending[id]
		c.mu.Unlock()
		if !ok {
			c.logger.Warn("response for unknown call", "id", id)
			continue
		}
		select {
		case ch <- resp:
		default:
		}
	}
	if err := scanner.Err(); err != nil {
		c.logger.Warn("read loop ended", "error", err)
	}
}
