package mcpclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// ErrToolFailed is matched by errors for tool calls whose result carried
// isError.
var ErrToolFailed = errors.New("tool execution error")

// ToolError is a tool result that reported isError. Message is the raw payload
// text.
type ToolError struct {
	Tool    string
	Message string
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("tool %s: %s", e.Tool, e.Message)
}

func (e *ToolError) Is(target error) bool {
	return target == ErrToolFailed
}

// Tool represents an MCP tool from the tool server.
type Tool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"inputSchema"`
}

// Client is a lazily connected SSE client for the shop tool server. One
// session is shared by all callers; it is dropped only once the connection
// itself is gone, and the next call reconnects.
type Client struct {
	endpoint   string
	httpClient *http.Client
	logger     *slog.Logger

	mu      sync.Mutex
	session *mcp.ClientSession
}

// New creates a client for the SSE endpoint (for example
// http://localhost:3001/sse). httpClient may be nil.
func New(endpoint string, httpClient *http.Client, logger *slog.Logger) *Client {
	return &Client{
		endpoint:   endpoint,
		httpClient: httpClient,
		logger:     logger.With("component", "mcpclient"),
	}
}

func (c *Client) connect(ctx context.Context) (*mcp.ClientSession, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session != nil {
		return c.session, nil
	}

	client := mcp.NewClient(
		&mcp.Implementation{
			Name:    "cosmoshop-storefront",
			Version: "1.0.0",
		},
		nil,
	)

	// The push channel lives as long as the connect context, so it must
	// outlive the request that happened to open it.
	session, err := client.Connect(context.WithoutCancel(ctx), &mcp.SSEClientTransport{
		Endpoint:   c.endpoint,
		HTTPClient: c.httpClient,
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MCP server: %w", err)
	}

	c.logger.Info("Connected to MCP server", "endpoint", c.endpoint)
	c.session = session
	return session, nil
}

// connectionLost reports whether err means the session can no longer carry
// requests. Protocol errors and a caller's cancellation leave it usable.
func connectionLost(err error) bool {
	return errors.Is(err, mcp.ErrConnectionClosed) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF)
}

// release discards session after err if the connection is gone. Close waits
// for in-flight calls, so it runs off the caller's path.
func (c *Client) release(session *mcp.ClientSession, err error) {
	if !connectionLost(err) {
		return
	}
	c.mu.Lock()
	if c.session == session {
		c.session = nil
	}
	c.mu.Unlock()

	c.logger.Warn("MCP connection lost, reconnecting on next call", "error", err)
	go func() { _ = session.Close() }()
}

// ListTools retrieves the tool descriptors from the server.
func (c *Client) ListTools(ctx context.Context) ([]Tool, error) {
	session, err := c.connect(ctx)
	if err != nil {
		return nil, err
	}

	result, err := session.ListTools(ctx, &mcp.ListToolsParams{})
	if err != nil {
		c.release(session, err)
		return nil, fmt.Errorf("tools/list failed: %w", err)
	}

	tools := make([]Tool, len(result.Tools))
	for i, t := range result.Tools {
		schemaMap := make(map[string]any)
		if schema, ok := t.InputSchema.(map[string]any); ok {
			schemaMap = schema
		}
		tools[i] = Tool{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: schemaMap,
		}
	}

	c.logger.Debug("Listed tools", "count", len(tools))
	return tools, nil
}

// CallTool executes a tool and returns its text payload. A result flagged
// isError is returned as a *ToolError.
func (c *Client) CallTool(ctx context.Context, toolName string, arguments map[string]any) (string, error) {
	session, err := c.connect(ctx)
	if err != nil {
		return "", err
	}

	result, err := session.CallTool(ctx, &mcp.CallToolParams{
		Name:      toolName,
		Arguments: arguments,
	})
	if err != nil {
		c.release(session, err)
		return "", fmt.Errorf("tools/call %s failed: %w", toolName, err)
	}

	text := payloadText(result)
	if result.IsError {
		return "", &ToolError{Tool: toolName, Message: text}
	}
	return text, nil
}

func payloadText(result *mcp.CallToolResult) string {
	var parts []string
	for _, content := range result.Content {
		if textContent, ok := content.(*mcp.TextContent); ok {
			parts = append(parts, textContent.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// Close terminates the session, if any.
func (c *Client) Close() error {
	c.mu.Lock()
	session := c.session
	c.session = nil
	c.mu.Unlock()

	if session == nil {
		return nil
	}
	if err := session.Close(); err != nil {
		c.logger.Warn("MCP session close error", "error", err)
		return err
	}
	c.logger.Info("Closed MCP session")
	return nil
}
