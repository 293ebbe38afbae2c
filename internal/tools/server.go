package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/radutopala/cosmoshop/internal/catalog"
	"github.com/radutopala/cosmoshop/internal/embeddings"
	"github.com/radutopala/cosmoshop/internal/metrics"
)

// Dependencies are the collaborators the tools call into.
type Dependencies struct {
	Embedder embeddings.Embedder
	Products catalog.ProductSearcher
	Orders   catalog.OrderStore
}

// ShopServer is the MCP tool server for the storefront assistant.
type ShopServer struct {
	server   *mcp.Server
	embedder embeddings.Embedder
	products catalog.ProductSearcher
	orders   catalog.OrderStore
	logger   *slog.Logger
}

// NewShopServer creates the MCP server and registers every shop tool on it.
// The tool set is fixed once this returns.
func NewShopServer(name, version string, deps Dependencies, logger *slog.Logger) *ShopServer {
	logger = logger.With("component", "tools")

	s := &ShopServer{
		embedder: deps.Embedder,
		products: deps.Products,
		orders:   deps.Orders,
		logger:   logger,
	}

	s.server = mcp.NewServer(
		&mcp.Implementation{
			Name:    name,
			Version: version,
		},
		&mcp.ServerOptions{
			Logger: logger,
		},
	)

	s.registerTools()
	return s
}

// MCPServer returns the underlying SDK server, shared by every session.
func (s *ShopServer) MCPServer() *mcp.Server {
	return s.server
}

// Run serves a single session over the given transport until it closes.
func (s *ShopServer) Run(ctx context.Context, transport mcp.Transport) error {
	return s.server.Run(ctx, transport)
}

// === TOOL REGISTRATION ===

func (s *ShopServer) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        SearchProductsTool,
		Description: "Given a user query, search for matching products in the catalog. Returns up to 10 products ranked by semantic similarity.",
	}, s.handleSearchProducts)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        GetOrdersTool,
		Description: "Get all orders placed with the given email address, newest first.",
	}, s.handleGetOrders)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        WeatherTool,
		Description: "Get weather for a given location",
	}, s.handleWeather)

	s.logger.Info("Registered shop tools", "tools", []string{SearchProductsTool, GetOrdersTool, WeatherTool})
}

// === TOOL HANDLERS ===

func (s *ShopServer) handleSearchProducts(ctx context.Context, req *mcp.CallToolRequest, input SearchProductsInput) (*mcp.CallToolResult, any, error) {
	start := time.Now()

	embedding, err := s.embedder.Embed(ctx, input.Query)
	if err != nil {
		s.logger.Error("Embedding generation failed", "query", input.Query, "error", err)
		metrics.RecordToolCall(SearchProductsTool, err, time.Since(start))
		return errorResult(fmt.Sprintf("Error searching for products: %v", err)), nil, nil
	}

	products, err := s.products.SearchProducts(ctx, embedding, catalog.SearchLimit)
	metrics.RecordToolCall(SearchProductsTool, err, time.Since(start))
	if err != nil {
		s.logger.Error("Product search failed", "query", input.Query, "error", err)
		return errorResult(fmt.Sprintf("Error searching for products: %v", err)), nil, nil
	}

	s.logger.Info("searchProducts completed",
		"query", input.Query,
		"results", len(products),
		"duration_ms", time.Since(start).Milliseconds())

	return jsonResult(products)
}

func (s *ShopServer) handleGetOrders(ctx context.Context, req *mcp.CallToolRequest, input GetOrdersInput) (*mcp.CallToolResult, any, error) {
	start := time.Now()

	orders, err := s.orders.ListOrdersByEmail(ctx, input.Email)
	metrics.RecordToolCall(GetOrdersTool, err, time.Since(start))
	if err != nil {
		s.logger.Error("Order lookup failed", "error", err)
		return errorResult(fmt.Sprintf("Error getting orders for selected email: %v", err)), nil, nil
	}

	s.logger.Info("getOrders completed",
		"results", len(orders),
		"duration_ms", time.Since(start).Milliseconds())

	return jsonResult(orders)
}

func (s *ShopServer) handleWeather(ctx context.Context, req *mcp.CallToolRequest, input WeatherInput) (*mcp.CallToolResult, any, error) {
	metrics.RecordToolCall(WeatherTool, nil, 0)
	return textResult(fmt.Sprintf("Here is the weather in: %s!", input.Location)), nil, nil
}

// === RESULT ENVELOPES ===

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: text},
		},
	}
}

func jsonResult(v any) (*mcp.CallToolResult, any, error) {
	resultJSON, err := json.Marshal(v)
	if err != nil {
		return errorResult(fmt.Sprintf("Error encoding result: %v", err)), nil, nil
	}
	return textResult(string(resultJSON)), nil, nil
}

func errorResult(message string) *mcp.CallToolResult {
	payload, _ := json.Marshal(toolError{Error: message})
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{
			&mcp.TextContent{Text: string(payload)},
		},
	}
}
