//go:build integration
// +build integration

package integration

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/radutopala/cosmoshop/internal/assistant"
	"github.com/radutopala/cosmoshop/internal/bridge"
	"github.com/radutopala/cosmoshop/internal/catalog"
	"github.com/radutopala/cosmoshop/internal/embeddings"
	"github.com/radutopala/cosmoshop/internal/llm"
	"github.com/radutopala/cosmoshop/internal/loader"
	"github.com/radutopala/cosmoshop/internal/mcpclient"
	"github.com/radutopala/cosmoshop/internal/storefront"
	"github.com/radutopala/cosmoshop/internal/tools"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

const shopperEmail = "shopper@example.com"

// shop is a tool server over a SQLite catalog seeded from the repository's
// catalog.json.
type shop struct {
	logger     *slog.Logger
	store      *catalog.SQLiteStore
	tools      *tools.ShopServer
	embedCalls *atomic.Int32
}

// keywordEmbedding puts anything mentioning a tent on one axis and the rest
// of the catalog on the other.
func keywordEmbedding(text string) []float32 {
	if strings.Contains(strings.ToLower(text), "tent") {
		return []float32{1, 0}
	}
	return []float32{0, 1}
}

func newShop(t *testing.T) *shop {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError, // Quiet during tests
	}))

	store, err := catalog.NewSQLiteStore(filepath.Join(t.TempDir(), "shop.db"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	seed := embeddings.Func(func(ctx context.Context, text string) ([]float32, error) {
		return keywordEmbedding(text), nil
	})
	res, err := loader.New(seed, store, logger).LoadFile(context.Background(), filepath.Join("..", loader.DefaultCatalogPath))
	require.NoError(t, err)
	require.NotZero(t, res.Products)

	calls := &atomic.Int32{}
	embedder := embeddings.Func(func(ctx context.Context, text string) ([]float32, error) {
		calls.Add(1)
		return keywordEmbedding(text), nil
	})

	return &shop{
		logger: logger,
		store:  store,
		tools: tools.NewShopServer("cosmoshop-tools", "1.0.0", tools.Dependencies{
			Embedder: embedder,
			Products: store,
			Orders:   store,
		}, logger),
		embedCalls: calls,
	}
}

// ShopTestSuite runs the storefront against a live tool server over SSE
type ShopTestSuite struct {
	suite.Suite
	shop       *shop
	bridge     *bridge.Handler
	toolServer *httptest.Server
	toolClient *mcpclient.Client
	model      *llm.MockClient
	storefront http.Handler
	ctx        context.Context
}

// SetupTest wires every component the way the binaries do
func (s *ShopTestSuite) SetupTest() {
	s.ctx = context.Background()
	s.shop = newShop(s.T())

	s.bridge = bridge.NewHandler(s.shop.tools.MCPServer(), "/messages", s.shop.logger)
	r := chi.NewRouter()
	r.Get("/sse", s.bridge.ServeSSE)
	r.Post("/messages", s.bridge.ServeMessages)
	s.toolServer = httptest.NewServer(r)

	s.toolClient = mcpclient.New(s.toolServer.URL+"/sse", http.DefaultClient, s.shop.logger)
	s.model = llm.NewMockClient()

	orchestrator := assistant.New(s.model, s.toolClient, assistant.Options{
		Model: "gpt-test",
		Tools: assistant.DefaultToolTable(shopperEmail),
	}, s.shop.logger)

	s.storefront = storefront.New(storefront.Deps{
		Store:        s.shop.store,
		Chat:         s.model,
		ChatModel:    "gpt-test",
		Assistant:    orchestrator,
		ShopperEmail: shopperEmail,
	}, s.shop.logger).Routes()
}

// TearDownTest closes the client before the tool server
func (s *ShopTestSuite) TearDownTest() {
	s.toolClient.Close()
	s.bridge.Shutdown()
	s.toolServer.Close()
}

func (s *ShopTestSuite) ask(message string) assistant.Reply {
	body, err := json.Marshal(map[string]any{"message": message, "conversationHistory": []any{}})
	require.NoError(s.T(), err)

	req := httptest.NewRequest(http.MethodPost, "/api/assistant", strings.NewReader(string(body)))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.storefront.ServeHTTP(rec, req)
	require.Equal(s.T(), http.StatusOK, rec.Code)

	var reply assistant.Reply
	require.NoError(s.T(), json.Unmarshal(rec.Body.Bytes(), &reply))
	return reply
}

func toolCall(name, args string) llm.ToolCall {
	return llm.ToolCall{ID: "call_1", Type: "function", Function: llm.FunctionCall{Name: name, Arguments: args}}
}

// TestFindMeATent tests the product search from chat message to products page
func (s *ShopTestSuite) TestFindMeATent() {
	s.model.QueueResponse(llm.ToolCallResponse(toolCall(tools.SearchProductsTool, `{"query":"find me a tent"}`)))

	reply := s.ask("find me a tent")

	require.Len(s.T(), reply.Turns, 1)
	require.Equal(s.T(), assistant.RoleAssistant, reply.Turns[0].Role)
	require.Contains(s.T(), reply.Turns[0].Content, "**Alpine Ridge 2P Tent**: $249.99")
	require.Contains(s.T(), reply.Turns[0].Content, "**Basecamp Family Tent**: $399")
	require.True(s.T(), strings.HasPrefix(reply.Navigate, "/products?ids="))
	require.EqualValues(s.T(), 1, s.shop.embedCalls.Load())

	// The model saw the server's tools with the configured defaults applied
	reqs := s.model.Requests()
	require.Len(s.T(), reqs, 1)
	require.Len(s.T(), reqs[0].Tools, 3)

	rec := httptest.NewRecorder()
	s.storefront.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, reply.Navigate, nil))
	require.Equal(s.T(), http.StatusOK, rec.Code)
	require.Contains(s.T(), rec.Body.String(), "Matching products")
	require.Contains(s.T(), rec.Body.String(), "Alpine Ridge 2P Tent")
}

// TestMyOrders tests that the shopper email default reaches the tool server
func (s *ShopTestSuite) TestMyOrders() {
	_, err := s.shop.store.CreateOrder(s.ctx, catalog.Order{
		ID:        "order-1",
		Email:     shopperEmail,
		Items:     []catalog.LineItem{{ID: "1", Name: "Alpine Ridge 2P Tent", Price: 249.99, Quantity: 1}},
		Total:     249.99,
		Status:    catalog.OrderStatusCompleted,
		CreatedAt: time.Date(2025, 3, 14, 10, 0, 0, 0, time.UTC),
	})
	require.NoError(s.T(), err)

	s.model.QueueResponse(llm.ToolCallResponse(toolCall(tools.GetOrdersTool, `{}`)))

	reply := s.ask("show my orders")

	require.Len(s.T(), reply.Turns, 1)
	content := reply.Turns[0].Content
	require.True(s.T(), strings.HasPrefix(content, "# Your Orders:"))
	require.Contains(s.T(), content, "**Order ID**: order-1")
	require.Contains(s.T(), content, "**Date**: 3/14/2025")
	require.Contains(s.T(), content, "- Alpine Ridge 2P Tent (1x) at $249.99")
	require.Empty(s.T(), reply.Navigate)
}

// TestUnknownToolNeverReachesServer tests the default skip policy end to end
func (s *ShopTestSuite) TestUnknownToolNeverReachesServer() {
	s.model.QueueResponse(llm.ToolCallResponse(
		toolCall("getOrder", `{}`),
		toolCall(tools.WeatherTool, `{"location":"Seattle"}`),
	))

	reply := s.ask("weather please")

	require.Equal(s.T(), []assistant.Turn{
		{Role: assistant.RoleAssistant, Content: "Here is the weather in: Seattle!"},
	}, reply.Turns)
	require.Zero(s.T(), s.shop.embedCalls.Load())
}

// TestToolServerRestart tests that the client reconnects after the bridge drops its sessions
func (s *ShopTestSuite) TestToolServerRestart() {
	s.model.QueueResponse(llm.TextResponse("Hello!"))
	require.Equal(s.T(), "Hello!", s.ask("hi").Turns[0].Content)

	s.bridge.Shutdown()

	// Attempts on the dropped session fail before the model is called, so
	// unused scripted replies are harmless.
	require.Eventually(s.T(), func() bool {
		s.model.QueueResponse(llm.ToolCallResponse(toolCall(tools.WeatherTool, `{"location":"Oslo"}`)))
		reply := s.ask("weather in Oslo")
		return len(reply.Turns) == 1 && reply.Turns[0].Content == "Here is the weather in: Oslo!"
	}, 5*time.Second, 50*time.Millisecond)
}

func TestShopTestSuite(t *testing.T) {
	suite.Run(t, new(ShopTestSuite))
}
