package storefront

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/radutopala/cosmoshop/internal/assistant"
	"github.com/radutopala/cosmoshop/internal/catalog"
	"github.com/radutopala/cosmoshop/internal/llm"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

// stubResponder records the last message and returns a fixed reply.
type stubResponder struct {
	reply   assistant.Reply
	message string
	history []assistant.Turn
}

func (s *stubResponder) Respond(ctx context.Context, message string, history []assistant.Turn) assistant.Reply {
	s.message = message
	s.history = history
	return s.reply
}

type mapImages map[string]string

func (m mapImages) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	data, ok := m[name]
	if !ok {
		return nil, errors.New("BlobNotFound: the specified blob does not exist")
	}
	return io.NopCloser(strings.NewReader(data)), nil
}

// APITestSuite exercises the JSON API against an in-memory store
type APITestSuite struct {
	suite.Suite
	store     *catalog.SQLiteStore
	chat      *llm.MockClient
	responder *stubResponder
	handler   http.Handler
	ctx       context.Context
}

// SetupTest runs before each test
func (s *APITestSuite) SetupTest() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError, // Quiet during tests
	}))
	s.ctx = context.Background()

	store, err := catalog.NewSQLiteStore(":memory:", logger)
	require.NoError(s.T(), err)
	s.store = store

	for _, p := range []catalog.Product{
		{ID: "tent", Type: "Tent", Brand: "Summit", Name: "Summit Tent", Price: 199.99, Embedding: []float32{1, 0}},
		{ID: "boots", Type: "Footwear", Brand: "Trail", Name: "Trail Boots", Price: 89.5, Embedding: []float32{0, 1}},
		{ID: "stove", Type: "Cooking", Brand: "Camp", Name: "Camp Stove", Price: 40, Embedding: []float32{1, 1}},
	} {
		require.NoError(s.T(), store.UpsertProduct(s.ctx, p))
	}

	s.chat = llm.NewMockClient()
	s.responder = &stubResponder{}
	s.handler = New(Deps{
		Store:        store,
		Chat:         s.chat,
		ChatModel:    "gpt-test",
		Assistant:    s.responder,
		Images:       mapImages{"tent.webp": "RIFF"},
		ShopperEmail: "shopper@example.com",
	}, logger).Routes()
}

// TearDownTest runs after each test
func (s *APITestSuite) TearDownTest() {
	require.NoError(s.T(), s.store.Close())
}

func (s *APITestSuite) do(method, target, body string) (*httptest.ResponseRecorder, map[string]any) {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)

	var decoded map[string]any
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(s.T(), json.Unmarshal(rec.Body.Bytes(), &decoded))
	}
	return rec, decoded
}

// TestListProducts tests the full catalog without embeddings
func (s *APITestSuite) TestListProducts() {
	rec, body := s.do(http.MethodGet, "/api/products", "")
	require.Equal(s.T(), http.StatusOK, rec.Code)
	require.EqualValues(s.T(), 200, body["statusCode"])
	require.Contains(s.T(), body, "duration")

	data := body["data"].([]any)
	require.Len(s.T(), data, 3)
	require.NotContains(s.T(), rec.Body.String(), "embedding")
}

// TestListProductsByIDs tests the subset query
func (s *APITestSuite) TestListProductsByIDs() {
	rec, body := s.do(http.MethodGet, "/api/products?ids=stove,tent,missing", "")
	require.Equal(s.T(), http.StatusOK, rec.Code)

	var ids []string
	for _, p := range body["data"].([]any) {
		ids = append(ids, p.(map[string]any)["id"].(string))
	}
	require.ElementsMatch(s.T(), []string{"stove", "tent"}, ids)
}

// TestCartRequiresUserName tests validation on both cart methods
func (s *APITestSuite) TestCartRequiresUserName() {
	rec, body := s.do(http.MethodGet, "/api/cart", "")
	require.Equal(s.T(), http.StatusBadRequest, rec.Code)
	require.Equal(s.T(), msgUserNameRequired, body["error"])

	rec, body = s.do(http.MethodPost, "/api/cart", `{"items":[]}`)
	require.Equal(s.T(), http.StatusBadRequest, rec.Code)
	require.Equal(s.T(), msgInvalidCart, body["error"])

	rec, _ = s.do(http.MethodPost, "/api/cart", `not json`)
	require.Equal(s.T(), http.StatusBadRequest, rec.Code)
}

// TestCartRoundTrip tests that items come back in order with all fields
func (s *APITestSuite) TestCartRoundTrip() {
	rec, body := s.do(http.MethodGet, "/api/cart?userName=ada", "")
	require.Equal(s.T(), http.StatusOK, rec.Code)
	require.Empty(s.T(), body["data"])

	cart := `{"userName":"ada","items":[{"id":"stove","name":"Camp Stove","price":40,"quantity":2},{"id":"tent","name":"Summit Tent","price":199.99,"quantity":1}]}`
	rec, body = s.do(http.MethodPost, "/api/cart", cart)
	require.Equal(s.T(), http.StatusOK, rec.Code)
	require.EqualValues(s.T(), 200, body["statusCode"])

	rec, _ = s.do(http.MethodGet, "/api/cart?userName=ada", "")
	require.Equal(s.T(), http.StatusOK, rec.Code)

	var resp struct {
		Data []catalog.Cart `json:"data"`
	}
	require.NoError(s.T(), json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(s.T(), resp.Data, 1)
	require.Equal(s.T(), "ada", resp.Data[0].UserName)
	require.Equal(s.T(), []catalog.LineItem{
		{ID: "stove", Name: "Camp Stove", Price: 40, Quantity: 2},
		{ID: "tent", Name: "Summit Tent", Price: 199.99, Quantity: 1},
	}, resp.Data[0].Items)
}

// TestCreateOrderValidation tests rejection before any store write
func (s *APITestSuite) TestCreateOrderValidation() {
	for _, body := range []string{
		`{"id":"o1","items":[{"id":"tent","name":"Summit Tent","price":199.99,"quantity":1}]}`,
		`{"id":"o1","items":[{"id":"tent","name":"Summit Tent","price":199.99,"quantity":1}],"total":0}`,
		`{"id":"o1","total":199.99}`,
		`{"id":"o1","items":null,"total":199.99}`,
		`garbage`,
	} {
		rec, decoded := s.do(http.MethodPost, "/api/orders", body)
		require.Equal(s.T(), http.StatusBadRequest, rec.Code, body)
		require.Equal(s.T(), msgInvalidOrder, decoded["error"])
	}

	_, err := s.store.GetOrder(s.ctx, "o1")
	require.ErrorIs(s.T(), err, catalog.ErrNotFound)
}

// TestCreateAndGetOrder tests defaults and retrieval
func (s *APITestSuite) TestCreateAndGetOrder() {
	rec, body := s.do(http.MethodPost, "/api/orders",
		`{"items":[{"id":"tent","name":"Summit Tent","price":199.99,"quantity":1}],"total":199.99,"email":"ada@example.com"}`)
	require.Equal(s.T(), http.StatusOK, rec.Code)
	require.Equal(s.T(), "Order created successfully", body["message"])
	orderID := body["orderId"].(string)
	require.NotEmpty(s.T(), orderID)

	rec, _ = s.do(http.MethodGet, "/api/orders/"+orderID, "")
	require.Equal(s.T(), http.StatusOK, rec.Code)

	var resp struct {
		Data       catalog.Order `json:"data"`
		StatusCode int           `json:"statusCode"`
	}
	require.NoError(s.T(), json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(s.T(), 200, resp.StatusCode)
	require.Equal(s.T(), orderID, resp.Data.ID)
	require.Equal(s.T(), catalog.OrderStatusCompleted, resp.Data.Status)
	require.Equal(s.T(), "ada@example.com", resp.Data.Email)
	require.WithinDuration(s.T(), time.Now(), resp.Data.CreatedAt, time.Minute)
}

// TestCreateOrderEmptyItems tests that an empty items array is accepted
func (s *APITestSuite) TestCreateOrderEmptyItems() {
	rec, body := s.do(http.MethodPost, "/api/orders", `{"id":"o-empty","items":[],"total":5}`)
	require.Equal(s.T(), http.StatusOK, rec.Code)
	require.Equal(s.T(), "o-empty", body["orderId"])

	order, err := s.store.GetOrder(s.ctx, "o-empty")
	require.NoError(s.T(), err)
	require.Empty(s.T(), order.Items)
	require.Equal(s.T(), 5.0, order.Total)
}

// TestCreateOrderKeepsClientFields tests that supplied id/status/createdAt win
func (s *APITestSuite) TestCreateOrderKeepsClientFields() {
	rec, body := s.do(http.MethodPost, "/api/orders",
		`{"id":"client-1","items":[{"id":"stove","name":"Camp Stove","price":40,"quantity":1}],"total":40,"status":"pending","createdAt":"2025-02-03T04:05:06Z"}`)
	require.Equal(s.T(), http.StatusOK, rec.Code)
	require.Equal(s.T(), "client-1", body["orderId"])

	order, err := s.store.GetOrder(s.ctx, "client-1")
	require.NoError(s.T(), err)
	require.Equal(s.T(), "pending", order.Status)
	require.True(s.T(), order.CreatedAt.Equal(time.Date(2025, 2, 3, 4, 5, 6, 0, time.UTC)))
}

// TestGetOrderNotFound tests the 404 body
func (s *APITestSuite) TestGetOrderNotFound() {
	rec, body := s.do(http.MethodGet, "/api/orders/nope", "")
	require.Equal(s.T(), http.StatusNotFound, rec.Code)
	require.Equal(s.T(), msgOrderNotFound, body["error"])
}

// TestChatPassThrough tests message assembly and the serialised response
func (s *APITestSuite) TestChatPassThrough() {
	s.chat.QueueResponse(llm.TextResponse("We have tents."))

	rec, body := s.do(http.MethodPost, "/api/chat",
		`{"message":"tents?","conversationHistory":[{"role":"user","content":"hi"},{"role":"assistant","content":"hello"}],"tools":[{"type":"function","function":{"name":"searchProducts","strict":false}}]}`)
	require.Equal(s.T(), http.StatusOK, rec.Code)

	var completion llm.ChatCompletionResponse
	require.NoError(s.T(), json.Unmarshal([]byte(body["content"].(string)), &completion))
	require.Equal(s.T(), "We have tents.", completion.Choices[0].Message.Content)

	reqs := s.chat.Requests()
	require.Len(s.T(), reqs, 1)
	require.Equal(s.T(), "gpt-test", reqs[0].Model)
	require.Len(s.T(), reqs[0].Messages, 4)
	require.Equal(s.T(), llm.RoleSystem, reqs[0].Messages[0].Role)
	require.Equal(s.T(), "tents?", reqs[0].Messages[3].Content)
	require.Len(s.T(), reqs[0].Tools, 1)
}

// TestChatUpstreamFailure tests the generic 500
func (s *APITestSuite) TestChatUpstreamFailure() {
	s.chat.QueueError(llm.ErrUpstream)

	rec, body := s.do(http.MethodPost, "/api/chat", `{"message":"hi","conversationHistory":[]}`)
	require.Equal(s.T(), http.StatusInternalServerError, rec.Code)
	require.Equal(s.T(), msgInternal, body["error"])
}

// TestAssistant tests that the orchestrator reply is returned as JSON
func (s *APITestSuite) TestAssistant() {
	s.responder.reply = assistant.Reply{
		Turns:    []assistant.Turn{{Role: assistant.RoleAssistant, Content: "\n**Summit Tent**: $199.99"}},
		Navigate: "/products?ids=tent",
	}

	rec, body := s.do(http.MethodPost, "/api/assistant",
		`{"message":"find me a tent","conversationHistory":[{"role":"user","content":"hi"}]}`)
	require.Equal(s.T(), http.StatusOK, rec.Code)
	require.Equal(s.T(), "/products?ids=tent", body["navigate"])
	require.Len(s.T(), body["turns"], 1)
	require.Equal(s.T(), "find me a tent", s.responder.message)
	require.Len(s.T(), s.responder.history, 1)

	rec, body = s.do(http.MethodPost, "/api/assistant", `{"message":"  "}`)
	require.Equal(s.T(), http.StatusBadRequest, rec.Code)
	require.Equal(s.T(), msgMessageRequired, body["error"])
}

// TestBlobURL tests the image data URL and its failures
func (s *APITestSuite) TestBlobURL() {
	rec, body := s.do(http.MethodGet, "/api/blob-url?blob=tent.webp", "")
	require.Equal(s.T(), http.StatusOK, rec.Code)
	require.Equal(s.T(), "data:image/webp;base64,UklGRg==", body["url"])

	rec, body = s.do(http.MethodGet, "/api/blob-url", "")
	require.Equal(s.T(), http.StatusBadRequest, rec.Code)
	require.Equal(s.T(), msgBlobRequired, body["error"])

	rec, body = s.do(http.MethodGet, "/api/blob-url?blob=missing.webp", "")
	require.Equal(s.T(), http.StatusInternalServerError, rec.Code)
	require.Equal(s.T(), msgBlobFailed, body["error"])
	require.Contains(s.T(), body["details"], "BlobNotFound")
}

// TestHealthAndMetrics tests the operational endpoints
func (s *APITestSuite) TestHealthAndMetrics() {
	rec, body := s.do(http.MethodGet, "/healthz", "")
	require.Equal(s.T(), http.StatusOK, rec.Code)
	require.Equal(s.T(), "ok", body["status"])

	s.do(http.MethodGet, "/api/products", "")
	rec, _ = s.do(http.MethodGet, "/metrics", "")
	require.Equal(s.T(), http.StatusOK, rec.Code)
	require.Contains(s.T(), rec.Body.String(), "cosmoshop_http_request_duration_seconds")
}

func TestAPITestSuite(t *testing.T) {
	suite.Run(t, new(APITestSuite))
}

func TestBlobRouteDisabledWithoutImages(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store, err := catalog.NewSQLiteStore(":memory:", logger)
	require.NoError(t, err)
	defer store.Close()

	handler := New(Deps{Store: store, Assistant: &stubResponder{}}, logger).Routes()
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/blob-url?blob=a.webp", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
}
