package storefront

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/radutopala/cosmoshop/internal/assistant"
	"github.com/radutopala/cosmoshop/internal/blob"
	"github.com/radutopala/cosmoshop/internal/catalog"
	"github.com/radutopala/cosmoshop/internal/llm"
)

// Response bodies for rejected requests.
const (
	msgUserNameRequired = "userName parameter is required"
	msgInvalidCart      = "Invalid cart data. userName is required."
	msgInvalidOrder     = "Invalid order data"
	msgOrderNotFound    = "Order not found"
	msgBlobRequired     = "Blob name is required"
	msgBlobFailed       = "Failed to access blob"
	msgMessageRequired  = "message is required"
	msgInternal         = "Internal server error"
)

// envelope is the {data, statusCode} success body.
type envelope struct {
	Data       any `json:"data"`
	StatusCode int `json:"statusCode"`
}

type productsBody struct {
	Data       []catalog.ProductSummary `json:"data"`
	StatusCode int                      `json:"statusCode"`
	Duration   int64                    `json:"duration"` // Milliseconds
}

type errorBody struct {
	Error      string `json:"error"`
	StatusCode int    `json:"statusCode"`
	Details    string `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorBody{Error: message, StatusCode: status})
}

// splitIDs parses a comma separated id list, dropping blanks.
func splitIDs(raw string) []string {
	var ids []string
	for _, id := range strings.Split(raw, ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

func (s *Server) handleListProducts(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ids := splitIDs(r.URL.Query().Get("ids"))

	products, err := s.deps.Store.ListProducts(r.Context(), ids)
	if err != nil {
		s.logger.Error("Failed to fetch products", "ids", ids, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to fetch products")
		return
	}
	if products == nil {
		products = []catalog.ProductSummary{}
	}

	duration := time.Since(start)
	s.logger.Debug("Listed products", "count", len(products), "duration_ms", duration.Milliseconds())
	writeJSON(w, http.StatusOK, productsBody{Data: products, StatusCode: http.StatusOK, Duration: duration.Milliseconds()})
}

func (s *Server) handleLoadCart(w http.ResponseWriter, r *http.Request) {
	userName := r.URL.Query().Get("userName")
	if userName == "" {
		writeError(w, http.StatusBadRequest, msgUserNameRequired)
		return
	}

	cart, err := s.deps.Store.LoadCart(r.Context(), userName)
	switch {
	case errors.Is(err, catalog.ErrNotFound):
		writeJSON(w, http.StatusOK, envelope{Data: []catalog.Cart{}, StatusCode: http.StatusOK})
	case err != nil:
		s.logger.Error("Failed to load cart", "user", userName, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to load cart")
	default:
		writeJSON(w, http.StatusOK, envelope{Data: []catalog.Cart{cart}, StatusCode: http.StatusOK})
	}
}

func (s *Server) handleStoreCart(w http.ResponseWriter, r *http.Request) {
	var cart catalog.Cart
	if err := json.NewDecoder(r.Body).Decode(&cart); err != nil || cart.UserName == "" {
		writeError(w, http.StatusBadRequest, msgInvalidCart)
		return
	}
	if cart.Items == nil {
		cart.Items = []catalog.LineItem{}
	}

	stored, err := s.deps.Store.StoreCart(r.Context(), cart)
	if err != nil {
		s.logger.Error("Failed to store cart", "user", cart.UserName, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to store cart")
		return
	}
	writeJSON(w, http.StatusOK, envelope{Data: []catalog.Cart{stored}, StatusCode: http.StatusOK})
}

// orderRequest is the POST /api/orders body. Pointers distinguish absent
// fields from zero values.
type orderRequest struct {
	ID        string             `json:"id"`
	Email     string             `json:"email"`
	Items     []catalog.LineItem `json:"items"`
	Total     *float64           `json:"total"`
	Status    string             `json:"status"`
	CreatedAt *time.Time         `json:"createdAt"`
}

// validate rejects orders whose items are absent or null, or whose total is
// missing or zero. An empty items array is accepted.
func (o orderRequest) validate() bool {
	return o.Items != nil && o.Total != nil && *o.Total != 0
}

func (o orderRequest) order(now time.Time) catalog.Order {
	order := catalog.Order{
		ID:        o.ID,
		Email:     o.Email,
		Items:     o.Items,
		Total:     *o.Total,
		Status:    o.Status,
		CreatedAt: now.UTC(),
	}
	if order.ID == "" {
		order.ID = uuid.NewString()
	}
	if order.Status == "" {
		order.Status = catalog.OrderStatusCompleted
	}
	if o.CreatedAt != nil {
		order.CreatedAt = o.CreatedAt.UTC()
	}
	return order
}

func (s *Server) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	var req orderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || !req.validate() {
		writeError(w, http.StatusBadRequest, msgInvalidOrder)
		return
	}

	order, err := s.deps.Store.CreateOrder(r.Context(), req.order(time.Now()))
	if err != nil {
		s.logger.Error("Failed to create order", "order_id", req.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to create order")
		return
	}

	s.logger.Info("Order created", "order_id", order.ID, "items", len(order.Items), "total", order.Total)
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "Order created successfully",
		"orderId": order.ID,
	})
}

func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	order, err := s.deps.Store.GetOrder(r.Context(), id)
	switch {
	case errors.Is(err, catalog.ErrNotFound):
		writeError(w, http.StatusNotFound, msgOrderNotFound)
	case err != nil:
		s.logger.Error("Failed to fetch order", "order_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to fetch order")
	default:
		writeJSON(w, http.StatusOK, envelope{Data: order, StatusCode: http.StatusOK})
	}
}

// chatRequest is the body of both chat endpoints. Tools is only honoured by
// the /api/chat pass-through.
type chatRequest struct {
	Message             string           `json:"message"`
	ConversationHistory []assistant.Turn `json:"conversationHistory"`
	Tools               []llm.Tool       `json:"tools,omitempty"`
}

// handleChat forwards one exchange to the chat model and returns the raw
// model response serialised as a string.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.logger.Warn("Malformed chat request", "error", err)
		writeError(w, http.StatusInternalServerError, msgInternal)
		return
	}
	if s.deps.Chat == nil {
		s.logger.Error("Chat model not configured")
		writeError(w, http.StatusInternalServerError, msgInternal)
		return
	}

	resp, err := s.deps.Chat.CreateChatCompletion(r.Context(), &llm.ChatCompletionRequest{
		Model:    s.deps.ChatModel,
		Messages: assistant.Messages(req.Message, req.ConversationHistory),
		Tools:    req.Tools,
	})
	if err != nil {
		s.logger.Error("Chat API error", "error", err)
		writeError(w, http.StatusInternalServerError, msgInternal)
		return
	}

	content, err := resp.Serialize()
	if err != nil {
		s.logger.Error("Failed to serialise chat response", "error", err)
		writeError(w, http.StatusInternalServerError, msgInternal)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"content": content})
}

// handleAssistant runs the full tool-call loop server side.
func (s *Server) handleAssistant(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, msgMessageRequired)
		return
	}

	reply := s.deps.Assistant.Respond(r.Context(), req.Message, req.ConversationHistory)
	writeJSON(w, http.StatusOK, reply)
}

func (s *Server) handleBlobURL(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("blob")
	if name == "" {
		writeError(w, http.StatusBadRequest, msgBlobRequired)
		return
	}

	dataURL, err := blob.DataURL(r.Context(), s.deps.Images, name)
	if err != nil {
		s.logger.Error("Error accessing blob", "blob", name, "error", err)
		writeJSON(w, http.StatusInternalServerError, errorBody{
			Error:      msgBlobFailed,
			StatusCode: http.StatusInternalServerError,
			Details:    err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"url": dataURL})
}
