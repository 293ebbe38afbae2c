// Package storefront serves the shop's HTML pages and JSON API.
package storefront

import (
	"context"
	"html/template"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/radutopala/cosmoshop/internal/assistant"
	"github.com/radutopala/cosmoshop/internal/blob"
	"github.com/radutopala/cosmoshop/internal/catalog"
	"github.com/radutopala/cosmoshop/internal/httpmw"
	"github.com/radutopala/cosmoshop/internal/llm"
	"github.com/yuin/goldmark"
)

// Store is the part of the Catalog Store the storefront uses.
type Store interface {
	catalog.ProductCatalog
	catalog.CartStore
	catalog.OrderStore
}

// Responder answers chat messages with tool-backed turns.
type Responder interface {
	Respond(ctx context.Context, message string, history []assistant.Turn) assistant.Reply
}

// Deps are the collaborators injected into the storefront.
type Deps struct {
	Store     Store
	Chat      llm.LLMClient // Model for the /api/chat pass-through
	ChatModel string
	Assistant Responder
	Images    blob.Source // Nil disables /api/blob-url

	// ShopperEmail identifies the signed-in shopper: it owns the cart and
	// is stamped on orders placed from the pages.
	ShopperEmail string
}

// Server holds the storefront handlers.
type Server struct {
	deps     Deps
	pages    map[string]*template.Template
	markdown goldmark.Markdown
	logger   *slog.Logger
}

// New creates the storefront. Templates are parsed here and a parse failure
// panics, since they are embedded in the binary.
func New(deps Deps, logger *slog.Logger) *Server {
	return &Server{
		deps:     deps,
		pages:    parsePages(),
		markdown: goldmark.New(),
		logger:   logger.With("component", "storefront"),
	}
}

// Routes returns the HTTP handler for every storefront route.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(httpmw.Metrics())

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	// One limiter, so the chat API and the assistant form share a budget.
	chatLimit := httpmw.ChatRateLimit()

	r.Route("/api", func(r chi.Router) {
		r.Get("/products", s.handleListProducts)
		r.Get("/cart", s.handleLoadCart)
		r.Post("/cart", s.handleStoreCart)
		r.Post("/orders", s.handleCreateOrder)
		r.Get("/orders/{id}", s.handleGetOrder)
		if s.deps.Images != nil {
			r.Get("/blob-url", s.handleBlobURL)
		}

		r.Group(func(r chi.Router) {
			r.Use(chatLimit)
			r.Post("/chat", s.handleChat)
			r.Post("/assistant", s.handleAssistant)
		})
	})

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/products", http.StatusFound)
	})
	r.Get("/products", s.pageProducts)
	r.Get("/cart", s.pageCart)
	r.Post("/cart/items", s.pageAddToCart)
	r.Post("/cart/checkout", s.pageCheckout)
	r.Get("/orders/{id}", s.pageOrder)
	r.Get("/assistant", s.pageAssistant)
	r.With(chatLimit).Post("/assistant", s.pageAssistantReply)

	return r
}
