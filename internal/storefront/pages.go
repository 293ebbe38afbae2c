package storefront

import (
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/radutopala/cosmoshop/internal/assistant"
	"github.com/radutopala/cosmoshop/internal/catalog"
)

//go:embed templates/*.html
var templateFS embed.FS

var pageNames = []string{"products", "cart", "order", "assistant", "notfound"}

func parsePages() map[string]*template.Template {
	pages := make(map[string]*template.Template, len(pageNames))
	for _, name := range pageNames {
		pages[name] = template.Must(template.New("base.html").Funcs(template.FuncMap{
			"price": func(p float64) string { return fmt.Sprintf("$%.2f", p) },
		}).ParseFS(templateFS, "templates/base.html", "templates/"+name+".html"))
	}
	return pages
}

// Template data types
type productsPageData struct {
	Title    string
	Products []catalog.ProductSummary
	Filtered bool
}

type cartPageData struct {
	Title string
	Cart  catalog.Cart
	Total float64
}

type orderPageData struct {
	Title string
	Order catalog.Order
}

type chatTurnView struct {
	Role string
	HTML template.HTML
}

type assistantPageData struct {
	Title    string
	Turns    []chatTurnView
	History  string // JSON of every turn so far, posted back with the next message
	Navigate string
}

type notFoundPageData struct {
	Title   string
	Message string
}

func (s *Server) render(w http.ResponseWriter, status int, name string, data any) {
	var buf bytes.Buffer
	if err := s.pages[name].Execute(&buf, data); err != nil {
		s.logger.Error("Failed to render page", "page", name, "error", err)
		http.Error(w, "Failed to render page", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

func (s *Server) pageProducts(w http.ResponseWriter, r *http.Request) {
	ids := splitIDs(r.URL.Query().Get("ids"))
	products, err := s.deps.Store.ListProducts(r.Context(), ids)
	if err != nil {
		s.logger.Error("Failed to fetch products", "error", err)
		http.Error(w, "Failed to fetch products", http.StatusInternalServerError)
		return
	}
	s.render(w, http.StatusOK, "products", productsPageData{
		Title:    "Products",
		Products: products,
		Filtered: len(ids) > 0,
	})
}

// loadCart returns the shopper's cart, or an empty one if none exists yet.
func (s *Server) loadCart(r *http.Request) (catalog.Cart, error) {
	cart, err := s.deps.Store.LoadCart(r.Context(), s.deps.ShopperEmail)
	if errors.Is(err, catalog.ErrNotFound) {
		return catalog.Cart{UserName: s.deps.ShopperEmail, Items: []catalog.LineItem{}}, nil
	}
	return cart, err
}

func cartTotal(items []catalog.LineItem) float64 {
	var total float64
	for _, item := range items {
		total += item.Price * float64(item.Quantity)
	}
	return total
}

func (s *Server) pageCart(w http.ResponseWriter, r *http.Request) {
	cart, err := s.loadCart(r)
	if err != nil {
		s.logger.Error("Failed to load cart", "error", err)
		http.Error(w, "Failed to load cart", http.StatusInternalServerError)
		return
	}
	s.render(w, http.StatusOK, "cart", cartPageData{
		Title: "Cart",
		Cart:  cart,
		Total: cartTotal(cart.Items),
	})
}

// pageAddToCart adds one unit of the posted product id to the shopper's cart.
func (s *Server) pageAddToCart(w http.ResponseWriter, r *http.Request) {
	id := r.PostFormValue("id")
	if id == "" {
		http.Error(w, "product id is required", http.StatusBadRequest)
		return
	}

	products, err := s.deps.Store.ListProducts(r.Context(), []string{id})
	if err != nil {
		s.logger.Error("Failed to fetch product", "id", id, "error", err)
		http.Error(w, "Failed to fetch product", http.StatusInternalServerError)
		return
	}
	if len(products) == 0 {
		s.render(w, http.StatusNotFound, "notfound", notFoundPageData{Title: "Not found", Message: "Product not found"})
		return
	}
	product := products[0]

	cart, err := s.loadCart(r)
	if err != nil {
		s.logger.Error("Failed to load cart", "error", err)
		http.Error(w, "Failed to load cart", http.StatusInternalServerError)
		return
	}

	found := false
	for i := range cart.Items {
		if cart.Items[i].ID == product.ID {
			cart.Items[i].Quantity++
			found = true
			break
		}
	}
	if !found {
		cart.Items = append(cart.Items, catalog.LineItem{
			ID:       product.ID,
			Name:     product.Name,
			Price:    product.Price,
			Quantity: 1,
		})
	}

	if _, err := s.deps.Store.StoreCart(r.Context(), cart); err != nil {
		s.logger.Error("Failed to store cart", "error", err)
		http.Error(w, "Failed to store cart", http.StatusInternalServerError)
		return
	}
	http.Redirect(w, r, "/cart", http.StatusSeeOther)
}

// pageCheckout turns the shopper's cart into an order and empties the cart.
func (s *Server) pageCheckout(w http.ResponseWriter, r *http.Request) {
	cart, err := s.loadCart(r)
	if err != nil {
		s.logger.Error("Failed to load cart", "error", err)
		http.Error(w, "Failed to load cart", http.StatusInternalServerError)
		return
	}
	if len(cart.Items) == 0 {
		http.Redirect(w, r, "/cart", http.StatusSeeOther)
		return
	}

	order, err := s.deps.Store.CreateOrder(r.Context(), catalog.Order{
		ID:        uuid.NewString(),
		Email:     s.deps.ShopperEmail,
		Items:     cart.Items,
		Total:     cartTotal(cart.Items),
		Status:    catalog.OrderStatusCompleted,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		s.logger.Error("Failed to place order", "error", err)
		http.Error(w, "Failed to place order", http.StatusInternalServerError)
		return
	}

	cart.Items = []catalog.LineItem{}
	if _, err := s.deps.Store.StoreCart(r.Context(), cart); err != nil {
		s.logger.Warn("Failed to empty cart after checkout", "order_id", order.ID, "error", err)
	}

	s.logger.Info("Order placed", "order_id", order.ID, "total", order.Total)
	http.Redirect(w, r, "/orders/"+url.PathEscape(order.ID), http.StatusSeeOther)
}

func (s *Server) pageOrder(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	order, err := s.deps.Store.GetOrder(r.Context(), id)
	switch {
	case errors.Is(err, catalog.ErrNotFound):
		s.render(w, http.StatusNotFound, "notfound", notFoundPageData{Title: "Not found", Message: msgOrderNotFound})
	case err != nil:
		s.logger.Error("Failed to fetch order", "order_id", id, "error", err)
		http.Error(w, "Failed to fetch order", http.StatusInternalServerError)
	default:
		s.render(w, http.StatusOK, "order", orderPageData{Title: "Order " + order.ID, Order: order})
	}
}

func (s *Server) pageAssistant(w http.ResponseWriter, r *http.Request) {
	s.render(w, http.StatusOK, "assistant", assistantPageData{Title: "Assistant", History: "[]"})
}

// pageAssistantReply answers a message posted from the chat form. The
// conversation lives in the page and is posted back in full each time.
func (s *Server) pageAssistantReply(w http.ResponseWriter, r *http.Request) {
	message := r.PostFormValue("message")

	history := []assistant.Turn{}
	if raw := r.PostFormValue("history"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &history); err != nil {
			http.Error(w, "invalid conversation history", http.StatusBadRequest)
			return
		}
	}

	var navigate string
	if message != "" {
		reply := s.deps.Assistant.Respond(r.Context(), message, history)
		history = append(history, assistant.Turn{Role: assistant.RoleUser, Content: message})
		history = append(history, reply.Turns...)
		navigate = reply.Navigate
	}

	encoded, err := json.Marshal(history)
	if err != nil {
		http.Error(w, "Failed to encode conversation", http.StatusInternalServerError)
		return
	}

	views := make([]chatTurnView, len(history))
	for i, t := range history {
		views[i] = chatTurnView{Role: t.Role, HTML: s.renderMarkdown(t.Content)}
	}

	s.render(w, http.StatusOK, "assistant", assistantPageData{
		Title:    "Assistant",
		Turns:    views,
		History:  string(encoded),
		Navigate: navigate,
	})
}

// renderMarkdown converts a chat turn to HTML. Raw HTML in the source is not
// passed through, so the result is safe to embed.
func (s *Server) renderMarkdown(content string) template.HTML {
	var buf bytes.Buffer
	if err := s.markdown.Convert([]byte(content), &buf); err != nil {
		s.logger.Error("Failed to convert markdown", "error", err)
		return template.HTML(template.HTMLEscapeString(content))
	}
	return template.HTML(buf.String())
}
