package assistant

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/radutopala/cosmoshop/internal/catalog"
	"github.com/radutopala/cosmoshop/internal/tools"
)

// Turn is one message of the conversation as held by the client.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Formatted is a tool result rendered for display. Navigate, when set, is a
// storefront path the UI should open alongside the turn.
type Formatted struct {
	Turn     *Turn
	Navigate string
}

// ResultFormatter renders the text payload of one tool into a display turn.
type ResultFormatter interface {
	Format(payload string) (Formatted, error)
}

// FormatterFunc adapts a function to ResultFormatter.
type FormatterFunc func(payload string) (Formatted, error)

func (f FormatterFunc) Format(payload string) (Formatted, error) {
	return f(payload)
}

// FormatterTable maps tool names to their formatters. A tool call whose name
// is absent is unrecognised.
type FormatterTable map[string]ResultFormatter

// DefaultFormatters returns the formatters for the shop tools.
func DefaultFormatters() FormatterTable {
	return FormatterTable{
		tools.SearchProductsTool: FormatterFunc(formatProducts),
		tools.GetOrdersTool:      FormatterFunc(formatOrders),
		tools.WeatherTool:        FormatterFunc(formatText),
	}
}

// NoOrdersMessage is shown when getOrders returns an empty list.
const NoOrdersMessage = "No orders found for this email address."

func assistantTurn(content string) *Turn {
	return &Turn{Role: RoleAssistant, Content: content}
}

func formatPrice(p float64) string {
	return strconv.FormatFloat(p, 'f', -1, 64)
}

// formatProducts lists name and price per product and navigates to the
// products view filtered to the returned ids. An empty result renders nothing.
func formatProducts(payload string) (Formatted, error) {
	var products []catalog.ProductSummary
	if err := json.Unmarshal([]byte(payload), &products); err != nil {
		return Formatted{}, fmt.Errorf("decode products: %w", err)
	}

	var ids, lines []string
	for _, p := range products {
		if p.ID == "" {
			continue
		}
		ids = append(ids, p.ID)
		lines = append(lines, fmt.Sprintf("\n**%s**: $%s", p.Name, formatPrice(p.Price)))
	}
	if len(ids) == 0 {
		return Formatted{}, nil
	}

	return Formatted{
		Turn:     assistantTurn(strings.Join(lines, "\n")),
		Navigate: ProductsPath(ids),
	}, nil
}

// ProductsPath is the storefront path listing the given products.
func ProductsPath(ids []string) string {
	escaped := make([]string, len(ids))
	for i, id := range ids {
		escaped[i] = url.QueryEscape(id)
	}
	return "/products?ids=" + strings.Join(escaped, ",")
}

func formatOrders(payload string) (Formatted, error) {
	var orders []catalog.Order
	if err := json.Unmarshal([]byte(payload), &orders); err != nil {
		return Formatted{}, fmt.Errorf("decode orders: %w", err)
	}
	if len(orders) == 0 {
		return Formatted{Turn: assistantTurn(NoOrdersMessage)}, nil
	}

	blocks := make([]string, len(orders))
	for i, o := range orders {
		var b strings.Builder
		fmt.Fprintf(&b, "**Order ID**: %s\n\n", o.ID)
		fmt.Fprintf(&b, "**Date**: %s\n\n", o.CreatedAt.Format("1/2/2006"))
		fmt.Fprintf(&b, "**Status**: %s\n\n", o.Status)
		fmt.Fprintf(&b, "**Total**: $%.2f\n\n", o.Total)
		fmt.Fprintf(&b, "**Items**: %d items\n", len(o.Items))
		for _, item := range o.Items {
			fmt.Fprintf(&b, "\n- %s (%dx) at $%s", item.Name, item.Quantity, formatPrice(item.Price))
		}
		blocks[i] = b.String()
	}

	return Formatted{
		Turn: assistantTurn("# Your Orders:\n\n" + strings.Join(blocks, "\n\n---\n\n")),
	}, nil
}

func formatText(payload string) (Formatted, error) {
	if strings.TrimSpace(payload) == "" {
		return Formatted{}, nil
	}
	return Formatted{Turn: assistantTurn(payload)}, nil
}
