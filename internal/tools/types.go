package tools

// Tool names exposed by the shop tool server.
const (
	SearchProductsTool = "searchProducts"
	GetOrdersTool      = "getOrders"
	WeatherTool        = "weather"
)

// SearchProductsInput defines the input for searchProducts
type SearchProductsInput struct {
	Query string `json:"query" jsonschema:"Natural language description of the products to find"`
}

// GetOrdersInput defines the input for getOrders
type GetOrdersInput struct {
	Email string `json:"email" jsonschema:"Email address the orders were placed with"`
}

// WeatherInput defines the input for weather
type WeatherInput struct {
	Location string `json:"location" jsonschema:"Location to report the weather for"`
}

// toolError is the payload of an error envelope.
type toolError struct {
	Error string `json:"error"`
}
