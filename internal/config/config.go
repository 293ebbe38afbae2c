package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// ErrMissing is returned (wrapped in a *MissingError) when required settings are absent.
var ErrMissing = errors.New("missing required configuration")

// Catalog backends
const (
	BackendCosmos = "cosmos"
	BackendSQLite = "sqlite"
)

// Config holds every setting the shop binaries read from the environment.
type Config struct {
	Backend    string // BackendCosmos or BackendSQLite
	SQLitePath string

	Cosmos  CosmosConfig
	OpenAI  OpenAIConfig
	Storage StorageConfig

	TenantID string // Optional tenant for DefaultAzureCredential

	MCPServerURL      string   // SSE endpoint the storefront connects to
	ShopperEmail      string   // Default email injected into getOrders calls
	UnknownToolPolicy string   // "skip" or "surface"
	AllowedOrigins    []string // CORS origins for the tool server

	MCPAddr        string
	StorefrontAddr string

	LogLevel string
	LogFile  string
}

// CosmosConfig locates the Cosmos DB account and its containers.
type CosmosConfig struct {
	Endpoint          string
	Key               string // Optional; DefaultAzureCredential is used when empty
	Database          string
	ProductsContainer string
	CartsContainer    string
	OrdersContainer   string
}

// OpenAIConfig addresses the Azure OpenAI deployments.
type OpenAIConfig struct {
	Endpoint       string
	APIKey         string
	EmbeddingModel string
	ChatModel      string
	APIVersion     string
}

// StorageConfig addresses the blob container holding product images.
type StorageConfig struct {
	AccountName   string
	ContainerName string
}

// Load reads configuration from the environment. A .env file in the working
// directory is honoured when present.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Backend:    strings.ToLower(getEnv("CATALOG_BACKEND", BackendCosmos)),
		SQLitePath: getEnv("SQLITE_PATH", "cosmoshop.db"),

		Cosmos: CosmosConfig{
			Endpoint:          os.Getenv("AZURE_COSMOSDB_NOSQL_ENDPOINT"),
			Key:               os.Getenv("AZURE_COSMOSDB_NOSQL_KEY"),
			Database:          os.Getenv("AZURE_COSMOSDB_NOSQL_DATABASE"),
			ProductsContainer: os.Getenv("AZURE_COSMOSDB_NOSQL_PRODUCTS_CONTAINER"),
			CartsContainer:    os.Getenv("AZURE_COSMOSDB_NOSQL_CARTS_CONTAINER"),
			OrdersContainer:   os.Getenv("AZURE_COSMOSDB_NOSQL_ORDERS_CONTAINER"),
		},
		OpenAI: OpenAIConfig{
			Endpoint:       os.Getenv("AZURE_OPENAI_ENDPOINT"),
			APIKey:         os.Getenv("AZURE_OPENAI_API_KEY"),
			EmbeddingModel: os.Getenv("AZURE_OPENAI_EMBEDDING_MODEL"),
			ChatModel:      os.Getenv("AZURE_OPENAI_CHAT_MODEL"),
			APIVersion:     getEnv("AZURE_OPENAI_API_VERSION", "2024-12-01-preview"),
		},
		Storage: StorageConfig{
			AccountName:   os.Getenv("AZURE_STORAGE_ACCOUNT_NAME"),
			ContainerName: os.Getenv("AZURE_STORAGE_CONTAINER_NAME"),
		},

		TenantID: os.Getenv("AZURE_TENANT_ID"),

		MCPServerURL:      getEnv("MCP_SERVER_URL", "http://localhost:3001/sse"),
		ShopperEmail:      getEnv("SHOPPER_EMAIL", "shopper@example.com"),
		UnknownToolPolicy: strings.ToLower(getEnv("UNKNOWN_TOOL_POLICY", "skip")),
		AllowedOrigins:    splitList(getEnv("ALLOWED_ORIGINS", "http://localhost:3002")),

		MCPAddr:        getEnv("MCP_ADDR", ":3001"),
		StorefrontAddr: getEnv("STOREFRONT_ADDR", ":3002"),

		LogLevel: getEnv("LOG_LEVEL", "info"),
		LogFile:  os.Getenv("LOG_FILE"),
	}
}

// Need names a group of settings a binary depends on.
type Need int

const (
	NeedCatalog Need = iota
	NeedEmbeddings
	NeedChat
)

// Validate checks that every setting required by needs is present. All
// missing keys are reported together.
func (c *Config) Validate(needs ...Need) error {
	var missing []string
	check := func(key, value string) {
		if value == "" {
			missing = append(missing, key)
		}
	}

	for _, n := range needs {
		switch n {
		case NeedCatalog:
			switch c.Backend {
			case BackendCosmos:
				check("AZURE_COSMOSDB_NOSQL_ENDPOINT", c.Cosmos.Endpoint)
				check("AZURE_COSMOSDB_NOSQL_DATABASE", c.Cosmos.Database)
				check("AZURE_COSMOSDB_NOSQL_PRODUCTS_CONTAINER", c.Cosmos.ProductsContainer)
				check("AZURE_COSMOSDB_NOSQL_CARTS_CONTAINER", c.Cosmos.CartsContainer)
				check("AZURE_COSMOSDB_NOSQL_ORDERS_CONTAINER", c.Cosmos.OrdersContainer)
			case BackendSQLite:
				check("SQLITE_PATH", c.SQLitePath)
			default:
				return fmt.Errorf("unknown CATALOG_BACKEND %q", c.Backend)
			}
		case NeedEmbeddings:
			check("AZURE_OPENAI_ENDPOINT", c.OpenAI.Endpoint)
			check("AZURE_OPENAI_API_KEY", c.OpenAI.APIKey)
			check("AZURE_OPENAI_EMBEDDING_MODEL", c.OpenAI.EmbeddingModel)
		case NeedChat:
			check("AZURE_OPENAI_ENDPOINT", c.OpenAI.Endpoint)
			check("AZURE_OPENAI_API_KEY", c.OpenAI.APIKey)
			check("AZURE_OPENAI_CHAT_MODEL", c.OpenAI.ChatModel)
		}
	}

	if len(missing) > 0 {
		return &MissingError{Keys: dedupe(missing)}
	}
	return nil
}

// BlobEnabled reports whether product images can be served from blob storage.
func (c *Config) BlobEnabled() bool {
	return c.Storage.AccountName != "" && c.Storage.ContainerName != ""
}

// MissingError lists the absent configuration keys.
type MissingError struct {
	Keys []string
}

func (e *MissingError) Error() string {
	return fmt.Sprintf("%s: %s", ErrMissing, strings.Join(e.Keys, ", "))
}

func (e *MissingError) Is(target error) bool {
	return target == ErrMissing
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func dedupe(keys []string) []string {
	seen := make(map[string]bool, len(keys))
	out := keys[:0]
	for _, k := range keys {
		if !seen[k] {
			seen[k] = true
			out = append(out, k)
		}
	}
	return out
}
