package catalog

import (
	"fmt"
	"log/slog"

	"github.com/radutopala/cosmoshop/internal/config"
)

// Open builds the Catalog Store selected by cfg.Backend. It is called once
// per process and the store is injected from there.
func Open(cfg *config.Config, logger *slog.Logger) (Store, error) {
	switch cfg.Backend {
	case config.BackendSQLite:
		store, err := NewSQLiteStore(cfg.SQLitePath, logger)
		if err != nil {
			return nil, err
		}
		return store, nil
	case config.BackendCosmos:
		store, err := NewCosmosStore(CosmosConfig{
			Endpoint:          cfg.Cosmos.Endpoint,
			Key:               cfg.Cosmos.Key,
			TenantID:          cfg.TenantID,
			Database:          cfg.Cosmos.Database,
			ProductsContainer: cfg.Cosmos.ProductsContainer,
			CartsContainer:    cfg.Cosmos.CartsContainer,
			OrdersContainer:   cfg.Cosmos.OrdersContainer,
		}, logger)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown catalog backend %q", cfg.Backend)
	}
}
