package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/radutopala/cosmoshop/internal/catalog"
	"github.com/radutopala/cosmoshop/internal/config"
	"github.com/radutopala/cosmoshop/internal/embeddings"
	"github.com/radutopala/cosmoshop/internal/loader"
	"github.com/radutopala/cosmoshop/internal/logging"
)

// containerCreator is implemented by stores that can create their own
// products container.
type containerCreator interface {
	EnsureProductsContainer(ctx context.Context) error
}

func main() {
	path := flag.String("catalog", loader.DefaultCatalogPath, "path to the catalog JSON file")
	flag.Parse()

	cfg := config.Load()

	logger, closer := logging.New(cfg.LogFile, cfg.LogLevel)
	defer closer.Close()

	if err := run(cfg, *path, logger); err != nil {
		logger.Error("Catalog load failed", "error", err)
		closer.Close()
		os.Exit(1)
	}
}

func run(cfg *config.Config, path string, logger *slog.Logger) error {
	if err := cfg.Validate(config.NeedCatalog, config.NeedEmbeddings); err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, err := catalog.Open(cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	if c, ok := store.(containerCreator); ok {
		if err := c.EnsureProductsContainer(ctx); err != nil {
			return err
		}
	}

	embedder := embeddings.NewAzureOpenAIClient(embeddings.AzureOpenAIConfig{
		Endpoint:   cfg.OpenAI.Endpoint,
		APIKey:     cfg.OpenAI.APIKey,
		Deployment: cfg.OpenAI.EmbeddingModel,
		APIVersion: cfg.OpenAI.APIVersion,
	}, logger)

	_, err = loader.New(embedder, store, logger).LoadFile(ctx, path)
	return err
}
