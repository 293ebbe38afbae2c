package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/radutopala/cosmoshop/internal/assistant"
	"github.com/radutopala/cosmoshop/internal/blob"
	"github.com/radutopala/cosmoshop/internal/catalog"
	"github.com/radutopala/cosmoshop/internal/config"
	"github.com/radutopala/cosmoshop/internal/llm"
	"github.com/radutopala/cosmoshop/internal/logging"
	"github.com/radutopala/cosmoshop/internal/mcpclient"
	"github.com/radutopala/cosmoshop/internal/storefront"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg := config.Load()

	logger, closer := logging.New(cfg.LogFile, cfg.LogLevel)
	defer closer.Close()

	if err := run(cfg, logger); err != nil {
		logger.Error("Storefront failed", "error", err)
		closer.Close()
		os.Exit(1)
	}
	logger.Info("Storefront finished")
}

func run(cfg *config.Config, logger *slog.Logger) error {
	if err := cfg.Validate(config.NeedCatalog, config.NeedChat); err != nil {
		return err
	}
	policy, err := assistant.ParsePolicy(cfg.UnknownToolPolicy)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, err := catalog.Open(cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	chat := llm.NewClient(llm.Config{
		Endpoint:   cfg.OpenAI.Endpoint,
		APIKey:     cfg.OpenAI.APIKey,
		Deployment: cfg.OpenAI.ChatModel,
		APIVersion: cfg.OpenAI.APIVersion,
	}, logger)

	toolClient := mcpclient.New(cfg.MCPServerURL, http.DefaultClient, logger)
	defer toolClient.Close()

	orchestrator := assistant.New(chat, toolClient, assistant.Options{
		Model:         cfg.OpenAI.ChatModel,
		Tools:         assistant.DefaultToolTable(cfg.ShopperEmail),
		UnknownPolicy: policy,
	}, logger)

	deps := storefront.Deps{
		Store:        store,
		Chat:         chat,
		ChatModel:    cfg.OpenAI.ChatModel,
		Assistant:    orchestrator,
		ShopperEmail: cfg.ShopperEmail,
	}

	if cfg.BlobEnabled() {
		cred, err := azidentity.NewDefaultAzureCredential(&azidentity.DefaultAzureCredentialOptions{
			TenantID: cfg.TenantID,
		})
		if err != nil {
			return fmt.Errorf("creating azure credential: %w", err)
		}
		images, err := blob.NewAzureSource(cfg.Storage.AccountName, cfg.Storage.ContainerName, cred)
		if err != nil {
			return err
		}
		deps.Images = images
	} else {
		logger.Warn("Blob storage not configured, product images disabled")
	}

	srv := &http.Server{
		Addr:              cfg.StorefrontAddr,
		Handler:           storefront.New(deps, logger).Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Starting storefront", "addr", cfg.StorefrontAddr, "mcp_server", cfg.MCPServerURL, "backend", cfg.Backend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listening on %s: %w", cfg.StorefrontAddr, err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		logger.Info("Shutting down storefront")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
