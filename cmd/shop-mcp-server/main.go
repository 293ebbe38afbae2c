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

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/radutopala/cosmoshop/internal/bridge"
	"github.com/radutopala/cosmoshop/internal/catalog"
	"github.com/radutopala/cosmoshop/internal/config"
	"github.com/radutopala/cosmoshop/internal/embeddings"
	"github.com/radutopala/cosmoshop/internal/httpmw"
	"github.com/radutopala/cosmoshop/internal/logging"
	"github.com/radutopala/cosmoshop/internal/tools"
	"golang.org/x/sync/errgroup"
)

const (
	serverName    = "cosmoshop-tools"
	serverVersion = "1.0.0"
	messagesPath  = "/messages"
)

func main() {
	cfg := config.Load()

	logger, closer := logging.New(cfg.LogFile, cfg.LogLevel)
	defer closer.Close()

	if err := run(cfg, logger); err != nil {
		logger.Error("Tool server failed", "error", err)
		closer.Close()
		os.Exit(1)
	}
	logger.Info("Tool server finished")
}

func run(cfg *config.Config, logger *slog.Logger) error {
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

	embedder := embeddings.NewAzureOpenAIClient(embeddings.AzureOpenAIConfig{
		Endpoint:   cfg.OpenAI.Endpoint,
		APIKey:     cfg.OpenAI.APIKey,
		Deployment: cfg.OpenAI.EmbeddingModel,
		APIVersion: cfg.OpenAI.APIVersion,
	}, logger)

	shop := tools.NewShopServer(serverName, serverVersion, tools.Dependencies{
		Embedder: embedder,
		Products: store,
		Orders:   store,
	}, logger)

	sse := bridge.NewHandler(shop.MCPServer(), messagesPath, logger)

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(httpmw.Metrics())
	r.Use(httpmw.CORS(cfg.AllowedOrigins))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = fmt.Fprintf(w, `{"status":"ok","sessions":%d}`, sse.Sessions().Len())
	})
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/sse", sse.ServeSSE)
	r.Post(messagesPath, sse.ServeMessages)

	srv := &http.Server{
		Addr:              cfg.MCPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Starting tool server", "addr", cfg.MCPAddr, "name", serverName, "version", serverVersion)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listening on %s: %w", cfg.MCPAddr, err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		logger.Info("Shutting down tool server")

		// SSE streams never go idle, so they are ended before the server
		// waits for in-flight requests.
		sse.Shutdown()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
