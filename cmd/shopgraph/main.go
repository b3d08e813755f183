// Copyright (C) 2025 ShopGraph Labs
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Command shopgraph runs the conversational shopping assistant: an HTTP
// service (serve), a one-shot schema bootstrap (schema init) and a local
// REPL for driving the dialogue from a terminal.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"

	"github.com/shopgraph/shopgraph/pkg/logging"
	"github.com/shopgraph/shopgraph/services/assistant/catalog"
	"github.com/shopgraph/shopgraph/services/assistant/config"
	"github.com/shopgraph/shopgraph/services/assistant/entity"
	"github.com/shopgraph/shopgraph/services/assistant/intent"
	"github.com/shopgraph/shopgraph/services/assistant/orchestrator"
	"github.com/shopgraph/shopgraph/services/assistant/ranker"
	"github.com/shopgraph/shopgraph/services/assistant/reference"
	"github.com/shopgraph/shopgraph/services/assistant/retrieval"
	"github.com/shopgraph/shopgraph/services/assistant/routes"
	"github.com/shopgraph/shopgraph/services/assistant/search"
	"github.com/shopgraph/shopgraph/services/llm"
)

const serviceName = "shopgraph-assistant"

var (
	configPath string
	logLevel   string
	logDir     string
)

func initTracer(endpoint string) (func(context.Context), error) {
	ctx := context.Background()

	if v := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); v != "" {
		endpoint = v
	}
	if endpoint == "" {
		endpoint = "localhost:4317"
	}
	conn, err := grpc.NewClient(endpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, err
	}
	traceExporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, err
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String(serviceName)))
	if err != nil {
		return nil, err
	}
	bsp := sdktrace.NewBatchSpanProcessor(traceExporter)
	traceProvider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(bsp))
	otel.SetTracerProvider(traceProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.
		TraceContext{}, propagation.Baggage{}))

	return func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, time.Second*5)
		defer cancel()
		if err := traceExporter.Shutdown(ctx); err != nil {
			slog.Error("Failed to shutdown OTLP exporter", "error", err)
		}
	}, nil
}

// components bundles the wired dependency graph plus its teardown.
type components struct {
	orchestrator *orchestrator.Orchestrator
	store        *catalog.NeoStore
	weaviate     *weaviate.Client
	close        func(context.Context)
}

// buildComponents wires the full pipeline from the config: graph store,
// vector searchers, reranker, LLM stages and session checkpointing.
func buildComponents(cfg config.Config) (*components, error) {
	store, err := catalog.NewNeoStore(catalog.DefaultConfig())
	if err != nil {
		return nil, fmt.Errorf("catalog store: %w", err)
	}

	weaviateClient, err := weaviate.NewClient(weaviate.Config{
		Host:   cfg.WeaviateHost,
		Scheme: cfg.WeaviateScheme,
	})
	if err != nil {
		return nil, fmt.Errorf("weaviate client: %w", err)
	}

	newSearcher := func(className string) (*search.HybridSearcher, error) {
		return search.NewHybridSearcher(weaviateClient, className, cfg.SearchTimeout)
	}
	subcats, err := newSearcher(search.ClassSubcategory)
	if err != nil {
		return nil, err
	}
	summaries, err := newSearcher(search.ClassSummary)
	if err != nil {
		return nil, err
	}
	usecases, err := newSearcher(search.ClassUseCase)
	if err != nil {
		return nil, err
	}
	keywords, err := newSearcher(search.ClassKeyword)
	if err != nil {
		return nil, err
	}

	reranker, err := search.NewRESTReranker(search.DefaultRerankConfig())
	if err != nil {
		return nil, fmt.Errorf("reranker: %w", err)
	}

	retriever, err := retrieval.NewRetriever(store, subcats, summaries, reranker,
		retrieval.RetrieverConfig{
			SubcategoryLimit:     cfg.SubcategoryLimit,
			SubcategoryThreshold: cfg.SubcategoryThreshold,
			RetrieveLimit:        cfg.RetrieveLimit,
			RetrieveThreshold:    cfg.RetrieveThreshold,
			RerankLimit:          cfg.RerankLimit,
		})
	if err != nil {
		return nil, fmt.Errorf("retriever: %w", err)
	}
	recommender, err := retrieval.NewRecommender(store, subcats, usecases, keywords,
		reranker, retriever, retrieval.RecommenderConfig{
			SubcategoryLimit:     cfg.RecommendSubcategoryLimit,
			SubcategoryThreshold: cfg.SubcategoryThreshold,
			UseCaseLimit:         cfg.UseCaseLimit,
			UseCaseThreshold:     cfg.RetrieveThreshold,
			UseCaseRerankLimit:   cfg.UseCaseRerankLimit,
			KeywordLimit:         cfg.KeywordLimit,
			KeywordThreshold:     cfg.RetrieveThreshold,
			MaxProducts:          cfg.MaxRecommendations,
		})
	if err != nil {
		return nil, fmt.Errorf("recommender: %w", err)
	}

	llmClient, err := llm.NewOpenAIClient()
	if err != nil {
		return nil, fmt.Errorf("llm client: %w", err)
	}
	examples, err := intent.DefaultExamples()
	if err != nil {
		return nil, fmt.Errorf("intent examples: %w", err)
	}
	classifier, err := intent.NewClassifier(llmClient, examples, cfg.ClassifyTimeout)
	if err != nil {
		return nil, fmt.Errorf("classifier: %w", err)
	}
	extractor, err := entity.NewExtractor(llmClient, cfg.ExtractTimeout)
	if err != nil {
		return nil, fmt.Errorf("extractor: %w", err)
	}
	resolver, err := reference.NewResolver(llmClient, cfg.ResolveTimeout)
	if err != nil {
		return nil, fmt.Errorf("resolver: %w", err)
	}
	productRanker, err := ranker.NewRanker(llmClient, cfg.RankTimeout)
	if err != nil {
		return nil, fmt.Errorf("ranker: %w", err)
	}
	answerer, err := orchestrator.NewLLMAnswerer(llmClient, cfg.AnswerTimeout)
	if err != nil {
		return nil, fmt.Errorf("answerer: %w", err)
	}

	var sessions orchestrator.SessionStore
	var badgerStore *orchestrator.BadgerSessionStore
	if cfg.SessionDir != "" {
		badgerStore, err = orchestrator.NewBadgerSessionStore(cfg.SessionDir)
		if err != nil {
			return nil, fmt.Errorf("session store: %w", err)
		}
		sessions = badgerStore
	} else {
		slog.Warn("SESSION_DIR not set, sessions will not survive restarts")
		sessions = orchestrator.NewMemorySessionStore()
	}

	o, err := orchestrator.New(orchestrator.Deps{
		Classifier:  classifier,
		Extractor:   extractor,
		Resolver:    resolver,
		Searcher:    retriever,
		Recommender: recommender,
		Ranker:      productRanker,
		Answerer:    answerer,
		Catalog:     store,
		Sessions:    sessions,
	})
	if err != nil {
		return nil, err
	}

	closeFn := func(ctx context.Context) {
		if badgerStore != nil {
			if err := badgerStore.Close(); err != nil {
				slog.Error("Failed to close session store", "error", err)
			}
		}
		if err := store.Close(ctx); err != nil {
			slog.Error("Failed to close catalog store", "error", err)
		}
	}
	return &components{
		orchestrator: o,
		store:        store,
		weaviate:     weaviateClient,
		close:        closeFn,
	}, nil
}

func setupLogging(service string) (func(), error) {
	logger, closeFn, err := logging.New(logging.Config{
		Level:   logging.ParseLevel(logLevel),
		Service: service,
		LogDir:  logDir,
		JSON:    logDir == "",
	})
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)
	return closeFn, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	// Missing .env is fine; env vars may come from the environment proper.
	_ = godotenv.Load()

	closeLog, err := setupLogging(serviceName)
	if err != nil {
		return err
	}
	defer closeLog()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	cleanup, err := initTracer(cfg.OTLPEndpoint)
	if err != nil {
		return fmt.Errorf("setup the OTLP tracer: %w", err)
	}
	defer cleanup(context.Background())

	comps, err := buildComponents(cfg)
	if err != nil {
		return err
	}
	defer comps.close(context.Background())

	router := gin.New()
	router.Use(otelgin.Middleware(serviceName))
	router.Use(gin.Recovery())
	routes.SetupRoutes(router, comps.orchestrator)

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Assistant listening", "addr", cfg.ListenAddr)
		errCh <- srv.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server: %w", err)
		}
	case sig := <-stop:
		slog.Info("Shutting down", "signal", sig.String())
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
	}
	return nil
}

func runSchemaInit(cmd *cobra.Command, args []string) error {
	_ = godotenv.Load()

	closeLog, err := setupLogging("shopgraph-schema")
	if err != nil {
		return err
	}
	defer closeLog()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 60*time.Second)
	defer cancel()

	weaviateClient, err := weaviate.NewClient(weaviate.Config{
		Host:   cfg.WeaviateHost,
		Scheme: cfg.WeaviateScheme,
	})
	if err != nil {
		return fmt.Errorf("weaviate client: %w", err)
	}
	if err := search.EnsureSchema(ctx, weaviateClient); err != nil {
		return err
	}

	store, err := catalog.NewNeoStore(catalog.DefaultConfig())
	if err != nil {
		return fmt.Errorf("catalog store: %w", err)
	}
	defer func() {
		if err := store.Close(ctx); err != nil {
			slog.Error("Failed to close catalog store", "error", err)
		}
	}()
	if err := store.EnsureConstraints(ctx); err != nil {
		return err
	}

	slog.Info("Schema initialized")
	return nil
}

func runRepl(cmd *cobra.Command, args []string) error {
	_ = godotenv.Load()

	closeLog, err := setupLogging("shopgraph-repl")
	if err != nil {
		return err
	}
	defer closeLog()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	// The REPL is ephemeral; keep sessions in memory regardless of config.
	cfg.SessionDir = ""

	comps, err := buildComponents(cfg)
	if err != nil {
		return err
	}
	defer comps.close(context.Background())

	sessionID := uuid.NewString()
	fmt.Println("ShopGraph assistant REPL. Type a message, or /quit to exit.")

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			continue
		case line == "/quit" || line == "/exit":
			return nil
		case line == "/reset":
			if err := comps.orchestrator.ClearSession(cmd.Context(), sessionID); err != nil {
				slog.Error("Failed to reset session", "error", err)
			}
			sessionID = uuid.NewString()
			fmt.Println("Session reset.")
			continue
		}

		answer, err := comps.orchestrator.Turn(cmd.Context(), sessionID, line)
		if err != nil {
			slog.Error("Turn failed", "error", err)
			continue
		}
		fmt.Println(answer)
		fmt.Println()
	}
	return scanner.Err()
}

func main() {
	rootCmd := &cobra.Command{
		Use:           "shopgraph",
		Short:         "Conversational shopping assistant over a product graph",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to the YAML config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logDir, "log-dir", "", "directory for JSON log files")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the assistant HTTP service",
		RunE:  runServe,
	}

	schemaCmd := &cobra.Command{
		Use:   "schema",
		Short: "Manage backing store schemas",
	}
	schemaCmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Create the vector collections and graph constraints",
		RunE:  runSchemaInit,
	})

	replCmd := &cobra.Command{
		Use:   "repl",
		Short: "Drive the assistant from a terminal session",
		RunE:  runRepl,
	}

	rootCmd.AddCommand(serveCmd, schemaCmd, replCmd)

	if err := rootCmd.Execute(); err != nil {
		slog.Error("Command failed", "error", err)
		os.Exit(1)
	}
}
