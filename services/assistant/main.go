// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/abparts/ai-assistant/services/assistant/audit"
	"github.com/abparts/ai-assistant/services/assistant/config"
	"github.com/abparts/ai-assistant/services/assistant/crypto"
	"github.com/abparts/ai-assistant/services/assistant/observability"
	"github.com/abparts/ai-assistant/services/assistant/pipeline"
	"github.com/abparts/ai-assistant/services/assistant/routes"
	"github.com/abparts/ai-assistant/services/assistant/session"
	storage "github.com/abparts/ai-assistant/services/assistant/storage/badger"
	"github.com/abparts/ai-assistant/services/llm"
	"github.com/abparts/ai-assistant/services/redaction"

	// --- OpenTelemetry imports ---
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"google.golang.org/grpc"
)

func initTracer(endpoint string) (func(context.Context), error) {
	ctx := context.Background()

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
		resource.WithAttributes(semconv.ServiceNameKey.String("assistant-service")))
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
			slog.Error("failed to shutdown OTLP exporter", "error", err)
		}
	}, nil
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Info("no .env file found, using system environment only")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("FATAL: invalid configuration: %v", err)
	}

	if cfg.Tracing.Enabled {
		cleanup, err := initTracer(cfg.Tracing.Endpoint)
		if err != nil {
			log.Fatalf("failed to setup the OTLP tracer: %v", err)
		}
		defer cleanup(context.Background())
	}

	// --- Session store (Badger) ---
	badgerCfg := storage.DefaultConfig()
	badgerCfg.Path = cfg.Storage.BadgerPath
	badgerCfg.Logger = logger
	db, err := storage.Open(badgerCfg)
	if err != nil {
		log.Fatalf("FATAL: could not open session store: %v", err)
	}
	defer db.Close()

	gcRunner, err := storage.NewGCRunner(db, badgerCfg.GCInterval, badgerCfg.GCDiscardRatio, logger)
	if err != nil {
		log.Fatalf("FATAL: could not start badger GC runner: %v", err)
	}
	gcRunner.Start()
	defer gcRunner.Stop()

	sessions, err := session.NewStore(db, session.Options{
		TTL:       cfg.Session.IdleTTL,
		Retention: cfg.Session.Retention,
	})
	if err != nil {
		log.Fatalf("FATAL: could not build session store: %v", err)
	}

	// --- Audit database (SQLite) ---
	auditDB, err := audit.OpenDB(cfg.Audit.DSN)
	if err != nil {
		log.Fatalf("FATAL: could not open audit database: %v", err)
	}
	defer auditDB.Close()

	recorder, err := audit.NewRecorder(auditDB, logger)
	if err != nil {
		log.Fatalf("FATAL: could not build audit recorder: %v", err)
	}

	retention := audit.NewRetentionLoop(recorder, cfg.Audit.Retention, 24*time.Hour, logger)
	retention.Start()
	defer retention.Stop()

	// --- Message encryption ---
	cipher, err := crypto.NewFieldCipher(cfg.Crypto.Key)
	if err != nil {
		log.Fatalf("FATAL: could not initialize field cipher: %v", err)
	}

	// --- Redaction engine ---
	redactor, err := redaction.NewEngine()
	if err != nil {
		log.Fatalf("FATAL: could not initialize redaction engine: %v", err)
	}

	metrics := observability.InitMetrics()

	// --- LLM backends with failover ---
	log.Println("Configuring the LLM clients")
	primary, err := llm.NewOpenAIClient(cfg.LLM.OpenAIAPIKey, cfg.LLM.OpenAIModel)
	if err != nil {
		log.Fatalf("FATAL: could not initialize primary LLM client: %v", err)
	}
	var fallback llm.LLMClient
	if cfg.LLM.OllamaBaseURL != "" {
		ollama, err := llm.NewOllamaClient(cfg.LLM.OllamaBaseURL, cfg.LLM.OllamaModel, cfg.LLM.Timeout)
		if err != nil {
			log.Fatalf("FATAL: could not initialize fallback LLM client: %v", err)
		}
		fallback = ollama
	} else {
		slog.Warn("no Ollama base URL configured, running without a fallback backend")
	}
	failover, err := llm.NewFailoverClient(primary, fallback, cfg.LLM.MaxRetries, logger)
	if err != nil {
		log.Fatalf("FATAL: could not build failover client: %v", err)
	}
	failover.OnFallback = metrics.FallbacksTotal.Inc

	// --- Pipeline and background sweeper ---
	p, err := pipeline.New(sessions, redactor, cipher, failover, recorder, logger)
	if err != nil {
		log.Fatalf("FATAL: could not build message pipeline: %v", err)
	}

	sweeper := session.NewSweeper(sessions, recorder, cfg.Session.SweepInterval, logger)
	sweeper.Start()
	defer sweeper.Stop()

	router := gin.Default()
	router.Use(otelgin.Middleware("assistant-service"))

	routes.SetupRoutes(router, routes.Deps{
		Sessions:       sessions,
		Pipeline:       p,
		Recorder:       recorder,
		Metrics:        metrics,
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
		RatePerSecond:  cfg.HTTP.RatePerSecond,
		RateBurst:      cfg.HTTP.RateBurst,
	})

	server := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Println("Starting the assistant server on", cfg.Server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	<-ctx.Done()
	slog.Info("shutdown signal received, draining requests")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown failed", "error", err)
	}
}
