// Copyright (C) 2025 NexusMind AI (engineering@nexusmind.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package server assembles the identity governance HTTP service: the
// manager, its storage collaborator, the invariant engine, and the gin
// router with tracing and metrics.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/NexusMindAI/NexusIdentity/services/identity"
	"github.com/NexusMindAI/NexusIdentity/services/identity/server/middleware"
	"github.com/NexusMindAI/NexusIdentity/services/identity/server/routes"
	"github.com/NexusMindAI/NexusIdentity/services/identity/storage"
	"github.com/NexusMindAI/NexusIdentity/services/identity/storage/badgerstore"
)

// serviceName identifies this service in traces and logs.
const serviceName = "identity-service"

// Config configures the identity service.
type Config struct {
	// Port is the HTTP listen port.
	Port int

	// DataDir is the directory for durable timeline storage. Empty
	// keeps timelines in memory only.
	DataDir string

	// MaxRetained is the per-key rotation limit (0 = retain all).
	MaxRetained int

	// Policy selects the LatestApproved acceptance threshold.
	Policy identity.ApprovalPolicy

	// OTelEndpoint is the OTLP gRPC collector address. Empty disables
	// distributed tracing.
	OTelEndpoint string

	// Logger for service lifecycle events. Default: slog.Default().
	Logger *slog.Logger
}

// Service is the running identity governance service.
type Service struct {
	config        Config
	logger        *slog.Logger
	manager       *identity.IdentityManager
	engine        *identity.InvariantEngine
	store         *badgerstore.Store // nil when running in memory
	router        *gin.Engine
	tracerCleanup func(context.Context)
}

// New assembles a service from cfg.
//
// # Outputs
//
//   - *Service: ready to Run
//   - error: non-nil if storage cannot be opened, tracing cannot be
//     initialized, or the manager configuration is invalid
func New(cfg Config) (*Service, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{config: cfg, logger: logger}

	if cfg.OTelEndpoint != "" {
		cleanup, err := initTracer(cfg.OTelEndpoint)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize tracer: %w", err)
		}
		s.tracerCleanup = cleanup
	}

	var store identity.TimelineStore
	if cfg.DataDir != "" {
		bs, err := badgerstore.Open(badgerstore.Config{
			Path:       cfg.DataDir,
			SyncWrites: true,
			Logger:     logger,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to open timeline store: %w", err)
		}
		s.store = bs
		store = bs
		logger.Info("using durable timeline storage", "path", cfg.DataDir)
	} else {
		store = storage.NewMemoryStore()
		logger.Info("using in-memory timeline storage")
	}

	s.engine = identity.NewInvariantEngine(logger)

	mgrCfg := identity.DefaultManagerConfig()
	mgrCfg.Store = store
	mgrCfg.Logger = logger
	if cfg.MaxRetained > 0 {
		mgrCfg.MaxRetained = cfg.MaxRetained
	}
	if cfg.Policy != "" {
		mgrCfg.Policy = cfg.Policy
	}
	mgr, err := identity.NewIdentityManager(mgrCfg)
	if err != nil {
		s.Close()
		return nil, err
	}
	s.manager = mgr

	s.initRouter()
	return s, nil
}

// Run starts the HTTP server and blocks until it stops.
func (s *Service) Run() error {
	addr := fmt.Sprintf(":%d", s.config.Port)
	s.logger.Info("starting identity service", "addr", addr)
	defer s.Close()
	return s.router.Run(addr)
}

// Router returns the underlying gin engine for testing.
func (s *Service) Router() *gin.Engine {
	return s.router
}

// Manager returns the identity manager for embedding callers.
func (s *Service) Manager() *identity.IdentityManager {
	return s.manager
}

// Close releases the store and flushes the tracer.
func (s *Service) Close() {
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			s.logger.Warn("timeline store close error", "error", err)
		}
		s.store = nil
	}
	if s.tracerCleanup != nil {
		s.tracerCleanup(context.Background())
		s.tracerCleanup = nil
	}
}

// initRouter creates the gin engine, applies middleware, and registers
// all routes.
func (s *Service) initRouter() {
	s.router = gin.Default()
	s.router.Use(middleware.RequestID())
	if s.tracerCleanup != nil {
		s.router.Use(otelgin.Middleware(serviceName))
	}
	routes.SetupRoutes(s.router, s.manager, s.engine)
}

// initTracer initializes OpenTelemetry distributed tracing.
//
// Uses an insecure gRPC connection, appropriate for internal networks
// where the collector sits next to the service.
func initTracer(endpoint string) (func(context.Context), error) {
	ctx := context.Background()

	conn, err := grpc.NewClient(endpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("failed to create gRPC connection: %w", err)
	}

	traceExporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String(serviceName)))
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	bsp := sdktrace.NewBatchSpanProcessor(traceExporter)
	traceProvider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(bsp))

	otel.SetTracerProvider(traceProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{}))

	cleanup := func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, time.Second*5)
		defer cancel()
		if err := traceExporter.Shutdown(ctx); err != nil {
			slog.Error("failed to shutdown OTLP exporter", "error", err)
		}
	}
	return cleanup, nil
}
