package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/queryhawk/queryhawk/internal/catalog"
	"github.com/queryhawk/queryhawk/internal/compiler"
	"github.com/queryhawk/queryhawk/internal/diagnostics"
	"github.com/queryhawk/queryhawk/internal/events"
	"github.com/queryhawk/queryhawk/internal/handler"
	"github.com/queryhawk/queryhawk/internal/middleware"
	"github.com/queryhawk/queryhawk/internal/pipeline"
	"github.com/queryhawk/queryhawk/internal/planner"
	"github.com/queryhawk/queryhawk/internal/quota"
	"github.com/queryhawk/queryhawk/internal/resolver"
	"github.com/queryhawk/queryhawk/internal/results"
	"github.com/queryhawk/queryhawk/internal/safety"
	"github.com/queryhawk/queryhawk/internal/warehouse"
)

func (s *Server) setupRoutes() (http.Handler, error) {
	cfg := s.cfg
	ctx := context.Background()

	cat, err := catalog.Load(cfg.CatalogPath)
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}

	wh, err := s.buildWarehouse(ctx)
	if err != nil {
		return nil, err
	}

	quotas, err := s.buildQuotaService(ctx)
	if err != nil {
		return nil, err
	}

	eventSource, err := s.buildEventSource(wh)
	if err != nil {
		return nil, err
	}

	var generator compiler.Generator
	if cfg.UseLLM && cfg.AnthropicAPIKey != "" {
		generator = compiler.NewLLMGenerator(cfg.AnthropicAPIKey, cfg.AnthropicModel, cfg.AnthropicBaseURL)
	}

	orch := pipeline.New(
		resolver.New(cat),
		planner.New(cat, nil, planner.Options{
			FuzzyThreshold: cfg.FuzzyThreshold,
			StrictJoins:    cfg.StrictJoins,
		}),
		compiler.New(generator, compiler.NewValidator(nil)),
		safety.New(wh, quotas, safety.Limits{
			MaxRows:      cfg.MaxRows,
			MaxCostUnits: cfg.MaxCostUnits,
		}),
		diagnostics.New(wh, eventSource, cat),
		wh,
		results.NewProcessor(results.Format(cfg.DefaultResponseFormat)),
	)
	orch.SetAuditor(pipeline.NewAuditor(cfg.EnableAudit))

	log.Info().
		Str("warehouse", cfg.WarehouseBackend).
		Str("quota", cfg.QuotaBackend).
		Str("events", cfg.EventsBackend).
		Bool("llm_generator", generator != nil).
		Bool("auth_enabled", cfg.EnableAuth && len(cfg.APIKeys) > 0).
		Msg("service configuration")

	if cfg.EnableAuth && len(cfg.APIKeys) == 0 {
		log.Warn().Msg("auth enabled but no API keys configured - all API requests will be rejected")
	}

	askH := handler.NewAskHandler(orch)
	healthH := handler.NewHealthHandler(map[string]handler.HealthChecker{
		"warehouse": warehouseCheck(wh),
	})

	r := chi.NewRouter()

	r.Use(middleware.Recovery)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logging)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.CORS(middleware.DefaultCORSConfig(cfg.CORSOrigins)))
	r.Use(chiMiddleware.RealIP)

	r.Get("/health", healthH.Health)
	r.Get("/", healthH.Health)

	r.Group(func(r chi.Router) {
		r.Use(middleware.RateLimit(cfg.RateLimitPerMinute))
		if cfg.EnableAuth && len(cfg.APIKeys) > 0 {
			r.Use(middleware.Auth(cfg.APIKeys, cfg.APIKeyHeader))
		}

		r.Route(cfg.APIPrefix, func(r chi.Router) {
			r.Post("/ask", askH.Ask)
		})
	})

	return r, nil
}

func (s *Server) buildWarehouse(ctx context.Context) (warehouse.Warehouse, error) {
	cfg := s.cfg
	switch cfg.WarehouseBackend {
	case "bigquery":
		bq, err := warehouse.NewBigQuery(ctx, cfg.GCPProjectID, cfg.GoogleApplicationCredentials, 0)
		if err != nil {
			return nil, fmt.Errorf("bigquery warehouse: %w", err)
		}
		s.onShutdown("bigquery", bq.Close)
		return bq, nil
	case "rest", "":
		if cfg.WarehouseURL == "" {
			return nil, fmt.Errorf("warehouse_url is required for the rest backend")
		}
		return warehouse.NewClient(warehouse.ClientConfig{
			BaseURL: cfg.WarehouseURL,
			Token:   cfg.WarehouseToken,
		}), nil
	default:
		return nil, fmt.Errorf("unknown warehouse backend %q", cfg.WarehouseBackend)
	}
}

func (s *Server) buildQuotaService(ctx context.Context) (quota.Service, error) {
	cfg := s.cfg
	switch cfg.QuotaBackend {
	case "postgres":
		pg, err := quota.NewPostgres(ctx, cfg.QuotaPostgresDSN, cfg.QuotaDailyLimit)
		if err != nil {
			return nil, fmt.Errorf("postgres quota store: %w", err)
		}
		s.onShutdown("quota store", func() error { pg.Close(); return nil })
		return pg, nil
	case "memory", "":
		return quota.NewMemory(cfg.QuotaDailyLimit, 0), nil
	default:
		return nil, fmt.Errorf("unknown quota backend %q", cfg.QuotaBackend)
	}
}

func (s *Server) buildEventSource(wh warehouse.Warehouse) (events.Source, error) {
	cfg := s.cfg
	switch cfg.EventsBackend {
	case "elasticsearch":
		es, err := events.NewElasticsearch(cfg.ElasticsearchAddrs, cfg.ElasticsearchUser, cfg.ElasticsearchPassword, "")
		if err != nil {
			return nil, fmt.Errorf("elasticsearch event source: %w", err)
		}
		return es, nil
	case "warehouse", "":
		return events.NewWarehouseSource(wh), nil
	default:
		return nil, fmt.Errorf("unknown events backend %q", cfg.EventsBackend)
	}
}

// warehouseCheck probes connectivity with a trivial query.
func warehouseCheck(wh warehouse.Warehouse) handler.HealthChecker {
	return func(ctx context.Context) error {
		_, err := wh.Execute(ctx, "SELECT 1")
		return err
	}
}
