package app

import (
	"context"
	"fmt"

	"github.com/upb/studygen/config"
	"github.com/upb/studygen/internal/observability"
	"github.com/upb/studygen/services/generation"
	"github.com/upb/studygen/services/providers"
	"github.com/upb/studygen/services/providers/ollama"
	"github.com/upb/studygen/services/providers/openai"
	"go.uber.org/zap"
)

// Dependencies holds all application dependencies.
// This is the central wiring point for dependency injection.
type Dependencies struct {
	// Infrastructure
	Config *config.Config
	Logger *zap.Logger

	// Provider clients, read-only after startup
	ProviderRegistry *providers.Registry

	// Default cascade and repair descriptor for requests that bring none
	Groups config.GroupsManifest

	// Metrics is nil when metrics are disabled
	Metrics *observability.Metrics

	// Tracing hands out a no-op tracer unless tracing is enabled
	Tracing *observability.Tracing

	Generation *generation.Service
}

// NewDependencies creates and wires up all application dependencies.
func NewDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config: cfg,
		Logger: logger,
	}

	if err := deps.initProviders(cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize providers: %w", err)
	}

	if err := deps.initGroups(cfg); err != nil {
		return nil, fmt.Errorf("failed to load provider groups: %w", err)
	}

	if err := deps.initTracing(ctx, cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize tracing: %w", err)
	}

	deps.initGeneration(cfg)

	logger.Info("all dependencies initialized successfully",
		zap.Strings("providers", deps.ProviderRegistry.Names()),
		zap.Int("provider_groups", len(deps.Groups.Groups)))
	return deps, nil
}

// initProviders builds the client registry from configuration
func (d *Dependencies) initProviders(cfg *config.Config) error {
	registry, err := NewProviderRegistry(cfg, d.Logger)
	if err != nil {
		return err
	}

	if registry.Count() == 0 {
		d.Logger.Warn("no LLM providers configured")
	}

	d.ProviderRegistry = registry
	return nil
}

// initGroups loads the default cascade and warns about descriptors that name
// an unregistered client; those fail as ConfigError when a request reaches them.
func (d *Dependencies) initGroups(cfg *config.Config) error {
	manifest, err := cfg.ProviderGroups()
	if err != nil {
		return err
	}

	for _, g := range manifest.Groups {
		for _, desc := range g.Providers {
			if _, err := d.ProviderRegistry.Client(desc.Name); err != nil {
				d.Logger.Warn("provider group references an unregistered provider",
					zap.String("group", g.Name),
					zap.String("provider", desc.Name))
			}
		}
	}
	if manifest.Repair != nil {
		d.Logger.Info("secondary repair enabled",
			zap.String("provider", manifest.Repair.Name),
			zap.String("model", manifest.Repair.Model))
	}

	d.Groups = manifest
	return nil
}

// initTracing installs the OpenTelemetry provider when enabled
func (d *Dependencies) initTracing(ctx context.Context, cfg *config.Config) error {
	o := cfg.Observability
	tracing, err := observability.NewTracing(ctx, observability.TracingConfig{
		Enabled:     o.TracingEnabled,
		ServiceName: "studygen-api",
		Endpoint:    o.TracingEndpoint,
		SampleRatio: o.TracingSampleRatio,
	})
	if err != nil {
		return err
	}

	if tracing.Enabled() {
		d.Logger.Info("tracing enabled",
			zap.String("endpoint", o.TracingEndpoint),
			zap.Float64("sample_ratio", o.TracingSampleRatio))
	}
	d.Tracing = tracing
	return nil
}

// initGeneration builds the orchestrator with its metrics recorder and tracer
func (d *Dependencies) initGeneration(cfg *config.Config) {
	g := cfg.Generation
	svcConfig := generation.Config{
		SafetyMargin:       g.SafetyMargin,
		AttemptCeiling:     g.AttemptCeiling,
		FastAttemptCeiling: g.FastAttemptCeiling,
		AttemptFloor:       g.AttemptFloor,
		FastMaxTokens:      g.FastMaxTokens,
		RepairMinBudget:    g.RepairMinBudget,
		RepairCeiling:      g.RepairCeiling,
	}

	opts := []generation.Option{generation.WithTracer(d.Tracing.Tracer())}
	if cfg.Observability.MetricsEnabled {
		d.Metrics = observability.NewMetrics()
		opts = append(opts, generation.WithRecorder(d.Metrics))
	}

	d.Generation = generation.NewService(svcConfig, d.ProviderRegistry, d.Logger.Named("generation"), opts...)
}

// NewProviderRegistry registers a client for every configured provider
func NewProviderRegistry(cfg *config.Config, logger *zap.Logger) (*providers.Registry, error) {
	registry := providers.NewRegistry()

	// OpenAI is always registered. Without a key every call fails fast with
	// MISSING_API_KEY, which surfaces as a ConfigError when a cascade reaches it.
	oa := cfg.Providers.OpenAI
	pc := providers.DefaultProviderConfig()
	pc.APIKey = oa.APIKey
	pc.BaseURL = oa.BaseURL
	pc.Timeout = oa.Timeout
	pc.RequestsPerSecond = oa.RequestsPerSecond
	pc.Burst = oa.Burst

	if err := registry.Register(openai.NewOpenAIAdapter(pc)); err != nil {
		return nil, err
	}
	if oa.APIKey == "" {
		logger.Warn("OpenAI provider registered without an API key")
	} else {
		logger.Info("registered OpenAI provider",
			zap.String("model", oa.Model),
			zap.Float64("requests_per_second", oa.RequestsPerSecond))
	}

	// Register the local Ollama daemon if enabled
	if ol := cfg.Providers.Ollama; ol.Enabled {
		pc := providers.DefaultProviderConfig()
		pc.BaseURL = ol.BaseURL
		pc.Timeout = ol.Timeout

		if err := registry.Register(ollama.NewOllamaAdapter(pc)); err != nil {
			return nil, err
		}
		logger.Info("registered Ollama provider",
			zap.String("base_url", ol.BaseURL),
			zap.String("model", ol.Model))
	}

	return registry, nil
}

// Ready reports whether a request could be served at all
func (d *Dependencies) Ready() bool {
	if d.ProviderRegistry == nil || d.ProviderRegistry.Count() == 0 {
		return false
	}
	for _, g := range d.Groups.Groups {
		if len(g.Providers) > 0 {
			return true
		}
	}
	return false
}

// Close gracefully shuts down all dependencies
func (d *Dependencies) Close(ctx context.Context) error {
	d.Logger.Info("shutting down dependencies")

	var err error
	if d.Tracing != nil {
		if err = d.Tracing.Shutdown(ctx); err != nil {
			d.Logger.Error("failed to flush traces", zap.Error(err))
		}
	}

	// Sync logger
	if d.Logger != nil {
		_ = d.Logger.Sync()
	}

	return err
}
