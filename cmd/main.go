package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"go.uber.org/dig"
	"go.uber.org/zap"

	"github.com/davidbz/studygate/internal/attachment"
	"github.com/davidbz/studygate/internal/auth"
	"github.com/davidbz/studygate/internal/completion"
	"github.com/davidbz/studygate/internal/config"
	"github.com/davidbz/studygate/internal/domain"
	"github.com/davidbz/studygate/internal/http"
	"github.com/davidbz/studygate/internal/http/middleware"
	"github.com/davidbz/studygate/internal/observability"
	"github.com/davidbz/studygate/internal/provider/echo"
	"github.com/davidbz/studygate/internal/provider/gemini"
	"github.com/davidbz/studygate/internal/provider/groq"
	"github.com/davidbz/studygate/internal/provider/openai"
	"github.com/davidbz/studygate/internal/provider/registry"
	"github.com/davidbz/studygate/internal/quota"
	"github.com/davidbz/studygate/internal/storage/memory"
	"github.com/davidbz/studygate/internal/storage/postgres"
	"github.com/davidbz/studygate/internal/title"
)

// store is what the gateway needs from a storage backend.
type store interface {
	domain.ChatRepository
	attachment.Source
}

// closer releases a storage backend on shutdown.
type closer func()

func main() {
	container := buildContainer()

	err := container.Invoke(run)
	if err != nil {
		log.Fatalf("Failed to start application: %v", err)
	}
}

func run(
	server *http.Server,
	serverCfg *config.ServerConfig,
	titles *title.Generator,
	release closer,
	logger *zap.Logger,
) error {
	defer release()
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(),
		time.Duration(serverCfg.ShutdownTimeout)*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	titles.Wait()

	return <-errCh
}

func buildContainer() *dig.Container {
	container := dig.New()

	// Configuration
	if err := container.Provide(config.Load); err != nil {
		log.Fatalf("Failed to provide config: %v", err)
	}
	if err := container.Provide(config.ParseDependenciesConfig); err != nil {
		log.Fatalf("Failed to provide config dependencies: %v", err)
	}

	// Observability
	if err := container.Provide(observability.InitLogger); err != nil {
		log.Fatalf("Failed to provide logger: %v", err)
	}

	// Pricing
	if err := container.Provide(func() (domain.PricingRegistry, error) {
		ctx := context.Background()
		pricing := domain.NewInMemoryPricingRegistry()

		for _, register := range []func(context.Context, domain.PricingRegistry) error{
			gemini.RegisterPricing,
			groq.RegisterPricing,
			openai.RegisterPricing,
			echo.RegisterPricing,
		} {
			if err := register(ctx, pricing); err != nil {
				return nil, err
			}
		}

		return pricing, nil
	}); err != nil {
		log.Fatalf("Failed to provide pricing registry: %v", err)
	}
	if err := container.Provide(func(pricing domain.PricingRegistry) domain.CostCalculator {
		return domain.NewStandardCostCalculator(pricing)
	}); err != nil {
		log.Fatalf("Failed to provide cost calculator: %v", err)
	}

	// Providers and fallback chain
	if err := container.Provide(provideChain); err != nil {
		log.Fatalf("Failed to provide provider chain: %v", err)
	}

	// Storage
	if err := container.Provide(provideStore); err != nil {
		log.Fatalf("Failed to provide store: %v", err)
	}
	if err := container.Provide(func(s store) domain.ChatRepository { return s }); err != nil {
		log.Fatalf("Failed to provide chat repository: %v", err)
	}

	// Quota
	if err := container.Provide(func(cfg *quota.Config) domain.QuotaLimiter {
		if cfg.RedisAddr != "" {
			return quota.NewRedisLimiter(quota.NewRedisClient(*cfg), cfg.DailyLimit)
		}
		return quota.NewMemoryLimiter(cfg.DailyLimit)
	}); err != nil {
		log.Fatalf("Failed to provide quota limiter: %v", err)
	}

	// Attachments and titles
	if err := container.Provide(func(s store, cfg *attachment.Config) domain.AttachmentResolver {
		return attachment.NewResolver(s, *cfg)
	}); err != nil {
		log.Fatalf("Failed to provide attachment resolver: %v", err)
	}
	if err := container.Provide(func(
		chain *domain.ProviderChain,
		repo domain.ChatRepository,
		cfg *title.Config,
	) *title.Generator {
		return title.NewGenerator(chain, repo, *cfg)
	}); err != nil {
		log.Fatalf("Failed to provide title generator: %v", err)
	}

	// Domain Services
	if err := container.Provide(func(
		chain *domain.ProviderChain,
		repo domain.ChatRepository,
		resolver domain.AttachmentResolver,
		limiter domain.QuotaLimiter,
		titles *title.Generator,
		costs domain.CostCalculator,
		cfg *completion.Config,
	) *completion.Service {
		return completion.NewService(chain, repo, resolver, limiter, titles, costs, *cfg)
	}); err != nil {
		log.Fatalf("Failed to provide completion service: %v", err)
	}

	// HTTP Layer
	if err := container.Provide(func(service *completion.Service, chain *domain.ProviderChain) *http.Handler {
		return http.NewHandler(service, chain)
	}); err != nil {
		log.Fatalf("Failed to provide HTTP handler: %v", err)
	}
	if err := container.Provide(func(cfg *auth.Config) *auth.Authenticator {
		return auth.NewAuthenticator(*cfg)
	}); err != nil {
		log.Fatalf("Failed to provide authenticator: %v", err)
	}
	if err := container.Provide(middleware.BuildMiddlewareChain); err != nil {
		log.Fatalf("Failed to provide middleware chain: %v", err)
	}
	if err := container.Provide(http.NewServer); err != nil {
		log.Fatalf("Failed to provide HTTP server: %v", err)
	}

	return container
}

// provideChain registers every adapter and orders them by the configured
// chain. Adapters without credentials stay in the chain and are skipped as
// unavailable at request time.
func provideChain(
	logger *zap.Logger,
	chainCfg *config.ChainConfig,
	geminiCfg *gemini.Config,
	groqCfg *groq.Config,
	openaiCfg *openai.Config,
	echoCfg *echo.Config,
) (*domain.ProviderChain, error) {
	ctx := context.Background()
	reg := registry.NewRegistry()

	adapters := []domain.Adapter{
		gemini.NewProvider(*geminiCfg),
		groq.NewProvider(*groqCfg),
		openai.NewProvider(*openaiCfg),
	}
	if echoCfg.Enabled {
		adapters = append(adapters, echo.NewProvider())
	}

	for _, adapter := range adapters {
		if err := reg.Register(ctx, adapter); err != nil {
			return nil, fmt.Errorf("failed to register %s provider: %w", adapter.Name(), err)
		}
		if !adapter.Available() {
			logger.Warn("provider has no credentials", observability.String("provider", adapter.Name()))
		}
	}

	order := slices.Clone(chainCfg.ProviderOrder)
	if echoCfg.Enabled && !slices.Contains(order, "echo") {
		order = append(order, "echo")
	}

	chain := domain.NewProviderChain(reg.Ordered(ctx, order))
	logger.Info("provider chain ready", observability.Strings("providers", chain.Providers()))

	return chain, nil
}

// provideStore selects PostgreSQL when a DSN is configured, memory otherwise.
func provideStore(logger *zap.Logger, cfg *postgres.Config) (store, closer, error) {
	ctx := context.Background()

	if cfg.DSN == "" {
		logger.Info("using in-memory store")
		return memory.NewStore(), func() {}, nil
	}

	pg, err := postgres.New(ctx, *cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open postgres store: %w", err)
	}
	logger.Info("using postgres store")

	return pg, pg.Close, nil
}
