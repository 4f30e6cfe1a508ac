package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/pubsub"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/plateful/api/internal/di"
	"github.com/plateful/api/internal/handlers"
	"github.com/plateful/api/internal/payments"
	"github.com/plateful/api/internal/platform/auth"
	"github.com/plateful/api/internal/platform/config"
	pfirestore "github.com/plateful/api/internal/platform/firestore"
	"github.com/plateful/api/internal/platform/idempotency"
	"github.com/plateful/api/internal/platform/jobs"
	"github.com/plateful/api/internal/platform/observability"
	"github.com/plateful/api/internal/platform/secrets"
	"github.com/plateful/api/internal/repositories"
	firestoreRepo "github.com/plateful/api/internal/repositories/firestore"
	"github.com/plateful/api/internal/services"
)

func main() {
	ctx := context.Background()
	startedAt := time.Now().UTC()

	baseLogger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()

	logger := baseLogger.Named("api")
	ctx = observability.WithLogger(ctx, logger)

	fetcher, err := newSecretFetcher(ctx, logger)
	if err != nil {
		logger.Fatal("failed to initialise secret fetcher", zap.Error(err))
	}
	defer func() {
		if err := fetcher.Close(); err != nil {
			logger.Warn("secret fetcher close error", zap.Error(err))
		}
	}()

	cfg, err := config.Load(ctx,
		config.WithSecretResolver(config.SecretResolverFunc(fetcher.Resolve)),
	)
	if err != nil {
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	buildInfo := buildInfoFromEnv(startedAt)

	firestoreProvider := pfirestore.NewProvider(cfg.Firestore)
	firestoreClient, err := firestoreProvider.Client(ctx)
	if err != nil {
		logger.Fatal("failed to initialise firestore client", zap.Error(err))
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := firestoreProvider.Close(closeCtx); err != nil {
			logger.Warn("firestore close error", zap.Error(err))
		}
	}()

	pubsubClient, err := pubsub.NewClient(ctx, eventsProjectID(cfg))
	if err != nil {
		logger.Fatal("failed to initialise pubsub client", zap.Error(err))
	}
	defer func() {
		if err := pubsubClient.Close(); err != nil {
			logger.Warn("pubsub close error", zap.Error(err))
		}
	}()
	orderTopic := pubsubClient.Topic(cfg.Events.OrderTopic)
	defer orderTopic.Stop()

	eventPublisher, err := jobs.NewPubSubOrderEventPublisher(orderTopic)
	if err != nil {
		logger.Fatal("failed to initialise order event publisher", zap.Error(err))
	}

	paystackLogger := logger.Named("paystack")
	paystackProvider, err := payments.NewPaystackProvider(payments.PaystackConfig{
		SecretKey: cfg.Paystack.SecretKey,
		BaseURL:   cfg.Paystack.BaseURL,
		Timeout:   cfg.Paystack.Timeout,
		Logger: func(ctx context.Context, event string, fields map[string]any) {
			zFields := make([]zap.Field, 0, len(fields)+1)
			zFields = append(zFields, zap.String("event", event))
			for k, v := range fields {
				zFields = append(zFields, zap.Any(k, v))
			}
			paystackLogger.Debug("paystack log", zFields...)
		},
	})
	if err != nil {
		logger.Fatal("failed to initialise paystack provider", zap.Error(err))
	}

	orderRepo, err := firestoreRepo.NewOrderRepository(firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise order repository", zap.Error(err))
	}
	sharedCartRepo, err := firestoreRepo.NewSharedCartRepository(firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise shared cart repository", zap.Error(err))
	}
	promotionRepo, err := firestoreRepo.NewPromotionRepository(firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise promotion repository", zap.Error(err))
	}
	zoneRepo, err := firestoreRepo.NewDeliveryZoneRepository(firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise delivery zone repository", zap.Error(err))
	}
	counterRepo, err := firestoreRepo.NewCounterRepository(firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise counter repository", zap.Error(err))
	}

	healthRepo, err := newHealthRepository(firestoreClient, orderTopic)
	if err != nil {
		logger.Warn("health: dependency checks init failed", zap.Error(err))
	}

	registry, err := firestoreRepo.NewRegistry(firestoreProvider, firestoreRepo.RegistryDeps{
		Orders:        orderRepo,
		SharedCarts:   sharedCartRepo,
		Promotions:    promotionRepo,
		DeliveryZones: zoneRepo,
		Counters:      counterRepo,
		Health:        healthRepo,
	})
	if err != nil {
		logger.Fatal("failed to initialise repository registry", zap.Error(err))
	}

	container, err := di.NewContainer(ctx, cfg, registry, di.ContainerDeps{
		PaymentProvider: paystackProvider,
		Events:          eventPublisher,
		Build:           buildInfo,
		Logger:          logger,
	})
	if err != nil {
		logger.Fatal("failed to initialise service container", zap.Error(err))
	}

	firebaseVerifier, err := auth.NewFirebaseVerifier(ctx, cfg.Firebase)
	if err != nil {
		logger.Fatal("failed to initialise firebase verifier", zap.Error(err))
	}
	authenticator := auth.NewAuthenticator(firebaseVerifier, auth.WithUserGetter(firebaseVerifier))

	idempotencyStore := idempotency.NewFirestoreStore(firestoreClient)
	idempotencyMiddleware := idempotency.Middleware(
		idempotencyStore,
		idempotency.WithHeader(cfg.Idempotency.Header),
		idempotency.WithTTL(cfg.Idempotency.TTL),
		idempotency.WithLogger(observability.NewPrintfAdapter(logger.Named("idempotency"))),
	)

	backgroundCtx, backgroundCancel := context.WithCancel(context.Background())
	var backgroundWG sync.WaitGroup

	var cleanupTicker *time.Ticker
	if cfg.Idempotency.CleanupInterval > 0 {
		cleanupTicker = time.NewTicker(cfg.Idempotency.CleanupInterval)
		backgroundWG.Add(1)
		go func() {
			defer backgroundWG.Done()
			cleanupLogger := logger.Named("idempotency")
			for {
				select {
				case <-cleanupTicker.C:
					runCtx, cancel := context.WithTimeout(backgroundCtx, time.Minute)
					removed, err := idempotencyStore.CleanupExpired(runCtx, time.Now().UTC(), cfg.Idempotency.CleanupBatchSize)
					cancel()
					if err != nil {
						cleanupLogger.Error("idempotency cleanup error", zap.Error(err))
						continue
					}
					if removed > 0 {
						cleanupLogger.Info("idempotency cleanup removed records", zap.Int("count", removed))
					}
				case <-backgroundCtx.Done():
					return
				}
			}
		}()
	}

	var reaperTicker *time.Ticker
	if cfg.SharedCarts.ReapInterval > 0 {
		reaperTicker = time.NewTicker(cfg.SharedCarts.ReapInterval)
		backgroundWG.Add(1)
		go func() {
			defer backgroundWG.Done()
			reaperLogger := logger.Named("group_carts")
			for {
				select {
				case <-reaperTicker.C:
					runCtx, cancel := context.WithTimeout(backgroundCtx, time.Minute)
					expired, err := container.Services.SharedCarts.ReapExpired(runCtx)
					cancel()
					if err != nil {
						reaperLogger.Error("shared cart reap error", zap.Error(err))
						continue
					}
					if expired > 0 {
						reaperLogger.Info("shared cart reaper expired carts", zap.Int("count", expired))
					}
				case <-backgroundCtx.Done():
					return
				}
			}
		}()
	}

	orderHandlers := handlers.NewOrderHandlers(authenticator, container.Services.Checkout, container.Services.Orders)
	groupCartHandlers := handlers.NewGroupCartHandlers(authenticator, container.Services.SharedCarts)
	paymentHandlers := handlers.NewPaymentHandlers(authenticator, container.Services.Payments)
	adminOrderHandlers := handlers.NewAdminOrderHandlers(authenticator, container.Services.Orders)
	webhookHandlers := handlers.NewWebhookHandlers(container.Services.Payments)

	healthHandlers := handlers.NewHealthHandlers(
		handlers.WithHealthBuildInfo(buildInfo),
		handlers.WithHealthSystemService(container.Services.System),
	)

	projectID := traceProjectID(cfg)
	middlewares := []func(http.Handler) http.Handler{
		observability.InjectLoggerMiddleware(logger.Named("http")),
		observability.TraceMiddleware(projectID),
		observability.RecoveryMiddleware(logger.Named("http")),
		observability.RequestLoggerMiddleware(projectID),
	}

	var opts []handlers.Option
	opts = append(opts, handlers.WithMiddlewares(middlewares...))
	opts = append(opts, handlers.WithHealthHandlers(healthHandlers))
	opts = append(opts, handlers.WithOrderRoutes(func(r chi.Router) {
		r.Use(idempotencyMiddleware)
		orderHandlers.Routes(r)
	}))
	opts = append(opts, handlers.WithGroupCartRoutes(func(r chi.Router) {
		r.Use(idempotencyMiddleware)
		groupCartHandlers.Routes(r)
	}))
	opts = append(opts, handlers.WithPaymentRoutes(paymentHandlers.Routes))
	opts = append(opts, handlers.WithAdminRoutes(adminOrderHandlers.Routes))
	opts = append(opts, handlers.WithWebhookRoutes(webhookHandlers.Routes))

	router := handlers.NewRouter(opts...)
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	serverLogger := logger.Named("http").With(zap.String("addr", server.Addr))
	go func() {
		serverLogger.Info("plateful api listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdown
	logger.Info("shutdown signal received; draining requests")

	if cleanupTicker != nil {
		cleanupTicker.Stop()
	}
	if reaperTicker != nil {
		reaperTicker.Stop()
	}
	backgroundCancel()
	backgroundWG.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

func buildInfoFromEnv(started time.Time) services.BuildInfo {
	version := strings.TrimSpace(os.Getenv("API_BUILD_VERSION"))
	if version == "" {
		version = "dev"
	}
	commit := strings.TrimSpace(os.Getenv("API_BUILD_COMMIT_SHA"))
	if commit == "" {
		commit = "unknown"
	}
	environment := strings.TrimSpace(os.Getenv("API_ENVIRONMENT"))
	if environment == "" {
		environment = "local"
	}
	return services.BuildInfo{
		Version:     version,
		CommitSHA:   commit,
		Environment: environment,
		StartedAt:   started,
	}
}

func newHealthRepository(client *firestore.Client, topic *pubsub.Topic) (repositories.HealthRepository, error) {
	checks := make([]repositories.DependencyCheck, 0, 2)
	if client != nil {
		c := client
		checks = append(checks, repositories.DependencyCheck{
			Name:    "firestore",
			Timeout: 1500 * time.Millisecond,
			Check: func(ctx context.Context) error {
				iter := c.Collections(ctx)
				_, err := iter.Next()
				if errors.Is(err, iterator.Done) {
					return nil
				}
				return err
			},
		})
	}
	if topic != nil {
		t := topic
		checks = append(checks, repositories.DependencyCheck{
			Name:    "pubsub",
			Timeout: time.Second,
			Check: func(ctx context.Context) error {
				ok, err := t.Exists(ctx)
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("topic %s not found", t.ID())
				}
				return nil
			},
		})
	}
	if len(checks) == 0 {
		return nil, errors.New("health: no dependency checks configured")
	}
	return repositories.NewDependencyHealthRepository(checks)
}

func eventsProjectID(cfg config.Config) string {
	if id := strings.TrimSpace(cfg.Events.ProjectID); id != "" {
		return id
	}
	return traceProjectID(cfg)
}

func traceProjectID(cfg config.Config) string {
	if id := strings.TrimSpace(cfg.Firebase.ProjectID); id != "" {
		return id
	}
	return strings.TrimSpace(cfg.Firestore.ProjectID)
}

func newSecretFetcher(ctx context.Context, logger *zap.Logger) (*secrets.Fetcher, error) {
	lookup := func(key string) string {
		return strings.TrimSpace(os.Getenv(key))
	}

	envLabel := strings.ToLower(lookup("API_ENVIRONMENT"))
	if envLabel == "" {
		envLabel = "local"
	}
	defaultProject := lookup("API_SECRET_DEFAULT_PROJECT_ID")
	if defaultProject == "" {
		defaultProject = lookup("API_FIREBASE_PROJECT_ID")
	}
	fallbackPath := lookup("API_SECRET_FALLBACK_FILE")
	if fallbackPath == "" {
		fallbackPath = ".secrets.local"
	}
	credentialsFile := lookup("API_FIREBASE_CREDENTIALS_FILE")

	opts := []secrets.Option{
		secrets.WithEnvironment(envLabel),
		secrets.WithLogger(logger.Named("secrets")),
		secrets.WithFallbackFile(fallbackPath),
	}
	if defaultProject != "" {
		opts = append(opts, secrets.WithDefaultProject(defaultProject))
	}
	if credentialsFile != "" {
		opts = append(opts, secrets.WithClientOptions(option.WithCredentialsFile(credentialsFile)))
	}

	return secrets.NewFetcher(ctx, opts...)
}
