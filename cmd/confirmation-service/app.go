package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"
	"go.mongodb.org/mongo-driver/mongo"
	mongooptions "go.mongodb.org/mongo-driver/mongo/options"
	"golang.org/x/sync/errgroup"

	"paypipe/internal/api"
	"paypipe/internal/audit"
	"paypipe/internal/config"
	"paypipe/internal/confirmation"
	"paypipe/internal/logger"
	"paypipe/internal/monitor"
	"paypipe/internal/notification"
	"paypipe/internal/receipt"
	"paypipe/internal/verification"
	"paypipe/pkg/circuitbreaker"
	"paypipe/pkg/health"
	"paypipe/pkg/metrics"
)

type App struct {
	Config *config.Config
	Logger logger.Logger

	redisClient *redis.Client
	mongoClient *mongo.Client
	auditRec    audit.Recorder
	dispatcher  *notification.Dispatcher
	store       *confirmation.Store
	monitor     *monitor.Monitor
	verifier    *verification.Service
	receipts    *receipt.Service
	server      *http.Server
}

func NewApp(cfg *config.Config, log logger.Logger) *App {
	if sugaredLogger, ok := log.(*logger.SugaredLogger); ok {
		sugaredLogger.SetServiceName("confirmation-service")
	}
	return &App{
		Config: cfg,
		Logger: log,
	}
}

func (a *App) Initialize(ctx context.Context) error {
	if err := a.initDatastores(ctx); err != nil {
		return fmt.Errorf("failed to initialize datastores: %w", err)
	}

	if err := a.initAudit(); err != nil {
		return fmt.Errorf("failed to initialize audit log: %w", err)
	}

	a.initNotification()
	a.initConfirmation()
	a.initMonitor()

	if err := a.initVerification(); err != nil {
		return fmt.Errorf("failed to initialize verification: %w", err)
	}

	a.initReceipts()

	metrics.RegisterConfirmationMetrics()
	metrics.RegisterNotificationMetrics()
	metrics.RegisterMonitorMetrics()
	metrics.RegisterVerificationMetrics()
	metrics.RegisterServerMetrics()
	if a.Config.CircuitBreaker.Enabled {
		metrics.RegisterCircuitBreakerMetrics()
	}

	a.initHTTPServer()
	return nil
}

func (a *App) initDatastores(ctx context.Context) error {
	if a.Config.Database.Redis.Host != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     fmt.Sprintf("%s:%d", a.Config.Database.Redis.Host, a.Config.Database.Redis.Port),
			Password: a.Config.Database.Redis.Password,
			DB:       a.Config.Database.Redis.DB,
		})

		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			return fmt.Errorf("failed to connect to Redis: %w", err)
		}
		a.redisClient = client
	}

	if a.Config.Database.MongoDB.URI != "" {
		connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()

		client, err := mongo.Connect(connectCtx, mongooptions.Client().ApplyURI(a.Config.Database.MongoDB.URI))
		if err != nil {
			return fmt.Errorf("failed to connect to MongoDB: %w", err)
		}
		if err := client.Ping(connectCtx, nil); err != nil {
			return fmt.Errorf("failed to ping MongoDB: %w", err)
		}
		a.mongoClient = client
	}

	return nil
}

func (a *App) initAudit() error {
	fileRec, err := audit.NewFileRecorder(a.Config.Audit.Path)
	if err != nil {
		return err
	}

	if a.Config.Broker.Kafka.Enabled {
		a.auditRec = audit.NewMultiRecorder(fileRec, audit.NewKafkaRecorder(a.Config.Broker.Kafka))
		return nil
	}
	a.auditRec = fileRec
	return nil
}

func (a *App) initNotification() {
	cfg := a.Config.Notification

	var transports []notification.Transport
	if cfg.Transport.PrimaryURL != "" {
		transports = append(transports, notification.NewHTTPTransport(
			"primary", cfg.Transport.PrimaryURL, cfg.Transport.PrimaryKey, cfg.Transport.Timeout))
	}
	if cfg.Transport.SecondaryURL != "" {
		transports = append(transports, notification.NewHTTPTransport(
			"secondary", cfg.Transport.SecondaryURL, cfg.Transport.SecondaryKey, cfg.Transport.Timeout))
	}
	if cfg.Transport.FallbackPath != "" {
		transports = append(transports, notification.NewFileTransport(cfg.Transport.FallbackPath))
	}

	renderer := notification.NewRenderer(cfg.AdminEmail, cfg.FromEmail)
	chain := notification.NewChainTransport(a.Logger, transports...)
	a.dispatcher = notification.NewDispatcher(cfg, chain, renderer, a.auditRec, a.Logger)
}

func (a *App) initConfirmation() {
	a.store = confirmation.NewStore(a.Config.Confirmation, a.dispatcher, a.auditRec, a.Logger)
}

func (a *App) initMonitor() {
	var breaker *circuitbreaker.Wrapper
	if a.Config.CircuitBreaker.Enabled {
		cb := a.Config.CircuitBreaker
		breaker = circuitbreaker.NewWrapper(circuitbreaker.Config{
			Name:        "status-source",
			MaxRequests: cb.MaxRequests,
			Interval:    cb.Interval,
			Timeout:     cb.Timeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
				return counts.Requests >= cb.MinRequests && failureRatio >= cb.FailureRatio
			},
		})
	}

	source := monitor.NewHTTPStatusSource(a.Config.Monitor.StatusURL, a.Config.Monitor.FetchTimeout, breaker, a.Logger)
	confirmer := &storeConfirmer{store: a.store}
	a.monitor = monitor.New(a.Config.Monitor, source, confirmer, a.auditRec, a.Logger)
}

func (a *App) initVerification() error {
	cfg := a.Config.Verification

	fraud, err := verification.NewCELFraudChecker(cfg.FraudExpression)
	if err != nil {
		return err
	}

	var dup verification.DuplicateChecker
	if a.redisClient != nil {
		dup = verification.NewRedisDuplicateChecker(a.redisClient, cfg.DuplicateTTL, a.Logger)
	} else {
		a.Logger.Warnw("Redis not configured, duplicate proof detection is per-process only")
		dup = verification.NewMemoryDuplicateChecker()
	}

	var charges verification.ChargeProvider
	if cfg.ChargeAPIURL != "" {
		charges = verification.NewHTTPChargeProvider(cfg.ChargeAPIURL, cfg.ChargeAPIKey, cfg.ProviderTimeout)
	}
	var orders verification.OrderProvider
	if cfg.OrderAPIURL != "" {
		orders = verification.NewHTTPOrderProvider(cfg.OrderAPIURL, cfg.OrderAPIKey, cfg.ProviderTimeout)
	}

	a.verifier = verification.NewService(cfg, charges, orders, fraud, dup, a.Logger)
	return nil
}

func (a *App) initReceipts() {
	var repo receipt.Repository
	if a.mongoClient != nil {
		repo = receipt.NewRepository(a.mongoClient.Database(a.Config.Database.MongoDB.Database))
	} else {
		a.Logger.Warnw("MongoDB not configured, receipts are kept in memory only")
		repo = receipt.NewMemoryRepository()
	}
	a.receipts = receipt.NewService(repo, a.Logger)
}

func (a *App) initHTTPServer() {
	healthRegistry := health.NewCheckerRegistry()
	if a.redisClient != nil {
		healthRegistry.Register(health.NewRedisChecker(a.redisClient))
	}
	if a.mongoClient != nil {
		healthRegistry.Register(health.NewMongoDBChecker(a.mongoClient))
	}
	healthRegistry.Register(health.NewComponentChecker("confirmation_store", func(ctx context.Context) error {
		stats := a.store.GetStats()
		if a.Config.Confirmation.QueueSize > 0 && stats.QueueDepth >= a.Config.Confirmation.QueueSize {
			return fmt.Errorf("confirmation queue is full: %d", stats.QueueDepth)
		}
		return nil
	}))

	handler := api.NewHandler(a.store, a.dispatcher, a.monitor, a.verifier, a.receipts, a.Logger)
	router := api.NewRouter(a.Config.Server, handler, healthRegistry, a.Logger)

	a.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", a.Config.Server.Port),
		Handler:      router,
		ReadTimeout:  a.Config.Server.ReadTimeout,
		WriteTimeout: a.Config.Server.WriteTimeout,
	}
}

func (a *App) Run(ctx context.Context) error {
	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.Logger.InfowCtx(ctx, "HTTP server starting", "port", a.Config.Server.Port)
		if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return a.server.Shutdown(shutdownCtx)
	})

	g.Go(func() error {
		return a.store.Run(gCtx)
	})

	g.Go(func() error {
		return a.store.RunSweep(gCtx)
	})

	g.Go(func() error {
		return a.dispatcher.Run(gCtx)
	})

	a.monitor.Start()
	g.Go(func() error {
		<-gCtx.Done()
		a.monitor.Stop()
		return gCtx.Err()
	})

	err := g.Wait()
	a.shutdown()
	return err
}

func (a *App) shutdown() {
	if a.auditRec != nil {
		if err := a.auditRec.Close(); err != nil {
			a.Logger.Warnw("failed to close audit recorder", "error", err)
		}
	}
	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			a.Logger.Warnw("failed to close Redis client", "error", err)
		}
	}
	if a.mongoClient != nil {
		disconnectCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.mongoClient.Disconnect(disconnectCtx); err != nil {
			a.Logger.Warnw("failed to disconnect MongoDB client", "error", err)
		}
	}
}

// storeConfirmer bridges the monitor's decision to the confirmation job
// store: an auto-confirmed payment becomes a confirmation job.
type storeConfirmer struct {
	store *confirmation.Store
}

func (c *storeConfirmer) Confirm(_ context.Context, payment monitor.PaymentSnapshot) error {
	_, err := c.store.Add(confirmation.Snapshot{
		PaymentID: payment.ID,
		Email:     payment.Email,
		Name:      payment.Name,
		Amount:    payment.Amount,
		Currency:  payment.Currency,
		Method:    payment.Method,
		Serial:    payment.Serial,
	})
	return err
}
