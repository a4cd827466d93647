package system

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/KevinKickass/OpenAssetCore/internal/analyzer"
	"github.com/KevinKickass/OpenAssetCore/internal/api/rest"
	"github.com/KevinKickass/OpenAssetCore/internal/api/websocket"
	"github.com/KevinKickass/OpenAssetCore/internal/auth"
	"github.com/KevinKickass/OpenAssetCore/internal/config"
	"github.com/KevinKickass/OpenAssetCore/internal/interfaces"
	"github.com/KevinKickass/OpenAssetCore/internal/ledger"
	"github.com/KevinKickass/OpenAssetCore/internal/notify"
	"github.com/KevinKickass/OpenAssetCore/internal/storage"
	"github.com/KevinKickass/OpenAssetCore/internal/workflow"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// HealthService is the gRPC health service name reported alongside "".
const HealthService = "openassetcore.AssetLifecycle"

type LifecycleManager struct {
	config        *config.Config
	store         storage.Store
	coordinator   *workflow.Coordinator
	analyzer      *analyzer.Service
	authenticator *auth.Authenticator
	wsHub         *websocket.Hub
	rabbit        *notify.RabbitPublisher
	notifiers     []string
	logger        *zap.Logger

	restServer   *rest.Server
	grpcServer   *grpc.Server
	healthServer *health.Server
	grpcAddr     net.Addr
	hubCancel    context.CancelFunc

	stateMu      sync.RWMutex
	currentState SystemState
	lastError    error
	startedAt    time.Time

	shutdownOnce sync.Once
}

// NewLifecycleManager opens the store, applies seed data and wires every component.
func NewLifecycleManager(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*LifecycleManager, error) {
	store, err := openStore(ctx, cfg.Database, logger)
	if err != nil {
		return nil, err
	}

	lm := &LifecycleManager{
		config:        cfg,
		store:         store,
		authenticator: auth.NewAuthenticator(cfg.Auth),
		logger:        logger,
		currentState:  StateInitializing,
	}
	if !cfg.Auth.IsProductionReady() {
		logger.Warn("JWT secret is the development default or shorter than 32 characters")
	}

	dispatcher, err := lm.buildDispatchers()
	if err != nil {
		store.Close()
		return nil, err
	}

	l := ledger.New(store, logger)
	lm.analyzer = analyzer.NewService(store, analyzer.ThresholdsFrom(cfg.Analyzer), logger)
	lm.coordinator = workflow.New(store, l, dispatcher, lm.analyzer, logger)

	return lm, nil
}

func openStore(ctx context.Context, cfg config.DatabaseConfig, logger *zap.Logger) (storage.Store, error) {
	var store storage.Store
	switch cfg.Driver {
	case "memory":
		store = storage.NewMemoryStore()
		logger.Info("Using in-memory store")
	case "postgres":
		db, err := storage.NewPostgresClient(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		if err := db.Migrate(ctx); err != nil {
			db.Close()
			return nil, err
		}
		store = db
		logger.Info("Database connected successfully",
			zap.String("host", cfg.Host),
			zap.String("database", cfg.Database))
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}

	if cfg.SeedFile != "" {
		seed, err := storage.LoadSeed(ctx, store, cfg.SeedFile)
		if err != nil {
			store.Close()
			return nil, err
		}
		logger.Info("Seed data loaded",
			zap.String("file", cfg.SeedFile),
			zap.Int("users", len(seed.Users)),
			zap.Int("devices", len(seed.Devices)))
	}
	return store, nil
}

// buildDispatchers fans notifications out to the log and every enabled channel.
func (lm *LifecycleManager) buildDispatchers() (notify.Dispatcher, error) {
	cfg := lm.config.Notify
	dispatchers := notify.Multi{notify.NewLogDispatcher(lm.logger)}
	lm.notifiers = []string{"log"}

	if cfg.Websocket.Enabled {
		lm.wsHub = websocket.NewHub(lm.logger, lm.authenticator)
		dispatchers = append(dispatchers, lm.wsHub)
		lm.notifiers = append(lm.notifiers, "websocket")
	}

	if cfg.RabbitMQ.Enabled {
		publisher, err := notify.NewRabbitPublisher(cfg.RabbitMQ.URL, cfg.RabbitMQ.Exchange,
			cfg.RabbitMQ.Encoding, lm.logger)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to rabbitmq: %w", err)
		}
		lm.rabbit = publisher
		dispatchers = append(dispatchers, publisher)
		lm.notifiers = append(lm.notifiers, "rabbitmq")
	}
	return dispatchers, nil
}

// Start starts the entire system
func (lm *LifecycleManager) Start() error {
	lm.logger.Info("Starting OpenAssetCore")

	if lm.wsHub != nil {
		ctx, cancel := context.WithCancel(context.Background())
		lm.hubCancel = cancel
		go lm.wsHub.Run(ctx)
	}

	if err := lm.startGRPCServer(); err != nil {
		lm.setError(fmt.Errorf("failed to start gRPC: %w", err))
		return err
	}

	if err := lm.startRESTServer(); err != nil {
		lm.setError(fmt.Errorf("failed to start REST API: %w", err))
		return err
	}

	if err := lm.transition(StateRunning); err != nil {
		return err
	}
	lm.stateMu.Lock()
	lm.startedAt = time.Now()
	lm.stateMu.Unlock()
	lm.healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	lm.healthServer.SetServingStatus(HealthService, healthpb.HealthCheckResponse_SERVING)

	lm.logger.Info("System started successfully",
		zap.Int("grpc_port", lm.config.Server.GRPCPort),
		zap.Int("http_port", lm.config.Server.HTTPPort),
		zap.String("store", lm.config.Database.Driver),
		zap.Strings("notifiers", lm.notifiers))

	return nil
}

func (lm *LifecycleManager) startGRPCServer() error {
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", lm.config.Server.GRPCPort))
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	lm.grpcAddr = lis.Addr()

	lm.grpcServer = grpc.NewServer()
	lm.healthServer = health.NewServer()
	lm.healthServer.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	lm.healthServer.SetServingStatus(HealthService, healthpb.HealthCheckResponse_NOT_SERVING)
	healthpb.RegisterHealthServer(lm.grpcServer, lm.healthServer)
	reflection.Register(lm.grpcServer)

	go func() {
		lm.logger.Info("gRPC server listening",
			zap.String("address", lis.Addr().String()),
			zap.String("services", "grpc.health.v1.Health"))
		if err := lm.grpcServer.Serve(lis); err != nil {
			lm.logger.Error("gRPC server failed", zap.Error(err))
		}
	}()

	return nil
}

func (lm *LifecycleManager) startRESTServer() error {
	server, err := rest.NewServer(lm.config, lm.coordinator, lm.analyzer, lm.authenticator, lm.wsHub, lm.logger)
	if err != nil {
		return err
	}
	server.SetStatusProvider(lm)
	lm.restServer = server
	return lm.restServer.Start()
}

// Shutdown gracefully shuts down the system
func (lm *LifecycleManager) Shutdown(ctx context.Context) error {
	var shutdownErr error

	lm.shutdownOnce.Do(func() {
		lm.logger.Info("Shutting down system")

		if err := lm.transition(StateStopping); err != nil {
			lm.logger.Warn("Unexpected state on shutdown", zap.Error(err))
		}
		if lm.healthServer != nil {
			lm.healthServer.Shutdown()
		}

		shutdownErr = lm.gracefulShutdown(ctx)

		if lm.hubCancel != nil {
			lm.hubCancel()
		}
		if lm.rabbit != nil {
			if err := lm.rabbit.Close(); err != nil {
				lm.logger.Warn("RabbitMQ close failed", zap.Error(err))
			}
		}
		lm.store.Close()

		lm.setState(StateStopped)
	})

	return shutdownErr
}

func (lm *LifecycleManager) gracefulShutdown(ctx context.Context) error {
	var wg sync.WaitGroup
	errChan := make(chan error, 2)

	// REST API Server graceful shutdown
	if lm.restServer != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()

			if err := lm.restServer.Shutdown(shutdownCtx); err != nil {
				errChan <- fmt.Errorf("rest api shutdown failed: %w", err)
			}
		}()
	}

	// gRPC Server graceful stop
	if lm.grpcServer != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			lm.logger.Info("Stopping gRPC server")
			lm.grpcServer.GracefulStop()
		}()
	}

	// Wait for all shutdowns
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		lm.logger.Info("Graceful shutdown completed")
		select {
		case err := <-errChan:
			return err
		default:
			return nil
		}
	case <-ctx.Done():
		lm.logger.Warn("Shutdown timeout, forcing stop")
		if lm.grpcServer != nil {
			lm.grpcServer.Stop()
		}
		return fmt.Errorf("shutdown timeout exceeded")
	}
}

func (lm *LifecycleManager) transition(to SystemState) error {
	lm.stateMu.Lock()
	defer lm.stateMu.Unlock()
	if err := ValidateTransition(lm.currentState, to); err != nil {
		return err
	}
	lm.currentState = to
	return nil
}

func (lm *LifecycleManager) setState(state SystemState) {
	lm.stateMu.Lock()
	defer lm.stateMu.Unlock()
	lm.currentState = state
}

func (lm *LifecycleManager) setError(err error) {
	lm.logger.Error("System error", zap.Error(err))
	lm.stateMu.Lock()
	defer lm.stateMu.Unlock()
	lm.currentState = StateError
	lm.lastError = err
}

// State returns the current lifecycle state.
func (lm *LifecycleManager) State() SystemState {
	lm.stateMu.RLock()
	defer lm.stateMu.RUnlock()
	return lm.currentState
}

// GetCurrentStatus returns current system status (Interface implementation)
func (lm *LifecycleManager) GetCurrentStatus() interfaces.SystemStatus {
	lm.stateMu.RLock()
	defer lm.stateMu.RUnlock()

	status := interfaces.SystemStatus{
		State:       lm.currentState.String(),
		StoreDriver: lm.config.Database.Driver,
		Notifiers:   lm.notifiers,
	}
	if !lm.startedAt.IsZero() {
		status.StartedAt = lm.startedAt.Unix()
	}
	if lm.wsHub != nil {
		status.ConnectedClients = lm.wsHub.ConnectedClients()
	}
	if lm.lastError != nil {
		status.Error = lm.lastError.Error()
	}
	return status
}

// GRPCAddr returns the bound gRPC listener address once started.
func (lm *LifecycleManager) GRPCAddr() net.Addr {
	return lm.grpcAddr
}

// Coordinator returns the lifecycle workflow coordinator
func (lm *LifecycleManager) Coordinator() *workflow.Coordinator {
	return lm.coordinator
}
