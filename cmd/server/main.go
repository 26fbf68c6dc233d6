package main

import (
	"context"
	"errors"
	"flag"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"

	"github.com/rl1809/storefront/internal/adapter/handler"
	"github.com/rl1809/storefront/internal/adapter/messaging"
	"github.com/rl1809/storefront/internal/adapter/storage"
	"github.com/rl1809/storefront/internal/adapter/upload"
	"github.com/rl1809/storefront/internal/config"
	"github.com/rl1809/storefront/internal/core/domain"
	"github.com/rl1809/storefront/internal/core/service"
	"github.com/rl1809/storefront/internal/port"
)

type store interface {
	port.CatalogRepository
	port.OrderRepository
	port.UserRepository
}

type sessionStore interface {
	port.CacheRepository
	port.CartRepository
	port.SessionRepository
}

func main() {
	envFile := flag.String("env", ".env", "path to an optional .env file")
	flag.Parse()

	cfg, err := config.Load(*envFile)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	setupLogger(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var closers []func()
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
		log.Info().Msg("connections closed")
	}()

	db, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.Store.Driver).Msg("failed to open store")
	}
	closers = append(closers, closeStore)

	sessions, closeSessions, err := openSessionStore(ctx, cfg, db)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect redis")
	}
	closers = append(closers, closeSessions)

	files, err := upload.NewDiskStorage(cfg.App.UploadDir, cfg.App.PublicBaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to prepare upload dir")
	}

	// Services
	catalogService := service.NewCatalogService(db)
	cartService := service.NewCartService(db, sessions)
	orderService := service.NewOrderService(db, db, sessions, sessions, cfg.Events.QueueSize)
	authService := service.NewAuthService(db, sessions, cfg.Store.SessionTTL)
	userService := service.NewUserService(db)

	if cfg.Admin.Email != "" {
		if err := authService.EnsureAdmin(ctx, cfg.Admin.Email, cfg.Admin.Password); err != nil {
			log.Fatal().Err(err).Msg("failed to bootstrap admin")
		}
	}

	// Event workers
	publisher := newPublisher(cfg)
	var wg sync.WaitGroup
	for i := 0; i < cfg.Events.WorkerCount; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			workerLoop(id, orderService.GetEventQueue(), publisher)
		}(i)
	}
	log.Info().Int("workers", cfg.Events.WorkerCount).Msg("started event workers")

	// gRPC admin API
	grpcServer := grpc.NewServer(grpc.UnaryInterceptor(handler.AdminAuthInterceptor(authService)))
	handler.RegisterAdminServer(grpcServer, handler.NewGRPCHandler(orderService))

	lis, err := net.Listen("tcp", cfg.App.GRPCAddr)
	if err != nil {
		log.Fatal().Err(err).Str("addr", cfg.App.GRPCAddr).Msg("failed to listen")
	}
	go func() {
		log.Info().Str("addr", cfg.App.GRPCAddr).Msg("gRPC server listening")
		if err := grpcServer.Serve(lis); err != nil {
			log.Error().Err(err).Msg("gRPC server error")
		}
	}()

	// HTTP API
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	httpHandler := handler.NewHTTPHandler(handler.Services{
		Catalog: catalogService,
		Carts:   cartService,
		Orders:  orderService,
		Auth:    authService,
		Users:   userService,
	}, files, handler.NewServerMetrics(reg))

	httpServer := &http.Server{
		Addr:              cfg.App.HTTPAddr,
		Handler:           httpHandler.Routes(files.Dir()),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Info().Str("addr", cfg.App.HTTPAddr).Msg("HTTP server listening")
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("HTTP server error")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("HTTP shutdown incomplete, closing connections")
		httpServer.Close()
	}
	log.Info().Msg("HTTP server stopped")

	grpcServer.GracefulStop()
	log.Info().Msg("gRPC server stopped")

	// Handlers still running past the shutdown deadline drop their events.
	orderService.Close()
	wg.Wait()
	if err := publisher.Close(); err != nil {
		log.Warn().Err(err).Msg("failed to close event publisher")
	}
	log.Info().Msg("workers stopped")
}

func setupLogger(cfg *config.Config) {
	level, err := zerolog.ParseLevel(cfg.App.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339

	logger := zerolog.New(os.Stdout)
	if cfg.App.LogFormat == "console" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	}
	log.Logger = logger.With().Timestamp().Str("service", "storefront").Logger()
}

func openStore(ctx context.Context, cfg *config.Config) (store, func(), error) {
	switch cfg.Store.Driver {
	case config.DriverMySQL:
		sqlDB, err := storage.OpenMySQL(ctx, cfg.Store.MySQLDSN)
		if err != nil {
			return nil, nil, err
		}
		if err := storage.MigrateMySQL(sqlDB); err != nil {
			sqlDB.Close()
			return nil, nil, err
		}
		log.Info().Msg("connected to mysql")
		return storage.NewMySQLAdapter(sqlDB), func() { sqlDB.Close() }, nil

	case config.DriverMongo:
		client, err := storage.ConnectMongo(ctx, cfg.Store.MongoURI)
		if err != nil {
			return nil, nil, err
		}
		adapter := storage.NewMongoAdapter(client.Database(cfg.Store.MongoDB))
		if err := adapter.EnsureIndexes(ctx); err != nil {
			_ = client.Disconnect(ctx)
			return nil, nil, err
		}
		log.Info().Str("db", cfg.Store.MongoDB).Msg("connected to mongo")
		return adapter, func() { _ = client.Disconnect(context.Background()) }, nil

	default:
		log.Warn().Msg("using in-memory store, data is lost on restart")
		return storage.NewMemoryAdapter(), func() {}, nil
	}
}

// openSessionStore uses Redis when configured. Without it, the in-memory
// store also holds carts and sessions when it is the primary store.
func openSessionStore(ctx context.Context, cfg *config.Config, db store) (sessionStore, func(), error) {
	if cfg.Store.RedisAddr == "" {
		if mem, ok := db.(*storage.MemoryAdapter); ok {
			return mem, func() {}, nil
		}
		log.Warn().Msg("REDIS_ADDR not set, carts and sessions are kept in memory")
		return storage.NewMemoryAdapter(), func() {}, nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Store.RedisAddr,
		PoolSize: 100,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, nil, err
	}
	log.Info().Str("addr", cfg.Store.RedisAddr).Msg("connected to redis")
	return storage.NewRedisAdapter(rdb, cfg.Store.CartTTL), func() { rdb.Close() }, nil
}

func newPublisher(cfg *config.Config) port.EventPublisher {
	brokers := messaging.ParseBrokers(cfg.Events.KafkaBrokers)
	if len(brokers) == 0 {
		return messaging.LogPublisher{}
	}
	log.Info().Strs("brokers", brokers).Str("topic", cfg.Events.KafkaTopic).Msg("publishing order events to kafka")
	return messaging.NewKafkaPublisher(brokers, cfg.Events.KafkaTopic)
}

func workerLoop(id int, queue <-chan domain.OrderEvent, publisher port.EventPublisher) {
	for event := range queue {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)

		if err := publisher.Publish(ctx, event); err != nil {
			log.Error().Err(err).
				Int("worker", id).
				Str("order_id", event.OrderID).
				Str("type", string(event.Type)).
				Msg("failed to publish order event")
		} else {
			log.Debug().Int("worker", id).Str("order_id", event.OrderID).Msg("published order event")
		}

		cancel()
	}
}
