package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	nethttp "net/http"
	"sync"
	"time"

	"github.com/aq2208/storefront-api/configs"
	"github.com/aq2208/storefront-api/internal/adapter/cache"
	"github.com/aq2208/storefront-api/internal/adapter/http"
	"github.com/aq2208/storefront-api/internal/adapter/http/middleware"
	"github.com/aq2208/storefront-api/internal/adapter/kafka"
	"github.com/aq2208/storefront-api/internal/adapter/memstore"
	"github.com/aq2208/storefront-api/internal/adapter/queue"
	"github.com/aq2208/storefront-api/internal/adapter/repo"
	"github.com/aq2208/storefront-api/internal/logging"
	"github.com/aq2208/storefront-api/internal/observability"
	"github.com/aq2208/storefront-api/internal/usecase"
	"github.com/gin-gonic/gin"
	_ "github.com/go-sql-driver/mysql"
	"github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
)

type App struct {
	Router *gin.Engine
	Server *nethttp.Server

	cfg        configs.Config
	log        *slog.Logger
	background []func(ctx context.Context)
}

// infra collects what InitWithConfig opened so cleanup can close it in reverse.
type infra struct {
	closers []func()
}

func (i *infra) onClose(fn func()) { i.closers = append(i.closers, fn) }

func (i *infra) close() {
	for j := len(i.closers) - 1; j >= 0; j-- {
		i.closers[j]()
	}
	i.closers = nil
}

func InitWithConfig(ctx context.Context, cfg configs.Config, env string) (*App, func(), error) {
	// init logger
	logger := logging.Init(logging.Options{
		Component:  cfg.App.Name,
		FilePath:   cfg.Log.File,
		Level:      cfg.Log.Level,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})
	logger.InfoContext(ctx, "storefront-api: starting up", "env", env, "storage", cfg.Storage.Driver)

	in := &infra{}
	fail := func(err error) (*App, func(), error) {
		in.close()
		return nil, nil, err
	}

	shutdownTracing, err := observability.SetupTracing(ctx, cfg, env)
	if err != nil {
		return fail(err)
	}
	in.onClose(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(ctx)
	})

	store, err := openStore(ctx, cfg, in)
	if err != nil {
		return fail(err)
	}

	// optional redis: idempotency, status cache, per-order lock
	var (
		idem        usecase.IdempotencyStore
		statusCache usecase.OrderCache
		lcOpts      = []usecase.LifecycleOption{
			usecase.WithMaxRetries(cfg.Lifecycle.MaxRetries),
			usecase.WithLogger(logging.New("lifecycle")),
		}
	)
	if cfg.Redis.Enabled {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		in.onClose(func() { _ = rdb.Close() })
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fail(fmt.Errorf("redis ping: %w", err))
		}
		idem = cache.NewRedisIdempotencyStore(rdb, cfg.Idempotency.TTL)
		redisCache := cache.NewRedisCache(rdb, cfg.Cache.TTL)
		statusCache = redisCache
		lcOpts = append(lcOpts, usecase.WithStatusCache(redisCache))
		if cfg.Lifecycle.RedisLock {
			lcOpts = append(lcOpts, usecase.WithLocker(cache.NewRedisOrderLocker(rdb, cfg.Lifecycle.LockTTL, cfg.Lifecycle.LockWait)))
		}
	}

	notifier := usecase.NewNotifier(store.Notifications())
	var sink usecase.NotificationSink = notifier

	a := &App{cfg: cfg, log: logger}

	if cfg.Notifications.Mode == "rabbitmq" {
		producer, router, err := setupQueue(cfg, notifier, in)
		if err != nil {
			return fail(err)
		}
		sink = producer
		a.background = append(a.background, func(ctx context.Context) {
			<-ctx.Done()
			router.Stop()
		})
	}

	lifecycle := usecase.NewLifecycle(store, usecase.NewInventory(logging.New("inventory")), sink, lcOpts...)

	if cfg.Kafka.Enabled {
		consumer, err := setupKafkaListener(cfg, lifecycle, in)
		if err != nil {
			return fail(err)
		}
		a.background = append(a.background, func(ctx context.Context) {
			if err := consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("kafka consumer stopped", "error", err)
			}
		})
	}

	// init handlers + routers + middleware
	handlers := http.Handlers{
		Products:      http.NewProductHandler(usecase.NewCatalog(store)),
		Orders:        http.NewOrderHandler(usecase.NewCreateOrder(store, idem, sink), lifecycle, usecase.NewOrderQueries(store, statusCache), cfg.HTTP.RequestTimeout),
		Notifications: http.NewNotificationHandler(usecase.NewInbox(store.Notifications())),
		Token:         http.NewTokenHandler(cfg),
	}
	a.Router = http.NewRouter(handlers, middleware.NewAuthz(cfg), logging.New("http"))
	a.Server = &nethttp.Server{
		Addr:         cfg.App.HTTPAddr,
		Handler:      a.Router,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	return a, in.close, nil
}

// Run serves HTTP and the background consumers until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	bgCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	for _, run := range a.background {
		wg.Add(1)
		go func(run func(context.Context)) {
			defer wg.Done()
			run(bgCtx)
		}(run)
	}

	errCh := make(chan error, 1)
	go func() {
		a.log.Info("http server listening", "addr", a.Server.Addr)
		errCh <- a.Server.ListenAndServe()
	}()

	var serveErr error
	select {
	case <-ctx.Done():
	case err := <-errCh:
		if !errors.Is(err, nethttp.ErrServerClosed) {
			serveErr = err
		}
	}

	timeout := a.cfg.HTTP.ShutdownTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	shutdownCtx, done := context.WithTimeout(context.Background(), timeout)
	defer done()
	a.log.Info("shutting down")
	if err := a.Server.Shutdown(shutdownCtx); err != nil {
		serveErr = errors.Join(serveErr, err)
	}

	cancel()
	wg.Wait()
	return serveErr
}

func openStore(ctx context.Context, cfg configs.Config, in *infra) (usecase.Store, error) {
	if cfg.Storage.Driver == "memory" {
		return memstore.New(), nil
	}

	// init database
	db, err := sql.Open("mysql", cfg.MySQL.DSN)
	if err != nil {
		return nil, err
	}
	in.onClose(func() { _ = db.Close() })
	db.SetConnMaxLifetime(orDuration(cfg.MySQL.ConnMaxLifetime, 30*time.Minute))
	db.SetMaxOpenConns(orInt(cfg.MySQL.MaxOpenConns, 16))
	db.SetMaxIdleConns(orInt(cfg.MySQL.MaxIdleConns, 16))

	pingCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		return nil, fmt.Errorf("mysql ping: %w", err)
	}
	if cfg.Storage.Migrate {
		if err := repo.Migrate(pingCtx, db, repo.DialectMySQL); err != nil {
			return nil, err
		}
	}
	return repo.NewSQLStore(db, repo.DialectMySQL), nil
}

// setupQueue wires the AMQP notification path: the producer is the lifecycle's
// sink and the router persists what it consumes through the notifier.
func setupQueue(cfg configs.Config, notifier usecase.NotificationSink, in *infra) (*queue.RabbitProducer, *queue.Router, error) {
	conn, err := amqp091.Dial(cfg.Rabbit.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("rabbitmq dial: %w", err)
	}
	in.onClose(func() { _ = conn.Close() })

	pubCh, err := conn.Channel()
	if err != nil {
		return nil, nil, err
	}
	producer, err := queue.NewRabbitProducer(pubCh)
	if err != nil {
		return nil, nil, err
	}

	subCh, err := conn.Channel()
	if err != nil {
		return nil, nil, err
	}
	h := queue.NewNotificationHandler(notifier)
	router := queue.NewRouter(subCh,
		queue.WithPrefetch(orInt(cfg.Rabbit.Prefetch, 50)),
		queue.WithTimeout(orDuration(cfg.Rabbit.Timeout, 10*time.Second)),
		queue.WithLogger(logging.New("rmq-router")),
	)
	router.Register(queue.NotificationQueue, queue.JSONHandler[usecase.NotificationMsg]{HandleFunc: h.HandleNotification})
	if err := router.Start(); err != nil {
		return nil, nil, err
	}
	return producer, router, nil
}

func setupKafkaListener(cfg configs.Config, lc *usecase.Lifecycle, in *infra) (*kafka.Consumer, error) {
	grp, err := kafka.NewGroup(cfg.Kafka.Brokers, cfg.Kafka.GroupID, kafka.GroupOptions{
		ClientID:     cfg.Kafka.ClientID,
		OldestOffset: cfg.Kafka.OldestOffset,
	})
	if err != nil {
		return nil, fmt.Errorf("kafka group: %w", err)
	}
	in.onClose(func() { _ = grp.Close() })

	h := kafka.NewPaymentStatusHandler(lc)
	return kafka.NewConsumer(grp, []string{cfg.Kafka.TopicPayment}, h.Handle), nil
}

func orInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

func orDuration(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}
