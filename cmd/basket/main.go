package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/wyfcoding/basketfund/internal/basket/application"
	"github.com/wyfcoding/basketfund/internal/basket/domain"
	"github.com/wyfcoding/basketfund/internal/basket/infrastructure/auth"
	"github.com/wyfcoding/basketfund/internal/basket/infrastructure/genesis"
	"github.com/wyfcoding/basketfund/internal/basket/infrastructure/ledger"
	"github.com/wyfcoding/basketfund/internal/basket/infrastructure/messaging"
	"github.com/wyfcoding/basketfund/internal/basket/infrastructure/oracle"
	"github.com/wyfcoding/basketfund/internal/basket/infrastructure/persistence"
	"github.com/wyfcoding/basketfund/internal/basket/infrastructure/venue"
	httpserver "github.com/wyfcoding/basketfund/internal/basket/interfaces/http"
	"github.com/wyfcoding/basketfund/internal/basket/interfaces/scheduler"
	"github.com/wyfcoding/basketfund/pkg/cache"
	"github.com/wyfcoding/basketfund/pkg/config"
	"github.com/wyfcoding/basketfund/pkg/db"
	"github.com/wyfcoding/basketfund/pkg/logger"
	"github.com/wyfcoding/basketfund/pkg/metrics"
	"github.com/wyfcoding/basketfund/pkg/middleware"
	"github.com/wyfcoding/basketfund/pkg/mq"
	"github.com/wyfcoding/basketfund/pkg/ratelimit"
	"golang.org/x/sync/errgroup"
)

var configPath = flag.String("config", config.GetEnv("BASKET_CONFIG", "configs/basket.toml"), "config file path")

func main() {
	flag.Parse()

	// 1. 初始化配置
	cfg, err := config.Load(*configPath)
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	// 2. 初始化日志
	log, err := logger.Init(logger.Config{
		Level:      cfg.Logger.Level,
		Format:     cfg.Logger.Format,
		Output:     cfg.Logger.Output,
		FilePath:   cfg.Logger.FilePath,
		MaxSize:    cfg.Logger.MaxSize,
		MaxBackups: cfg.Logger.MaxBackups,
		MaxAge:     cfg.Logger.MaxAge,
		Compress:   cfg.Logger.Compress,
		WithCaller: cfg.Logger.WithCaller,
	})
	if err != nil {
		panic(fmt.Sprintf("failed to init logger: %v", err))
	}
	log = log.With("service", cfg.ServiceName, "env", cfg.Environment)

	if err := run(cfg, log); err != nil {
		log.Error("service exited with error", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 3. 初始化指标
	m := metrics.New(cfg.ServiceName)

	// 4. 初始化基础设施
	database, err := db.Init(db.Config{
		Driver:             cfg.Database.Driver,
		DSN:                cfg.Database.DSN,
		MaxOpenConns:       cfg.Database.MaxOpenConns,
		MaxIdleConns:       cfg.Database.MaxIdleConns,
		ConnMaxLifetime:    cfg.Database.ConnMaxLifetime,
		LogEnabled:         cfg.Database.LogEnabled,
		SlowQueryThreshold: cfg.Database.SlowQueryThreshold,
	})
	if err != nil {
		return err
	}
	defer database.Close()

	if err := persistence.Migrate(database.DB); err != nil {
		return fmt.Errorf("migrate fund tables: %w", err)
	}
	book := ledger.NewGorm(database.DB)
	if err := book.AutoMigrate(); err != nil {
		return fmt.Errorf("migrate ledger tables: %w", err)
	}

	// Redis 可选：基金租约、价格缓存与限流
	var redisCache *cache.RedisCache
	var lease application.Leaser
	var limiter ratelimit.RateLimiter
	if cfg.Redis.Host != "" {
		redisCache, err = cache.New(cache.Config{
			Host:         cfg.Redis.Host,
			Port:         cfg.Redis.Port,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			MaxPoolSize:  cfg.Redis.MaxPoolSize,
			ConnTimeout:  cfg.Redis.ConnTimeout,
			ReadTimeout:  cfg.Redis.ReadTimeout,
			WriteTimeout: cfg.Redis.WriteTimeout,
		})
		if err != nil {
			return err
		}
		defer redisCache.Close()
		lease = redisCache
		limiter = ratelimit.NewRedisRateLimiter(redisCache.Client())
	}

	// Kafka 可选：领域事件
	var publisher application.EventPublisher = messaging.NewLogEventPublisher(log)
	if len(cfg.Kafka.Brokers) > 0 {
		producer := mq.NewProducer(mq.KafkaConfig{
			Brokers:      cfg.Kafka.Brokers,
			MaxRetries:   cfg.Kafka.MaxRetries,
			RetryBackoff: cfg.Kafka.RetryBackoff,
		})
		defer producer.Close()
		publisher = messaging.NewKafkaEventPublisher(producer, cfg.Kafka.Topic)
	}

	var prices domain.PriceOracle
	if cfg.Oracle.BaseURL != "" {
		prices = oracle.NewHTTPFeed(cfg.Oracle.BaseURL, time.Duration(cfg.Oracle.Timeout)*time.Second, log.With("module", "oracle"))
		if redisCache != nil && cfg.Oracle.CacheTTL > 0 {
			prices = oracle.NewCached(prices, redisCache, time.Duration(cfg.Oracle.CacheTTL)*time.Second, log.With("module", "oracle"))
		}
	} else {
		static, err := oracle.ParseStatic(cfg.Oracle.StaticPrices)
		if err != nil {
			return fmt.Errorf("parse static prices: %w", err)
		}
		prices = static
	}

	pools := venue.NewSimulated(book)
	swaps := venue.NewMetered(pools, m)

	// 5. 初始化仓储与领域服务
	funds := persistence.NewGormFundRepository(database.DB)
	uow := persistence.NewTransactionManager(database.DB)

	accounting := domain.NewAccountingEngine(book, book)
	quoter := domain.NewPathQuoter(swaps, cfg.Quoter.FeeTiers, cfg.Quoter.Intermediaries,
		domain.WithQuoteFailureHook(func(ctx context.Context, path domain.SwapPath, err error) {
			m.RecordQuoteFailure()
			log.DebugContext(ctx, "candidate path rejected", "path", path.String(), "error", err)
		}))
	rebalancer := domain.NewRebalanceEngine(accounting, quoter, prices, swaps,
		domain.WithTradeHook(func(_ context.Context, _ *domain.Fund, t domain.Trade) {
			m.RecordRebalanceTrade(t.Phase)
		}))

	if cfg.Genesis.Path != "" {
		file, err := genesis.Load(cfg.Genesis.Path)
		if err != nil {
			return err
		}
		done := logger.LogDuration(ctx, "genesis applied", "path", cfg.Genesis.Path, "funds", len(file.Funds))
		if err := genesis.NewLoader(funds, uow, book, pools, log).Apply(ctx, file); err != nil {
			return fmt.Errorf("apply genesis: %w", err)
		}
		done()
	}

	// 6. 初始化应用服务
	deps := application.Dependencies{
		Funds:      funds,
		Records:    persistence.NewGormRecordRepository(database.DB),
		UnitOfWork: uow,
		Shares:     book,
		Assets:     book,
		Accounting: accounting,
		Quoter:     quoter,
		Rebalancer: rebalancer,
		Router:     domain.NewSwapExecutionRouter(accounting, quoter, book, swaps),
		Access:     auth.NewStaticAccessControl(cfg.Access.Admins),
		Locker:     application.NewFundLocker(lease, time.Duration(cfg.Redis.LockTTL)*time.Second),
		Publisher:  publisher,
		Metrics:    m,
		Logger:     log,
	}
	commands := application.NewCommandService(deps)
	queries := application.NewQueryService(deps)

	// 7. 初始化接口层
	gin.SetMode(gin.ReleaseMode)
	if cfg.Environment == "dev" {
		gin.SetMode(gin.DebugMode)
	}
	r := gin.New()
	r.Use(middleware.GinRecoveryMiddleware(), middleware.GinLoggingMiddleware(), middleware.GinMetricsMiddleware(m))
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "version": cfg.Version})
	})
	if cfg.Metrics.Enabled {
		r.GET(cfg.Metrics.Path, gin.WrapH(m.Handler()))
	}
	api := r.Group("/api/v1")
	api.Use(middleware.RateLimitMiddleware(limiter, cfg.RateLimit))
	httpserver.NewHandler(commands, queries).RegisterRoutes(api)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port),
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeout) * time.Second,
	}

	// 8. 启动服务
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("HTTP server starting", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	if cfg.Scheduler.Enabled {
		sched := scheduler.New(gctx, queries, commands, log)
		if err := sched.Register(cfg.Scheduler.RebalanceCron); err != nil {
			return err
		}
		sched.Start()
		defer sched.Stop()
	}

	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
