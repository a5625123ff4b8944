package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/wyfcoding/menuforecast/internal/forecast/application"
	"github.com/wyfcoding/menuforecast/internal/forecast/domain"
	"github.com/wyfcoding/menuforecast/internal/forecast/infrastructure/messaging"
	"github.com/wyfcoding/menuforecast/internal/forecast/infrastructure/persistence/memory"
	"github.com/wyfcoding/menuforecast/internal/forecast/infrastructure/persistence/mysql"
	redis_cache "github.com/wyfcoding/menuforecast/internal/forecast/infrastructure/persistence/redis"
	"github.com/wyfcoding/menuforecast/internal/forecast/infrastructure/weather"
	grpc_server "github.com/wyfcoding/menuforecast/internal/forecast/interfaces/grpc"
	http_handler "github.com/wyfcoding/menuforecast/internal/forecast/interfaces/http"
	"github.com/wyfcoding/menuforecast/internal/forecast/scheduler"
	"github.com/wyfcoding/menuforecast/pkg/cache"
	"github.com/wyfcoding/menuforecast/pkg/config"
	"github.com/wyfcoding/menuforecast/pkg/db"
	"github.com/wyfcoding/menuforecast/pkg/logger"
	"github.com/wyfcoding/menuforecast/pkg/metrics"
	"github.com/wyfcoding/menuforecast/pkg/middleware"
	"github.com/wyfcoding/menuforecast/pkg/mq"
	"github.com/wyfcoding/menuforecast/pkg/ratelimit"
	"github.com/wyfcoding/pkg/limiter"
	"github.com/wyfcoding/pkg/utils"
)

// repositories 按驱动装配的存储
type repositories struct {
	buckets     domain.BucketRepository
	predictions domain.PredictionRepository
	meta        domain.TrainingMetaRepository
	orders      domain.OrderSource
	menu        domain.MenuItemSource
	close       func() error
}

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "configs/forecast/config.toml", "path to config file")
	flag.Parse()

	if err := run(configPath); err != nil {
		slog.Error("forecast service exited with error", "error", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	// 1. Config
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	loc, _ := cfg.Forecast.Location()

	// 2. Logger
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
		return fmt.Errorf("init logger: %w", err)
	}
	log = log.With("service", cfg.ServiceName, "version", cfg.Version, "env", cfg.Environment)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 3. Metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m, err := metrics.New(cfg.ServiceName, registry)
	if err != nil {
		return fmt.Errorf("init metrics: %w", err)
	}

	// 4. Storage
	repos, err := openRepositories(rootCtx, cfg, loc)
	if err != nil {
		return err
	}
	defer func() { _ = repos.close() }()

	// 5. Redis (可选)
	var predictionCache domain.PredictionCache
	var ipLimiter ratelimit.RateLimiter = ratelimit.NewLocalRateLimiter(10 * time.Minute)
	var triggerCap limiter.Limiter
	if cfg.RateLimit.GlobalQPS > 0 {
		triggerCap = limiter.NewLocalLimiter(rate.Limit(cfg.RateLimit.GlobalQPS), cfg.RateLimit.GlobalBurst)
	}
	if cfg.Redis.Enabled() {
		var rc *cache.RedisCache
		err := utils.Retry(rootCtx, func() error {
			var err error
			rc, err = cache.New(rootCtx, cache.Config{
				Host:         cfg.Redis.Host,
				Port:         cfg.Redis.Port,
				Password:     cfg.Redis.Password,
				DB:           cfg.Redis.DB,
				MaxPoolSize:  cfg.Redis.MaxPoolSize,
				ConnTimeout:  cfg.Redis.ConnTimeout,
				ReadTimeout:  cfg.Redis.ReadTimeout,
				WriteTimeout: cfg.Redis.WriteTimeout,
			})
			return err
		}, retryConfig(2, 5*time.Second))
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		defer func() { _ = rc.Close() }()
		predictionCache = redis_cache.NewPredictionCache(rc, time.Duration(cfg.Redis.UpcomingTTL)*time.Second, loc)
		ipLimiter = ratelimit.NewRedisRateLimiter(rc.GetClient())
		if cfg.RateLimit.GlobalQPS > 0 {
			// 多实例共享同一全局配额
			triggerCap = limiter.NewRedisLimiterWithBurst(rc.GetClient(), cfg.RateLimit.GlobalQPS, cfg.RateLimit.GlobalBurst)
		}
	}

	// 6. Kafka (可选)
	var publisher domain.EventPublisher = messaging.NewLogEventPublisher()
	if cfg.Kafka.Enabled() {
		producer := mq.NewProducer(mq.KafkaConfig{
			Brokers:      cfg.Kafka.Brokers,
			MaxRetries:   cfg.Kafka.MaxRetries,
			RetryBackoff: cfg.Kafka.RetryBackoff,
		})
		defer func() { _ = producer.Close() }()
		publisher = messaging.NewKafkaEventPublisher(producer)
	}

	// 7. Application
	opts := application.Options{Location: loc, Metrics: m, Logger: log}
	provider := weather.NewMockProvider(1)
	calendar := weather.NewStaticCalendar(cfg.Forecast.Holidays, cfg.Forecast.SpecialEvents)
	window := time.Duration(cfg.Forecast.UpcomingWindowHours) * time.Hour

	aggregator := application.NewAggregator(repos.orders, repos.buckets, provider, calendar, opts)
	forecaster := application.NewForecaster(repos.buckets, repos.predictions, provider, publisher, predictionCache, opts)
	tracker := application.NewAccuracyTracker(repos.predictions, repos.orders, publisher, application.AccuracyOptions{
		MinAge:    time.Duration(cfg.Forecast.AccuracyMinAgeMinutes) * time.Minute,
		MaxAge:    time.Duration(cfg.Forecast.AccuracyMaxAgeMinutes) * time.Minute,
		BatchSize: cfg.Forecast.AccuracyBatchSize,
		Pace:      time.Duration(cfg.Forecast.AccuracyPaceMs) * time.Millisecond,
	}, opts)
	query := application.NewQueryService(repos.predictions, repos.menu, predictionCache, window, opts)
	service := application.NewForecastService(aggregator, forecaster, query, cfg.Forecast.LookbackDays, loc)

	// 8. Interfaces
	grpcSrv := grpc_server.NewServer()
	healthSrv := grpc_server.NewHealthServer(grpcSrv)

	specs := map[scheduler.JobName]string{}
	if cfg.Scheduler.Enabled {
		specs[scheduler.JobHourlyGeneration] = cfg.Scheduler.HourlyGeneration
		specs[scheduler.JobNightlyTraining] = cfg.Scheduler.NightlyTraining
		specs[scheduler.JobAccuracyRefresh] = cfg.Scheduler.AccuracyRefresh
		specs[scheduler.JobWeeklyCleanup] = cfg.Scheduler.WeeklyCleanup
		specs[scheduler.JobHealthCheck] = cfg.Scheduler.HealthCheck
	}
	sched, err := scheduler.New(scheduler.Config{
		Location:             loc,
		LookbackDays:         cfg.Forecast.LookbackDays,
		HorizonHours:         cfg.Forecast.HorizonHours,
		RetentionDays:        cfg.Forecast.RetentionDays,
		MinUpcoming:          cfg.Forecast.MinUpcoming,
		GenerationPace:       time.Duration(cfg.Forecast.GenerationPaceMs) * time.Millisecond,
		RetrainGenerateDelay: time.Duration(cfg.Forecast.RetrainGenerateDelaySec) * time.Second,
		Specs:                specs,
	}, scheduler.Deps{
		Generator:   forecaster,
		Trainer:     aggregator,
		Accuracy:    tracker,
		Upcoming:    query,
		Predictions: repos.predictions,
		Orders:      repos.orders,
		Meta:        repos.meta,
		Cache:       predictionCache,
		Publisher:   publisher,
		Health:      healthSrv,
		Metrics:     m,
		Logger:      log,
	})
	if err != nil {
		return err
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(
		middleware.GinRecoveryMiddleware(),
		middleware.GinLoggingMiddleware(),
		middleware.GinMetricsMiddleware(m),
	)
	http_handler.NewForecastHandler(service, sched,
		middleware.RateLimitMiddleware(ipLimiter, cfg.RateLimit),
		middleware.GlobalRateLimitMiddleware(triggerCap, "forecast:ratelimit:trigger"),
	).RegisterRoutes(router)

	httpSrv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port),
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeout) * time.Second,
	}

	// 9. Start
	g, ctx := errgroup.WithContext(rootCtx)
	sched.Start(ctx)

	g.Go(func() error {
		addr := fmt.Sprintf("%s:%d", cfg.GRPC.Host, cfg.GRPC.Port)
		lis, err := net.Listen("tcp", addr)
		if err != nil {
			return err
		}
		log.Info("Starting gRPC server", "addr", addr)
		return grpcSrv.Serve(lis)
	})

	g.Go(func() error {
		log.Info("HTTP server starting", "addr", httpSrv.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	var metricsSrv *metrics.Server
	if cfg.Metrics.Enabled {
		metricsSrv = metrics.NewServer(cfg.Metrics.Port, cfg.Metrics.Path, registry)
		g.Go(metricsSrv.Start)
	}

	// 10. Graceful Shutdown
	g.Go(func() error {
		<-ctx.Done()
		log.Info("shutting down servers...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := sched.Stop(shutdownCtx); err != nil {
			log.Warn("scheduler did not stop in time", "error", err)
		}
		healthSrv.Shutdown()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			log.Warn("http shutdown failed", "error", err)
		}
		if metricsSrv != nil {
			_ = metricsSrv.Shutdown(shutdownCtx)
		}
		grpcSrv.GracefulStop()
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info("Server exiting")
	return nil
}

// openRepositories 按 database.driver 选择存储实现
func openRepositories(ctx context.Context, cfg *config.Config, loc *time.Location) (*repositories, error) {
	if cfg.Database.Driver == "memory" {
		logger.Warn(ctx, "using in-memory storage, data is lost on restart")
		orders := memory.NewOrderStore()
		return &repositories{
			buckets:     memory.NewBucketRepository(),
			predictions: memory.NewPredictionRepository(),
			meta:        memory.NewTrainingMetaRepository(),
			orders:      orders,
			menu:        orders,
			close:       func() error { return nil },
		}, nil
	}

	var database *db.DB
	err := utils.Retry(ctx, func() error {
		var err error
		database, err = db.Init(ctx, db.Config{
			Driver:             cfg.Database.Driver,
			DSN:                cfg.Database.DSN,
			MaxOpenConns:       cfg.Database.MaxOpenConns,
			MaxIdleConns:       cfg.Database.MaxIdleConns,
			ConnMaxLifetime:    cfg.Database.ConnMaxLifetime,
			LogEnabled:         cfg.Database.LogEnabled,
			SlowQueryThreshold: cfg.Database.SlowQueryThreshold,
		})
		return err
	}, retryConfig(4, 10*time.Second))
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	if cfg.Database.AutoMigrate {
		if err := mysql.AutoMigrate(database.DB, cfg.Environment == "dev"); err != nil {
			_ = database.Close()
			return nil, fmt.Errorf("migrate database: %w", err)
		}
	}

	orders := mysql.NewOrderSource(database.DB)
	return &repositories{
		buckets:     mysql.NewBucketRepository(database.DB, loc),
		predictions: mysql.NewPredictionRepository(database.DB, loc),
		meta:        mysql.NewTrainingMetaRepository(database.DB),
		orders:      orders,
		menu:        orders,
		close:       database.Close,
	}, nil
}

// retryConfig 启动阶段连接外部依赖的退避策略
func retryConfig(maxRetries int, maxBackoff time.Duration) utils.RetryConfig {
	cfg := utils.DefaultRetryConfig()
	cfg.MaxRetries = maxRetries
	cfg.InitialBackoff = time.Second
	cfg.MaxBackoff = maxBackoff
	cfg.Multiplier = 1.5
	return cfg
}
