// Command syncd is the search synchronization daemon. It tails the forum's
// mutation-event stream to keep the full-text index current, serves the
// control RPC surface for admin tooling, and exposes Prometheus metrics and
// health probes.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/forumkit/searchsync/internal/control"
	"github.com/forumkit/searchsync/internal/engine"
	enginebleve "github.com/forumkit/searchsync/internal/engine/bleve"
	enginememory "github.com/forumkit/searchsync/internal/engine/memory"
	enginepostgres "github.com/forumkit/searchsync/internal/engine/postgres"
	"github.com/forumkit/searchsync/internal/events"
	"github.com/forumkit/searchsync/internal/pubsub"
	pubsubmemory "github.com/forumkit/searchsync/internal/pubsub/memory"
	pubsubredis "github.com/forumkit/searchsync/internal/pubsub/redis"
	"github.com/forumkit/searchsync/internal/settings"
	"github.com/forumkit/searchsync/internal/store"
	storememory "github.com/forumkit/searchsync/internal/store/memory"
	storemongo "github.com/forumkit/searchsync/internal/store/mongo"
	storeredis "github.com/forumkit/searchsync/internal/store/redis"
	"github.com/forumkit/searchsync/internal/syncer"
	"github.com/forumkit/searchsync/pkg/config"
	"github.com/forumkit/searchsync/pkg/grpc"
	"github.com/forumkit/searchsync/pkg/health"
	"github.com/forumkit/searchsync/pkg/kafka"
	"github.com/forumkit/searchsync/pkg/logger"
	"github.com/forumkit/searchsync/pkg/metrics"
	pkgmongo "github.com/forumkit/searchsync/pkg/mongo"
	pkgpostgres "github.com/forumkit/searchsync/pkg/postgres"
	pkgredis "github.com/forumkit/searchsync/pkg/redis"
	"github.com/forumkit/searchsync/pkg/resilience"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting search synchronizer",
		"store", cfg.Store.Backend,
		"engine", cfg.Engine.Backend,
		"control_addr", cfg.Control.Addr,
	)

	m := metrics.New()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// One Redis connection serves both the primary store and the broadcast
	// channel when both are configured onto it.
	var redisClient *pkgredis.Client
	if cfg.Store.Backend == "redis" || cfg.Broadcast.Backend == "redis" {
		err := resilience.Retry(ctx, "redis connect", resilience.RetryConfig{MaxAttempts: 5}, func(ctx context.Context) error {
			var cerr error
			redisClient, cerr = pkgredis.NewClient(cfg.Redis)
			return cerr
		})
		if err != nil {
			slog.Error("redis unavailable", "error", err)
			os.Exit(1)
		}
	}

	st, storeCheck, err := openStore(cfg, redisClient)
	if err != nil {
		slog.Error("failed to open primary store", "backend", cfg.Store.Backend, "error", err)
		os.Exit(1)
	}
	defer st.Close(context.Background())
	// The redis store takes ownership of the shared client; any other store
	// leaves it to us.
	if redisClient != nil && cfg.Store.Backend != "redis" {
		defer redisClient.Close()
	}

	eng, engineCheck, err := openEngine(cfg)
	if err != nil {
		slog.Error("failed to open index engine", "backend", cfg.Engine.Backend, "error", err)
		os.Exit(1)
	}
	defer eng.Close()

	bus, busCheck, err := openBroadcaster(cfg, redisClient)
	if err != nil {
		slog.Error("failed to open broadcast channel", "backend", cfg.Broadcast.Backend, "error", err)
		os.Exit(1)
	}
	defer bus.Close()

	mgr := settings.NewManager(st, bus, cfg.Broadcast.Channel)
	if err := mgr.Load(ctx); err != nil {
		slog.Error("failed to load settings", "error", err)
		os.Exit(1)
	}
	mgr.OnUpdate(func(settings.Settings) { m.SettingsReloadsTotal.Inc() })
	if err := mgr.Watch(ctx); err != nil {
		slog.Error("failed to subscribe to settings broadcasts", "error", err)
		os.Exit(1)
	}

	if err := eng.CreateIndices(ctx, mgr.Current().Language); err != nil {
		slog.Error("failed to create indices", "error", err)
		os.Exit(1)
	}

	sync := syncer.New(st, eng, mgr, m, cfg.Sync.PageSize)
	svc := syncer.NewService(ctx, sync, st, eng, mgr, m)

	router := events.NewRouter(sync, st, m, cfg.Sync.TopicCacheSize)
	consumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.DocumentEvents, events.Handler(router, m))
	go func() {
		if err := consumer.Start(ctx); err != nil {
			slog.Error("event consumer stopped", "error", err)
			stop()
		}
	}()
	slog.Info("consuming mutation events",
		"topic", cfg.Kafka.Topics.DocumentEvents,
		"group", cfg.Kafka.ConsumerGroup,
	)

	rpc := grpc.NewServer(cfg.Control.RequestTimeout)
	control.Register(rpc, svc)
	go func() {
		if err := rpc.Serve(cfg.Control.Addr); err != nil {
			slog.Error("control server error", "error", err)
			stop()
		}
	}()
	slog.Info("control surface up", "addr", cfg.Control.Addr, "methods", rpc.MethodCount())

	checker := health.NewChecker(5 * time.Second)
	checker.Register("store", storeCheck)
	checker.Register("engine", engineCheck)
	checker.Register("broadcast", busCheck)

	var metricsShutdown func(context.Context) error
	if cfg.Metrics.Enabled {
		metricsShutdown = metrics.StartServer(cfg.Metrics.Port, map[string]http.HandlerFunc{
			"/health/live":  checker.LiveHandler(),
			"/health/ready": checker.ReadyHandler(),
		})
	}

	<-ctx.Done()
	slog.Info("shutdown signal received")

	rpc.Stop()
	if metricsShutdown != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := metricsShutdown(shutdownCtx); err != nil {
			slog.Error("metrics server shutdown error", "error", err)
		}
	}
	slog.Info("search synchronizer stopped")
}

func openStore(cfg *config.Config, redisClient *pkgredis.Client) (store.Store, health.Check, error) {
	switch cfg.Store.Backend {
	case "redis":
		if redisClient == nil {
			return nil, nil, fmt.Errorf("redis store selected but redis is not connected")
		}
		st := storeredis.New(redisClient)
		return st, pingCheck("primary store", st.Ping), nil
	case "mongo":
		client, err := pkgmongo.New(cfg.Mongo)
		if err != nil {
			return nil, nil, err
		}
		st := storemongo.New(client)
		return st, pingCheck("primary store", st.Ping), nil
	case "memory":
		st := storememory.New()
		return st, pingCheck("primary store", st.Ping), nil
	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}

func openEngine(cfg *config.Config) (engine.Engine, health.Check, error) {
	switch cfg.Engine.Backend {
	case "bleve":
		eng := enginebleve.New(cfg.Bleve.Dir)
		up := func(ctx context.Context) health.ComponentHealth {
			return health.ComponentHealth{Status: health.StatusUp, Message: "embedded"}
		}
		return eng, up, nil
	case "postgres":
		client, err := pkgpostgres.New(cfg.Postgres)
		if err != nil {
			return nil, nil, err
		}
		return enginepostgres.New(client), pingCheck("index engine", client.Ping), nil
	case "memory":
		eng := enginememory.New()
		up := func(ctx context.Context) health.ComponentHealth {
			return health.ComponentHealth{Status: health.StatusUp, Message: "in-memory"}
		}
		return eng, up, nil
	default:
		return nil, nil, fmt.Errorf("unknown engine backend %q", cfg.Engine.Backend)
	}
}

func openBroadcaster(cfg *config.Config, redisClient *pkgredis.Client) (pubsub.Broadcaster, health.Check, error) {
	switch cfg.Broadcast.Backend {
	case "redis":
		if redisClient == nil {
			return nil, nil, fmt.Errorf("redis broadcast selected but redis is not connected")
		}
		return pubsubredis.New(redisClient), pingCheck("broadcast", redisClient.Ping), nil
	case "memory":
		up := func(ctx context.Context) health.ComponentHealth {
			return health.ComponentHealth{Status: health.StatusUp, Message: "in-process"}
		}
		return pubsubmemory.New(), up, nil
	default:
		return nil, nil, fmt.Errorf("unknown broadcast backend %q", cfg.Broadcast.Backend)
	}
}

// pingCheck adapts a Ping method into a health check, bounding it so one
// hung backend cannot stall the whole readiness report.
func pingCheck(name string, ping func(ctx context.Context) error) health.Check {
	return func(ctx context.Context) health.ComponentHealth {
		if err := resilience.WithTimeout(ctx, 2*time.Second, name, ping); err != nil {
			return health.ComponentHealth{Status: health.StatusDown, Message: err.Error()}
		}
		return health.ComponentHealth{Status: health.StatusUp}
	}
}
