package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/layer-3/tessera/adapters/clock"
	"github.com/layer-3/tessera/adapters/events"
	"github.com/layer-3/tessera/adapters/store"
	"github.com/layer-3/tessera/adapters/tokenizer"
	"github.com/layer-3/tessera/config"
	"github.com/layer-3/tessera/observability"
	"github.com/layer-3/tessera/ports"
	"github.com/layer-3/tessera/service"
	httptransport "github.com/layer-3/tessera/transport/http"
)

const purgeInterval = 10 * time.Minute

type stores struct {
	blocklist ports.Blocklist
	allowlist ports.Allowlist
	pingers   []ports.Pinger
	purge     func(ctx context.Context) (int64, error)
	close     func()
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStores(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to open stores", zap.String("driver", cfg.StoreDriver), zap.Error(err))
	}
	defer st.close()

	tk, err := tokenizer.NewJWTTokenizer([]byte(cfg.JWTSecret), tokenizer.WithIssuer(cfg.JWTIssuer))
	if err != nil {
		logger.Fatal("failed to create tokenizer", zap.Error(err))
	}

	var eventPub ports.EventPublisher = events.NopPublisher{}
	if cfg.EventsEnabled {
		pub, closePub, err := newEventPublisher(cfg, logger)
		if err != nil {
			logger.Fatal("failed to create event publisher", zap.Error(err))
		}
		defer closePub()
		eventPub = pub
	}

	tokens, err := service.NewTokenService(tk, st.blocklist, st.allowlist,
		service.WithEventPublisher(eventPub),
		service.WithLogger(logger.Named("tokens")),
	)
	if err != nil {
		logger.Fatal("failed to create token service", zap.Error(err))
	}
	authService := service.NewAuthService(tokens)

	go runPurger(ctx, st.purge, logger)

	gin.SetMode(gin.ReleaseMode)
	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           httptransport.SetupRouter(authService, logger, cfg.RequestTimeout, st.pingers...),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("listening", zap.String("addr", cfg.HTTPAddr), zap.String("store", cfg.StoreDriver))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("http listen", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown", zap.Error(err))
	}
}

func openStores(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*stores, error) {
	switch cfg.StoreDriver {
	case config.DriverRedis:
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		client := redis.NewClient(opts)
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, err
		}

		allowlist := store.NewRedisAllowlist(client, nil)
		blocklist := store.NewRedisBlocklist(client)
		return &stores{
			blocklist: blocklist,
			allowlist: allowlist,
			pingers:   []ports.Pinger{allowlist},
			close:     func() { _ = client.Close() },
		}, nil

	case config.DriverPostgres:
		pool, err := pgxpool.New(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		if err := store.EnsureSchema(ctx, pool); err != nil {
			pool.Close()
			return nil, err
		}

		allowlist := store.NewPostgresAllowlist(pool, nil)
		blocklist := store.NewPostgresBlocklist(pool, nil)
		return &stores{
			blocklist: blocklist,
			allowlist: allowlist,
			pingers:   []ports.Pinger{allowlist},
			purge: func(ctx context.Context) (int64, error) {
				a, err := allowlist.PurgeExpired(ctx)
				if err != nil {
					return a, err
				}
				b, err := blocklist.PurgeExpired(ctx)
				return a + b, err
			},
			close: pool.Close,
		}, nil

	default:
		logger.Warn("using in-memory token stores, revocations are lost on restart")
		c := clock.System{}
		allowlist := store.NewMemoryAllowlist(c)
		blocklist := store.NewMemoryBlocklist(c)
		return &stores{
			blocklist: blocklist,
			allowlist: allowlist,
			pingers:   []ports.Pinger{allowlist, blocklist},
			purge: func(context.Context) (int64, error) {
				return int64(allowlist.Purge() + blocklist.Purge()), nil
			},
			close: func() {},
		}, nil
	}
}

func newEventPublisher(cfg *config.Config, logger *zap.Logger) (ports.EventPublisher, func(), error) {
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, nil, err
	}
	client := redis.NewClient(opts)

	publisher, err := redisstream.NewPublisher(
		redisstream.PublisherConfig{
			Client: client,
		},
		observability.NewWatermillLogger(logger),
	)
	if err != nil {
		_ = client.Close()
		return nil, nil, err
	}

	return events.NewWatermillPublisher(publisher), func() {
		_ = publisher.Close()
		_ = client.Close()
	}, nil
}

// runPurger removes expired revocation entries until ctx is done.
// Redis expires keys on its own and needs no purger.
func runPurger(ctx context.Context, purge func(context.Context) (int64, error), logger *zap.Logger) {
	if purge == nil {
		return
	}

	ticker := time.NewTicker(purgeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := purge(ctx)
			if err != nil {
				logger.Warn("failed to purge expired tokens", zap.Error(err))
				continue
			}
			if n > 0 {
				logger.Debug("purged expired tokens", zap.Int64("count", n))
			}
		}
	}
}
