package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"vanta-access/config"
	"vanta-access/internal/auth"
	"vanta-access/internal/cache"
	"vanta-access/internal/clock"
	"vanta-access/internal/database"
	"vanta-access/internal/fixture"
	"vanta-access/internal/handler"
	"vanta-access/internal/queue"
	"vanta-access/internal/repository"
	"vanta-access/internal/repository/memory"
	"vanta-access/internal/service"
	"vanta-access/internal/worker"
	"vanta-access/pkg/logger"
	"vanta-access/pkg/telemetry"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// stores 持久層的各個 port
type stores struct {
	tx      repository.TxManager
	events  repository.EventRepository
	tickets repository.TicketRepository
	guests  repository.GuestRepository
	audit   repository.AuditRepository
	health  handler.Pinger
	close   func()
}

func main() {
	if err := run(); err != nil {
		logger.WithComponent("server").Fatal("server exited", zap.Error(err))
	}
}

func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}
	if err := logger.Configure(cfg.Log.Level, cfg.Log.Development); err != nil {
		return err
	}
	defer logger.Sync()
	log := logger.WithComponent("server")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if _, err := telemetry.Init(ctx, telemetry.Config{
		Enabled:       cfg.OTel.Enabled,
		ServiceName:   cfg.OTel.ServiceName,
		CollectorAddr: cfg.OTel.CollectorAddr,
	}); err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = telemetry.Shutdown(shutdownCtx)
	}()

	loc, err := time.LoadLocation(cfg.Access.Timezone)
	if err != nil {
		return fmt.Errorf("invalid ACCESS_TIMEZONE: %w", err)
	}
	clk := clock.NewSystem(loc)

	st, err := openStores(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.close()

	var rdb *redis.Client
	if cfg.Store.Driver == "postgres" || cfg.Audit.Driver == "redis" {
		rdb, err = database.InitRedis(ctx, &cfg.Redis)
		if err != nil {
			return fmt.Errorf("failed to initialize redis: %w", err)
		}
		defer rdb.Close()
	}

	gate := cache.NewNopInventory()
	if cfg.Store.Driver == "postgres" {
		gate = cache.NewRedisVariationInventory(rdb)
	}

	auditQueue, err := openAuditQueue(ctx, cfg, rdb)
	if err != nil {
		return err
	}
	defer auditQueue.Close()

	recorder := service.NewAuditRecorder(auditQueue, auth.ContextResolver{}, clk, cfg.Audit.PublishTimeout)
	inventorySvc := service.NewInventoryService(st.tx, st.events, st.tickets, gate, recorder)
	quotaSvc := service.NewQuotaService(st.tickets)
	ticketSvc := service.NewTicketService(st.tx, st.events, st.tickets, inventorySvc, quotaSvc, gate, recorder, clk)
	guestSvc := service.NewGuestService(st.tx, st.events, st.guests, recorder, clk)
	eventSvc := service.NewEventService(st.events, clk)

	if !cfg.Log.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := handler.NewRouter(auth.NewAuthenticator(cfg.JWT.Secret, cfg.JWT.Issuer), handler.Handlers{
		Events:  handler.NewEventHandler(eventSvc, inventorySvc),
		Tickets: handler.NewTicketHandler(ticketSvc),
		Guests:  handler.NewGuestHandler(guestSvc),
		Health:  handler.NewHealthHandler(st.health, recorder),
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return worker.NewAuditWorker(st.audit, auditQueue).Run(gctx)
	})
	g.Go(func() error {
		return worker.NewReconcileWorker(st.events, inventorySvc, cfg.Access.ReconcileInterval).Run(gctx)
	})
	g.Go(func() error {
		return worker.NewTransferSweeper(ticketSvc, cfg.Access.TransferTTL, cfg.Access.SweepInterval).Run(gctx)
	})
	g.Go(func() error {
		log.Info("http server listening", zap.String("addr", srv.Addr), zap.String("store", cfg.Store.Driver), zap.String("audit", cfg.Audit.Driver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		log.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func openStores(ctx context.Context, cfg *config.Config) (*stores, error) {
	if cfg.Store.Driver == "memory" {
		store := memory.NewStore()
		if cfg.Store.FixturePath != "" {
			events, err := fixture.Load(cfg.Store.FixturePath)
			if err != nil {
				return nil, err
			}
			if err := fixture.Seed(ctx, store.Events(), events); err != nil {
				return nil, err
			}
		}
		return &stores{
			tx:      store.TxManager(),
			events:  store.Events(),
			tickets: store.Tickets(),
			guests:  store.Guests(),
			audit:   store.AuditLog(),
			close:   func() {},
		}, nil
	}

	pool, err := database.InitDatabase(ctx, &cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	if err := database.Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	if cfg.Store.FixturePath != "" {
		events, err := fixture.Load(cfg.Store.FixturePath)
		if err != nil {
			pool.Close()
			return nil, err
		}
		if err := fixture.Seed(ctx, repository.NewEventRepository(pool), events); err != nil {
			pool.Close()
			return nil, err
		}
	}
	return &stores{
		tx:      repository.NewTxManager(pool),
		events:  repository.NewEventRepository(pool),
		tickets: repository.NewTicketRepository(pool),
		guests:  repository.NewGuestRepository(pool),
		audit:   repository.NewAuditRepository(pool),
		health:  pool,
		close:   pool.Close,
	}, nil
}

func openAuditQueue(ctx context.Context, cfg *config.Config, rdb *redis.Client) (queue.AuditQueue, error) {
	switch cfg.Audit.Driver {
	case "redis":
		host, _ := os.Hostname()
		return queue.NewRedisStreamAuditQueue(ctx, rdb, host, nil)
	case "kafka":
		return queue.NewKafkaAuditQueue(ctx, queue.KafkaAuditQueueConfig{
			Brokers: cfg.Audit.KafkaBrokers,
			Topic:   cfg.Audit.KafkaTopic,
			GroupID: cfg.Audit.KafkaGroup,
		})
	default:
		return queue.NewAuditQueue(1024), nil
	}
}
