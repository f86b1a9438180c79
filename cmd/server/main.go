package main // Entry point package

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/iliyamo/event-booking/internal/booking"
	"github.com/iliyamo/event-booking/internal/clock"
	"github.com/iliyamo/event-booking/internal/config"
	"github.com/iliyamo/event-booking/internal/database"
	"github.com/iliyamo/event-booking/internal/handler"
	"github.com/iliyamo/event-booking/internal/middleware"
	"github.com/iliyamo/event-booking/internal/payment"
	"github.com/iliyamo/event-booking/internal/queue"
	"github.com/iliyamo/event-booking/internal/repository"
	"github.com/iliyamo/event-booking/internal/router"
	"github.com/iliyamo/event-booking/internal/service"
	"github.com/iliyamo/event-booking/internal/ticket"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("no .env file loaded: %v", err)
	}
	cfg := config.Load()
	bcfg := config.LoadBookingConfig()
	xcfg := config.LoadXenditConfig()
	broker := config.LoadBrokerConfig()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(ctx, database.Options{
		User: cfg.DBUser, Pass: cfg.DBPass, Host: cfg.DBHost, Port: cfg.DBPort, Name: cfg.DBName,
		MaxOpenConns:    cfg.DBMaxOpenConns,
		ConnMaxLifetime: cfg.DBConnMaxLifetime,
	})
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer db.Close()
	if err := database.Migrate(ctx, db); err != nil {
		log.Fatalf("migrate: %v", err)
	}

	rdb, err := config.NewRedisClient(ctx, config.LoadRedisConfig())
	if err != nil {
		log.Printf("redis unavailable: %v", err)
	}
	if rdb == nil {
		log.Printf("running without redis: cache, rate limiting and reconcile locks disabled")
	} else {
		defer rdb.Close()
	}

	fees, err := booking.NewFeePolicy(bcfg.FeeBasisPoints, bcfg.FeeFixedCents, bcfg.FeeTiers)
	if err != nil {
		log.Fatalf("fee policy: %v", err)
	}
	issuer, err := ticket.NewIssuer(bcfg.TicketNodeID, bcfg.TicketSecret)
	if err != nil {
		log.Fatalf("ticket issuer: %v", err)
	}
	if xcfg.SecretKey == "" {
		log.Printf("XENDIT_SECRET_KEY not set: gateway payments stay pending until configured")
	}

	clk := clock.NewSystem()
	store := repository.NewStore(db)
	engine := booking.NewEngine(booking.Deps{
		Store:   store,
		Gateway: payment.NewXenditGateway(xcfg.SecretKey),
		Tickets: issuer,
		Fees:    fees,
		Locker:  service.NewRedisLocker(rdb, "lock"),
		Clock:   clk,
	}, booking.Config{
		GatewayTimeout:   bcfg.GatewayTimeout,
		AwaitingWindow:   bcfg.AwaitingWindow,
		SweepBatch:       bcfg.SweepBatch,
		ReconcileLockTTL: bcfg.ReconcileLockTTL,
	})

	// Background workers stop with bg, after the HTTP server has drained.
	bg, cancelBG := context.WithCancel(context.Background())
	var wg sync.WaitGroup

	notifier := service.NewQueueNotifier(broker.URL, broker.Queue)
	defer notifier.Close()
	dispatcher := booking.NewDispatcher(notifier, bcfg.NotifyBuffer)
	wg.Add(1)
	go func() {
		defer wg.Done()
		dispatcher.Run(bg, bcfg.NotifyWorkers)
	}()
	if broker.Consume {
		go func() {
			if err := queue.StartNotificationConsumer(bg, broker.URL, broker.Queue, broker.LogPath); err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("notify-consumer stopped: %v", err)
			}
		}()
	}

	cache := middleware.NewResponseCache(config.LoadCacheConfig(), rdb)
	sweeper := &service.Sweeper{
		Engine:   engine,
		Notify:   dispatcher.Enqueue,
		OnEvent:  func(ctx context.Context, id uint64) { handler.InvalidateEvent(ctx, cache, id) },
		Interval: bcfg.SweepInterval,
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		sweeper.Run(bg)
	}()

	var users middleware.UserLookup
	if bcfg.CallerEmailLookups {
		users = repository.NewUserRepo(db)
	}
	bookings := handler.NewBookingHandler(engine, dispatcher, cache)
	tickets := handler.NewTicketHandler(ticket.NewService(issuer, store, clk))

	e := echo.New() // Create Echo instance
	e.HideBanner = true
	e.Use(echomw.Recover())
	router.RegisterRoutes(e, db)
	router.RegisterPublic(e, handler.NewEventHandler(store, clk), cache)
	router.RegisterWebhooks(e, handler.NewWebhookHandler(bookings, xcfg.WebhookToken))
	router.RegisterHolder(e, bookings, tickets, cfg.JWTSecret, users, middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb))
	router.RegisterStaff(e, bookings, tickets, cfg.JWTSecret, users)

	addr := ":" + cfg.Port
	go func() {
		log.Printf("listening on %s (env=%s)", addr, cfg.Env)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal(err)
		}
	}()

	<-ctx.Done()
	log.Printf("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Printf("http shutdown: %v", err)
	}
	cancelBG()
	wg.Wait()
}
