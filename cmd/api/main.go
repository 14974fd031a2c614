package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Windi-Fikriyansyah/platfrom_be_invest/internal/auth"
	"github.com/Windi-Fikriyansyah/platfrom_be_invest/internal/config"
	"github.com/Windi-Fikriyansyah/platfrom_be_invest/internal/db"
	"github.com/Windi-Fikriyansyah/platfrom_be_invest/internal/handlers"
	"github.com/Windi-Fikriyansyah/platfrom_be_invest/internal/logging"
	"github.com/Windi-Fikriyansyah/platfrom_be_invest/internal/middleware"
	"github.com/Windi-Fikriyansyah/platfrom_be_invest/internal/models"
	"github.com/Windi-Fikriyansyah/platfrom_be_invest/internal/realtime"
	"github.com/Windi-Fikriyansyah/platfrom_be_invest/internal/services/admin"
	"github.com/Windi-Fikriyansyah/platfrom_be_invest/internal/services/checkin"
	"github.com/Windi-Fikriyansyah/platfrom_be_invest/internal/services/funding"
	"github.com/Windi-Fikriyansyah/platfrom_be_invest/internal/services/geo"
	"github.com/Windi-Fikriyansyah/platfrom_be_invest/internal/services/identity"
	"github.com/Windi-Fikriyansyah/platfrom_be_invest/internal/services/investment"
	"github.com/Windi-Fikriyansyah/platfrom_be_invest/internal/services/outbox"
	"github.com/Windi-Fikriyansyah/platfrom_be_invest/internal/services/referral"
	"github.com/Windi-Fikriyansyah/platfrom_be_invest/internal/services/scheduler"
	"github.com/Windi-Fikriyansyah/platfrom_be_invest/internal/services/tripay"
	"github.com/Windi-Fikriyansyah/platfrom_be_invest/internal/services/wallet"
	"github.com/Windi-Fikriyansyah/platfrom_be_invest/internal/store"
	"github.com/Windi-Fikriyansyah/platfrom_be_invest/internal/store/gormstore"
	"github.com/Windi-Fikriyansyah/platfrom_be_invest/internal/store/memstore"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	log, err := logging.New(cfg.Production())
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStore(cfg, log)
	if err != nil {
		log.Fatal("open store", zap.Error(err))
	}

	// Redis is optional: without it tokens and job locks stay in process and
	// wallet events only reach sockets on this instance.
	var (
		rdb    *redis.Client
		tokens identity.TokenStore = identity.NewMemoryTokens()
		locker scheduler.Locker    = &scheduler.LocalLocker{}
	)
	if cfg.RedisAddr != "" {
		rdb = realtime.NewRedis(cfg.RedisAddr, cfg.RedisPassword, log)
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Warn("redis unavailable, running single-instance", zap.Error(err))
			_ = rdb.Close()
			rdb = nil
		} else {
			tokens = identity.NewRedisTokens(rdb)
			locker = scheduler.RedisLocker{RDB: rdb}
		}
	}

	hub := realtime.NewHub(log)
	go hub.Run(ctx)
	notifier := realtime.NewNotifier(hub, rdb, log)
	if rdb != nil {
		go notifier.Subscribe(ctx)
	}

	walletSvc := wallet.NewWalletService(st, log)
	walletSvc.Notifier = notifier
	walletSvc.Timeout = cfg.OpTimeout

	referralSvc := referral.NewReferralService(st, walletSvc, log)
	referralSvc.Timeout = cfg.OpTimeout

	investmentSvc := investment.NewInvestmentService(st, walletSvc, log, cfg.Location)
	investmentSvc.Timeout = cfg.OpTimeout
	investmentSvc.BatchSize = cfg.AccrualBatchSize

	checkinSvc := checkin.NewCheckInService(st, walletSvc, log, cfg.Location)
	checkinSvc.Timeout = cfg.OpTimeout

	tripaySvc := tripay.NewTripayService(tripay.Options{
		APIKey:       cfg.TripayAPIKey,
		PrivateKey:   cfg.TripayPrivateKey,
		MerchantCode: cfg.TripayMerchantCode,
		Production:   cfg.TripayProduction,
		AppBaseURL:   cfg.AppBaseURL,
		FrontendURL:  cfg.FrontendBaseURL,
	})
	fundingSvc := funding.NewFundingService(st, walletSvc, tripaySvc, log)
	fundingSvc.Timeout = cfg.OpTimeout

	adminSvc := admin.NewAdminService(st, walletSvc, log, cfg.Location)
	adminSvc.Timeout = cfg.OpTimeout

	identitySvc := identity.NewIdentityService(st, referralSvc, tokens, identity.LogMailer{Log: log}, geo.NewClient(), log, identity.Options{
		JWTSecret:    cfg.JWTSecret,
		ExpiresMin:   cfg.JWTExpiresMin,
		ResetBaseURL: cfg.FrontendBaseURL,
	})
	identitySvc.Timeout = cfg.OpTimeout
	identitySvc.OnSessionChange(func(c auth.Caller, ev identity.SessionEvent) {
		hub.SendToUser(c.UserID, fiber.Map{"type": "session", "event": ev})
	})

	if n, err := adminSvc.SeedProducts(ctx); err != nil {
		log.Error("seed products", zap.Error(err))
	} else if n > 0 {
		log.Info("seeded default products", zap.Int("count", n))
	}
	if cfg.AdminEmail != "" && cfg.AdminPassword != "" {
		if err := identitySvc.EnsureAdmin(ctx, cfg.AdminEmail, cfg.AdminPassword); err != nil {
			log.Error("ensure admin", zap.Error(err))
		}
	}

	worker := outbox.NewWorker(st, log, cfg.OutboxInterval, cfg.OutboxMaxAttempts)
	worker.Register(models.TaskReferralBonus, referralSvc.HandleTask)
	worker.Register(models.TaskLoginActivity, identitySvc.HandleLoginTask)
	worker.Start()

	sched := scheduler.New(cfg.Location, locker, log)
	if err := sched.Add(cfg.AccrualCron, "daily-profit", func(ctx context.Context) error {
		res, err := investmentSvc.AccrueDailyProfits(ctx)
		if err != nil {
			return err
		}
		log.Info("daily profit accrued",
			zap.String("day", res.Day),
			zap.Int("paid", res.Paid),
			zap.Int("completed", res.Completed),
			zap.String("total", res.Total.String()))
		return nil
	}); err != nil {
		log.Fatal("schedule accrual", zap.Error(err))
	}
	sched.Start()

	app := fiber.New(fiber.Config{
		BodyLimit: 8 * 1024 * 1024,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			var fe *fiber.Error
			if errors.As(err, &fe) {
				code = fe.Code
			}
			return c.Status(code).JSON(fiber.Map{"success": false, "message": err.Error()})
		},
	})

	app.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORSOrigins,
		AllowMethods:     "GET,POST,PUT,PATCH,DELETE,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		ExposeHeaders:    "Content-Length, Content-Disposition",
		AllowCredentials: true,
	}))
	app.Use(middleware.Observe(log))

	app.Static("/uploads", cfg.UploadDir)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))
	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"success": true, "time": time.Now().UTC()})
	})

	authH := &handlers.AuthHandler{
		Identity: identitySvc,
		Log:      log,
		Expires:  cfg.JWTExpiresMin,
		Secure:   cfg.Production(),
	}
	routes := &handlers.Routes{
		Auth: authH,
		Google: &handlers.GoogleOAuthHandler{
			Auth:            authH,
			GoogleClientID:  cfg.GoogleClientID,
			GoogleSecret:    cfg.GoogleSecret,
			GoogleRedirect:  cfg.GoogleRedirect,
			FrontendBaseURL: cfg.FrontendBaseURL,
		},
		Wallet:     &handlers.WalletHandler{Wallet: walletSvc, Funding: fundingSvc, Log: log},
		Investment: &handlers.InvestmentHandler{Investment: investmentSvc, CheckIn: checkinSvc, Referral: referralSvc, Log: log},
		Product:    handlers.NewProductHandler(adminSvc, log, cfg.UploadDir, cfg.AppBaseURL),
		Payment:    handlers.NewPaymentHandler(tripaySvc, fundingSvc, log),
		Admin: &handlers.AdminHandler{
			Admin:      adminSvc,
			Funding:    fundingSvc,
			Referral:   referralSvc,
			Investment: investmentSvc,
			Wallet:     walletSvc,
			Log:        log,
		},
		Hub:           hub,
		AuthRateLimit: cfg.AuthRateLimit,
	}
	routes.Mount(app)

	go func() {
		if err := app.Listen(":" + cfg.AppPort); err != nil {
			log.Error("http server stopped", zap.Error(err))
			stop()
		}
	}()
	log.Info("api listening", zap.String("port", cfg.AppPort), zap.String("store", cfg.StoreDriver))

	<-ctx.Done()
	log.Info("shutting down")

	if err := app.ShutdownWithTimeout(15 * time.Second); err != nil {
		log.Warn("http shutdown", zap.Error(err))
	}
	sched.Stop()
	worker.Stop()
	if rdb != nil {
		_ = rdb.Close()
	}
}

func openStore(cfg config.Config, log *zap.Logger) (store.Store, error) {
	policy := store.RetryPolicy{MaxAttempts: cfg.TxMaxAttempts, BaseDelay: cfg.TxRetryBase, MaxDelay: time.Second}

	if cfg.StoreDriver == "memory" {
		log.Warn("using in-memory store, data is lost on restart")
		return memstore.New().WithRetryPolicy(policy), nil
	}

	gdb, err := db.Connect(cfg.DBDSN, !cfg.Production())
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(gdb); err != nil {
		return nil, err
	}
	return gormstore.New(gdb, policy), nil
}
