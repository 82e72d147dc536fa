package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/digkill/web3analysis/internal/api"
	"github.com/digkill/web3analysis/internal/chain"
	"github.com/digkill/web3analysis/internal/config"
	"github.com/digkill/web3analysis/internal/database"
	"github.com/digkill/web3analysis/internal/jobs"
	"github.com/digkill/web3analysis/internal/notify"
	"github.com/digkill/web3analysis/internal/openai"
	"github.com/digkill/web3analysis/internal/repository"
	"github.com/digkill/web3analysis/internal/repository/memory"
	"github.com/digkill/web3analysis/internal/service"
	"github.com/digkill/web3analysis/internal/storage"
	"github.com/digkill/web3analysis/pkg/logger"
)

type stores struct {
	tx       service.Transactor
	users    service.UserStore
	credits  service.CreditStore
	orders   service.OrderStore
	reports  service.ReportStore
	requests service.RequestStore
	plans    service.PlanStore
	health   api.HealthFunc
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logr := logger.New(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, closeStore, err := openStores(ctx, cfg, logr)
	if err != nil {
		log.Fatalf("storage: %v", err)
	}
	defer closeStore()

	var images service.ImageStore
	if cfg.S3Enabled() {
		uploader, err := storage.NewUploader(storage.Config{
			Endpoint:      cfg.S3Endpoint,
			Region:        cfg.S3Region,
			AccessKey:     cfg.S3AccessKey,
			SecretKey:     cfg.S3SecretKey,
			Bucket:        cfg.S3Bucket,
			PublicBaseURL: cfg.S3PublicBaseURL,
			UsePathStyle:  cfg.S3UsePathStyle,
			Prefix:        cfg.S3Prefix,
		}, &http.Client{Timeout: cfg.RequestTimeout})
		if err != nil {
			log.Fatalf("storage uploader: %v", err)
		}
		images = uploader
	} else {
		logr.Warn("object storage not configured, generated reports will use the placeholder image")
	}

	var verifier chain.Verifier = chain.TrustVerifier{}
	if cfg.ChainRPCURL != "" {
		rv, closeRPC, err := chain.Dial(ctx, cfg.ChainRPCURL, cfg.ChainConfirmations)
		if err != nil {
			log.Fatalf("chain rpc: %v", err)
		}
		defer closeRPC()
		verifier = rv
	}

	var notifier notify.Notifier = notify.Nop{}
	if cfg.TelegramBotToken != "" {
		tn, err := notify.NewTelegramNotifier(cfg.TelegramBotToken, cfg.TelegramAlertChatID, logr)
		if err != nil {
			log.Fatalf("telegram notifier: %v", err)
		}
		notifier = tn
	}

	aiClient := openai.NewClient(cfg, logr)

	userService := service.NewUserService(st.users)
	planService := service.NewPlanService(cfg, st.plans)
	ledgerService := service.NewLedgerService(cfg, logr, st.tx, st.credits, st.orders, st.reports)
	guardService := service.NewGuardService(cfg, logr, st.requests)
	reportService := service.NewReportService(cfg, logr, st.reports)
	orderService := service.NewOrderService(cfg, logr, st.tx, st.orders, planService, userService, ledgerService, verifier, notifier)
	generationService := service.NewGenerationService(cfg, logr, st.tx, ledgerService, guardService, st.reports, aiClient, images, notifier)

	if err := planService.EnsureDefaultPlans(ctx); err != nil {
		log.Fatalf("ensure default plans: %v", err)
	}

	scheduler := jobs.NewScheduler(logr, guardService, ledgerService)
	if err := scheduler.Register(cfg.MaintenanceSchedule); err != nil {
		log.Fatalf("maintenance jobs: %v", err)
	}
	scheduler.Start(ctx)

	server := api.NewServer(cfg, logr, api.Services{
		Users:      userService,
		Plans:      planService,
		Ledger:     ledgerService,
		Orders:     orderService,
		Reports:    reportService,
		Generation: generationService,
	}, st.health)
	if err := server.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logr.Error("http server stopped", "err", err)
	}
}

func openStores(ctx context.Context, cfg config.Config, logr *slog.Logger) (*stores, func(), error) {
	if cfg.StorageDriver == config.DriverMemory {
		logr.Warn("using in-memory storage, data is lost on restart and not shared between instances")
		store := memory.NewStore()
		return &stores{
			tx:       store,
			users:    store.Users(),
			credits:  store.Credits(),
			orders:   store.Orders(),
			reports:  store.Reports(),
			requests: store.Requests(),
			plans:    store.Plans(),
			health:   store.Ping,
		}, func() {}, nil
	}

	db, err := database.Connect(ctx, cfg.MySQLDSN)
	if err != nil {
		return nil, nil, err
	}
	if err := database.Migrate(ctx, db); err != nil {
		db.Close()
		return nil, nil, err
	}
	return &stores{
		tx:       database.NewTxManager(db),
		users:    repository.NewUserRepository(db),
		credits:  repository.NewCreditRepository(db),
		orders:   repository.NewOrderRepository(db),
		reports:  repository.NewReportRepository(db),
		requests: repository.NewRequestRepository(db),
		plans:    repository.NewPlanRepository(db),
		health:   db.PingContext,
	}, func() { db.Close() }, nil
}
