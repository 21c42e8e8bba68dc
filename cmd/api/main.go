package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/schoolworks/maintenance-desk/internal/api/http"
	"github.com/schoolworks/maintenance-desk/internal/api/http/handlers"
	"github.com/schoolworks/maintenance-desk/internal/auth"
	"github.com/schoolworks/maintenance-desk/internal/config"
	"github.com/schoolworks/maintenance-desk/internal/duedate"
	"github.com/schoolworks/maintenance-desk/internal/events"
	"github.com/schoolworks/maintenance-desk/internal/ingest"
	"github.com/schoolworks/maintenance-desk/internal/mailer"
	"github.com/schoolworks/maintenance-desk/internal/observability"
	"github.com/schoolworks/maintenance-desk/internal/persistence"
	"github.com/schoolworks/maintenance-desk/internal/repository"
	"github.com/schoolworks/maintenance-desk/internal/repository/memory"
	"github.com/schoolworks/maintenance-desk/internal/service"
	"github.com/schoolworks/maintenance-desk/internal/ticketnumber"
	"github.com/schoolworks/maintenance-desk/internal/worker"
)

type repositories struct {
	tickets       repository.TicketRepository
	comments      repository.TicketCommentRepository
	history       repository.TicketHistoryRepository
	attachments   repository.AttachmentRepository
	notifications repository.NotificationRepository
	roles         repository.RoleRepository
	catalog       repository.CatalogRepository
	counters      repository.TicketCounterRepository
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger, cfg.App)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	metrics := observability.NewMetrics()
	loc := cfg.Schedule.Location()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if pg.Enabled() && cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.Pool, cfg.Postgres.MigrationsDir, logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	rdb := persistence.NewRedis(cfg.Redis, logger)
	defer rdb.Close()

	repos := buildRepositories(pg, rdb, cfg.Redis, logger)

	dispatcher := events.NewInMemoryDispatcher(logger)
	var broadcaster events.Broadcaster
	if rdb.Client != nil {
		broadcaster = events.NewRedisBroadcaster(rdb.Client, cfg.Redis.KeyPrefix, logger)
	} else {
		broadcaster = events.NewMemoryBroadcaster()
	}
	events.RegisterLiveFeed(dispatcher, broadcaster)

	sender := mailer.NewSender(cfg.Mail, logger)
	var (
		queue       mailer.Queue
		emailWorker *worker.EmailWorker
		directQueue *mailer.DirectQueue
	)
	if cfg.Queue.URL != "" {
		amqpQueue := mailer.NewAMQPQueue(cfg.Queue.URL, cfg.Queue.EmailQueue, cfg.Queue.PublishTimeout, logger)
		defer amqpQueue.Close()
		queue = amqpQueue
		emailWorker = worker.NewEmailWorker(cfg.Queue, sender, metrics, logger)
	} else {
		logger.Warn("AMQP_URL not provided; emails are sent in-process")
		directQueue = mailer.NewDirectQueue(sender, logger, 0)
		queue = directQueue
	}

	roleService := service.NewRoleService(service.RoleDependencies{
		RoleRepo:            repos.roles,
		BootstrapAdminEmail: cfg.Auth.BootstrapAdminEmail,
		Logger:              logger,
	})
	catalogService := service.NewCatalogService(repos.catalog)
	if !pg.Enabled() {
		if n, err := catalogService.Seed(ctx); err != nil {
			logger.Warn("seeding reference data failed", zap.Error(err))
		} else {
			logger.Info("seeded reference data", zap.Int("created", n))
		}
	}
	notificationService := service.NewNotificationService(service.NotificationDependencies{
		NotificationRepo: repos.notifications,
		TicketRepo:       repos.tickets,
		Catalog:          catalogService,
		Dispatcher:       dispatcher,
		Queue:            queue,
		Renderer:         mailer.NewRenderer(cfg.Mail.PublicBaseURL, loc),
		AlertRecipients:  cfg.Mail.AlertRecipients,
		Metrics:          metrics,
		Logger:           logger,
	})
	notificationService.RegisterHandlers()

	ticketService := service.NewTicketService(service.TicketDependencies{
		TicketRepo:        repos.tickets,
		CommentRepo:       repos.comments,
		HistoryRepo:       repos.history,
		AttachmentRepo:    repos.attachments,
		Catalog:           catalogService,
		Numbers:           ticketnumber.NewGenerator(repos.counters, ticketnumber.SystemClock(loc)),
		DueDates:          duedate.New(cfg.Institute.HolidayCalendar, loc),
		Parser:            ingest.NewParser(cfg.Ingest.MaxBodyBytes),
		InstitutionDomain: cfg.Institute.EmailDomain,
		Dispatcher:        dispatcher,
		Logger:            logger,
	})
	mutationService := service.NewMutationService(service.MutationDependencies{
		TicketRepo: repos.tickets,
		RoleRepo:   repos.roles,
		Notifier:   notificationService,
		Dispatcher: dispatcher,
		Metrics:    metrics,
		Logger:     logger,
	})
	analyticsService := service.NewAnalyticsService(repos.tickets, roleService, catalogService, nil)

	scheduler, err := worker.NewOverdueScheduler(cfg.Schedule.OverdueCron, loc, notificationService, logger)
	if err != nil {
		logger.Fatal("invalid overdue schedule", zap.Error(err))
	}

	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTLMinutes)
	authMiddleware := auth.NewAuthMiddleware(tokens, roleService)

	app := fiber.New(fiber.Config{
		AppName:   cfg.App.Name,
		BodyLimit: cfg.Ingest.MaxBodyBytes + 64*1024,
	})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:           handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, pg, rdb),
		Public:           handlers.NewPublicHandler(ticketService, logger),
		Tickets:          handlers.NewTicketsHandler(ticketService, mutationService, nil),
		Staff:            handlers.NewStaffHandler(roleService),
		Reference:        handlers.NewReferenceHandler(catalogService),
		Notifications:    handlers.NewNotificationsHandler(notificationService),
		Analytics:        handlers.NewAnalyticsHandler(analyticsService),
		Live:             handlers.NewLiveHandler(ctx, ticketService, broadcaster, logger),
		AuthMiddleware:   authMiddleware,
		MetricsRegistry:  metrics.Registry(),
		CORSAllowOrigins: cfg.App.CORSAllowOrigins,
		IngestKeyHash:    cfg.Ingest.APIKeyHash,
	})

	var background sync.WaitGroup
	background.Add(1)
	go func() {
		defer background.Done()
		if err := scheduler.Run(ctx); err != nil {
			logger.Error("overdue scheduler stopped", zap.Error(err))
		}
	}()
	if emailWorker != nil {
		background.Add(1)
		go func() {
			defer background.Done()
			if err := emailWorker.Run(ctx); err != nil {
				logger.Error("email worker stopped", zap.Error(err))
			}
		}()
	}

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	cancel()
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	background.Wait()
	if directQueue != nil {
		directQueue.Wait()
	}
}

func buildRepositories(pg *persistence.Postgres, rdb *persistence.Redis, cfg config.RedisConfig, logger *zap.Logger) repositories {
	var repos repositories
	if pg.Enabled() {
		pool := pg.Pool
		repos = repositories{
			tickets:       repository.NewTicketRepository(pool),
			comments:      repository.NewTicketCommentRepository(pool),
			history:       repository.NewTicketHistoryRepository(pool),
			attachments:   repository.NewAttachmentRepository(pool),
			notifications: repository.NewNotificationRepository(pool),
			roles:         repository.NewRoleRepository(pool),
			catalog:       repository.NewCatalogRepository(pool),
			counters:      repository.NewTicketCounterRepository(pool),
		}
	} else {
		store := memory.NewStore()
		repos = repositories{
			tickets:       store.Tickets(),
			comments:      store.Comments(),
			history:       store.History(),
			attachments:   store.Attachments(),
			notifications: store.Notifications(),
			roles:         store.Roles(),
			catalog:       store.Catalog(),
			counters:      store.Counters(),
		}
	}
	if rdb.Client != nil {
		repos.catalog = repository.NewCachedCatalogRepository(repos.catalog, rdb.Client, cfg.KeyPrefix, cfg.CacheTTL, logger)
	}
	return repos
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
