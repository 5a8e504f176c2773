package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/whatsdesk/whatsdesk/internal/api/http"
	"github.com/whatsdesk/whatsdesk/internal/api/http/handlers"
	"github.com/whatsdesk/whatsdesk/internal/api/ws"
	"github.com/whatsdesk/whatsdesk/internal/channel"
	"github.com/whatsdesk/whatsdesk/internal/config"
	"github.com/whatsdesk/whatsdesk/internal/events"
	"github.com/whatsdesk/whatsdesk/internal/observability"
	"github.com/whatsdesk/whatsdesk/internal/persistence"
	"github.com/whatsdesk/whatsdesk/internal/repository"
	"github.com/whatsdesk/whatsdesk/internal/service"
	"github.com/whatsdesk/whatsdesk/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redis := persistence.NewRedis(cfg.Redis, logger)
	defer redis.Close()

	metrics := observability.NewMetrics()
	dispatcher := events.NewInMemoryDispatcher()

	externalPublisher, err := events.NewAMQPPublisher(ctx, cfg.AMQP, logger)
	if err != nil {
		logger.Fatal("failed to init amqp publisher", zap.Error(err))
	}
	defer externalPublisher.Close() //nolint:errcheck

	pool := pg.PoolHandle()
	customerRepo := repository.NewCustomerRepository(pool)
	conversationRepo := repository.NewConversationRepository(pool)
	departmentRepo := repository.NewDepartmentRepository(pool)
	agentRepo := repository.NewAgentRepository(pool)
	ticketRepo := repository.NewTicketRepository(pool)
	assignmentRepo := repository.NewAssignmentRepository(pool)
	messageRepo := repository.NewMessageRepository(pool)
	dedupRepo := repository.NewDedupRepository(redis.Client)

	directoryService := service.NewDirectoryService(service.DirectoryDependencies{
		CustomerRepo:     customerRepo,
		ConversationRepo: conversationRepo,
		Logger:           logger,
	})
	queueService := service.NewQueueService(service.QueueDependencies{
		TicketRepo:     ticketRepo,
		DepartmentRepo: departmentRepo,
		Logger:         logger,
	})
	agentService := service.NewAgentService(service.AgentDependencies{
		AgentRepo:      agentRepo,
		DepartmentRepo: departmentRepo,
		Logger:         logger,
	})
	ticketService := service.NewTicketService(service.TicketDependencies{
		TicketRepo:       ticketRepo,
		AssignmentRepo:   assignmentRepo,
		MessageRepo:      messageRepo,
		ConversationRepo: conversationRepo,
		DepartmentRepo:   departmentRepo,
		Dispatcher:       dispatcher,
		Logger:           logger,
	})
	assignmentService := service.NewAssignmentService(service.AssignmentDependencies{
		TicketRepo:     ticketRepo,
		AgentRepo:      agentRepo,
		DepartmentRepo: departmentRepo,
		Dispatcher:     dispatcher,
		Logger:         logger,
	})

	if err := queueService.Seed(ctx, cfg.Seed.Departments); err != nil {
		logger.Fatal("failed to seed departments", zap.Error(err))
	}
	defaultDepartmentID := resolveDefaultDepartment(ctx, queueService, logger)

	inbound := channel.NewInbound(channel.InboundDependencies{
		Directory:           directoryService,
		Tickets:             ticketService,
		MessageRepo:         messageRepo,
		DedupRepo:           dedupRepo,
		Dispatcher:          dispatcher,
		Logger:              logger,
		DefaultDepartmentID: defaultDepartmentID,
		Workers:             cfg.Channel.InboundWorkers,
		DedupTTL:            cfg.Channel.DedupTTL(),
	})
	inbound.Start(ctx)

	session := channel.NewSession(channel.SessionDependencies{
		Provider:         channel.NewNoopProvider(),
		Config:           cfg.Channel,
		ConversationRepo: conversationRepo,
		TicketRepo:       ticketRepo,
		MessageRepo:      messageRepo,
		Inbound:          inbound,
		Dispatcher:       dispatcher,
		Logger:           logger,
	})
	if err := session.Start(ctx); err != nil {
		logger.Fatal("failed to start channel session", zap.Error(err))
	}

	hub := ws.NewHub(cfg.Push.ClientBufferSize, metrics, logger)
	go hub.Run(ctx)

	pushWorker := worker.NewPushWorker(hub, externalPublisher, logger)
	pushWorker.Register(dispatcher)

	app := fiber.New(fiber.Config{AppName: cfg.App.Name})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:        handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, pg, redis, session),
		Conversations: handlers.NewConversationsHandler(directoryService, ticketService, session),
		Tickets:       handlers.NewTicketsHandler(ticketService, assignmentService),
		Customers:     handlers.NewCustomersHandler(directoryService),
		Agents:        handlers.NewAgentsHandler(agentService, ticketService, cfg.Push),
		Departments:   handlers.NewDepartmentsHandler(queueService, session),
		Hub:           hub,
		Push:          cfg.Push,
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	_ = app.Shutdown()
	session.Stop()
	inbound.Stop()
	cancel()
}

// resolveDefaultDepartment picks the routing target for inbound-created
// tickets. First seeded department wins; with none configured the first
// active department serves.
func resolveDefaultDepartment(ctx context.Context, queues *service.QueueService, logger *zap.Logger) string {
	departments, err := queues.ListDepartments(ctx)
	if err != nil {
		logger.Warn("unable to list departments for inbound routing", zap.Error(err))
		return ""
	}
	if len(departments) == 0 {
		logger.Warn("no departments configured; inbound tickets cannot be routed until one exists")
		return ""
	}
	return departments[0].ID
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
