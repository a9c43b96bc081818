package main

import (
	"log"

	api "triage-backend/cmd/api"
	draftdelivery "triage-backend/internal/draft/delivery"
	draftdomain "triage-backend/internal/draft/domain"
	draftRepo "triage-backend/internal/draft/repository"
	draftUsecase "triage-backend/internal/draft/usecase"
	"triage-backend/internal/sendguard"
	"triage-backend/internal/triage/domain"
	triageRepo "triage-backend/internal/triage/repository"
	"triage-backend/internal/triage/scheduler"
	triageUsecase "triage-backend/internal/triage/usecase"
	"triage-backend/pkg/ai"
	"triage-backend/pkg/chatfeed"
	"triage-backend/pkg/config"
	"triage-backend/pkg/database"
	"triage-backend/pkg/gmail"
	"triage-backend/pkg/imap"
	"triage-backend/pkg/logger"
)

func main() {
	// Load configuration
	cfg := config.Load()

	zapLogger := logger.New()
	defer zapLogger.Sync()

	// Initialize database
	db, err := database.NewPostgresConnection(cfg)
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}

	// Auto-migrate database schemas
	if err := db.AutoMigrate(
		&domain.Message{},
		&domain.Thread{},
		&domain.ThreadParticipant{},
		&domain.SenderProfile{},
		&draftdomain.DraftRecord{},
		&draftdomain.DraftHistoryEntry{},
		&draftdomain.APICallLog{},
		&draftdomain.DraftGenerationLog{},
	); err != nil {
		log.Fatal("Failed to migrate database:", err)
	}

	// Initialize repositories (dependency injection)
	messageRepository := triageRepo.NewMessageRepository(db)
	threadRepository := triageRepo.NewThreadRepository(db)
	profileRepository := triageRepo.NewSenderProfileRepository(db)
	draftRepository := draftRepo.NewDraftRepository(db)
	callLogRepository := draftRepo.NewCallLogRepository(db)

	// The guard is created before any mail adapter so nothing can reach a
	// provider without passing through it.
	guard := sendguard.NewGuard(zapLogger)

	// Initialize AI service
	aiService, err := ai.NewDraftService(ai.Config{
		Provider:      ai.ProviderType(cfg.AIProvider),
		GeminiAPIKey:  cfg.GeminiAPIKey,
		OllamaBaseURL: cfg.OllamaBaseURL,
		OllamaModel:   cfg.OllamaModel,
	}, zapLogger)
	if err != nil {
		log.Fatal("Failed to initialize AI service:", err)
	}

	// Initialize mail sources
	sources := map[domain.Provider]triageUsecase.MessageSource{}
	for _, account := range cfg.Accounts {
		switch domain.Provider(account.Provider) {
		case domain.ProviderGmail:
			sources[domain.ProviderGmail] = gmail.NewService(cfg.GoogleClientID, cfg.GoogleClientSecret, cfg.GmailAccessToken, cfg.GmailRefreshToken, guard, zapLogger)
		case domain.ProviderIMAP:
			sources[domain.ProviderIMAP] = imap.NewService(cfg.IMAPServer, cfg.IMAPUsername, cfg.IMAPPassword, guard, zapLogger)
		case domain.ProviderIMessage:
			sources[domain.ProviderIMessage] = chatfeed.NewService(cfg.ChatFeedPath, guard, zapLogger)
		default:
			log.Printf("Warning: no source adapter for provider %q, account %q will be skipped", account.Provider, account.ID)
		}
	}

	// Initialize use cases (dependency injection)
	normalizer := triageUsecase.NewNormalizer(zapLogger)
	grouper := triageUsecase.NewThreadGrouper(threadRepository, zapLogger)
	scorer := triageUsecase.NewPriorityScorer(cfg.Scoring)
	categorizer := triageUsecase.NewCategorizer()

	budgeter := draftUsecase.NewContextBudgeter(cfg.Budget, zapLogger)
	builder := draftUsecase.NewContextBuilder(messageRepository, profileRepository, budgeter, zapLogger)
	filter := draftUsecase.NewSenderFilter(cfg.Filter, zapLogger)
	generator := draftUsecase.NewGenerator(draftRepository, aiService, zapLogger)
	orchestrator := draftUsecase.NewOrchestrator(builder, filter, generator, draftRepository, callLogRepository, cfg.RateLimit, zapLogger)

	pipeline := triageUsecase.NewPipeline(
		sources,
		cfg.Accounts,
		normalizer,
		grouper,
		scorer,
		categorizer,
		messageRepository,
		profileRepository,
		guard,
		orchestrator,
		cfg.FetchLimit,
		cfg.MinDraftPriority,
		cfg.StaleUnreadAfter,
		cfg.StaleMinPriority,
		zapLogger,
	)

	// Start the periodic triage runs
	pipelineScheduler := scheduler.NewPipelineScheduler(pipeline, cfg.RunInterval, zapLogger)
	pipelineScheduler.Start()
	defer pipelineScheduler.Stop()

	// Initialize HTTP handler
	draftHandler := draftdelivery.NewDraftHandler(draftRepository, callLogRepository, pipeline, guard)
	handler := api.NewHandler(cfg, draftHandler)

	// Start server
	log.Printf("Server starting on port %s", cfg.Port)
	if err := handler.Start(":" + cfg.Port); err != nil {
		log.Fatal("Failed to start server:", err)
	}
}
