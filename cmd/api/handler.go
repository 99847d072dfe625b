package api

import (
	"log"

	authUsecase "shipmate-backend/internal/auth/usecase"
	shipmentRepo "shipmate-backend/internal/shipment/repository"
	shipmentUsecasePkg "shipmate-backend/internal/shipment/usecase"
	"shipmate-backend/pkg/ai"
	"shipmate-backend/pkg/config"
	"shipmate-backend/pkg/sse"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	authUsecase     authUsecase.AuthUsecase
	shipmentUsecase shipmentUsecasePkg.ShipmentUsecase
	sseManager      *sse.Manager
	config          *config.Config
	extractWorker   *shipmentUsecasePkg.ExtractWorkerService
}

func NewHandler(
	authUc authUsecase.AuthUsecase,
	shipmentUc shipmentUsecasePkg.ShipmentUsecase,
	sseManager *sse.Manager,
	cfg *config.Config,
	messageRepo shipmentRepo.MessageRepository,
	summaryRepo shipmentRepo.SummaryRepository,
	eventService shipmentUsecasePkg.EventService,
) *Handler {
	// Initialize AI extraction service
	aiService, err := ai.NewExtractorService(ai.Config{
		Provider:      ai.ProviderType(cfg.AIProvider),
		GeminiAPIKey:  cfg.GeminiAPIKey,
		GeminiModel:   cfg.GeminiModel,
		OllamaBaseURL: cfg.OllamaBaseURL,
		OllamaModel:   cfg.OllamaModel,
	})
	if err != nil {
		log.Printf("[API] Warning: failed to initialize AI service: %v", err)
	} else {
		log.Printf("[API] AI service initialized with provider: %s", cfg.AIProvider)
	}

	// Background workers for structured data extraction
	extractWorker := shipmentUsecasePkg.NewExtractWorkerService(messageRepo, summaryRepo, cfg.ExtractWorkers)
	if aiService != nil {
		extractWorker.SetAIService(aiService)
	}
	extractWorker.SetEventService(eventService)
	extractWorker.Start()
	log.Println("[API] Extraction worker service started")

	shipmentUc.SetEventService(eventService)
	shipmentUc.SetExtractWorker(extractWorker)

	return &Handler{
		authUsecase:     authUc,
		shipmentUsecase: shipmentUc,
		sseManager:      sseManager,
		config:          cfg,
		extractWorker:   extractWorker,
	}
}

func (h *Handler) Start(addr string) error {
	r := gin.Default()
	gin.SetMode(gin.ReleaseMode)

	// CORS middleware
	r.Use(func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin != "" {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
		} else {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		}

		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE, PATCH")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	// Setup routes
	SetupRoutes(r, h.authUsecase, h.shipmentUsecase, h.sseManager)

	return r.Run(addr)
}
