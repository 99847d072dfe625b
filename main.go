package main

import (
	"log"

	api "shipmate-backend/cmd/api"
	authdomain "shipmate-backend/internal/auth/domain"
	authRepo "shipmate-backend/internal/auth/repository"
	authUsecase "shipmate-backend/internal/auth/usecase"
	"shipmate-backend/internal/notification"
	shipmentdomain "shipmate-backend/internal/shipment/domain"
	shipmentRepo "shipmate-backend/internal/shipment/repository"
	shipmentUsecase "shipmate-backend/internal/shipment/usecase"
	"shipmate-backend/pkg/config"
	"shipmate-backend/pkg/crypto"
	"shipmate-backend/pkg/database"
	"shipmate-backend/pkg/fcm"
	"shipmate-backend/pkg/lock"
	"shipmate-backend/pkg/mailbox"
	"shipmate-backend/pkg/sse"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize database
	db, err := database.NewPostgresConnection(cfg)
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}

	// Auto-migrate database schemas
	if err := db.AutoMigrate(
		&authdomain.User{},
		&authdomain.RefreshToken{},
		&authdomain.FCMToken{},
		&shipmentdomain.ShipmentGroup{},
		&shipmentdomain.ShipmentEmail{},
		&shipmentdomain.Attachment{},
		&shipmentdomain.ShipmentSummary{},
	); err != nil {
		log.Fatal("Failed to migrate database:", err)
	}

	// Initialize repositories (dependency injection)
	userRepo := authRepo.NewUserRepository(db)
	fcmTokenRepo := authRepo.NewFCMTokenRepository(db)
	groupRepo := shipmentRepo.NewGroupRepository(db)
	messageRepo := shipmentRepo.NewMessageRepository(db)
	summaryRepo := shipmentRepo.NewSummaryRepository(db)

	// Messages left mid-extraction by a previous crash go back to the queue
	if n, err := messageRepo.ResetStuckProcessing(); err != nil {
		log.Printf("[WARN] Failed to reset stuck messages: %v", err)
	} else if n > 0 {
		log.Printf("[Startup] Reset %d stuck messages to not_processed", n)
	}

	// Credential encryption for stored IMAP passwords
	cryptoService, err := crypto.NewService(cfg.EncryptionKey)
	if err != nil {
		log.Fatal("Failed to initialize crypto service:", err)
	}

	// Initialize SSE Manager
	sseManager := sse.NewManager()
	go sseManager.Run()

	// Initialize FCM Client (optional, events still flow over SSE without it)
	var fcmClient *fcm.Client
	if cfg.FirebaseCredentialsFile != "" {
		fcmClient, err = fcm.NewClient(cfg.FirebaseCredentialsFile)
		if err != nil {
			log.Printf("[WARN] Failed to initialize FCM client (push notifications disabled): %v", err)
			fcmClient = nil
		}
	} else {
		log.Println("[WARN] No Firebase credentials configured, push notifications disabled")
	}

	notifService := notification.NewService(sseManager, fcmClient, fcmTokenRepo)

	// IMAP session cache and per-user sync locks
	mailboxManager := mailbox.NewManager(cfg.ConnectTimeout)
	lockManager := lock.NewManager()

	// Initialize use cases (dependency injection)
	authUsecaseInstance := authUsecase.NewAuthUsecase(userRepo, fcmTokenRepo, cryptoService, cfg)
	authUsecaseInstance.SetSessionInvalidator(mailboxManager)
	shipmentUsecaseInstance := shipmentUsecase.NewShipmentUsecase(
		groupRepo,
		messageRepo,
		summaryRepo,
		shipmentUsecase.NewManagerSessionProvider(mailboxManager),
		authUsecaseInstance,
		lockManager,
		cfg,
	)

	// Initialize HTTP handler
	handler := api.NewHandler(authUsecaseInstance, shipmentUsecaseInstance, sseManager, cfg, messageRepo, summaryRepo, notifService)

	// Start server
	log.Printf("Server starting on port %s", cfg.Port)
	if err := handler.Start(":" + cfg.Port); err != nil {
		log.Fatal("Failed to start server:", err)
	}
}
