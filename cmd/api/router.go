package api

import (
	"net/http"

	"shipmate-backend/internal/auth/delivery"
	authUsecase "shipmate-backend/internal/auth/usecase"
	shipmentDelivery "shipmate-backend/internal/shipment/delivery"
	shipmentUsecase "shipmate-backend/internal/shipment/usecase"
	"shipmate-backend/pkg/sse"

	"github.com/gin-gonic/gin"
)

func SetupRoutes(r *gin.Engine, authUc authUsecase.AuthUsecase, shipmentUc shipmentUsecase.ShipmentUsecase, sseManager *sse.Manager) {
	authHandler := delivery.NewAuthHandler(authUc)
	shipmentHandler := shipmentDelivery.NewShipmentHandler(shipmentUc)

	api := r.Group("/api")
	{
		// Health check (no auth required)
		api.GET("/health", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
		})

		// SSE endpoint
		api.GET("/events", delivery.AuthMiddleware(authUc), func(c *gin.Context) {
			userID := c.GetString("userID")
			sseManager.ServeHTTP(c, userID)
		})

		// Auth routes
		auth := api.Group("/auth")
		{
			auth.POST("/register", authHandler.Register)
			auth.POST("/login", authHandler.Login)
			auth.POST("/refresh", authHandler.RefreshToken)
			auth.POST("/logout", authHandler.Logout)
			auth.GET("/me", delivery.AuthMiddleware(authUc), authHandler.Me)
			auth.POST("/mailbox", delivery.AuthMiddleware(authUc), authHandler.ConnectMailbox)
			auth.DELETE("/mailbox", delivery.AuthMiddleware(authUc), authHandler.DisconnectMailbox)
		}

		// FCM routes (protected)
		fcm := api.Group("/fcm")
		fcm.Use(delivery.AuthMiddleware(authUc))
		{
			fcm.POST("/register", authHandler.RegisterFCMToken)
			fcm.DELETE("/:token", authHandler.UnregisterFCMToken)
		}

		// Shipment routes (protected)
		shipments := api.Group("/shipments")
		shipments.Use(delivery.AuthMiddleware(authUc))
		{
			shipments.POST("/sync", shipmentHandler.Sync)
			shipments.GET("/groups", shipmentHandler.GetGroups)
			shipments.POST("/groups/:code/sync", shipmentHandler.SyncGroup)
			shipments.GET("/groups/:code/messages", shipmentHandler.GetGroupMessages)
			shipments.GET("/groups/:code/summary", shipmentHandler.GetGroupSummary)
			shipments.GET("/messages/:id", shipmentHandler.GetMessage)
			shipments.GET("/messages/:id/attachments/:attachmentId", shipmentHandler.GetAttachment)
		}
	}
}
