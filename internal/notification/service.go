package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	authrepo "shipmate-backend/internal/auth/repository"
	"shipmate-backend/pkg/fcm"
	"shipmate-backend/pkg/sse"
)

// Service fans events out to connected SSE clients and, when a push
// client is configured, to the user's registered devices.
type Service struct {
	sseManager *sse.Manager
	fcmClient  *fcm.Client
	fcmRepo    authrepo.FCMTokenRepository
}

func NewService(sseManager *sse.Manager, fcmClient *fcm.Client, fcmRepo authrepo.FCMTokenRepository) *Service {
	return &Service{
		sseManager: sseManager,
		fcmClient:  fcmClient,
		fcmRepo:    fcmRepo,
	}
}

// SendToUser delivers an event over SSE and mirrors it as a push
// notification for event types that warrant one.
func (s *Service) SendToUser(userID, eventType string, payload interface{}) {
	s.sseManager.SendToUser(userID, eventType, payload)

	if s.fcmClient == nil {
		return
	}

	notification, ok := buildNotification(eventType, payload)
	if !ok {
		return
	}

	go s.push(userID, notification)
}

func (s *Service) push(userID string, notification fcm.NotificationData) {
	tokens, err := s.fcmRepo.GetTokensByUserID(userID)
	if err != nil {
		log.Printf("[Notification] Failed to load FCM tokens for user %s: %v", userID, err)
		return
	}
	if len(tokens) == 0 {
		return
	}

	deviceTokens := make([]string, 0, len(tokens))
	for _, t := range tokens {
		deviceTokens = append(deviceTokens, t.Token)
	}

	failed, err := s.fcmClient.SendToDevices(context.Background(), deviceTokens, notification)
	if err != nil {
		log.Printf("[Notification] Push to user %s failed: %v", userID, err)
		return
	}

	// Stale tokens accumulate as users reinstall the app; drop the
	// ones FCM rejected.
	for _, token := range failed {
		if err := s.fcmRepo.DeleteToken(token); err != nil {
			log.Printf("[Notification] Failed to prune FCM token: %v", err)
		}
	}
}

// buildNotification maps event types to push notification content.
// Events without a mapping stay SSE-only.
func buildNotification(eventType string, payload interface{}) (fcm.NotificationData, bool) {
	data := map[string]string{"event_type": eventType}
	if raw, err := json.Marshal(payload); err == nil {
		data["payload"] = string(raw)
	}

	groupCode := payloadField(payload, "group_code")

	switch eventType {
	case "shipment_group_created":
		return fcm.NotificationData{
			Title: "New shipment detected",
			Body:  fmt.Sprintf("Shipment %s has new correspondence", groupCode),
			Data:  data,
		}, true
	case "shipment_group_updated":
		return fcm.NotificationData{
			Title: "Shipment updated",
			Body:  fmt.Sprintf("New messages arrived for shipment %s", groupCode),
			Data:  data,
		}, true
	case "shipment_extraction_completed":
		return fcm.NotificationData{
			Title: "Shipment summary ready",
			Body:  fmt.Sprintf("Summary for shipment %s is available", groupCode),
			Data:  data,
		}, true
	default:
		return fcm.NotificationData{}, false
	}
}

func payloadField(payload interface{}, key string) string {
	m, ok := payload.(map[string]interface{})
	if !ok {
		return ""
	}
	v, _ := m[key].(string)
	return v
}
