package dto

import (
	shipmentdomain "shipmate-backend/internal/shipment/domain"
)

type GroupItem struct {
	shipmentdomain.ShipmentGroup
	Summary      string `json:"summary,omitempty"`
	MessageCount int    `json:"message_count"`
}

type GroupsResponse struct {
	Groups []GroupItem `json:"groups"`
}

type MessagesResponse struct {
	GroupCode string                         `json:"group_code"`
	Messages  []shipmentdomain.ShipmentEmail `json:"messages"`
}

type SyncRequest struct {
	Since  string `form:"since"`
	Before string `form:"before"`
}
