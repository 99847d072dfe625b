package delivery

import (
	"errors"
	"net/http"
	"time"

	authusecase "shipmate-backend/internal/auth/usecase"
	shipmentdto "shipmate-backend/internal/shipment/dto"
	"shipmate-backend/internal/shipment/usecase"
	"shipmate-backend/pkg/groupcode"
	"shipmate-backend/pkg/mailbox"

	"github.com/gin-gonic/gin"
)

type ShipmentHandler struct {
	shipmentUsecase usecase.ShipmentUsecase
}

func NewShipmentHandler(shipmentUsecase usecase.ShipmentUsecase) *ShipmentHandler {
	return &ShipmentHandler{
		shipmentUsecase: shipmentUsecase,
	}
}

// Sync runs a full sweep over an optional date range
func (h *ShipmentHandler) Sync(c *gin.Context) {
	userID := c.GetString("userID")

	var req shipmentdto.SyncRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	since, before, err := parseDateRange(req.Since, req.Before)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	report, err := h.shipmentUsecase.SyncRange(c.Request.Context(), userID, since, before)
	if err != nil {
		h.writeSyncError(c, err)
		return
	}

	c.JSON(http.StatusOK, report)
}

// SyncGroup runs a targeted lookup for one group code
func (h *ShipmentHandler) SyncGroup(c *gin.Context) {
	userID := c.GetString("userID")
	code := c.Param("code")

	report, err := h.shipmentUsecase.SyncGroup(c.Request.Context(), userID, code)
	if err != nil {
		h.writeSyncError(c, err)
		return
	}

	c.JSON(http.StatusOK, report)
}

// GetGroups lists the user's shipment groups with cached summaries
func (h *ShipmentHandler) GetGroups(c *gin.Context) {
	userID := c.GetString("userID")

	groups, err := h.shipmentUsecase.ListGroups(userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	codes := make([]string, 0, len(groups))
	for _, g := range groups {
		codes = append(codes, g.Code)
	}
	summaries, err := h.shipmentUsecase.GetSummaries(userID, codes)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	counts, err := h.shipmentUsecase.CountMessages(userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	items := make([]shipmentdto.GroupItem, 0, len(groups))
	for _, g := range groups {
		items = append(items, shipmentdto.GroupItem{
			ShipmentGroup: g,
			Summary:       summaries[g.Code],
			MessageCount:  counts[g.Code],
		})
	}

	c.JSON(http.StatusOK, shipmentdto.GroupsResponse{Groups: items})
}

// GetGroupMessages returns a group's messages oldest first
func (h *ShipmentHandler) GetGroupMessages(c *gin.Context) {
	userID := c.GetString("userID")
	code := c.Param("code")

	messages, err := h.shipmentUsecase.GetGroupMessages(userID, code)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, shipmentdto.MessagesResponse{
		GroupCode: code,
		Messages:  messages,
	})
}

// GetGroupSummary returns the cached extraction result for one group
func (h *ShipmentHandler) GetGroupSummary(c *gin.Context) {
	userID := c.GetString("userID")
	code := groupcode.Normalize(c.Param("code"))

	summaries, err := h.shipmentUsecase.GetSummaries(userID, []string{code})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	summary, ok := summaries[code]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no summary for this group yet"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"group_code": code, "summary": summary})
}

// GetMessage returns one message with attachment metadata
func (h *ShipmentHandler) GetMessage(c *gin.Context) {
	userID := c.GetString("userID")
	id := c.Param("id")

	message, err := h.shipmentUsecase.GetMessage(userID, id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if message == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "message not found"})
		return
	}

	c.JSON(http.StatusOK, message)
}

// GetAttachment streams one attachment's binary content
func (h *ShipmentHandler) GetAttachment(c *gin.Context) {
	userID := c.GetString("userID")
	id := c.Param("id")
	attachmentID := c.Param("attachmentId")

	message, err := h.shipmentUsecase.GetMessage(userID, id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if message == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "message not found"})
		return
	}

	for _, att := range message.Attachments {
		if att.ID == attachmentID {
			c.Header("Content-Disposition", `attachment; filename="`+att.Filename+`"`)
			contentType := att.ContentType
			if contentType == "" {
				contentType = "application/octet-stream"
			}
			c.Data(http.StatusOK, contentType, att.Content)
			return
		}
	}

	c.JSON(http.StatusNotFound, gin.H{"error": "attachment not found"})
}

func (h *ShipmentHandler) writeSyncError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, authusecase.ErrNoMailbox):
		c.JSON(http.StatusPreconditionFailed, gin.H{"error": err.Error()})
	case errors.Is(err, usecase.ErrSyncBusy):
		c.JSON(http.StatusTooManyRequests, gin.H{"error": err.Error()})
	case mailbox.IsAuthError(err):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "mailbox authentication failed, reconnect your account"})
	case mailbox.IsTransient(err):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "mailbox temporarily unreachable, try again"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

func parseDateRange(since, before string) (time.Time, time.Time, error) {
	var s, b time.Time
	var err error
	if since != "" {
		s, err = time.Parse("2006-01-02", since)
		if err != nil {
			return s, b, errors.New("since must be YYYY-MM-DD")
		}
	}
	if before != "" {
		b, err = time.Parse("2006-01-02", before)
		if err != nil {
			return s, b, errors.New("before must be YYYY-MM-DD")
		}
	}
	if !s.IsZero() && !b.IsZero() && b.Before(s) {
		return s, b, errors.New("before must not precede since")
	}
	return s, b, nil
}
