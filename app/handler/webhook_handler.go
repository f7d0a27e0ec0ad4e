package handler

import (
	"encoding/base64"
	"io"
	"net/http"

	"advisorhub/internal/rules"
	"advisorhub/internal/service"
	"advisorhub/pkg/logger"
	"advisorhub/pkg/store/mysql"
	"advisorhub/pkg/store/mysql/model"
	"advisorhub/pkg/store/redis"

	"github.com/gin-gonic/gin"
	"github.com/tidwall/gjson"
)

// WebhookHandler turns provider push notifications into queued work.
// Providers redeliver aggressively, so every handler answers 200 fast
// and defers the real work to the task queue; a failure here only means
// the provider will try again.
type WebhookHandler struct {
	users     *mysql.UserRepository
	tasks     *service.TaskService
	evaluator *rules.Evaluator
	deduper   *redis.Deduper
}

// NewWebhookHandler creates webhook handler
func NewWebhookHandler(users *mysql.UserRepository, tasks *service.TaskService, evaluator *rules.Evaluator, deduper *redis.Deduper) *WebhookHandler {
	return &WebhookHandler{
		users:     users,
		tasks:     tasks,
		evaluator: evaluator,
		deduper:   deduper,
	}
}

// Gmail handles Gmail push notifications (Pub/Sub envelope). The data
// field is base64 JSON carrying emailAddress and historyId. A matched
// user gets a gmail_sync task; rule evaluation happens when the sync
// discovers what is actually new.
// @Summary Gmail push webhook
// @Tags webhooks
// @Router /webhooks/gmail [post]
func (h *WebhookHandler) Gmail(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
		return
	}

	messageID := gjson.GetBytes(body, "message.messageId").String()
	if messageID != "" {
		if seen, err := h.deduper.Seen(c.Request.Context(), "gmail:"+messageID); err == nil && seen {
			c.JSON(http.StatusOK, gin.H{"status": "duplicate"})
			return
		}
	}

	data := gjson.GetBytes(body, "message.data").String()
	decoded, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid message data"})
		return
	}

	email := gjson.GetBytes(decoded, "emailAddress").String()
	if email == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing emailAddress"})
		return
	}

	user, err := h.users.GetByEmail(c.Request.Context(), email)
	if err != nil {
		logger.ErrorCtx(c.Request.Context(), "failed to resolve gmail webhook user: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "lookup failed"})
		return
	}
	if user == nil {
		// Not one of ours; acknowledge so the provider stops retrying.
		c.JSON(http.StatusOK, gin.H{"status": "ignored"})
		return
	}

	task, err := h.tasks.Enqueue(c.Request.Context(), &service.EnqueueRequest{
		UserID:   &user.ID,
		TaskType: model.TaskTypeGmailSync,
		Priority: 2,
		Payload: map[string]any{
			"source":     "webhook",
			"history_id": gjson.GetBytes(decoded, "historyId").String(),
		},
	})
	if err != nil {
		logger.ErrorCtx(c.Request.Context(), "failed to enqueue gmail sync: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "enqueue failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "queued", "task_id": task.ID})
}

// Hubspot handles HubSpot webhook batches. Each event is deduplicated by
// eventId, routed to the portal's owner and run through rule evaluation
// with the proactive fallback enabled.
// @Summary HubSpot webhook
// @Tags webhooks
// @Router /webhooks/hubspot [post]
func (h *WebhookHandler) Hubspot(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
		return
	}

	events := gjson.ParseBytes(body)
	if !events.IsArray() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "expected event array"})
		return
	}

	processed := 0
	for _, event := range events.Array() {
		eventID := event.Get("eventId").String()
		if eventID != "" {
			if seen, err := h.deduper.Seen(c.Request.Context(), "hubspot:"+eventID); err == nil && seen {
				continue
			}
		}

		portalID := event.Get("portalId").String()
		user, err := h.users.GetByHubspotPortal(c.Request.Context(), portalID)
		if err != nil {
			logger.ErrorCtx(c.Request.Context(), "failed to resolve hubspot portal %s: %v", portalID, err)
			continue
		}
		if user == nil {
			continue
		}

		eventType := "hubspot." + event.Get("subscriptionType").String()
		eventData := map[string]interface{}{
			"event_id":  eventID,
			"object_id": event.Get("objectId").String(),
			"portal_id": portalID,
		}

		if _, err := h.evaluator.EvaluateRulesForEvent(c.Request.Context(), user, eventType, eventData, true); err != nil {
			logger.ErrorCtx(c.Request.Context(), "rule evaluation failed for %s: %v", eventType, err)
			continue
		}
		processed++
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok", "processed": processed})
}

// Calendar handles Google Calendar channel notifications. The payload is
// empty; the channel token carries the watched account's email. Each
// notification queues a calendar_sync task.
// @Summary Calendar webhook
// @Tags webhooks
// @Router /webhooks/calendar [post]
func (h *WebhookHandler) Calendar(c *gin.Context) {
	email := c.GetHeader("X-Goog-Channel-Token")
	if email == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing channel token"})
		return
	}

	channelID := c.GetHeader("X-Goog-Channel-ID")
	messageNumber := c.GetHeader("X-Goog-Message-Number")
	if channelID != "" && messageNumber != "" {
		key := "calendar:" + channelID + ":" + messageNumber
		if seen, err := h.deduper.Seen(c.Request.Context(), key); err == nil && seen {
			c.JSON(http.StatusOK, gin.H{"status": "duplicate"})
			return
		}
	}

	user, err := h.users.GetByEmail(c.Request.Context(), email)
	if err != nil {
		logger.ErrorCtx(c.Request.Context(), "failed to resolve calendar webhook user: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "lookup failed"})
		return
	}
	if user == nil {
		c.JSON(http.StatusOK, gin.H{"status": "ignored"})
		return
	}

	task, err := h.tasks.Enqueue(c.Request.Context(), &service.EnqueueRequest{
		UserID:   &user.ID,
		TaskType: model.TaskTypeCalendarSync,
		Priority: 2,
		Payload: map[string]any{
			"source":         "webhook",
			"resource_state": c.GetHeader("X-Goog-Resource-State"),
		},
	})
	if err != nil {
		logger.ErrorCtx(c.Request.Context(), "failed to enqueue calendar sync: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "enqueue failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "queued", "task_id": task.ID})
}
