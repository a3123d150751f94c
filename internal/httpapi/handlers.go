package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/monorkin/greenhouse-monitor/esp32/api"
	"github.com/monorkin/greenhouse-monitor/internal/acquisition"
	"github.com/monorkin/greenhouse-monitor/internal/storage"
)

type controlRequest struct {
	Relay int    `form:"relay" json:"relay" binding:"required"`
	State string `form:"state" json:"state" binding:"required"`
}

// Pointers tell a missing value apart from a zero reading. Soil and light
// accept decimals and are truncated, as the device client does.
type readingRequest struct {
	Humidity    *float64 `form:"humidity" json:"humidity" binding:"required"`
	Temperature *float64 `form:"temperature" json:"temperature" binding:"required"`
	Soil        *float64 `form:"soil" json:"soil" binding:"required"`
	Light       *float64 `form:"light" json:"light" binding:"required"`
}

type historyRequest struct {
	From  string `form:"from"`
	To    string `form:"to"`
	Limit *int   `form:"limit"`
}

// respondError maps service errors onto status codes.
func (h *handlers) respondError(c *gin.Context, err error) {
	var validationErr *acquisition.ValidationError

	switch {
	case errors.As(err, &validationErr):
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation failed", "violations": validationErr.Violations})
	case errors.Is(err, acquisition.ErrInvalidCommand):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, acquisition.ErrNoDataAvailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "device offline and no stored readings"})
	case errors.Is(err, acquisition.ErrDeviceUnreachable), errors.Is(err, api.ErrUnreachable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "device unreachable"})
	default:
		h.logger.Error("Request failed", "path", c.Request.URL.Path, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "store unavailable"})
	}
}

func (h *handlers) getSensors(c *gin.Context) {
	snapshot, err := h.acquisition.GetSnapshot(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, snapshot)
}

func (h *handlers) postControl(c *gin.Context) {
	var request controlRequest
	if err := c.ShouldBind(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "relay and state are required"})
		return
	}

	relay := api.Relay(request.Relay)
	state := api.RelayState(request.State)

	ack, err := h.acquisition.SendControl(c.Request.Context(), relay, state)
	if err != nil && ack != "" {
		// The relay switched; only the log entry is missing.
		h.logger.Error("Relay switched but not logged", "relay", relay.String(), "state", state, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"success":  false,
			"error":    "relay switched but the action could not be logged",
			"relay":    relay.String(),
			"state":    state,
			"response": ack,
		})
		return
	}
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"relay":    relay.String(),
		"state":    state,
		"response": ack,
	})
}

func (h *handlers) ingestReading(c *gin.Context) {
	var request readingRequest
	if err := c.ShouldBind(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "humidity, temperature, soil and light are required and must be numbers"})
		return
	}

	result, err := h.acquisition.Ingest(c.Request.Context(), storage.ReadingInput{
		Humidity:    *request.Humidity,
		Temperature: *request.Temperature,
		Soil:        int(*request.Soil),
		Light:       int(*request.Light),
	})
	if err != nil {
		h.respondError(c, err)
		return
	}

	if result.Duplicate() {
		c.JSON(http.StatusConflict, gin.H{
			"status":      result.Outcome,
			"message":     "Duplicate reading ignored",
			"existing_id": result.Reading.ID,
			"created_at":  result.Reading.CreatedAt,
			"analysis":    result.Analysis,
		})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"status":     result.Outcome,
		"id":         result.Reading.ID,
		"created_at": result.Reading.CreatedAt,
		"analysis":   result.Analysis,
	})
}

func (h *handlers) getHistory(c *gin.Context) {
	var request historyRequest
	if err := c.ShouldBindQuery(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a number"})
		return
	}

	from, err := storage.ParseDate(request.From)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "from must be a date (YYYY-MM-DD)"})
		return
	}

	to, err := storage.ParseDate(request.To)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "to must be a date (YYYY-MM-DD)"})
		return
	}

	page, err := h.analytics.History(c.Request.Context(), storage.HistoryFilter{
		From:  from,
		To:    to,
		Limit: request.Limit,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, page)
}

func (h *handlers) getAnalytics(c *gin.Context) {
	report, err := h.analytics.Report(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, report)
}

func (h *handlers) getStatus(c *gin.Context) {
	status, err := h.acquisition.Status(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, status)
}
