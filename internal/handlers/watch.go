package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"printer_shutdown/internal/service"
)

const (
	statusOK     = "ok"
	statusQueued = "queued"

	errGetState         = "failed to load watch state"
	errGetPrinterStatus = "failed to load printer status"
	errQueueFull        = "watch command queue is full, retry shortly"
	errSubmitCommand    = "failed to queue watch command"
)

// Centralized error logging and response.
func (h *Handler) logAndJSONError(c *gin.Context, httpCode int, userMsg, logKey string, err error, kv ...interface{}) {
	if h.log != nil && err != nil {
		fields := append([]interface{}{"err", err}, kv...)
		h.log.Errorw(logKey, fields...)
	}
	c.JSON(httpCode, gin.H{"error": userMsg})
}

// @Summary      Health check
// @Tags         system
// @Produce      json
// @Success      200  {object}  map[string]string
// @Router       /health [get]
func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": statusOK})
}

// watchCommand queues kind for the control loop. The response carries the
// state as of the last tick; the change itself shows up on the next one.
//
// @Summary      Toggle, arm or disarm the shutdown watch
// @Tags         watch
// @Produce      json
// @Success      202  {object}  map[string]interface{}  "status, command, state"
// @Failure      401  {object}  map[string]string
// @Failure      503  {object}  map[string]string
// @Router       /api/v1/watch/toggle [post]
// @Router       /api/v1/watch/arm [post]
// @Router       /api/v1/watch/disarm [post]
// @Security     BearerAuth
func (h *Handler) watchCommand(kind string) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		if err := h.services.Watch.Submit(ctx, kind, service.SourceAPI); err != nil {
			if errors.Is(err, service.ErrQueueFull) {
				h.logAndJSONError(c, http.StatusServiceUnavailable, errQueueFull, "watch_command_rejected", err, "command", kind)
				return
			}
			h.logAndJSONError(c, http.StatusInternalServerError, errSubmitCommand, "watch_command_failed", err, "command", kind)
			return
		}
		if h.log != nil {
			h.log.Infow("watch_command_queued", "command", kind, "user_id", c.GetInt(ctxUserID))
		}

		resp := gin.H{"status": statusQueued, "command": kind}
		if st, err := h.services.Monitoring.GetState(ctx); err == nil {
			resp["state"] = st
		}
		c.JSON(http.StatusAccepted, resp)
	}
}

// @Summary      Get live watch state
// @Tags         watch
// @Produce      json
// @Success      200  {object}  models.WatchState
// @Failure      401  {object}  map[string]string
// @Failure      500  {object}  map[string]string
// @Router       /api/v1/watch/state [get]
// @Security     BearerAuth
func (h *Handler) getWatchState(c *gin.Context) {
	st, err := h.services.Monitoring.GetState(c.Request.Context())
	if err != nil {
		h.logAndJSONError(c, http.StatusInternalServerError, errGetState, "watch_get_state_failed", err)
		return
	}
	c.JSON(http.StatusOK, st)
}

// @Summary      Get last observed printer status
// @Description  Informational only. ID 0 means no successful poll yet.
// @Tags         printer
// @Produce      json
// @Success      200  {object}  models.PrinterStatus
// @Failure      401  {object}  map[string]string
// @Failure      500  {object}  map[string]string
// @Router       /api/v1/printer/status [get]
// @Security     BearerAuth
func (h *Handler) getPrinterStatus(c *gin.Context) {
	st, err := h.services.PrinterStatus.GetLast(c.Request.Context())
	if err != nil {
		h.logAndJSONError(c, http.StatusInternalServerError, errGetPrinterStatus, "printer_status_failed", err)
		return
	}
	c.JSON(http.StatusOK, st)
}
