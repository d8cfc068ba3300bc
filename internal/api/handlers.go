// Package api exposes the gateway's HTTP surface: task submission endpoints
// that enqueue work for the pipeline and return immediately.
package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/max-hertz-coder/RiverAI/internal/dispatch"
)

// Handler binds HTTP routes to the task dispatcher.
type Handler struct {
	dispatcher *dispatch.Dispatcher
	log        zerolog.Logger
	gatherer   prometheus.Gatherer
}

// NewHandler creates the gateway handler.
func NewHandler(d *dispatch.Dispatcher, log zerolog.Logger, gatherer prometheus.Gatherer) *Handler {
	return &Handler{dispatcher: d, log: log, gatherer: gatherer}
}

// RegisterRoutes attaches all gateway routes.
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	v1 := router.Group("/api/v1")
	{
		v1.POST("/generate/plan", h.generatePlan)
		v1.POST("/generate/tasks", h.generateTasks)
		v1.POST("/homework/check", h.checkHomework)
		v1.POST("/chat/message", h.chatMessage)
		v1.POST("/chat/end", h.endChat)
	}
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{})))
}

type generateRequest struct {
	UserID      int64  `json:"user_id" binding:"required"`
	StudentID   int64  `json:"student_id" binding:"required"`
	Description string `json:"description" binding:"required"`
}

type homeworkRequest struct {
	UserID       int64  `json:"user_id" binding:"required"`
	StudentID    int64  `json:"student_id" binding:"required"`
	SolutionText string `json:"solution_text"`
	Filename     string `json:"filename"`
}

type chatRequest struct {
	UserID    int64  `json:"user_id" binding:"required"`
	StudentID int64  `json:"student_id" binding:"required"`
	Message   string `json:"message" binding:"required"`
}

type endChatRequest struct {
	UserID    int64 `json:"user_id" binding:"required"`
	StudentID int64 `json:"student_id" binding:"required"`
}

func (h *Handler) generatePlan(c *gin.Context) {
	var req generateRequest
	if !h.bind(c, &req) {
		return
	}
	taskID, err := h.dispatcher.GeneratePlan(c.Request.Context(), req.UserID, req.StudentID, req.Description)
	h.respond(c, taskID, err)
}

func (h *Handler) generateTasks(c *gin.Context) {
	var req generateRequest
	if !h.bind(c, &req) {
		return
	}
	taskID, err := h.dispatcher.GenerateTasks(c.Request.Context(), req.UserID, req.StudentID, req.Description)
	h.respond(c, taskID, err)
}

func (h *Handler) checkHomework(c *gin.Context) {
	var req homeworkRequest
	if !h.bind(c, &req) {
		return
	}
	taskID, err := h.dispatcher.CheckHomework(c.Request.Context(), req.UserID, req.StudentID, req.SolutionText, req.Filename)
	h.respond(c, taskID, err)
}

func (h *Handler) chatMessage(c *gin.Context) {
	var req chatRequest
	if !h.bind(c, &req) {
		return
	}
	taskID, err := h.dispatcher.Chat(c.Request.Context(), req.UserID, req.StudentID, req.Message)
	h.respond(c, taskID, err)
}

func (h *Handler) endChat(c *gin.Context) {
	var req endChatRequest
	if !h.bind(c, &req) {
		return
	}
	taskID, err := h.dispatcher.EndChat(c.Request.Context(), req.UserID, req.StudentID)
	h.respond(c, taskID, err)
}

func (h *Handler) bind(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return false
	}
	return true
}

// respond reports the enqueue outcome. A broker failure surfaces as 503;
// it must never be silently swallowed.
func (h *Handler) respond(c *gin.Context, taskID string, err error) {
	if err != nil {
		h.log.Error().Err(err).Msg("enqueue failed")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "queue unavailable, try again later"})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"task_id": taskID})
}
