package handler

import (
	"net/http"
	"strconv"

	"advisorhub/internal/service"
	"advisorhub/pkg/logger"

	"github.com/gin-gonic/gin"
)

// TaskHandler handles task queue operations
type TaskHandler struct {
	taskService *service.TaskService
}

// NewTaskHandler creates task handler
func NewTaskHandler(taskService *service.TaskService) *TaskHandler {
	return &TaskHandler{taskService: taskService}
}

// Enqueue creates a new pending task
// @Summary Enqueue task
// @Tags tasks
// @Accept json
// @Produce json
// @Success 201 {object} model.Task
// @Router /tasks [post]
func (h *TaskHandler) Enqueue(c *gin.Context) {
	var req service.EnqueueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	task, err := h.taskService.Enqueue(c.Request.Context(), &req)
	if err != nil {
		logger.ErrorCtx(c.Request.Context(), "failed to enqueue task: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, task)
}

// Get returns one task by ID
// @Summary Get task
// @Tags tasks
// @Produce json
// @Param task_id path int true "Task ID"
// @Success 200 {object} model.Task
// @Router /tasks/{task_id} [get]
func (h *TaskHandler) Get(c *gin.Context) {
	taskID, err := strconv.ParseInt(c.Param("task_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid task_id"})
		return
	}

	task, err := h.taskService.Get(c.Request.Context(), taskID)
	if err != nil {
		logger.ErrorCtx(c.Request.Context(), "failed to get task %d: %v", taskID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if task == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "task not found"})
		return
	}

	c.JSON(http.StatusOK, task)
}

// List returns a user's tasks
// @Summary List tasks
// @Tags tasks
// @Produce json
// @Param user_id query int true "User ID"
// @Param state query string false "State filter"
// @Router /tasks [get]
func (h *TaskHandler) List(c *gin.Context) {
	userID, err := strconv.ParseInt(c.Query("user_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id required"})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	tasks, err := h.taskService.List(c.Request.Context(), userID, c.Query("state"), limit, offset)
	if err != nil {
		logger.ErrorCtx(c.Request.Context(), "failed to list tasks for user %d: %v", userID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"tasks": tasks, "count": len(tasks)})
}

// ExecuteNow claims and runs one pending task synchronously
// @Summary Execute task now
// @Tags tasks
// @Produce json
// @Param task_id path int true "Task ID"
// @Router /tasks/{task_id}/execute [post]
func (h *TaskHandler) ExecuteNow(c *gin.Context) {
	taskID, err := strconv.ParseInt(c.Param("task_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid task_id"})
		return
	}

	task, err := h.taskService.ExecuteNow(c.Request.Context(), taskID)
	if err != nil {
		logger.ErrorCtx(c.Request.Context(), "failed to execute task %d: %v", taskID, err)
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, task)
}

// Stats returns the per-state task census
// @Summary Queue statistics
// @Tags tasks
// @Produce json
// @Router /tasks/stats [get]
func (h *TaskHandler) Stats(c *gin.Context) {
	stats, err := h.taskService.Stats(c.Request.Context())
	if err != nil {
		logger.ErrorCtx(c.Request.Context(), "failed to count tasks: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, stats)
}
