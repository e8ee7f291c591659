package crontask

import (
	"context"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/mx-space/sentinel/internal/middleware"
	pkgcron "github.com/mx-space/sentinel/internal/pkg/cron"
	"github.com/mx-space/sentinel/internal/pkg/jwt"
	"github.com/mx-space/sentinel/internal/pkg/pagination"
	"github.com/mx-space/sentinel/internal/pkg/response"
	"github.com/mx-space/sentinel/internal/pkg/taskqueue"
)

// Handler wraps the scheduler and task queue for HTTP access.
type Handler struct {
	sched   *pkgcron.Scheduler
	taskSvc *taskqueue.Service
	// base outlives requests so manually triggered jobs are not cancelled
	// when the response is written.
	base context.Context
}

func NewHandler(base context.Context, sched *pkgcron.Scheduler, taskSvc *taskqueue.Service) *Handler {
	return &Handler{sched: sched, taskSvc: taskSvc, base: base}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, authMW gin.HandlerFunc) {
	g := rg.Group("/cron-task", authMW, middleware.RequireRole(jwt.RoleAdmin))
	g.GET("", h.list)
	g.GET("/:name", h.get)
	g.POST("/:name/run", h.run)

	if h.taskSvc == nil {
		return
	}
	tasks := g.Group("/tasks")
	tasks.GET("", h.listTasks)
	tasks.GET("/:taskId", h.getTask)
	tasks.POST("/:taskId/cancel", h.cancelTask)
	tasks.DELETE("", h.deleteTasks)
}

// GET /cron-task
func (h *Handler) list(c *gin.Context) {
	response.OK(c, h.sched.List())
}

// GET /cron-task/:name
func (h *Handler) get(c *gin.Context) {
	result, err := h.sched.GetTask(c.Param("name"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, result)
}

// POST /cron-task/:name/run?wait=true
func (h *Handler) run(c *gin.Context) {
	name := c.Param("name")
	if c.Query("wait") == "true" {
		result, err := h.sched.RunNow(c.Request.Context(), name)
		if err != nil {
			response.Error(c, err)
			return
		}
		response.OK(c, result)
		return
	}
	if err := h.sched.Run(h.base, name); err != nil {
		response.Error(c, err)
		return
	}
	response.Accepted(c, gin.H{"message": "job triggered"})
}

// GET /cron-task/tasks?type=&status=
func (h *Handler) listTasks(c *gin.Context) {
	q, err := pagination.FromContext(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	taskType := c.Query("type")
	statusStr := c.Query("status")

	var taskTypePtr *string
	var statusPtr *taskqueue.TaskStatus
	if taskType != "" {
		taskTypePtr = &taskType
	}
	if statusStr != "" {
		s := taskqueue.TaskStatus(statusStr)
		statusPtr = &s
	}

	tasks, total, err := h.taskSvc.List(c.Request.Context(), q.Page, q.Size, taskTypePtr, statusPtr)
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.Paged(c, tasks, q.Meta(total))
}

// GET /cron-task/tasks/:taskId
func (h *Handler) getTask(c *gin.Context) {
	task, err := h.taskSvc.GetByID(c.Request.Context(), c.Param("taskId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, task)
}

// POST /cron-task/tasks/:taskId/cancel
func (h *Handler) cancelTask(c *gin.Context) {
	if err := h.taskSvc.Cancel(c.Request.Context(), c.Param("taskId")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// DELETE /cron-task/tasks?before=<unix_ms>
func (h *Handler) deleteTasks(c *gin.Context) {
	var before int64
	if v, err := strconv.ParseInt(c.Query("before"), 10, 64); err == nil {
		before = v
	}
	n, err := h.taskSvc.DeleteCompleted(c.Request.Context(), before)
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.OK(c, gin.H{"deleted": n})
}
