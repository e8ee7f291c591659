package moderation

import (
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/mx-space/sentinel/internal/middleware"
	"github.com/mx-space/sentinel/internal/models"
	"github.com/mx-space/sentinel/internal/pkg/jwt"
	"github.com/mx-space/sentinel/internal/pkg/response"
)

type Handler struct {
	svc   *Service
	queue TaskQueue
}

// NewHandler wires the HTTP surface. queue may be nil, in which case
// /moderation/scan runs the scan inline.
func NewHandler(svc *Service, queue TaskQueue) *Handler {
	return &Handler{svc: svc, queue: queue}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, authMW gin.HandlerFunc) {
	g := rg.Group("/moderation", authMW)

	reviewer := g.Group("", middleware.RequireRole(jwt.RoleReviewer))
	reviewer.POST("", h.submit)
	reviewer.POST("/scan", h.scan)
	reviewer.GET("/queue/pending", h.pendingReviews)
	reviewer.GET("/queue/high-risk", h.highRisk)
	reviewer.GET("/queue/appeals", h.pendingAppeals)
	reviewer.GET("/stats", h.stats)
	reviewer.GET("/flagged", h.flagged)
	reviewer.GET("/creators/:creatorId/violations", h.creatorViolations)
	reviewer.GET("/:contentId/history", h.history)
	reviewer.POST("/:contentId/approve", h.approve)
	reviewer.POST("/:contentId/reject", h.reject)
	reviewer.POST("/:contentId/flag", h.flag)
	reviewer.POST("/:contentId/review", h.review)
	reviewer.POST("/:contentId/appeal/resolve", h.resolveAppeal)

	g.GET("/:contentId", h.get)
	g.POST("/:contentId/appeal", h.appeal)
	g.POST("/:contentId/report", h.report)
}

// POST /moderation
func (h *Handler) submit(c *gin.Context) {
	var dto SubmitDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	rec, err := h.svc.Submit(c.Request.Context(), SubmitInput{
		Content:   models.ContentRef{Kind: models.ContentKind(strings.TrimSpace(dto.ContentKind)), ID: strings.TrimSpace(dto.ContentID)},
		CreatorID: strings.TrimSpace(dto.CreatorID),
		Signals:   dto.Signals,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, rec)
}

// POST /moderation/scan
func (h *Handler) scan(c *gin.Context) {
	var dto ScanDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	in := ScanInput{
		Content:   models.ContentRef{Kind: models.ContentKind(strings.TrimSpace(dto.ContentKind)), ID: strings.TrimSpace(dto.ContentID)},
		CreatorID: strings.TrimSpace(dto.CreatorID),
		Text:      dto.Text,
		MediaURLs: dto.MediaURLs,
	}
	if h.queue == nil {
		rec, err := h.svc.Scan(c.Request.Context(), in)
		if err != nil {
			response.Error(c, err)
			return
		}
		response.OK(c, rec)
		return
	}
	task, err := h.svc.EnqueueScan(c.Request.Context(), h.queue, in)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Accepted(c, gin.H{"taskId": task.ID, "status": task.Status})
}

// GET /moderation/:contentId
func (h *Handler) get(c *gin.Context) {
	rec, err := h.svc.Get(c.Request.Context(), c.Param("contentId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	if !middleware.IsReviewer(c) && middleware.CurrentUserID(c) != rec.CreatorID {
		response.NotFoundMsg(c, "moderation record not found")
		return
	}
	response.OK(c, rec)
}

// GET /moderation/:contentId/history
func (h *Handler) history(c *gin.Context) {
	entries, err := h.svc.History(c.Request.Context(), c.Param("contentId"), queryInt(c, "limit", 50))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, entries)
}

// POST /moderation/:contentId/approve
func (h *Handler) approve(c *gin.Context) {
	var dto ApproveDTO
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&dto); err != nil {
			response.BadRequest(c, err.Error())
			return
		}
	}
	rec, err := h.svc.Approve(c.Request.Context(), c.Param("contentId"), middleware.CurrentUserID(c), dto.Notes)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, rec)
}

// POST /moderation/:contentId/reject
func (h *Handler) reject(c *gin.Context) {
	var dto RejectDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	rec, err := h.svc.Reject(c.Request.Context(), c.Param("contentId"), RejectInput{
		ReviewerID: middleware.CurrentUserID(c),
		Reason:     dto.Reason,
		Notes:      dto.Notes,
		Categories: dto.Categories,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, rec)
}

// POST /moderation/:contentId/flag
func (h *Handler) flag(c *gin.Context) {
	var dto FlagDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	rec, err := h.svc.FlagForReview(c.Request.Context(), c.Param("contentId"), middleware.CurrentUserID(c), dto.Reason)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, rec)
}

// POST /moderation/:contentId/review
func (h *Handler) review(c *gin.Context) {
	var dto ReviewDTO
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&dto); err != nil {
			response.BadRequest(c, err.Error())
			return
		}
	}
	rec, err := h.svc.MarkForReview(c.Request.Context(), c.Param("contentId"), middleware.CurrentUserID(c),
		models.ReviewPriority(strings.TrimSpace(dto.Priority)), dto.Reason)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, rec)
}

// POST /moderation/:contentId/appeal
func (h *Handler) appeal(c *gin.Context) {
	var dto AppealDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	ctx := c.Request.Context()
	current, err := h.svc.Get(ctx, c.Param("contentId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	if current.CreatorID != middleware.CurrentUserID(c) && middleware.CurrentRole(c) != jwt.RoleAdmin {
		response.Forbidden(c)
		return
	}
	rec, err := h.svc.SubmitAppeal(ctx, current.Content.ID, middleware.CurrentUserID(c), dto.Reason, dto.Notes)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, rec)
}

// POST /moderation/:contentId/appeal/resolve
func (h *Handler) resolveAppeal(c *gin.Context) {
	var dto ResolveAppealDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	rec, err := h.svc.ResolveAppeal(c.Request.Context(), c.Param("contentId"), middleware.CurrentUserID(c),
		models.AppealDecision(strings.TrimSpace(dto.Decision)), dto.Resolution)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, rec)
}

// POST /moderation/:contentId/report
func (h *Handler) report(c *gin.Context) {
	var dto ReportDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	rec, err := h.svc.Report(c.Request.Context(), c.Param("contentId"), middleware.CurrentUserID(c), dto.Reason)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Accepted(c, gin.H{"contentId": rec.Content.ID, "reports": rec.UserReports.Count})
}

// GET /moderation/queue/pending
func (h *Handler) pendingReviews(c *gin.Context) {
	items, err := h.svc.PendingReviews(c.Request.Context(), queryInt(c, "limit", 50))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, items)
}

// GET /moderation/queue/high-risk
func (h *Handler) highRisk(c *gin.Context) {
	items, err := h.svc.HighRisk(c.Request.Context(), queryInt(c, "threshold", -1), queryInt(c, "limit", 50))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, items)
}

// GET /moderation/queue/appeals
func (h *Handler) pendingAppeals(c *gin.Context) {
	items, err := h.svc.PendingAppeals(c.Request.Context(), queryInt(c, "limit", 50))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, items)
}

// GET /moderation/stats
func (h *Handler) stats(c *gin.Context) {
	summary, err := h.svc.Stats(c.Request.Context(), queryInt(c, "days", 7))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, summary)
}

// GET /moderation/flagged?signal=
func (h *Handler) flagged(c *gin.Context) {
	signal := models.SignalName(strings.TrimSpace(c.Query("signal")))
	items, err := h.svc.FlaggedContent(c.Request.Context(), signal, queryInt(c, "limit", 50))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, items)
}

// GET /moderation/creators/:creatorId/violations
func (h *Handler) creatorViolations(c *gin.Context) {
	items, err := h.svc.CreatorViolations(c.Request.Context(), c.Param("creatorId"), queryInt(c, "limit", 50))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, items)
}

func queryInt(c *gin.Context, key string, def int) int {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}
