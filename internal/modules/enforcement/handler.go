package enforcement

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/mx-space/sentinel/internal/middleware"
	"github.com/mx-space/sentinel/internal/models"
	"github.com/mx-space/sentinel/internal/pkg/jwt"
	"github.com/mx-space/sentinel/internal/pkg/response"
)

type Handler struct {
	ledger *Ledger
}

func NewHandler(ledger *Ledger) *Handler {
	return &Handler{ledger: ledger}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, authMW gin.HandlerFunc) {
	g := rg.Group("/creators/:creatorId", authMW)

	g.GET("/strikes", h.standing)

	admin := g.Group("", middleware.RequireRole(jwt.RoleAdmin))
	admin.POST("/actions", h.apply)
	admin.POST("/strikes/:strikeId/reverse", h.reverse)
}

// GET /creators/:creatorId/strikes
func (h *Handler) standing(c *gin.Context) {
	creatorID := c.Param("creatorId")
	if !middleware.IsReviewer(c) && middleware.CurrentUserID(c) != creatorID {
		response.Forbidden(c)
		return
	}
	st, err := h.ledger.Standing(c.Request.Context(), creatorID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, st)
}

// POST /creators/:creatorId/actions
func (h *Handler) apply(c *gin.Context) {
	var dto ApplyActionDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	dedup := strings.TrimSpace(dto.DedupKey)
	if dedup == "" {
		dedup = c.GetHeader("x-idempotence")
	}
	if dedup == "" {
		// unkeyed manual actions are always distinct
		dedup = "manual:" + uuid.NewString()
	}
	entry, applied, err := h.ledger.Apply(c.Request.Context(), ActionRequest{
		CreatorID:  c.Param("creatorId"),
		ContentID:  dto.ContentID,
		ActionType: models.ActionType(strings.TrimSpace(dto.ActionType)),
		Reason:     dto.Reason,
		AppliedBy:  middleware.CurrentUserID(c),
		Source:     models.SourceManual,
		DedupKey:   dedup,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	if !applied {
		response.OK(c, entry)
		return
	}
	response.Created(c, entry)
}

// POST /creators/:creatorId/strikes/:strikeId/reverse
func (h *Handler) reverse(c *gin.Context) {
	var dto ReverseDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	ctx := c.Request.Context()
	existing, err := h.ledger.Entry(ctx, c.Param("strikeId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	if existing.CreatorID != c.Param("creatorId") {
		response.NotFoundMsg(c, "strike not found for creator")
		return
	}
	entry, err := h.ledger.Reverse(ctx, existing.ID, middleware.CurrentUserID(c), dto.Reason)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, entry)
}
