package rights

import (
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mx-space/sentinel/internal/middleware"
	"github.com/mx-space/sentinel/internal/models"
	"github.com/mx-space/sentinel/internal/pkg/jwt"
	"github.com/mx-space/sentinel/internal/pkg/response"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// LedgerRoutes are the money-moving routes relative to the API root. Two
// identical requests on them are two events, so they are deduplicated only
// by an explicit idempotence key.
var LedgerRoutes = []string{"/rights/:contentId/revenue", "/rights/:contentId/payouts"}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, authMW gin.HandlerFunc) {
	g := rg.Group("/rights", authMW)

	reviewer := g.Group("", middleware.RequireRole(jwt.RoleReviewer))
	reviewer.GET("", h.list)
	reviewer.POST("/scan", h.scan)
	reviewer.GET("/catalog/:soundRef", h.getSoundRight)
	reviewer.GET("/disputes", h.activeDisputes)
	reviewer.POST("/:contentId/claims", h.fileClaim)
	reviewer.POST("/:contentId/disputes/:disputeId/resolve", h.resolveDispute)
	reviewer.POST("/:contentId/enforcement/appeal/resolve", h.resolveEnforcementAppeal)

	admin := g.Group("", middleware.RequireRole(jwt.RoleAdmin))
	admin.PUT("/catalog/:soundRef", h.putSoundRight)
	admin.POST("/:contentId/revenue", h.revenue)
	admin.POST("/:contentId/payouts", h.payout)
	admin.POST("/:contentId/usage", h.usage)
	admin.GET("/holders/:holderId/report", h.royaltyReport)
	admin.POST("/holders/:holderId/payouts", h.batchPayout)

	g.GET("/:contentId", h.get)
	g.GET("/:contentId/monetization", h.monetization)
	g.POST("/:contentId/claims/:claimId/dispute", h.dispute)
	g.POST("/:contentId/enforcement/appeal", h.appealEnforcement)
}

// ownerOrReviewer loads the record and checks that the caller may see it.
// It writes the response itself and returns nil when the request must stop.
func (h *Handler) ownerOrReviewer(c *gin.Context) *models.RightsRecord {
	rec, err := h.svc.Get(c.Request.Context(), c.Param("contentId"))
	if err != nil {
		response.Error(c, err)
		return nil
	}
	if !middleware.IsReviewer(c) && middleware.CurrentUserID(c) != rec.CreatorID {
		response.NotFoundMsg(c, "rights record not found")
		return nil
	}
	return rec
}

// owner is ownerOrReviewer restricted to the creator and admins.
func (h *Handler) owner(c *gin.Context) *models.RightsRecord {
	rec := h.ownerOrReviewer(c)
	if rec == nil {
		return nil
	}
	if rec.CreatorID != middleware.CurrentUserID(c) && middleware.CurrentRole(c) != jwt.RoleAdmin {
		response.Forbidden(c)
		return nil
	}
	return rec
}

// GET /rights?status=disputed
func (h *Handler) list(c *gin.Context) {
	status := models.RightsStatus(strings.TrimSpace(c.DefaultQuery("status", string(models.RightsDisputed))))
	items, err := h.svc.List(c.Request.Context(), status, queryInt(c, "limit", 50))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, items)
}

// POST /rights/scan
func (h *Handler) scan(c *gin.Context) {
	var dto ScanDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	rec, err := h.svc.RecordScan(c.Request.Context(), ScanInput{
		Content:     models.ContentRef{Kind: models.ContentKind(strings.TrimSpace(dto.ContentKind)), ID: strings.TrimSpace(dto.ContentID)},
		CreatorID:   strings.TrimSpace(dto.CreatorID),
		Fingerprint: dto.Fingerprint,
		Method:      dto.Method,
		Matches:     dto.Matches,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, rec)
}

// GET /rights/:contentId
func (h *Handler) get(c *gin.Context) {
	if rec := h.ownerOrReviewer(c); rec != nil {
		response.OK(c, rec)
	}
}

// GET /rights/:contentId/monetization
func (h *Handler) monetization(c *gin.Context) {
	rec := h.ownerOrReviewer(c)
	if rec == nil {
		return
	}
	m, err := h.svc.CanMonetize(c.Request.Context(), rec.Content.ID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, m)
}

// POST /rights/:contentId/claims
func (h *Handler) fileClaim(c *gin.Context) {
	var dto ClaimDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	rec, err := h.svc.FileClaim(c.Request.Context(), c.Param("contentId"), ClaimInput{
		RightsHolder: dto.RightsHolder,
		ClaimedMusic: dto.ClaimedMusic,
		ClaimType:    models.ClaimType(strings.TrimSpace(dto.ClaimType)),
		Action:       models.ClaimAction(strings.TrimSpace(dto.Action)),
		RevenueShare: dto.RevenueShare,
		Territories:  dto.Territories,
		FiledBy:      middleware.CurrentUserID(c),
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, rec)
}

// POST /rights/:contentId/claims/:claimId/dispute
func (h *Handler) dispute(c *gin.Context) {
	var dto DisputeDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	current := h.owner(c)
	if current == nil {
		return
	}
	rec, err := h.svc.DisputeClaim(c.Request.Context(), current.Content.ID, DisputeInput{
		ClaimID:     c.Param("claimId"),
		DisputedBy:  middleware.CurrentUserID(c),
		Reason:      models.DisputeReason(strings.TrimSpace(dto.Reason)),
		Explanation: dto.Explanation,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, rec)
}

// POST /rights/:contentId/disputes/:disputeId/resolve
func (h *Handler) resolveDispute(c *gin.Context) {
	var dto ResolveDisputeDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	rec, err := h.svc.ResolveDispute(c.Request.Context(), c.Param("contentId"), c.Param("disputeId"), ResolveDisputeInput{
		Decision:  models.DisputeStatus(strings.TrimSpace(dto.Decision)),
		Reason:    dto.Reason,
		DecidedBy: middleware.CurrentUserID(c),
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, rec)
}

// POST /rights/:contentId/revenue
func (h *Handler) revenue(c *gin.Context) {
	var dto RevenueDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	split, err := h.svc.RecordRevenue(c.Request.Context(), c.Param("contentId"), dto.Amount, dto.Territory)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, split)
}

// POST /rights/:contentId/payouts
func (h *Handler) payout(c *gin.Context) {
	var dto PayoutDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	p, err := h.svc.ProcessPayout(c.Request.Context(), c.Param("contentId"), dto.RightsHolderID, dto.Amount)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, p)
}

// POST /rights/:contentId/enforcement/appeal
func (h *Handler) appealEnforcement(c *gin.Context) {
	var dto EnforcementAppealDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	current := h.owner(c)
	if current == nil {
		return
	}
	rec, err := h.svc.AppealEnforcement(c.Request.Context(), current.Content.ID, middleware.CurrentUserID(c), dto.Reason)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, rec)
}

// POST /rights/:contentId/enforcement/appeal/resolve
func (h *Handler) resolveEnforcementAppeal(c *gin.Context) {
	var dto ResolveEnforcementAppealDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	rec, err := h.svc.ResolveEnforcementAppeal(c.Request.Context(), c.Param("contentId"), middleware.CurrentUserID(c), dto.Approved, dto.Reason)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, rec)
}

// GET /rights/catalog/:soundRef
func (h *Handler) getSoundRight(c *gin.Context) {
	sr, err := h.svc.SoundRight(c.Request.Context(), c.Param("soundRef"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, sr)
}

// PUT /rights/catalog/:soundRef
func (h *Handler) putSoundRight(c *gin.Context) {
	var dto SoundRightDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	sr := &models.SoundRight{
		SoundRef:     c.Param("soundRef"),
		Title:        dto.Title,
		Artist:       dto.Artist,
		ISRC:         dto.ISRC,
		Catalog:      dto.Catalog,
		Holder:       dto.RightsHolder,
		Policy:       models.ClaimAction(strings.TrimSpace(dto.Policy)),
		RevenueShare: dto.RevenueShare,
		Territories:  dto.Territories,
		RoyaltyFree:  dto.RoyaltyFree,
	}
	if err := h.svc.UpsertSoundRight(c.Request.Context(), sr); err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, sr)
}

// GET /rights/disputes?status=pending
func (h *Handler) activeDisputes(c *gin.Context) {
	status := models.DisputeStatus(strings.TrimSpace(c.Query("status")))
	items, err := h.svc.ActiveDisputes(c.Request.Context(), status, queryInt(c, "limit", 50))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, items)
}

// POST /rights/:contentId/usage
func (h *Handler) usage(c *gin.Context) {
	var dto UsageDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	rec, err := h.svc.UpdateUsage(c.Request.Context(), c.Param("contentId"), middleware.CurrentUserID(c), models.UsageStats{
		Views:            dto.Views,
		MonetizableViews: dto.MonetizableViews,
		EstimatedRevenue: dto.EstimatedRevenue,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, rec)
}

// GET /rights/holders/:holderId/report?start=2024-01-01&end=2024-02-01
func (h *Handler) royaltyReport(c *gin.Context) {
	start, err := queryTime(c, "start")
	if err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	end, err := queryTime(c, "end")
	if err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	report, err := h.svc.RoyaltyReport(c.Request.Context(), c.Param("holderId"), start, end)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, report)
}

// POST /rights/holders/:holderId/payouts
func (h *Handler) batchPayout(c *gin.Context) {
	result, err := h.svc.BatchPayout(c.Request.Context(), c.Param("holderId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, result)
}

// queryTime accepts RFC 3339 or a plain date. A missing value is the zero time.
func queryTime(c *gin.Context, key string) (time.Time, error) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	return time.Parse(time.DateOnly, raw)
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
