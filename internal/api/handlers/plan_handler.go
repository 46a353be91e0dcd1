package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"example.com/fieldtrack/services/ledger/internal/service"
	"example.com/fieldtrack/services/ledger/internal/tracing"
)

// PlanHandler handles plan-related HTTP requests
type PlanHandler struct {
	planService     service.PlanService
	materialService service.MaterialService
	tracer          tracing.Tracer
}

// NewPlanHandler creates a new plan handler
func NewPlanHandler(planService service.PlanService, materialService service.MaterialService, tracer tracing.Tracer) *PlanHandler {
	return &PlanHandler{
		planService:     planService,
		materialService: materialService,
		tracer:          tracer,
	}
}

// CreatePlanRequest represents an incoming plan creation request
type CreatePlanRequest struct {
	SectionID      uuid.UUID  `json:"section_id" binding:"required"`
	ActivityTypeID uuid.UUID  `json:"activity_type_id" binding:"required"`
	StageID        *uuid.UUID `json:"stage_id"`
	OptionID       *uuid.UUID `json:"option_id"`
	VendorID       *uuid.UUID `json:"vendor_id"`
	PeriodStart    time.Time  `json:"period_start" binding:"required"`
	PeriodEnd      time.Time  `json:"period_end" binding:"required"`
	CreatedBy      uuid.UUID  `json:"created_by" binding:"required"`
	Blocks         []struct {
		BlockID uuid.UUID `json:"block_id" binding:"required"`
		Area    *float64  `json:"area"`
	} `json:"blocks" binding:"required"`
}

// ApprovalRequest carries the identity performing an approval decision
type ApprovalRequest struct {
	ApproverID uuid.UUID `json:"approver_id" binding:"required"`
	Reason     string    `json:"reason"`
}

// Create handles POST /plans
func (h *PlanHandler) Create(c *gin.Context) {
	txn := h.tracer.StartTransaction("api-create-plan")
	defer h.tracer.EndTransaction(txn)

	var req CreatePlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	svcReq := &service.CreatePlanRequest{
		SectionID:      req.SectionID,
		ActivityTypeID: req.ActivityTypeID,
		StageID:        req.StageID,
		OptionID:       req.OptionID,
		VendorID:       req.VendorID,
		PeriodStart:    req.PeriodStart,
		PeriodEnd:      req.PeriodEnd,
		CreatedBy:      req.CreatedBy,
	}
	for _, b := range req.Blocks {
		svcReq.Blocks = append(svcReq.Blocks, service.BlockAllocationRequest{
			BlockID: b.BlockID,
			Area:    b.Area,
		})
	}

	plan, err := h.planService.Create(c.Request.Context(), svcReq)
	if err != nil {
		h.tracer.RecordError(txn, err)
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, plan)
}

// List handles GET /plans filtered by section
func (h *PlanHandler) List(c *gin.Context) {
	sectionID, err := uuid.Parse(c.Query("section_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "section_id is required"})
		return
	}

	plans, err := h.planService.ListBySection(c.Request.Context(), sectionID)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"plans": plans})
}

// Get handles GET /plans/:id, refreshing derived progress on the way out
func (h *PlanHandler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid plan id"})
		return
	}

	plan, err := h.planService.RefreshProgress(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, plan)
}

// Approve handles POST /plans/:id/approve
func (h *PlanHandler) Approve(c *gin.Context) {
	txn := h.tracer.StartTransaction("api-approve-plan")
	defer h.tracer.EndTransaction(txn)

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid plan id"})
		return
	}

	var req ApprovalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	plan, err := h.planService.Approve(c.Request.Context(), id, req.ApproverID)
	if err != nil {
		h.tracer.RecordError(txn, err)
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, plan)
}

// Reject handles POST /plans/:id/reject
func (h *PlanHandler) Reject(c *gin.Context) {
	txn := h.tracer.StartTransaction("api-reject-plan")
	defer h.tracer.EndTransaction(txn)

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid plan id"})
		return
	}

	var req ApprovalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	plan, err := h.planService.Reject(c.Request.Context(), id, req.ApproverID, req.Reason)
	if err != nil {
		h.tracer.RecordError(txn, err)
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, plan)
}

// Delete handles DELETE /plans/:id
func (h *PlanHandler) Delete(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid plan id"})
		return
	}

	if err := h.planService.Delete(c.Request.Context(), id); err != nil {
		writeError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// Materials handles GET /plans/:id/materials
func (h *PlanHandler) Materials(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid plan id"})
		return
	}

	summaries, err := h.materialService.PlanSummary(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"materials": summaries})
}

// RegisterRoutes registers the handler's routes
func (h *PlanHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/plans", h.Create)
	rg.GET("/plans", h.List)
	rg.GET("/plans/:id", h.Get)
	rg.POST("/plans/:id/approve", h.Approve)
	rg.POST("/plans/:id/reject", h.Reject)
	rg.DELETE("/plans/:id", h.Delete)
	rg.GET("/plans/:id/materials", h.Materials)
}
