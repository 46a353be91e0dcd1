package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"example.com/fieldtrack/services/ledger/internal/models"
	"example.com/fieldtrack/services/ledger/internal/repository"
	"example.com/fieldtrack/services/ledger/internal/service"
	"example.com/fieldtrack/services/ledger/internal/tracing"
)

// ExecutionHandler handles execution-related HTTP requests
type ExecutionHandler struct {
	executionService service.ExecutionService
	dosageService    service.DosageService
	blockRepo        repository.BlockRepository
	tracer           tracing.Tracer
}

// NewExecutionHandler creates a new execution handler
func NewExecutionHandler(
	executionService service.ExecutionService,
	dosageService service.DosageService,
	blockRepo repository.BlockRepository,
	tracer tracing.Tracer,
) *ExecutionHandler {
	return &ExecutionHandler{
		executionService: executionService,
		dosageService:    dosageService,
		blockRepo:        blockRepo,
		tracer:           tracer,
	}
}

// RecordExecutionRequest represents an incoming execution submission
type RecordExecutionRequest struct {
	PlanID         uuid.UUID `json:"plan_id" binding:"required"`
	WorkDate       string    `json:"work_date" binding:"required"`
	WorkerCount    *int      `json:"worker_count"`
	Notes          string    `json:"notes"`
	RecordedBy     uuid.UUID `json:"recorded_by" binding:"required"`
	IdempotencyKey uuid.UUID `json:"idempotency_key"`
	BlockDeltas    []struct {
		BlockActivityID uuid.UUID `json:"block_activity_id" binding:"required"`
		AreaWorked      float64   `json:"area_worked" binding:"required"`
	} `json:"block_deltas" binding:"required"`
}

// ResolveDosageRequest represents a material requirement preview request
type ResolveDosageRequest struct {
	ActivityTypeID uuid.UUID   `json:"activity_type_id" binding:"required"`
	StageID        *uuid.UUID  `json:"stage_id"`
	OptionID       *uuid.UUID  `json:"option_id"`
	BlockIDs       []uuid.UUID `json:"block_ids" binding:"required"`
}

// Record handles POST /executions
func (h *ExecutionHandler) Record(c *gin.Context) {
	txn := h.tracer.StartTransaction("api-record-execution")
	defer h.tracer.EndTransaction(txn)

	var req RecordExecutionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	workDate, err := time.Parse("2006-01-02", req.WorkDate)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "work_date must be formatted YYYY-MM-DD"})
		return
	}

	svcReq := &service.RecordExecutionRequest{
		PlanID:         req.PlanID,
		WorkDate:       workDate,
		WorkerCount:    req.WorkerCount,
		Notes:          req.Notes,
		RecordedBy:     req.RecordedBy,
		IdempotencyKey: req.IdempotencyKey,
	}
	for _, d := range req.BlockDeltas {
		svcReq.BlockDeltas = append(svcReq.BlockDeltas, service.BlockDeltaRequest{
			BlockActivityID: d.BlockActivityID,
			AreaWorked:      d.AreaWorked,
		})
	}

	h.tracer.AddAttribute(txn, "plan_id", req.PlanID.String())
	h.tracer.AddAttribute(txn, "blocks", len(req.BlockDeltas))

	event, err := h.executionService.Record(c.Request.Context(), svcReq)
	if err != nil {
		h.tracer.RecordError(txn, err)
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, event)
}

// List handles GET /executions with optional date range, section and
// activity filters
func (h *ExecutionHandler) List(c *gin.Context) {
	var filter repository.ExecutionFilter

	if v := c.Query("from"); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "from must be formatted YYYY-MM-DD"})
			return
		}
		filter.From = &t
	}
	if v := c.Query("to"); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "to must be formatted YYYY-MM-DD"})
			return
		}
		filter.To = &t
	}
	if v := c.Query("section_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid section_id"})
			return
		}
		filter.SectionID = &id
	}
	if v := c.Query("activity_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid activity_id"})
			return
		}
		filter.ActivityID = &id
	}
	if v := c.Query("plan_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid plan_id"})
			return
		}
		filter.PlanID = &id
	}

	events, err := h.executionService.List(c.Request.Context(), filter)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"executions": events})
}

// Get handles GET /executions/:id
func (h *ExecutionHandler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid execution id"})
		return
	}

	event, err := h.executionService.GetByID(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, event)
}

// ResolveDosage handles POST /dosage/resolve, previewing material
// requirements for a block selection
func (h *ExecutionHandler) ResolveDosage(c *gin.Context) {
	var req ResolveDosageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if len(req.BlockIDs) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "at least one block is required"})
		return
	}

	blocks, err := h.blockRepo.FindByIDs(c.Request.Context(), req.BlockIDs)
	if err != nil {
		writeError(c, err)
		return
	}

	resolverBlocks := make([]models.Block, 0, len(blocks))
	for _, b := range blocks {
		resolverBlocks = append(resolverBlocks, *b)
	}

	requirements, err := h.dosageService.Resolve(c.Request.Context(), req.ActivityTypeID, req.StageID, req.OptionID, resolverBlocks)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"materials": requirements})
}

// RegisterRoutes registers the handler's routes
func (h *ExecutionHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/executions", h.Record)
	rg.GET("/executions", h.List)
	rg.GET("/executions/:id", h.Get)
	rg.POST("/dosage/resolve", h.ResolveDosage)
}
