package handlers

import (
	"fmt"
	"net/http"

	"github.com/Tamabadger/anatoview-sub000/internal/models"
	"github.com/Tamabadger/anatoview-sub000/internal/repositories"
	"github.com/Tamabadger/anatoview-sub000/internal/services"
	"github.com/Tamabadger/anatoview-sub000/internal/utils"
	"github.com/Tamabadger/anatoview-sub000/internal/validator"
	"github.com/gin-gonic/gin"
)

// GradingHandler covers the instructor surface: score overrides, grade
// passback and exports.
type GradingHandler struct {
	BaseHandler
	attemptService services.AttemptService
	syncService    services.GradeSyncService
	exportService  services.ExportService
	validator      *validator.Validator
}

func NewGradingHandler(
	attemptService services.AttemptService,
	syncService services.GradeSyncService,
	exportService services.ExportService,
	validator *validator.Validator,
	logger utils.Logger,
) *GradingHandler {
	return &GradingHandler{
		BaseHandler:    NewBaseHandler(logger),
		attemptService: attemptService,
		syncService:    syncService,
		exportService:  exportService,
		validator:      validator,
	}
}

// OverrideGrade applies instructor score overrides and recalculates totals
// @Router /attempts/{id}/grade [put]
func (h *GradingHandler) OverrideGrade(c *gin.Context) {
	attemptID := h.parseIDParam(c, "id")
	if attemptID == 0 {
		return
	}

	h.LogRequest(c, "Overriding attempt grade", "attempt_id", attemptID)

	var req services.OverrideScoreRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return
	}

	userID := h.getUserID(c)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Message: "User not authenticated"})
		return
	}

	attempt, err := h.attemptService.Override(c.Request.Context(), attemptID, &req, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, attempt)
}

// SyncGrade performs one synchronous passback delivery for the attempt
// @Router /grades/{attempt_id}/sync [post]
func (h *GradingHandler) SyncGrade(c *gin.Context) {
	attemptID := h.parseIDParam(c, "attempt_id")
	if attemptID == 0 {
		return
	}

	h.LogRequest(c, "Delivering grade to LMS", "attempt_id", attemptID)

	userID := h.getUserID(c)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Message: "User not authenticated"})
		return
	}

	outcome, err := h.syncService.Deliver(c.Request.Context(), attemptID, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{
		Message: "Grade sync completed",
		Data:    outcome,
	})
}

// EnqueueGradeSync queues an asynchronous passback job for one attempt
// @Router /attempts/{id}/sync [post]
func (h *GradingHandler) EnqueueGradeSync(c *gin.Context) {
	attemptID := h.parseIDParam(c, "id")
	if attemptID == 0 {
		return
	}

	h.LogRequest(c, "Enqueuing grade sync", "attempt_id", attemptID)

	userID := h.getUserID(c)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Message: "User not authenticated"})
		return
	}

	if err := h.syncService.Enqueue(c.Request.Context(), attemptID, userID); err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, SuccessResponse{Message: "Grade sync enqueued"})
}

// SyncLabGrades enqueues passback jobs for every graded attempt of the lab
// @Router /labs/{lab_id}/grades/sync [post]
func (h *GradingHandler) SyncLabGrades(c *gin.Context) {
	labID := h.parseIDParam(c, "lab_id")
	if labID == 0 {
		return
	}

	h.LogRequest(c, "Enqueuing lab grade sync", "lab_id", labID)

	userID := h.getUserID(c)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Message: "User not authenticated"})
		return
	}

	result, err := h.syncService.EnqueueLab(c.Request.Context(), labID, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, SuccessResponse{
		Message: "Grade sync enqueued",
		Data:    result,
	})
}

// GetSyncLog lists the passback audit trail of one attempt
// @Router /attempts/{id}/sync-log [get]
func (h *GradingHandler) GetSyncLog(c *gin.Context) {
	attemptID := h.parseIDParam(c, "id")
	if attemptID == 0 {
		return
	}

	h.LogRequest(c, "Listing grade sync log", "attempt_id", attemptID)

	userID := h.getUserID(c)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Message: "User not authenticated"})
		return
	}

	filters := repositories.SyncLogFilters{
		Limit:  h.parseIntQuery(c, "size", 50),
		Offset: h.parseIntQuery(c, "offset", 0),
	}
	if status := c.Query("status"); status != "" {
		syncStatus := models.SyncStatus(status)
		filters.Status = &syncStatus
	}

	log, err := h.syncService.GetSyncLog(c.Request.Context(), attemptID, filters, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":  log.Entries,
		"total": log.Total,
	})
}

// ExportLabGrades streams an xlsx workbook of the lab's graded attempts
// @Router /labs/{lab_id}/grades/export [get]
func (h *GradingHandler) ExportLabGrades(c *gin.Context) {
	labID := h.parseIDParam(c, "lab_id")
	if labID == 0 {
		return
	}

	h.LogRequest(c, "Exporting lab grades", "lab_id", labID)

	userID := h.getUserID(c)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Message: "User not authenticated"})
		return
	}

	export, err := h.exportService.ExportLabGrades(c.Request.Context(), labID, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.FileName))
	c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", export.Content)
}
