package handlers

import (
	"net/http"
	"strings"

	"github.com/Tamabadger/anatoview-sub000/internal/models"
	"github.com/Tamabadger/anatoview-sub000/internal/repositories"
	"github.com/Tamabadger/anatoview-sub000/internal/services"
	"github.com/Tamabadger/anatoview-sub000/internal/utils"
	"github.com/Tamabadger/anatoview-sub000/internal/validator"
	"github.com/gin-gonic/gin"
)

type AttemptHandler struct {
	BaseHandler
	attemptService services.AttemptService
	validator      *validator.Validator
}

func NewAttemptHandler(
	attemptService services.AttemptService,
	validator *validator.Validator,
	logger utils.Logger,
) *AttemptHandler {
	return &AttemptHandler{
		BaseHandler:    NewBaseHandler(logger),
		attemptService: attemptService,
		validator:      validator,
	}
}

type submitResponsesBody struct {
	Responses []services.SubmitResponseRequest `json:"responses"`
}

type submitAttemptBody struct {
	Responses []services.SubmitResponseRequest `json:"responses"`
	TimeSpent *int                             `json:"time_spent"`
}

// GetOrCreateAttempt returns the student's active attempt for the lab,
// opening a fresh one when none exists
// @Router /labs/{lab_id}/attempt [get]
func (h *AttemptHandler) GetOrCreateAttempt(c *gin.Context) {
	labID := h.parseIDParam(c, "lab_id")
	if labID == 0 {
		return
	}

	h.LogRequest(c, "Getting active lab attempt", "lab_id", labID)

	userID := h.getUserID(c)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Message: "User not authenticated"})
		return
	}

	attempt, err := h.attemptService.GetOrCreate(c.Request.Context(), labID, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, attempt)
}

// StartAttempt starts (or resumes) the student's existing attempt for the
// lab; with no attempt to start it is a 404
// @Router /labs/{lab_id}/attempt/start [post]
func (h *AttemptHandler) StartAttempt(c *gin.Context) {
	labID := h.parseIDParam(c, "lab_id")
	if labID == 0 {
		return
	}

	h.LogRequest(c, "Starting lab attempt", "lab_id", labID)

	userID := h.getUserID(c)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Message: "User not authenticated"})
		return
	}

	attempt, err := h.attemptService.Start(c.Request.Context(), labID, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, attempt)
}

// SubmitAttempt submits the student's active attempt for the lab, with any
// final answers carried in the body
// @Router /labs/{lab_id}/attempt/submit [post]
func (h *AttemptHandler) SubmitAttempt(c *gin.Context) {
	labID := h.parseIDParam(c, "lab_id")
	if labID == 0 {
		return
	}

	h.LogRequest(c, "Submitting lab attempt", "lab_id", labID)

	var body submitAttemptBody
	if err := c.ShouldBindJSON(&body); err != nil {
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

	// Resolve the active attempt for this lab; submit never creates one
	active, err := h.attemptService.GetActive(c.Request.Context(), labID, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	attempt, err := h.attemptService.Submit(c.Request.Context(), &services.SubmitAttemptRequest{
		AttemptID: active.ID,
		Responses: body.Responses,
		TimeSpent: body.TimeSpent,
	}, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, attempt)
}

// SaveResponses upserts a batch of answers on an open attempt
// @Router /attempts/{id}/responses [post]
func (h *AttemptHandler) SaveResponses(c *gin.Context) {
	attemptID := h.parseIDParam(c, "id")
	if attemptID == 0 {
		return
	}

	var body submitResponsesBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return
	}
	if len(body.Responses) == 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{Message: "No responses provided"})
		return
	}

	h.LogRequest(c, "Saving responses", "attempt_id", attemptID, "responses_count", len(body.Responses))

	userID := h.getUserID(c)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Message: "User not authenticated"})
		return
	}

	attempt, err := h.attemptService.SaveResponses(c.Request.Context(), &services.SaveResponsesRequest{
		AttemptID: attemptID,
		Responses: body.Responses,
	}, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, attempt)
}

// GetAttempt returns one attempt with its responses
// @Router /attempts/{id} [get]
func (h *AttemptHandler) GetAttempt(c *gin.Context) {
	attemptID := h.parseIDParam(c, "id")
	if attemptID == 0 {
		return
	}

	h.LogRequest(c, "Getting attempt", "attempt_id", attemptID)

	userID := h.getUserID(c)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Message: "User not authenticated"})
		return
	}

	attempt, err := h.attemptService.GetByID(c.Request.Context(), attemptID, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, attempt)
}

// ListLabAttempts returns attempts of one lab with filters and pagination
// @Router /labs/{lab_id}/attempts [get]
func (h *AttemptHandler) ListLabAttempts(c *gin.Context) {
	labID := h.parseIDParam(c, "lab_id")
	if labID == 0 {
		return
	}

	h.LogRequest(c, "Listing lab attempts", "lab_id", labID)

	userID := h.getUserID(c)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Message: "User not authenticated"})
		return
	}

	filters := h.parseAttemptFilters(c)
	list, err := h.attemptService.ListByLab(c.Request.Context(), labID, filters, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":  list.Attempts,
		"total": list.Total,
		"page":  list.Page,
		"size":  list.Size,
	})
}

func (h *AttemptHandler) parseAttemptFilters(c *gin.Context) repositories.AttemptFilters {
	page := h.parseIntQuery(c, "page", 1)
	size := h.parseIntQuery(c, "size", 10)

	filters := repositories.AttemptFilters{
		Limit:     size,
		Offset:    (page - 1) * size,
		SortBy:    c.DefaultQuery("sort_by", "created_at"),
		SortOrder: c.DefaultQuery("sort_order", "desc"),
	}

	if status := c.Query("status"); status != "" {
		attemptStatus := models.AttemptStatus(status)
		filters.Status = &attemptStatus
	}

	if studentID := strings.TrimSpace(c.Query("student_id")); studentID != "" {
		filters.StudentID = &studentID
	}

	return filters
}
