package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/dojaang-api/internal/dto"
	"github.com/noah-isme/dojaang-api/internal/middleware"
	"github.com/noah-isme/dojaang-api/internal/models"
	"github.com/noah-isme/dojaang-api/pkg/response"
)

type classService interface {
	List(ctx context.Context, filter models.TrainingClassFilter) ([]models.TrainingClassDetail, *models.Pagination, error)
	Get(ctx context.Context, id string) (*models.TrainingClassDetail, error)
	Create(ctx context.Context, req dto.UpsertClassRequest) (*models.TrainingClassDetail, error)
	Update(ctx context.Context, id string, req dto.UpsertClassRequest) (*models.TrainingClassDetail, error)
	Delete(ctx context.Context, id string) error
	CoachSchedule(ctx context.Context, coachID string) ([]models.CoachSlot, error)
}

// ClassHandler exposes the training class catalog.
type ClassHandler struct {
	classes classService
}

// NewClassHandler constructs ClassHandler.
func NewClassHandler(classes classService) *ClassHandler {
	return &ClassHandler{classes: classes}
}

// List godoc
// @Summary List training classes
// @Tags Classes
// @Produce json
// @Param dojaangId query string false "Filter by dojaang"
// @Param coachId query string false "Filter by coach"
// @Param search query string false "Search by name"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Param sort query string false "Sort column (name, created_at, updated_at)"
// @Param order query string false "asc or desc"
// @Success 200 {object} response.Envelope
// @Router /classes [get]
func (h *ClassHandler) List(c *gin.Context) {
	filter := models.TrainingClassFilter{
		DojaangID: c.Query("dojaangId"),
		CoachID:   c.Query("coachId"),
		Search:    c.Query("search"),
		SortBy:    c.Query("sort"),
		SortOrder: c.Query("order"),
	}
	filter.Page, filter.PageSize = pageParams(c)

	classes, pagination, err := h.classes.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, classes, pagination)
}

// Get godoc
// @Summary Get training class
// @Tags Classes
// @Produce json
// @Param id path string true "Class ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /classes/{id} [get]
func (h *ClassHandler) Get(c *gin.Context) {
	class, err := h.classes.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, class, nil)
}

// Create godoc
// @Summary Create training class
// @Description Rejects the class with 409 and the conflicting slots when the coach is already booked.
// @Tags Classes
// @Accept json
// @Produce json
// @Param payload body dto.UpsertClassRequest true "Class payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /classes [post]
func (h *ClassHandler) Create(c *gin.Context) {
	var req dto.UpsertClassRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err))
		return
	}
	class, err := h.classes.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetAuditResourceID(c, class.ID)
	response.Created(c, class)
}

// Update godoc
// @Summary Update training class
// @Tags Classes
// @Accept json
// @Produce json
// @Param id path string true "Class ID"
// @Param payload body dto.UpsertClassRequest true "Class payload"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /classes/{id} [put]
func (h *ClassHandler) Update(c *gin.Context) {
	var req dto.UpsertClassRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err))
		return
	}
	class, err := h.classes.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, class, nil)
}

// Delete godoc
// @Summary Delete training class
// @Description Withdraws every active enrollment and frees the coach's slots.
// @Tags Classes
// @Param id path string true "Class ID"
// @Success 204
// @Router /classes/{id} [delete]
func (h *ClassHandler) Delete(c *gin.Context) {
	if err := h.classes.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// CoachSchedule godoc
// @Summary Weekly commitments of a coach
// @Tags Classes
// @Produce json
// @Param id path string true "Coach ID"
// @Success 200 {object} response.Envelope
// @Router /coaches/{id}/schedule [get]
func (h *ClassHandler) CoachSchedule(c *gin.Context) {
	slots, err := h.classes.CoachSchedule(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, slots, nil)
}
