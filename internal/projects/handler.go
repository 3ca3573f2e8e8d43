package projects

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"talentbridge/marketplace-backend/internal/assessment"
	"talentbridge/marketplace-backend/pkg/workflows"
)

// Handler exposes the project lifecycle over HTTP.
type Handler struct {
	service *Service
	logger  *zap.Logger
}

func NewHandler(service *Service, logger *zap.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// RegisterRoutes registers the project endpoints on the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/projects", h.SubmitProject)
	rg.GET("/projects", h.ListProjects)
	rg.GET("/projects/:id", h.GetProject)
	rg.POST("/projects/:id/accept", h.AcceptProject)
	rg.POST("/projects/:id/start", h.StartWork)
	rg.POST("/projects/:id/completion", h.SubmitCompletion)
	rg.POST("/projects/:id/review", h.ReviewDecision)
}

func (h *Handler) SubmitProject(c *gin.Context) {
	var req SubmitProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	project, err := h.service.SubmitProject(c.Request.Context(), req)
	if err != nil {
		if errors.Is(err, assessment.ErrAssessmentUnavailable) {
			// Reported, non-fatal: the project is parked in its pending
			// state awaiting manual review.
			c.JSON(http.StatusAccepted, gin.H{
				"project":       project,
				"assessment":    "unavailable",
				"manual_review": true,
			})
			return
		}
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, project)
}

func (h *Handler) GetProject(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid project id"})
		return
	}

	project, err := h.service.GetProject(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, project)
}

func (h *Handler) ListProjects(c *gin.Context) {
	filter := ProjectFilter{Limit: 50}
	if status := c.Query("status"); status != "" {
		st := workflows.Status(status)
		filter.Status = &st
	}
	if client := c.Query("client_id"); client != "" {
		id, err := uuid.Parse(client)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid client_id"})
			return
		}
		filter.ClientID = &id
	}

	projects, err := h.service.ListProjects(c.Request.Context(), filter)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"projects": projects})
}

type acceptRequest struct {
	FreelancerID uuid.UUID `json:"freelancer_id" binding:"required"`
}

func (h *Handler) AcceptProject(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid project id"})
		return
	}

	var req acceptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	project, err := h.service.AcceptProject(c.Request.Context(), id, req.FreelancerID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, project)
}

type actorRequest struct {
	ActorID uuid.UUID `json:"actor_id" binding:"required"`
}

func (h *Handler) StartWork(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid project id"})
		return
	}

	var req actorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	project, err := h.service.StartWork(c.Request.Context(), id, req.ActorID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, project)
}

type completionRequest struct {
	ActorID   uuid.UUID `json:"actor_id" binding:"required"`
	Submitted []string  `json:"submitted" binding:"required"`
}

func (h *Handler) SubmitCompletion(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid project id"})
		return
	}

	var req completionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	project, err := h.service.SubmitCompletion(c.Request.Context(), id, req.Submitted, req.ActorID)
	if err != nil {
		if errors.Is(err, assessment.ErrAssessmentUnavailable) {
			c.JSON(http.StatusAccepted, gin.H{
				"project":       project,
				"assessment":    "unavailable",
				"manual_review": true,
			})
			return
		}
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, project)
}

type reviewRequest struct {
	ActorID uuid.UUID `json:"actor_id" binding:"required"`
	Approve *bool     `json:"approve" binding:"required"`
}

func (h *Handler) ReviewDecision(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid project id"})
		return
	}

	var req reviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	project, err := h.service.ReviewDecision(c.Request.Context(), id, *req.Approve, req.ActorID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, project)
}

func (h *Handler) respondError(c *gin.Context, err error) {
	var verr *ValidationError
	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, gin.H{"error": verr.Error()})
	case errors.Is(err, workflows.ErrInvalidTransition):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, gorm.ErrRecordNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "project not found"})
	case errors.Is(err, assessment.ErrAssessmentUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	default:
		h.logger.Error("unhandled request error", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
