package disputes

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"talentbridge/marketplace-backend/internal/assessment"
	"talentbridge/marketplace-backend/internal/projects"
	"talentbridge/marketplace-backend/pkg/workflows"
)

// Handler exposes the dispute manager over HTTP.
type Handler struct {
	service *Service
	logger  *zap.Logger
}

func NewHandler(service *Service, logger *zap.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// RegisterRoutes registers the dispute endpoints on the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/projects/:id/disputes", h.FileDispute)
	rg.GET("/projects/:id/disputes", h.ListDisputes)
	rg.GET("/disputes/:id", h.GetDispute)
	rg.POST("/disputes/:id/resolve", h.Resolve)
}

func (h *Handler) FileDispute(c *gin.Context) {
	projectID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid project id"})
		return
	}

	var req FileDisputeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	req.ProjectID = projectID

	dispute, err := h.service.FileDispute(c.Request.Context(), req)
	if err != nil {
		if errors.Is(err, assessment.ErrAssessmentUnavailable) {
			// The dispute is filed; re-assessment is pending the sweeper or
			// manual review.
			c.JSON(http.StatusAccepted, gin.H{
				"dispute":       dispute,
				"assessment":    "unavailable",
				"manual_review": true,
			})
			return
		}
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, dispute)
}

func (h *Handler) ListDisputes(c *gin.Context) {
	projectID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid project id"})
		return
	}

	disputes, err := h.service.ListDisputes(c.Request.Context(), projectID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"disputes": disputes})
}

func (h *Handler) GetDispute(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid dispute id"})
		return
	}

	dispute, err := h.service.GetDispute(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dispute)
}

type resolveRequest struct {
	Resolution Resolution `json:"resolution" binding:"required"`
	ActorID    uuid.UUID  `json:"actor_id" binding:"required"`
}

func (h *Handler) Resolve(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid dispute id"})
		return
	}

	var req resolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	dispute, err := h.service.Resolve(c.Request.Context(), id, req.Resolution, req.ActorID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dispute)
}

func (h *Handler) respondError(c *gin.Context, err error) {
	var everr *InvalidEvidenceError
	var verr *projects.ValidationError
	switch {
	case errors.As(err, &everr):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": everr.Error()})
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, gin.H{"error": verr.Error()})
	case errors.Is(err, ErrActiveDispute):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, workflows.ErrInvalidTransition):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, gorm.ErrRecordNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, assessment.ErrAssessmentUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	default:
		h.logger.Error("unhandled dispute request error", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
