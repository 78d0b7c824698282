package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/preferrrr/blocker-server/middleware"
	"github.com/preferrrr/blocker-server/service"
)

// SignHandler exposes the signing protocol over HTTP
type SignHandler struct {
	engine  *service.SignEngine
	archive *service.ArchiveService // nil when archiving is disabled
}

func NewSignHandler(engine *service.SignEngine, archive *service.ArchiveService) *SignHandler {
	return &SignHandler{engine: engine, archive: archive}
}

type ProceedRequest struct {
	Contractors []string `json:"contractors" binding:"required,min=1"`
}

// Proceed sends a drafted contract out for signatures
func (h *SignHandler) Proceed(c *gin.Context) {
	var req ProceedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	err := h.engine.ProceedContract(c.Request.Context(), middleware.GetEmail(c), c.Param("id"), req.Contractors)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Contract proceeding"})
}

// Sign records the caller's signature
func (h *SignHandler) Sign(c *gin.Context) {
	err := h.engine.SignContract(c.Request.Context(), middleware.GetEmail(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Contract signed"})
}

// Break cancels a proceeding contract unilaterally
func (h *SignHandler) Break(c *gin.Context) {
	err := h.engine.BreakContract(c.Request.Context(), middleware.GetEmail(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Contract broken"})
}

// GetSigns returns the per-participant projection of a proceeding or
// concluded contract
func (h *SignHandler) GetSigns(c *gin.Context) {
	result, err := h.engine.GetProceedOrConcludeContract(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"id":          result.Contract.ID,
		"title":       result.Contract.Title,
		"content":     result.Contract.Content,
		"state":       result.Contract.State,
		"created_at":  result.Contract.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
		"updated_at":  result.Contract.UpdatedAt.Format("2006-01-02T15:04:05Z07:00"),
		"contractors": result.Contractors,
	})
}

// ProposeCancel starts an all-party cancellation of a concluded contract
func (h *SignHandler) ProposeCancel(c *gin.Context) {
	err := h.engine.ProposeCancel(c.Request.Context(), middleware.GetEmail(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Cancellation proposed"})
}

// SignCancel records the caller's consent to cancel
func (h *SignHandler) SignCancel(c *gin.Context) {
	err := h.engine.SignCancel(c.Request.Context(), middleware.GetEmail(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Cancellation signed"})
}

// ArchiveURL returns a presigned URL for the archived snapshot of a
// concluded contract
func (h *SignHandler) ArchiveURL(c *gin.Context) {
	if h.archive == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Archiving is not enabled"})
		return
	}

	url, err := h.archive.SnapshotURL(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Snapshot not available"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"url": url})
}
