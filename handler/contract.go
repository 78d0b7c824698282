package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/preferrrr/blocker-server/middleware"
	"github.com/preferrrr/blocker-server/model"
	"github.com/preferrrr/blocker-server/service"
)

// ContractHandler covers the draft side of a contract's life: create, list,
// read, edit, delete. Everything past the draft state belongs to SignHandler.
type ContractHandler struct {
	store service.Store
}

func NewContractHandler(store service.Store) *ContractHandler {
	return &ContractHandler{store: store}
}

type ContractRequest struct {
	Title   string `json:"title" binding:"required"`
	Content string `json:"content" binding:"required"`
}

// Create creates a new draft contract owned by the caller
func (h *ContractHandler) Create(c *gin.Context) {
	var req ContractRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	contract := &model.Contract{
		ID:          uuid.New().String(),
		AuthorEmail: middleware.GetEmail(c),
		Title:       req.Title,
		Content:     req.Content,
		State:       model.StateNotProceed,
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}

	err := h.store.InTx(c.Request.Context(), contract.ID, func(tx service.Tx) error {
		return tx.SaveContract(contract)
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, contract)
}

// List returns the caller's contracts, optionally filtered by state,
// most recently modified first
func (h *ContractHandler) List(c *gin.Context) {
	state := c.Query("state")
	switch state {
	case "", model.StateNotProceed, model.StateProceeding, model.StateConcluded:
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid state filter"})
		return
	}

	contracts, err := h.store.ListContractsByAuthor(c.Request.Context(), middleware.GetEmail(c), state)
	if err != nil {
		respondError(c, err)
		return
	}

	result := make([]gin.H, len(contracts))
	for i, contract := range contracts {
		result[i] = gin.H{
			"id":         contract.ID,
			"title":      contract.Title,
			"state":      contract.State,
			"created_at": contract.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
			"updated_at": contract.UpdatedAt.Format("2006-01-02T15:04:05Z07:00"),
		}
	}

	c.JSON(http.StatusOK, gin.H{"contracts": result})
}

// Get returns a single contract
func (h *ContractHandler) Get(c *gin.Context) {
	id := c.Param("id")

	contract, err := h.store.GetContract(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	if contract == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Contract not found"})
		return
	}

	c.JSON(http.StatusOK, contract)
}

// Update edits a draft. Only the author may edit, and only before the
// contract is sent out for signatures.
func (h *ContractHandler) Update(c *gin.Context) {
	id := c.Param("id")
	email := middleware.GetEmail(c)

	var req ContractRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	var updated *model.Contract
	err := h.store.InTx(c.Request.Context(), id, func(tx service.Tx) error {
		contract, err := tx.GetContract(id)
		if err != nil {
			return err
		}
		if contract == nil {
			return model.NewNotFound("contract not found: " + id)
		}
		if !contract.IsAuthor(email) {
			return model.NewForbidden("not the contract author: " + id + ", " + email)
		}
		if contract.State != model.StateNotProceed {
			return model.NewInvalidState("contract is not a draft: " + id)
		}

		contract.Title = req.Title
		contract.Content = req.Content
		updated = contract
		return tx.SaveContract(contract)
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, updated)
}

// Delete removes a draft. Only the author may delete, and only before the
// contract is sent out for signatures.
func (h *ContractHandler) Delete(c *gin.Context) {
	id := c.Param("id")
	email := middleware.GetEmail(c)

	err := h.store.InTx(c.Request.Context(), id, func(tx service.Tx) error {
		contract, err := tx.GetContract(id)
		if err != nil {
			return err
		}
		if contract == nil {
			return model.NewNotFound("contract not found: " + id)
		}
		if !contract.IsAuthor(email) {
			return model.NewForbidden("not the contract author: " + id + ", " + email)
		}
		if contract.State != model.StateNotProceed {
			return model.NewInvalidState("contract is not a draft: " + id)
		}
		return tx.DeleteContract(id)
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Contract deleted"})
}
