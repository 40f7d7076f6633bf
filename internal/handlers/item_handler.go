package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "stockroom/internal/errors"
	"stockroom/internal/services"
)

// ItemHandler handles catalog item requests.
type ItemHandler struct {
	itemService  services.ItemServicer
	auditService services.AuditServicer
}

// NewItemHandler creates a new ItemHandler.
func NewItemHandler(itemService services.ItemServicer, auditService services.AuditServicer) *ItemHandler {
	return &ItemHandler{itemService: itemService, auditService: auditService}
}

// CreateItemRequest represents the request payload for filing an item.
type CreateItemRequest struct {
	Code       string `json:"code" binding:"required,max=50"`
	Name       string `json:"name" binding:"required,max=200"`
	CategoryID string `json:"category_id" binding:"required,uuid"`
}

// CreateItem handles filing a new catalog item under a category.
// @Summary     Create an item
// @Tags        items
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       request body CreateItemRequest true "Item details"
// @Success     201 {object} models.Item "Item created"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Category not found"
// @Failure     409 {object} ErrorResponse "Duplicate item code"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /items [post]
func (h *ItemHandler) CreateItem(c *gin.Context) {
	actorID, err := getActorID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	var req CreateItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	item, err := h.itemService.CreateItem(req.Code, req.Name, req.CategoryID)
	if err != nil {
		respondWithError(c, err)
		return
	}

	h.auditService.Record(services.AuditEvent{
		ActorID:    actorID,
		Action:     services.ActionCreateItem,
		ResourceID: item.ID,
		IPAddress:  c.ClientIP(),
		State:      item,
	})

	c.JSON(http.StatusCreated, gin.H{"item": item})
}

// GetItem handles fetching a single item.
// @Summary     Get item by ID
// @Tags        items
// @Produce     json
// @Security    BearerAuth
// @Param       id path string true "Item ID"
// @Success     200 {object} models.Item "Item details"
// @Failure     400 {object} ErrorResponse "Invalid item ID"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Item not found"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /items/{id} [get]
func (h *ItemHandler) GetItem(c *gin.Context) {
	id, err := parsePathID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}

	item, err := h.itemService.GetItemByID(id)
	if err != nil {
		respondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"item": item})
}
