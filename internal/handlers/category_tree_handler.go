package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "stockroom/internal/errors"
	"stockroom/internal/pagination"
	"stockroom/internal/services"
)

// MoveCategoryRequest represents the request payload for moving a category.
// A missing parent_id moves the category to the top level.
type MoveCategoryRequest struct {
	ParentID *string `json:"parent_id" binding:"omitempty,uuid"`
	Order    int     `json:"order" binding:"sort_order"`
}

// GetBreadcrumb returns the root-first name chain of a category.
// @Summary     Category breadcrumb
// @Tags        categories
// @Produce     json
// @Security    BearerAuth
// @Param       id path string true "Category ID"
// @Success     200 {object} services.Breadcrumb "Breadcrumb and joined path"
// @Failure     400 {object} ErrorResponse "Invalid category ID"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Category not found"
// @Failure     409 {object} ErrorResponse "Circular reference detected"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /categories/{id}/breadcrumb [get]
func (h *CategoryHandler) GetBreadcrumb(c *gin.Context) {
	id, err := parsePathID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}

	crumb, err := h.categoryService.GetBreadcrumb(id)
	if err != nil {
		respondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, crumb)
}

// MoveCategory reparents and reorders a category.
// @Summary     Move category
// @Description Move a category under a new parent (or to root) at the given order. Rejected moves return SELF_PARENT_CATEGORY, DESCENDANT_TARGET or DEPTH_EXCEEDED.
// @Tags        categories
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id      path string              true "Category ID"
// @Param       request body MoveCategoryRequest true "Target parent and order"
// @Success     200 {object} services.MoveResult "Move result"
// @Failure     400 {object} ErrorResponse "Invalid input or rejected move"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Category or target not found"
// @Failure     409 {object} ErrorResponse "Circular reference detected"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /categories/{id}/move [post]
func (h *CategoryHandler) MoveCategory(c *gin.Context) {
	actorID, err := getActorID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	id, err := parsePathID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}

	var req MoveCategoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	result, err := h.categoryService.MoveCategory(id, req.ParentID, req.Order)
	if err != nil {
		respondWithError(c, err)
		return
	}

	if result.Changed {
		h.auditService.Record(services.AuditEvent{
			ActorID:    actorID,
			Action:     services.ActionMoveCategory,
			ResourceID: id,
			IPAddress:  c.ClientIP(),
			State:      result,
		})
	}

	c.JSON(http.StatusOK, gin.H{"move": result})
}

// GetItemCount returns the number of active items in a category's subtree.
// @Summary     Subtree item count
// @Tags        categories
// @Produce     json
// @Security    BearerAuth
// @Param       id path string true "Category ID"
// @Success     200 {object} map[string]int64 "Item count"
// @Failure     400 {object} ErrorResponse "Invalid category ID"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Category not found"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /categories/{id}/item-count [get]
func (h *CategoryHandler) GetItemCount(c *gin.Context) {
	id, err := parsePathID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}

	count, err := h.categoryService.SubtreeItemCount(id)
	if err != nil {
		respondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": count})
}

// GetDescendants lists the ids below a category.
// @Summary     Category descendants
// @Tags        categories
// @Produce     json
// @Security    BearerAuth
// @Param       id path string true "Category ID"
// @Success     200 {object} map[string][]string "Descendant ids"
// @Failure     400 {object} ErrorResponse "Invalid category ID"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Category not found"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /categories/{id}/descendants [get]
func (h *CategoryHandler) GetDescendants(c *gin.Context) {
	id, err := parsePathID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}

	ids, err := h.categoryService.GetDescendants(id)
	if err != nil {
		respondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"descendants": ids})
}

// GetMoveTargets lists the categories that can accept this one as a child.
// @Summary     Move target choices
// @Tags        categories
// @Produce     json
// @Security    BearerAuth
// @Param       id path string true "Category ID"
// @Success     200 {array}  services.MoveTarget "Valid targets"
// @Failure     400 {object} ErrorResponse "Invalid category ID"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Category not found"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /categories/{id}/move-targets [get]
func (h *CategoryHandler) GetMoveTargets(c *gin.Context) {
	id, err := parsePathID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}

	targets, err := h.categoryService.GetMoveTargets(id)
	if err != nil {
		respondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"targets": targets})
}

// ListCategoryItems lists the items filed under a category, or under its
// whole subtree when subtree=true.
// @Summary     Items of a category
// @Tags        categories
// @Produce     json
// @Security    BearerAuth
// @Param       id        path  string true  "Category ID"
// @Param       subtree   query bool   false "Include descendant categories"
// @Param       page      query int    false "Page number (default 1)"
// @Param       page_size query int    false "Items per page (default 20, max 100)"
// @Success     200 {object} pagination.PageResponse[models.Item] "Paginated items"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Category not found"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /categories/{id}/items [get]
func (h *CategoryHandler) ListCategoryItems(c *gin.Context) {
	id, err := parsePathID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}

	var page pagination.PageRequest
	if err := c.ShouldBindQuery(&page); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	if _, err := h.categoryService.GetCategoryByID(id); err != nil {
		respondWithError(c, err)
		return
	}

	ids := []string{id}
	switch c.Query("subtree") {
	case "", "false":
	case "true":
		descendants, err := h.categoryService.GetDescendants(id)
		if err != nil {
			respondWithError(c, err)
			return
		}
		ids = append(ids, descendants...)
	default:
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, "subtree must be 'true' or 'false'"))
		return
	}

	result, err := h.itemService.ListItemsByCategories(ids, page)
	if err != nil {
		respondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// CheckIntegrity reports invariant violations in the stored tree.
// @Summary     Tree integrity report
// @Description Cycles, dangling parents, depth overflow, level drift, fallback category presence and dangling items
// @Tags        categories
// @Produce     json
// @Security    BearerAuth
// @Success     200 {object} services.IntegrityReport "Integrity report"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /categories/integrity [get]
func (h *CategoryHandler) CheckIntegrity(c *gin.Context) {
	report, err := h.integrityService.Check()
	if err != nil {
		respondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"healthy": report.Healthy(), "report": report})
}
