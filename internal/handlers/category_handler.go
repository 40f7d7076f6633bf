package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "stockroom/internal/errors"
	"stockroom/internal/pagination"
	"stockroom/internal/services"
)

// CategoryHandler handles category tree requests.
type CategoryHandler struct {
	categoryService  services.CategoryServicer
	itemService      services.ItemServicer
	integrityService services.IntegrityServicer
	auditService     services.AuditServicer
}

// NewCategoryHandler creates a new CategoryHandler.
func NewCategoryHandler(
	categoryService services.CategoryServicer,
	itemService services.ItemServicer,
	integrityService services.IntegrityServicer,
	auditService services.AuditServicer,
) *CategoryHandler {
	return &CategoryHandler{
		categoryService:  categoryService,
		itemService:      itemService,
		integrityService: integrityService,
		auditService:     auditService,
	}
}

// CreateCategoryRequest represents the request payload for creating a category.
type CreateCategoryRequest struct {
	Name        string  `json:"name" binding:"required,category_name"`
	Description string  `json:"description" binding:"max=200"`
	ParentID    *string `json:"parent_id" binding:"omitempty,uuid"`
	Order       int     `json:"order" binding:"sort_order"`
	Active      *bool   `json:"active"`
}

// UpdateCategoryRequest represents the request payload for updating a category.
// parent_id reparents the category; to_root detaches it to the top level.
type UpdateCategoryRequest struct {
	Name        *string `json:"name" binding:"omitempty,category_name"`
	Description *string `json:"description" binding:"omitempty,max=200"`
	Order       *int    `json:"order" binding:"omitempty,sort_order"`
	Active      *bool   `json:"active"`
	ParentID    *string `json:"parent_id" binding:"omitempty,uuid"`
	ToRoot      bool    `json:"to_root"`
}

// CreateCategory handles the creation of a new category.
// @Summary     Create a category
// @Description Create a category under an optional parent (at most 3 levels)
// @Tags        categories
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       request body CreateCategoryRequest true "Category details"
// @Success     201 {object} models.Category "Category created"
// @Failure     400 {object} ErrorResponse "Invalid input or depth exceeded"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Parent not found"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /categories [post]
func (h *CategoryHandler) CreateCategory(c *gin.Context) {
	actorID, err := getActorID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	var req CreateCategoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	category, err := h.categoryService.CreateCategory(services.CategoryInput{
		Name:        req.Name,
		Description: req.Description,
		ParentID:    req.ParentID,
		Order:       req.Order,
		Active:      req.Active,
	})
	if err != nil {
		respondWithError(c, err)
		return
	}

	h.auditService.Record(services.AuditEvent{
		ActorID:    actorID,
		Action:     services.ActionCreateCategory,
		ResourceID: category.ID,
		IPAddress:  c.ClientIP(),
		State:      category,
	})

	c.JSON(http.StatusCreated, gin.H{"category": category})
}

// ListCategories handles the flat, filterable category listing.
// @Summary     List categories
// @Description List categories ordered by level, order and name
// @Tags        categories
// @Produce     json
// @Security    BearerAuth
// @Param       search    query string false "Case-insensitive name filter"
// @Param       active    query bool   false "Filter by active status"
// @Param       page      query int    false "Page number (default 1)"
// @Param       page_size query int    false "Items per page (default 20, max 100)"
// @Success     200 {object} pagination.PageResponse[models.Category] "Paginated categories"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /categories [get]
func (h *CategoryHandler) ListCategories(c *gin.Context) {
	var page pagination.PageRequest
	if err := c.ShouldBindQuery(&page); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	filter := services.CategoryFilter{Search: c.Query("search")}
	if v := c.Query("active"); v != "" {
		switch v {
		case "true":
			b := true
			filter.Active = &b
		case "false":
			b := false
			filter.Active = &b
		default:
			respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, "active must be 'true' or 'false'"))
			return
		}
	}

	result, err := h.categoryService.ListCategories(filter, page)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// GetTree handles the nested tree view.
// @Summary     Category tree
// @Description Roots with their nested children, ordered by order and name
// @Tags        categories
// @Produce     json
// @Security    BearerAuth
// @Success     200 {array}  services.TreeNode "Category tree"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /categories/tree [get]
func (h *CategoryHandler) GetTree(c *gin.Context) {
	tree, err := h.categoryService.GetTree()
	if err != nil {
		respondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tree": tree})
}

// ListChildren serves cascading selects.
// @Summary     Category children
// @Description Active children of a category as id and name pairs; no parent_id lists roots
// @Tags        categories
// @Produce     json
// @Security    BearerAuth
// @Param       parent_id query string false "Parent category ID"
// @Success     200 {array}  services.ChildEntry "Children"
// @Failure     400 {object} ErrorResponse "Invalid parent ID"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /categories/children [get]
func (h *CategoryHandler) ListChildren(c *gin.Context) {
	parentID, err := parseOptionalID(c, "parent_id")
	if err != nil {
		respondWithError(c, err)
		return
	}

	children, err := h.categoryService.ListChildren(parentID)
	if err != nil {
		respondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, children)
}

// GetCategory handles fetching a single category.
// @Summary     Get category by ID
// @Tags        categories
// @Produce     json
// @Security    BearerAuth
// @Param       id path string true "Category ID"
// @Success     200 {object} models.Category "Category details"
// @Failure     400 {object} ErrorResponse "Invalid category ID"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Category not found"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /categories/{id} [get]
func (h *CategoryHandler) GetCategory(c *gin.Context) {
	id, err := parsePathID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}

	category, err := h.categoryService.GetCategoryByID(id)
	if err != nil {
		respondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"category": category})
}

// UpdateCategory handles updating an existing category.
// @Summary     Update category
// @Description Change name, description, order or active flag; parent_id or to_root reparents through the cycle guard
// @Tags        categories
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id      path string                true "Category ID"
// @Param       request body UpdateCategoryRequest true "Fields to change"
// @Success     200 {object} models.Category "Updated category"
// @Failure     400 {object} ErrorResponse "Invalid input or rejected reparent"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Category not found"
// @Failure     409 {object} ErrorResponse "Fallback category protected"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /categories/{id} [put]
func (h *CategoryHandler) UpdateCategory(c *gin.Context) {
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

	var req UpdateCategoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	category, err := h.categoryService.UpdateCategory(id, services.CategoryUpdate{
		Name:        req.Name,
		Description: req.Description,
		Order:       req.Order,
		Active:      req.Active,
		ParentID:    req.ParentID,
		ToRoot:      req.ToRoot,
	})
	if err != nil {
		respondWithError(c, err)
		return
	}

	h.auditService.Record(services.AuditEvent{
		ActorID:    actorID,
		Action:     services.ActionUpdateCategory,
		ResourceID: id,
		IPAddress:  c.ClientIP(),
		State:      category,
	})

	c.JSON(http.StatusOK, gin.H{"category": category})
}

// DeleteCategory handles deleting a leaf category.
// @Summary     Delete category
// @Description Soft-delete a category without children; its items move to the fallback category
// @Tags        categories
// @Produce     json
// @Security    BearerAuth
// @Param       id path string true "Category ID"
// @Success     200 {object} services.DeleteResult "Deletion result"
// @Failure     400 {object} ErrorResponse "Invalid category ID"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Category not found"
// @Failure     409 {object} ErrorResponse "Category has children or is the fallback category"
// @Failure     500 {object} ErrorResponse "Server error or fallback category missing"
// @Router      /categories/{id} [delete]
func (h *CategoryHandler) DeleteCategory(c *gin.Context) {
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

	result, err := h.categoryService.DeleteCategory(id)
	if err != nil {
		respondWithError(c, err)
		return
	}

	h.auditService.Record(services.AuditEvent{
		ActorID:    actorID,
		Action:     services.ActionDeleteCategory,
		ResourceID: id,
		IPAddress:  c.ClientIP(),
		State:      result,
	})

	c.JSON(http.StatusOK, gin.H{"delete": result})
}
