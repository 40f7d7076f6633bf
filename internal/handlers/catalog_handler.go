package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"stockroom/internal/services"
)

// CatalogHandler serves the lookups the item catalog makes against the
// category tree. Routes sit behind the catalog API key, not operator auth.
type CatalogHandler struct {
	categoryService services.CategoryServicer
}

// NewCatalogHandler creates a new CatalogHandler.
func NewCatalogHandler(categoryService services.CategoryServicer) *CatalogHandler {
	return &CatalogHandler{categoryService: categoryService}
}

// CategoryExists reports whether a live category with the given id exists.
// Malformed ids simply do not exist.
// @Summary     Category existence check
// @Tags        catalog
// @Produce     json
// @Param       X-API-Key header   string true "Catalog API key"
// @Param       id        path     string true "Category ID"
// @Success     200       {object} map[string]bool "Existence flag"
// @Failure     401       {object} ErrorResponse   "Invalid API key"
// @Failure     503       {object} ErrorResponse   "Catalog API not configured"
// @Router      /catalog/categories/{id}/exists [get]
func (h *CatalogHandler) CategoryExists(c *gin.Context) {
	id, err := parsePathID(c, "id")
	if err != nil {
		c.JSON(http.StatusOK, gin.H{"id": c.Param("id"), "exists": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id, "exists": h.categoryService.CategoryExists(id)})
}
