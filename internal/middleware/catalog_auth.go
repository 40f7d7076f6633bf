package middleware

import (
	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"

	apperrors "stockroom/internal/errors"
)

// CatalogKeyMiddleware validates the X-API-Key header of the item catalog
// collaborator against the configured bcrypt hash.
func CatalogKeyMiddleware(keyHash string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if keyHash == "" {
			abortWithError(c, apperrors.ErrCatalogAPIOff)
			return
		}
		key := c.GetHeader("X-API-Key")
		if key == "" || bcrypt.CompareHashAndPassword([]byte(keyHash), []byte(key)) != nil {
			abortWithError(c, apperrors.ErrInvalidAPIKey)
			return
		}
		c.Next()
	}
}

// HashAPIKey returns the bcrypt hash to configure for a catalog API key.
func HashAPIKey(key string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
