package middleware

import (
	"errors"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"

	apperrors "stockroom/internal/errors"
)

func setupErrorRouter(err error) *gin.Engine {
	r := gin.New()
	r.Use(ErrorHandler())
	r.GET("/test", func(c *gin.Context) {
		_ = c.Error(err)
	})
	return r
}

func TestErrorHandler(t *testing.T) {
	t.Run("app_error_with_details", func(t *testing.T) {
		err := apperrors.WithDetails(apperrors.ErrCategoryHasChildren, "has children",
			map[string]interface{}{"children": []string{"b"}})
		rec := doRequest(setupErrorRouter(err), "", "")

		if rec.Code != http.StatusConflict {
			t.Fatalf("status = %d, want 409", rec.Code)
		}
		errObj := parseBody(t, rec)["error"].(map[string]interface{})
		if errObj["code"] != "CATEGORY_HAS_CHILDREN" || errObj["details"] == nil {
			t.Errorf("unexpected error body %v", errObj)
		}
	})

	t.Run("app_error_without_details", func(t *testing.T) {
		rec := doRequest(setupErrorRouter(apperrors.ErrCategoryNotFound), "", "")
		if rec.Code != http.StatusNotFound {
			t.Fatalf("status = %d, want 404", rec.Code)
		}
		errObj := parseBody(t, rec)["error"].(map[string]interface{})
		if _, ok := errObj["details"]; ok {
			t.Error("expected details to be omitted")
		}
	})

	t.Run("unexpected_error_is_hidden", func(t *testing.T) {
		rec := doRequest(setupErrorRouter(errors.New("pq: connection refused")), "", "")
		if rec.Code != http.StatusInternalServerError {
			t.Fatalf("status = %d, want 500", rec.Code)
		}
		errObj := parseBody(t, rec)["error"].(map[string]interface{})
		if errObj["message"] != apperrors.ErrInternalServer.Message {
			t.Errorf("expected generic message, got %v", errObj["message"])
		}
	})
}

func TestRequestLogging(t *testing.T) {
	r := gin.New()
	r.Use(RequestLogging())
	r.GET("/test", func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString(RequestIDKey))
	})

	rec := doRequest(r, "", "")
	generated := rec.Header().Get("X-Request-ID")
	if generated == "" || rec.Body.String() != generated {
		t.Errorf("expected generated request id echoed, got header %q body %q", generated, rec.Body.String())
	}

	inbound := "0192f7a0-0000-7000-8000-000000000001"
	rec = doRequest(r, "X-Request-ID", inbound)
	if got := rec.Header().Get("X-Request-ID"); got != inbound {
		t.Errorf("expected inbound request id kept, got %q", got)
	}

	rec = doRequest(r, "X-Request-ID", "not a uuid")
	if got := rec.Header().Get("X-Request-ID"); got == "not a uuid" {
		t.Error("expected malformed request id to be replaced")
	}
}
