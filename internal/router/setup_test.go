package router

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"stockroom/internal/cache"
	"stockroom/internal/logger"
	"stockroom/internal/middleware"
	"stockroom/internal/models"
	"stockroom/internal/services"
	"stockroom/internal/testutil"
	"stockroom/internal/validator"
)

const (
	testJWTSecret  = "router-test-secret"
	testCatalogKey = "catalog-test-key"
	testOperatorID = "0190a1b2-0000-7000-8000-00000000aaaa"
)

var (
	catalogKeyHash     string
	catalogKeyHashOnce sync.Once
)

func init() {
	gin.SetMode(gin.TestMode)
	logger.Init("test")
	validator.Register()
}

// testApp holds the full application stack for end-to-end tests.
type testApp struct {
	DB       *gorm.DB
	Router   *gin.Engine
	Sentinel *models.Category
	Token    string
}

// setupApp creates the full stack backed by an isolated in-memory SQLite
// database with the fallback category provisioned.
func setupApp(t *testing.T) *testApp {
	t.Helper()

	db := testutil.SetupTestDB(t)
	t.Cleanup(func() { testutil.TeardownTestDB(t, db) })
	sentinel := testutil.CreateTestSentinel(t, db)

	breadcrumbs := cache.NewMemory()
	itemService := services.NewItemService(db)
	svc := Services{
		Category:  services.NewCategoryService(db, itemService, breadcrumbs, sentinel.ID),
		Item:      itemService,
		Integrity: services.NewIntegrityService(db, breadcrumbs, sentinel.ID),
		Audit:     services.NewAuditService(db),
	}

	catalogKeyHashOnce.Do(func() {
		hash, err := middleware.HashAPIKey(testCatalogKey)
		if err != nil {
			panic(err)
		}
		catalogKeyHash = hash
	})

	token, err := middleware.GenerateOperatorToken(testJWTSecret, testOperatorID, "Test Operator", time.Hour)
	if err != nil {
		t.Fatalf("failed to issue operator token: %v", err)
	}

	r := New(svc, Options{JWTSecret: testJWTSecret, CatalogAPIKeyHash: catalogKeyHash})
	return &testApp{DB: db, Router: r, Sentinel: sentinel, Token: token}
}

// request makes an authenticated HTTP request to the test router.
func (app *testApp) request(method, path, body string) *httptest.ResponseRecorder {
	return app.requestWith(method, path, body, map[string]string{"Authorization": "Bearer " + app.Token})
}

func (app *testApp) requestWith(method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	app.Router.ServeHTTP(rec, req)
	return rec
}

// parseJSON parses the response body into a map.
func parseJSON(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var result map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to parse JSON: %v\nbody: %s", err, rec.Body.String())
	}
	return result
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	errObj, ok := parseJSON(t, rec)["error"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected error envelope, got %s", rec.Body.String())
	}
	code, _ := errObj["code"].(string)
	return code
}

// createCategory creates a category through the API and returns its JSON.
func (app *testApp) createCategory(t *testing.T, name, parentID string) map[string]interface{} {
	t.Helper()
	body := fmt.Sprintf(`{"name":%q}`, name)
	if parentID != "" {
		body = fmt.Sprintf(`{"name":%q,"parent_id":%q}`, name, parentID)
	}
	rec := app.request("POST", "/api/v1/categories", body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create %s failed: %d %s", name, rec.Code, rec.Body.String())
	}
	return parseJSON(t, rec)["category"].(map[string]interface{})
}
