// README: Handler request-validation tests; everything here fails before any
// service method is reached.
package handlers_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/eden-magar/towing-saas-sub002/internal/http/handlers"
	httpmiddleware "github.com/eden-magar/towing-saas-sub002/internal/http/middleware"
	"github.com/eden-magar/towing-saas-sub002/internal/modules/tow"
)

// buildTestRouter wires a minimal engine with the identity middleware and the
// handlers under test. Services are nil-backed; valid requests are not sent.
func buildTestRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(httpmiddleware.Identity())

	towHandler := handlers.NewTowHandler(nil)
	r.POST("/api/tows", towHandler.Create)
	r.POST("/api/tows/:id/assign", towHandler.Assign)

	driverHandler := handlers.NewDriverHandler(nil, nil, nil)
	r.POST("/api/tows/:id/points/:pointID/depart", driverHandler.Depart)
	r.POST("/api/tows/:id/points/:pointID/complete", driverHandler.Complete)
	r.POST("/api/tows/:id/points/:pointID/photos", driverHandler.UploadPhoto)
	return r
}

func doRequest(r *gin.Engine, method, path string, body any, company string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if company != "" {
		req.Header.Set("X-Company-ID", company)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestCreate_NoCompanyScope(t *testing.T) {
	r := buildTestRouter()
	w := doRequest(r, http.MethodPost, "/api/tows", map[string]any{}, "")
	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", w.Code)
	}
}

func TestCreate_InvalidJSON(t *testing.T) {
	r := buildTestRouter()
	req := httptest.NewRequest(http.MethodPost, "/api/tows", bytes.NewBufferString("{not json"))
	req.Header.Set("X-Company-ID", "c1")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestTransition_MissingExpectedStatus(t *testing.T) {
	r := buildTestRouter()
	w := doRequest(r, http.MethodPost, "/api/tows/t1/points/p1/depart", map[string]any{}, "c1")
	if w.Code != http.StatusBadRequest {
		t.Errorf("depart: expected 400, got %d", w.Code)
	}
	w = doRequest(r, http.MethodPost, "/api/tows/t1/points/p1/complete", map[string]any{
		"recipient_name": "Dana Levi",
	}, "c1")
	if w.Code != http.StatusBadRequest {
		t.Errorf("complete: expected 400, got %d", w.Code)
	}
}

func TestUploadPhoto_MissingParts(t *testing.T) {
	r := buildTestRouter()
	w := doRequest(r, http.MethodPost, "/api/tows/t1/points/p1/photos", nil, "c1")
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

// Keep the precondition contract visible at the transport level: the reason
// strings below are what driver clients branch on.
func TestPreconditionReasons(t *testing.T) {
	if tow.ReasonInsufficientPhotos != "insufficient_photos" {
		t.Errorf("photo reason = %q", tow.ReasonInsufficientPhotos)
	}
	if tow.ReasonMissingRecipient != "missing_recipient" {
		t.Errorf("recipient reason = %q", tow.ReasonMissingRecipient)
	}
}
