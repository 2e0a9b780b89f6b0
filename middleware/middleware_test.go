package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"pianosale/api/logger"
	"pianosale/api/models"
	"pianosale/api/utils"
)

func newAuthRouter(secret []byte, apiKey string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(AuthRequired(secret, apiKey, logger.Nop()))
	r.GET("/stats", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"admin": c.GetString("admin_email")})
	})
	return r
}

func TestAuthRequiredRejectsMissingToken(t *testing.T) {
	r := newAuthRouter([]byte("s"), "")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/stats", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestAuthRequiredEmptyAPIKeyNeverMatches(t *testing.T) {
	r := newAuthRouter([]byte("s"), "")
	req := httptest.NewRequest(http.MethodGet, "/stats", nil)
	req.Header.Set("X-API-KEY", "")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 when no api key is configured, got %d", rec.Code)
	}
}

func TestAuthRequiredAcceptsAPIKey(t *testing.T) {
	r := newAuthRouter([]byte("s"), "automation-key")
	req := httptest.NewRequest(http.MethodGet, "/stats", nil)
	req.Header.Set("X-API-KEY", "automation-key")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestAuthRequiredAcceptsBearerAndCookie(t *testing.T) {
	secret := []byte("s")
	token, err := utils.GenerateJWT(&models.Admin{ID: 3, Email: "ops@pianosale.test"}, secret)
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	r := newAuthRouter(secret, "")

	req := httptest.NewRequest(http.MethodGet, "/stats", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("bearer: expected 200, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/stats", nil)
	req.AddCookie(&http.Cookie{Name: "jwt_token", Value: token})
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("cookie: expected 200, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/stats", nil)
	req.Header.Set("Authorization", "Bearer "+token+"x")
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("tampered: expected 401, got %d", rec.Code)
	}
}

func TestCORSAllowsConfiguredOrigin(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(CORSMiddleware([]string{"https://sale.example.com"}))
	r.POST("/api/sessions", func(c *gin.Context) { c.Status(http.StatusCreated) })

	req := httptest.NewRequest(http.MethodOptions, "/api/sessions", nil)
	req.Header.Set("Origin", "https://sale.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("unexpected status: got=%d want=%d", rec.Code, http.StatusNoContent)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://sale.example.com" {
		t.Fatalf("unexpected allow-origin header: %q", got)
	}
}
