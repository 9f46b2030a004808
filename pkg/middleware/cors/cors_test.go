package cors

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func newRouter(origins []string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(New(origins))
	router.GET("/attendance/today", func(c *gin.Context) { c.Status(http.StatusOK) })
	return router
}

func TestAllowedOrigin(t *testing.T) {
	router := newRouter([]string{"https://dashboard.school.test/"})

	req := httptest.NewRequest(http.MethodGet, "/attendance/today", nil)
	req.Header.Set("Origin", "https://dashboard.school.test")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, "https://dashboard.school.test", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Headers"), "X-Device-Key")

	req = httptest.NewRequest(http.MethodGet, "/attendance/today", nil)
	req.Header.Set("Origin", "https://evil.test")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestPreflightShortCircuits(t *testing.T) {
	router := newRouter(nil)
	req := httptest.NewRequest(http.MethodOptions, "/attendance/today", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}
