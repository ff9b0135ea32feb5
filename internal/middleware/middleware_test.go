package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func newRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestLogger(), Identity())
	r.GET("/whoami", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"email": UserEmail(c), "request_id": c.GetString(RequestIDKey)})
	})
	r.GET("/private", RequireIdentity(), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	return r
}

func TestIdentityFromQuery(t *testing.T) {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/whoami?userEmail=%20Bob@X.com%20", nil)
	newRouter().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"email":"bob@x.com"`)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestIdentityFromHeader(t *testing.T) {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("X-User-Email", "alice@x.com")
	req.Header.Set("X-Request-ID", "req-42")
	newRouter().ServeHTTP(w, req)

	assert.Contains(t, w.Body.String(), `"email":"alice@x.com"`)
	assert.Equal(t, "req-42", w.Header().Get("X-Request-ID"))
}

func TestRequireIdentity(t *testing.T) {
	w := httptest.NewRecorder()
	newRouter().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/private", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = httptest.NewRecorder()
	newRouter().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/private?userEmail=a@x.com", nil))
	assert.Equal(t, http.StatusNoContent, w.Code)
}
