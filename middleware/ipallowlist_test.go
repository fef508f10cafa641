package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func newAllowlistRouter(ips []string) *gin.Engine {
	r := gin.New()
	r.Use(IPAllowlist(ips))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })
	return r
}

func allowlistGet(r *gin.Engine, ip string) int {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Real-IP", ip)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w.Code
}

func TestIPAllowlist_EmptyAllowsAll(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := newAllowlistRouter(nil)
	assert.Equal(t, http.StatusOK, allowlistGet(r, "203.0.113.9"))
}

func TestIPAllowlist_AllowsListed(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := newAllowlistRouter([]string{"10.0.0.5", "10.0.0.6"})
	assert.Equal(t, http.StatusOK, allowlistGet(r, "10.0.0.5"))
	assert.Equal(t, http.StatusOK, allowlistGet(r, "10.0.0.6"))
}

func TestIPAllowlist_RejectsUnlisted(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := newAllowlistRouter([]string{"10.0.0.5"})
	assert.Equal(t, http.StatusForbidden, allowlistGet(r, "10.0.0.7"))
}
