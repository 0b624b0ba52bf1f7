package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/iotguard/guardd/internal/models"
	"github.com/iotguard/guardd/internal/services"
)

func setupAuthRouter(t *testing.T) (*gin.Engine, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.User{}))

	auth := services.NewAuthService(db, "test-secret")
	_, err = auth.Register("ops@example.com", "password123")
	require.NoError(t, err)
	token, err := auth.Login("ops@example.com", "password123")
	require.NoError(t, err)

	r := gin.New()
	r.Use(AuthMiddleware(auth))
	r.GET("/test", func(c *gin.Context) {
		role, _ := c.Get("role")
		c.JSON(http.StatusOK, gin.H{"role": role})
	})
	return r, token
}

func TestAuthMiddleware_ValidToken(t *testing.T) {
	r, token := setupAuthRouter(t)

	req, _ := http.NewRequest("GET", "/test", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "admin")
}

func TestAuthMiddleware_BadToken(t *testing.T) {
	r, _ := setupAuthRouter(t)

	req, _ := http.NewRequest("GET", "/test", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthMiddleware_MalformedHeader(t *testing.T) {
	r, token := setupAuthRouter(t)

	req, _ := http.NewRequest("GET", "/test", nil)
	req.Header.Set("Authorization", token) // missing Bearer prefix
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
