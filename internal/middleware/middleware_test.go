package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"legalmind/internal/config"
	"legalmind/internal/logger"
)

func init() {
	gin.SetMode(gin.TestMode)
}

var testAuth = &config.AuthConfig{JWTSecret: "test-secret-key", TokenExpireHours: 24}

func TestGenerateToken(t *testing.T) {
	token, expiresAt, err := GenerateToken("user-1", "user@example.com", testAuth)
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.WithinDuration(t, time.Now().Add(24*time.Hour), expiresAt, time.Minute)

	_, _, err = GenerateToken("", "", testAuth)
	assert.Error(t, err)
}

func TestAuthMiddleware(t *testing.T) {
	valid, _, err := GenerateToken("user-1", "", testAuth)
	require.NoError(t, err)
	otherKey, _, err := GenerateToken("user-1", "", &config.AuthConfig{JWTSecret: "other", TokenExpireHours: 1})
	require.NoError(t, err)

	expired := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   "user-1",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
	}})
	expiredToken, err := expired.SignedString([]byte(testAuth.JWTSecret))
	require.NoError(t, err)

	noSubject := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{RegisteredClaims: jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}})
	noSubjectToken, err := noSubject.SignedString([]byte(testAuth.JWTSecret))
	require.NoError(t, err)

	tests := []struct {
		name       string
		authHeader string
		wantStatus int
	}{
		{name: "valid token", authHeader: "Bearer " + valid, wantStatus: http.StatusOK},
		{name: "lowercase scheme", authHeader: "bearer " + valid, wantStatus: http.StatusOK},
		{name: "missing header", wantStatus: http.StatusUnauthorized},
		{name: "missing scheme", authHeader: valid, wantStatus: http.StatusUnauthorized},
		{name: "garbage", authHeader: "Bearer invalid.token.here", wantStatus: http.StatusUnauthorized},
		{name: "wrong key", authHeader: "Bearer " + otherKey, wantStatus: http.StatusUnauthorized},
		{name: "expired", authHeader: "Bearer " + expiredToken, wantStatus: http.StatusUnauthorized},
		{name: "no subject", authHeader: "Bearer " + noSubjectToken, wantStatus: http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := gin.New()
			router.Use(AuthMiddleware(testAuth))
			router.GET("/me", func(c *gin.Context) {
				ctxUser, _ := c.Request.Context().Value(logger.UserIDKey).(string)
				c.JSON(http.StatusOK, gin.H{"user_id": GetUserID(c), "ctx_user": ctxUser})
			})

			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tt.authHeader != "" {
				req.Header.Set("Authorization", tt.authHeader)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			if tt.wantStatus == http.StatusOK {
				assert.JSONEq(t, `{"user_id":"user-1","ctx_user":"user-1"}`, w.Body.String())
			} else {
				assert.Contains(t, w.Body.String(), `"error"`)
			}
		})
	}
}

func TestRequestID(t *testing.T) {
	router := gin.New()
	router.Use(RequestID())
	router.GET("/test", func(c *gin.Context) {
		ctxID, _ := c.Request.Context().Value(logger.RequestIDKey).(string)
		c.JSON(http.StatusOK, gin.H{"request_id": GetRequestID(c), "ctx": ctxID})
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))
	generated := w.Header().Get(HeaderRequestID)
	assert.Len(t, generated, 36)
	assert.JSONEq(t, `{"request_id":"`+generated+`","ctx":"`+generated+`"}`, w.Body.String())

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set(HeaderRequestID, "existing-request-id-123")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, "existing-request-id-123", w.Header().Get(HeaderRequestID))
}

func TestRecovery(t *testing.T) {
	router := gin.New()
	router.Use(RequestID(), Recovery())
	router.GET("/panic", func(c *gin.Context) {
		panic("boom")
	})

	req := httptest.NewRequest(http.MethodGet, "/panic", nil).WithContext(context.Background())
	req.Header.Set(HeaderRequestID, "req-9")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"error":"Internal server error","request_id":"req-9"}`, w.Body.String())
	assert.NotContains(t, w.Body.String(), "boom")
}
