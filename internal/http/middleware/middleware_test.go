package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenRoundTrip(t *testing.T) {
	token, exp, err := GenerateJWT("operator", "s3cret", time.Hour)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), exp, 5*time.Second)

	sub, err := parseToken(token, "s3cret")
	require.NoError(t, err)
	assert.Equal(t, "operator", sub)

	_, err = parseToken(token, "other")
	assert.Error(t, err)
}

func TestExpiredAndForeignTokensRejected(t *testing.T) {
	expired := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "operator",
		"exp": time.Now().Add(-time.Minute).Unix(),
	})
	s, err := expired.SignedString([]byte("s3cret"))
	require.NoError(t, err)
	_, err = parseToken(s, "s3cret")
	assert.Error(t, err)

	numeric := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": 42,
		"exp": time.Now().Add(time.Minute).Unix(),
	})
	s, err = numeric.SignedString([]byte("s3cret"))
	require.NoError(t, err)
	_, err = parseToken(s, "s3cret")
	assert.Error(t, err)
}

func TestJWTMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(JWTMiddleware("s3cret"))
	r.GET("/me", func(c *gin.Context) {
		op, ok := GetOperator(c)
		require.True(t, ok)
		c.String(http.StatusOK, op)
	})

	token, _, err := GenerateJWT("panel", "s3cret", 0)
	require.NoError(t, err)

	for header, code := range map[string]int{
		"":                http.StatusUnauthorized,
		"Token " + token:  http.StatusUnauthorized,
		"Bearer nonsense": http.StatusUnauthorized,
		"Bearer " + token: http.StatusOK,
	} {
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		assert.Equal(t, code, w.Code, header)
		if code == http.StatusOK {
			assert.Equal(t, "panel", w.Body.String())
		}
	}
}

func TestPINHash(t *testing.T) {
	hash, err := HashPIN("1234")
	require.NoError(t, err)
	assert.NotEqual(t, "1234", hash)
	assert.True(t, CheckPIN(hash, "1234"))
	assert.False(t, CheckPIN(hash, "4321"))
}

func TestRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestID())
	r.GET("/ping", func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString("request_id"))
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	generated := w.Header().Get(RequestIDHeader)
	assert.Len(t, generated, 36)
	assert.Equal(t, generated, w.Body.String())

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, "abc-123", w.Header().Get(RequestIDHeader))
}
