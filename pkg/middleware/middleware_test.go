package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func serve(router *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func authRouter(am *AuthMiddleware) *gin.Engine {
	router := gin.New()
	router.GET("/ops", am.Authenticate(), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"subject": c.GetString("subject"), "role": c.GetString("role")})
	})
	return router
}

func TestAuthenticate_ValidToken(t *testing.T) {
	am := NewAuthMiddleware("secret")
	token, err := am.GenerateToken("alice", "admin", time.Hour)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/ops", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := serve(authRouter(am), req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"subject":"alice","role":"admin"}`, w.Body.String())
}

func TestAuthenticate_Rejections(t *testing.T) {
	am := NewAuthMiddleware("secret")
	expired, err := am.GenerateToken("alice", "admin", -time.Minute)
	require.NoError(t, err)
	foreign, err := NewAuthMiddleware("other").GenerateToken("mallory", "admin", time.Hour)
	require.NoError(t, err)
	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"sub": "x"}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	cases := map[string]string{
		"missing header": "",
		"wrong scheme":   "Basic abc",
		"expired":        "Bearer " + expired,
		"wrong secret":   "Bearer " + foreign,
		"unsigned":       "Bearer " + none,
		"garbage":        "Bearer not.a.jwt",
	}

	for name, header := range cases {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/ops", nil)
			if header != "" {
				req.Header.Set("Authorization", header)
			}
			assert.Equal(t, http.StatusUnauthorized, serve(authRouter(am), req).Code)
		})
	}
}

func TestAuthenticate_DisabledWithoutSecret(t *testing.T) {
	am := NewAuthMiddleware("")
	assert.False(t, am.Enabled())

	w := serve(authRouter(am), httptest.NewRequest(http.MethodGet, "/ops", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	var nilAuth *AuthMiddleware
	assert.False(t, nilAuth.Enabled())
}

func corsRouter(cfg CORSConfig) *gin.Engine {
	router := gin.New()
	router.Use(CORS(cfg))
	router.GET("/stats", func(c *gin.Context) { c.Status(http.StatusOK) })
	return router
}

func TestCORS_Wildcard(t *testing.T) {
	router := corsRouter(DefaultCORSConfig())

	req := httptest.NewRequest(http.MethodGet, "/stats", nil)
	req.Header.Set("Origin", "https://dash.example.com")
	w := serve(router, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Credentials"))
}

func TestCORS_ExactAndPrefixOrigins(t *testing.T) {
	router := corsRouter(DefaultCORSConfig("https://ops.example.com", "http://localhost:*"))

	for _, origin := range []string{"https://ops.example.com", "http://localhost:3000"} {
		req := httptest.NewRequest(http.MethodGet, "/stats", nil)
		req.Header.Set("Origin", origin)
		w := serve(router, req)

		assert.Equal(t, origin, w.Header().Get("Access-Control-Allow-Origin"))
		assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))
		assert.Equal(t, "Origin", w.Header().Get("Vary"))
	}

	req := httptest.NewRequest(http.MethodGet, "/stats", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	w := serve(router, req)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORS_Preflight(t *testing.T) {
	router := corsRouter(DefaultCORSConfig())

	req := httptest.NewRequest(http.MethodOptions, "/stats", nil)
	req.Header.Set("Origin", "https://dash.example.com")
	w := serve(router, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Methods"), http.MethodPut)
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Headers"), "Authorization")
	assert.Equal(t, "600", w.Header().Get("Access-Control-Max-Age"))
}

func TestMatchOrigin(t *testing.T) {
	assert.Equal(t, originNone, matchOrigin("", []string{"*"}))
	assert.Equal(t, originWildcard, matchOrigin("https://a.com", []string{"*"}))
	assert.Equal(t, originExact, matchOrigin("https://a.com", []string{"*", "https://a.com"}))
	assert.Equal(t, originNone, matchOrigin("https://b.com", []string{"https://a.com"}))
}

func TestRateLimiter_Allow(t *testing.T) {
	rl := NewRateLimiter(2, time.Minute)
	defer rl.Stop()

	now := time.Now()
	assert.True(t, rl.allow("ip:1", now))
	assert.True(t, rl.allow("ip:1", now))
	assert.False(t, rl.allow("ip:1", now))
	assert.True(t, rl.allow("ip:2", now), "keys are independent")

	assert.True(t, rl.allow("ip:1", now.Add(2*time.Minute)), "a new window resets the budget")
}

func TestRateLimiter_ZeroRateDeniesAll(t *testing.T) {
	rl := NewRateLimiter(0, time.Minute)
	defer rl.Stop()

	assert.False(t, rl.allow("ip:1", time.Now()))
}

func TestRateLimiter_Middleware(t *testing.T) {
	rl := NewRateLimiter(1, time.Minute)
	defer rl.Stop()
	defer rl.Stop()

	router := gin.New()
	router.Use(rl.Middleware())
	router.GET("/stats", func(c *gin.Context) { c.Status(http.StatusOK) })

	assert.Equal(t, http.StatusOK, serve(router, httptest.NewRequest(http.MethodGet, "/stats", nil)).Code)
	w := serve(router, httptest.NewRequest(http.MethodGet, "/stats", nil))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Contains(t, w.Body.String(), "retry_after")
}
