package middleware

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
)

type CORSConfig struct {
	AllowOrigins []string
	AllowMethods []string
	AllowHeaders []string
	MaxAge       int
}

// DefaultCORSConfig opens the read-only dashboard routes to any origin.
func DefaultCORSConfig(origins ...string) CORSConfig {
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return CORSConfig{
		AllowOrigins: origins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept", "Authorization"},
		MaxAge:       600,
	}
}

// CORS reflects an explicitly listed origin with credentials allowed; a wildcard match
// gets "*" and no credentials.
func CORS(config CORSConfig) gin.HandlerFunc {
	methods := strings.Join(config.AllowMethods, ", ")
	headers := strings.Join(config.AllowHeaders, ", ")
	maxAge := strconv.Itoa(config.MaxAge)

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")

		switch matchOrigin(origin, config.AllowOrigins) {
		case originExact:
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Access-Control-Allow-Credentials", "true")
			c.Header("Vary", "Origin")
		case originWildcard:
			c.Header("Access-Control-Allow-Origin", "*")
		}

		if c.Request.Method == http.MethodOptions {
			c.Header("Access-Control-Allow-Methods", methods)
			c.Header("Access-Control-Allow-Headers", headers)
			c.Header("Access-Control-Max-Age", maxAge)
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

type originMatch int

const (
	originNone originMatch = iota
	originWildcard
	originExact
)

func matchOrigin(origin string, allowed []string) originMatch {
	if origin == "" {
		return originNone
	}

	result := originNone
	for _, a := range allowed {
		switch {
		case a == origin:
			return originExact
		case strings.HasSuffix(a, "*") && a != "*" && strings.HasPrefix(origin, strings.TrimSuffix(a, "*")):
			return originExact
		case a == "*":
			result = originWildcard
		}
	}
	return result
}
