package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/ucsd-tools/webreg-scraper/internal/authstore"
)

// Context keys set by the middleware for downstream handlers.
const (
	ctxTermKey      = "term"
	ctxCookieKey    = "cookie"
	ctxKeyPrefixKey = "keyPrefix"
)

// trackerReady rejects requests while the tracker is not actively polling,
// since the shared session is unusable during recovery.
func (s *Server) trackerReady() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.state.IsRunning() {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"error": "Tracker is not running.",
			})
			return
		}
		c.Next()
	}
}

// validTerm checks the term path parameter against the tracked terms.
// Matching is case-insensitive; the uppercase form is stored for handlers.
func (s *Server) validTerm() gin.HandlerFunc {
	return func(c *gin.Context) {
		term := strings.ToUpper(c.Param("term"))
		if _, ok := s.state.TermInfo(term); !ok {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{
				"error": "Term not found.",
			})
			return
		}
		c.Set(ctxTermKey, term)
		c.Next()
	}
}

// cookieRequired checks that the request carries a non-empty ASCII Cookie
// header and stores it for the forwarding handlers.
func (s *Server) cookieRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		cookie := c.GetHeader("Cookie")
		if cookie == "" {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"error": "Cookie header is missing.",
			})
			return
		}
		if !isASCII(cookie) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"error": "Cookie header contains non-ASCII characters.",
			})
			return
		}
		c.Set(ctxCookieKey, cookie)
		c.Next()
	}
}

// apiKeyAuth validates the "Bearer prefix#token" credential against the
// key store. Installed only when authentication is enabled.
func (s *Server) apiKeyAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Authorization header is missing.",
			})
			return
		}

		credential, ok := strings.CutPrefix(header, "Bearer ")
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Authorization header must use the Bearer scheme.",
			})
			return
		}

		prefix, token, ok := strings.Cut(credential, "#")
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Token is in invalid format (missing separator).",
			})
			return
		}

		switch s.state.Keys.Validate(prefix, token) {
		case authstore.Valid:
			c.Set(ctxKeyPrefixKey, prefix)
			c.Next()
		case authstore.Expired:
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Token is expired.",
			})
		default:
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Token not found.",
			})
		}
	}
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] > 127 {
			return false
		}
	}
	return true
}
