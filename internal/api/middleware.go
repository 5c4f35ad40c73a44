package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/ulule/limiter/v3"
	mgin "github.com/ulule/limiter/v3/drivers/middleware/gin"
	"github.com/ulule/limiter/v3/drivers/store/memory"

	"sos-service/internal/auth"
	"sos-service/internal/logging"
)

// RequestLoggingMiddleware records one line per request, tagged with the route
// template and the signed-in user. Server errors log at error level and client
// errors at warn, so refused SOS submissions stand out.
func RequestLoggingMiddleware(logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		fields := logrus.Fields{
			"method":  c.Request.Method,
			"route":   route,
			"status":  c.Writer.Status(),
			"latency": time.Since(start),
		}
		if user, ok := auth.User(c); ok {
			fields["user"] = user.ID
		}
		entry := logger.WithFields(fields)
		switch status := c.Writer.Status(); {
		case status >= http.StatusInternalServerError:
			entry.Error("Request failed")
		case status >= http.StatusBadRequest:
			entry.Warn("Request refused")
		default:
			entry.Info("Request served")
		}
	}
}

// RequireAdmin lets through only users whose session carries the admin role.
func (h *Handler) RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := auth.User(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Sign in to continue"})
			return
		}
		sc, err := h.currentSession(c.Request.Context(), user)
		if err != nil {
			h.logger.Errorf("Session for %s unavailable: %v", user.ID, err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to load session"})
			return
		}
		if !sc.IsAdmin() {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Admin access required"})
			return
		}
		c.Next()
	}
}

// SubmitRateLimit caps submissions per user (per client IP when anonymous).
// formatted uses the limiter notation, e.g. "5-M".
func SubmitRateLimit(formatted string, logger *logging.Logger) (gin.HandlerFunc, error) {
	rate, err := limiter.NewRateFromFormatted(formatted)
	if err != nil {
		return nil, err
	}
	lim := limiter.New(memory.NewStore(), rate)
	return mgin.NewMiddleware(lim,
		mgin.WithKeyGetter(func(c *gin.Context) string {
			if user, ok := auth.User(c); ok {
				return "user:" + user.ID
			}
			return "ip:" + c.ClientIP()
		}),
		mgin.WithLimitReachedHandler(func(c *gin.Context) {
			logger.Warnf("Submission rate limit reached for %s", c.ClientIP())
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "Too many alerts submitted. Please wait before trying again."})
		}),
	), nil
}
