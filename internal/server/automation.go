package server

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// TriggerAutomationRun executes one automation pass synchronously and returns
// the per-step results. Step failures are reported in the body, not as a 500;
// the caller gets whatever the run managed to do.
func (s *Server) TriggerAutomationRun(c *gin.Context) {
	if !s.authorizeAutomation(c) {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	result, err := s.sched.RunOnce(c.Request.Context())
	if err != nil {
		s.log.Warn("automation run finished with errors",
			zap.Int("error_count", len(result.Errors)),
			zap.Error(err),
		)
	}

	c.JSON(http.StatusOK, gin.H{
		"success":   len(result.Errors) == 0,
		"results":   result,
		"timestamp": result.Timestamp,
	})
}

// authorizeAutomation checks the bearer token against CRON_SECRET. An unset
// secret leaves the endpoint open outside production only.
func (s *Server) authorizeAutomation(c *gin.Context) bool {
	secret := s.cfg.CronSecret
	if secret == "" {
		return !s.cfg.IsProduction()
	}

	header := strings.TrimSpace(c.GetHeader("Authorization"))
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return false
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, prefix))
	return subtle.ConstantTimeCompare([]byte(token), []byte(secret)) == 1
}
