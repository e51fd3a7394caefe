package api

import (
	"github.com/gin-gonic/gin"
)

// extractRequester identifies the caller from oauth2-proxy/kube-rbac-proxy
// forwarded headers, for structured logging and audit trails only — it is
// never stored on the ticket itself.
// Priority: X-Forwarded-User > X-Forwarded-Email > X-Remote-User > "api-client"
func extractRequester(c *gin.Context) string {
	if user := c.GetHeader("X-Forwarded-User"); user != "" {
		return user
	}
	if email := c.GetHeader("X-Forwarded-Email"); email != "" {
		return email
	}
	if remote := c.GetHeader("X-Remote-User"); remote != "" {
		return remote
	}
	return "api-client"
}
