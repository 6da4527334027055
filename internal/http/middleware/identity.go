// README: Caller identity middleware. Token verification happens at the API
// gateway in front of this service; by the time a request lands here the
// gateway has stamped the resolved identity onto trusted headers.
package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

const (
	headerCompanyID = "X-Company-ID"
	headerActorID   = "X-Actor-ID"
	headerActorRole = "X-Actor-Role"

	ctxCompanyID = "company_id"
	ctxActorID   = "actor_id"
	ctxActorRole = "actor_role"
)

// Identity requires a company scope on every request and exposes the caller
// through the context helpers below.
func Identity() gin.HandlerFunc {
	return func(c *gin.Context) {
		companyID := c.GetHeader(headerCompanyID)
		if companyID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing company scope"})
			return
		}
		c.Set(ctxCompanyID, companyID)
		c.Set(ctxActorID, c.GetHeader(headerActorID))
		c.Set(ctxActorRole, c.GetHeader(headerActorRole))
		c.Next()
	}
}

func CompanyID(c *gin.Context) string {
	return c.GetString(ctxCompanyID)
}

func ActorID(c *gin.Context) string {
	return c.GetString(ctxActorID)
}

func ActorRole(c *gin.Context) string {
	return c.GetString(ctxActorRole)
}
