package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/gatewise/vms-api/internal/models"
	appErrors "github.com/gatewise/vms-api/pkg/errors"
	"github.com/gatewise/vms-api/pkg/response"
)

// CurrentApprover returns the authenticated account stored by JWT.
func CurrentApprover(c *gin.Context) *models.Approver {
	value, exists := c.Get(ContextUserKey)
	if !exists {
		return nil
	}
	account, ok := value.(*models.Approver)
	if !ok {
		return nil
	}
	return account
}

// RequireSuperuser blocks accounts without the superuser flag.
func RequireSuperuser() gin.HandlerFunc {
	return func(c *gin.Context) {
		account := CurrentApprover(c)
		if account == nil {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}
		if !account.Superuser {
			response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "superuser access required"))
			c.Abort()
			return
		}
		c.Next()
	}
}
