package middleware

import (
	"github.com/gin-gonic/gin"

	"fieldsettings/internal/core/apperror"
	appctx "fieldsettings/internal/core/context"
)

// RequireFieldAdmin lets through users allowed to change field settings.
func RequireFieldAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		if appctx.GetUser(ctx) == nil {
			_ = c.Error(apperror.NewUnauthorized("authentication required"))
			c.Abort()
			return
		}
		if !appctx.CanManageFields(ctx) {
			_ = c.Error(
				apperror.NewForbidden("insufficient permissions").
					WithDetail("required_role", appctx.RoleFieldAdmin),
			)
			c.Abort()
			return
		}
		c.Next()
	}
}
