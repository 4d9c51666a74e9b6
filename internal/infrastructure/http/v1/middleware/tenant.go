package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"fieldsettings/internal/core/apperror"
	appctx "fieldsettings/internal/core/context"
)

// InstituteHeader selects the institute whose settings a request addresses.
const InstituteHeader = "X-Institute-ID"

// Institute resolves the institute of the request. It must run after Auth.
// The header may be omitted when the token names an institute; when both
// are present they must agree unless the user is a platform admin.
func Institute() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		header := strings.TrimSpace(c.GetHeader(InstituteHeader))

		var tokenInstitute string
		isAdmin := false
		if user := appctx.GetUser(ctx); user != nil {
			tokenInstitute = user.InstituteID
			isAdmin = user.IsAdmin
		}

		instituteID := header
		switch {
		case header == "" && tokenInstitute == "":
			_ = c.Error(
				apperror.NewValidation("institute is required").
					WithDetail("header", InstituteHeader),
			)
			c.Abort()
			return
		case header == "":
			instituteID = tokenInstitute
		case tokenInstitute != "" && header != tokenInstitute && !isAdmin:
			_ = c.Error(
				apperror.NewForbidden("institute mismatch").
					WithDetail("header_institute_id", header).
					WithDetail("token_institute_id", tokenInstitute),
			)
			c.Abort()
			return
		}

		c.Request = c.Request.WithContext(appctx.WithInstitute(ctx, instituteID))
		c.Set("institute_id", instituteID)
		c.Next()
	}
}
