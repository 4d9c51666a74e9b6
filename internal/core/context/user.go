// Package context provides request-scoped values extraction.
package context

import (
	"context"
	"slices"
)

// RoleFieldAdmin is the role allowed to edit field settings.
const RoleFieldAdmin = "admin"

// UserContext contains authenticated user information.
type UserContext struct {
	UserID      string
	InstituteID string
	Email       string
	Roles       []string
	IsAdmin     bool
}

type userContextKey struct{}

type instituteKey struct{}

// WithUser adds UserContext to context.
func WithUser(ctx context.Context, user *UserContext) context.Context {
	return context.WithValue(ctx, userContextKey{}, user)
}

// GetUser returns UserContext from context.
func GetUser(ctx context.Context) *UserContext {
	if v, ok := ctx.Value(userContextKey{}).(*UserContext); ok {
		return v
	}
	return nil
}

// GetUserID returns user ID from context or empty string.
func GetUserID(ctx context.Context) string {
	if u := GetUser(ctx); u != nil {
		return u.UserID
	}
	return ""
}

// WithInstitute stores the institute resolved for the request.
func WithInstitute(ctx context.Context, instituteID string) context.Context {
	return context.WithValue(ctx, instituteKey{}, instituteID)
}

// GetInstituteID returns the resolved institute, falling back to the one in the token.
func GetInstituteID(ctx context.Context) string {
	if v, ok := ctx.Value(instituteKey{}).(string); ok && v != "" {
		return v
	}
	if u := GetUser(ctx); u != nil {
		return u.InstituteID
	}
	return ""
}

// HasRole checks if user has specific role.
func HasRole(ctx context.Context, role string) bool {
	u := GetUser(ctx)
	if u == nil {
		return false
	}
	return slices.Contains(u.Roles, role)
}

// CanManageFields reports whether the user may change field settings.
func CanManageFields(ctx context.Context) bool {
	u := GetUser(ctx)
	if u == nil {
		return false
	}
	return u.IsAdmin || slices.Contains(u.Roles, RoleFieldAdmin)
}
