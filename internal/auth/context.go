package auth

import "context"

type contextKey struct{}

// Authentication methods recorded on AuthContext.
const (
	MethodJWT    = "jwt"
	MethodAPIKey = "apikey"
)

type AuthContext struct {
	Subject  string
	Role     string
	Method   string
	APIKeyID int64
}

func WithAuth(ctx context.Context, ac AuthContext) context.Context {
	return context.WithValue(ctx, contextKey{}, ac)
}

func FromContext(ctx context.Context) (AuthContext, bool) {
	ac, ok := ctx.Value(contextKey{}).(AuthContext)
	return ac, ok
}

// Subject returns the authenticated principal, or "" when unauthenticated.
func Subject(ctx context.Context) string {
	ac, ok := FromContext(ctx)
	if !ok {
		return ""
	}
	return ac.Subject
}

func IsAdmin(ctx context.Context) bool {
	ac, ok := FromContext(ctx)
	if !ok {
		return false
	}
	return ac.Role == RoleAdmin
}
