package middleware

import "context"

type principalKey struct{}

type principal struct {
	userID string
	role   string
}

func withPrincipal(ctx context.Context, userID, role string) context.Context {
	return context.WithValue(ctx, principalKey{}, principal{userID: userID, role: role})
}

func principalFrom(ctx context.Context) principal {
	if ctx == nil {
		return principal{}
	}
	p, _ := ctx.Value(principalKey{}).(principal)
	return p
}

// UserIDFromContext returns the authenticated user id, or "" for guests.
func UserIDFromContext(ctx context.Context) string { return principalFrom(ctx).userID }

// RoleFromContext returns the authenticated role, or "" for guests.
func RoleFromContext(ctx context.Context) string { return principalFrom(ctx).role }
