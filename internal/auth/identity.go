package auth

import "context"

// Roles.
const (
	RoleUser    = "user"
	RoleManager = "manager"
)

// Identity is the authenticated caller of a request.
type Identity struct {
	UserID   int64
	Username string
	Role     string
}

// IsManager reports whether the caller may manage other users' time and the catalog schema.
func (i Identity) IsManager() bool { return i.Role == RoleManager }

type contextKey string

const ctxIdentity contextKey = "identity"

// WithIdentity returns a copy of ctx carrying id.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, ctxIdentity, id)
}

// FromContext returns the caller identity, if any.
func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(ctxIdentity).(Identity)
	return id, ok
}

// Username returns the caller's username or "system" when unauthenticated.
func Username(ctx context.Context) string {
	if id, ok := FromContext(ctx); ok && id.Username != "" {
		return id.Username
	}
	return "system"
}
