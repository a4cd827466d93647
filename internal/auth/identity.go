package auth

import (
	"context"

	"github.com/KevinKickass/OpenAssetCore/internal/asset"
	"github.com/google/uuid"
)

// Identity is the authenticated caller of an operation.
type Identity struct {
	UserID   uuid.UUID
	Username string
	Role     asset.Role
	Position string
}

func (i Identity) IsAdmin() bool      { return i.Role == asset.RoleAdmin }
func (i Identity) IsTechnician() bool { return i.Role == asset.RoleTechnician }

// HasRole reports whether the identity holds one of roles.
func (i Identity) HasRole(roles ...asset.Role) bool {
	for _, r := range roles {
		if i.Role == r {
			return true
		}
	}
	return false
}

type contextKey string

const identityKey contextKey = "identity"

func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// FromContext returns the identity stored by the auth middleware.
func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey).(Identity)
	return id, ok
}
