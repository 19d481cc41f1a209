package models

import (
	"context"

	"github.com/nxtbus/nxtbus-fleet-management-sub000/internal/domain/types"
	"github.com/nxtbus/nxtbus-fleet-management-sub000/pkg/uuid"
)

// User is the authenticated identity behind a connection or request.
// OwnerID is set for OWNER and VEHICLE roles and selects the fleet room.
type User struct {
	ID      uuid.UUID      `json:"id"`
	Role    types.UserRole `json:"role"`
	OwnerID uuid.UUID      `json:"owner_id,omitzero"`
}

func AnonymousUser() *User {
	return &User{}
}

func (u *User) IsAnonymous() bool {
	return u == nil || (u.ID == uuid.UUID{} && u.Role == "")
}

// Context key for the authenticated user (unexported to avoid collisions)
type userCtxKey struct{}

var userKey = userCtxKey{}

func WithUser(ctx context.Context, user *User) context.Context {
	return context.WithValue(ctx, userKey, user)
}

func UserFromContext(ctx context.Context) *User {
	if u, ok := ctx.Value(userKey).(*User); ok {
		return u
	}
	return nil
}
