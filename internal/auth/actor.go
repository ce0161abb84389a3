// Package auth resolves who is calling from the authenticated session.
// Services read the actor from the request context; nothing in a request
// body can set it.
package auth

import (
	"context"

	apperrors "vanta-access/pkg/app_errors"
)

type Role string

const (
	RoleAdmin    Role = "admin"
	RolePromoter Role = "promoter"
	RoleDoor     Role = "door"
	RoleGuest    Role = "guest"
	RoleSystem   Role = "system"
)

type Actor struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Role  Role   `json:"role"`
}

// Identity is what gets written to audit records.
func (a Actor) Identity() string {
	if a.Email != "" {
		return a.Email
	}
	return a.ID
}

func (a Actor) HasRole(roles ...Role) bool {
	for _, r := range roles {
		if a.Role == r {
			return true
		}
	}
	return false
}

type actorKey struct{}

func WithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// WithSystemActor tags background work (sweeps, reconciliation).
func WithSystemActor(ctx context.Context, name string) context.Context {
	return WithActor(ctx, Actor{ID: "system:" + name, Role: RoleSystem})
}

func ActorFromContext(ctx context.Context) (Actor, bool) {
	actor, ok := ctx.Value(actorKey{}).(Actor)
	if !ok || actor.ID == "" {
		return Actor{}, false
	}
	return actor, true
}

func RequireActor(ctx context.Context) (Actor, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return Actor{}, apperrors.ErrUnauthenticated
	}
	return actor, nil
}

// ActorResolver is the port the audit recorder depends on.
type ActorResolver interface {
	Resolve(ctx context.Context) (Actor, error)
}

type ContextResolver struct{}

func (ContextResolver) Resolve(ctx context.Context) (Actor, error) {
	return RequireActor(ctx)
}
