// Package actor identifies the user performing a stock operation.
//
// The identity service is an external collaborator: the stock engine only
// receives an opaque numeric user id, either from a verified bearer token or
// from headers forwarded by the API gateway.
package actor

import (
	"context"
	"fmt"
)

// SystemID is used for operations started by the service itself, e.g. consumers.
const SystemID int64 = 0

// Actor represents the entity performing an action in the system.
type Actor struct {
	ID    int64  `json:"id"`
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`
}

// String returns a string representation of the actor for logging
func (a *Actor) String() string {
	if a.IsSystem() {
		return "system"
	}
	if a.Email != "" {
		return fmt.Sprintf("%d (%s)", a.ID, a.Email)
	}
	return fmt.Sprint(a.ID)
}

// IsSystem returns true if the actor represents the service itself.
func (a *Actor) IsSystem() bool {
	return a == nil || a.ID == SystemID
}

type contextKey string

const actorContextKey contextKey = "actor"

// FromContext retrieves the Actor from the context.
// Returns nil if no actor is present.
func FromContext(ctx context.Context) *Actor {
	if ctx == nil {
		return nil
	}
	a, _ := ctx.Value(actorContextKey).(*Actor)
	return a
}

// IDFromContext returns the acting user id, or SystemID when none is attached.
func IDFromContext(ctx context.Context) int64 {
	if a := FromContext(ctx); a != nil {
		return a.ID
	}
	return SystemID
}

// WithActor returns a new context with the Actor attached.
func WithActor(ctx context.Context, a *Actor) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, actorContextKey, a)
}

// System returns the Actor used for background work.
func System() *Actor {
	return &Actor{ID: SystemID, Name: "system"}
}
