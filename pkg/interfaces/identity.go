package interfaces

import (
	"context"

	"studysync/pkg/types"
)

// IdentityProvider resolves the calling user. The engine trusts the
// returned identity and performs no authentication of its own.
type IdentityProvider interface {
	// Current returns the resolved caller identity, or
	// types.ErrUnauthenticated when none is available.
	Current(ctx context.Context) (*types.Identity, error)
}
