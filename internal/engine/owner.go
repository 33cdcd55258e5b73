package engine

import (
	"context"

	"github.com/roach88/elementstore/internal/ir"
)

// OwnerResolver is the external identity provider. The engine uses it only
// to fill the owner display name and group of saved elements; it never
// makes authorization decisions.
type OwnerResolver interface {
	ResolveOwner(ctx context.Context, username string) (ir.Owner, error)
}

// StaticOwners resolves owners from a fixed table. Unknown usernames
// resolve to themselves with no groups.
type StaticOwners map[string]ir.Owner

// ResolveOwner implements OwnerResolver.
func (s StaticOwners) ResolveOwner(_ context.Context, username string) (ir.Owner, error) {
	if o, ok := s[username]; ok {
		if o.Username == "" {
			o.Username = username
		}
		return o, nil
	}
	return ir.Owner{Username: username, DisplayName: username}, nil
}
