package merkle

import (
	"context"
	"fmt"

	corekaderrors "github.com/lumeranet/corekad/pkg/errors"
)

// Store is the content-addressed persistence collaborator (spec §6):
// a write-once, content-addressed blob store keyed by StoreKey.
// Writes are idempotent — freeze never issues a second Write for a key
// the store already holds, satisfying spec §8 property 4 without the
// Store implementation having to deduplicate itself.
type Store interface {
	Read(ctx context.Context, key StoreKey) ([]byte, error)
	Write(ctx context.Context, key StoreKey, value []byte) error
}

// ErrNotFound is returned by Store.Read for an absent key.
var ErrNotFound = corekaderrors.ErrNotFound

func errMalformed(format string, args ...any) error {
	return corekaderrors.Wrap(fmt.Errorf(format, args...), "merkle: malformed node encoding")
}
