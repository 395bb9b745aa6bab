package dedup

import (
	"context"
	"time"
)

// Store is the external key-value/SQL persistence the coordinator
// drives, parametrized over the Key type used for id and processorId so
// a caller can plug in anything from a plain opaque string to a
// composite order/tenant key, without the store or coordinator ever
// reflecting on it. Implementations must issue conditional updates
// against a strongly-consistent backend and must return the prior item
// atomically with the conditional write — without that, two claimants
// can both observe "no prior record".
type Store[K Key] interface {
	// Claim sets startedAt := now on the item keyed by (id, processorId)
	// if and only if it is not already present, and returns the item's
	// state as it was BEFORE this call. A nil Process (with nil error)
	// means no prior item existed, i.e. this call created it.
	Claim(ctx context.Context, id, processorID K, now time.Time) (*Process, error)

	// Commit unconditionally sets completedAt := now and
	// expiresOn := now + ttl on the item. No precondition: the last
	// writer wins.
	Commit(ctx context.Context, id, processorID K, now time.Time, ttl time.Duration) error

	// EnsureSchema provisions the backing table/section if the backend
	// requires explicit creation. Safe to call repeatedly.
	EnsureSchema(ctx context.Context) error

	Close() error
}
