// Package state marks OAuth state tokens as consumed so a callback
// cannot be replayed. The flow itself stays stateless: nothing is
// stored at initiation, only the consumption of a state is recorded.
package state

import (
	"context"
	"time"
)

// Guard records single-use consumption of state token ids.
type Guard interface {
	// Consume returns true the first time a given id is seen within
	// ttl, false on any replay.
	Consume(ctx context.Context, id string, ttl time.Duration) (bool, error)
}

// NoopGuard accepts every state. Used when redis is not configured;
// expiry on the state token itself still bounds the exposure window.
type NoopGuard struct{}

func (NoopGuard) Consume(ctx context.Context, id string, ttl time.Duration) (bool, error) {
	return true, nil
}
