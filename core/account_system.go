package core

import "context"

// AccountSystem is a named, stateful fold over an account's atom-update
// stream. Systems are invoked sequentially, in registration order, and each
// must complete before the next update is admitted — there is no
// per-particle parallelism and no system may feed its output back into the
// pipeline.
type AccountSystem interface {
	// Name identifies the system for logging and registry lookups.
	Name() string
	// ProcessAtomUpdate folds a single update into the system's state.
	// It must return only after state has been fully updated.
	ProcessAtomUpdate(ctx context.Context, update AtomUpdate) error
}
