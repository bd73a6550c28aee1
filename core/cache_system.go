package core

import (
	"context"

	"github.com/sirupsen/logrus"
)

// CacheProvider is the pluggable durable store a CacheAccountSystem mirrors
// atom updates into. No transactional semantics are required of it — the
// in-memory projection built by the other account systems remains the
// source of truth; the cache only needs to replay what it was told.
type CacheProvider interface {
	StoreAtom(ctx context.Context, atom Atom) error
	DeleteAtom(ctx context.Context, atom Atom) error
	// GetAtoms streams every previously-stored atom for identity. The
	// channel must be closed when replay is complete.
	GetAtoms(ctx context.Context, identity Address) (<-chan Atom, error)
}

// CacheAccountSystem is an optional write-through mirror of the atom-update
// stream. With no provider configured every operation is a no-op, so an
// account can always register it unconditionally.
type CacheAccountSystem struct {
	provider CacheProvider
	log      *logrus.Logger
}

// NewCacheAccountSystem builds a cache system over provider. provider may be
// nil, in which case the system degrades to a no-op mirror.
func NewCacheAccountSystem(provider CacheProvider, log *logrus.Logger) *CacheAccountSystem {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &CacheAccountSystem{provider: provider, log: log}
}

func (c *CacheAccountSystem) Name() string { return "cache" }

// ProcessAtomUpdate writes atoms through to the provider on STORE and
// removes them on DELETE. The cache never reorders events relative to the
// live stream on its own; ordering is entirely the caller's responsibility.
func (c *CacheAccountSystem) ProcessAtomUpdate(ctx context.Context, update AtomUpdate) error {
	if c.provider == nil {
		return nil
	}
	switch update.Action {
	case Store:
		if err := c.provider.StoreAtom(ctx, update.Atom); err != nil {
			return err
		}
	case Delete:
		if err := c.provider.DeleteAtom(ctx, update.Atom); err != nil {
			return err
		}
	}
	return nil
}

// Replay produces every atom previously mirrored for identity as STORE
// updates, in the order the provider returns them. Callers re-inject the
// result through Account.Dispatch before starting the live subscription,
// so cache replay always precedes live data.
func (c *CacheAccountSystem) Replay(ctx context.Context, identity Address) ([]AtomUpdate, error) {
	if c.provider == nil {
		return nil, nil
	}
	atoms, err := c.provider.GetAtoms(ctx, identity)
	if err != nil {
		return nil, err
	}
	var updates []AtomUpdate
	for atom := range atoms {
		updates = append(updates, AtomUpdate{Action: Store, Atom: atom, Processed: atom.Processed})
	}
	c.log.WithFields(logrus.Fields{
		"account": identity.String(),
		"count":   len(updates),
	}).Debug("cache replay produced stored atoms")
	return updates, nil
}
