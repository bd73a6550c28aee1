package core

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
)

// Account owns a named, ordered list of account systems and is the sole
// dispatcher of atom updates into them. Account state is created once per
// address and mutated only through Dispatch (single-writer); dispatch is
// serialized behind a mutex so the system list can be driven safely even
// if the caller (typically a node.Connection subscription handler) runs on
// its own goroutine.
type Account struct {
	Address Address

	mu      sync.Mutex
	systems []AccountSystem
	byName  map[string]AccountSystem

	log *logrus.Logger
}

// NewAccount creates empty per-address state ready to receive registered
// systems via Register.
func NewAccount(addr Address, log *logrus.Logger) *Account {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Account{
		Address: addr,
		byName:  make(map[string]AccountSystem),
		log:     log,
	}
}

// Register appends a system to the dispatch order. Systems are invoked in
// the order they are registered, on every subsequent Dispatch call.
// Registering two systems under the same Name is a programmer error.
func (a *Account) Register(sys AccountSystem) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, exists := a.byName[sys.Name()]; exists {
		return fmt.Errorf("core: account system %q already registered for %s", sys.Name(), a.Address)
	}
	a.systems = append(a.systems, sys)
	a.byName[sys.Name()] = sys
	return nil
}

// System returns the registered system with the given name, if any.
func (a *Account) System(name string) (AccountSystem, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	sys, ok := a.byName[name]
	return sys, ok
}

// Dispatch folds update into every registered system in registration order.
// A system's ProcessAtomUpdate must return before the next system is
// invoked for the same update; Dispatch itself must return before the next
// update is admitted, which callers enforce by driving updates from a
// single goroutine per account (the node connection's per-address
// subscription stream) or, on a preemptive runtime, behind this mutex.
func (a *Account) Dispatch(ctx context.Context, update AtomUpdate) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, sys := range a.systems {
		if err := sys.ProcessAtomUpdate(ctx, update); err != nil {
			a.log.WithFields(logrus.Fields{
				"account": a.Address.String(),
				"system":  sys.Name(),
				"action":  update.Action.String(),
				"hid":     update.Atom.HID.String(),
			}).WithError(err).Error("account system rejected atom update")
			return fmt.Errorf("core: account %s system %q: %w", a.Address, sys.Name(), err)
		}
	}
	return nil
}
