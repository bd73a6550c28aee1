package core

import (
	"context"
	"errors"
	"testing"
)

type fakeCacheProvider struct {
	stored  []Atom
	deleted []Atom
	err     error
}

func (f *fakeCacheProvider) StoreAtom(_ context.Context, atom Atom) error {
	if f.err != nil {
		return f.err
	}
	f.stored = append(f.stored, atom)
	return nil
}

func (f *fakeCacheProvider) DeleteAtom(_ context.Context, atom Atom) error {
	if f.err != nil {
		return f.err
	}
	f.deleted = append(f.deleted, atom)
	return nil
}

func (f *fakeCacheProvider) GetAtoms(_ context.Context, _ Address) (<-chan Atom, error) {
	ch := make(chan Atom, len(f.stored))
	for _, a := range f.stored {
		ch <- a
	}
	close(ch)
	return ch, nil
}

func TestCacheAccountSystemWritesThroughOnStoreAndDelete(t *testing.T) {
	provider := &fakeCacheProvider{}
	sys := NewCacheAccountSystem(provider, nil)
	atom := mintAtom(t, testAddress(1), TokenClassReference{Issuer: testAddress(9), Symbol: "LGR"}, 5, 1)
	ctx := context.Background()

	if err := sys.ProcessAtomUpdate(ctx, AtomUpdate{Action: Store, Atom: atom}); err != nil {
		t.Fatalf("store: %v", err)
	}
	if len(provider.stored) != 1 || provider.stored[0].HID != atom.HID {
		t.Fatalf("expected provider to receive the stored atom, got %v", provider.stored)
	}

	if err := sys.ProcessAtomUpdate(ctx, AtomUpdate{Action: Delete, Atom: atom}); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if len(provider.deleted) != 1 || provider.deleted[0].HID != atom.HID {
		t.Fatalf("expected provider to receive the deleted atom, got %v", provider.deleted)
	}
}

func TestCacheAccountSystemNilProviderIsNoop(t *testing.T) {
	sys := NewCacheAccountSystem(nil, nil)
	atom := mintAtom(t, testAddress(1), TokenClassReference{Issuer: testAddress(9), Symbol: "LGR"}, 5, 1)
	if err := sys.ProcessAtomUpdate(context.Background(), AtomUpdate{Action: Store, Atom: atom}); err != nil {
		t.Fatalf("expected nil-provider store to be a silent no-op, got %v", err)
	}
	updates, err := sys.Replay(context.Background(), testAddress(1))
	if err != nil || updates != nil {
		t.Fatalf("expected nil-provider replay to return nil, nil, got %v, %v", updates, err)
	}
}

func TestCacheAccountSystemReplayProducesStoreUpdates(t *testing.T) {
	provider := &fakeCacheProvider{}
	atom1 := mintAtom(t, testAddress(1), TokenClassReference{Issuer: testAddress(9), Symbol: "LGR"}, 5, 1)
	atom2 := mintAtom(t, testAddress(1), TokenClassReference{Issuer: testAddress(9), Symbol: "LGR"}, 7, 2)
	provider.stored = []Atom{atom1, atom2}

	sys := NewCacheAccountSystem(provider, nil)
	updates, err := sys.Replay(context.Background(), testAddress(1))
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if len(updates) != 2 {
		t.Fatalf("expected 2 replayed updates, got %d", len(updates))
	}
	for _, u := range updates {
		if u.Action != Store {
			t.Fatalf("expected every replayed update to be a STORE, got %v", u.Action)
		}
	}
}

func TestCacheAccountSystemPropagatesProviderError(t *testing.T) {
	provider := &fakeCacheProvider{err: errors.New("disk full")}
	sys := NewCacheAccountSystem(provider, nil)
	atom := mintAtom(t, testAddress(1), TokenClassReference{Issuer: testAddress(9), Symbol: "LGR"}, 5, 1)
	if err := sys.ProcessAtomUpdate(context.Background(), AtomUpdate{Action: Store, Atom: atom}); err == nil {
		t.Fatal("expected provider error to propagate")
	}
}
