package core

import (
	"context"
	"errors"
	"testing"
)

type orderRecordingSystem struct {
	name  string
	trail *[]string
	fail  bool
}

func (s *orderRecordingSystem) Name() string { return s.name }

func (s *orderRecordingSystem) ProcessAtomUpdate(_ context.Context, _ AtomUpdate) error {
	*s.trail = append(*s.trail, s.name)
	if s.fail {
		return errors.New("boom")
	}
	return nil
}

func TestAccountDispatchesInRegistrationOrder(t *testing.T) {
	addr := testAddress(1)
	acc := NewAccount(addr, nil)

	var trail []string
	first := &orderRecordingSystem{name: "first", trail: &trail}
	second := &orderRecordingSystem{name: "second", trail: &trail}
	if err := acc.Register(first); err != nil {
		t.Fatalf("register first: %v", err)
	}
	if err := acc.Register(second); err != nil {
		t.Fatalf("register second: %v", err)
	}

	atom := mintAtom(t, addr, TokenClassReference{Issuer: testAddress(9), Symbol: "LGR"}, 1, 1)
	if err := acc.Dispatch(context.Background(), AtomUpdate{Action: Store, Atom: atom}); err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	if len(trail) != 2 || trail[0] != "first" || trail[1] != "second" {
		t.Fatalf("expected dispatch order [first second], got %v", trail)
	}
}

func TestAccountDispatchStopsOnFirstError(t *testing.T) {
	addr := testAddress(1)
	acc := NewAccount(addr, nil)

	var trail []string
	failing := &orderRecordingSystem{name: "failing", trail: &trail, fail: true}
	never := &orderRecordingSystem{name: "never", trail: &trail}
	_ = acc.Register(failing)
	_ = acc.Register(never)

	atom := mintAtom(t, addr, TokenClassReference{Issuer: testAddress(9), Symbol: "LGR"}, 1, 1)
	err := acc.Dispatch(context.Background(), AtomUpdate{Action: Store, Atom: atom})
	if err == nil {
		t.Fatal("expected dispatch error to propagate")
	}
	if len(trail) != 1 || trail[0] != "failing" {
		t.Fatalf("expected only the failing system to run, got %v", trail)
	}
}

func TestAccountRegisterRejectsDuplicateName(t *testing.T) {
	addr := testAddress(1)
	acc := NewAccount(addr, nil)

	var trail []string
	if err := acc.Register(&orderRecordingSystem{name: "dup", trail: &trail}); err != nil {
		t.Fatalf("first register: %v", err)
	}
	if err := acc.Register(&orderRecordingSystem{name: "dup", trail: &trail}); err == nil {
		t.Fatal("expected duplicate name registration to fail")
	}
}

func TestAccountSystemLookup(t *testing.T) {
	addr := testAddress(1)
	acc := NewAccount(addr, nil)
	var trail []string
	sys := &orderRecordingSystem{name: "lookup-me", trail: &trail}
	_ = acc.Register(sys)

	got, ok := acc.System("lookup-me")
	if !ok || got.Name() != "lookup-me" {
		t.Fatalf("expected to find registered system, got %v ok=%v", got, ok)
	}
	if _, ok := acc.System("missing"); ok {
		t.Fatal("expected lookup of unregistered name to fail")
	}
}
