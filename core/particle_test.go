package core

import (
	"math/big"
	"testing"
)

func TestNewParticleIDIsStableForIdenticalContent(t *testing.T) {
	ref := TokenClassReference{Issuer: testAddress(9), Symbol: "LGR"}
	addr := testAddress(1)
	p1 := NewParticle(addr, big.NewInt(10), ref, big.NewInt(1), ParticleMint, 5)
	p2 := NewParticle(addr, big.NewInt(10), ref, big.NewInt(1), ParticleMint, 5)
	if p1.ID != p2.ID {
		t.Fatalf("expected identical particle content to produce identical ids, got %s vs %s", p1.ID, p2.ID)
	}
}

func TestNewParticleIDChangesWithNonce(t *testing.T) {
	ref := TokenClassReference{Issuer: testAddress(9), Symbol: "LGR"}
	addr := testAddress(1)
	p1 := NewParticle(addr, big.NewInt(10), ref, big.NewInt(1), ParticleMint, 5)
	p2 := NewParticle(addr, big.NewInt(10), ref, big.NewInt(1), ParticleMint, 6)
	if p1.ID == p2.ID {
		t.Fatal("expected a different nonce to produce a different particle id")
	}
}

func TestParticleIsFee(t *testing.T) {
	ref := TokenClassReference{Issuer: testAddress(9), Symbol: "LGR"}
	p := NewParticle(testAddress(1), big.NewInt(1), ref, big.NewInt(1), ParticleMint, 1)
	if p.IsFee() {
		t.Fatal("expected a freshly constructed particle to not be a fee particle")
	}
	p.Fee = true
	if !p.IsFee() {
		t.Fatal("expected IsFee to reflect the Fee field")
	}
}

func TestTokenClassReferenceString(t *testing.T) {
	ref := TokenClassReference{Issuer: testAddress(9), Symbol: "LGR"}
	want := testAddress(9).String() + ":LGR"
	if got := ref.String(); got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}
