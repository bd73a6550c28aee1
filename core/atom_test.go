package core

import (
	"math/big"
	"testing"
	"time"
)

func TestSerializeDeserializeAtomRoundTripsHID(t *testing.T) {
	acc := testAddress(1)
	ref := TokenClassReference{Issuer: testAddress(9), Symbol: "LGR"}
	atom := mintAtom(t, acc, ref, 42, 7)

	wire, err := SerializeAtom(atom)
	if err != nil {
		t.Fatalf("serialize: %v", err)
	}
	got, err := DeserializeAtom(wire)
	if err != nil {
		t.Fatalf("deserialize: %v", err)
	}
	if got.HID != atom.HID {
		t.Fatalf("expected round-tripped hid %s to match original %s", got.HID, atom.HID)
	}
	if len(got.SpunParticles) != 1 || got.SpunParticles[0].Particle.Amount.Cmp(big.NewInt(42)) != 0 {
		t.Fatalf("expected round-tripped particle amount 42, got %v", got.SpunParticles)
	}
}

func TestNewAtomIsContentAddressed(t *testing.T) {
	acc := testAddress(1)
	ref := TokenClassReference{Issuer: testAddress(9), Symbol: "LGR"}
	ts := time.Unix(0, 1)
	p := NewParticle(acc, big.NewInt(10), ref, big.NewInt(1), ParticleMint, 1)

	a1, err := NewAtom(ts, []SpunParticle{{Spin: SpinUp, Particle: p}}, nil)
	if err != nil {
		t.Fatalf("NewAtom a1: %v", err)
	}
	a2, err := NewAtom(ts, []SpunParticle{{Spin: SpinUp, Particle: p}}, nil)
	if err != nil {
		t.Fatalf("NewAtom a2: %v", err)
	}
	if a1.HID != a2.HID {
		t.Fatalf("expected identical content to produce identical hid, got %s vs %s", a1.HID, a2.HID)
	}

	a3, err := NewAtom(ts, []SpunParticle{{Spin: SpinUp, Particle: p}}, &ProcessedData{State: Decrypted, Message: "hello"})
	if err != nil {
		t.Fatalf("NewAtom a3: %v", err)
	}
	if a3.HID == a1.HID {
		t.Fatal("expected processed data to change the content hash")
	}
}

func TestDeserializeAtomRejectsMalformedAmount(t *testing.T) {
	bad := []byte(`{"timestamp":0,"particles":[{"spin":0,"address":[1],"amount":"not-a-number","issuer":[2],"symbol":"X","type":0,"nonce":1,"planck":0,"fee":false}]}`)
	if _, err := DeserializeAtom(bad); err == nil {
		t.Fatal("expected malformed amount to fail deserialization")
	}
}

func TestHasTokenBearingParticle(t *testing.T) {
	empty := Atom{}
	if empty.hasTokenBearingParticle() {
		t.Fatal("expected an atom with no particles to report false")
	}
	acc := testAddress(1)
	ref := TokenClassReference{Issuer: testAddress(9), Symbol: "LGR"}
	atom := mintAtom(t, acc, ref, 1, 1)
	if !atom.hasTokenBearingParticle() {
		t.Fatal("expected a minted atom to report true")
	}
}
