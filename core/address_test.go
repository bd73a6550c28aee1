package core

import "testing"

func TestAddressStringParseRoundTrip(t *testing.T) {
	a := testAddress(0x42)
	s := a.String()
	got, err := ParseAddress(s)
	if err != nil {
		t.Fatalf("ParseAddress: %v", err)
	}
	if got != a {
		t.Fatalf("expected round-tripped address to equal original, got %s want %s", got, a)
	}
}

func TestParseAddressRejectsWrongLength(t *testing.T) {
	if _, err := ParseAddress("ab"); err == nil {
		t.Fatal("expected short address to fail")
	}
}

func TestParseAddressRejectsInvalidHex(t *testing.T) {
	if _, err := ParseAddress("not-hex-at-all-xxxxxxxxxxxxxxxxxxxxxxxxxx"); err == nil {
		t.Fatal("expected non-hex address to fail")
	}
}

func TestAddressIsZero(t *testing.T) {
	var zero Address
	if !zero.IsZero() {
		t.Fatal("expected zero-value address to report IsZero")
	}
	if testAddress(1).IsZero() {
		t.Fatal("expected non-zero address to report false")
	}
}
