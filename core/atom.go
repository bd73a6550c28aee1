package core

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"math/big"
	"time"
)

// DecryptionState tags the outcome of attempting to decrypt an atom's
// processed auxiliary data. Decryption itself is an external collaborator
//; the core only branches on the resulting tag.
type DecryptionState int

const (
	Decrypted DecryptionState = iota
	EncryptedNotOwned
	CannotDecrypt
)

// ProcessedData is the optional auxiliary payload attached to an atom after
// an external collaborator has attempted decryption.
type ProcessedData struct {
	State   DecryptionState
	Message string
}

// AtomID is the content hash of an atom, the primary key used
// throughout the core.
type AtomID [32]byte

func (id AtomID) String() string {
	return fmt.Sprintf("%x", id[:])
}

// Atom is a durable, content-addressed bundle of spun particles.
type Atom struct {
	HID           AtomID
	Timestamp     time.Time
	SpunParticles []SpunParticle
	Processed     *ProcessedData
}

// wireAtom is the JSON projection used by computeHID and round-trip tests.
// It intentionally excludes HID itself: the hash is computed over content,
// not asserted by the sender.
type wireAtom struct {
	Timestamp     int64          `json:"timestamp"`
	SpunParticles []wireSpun     `json:"particles"`
	Processed     *wireProcessed `json:"processed,omitempty"`
}

type wireSpun struct {
	Spin    int          `json:"spin"`
	Address [20]byte     `json:"address"`
	Amount  string       `json:"amount"`
	Issuer  [20]byte     `json:"issuer"`
	Symbol  string       `json:"symbol"`
	Type    ParticleType `json:"type"`
	Nonce   uint64       `json:"nonce"`
	Planck  uint64       `json:"planck"`
	Fee     bool         `json:"fee"`
}

type wireProcessed struct {
	State   DecryptionState `json:"state"`
	Message string          `json:"message"`
}

func (a Atom) toWire() wireAtom {
	w := wireAtom{
		Timestamp:     a.Timestamp.UnixNano(),
		SpunParticles: make([]wireSpun, len(a.SpunParticles)),
	}
	for i, sp := range a.SpunParticles {
		amt := "0"
		if sp.Particle.Amount != nil {
			amt = sp.Particle.Amount.String()
		}
		w.SpunParticles[i] = wireSpun{
			Spin:    int(sp.Spin),
			Address: sp.Particle.Address,
			Amount:  amt,
			Issuer:  sp.Particle.TokenClassReference.Issuer,
			Symbol:  sp.Particle.TokenClassReference.Symbol,
			Type:    sp.Particle.Type,
			Nonce:   sp.Particle.Nonce,
			Planck:  sp.Particle.Planck,
			Fee:     sp.Particle.Fee,
		}
	}
	if a.Processed != nil {
		w.Processed = &wireProcessed{State: a.Processed.State, Message: a.Processed.Message}
	}
	return w
}

// computeHID derives the content hash of an atom from its wire projection.
// It is deliberately independent of the transported HID field so that
// SerializeAtom/DeserializeAtom round-trips and node.Connection's hash
// mismatch check can compare against it.
func computeHID(a Atom) (AtomID, error) {
	w := a.toWire()
	b, err := json.Marshal(w)
	if err != nil {
		return AtomID{}, fmt.Errorf("core: marshal atom for hashing: %w", err)
	}
	sum := sha256.Sum256(b)
	var id AtomID
	copy(id[:], sum[:])
	return id, nil
}

// NewAtom builds an atom and stamps its HID from content.
func NewAtom(ts time.Time, particles []SpunParticle, processed *ProcessedData) (Atom, error) {
	a := Atom{Timestamp: ts, SpunParticles: particles, Processed: processed}
	hid, err := computeHID(a)
	if err != nil {
		return Atom{}, err
	}
	a.HID = hid
	return a, nil
}

// SerializeAtom renders an atom to its wire form. Atom serialization wire
// format is formally out of scope; this JSON encoding exists only so
// the round-trip law (deserialize(serialize(a)).hid == a.hid) has
// something concrete to exercise in tests and so node.Connection has a byte
// form to send over the socket.
func SerializeAtom(a Atom) ([]byte, error) {
	return json.Marshal(a.toWire())
}

// DeserializeAtom parses the wire form produced by SerializeAtom and
// recomputes HID from content, exactly mirroring what a receiving
// node.Connection does to validate an incoming atom.
func DeserializeAtom(b []byte) (Atom, error) {
	var w wireAtom
	if err := json.Unmarshal(b, &w); err != nil {
		return Atom{}, fmt.Errorf("core: unmarshal atom: %w", err)
	}
	particles := make([]SpunParticle, len(w.SpunParticles))
	for i, ws := range w.SpunParticles {
		amount, ok := new(big.Int).SetString(ws.Amount, 10)
		if !ok {
			return Atom{}, fmt.Errorf("core: invalid particle amount %q", ws.Amount)
		}
		particles[i] = SpunParticle{
			Spin: Spin(ws.Spin),
			Particle: Particle{
				Address: ws.Address,
				Amount:  amount,
				TokenClassReference: TokenClassReference{
					Issuer: ws.Issuer,
					Symbol: ws.Symbol,
				},
				Type:   ws.Type,
				Nonce:  ws.Nonce,
				Planck: ws.Planck,
				Fee:    ws.Fee,
			},
		}
	}
	var proc *ProcessedData
	if w.Processed != nil {
		proc = &ProcessedData{State: w.Processed.State, Message: w.Processed.Message}
	}
	a := Atom{
		Timestamp:     time.Unix(0, w.Timestamp).UTC(),
		SpunParticles: particles,
		Processed:     proc,
	}
	hid, err := computeHID(a)
	if err != nil {
		return Atom{}, err
	}
	a.HID = hid
	for i := range particles {
		particles[i].Particle.ID = deriveParticleID(
			particles[i].Particle.Address,
			particles[i].Particle.Amount,
			particles[i].Particle.TokenClassReference,
			particles[i].Particle.Nonce,
			particles[i].Particle.Type,
		)
	}
	a.SpunParticles = particles
	return a, nil
}

// hasTokenBearingParticle reports whether the atom carries at least one
// particle the transfer system would act on.
func (a Atom) hasTokenBearingParticle() bool {
	return len(a.SpunParticles) > 0
}

// AtomAction tags the direction of an atom update.
type AtomAction int

const (
	Store AtomAction = iota
	Delete
)

func (a AtomAction) String() string {
	if a == Store {
		return "STORE"
	}
	return "DELETE"
}

// AtomUpdate is the envelope the node connection hands to each account's
// dispatch pipeline.
type AtomUpdate struct {
	Action    AtomAction
	Atom      Atom
	Processed *ProcessedData
}
