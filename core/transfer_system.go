package core

import (
	"context"
	"math/big"
	"sync"

	"github.com/sirupsen/logrus"
)

// TransferAccountSystem is the UTXO-style projection: it maintains the set
// of unspent and spent token-bearing particles owned by one account,
// derives a per-token-class balance from the unspent set, and keeps an
// ordered history of transactions. STORE and DELETE of the same atom are
// exact inverses of one another (the reversibility law): applying both,
// in either order relative to other atoms, returns balance,
// unspentConsumables and spentConsumables to their pre-STORE values.
type TransferAccountSystem struct {
	address Address
	log     *logrus.Logger

	mu                 sync.Mutex
	order              []AtomID
	transactions       map[AtomID]Transaction
	balance            map[TokenClassReference]*big.Int
	unspentConsumables map[ParticleID]Particle
	spentConsumables   map[ParticleID]Particle

	txSubject      *transactionSubject
	balanceSubject *balanceSubject
}

// NewTransferAccountSystem builds an empty transfer projection for address.
func NewTransferAccountSystem(address Address, log *logrus.Logger) *TransferAccountSystem {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &TransferAccountSystem{
		address:            address,
		log:                log,
		transactions:       make(map[AtomID]Transaction),
		balance:            make(map[TokenClassReference]*big.Int),
		unspentConsumables: make(map[ParticleID]Particle),
		spentConsumables:   make(map[ParticleID]Particle),
		txSubject:          newTransactionSubject(),
		balanceSubject:     newBalanceSubject(),
	}
}

func (t *TransferAccountSystem) Name() string { return "transfer" }

// ProcessAtomUpdate dispatches to the STORE or DELETE fold.
func (t *TransferAccountSystem) ProcessAtomUpdate(_ context.Context, update AtomUpdate) error {
	if !update.Atom.hasTokenBearingParticle() {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	switch update.Action {
	case Store:
		t.store(update.Atom)
	case Delete:
		t.delete(update.Atom)
	}
	return nil
}

func (t *TransferAccountSystem) balanceOf(ref TokenClassReference) *big.Int {
	b, ok := t.balance[ref]
	if !ok {
		b = big.NewInt(0)
		t.balance[ref] = b
	}
	return b
}

// store implements the STORE algorithm: idempotent on a duplicate hid,
// otherwise folds every spun particle into a new Transaction and the
// account-level unspent/spent sets and balance, in that order, so the
// balance subject always carries the value that produced the transaction
// event emitted immediately after it.
func (t *TransferAccountSystem) store(atom Atom) {
	if _, exists := t.transactions[atom.HID]; exists {
		return
	}

	tx := newTransaction(atom.HID, atom.Timestamp)
	if atom.Processed != nil && atom.Processed.State != CannotDecrypt {
		tx.Message = atom.Processed.Message
	}

	for _, sp := range atom.SpunParticles {
		p := sp.Particle
		switch {
		case p.IsFee():
			// Proof-of-work fee assumption: no token movement recorded.
		case p.Address == t.address:
			delta := new(big.Int).Set(p.Amount)
			switch sp.Spin {
			case SpinDown:
				delta.Neg(delta)
				delete(t.unspentConsumables, p.ID)
				t.spentConsumables[p.ID] = p
			case SpinUp:
				if _, alreadySpent := t.spentConsumables[p.ID]; !alreadySpent {
					t.unspentConsumables[p.ID] = p
				}
			}
			tx.addBalance(p.TokenClassReference, delta)
		default:
			tx.Participants[p.Address.String()] = p.Address
		}
	}

	t.transactions[atom.HID] = tx
	t.order = append(t.order, atom.HID)

	for ref, delta := range tx.Balance {
		t.balanceOf(ref).Add(t.balanceOf(ref), delta)
	}

	t.balanceSubject.Emit(t.balance)
	t.txSubject.Emit(TransactionEvent{Action: Store, HID: atom.HID, Transaction: tx.clone()})

	t.log.WithFields(logrus.Fields{
		"account": t.address.String(),
		"hid":     atom.HID.String(),
	}).Debug("transfer system stored atom")
}

// delete implements the DELETE algorithm: a no-op on an unknown hid,
// otherwise the exact inverse of store for every particle, so the
// resulting state is byte-identical to the state before the matching
// STORE was applied.
func (t *TransferAccountSystem) delete(atom Atom) {
	tx, exists := t.transactions[atom.HID]
	if !exists {
		return
	}

	for _, sp := range atom.SpunParticles {
		p := sp.Particle
		if p.IsFee() || p.Address != t.address {
			continue
		}
		switch sp.Spin {
		case SpinDown:
			delete(t.spentConsumables, p.ID)
			t.unspentConsumables[p.ID] = p
		case SpinUp:
			delete(t.unspentConsumables, p.ID)
		}
	}

	delete(t.transactions, atom.HID)
	t.order = removeAtomID(t.order, atom.HID)

	for ref, delta := range tx.Balance {
		t.balanceOf(ref).Sub(t.balanceOf(ref), delta)
		// Drop the entry once no remaining transaction touches this token
		// class, so the map's shape matches the pre-STORE state too.
		stillHeld := false
		for _, other := range t.transactions {
			if _, ok := other.Balance[ref]; ok {
				stillHeld = true
				break
			}
		}
		if !stillHeld {
			delete(t.balance, ref)
		}
	}

	t.balanceSubject.Emit(t.balance)
	t.txSubject.Emit(TransactionEvent{Action: Delete, HID: atom.HID, Transaction: tx.clone()})

	t.log.WithFields(logrus.Fields{
		"account": t.address.String(),
		"hid":     atom.HID.String(),
	}).Debug("transfer system deleted atom")
}

func removeAtomID(order []AtomID, hid AtomID) []AtomID {
	for i, h := range order {
		if h == hid {
			return append(order[:i:i], order[i+1:]...)
		}
	}
	return order
}

// GetUnspentConsumables returns a snapshot of the unspent particle set.
// Stable ordering is not guaranteed; callers that need determinism must
// sort the result themselves.
func (t *TransferAccountSystem) GetUnspentConsumables() []Particle {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Particle, 0, len(t.unspentConsumables))
	for _, p := range t.unspentConsumables {
		out = append(out, p)
	}
	return out
}

// GetSpentConsumables returns a snapshot of the spent particle set.
func (t *TransferAccountSystem) GetSpentConsumables() []Particle {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Particle, 0, len(t.spentConsumables))
	for _, p := range t.spentConsumables {
		out = append(out, p)
	}
	return out
}

// GetBalance returns a snapshot of the signed subunit balance per token
// class.
func (t *TransferAccountSystem) GetBalance() BalanceMap {
	t.mu.Lock()
	defer t.mu.Unlock()
	return BalanceMap(t.balance).clone()
}

// GetTokenUnitsBalance materializes the balance as decimal units, omitting
// any token class not resolvable through registry.
func (t *TransferAccountSystem) GetTokenUnitsBalance(registry *TokenRegistry) map[TokenClassReference]*big.Int {
	t.mu.Lock()
	snapshot := BalanceMap(t.balance).clone()
	t.mu.Unlock()

	out := make(map[TokenClassReference]*big.Int, len(snapshot))
	for ref, subunits := range snapshot {
		if _, ok := registry.Lookup(ref); !ok {
			continue
		}
		whole, _ := ToDecimal(subunits)
		out[ref] = whole
	}
	return out
}

// BalanceStream subscribes to the last-value-cached balance subject; the
// new subscriber immediately receives the current balance.
func (t *TransferAccountSystem) BalanceStream() (<-chan BalanceMap, func()) {
	return t.balanceSubject.Subscribe()
}

// GetAllTransactions returns a cold stream that first replays every
// currently-known transaction as STORE events, then multiplexes into the
// live transaction subject, so a late subscriber never misses history. The
// returned function detaches the subscriber and releases its goroutine.
func (t *TransferAccountSystem) GetAllTransactions() (<-chan TransactionEvent, func()) {
	t.mu.Lock()
	history := make([]TransactionEvent, 0, len(t.order))
	for _, hid := range t.order {
		tx := t.transactions[hid]
		history = append(history, TransactionEvent{Action: Store, HID: hid, Transaction: tx.clone()})
	}
	// Subscribe while still holding mu, before the history snapshot is
	// released to the caller: store/delete only emit on txSubject with mu
	// held, so subscribing here guarantees no event lands in the gap
	// between the snapshot and this subscription, which would otherwise
	// be missed by both history and the live stream.
	live, unsub := t.txSubject.Subscribe()
	t.mu.Unlock()

	out := make(chan TransactionEvent)
	go func() {
		defer close(out)
		for _, ev := range history {
			out <- ev
		}
		for ev := range live {
			out <- ev
		}
	}()
	return out, unsub
}
