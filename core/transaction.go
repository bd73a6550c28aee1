package core

import (
	"math/big"
	"time"
)

// Transaction is the per-atom, per-account projection derived by the
// transfer account system: the net signed effect of one atom on one
// account, plus the addresses of every other party it touched.
type Transaction struct {
	HID          AtomID
	Timestamp    time.Time
	Message      string
	Balance      map[TokenClassReference]*big.Int
	Participants map[string]Address
	Fee          *big.Int
}

func newTransaction(hid AtomID, ts time.Time) Transaction {
	return Transaction{
		HID:          hid,
		Timestamp:    ts,
		Balance:      make(map[TokenClassReference]*big.Int),
		Participants: make(map[string]Address),
		Fee:          big.NewInt(0),
	}
}

func (t Transaction) addBalance(ref TokenClassReference, delta *big.Int) {
	cur, ok := t.Balance[ref]
	if !ok {
		cur = big.NewInt(0)
		t.Balance[ref] = cur
	}
	cur.Add(cur, delta)
}

// clone returns a deep-enough copy safe to hand to callers outside the
// single-writer dispatch pipeline.
func (t Transaction) clone() Transaction {
	out := newTransaction(t.HID, t.Timestamp)
	out.Message = t.Message
	out.Fee = new(big.Int).Set(t.Fee)
	for k, v := range t.Balance {
		out.Balance[k] = new(big.Int).Set(v)
	}
	for k, v := range t.Participants {
		out.Participants[k] = v
	}
	return out
}
