package core

import "errors"

// ErrAtomHashMismatch is logged, not returned to the caller: a mismatched
// hid is a warning condition, the atom is still delivered.
var ErrAtomHashMismatch = errors.New("core: recomputed hid does not match transported hid")
