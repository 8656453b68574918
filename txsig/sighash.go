package txsig

import (
	"fmt"

	"github.com/btcsuite/btcd/txscript"
)

// SigHashType is the 32-bit signature hash type of a transaction signature.
// The low byte is what follows the DER body on the wire. Chains that replay
// protect their signatures with a fork id carry it in the upper 24 bits.
type SigHashType uint32

const (
	// SigHashAll signs every input and output.
	SigHashAll = SigHashType(txscript.SigHashAll)

	// SigHashNone signs every input and no output.
	SigHashNone = SigHashType(txscript.SigHashNone)

	// SigHashSingle signs every input and the output at the same index.
	SigHashSingle = SigHashType(txscript.SigHashSingle)

	// SigHashAnyOneCanPay restricts the signed inputs to the one being
	// signed.
	SigHashAnyOneCanPay = SigHashType(txscript.SigHashAnyOneCanPay)

	// SigHashForkID marks a fork replay protected signature.
	SigHashForkID SigHashType = 0x40

	// sigHashBaseMask selects the base type.
	sigHashBaseMask SigHashType = 0x1f

	// maxForkID is the largest fork id that fits in the upper 24 bits.
	maxForkID = 1<<24 - 1
)

// WithForkID returns t with the fork id flag set and forkID stored in the
// upper 24 bits.
func (t SigHashType) WithForkID(forkID uint32) (SigHashType, error) {
	if forkID > maxForkID {
		return 0, fmt.Errorf("fork id %d does not fit in 24 bits",
			forkID)
	}

	return t&0xff | SigHashForkID | SigHashType(forkID)<<8, nil
}

// Base returns the base type: all, none or single.
func (t SigHashType) Base() SigHashType {
	return t & sigHashBaseMask
}

// AnyOneCanPay reports whether the anyone-can-pay flag is set.
func (t SigHashType) AnyOneCanPay() bool {
	return t&SigHashAnyOneCanPay != 0
}

// HasForkID reports whether the fork id flag is set.
func (t SigHashType) HasForkID() bool {
	return t&SigHashForkID != 0
}

// ForkID returns the fork id stored in the upper 24 bits.
func (t SigHashType) ForkID() uint32 {
	return uint32(t >> 8)
}

// Byte returns the byte appended to an encoded signature.
func (t SigHashType) Byte() byte {
	return byte(t)
}

// IsDefined reports whether the base type is one of all, none or single and
// no unknown flag bits are set in the low byte.
func (t SigHashType) IsDefined() bool {
	low := t & 0xff
	flags := low &^ sigHashBaseMask
	if flags&^(SigHashAnyOneCanPay|SigHashForkID) != 0 {
		return false
	}

	base := low.Base()
	return base >= SigHashAll && base <= SigHashSingle
}

// TxScript returns the type as understood by the txscript signature hash
// functions.
func (t SigHashType) TxScript() txscript.SigHashType {
	return txscript.SigHashType(t)
}

// String returns a readable form such as "ALL|ANYONECANPAY".
func (t SigHashType) String() string {
	var s string
	switch t.Base() {
	case SigHashAll:
		s = "ALL"
	case SigHashNone:
		s = "NONE"
	case SigHashSingle:
		s = "SINGLE"
	default:
		s = fmt.Sprintf("UNKNOWN(%#x)", uint32(t.Base()))
	}

	if t.HasForkID() {
		s += fmt.Sprintf("|FORKID(%d)", t.ForkID())
	}
	if t.AnyOneCanPay() {
		s += "|ANYONECANPAY"
	}

	return s
}
