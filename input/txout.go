package input

import (
	"encoding/binary"
	"io"

	"github.com/btcsuite/btcd/wire"
)

// maxPkScriptLen bounds the output scripts read back from storage.
const maxPkScriptLen = 80

// writeTxOut serializes a wire.TxOut struct into the passed io.Writer stream.
func writeTxOut(w io.Writer, txo *wire.TxOut) error {
	var scratch [8]byte

	binary.BigEndian.PutUint64(scratch[:], uint64(txo.Value))
	if _, err := w.Write(scratch[:]); err != nil {
		return err
	}

	return wire.WriteVarBytes(w, 0, txo.PkScript)
}

// readTxOut deserializes a wire.TxOut struct from the passed io.Reader stream.
func readTxOut(r io.Reader) (*wire.TxOut, error) {
	var scratch [8]byte
	if _, err := io.ReadFull(r, scratch[:]); err != nil {
		return nil, err
	}

	pkScript, err := wire.ReadVarBytes(r, 0, maxPkScriptLen, "pkScript")
	if err != nil {
		return nil, err
	}

	return wire.NewTxOut(int64(binary.BigEndian.Uint64(scratch[:])),
		pkScript), nil
}
