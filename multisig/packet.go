package multisig

import (
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/wire"
)

// Packet exports the session as a PSBT so that cosigners without access to
// the session can see what is being signed and what has been collected. Every
// input carries the redeem script, the sighash type and one partial
// signature per accepted signer. The spent output goes into the witness UTXO
// field because the session only knows outputs, not whole previous
// transactions.
func (s *Session) Packet() (*psbt.Packet, error) {
	unsigned := s.tx.Copy()
	for _, txIn := range unsigned.TxIn {
		txIn.SignatureScript = nil
		txIn.Witness = nil
	}

	packet, err := psbt.NewFromUnsignedTx(unsigned)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	signers := s.signersLocked()
	for i := range packet.Inputs {
		pIn := &packet.Inputs[i]

		prevOut := s.prevOuts.FetchPrevOutput(
			unsigned.TxIn[i].PreviousOutPoint,
		)
		pIn.WitnessUtxo = wire.NewTxOut(
			prevOut.Value, append([]byte(nil), prevOut.PkScript...),
		)
		pIn.RedeemScript = s.RedeemScript()
		pIn.SighashType = s.hashType.TxScript()

		for _, signer := range signers {
			pubKey := s.keySet.PubKeys[signer]
			pIn.PartialSigs = append(pIn.PartialSigs, &psbt.PartialSig{
				PubKey:    pubKey.SerializeCompressed(),
				Signature: s.collected[signer][i].Encode(),
			})
		}
	}

	return packet, nil
}
