package multisig

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/hdmwallet/hdmcore/hdmutils"
	"github.com/hdmwallet/hdmcore/input"
	"github.com/hdmwallet/hdmcore/keychain"
	"github.com/hdmwallet/hdmcore/monitoring"
	"github.com/hdmwallet/hdmcore/txsig"
	"github.com/lightningnetwork/lnd/fn/v2"
)

var (
	// ErrNoInputs is returned when the transaction to sign spends nothing.
	ErrNoInputs = errors.New("transaction has no inputs")

	// ErrUnknownPrevOut is returned when an input's previous output cannot
	// be fetched.
	ErrUnknownPrevOut = errors.New("unknown previous output")

	// ErrWrongPkScript is returned when an input does not spend the key
	// set's P2SH output.
	ErrWrongPkScript = errors.New("input does not spend the key set script")

	// ErrFinalizeFailed is logged when a transaction that met its threshold
	// fails script verification.
	ErrFinalizeFailed = errors.New("finalized transaction failed " +
		"verification")
)

// SessionOption modifies the parameters of a new Session.
type SessionOption func(*Session)

// WithHashType makes the session expect signatures of the given hash type
// instead of SigHashAll.
func WithHashType(hashType txsig.SigHashType) SessionOption {
	return func(s *Session) {
		s.hashType = hashType
	}
}

// WithMetrics records submissions and finalize outcomes in m.
func WithMetrics(m *monitoring.Metrics) SessionOption {
	return func(s *Session) {
		s.metrics = m
	}
}

// Session collects signature sets from the cosigners of a KeySet for one
// spending transaction, and assembles the spend once enough distinct
// cosigners have signed.
//
// Every entry of the collected map verifies against its signer's key for every
// input. Submissions may arrive concurrently from any goroutine.
type Session struct {
	tx           *wire.MsgTx
	keySet       KeySet
	builder      input.ScriptBuilder
	prevOuts     txscript.PrevOutputFetcher
	redeemScript []byte
	pkScript     []byte
	hashType     txsig.SigHashType
	metrics      *monitoring.Metrics

	// sigHashes holds the signature hash of every input.
	sigHashes [][]byte

	// signerCount mirrors len(collected) for lock-free readers.
	signerCount atomic.Int32

	mu        sync.Mutex
	collected map[int][]*txsig.TransactionSignature
}

// NewSession creates a session for spending the inputs of tx, each of which
// must spend the P2SH output of keySet as returned by prevOuts. The
// transaction is copied; later changes by the caller do not affect the
// session.
func NewSession(tx *wire.MsgTx, keySet KeySet, builder input.ScriptBuilder,
	prevOuts txscript.PrevOutputFetcher,
	opts ...SessionOption) (*Session, error) {

	if len(tx.TxIn) == 0 {
		return nil, ErrNoInputs
	}

	s := &Session{
		tx:        tx.Copy(),
		keySet:    keySet,
		builder:   builder,
		prevOuts:  prevOuts,
		hashType:  txsig.SigHashAll,
		collected: make(map[int][]*txsig.TransactionSignature),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.hashType.HasForkID() || !s.hashType.IsDefined() {
		return nil, fmt.Errorf("%w: %v", input.ErrUnsupportedHashType,
			s.hashType)
	}

	var err error
	s.redeemScript, err = keySet.RedeemScript(builder)
	if err != nil {
		return nil, err
	}
	s.pkScript, err = input.ScriptHashPkScript(s.redeemScript)
	if err != nil {
		return nil, err
	}

	s.sigHashes = make([][]byte, len(s.tx.TxIn))
	for i, txIn := range s.tx.TxIn {
		prevOut := prevOuts.FetchPrevOutput(txIn.PreviousOutPoint)
		if prevOut == nil {
			return nil, fmt.Errorf("%w: %v", ErrUnknownPrevOut,
				txIn.PreviousOutPoint)
		}
		if !bytes.Equal(prevOut.PkScript, s.pkScript) {
			return nil, fmt.Errorf("%w: input %d", ErrWrongPkScript,
				i)
		}

		s.sigHashes[i], err = txscript.CalcSignatureHash(
			s.redeemScript, s.hashType.TxScript(), s.tx, i,
		)
		if err != nil {
			return nil, err
		}
	}

	return s, nil
}

// RedeemScript returns the redeem script every input spends.
func (s *Session) RedeemScript() []byte {
	return slices.Clone(s.redeemScript)
}

// SignDescriptors returns the sign descriptors a cosigner holding keyDesc
// needs to produce its signature set.
func (s *Session) SignDescriptors(
	keyDesc keychain.KeyDescriptor) []*input.SignDescriptor {

	descs := make([]*input.SignDescriptor, len(s.tx.TxIn))
	for i, txIn := range s.tx.TxIn {
		descs[i] = &input.SignDescriptor{
			KeyDesc:      keyDesc,
			RedeemScript: s.RedeemScript(),
			Output: s.prevOuts.FetchPrevOutput(
				txIn.PreviousOutPoint,
			),
			HashType:   s.hashType,
			InputIndex: i,
		}
	}

	return descs
}

// UnsignedTx returns a copy of the transaction being signed.
func (s *Session) UnsignedTx() *wire.MsgTx {
	return s.tx.Copy()
}

// identify returns the index of the key that produced sig over the first
// input.
func (s *Session) identify(sig *txsig.TransactionSignature) fn.Option[int] {
	for i, pubKey := range s.keySet.PubKeys {
		if sig.Sig.Verify(s.sigHashes[0], pubKey) {
			return fn.Some(i)
		}
	}

	return fn.None[int]()
}

// verifySet checks that sigs holds one valid signature by signer per input.
func (s *Session) verifySet(sigs []*txsig.TransactionSignature) fn.Option[int] {
	if len(sigs) != len(s.sigHashes) {
		return fn.None[int]()
	}
	for _, sig := range sigs {
		if sig == nil || sig.Sig == nil || sig.HashType != s.hashType {
			return fn.None[int]()
		}
	}

	signer := s.identify(sigs[0])
	if signer.IsNone() {
		return signer
	}

	pubKey := s.keySet.PubKeys[signer.UnwrapOr(0)]
	for i, sig := range sigs[1:] {
		if !sig.Sig.Verify(s.sigHashes[i+1], pubKey) {
			return fn.None[int]()
		}
	}

	return signer
}

// Submit records a cosigner's signature set, one signature per input in input
// order. The signer is identified from the first signature. The set is
// rejected, leaving the session untouched, unless every signature verifies
// against that signer's key. A later set from the same signer replaces the
// earlier one.
func (s *Session) Submit(sigs []*txsig.TransactionSignature) bool {
	signer := s.verifySet(sigs)
	if signer.IsNone() {
		log.DebugS(context.TODO(), "Rejected signature set",
			slog.Int("sigs", len(sigs)),
			slog.Int("inputs", len(s.sigHashes)))

		s.metrics.Submission(monitoring.SubmissionRejected)

		return false
	}
	idx := signer.UnwrapOr(0)

	s.mu.Lock()
	defer s.mu.Unlock()

	_, replaced := s.collected[idx]
	s.collected[idx] = slices.Clone(sigs)
	s.signerCount.Store(int32(len(s.collected)))

	log.DebugS(context.TODO(), "Accepted signature set",
		slog.Int("signer", idx), slog.Bool("replaced", replaced),
		slog.Int("signers", len(s.collected)))

	if replaced {
		s.metrics.Submission(monitoring.SubmissionReplaced)
	} else {
		s.metrics.Submission(monitoring.SubmissionAccepted)
	}

	return true
}

// SubmitEncoded decodes a signature set in script encoding and submits it.
// Signatures that are not strictly canonical reject the whole set.
func (s *Session) SubmitEncoded(encoded [][]byte) bool {
	sigs := make([]*txsig.TransactionSignature, len(encoded))
	for i, b := range encoded {
		sig, err := txsig.Decode(b, true)
		if err != nil {
			log.Debugf("Rejected signature %d of set: %v", i, err)
			s.metrics.Submission(monitoring.SubmissionRejected)

			return false
		}
		sigs[i] = sig
	}

	return s.Submit(sigs)
}

// Satisfied reports whether enough distinct cosigners have signed. It does
// not take the session lock and may lag a concurrent Submit.
func (s *Session) Satisfied() bool {
	return int(s.signerCount.Load()) >= s.keySet.Threshold
}

// SignerCount returns the number of distinct cosigners that have signed.
func (s *Session) SignerCount() int {
	return int(s.signerCount.Load())
}

// Signers returns the key indexes of the cosigners that have signed, in
// ascending order.
func (s *Session) Signers() []int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.signersLocked()
}

func (s *Session) signersLocked() []int {
	signers := make([]int, 0, len(s.collected))
	for idx := range s.collected {
		signers = append(signers, idx)
	}
	slices.Sort(signers)

	return signers
}

// Finalize assembles the spending transaction from the signatures of the
// lowest indexed threshold cosigners and verifies every input with the script
// engine. It returns None until the session is satisfied, and None when the
// assembled transaction does not verify.
func (s *Session) Finalize() fn.Option[*wire.MsgTx] {
	s.mu.Lock()
	defer s.mu.Unlock()

	signers := s.signersLocked()
	if len(signers) < s.keySet.Threshold {
		return fn.None[*wire.MsgTx]()
	}
	signers = signers[:s.keySet.Threshold]

	tx := s.tx.Copy()
	for i, txIn := range tx.TxIn {
		sigs := make([][]byte, len(signers))
		for j, signer := range signers {
			sigs[j] = s.collected[signer][i].Encode()
		}

		sigScript, err := s.builder.BuildSpendScript(
			sigs, s.redeemScript,
		)
		if err != nil {
			return s.integrityFault(signers, i, err)
		}
		txIn.SignatureScript = sigScript
	}

	hashCache := txscript.NewTxSigHashes(tx, s.prevOuts)
	for i, txIn := range tx.TxIn {
		prevOut := s.prevOuts.FetchPrevOutput(txIn.PreviousOutPoint)
		vm, err := txscript.NewEngine(
			prevOut.PkScript, tx, i, txscript.StandardVerifyFlags,
			nil, hashCache, prevOut.Value, s.prevOuts,
		)
		if err == nil {
			err = vm.Execute()
		}
		if err != nil {
			return s.integrityFault(signers, i, err)
		}
	}

	log.InfoS(context.TODO(), "Finalized multisig spend",
		slog.String("txid", tx.TxHash().String()),
		slog.Any("signers", signers))
	log.Tracef("Finalized tx: %v", hdmutils.SpewLogClosure(tx))

	s.metrics.Finalized(true)

	return fn.Some(tx)
}

// integrityFault reports a threshold spend that could not be assembled.
func (s *Session) integrityFault(signers []int, inputIndex int,
	err error) fn.Option[*wire.MsgTx] {

	log.CriticalS(context.TODO(), "Multisig integrity fault",
		fmt.Errorf("%w: %w", ErrFinalizeFailed, err),
		slog.Int("input", inputIndex),
		slog.Any("signers", signers),
		hdmutils.LogScript("redeem_script", s.redeemScript))

	s.metrics.Finalized(false)

	return fn.None[*wire.MsgTx]()
}
