package hdm

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/hdmwallet/hdmcore/blobdb"
	"github.com/hdmwallet/hdmcore/chainreg"
	"github.com/hdmwallet/hdmcore/hdkey"
	"github.com/hdmwallet/hdmcore/keychain"
	"github.com/hdmwallet/hdmcore/mnemonic"
	"github.com/hdmwallet/hdmcore/monitoring"
	"github.com/lightningnetwork/lnd/clock"
	"github.com/lightningnetwork/lnd/fn/v2"
)

const (
	// EntropyLen is the amount of entropy a binding splits into its hot
	// and cold halves.
	EntropyLen = 64

	// DefaultAddressBatch is the number of receiving addresses provisioned
	// when the config leaves it unset.
	DefaultAddressBatch = 20

	// MultisigThreshold is the number of the hot, cold and server keys
	// needed to spend from a provisioned address.
	MultisigThreshold = 2

	// secretLen is the length of the server-only secret.
	secretLen = 32

	// challengePrefix starts every signed challenge.
	challengePrefix = "hdm-bind:"
)

var (
	// ErrServiceFailure wraps every error caused by the server.
	ErrServiceFailure = errors.New("binding service failure")

	// ErrBindingRejected is the cause of a service failure when the
	// server refuses the signed challenge.
	ErrBindingRejected = errors.New("server rejected binding")

	// ErrCosignerCount is the cause of a service failure when the server
	// returns the wrong number of keys.
	ErrCosignerCount = errors.New("unexpected number of cosigner keys")
)

// Address is a provisioned 2-of-3 receiving address.
type Address struct {
	// Index is the position of the hot and cold keys on their external
	// branch.
	Index uint32

	// Address is the P2SH address.
	Address *btcutil.AddressScriptHash

	// RedeemScript spends the address with two of the hot, cold and
	// server keys, in that order.
	RedeemScript []byte
}

// Binding is the outcome of a completed binding run.
type Binding struct {
	// HotMnemonic and ColdMnemonic are the backup phrases of the two
	// halves. The binder keeps no copy of the cold phrase.
	HotMnemonic  []string
	ColdMnemonic []string

	// HotAddress identifies the wallet to the server.
	HotAddress string

	// ColdEscrow is the password encrypted cold root key.
	ColdEscrow string

	// ColdAccount is the extended public key of the cold external
	// branch, enough to derive further cold keys after the wipe.
	ColdAccount string

	// Addresses are the provisioned receiving addresses.
	Addresses []Address

	// BoundAt is when the binding completed.
	BoundAt time.Time
}

// Config holds the collaborators of a Binder.
type Config struct {
	// Net selects the chain parameters and BIP44 coin type.
	Net *chainreg.NetParams

	// Service is the cosigning server.
	Service Service

	// Store receives the cold key escrow and the binding record. Both are
	// written only once the server accepted the binding.
	Store blobdb.Store

	// Codec encodes the mnemonic backups. The built-in lists are used
	// when nil.
	Codec *mnemonic.Codec

	// Clock stamps the binding. The system clock is used when nil.
	Clock clock.Clock

	// Metrics, if set, counts transitions and escrow stretches.
	Metrics *monitoring.Metrics

	// Rand is the entropy source. crypto/rand is used when nil.
	Rand io.Reader

	// AddressBatch is the number of addresses to provision.
	AddressBatch int
}

// half is one of the hot or cold halves.
type half struct {
	entropy *keychain.SecretBytes
	words   []string
	ring    *hdkey.Ring
}

// wipe zeroes the half's private material.
func (h *half) wipe() {
	if h == nil {
		return
	}
	if h.entropy != nil {
		h.entropy.Wipe()
	}
	if h.ring != nil {
		h.ring.Wipe()
	}
	h.words = nil
}

// Binder drives the binding protocol. It owns every key it derives, runs the
// effects Transition asks for and feeds their outcome back as events.
type Binder struct {
	cfg Config

	// state mirrors the protocol state for lock-free readers.
	state atomic.Uint32

	mu         sync.Mutex
	hot        *half
	cold       *half
	passphrase *keychain.SecretBytes
	hotAddress string
	escrow     string
	binding    fn.Option[*Binding]
	failure    error

	// escrowStored is set once the escrow is in the store and cleared
	// when a failed run removes it again.
	escrowStored bool
}

// NewBinder creates a binder in the Idle state.
func NewBinder(cfg Config) (*Binder, error) {
	if cfg.Net == nil || cfg.Service == nil || cfg.Store == nil {
		return nil, errors.New("binder needs a network, service and " +
			"store")
	}
	if cfg.Codec == nil {
		codec, err := mnemonic.NewCodec()
		if err != nil {
			return nil, err
		}
		cfg.Codec = codec
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.NewDefaultClock()
	}
	if cfg.Rand == nil {
		cfg.Rand = rand.Reader
	}
	if cfg.AddressBatch == 0 {
		cfg.AddressBatch = DefaultAddressBatch
	}
	if cfg.AddressBatch < 0 {
		return nil, fmt.Errorf("invalid address batch %d",
			cfg.AddressBatch)
	}

	return &Binder{cfg: cfg}, nil
}

// State returns the current protocol state.
func (b *Binder) State() State {
	return State(b.state.Load())
}

// Binding returns the completed binding, if any.
func (b *Binder) Binding() fn.Option[*Binding] {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.binding
}

// Bind runs a full binding from Idle: it generates entropy, derives both
// halves, escrows the cold root under passphrase, binds to the server and
// provisions the receiving addresses. Any server error leaves the binder in
// Error with the cold half wiped, and is returned wrapped in
// ErrServiceFailure. The passphrase is not retained.
func (b *Binder) Bind(ctx context.Context,
	passphrase []byte) (*Binding, error) {

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.State() != StateIdle {
		return nil, fmt.Errorf("%w: bind in state %v",
			ErrInvalidTransition, b.State())
	}

	entropy := make([]byte, EntropyLen)
	defer keychain.Zero(entropy)
	if _, err := io.ReadFull(b.cfg.Rand, entropy); err != nil {
		return nil, fmt.Errorf("unable to read entropy: %w", err)
	}

	b.hot = &half{entropy: keychain.NewSecretBytes(entropy[:32])}
	b.cold = &half{entropy: keychain.NewSecretBytes(entropy[32:])}
	b.passphrase = keychain.NewSecretBytes(passphrase)
	defer b.passphrase.Wipe()

	if err := b.run(ctx, &EntropyCreated{}); err != nil {
		return nil, err
	}

	switch b.State() {
	case StateComplete:
		return b.binding.UnwrapOrErr(errors.New("no binding"))

	case StateError:
		return nil, b.failure

	default:
		return nil, fmt.Errorf("binding stopped in state %v", b.State())
	}
}

// Reset wipes all key material and returns the binder to Idle.
func (b *Binder) Reset() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.run(context.Background(), &Reset{})
}

// run feeds events to Transition until no effect produces another one.
func (b *Binder) run(ctx context.Context, event Event) error {
	queue := []Event{event}
	for len(queue) > 0 {
		event, queue = queue[0], queue[1:]

		from := b.State()
		next, effects, err := Transition(from, event)
		if err != nil {
			return err
		}

		b.state.Store(uint32(next))
		b.cfg.Metrics.BindingTransition(next.String())

		log.DebugS(ctx, "Binding transition",
			slog.String("from", from.String()),
			slog.String("to", next.String()),
			slog.String("event", fmt.Sprintf("%T", event)))

		b.recordFailure(event)

		for _, effect := range effects {
			outcome := b.execute(ctx, effect)
			if outcome.IsNone() {
				continue
			}

			follow := outcome.UnwrapOr(nil)
			if isFailure(follow) {
				// A failure preempts everything still pending.
				queue = []Event{follow}
				break
			}
			queue = append(queue, follow)
		}
	}

	return nil
}

// isFailure reports whether event ends the run in Error.
func isFailure(event Event) bool {
	switch event.(type) {
	case *ServiceFailed, *LocalFailed:
		return true
	}

	return false
}

// recordFailure remembers why a run entered Error.
func (b *Binder) recordFailure(event Event) {
	switch e := event.(type) {
	case *ServiceFailed:
		b.failure = fmt.Errorf("%w: %w", ErrServiceFailure, e.Err)

	case *BindingRejected:
		b.failure = fmt.Errorf("%w: %w", ErrServiceFailure,
			ErrBindingRejected)

	case *LocalFailed:
		b.failure = e.Err

	case *Reset:
		b.failure = nil

	default:
		return
	}

	if b.failure != nil {
		log.ErrorS(context.TODO(), "Binding failed", b.failure,
			slog.String("hot_address", b.hotAddress))
	}
}
