package bip38

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/binary"
	"errors"
	"fmt"
	"runtime"
	"sync/atomic"

	"github.com/hdmwallet/hdmcore/keychain"
	"golang.org/x/crypto/pbkdf2"
	"golang.org/x/crypto/salsa20/salsa"
	"golang.org/x/sync/errgroup"
)

// maxParallelLanes caps how many ROMix lanes run at once. Every lane holds
// 128*r*N bytes, so the default parameters cost 16 MiB per lane.
const maxParallelLanes = 4

var (
	// ErrCancelled is returned when the context of a stretch is done
	// before the stretch completes. No partial output is ever returned
	// alongside it.
	ErrCancelled = errors.New("key stretch cancelled")

	// ErrInvalidParams is returned for scrypt parameters that are out of
	// range.
	ErrInvalidParams = errors.New("invalid scrypt parameters")
)

// Params are the scrypt cost parameters.
type Params struct {
	// N is the CPU/memory cost. It must be a power of two greater than 1.
	N int

	// R is the block size factor.
	R int

	// P is the number of independent lanes.
	P int

	// KeyLen is the number of output bytes.
	KeyLen int
}

var (
	// keyParams stretch the passphrase of a directly encrypted key.
	keyParams = Params{N: 16384, R: 8, P: 8, KeyLen: 64}

	// passFactorParams stretch the passphrase into the pass factor of
	// an EC-multiplied key.
	passFactorParams = Params{N: 16384, R: 8, P: 8, KeyLen: 32}

	// passPointParams stretch the pass point into the key that encrypts
	// seedb.
	passPointParams = Params{N: 1024, R: 1, P: 1, KeyLen: 64}
)

// validate checks that the parameters are usable.
func (p Params) validate() error {
	switch {
	case p.N <= 1 || p.N&(p.N-1) != 0:
		return fmt.Errorf("%w: N=%d must be a power of two above 1",
			ErrInvalidParams, p.N)

	case p.N > 1<<31:
		return fmt.Errorf("%w: N=%d too large", ErrInvalidParams, p.N)

	case p.R <= 0 || p.P <= 0:
		return fmt.Errorf("%w: r=%d p=%d", ErrInvalidParams, p.R, p.P)

	case uint64(p.R)*uint64(p.P) >= 1<<30:
		return fmt.Errorf("%w: r*p too large", ErrInvalidParams)

	case uint64(p.N)*uint64(p.R) > (1<<62)/128:
		return fmt.Errorf("%w: N*r too large", ErrInvalidParams)

	case p.KeyLen <= 0:
		return fmt.Errorf("%w: key length %d", ErrInvalidParams,
			p.KeyLen)
	}

	return nil
}

// units is the number of BlockMix calls a stretch with these parameters
// performs.
func (p Params) units() uint64 {
	return 2 * uint64(p.N) * uint64(p.P)
}

// Progress reports how far a long running operation has come. It is safe to
// read from any goroutine while the operation runs. A Progress tracks a single
// operation. The total amount of work is fixed when the operation starts, so
// the fraction never decreases, even for operations made of several stretches.
//
// A nil *Progress is valid and reports nothing.
type Progress struct {
	done  atomic.Uint64
	total atomic.Uint64
}

// NewProgress returns a progress tracker for a single operation.
func NewProgress() *Progress {
	return &Progress{}
}

// Fraction returns the completed share of the work in [0, 1].
func (p *Progress) Fraction() float64 {
	if p == nil {
		return 0
	}

	total := p.total.Load()
	if total == 0 {
		return 0
	}

	done := p.done.Load()
	if done >= total {
		return 1
	}

	return float64(done) / float64(total)
}

// begin sets the total amount of work of the operation.
func (p *Progress) begin(total uint64) {
	if p == nil {
		return
	}

	p.done.Store(0)
	p.total.Store(total)
}

// advance records n completed units.
func (p *Progress) advance(n uint64) {
	if p == nil {
		return
	}

	p.done.Add(n)
}

// finish marks the operation complete.
func (p *Progress) finish() {
	if p == nil {
		return
	}

	p.done.Store(p.total.Load())
}

// Stretch runs scrypt over password and salt. The p lanes run concurrently and
// each of them checks ctx after every BlockMix, so a cancelled context stops
// the stretch within a few microseconds of work. On cancellation ErrCancelled
// is returned, wrapped together with the context error.
//
// progress, if not nil, is reset to track this stretch alone.
func Stretch(ctx context.Context, password, salt []byte, params Params,
	progress *Progress) ([]byte, error) {

	if err := params.validate(); err != nil {
		return nil, err
	}

	progress.begin(params.units())

	key, err := stretch(ctx, password, salt, params, progress)
	if err != nil {
		return nil, err
	}
	progress.finish()

	return key, nil
}

// stretch is Stretch without touching the progress total, used by operations
// that chain several stretches under a single total.
func stretch(ctx context.Context, password, salt []byte, params Params,
	progress *Progress) ([]byte, error) {

	if err := params.validate(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCancelled, err)
	}

	blockLen := 128 * params.R
	b := pbkdf2.Key(password, salt, 1, params.P*blockLen, sha256.New)
	defer keychain.Zero(b)

	lanes := min(params.P, runtime.GOMAXPROCS(0), maxParallelLanes)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(lanes)
	for i := 0; i < params.P; i++ {
		lane := b[i*blockLen : (i+1)*blockLen]
		g.Go(func() error {
			return romix(gctx, lane, params.N, params.R, progress)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return pbkdf2.Key(password, b, 1, params.KeyLen, sha256.New), nil
}

// romix replaces the 128*r byte lane b with ROMix(b, n).
func romix(ctx context.Context, b []byte, n, r int,
	progress *Progress) error {

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrCancelled, err)
	}

	blockLen := 128 * r

	v := make([]byte, n*blockLen)
	x := make([]byte, blockLen)
	y := make([]byte, blockLen)
	var t [64]byte
	defer func() {
		keychain.Zero(v)
		keychain.Zero(x)
		keychain.Zero(y)
		keychain.Zero(t[:])
	}()

	// step is called after every BlockMix.
	step := func() error {
		progress.advance(1)

		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %w", ErrCancelled, ctx.Err())
		default:
			return nil
		}
	}

	copy(x, b)
	for i := 0; i < n; i++ {
		copy(v[i*blockLen:], x)
		blockMix(x, y, &t, r)
		x, y = y, x

		if err := step(); err != nil {
			return err
		}
	}

	mask := uint32(n - 1)
	for i := 0; i < n; i++ {
		j := int(binary.LittleEndian.Uint32(x[blockLen-64:]) & mask)
		subtle.XORBytes(x, x, v[j*blockLen:(j+1)*blockLen])
		blockMix(x, y, &t, r)
		x, y = y, x

		if err := step(); err != nil {
			return err
		}
	}

	copy(b, x)

	return nil
}

// blockMix writes BlockMix(in) to out using t as scratch. Even numbered
// outputs land in the first half of out and odd numbered ones in the second.
func blockMix(in, out []byte, t *[64]byte, r int) {
	copy(t[:], in[(2*r-1)*64:])

	for i := 0; i < 2*r; i++ {
		subtle.XORBytes(t[:], t[:], in[i*64:(i+1)*64])
		salsa.Core208(t, t)

		dst := (i/2 + (i%2)*r) * 64
		copy(out[dst:dst+64], t[:])
	}
}
