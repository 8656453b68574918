package bip38

import (
	"context"
	"encoding/hex"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/scrypt"
	"pgregory.net/rapid"
)

// TestStretchVectors checks Stretch against the scrypt paper's vectors.
func TestStretchVectors(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name     string
		password string
		salt     string
		params   Params
		want     string
	}{
		{
			name:   "empty",
			params: Params{N: 16, R: 1, P: 1, KeyLen: 64},
			want: "77d6576238657b203b19ca42c18a0497f16b4844e3074a" +
				"e8dfdffa3fede21442fcd0069ded0948f8326a753a0fc8" +
				"1f17e8d3e0fb2e0d3628cf35e20c38d18906",
		},
		{
			name:     "password",
			password: "password",
			salt:     "NaCl",
			params:   Params{N: 1024, R: 8, P: 16, KeyLen: 64},
			want: "fdbabe1c9d3472007856e7190d01e9fe7c6ad7cbc82378" +
				"30e77376634b3731622eaf30d92e22a3886ff109279d98" +
				"30dac727afb94a83ee6d8360cbdfa2cc0640",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			progress := NewProgress()
			key, err := Stretch(
				context.Background(), []byte(tc.password),
				[]byte(tc.salt), tc.params, progress,
			)
			require.NoError(t, err)
			require.Equal(t, tc.want, hex.EncodeToString(key))
			require.Equal(t, 1.0, progress.Fraction())
		})
	}
}

// TestStretchMatchesScrypt checks Stretch against x/crypto/scrypt for random
// inputs and cheap parameters.
func TestStretchMatchesScrypt(t *testing.T) {
	t.Parallel()

	rapid.Check(t, func(t *rapid.T) {
		password := rapid.SliceOfN(rapid.Byte(), 0, 40).Draw(t, "pw")
		salt := rapid.SliceOfN(rapid.Byte(), 0, 40).Draw(t, "salt")
		params := Params{
			N:      1 << rapid.IntRange(1, 6).Draw(t, "logN"),
			R:      rapid.IntRange(1, 4).Draw(t, "r"),
			P:      rapid.IntRange(1, 5).Draw(t, "p"),
			KeyLen: rapid.IntRange(1, 80).Draw(t, "keyLen"),
		}

		want, err := scrypt.Key(
			password, salt, params.N, params.R, params.P,
			params.KeyLen,
		)
		require.NoError(t, err)

		got, err := Stretch(
			context.Background(), password, salt, params, nil,
		)
		require.NoError(t, err)
		require.Equal(t, want, got)
	})
}

// TestStretchInvalidParams checks parameter validation.
func TestStretchInvalidParams(t *testing.T) {
	t.Parallel()

	for _, params := range []Params{
		{N: 1, R: 1, P: 1, KeyLen: 32},
		{N: 1000, R: 1, P: 1, KeyLen: 32},
		{N: 16, R: 0, P: 1, KeyLen: 32},
		{N: 16, R: 1, P: 0, KeyLen: 32},
		{N: 16, R: 1, P: 1, KeyLen: 0},
	} {
		_, err := Stretch(context.Background(), nil, nil, params, nil)
		require.ErrorIs(t, err, ErrInvalidParams, "%+v", params)
	}
}

// TestStretchProgress checks that the reported fraction never decreases
// while a stretch runs and ends at one.
func TestStretchProgress(t *testing.T) {
	t.Parallel()

	var (
		progress = NewProgress()
		params   = Params{N: 4096, R: 4, P: 4, KeyLen: 32}
		done     = make(chan struct{})
		samples  []float64
		wg       sync.WaitGroup
	)

	wg.Add(1)
	go func() {
		defer wg.Done()

		for {
			samples = append(samples, progress.Fraction())

			select {
			case <-done:
				return
			default:
				runtime.Gosched()
			}
		}
	}()

	_, err := Stretch(
		context.Background(), []byte("pw"), []byte("salt"), params,
		progress,
	)
	close(done)
	wg.Wait()

	require.NoError(t, err)
	require.Equal(t, 1.0, progress.Fraction())

	for i := 1; i < len(samples); i++ {
		require.GreaterOrEqual(t, samples[i], samples[i-1])
		require.LessOrEqual(t, samples[i], 1.0)
	}
}

// TestStretchCancelled checks that a done context stops a stretch with
// ErrCancelled and no output, both before it starts and while it runs.
func TestStretchCancelled(t *testing.T) {
	t.Parallel()

	params := Params{N: 1 << 15, R: 8, P: 1, KeyLen: 64}

	t.Run("before start", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		progress := NewProgress()
		key, err := Stretch(ctx, []byte("pw"), nil, params, progress)
		require.ErrorIs(t, err, ErrCancelled)
		require.ErrorIs(t, err, context.Canceled)
		require.Nil(t, key)
		require.Zero(t, progress.Fraction())
	})

	t.Run("mid stretch", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		progress := NewProgress()
		go func() {
			for progress.Fraction() < 0.05 {
				time.Sleep(time.Millisecond)
			}
			cancel()
		}()

		key, err := Stretch(ctx, []byte("pw"), nil, params, progress)
		require.ErrorIs(t, err, ErrCancelled)
		require.Nil(t, key)
		require.Less(t, progress.Fraction(), 1.0)
	})

	t.Run("deadline", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithTimeout(
			context.Background(), time.Millisecond,
		)
		defer cancel()

		_, err := Stretch(ctx, []byte("pw"), nil, params, nil)
		require.ErrorIs(t, err, ErrCancelled)
		require.ErrorIs(t, err, context.DeadlineExceeded)
	})
}

// TestNilProgress checks that a nil progress is inert.
func TestNilProgress(t *testing.T) {
	t.Parallel()

	var p *Progress
	p.begin(10)
	p.advance(3)
	p.finish()
	require.Zero(t, p.Fraction())
}
