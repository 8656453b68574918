package keychain

import (
	"runtime"
	"sync"
)

// Zero overwrites b with zeroes. The write is kept alive past the last use of
// the buffer so the compiler cannot drop it as a dead store.
func Zero(b []byte) {
	clear(b)
	runtime.KeepAlive(b)
}

// Zero32 overwrites a fixed 32-byte array with zeroes.
func Zero32(b *[32]byte) {
	Zero(b[:])
}

// noCopy may be embedded into structs which must not be copied after first
// use. go vet's copylocks check flags any copy of a value containing it.
type noCopy struct{}

// Lock is a no-op used by the copylocks checker.
func (*noCopy) Lock() {}

// Unlock is a no-op used by the copylocks checker.
func (*noCopy) Unlock() {}

// SecretBytes owns a buffer of secret material. The buffer is wiped by Wipe,
// and as a backstop by a finalizer should the owner forget. A SecretBytes
// must not be copied; pass it by pointer.
type SecretBytes struct {
	_ noCopy

	mu  sync.Mutex
	buf []byte
}

// NewSecretBytes copies src into a new SecretBytes. The caller remains
// responsible for wiping src.
func NewSecretBytes(src []byte) *SecretBytes {
	s := &SecretBytes{buf: make([]byte, len(src))}
	copy(s.buf, src)

	runtime.SetFinalizer(s, (*SecretBytes).Wipe)

	return s
}

// Bytes returns the underlying buffer. The slice aliases the secret and is
// zeroed in place by Wipe, so callers must not retain it past the owner's
// lifetime.
func (s *SecretBytes) Bytes() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.buf
}

// Len returns the length of the secret, which is zero once wiped.
func (s *SecretBytes) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.buf)
}

// Wipe zeroes the secret and releases the buffer. It is safe to call more
// than once.
func (s *SecretBytes) Wipe() {
	s.mu.Lock()
	defer s.mu.Unlock()

	Zero(s.buf)
	s.buf = nil
}
