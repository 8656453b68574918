package hdkey

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/hdmwallet/hdmcore/keychain"
)

// HardenedKeyStart is the index at which hardened child keys start.
const HardenedKeyStart = keychain.HardenedKeyStart

// ChildIndex is a single derivation step. Indices at or above
// HardenedKeyStart select hardened children.
type ChildIndex uint32

// Hardened returns the hardened form of index i.
func Hardened(i uint32) ChildIndex {
	return ChildIndex(i | HardenedKeyStart)
}

// IsHardened reports whether the index selects a hardened child.
func (c ChildIndex) IsHardened() bool {
	return uint32(c) >= HardenedKeyStart
}

// String renders the index with a trailing ' when hardened.
func (c ChildIndex) String() string {
	if c.IsHardened() {
		return strconv.FormatUint(uint64(uint32(c)-HardenedKeyStart), 10) +
			"'"
	}

	return strconv.FormatUint(uint64(c), 10)
}

// Path is a sequence of child indices relative to some key, usually the
// master.
type Path []ChildIndex

// PathFromUint32 converts raw indices, as produced by
// keychain.KeyLocator.Path, into a Path.
func PathFromUint32(indices []uint32) Path {
	p := make(Path, len(indices))
	for i, idx := range indices {
		p[i] = ChildIndex(idx)
	}

	return p
}

// String renders the path as m/44'/0'/0'/0/1.
func (p Path) String() string {
	var b strings.Builder
	b.WriteString("m")
	for _, c := range p {
		b.WriteByte('/')
		b.WriteString(c.String())
	}

	return b.String()
}

// Child returns a new path with c appended. The receiver is not modified.
func (p Path) Child(c ChildIndex) Path {
	child := make(Path, len(p), len(p)+1)
	copy(child, p)

	return append(child, c)
}

// ParsePath parses m/44'/0'/0'/0/1 style paths. The leading m is optional and
// hardened steps may be marked with ', h or H.
func ParsePath(s string) (Path, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidPath)
	}

	parts := strings.Split(s, "/")
	if parts[0] == "m" || parts[0] == "M" {
		parts = parts[1:]
	}

	path := make(Path, 0, len(parts))
	for _, part := range parts {
		hardened := false
		switch {
		case strings.HasSuffix(part, "'"),
			strings.HasSuffix(part, "h"),
			strings.HasSuffix(part, "H"):

			hardened = true
			part = part[:len(part)-1]
		}

		idx, err := strconv.ParseUint(part, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("%w: segment %q: %v",
				ErrInvalidPath, part, err)
		}
		if uint32(idx) >= HardenedKeyStart {
			return nil, fmt.Errorf("%w: segment %q out of range",
				ErrInvalidPath, part)
		}

		if hardened {
			path = append(path, Hardened(uint32(idx)))
		} else {
			path = append(path, ChildIndex(idx))
		}
	}

	return path, nil
}
