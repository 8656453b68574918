package mnemonic

import (
	"crypto/sha256"
	"crypto/sha512"
	"fmt"
	"strings"
	"sync"

	"github.com/hdmwallet/hdmcore/keychain"
	"github.com/tyler-smith/go-bip39"
	"golang.org/x/crypto/pbkdf2"
	"golang.org/x/text/unicode/norm"
)

const (
	// bitsPerWord is the number of entropy and checksum bits each word
	// carries.
	bitsPerWord = 11

	// seedIterations is the PBKDF2 round count for seed derivation.
	seedIterations = 2048

	// SeedLen is the length of a derived seed in bytes.
	SeedLen = 64
)

// Codec converts between entropy, word sequences and seeds. It holds the
// known word lists in scan order and the currently active one. When a word
// sequence contains a word the active list lacks, the codec adopts the first
// list, in scan order, that has it. A word present in several lists resolves
// to the earliest of them.
type Codec struct {
	mu     sync.RWMutex
	lists  []*WordList
	active *WordList
}

// NewCodec creates a codec over the given lists, the first one active. With
// no lists the built-in BIP39 lists are used.
func NewCodec(lists ...*WordList) (*Codec, error) {
	if len(lists) == 0 {
		builtin, err := BuiltinWordLists()
		if err != nil {
			return nil, err
		}
		lists = builtin
	}

	return &Codec{
		lists:  lists,
		active: lists[0],
	}, nil
}

// Active returns the list words are currently encoded with.
func (c *Codec) Active() *WordList {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.active
}

// SetLanguage makes the named list active.
func (c *Codec) SetLanguage(language string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, list := range c.lists {
		if list.Language() == language {
			c.active = list
			return nil
		}
	}

	return fmt.Errorf("%w: %q", ErrUnknownLanguage, language)
}

// Languages returns the names of the known lists in scan order.
func (c *Codec) Languages() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	names := make([]string, len(c.lists))
	for i, list := range c.lists {
		names[i] = list.Language()
	}

	return names
}

// getBit returns bit i of b, most significant bit first.
func getBit(b []byte, i int) bool {
	return b[i/8]&(0x80>>(i%8)) != 0
}

// setBit sets bit i of b, most significant bit first.
func setBit(b []byte, i int) {
	b[i/8] |= 0x80 >> (i % 8)
}

// EntropyToWords encodes entropy with the active list. The entropy bits are
// followed by the first len(entropy)*8/32 bits of its SHA256 and the result
// is split into 11-bit word indices.
func (c *Codec) EntropyToWords(entropy []byte) ([]string, error) {
	if len(entropy) == 0 || len(entropy)%4 != 0 {
		return nil, ErrEntropyLength
	}

	list := c.Active()

	entBits := len(entropy) * 8
	checksum := sha256.Sum256(entropy)
	defer keychain.Zero32(&checksum)

	numWords := (entBits + entBits/32) / bitsPerWord
	words := make([]string, numWords)
	for w := range words {
		idx := 0
		for j := 0; j < bitsPerWord; j++ {
			pos := w*bitsPerWord + j

			var bit bool
			if pos < entBits {
				bit = getBit(entropy, pos)
			} else {
				bit = getBit(checksum[:], pos-entBits)
			}

			idx <<= 1
			if bit {
				idx |= 1
			}
		}

		words[w] = list.Word(idx)
	}

	return words, nil
}

// lookup resolves a word against current, falling back to the first list in
// scan order that contains it. It returns the list the word resolved in.
func (c *Codec) lookup(current *WordList, word string) (int, *WordList,
	error) {

	if idx, ok := current.Index(word); ok {
		return idx, current, nil
	}

	for _, list := range c.lists {
		if idx, ok := list.Index(word); ok {
			return idx, list, nil
		}
	}

	return 0, current, &WordError{Word: word}
}

// adopt makes list active, unless it already is.
func (c *Codec) adopt(list *WordList) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.active == list {
		return
	}

	log.Debugf("Switching word list from %v to %v", c.active.Language(),
		list.Language())
	c.active = list
}

// WordsToEntropy decodes a word sequence and verifies its checksum. A list
// the sequence switched to only becomes active once the whole sequence
// decodes; a rejected sequence leaves the codec as it was.
func (c *Codec) WordsToEntropy(words []string) ([]byte, error) {
	if len(words) == 0 || len(words)%3 != 0 {
		return nil, &LengthError{Count: len(words)}
	}

	list := c.Active()
	indices := make([]int, len(words))
	for i, word := range words {
		idx, found, err := c.lookup(list, word)
		if err != nil {
			return nil, err
		}
		indices[i] = idx
		list = found
	}

	totalBits := len(words) * bitsPerWord
	csBits := len(words) / 3
	entBits := totalBits - csBits

	entropy := make([]byte, entBits/8)
	carried := make([]byte, (csBits+7)/8)
	defer keychain.Zero(carried)

	for w, idx := range indices {
		for j := 0; j < bitsPerWord; j++ {
			if idx&(1<<(bitsPerWord-1-j)) == 0 {
				continue
			}

			pos := w*bitsPerWord + j
			if pos < entBits {
				setBit(entropy, pos)
			} else {
				setBit(carried, pos-entBits)
			}
		}
	}

	checksum := sha256.Sum256(entropy)
	defer keychain.Zero32(&checksum)

	for i := 0; i < csBits; i++ {
		if getBit(checksum[:], i) != getBit(carried, i) {
			keychain.Zero(entropy)
			return nil, ErrChecksum
		}
	}

	c.adopt(list)

	return entropy, nil
}

// Check verifies a word sequence without returning its entropy.
func (c *Codec) Check(words []string) error {
	entropy, err := c.WordsToEntropy(words)
	keychain.Zero(entropy)

	return err
}

// NewMnemonic draws bitSize bits of fresh entropy and encodes them with the
// active list. bitSize must be a multiple of 32 between 128 and 256.
func (c *Codec) NewMnemonic(bitSize int) ([]string, error) {
	entropy, err := NewEntropy(bitSize)
	if err != nil {
		return nil, err
	}
	defer keychain.Zero(entropy)

	return c.EntropyToWords(entropy)
}

// NewEntropy returns bitSize bits of random entropy suitable for a new
// mnemonic. bitSize must be a multiple of 32 between 128 and 256.
func NewEntropy(bitSize int) ([]byte, error) {
	entropy, err := bip39.NewEntropy(bitSize)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEntropyLength, err)
	}

	return entropy, nil
}

// ToSeed derives the 64-byte seed of a word sequence:
// PBKDF2-HMAC-SHA512(NFKD(words), "mnemonic" || NFKD(passphrase), 2048).
// The result depends only on the words as text, not on which list they came
// from, and the words are not validated. The caller owns the seed and should
// wipe it.
func ToSeed(words []string, passphrase []byte) []byte {
	sentence := norm.NFKD.Bytes([]byte(strings.Join(words, " ")))
	defer keychain.Zero(sentence)

	salt := append([]byte("mnemonic"), norm.NFKD.Bytes(passphrase)...)
	defer keychain.Zero(salt)

	return pbkdf2.Key(sentence, salt, seedIterations, SeedLen, sha512.New)
}
