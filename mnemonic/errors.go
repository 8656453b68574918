package mnemonic

import (
	"errors"
	"fmt"
)

var (
	// ErrEntropyLength is returned when entropy is empty or its length is
	// not a multiple of four bytes.
	ErrEntropyLength = errors.New("entropy length must be a positive " +
		"multiple of 4 bytes")

	// ErrChecksum is returned when the checksum bits carried by the last
	// word do not match the entropy.
	ErrChecksum = errors.New("mnemonic checksum mismatch")

	// ErrWordListLength is returned when a word list does not hold exactly
	// WordListSize distinct words.
	ErrWordListLength = errors.New("word list must hold exactly 2048 " +
		"distinct words")

	// ErrUnknownLanguage is returned when selecting a language the codec
	// has no list for.
	ErrUnknownLanguage = errors.New("unknown word list language")
)

// LengthError is returned when a word sequence is empty or its length is not
// a multiple of three.
type LengthError struct {
	// Count is the number of words received.
	Count int
}

// Error returns a human readable string describing the error.
func (e *LengthError) Error() string {
	return fmt.Sprintf("mnemonic has %d words, need a positive multiple "+
		"of 3", e.Count)
}

// WordError is returned when a word is in none of the codec's lists.
type WordError struct {
	// Word is the offending word.
	Word string
}

// Error returns a human readable string describing the error.
func (e *WordError) Error() string {
	return fmt.Sprintf("word %q is not in any known word list", e.Word)
}
