package mnemonic

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/tyler-smith/go-bip39/wordlists"
	"golang.org/x/text/unicode/norm"
)

// WordListSize is the number of words in every list. Each word encodes 11
// bits.
const WordListSize = 2048

// Names of the built-in word lists.
const (
	English            = "english"
	Japanese           = "japanese"
	Korean             = "korean"
	Spanish            = "spanish"
	ChineseSimplified  = "chinese_simplified"
	ChineseTraditional = "chinese_traditional"
	French             = "french"
	Italian            = "italian"
	Czech              = "czech"
)

// WordList is an ordered list of 2048 words with a reverse index. Lookups
// are done on the NFKD form of a word, so composed and decomposed input
// both match.
type WordList struct {
	language string
	words    []string
	index    map[string]int
}

// NewWordList builds a word list from exactly WordListSize distinct words.
func NewWordList(language string, words []string) (*WordList, error) {
	if len(words) != WordListSize {
		return nil, fmt.Errorf("%w: %s has %d", ErrWordListLength,
			language, len(words))
	}

	w := &WordList{
		language: language,
		words:    make([]string, WordListSize),
		index:    make(map[string]int, WordListSize),
	}
	for i, word := range words {
		word = norm.NFKD.String(strings.TrimSpace(word))
		if word == "" {
			return nil, fmt.Errorf("%w: %s has an empty entry at "+
				"%d", ErrWordListLength, language, i)
		}
		if _, dup := w.index[word]; dup {
			return nil, fmt.Errorf("%w: %s repeats %q",
				ErrWordListLength, language, word)
		}

		w.words[i] = word
		w.index[word] = i
	}

	return w, nil
}

// LoadWordList reads a flat text word list, one word per line. Blank lines
// are skipped; anything other than exactly WordListSize words is rejected.
func LoadWordList(language string, r io.Reader) (*WordList, error) {
	var words []string

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		words = append(words, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read %s word list: %w", language, err)
	}

	return NewWordList(language, words)
}

// Language returns the name of the list.
func (w *WordList) Language() string {
	return w.language
}

// Word returns the word at index i.
func (w *WordList) Word(i int) string {
	return w.words[i]
}

// Index returns the position of word in the list.
func (w *WordList) Index(word string) (int, bool) {
	idx, ok := w.index[norm.NFKD.String(word)]

	return idx, ok
}

// builtinWordLists parses the lists shipped with go-bip39 once, in the order
// codecs scan them.
var builtinWordLists = sync.OnceValues(func() ([]*WordList, error) {
	sources := []struct {
		language string
		words    []string
	}{
		{English, wordlists.English},
		{Japanese, wordlists.Japanese},
		{Korean, wordlists.Korean},
		{Spanish, wordlists.Spanish},
		{ChineseSimplified, wordlists.ChineseSimplified},
		{ChineseTraditional, wordlists.ChineseTraditional},
		{French, wordlists.French},
		{Italian, wordlists.Italian},
		{Czech, wordlists.Czech},
	}

	lists := make([]*WordList, 0, len(sources))
	for _, src := range sources {
		list, err := NewWordList(src.language, src.words)
		if err != nil {
			return nil, err
		}
		lists = append(lists, list)
	}

	return lists, nil
})

// BuiltinWordLists returns the standard BIP39 word lists, English first.
func BuiltinWordLists() ([]*WordList, error) {
	lists, err := builtinWordLists()
	if err != nil {
		return nil, err
	}

	return append([]*WordList(nil), lists...), nil
}
