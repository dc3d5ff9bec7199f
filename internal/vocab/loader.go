// Package vocab loads the flat domain word list that drives constraint compilation.
package vocab

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	// ErrVocabularyNotFound is returned when the vocabulary source does not exist
	ErrVocabularyNotFound = errors.New("vocabulary not found")

	// ErrVocabularyEmpty is returned when no terms remain after trimming blank lines
	ErrVocabularyEmpty = errors.New("vocabulary is empty")
)

// Option adjusts how a vocabulary is read
type Option func(*options)

type options struct {
	skipComments bool
}

// SkipComments drops lines whose first non-blank character is '#'. Without it
// such lines are ordinary terms.
func SkipComments() Option {
	return func(o *options) { o.skipComments = true }
}

// Load reads the vocabulary file at path and returns its terms in file order,
// with duplicates removed (first occurrence kept).
func Load(path string, opts ...Option) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrVocabularyNotFound, path)
		}
		return nil, fmt.Errorf("failed to open vocabulary %s: %w", path, err)
	}
	defer f.Close()

	terms, err := Read(f, opts...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return terms, nil
}

// Read parses a vocabulary from r. A UTF-8 or UTF-16 byte order mark is honoured;
// input without one is read as UTF-8.
func Read(r io.Reader, opts ...Option) ([]string, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	decoded := transform.NewReader(r, unicode.BOMOverride(unicode.UTF8.NewDecoder()))

	var lines []string
	scanner := bufio.NewScanner(decoded)
	for scanner.Scan() {
		line := scanner.Text()
		if o.skipComments && strings.HasPrefix(strings.TrimSpace(line), "#") {
			continue
		}
		lines = append(lines, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read vocabulary: %w", err)
	}

	terms := Normalize(lines)
	if len(terms) == 0 {
		return nil, ErrVocabularyEmpty
	}
	return terms, nil
}

// Normalize trims, NFC-normalises and deduplicates raw lines, preserving order.
func Normalize(lines []string) []string {
	seen := make(map[string]struct{}, len(lines))
	terms := make([]string, 0, len(lines))
	for _, line := range lines {
		term := norm.NFC.String(strings.TrimSpace(line))
		if term == "" {
			continue
		}
		if _, ok := seen[term]; ok {
			continue
		}
		seen[term] = struct{}{}
		terms = append(terms, term)
	}
	return terms
}
