// Package chunker splits document text into overlapping, bounded-length
// segments for embedding. Cuts prefer paragraph breaks, then line breaks,
// then sentence ends, then word gaps, and fall back to a hard cut.
//
// Lengths are counted in runes so multi-byte text is never split mid-character.
package chunker

import "strings"

// DefaultChunkSize is the default maximum number of characters per chunk.
const DefaultChunkSize = 1000

// DefaultOverlap is the default number of characters shared by neighbours.
const DefaultOverlap = 100

// separators lists boundary candidates from most to least preferred. A cut
// is placed after the separator so it stays with the preceding chunk.
var separators = [][]string{
	{"\n\n"},
	{"\n"},
	{". ", "! ", "? "},
	{" ", "\t"},
}

// Splitter is a configured chunker. It is safe for concurrent use.
type Splitter struct {
	chunkSize int
	overlap   int
}

// Option configures a Splitter.
type Option func(*Splitter)

// WithChunkSize sets the maximum chunk length in characters.
func WithChunkSize(size int) Option {
	return func(s *Splitter) {
		if size > 0 {
			s.chunkSize = size
		}
	}
}

// WithOverlap sets the number of characters shared by consecutive chunks.
func WithOverlap(overlap int) Option {
	return func(s *Splitter) {
		s.overlap = max(overlap, 0)
	}
}

// New creates a Splitter with the given options.
func New(opts ...Option) *Splitter {
	s := &Splitter{
		chunkSize: DefaultChunkSize,
		overlap:   DefaultOverlap,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.overlap >= s.chunkSize {
		s.overlap = s.chunkSize / 10
	}
	return s
}

// ChunkSize returns the resolved maximum chunk length.
func (s *Splitter) ChunkSize() int { return s.chunkSize }

// Overlap returns the resolved overlap.
func (s *Splitter) Overlap() int { return s.overlap }

// Split splits text with the Splitter's settings. Empty or whitespace-only
// text yields no chunks.
func (s *Splitter) Split(text string) []string {
	return split([]rune(text), s.chunkSize, s.overlap)
}

// Split splits text into chunks of at most chunkSize characters where every
// chunk after the first starts with the last overlap characters of its
// predecessor. Invalid parameters are clamped as in New.
func Split(text string, chunkSize, overlap int) []string {
	return New(WithChunkSize(chunkSize), WithOverlap(overlap)).Split(text)
}

func split(r []rune, size, overlap int) []string {
	if strings.TrimSpace(string(r)) == "" {
		return nil
	}
	if len(r) <= size {
		return []string{string(r)}
	}

	// A cut must leave more than overlap characters in the chunk so the
	// next window always advances.
	minLen := max(size/2, overlap+1)

	var chunks []string
	start := 0
	for {
		end := start + size
		if end >= len(r) {
			chunks = append(chunks, string(r[start:]))
			return chunks
		}
		cut := boundary(r, start+minLen, end)
		chunks = append(chunks, string(r[start:cut]))
		start = cut - overlap
	}
}

// boundary returns the best cut position in [lo, hi]: the rightmost position
// that follows the most preferred separator present, or hi for a hard cut.
func boundary(r []rune, lo, hi int) int {
	for _, level := range separators {
		best := -1
		for _, sep := range level {
			if p := lastEndOf(r, sep, lo, hi); p > best {
				best = p
			}
		}
		if best >= 0 {
			return best
		}
	}
	return hi
}

// lastEndOf returns the largest p in [lo, hi] with r[p-len(sep):p] == sep,
// or -1.
func lastEndOf(r []rune, sep string, lo, hi int) int {
	s := []rune(sep)
	for p := hi; p >= lo; p-- {
		if p < len(s) {
			break
		}
		if hasSuffixAt(r, s, p) {
			return p
		}
	}
	return -1
}

func hasSuffixAt(r, s []rune, p int) bool {
	off := p - len(s)
	for i, c := range s {
		if r[off+i] != c {
			return false
		}
	}
	return true
}
