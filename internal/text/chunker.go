package text

import (
	"iter"
	"strings"
	"unicode/utf8"
)

// Chunk is a bounded contiguous slice of document text used as a retrieval
// unit. Offsets are byte positions into the normalized document text, so
// Text == document[Start:End] always holds.
type Chunk struct {
	ID    int
	Text  string
	Start int
	End   int
}

// Chunks splits text into size-bounded, overlapping chunks and returns them
// as a lazy sequence in document order. Splitting prefers structural
// boundaries: the latest paragraph break inside the size window, then the
// latest line break, then the latest space, and finally a hard cut when a
// single unit exceeds maxSize. Consecutive chunks overlap by up to overlap
// bytes; coverage is contiguous with no gaps.
//
// Empty input yields an empty sequence. The sequence is restartable: ranging
// over it twice produces identical chunks.
func Chunks(text string, maxSize, overlap int) iter.Seq[Chunk] {
	if maxSize <= 0 {
		maxSize = 1000
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= maxSize {
		overlap = maxSize - 1
	}

	return func(yield func(Chunk) bool) {
		if len(strings.TrimSpace(text)) == 0 {
			return
		}

		id := 0
		start := 0
		for start < len(text) {
			end := cutPoint(text, start, maxSize)
			if !yield(Chunk{ID: id, Text: text[start:end], Start: start, End: end}) {
				return
			}
			id++
			if end == len(text) {
				return
			}
			next := end - overlap
			if next <= start {
				// Chunk shorter than the overlap; skip the backtrack so the
				// walk always advances.
				next = end
			}
			start = next
		}
	}
}

// cutPoint returns the end offset of the chunk starting at start, preferring
// structural boundaries within the window. The returned offset sits just
// after the separator so separators stay attached to the preceding chunk.
func cutPoint(text string, start, maxSize int) int {
	if len(text)-start <= maxSize {
		return len(text)
	}

	window := text[start : start+maxSize]
	for _, sep := range []string{"\n\n", "\n", " "} {
		if i := strings.LastIndex(window, sep); i > 0 {
			return start + i + len(sep)
		}
	}
	// No boundary in the window, hard cut on a rune boundary.
	cut := start + maxSize
	for cut > start+1 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return cut
}
