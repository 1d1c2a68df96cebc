// Package chunk splits page records into overlapping text segments sized for
// embedding. Segment ids are run-local counters: re-ingesting a document
// overwrites index entries by position, not by content identity.
package chunk

import (
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/planify-ai/ragserver/internal/document"
)

// Separators tried in priority order when choosing a split boundary.
var separators = []string{"\n\n", "\n", ". ", " "}

// Segment is a bounded span of page text with inherited page metadata.
type Segment struct {
	ID        string
	Text      string
	Page      int
	HasImages bool
	Source    string
}

// Chunker produces segments of at most maxSize characters, with overlap
// characters shared between consecutive segments from the same page text.
type Chunker struct {
	maxSize int
	overlap int
	nextID  int
}

// New creates a Chunker. overlap must be smaller than maxSize.
func New(maxSize, overlap int) *Chunker {
	if maxSize <= 0 {
		maxSize = 1000
	}
	if overlap < 0 || overlap >= maxSize {
		overlap = 0
	}
	return &Chunker{maxSize: maxSize, overlap: overlap}
}

// Chunk splits the given pages in order. Ids increase monotonically across
// the whole run, so calling Chunk twice on one Chunker never reuses an id.
func (c *Chunker) Chunk(pages []document.Page) []Segment {
	var segments []Segment
	for _, p := range pages {
		for _, text := range c.split(p.Text) {
			segments = append(segments, Segment{
				ID:        strconv.Itoa(c.nextID),
				Text:      text,
				Page:      p.Number,
				HasImages: p.HasImages,
				Source:    p.Source,
			})
			c.nextID++
		}
	}
	return segments
}

// split cuts text into pieces of at most maxSize characters. Boundaries
// prefer the highest-priority separator present in the window; consecutive
// pieces overlap by c.overlap characters. Sizes count runes, not bytes, so
// the fallback cut never tears a multi-byte character.
func (c *Chunker) split(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	runes := []rune(text)
	if len(runes) <= c.maxSize {
		return []string{text}
	}

	var pieces []string
	start := 0
	for start < len(runes) {
		if len(runes)-start <= c.maxSize {
			pieces = append(pieces, string(runes[start:]))
			break
		}

		end := start + c.maxSize
		if cut := boundary(runes[start:end]); cut > 0 {
			end = start + cut
		}
		pieces = append(pieces, string(runes[start:end]))

		next := end - c.overlap
		if next <= start {
			next = end
		}
		start = next
	}
	return pieces
}

// boundary returns the rune offset just after the last occurrence of the
// first separator found in window, or 0 when no separator is present.
func boundary(window []rune) int {
	s := string(window)
	for _, sep := range separators {
		if i := strings.LastIndex(s, sep); i > 0 {
			return utf8.RuneCountInString(s[:i+len(sep)])
		}
	}
	return 0
}
