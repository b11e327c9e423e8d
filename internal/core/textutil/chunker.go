package textutil

import (
	"strings"

	"studyvault/internal/models"
)

// Candidate is one chunk produced by the splitter, already normalized.
// PageNumber carries the source fragment's page (0 = unknown).
type Candidate struct {
	Text       string
	PageNumber int
}

// Splitter cuts text into overlapping fixed-size windows, preferring natural
// boundaries (paragraph, then newline, then sentence, then word) over
// mid-word cuts.
type Splitter struct {
	ChunkSize int // target window in runes
	Overlap   int // runes carried over between consecutive windows
}

// NewSplitter applies the default 1000/200 window when given non-positive values.
func NewSplitter(chunkSize, overlap int) Splitter {
	if chunkSize <= 0 {
		chunkSize = 1000
	}
	if overlap < 0 || overlap >= chunkSize {
		overlap = 0
	}
	return Splitter{ChunkSize: chunkSize, Overlap: overlap}
}

// boundaries in preference order; scanning falls through to a hard cut.
var boundaries = []string{"\n\n", "\n", ". ", " "}

// SplitFragments splits every fragment and drops candidates that normalize to
// an empty string, so the caller can assign contiguous chunk indexes to the
// survivors.
func (s Splitter) SplitFragments(frags []models.PageFragment) []Candidate {
	out := make([]Candidate, 0, len(frags))
	for _, f := range frags {
		for _, part := range s.Split(f.Text) {
			norm := NormalizeText(part)
			if norm == "" {
				continue
			}
			out = append(out, Candidate{Text: norm, PageNumber: f.PageNumber})
		}
	}
	return out
}

// Split windows one text. Each window is at most ChunkSize runes; consecutive
// windows share roughly Overlap runes of tail context.
func (s Splitter) Split(text string) []string {
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}
	if len(runes) <= s.ChunkSize {
		return []string{text}
	}

	out := make([]string, 0, len(runes)/s.ChunkSize+1)
	start := 0
	for start < len(runes) {
		end := start + s.ChunkSize
		if end >= len(runes) {
			out = append(out, string(runes[start:]))
			break
		}
		cut := s.boundaryCut(runes, start, end)
		out = append(out, string(runes[start:cut]))

		next := cut - s.Overlap
		if next <= start {
			// Overlap would stall the walk; step past the cut instead.
			next = cut
		}
		start = next
	}
	return out
}

// boundaryCut searches backwards from end for the best natural boundary in
// the second half of the window. A hard cut at end is the last resort.
func (s Splitter) boundaryCut(runes []rune, start, end int) int {
	window := string(runes[start:end])
	minCut := s.ChunkSize / 2
	for _, sep := range boundaries {
		idx := strings.LastIndex(window, sep)
		if idx < 0 {
			continue
		}
		// Index in runes, not bytes.
		cut := len([]rune(window[:idx])) + len([]rune(sep))
		if cut >= minCut {
			return start + cut
		}
	}
	return end
}
