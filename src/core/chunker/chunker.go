package chunker

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"unicode"
)

// Default chunking parameters, chosen to keep a chunk within a single
// embedding call while preserving enough surrounding context for retrieval.
const (
	DefaultWindow  = 500
	DefaultOverlap = 100
)

// Piece is a single fragment of an article's content. Ordinal defines the
// display order of pieces belonging to the same article.
type Piece struct {
	Ordinal int
	Text    string
}

// Chunk splits text into overlapping pieces of at most window runes, with
// consecutive pieces sharing overlap runes. The split is deterministic: the
// same (text, window, overlap) always yields the same pieces.
//
// Pieces start at fixed stride positions (window - overlap), so for
// len(text) > window the piece count equals ceil((len-overlap)/(window-overlap)).
// Text no longer than window yields exactly one piece. A trailing fragment
// shorter than the stride is still emitted rather than dropped.
//
// A piece boundary prefers the last whitespace inside the overlap region of
// the following piece; the trimmed tail is always re-emitted at the start of
// that following piece, so no text is lost.
func Chunk(text string, window, overlap int) ([]Piece, error) {
	if window <= 0 {
		return nil, fmt.Errorf("window must be positive, got %d", window)
	}
	if overlap < 0 || overlap >= window {
		return nil, fmt.Errorf("overlap must be in [0, window), got overlap=%d window=%d", overlap, window)
	}

	runes := []rune(text)
	if len(runes) <= window {
		return []Piece{{Ordinal: 0, Text: text}}, nil
	}

	stride := window - overlap
	var pieces []Piece
	start := 0
	for start+window < len(runes) {
		end := start + window
		// Prefer a whitespace boundary, but never move the cut before the
		// start of the next piece: the dropped tail must stay covered.
		cut := end
		for j := end; j > start+stride; j-- {
			if unicode.IsSpace(runes[j-1]) {
				cut = j
				break
			}
		}
		pieces = append(pieces, Piece{Ordinal: len(pieces), Text: string(runes[start:cut])})
		start += stride
	}
	pieces = append(pieces, Piece{Ordinal: len(pieces), Text: string(runes[start:])})

	return pieces, nil
}

// Hash returns the content hash of a piece's text. Ingestion compares it
// against the stored value to decide whether a chunk needs re-embedding.
func Hash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
