package chunker_test

import (
	"strings"
	"testing"

	"supportkb/src/core/chunker"
)

func TestChunkSinglePiece(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		window  int
		overlap int
	}{
		{
			name:    "shorter than window",
			text:    "short text",
			window:  500,
			overlap: 100,
		},
		{
			name:    "length exactly equal to window",
			text:    strings.Repeat("a", 500),
			window:  500,
			overlap: 100,
		},
		{
			name:    "empty text",
			text:    "",
			window:  500,
			overlap: 100,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pieces, err := chunker.Chunk(tt.text, tt.window, tt.overlap)
			if err != nil {
				t.Fatalf("Chunk() error = %v", err)
			}
			if len(pieces) != 1 {
				t.Fatalf("Chunk() produced %d pieces, want 1", len(pieces))
			}
			if pieces[0].Text != tt.text {
				t.Errorf("single piece does not span whole text: got %q", pieces[0].Text)
			}
			if pieces[0].Ordinal != 0 {
				t.Errorf("single piece ordinal = %d, want 0", pieces[0].Ordinal)
			}
		})
	}
}

func TestChunkCountFormula(t *testing.T) {
	tests := []struct {
		name    string
		textLen int
		window  int
		overlap int
	}{
		{name: "2.5 windows with half-window overlap", textLen: 1250, window: 500, overlap: 250},
		{name: "default parameters", textLen: 2000, window: 500, overlap: 100},
		{name: "just over one window", textLen: 501, window: 500, overlap: 100},
		{name: "no overlap", textLen: 1000, window: 100, overlap: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			text := strings.Repeat("x", tt.textLen)
			pieces, err := chunker.Chunk(text, tt.window, tt.overlap)
			if err != nil {
				t.Fatalf("Chunk() error = %v", err)
			}

			stride := tt.window - tt.overlap
			want := (tt.textLen - tt.overlap + stride - 1) / stride // ceil
			if len(pieces) != want {
				t.Errorf("Chunk() produced %d pieces, want %d", len(pieces), want)
			}
			for i, p := range pieces {
				if p.Ordinal != i {
					t.Errorf("piece %d has ordinal %d", i, p.Ordinal)
				}
			}
		})
	}
}

func TestChunkReconstructsText(t *testing.T) {
	texts := []string{
		strings.Repeat("the quick brown fox jumps over the lazy dog ", 40),
		strings.Repeat("abcdefghij", 130),
		"een twee drie vier vijf " + strings.Repeat("woord ", 200),
	}

	const window, overlap = 500, 100
	stride := window - overlap

	for _, text := range texts {
		pieces, err := chunker.Chunk(text, window, overlap)
		if err != nil {
			t.Fatalf("Chunk() error = %v", err)
		}

		// Pieces start at fixed stride positions; rebuilding the text means
		// dropping each piece's prefix that was already covered.
		var rebuilt []rune
		for i, p := range pieces {
			start := i * stride
			drop := len(rebuilt) - start
			if drop < 0 {
				t.Fatalf("piece %d leaves a gap: covered %d, start %d", i, len(rebuilt), start)
			}
			pr := []rune(p.Text)
			if drop > len(pr) {
				t.Fatalf("piece %d shorter than its overlap: drop %d, len %d", i, drop, len(pr))
			}
			rebuilt = append(rebuilt, pr[drop:]...)
		}
		if string(rebuilt) != text {
			t.Errorf("reconstructed text differs from input (len %d vs %d)", len(rebuilt), len(text))
		}
	}
}

func TestChunkDeterministic(t *testing.T) {
	text := strings.Repeat("herhaalbare invoer voor de chunker ", 50)
	a, err := chunker.Chunk(text, 300, 60)
	if err != nil {
		t.Fatalf("Chunk() error = %v", err)
	}
	b, err := chunker.Chunk(text, 300, 60)
	if err != nil {
		t.Fatalf("Chunk() error = %v", err)
	}
	if len(a) != len(b) {
		t.Fatalf("piece counts differ: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Errorf("piece %d differs between runs", i)
		}
	}
}

func TestChunkInvalidParameters(t *testing.T) {
	tests := []struct {
		name    string
		window  int
		overlap int
	}{
		{name: "zero window", window: 0, overlap: 0},
		{name: "negative overlap", window: 100, overlap: -1},
		{name: "overlap equals window", window: 100, overlap: 100},
		{name: "overlap exceeds window", window: 100, overlap: 150},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := chunker.Chunk("some text", tt.window, tt.overlap); err == nil {
				t.Errorf("Chunk(window=%d, overlap=%d) expected error", tt.window, tt.overlap)
			}
		})
	}
}

func TestHash(t *testing.T) {
	if chunker.Hash("a") == chunker.Hash("b") {
		t.Error("different texts produced the same hash")
	}
	if chunker.Hash("stable") != chunker.Hash("stable") {
		t.Error("same text produced different hashes")
	}
	if got := len(chunker.Hash("x")); got != 64 {
		t.Errorf("hash length = %d, want 64 hex chars", got)
	}
}
