package search

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestSplitChunks_Empty(t *testing.T) {
	t.Parallel()

	if chunks := splitChunks(""); len(chunks) != 0 {
		t.Errorf("chunks = %q, want none", chunks)
	}
	if chunks := splitChunks("  \n\n \n\n"); len(chunks) != 0 {
		t.Errorf("whitespace-only: chunks = %q, want none", chunks)
	}
}

func TestSplitChunks_MergesSmallParagraphs(t *testing.T) {
	t.Parallel()

	chunks := splitChunks("first paragraph\n\nsecond paragraph")
	if len(chunks) != 1 {
		t.Fatalf("len = %d, want 1", len(chunks))
	}
	if chunks[0] != "first paragraph\n\nsecond paragraph" {
		t.Errorf("chunk = %q", chunks[0])
	}
}

func TestSplitChunks_SplitsOnParagraphBoundary(t *testing.T) {
	t.Parallel()

	a := strings.Repeat("a", 700)
	b := strings.Repeat("b", 700)
	chunks := splitChunks(a + "\n\n" + b)
	if len(chunks) != 2 {
		t.Fatalf("len = %d, want 2 (700+700 exceeds the chunk ceiling)", len(chunks))
	}
	if chunks[0] != a || chunks[1] != b {
		t.Error("paragraphs must not be split when each fits on its own")
	}
}

func TestSplitChunks_HardSplitKeepsRunesIntact(t *testing.T) {
	t.Parallel()

	// One unbroken paragraph of multi-byte runes, phase-shifted so the byte
	// ceiling falls mid-rune.
	para := "x" + strings.Repeat("é", 1000)
	chunks := splitChunks(para)
	if len(chunks) < 2 {
		t.Fatalf("len = %d, want an oversized paragraph split", len(chunks))
	}
	for i, c := range chunks {
		if len(c) > maxChunkLen {
			t.Errorf("chunks[%d] is %d bytes, over the %d ceiling", i, len(c), maxChunkLen)
		}
		if !utf8.ValidString(c) {
			t.Errorf("chunks[%d] is not valid UTF-8; split crossed a rune boundary", i)
		}
	}
	if strings.Join(chunks, "") != para {
		t.Error("hard split must not lose or duplicate text")
	}
}

func TestSplitChunks_InvalidUTF8Terminates(t *testing.T) {
	t.Parallel()

	// A long run of continuation bytes has no rune start to back up to; the
	// splitter must still consume input instead of looping forever.
	para := strings.Repeat("\x80", maxChunkLen+100)
	chunks := splitChunks(para)
	if len(chunks) == 0 {
		t.Fatal("no chunks produced")
	}
	total := 0
	for i, c := range chunks {
		if len(c) == 0 {
			t.Fatalf("chunks[%d] is empty", i)
		}
		if len(c) > maxChunkLen {
			t.Errorf("chunks[%d] is %d bytes, over the %d ceiling", i, len(c), maxChunkLen)
		}
		total += len(c)
	}
	if total != len(para) {
		t.Errorf("chunks cover %d bytes, want %d", total, len(para))
	}
}

func TestSortByScore(t *testing.T) {
	t.Parallel()

	results := []Result{
		{TranscriptionID: "b", Score: 0.5},
		{TranscriptionID: "a", Score: 0.5},
		{TranscriptionID: "c", Score: 0.9},
	}
	sortByScore(results)

	want := []string{"c", "a", "b"} // best first, id tiebreak
	for i, id := range want {
		if results[i].TranscriptionID != id {
			t.Fatalf("results[%d] = %s, want %s", i, results[i].TranscriptionID, id)
		}
	}
}
