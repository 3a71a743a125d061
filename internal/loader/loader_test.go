package loader

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"unicode/utf8"
)

func TestParse(t *testing.T) {
	text := "First line\nof the first paragraph.\n\nSecond paragraph.\r\n\r\nThird.\n\n\n"
	doc := Parse(text)

	want := []string{
		"First line of the first paragraph.",
		"Second paragraph.",
		"Third.",
	}
	if !reflect.DeepEqual(doc.Paragraphs, want) {
		t.Errorf("Paragraphs = %v, want %v", doc.Paragraphs, want)
	}
}

func TestParseEmptyInput(t *testing.T) {
	doc := Parse("\n\n  \n\n")
	if len(doc.Paragraphs) != 0 {
		t.Errorf("Paragraphs = %v, want none", doc.Paragraphs)
	}
}

func TestWordAndCharCounts(t *testing.T) {
	doc := Parse("Привіт світе.\n\nTwo more words here.")
	if got := doc.WordCount(); got != 6 {
		t.Errorf("WordCount() = %d, want 6", got)
	}
	if got := doc.CharCount(); got != utf8.RuneCountInString("Привіт світе.")+utf8.RuneCountInString("Two more words here.") {
		t.Errorf("CharCount() = %d", got)
	}
}

func TestBlocks(t *testing.T) {
	doc := &Document{Paragraphs: []string{
		strings.Repeat("a", 100),
		strings.Repeat("b", 100),
		strings.Repeat("c", 100),
		strings.Repeat("d", 250),
	}}

	t.Run("disabled batching", func(t *testing.T) {
		blocks := doc.Blocks(0)
		if len(blocks) != 4 {
			t.Fatalf("%d blocks, want 4", len(blocks))
		}
		for i, b := range blocks {
			if len(b) != 1 {
				t.Errorf("block %d has %d paragraphs, want 1", i, len(b))
			}
		}
	})

	t.Run("grouped by size", func(t *testing.T) {
		blocks := doc.Blocks(250)
		// a+b fit in 250, c alone (c+d would overflow), d alone.
		if len(blocks) != 3 {
			t.Fatalf("%d blocks, want 3: %v", len(blocks), blockSizes(blocks))
		}
		if len(blocks[0]) != 2 || len(blocks[1]) != 1 || len(blocks[2]) != 1 {
			t.Errorf("block shapes = %v, want [2 1 1]", blockSizes(blocks))
		}
	})

	t.Run("oversized paragraph gets its own block", func(t *testing.T) {
		blocks := doc.Blocks(50)
		if len(blocks) != 4 {
			t.Fatalf("%d blocks, want 4", len(blocks))
		}
	})
}

func blockSizes(blocks [][]string) []int {
	out := make([]int, len(blocks))
	for i, b := range blocks {
		out[i] = len(b)
	}
	return out
}

func TestSplitOversized(t *testing.T) {
	para := strings.TrimSpace(strings.Repeat("The river wound through the valley. ", 300))
	if utf8.RuneCountInString(para) <= MaxParagraphChars {
		t.Fatal("test paragraph not oversized")
	}

	parts := splitOversized(para)
	if len(parts) < 2 {
		t.Fatalf("oversized paragraph not split: %d parts", len(parts))
	}
	for i, p := range parts {
		if utf8.RuneCountInString(p) > MaxParagraphChars {
			t.Errorf("part %d is %d runes, over the limit", i, utf8.RuneCountInString(p))
		}
	}
	// Splits prefer sentence boundaries; nothing may be lost.
	if strings.Join(parts, " ") != para {
		t.Error("split parts do not reassemble into the original paragraph")
	}
	for i, p := range parts[:len(parts)-1] {
		if !strings.HasSuffix(p, ".") {
			t.Errorf("part %d does not end at a sentence boundary: %q", i, p[len(p)-20:])
		}
	}
}

func TestFindSplitFallsBackToWhitespace(t *testing.T) {
	// No sentence punctuation anywhere: split at a word boundary.
	text := strings.TrimSpace(strings.Repeat("word ", 2000))
	idx := findSplit(text, 100)
	if idx <= 0 || idx >= len(text) {
		t.Fatalf("findSplit = %d", idx)
	}
	if !strings.HasSuffix(strings.TrimSpace(text[:idx]), "word") {
		t.Errorf("split mid-word: %q", text[idx-10:idx])
	}
}

func TestFindSplitHardCut(t *testing.T) {
	text := strings.Repeat("x", 500)
	idx := findSplit(text, 100)
	if idx != 100 {
		t.Errorf("findSplit = %d, want hard cut at 100", idx)
	}
}

func TestAssemble(t *testing.T) {
	got := Assemble([]string{"Один.", "Два."})
	if got != "Один.\n\nДва.\n" {
		t.Errorf("Assemble() = %q", got)
	}
}

func TestLoadAndWriteRoundTrip(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "book.txt")
	out := filepath.Join(dir, "out.txt")

	if err := os.WriteFile(in, []byte("Para one.\n\nPara two."), 0644); err != nil {
		t.Fatal(err)
	}

	doc, err := LoadFile(in)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if len(doc.Paragraphs) != 2 {
		t.Fatalf("Paragraphs = %v", doc.Paragraphs)
	}

	if err := WriteFile(out, doc.Paragraphs); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "Para one.\n\nPara two.\n" {
		t.Errorf("output = %q", data)
	}
}

func TestLoadFileMissing(t *testing.T) {
	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.txt")); err == nil {
		t.Error("LoadFile accepted a missing file")
	}
}
