// Package chunker splits document text into passages for embedding.
package chunker

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	// DefaultMaxSize bounds a sentence-packed chunk, in runes.
	DefaultMaxSize = 300
	// DefaultBlockSize and DefaultOverlap drive SplitBlocks for bulk import.
	DefaultBlockSize = 500
	DefaultOverlap   = 50
)

// Full-width terminators always end a sentence. ASCII ones only do when
// followed by whitespace or the end of the text, so "3.14" and
// "example.com" stay whole. A newline also ends a sentence but is not kept.
const (
	wideTerminators  = "。！？"
	asciiTerminators = "!?."
)

// Sentences splits text after every terminator and at newlines. Sentences
// keep their terminator, are trimmed, and blank ones are dropped.
func Sentences(text string) []string {
	var out []string
	var b strings.Builder
	flush := func() {
		if s := strings.TrimSpace(b.String()); s != "" {
			out = append(out, s)
		}
		b.Reset()
	}
	runes := []rune(text)
	for i, r := range runes {
		if r == '\n' || r == '\r' {
			flush()
			continue
		}
		b.WriteRune(r)
		if endsSentence(runes, i) {
			flush()
		}
	}
	flush()
	return out
}

func endsSentence(runes []rune, i int) bool {
	r := runes[i]
	if strings.ContainsRune(wideTerminators, r) {
		return true
	}
	if !strings.ContainsRune(asciiTerminators, r) {
		return false
	}
	return i+1 == len(runes) || unicode.IsSpace(runes[i+1])
}

// Split packs sentences greedily into chunks of at most maxSize runes.
// A sentence longer than maxSize becomes a chunk of its own, unbroken.
// maxSize <= 0 selects DefaultMaxSize. No returned chunk is empty.
func Split(text string, maxSize int) []string {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}

	var chunks []string
	var cur strings.Builder
	curLen := 0

	for _, s := range Sentences(text) {
		sLen := utf8.RuneCountInString(s)
		if curLen == 0 {
			cur.WriteString(s)
			curLen = sLen
			continue
		}

		sep := joiner(cur.String())
		if curLen+len(sep)+sLen <= maxSize {
			cur.WriteString(sep)
			cur.WriteString(s)
			curLen += len(sep) + sLen
			continue
		}

		chunks = append(chunks, cur.String())
		cur.Reset()
		cur.WriteString(s)
		curLen = sLen
	}
	if curLen > 0 {
		chunks = append(chunks, cur.String())
	}
	return chunks
}

// joiner returns the separator placed between two packed sentences:
// nothing after full-width punctuation, a space otherwise.
func joiner(prev string) string {
	r, _ := utf8.DecodeLastRuneInString(prev)
	if r >= 0x2E80 {
		return ""
	}
	return " "
}

// Block is one window produced by SplitBlocks. Start and End are rune
// offsets into the source text; Index is 1-based.
type Block struct {
	Index int
	Text  string
	Start int
	End   int
}

// Preferred cut points for SplitBlocks, tried in order.
var blockBreaks = []rune{'。', '\n', '.', '!', '?'}

// SplitBlocks cuts text into overlapping windows of at most size runes,
// pulling each cut back to the last natural break inside the window. The
// next window starts overlap runes before the previous cut and always
// advances. Windows that trim to nothing are skipped.
func SplitBlocks(text string, size, overlap int) []Block {
	if size <= 0 {
		size = DefaultBlockSize
	}
	if overlap < 0 || overlap >= size {
		overlap = 0
	}

	runes := []rune(text)
	n := len(runes)
	if n <= size {
		if strings.TrimSpace(text) == "" {
			return nil
		}
		return []Block{{Index: 1, Text: text, Start: 0, End: n}}
	}

	var blocks []Block
	start := 0
	for start < n {
		end := min(start+size, n)
		if end < n {
			end = cutBack(runes, start, end)
		}

		if t := strings.TrimSpace(string(runes[start:end])); t != "" {
			blocks = append(blocks, Block{Index: len(blocks) + 1, Text: t, Start: start, End: end})
		}
		if end >= n {
			break
		}
		start = max(end-overlap, start+1)
	}
	return blocks
}

// cutBack moves end back to just after the last break in runes[start:end]
// for the first break character that occurs past start.
func cutBack(runes []rune, start, end int) int {
	for _, br := range blockBreaks {
		for i := end - 1; i > start; i-- {
			if runes[i] == br {
				return i + 1
			}
		}
	}
	return end
}
