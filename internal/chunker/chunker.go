// Package chunker splits normalized document text into synthesizer-sized chunks
// at sentence boundaries.
package chunker

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// DefaultMaxChars is the default ceiling for a single chunk. It stays below the
// 5000 byte request limit of the Google Text-to-Speech API.
const DefaultMaxChars = 4500

// Normalize collapses every run of whitespace (including newlines and form
// feeds) into a single space and trims the result.
func Normalize(raw string) string {
	return strings.Join(strings.Fields(raw), " ")
}

// SplitSentences splits text into sentences. A boundary sits immediately after
// a terminator ('.', '?' or '!') that is followed by whitespace; the terminator
// stays with the preceding sentence and the whitespace run is dropped. The last
// sentence may have no terminator.
func SplitSentences(text string) []string {
	var sentences []string
	start, i := 0, 0
	for i < len(text) {
		r, size := utf8.DecodeRuneInString(text[i:])
		i += size
		if !isTerminator(r) {
			continue
		}
		end := i
		for i < len(text) {
			ws, wsSize := utf8.DecodeRuneInString(text[i:])
			if !unicode.IsSpace(ws) {
				break
			}
			i += wsSize
		}
		if i > end {
			sentences = append(sentences, text[start:end])
			start = i
		}
	}
	if start < len(text) {
		sentences = append(sentences, text[start:])
	}
	return sentences
}

// Chunk greedily packs the sentences of text into chunks of at most maxChars
// characters, joining sentences with a single space. A sentence longer than
// maxChars is never split; it becomes a chunk on its own. Empty text yields no
// chunks. maxChars below 1 is treated as 1.
func Chunk(text string, maxChars int) []string {
	if maxChars < 1 {
		maxChars = 1
	}

	var chunks []string
	var cur string
	curLen := 0

	for _, s := range SplitSentences(text) {
		sLen := utf8.RuneCountInString(s)
		if cur != "" && curLen+1+sLen > maxChars {
			chunks = append(chunks, cur)
			cur, curLen = s, sLen
			continue
		}
		cur = strings.TrimSpace(cur + " " + s)
		curLen = utf8.RuneCountInString(cur)
	}
	if cur != "" {
		chunks = append(chunks, cur)
	}

	return chunks
}

// Len returns the length of s as measured by Chunk.
func Len(s string) int {
	return utf8.RuneCountInString(s)
}

func isTerminator(r rune) bool {
	return r == '.' || r == '?' || r == '!'
}
