// Package signals extracts buying-intelligence signals from governance
// documents with an LLM, then deduplicates them per buyer.
package signals

import "strings"

// Chunk splits text into pieces of at most size bytes with the given
// overlap carried between consecutive chunks. Cuts prefer a paragraph
// break, then a sentence end, in the second half of the window, so
// mid-sentence splits only happen in pathological text.
func Chunk(text string, size, overlap int) []string {
	if text == "" {
		return nil
	}
	if size <= 0 || len(text) <= size {
		return []string{text}
	}
	if overlap >= size/2 {
		overlap = size / 4
	}

	var chunks []string
	start := 0
	for {
		end := start + size
		if end >= len(text) {
			chunks = append(chunks, text[start:])
			return chunks
		}

		cut := end
		window := text[start:end]
		if i := strings.LastIndex(window, "\n\n"); i > size/2 {
			cut = start + i
		} else if i := lastSentenceEnd(window); i > size/2 {
			cut = start + i + 1
		}

		chunks = append(chunks, text[start:cut])
		start = cut - overlap
	}
}

func lastSentenceEnd(s string) int {
	for i := len(s) - 1; i >= 0; i-- {
		switch s[i] {
		case '.', '!', '?':
			return i
		}
	}
	return -1
}
