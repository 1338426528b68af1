package text

import (
	"regexp"
	"strings"
)

// EstimateTokens approximates the token count of s (about 4 chars per token).
func EstimateTokens(s string) int {
	return len(s) / 4
}

var sentenceEndRe = regexp.MustCompile(`([.!?…])\s+`)

// splitSentences breaks prose at sentence-final punctuation followed by
// whitespace. The punctuation stays with the preceding sentence.
func splitSentences(text string) []string {
	var sentences []string
	last := 0
	for _, loc := range sentenceEndRe.FindAllStringSubmatchIndex(text, -1) {
		sentences = append(sentences, strings.TrimSpace(text[last:loc[3]]))
		last = loc[1]
	}
	if last < len(text) {
		if tail := strings.TrimSpace(text[last:]); tail != "" {
			sentences = append(sentences, tail)
		}
	}
	return sentences
}

// ChunkTranscript splits a transcript into passages bounded by maxTokens,
// preferring paragraph boundaries, then sentence boundaries, then words.
// Passages preserve the transcript's order; mid-sentence truncation only
// happens when a single sentence exceeds the budget on its own.
func ChunkTranscript(text string, maxTokens int) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	maxChars := maxTokens * 4
	var chunks []string
	var current strings.Builder

	flush := func() {
		if current.Len() > 0 {
			chunks = append(chunks, current.String())
			current.Reset()
		}
	}

	appendPiece := func(piece, sep string) {
		if current.Len()+len(sep)+len(piece) > maxChars {
			flush()
		}
		if current.Len() > 0 {
			current.WriteString(sep)
		}
		current.WriteString(piece)
	}

	for _, para := range strings.Split(text, "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}

		if len(para) <= maxChars {
			appendPiece(para, "\n\n")
			continue
		}

		for _, sentence := range splitSentences(para) {
			if len(sentence) <= maxChars {
				appendPiece(sentence, " ")
				continue
			}

			// Oversized sentence: fall back to word accumulation.
			for _, word := range strings.Fields(sentence) {
				appendPiece(word, " ")
			}
		}
	}

	flush()
	return chunks
}
