package llm

import "strings"

// defaultChunkTarget and defaultChunkOverlap bound each polish window and
// its overlap with the next.
const (
	defaultChunkTarget  = 4000
	defaultChunkOverlap = 200
)

// chunkText splits text into overlapping windows of approximately target
// runes, each overlapping the next by overlap runes, so a vendor's context
// limit is never exceeded while no content is dropped at a window boundary.
// A single window is returned unchanged when text already fits.
func chunkText(text string, target, overlap int) []string {
	runes := []rune(text)
	if len(runes) <= target {
		return []string{text}
	}
	if overlap >= target {
		overlap = target / 2
	}

	var chunks []string
	start := 0
	for start < len(runes) {
		end := start + target
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[start:end]))
		if end == len(runes) {
			break
		}
		start = end - overlap
	}
	return chunks
}

// stitchChunks joins per-chunk polished outputs back into one transcript,
// trimming the duplicated overlap region between consecutive chunks. Since
// an LLM rewrite of the overlap text need not match the source byte-for-byte,
// stitching looks for the longest suffix of the accumulated text that is
// also a prefix of the next chunk (up to maxOverlapSearch runes) and drops
// it from the next chunk before appending.
func stitchChunks(chunks []string, maxOverlapSearch int) string {
	if len(chunks) == 0 {
		return ""
	}
	result := chunks[0]
	for _, next := range chunks[1:] {
		overlapLen := longestSuffixPrefixOverlap(result, next, maxOverlapSearch)
		trimmed := strings.TrimSpace(next[overlapLen:])
		if trimmed == "" {
			continue
		}
		if !strings.HasSuffix(result, " ") && !strings.HasSuffix(result, "\n") {
			result += " "
		}
		result += trimmed
	}
	return result
}

// longestSuffixPrefixOverlap returns the length, in bytes of next, of the
// longest suffix of a that equals a prefix of next, searching suffixes of a
// up to maxLen runes long.
func longestSuffixPrefixOverlap(a, next string, maxLen int) int {
	aRunes := []rune(a)
	if len(aRunes) > maxLen {
		aRunes = aRunes[len(aRunes)-maxLen:]
	}
	for length := len(aRunes); length > 0; length-- {
		suffix := string(aRunes[len(aRunes)-length:])
		if strings.HasPrefix(next, suffix) {
			return len(suffix)
		}
	}
	return 0
}
