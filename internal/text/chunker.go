package text

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrChunkConfig indicates an invalid chunk size/overlap combination. It is a
// caller-fixable configuration error and is never retried.
var ErrChunkConfig = errors.New("invalid chunking configuration")

// Chunk is one contiguous window of a document's text. Offsets are rune
// positions into the text passed to the chunker, so the chunks of a document
// can be stitched back into the original content.
type Chunk struct {
	Text        string
	Index       int
	StartOffset int
	EndOffset   int
}

// Split cuts text into windows of chunkSize runes advancing by
// chunkSize-overlap each step. The final window may be shorter than
// chunkSize; it is never padded. Identical inputs always produce identical
// boundaries, which downstream id generation relies on for idempotent
// re-indexing. Word and sentence boundaries are intentionally not respected;
// the fixed-stride policy keeps chunk ids stable across runs.
func Split(text string, chunkSize, overlap int) ([]Chunk, error) {
	if chunkSize <= 0 {
		return nil, fmt.Errorf("%w: chunk size %d must be positive", ErrChunkConfig, chunkSize)
	}
	if overlap < 0 || overlap >= chunkSize {
		return nil, fmt.Errorf("%w: overlap %d must be in [0, %d)", ErrChunkConfig, overlap, chunkSize)
	}

	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	runes := []rune(text)
	stride := chunkSize - overlap

	var chunks []Chunk
	for start, index := 0, 0; start < len(runes); start += stride {
		end := start + chunkSize
		if end > len(runes) {
			end = len(runes)
		}

		chunks = append(chunks, Chunk{
			Text:        string(runes[start:end]),
			Index:       index,
			StartOffset: start,
			EndOffset:   end,
		})
		index++

		if end == len(runes) {
			break
		}
	}

	return chunks, nil
}

var (
	newlines = strings.NewReplacer("\r\n", "\n", "\r", "\n")
	spaceRe  = regexp.MustCompile(`[ \t]+`)
	blankRe  = regexp.MustCompile(`\n{3,}`)
)

// Normalize collapses runs of spaces and tabs, normalizes line endings, and
// caps consecutive blank lines. Normalization happens once, before chunking,
// so chunk offsets always refer to the normalized content that is persisted.
func Normalize(text string) string {
	if text == "" {
		return ""
	}
	text = newlines.Replace(text)
	text = spaceRe.ReplaceAllString(text, " ")
	text = blankRe.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

// Truncate caps text at max runes. Used to bound pathological documents
// before chunking.
func Truncate(text string, max int) string {
	if max <= 0 {
		return text
	}
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}
	return string(runes[:max])
}
