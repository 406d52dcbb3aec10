package usecase

import (
	"regexp"
	"strconv"

	"docqa-orchestrator/internal/domain"
)

const citationSnippetChars = 200

var citationMarkerRe = regexp.MustCompile(`\[(\d{1,3})\]`)

// ExtractCitations scans the answer text for [n] markers and resolves them
// against the 1-based source numbering the prompt used. Citations are
// returned in first-occurrence order, deduplicated by marker number;
// out-of-range markers are dropped silently.
func ExtractCitations(answer string, chunks []domain.RetrievedChunk) []domain.Citation {
	matches := citationMarkerRe.FindAllStringSubmatch(answer, -1)
	if len(matches) == 0 {
		return nil
	}

	seen := make(map[int]bool, len(matches))
	citations := make([]domain.Citation, 0, len(matches))
	for _, m := range matches {
		n, err := strconv.Atoi(m[1])
		if err != nil || n < 1 || n > len(chunks) {
			continue
		}
		if seen[n] {
			continue
		}
		seen[n] = true

		chunk := chunks[n-1]
		snippet := chunk.Text
		if len(snippet) > citationSnippetChars {
			snippet = snippet[:citationSnippetChars]
		}
		citations = append(citations, domain.Citation{
			ChunkID:  chunk.ChunkID,
			SourceID: chunk.SourceID,
			Title:    chunk.SourceTitle,
			Page:     chunk.Page,
			Snippet:  snippet,
		})
	}
	return citations
}
