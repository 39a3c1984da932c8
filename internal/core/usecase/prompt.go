package usecase

import (
	"fmt"
	"strings"

	"github.com/kirillkom/movie-search-assistant/internal/core/domain"
)

const maxPromptBodyChars = 1500

// NoAnswerMarker is what the model is told to reply when the movies do not
// contain the answer.
const NoAnswerMarker = "NO ANSWER"

func buildAnswerPrompt(query string, hits []domain.RankedHit) string {
	var movies strings.Builder
	for idx, hit := range hits {
		movies.WriteString(fmt.Sprintf(
			"[%d] title=%s url=%s score=%.3f\n%s\n%s\n\n",
			idx+1,
			hit.Title,
			hit.URL,
			hit.Score,
			hit.Snippet,
			truncateRunes(hit.Body, maxPromptBodyChars),
		))
	}
	if len(hits) == 0 {
		movies.WriteString("(no movies retrieved)\n")
	}

	return fmt.Sprintf(`Answer this question or comment: %s
using this text:
%s
If the answer is not in the text, simply return %s`, strings.TrimSpace(query), movies.String(), NoAnswerMarker)
}

func truncateRunes(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "..."
}
