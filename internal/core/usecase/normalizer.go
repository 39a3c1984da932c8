package usecase

import (
	"fmt"
	"strings"

	"github.com/kirillkom/movie-search-assistant/internal/core/domain"
)

const (
	defaultPromptHits = 3

	NoURLAvailable         = "No URL available"
	NoTitleAvailable       = "No title available"
	NoPassagesAvailable    = "No passages available"
	NoPassageTextAvailable = "No passages text available"
	NoBodyAvailable        = "No body content available"
)

const (
	fieldAlternateURLs = "additional_urls"
	fieldURL           = "url"
	fieldTitle         = "title"
	fieldPassages      = "passages"
	fieldPassageText   = "text"
	fieldBody          = "body_content"
)

// ResultNormalizer turns raw backend hits into ranked hits. Backend order is
// kept as is.
type ResultNormalizer struct {
	maxHits int
}

func NewResultNormalizer(maxHits int) *ResultNormalizer {
	if maxHits <= 0 {
		maxHits = defaultPromptHits
	}
	return &ResultNormalizer{maxHits: maxHits}
}

func (n *ResultNormalizer) Normalize(result domain.RawResultSet) ([]domain.RankedHit, error) {
	if result.Missing {
		return nil, domain.WrapError(domain.ErrMalformedResult, "normalize results", fmt.Errorf("response has no hit list"))
	}

	limit := min(len(result.Hits), n.maxHits)
	out := make([]domain.RankedHit, 0, limit)
	for _, hit := range result.Hits[:limit] {
		out = append(out, normalizeHit(hit))
	}
	return out, nil
}

func normalizeHit(hit domain.RawHit) domain.RankedHit {
	ranked := domain.RankedHit{Score: hit.Score}

	if url, ok := firstString(hit.Source[fieldAlternateURLs]); ok {
		ranked.URL, ranked.Present.URL = url, true
	} else if url, ok := nonEmptyString(hit.Source[fieldURL]); ok {
		ranked.URL, ranked.Present.URL = url, true
	} else {
		ranked.URL = NoURLAvailable
	}

	if title, ok := nonEmptyString(hit.Source[fieldTitle]); ok {
		ranked.Title, ranked.Present.Title = title, true
	} else {
		ranked.Title = NoTitleAvailable
	}

	ranked.Snippet, ranked.Present.Snippet = passageSnippet(hit.Source[fieldPassages])

	if body, ok := nonEmptyString(hit.Source[fieldBody]); ok {
		ranked.Body, ranked.Present.Body = body, true
	} else {
		ranked.Body = NoBodyAvailable
	}
	return ranked
}

func passageSnippet(raw any) (string, bool) {
	passages, ok := raw.([]any)
	if !ok || len(passages) == 0 {
		return NoPassagesAvailable, false
	}
	first, ok := passages[0].(map[string]any)
	if !ok {
		return NoPassageTextAvailable, false
	}
	if text, ok := nonEmptyString(first[fieldPassageText]); ok {
		return text, true
	}
	return NoPassageTextAvailable, false
}

func firstString(raw any) (string, bool) {
	switch v := raw.(type) {
	case []any:
		if len(v) == 0 {
			return "", false
		}
		return nonEmptyString(v[0])
	case []string:
		if len(v) == 0 {
			return "", false
		}
		return nonEmptyString(v[0])
	default:
		return nonEmptyString(raw)
	}
}

func nonEmptyString(raw any) (string, bool) {
	s, ok := raw.(string)
	if !ok || strings.TrimSpace(s) == "" {
		return "", false
	}
	return s, true
}
