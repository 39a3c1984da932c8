package usecase

import (
	"strings"
	"unicode"

	"github.com/kirillkom/movie-search-assistant/internal/core/domain"
)

var colorVocabulary = map[string]string{
	"red":     "red",
	"blue":    "blue",
	"green":   "green",
	"yellow":  "yellow",
	"orange":  "orange",
	"purple":  "purple",
	"brown":   "brown",
	"black":   "black",
	"white":   "white",
	"pink":    "pink",
	"gray":    "gray",
	"grey":    "grey",
	"violet":  "violet",
	"cyan":    "cyan",
	"magenta": "magenta",
	"gold":    "gold",
	"silver":  "silver",
	"bronze":  "bronze",
}

// Keys are matched tokens, values are the indexed platform names.
var platformVocabulary = map[string]string{
	"chrome":     "chrome",
	"chromebook": "chrome",
	"windows":    "windows",
}

// ExtractAttributeFilters scans text for the first color and the first
// platform keyword. Only single whitespace-separated tokens match, so phrases
// like "chrome os" resolve through their first word and misspellings never
// match.
func ExtractAttributeFilters(text string) domain.AttributeFilters {
	var out domain.AttributeFilters
	for _, raw := range strings.Fields(text) {
		token := strings.ToLower(strings.TrimFunc(raw, unicode.IsPunct))
		if token == "" {
			continue
		}
		if out.Color == "" {
			if color, ok := colorVocabulary[token]; ok {
				out.Color = color
			}
		}
		if out.Platform == "" {
			if platform, ok := platformVocabulary[token]; ok {
				out.Platform = platform
			}
		}
		if out.Color != "" && out.Platform != "" {
			break
		}
	}
	return out
}

// TermFilters converts detected attributes into index filters, color first.
func TermFilters(attrs domain.AttributeFilters, fields domain.IndexFields) []domain.TermFilter {
	out := make([]domain.TermFilter, 0, 2)
	if attrs.Color != "" {
		out = append(out, domain.TermFilter{Field: fields.ColorField, Value: attrs.Color})
	}
	if attrs.Platform != "" {
		out = append(out, domain.TermFilter{Field: fields.PlatformField, Value: attrs.Platform})
	}
	return out
}
