package httpadapter

import (
	"net/http"

	"github.com/kirillkom/movie-search-assistant/internal/core/domain"
)

func mapErrorToHTTPStatus(err error) int {
	switch {
	case domain.IsKind(err, domain.ErrInvalidInput), domain.IsKind(err, domain.ErrInvalidStrategy):
		return http.StatusBadRequest
	case domain.IsKind(err, domain.ErrSessionNotFound):
		return http.StatusNotFound
	case domain.IsRateLimited(err):
		return http.StatusTooManyRequests
	case domain.IsKind(err, domain.ErrTemporary):
		return http.StatusServiceUnavailable
	case domain.IsKind(err, domain.ErrGeneration):
		if domain.GenerationFailureOf(err) == domain.GenerationTimeout {
			return http.StatusGatewayTimeout
		}
		return http.StatusBadGateway
	case domain.IsKind(err, domain.ErrEmbedding),
		domain.IsKind(err, domain.ErrBackend),
		domain.IsKind(err, domain.ErrMalformedResult):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
