package httpadapter

import (
	"net/http"

	"github.com/blueonelabs/dealer-rag/internal/core/domain"
)

func mapErrorToHTTPStatus(err error) int {
	switch {
	case domain.IsKind(err, domain.ErrInvalidRequest):
		return http.StatusBadRequest
	case domain.IsKind(err, domain.ErrBothSourcesFailed):
		return http.StatusServiceUnavailable
	case domain.IsKind(err, domain.ErrDependencyUnavailable):
		return http.StatusServiceUnavailable
	case domain.IsKind(err, domain.ErrDependencyTimeout):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
