package pipeline

import (
	"errors"
	"net/http"

	"mediarelay/internal/domain"
)

// HTTPStatus maps a pipeline error to the status returned to the caller.
// Caller faults and upstream media rejections are 400; everything else is 500.
func HTTPStatus(err error) int {
	if err == nil {
		return http.StatusOK
	}
	var fe *domain.FetchError
	switch {
	case errors.Is(err, domain.ErrValidation),
		errors.Is(err, domain.ErrUnsupportedMedia),
		errors.Is(err, domain.ErrMediaTooLarge):
		return http.StatusBadRequest
	case errors.As(err, &fe) && fe.StatusCode != 0:
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// PublicMessage renders err for the error envelope.
func PublicMessage(err error) string {
	var fe *domain.FetchError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, domain.ErrValidation),
		errors.Is(err, domain.ErrUnsupportedMedia),
		errors.As(err, &fe):
		return err.Error()
	}
	return "Erro interno: " + err.Error()
}
