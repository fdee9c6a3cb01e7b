package server

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"mediarelay/internal/pipeline"
)

// ErrorResponse is the envelope of every failed request.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// errorHandler renders pipeline errors and echo errors as ErrorResponse.
func errorHandler(logger *slog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		var (
			status int
			msg    string
			he     *echo.HTTPError
		)
		if errors.As(err, &he) {
			status = he.Code
			msg = fmt.Sprint(he.Message)
			if he.Internal != nil {
				logger.Warn("request rejected", "path", c.Path(), "status", status, "error", he.Internal)
			}
		} else {
			status = pipeline.HTTPStatus(err)
			msg = pipeline.PublicMessage(err)
		}

		if status >= http.StatusInternalServerError {
			logger.Error("request failed", "path", c.Path(), "status", status, "error", err)
		}

		if c.Request().Method == http.MethodHead {
			err = c.NoContent(status)
		} else {
			err = c.JSON(status, ErrorResponse{Success: false, Error: msg})
		}
		if err != nil {
			logger.Error("write error response", "error", err)
		}
	}
}
