package api

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

var (
	errSessionNotFound = echo.NewHTTPError(http.StatusNotFound, "session not found")
	errMessageNotFound = echo.NewHTTPError(http.StatusNotFound, "message not found")
	errSessionEnded    = echo.NewHTTPError(http.StatusConflict, "session already ended")
	errInvalidEmail    = echo.NewHTTPError(http.StatusBadRequest, "invalid participant email")
	errInvalidCode     = echo.NewHTTPError(http.StatusBadRequest, "invalid access code")
)

// newHTTPErrorHandler translates validator and wrapped errors into JSON
// responses, logging only the unexpected ones.
func newHTTPErrorHandler(log zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, ctx echo.Context) {
		if ctx.Response().Committed {
			return
		}

		var code int
		var message any

		switch cause := errors.Cause(err).(type) {
		case *echo.HTTPError:
			code = cause.Code
			message = cause.Message
		case validator.ValidationErrors:
			fields := make(map[string]string, len(cause))
			for _, fErr := range cause {
				fields[fErr.Field()] = fErr.Tag()
			}
			code = http.StatusBadRequest
			message = fields
		default:
			code = http.StatusInternalServerError
			message = http.StatusText(code)
			log.Error().Err(err).Str("path", ctx.Path()).Msg("unhandled error")
		}

		if ctx.Request().Method == http.MethodHead {
			err = ctx.NoContent(code)
		} else {
			err = ctx.JSON(code, map[string]any{"error": message})
		}
		if err != nil {
			log.Error().Err(err).Msg("writing error response")
		}
	}
}
