package echoapi

import (
	"net/http"
	"strings"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/letsspeak/core"
	"github.com/trezcool/letsspeak/core/schedule"
)

const (
	codeValidation = "validation_error"
	codeInternal   = "internal_error"
)

var (
	errMissingToken = echo.NewHTTPError(http.StatusUnauthorized, "missing or malformed jwt")
	errInvalidToken = echo.NewHTTPError(http.StatusUnauthorized, "invalid or expired jwt")
)

// domain error code -> HTTP status
var statusCodes = map[string]int{
	"not_found":                 http.StatusNotFound,
	"permission_denied":         http.StatusForbidden,
	"time_conflict":             http.StatusConflict,
	"makeup_already_completed":  http.StatusConflict,
	"cannot_postpone":           http.StatusUnprocessableEntity,
	"max_postponements_reached": http.StatusUnprocessableEntity,
	"not_postponed":             http.StatusUnprocessableEntity,
	"makeup_postponed":          http.StatusUnprocessableEntity,
	"schedule_exists":           http.StatusUnprocessableEntity,
	"invalid_cadence":           http.StatusUnprocessableEntity,
	"invalid_transition":        http.StatusUnprocessableEntity,
	"transaction_failure":       http.StatusInternalServerError,
}

func httpCode(status int) string {
	return strings.ReplaceAll(strings.ToLower(http.StatusText(status)), " ", "_")
}

// newAppHTTPErrorHandler returns a custom echo.HTTPErrorHandler that knows how to handle our errors.
// signalShutdown is called in order to gracefully shutdown the Server whenever a core.shutdown error is caught.
func newAppHTTPErrorHandler(logger core.Logger, translator ut.Translator, signalShutdown func()) echo.HTTPErrorHandler {
	return func(err error, ctx echo.Context) {
		var (
			status int
			res    = envelope{Success: false}
			vErrs  validator.ValidationErrors
			vErr   *core.ValidationError
			hErr   *echo.HTTPError
			cErr   *schedule.TimeConflictError
		)

		switch {
		case errors.As(err, &vErrs):
			status = http.StatusBadRequest
			res.Code = codeValidation
			res.Message = "invalid request"
			res.Data = core.TranslateErrors(vErrs, translator)
		case errors.As(err, &vErr):
			status = http.StatusBadRequest
			res.Code = codeValidation
			res.Message = vErr.Error()
			if flds := vErr.FieldMap(); flds != nil {
				res.Data = flds
			}
		case schedule.ErrorCode(err) != "":
			res.Code = schedule.ErrorCode(err)
			status = statusCodes[res.Code]
			res.Message = schedule.ErrorMessage(err)
			if errors.As(err, &cErr) {
				res.Data = echo.Map{"conflicts": cErr.Conflicts}
			}
		case errors.As(err, &hErr):
			if herr, ok := hErr.Internal.(*echo.HTTPError); ok {
				hErr = herr
			}
			status = hErr.Code
			res.Code = httpCode(status)
			if m, ok := hErr.Message.(string); ok {
				res.Message = m
			} else {
				res.Message = http.StatusText(status)
			}
		default: // any other error is a server error
			status = http.StatusInternalServerError
			res.Code = codeInternal
			res.Message = http.StatusText(http.StatusInternalServerError)
			logger.Error(res.Message, errors.Wrap(err, res.Message), contextActor(ctx))

			// shutting down...
			if core.IsShutdown(err) {
				signalShutdown()
			}
		}

		if ctx.Echo().Debug && status >= http.StatusInternalServerError {
			res.Message = err.Error()
		}

		// Send response
		if !ctx.Response().Committed {
			if ctx.Request().Method == http.MethodHead { // Issue #608
				err = ctx.NoContent(status)
			} else {
				err = ctx.JSON(status, res)
			}
			if err != nil {
				ctx.Echo().Logger.Error(err)
			}
		}
	}
}
