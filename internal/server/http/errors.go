package httpserver

import (
	"errors"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/and161185/course-stream/internal/errs"
)

// Client-facing messages. Server errors never carry internal detail.
const (
	msgInvalidToken    = "Invalid or expired token."
	msgInvalidPurpose  = "Invalid token purpose."
	msgMalformedToken  = "Invalid deep link token."
	msgTokenUsed       = "Token has already been used."
	msgAccessRevoked   = "Access revoked."
	msgInvalidData     = "The given data was invalid."
	msgTooManyAttempts = "Too many attempts. Please try again later."
	msgServerError     = "Internal server error."
)

// appValidator adapts validator/v10 to echo.Validator.
type appValidator struct {
	validate *validator.Validate
}

func (v *appValidator) Validate(i any) error {
	return v.validate.Struct(i)
}

// newValidator reports fields by their json names.
func newValidator() *appValidator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return &appValidator{validate: v}
}

// newAppHTTPErrorHandler maps domain errors to status codes and {"error": msg} bodies.
func newAppHTTPErrorHandler(log *zap.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		code, body := mapError(err)
		if code == http.StatusInternalServerError {
			log.Error("request failed",
				zap.String("route", c.Path()),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
				zap.Error(err))
		}

		if c.Response().Committed {
			return
		}
		if c.Request().Method == http.MethodHead {
			err = c.NoContent(code)
		} else {
			err = c.JSON(code, body)
		}
		if err != nil {
			log.Warn("write error response", zap.Error(err))
		}
	}
}

func mapError(err error) (int, echo.Map) {
	var (
		he  *echo.HTTPError
		ve  *errs.ValidationError
		te  *errs.TokenError
		ce  *errs.CryptoError
		fve validator.ValidationErrors
	)
	switch {
	case errors.As(err, &he):
		msg, ok := he.Message.(string)
		if !ok {
			msg = http.StatusText(he.Code)
		}
		if he.Code >= http.StatusInternalServerError {
			msg = msgServerError
		}
		return he.Code, echo.Map{"error": msg}
	case errors.As(err, &fve):
		fields := make(map[string]string, len(fve))
		for _, fe := range fve {
			fields[fe.Field()] = fieldMessage(fe)
		}
		return http.StatusUnprocessableEntity, echo.Map{"error": msgInvalidData, "errors": fields}
	case errors.As(err, &ve):
		return http.StatusUnprocessableEntity, echo.Map{"error": ve.Message, "reason": string(ve.Reason)}
	case errors.As(err, &te):
		switch te.Kind {
		case errs.TokenWrongPurpose:
			return http.StatusUnauthorized, echo.Map{"error": msgInvalidPurpose}
		case errs.TokenMalformed:
			return http.StatusUnauthorized, echo.Map{"error": msgMalformedToken}
		default:
			return http.StatusUnauthorized, echo.Map{"error": msgInvalidToken}
		}
	case errors.Is(err, errs.ErrReplayDetected):
		return http.StatusUnauthorized, echo.Map{"error": msgTokenUsed}
	case errors.Is(err, errs.ErrAccessRevoked):
		return http.StatusForbidden, echo.Map{"error": msgAccessRevoked}
	case errors.Is(err, errs.ErrUnauthorized):
		return http.StatusUnauthorized, echo.Map{"error": errUnauthenticated.Message}
	case errors.Is(err, errs.ErrForbidden), errors.Is(err, errs.ErrNotEntitled):
		return http.StatusForbidden, echo.Map{"error": rootMessage(err)}
	case errors.Is(err, errs.ErrModuleCourseMismatch), errors.Is(err, errs.ErrNoVideo), errors.Is(err, errs.ErrNotFound):
		return http.StatusNotFound, echo.Map{"error": rootMessage(err)}
	case errors.Is(err, errs.ErrRateLimited):
		return http.StatusTooManyRequests, echo.Map{"error": msgTooManyAttempts}
	case errors.As(err, &ce):
		return http.StatusInternalServerError, echo.Map{"error": msgServerError}
	default:
		return http.StatusInternalServerError, echo.Map{"error": msgServerError}
	}
}

// rootMessage returns the sentinel's text without wrapping context.
func rootMessage(err error) string {
	for _, s := range []error{
		errs.ErrForbidden, errs.ErrNotEntitled, errs.ErrModuleCourseMismatch, errs.ErrNoVideo, errs.ErrNotFound,
	} {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return err.Error()
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "The " + fe.Field() + " field is required."
	case "url":
		return "The " + fe.Field() + " must be a valid URL."
	case "max":
		return "The " + fe.Field() + " may not be greater than " + fe.Param() + "."
	case "min":
		return "The " + fe.Field() + " must be at least " + fe.Param() + "."
	default:
		return "The " + fe.Field() + " is invalid."
	}
}
