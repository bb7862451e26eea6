package errors

import (
	"errors"
	"net/http"

	"github.com/louisbranch/popup.city/internal/platform/errors/i18n"
)

// DefaultLocale is the default locale for error messages.
const DefaultLocale = "en-US"

// HTTPError is the wire shape a domain error takes in JSON responses.
type HTTPError struct {
	Code     string            `json:"code"`
	Message  string            `json:"message"`
	Locale   string            `json:"locale"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// HandleError converts a domain error to an HTTP status and response body.
// It formats the user-facing message using the i18n catalog for the given
// locale, defaulting to en-US if the locale is empty.
func HandleError(err error, locale string) (int, HTTPError) {
	if locale == "" {
		locale = DefaultLocale
	}

	var appErr *Error
	if errors.As(err, &appErr) {
		catalog := i18n.GetCatalog(locale)
		userMsg := catalog.Format(string(appErr.Code), appErr.Metadata)
		return appErr.Code.HTTPStatus(), HTTPError{
			Code:     string(appErr.Code),
			Message:  userMsg,
			Locale:   catalog.Locale(),
			Metadata: appErr.Metadata,
		}
	}

	// Unknown error - return internal with generic message
	return http.StatusInternalServerError, HTTPError{
		Code:    string(CodeUnknown),
		Message: "an unexpected error occurred",
		Locale:  locale,
	}
}

// GetCode extracts the error code from any error.
// Returns CodeUnknown if the error is not a domain error.
func GetCode(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeUnknown
}

// IsCode checks if the error has the specified code.
func IsCode(err error, code Code) bool {
	return GetCode(err) == code
}

// GetMetadata extracts metadata from an error if present.
// Returns nil if the error is not a domain error or has no metadata.
func GetMetadata(err error) map[string]string {
	var e *Error
	if errors.As(err, &e) {
		return e.Metadata
	}
	return nil
}
