package transport

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	nethttp "net/http"
	"reflect"

	"github.com/gin-gonic/gin"

	"github.com/GolovachevS/cr-dashboard/internal/domain"
)

// envelope is the uniform body of every response.
type envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

func writeEnvelope(c *gin.Context, status int, body envelope) {
	c.JSON(status, body)
}

func respondOK(c *gin.Context, status int, data any, message string) {
	writeEnvelope(c, status, envelope{Success: true, Data: data, Message: message})
}

// respondValidationError reports a body that could not be decoded.
func respondValidationError(c *gin.Context, err error) {
	writeEnvelope(c, nethttp.StatusBadRequest, envelope{Message: "Validation error", Error: bindErrorDetail(err)})
}

// bindErrorDetail turns decoder failures into messages that name the
// offending field instead of Go types.
func bindErrorDetail(err error) string {
	var typeErr *json.UnmarshalTypeError
	var syntaxErr *json.SyntaxError
	switch {
	case errors.Is(err, io.EOF):
		return `"value" must be of type object`
	case errors.As(err, &typeErr):
		field := typeErr.Field
		if field == "" {
			field = "value"
		}
		return fmt.Sprintf("%q must be %s", field, kindPhrase(typeErr.Type))
	case errors.As(err, &syntaxErr), errors.Is(err, io.ErrUnexpectedEOF):
		return "Request body must be valid JSON"
	}
	return "Invalid request body"
}

func kindPhrase(t reflect.Type) string {
	if t == nil {
		return "of type object"
	}
	switch t.Kind() {
	case reflect.Slice, reflect.Array:
		return "an array"
	case reflect.String:
		return "a string"
	case reflect.Bool:
		return "a boolean"
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return "a number"
	}
	return "of type object"
}

// respondError maps err onto the envelope. failure names the operation for
// unclassified errors, e.g. "Failed to fetch users".
func (h handler) respondError(c *gin.Context, failure string, err error) {
	var appErr *domain.AppError
	if errors.As(err, &appErr) {
		switch appErr.Code {
		case domain.ErrCodeValidation:
			writeEnvelope(c, appErr.Status, envelope{Message: appErr.Message, Error: appErr.Detail})
			return
		case domain.ErrCodeNotFound, domain.ErrCodeConflict:
			writeEnvelope(c, appErr.Status, envelope{Message: appErr.Message})
			return
		}
	}

	slog.Error(failure,
		slog.String("method", c.Request.Method),
		slog.String("path", c.Request.URL.Path),
		slog.String("error", err.Error()),
	)
	body := envelope{Message: failure}
	if h.development {
		body.Error = err.Error()
	}
	writeEnvelope(c, nethttp.StatusInternalServerError, body)
}
