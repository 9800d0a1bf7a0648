// Package validation checks inbound payload shape and reports the first
// violated constraint as a domain validation error.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/GolovachevS/cr-dashboard/internal/domain"
)

const dateLayout = "2006-01-02"

// timestampLayouts are tried in order; values without an offset are UTC.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04",
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Struct validates a payload annotated with `validate` tags.
func Struct(payload any) error {
	err := validate.Struct(payload)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		return domain.NewValidationError(describe(fieldErrs[0]))
	}
	return domain.NewValidationError(err.Error())
}

// ID checks that value is a UUID-shaped identifier.
func ID(field, value string) error {
	if err := validate.Var(value, "required,uuid"); err != nil {
		return domain.NewValidationError(fmt.Sprintf("%q must be a valid GUID", field))
	}
	return nil
}

// DueDate parses an ISO-8601 date or timestamp. Unless allowPast is set, a
// date-only value must not be before today and a timestamp not before now.
func DueDate(field, raw string, now time.Time, allowPast bool) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, domain.NewValidationError(fmt.Sprintf("%q is required", field))
	}

	if day, err := time.Parse(dateLayout, raw); err == nil {
		today := now.UTC().Truncate(24 * time.Hour)
		if !allowPast && day.Before(today) {
			return time.Time{}, domain.NewValidationError(fmt.Sprintf("%q must be greater than or equal to \"now\"", field))
		}
		return day, nil
	}

	ts, ok := parseTimestamp(raw)
	if !ok {
		return time.Time{}, domain.NewValidationError(fmt.Sprintf("%q must be in ISO 8601 date format", field))
	}
	if !allowPast && ts.Before(now) {
		return time.Time{}, domain.NewValidationError(fmt.Sprintf("%q must be greater than or equal to \"now\"", field))
	}
	return ts.UTC(), nil
}

func parseTimestamp(raw string) (time.Time, bool) {
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}

// CRStatus checks membership in the change request status enumeration.
func CRStatus(raw string) (domain.CRStatus, error) {
	if raw == "" {
		return "", domain.NewValidationError(`"status" is required`)
	}
	for _, status := range domain.CRStatuses {
		if string(status) == raw {
			return status, nil
		}
	}
	return "", domain.NewValidationError(enumMessage("status", crStatusNames()))
}

// TaskStatus checks membership in the task status enumeration.
func TaskStatus(raw string) (domain.TaskStatus, error) {
	if raw == "" {
		return "", domain.NewValidationError(`"status" is required`)
	}
	for _, status := range domain.TaskStatuses {
		if string(status) == raw {
			return status, nil
		}
	}
	return "", domain.NewValidationError(enumMessage("status", taskStatusNames()))
}

// UniqueIDs drops repeated identifiers while keeping first-seen order.
func UniqueIDs(ids []string) []string {
	if ids == nil {
		return nil
	}
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func describe(fe validator.FieldError) string {
	field := fieldPath(fe)
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%q is required", field)
	case "min":
		if isCollection(fe.Kind()) {
			return fmt.Sprintf("%q must contain at least %s items", field, fe.Param())
		}
		return fmt.Sprintf("%q length must be at least %s characters long", field, fe.Param())
	case "max":
		if isCollection(fe.Kind()) {
			return fmt.Sprintf("%q must contain less than or equal to %s items", field, fe.Param())
		}
		return fmt.Sprintf("%q length must be less than or equal to %s characters long", field, fe.Param())
	case "oneof":
		return enumMessage(field, strings.Fields(fe.Param()))
	case "uuid", "uuid4":
		return fmt.Sprintf("%q must be a valid GUID", field)
	case "email":
		return fmt.Sprintf("%q must be a valid email", field)
	case "uri", "url":
		return fmt.Sprintf("%q must be a valid uri", field)
	default:
		return fmt.Sprintf("%q is invalid", field)
	}
}

// fieldPath drops the top-level struct name from the namespace.
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if idx := strings.Index(ns, "."); idx >= 0 {
		return ns[idx+1:]
	}
	return fe.Field()
}

func isCollection(kind reflect.Kind) bool {
	return kind == reflect.Slice || kind == reflect.Array || kind == reflect.Map
}

func enumMessage(field string, values []string) string {
	return fmt.Sprintf("%q must be one of [%s]", field, strings.Join(values, ", "))
}

func crStatusNames() []string {
	names := make([]string, 0, len(domain.CRStatuses))
	for _, status := range domain.CRStatuses {
		names = append(names, string(status))
	}
	return names
}

func taskStatusNames() []string {
	names := make([]string, 0, len(domain.TaskStatuses))
	for _, status := range domain.TaskStatuses {
		names = append(names, string(status))
	}
	return names
}
