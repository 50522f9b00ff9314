// Package errors derives low-cardinality labels from errors for logs and metrics.
package errors

import (
	goerrors "errors"
	"reflect"
	"strings"

	apperrors "github.com/medibook/clinic-gate/internal/errors"
)

// Classify returns a normalized error class. Application errors are labelled
// by their code ("app_unauthorized"); anything else by the innermost concrete
// type ("net_oper_error").
func Classify(err error) string {
	if err == nil {
		return ""
	}
	var appErr *apperrors.AppError
	if goerrors.As(err, &appErr) && appErr.Code != "" {
		return "app_" + string(appErr.Code)
	}

	for {
		unwrapped := goerrors.Unwrap(err)
		if unwrapped == nil {
			break
		}
		err = unwrapped
	}

	t := reflect.TypeOf(err)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil {
		return "unknown"
	}

	name := strings.ToLower(strings.ReplaceAll(t.String(), "*", ""))
	name = strings.ReplaceAll(name, ".", "_")
	if name == "" {
		return "unknown"
	}
	return name
}
