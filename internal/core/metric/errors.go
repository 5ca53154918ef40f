package metric

import (
	"errors"
	"fmt"
	"strings"
)

// MissingDataError is returned when a snapshot lacks the fields a metric is
// derived from, usually because the wrong firmware generation was selected.
type MissingDataError struct {
	Metric string
	Fields []string
}

func (e *MissingDataError) Error() string {
	return fmt.Sprintf("data not received for metric %s (missing %s)", e.Metric, strings.Join(e.Fields, ", "))
}

// InvalidValueError is returned when a source field holds something that is not a number.
type InvalidValueError struct {
	Metric string
	Field  string
	Err    error
}

func (e *InvalidValueError) Error() string {
	return fmt.Sprintf("invalid value for metric %s field %s: %v", e.Metric, e.Field, e.Err)
}

func (e *InvalidValueError) Unwrap() error {
	return e.Err
}

func IsMissingData(err error) bool {
	var missing *MissingDataError
	return errors.As(err, &missing)
}
