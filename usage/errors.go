package usage

import (
	"fmt"

	"github.com/pkg/errors"
)

// FormatError reports data that does not follow the log format.
type FormatError struct {
	Op     string
	Input  interface{}
	Reason string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Reason, e.Input)
}

// IsFormatError reports whether the cause of err is a *FormatError.
func IsFormatError(err error) bool {
	_, ok := errors.Cause(err).(*FormatError)
	return ok
}
