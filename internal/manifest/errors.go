// SPDX-License-Identifier: MIT

package manifest

import (
	"errors"
	"fmt"
)

// Parse failure categories. Callers branch on these to distinguish a document
// that is simply the wrong format (e.g. a media playlist handed to the DASH
// parser) from one that is structurally broken.
var (
	// ErrWrongType marks input that is not the manifest type the parser handles.
	ErrWrongType = errors.New("wrong manifest type")
	// ErrMalformed marks input that is the right type but structurally invalid.
	ErrMalformed = errors.New("malformed manifest")
)

// WrongTypef wraps ErrWrongType with detail.
func WrongTypef(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrWrongType, fmt.Sprintf(format, args...))
}

// Malformedf wraps ErrMalformed with detail.
func Malformedf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformed, fmt.Sprintf(format, args...))
}
