package spatialmath

import "github.com/pkg/errors"

// ErrZeroAxis is returned when a rotation axis of zero length has to be normalized.
var ErrZeroAxis = errors.New("cannot normalize a zero-length rotation axis")
