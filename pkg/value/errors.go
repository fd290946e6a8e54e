package value

import "errors"

var (
	ErrUnsupportedValueType      = errors.New("value has no wire representation")
	ErrVectorElementTypeMismatch = errors.New("vector element has invalid type")
	ErrVectorFixedLength         = errors.New("vector has fixed length")
	ErrUnknownMarker             = errors.New("unknown marker")
	ErrInvalidReference          = errors.New("reference index out of range")
	ErrMaxDepthExceeded          = errors.New("maximum nesting depth exceeded")
	ErrLengthExceedsInput        = errors.New("announced length exceeds remaining input")
)
