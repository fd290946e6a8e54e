// Package amf3 implements the current (format 3) codec: U29 integers,
// separate reference tables for strings, objects and traits, typed objects
// with trait caching, vectors, dictionaries and byte arrays.
package amf3

import (
	"errors"
)

var (
	ErrIntegerOutOfRange          = errors.New("integer out of u29 range")
	ErrTraitsNotFound             = errors.New("traits not found")
	ErrUnregisteredExternalizable = errors.New("externalizable class is not registered")
)

// DefaultMaxDepth bounds nesting when Options.MaxDepth is zero.
const DefaultMaxDepth = 512

// Options is fixed for the lifetime of an Encoder or Decoder.
type Options struct {
	// AssumeIntegers writes integral float64 values within the INT range
	// as INT.
	AssumeIntegers bool
	// Lenient decodes unknown markers as value.Undefined instead of failing.
	Lenient  bool
	MaxDepth int
}

func (o Options) maxDepth() int {
	if o.MaxDepth <= 0 {
		return DefaultMaxDepth
	}
	return o.MaxDepth
}
