// Package amf0 implements the legacy (format 0) codec. Composite values
// share one reference table, and the AVM+ marker switches a single value to
// the current format on the same cursor.
package amf0

import (
	"github.com/mtrqq/amf/pkg/amf3"
)

const (
	MarkerNumber      uint8 = 0x00
	MarkerBoolean     uint8 = 0x01
	MarkerString      uint8 = 0x02
	MarkerObject      uint8 = 0x03
	MarkerMovieClip   uint8 = 0x04
	MarkerNull        uint8 = 0x05
	MarkerUndefined   uint8 = 0x06
	MarkerReference   uint8 = 0x07
	MarkerECMAArray   uint8 = 0x08
	MarkerObjectEnd   uint8 = 0x09
	MarkerStrictArray uint8 = 0x0A
	MarkerDate        uint8 = 0x0B
	MarkerLongString  uint8 = 0x0C
	MarkerUnsupported uint8 = 0x0D
	MarkerRecordSet   uint8 = 0x0E
	MarkerXMLDoc      uint8 = 0x0F
	MarkerTypedObject uint8 = 0x10
	MarkerAVMPlus     uint8 = 0x11
)

// MaxReferences is the size of the table a 16-bit reference can address.
const MaxReferences = 1 << 16

// Options is fixed for the lifetime of an Encoder or Decoder.
type Options struct {
	// AVMPlus writes every composite value through the AVM+ escape.
	AVMPlus bool
	// Lenient decodes unknown markers as value.Undefined instead of failing.
	Lenient  bool
	MaxDepth int
	// AMF3 configures the embedded current-format session.
	AMF3 amf3.Options
}

func (o Options) maxDepth() int {
	if o.MaxDepth <= 0 {
		return amf3.DefaultMaxDepth
	}
	return o.MaxDepth
}

// embedded carries the depth limit into the escaped session.
func (o Options) embedded() amf3.Options {
	options := o.AMF3
	if options.MaxDepth <= 0 {
		options.MaxDepth = o.maxDepth()
	}
	options.Lenient = options.Lenient || o.Lenient
	return options
}
