package amf3

import (
	"github.com/mtrqq/amf/pkg/cursor"
)

// dataOutput lets externalizable objects write raw fields and nested
// values into the running session.
type dataOutput struct {
	*cursor.ByteArray
	encoder *Encoder
	depth   int
}

func (o dataOutput) WriteValue(v any) error {
	return o.encoder.encode(v, o.depth+1)
}

type dataInput struct {
	*cursor.ByteArray
	decoder *Decoder
	depth   int
}

func (i dataInput) ReadValue() (any, error) {
	return i.decoder.decode(i.depth + 1)
}
