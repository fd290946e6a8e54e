package value

import "fmt"

// DataInput is handed to ReadExternal. Reads consume the body of the
// object being decoded, ReadValue decodes one nested value in the same
// session.
type DataInput interface {
	ReadValue() (any, error)
	ReadBool() (bool, error)
	ReadUint8() (uint8, error)
	ReadInt16() (int16, error)
	ReadUint16() (uint16, error)
	ReadInt32() (int32, error)
	ReadUint32() (uint32, error)
	ReadFloat64() (float64, error)
	ReadUTF() (string, error)
	ReadBytes(n int) ([]byte, error)
}

// DataOutput is handed to WriteExternal.
type DataOutput interface {
	WriteValue(v any) error
	WriteBool(value bool)
	WriteUint8(value uint8)
	WriteInt16(value int16)
	WriteUint16(value uint16)
	WriteInt32(value int32)
	WriteUint32(value uint32)
	WriteFloat64(value float64)
	WriteUTF(s string) error
	WriteBytes(data []byte)
}

// Externalizable objects serialize their own body. Implementations must be
// pointer types registered under a class name.
type Externalizable interface {
	ReadExternal(in DataInput) error
	WriteExternal(out DataOutput) error
}

const ArrayCollectionClass = "flex.messaging.io.ArrayCollection"

// ArrayCollection wraps an array as an externalizable body.
type ArrayCollection struct {
	Source *Array
}

func NewArrayCollection(elements ...any) *ArrayCollection {
	return &ArrayCollection{Source: NewArray(elements...)}
}

func (c *ArrayCollection) ReadExternal(in DataInput) error {
	source, err := in.ReadValue()
	if err != nil {
		return fmt.Errorf("unable to read array collection source: %w", err)
	}

	switch s := source.(type) {
	case *Array:
		c.Source = s
	case nil:
		c.Source = NewArray()
	case *AssocArray:
		c.Source = NewArray(s.Dense...)
	default:
		return fmt.Errorf("%w: array collection source is %T", ErrUnsupportedValueType, source)
	}
	return nil
}

func (c *ArrayCollection) WriteExternal(out DataOutput) error {
	if c.Source == nil {
		return out.WriteValue(NewArray())
	}
	return out.WriteValue(c.Source)
}
