package raw

import (
	"encoding/binary"
	"fmt"
	"math"
	"unsafe"
)

var (
	byteOrder = binary.BigEndian
)

const (
	Int64ByteSize = int(unsafe.Sizeof(int64(0)))
	Int32ByteSize = int(unsafe.Sizeof(int32(0)))
	Int16ByteSize = int(unsafe.Sizeof(int16(0)))
	Int8ByteSize  = int(unsafe.Sizeof(int8(0)))

	Float64ByteSize = int(unsafe.Sizeof(float64(0)))
)

type fixedSizeInt interface {
	int32 | int64 | int16 | int8 | uint32 | uint64 | uint16 | uint8
}

// SizeOf returns the wire width of T in bytes.
func SizeOf[T fixedSizeInt]() int {
	var zero T
	return int(unsafe.Sizeof(zero))
}

// ParseInt decodes a big-endian integer of T's width from the head of buffer.
func ParseInt[T fixedSizeInt](value *T, buffer []byte) (int, error) {
	valueByteSize := int(unsafe.Sizeof(*value))
	if len(buffer) < valueByteSize {
		return 0, fmt.Errorf("unable to decode %T: too small buffer size, got %d, want %d", *value, len(buffer), valueByteSize)
	}

	switch valueByteSize {
	case 1:
		*value = T(buffer[0])
	case 2:
		*value = T(byteOrder.Uint16(buffer))
	case 4:
		*value = T(byteOrder.Uint32(buffer))
	case 8:
		*value = T(byteOrder.Uint64(buffer))
	}

	return valueByteSize, nil
}

func ParseUint8(value *uint8, buffer []byte) (int, error) {
	return ParseInt[uint8](value, buffer)
}

func ParseUint16(value *uint16, buffer []byte) (int, error) {
	return ParseInt[uint16](value, buffer)
}

func ParseUint32(value *uint32, buffer []byte) (int, error) {
	return ParseInt[uint32](value, buffer)
}

func ParseInt16(value *int16, buffer []byte) (int, error) {
	return ParseInt[int16](value, buffer)
}

func ParseInt32(value *int32, buffer []byte) (int, error) {
	return ParseInt[int32](value, buffer)
}

// PutInt writes value big-endian into the head of buffer.
func PutInt[T fixedSizeInt](buffer []byte, value T) (int, error) {
	valueByteSize := int(unsafe.Sizeof(value))
	if len(buffer) < valueByteSize {
		return 0, fmt.Errorf("insufficient buffer size to put data for %T, got %d, want %d", value, len(buffer), valueByteSize)
	}

	switch valueByteSize {
	case 1:
		buffer[0] = byte(value)
	case 2:
		byteOrder.PutUint16(buffer, uint16(value))
	case 4:
		byteOrder.PutUint32(buffer, uint32(value))
	case 8:
		byteOrder.PutUint64(buffer, uint64(value))
	}

	return valueByteSize, nil
}

func PutUint8(buffer []byte, value uint8) (int, error) {
	return PutInt[uint8](buffer, value)
}

func PutUint16(buffer []byte, value uint16) (int, error) {
	return PutInt[uint16](buffer, value)
}

func PutUint32(buffer []byte, value uint32) (int, error) {
	return PutInt[uint32](buffer, value)
}

func PutInt16(buffer []byte, value int16) (int, error) {
	return PutInt[int16](buffer, value)
}

func PutInt32(buffer []byte, value int32) (int, error) {
	return PutInt[int32](buffer, value)
}

// ParseFloat64 decodes an IEEE-754 double stored big-endian.
func ParseFloat64(value *float64, buffer []byte) (int, error) {
	var bits uint64
	read, err := ParseInt(&bits, buffer)
	if err != nil {
		return 0, fmt.Errorf("unable to decode float64: %w", err)
	}

	*value = math.Float64frombits(bits)
	return read, nil
}

func PutFloat64(buffer []byte, value float64) (int, error) {
	return PutInt(buffer, math.Float64bits(value))
}
