// Package cursor implements ByteArray, a positional reader/writer over a
// growable in-memory buffer. All multi-byte quantities are big-endian.
//
// A ByteArray is not safe for concurrent use; one cursor belongs to one
// in-progress encode or decode.
package cursor

import (
	"errors"
	"fmt"

	"github.com/mtrqq/amf/pkg/raw"
	"github.com/mtrqq/amf/pkg/utils"
	"github.com/rs/zerolog/log"
)

var (
	ErrUnexpectedEndOfInput = errors.New("unexpected end of input")
	ErrStringTooLong        = errors.New("string exceeds 16-bit length prefix")
	ErrInvalidPosition      = errors.New("position outside of buffer")
)

type ByteArray struct {
	// buffer holds every byte written so far, len(buffer) is the logical length
	buffer []byte
	// position is the offset of the next read or write
	position int
}

// New wraps data without copying it, the cursor starts at position zero.
func New(data []byte) *ByteArray {
	return &ByteArray{buffer: data}
}

// NewWithCapacity returns an empty cursor with room for capacity bytes.
func NewWithCapacity(capacity int) *ByteArray {
	return &ByteArray{buffer: make([]byte, 0, capacity)}
}

func (b *ByteArray) Position() int {
	return b.position
}

func (b *ByteArray) SetPosition(position int) error {
	if position < 0 || position > len(b.buffer) {
		return fmt.Errorf("%w: %d not in [0, %d]", ErrInvalidPosition, position, len(b.buffer))
	}

	b.position = position
	return nil
}

// Rewind moves the cursor back to the first byte.
func (b *ByteArray) Rewind() {
	b.position = 0
}

func (b *ByteArray) Len() int {
	return len(b.buffer)
}

// Available returns the number of bytes left to read.
func (b *ByteArray) Available() int {
	return len(b.buffer) - b.position
}

// Bytes returns the whole buffer regardless of position, the slice aliases
// the cursor storage.
func (b *ByteArray) Bytes() []byte {
	return b.buffer
}

// Reset empties the buffer, keeping the allocated storage.
func (b *ByteArray) Reset() {
	b.buffer = b.buffer[:0]
	b.position = 0
}

// next returns the following n bytes and advances past them.
func (b *ByteArray) next(n int) ([]byte, error) {
	if n < 0 || b.Available() < n {
		return nil, fmt.Errorf("%w: need %d bytes at offset %d, have %d", ErrUnexpectedEndOfInput, n, b.position, b.Available())
	}

	out := b.buffer[b.position : b.position+n]
	b.position += n
	return out, nil
}

// reserve returns a writable window of n bytes at the current position,
// growing the buffer when the window crosses its end.
func (b *ByteArray) reserve(n int) []byte {
	end := b.position + n
	if end > len(b.buffer) {
		if end > cap(b.buffer) {
			grown := make([]byte, len(b.buffer), max(end, 2*cap(b.buffer)))
			copy(grown, b.buffer)
			b.buffer = grown
		}
		b.buffer = b.buffer[:end]
	}

	out := b.buffer[b.position:end]
	b.position = end
	return out
}

func readInt[T interface {
	int8 | int16 | int32 | uint8 | uint16 | uint32
}](b *ByteArray) (T, error) {
	var value T
	data, err := b.next(raw.SizeOf[T]())
	if err != nil {
		return 0, err
	}

	if _, err := raw.ParseInt(&value, data); err != nil {
		return 0, err
	}
	return value, nil
}

func writeInt[T interface {
	int8 | int16 | int32 | uint8 | uint16 | uint32
}](b *ByteArray, value T) {
	if _, err := raw.PutInt(b.reserve(raw.SizeOf[T]()), value); err != nil {
		log.Error().Err(err).Int("position", b.position).Msg("failed to put integer into cursor")
	}
}

func (b *ByteArray) ReadUint8() (uint8, error)   { return readInt[uint8](b) }
func (b *ByteArray) ReadInt8() (int8, error)     { return readInt[int8](b) }
func (b *ByteArray) ReadUint16() (uint16, error) { return readInt[uint16](b) }
func (b *ByteArray) ReadInt16() (int16, error)   { return readInt[int16](b) }
func (b *ByteArray) ReadUint32() (uint32, error) { return readInt[uint32](b) }
func (b *ByteArray) ReadInt32() (int32, error)   { return readInt[int32](b) }

func (b *ByteArray) WriteUint8(value uint8)   { writeInt(b, value) }
func (b *ByteArray) WriteInt8(value int8)     { writeInt(b, value) }
func (b *ByteArray) WriteUint16(value uint16) { writeInt(b, value) }
func (b *ByteArray) WriteInt16(value int16)   { writeInt(b, value) }
func (b *ByteArray) WriteUint32(value uint32) { writeInt(b, value) }
func (b *ByteArray) WriteInt32(value int32)   { writeInt(b, value) }

// ReadBool reads one byte, any non-zero value is true.
func (b *ByteArray) ReadBool() (bool, error) {
	value, err := b.ReadUint8()
	return value != 0, err
}

func (b *ByteArray) WriteBool(value bool) {
	if value {
		b.WriteUint8(1)
		return
	}
	b.WriteUint8(0)
}

func (b *ByteArray) ReadFloat64() (float64, error) {
	data, err := b.next(raw.Float64ByteSize)
	if err != nil {
		return 0, err
	}

	var value float64
	if _, err := raw.ParseFloat64(&value, data); err != nil {
		return 0, err
	}
	return value, nil
}

func (b *ByteArray) WriteFloat64(value float64) {
	if _, err := raw.PutFloat64(b.reserve(raw.Float64ByteSize), value); err != nil {
		log.Error().Err(err).Int("position", b.position).Msg("failed to put float into cursor")
	}
}

// ReadBytes returns a copy of the next n bytes.
func (b *ByteArray) ReadBytes(n int) ([]byte, error) {
	data, err := b.next(n)
	if err != nil {
		return nil, err
	}

	out := make([]byte, n)
	copy(out, data)
	return out, nil
}

func (b *ByteArray) WriteBytes(data []byte) {
	if _, err := raw.PutBytes(b.reserve(len(data)), data); err != nil {
		log.Error().Err(err).Int("position", b.position).Msg("failed to put bytes into cursor")
	}
}

// ReadUTFBytes reads n bytes of UTF-8 text with no length prefix.
func (b *ByteArray) ReadUTFBytes(n int) (string, error) {
	data, err := b.ReadBytes(n)
	if err != nil {
		return "", fmt.Errorf("unable to read string of %d bytes: %w", n, err)
	}

	return utils.StringTakeOverByteArray(data), nil
}

func (b *ByteArray) WriteUTFBytes(s string) {
	b.WriteBytes(utils.ByteArrayFromString(s))
}

// ReadUTF reads a string prefixed by its 16-bit byte length.
func (b *ByteArray) ReadUTF() (string, error) {
	length, err := b.ReadUint16()
	if err != nil {
		return "", fmt.Errorf("unable to read string length: %w", err)
	}

	return b.ReadUTFBytes(int(length))
}

func (b *ByteArray) WriteUTF(s string) error {
	if len(s) > raw.MaxUTFLength {
		return fmt.Errorf("%w: %d bytes", ErrStringTooLong, len(s))
	}

	if _, err := raw.PutUTF(b.reserve(raw.UTFSizeFor(s)), utils.ByteArrayFromString(s)); err != nil {
		return fmt.Errorf("unable to write string: %w", err)
	}
	return nil
}

// ReadLongUTF reads a string prefixed by its 32-bit byte length.
func (b *ByteArray) ReadLongUTF() (string, error) {
	length, err := b.ReadUint32()
	if err != nil {
		return "", fmt.Errorf("unable to read long string length: %w", err)
	}

	return b.ReadUTFBytes(int(length))
}

func (b *ByteArray) WriteLongUTF(s string) error {
	if _, err := raw.PutLongUTF(b.reserve(raw.LongUTFSizeFor(s)), utils.ByteArrayFromString(s)); err != nil {
		return fmt.Errorf("unable to write long string: %w", err)
	}
	return nil
}

// Truncate drops every byte from length onward, clamping the position.
func (b *ByteArray) Truncate(length int) error {
	if length < 0 || length > len(b.buffer) {
		return fmt.Errorf("%w: %d not in [0, %d]", ErrInvalidPosition, length, len(b.buffer))
	}

	b.buffer = b.buffer[:length]
	b.position = min(b.position, length)
	return nil
}
