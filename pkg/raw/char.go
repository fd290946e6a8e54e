package raw

import (
	"fmt"
	"math"
)

const (
	// UTFHeaderSize is the width of the short string length prefix.
	UTFHeaderSize = Int16ByteSize
	// LongUTFHeaderSize is the width of the long string length prefix.
	LongUTFHeaderSize = Int32ByteSize

	MaxUTFLength = math.MaxUint16
)

// GetUTFSize returns the byte length announced by a 16-bit prefixed string.
func GetUTFSize(source []byte) (int, error) {
	var length uint16
	if _, err := ParseUint16(&length, source); err != nil {
		return 0, fmt.Errorf("unable to decode string: failed to parse length: %w", err)
	}

	return int(length), nil
}

// GetLongUTFSize returns the byte length announced by a 32-bit prefixed string.
func GetLongUTFSize(source []byte) (int, error) {
	var length uint32
	if _, err := ParseUint32(&length, source); err != nil {
		return 0, fmt.Errorf("unable to decode long string: failed to parse length: %w", err)
	}

	return int(length), nil
}

// PutUTF writes data prefixed by its 16-bit byte length.
func PutUTF(output []byte, data []byte) (int, error) {
	if len(data) > MaxUTFLength {
		return 0, fmt.Errorf("unable to put string with length %d exceeding %d bytes", len(data), MaxUTFLength)
	}

	if len(output) < UTFSizeFor(data) {
		return 0, fmt.Errorf("insufficient buffer size to put string, got %d, want %d", len(output), UTFSizeFor(data))
	}

	written, err := PutUint16(output, uint16(len(data)))
	if err != nil {
		return 0, fmt.Errorf("unable to put string: failed to write length: %w", err)
	}

	return written + copy(output[written:], data), nil
}

// PutLongUTF writes data prefixed by its 32-bit byte length.
func PutLongUTF(output []byte, data []byte) (int, error) {
	if int64(len(data)) > math.MaxUint32 {
		return 0, fmt.Errorf("unable to put long string with length %d exceeding %d bytes", len(data), uint32(math.MaxUint32))
	}

	if len(output) < LongUTFSizeFor(data) {
		return 0, fmt.Errorf("insufficient buffer size to put long string, got %d, want %d", len(output), LongUTFSizeFor(data))
	}

	written, err := PutUint32(output, uint32(len(data)))
	if err != nil {
		return 0, fmt.Errorf("unable to put long string: failed to write length: %w", err)
	}

	return written + copy(output[written:], data), nil
}

type CharData interface {
	[]byte | string
}

// UTFSizeFor returns the size in bytes required to store source as a short string.
func UTFSizeFor[T CharData](source T) int {
	return UTFHeaderSize + len(source)
}

// LongUTFSizeFor returns the size in bytes required to store source as a long string.
func LongUTFSizeFor[T CharData](source T) int {
	return LongUTFHeaderSize + len(source)
}

// PutBytes copies data into the head of buffer.
func PutBytes(buffer []byte, data []byte) (int, error) {
	if len(buffer) < len(data) {
		return 0, fmt.Errorf("insufficient buffer size to put data, got %d, want %d", len(buffer), len(data))
	}

	return copy(buffer, data), nil
}
