package amf3

import (
	"fmt"

	"github.com/mtrqq/amf/pkg/cursor"
)

// WriteU29 writes value in one to four bytes. The first three bytes carry
// seven bits each behind a continuation flag, a fourth byte carries eight.
func WriteU29(ba *cursor.ByteArray, value uint32) error {
	switch {
	case value < 0x80:
		ba.WriteUint8(uint8(value))
	case value < 0x4000:
		ba.WriteUint8(uint8(value>>7&0x7F | 0x80))
		ba.WriteUint8(uint8(value & 0x7F))
	case value < 0x200000:
		ba.WriteUint8(uint8(value>>14&0x7F | 0x80))
		ba.WriteUint8(uint8(value>>7&0x7F | 0x80))
		ba.WriteUint8(uint8(value & 0x7F))
	case value <= MaxU29:
		ba.WriteUint8(uint8(value>>22&0x7F | 0x80))
		ba.WriteUint8(uint8(value>>15&0x7F | 0x80))
		ba.WriteUint8(uint8(value>>8&0x7F | 0x80))
		ba.WriteUint8(uint8(value & 0xFF))
	default:
		return fmt.Errorf("%w: %d", ErrIntegerOutOfRange, value)
	}
	return nil
}

func ReadU29(ba *cursor.ByteArray) (uint32, error) {
	var value uint32
	for i := 0; i < 3; i++ {
		b, err := ba.ReadUint8()
		if err != nil {
			return 0, fmt.Errorf("unable to read u29: %w", err)
		}
		if b < 0x80 {
			return value<<7 | uint32(b), nil
		}
		value = value<<7 | uint32(b&0x7F)
	}

	b, err := ba.ReadUint8()
	if err != nil {
		return 0, fmt.Errorf("unable to read u29: %w", err)
	}
	return value<<8 | uint32(b), nil
}

// encodeInt folds a signed INT into its 29-bit two's complement payload.
func encodeInt(value int64) uint32 {
	return uint32(value) & MaxU29
}

// decodeInt sign-extends a 29-bit INT payload.
func decodeInt(value uint32) int {
	if value&0x10000000 != 0 {
		return int(value) - 0x20000000
	}
	return int(value)
}
