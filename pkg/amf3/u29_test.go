package amf3

import (
	"errors"
	"testing"

	"github.com/mtrqq/amf/pkg/cursor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestU29Boundaries(t *testing.T) {
	tests := []struct {
		value uint32
		size  int
	}{
		{0, 1},
		{127, 1},
		{128, 2},
		{16383, 2},
		{16384, 3},
		{2097151, 3},
		{2097152, 4},
		{MaxU29, 4},
	}

	for _, tt := range tests {
		ba := cursor.NewWithCapacity(4)
		require.NoError(t, WriteU29(ba, tt.value))
		assert.Equal(t, tt.size, ba.Len(), "value %d", tt.value)

		ba.Rewind()
		got, err := ReadU29(ba)
		require.NoError(t, err)
		assert.Equal(t, tt.value, got)
	}
}

func TestU29OutOfRange(t *testing.T) {
	for _, value := range []uint32{MaxU29 + 1, 1073741823, 1073741824} {
		ba := cursor.NewWithCapacity(4)
		err := WriteU29(ba, value)
		assert.True(t, errors.Is(err, ErrIntegerOutOfRange), "value %d", value)
		assert.Equal(t, 0, ba.Len())
	}
}

func TestU29Layout(t *testing.T) {
	ba := cursor.NewWithCapacity(4)
	require.NoError(t, WriteU29(ba, 0x3FFF))
	assert.Equal(t, []byte{0xFF, 0x7F}, ba.Bytes())

	ba.Reset()
	require.NoError(t, WriteU29(ba, MaxU29))
	assert.Equal(t, []byte{0xFF, 0xFF, 0xFF, 0xFF}, ba.Bytes())
}

func TestU29Truncated(t *testing.T) {
	_, err := ReadU29(cursor.New([]byte{0x80, 0x80}))
	assert.True(t, errors.Is(err, cursor.ErrUnexpectedEndOfInput))
}

func TestIntSignExtension(t *testing.T) {
	for _, n := range []int64{0, 1, -1, MinInt, MaxInt, -12345} {
		assert.Equal(t, int(n), decodeInt(encodeInt(n)), "value %d", n)
	}
}
