// Package sol reads and writes local shared object (.sol) containers: a
// sequence of tags, one of which holds the LSO body of named values.
package sol

import (
	"errors"
	"fmt"
	"math"

	"github.com/mtrqq/amf/pkg/cursor"
)

type TagType uint8

const (
	TagLSO      TagType = 2
	TagFilePath TagType = 3
)

func (t TagType) String() string {
	switch t {
	case TagLSO:
		return "LSO"
	case TagFilePath:
		return "FilePath"
	}
	return fmt.Sprintf("tag(%d)", uint8(t))
}

const (
	// longTagLength in the short header means an int32 length follows.
	longTagLength = 0x3f
	tagTypeShift   = 6
)

var ErrMalformedTag = errors.New("malformed sol tag")

type TagHeader struct {
	Type          TagType
	ContentLength int
	HeaderLength  int
}

// TagLength is the size of the tag including its header.
func (h TagHeader) TagLength() int {
	return h.HeaderLength + h.ContentLength
}

func readTagHeader(ba *cursor.ByteArray) (TagHeader, error) {
	start := ba.Position()

	typeAndLength, err := ba.ReadUint16()
	if err != nil {
		return TagHeader{}, fmt.Errorf("unable to read tag header: %w", err)
	}

	header := TagHeader{
		Type:          TagType(typeAndLength >> tagTypeShift),
		ContentLength: int(typeAndLength & longTagLength),
	}

	if header.ContentLength == longTagLength {
		length, err := ba.ReadInt32()
		if err != nil {
			return TagHeader{}, fmt.Errorf("unable to read tag length: %w", err)
		}
		if length < 0 {
			return TagHeader{}, fmt.Errorf("%w: negative length %d", ErrMalformedTag, length)
		}
		header.ContentLength = int(length)
	}

	header.HeaderLength = ba.Position() - start
	return header, nil
}

// writeTag always uses the long header form.
func writeTag(ba *cursor.ByteArray, tagType TagType, content []byte) error {
	if len(content) > math.MaxInt32 {
		return fmt.Errorf("%w: %v content of %d bytes", ErrMalformedTag, tagType, len(content))
	}

	ba.WriteUint16(uint16(tagType)<<tagTypeShift | longTagLength)
	ba.WriteInt32(int32(len(content)))
	ba.WriteBytes(content)
	return nil
}
