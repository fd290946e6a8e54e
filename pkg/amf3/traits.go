package amf3

import (
	"strconv"
	"strings"
)

// Traits describe the shape of a typed object. Two objects with the same
// shape share one entry of the trait table.
type Traits struct {
	ClassName      string
	Externalizable bool
	Dynamic        bool
	Properties     []string
}

// signature identifies the shape for trait table lookups.
func (t *Traits) signature() string {
	var builder strings.Builder
	builder.WriteString(strconv.Quote(t.ClassName))
	builder.WriteByte('|')
	builder.WriteString(strconv.FormatBool(t.Externalizable))
	builder.WriteByte('|')
	builder.WriteString(strconv.FormatBool(t.Dynamic))
	for _, property := range t.Properties {
		builder.WriteByte('|')
		builder.WriteString(strconv.Quote(property))
	}
	return builder.String()
}

func (t *Traits) header() uint32 {
	header := uint32(traitsInline) | uint32(len(t.Properties))<<traitsCountShift
	if t.Externalizable {
		header |= traitsExternalizable
	}
	if t.Dynamic {
		header |= traitsDynamic
	}
	return header
}
