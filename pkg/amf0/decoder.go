package amf0

import (
	"errors"
	"fmt"
	"reflect"

	"github.com/mtrqq/amf/pkg/amf3"
	"github.com/mtrqq/amf/pkg/cursor"
	"github.com/mtrqq/amf/pkg/registry"
	"github.com/mtrqq/amf/pkg/value"
	"github.com/rs/zerolog/log"
)

// Decoder reads values from a cursor. The reference table spans every
// Decode call until Reset.
type Decoder struct {
	ba       *cursor.ByteArray
	registry *registry.Registry
	options  Options

	references []any
	amf3       *amf3.Decoder
}

func NewDecoder(ba *cursor.ByteArray, reg *registry.Registry, options Options) *Decoder {
	return &Decoder{
		ba:       ba,
		registry: reg,
		options:  options,
		amf3:     amf3.NewDecoder(ba, reg, options.embedded()),
	}
}

// Reset clears the reference table and the tables of the embedded
// current-format session.
func (d *Decoder) Reset() {
	clear(d.references)
	d.references = d.references[:0]
	d.amf3.Reset()
}

func (d *Decoder) Decode() (any, error) {
	return d.decode(0)
}

func (d *Decoder) ensure(n uint64) error {
	if n > uint64(d.ba.Available()) {
		return fmt.Errorf("%w: need at least %d bytes at offset %d, have %d",
			value.ErrLengthExceedsInput, n, d.ba.Position(), d.ba.Available())
	}
	return nil
}

func (d *Decoder) decode(depth int) (any, error) {
	marker, err := d.ba.ReadUint8()
	if err != nil {
		return nil, fmt.Errorf("unable to read marker: %w", err)
	}
	return d.decodeMarker(marker, depth)
}

func (d *Decoder) decodeMarker(marker uint8, depth int) (any, error) {
	if depth > d.options.maxDepth() {
		return nil, fmt.Errorf("%w: %d", value.ErrMaxDepthExceeded, d.options.maxDepth())
	}

	switch marker {
	case MarkerNumber:
		return d.ba.ReadFloat64()
	case MarkerBoolean:
		return d.ba.ReadBool()
	case MarkerString:
		return d.ba.ReadUTF()
	case MarkerLongString:
		return d.readLongString()
	case MarkerNull:
		return nil, nil
	case MarkerUndefined, MarkerUnsupported:
		return value.Undefined, nil
	case MarkerReference:
		return d.readReference()
	case MarkerECMAArray:
		return d.readECMAArray(depth)
	case MarkerObject:
		return d.readObject("", depth)
	case MarkerTypedObject:
		className, err := d.ba.ReadUTF()
		if err != nil {
			return nil, fmt.Errorf("unable to read class name: %w", err)
		}
		return d.readObject(className, depth)
	case MarkerStrictArray:
		return d.readStrictArray(depth)
	case MarkerDate:
		return d.readDate()
	case MarkerXMLDoc:
		source, err := d.readLongString()
		if err != nil {
			return nil, err
		}
		return value.ParseXML(source, false)
	case MarkerAVMPlus:
		return d.amf3.Decode()
	}

	if d.options.Lenient {
		log.Warn().Uint8("marker", marker).Int("position", d.ba.Position()-1).Msg("decoding unknown marker as undefined")
		return value.Undefined, nil
	}
	return nil, fmt.Errorf("%w: 0x%02x at offset %d", value.ErrUnknownMarker, marker, d.ba.Position()-1)
}

func (d *Decoder) readLongString() (string, error) {
	length, err := d.ba.ReadUint32()
	if err != nil {
		return "", fmt.Errorf("unable to read long string length: %w", err)
	}
	if err := d.ensure(uint64(length)); err != nil {
		return "", err
	}
	return d.ba.ReadUTFBytes(int(length))
}

func (d *Decoder) readReference() (any, error) {
	index, err := d.ba.ReadUint16()
	if err != nil {
		return nil, fmt.Errorf("unable to read reference: %w", err)
	}
	if int(index) >= len(d.references) {
		return nil, fmt.Errorf("%w: %d of %d", value.ErrInvalidReference, index, len(d.references))
	}
	return d.references[index], nil
}

func (d *Decoder) readDate() (any, error) {
	millis, err := d.ba.ReadFloat64()
	if err != nil {
		return nil, fmt.Errorf("unable to read date: %w", err)
	}
	// the zone offset is advisory
	if _, err := d.ba.ReadInt16(); err != nil {
		return nil, fmt.Errorf("unable to read date zone: %w", err)
	}

	date := value.DateFromMillis(millis)
	d.references = append(d.references, date)
	return date, nil
}

func (d *Decoder) readStrictArray(depth int) (any, error) {
	count, err := d.ba.ReadUint32()
	if err != nil {
		return nil, fmt.Errorf("unable to read array length: %w", err)
	}
	if err := d.ensure(uint64(count)); err != nil {
		return nil, err
	}

	array := &value.Array{}
	d.references = append(d.references, array)
	if count == 0 {
		return array, nil
	}

	array.Elements = make([]any, count)
	for i := range array.Elements {
		if array.Elements[i], err = d.decode(depth + 1); err != nil {
			return nil, fmt.Errorf("unable to read element %d: %w", i, err)
		}
	}
	return array, nil
}

// readMembers reads name/value pairs up to the empty name followed by
// OBJECT_END.
func (d *Decoder) readMembers(depth int, set func(name string, member any) error) error {
	for {
		name, err := d.ba.ReadUTF()
		if err != nil {
			return fmt.Errorf("unable to read property name: %w", err)
		}

		marker, err := d.ba.ReadUint8()
		if err != nil {
			return fmt.Errorf("unable to read marker of %q: %w", name, err)
		}
		if name == "" && marker == MarkerObjectEnd {
			return nil
		}

		member, err := d.decodeMarker(marker, depth+1)
		if err != nil {
			return fmt.Errorf("unable to read property %q: %w", name, err)
		}
		if err := set(name, member); err != nil {
			return err
		}
	}
}

// readECMAArray treats the leading count as a hint, the terminator ends
// the entries.
func (d *Decoder) readECMAArray(depth int) (any, error) {
	if _, err := d.ba.ReadUint32(); err != nil {
		return nil, fmt.Errorf("unable to read ecma array count: %w", err)
	}

	assoc := value.NewAssocArray()
	d.references = append(d.references, assoc)

	err := d.readMembers(depth, func(name string, member any) error {
		assoc.Set(name, member)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return assoc, nil
}

func (d *Decoder) readObject(className string, depth int) (any, error) {
	if t, ok := d.registry.TypeFor(className); ok && className != "" {
		return d.readStruct(t, depth)
	}

	object := value.NewObject(className)
	d.references = append(d.references, object)

	err := d.readMembers(depth, func(name string, member any) error {
		object.Properties = append(object.Properties, value.Property{Name: name, Value: member})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return object, nil
}

func (d *Decoder) readStruct(t reflect.Type, depth int) (any, error) {
	class, err := d.registry.Describe(t)
	if err != nil {
		return nil, err
	}

	instance := class.New()
	d.references = append(d.references, instance)

	err = d.readMembers(depth, func(name string, member any) error {
		err := class.Set(instance, name, member)
		if errors.Is(err, registry.ErrUnknownProperty) {
			log.Warn().Str("type", class.Type.String()).Str("property", name).Msg("dropping property unknown to registered class")
			return nil
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return instance, nil
}
