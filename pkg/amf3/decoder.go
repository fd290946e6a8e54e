package amf3

import (
	"errors"
	"fmt"
	"reflect"

	"github.com/mtrqq/amf/pkg/cursor"
	"github.com/mtrqq/amf/pkg/registry"
	"github.com/mtrqq/amf/pkg/value"
	"github.com/rs/zerolog/log"
)

// Decoder reads values from a cursor. The reference tables span every
// Decode call until Reset.
type Decoder struct {
	ba       *cursor.ByteArray
	registry *registry.Registry
	options  Options

	strings []string
	objects []any
	traits  []*Traits
}

func NewDecoder(ba *cursor.ByteArray, reg *registry.Registry, options Options) *Decoder {
	d := &Decoder{
		ba:       ba,
		registry: reg,
		options:  options,
	}
	d.Reset()
	return d
}

// Reset clears the string, object and trait tables.
func (d *Decoder) Reset() {
	clear(d.objects)
	d.strings = d.strings[:0]
	d.objects = d.objects[:0]
	d.traits = d.traits[:0]
}

func (d *Decoder) Decode() (any, error) {
	return d.decode(0)
}

func (d *Decoder) ReadU29() (uint32, error) {
	return ReadU29(d.ba)
}

// ensure fails when fewer than n bytes remain, n being the least a
// announced count can occupy.
func (d *Decoder) ensure(n uint64) error {
	if n > uint64(d.ba.Available()) {
		return fmt.Errorf("%w: need at least %d bytes at offset %d, have %d",
			value.ErrLengthExceedsInput, n, d.ba.Position(), d.ba.Available())
	}
	return nil
}

// ReadString reads a string without a marker, through the string table.
func (d *Decoder) ReadString() (string, error) {
	ref, err := d.ReadU29()
	if err != nil {
		return "", fmt.Errorf("unable to read string header: %w", err)
	}

	if ref&1 == 0 {
		index := int(ref >> 1)
		if index >= len(d.strings) {
			return "", fmt.Errorf("%w: string %d of %d", value.ErrInvalidReference, index, len(d.strings))
		}
		return d.strings[index], nil
	}

	length := ref >> 1
	if length == 0 {
		return "", nil
	}
	if err := d.ensure(uint64(length)); err != nil {
		return "", err
	}

	s, err := d.ba.ReadUTFBytes(int(length))
	if err != nil {
		return "", err
	}
	d.strings = append(d.strings, s)
	return s, nil
}

// header reads a composite header. It returns the referenced object when
// the header is a back-reference, the inline length otherwise.
func (d *Decoder) header() (any, uint32, bool, error) {
	ref, err := d.ReadU29()
	if err != nil {
		return nil, 0, false, err
	}

	if ref&1 == 0 {
		index := int(ref >> 1)
		if index >= len(d.objects) {
			return nil, 0, false, fmt.Errorf("%w: object %d of %d", value.ErrInvalidReference, index, len(d.objects))
		}
		return d.objects[index], 0, true, nil
	}
	return nil, ref >> 1, false, nil
}

func (d *Decoder) decode(depth int) (any, error) {
	if depth > d.options.maxDepth() {
		return nil, fmt.Errorf("%w: %d", value.ErrMaxDepthExceeded, d.options.maxDepth())
	}

	marker, err := d.ba.ReadUint8()
	if err != nil {
		return nil, fmt.Errorf("unable to read marker: %w", err)
	}

	switch marker {
	case MarkerUndefined:
		return value.Undefined, nil
	case MarkerNull:
		return nil, nil
	case MarkerFalse:
		return false, nil
	case MarkerTrue:
		return true, nil
	case MarkerInteger:
		n, err := d.ReadU29()
		if err != nil {
			return nil, fmt.Errorf("unable to read integer: %w", err)
		}
		return decodeInt(n), nil
	case MarkerDouble:
		return d.ba.ReadFloat64()
	case MarkerString:
		return d.ReadString()
	case MarkerDate:
		return d.readDate()
	case MarkerArray:
		return d.readArray(depth)
	case MarkerObject:
		return d.readObject(depth)
	case MarkerXML:
		return d.readXML(false)
	case MarkerXMLDoc:
		return d.readXML(true)
	case MarkerByteArray:
		return d.readByteArray()
	case MarkerVectorInt, MarkerVectorUint, MarkerVectorDouble, MarkerVectorObject:
		return d.readVector(marker, depth)
	case MarkerDictionary:
		return d.readDictionary(depth)
	}

	if d.options.Lenient {
		log.Warn().Uint8("marker", marker).Int("position", d.ba.Position()-1).Msg("decoding unknown marker as undefined")
		return value.Undefined, nil
	}
	return nil, fmt.Errorf("%w: 0x%02x at offset %d", value.ErrUnknownMarker, marker, d.ba.Position()-1)
}

func (d *Decoder) readDate() (any, error) {
	ref, _, seen, err := d.header()
	if seen || err != nil {
		return ref, err
	}

	millis, err := d.ba.ReadFloat64()
	if err != nil {
		return nil, fmt.Errorf("unable to read date: %w", err)
	}

	date := value.DateFromMillis(millis)
	d.objects = append(d.objects, date)
	return date, nil
}

func (d *Decoder) readElements(count uint32, depth int) ([]any, error) {
	if count == 0 {
		return nil, nil
	}
	if err := d.ensure(uint64(count)); err != nil {
		return nil, err
	}

	elements := make([]any, count)
	for i := range elements {
		element, err := d.decode(depth + 1)
		if err != nil {
			return nil, fmt.Errorf("unable to read element %d: %w", i, err)
		}
		elements[i] = element
	}
	return elements, nil
}

// readArray yields *value.Array for dense arrays and *value.AssocArray
// when named entries precede the dense part.
func (d *Decoder) readArray(depth int) (any, error) {
	ref, count, seen, err := d.header()
	if seen || err != nil {
		return ref, err
	}

	key, err := d.ReadString()
	if err != nil {
		return nil, fmt.Errorf("unable to read array key: %w", err)
	}

	if key == "" {
		array := &value.Array{}
		d.objects = append(d.objects, array)

		if array.Elements, err = d.readElements(count, depth); err != nil {
			return nil, err
		}
		return array, nil
	}

	assoc := value.NewAssocArray()
	d.objects = append(d.objects, assoc)

	for key != "" {
		element, err := d.decode(depth + 1)
		if err != nil {
			return nil, fmt.Errorf("unable to read entry %q: %w", key, err)
		}
		assoc.Set(key, element)

		if key, err = d.ReadString(); err != nil {
			return nil, fmt.Errorf("unable to read array key: %w", err)
		}
	}

	if assoc.Dense, err = d.readElements(count, depth); err != nil {
		return nil, err
	}
	return assoc, nil
}

func (d *Decoder) readTraits(ref uint32) (*Traits, error) {
	if ref&3 == 1 {
		index := int(ref >> 2)
		if index >= len(d.traits) {
			return nil, fmt.Errorf("%w: trait %d of %d", ErrTraitsNotFound, index, len(d.traits))
		}
		return d.traits[index], nil
	}

	count := ref >> traitsCountShift
	if err := d.ensure(uint64(count) + 1); err != nil {
		return nil, err
	}

	className, err := d.ReadString()
	if err != nil {
		return nil, fmt.Errorf("unable to read class name: %w", err)
	}

	traits := &Traits{
		ClassName:      className,
		Externalizable: ref&traitsExternalizable != 0,
		Dynamic:        ref&traitsDynamic != 0,
	}
	if count > 0 {
		traits.Properties = make([]string, count)
	}
	for i := range traits.Properties {
		if traits.Properties[i], err = d.ReadString(); err != nil {
			return nil, fmt.Errorf("unable to read property name %d of %q: %w", i, className, err)
		}
	}

	d.traits = append(d.traits, traits)
	return traits, nil
}

func (d *Decoder) readObject(depth int) (any, error) {
	ref, err := d.ReadU29()
	if err != nil {
		return nil, fmt.Errorf("unable to read object header: %w", err)
	}

	if ref&1 == 0 {
		index := int(ref >> 1)
		if index >= len(d.objects) {
			return nil, fmt.Errorf("%w: object %d of %d", value.ErrInvalidReference, index, len(d.objects))
		}
		return d.objects[index], nil
	}

	traits, err := d.readTraits(ref)
	if err != nil {
		return nil, err
	}

	if traits.Externalizable {
		return d.readExternalizable(traits, depth)
	}

	if t, ok := d.registry.TypeFor(traits.ClassName); ok && traits.ClassName != "" {
		return d.readStruct(t, traits, depth)
	}

	object := &value.Object{ClassName: traits.ClassName, Dynamic: traits.Dynamic}
	d.objects = append(d.objects, object)

	for _, name := range traits.Properties {
		property, err := d.decode(depth + 1)
		if err != nil {
			return nil, fmt.Errorf("unable to read property %q of %q: %w", name, traits.ClassName, err)
		}
		object.Properties = append(object.Properties, value.Property{Name: name, Value: property})
	}

	if !traits.Dynamic {
		return object, nil
	}

	err = d.readDynamicMembers(depth, func(name string, property any) error {
		object.DynamicProperties = append(object.DynamicProperties, value.Property{Name: name, Value: property})
		return nil
	})
	return object, err
}

func (d *Decoder) readDynamicMembers(depth int, set func(name string, property any) error) error {
	for {
		name, err := d.ReadString()
		if err != nil {
			return fmt.Errorf("unable to read dynamic property name: %w", err)
		}
		if name == "" {
			return nil
		}

		property, err := d.decode(depth + 1)
		if err != nil {
			return fmt.Errorf("unable to read dynamic property %q: %w", name, err)
		}
		if err := set(name, property); err != nil {
			return err
		}
	}
}

// setMember stores a decoded member into a registered struct, members the
// Go type cannot hold are dropped with a warning.
func setMember(class *registry.Class, instance any, name string, property any) error {
	err := class.Set(instance, name, property)
	if errors.Is(err, registry.ErrUnknownProperty) {
		log.Warn().Str("type", class.Type.String()).Str("property", name).Msg("dropping property unknown to registered class")
		return nil
	}
	return err
}

func (d *Decoder) readStruct(t reflect.Type, traits *Traits, depth int) (any, error) {
	class, err := d.registry.Describe(t)
	if err != nil {
		return nil, err
	}

	instance := class.New()
	d.objects = append(d.objects, instance)

	for _, name := range traits.Properties {
		property, err := d.decode(depth + 1)
		if err != nil {
			return nil, fmt.Errorf("unable to read property %q of %q: %w", name, traits.ClassName, err)
		}
		if err := setMember(class, instance, name, property); err != nil {
			return nil, err
		}
	}

	if !traits.Dynamic {
		return instance, nil
	}

	err = d.readDynamicMembers(depth, func(name string, property any) error {
		return setMember(class, instance, name, property)
	})
	return instance, err
}

func (d *Decoder) readExternalizable(traits *Traits, depth int) (any, error) {
	t, ok := d.registry.TypeFor(traits.ClassName)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnregisteredExternalizable, traits.ClassName)
	}

	instance, ok := reflect.New(t).Interface().(value.Externalizable)
	if !ok {
		return nil, fmt.Errorf("%w: %q maps to %v which does not implement ReadExternal", ErrUnregisteredExternalizable, traits.ClassName, t)
	}
	d.objects = append(d.objects, instance)

	if err := instance.ReadExternal(dataInput{ByteArray: d.ba, decoder: d, depth: depth}); err != nil {
		return nil, fmt.Errorf("unable to read external body of %q: %w", traits.ClassName, err)
	}
	return instance, nil
}

func (d *Decoder) readVector(marker uint8, depth int) (any, error) {
	ref, count, seen, err := d.header()
	if seen || err != nil {
		return ref, err
	}

	fixed, err := d.ba.ReadBool()
	if err != nil {
		return nil, fmt.Errorf("unable to read vector flags: %w", err)
	}

	vector := &value.Vector{Fixed: fixed}
	width := uint64(1)
	switch marker {
	case MarkerVectorInt:
		vector.Kind, width = value.VectorInt, 4
	case MarkerVectorUint:
		vector.Kind, width = value.VectorUint, 4
	case MarkerVectorDouble:
		vector.Kind, width = value.VectorDouble, 8
	default:
		vector.Kind = value.VectorObject
		className, err := d.ReadString()
		if err != nil {
			return nil, fmt.Errorf("unable to read vector class name: %w", err)
		}
		if t, ok := d.registry.TypeFor(className); ok && className != "" {
			vector.ElemType = reflect.PointerTo(t)
		} else {
			vector.ClassName = className
		}
	}

	if err := d.ensure(uint64(count) * width); err != nil {
		return nil, err
	}
	d.objects = append(d.objects, vector)

	if count == 0 {
		return vector, nil
	}

	vector.Elements = make([]any, count)
	for i := range vector.Elements {
		var element any
		switch vector.Kind {
		case value.VectorInt:
			element, err = d.ba.ReadInt32()
		case value.VectorUint:
			element, err = d.ba.ReadUint32()
		case value.VectorDouble:
			element, err = d.ba.ReadFloat64()
		default:
			element, err = d.decode(depth + 1)
		}
		if err != nil {
			return nil, fmt.Errorf("unable to read vector element %d: %w", i, err)
		}
		vector.Elements[i] = element
	}

	// untyped object vectors take the type of their first element
	if vector.Kind == value.VectorObject && vector.ElemType == nil && vector.ClassName == "" {
		for _, element := range vector.Elements {
			if element != nil {
				vector.ElemType = reflect.TypeOf(element)
				break
			}
		}
	}
	return vector, nil
}

func (d *Decoder) readDictionary(depth int) (any, error) {
	ref, count, seen, err := d.header()
	if seen || err != nil {
		return ref, err
	}

	weak, err := d.ba.ReadBool()
	if err != nil {
		return nil, fmt.Errorf("unable to read dictionary flags: %w", err)
	}
	if err := d.ensure(uint64(count) * 2); err != nil {
		return nil, err
	}

	dictionary := &value.Dictionary{WeakKeys: weak}
	d.objects = append(d.objects, dictionary)

	for i := uint32(0); i < count; i++ {
		key, err := d.decode(depth + 1)
		if err != nil {
			return nil, fmt.Errorf("unable to read dictionary key %d: %w", i, err)
		}
		element, err := d.decode(depth + 1)
		if err != nil {
			return nil, fmt.Errorf("unable to read dictionary value %d: %w", i, err)
		}
		dictionary.Set(key, element)
	}
	return dictionary, nil
}

func (d *Decoder) readByteArray() (any, error) {
	ref, length, seen, err := d.header()
	if seen || err != nil {
		return ref, err
	}
	if err := d.ensure(uint64(length)); err != nil {
		return nil, err
	}

	data, err := d.ba.ReadBytes(int(length))
	if err != nil {
		return nil, fmt.Errorf("unable to read byte array: %w", err)
	}

	ba := cursor.New(data)
	d.objects = append(d.objects, ba)
	return ba, nil
}

func (d *Decoder) readXML(legacy bool) (any, error) {
	ref, length, seen, err := d.header()
	if seen || err != nil {
		return ref, err
	}
	if err := d.ensure(uint64(length)); err != nil {
		return nil, err
	}

	source, err := d.ba.ReadUTFBytes(int(length))
	if err != nil {
		return nil, fmt.Errorf("unable to read xml: %w", err)
	}

	doc, err := value.ParseXML(source, legacy)
	if err != nil {
		return nil, err
	}
	d.objects = append(d.objects, doc)
	return doc, nil
}
