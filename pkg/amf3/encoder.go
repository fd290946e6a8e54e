package amf3

import (
	"fmt"
	"math"
	"reflect"
	"sort"
	"time"

	"github.com/mtrqq/amf/pkg/cursor"
	"github.com/mtrqq/amf/pkg/registry"
	"github.com/mtrqq/amf/pkg/value"
)

// Encoder writes values into a cursor. The reference tables span every
// Encode call until Reset.
type Encoder struct {
	ba       *cursor.ByteArray
	registry *registry.Registry
	options  Options

	strings map[string]int
	// objects maps identities to their slot, slots of values without a
	// stable identity are counted but never looked up.
	objects     map[any]int
	objectSlots int
	traits      map[string]int
}

func NewEncoder(ba *cursor.ByteArray, reg *registry.Registry, options Options) *Encoder {
	e := &Encoder{
		ba:       ba,
		registry: reg,
		options:  options,
	}
	e.Reset()
	return e
}

// Reset clears the string, object and trait tables.
func (e *Encoder) Reset() {
	e.strings = make(map[string]int)
	e.objects = make(map[any]int)
	e.objectSlots = 0
	e.traits = make(map[string]int)
}

func (e *Encoder) Encode(v any) error {
	return e.encode(v, 0)
}

func (e *Encoder) WriteU29(value uint32) error {
	return WriteU29(e.ba, value)
}

func (e *Encoder) writeLength(length int) error {
	if length > MaxU29>>1 {
		return fmt.Errorf("%w: length %d", ErrIntegerOutOfRange, length)
	}
	return e.WriteU29(uint32(length)<<1 | 1)
}

// WriteString writes s without a marker, through the string table.
func (e *Encoder) WriteString(s string) error {
	if s == "" {
		return e.WriteU29(emptyString)
	}

	if index, ok := e.strings[s]; ok {
		return e.WriteU29(uint32(index) << 1)
	}

	if err := e.writeLength(len(s)); err != nil {
		return fmt.Errorf("unable to write string: %w", err)
	}
	e.strings[s] = len(e.strings)
	e.ba.WriteUTFBytes(s)
	return nil
}

// reference writes a back-reference when v was already written and
// reports true, otherwise it claims the next object slot for v.
func (e *Encoder) reference(v any) (bool, error) {
	id, ok := value.Identity(v)
	if ok {
		if index, seen := e.objects[id]; seen {
			return true, e.WriteU29(uint32(index) << 1)
		}
		e.objects[id] = e.objectSlots
	}

	e.objectSlots++
	return false, nil
}

func (e *Encoder) writeTraits(traits *Traits) error {
	signature := traits.signature()
	if index, ok := e.traits[signature]; ok {
		return e.WriteU29(uint32(index)<<2 | 1)
	}

	if len(traits.Properties) > MaxU29>>traitsCountShift {
		return fmt.Errorf("%w: %d properties", ErrIntegerOutOfRange, len(traits.Properties))
	}
	e.traits[signature] = len(e.traits)

	if err := e.WriteU29(traits.header()); err != nil {
		return err
	}
	if err := e.WriteString(traits.ClassName); err != nil {
		return err
	}
	for _, property := range traits.Properties {
		if err := e.WriteString(property); err != nil {
			return err
		}
	}
	return nil
}

func isNil(v any) bool {
	if v == nil {
		return true
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface, reflect.Func, reflect.Chan:
		return rv.IsNil()
	}
	return false
}

func (e *Encoder) encode(v any, depth int) error {
	if depth > e.options.maxDepth() {
		return fmt.Errorf("%w: %d", value.ErrMaxDepthExceeded, e.options.maxDepth())
	}

	if isNil(v) {
		e.ba.WriteUint8(MarkerNull)
		return nil
	}

	switch t := v.(type) {
	case value.UndefinedType:
		e.ba.WriteUint8(MarkerUndefined)
	case bool:
		if t {
			e.ba.WriteUint8(MarkerTrue)
		} else {
			e.ba.WriteUint8(MarkerFalse)
		}
	case string:
		e.ba.WriteUint8(MarkerString)
		return e.WriteString(t)
	case float64:
		e.writeNumber(t)
	case float32:
		e.writeNumber(float64(t))
	case int:
		e.writeInteger(int64(t))
	case int8:
		e.writeInteger(int64(t))
	case int16:
		e.writeInteger(int64(t))
	case int32:
		e.writeInteger(int64(t))
	case int64:
		e.writeInteger(t)
	case uint:
		e.writeUnsigned(uint64(t))
	case uint8:
		e.writeInteger(int64(t))
	case uint16:
		e.writeInteger(int64(t))
	case uint32:
		e.writeInteger(int64(t))
	case uint64:
		e.writeUnsigned(t)
	case *value.Date:
		return e.writeDate(t, t.Millis())
	case time.Time:
		return e.writeDate(t, float64(t.UnixMilli()))
	case *value.Array:
		return e.writeArray(t, t.Elements, depth)
	case []any:
		return e.writeArray(t, t, depth)
	case *value.AssocArray:
		return e.writeAssocArray(t, t.Entries, t.Dense, depth)
	case map[string]any:
		return e.writeAssocArray(t, sortedEntries(t), nil, depth)
	case *value.Object:
		return e.writeObject(t, depth)
	case *value.Vector:
		return e.writeVector(t, depth)
	case *value.Dictionary:
		return e.writeDictionary(t, depth)
	case *cursor.ByteArray:
		return e.writeByteArray(t, t.Bytes())
	case []byte:
		return e.writeByteArray(t, t)
	case *value.XMLDocument:
		return e.writeXML(t)
	case value.Externalizable:
		return e.writeExternalizable(t, depth)
	default:
		return e.writeReflected(v, depth)
	}
	return nil
}

func (e *Encoder) writeDouble(number float64) {
	e.ba.WriteUint8(MarkerDouble)
	e.ba.WriteFloat64(number)
}

func (e *Encoder) writeInteger(number int64) {
	if number < MinInt || number > MaxInt {
		e.writeDouble(float64(number))
		return
	}

	e.ba.WriteUint8(MarkerInteger)
	// in range by the check above
	_ = e.WriteU29(encodeInt(number))
}

func (e *Encoder) writeUnsigned(number uint64) {
	if number > MaxInt {
		e.writeDouble(float64(number))
		return
	}
	e.writeInteger(int64(number))
}

func (e *Encoder) writeNumber(number float64) {
	if e.options.AssumeIntegers && number == math.Trunc(number) &&
		number >= MinInt && number <= MaxInt && !(number == 0 && math.Signbit(number)) {
		e.writeInteger(int64(number))
		return
	}
	e.writeDouble(number)
}

func (e *Encoder) writeDate(v any, millis float64) error {
	e.ba.WriteUint8(MarkerDate)
	if seen, err := e.reference(v); seen || err != nil {
		return err
	}

	if err := e.WriteU29(1); err != nil {
		return err
	}
	e.ba.WriteFloat64(millis)
	return nil
}

func (e *Encoder) writeElements(elements []any, depth int) error {
	for i, element := range elements {
		if err := e.encode(element, depth+1); err != nil {
			return fmt.Errorf("unable to write element %d: %w", i, err)
		}
	}
	return nil
}

func (e *Encoder) writeArray(v any, elements []any, depth int) error {
	e.ba.WriteUint8(MarkerArray)
	if seen, err := e.reference(v); seen || err != nil {
		return err
	}

	if err := e.writeLength(len(elements)); err != nil {
		return err
	}
	if err := e.WriteString(""); err != nil {
		return err
	}
	return e.writeElements(elements, depth)
}

func sortedEntries(m map[string]any) []value.Entry {
	entries := make([]value.Entry, 0, len(m))
	for key, element := range m {
		entries = append(entries, value.Entry{Key: key, Value: element})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Key < entries[j].Key
	})
	return entries
}

func (e *Encoder) writeAssocArray(v any, entries []value.Entry, dense []any, depth int) error {
	e.ba.WriteUint8(MarkerArray)
	if seen, err := e.reference(v); seen || err != nil {
		return err
	}

	if err := e.writeLength(len(dense)); err != nil {
		return err
	}
	for _, entry := range entries {
		if entry.Key == "" {
			return fmt.Errorf("%w: empty key in associative array", value.ErrUnsupportedValueType)
		}
		if err := e.WriteString(entry.Key); err != nil {
			return err
		}
		if err := e.encode(entry.Value, depth+1); err != nil {
			return fmt.Errorf("unable to write entry %q: %w", entry.Key, err)
		}
	}
	if err := e.WriteString(""); err != nil {
		return err
	}
	return e.writeElements(dense, depth)
}

func (e *Encoder) writeMembers(properties []value.Property, depth int) error {
	for _, property := range properties {
		if err := e.encode(property.Value, depth+1); err != nil {
			return fmt.Errorf("unable to write property %q: %w", property.Name, err)
		}
	}
	return nil
}

func (e *Encoder) writeDynamicMembers(properties []value.Property, depth int) error {
	for _, property := range properties {
		if property.Name == "" {
			return fmt.Errorf("%w: empty dynamic property name", value.ErrUnsupportedValueType)
		}
		if err := e.WriteString(property.Name); err != nil {
			return err
		}
		if err := e.encode(property.Value, depth+1); err != nil {
			return fmt.Errorf("unable to write property %q: %w", property.Name, err)
		}
	}
	return e.WriteString("")
}

func (e *Encoder) writeObject(object *value.Object, depth int) error {
	e.ba.WriteUint8(MarkerObject)
	if seen, err := e.reference(object); seen || err != nil {
		return err
	}

	traits := &Traits{
		ClassName:  object.ClassName,
		Dynamic:    object.Dynamic,
		Properties: object.PropertyNames(),
	}
	if err := e.writeTraits(traits); err != nil {
		return fmt.Errorf("unable to write traits of %q: %w", object.ClassName, err)
	}

	if err := e.writeMembers(object.Properties, depth); err != nil {
		return err
	}
	if object.Dynamic {
		return e.writeDynamicMembers(object.DynamicProperties, depth)
	}
	return nil
}

func (e *Encoder) writeExternalizable(v value.Externalizable, depth int) error {
	e.ba.WriteUint8(MarkerObject)
	if seen, err := e.reference(v); seen || err != nil {
		return err
	}

	traits := &Traits{ClassName: e.registry.ClassNameOf(v), Externalizable: true}
	if err := e.writeTraits(traits); err != nil {
		return fmt.Errorf("unable to write traits of %q: %w", traits.ClassName, err)
	}

	if err := v.WriteExternal(dataOutput{ByteArray: e.ba, encoder: e, depth: depth}); err != nil {
		return fmt.Errorf("unable to write external body of %q: %w", traits.ClassName, err)
	}
	return nil
}

// writeStruct writes a Go struct, or pointer to one, as a typed object.
func (e *Encoder) writeStruct(v any, rv reflect.Value, depth int) error {
	class, err := e.registry.Describe(rv.Type())
	if err != nil {
		return err
	}

	if class.Externalizable {
		addressable := reflect.New(class.Type)
		addressable.Elem().Set(rv)
		return e.writeExternalizable(addressable.Interface().(value.Externalizable), depth)
	}

	e.ba.WriteUint8(MarkerObject)
	if seen, err := e.reference(v); seen || err != nil {
		return err
	}

	traits := &Traits{
		ClassName:  e.registry.ClassNameOf(class.Type),
		Dynamic:    class.Dynamic,
		Properties: class.Properties,
	}
	if err := e.writeTraits(traits); err != nil {
		return fmt.Errorf("unable to write traits of %q: %w", traits.ClassName, err)
	}

	for _, name := range class.Properties {
		property, _ := class.Get(v, name)
		if err := e.encode(property, depth+1); err != nil {
			return fmt.Errorf("unable to write property %q: %w", name, err)
		}
	}
	if class.Dynamic {
		return e.writeDynamicMembers(class.DynamicProperties(v), depth)
	}
	return nil
}

// writeReflected covers Go structs, slices and string keyed maps that
// are not part of the value model.
func (e *Encoder) writeReflected(v any, depth int) error {
	rv := reflect.ValueOf(v)
	structValue := rv
	if rv.Kind() == reflect.Pointer {
		structValue = rv.Elem()
	}

	switch {
	case structValue.Kind() == reflect.Struct:
		return e.writeStruct(v, structValue, depth)
	case rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array:
		elements := make([]any, rv.Len())
		for i := range elements {
			elements[i] = rv.Index(i).Interface()
		}
		return e.writeArray(v, elements, depth)
	case rv.Kind() == reflect.Map && rv.Type().Key().Kind() == reflect.String:
		m := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			m[iter.Key().String()] = iter.Value().Interface()
		}
		return e.writeAssocArray(v, sortedEntries(m), nil, depth)
	}

	return fmt.Errorf("%w: %T", value.ErrUnsupportedValueType, v)
}

func (e *Encoder) vectorClassName(vector *value.Vector) string {
	if vector.ClassName != "" {
		return vector.ClassName
	}
	if vector.ElemType == nil {
		return ""
	}

	t := vector.ElemType
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return ""
	}

	// only registered classes can be resolved on the other side
	name := e.registry.ClassNameOf(t)
	if registered, ok := e.registry.TypeFor(name); ok && registered == t {
		return name
	}
	return ""
}

func vectorKind(vector *value.Vector) value.VectorKind {
	if vector.Kind != value.VectorDynamic {
		return vector.Kind
	}

	probe := &value.Vector{Kind: value.VectorDynamic}
	if len(vector.Elements) > 0 && probe.Push(vector.Elements[0]) == nil {
		return probe.Kind
	}
	return value.VectorObject
}

func (e *Encoder) writeVector(vector *value.Vector, depth int) error {
	kind := vectorKind(vector)

	var marker uint8
	switch kind {
	case value.VectorInt:
		marker = MarkerVectorInt
	case value.VectorUint:
		marker = MarkerVectorUint
	case value.VectorDouble:
		marker = MarkerVectorDouble
	default:
		marker = MarkerVectorObject
	}

	e.ba.WriteUint8(marker)
	if seen, err := e.reference(vector); seen || err != nil {
		return err
	}

	if err := e.writeLength(len(vector.Elements)); err != nil {
		return err
	}
	e.ba.WriteBool(vector.Fixed)

	if marker == MarkerVectorObject {
		if err := e.WriteString(e.vectorClassName(vector)); err != nil {
			return err
		}
		return e.writeElements(vector.Elements, depth)
	}

	for i, element := range vector.Elements {
		var ok bool
		switch kind {
		case value.VectorInt:
			var n int32
			if n, ok = element.(int32); ok {
				e.ba.WriteInt32(n)
			}
		case value.VectorUint:
			var n uint32
			if n, ok = element.(uint32); ok {
				e.ba.WriteUint32(n)
			}
		case value.VectorDouble:
			var n float64
			if n, ok = element.(float64); ok {
				e.ba.WriteFloat64(n)
			}
		}
		if !ok {
			return fmt.Errorf("%w: element %d is %T in %v", value.ErrVectorElementTypeMismatch, i, element, kind)
		}
	}
	return nil
}

func (e *Encoder) writeDictionary(dictionary *value.Dictionary, depth int) error {
	e.ba.WriteUint8(MarkerDictionary)
	if seen, err := e.reference(dictionary); seen || err != nil {
		return err
	}

	entries := dictionary.Entries()
	if err := e.writeLength(len(entries)); err != nil {
		return err
	}
	e.ba.WriteBool(dictionary.WeakKeys)

	for i, entry := range entries {
		if err := e.encode(entry.Key, depth+1); err != nil {
			return fmt.Errorf("unable to write dictionary key %d: %w", i, err)
		}
		if err := e.encode(entry.Value, depth+1); err != nil {
			return fmt.Errorf("unable to write dictionary value %d: %w", i, err)
		}
	}
	return nil
}

func (e *Encoder) writeByteArray(v any, data []byte) error {
	e.ba.WriteUint8(MarkerByteArray)
	if seen, err := e.reference(v); seen || err != nil {
		return err
	}

	if err := e.writeLength(len(data)); err != nil {
		return err
	}
	e.ba.WriteBytes(data)
	return nil
}

func (e *Encoder) writeXML(doc *value.XMLDocument) error {
	if doc.Legacy {
		e.ba.WriteUint8(MarkerXMLDoc)
	} else {
		e.ba.WriteUint8(MarkerXML)
	}
	if seen, err := e.reference(doc); seen || err != nil {
		return err
	}

	source := doc.String()
	if err := e.writeLength(len(source)); err != nil {
		return err
	}
	e.ba.WriteUTFBytes(source)
	return nil
}
