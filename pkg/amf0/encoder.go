package amf0

import (
	"fmt"
	"math"
	"reflect"
	"sort"
	"strconv"
	"time"

	"github.com/mtrqq/amf/pkg/amf3"
	"github.com/mtrqq/amf/pkg/cursor"
	"github.com/mtrqq/amf/pkg/raw"
	"github.com/mtrqq/amf/pkg/registry"
	"github.com/mtrqq/amf/pkg/value"
)

// Encoder writes values into a cursor. The reference table spans every
// Encode call until Reset.
type Encoder struct {
	ba       *cursor.ByteArray
	registry *registry.Registry
	options  Options

	references map[any]int
	slots      int
	amf3       *amf3.Encoder
}

func NewEncoder(ba *cursor.ByteArray, reg *registry.Registry, options Options) *Encoder {
	e := &Encoder{
		ba:       ba,
		registry: reg,
		options:  options,
		amf3:     amf3.NewEncoder(ba, reg, options.embedded()),
	}
	e.Reset()
	return e
}

// Reset clears the reference table and the tables of the embedded
// current-format session.
func (e *Encoder) Reset() {
	e.references = make(map[any]int)
	e.slots = 0
	e.amf3.Reset()
}

func (e *Encoder) Encode(v any) error {
	return e.encode(v, 0)
}

// reference writes a REFERENCE marker when v was already written and
// reports true, otherwise it claims the next table slot for v.
func (e *Encoder) reference(v any) bool {
	id, ok := value.Identity(v)
	if ok {
		if index, seen := e.references[id]; seen {
			e.ba.WriteUint8(MarkerReference)
			e.ba.WriteUint16(uint16(index))
			return true
		}
		if e.slots < MaxReferences {
			e.references[id] = e.slots
		}
	}

	e.slots++
	return false
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

func (e *Encoder) writeAVMPlus(v any) error {
	e.ba.WriteUint8(MarkerAVMPlus)
	if err := e.amf3.Encode(v); err != nil {
		return fmt.Errorf("unable to write avm+ value: %w", err)
	}
	return nil
}

// isPrimitive reports kinds that never enter a reference table.
func isPrimitive(v any) bool {
	switch v.(type) {
	case value.UndefinedType, bool, string, float64, float32,
		int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return true
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

	if e.options.AVMPlus && !isPrimitive(v) {
		return e.writeAVMPlus(v)
	}

	switch t := v.(type) {
	case value.UndefinedType:
		e.ba.WriteUint8(MarkerUndefined)
	case bool:
		e.ba.WriteUint8(MarkerBoolean)
		e.ba.WriteBool(t)
	case string:
		return e.writeString(t)
	case float64:
		e.writeNumber(t)
	case float32:
		e.writeNumber(float64(t))
	case int:
		e.writeNumber(float64(t))
	case int8:
		e.writeNumber(float64(t))
	case int16:
		e.writeNumber(float64(t))
	case int32:
		e.writeNumber(float64(t))
	case int64:
		e.writeNumber(float64(t))
	case uint:
		e.writeNumber(float64(t))
	case uint8:
		e.writeNumber(float64(t))
	case uint16:
		e.writeNumber(float64(t))
	case uint32:
		e.writeNumber(float64(t))
	case uint64:
		e.writeNumber(float64(t))
	case *value.Vector, *value.Dictionary, *cursor.ByteArray, []byte, value.Externalizable:
		return e.writeAVMPlus(v)
	case *value.Date:
		e.writeDate(t, t.Time)
	case time.Time:
		e.writeDate(t, t)
	case *value.Array:
		return e.writeStrictArray(t, t.Elements, depth)
	case []any:
		return e.writeStrictArray(t, t, depth)
	case *value.AssocArray:
		return e.writeECMAArray(t, assocEntries(t), depth)
	case map[string]any:
		return e.writeECMAArray(t, sortedEntries(t), depth)
	case *value.Object:
		return e.writeObject(t, t.ClassName, t.All(), depth)
	case *value.XMLDocument:
		e.ba.WriteUint8(MarkerXMLDoc)
		return e.ba.WriteLongUTF(t.String())
	default:
		return e.writeReflected(v, depth)
	}
	return nil
}

func (e *Encoder) writeNumber(number float64) {
	e.ba.WriteUint8(MarkerNumber)
	e.ba.WriteFloat64(number)
}

// writeString picks LONG_STRING once the UTF-8 length passes 16 bits.
func (e *Encoder) writeString(s string) error {
	if len(s) > raw.MaxUTFLength {
		e.ba.WriteUint8(MarkerLongString)
		return e.ba.WriteLongUTF(s)
	}

	e.ba.WriteUint8(MarkerString)
	return e.ba.WriteUTF(s)
}

func (e *Encoder) writeDate(v any, t time.Time) {
	if e.reference(v) {
		return
	}

	date := &value.Date{Time: t}
	e.ba.WriteUint8(MarkerDate)
	e.ba.WriteFloat64(date.Millis())
	e.ba.WriteInt16(date.ZoneOffsetMinutes())
}

func (e *Encoder) writeStrictArray(v any, elements []any, depth int) error {
	if e.reference(v) {
		return nil
	}
	if int64(len(elements)) > math.MaxUint32 {
		return fmt.Errorf("%w: strict array of %d elements", value.ErrUnsupportedValueType, len(elements))
	}

	e.ba.WriteUint8(MarkerStrictArray)
	e.ba.WriteUint32(uint32(len(elements)))
	for i, element := range elements {
		if err := e.encode(element, depth+1); err != nil {
			return fmt.Errorf("unable to write element %d: %w", i, err)
		}
	}
	return nil
}

// assocEntries flattens the dense part into index keys ahead of the named
// entries.
func assocEntries(assoc *value.AssocArray) []value.Entry {
	entries := make([]value.Entry, 0, assoc.Len())
	for i, element := range assoc.Dense {
		entries = append(entries, value.Entry{Key: strconv.Itoa(i), Value: element})
	}
	return append(entries, assoc.Entries...)
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

func (e *Encoder) writeMembers(properties []value.Property, depth int) error {
	for _, property := range properties {
		if property.Name == "" {
			return fmt.Errorf("%w: empty property name", value.ErrUnsupportedValueType)
		}
		if err := e.ba.WriteUTF(property.Name); err != nil {
			return fmt.Errorf("unable to write property name: %w", err)
		}
		if err := e.encode(property.Value, depth+1); err != nil {
			return fmt.Errorf("unable to write property %q: %w", property.Name, err)
		}
	}

	e.ba.WriteUint16(0)
	e.ba.WriteUint8(MarkerObjectEnd)
	return nil
}

func (e *Encoder) writeECMAArray(v any, entries []value.Entry, depth int) error {
	if e.reference(v) {
		return nil
	}

	e.ba.WriteUint8(MarkerECMAArray)
	e.ba.WriteUint32(uint32(len(entries)))

	properties := make([]value.Property, len(entries))
	for i, entry := range entries {
		properties[i] = value.Property{Name: entry.Key, Value: entry.Value}
	}
	return e.writeMembers(properties, depth)
}

func (e *Encoder) writeObject(v any, className string, properties []value.Property, depth int) error {
	if e.reference(v) {
		return nil
	}

	if className == "" {
		e.ba.WriteUint8(MarkerObject)
	} else {
		e.ba.WriteUint8(MarkerTypedObject)
		if err := e.ba.WriteUTF(className); err != nil {
			return fmt.Errorf("unable to write class name: %w", err)
		}
	}
	return e.writeMembers(properties, depth)
}

func (e *Encoder) writeStruct(v any, rv reflect.Value, depth int) error {
	class, err := e.registry.Describe(rv.Type())
	if err != nil {
		return err
	}

	if class.Externalizable {
		addressable := reflect.New(class.Type)
		addressable.Elem().Set(rv)
		return e.writeAVMPlus(addressable.Interface())
	}

	properties := make([]value.Property, 0, len(class.Properties))
	for _, name := range class.Properties {
		property, _ := class.Get(v, name)
		properties = append(properties, value.Property{Name: name, Value: property})
	}
	properties = append(properties, class.DynamicProperties(v)...)

	return e.writeObject(v, e.registry.ClassNameOf(class.Type), properties, depth)
}

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
		return e.writeStrictArray(v, elements, depth)
	case rv.Kind() == reflect.Map && rv.Type().Key().Kind() == reflect.String:
		m := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			m[iter.Key().String()] = iter.Value().Interface()
		}
		return e.writeECMAArray(v, sortedEntries(m), depth)
	}

	return fmt.Errorf("%w: %T", value.ErrUnsupportedValueType, v)
}
