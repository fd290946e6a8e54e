package value

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/mtrqq/amf/pkg/cursor"
)

// TagName is the struct tag consulted for wire property names.
const TagName = "amf"

// ClassKey holds the class name of typed objects converted by Plain.
const ClassKey = "$class"

const circular = "[circular]"

// PropertyName returns the wire name of a struct field: the amf tag when
// present, the Go field name otherwise. Unexported fields and fields tagged
// "-" are skipped.
func PropertyName(field reflect.StructField) (string, bool) {
	if !field.IsExported() {
		return "", false
	}

	tag := field.Tag.Get(TagName)
	if tag == "-" {
		return "", false
	}
	if name, _, _ := strings.Cut(tag, ","); name != "" {
		return name, true
	}
	return field.Name, true
}

// Plain converts a decoded tree into maps, slices and scalars suitable for
// generic encoders. Cycles are cut with a "[circular]" marker.
func Plain(v any) any {
	return plain(v, map[any]struct{}{})
}

func plain(v any, visiting map[any]struct{}) any {
	if id, ok := Identity(v); ok {
		if _, seen := visiting[id]; seen {
			return circular
		}
		visiting[id] = struct{}{}
		defer delete(visiting, id)
	}

	switch t := v.(type) {
	case nil, UndefinedType:
		return nil
	case bool, string, float64, float32, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return t
	case *Date:
		return t.Time.Format(time.RFC3339Nano)
	case *Array:
		return plainSlice(t.Elements, visiting)
	case []any:
		return plainSlice(t, visiting)
	case *AssocArray:
		out := make(map[string]any, t.Len())
		for i, element := range t.Dense {
			out[strconv.Itoa(i)] = plain(element, visiting)
		}
		for _, entry := range t.Entries {
			out[entry.Key] = plain(entry.Value, visiting)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for key, element := range t {
			out[key] = plain(element, visiting)
		}
		return out
	case *Object:
		out := make(map[string]any, len(t.Properties)+len(t.DynamicProperties)+1)
		if t.ClassName != "" {
			out[ClassKey] = t.ClassName
		}
		for _, property := range t.All() {
			out[property.Name] = plain(property.Value, visiting)
		}
		return out
	case *Vector:
		return plainSlice(t.Elements, visiting)
	case *Dictionary:
		out := make([]any, 0, t.Len())
		for _, entry := range t.entries {
			out = append(out, []any{plain(entry.Key, visiting), plain(entry.Value, visiting)})
		}
		return out
	case *cursor.ByteArray:
		return append([]byte(nil), t.Bytes()...)
	case *XMLDocument:
		return t.String()
	case *ArrayCollection:
		if t.Source == nil {
			return []any{}
		}
		return plainSlice(t.Source.Elements, visiting)
	}

	return plainReflect(reflect.ValueOf(v), visiting)
}

func plainSlice(elements []any, visiting map[any]struct{}) []any {
	out := make([]any, 0, len(elements))
	for _, element := range elements {
		out = append(out, plain(element, visiting))
	}
	return out
}

func plainReflect(rv reflect.Value, visiting map[any]struct{}) any {
	for rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return nil
		}
		rv = rv.Elem()
	}

	switch rv.Kind() {
	case reflect.Struct:
		out := make(map[string]any, rv.NumField())
		for i := 0; i < rv.NumField(); i++ {
			name, ok := PropertyName(rv.Type().Field(i))
			if !ok {
				continue
			}
			out[name] = plain(rv.Field(i).Interface(), visiting)
		}
		return out
	case reflect.Slice, reflect.Array:
		out := make([]any, 0, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			out = append(out, plain(rv.Index(i).Interface(), visiting))
		}
		return out
	case reflect.Map:
		out := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			out[plainKey(iter.Key())] = plain(iter.Value().Interface(), visiting)
		}
		return out
	case reflect.Bool:
		return rv.Bool()
	case reflect.String:
		return rv.String()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int()
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return rv.Uint()
	case reflect.Float32, reflect.Float64:
		return rv.Float()
	}
	return nil
}

func plainKey(key reflect.Value) string {
	if key.Kind() == reflect.String {
		return key.String()
	}
	return fmt.Sprint(key.Interface())
}
