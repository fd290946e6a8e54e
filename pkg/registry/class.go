package registry

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"strings"
	"time"

	"github.com/mtrqq/amf/pkg/value"
)

var (
	ErrUnknownProperty = errors.New("class has no such property")
)

var (
	externalizableType = reflect.TypeOf((*value.Externalizable)(nil)).Elem()
	propertiesType     = reflect.TypeOf([]value.Property(nil))
	timeType           = reflect.TypeOf(time.Time{})
)

const dynamicOption = "dynamic"

// Class describes a registered struct type. Properties lists the sealed
// members in declaration order. A []value.Property field tagged
// `amf:",dynamic"` makes the class dynamic and collects extra members.
type Class struct {
	Type           reflect.Type
	Properties     []string
	Externalizable bool
	Dynamic        bool

	fields  map[string][]int
	dynamic []int
}

func describe(t reflect.Type) (*Class, error) {
	class := &Class{
		Type:           t,
		Externalizable: reflect.PointerTo(t).Implements(externalizableType),
		fields:         make(map[string][]int),
	}

	if err := class.collect(t, nil); err != nil {
		return nil, fmt.Errorf("unable to describe %v: %w", t, err)
	}
	return class, nil
}

func (c *Class) collect(t reflect.Type, parent []int) error {
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		index := append(append([]int(nil), parent...), i)
		tag := field.Tag.Get(value.TagName)

		if field.Anonymous && field.Type.Kind() == reflect.Struct && tag == "" {
			if err := c.collect(field.Type, index); err != nil {
				return err
			}
			continue
		}

		if _, options, _ := strings.Cut(tag, ","); options == dynamicOption {
			if field.Type != propertiesType {
				return fmt.Errorf("dynamic field %s must be %v, got %v", field.Name, propertiesType, field.Type)
			}
			c.Dynamic = true
			c.dynamic = index
			continue
		}

		name, ok := value.PropertyName(field)
		if !ok {
			continue
		}
		if _, duplicate := c.fields[name]; duplicate {
			return fmt.Errorf("duplicate property %q", name)
		}

		c.fields[name] = index
		c.Properties = append(c.Properties, name)
	}
	return nil
}

// New allocates a zero instance and returns a pointer to it.
func (c *Class) New() any {
	return reflect.New(c.Type).Interface()
}

func (c *Class) target(instance any) (reflect.Value, error) {
	rv := reflect.ValueOf(instance)
	if rv.Kind() == reflect.Pointer && !rv.IsNil() {
		rv = rv.Elem()
	}
	if !rv.IsValid() || rv.Type() != c.Type {
		return reflect.Value{}, fmt.Errorf("%w: instance %T is not %v", ErrInvalidClass, instance, c.Type)
	}
	return rv, nil
}

// Get reads a sealed property of instance, a struct or pointer to one.
func (c *Class) Get(instance any, name string) (any, bool) {
	index, ok := c.fields[name]
	if !ok {
		return nil, false
	}

	rv, err := c.target(instance)
	if err != nil {
		return nil, false
	}
	return rv.FieldByIndex(index).Interface(), true
}

// DynamicProperties returns the extra members of a dynamic instance.
func (c *Class) DynamicProperties(instance any) []value.Property {
	if !c.Dynamic {
		return nil
	}

	rv, err := c.target(instance)
	if err != nil {
		return nil
	}
	return rv.FieldByIndex(c.dynamic).Interface().([]value.Property)
}

// Set stores v into the property name of instance, which must be a
// pointer. Members outside the sealed set land in the dynamic field when
// there is one and fail with ErrUnknownProperty otherwise.
func (c *Class) Set(instance any, name string, v any) error {
	rv := reflect.ValueOf(instance)
	if rv.Kind() != reflect.Pointer || rv.IsNil() || rv.Elem().Type() != c.Type {
		return fmt.Errorf("%w: want *%v, got %T", ErrInvalidClass, c.Type, instance)
	}
	rv = rv.Elem()

	index, ok := c.fields[name]
	if !ok {
		if !c.Dynamic {
			return fmt.Errorf("%w: %v.%s", ErrUnknownProperty, c.Type, name)
		}

		field := rv.FieldByIndex(c.dynamic)
		properties := field.Interface().([]value.Property)
		field.Set(reflect.ValueOf(append(properties, value.Property{Name: name, Value: v})))
		return nil
	}

	if err := assign(rv.FieldByIndex(index), v); err != nil {
		return fmt.Errorf("unable to set %v.%s: %w", c.Type, name, err)
	}
	return nil
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	}
	return 0, false
}

// assign converts decoded values into the field types of registered
// structs.
func assign(dst reflect.Value, v any) error {
	if v == nil || v == value.Undefined {
		dst.SetZero()
		return nil
	}

	src := reflect.ValueOf(v)
	if src.Type().AssignableTo(dst.Type()) {
		dst.Set(src)
		return nil
	}

	mismatch := fmt.Errorf("%w: cannot assign %T to %v", value.ErrUnsupportedValueType, v, dst.Type())

	switch dst.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, ok := number(v)
		if !ok || n != math.Trunc(n) || dst.OverflowInt(int64(n)) {
			return mismatch
		}
		dst.SetInt(int64(n))
		return nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, ok := number(v)
		if !ok || n < 0 || n != math.Trunc(n) || dst.OverflowUint(uint64(n)) {
			return mismatch
		}
		dst.SetUint(uint64(n))
		return nil
	case reflect.Float32, reflect.Float64:
		n, ok := number(v)
		if !ok {
			return mismatch
		}
		dst.SetFloat(n)
		return nil
	case reflect.String:
		s, ok := v.(string)
		if !ok {
			return mismatch
		}
		dst.SetString(s)
		return nil
	case reflect.Bool:
		b, ok := v.(bool)
		if !ok {
			return mismatch
		}
		dst.SetBool(b)
		return nil
	case reflect.Slice:
		var elements []any
		switch s := v.(type) {
		case *value.Array:
			elements = s.Elements
		case *value.Vector:
			elements = s.Elements
		case []any:
			elements = s
		default:
			return mismatch
		}

		out := reflect.MakeSlice(dst.Type(), len(elements), len(elements))
		for i, element := range elements {
			if err := assign(out.Index(i), element); err != nil {
				return fmt.Errorf("element %d: %w", i, err)
			}
		}
		dst.Set(out)
		return nil
	case reflect.Struct:
		if date, ok := v.(*value.Date); ok && dst.Type() == timeType {
			dst.Set(reflect.ValueOf(date.Time))
			return nil
		}
		if src.Kind() == reflect.Pointer && !src.IsNil() && src.Type().Elem() == dst.Type() {
			dst.Set(src.Elem())
			return nil
		}
	}
	return mismatch
}
