package value

import (
	"fmt"
	"reflect"
)

type VectorKind uint8

const (
	// VectorDynamic vectors take the kind of their first element.
	VectorDynamic VectorKind = iota
	VectorInt
	VectorUint
	VectorDouble
	VectorObject
)

func (k VectorKind) String() string {
	switch k {
	case VectorDynamic:
		return "Vector.<*>"
	case VectorInt:
		return "Vector.<int>"
	case VectorUint:
		return "Vector.<uint>"
	case VectorDouble:
		return "Vector.<Number>"
	case VectorObject:
		return "Vector.<Object>"
	}
	return fmt.Sprintf("VectorKind(%d)", uint8(k))
}

// Vector is a homogeneous list. Int, Uint and Double vectors hold int32,
// uint32 and float64 elements. Object vectors hold elements of ElemType,
// or *Object values of ClassName when the class has no Go type, nil
// elements are always accepted.
type Vector struct {
	Kind      VectorKind
	Fixed     bool
	ClassName string
	ElemType  reflect.Type
	Elements  []any
}

func NewVector(kind VectorKind) *Vector {
	return &Vector{Kind: kind}
}

// NewObjectVector creates an object vector of elemType, a nil elemType is
// taken from the first pushed element.
func NewObjectVector(elemType reflect.Type) *Vector {
	return &Vector{Kind: VectorObject, ElemType: elemType}
}

// NewClassVector creates an object vector of *Object values tagged className.
func NewClassVector(className string) *Vector {
	return &Vector{Kind: VectorObject, ClassName: className}
}

func (v *Vector) Len() int {
	return len(v.Elements)
}

func (v *Vector) infer(element any) {
	switch element.(type) {
	case int32:
		v.Kind = VectorInt
	case uint32:
		v.Kind = VectorUint
	case float64:
		v.Kind = VectorDouble
	default:
		v.Kind = VectorObject
	}
}

// Validate reports whether element may be stored in the vector.
func (v *Vector) Validate(element any) error {
	var ok bool
	switch v.Kind {
	case VectorDynamic:
		ok = true
	case VectorInt:
		_, ok = element.(int32)
	case VectorUint:
		_, ok = element.(uint32)
	case VectorDouble:
		_, ok = element.(float64)
	case VectorObject:
		switch {
		case element == nil:
			ok = true
		case v.ClassName != "":
			object, isObject := element.(*Object)
			ok = isObject && object.ClassName == v.ClassName
		case v.ElemType != nil:
			ok = reflect.TypeOf(element) == v.ElemType
		default:
			ok = true
		}
	}

	if !ok {
		return fmt.Errorf("%w: got %T, want element of %v", ErrVectorElementTypeMismatch, element, v)
	}
	return nil
}

// Push appends elements, the first element fixes the kind of a dynamic
// vector and the element type of an untyped object vector.
func (v *Vector) Push(elements ...any) error {
	if v.Fixed {
		return fmt.Errorf("%w: cannot push onto %v of length %d", ErrVectorFixedLength, v, len(v.Elements))
	}

	for _, element := range elements {
		if v.Kind == VectorDynamic {
			v.infer(element)
		}
		if v.Kind == VectorObject && v.ClassName == "" && v.ElemType == nil && element != nil {
			v.ElemType = reflect.TypeOf(element)
		}

		if err := v.Validate(element); err != nil {
			return err
		}
		v.Elements = append(v.Elements, element)
	}
	return nil
}

func (v *Vector) String() string {
	switch {
	case v.ClassName != "":
		return fmt.Sprintf("Vector.<%s>", v.ClassName)
	case v.Kind == VectorObject && v.ElemType != nil:
		return fmt.Sprintf("Vector.<%v>", v.ElemType)
	}
	return v.Kind.String()
}
