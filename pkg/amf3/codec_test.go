package amf3

import (
	"bytes"
	"errors"
	"fmt"
	"reflect"
	"testing"
	"time"

	"github.com/mtrqq/amf/pkg/cursor"
	"github.com/mtrqq/amf/pkg/registry"
	"github.com/mtrqq/amf/pkg/value"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type Person struct {
	Name string `amf:"name"`
	Age  int    `amf:"age"`
}

type Profile struct {
	Nick  string           `amf:"nick"`
	Extra []value.Property `amf:",dynamic"`
}

// Point serializes itself as two raw doubles and a label value.
type Point struct {
	X, Y  float64
	Label string
}

func (p *Point) WriteExternal(out value.DataOutput) error {
	out.WriteFloat64(p.X)
	out.WriteFloat64(p.Y)
	return out.WriteValue(p.Label)
}

func (p *Point) ReadExternal(in value.DataInput) error {
	var err error
	if p.X, err = in.ReadFloat64(); err != nil {
		return err
	}
	if p.Y, err = in.ReadFloat64(); err != nil {
		return err
	}

	label, err := in.ReadValue()
	if err != nil {
		return err
	}
	s, ok := label.(string)
	if !ok {
		return fmt.Errorf("label is %T", label)
	}
	p.Label = s
	return nil
}

func newRegistry(t *testing.T) *registry.Registry {
	reg := registry.New()
	require.NoError(t, reg.Register("com.Person", Person{}))
	require.NoError(t, reg.Register("com.Profile", Profile{}))
	require.NoError(t, reg.Register("geom.Point", Point{}))
	return reg
}

func encode(t *testing.T, reg *registry.Registry, options Options, v any) []byte {
	ba := cursor.NewWithCapacity(64)
	require.NoError(t, NewEncoder(ba, reg, options).Encode(v))
	return ba.Bytes()
}

func decode(reg *registry.Registry, options Options, data []byte) (any, error) {
	return NewDecoder(cursor.New(data), reg, options).Decode()
}

func roundTrip(t *testing.T, reg *registry.Registry, v any) any {
	got, err := decode(reg, Options{}, encode(t, reg, Options{}, v))
	require.NoError(t, err)
	return got
}

func TestRoundTrip(t *testing.T) {
	reg := newRegistry(t)

	assoc := value.NewAssocArray()
	assoc.Set("test", "lol")
	assoc.Set("1", "lol")

	mixed := value.NewAssocArray()
	mixed.Set("name", "x")
	mixed.Dense = []any{1, 2}

	xml, err := value.ParseXML(`<person name="Tent" age="18"><friend name="Jackie" age="16"/></person>`, false)
	require.NoError(t, err)
	legacyXML, err := value.ParseXML(`<a b="c">text</a>`, true)
	require.NoError(t, err)

	dictionary := value.NewDictionary()
	dictionary.Set("A", "Tent")
	dictionary.Set("B", "Preston")

	numbers := value.NewVector(value.VectorDynamic)
	require.NoError(t, numbers.Push(1.0, 2.0, 5.0, 8.0))

	ints := &value.Vector{Kind: value.VectorInt, Fixed: true, Elements: []any{int32(-1), int32(7)}}
	uints := &value.Vector{Kind: value.VectorUint, Elements: []any{uint32(4000000000)}}

	people := value.NewObjectVector(reflect.TypeOf(&Person{}))
	require.NoError(t, people.Push(&Person{Name: "Zaseth", Age: 17}, &Person{Name: "Jackie", Age: 16}, &Person{Name: "Tent", Age: 18}))

	anonymous := value.NewClassVector("com.Unknown")
	require.NoError(t, anonymous.Push(&value.Object{ClassName: "com.Unknown", Properties: []value.Property{{Name: "a", Value: 1}}}))

	bytesArray := cursor.NewWithCapacity(0)
	bytesArray.WriteInt16(5)
	bytesArray.Rewind()

	tests := []struct {
		name string
		in   any
	}{
		{name: "string", in: "lmao"},
		{name: "empty string", in: ""},
		{name: "int", in: 16},
		{name: "negative int", in: -300},
		{name: "double", in: 1.6},
		{name: "negative double", in: -1.6},
		{name: "true", in: true},
		{name: "false", in: false},
		{name: "null", in: nil},
		{name: "undefined", in: value.Undefined},
		{name: "date", in: value.NewDate(time.Now())},
		{name: "dense array", in: value.NewArray(1, 2, 3, &value.Object{Properties: []value.Property{{Name: "id", Value: 2}}})},
		{name: "empty array", in: value.NewArray()},
		{name: "assoc array", in: assoc},
		{name: "assoc with dense part", in: mixed},
		{name: "xml", in: xml},
		{name: "legacy xml", in: legacyXML},
		{name: "typed object", in: &Person{Name: "Daan", Age: 17}},
		{name: "dynamic typed object", in: &Profile{Nick: "d", Extra: []value.Property{{Name: "level", Value: 3}}}},
		{name: "unregistered typed object", in: &value.Object{ClassName: "com.Missing", Properties: []value.Property{{Name: "k", Value: "v"}}}},
		{name: "dynamic anonymous object", in: &value.Object{Dynamic: true, DynamicProperties: []value.Property{{Name: "k", Value: true}}}},
		{name: "dictionary", in: dictionary},
		{name: "double vector", in: numbers},
		{name: "int vector", in: ints},
		{name: "uint vector", in: uints},
		{name: "object vector", in: people},
		{name: "class vector", in: anonymous},
		{name: "byte array", in: bytesArray},
		{name: "externalizable", in: &Point{X: 1, Y: -2.5, Label: "origin"}},
		{name: "array collection", in: value.NewArrayCollection("a", 1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.in, roundTrip(t, reg, tt.in))
		})
	}
}

func TestGoValues(t *testing.T) {
	reg := newRegistry(t)

	got := roundTrip(t, reg, []string{"a", "b"})
	assert.Equal(t, value.NewArray("a", "b"), got)

	got = roundTrip(t, reg, map[string]any{"b": 2, "a": 1})
	want := value.NewAssocArray()
	want.Set("a", 1)
	want.Set("b", 2)
	assert.Equal(t, want, got)

	got = roundTrip(t, reg, []byte{1, 2})
	assert.Equal(t, cursor.New([]byte{1, 2}), got)

	got = roundTrip(t, reg, Person{Name: "v", Age: 1})
	assert.Equal(t, &Person{Name: "v", Age: 1}, got)

	got = roundTrip(t, reg, (*Person)(nil))
	assert.Nil(t, got)

	got = roundTrip(t, reg, int64(1)<<40)
	assert.Equal(t, float64(int64(1)<<40), got)

	_, err := decode(reg, Options{}, nil)
	assert.Error(t, err)

	ba := cursor.NewWithCapacity(8)
	err = NewEncoder(ba, reg, Options{}).Encode(make(chan int))
	assert.True(t, errors.Is(err, value.ErrUnsupportedValueType))
}

func TestIntegerEncoding(t *testing.T) {
	reg := registry.New()

	tests := []struct {
		name    string
		in      any
		options Options
		want    []byte
	}{
		{name: "small int", in: 16, want: []byte{MarkerInteger, 0x10}},
		{name: "minus one", in: -1, want: []byte{MarkerInteger, 0xFF, 0xFF, 0xFF, 0xFF}},
		{name: "max int", in: MaxInt, want: []byte{MarkerInteger, 0xBF, 0xFF, 0xFF, 0xFF}},
		{name: "above max int", in: MaxInt + 1, want: []byte{MarkerDouble, 0x41, 0xB0, 0, 0, 0, 0, 0, 0}},
		{name: "float stays double", in: 16.0, want: []byte{MarkerDouble, 0x40, 0x30, 0, 0, 0, 0, 0, 0}},
		{name: "assumed integer", in: 16.0, options: Options{AssumeIntegers: true}, want: []byte{MarkerInteger, 0x10}},
		{name: "fraction with assumed integers", in: 1.5, options: Options{AssumeIntegers: true}, want: []byte{MarkerDouble, 0x3F, 0xF8, 0, 0, 0, 0, 0, 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := encode(t, reg, tt.options, tt.in)
			assert.Equal(t, tt.want, data)

			got, err := decode(reg, Options{}, data)
			require.NoError(t, err)
			if data[0] == MarkerInteger {
				assert.IsType(t, 0, got)
			}
		})
	}

	got, err := decode(reg, Options{}, []byte{MarkerInteger, 0xFF, 0xFF, 0xFF, 0xFF})
	require.NoError(t, err)
	assert.Equal(t, -1, got)

	got, err = decode(reg, Options{}, []byte{MarkerInteger, 0xC0, 0x80, 0x80, 0x00})
	require.NoError(t, err)
	assert.Equal(t, MinInt, got)
}

func TestReferenceDedup(t *testing.T) {
	reg := registry.New()
	shared := &value.Object{Properties: []value.Property{{Name: "id", Value: 2}}}

	data := encode(t, reg, Options{}, value.NewArray(shared, shared))
	assert.Equal(t, []byte{
		MarkerArray, 0x05, 0x01,
		MarkerObject, 0x13, 0x01, 0x05, 'i', 'd', MarkerInteger, 0x02,
		MarkerObject, 0x02,
	}, data)

	got, err := decode(reg, Options{}, data)
	require.NoError(t, err)
	array := got.(*value.Array)
	require.Len(t, array.Elements, 2)
	assert.Same(t, array.Elements[0], array.Elements[1])
}

func TestStringDedup(t *testing.T) {
	reg := registry.New()
	data := encode(t, reg, Options{}, value.NewArray("lmao", "lmao", ""))
	assert.Equal(t, []byte{
		MarkerArray, 0x07, 0x01,
		MarkerString, 0x09, 'l', 'm', 'a', 'o',
		MarkerString, 0x00,
		MarkerString, 0x01,
	}, data)
}

func TestTraitCaching(t *testing.T) {
	reg := newRegistry(t)
	data := encode(t, reg, Options{}, value.NewArray(&Person{Name: "Daan", Age: 17}, &Person{Name: "Tent", Age: 18}))

	assert.Equal(t, 1, bytes.Count(data, []byte("com.Person")))
	assert.Equal(t, 1, bytes.Count(data, []byte("name")))
	assert.Equal(t, []byte{MarkerObject, 0x01, MarkerString, 0x09, 'T', 'e', 'n', 't', MarkerInteger, 18}, data[len(data)-10:])

	got, err := decode(reg, Options{}, data)
	require.NoError(t, err)
	assert.Equal(t, value.NewArray(&Person{Name: "Daan", Age: 17}, &Person{Name: "Tent", Age: 18}), got)
}

func TestDistinctShapesDoNotShareTraits(t *testing.T) {
	reg := registry.New()
	a := &value.Object{ClassName: "A", Properties: []value.Property{{Name: "x", Value: 1}}}
	b := &value.Object{ClassName: "A", Properties: []value.Property{{Name: "y", Value: 1}}}

	got := roundTrip(t, reg, value.NewArray(a, b))
	assert.Equal(t, value.NewArray(a, b), got)
}

func TestCycles(t *testing.T) {
	reg := registry.New()
	array := value.NewArray()
	array.Push(array)

	got := roundTrip(t, reg, array)
	decoded := got.(*value.Array)
	assert.Same(t, decoded, decoded.Elements[0])

	object := &value.Object{Dynamic: true}
	object.Set("self", object)
	decodedObject := roundTrip(t, reg, object).(*value.Object)
	self, _ := decodedObject.Get("self")
	assert.Same(t, decodedObject, self)
}

func TestObjectTableAlignment(t *testing.T) {
	reg := registry.New()
	shared := value.NewDate(time.UnixMilli(1000))

	// unaddressable composites still claim a slot so later references line up
	in := value.NewArray(Person{Name: "a"}, []byte{}, shared, shared)
	got := roundTrip(t, reg, in).(*value.Array)
	assert.Same(t, got.Elements[2], got.Elements[3])
	assert.Equal(t, shared, got.Elements[3])
}

func TestReset(t *testing.T) {
	reg := registry.New()
	ba := cursor.NewWithCapacity(16)
	encoder := NewEncoder(ba, reg, Options{})

	require.NoError(t, encoder.Encode("lmao"))
	require.NoError(t, encoder.Encode("lmao"))
	assert.Equal(t, []byte{MarkerString, 0x09, 'l', 'm', 'a', 'o', MarkerString, 0x00}, ba.Bytes())

	ba.Reset()
	encoder.Reset()
	require.NoError(t, encoder.Encode("lmao"))
	encoder.Reset()
	require.NoError(t, encoder.Encode("lmao"))
	assert.Equal(t, []byte{MarkerString, 0x09, 'l', 'm', 'a', 'o', MarkerString, 0x09, 'l', 'm', 'a', 'o'}, ba.Bytes())

	ba.Rewind()
	decoder := NewDecoder(ba, reg, Options{})
	first, err := decoder.Decode()
	require.NoError(t, err)
	decoder.Reset()
	second, err := decoder.Decode()
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestMalformedInput(t *testing.T) {
	reg := newRegistry(t)

	tests := []struct {
		name    string
		data    []byte
		wantErr error
	}{
		{name: "unknown marker", data: []byte{0x42}, wantErr: value.ErrUnknownMarker},
		{name: "truncated double", data: []byte{MarkerDouble, 0x40}, wantErr: cursor.ErrUnexpectedEndOfInput},
		{name: "truncated u29", data: []byte{MarkerInteger, 0x80}, wantErr: cursor.ErrUnexpectedEndOfInput},
		{name: "object reference out of range", data: []byte{MarkerArray, 0x02}, wantErr: value.ErrInvalidReference},
		{name: "string reference out of range", data: []byte{MarkerString, 0x04}, wantErr: value.ErrInvalidReference},
		{name: "trait reference out of range", data: []byte{MarkerObject, 0x05}, wantErr: ErrTraitsNotFound},
		{name: "string longer than input", data: []byte{MarkerString, 0xFF, 0xFF, 0xFF, 0x7F}, wantErr: value.ErrLengthExceedsInput},
		{name: "array longer than input", data: []byte{MarkerArray, 0xFF, 0xFF, 0x01, 0x01}, wantErr: value.ErrLengthExceedsInput},
		{name: "vector longer than input", data: []byte{MarkerVectorDouble, 0x05, 0x00, 0, 0, 0, 0, 0, 0, 0, 0}, wantErr: value.ErrLengthExceedsInput},
		{name: "unregistered externalizable", data: []byte{MarkerObject, 0x07, 0x07, 'a', 'b', 'c'}, wantErr: ErrUnregisteredExternalizable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := decode(reg, Options{}, tt.data)
			assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
		})
	}
}

func TestLenientUnknownMarker(t *testing.T) {
	got, err := decode(registry.New(), Options{Lenient: true}, []byte{MarkerArray, 0x05, 0x01, 0x42, MarkerTrue})
	require.NoError(t, err)
	assert.Equal(t, value.NewArray(value.Undefined, true), got)
}

func TestMaxDepth(t *testing.T) {
	reg := registry.New()
	nested := value.NewArray()
	for i := 0; i < 5; i++ {
		nested = value.NewArray(nested)
	}

	ba := cursor.NewWithCapacity(16)
	err := NewEncoder(ba, reg, Options{MaxDepth: 3}).Encode(nested)
	assert.True(t, errors.Is(err, value.ErrMaxDepthExceeded))

	data := encode(t, reg, Options{}, nested)
	_, err = decode(reg, Options{MaxDepth: 3}, data)
	assert.True(t, errors.Is(err, value.ErrMaxDepthExceeded))
}

func TestUnknownMembersOfRegisteredClass(t *testing.T) {
	reg := newRegistry(t)
	object := &value.Object{ClassName: "com.Person", Properties: []value.Property{
		{Name: "name", Value: "Daan"},
		{Name: "unknown", Value: 1},
	}}

	got := roundTrip(t, reg, object)
	assert.Equal(t, &Person{Name: "Daan"}, got)
}

func TestVectorElementMismatchOnWrite(t *testing.T) {
	ba := cursor.NewWithCapacity(16)
	vector := &value.Vector{Kind: value.VectorInt, Elements: []any{"x"}}
	err := NewEncoder(ba, registry.New(), Options{}).Encode(vector)
	assert.True(t, errors.Is(err, value.ErrVectorElementTypeMismatch))
}

func TestUntypedObjectVectorInfersType(t *testing.T) {
	reg := registry.New()
	vector := value.NewObjectVector(nil)
	require.NoError(t, vector.Push(value.NewArray(1), value.NewArray(2)))

	got := roundTrip(t, reg, vector).(*value.Vector)
	assert.Equal(t, reflect.TypeOf(&value.Array{}), got.ElemType)
	assert.Equal(t, vector, got)
}
