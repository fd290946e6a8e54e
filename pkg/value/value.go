// Package value holds the Go representation of every kind the codecs
// exchange.
//
// Primitive kinds map onto plain Go values: nil is null, Undefined is
// undefined, bool, float64 (and the Go integer kinds on encode) and string.
// Composite kinds are pointers so that shared and cyclic graphs keep their
// identity through a round trip.
package value

import (
	"math"
	"reflect"
	"time"
	"unsafe"
)

type UndefinedType struct{}

func (UndefinedType) String() string {
	return "undefined"
}

// Undefined is the only value of UndefinedType.
var Undefined = UndefinedType{}

// Date is a point in time with millisecond precision.
type Date struct {
	time.Time
}

// NewDate truncates t to milliseconds and converts it to UTC.
func NewDate(t time.Time) *Date {
	return &Date{Time: t.Truncate(time.Millisecond).UTC()}
}

// DateFromMillis builds a UTC date from milliseconds since the Unix epoch.
func DateFromMillis(ms float64) *Date {
	if math.IsNaN(ms) || math.IsInf(ms, 0) {
		ms = 0
	}
	return &Date{Time: time.UnixMilli(int64(ms)).UTC()}
}

// Millis returns the timestamp as milliseconds since the Unix epoch.
func (d *Date) Millis() float64 {
	return float64(d.UnixMilli())
}

// ZoneOffsetMinutes follows the legacy wire convention: minutes to add to
// local time to get UTC, so zones east of Greenwich are negative.
func (d *Date) ZoneOffsetMinutes() int16 {
	_, offset := d.Zone()
	return int16(-offset / 60)
}

// Array is a dense, ordered list of values.
type Array struct {
	Elements []any
}

func NewArray(elements ...any) *Array {
	return &Array{Elements: elements}
}

func (a *Array) Len() int {
	return len(a.Elements)
}

func (a *Array) Push(elements ...any) {
	a.Elements = append(a.Elements, elements...)
}

type Entry struct {
	Key   string
	Value any
}

// AssocArray is an ordered string keyed map with an optional dense part.
type AssocArray struct {
	Entries []Entry
	Dense   []any
}

func NewAssocArray() *AssocArray {
	return &AssocArray{}
}

func (a *AssocArray) index(key string) int {
	for i := range a.Entries {
		if a.Entries[i].Key == key {
			return i
		}
	}
	return -1
}

func (a *AssocArray) Get(key string) (any, bool) {
	if i := a.index(key); i >= 0 {
		return a.Entries[i].Value, true
	}
	return nil, false
}

// Set overwrites an existing key in place or appends a new one.
func (a *AssocArray) Set(key string, value any) {
	if i := a.index(key); i >= 0 {
		a.Entries[i].Value = value
		return
	}
	a.Entries = append(a.Entries, Entry{Key: key, Value: value})
}

func (a *AssocArray) Delete(key string) {
	if i := a.index(key); i >= 0 {
		a.Entries = append(a.Entries[:i], a.Entries[i+1:]...)
	}
}

func (a *AssocArray) Keys() []string {
	keys := make([]string, 0, len(a.Entries))
	for _, entry := range a.Entries {
		keys = append(keys, entry.Key)
	}
	return keys
}

func (a *AssocArray) Len() int {
	return len(a.Entries) + len(a.Dense)
}

type sliceIdentity struct {
	data   unsafe.Pointer
	length int
	typ    reflect.Type
}

type mapIdentity struct {
	data unsafe.Pointer
}

// Identity returns a comparable handle naming the storage behind a
// composite value. Pointers are their own handle, slices and maps are keyed
// by their backing storage. Values with no stable address report false.
func Identity(v any) (any, bool) {
	if v == nil {
		return nil, false
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer:
		if rv.IsNil() {
			return nil, false
		}
		return v, true
	case reflect.Slice:
		if rv.Len() == 0 {
			return nil, false
		}
		return sliceIdentity{data: rv.UnsafePointer(), length: rv.Len(), typ: rv.Type()}, true
	case reflect.Map:
		if rv.IsNil() {
			return nil, false
		}
		return mapIdentity{data: rv.UnsafePointer()}, true
	}
	return nil, false
}
