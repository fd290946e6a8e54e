package registry

import (
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/mtrqq/amf/pkg/value"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type Person struct {
	Name     string `amf:"name"`
	Age      int    `amf:"age"`
	Internal string `amf:"-"`
	secret   string
}

type Base struct {
	ID float64 `amf:"id"`
}

type Account struct {
	Base
	Owner   *Person
	Tags    []string `amf:"tags"`
	Created time.Time
	Extra   []value.Property `amf:",dynamic"`
}

type Unregistered struct{}

func TestRegisterAndLookup(t *testing.T) {
	r := New()

	typ, ok := r.TypeFor(value.ArrayCollectionClass)
	require.True(t, ok)
	assert.Equal(t, reflect.TypeOf(value.ArrayCollection{}), typ)

	require.NoError(t, r.Register("com.example.Person", &Person{}))
	typ, ok = r.TypeFor("com.example.Person")
	require.True(t, ok)
	assert.Equal(t, reflect.TypeOf(Person{}), typ)

	assert.Equal(t, "com.example.Person", r.ClassNameOf(&Person{}))
	assert.Equal(t, "com.example.Person", r.ClassNameOf(Person{}))
	assert.Equal(t, "Unregistered", r.ClassNameOf(&Unregistered{}))
	assert.Equal(t, "Tagged", r.ClassNameOf(value.NewObject("Tagged")))

	require.NoError(t, r.Register("Person", reflect.TypeOf(Person{})))
	_, ok = r.TypeFor("com.example.Person")
	assert.False(t, ok)
	assert.Equal(t, "Person", r.ClassNameOf(&Person{}))

	_, ok = r.TypeFor("missing")
	assert.False(t, ok)
}

func TestRegisterRejectsNonStruct(t *testing.T) {
	r := New()
	for _, sample := range []any{nil, 1, "x", []int{}} {
		err := r.Register("bad", sample)
		assert.True(t, errors.Is(err, ErrInvalidClass), "sample %v", sample)
	}
}

func TestDescribe(t *testing.T) {
	r := New()

	class, err := r.Describe(&Person{})
	require.NoError(t, err)
	assert.Equal(t, []string{"name", "age"}, class.Properties)
	assert.False(t, class.Externalizable)
	assert.False(t, class.Dynamic)

	again, err := r.Describe(reflect.TypeOf(Person{}))
	require.NoError(t, err)
	assert.Same(t, class, again)

	class, err = r.Describe(Account{})
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "Owner", "tags", "Created"}, class.Properties)
	assert.True(t, class.Dynamic)

	class, err = r.Describe(value.ArrayCollection{})
	require.NoError(t, err)
	assert.True(t, class.Externalizable)
}

func TestClassGetSet(t *testing.T) {
	r := New()
	class, err := r.Describe(Account{})
	require.NoError(t, err)

	instance := class.New()
	account, ok := instance.(*Account)
	require.True(t, ok)

	owner := &Person{Name: "Daan"}
	when := value.NewDate(time.UnixMilli(1700000000000))

	require.NoError(t, class.Set(instance, "id", 7))
	require.NoError(t, class.Set(instance, "Owner", owner))
	require.NoError(t, class.Set(instance, "tags", value.NewArray("a", "b")))
	require.NoError(t, class.Set(instance, "Created", when))
	require.NoError(t, class.Set(instance, "extra", true))

	assert.Equal(t, 7.0, account.ID)
	assert.Same(t, owner, account.Owner)
	assert.Equal(t, []string{"a", "b"}, account.Tags)
	assert.True(t, when.Time.Equal(account.Created))
	assert.Equal(t, []value.Property{{Name: "extra", Value: true}}, class.DynamicProperties(account))

	got, ok := class.Get(account, "tags")
	require.True(t, ok)
	assert.Equal(t, []string{"a", "b"}, got)

	_, ok = class.Get(account, "missing")
	assert.False(t, ok)

	require.NoError(t, class.Set(instance, "Owner", nil))
	assert.Nil(t, account.Owner)
}

func TestClassSetErrors(t *testing.T) {
	r := New()
	class, err := r.Describe(Person{})
	require.NoError(t, err)

	instance := &Person{}
	tests := []struct {
		name    string
		target  any
		prop    string
		value   any
		wantErr error
	}{
		{name: "unknown sealed property", target: instance, prop: "missing", value: 1.0, wantErr: ErrUnknownProperty},
		{name: "not a pointer", target: Person{}, prop: "name", value: "x", wantErr: ErrInvalidClass},
		{name: "fractional into int", target: instance, prop: "age", value: 1.5, wantErr: value.ErrUnsupportedValueType},
		{name: "string into int", target: instance, prop: "age", value: "x", wantErr: value.ErrUnsupportedValueType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := class.Set(tt.target, tt.prop, tt.value)
			assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
		})
	}

	require.NoError(t, class.Set(instance, "age", 17.0))
	assert.Equal(t, 17, instance.Age)
}

func TestConcurrentAccess(t *testing.T) {
	r := New()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = r.Register("Person", Person{})
			_, _ = r.Describe(Person{})
			_ = r.ClassNameOf(&Person{})
			_, _ = r.TypeFor("Person")
		}()
	}
	wg.Wait()

	assert.Equal(t, "Person", r.ClassNameOf(Person{}))
}
