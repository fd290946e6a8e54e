package value

// Property is one named member of an object.
type Property struct {
	Name  string
	Value any
}

// Object is an anonymous object, or a typed object whose class has no
// registered Go type. Properties keep the sealed members in trait order,
// DynamicProperties the open-ended members of dynamic classes.
type Object struct {
	ClassName         string
	Dynamic           bool
	Properties        []Property
	DynamicProperties []Property
}

func NewObject(className string) *Object {
	return &Object{ClassName: className}
}

func findProperty(properties []Property, name string) int {
	for i := range properties {
		if properties[i].Name == name {
			return i
		}
	}
	return -1
}

func (o *Object) Get(name string) (any, bool) {
	if i := findProperty(o.Properties, name); i >= 0 {
		return o.Properties[i].Value, true
	}
	if i := findProperty(o.DynamicProperties, name); i >= 0 {
		return o.DynamicProperties[i].Value, true
	}
	return nil, false
}

// Set updates an existing member, new members go to the dynamic part of
// dynamic objects and to the sealed part otherwise.
func (o *Object) Set(name string, value any) {
	if i := findProperty(o.Properties, name); i >= 0 {
		o.Properties[i].Value = value
		return
	}
	if i := findProperty(o.DynamicProperties, name); i >= 0 {
		o.DynamicProperties[i].Value = value
		return
	}

	if o.Dynamic {
		o.DynamicProperties = append(o.DynamicProperties, Property{Name: name, Value: value})
		return
	}
	o.Properties = append(o.Properties, Property{Name: name, Value: value})
}

// PropertyNames lists the sealed member names in order.
func (o *Object) PropertyNames() []string {
	names := make([]string, 0, len(o.Properties))
	for _, property := range o.Properties {
		names = append(names, property.Name)
	}
	return names
}

// All returns sealed then dynamic members.
func (o *Object) All() []Property {
	all := make([]Property, 0, len(o.Properties)+len(o.DynamicProperties))
	all = append(all, o.Properties...)
	return append(all, o.DynamicProperties...)
}
