package model

import (
	"fmt"
	"slices"
	"strings"

	"github.com/paulmach/orb"
)

// Feature is a record whose values are positionally aligned with the
// attributes of its FeatureType.
type Feature struct {
	ID     ObjectId
	Values []Value
}

func (f *Feature) ObjectID() ObjectId { return f.ID }
func (f *Feature) Type() ObjectType   { return TypeFeature }
func (*Feature) revObject()           {}

// NewFeature builds a feature from raw values in attribute order.
func NewFeature(values ...Value) *Feature {
	return &Feature{Values: values}
}

// Bounds is the union of the envelopes of all geometry values.
func (f *Feature) Bounds() *orb.Bound {
	var b *orb.Bound
	for _, v := range f.Values {
		if g, ok := v.Geometry(); ok {
			gb := g.Bound()
			b = UnionBounds(b, &gb)
		}
	}
	return b
}

// Equal compares the values of two features.
func (f *Feature) Equal(o *Feature) bool {
	if len(f.Values) != len(o.Values) {
		return false
	}
	for i := range f.Values {
		if !f.Values[i].Equal(o.Values[i]) {
			return false
		}
	}
	return true
}

// AttributeDescriptor describes one attribute of a FeatureType.
type AttributeDescriptor struct {
	Name     string
	Type     FieldType
	Nillable bool
	// CRS is the coordinate reference system of geometry attributes, e.g.
	// "EPSG:4326".
	CRS string
}

// FeatureType is the schema shared by the features of a tree.
type FeatureType struct {
	ID   ObjectId
	Name string
	// Attributes are sorted by name.
	Attributes []AttributeDescriptor
}

func (ft *FeatureType) ObjectID() ObjectId { return ft.ID }
func (ft *FeatureType) Type() ObjectType   { return TypeFeatureType }
func (*FeatureType) revObject()            {}

// NewFeatureType returns a feature type with its attributes sorted by name.
func NewFeatureType(name string, attributes ...AttributeDescriptor) (*FeatureType, error) {
	attrs := slices.Clone(attributes)
	slices.SortFunc(attrs, func(a, b AttributeDescriptor) int { return strings.Compare(a.Name, b.Name) })
	for i := range attrs {
		if attrs[i].Name == "" {
			return nil, fmt.Errorf("feature type %s: attribute %d has no name", name, i)
		}
		if i > 0 && attrs[i].Name == attrs[i-1].Name {
			return nil, fmt.Errorf("feature type %s: duplicate attribute %s", name, attrs[i].Name)
		}
		if !attrs[i].Type.Valid() {
			return nil, fmt.Errorf("feature type %s: attribute %s has unknown type", name, attrs[i].Name)
		}
	}
	return &FeatureType{Name: name, Attributes: attrs}, nil
}

// Index returns the position of the named attribute, or -1.
func (ft *FeatureType) Index(name string) int {
	i, found := slices.BinarySearchFunc(ft.Attributes, name, func(a AttributeDescriptor, n string) int {
		return strings.Compare(a.Name, n)
	})
	if !found {
		return -1
	}
	return i
}

// NewFeature builds a feature of this type from named values. Attributes
// missing from values are NULL.
func (ft *FeatureType) NewFeature(values map[string]any) (*Feature, error) {
	out := make([]Value, len(ft.Attributes))
	for name := range values {
		if ft.Index(name) < 0 {
			return nil, fmt.Errorf("feature type %s has no attribute %s", ft.Name, name)
		}
	}
	for i, attr := range ft.Attributes {
		raw, ok := values[attr.Name]
		if !ok || raw == nil {
			if !attr.Nillable {
				return nil, fmt.Errorf("attribute %s of %s is not nillable", attr.Name, ft.Name)
			}
			out[i] = Null()
			continue
		}
		v, err := ValueOf(raw)
		if err != nil {
			return nil, fmt.Errorf("attribute %s: %w", attr.Name, err)
		}
		if !v.IsNull() && v.Type != attr.Type && !(attr.Type == FieldGeometry && v.Type.IsGeometry()) {
			return nil, fmt.Errorf("attribute %s expects %s, got %s", attr.Name, attr.Type, v.Type)
		}
		if attr.Type == FieldGeometry {
			v.Type = FieldGeometry
		}
		out[i] = v
	}
	return &Feature{Values: out}, nil
}

// Value returns the named attribute value of f.
func (ft *FeatureType) Value(f *Feature, name string) (Value, bool) {
	i := ft.Index(name)
	if i < 0 || i >= len(f.Values) {
		return Value{}, false
	}
	return f.Values[i], true
}
