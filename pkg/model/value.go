package model

import (
	"fmt"
	"math/big"
	"reflect"

	"github.com/google/uuid"
	"github.com/paulmach/orb"
	"github.com/shopspring/decimal"
)

// FieldType tags the kind of a feature value. The values are part of the
// persisted format.
type FieldType uint8

const (
	FieldNull               FieldType = 0x00
	FieldBoolean            FieldType = 0x01
	FieldByte               FieldType = 0x02
	FieldShort              FieldType = 0x03
	FieldInteger            FieldType = 0x04
	FieldLong               FieldType = 0x05
	FieldFloat              FieldType = 0x06
	FieldDouble             FieldType = 0x07
	FieldString             FieldType = 0x08
	FieldBooleanArray       FieldType = 0x09
	FieldByteArray          FieldType = 0x0A
	FieldShortArray         FieldType = 0x0B
	FieldIntegerArray       FieldType = 0x0C
	FieldLongArray          FieldType = 0x0D
	FieldFloatArray         FieldType = 0x0E
	FieldDoubleArray        FieldType = 0x0F
	FieldStringArray        FieldType = 0x10
	FieldPoint              FieldType = 0x11
	FieldLineString         FieldType = 0x12
	FieldPolygon            FieldType = 0x13
	FieldMultiPoint         FieldType = 0x14
	FieldMultiLineString    FieldType = 0x15
	FieldMultiPolygon       FieldType = 0x16
	FieldGeometryCollection FieldType = 0x17
	FieldGeometry           FieldType = 0x18
	FieldUUID               FieldType = 0x19
	FieldBigInteger         FieldType = 0x1A
	FieldBigDecimal         FieldType = 0x1B
)

var fieldTypeNames = map[FieldType]string{
	FieldNull:               "NULL",
	FieldBoolean:            "BOOLEAN",
	FieldByte:               "BYTE",
	FieldShort:              "SHORT",
	FieldInteger:            "INTEGER",
	FieldLong:               "LONG",
	FieldFloat:              "FLOAT",
	FieldDouble:             "DOUBLE",
	FieldString:             "STRING",
	FieldBooleanArray:       "BOOLEAN_ARRAY",
	FieldByteArray:          "BYTE_ARRAY",
	FieldShortArray:         "SHORT_ARRAY",
	FieldIntegerArray:       "INTEGER_ARRAY",
	FieldLongArray:          "LONG_ARRAY",
	FieldFloatArray:         "FLOAT_ARRAY",
	FieldDoubleArray:        "DOUBLE_ARRAY",
	FieldStringArray:        "STRING_ARRAY",
	FieldPoint:              "POINT",
	FieldLineString:         "LINESTRING",
	FieldPolygon:            "POLYGON",
	FieldMultiPoint:         "MULTIPOINT",
	FieldMultiLineString:    "MULTILINESTRING",
	FieldMultiPolygon:       "MULTIPOLYGON",
	FieldGeometryCollection: "GEOMETRYCOLLECTION",
	FieldGeometry:           "GEOMETRY",
	FieldUUID:               "UUID",
	FieldBigInteger:         "BIG_INTEGER",
	FieldBigDecimal:         "BIG_DECIMAL",
}

func (f FieldType) String() string {
	if name, ok := fieldTypeNames[f]; ok {
		return name
	}
	return fmt.Sprintf("UNKNOWN(0x%02x)", uint8(f))
}

// Valid reports whether f is a known field type.
func (f FieldType) Valid() bool {
	return f <= FieldBigDecimal
}

// IsGeometry reports whether values of f hold an orb.Geometry.
func (f FieldType) IsGeometry() bool {
	return f >= FieldPoint && f <= FieldGeometry
}

// ParseFieldType is the inverse of FieldType.String.
func ParseFieldType(name string) (FieldType, error) {
	for f, n := range fieldTypeNames {
		if n == name {
			return f, nil
		}
	}
	return FieldNull, fmt.Errorf("unknown field type %q", name)
}

// Value is a tagged feature attribute value. Data holds the Go
// representation matching Type:
//
//	NULL            nil
//	BOOLEAN         bool
//	BYTE            int8
//	SHORT           int16
//	INTEGER         int32
//	LONG            int64
//	FLOAT           float32
//	DOUBLE          float64
//	STRING          string
//	*_ARRAY         []bool, []byte, []int16, []int32, []int64, []float32, []float64, []string
//	geometries      orb.Point, orb.LineString, ... or any orb.Geometry for GEOMETRY
//	UUID            uuid.UUID
//	BIG_INTEGER     *big.Int
//	BIG_DECIMAL     decimal.Decimal
type Value struct {
	Type FieldType
	Data any
}

func Null() Value                         { return Value{Type: FieldNull} }
func Bool(v bool) Value                   { return Value{Type: FieldBoolean, Data: v} }
func Int8(v int8) Value                   { return Value{Type: FieldByte, Data: v} }
func Int16(v int16) Value                 { return Value{Type: FieldShort, Data: v} }
func Int32(v int32) Value                 { return Value{Type: FieldInteger, Data: v} }
func Int64(v int64) Value                 { return Value{Type: FieldLong, Data: v} }
func Float32(v float32) Value             { return Value{Type: FieldFloat, Data: v} }
func Float64(v float64) Value             { return Value{Type: FieldDouble, Data: v} }
func String(v string) Value               { return Value{Type: FieldString, Data: v} }
func UUID(v uuid.UUID) Value              { return Value{Type: FieldUUID, Data: v} }
func BigInt(v *big.Int) Value             { return Value{Type: FieldBigInteger, Data: v} }
func BigDecimal(v decimal.Decimal) Value  { return Value{Type: FieldBigDecimal, Data: v} }
func Bytes(v []byte) Value                { return Value{Type: FieldByteArray, Data: v} }
func Strings(v []string) Value            { return Value{Type: FieldStringArray, Data: v} }
func Float64s(v []float64) Value          { return Value{Type: FieldDoubleArray, Data: v} }
func Int64s(v []int64) Value              { return Value{Type: FieldLongArray, Data: v} }
func Geometry(g orb.Geometry) Value       { return Value{Type: geometryFieldType(g), Data: g} }
func GenericGeometry(g orb.Geometry) Value { return Value{Type: FieldGeometry, Data: g} }

func geometryFieldType(g orb.Geometry) FieldType {
	switch g.(type) {
	case orb.Point:
		return FieldPoint
	case orb.LineString:
		return FieldLineString
	case orb.Polygon:
		return FieldPolygon
	case orb.MultiPoint:
		return FieldMultiPoint
	case orb.MultiLineString:
		return FieldMultiLineString
	case orb.MultiPolygon:
		return FieldMultiPolygon
	case orb.Collection:
		return FieldGeometryCollection
	}
	return FieldGeometry
}

// ValueOf wraps a Go value in the matching Value.
func ValueOf(v any) (Value, error) {
	switch x := v.(type) {
	case nil:
		return Null(), nil
	case Value:
		return x, nil
	case bool:
		return Bool(x), nil
	case int8:
		return Int8(x), nil
	case int16:
		return Int16(x), nil
	case int32:
		return Int32(x), nil
	case int:
		return Int64(int64(x)), nil
	case int64:
		return Int64(x), nil
	case float32:
		return Float32(x), nil
	case float64:
		return Float64(x), nil
	case string:
		return String(x), nil
	case []bool:
		return Value{Type: FieldBooleanArray, Data: x}, nil
	case []byte:
		return Bytes(x), nil
	case []int16:
		return Value{Type: FieldShortArray, Data: x}, nil
	case []int32:
		return Value{Type: FieldIntegerArray, Data: x}, nil
	case []int64:
		return Int64s(x), nil
	case []float32:
		return Value{Type: FieldFloatArray, Data: x}, nil
	case []float64:
		return Float64s(x), nil
	case []string:
		return Strings(x), nil
	case orb.Geometry:
		return Geometry(x), nil
	case uuid.UUID:
		return UUID(x), nil
	case *big.Int:
		return BigInt(x), nil
	case decimal.Decimal:
		return BigDecimal(x), nil
	}
	return Value{}, fmt.Errorf("unsupported value type %T", v)
}

// IsNull reports whether the value is absent.
func (v Value) IsNull() bool {
	return v.Type == FieldNull || v.Data == nil
}

// Geometry returns the geometry held by v, if any.
func (v Value) Geometry() (orb.Geometry, bool) {
	if !v.Type.IsGeometry() || v.Data == nil {
		return nil, false
	}
	g, ok := v.Data.(orb.Geometry)
	return g, ok
}

// Validate checks that Data has the Go type Type requires.
func (v Value) Validate() error {
	if v.Type == FieldNull {
		if v.Data != nil {
			return fmt.Errorf("NULL value carries data of type %T", v.Data)
		}
		return nil
	}
	if v.Data == nil {
		return nil
	}
	ok := false
	switch v.Type {
	case FieldBoolean:
		_, ok = v.Data.(bool)
	case FieldByte:
		_, ok = v.Data.(int8)
	case FieldShort:
		_, ok = v.Data.(int16)
	case FieldInteger:
		_, ok = v.Data.(int32)
	case FieldLong:
		_, ok = v.Data.(int64)
	case FieldFloat:
		_, ok = v.Data.(float32)
	case FieldDouble:
		_, ok = v.Data.(float64)
	case FieldString:
		_, ok = v.Data.(string)
	case FieldBooleanArray:
		_, ok = v.Data.([]bool)
	case FieldByteArray:
		_, ok = v.Data.([]byte)
	case FieldShortArray:
		_, ok = v.Data.([]int16)
	case FieldIntegerArray:
		_, ok = v.Data.([]int32)
	case FieldLongArray:
		_, ok = v.Data.([]int64)
	case FieldFloatArray:
		_, ok = v.Data.([]float32)
	case FieldDoubleArray:
		_, ok = v.Data.([]float64)
	case FieldStringArray:
		_, ok = v.Data.([]string)
	case FieldGeometry:
		_, ok = v.Data.(orb.Geometry)
	case FieldPoint, FieldLineString, FieldPolygon, FieldMultiPoint,
		FieldMultiLineString, FieldMultiPolygon, FieldGeometryCollection:
		g, isGeom := v.Data.(orb.Geometry)
		ok = isGeom && geometryFieldType(g) == v.Type
	case FieldUUID:
		_, ok = v.Data.(uuid.UUID)
	case FieldBigInteger:
		_, ok = v.Data.(*big.Int)
	case FieldBigDecimal:
		_, ok = v.Data.(decimal.Decimal)
	default:
		return fmt.Errorf("unknown field type 0x%02x", uint8(v.Type))
	}
	if !ok {
		return fmt.Errorf("%s value carries data of type %T", v.Type, v.Data)
	}
	return nil
}

// Equal compares two values by type and content.
func (v Value) Equal(o Value) bool {
	if v.IsNull() || o.IsNull() {
		return v.IsNull() && o.IsNull()
	}
	if v.Type != o.Type {
		return false
	}
	switch a := v.Data.(type) {
	case *big.Int:
		b, ok := o.Data.(*big.Int)
		return ok && a.Cmp(b) == 0
	case decimal.Decimal:
		b, ok := o.Data.(decimal.Decimal)
		return ok && a.Equal(b)
	case orb.Geometry:
		b, ok := o.Data.(orb.Geometry)
		return ok && orb.Equal(a, b)
	}
	av, bv := reflect.ValueOf(v.Data), reflect.ValueOf(o.Data)
	if av.Kind() == reflect.Slice && bv.Kind() == reflect.Slice && av.Len() == 0 && bv.Len() == 0 {
		return av.Type() == bv.Type()
	}
	return reflect.DeepEqual(v.Data, o.Data)
}

func (v Value) String() string {
	if v.IsNull() {
		return "NULL"
	}
	return fmt.Sprintf("%s(%v)", v.Type, v.Data)
}
