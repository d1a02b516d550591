package encoding

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"math/big"

	"github.com/google/uuid"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkb"
	"github.com/shopspring/decimal"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/yokosogithub/GeoGit-sub002/pkg/model"
)

var errTruncated = errors.New("truncated value payload")

// writeValue writes the field type tag followed by the payload. Values
// without data are written as NULL.
func writeValue(w *writer, v model.Value) error {
	if isNil(v) {
		w.varint(1, uint64(model.FieldNull))
		return nil
	}
	if err := v.Validate(); err != nil {
		return err
	}
	payload, err := valuePayload(v)
	if err != nil {
		return fmt.Errorf("%s: %w", v.Type, err)
	}
	w.varint(1, uint64(v.Type))
	w.bytes(2, payload)
	return nil
}

func isNil(v model.Value) bool {
	if v.IsNull() {
		return true
	}
	if b, ok := v.Data.(*big.Int); ok && b == nil {
		return true
	}
	return false
}

func valuePayload(v model.Value) ([]byte, error) {
	var b []byte
	switch x := v.Data.(type) {
	case bool:
		b = protowire.AppendVarint(b, protowire.EncodeBool(x))
	case int8:
		b = protowire.AppendVarint(b, protowire.EncodeZigZag(int64(x)))
	case int16:
		b = protowire.AppendVarint(b, protowire.EncodeZigZag(int64(x)))
	case int32:
		b = protowire.AppendVarint(b, protowire.EncodeZigZag(int64(x)))
	case int64:
		b = protowire.AppendVarint(b, protowire.EncodeZigZag(x))
	case float32:
		b = protowire.AppendFixed32(b, math.Float32bits(x))
	case float64:
		b = protowire.AppendFixed64(b, math.Float64bits(x))
	case string:
		b = append(b, x...)
	case []byte:
		b = append(b, x...)
	case []bool:
		b = protowire.AppendVarint(b, uint64(len(x)))
		for _, e := range x {
			b = protowire.AppendVarint(b, protowire.EncodeBool(e))
		}
	case []int16:
		b = protowire.AppendVarint(b, uint64(len(x)))
		for _, e := range x {
			b = protowire.AppendVarint(b, protowire.EncodeZigZag(int64(e)))
		}
	case []int32:
		b = protowire.AppendVarint(b, uint64(len(x)))
		for _, e := range x {
			b = protowire.AppendVarint(b, protowire.EncodeZigZag(int64(e)))
		}
	case []int64:
		b = protowire.AppendVarint(b, uint64(len(x)))
		for _, e := range x {
			b = protowire.AppendVarint(b, protowire.EncodeZigZag(e))
		}
	case []float32:
		b = protowire.AppendVarint(b, uint64(len(x)))
		for _, e := range x {
			b = protowire.AppendFixed32(b, math.Float32bits(e))
		}
	case []float64:
		b = protowire.AppendVarint(b, uint64(len(x)))
		for _, e := range x {
			b = protowire.AppendFixed64(b, math.Float64bits(e))
		}
	case []string:
		b = protowire.AppendVarint(b, uint64(len(x)))
		for _, e := range x {
			b = protowire.AppendString(b, e)
		}
	case uuid.UUID:
		b = append(b, x[:]...)
	case *big.Int:
		b = x.Append(b, 10)
	case decimal.Decimal:
		b = append(b, x.String()...)
	case orb.Geometry:
		return wkb.Marshal(x)
	default:
		return nil, fmt.Errorf("unsupported data %T", v.Data)
	}
	return b, nil
}

func readValue(b []byte) (model.Value, error) {
	var (
		typ     model.FieldType
		payload []byte
	)
	err := readFields(b, func(f field) error {
		switch f.num {
		case 1:
			typ = model.FieldType(f.scalar)
		case 2:
			payload = f.data
		}
		return nil
	})
	if err != nil {
		return model.Value{}, err
	}
	if !typ.Valid() {
		return model.Value{}, fmt.Errorf("unknown field type 0x%02x", uint8(typ))
	}
	if typ == model.FieldNull {
		return model.Null(), nil
	}
	data, err := decodePayload(typ, payload)
	if err != nil {
		return model.Value{}, fmt.Errorf("%s: %w", typ, err)
	}
	v := model.Value{Type: typ, Data: data}
	return v, v.Validate()
}

// payloadReader consumes the positional encoding written by valuePayload.
type payloadReader struct {
	b   []byte
	err error
}

func (r *payloadReader) varint() uint64 {
	if r.err != nil {
		return 0
	}
	v, n := protowire.ConsumeVarint(r.b)
	if n < 0 {
		r.err = errTruncated
		return 0
	}
	r.b = r.b[n:]
	return v
}

func (r *payloadReader) fixed32() uint32 {
	if r.err != nil {
		return 0
	}
	v, n := protowire.ConsumeFixed32(r.b)
	if n < 0 {
		r.err = errTruncated
		return 0
	}
	r.b = r.b[n:]
	return v
}

func (r *payloadReader) fixed64() uint64 {
	if r.err != nil {
		return 0
	}
	v, n := protowire.ConsumeFixed64(r.b)
	if n < 0 {
		r.err = errTruncated
		return 0
	}
	r.b = r.b[n:]
	return v
}

func (r *payloadReader) string() string {
	if r.err != nil {
		return ""
	}
	v, n := protowire.ConsumeString(r.b)
	if n < 0 {
		r.err = errTruncated
		return ""
	}
	r.b = r.b[n:]
	return v
}

func (r *payloadReader) count() int {
	n := r.varint()
	if r.err == nil && n > uint64(len(r.b)) {
		r.err = fmt.Errorf("array length %d exceeds payload", n)
		return 0
	}
	return int(n)
}

func (r *payloadReader) done() error {
	if r.err == nil && len(r.b) > 0 {
		return fmt.Errorf("%d trailing bytes", len(r.b))
	}
	return r.err
}

func decodePayload(typ model.FieldType, payload []byte) (any, error) {
	r := &payloadReader{b: payload}
	var out any
	switch typ {
	case model.FieldBoolean:
		out = protowire.DecodeBool(r.varint())
	case model.FieldByte:
		out = int8(protowire.DecodeZigZag(r.varint()))
	case model.FieldShort:
		out = int16(protowire.DecodeZigZag(r.varint()))
	case model.FieldInteger:
		out = int32(protowire.DecodeZigZag(r.varint()))
	case model.FieldLong:
		out = protowire.DecodeZigZag(r.varint())
	case model.FieldFloat:
		out = math.Float32frombits(r.fixed32())
	case model.FieldDouble:
		out = math.Float64frombits(r.fixed64())
	case model.FieldString:
		return string(payload), nil
	case model.FieldByteArray:
		return bytes.Clone(payload), nil
	case model.FieldBooleanArray:
		n := r.count()
		vals := make([]bool, n)
		for i := range vals {
			vals[i] = protowire.DecodeBool(r.varint())
		}
		out = vals
	case model.FieldShortArray:
		n := r.count()
		vals := make([]int16, n)
		for i := range vals {
			vals[i] = int16(protowire.DecodeZigZag(r.varint()))
		}
		out = vals
	case model.FieldIntegerArray:
		n := r.count()
		vals := make([]int32, n)
		for i := range vals {
			vals[i] = int32(protowire.DecodeZigZag(r.varint()))
		}
		out = vals
	case model.FieldLongArray:
		n := r.count()
		vals := make([]int64, n)
		for i := range vals {
			vals[i] = protowire.DecodeZigZag(r.varint())
		}
		out = vals
	case model.FieldFloatArray:
		n := r.count()
		vals := make([]float32, n)
		for i := range vals {
			vals[i] = math.Float32frombits(r.fixed32())
		}
		out = vals
	case model.FieldDoubleArray:
		n := r.count()
		vals := make([]float64, n)
		for i := range vals {
			vals[i] = math.Float64frombits(r.fixed64())
		}
		out = vals
	case model.FieldStringArray:
		n := r.count()
		vals := make([]string, n)
		for i := range vals {
			vals[i] = r.string()
		}
		out = vals
	case model.FieldUUID:
		return uuid.FromBytes(payload)
	case model.FieldBigInteger:
		b, ok := new(big.Int).SetString(string(payload), 10)
		if !ok {
			return nil, fmt.Errorf("invalid big integer %q", payload)
		}
		return b, nil
	case model.FieldBigDecimal:
		return decimal.NewFromString(string(payload))
	default:
		if typ.IsGeometry() {
			return wkb.Unmarshal(payload)
		}
		return nil, fmt.Errorf("unsupported field type")
	}
	if err := r.done(); err != nil {
		return nil, err
	}
	return out, nil
}
