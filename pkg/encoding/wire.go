package encoding

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/yokosogithub/GeoGit-sub002/pkg/model"
)

// writer appends tagged protobuf wire fields in a fixed order, which keeps
// the output canonical.
type writer struct {
	buf []byte
}

func (w *writer) varint(num protowire.Number, v uint64) {
	w.buf = protowire.AppendTag(w.buf, num, protowire.VarintType)
	w.buf = protowire.AppendVarint(w.buf, v)
}

func (w *writer) sint(num protowire.Number, v int64) {
	w.varint(num, protowire.EncodeZigZag(v))
}

func (w *writer) fixed64(num protowire.Number, v uint64) {
	w.buf = protowire.AppendTag(w.buf, num, protowire.Fixed64Type)
	w.buf = protowire.AppendFixed64(w.buf, v)
}

func (w *writer) bytes(num protowire.Number, v []byte) {
	w.buf = protowire.AppendTag(w.buf, num, protowire.BytesType)
	w.buf = protowire.AppendBytes(w.buf, v)
}

func (w *writer) string(num protowire.Number, v string) {
	w.buf = protowire.AppendTag(w.buf, num, protowire.BytesType)
	w.buf = protowire.AppendString(w.buf, v)
}

func (w *writer) id(num protowire.Number, id model.ObjectId) {
	w.bytes(num, id[:])
}

func (w *writer) message(num protowire.Number, fn func(*writer) error) error {
	sub := &writer{}
	if err := fn(sub); err != nil {
		return err
	}
	w.bytes(num, sub.buf)
	return nil
}

func (w *writer) bounds(num protowire.Number, b *orb.Bound) {
	if b == nil {
		return
	}
	_ = w.message(num, func(sub *writer) error {
		sub.fixed64(1, math.Float64bits(b.Min[0]))
		sub.fixed64(2, math.Float64bits(b.Min[1]))
		sub.fixed64(3, math.Float64bits(b.Max[0]))
		sub.fixed64(4, math.Float64bits(b.Max[1]))
		return nil
	})
}

// field is one decoded wire field.
type field struct {
	num    protowire.Number
	typ    protowire.Type
	scalar uint64
	data   []byte
}

func (f field) id() (model.ObjectId, error) {
	var id model.ObjectId
	if f.typ != protowire.BytesType || len(f.data) != model.IDLength {
		return id, fmt.Errorf("field %d: expected %d byte object id", f.num, model.IDLength)
	}
	copy(id[:], f.data)
	return id, nil
}

func (f field) str() string {
	return string(f.data)
}

func (f field) sint() int64 {
	return protowire.DecodeZigZag(f.scalar)
}

func (f field) float64() float64 {
	return math.Float64frombits(f.scalar)
}

// readFields walks the wire fields of b in order.
func readFields(b []byte, fn func(field) error) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]
		f := field{num: num, typ: typ}
		switch typ {
		case protowire.VarintType:
			f.scalar, n = protowire.ConsumeVarint(b)
		case protowire.Fixed64Type:
			f.scalar, n = protowire.ConsumeFixed64(b)
		case protowire.Fixed32Type:
			var v uint32
			v, n = protowire.ConsumeFixed32(b)
			f.scalar = uint64(v)
		case protowire.BytesType:
			f.data, n = protowire.ConsumeBytes(b)
		default:
			return fmt.Errorf("field %d: unsupported wire type %d", num, typ)
		}
		if n < 0 {
			return fmt.Errorf("field %d: %w", num, protowire.ParseError(n))
		}
		b = b[n:]
		if err := fn(f); err != nil {
			return err
		}
	}
	return nil
}

func readBounds(b []byte) (*orb.Bound, error) {
	var bound orb.Bound
	err := readFields(b, func(f field) error {
		switch f.num {
		case 1:
			bound.Min[0] = f.float64()
		case 2:
			bound.Min[1] = f.float64()
		case 3:
			bound.Max[0] = f.float64()
		case 4:
			bound.Max[1] = f.float64()
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("bounds: %w", err)
	}
	return &bound, nil
}
