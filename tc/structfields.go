package tc

import (
	"fmt"

	"github.com/m-lab/rtnl-proxy/wire"
)

// StructField describes one member of a flat, non-TLV binary struct —
// htb_parms, tbf_parms, u32_sel, and similar parameter blocks travel as
// one packed struct inside a TLV value,
// not as nested attributes).
type StructField struct {
	Name      string
	Size      int // 1, 2, 4, or 8
	Signed    bool
	BigEndian bool
}

// DecodeStruct parses buf according to fields, in order, returning each
// field's value widened to int64 (sign-extended when Signed is set).
func DecodeStruct(buf []byte, fields []StructField) (map[string]int64, error) {
	out := make(map[string]int64, len(fields))
	offset := 0
	for _, f := range fields {
		if offset+f.Size > len(buf) {
			return nil, fmt.Errorf("tc: struct field %q: %w", f.Name, &wire.DecodeError{Offset: offset, Expected: f.Size, Got: len(buf) - offset})
		}
		v, err := readField(buf[offset:offset+f.Size], f)
		if err != nil {
			return nil, fmt.Errorf("tc: struct field %q: %w", f.Name, err)
		}
		out[f.Name] = v
		offset += f.Size
	}
	return out, nil
}

func readField(b []byte, f StructField) (int64, error) {
	switch f.Size {
	case 1:
		if f.Signed {
			v, err := wire.Int8(b)
			return int64(v), err
		}
		v, err := wire.Uint8(b)
		return int64(v), err
	case 2:
		if f.BigEndian {
			v, err := wire.Uint16BE(b)
			return int64(v), err
		}
		if f.Signed {
			v, err := wire.Int16(b)
			return int64(v), err
		}
		v, err := wire.Uint16(b)
		return int64(v), err
	case 4:
		if f.BigEndian {
			v, err := wire.Uint32BE(b)
			return int64(v), err
		}
		if f.Signed {
			v, err := wire.Int32(b)
			return int64(v), err
		}
		v, err := wire.Uint32(b)
		return int64(v), err
	case 8:
		if f.Signed {
			v, err := wire.Int64(b)
			return int64(v), err
		}
		v, err := wire.Uint64(b)
		return int64(v), err
	default:
		return 0, fmt.Errorf("unsupported field size %d", f.Size)
	}
}

// EncodeStruct serializes values (keyed by StructField.Name) in field
// order. A missing key encodes as zero.
func EncodeStruct(values map[string]int64, fields []StructField) []byte {
	var out []byte
	for _, f := range fields {
		v := values[f.Name]
		switch f.Size {
		case 1:
			out = append(out, wire.PutUint8(uint8(v))...)
		case 2:
			if f.BigEndian {
				b := make([]byte, 2)
				b[0], b[1] = byte(v>>8), byte(v)
				out = append(out, b...)
			} else {
				out = append(out, wire.PutUint16(uint16(v))...)
			}
		case 4:
			if f.BigEndian {
				out = append(out, wire.PutUint32BE(uint32(v))...)
			} else {
				out = append(out, wire.PutUint32(uint32(v))...)
			}
		case 8:
			out = append(out, wire.PutUint64(uint64(v))...)
		}
	}
	return out
}

// structField builds an attr.Field whose Encode/Decode hooks marshal a
// map[string]int64 through the given flat struct layout — used for every
// TCA_*_PARMS-style fixed-struct attribute value.
func structField(name string, fields []StructField) structFieldSpec {
	return structFieldSpec{name: name, fields: fields}
}

type structFieldSpec struct {
	name   string
	fields []StructField
}

func (s structFieldSpec) decode(b []byte) (interface{}, error) {
	return DecodeStruct(b, s.fields)
}

func (s structFieldSpec) encode(v interface{}) ([]byte, error) {
	values, ok := v.(map[string]int64)
	if !ok {
		return nil, fmt.Errorf("tc: %s: expected map[string]int64, got %T", s.name, v)
	}
	return EncodeStruct(values, s.fields), nil
}
