// Package attr implements the generic, recursive, schema-driven TLV
// attribute codec shared by the link and traffic-control message families:
// (length uint16, kind uint16, value []byte), 4-byte aligned between
// siblings, with schema-declared dispatch into data-dependent nested
// attribute sets. The header layout and alignment match
// github.com/vishvananda/netlink/nl's ParseRouteAttr/rtaAlignOf, generalized
// from flat parsing into schema-guided recursive encode/decode.
package attr

import (
	"fmt"
	"net"

	"github.com/m-lab/rtnl-proxy/wire"
)

// Align is the attribute alignment boundary the kernel expects.
const Align = 4

// headerLen is the size of the (length, kind) TLV header.
const headerLen = 4

// AlignOf rounds n up to the next multiple of Align.
func AlignOf(n int) int {
	return (n + Align - 1) &^ (Align - 1)
}

// Kind selects a codec for one attribute type: a fixed scalar width, a
// string, an address, a nested schema, or a dispatch function that picks
// the nested schema from already-decoded sibling attributes.
type Kind int

const (
	KindOpaque Kind = iota // unknown type, or explicit "hex" — passed through as raw bytes
	KindU8
	KindU16
	KindU32
	KindU64
	KindU32BE
	KindASCIIZ
	KindL2Addr
	KindIPv6
	KindNested      // a fixed nested Schema
	KindDispatch    // nested schema picked at runtime from siblings, via Field.Dispatch
	KindRawDispatch // flat (non-TLV) codec picked at runtime from siblings, via Field.RawDispatch
)

// Field describes one schema entry: a name (for diagnostics and sysfs path
// templates) and a codec selector. Nested/Dispatch carry the information
// needed to recurse.
type Field struct {
	Name     string
	Kind     Kind
	Nested   *Schema                            // valid when Kind == KindNested
	Dispatch func(s *Set, value []byte) *Schema // valid when Kind == KindDispatch; may return nil for opaque fallback. value is the raw attribute bytes being decoded/encoded, for the rare dispatch (sfq) that also keys on length.

	// RawDispatch picks a flat-struct (non-nested) codec pair at runtime
	// from siblings — used for attributes whose value is a packed struct
	// of several fixed-width fields rather than a TLV list, but whose
	// exact layout still depends on a sibling KIND (traffic-control
	// XSTATS, and OPTIONS kinds like ingress/pfifo_fast/sfq that are
	// structs rather than attribute containers). Either returned function
	// may be nil, in which case that direction falls back to opaque bytes.
	RawDispatch func(s *Set, value []byte) (decode func([]byte) (interface{}, error), encode func(interface{}) ([]byte, error))

	// Encode/Decode override the Kind-based codec when set, used for the
	// handful of fields with bespoke encode hooks (flags-as-names,
	// operstate-as-name, netns-fd-as-path).
	Encode func(v interface{}) ([]byte, error)
	Decode func(b []byte) (interface{}, error)
}

// Schema maps attribute kind index to Field. Fields is a plain Go map, so
// iterating it visits the entries in no defined order.
type Schema struct {
	Name   string
	Fields map[uint16]Field
}

// Lookup returns the Field for t, and whether it is known to the schema.
func (s *Schema) Lookup(t uint16) (Field, bool) {
	if s == nil {
		return Field{}, false
	}
	f, ok := s.Fields[t]
	return f, ok
}

// Attr is one decoded attribute: its kind index, the schema-given name (or
// "" if unknown), the decoded value (types vary by Kind — uint8/16/32/64,
// string, net.HardwareAddr, net.IP, *Set, or []byte for opaque), and the
// raw, still-padded-free value bytes as they appeared on the wire.
type Attr struct {
	Type  uint16
	Name  string
	Kind  Kind
	Value interface{}
	Raw   []byte
}

// Set is an ordered list of decoded attributes. Order is insertion order
// from the wire (or from the caller, for attributes appended before
// re-encoding), and is preserved on re-encode per the codec's round-trip
// invariant.
type Set struct {
	Attrs []Attr
}

// Get returns the first attribute with the given schema name, or nil.
func (s *Set) Get(name string) *Attr {
	if s == nil {
		return nil
	}
	for i := range s.Attrs {
		if s.Attrs[i].Name == name {
			return &s.Attrs[i]
		}
	}
	return nil
}

// GetString is a convenience accessor for asciiz-typed attributes.
func (s *Set) GetString(name string) (string, bool) {
	a := s.Get(name)
	if a == nil {
		return "", false
	}
	v, ok := a.Value.(string)
	return v, ok
}

// GetUint32 is a convenience accessor for u32-typed attributes.
func (s *Set) GetUint32(name string) (uint32, bool) {
	a := s.Get(name)
	if a == nil {
		return 0, false
	}
	v, ok := a.Value.(uint32)
	return v, ok
}

// GetChild returns the nested Set of a KindNested/KindDispatch attribute,
// or nil if the attribute is absent or didn't decode as a set.
func (s *Set) GetChild(name string) *Set {
	a := s.Get(name)
	if a == nil {
		return nil
	}
	child, _ := a.Value.(*Set)
	return child
}

// Append adds an attribute to the end of the set, preserving the
// insertion-order invariant the proxy relies on when it appends attributes
// to a decoded message before re-encoding.
func (s *Set) Append(a Attr) {
	s.Attrs = append(s.Attrs, a)
}

// DecodeError reports a malformed attribute header or an inconsistent
// declared length.
type DecodeError struct {
	Offset int
	Reason string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("attr: decode error at offset %d: %s", e.Offset, e.Reason)
}

// Decode walks buf from the start, reading (length, kind, value) triples
// until the buffer is exhausted, guided by schema. Unknown kinds are kept
// as opaque hex. Dispatch fields see the already-decoded siblings of the
// set being built (the schema guarantees the sibling that picks the
// dispatch, e.g. KIND, is read before the dispatched field; if the input
// violates that ordering the dispatched field silently falls back to
// opaque).
func Decode(buf []byte, schema *Schema) (*Set, error) {
	set := &Set{}
	offset := 0
	for offset < len(buf) {
		if offset+headerLen > len(buf) {
			return nil, &DecodeError{Offset: offset, Reason: "truncated attribute header"}
		}
		length, err := wire.Uint16(buf[offset:])
		if err != nil {
			return nil, &DecodeError{Offset: offset, Reason: "bad length"}
		}
		kind, err := wire.Uint16(buf[offset+2:])
		if err != nil {
			return nil, &DecodeError{Offset: offset, Reason: "bad kind"}
		}
		if int(length) < headerLen {
			return nil, &DecodeError{Offset: offset, Reason: "length shorter than header"}
		}
		if offset+int(length) > len(buf) {
			return nil, &DecodeError{Offset: offset, Reason: "attribute runs past buffer"}
		}
		value := buf[offset+headerLen : offset+int(length)]

		set.Append(decodeOne(kind, value, schema, set))

		offset += AlignOf(int(length))
	}
	return set, nil
}

func decodeOne(t uint16, value []byte, schema *Schema, siblings *Set) Attr {
	field, known := schema.Lookup(t)
	raw := append([]byte(nil), value...)
	if !known {
		return Attr{Type: t, Kind: KindOpaque, Value: raw, Raw: raw}
	}

	a := Attr{Type: t, Name: field.Name, Kind: field.Kind, Raw: raw}

	if field.Decode != nil {
		v, err := field.Decode(value)
		if err != nil {
			a.Kind, a.Value = KindOpaque, raw
			return a
		}
		a.Value = v
		return a
	}

	switch field.Kind {
	case KindU8:
		if v, err := wire.Uint8(value); err == nil {
			a.Value = v
		} else {
			a.Kind, a.Value = KindOpaque, raw
		}
	case KindU16:
		if v, err := wire.Uint16(value); err == nil {
			a.Value = v
		} else {
			a.Kind, a.Value = KindOpaque, raw
		}
	case KindU32:
		if v, err := wire.Uint32(value); err == nil {
			a.Value = v
		} else {
			a.Kind, a.Value = KindOpaque, raw
		}
	case KindU32BE:
		if v, err := wire.Uint32BE(value); err == nil {
			a.Value = v
		} else {
			a.Kind, a.Value = KindOpaque, raw
		}
	case KindU64:
		if v, err := wire.Uint64(value); err == nil {
			a.Value = v
		} else {
			a.Kind, a.Value = KindOpaque, raw
		}
	case KindASCIIZ:
		a.Value = wire.ASCIIZ(value)
	case KindL2Addr:
		if v, err := wire.L2AddrValue(value); err == nil {
			a.Value = v
		} else {
			a.Kind, a.Value = KindOpaque, raw
		}
	case KindIPv6:
		if v, err := wire.IPv6Value(value); err == nil {
			a.Value = v
		} else {
			a.Kind, a.Value = KindOpaque, raw
		}
	case KindNested:
		if child, err := Decode(value, field.Nested); err == nil {
			a.Value = child
		} else {
			a.Kind, a.Value = KindOpaque, raw
		}
	case KindDispatch:
		childSchema := field.Dispatch(siblings, value)
		if childSchema == nil {
			a.Kind, a.Value = KindOpaque, raw
			break
		}
		if child, err := Decode(value, childSchema); err == nil {
			a.Value = child
		} else {
			a.Kind, a.Value = KindOpaque, raw
		}
	case KindRawDispatch:
		decodeFn, _ := field.RawDispatch(siblings, value)
		if decodeFn == nil {
			a.Kind, a.Value = KindOpaque, raw
			break
		}
		if v, err := decodeFn(value); err == nil {
			a.Value = v
		} else {
			a.Kind, a.Value = KindOpaque, raw
		}
	default:
		a.Value = raw
	}
	return a
}

// Encode serializes set back to wire form, guided by schema for re-dispatch
// of data-dependent children, preserving set's attribute order and padding
// every attribute (including the last) to a 4-byte boundary.
func Encode(set *Set, schema *Schema) ([]byte, error) {
	var out []byte
	for _, a := range set.Attrs {
		valueBytes, err := encodeValue(a, schema, set)
		if err != nil {
			return nil, fmt.Errorf("attr: encoding %q (type %d): %w", a.Name, a.Type, err)
		}
		length := headerLen + len(valueBytes)
		out = append(out, wire.PutUint16(uint16(length))...)
		out = append(out, wire.PutUint16(a.Type)...)
		out = append(out, valueBytes...)
		if pad := AlignOf(length) - length; pad > 0 {
			out = append(out, make([]byte, pad)...)
		}
	}
	return out, nil
}

func encodeValue(a Attr, schema *Schema, siblings *Set) ([]byte, error) {
	field, known := schema.Lookup(a.Type)
	if !known {
		return rawBytesOf(a), nil
	}

	if field.Encode != nil {
		return field.Encode(a.Value)
	}

	switch field.Kind {
	case KindU8:
		v, ok := a.Value.(uint8)
		if !ok {
			return nil, fmt.Errorf("expected uint8, got %T", a.Value)
		}
		return wire.PutUint8(v), nil
	case KindU16:
		v, ok := a.Value.(uint16)
		if !ok {
			return nil, fmt.Errorf("expected uint16, got %T", a.Value)
		}
		return wire.PutUint16(v), nil
	case KindU32:
		v, ok := a.Value.(uint32)
		if !ok {
			return nil, fmt.Errorf("expected uint32, got %T", a.Value)
		}
		return wire.PutUint32(v), nil
	case KindU32BE:
		v, ok := a.Value.(uint32)
		if !ok {
			return nil, fmt.Errorf("expected uint32, got %T", a.Value)
		}
		return wire.PutUint32BE(v), nil
	case KindU64:
		v, ok := a.Value.(uint64)
		if !ok {
			return nil, fmt.Errorf("expected uint64, got %T", a.Value)
		}
		return wire.PutUint64(v), nil
	case KindASCIIZ:
		v, ok := a.Value.(string)
		if !ok {
			return nil, fmt.Errorf("expected string, got %T", a.Value)
		}
		return wire.PutASCIIZ(v), nil
	case KindL2Addr:
		v, ok := a.Value.(net.HardwareAddr)
		if !ok {
			return nil, fmt.Errorf("expected net.HardwareAddr, got %T", a.Value)
		}
		return wire.PutL2Addr(v), nil
	case KindIPv6:
		v, ok := a.Value.(net.IP)
		if !ok {
			return nil, fmt.Errorf("expected net.IP, got %T", a.Value)
		}
		return wire.PutIPv6(v), nil
	case KindNested:
		child, ok := a.Value.(*Set)
		if !ok {
			return nil, fmt.Errorf("expected *Set, got %T", a.Value)
		}
		return Encode(child, field.Nested)
	case KindDispatch:
		child, ok := a.Value.(*Set)
		if !ok {
			return rawBytesOf(a), nil
		}
		childSchema := field.Dispatch(siblings, a.Raw)
		if childSchema == nil {
			return rawBytesOf(a), nil
		}
		return Encode(child, childSchema)
	case KindRawDispatch:
		_, encodeFn := field.RawDispatch(siblings, a.Raw)
		if encodeFn == nil {
			return rawBytesOf(a), nil
		}
		return encodeFn(a.Value)
	default:
		return rawBytesOf(a), nil
	}
}

func rawBytesOf(a Attr) []byte {
	if b, ok := a.Value.([]byte); ok {
		return b
	}
	return a.Raw
}
