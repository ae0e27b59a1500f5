// Package tc declares the traffic-control message schema: the fixed-width
// tcmsg payload and the TCA_* attribute table, including the OPTIONS and
// XSTATS dispatch into per-qdisc sub-schemas built on package attr.
package tc

import (
	"github.com/m-lab/rtnl-proxy/attr"
	"github.com/m-lab/rtnl-proxy/wire"
)

// Payload is the fixed-width family-specific payload of a tc message:
// struct tcmsg { family B; pad1 B; pad2 H; index i; handle I; parent I; info I }.
type Payload struct {
	Family  uint8
	Pad2    uint16
	Index   int32
	Handle  uint32
	Parent  uint32
	Info    uint32
}

// PayloadLen is the encoded size of Payload in bytes.
const PayloadLen = 20

// EncodePayload serializes p in native byte order.
func EncodePayload(p Payload) []byte {
	b := make([]byte, 0, PayloadLen)
	b = append(b, wire.PutUint8(p.Family)...)
	b = append(b, wire.PutUint8(0)...) // pad1
	b = append(b, wire.PutUint16(p.Pad2)...)
	b = append(b, wire.PutInt32(p.Index)...)
	b = append(b, wire.PutUint32(p.Handle)...)
	b = append(b, wire.PutUint32(p.Parent)...)
	b = append(b, wire.PutUint32(p.Info)...)
	return b
}

// DecodePayload parses the fixed-width portion of a tc message.
func DecodePayload(buf []byte) (Payload, error) {
	var p Payload
	if len(buf) < PayloadLen {
		return p, &wire.DecodeError{Offset: 0, Expected: PayloadLen, Got: len(buf)}
	}
	family, _ := wire.Uint8(buf[0:])
	pad2, _ := wire.Uint16(buf[2:])
	index, _ := wire.Int32(buf[4:])
	handle, _ := wire.Uint32(buf[8:])
	parent, _ := wire.Uint32(buf[12:])
	info, _ := wire.Uint32(buf[16:])
	p.Family, p.Pad2, p.Index, p.Handle, p.Parent, p.Info = family, pad2, index, handle, parent, info
	return p, nil
}

// TCA_* top-level attribute indices, in nla_map declaration order.
const (
	TCA_UNSPEC uint16 = iota
	TCA_KIND
	TCA_OPTIONS
	TCA_STATS
	TCA_XSTATS
	TCA_RATE
	TCA_FCNT
	TCA_STATS2
	TCA_STAB
)

var statsFields = []StructField{
	{Name: "bytes", Size: 8},
	{Name: "packets", Size: 4},
	{Name: "drop", Size: 4},
	{Name: "overlimits", Size: 4},
	{Name: "bps", Size: 4},
	{Name: "pps", Size: 4},
	{Name: "qlen", Size: 4},
	{Name: "backlog", Size: 4},
}

var statsSpec = structField("STATS", statsFields)

var statsField = attr.Field{
	Name:   "STATS",
	Kind:   attr.KindOpaque,
	Decode: statsSpec.decode,
	Encode: statsSpec.encode,
}

// optionsRawDispatch selects the OPTIONS sub-schema by KIND: OPTIONS is
// either a nested TLV container (tbf, htb, u32, fw) or a flat packed struct
// (ingress, pfifo_fast, sfq — the latter with two layout versions
// distinguished by the attribute's raw value length).
var optionsField = attr.Field{
	Name:        "OPTIONS",
	Kind:        attr.KindRawDispatch,
	RawDispatch: optionsRawDispatch,
}

// xstatsField implements get_xstats: only the htb qdisc has a typed XSTATS
// payload; everything else is opaque hex.
var xstatsField = attr.Field{
	Name: "XSTATS",
	Kind: attr.KindRawDispatch,
	RawDispatch: func(s *attr.Set, value []byte) (func([]byte) (interface{}, error), func(interface{}) ([]byte, error)) {
		if kind, ok := s.GetString("KIND"); ok && kind == "htb" {
			return xstatsHTBSpec.decode, xstatsHTBSpec.encode
		}
		return nil, nil
	},
}

var xstatsHTBFields = []StructField{
	{Name: "lends", Size: 4},
	{Name: "borrows", Size: 4},
	{Name: "giants", Size: 4},
	{Name: "tokens", Size: 4},
	{Name: "ctokens", Size: 4},
}

var xstatsHTBSpec = structField("XSTATS_HTB", xstatsHTBFields)

var stats2BasicFields = []StructField{{Name: "bytes", Size: 8}, {Name: "packets", Size: 8}}
var stats2RateEstFields = []StructField{{Name: "bps", Size: 4}, {Name: "pps", Size: 4}}
var stats2QueueFields = []StructField{
	{Name: "qlen", Size: 4}, {Name: "backlog", Size: 4}, {Name: "drops", Size: 4},
	{Name: "requeues", Size: 4}, {Name: "overlimits", Size: 4},
}

const (
	TCA_STATS_UNSPEC uint16 = iota
	TCA_STATS_BASIC
	TCA_STATS_RATE_EST
	TCA_STATS_QUEUE
	TCA_STATS_APP
)

var stats2Schema = &attr.Schema{
	Name: "stats2",
	Fields: map[uint16]attr.Field{
		TCA_STATS_BASIC:    fieldFromStruct("BASIC", stats2BasicFields),
		TCA_STATS_RATE_EST: fieldFromStruct("RATE_EST", stats2RateEstFields),
		TCA_STATS_QUEUE:    fieldFromStruct("QUEUE", stats2QueueFields),
		TCA_STATS_APP:      {Name: "APP", Kind: attr.KindOpaque},
	},
}

func fieldFromStruct(name string, fields []StructField) attr.Field {
	spec := structField(name, fields)
	return attr.Field{Name: name, Kind: attr.KindOpaque, Decode: spec.decode, Encode: spec.encode}
}

// Schema is the top-level TCA_* attribute table.
var Schema = &attr.Schema{
	Name: "tc",
	Fields: map[uint16]attr.Field{
		TCA_KIND:    {Name: "KIND", Kind: attr.KindASCIIZ},
		TCA_OPTIONS: optionsField,
		TCA_STATS:   statsField,
		TCA_XSTATS:  xstatsField,
		TCA_RATE:    {Name: "RATE", Kind: attr.KindOpaque},
		TCA_FCNT:    {Name: "FCNT", Kind: attr.KindOpaque},
		TCA_STATS2:  {Name: "STATS2", Kind: attr.KindNested, Nested: stats2Schema},
		TCA_STAB:    {Name: "STAB", Kind: attr.KindOpaque},
	},
}
