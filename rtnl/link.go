// Package rtnl declares the link (interface) message schema: the
// fixed-width ifinfomsg payload, the IFLA_* attribute table, and the
// data-dependent LINKINFO/AF_SPEC nested schemas, built on package attr.
package rtnl

import (
	"fmt"
	"os"

	"github.com/m-lab/rtnl-proxy/attr"
	"github.com/m-lab/rtnl-proxy/iflags"
	"github.com/m-lab/rtnl-proxy/tc"
	"github.com/m-lab/rtnl-proxy/wire"
)

// LinkPayload is the fixed-width family-specific payload of a link message:
// struct ifinfomsg { family B; _pad B; ifi_type H; index i; flags I; change I }.
type LinkPayload struct {
	Family  uint8
	IfiType uint16
	Index   int32
	Flags   uint32
	Change  uint32
}

// PayloadLen is the encoded size of LinkPayload in bytes.
const PayloadLen = 16

// EncodePayload serializes p in native byte order.
func EncodePayload(p LinkPayload) []byte {
	b := make([]byte, 0, PayloadLen)
	b = append(b, wire.PutUint8(p.Family)...)
	b = append(b, wire.PutUint8(0)...) // __align
	b = append(b, wire.PutUint16(p.IfiType)...)
	b = append(b, wire.PutInt32(p.Index)...)
	b = append(b, wire.PutUint32(p.Flags)...)
	b = append(b, wire.PutUint32(p.Change)...)
	return b
}

// DecodePayload parses the fixed-width portion of a link message.
func DecodePayload(buf []byte) (LinkPayload, error) {
	var p LinkPayload
	if len(buf) < PayloadLen {
		return p, &wire.DecodeError{Offset: 0, Expected: PayloadLen, Got: len(buf)}
	}
	family, _ := wire.Uint8(buf[0:])
	ifiType, _ := wire.Uint16(buf[2:])
	index, _ := wire.Int32(buf[4:])
	flags, _ := wire.Uint32(buf[8:])
	change, _ := wire.Uint32(buf[12:])
	p.Family, p.IfiType, p.Index, p.Flags, p.Change = family, ifiType, index, flags, change
	return p, nil
}

// IFLA_* attribute type indices, in nla_map declaration order.
const (
	IFLA_UNSPEC uint16 = iota
	IFLA_ADDRESS
	IFLA_BROADCAST
	IFLA_IFNAME
	IFLA_MTU
	IFLA_LINK
	IFLA_QDISC
	IFLA_STATS
	IFLA_COST
	IFLA_PRIORITY
	IFLA_MASTER
	IFLA_WIRELESS
	IFLA_PROTINFO
	IFLA_TXQLEN
	IFLA_MAP
	IFLA_WEIGHT
	IFLA_OPERSTATE
	IFLA_LINKMODE
	IFLA_LINKINFO
	IFLA_NET_NS_PID
	IFLA_IFALIAS
	IFLA_NUM_VF
	IFLA_VFINFO_LIST
	IFLA_STATS64
	IFLA_VF_PORTS
	IFLA_PORT_SELF
	IFLA_AF_SPEC
	IFLA_GROUP
	IFLA_NET_NS_FD
	IFLA_EXT_MASK
	IFLA_PROMISCUITY
	IFLA_NUM_TX_QUEUES
	IFLA_NUM_RX_QUEUES
	IFLA_CARRIER
	IFLA_PHYS_PORT_ID
	IFLA_CARRIER_CHANGES
)

// statsNames is the fixed 23-counter struct rtnl_link_stats ordering shared
// by IFLA_STATS (u32 counters) and IFLA_STATS64 (u64 counters). On the wire
// both are a flat packed struct, not a nested attribute list,
// so they're decoded/encoded through tc.StructField like a TCA_*_PARMS block
// rather than modeled as attr.KindNested.
var statsNames = []string{
	"rx_packets", "tx_packets", "rx_bytes", "tx_bytes",
	"rx_errors", "tx_errors", "rx_dropped", "tx_dropped",
	"multicast", "collisions",
	"rx_length_errors", "rx_over_errors", "rx_crc_errors", "rx_frame_errors",
	"rx_fifo_errors", "rx_missed_errors",
	"tx_aborted_errors", "tx_carrier_errors", "tx_fifo_errors",
	"tx_heartbeat_errors", "tx_window_errors",
	"rx_compressed", "tx_compressed",
}

func statsFields(size int) []tc.StructField {
	fields := make([]tc.StructField, len(statsNames))
	for i, n := range statsNames {
		fields[i] = tc.StructField{Name: n, Size: size}
	}
	return fields
}

var ifstatsFields = statsFields(4)
var ifstats64Fields = statsFields(8)

func ifstatsDecode(b []byte) (interface{}, error) {
	return tc.DecodeStruct(b, ifstatsFields)
}

func ifstatsEncode(v interface{}) ([]byte, error) {
	values, ok := v.(map[string]int64)
	if !ok {
		return nil, fmt.Errorf("rtnl: ifstats: expected map[string]int64, got %T", v)
	}
	return tc.EncodeStruct(values, ifstatsFields), nil
}

func ifstats64Decode(b []byte) (interface{}, error) {
	return tc.DecodeStruct(b, ifstats64Fields)
}

func ifstats64Encode(v interface{}) ([]byte, error) {
	values, ok := v.(map[string]int64)
	if !ok {
		return nil, fmt.Errorf("rtnl: ifstats64: expected map[string]int64, got %T", v)
	}
	return tc.EncodeStruct(values, ifstats64Fields), nil
}

// ifmapFields models struct ifmap: mem_start/mem_end/base_addr (u64), irq
// (u16), dma/port (u8) — another flat struct, handled the same way as the
// stats counters above rather than left as opaque documentation.
var ifmapFields = []tc.StructField{
	{Name: "mem_start", Size: 8},
	{Name: "mem_end", Size: 8},
	{Name: "base_addr", Size: 8},
	{Name: "irq", Size: 2},
	{Name: "dma", Size: 1},
	{Name: "port", Size: 1},
}

func ifmapDecode(b []byte) (interface{}, error) {
	return tc.DecodeStruct(b, ifmapFields)
}

func ifmapEncode(v interface{}) ([]byte, error) {
	values, ok := v.(map[string]int64)
	if !ok {
		return nil, fmt.Errorf("rtnl: ifmap: expected map[string]int64, got %T", v)
	}
	return tc.EncodeStruct(values, ifmapFields), nil
}

// DefaultNetnsRunDir is the conventional directory holding named network
// namespace files, matching the "ip netns" / proxy.Proxy.NetnsRunDir
// default. Overridable by tests so they never touch the real directory.
var DefaultNetnsRunDir = "/var/run/netns"

// netnsFDEncode implements the IFLA_NET_NS_FD encode hook: a string value
// is resolved against DefaultNetnsRunDir, opened read-only for the
// duration of this call, and the resulting descriptor number is written
// onto the wire as a u32; the descriptor itself is closed before encode
// returns. An already-numeric value (an fd the caller opened itself, e.g.
// proxy.resolveNetnsFD via backend.OpenNetNS, or after that rewrite has
// already replaced the attr's Value with a uint32) is encoded as-is. There
// is no matching Decode hook: Kind U32 already handles decode correctly,
// since this proxy never needs to resolve a received fd back to a name.
func netnsFDEncode(v interface{}) ([]byte, error) {
	switch val := v.(type) {
	case uint32:
		return wire.PutUint32(val), nil
	case int:
		return wire.PutUint32(uint32(val)), nil
	case string:
		f, err := os.OpenFile(DefaultNetnsRunDir+"/"+val, os.O_RDONLY, 0)
		if err != nil {
			return nil, fmt.Errorf("rtnl: opening netns %q: %w", val, err)
		}
		defer f.Close()
		return wire.PutUint32(uint32(f.Fd())), nil
	default:
		return nil, fmt.Errorf("rtnl: IFLA_NET_NS_FD: unsupported value type %T", v)
	}
}

// operStateField implements the IFLA_OPERSTATE encode/decode hook: on the
// wire it is a single byte; in a Set it is carried as the iflags.OperState
// name for readability.
var operStateField = attr.Field{
	Name: "OPERSTATE",
	Kind: attr.KindU8,
	Encode: func(v interface{}) ([]byte, error) {
		switch val := v.(type) {
		case iflags.OperState:
			return wire.PutUint8(uint8(val)), nil
		case string:
			s, ok := iflags.ParseOperState(val)
			if !ok {
				return nil, fmt.Errorf("rtnl: unknown operstate name %q", val)
			}
			return wire.PutUint8(uint8(s)), nil
		case uint8:
			return wire.PutUint8(val), nil
		default:
			return nil, fmt.Errorf("rtnl: OPERSTATE: unsupported value type %T", v)
		}
	},
	Decode: func(b []byte) (interface{}, error) {
		v, err := wire.Uint8(b)
		if err != nil {
			return nil, err
		}
		return iflags.OperState(v), nil
	},
}

// FlagsFromValue is the conversion behind the link message's own
// flags/change encode hook. Since flags/change live in the fixed payload
// rather than as attributes, the hook is not a schema entry but
// Message.SetFlags (see message.go), which calls this helper.
func FlagsFromValue(v interface{}) (value, change uint32, err error) {
	switch val := v.(type) {
	case uint32:
		return val, 0xffffffff, nil
	case []string:
		value, change = iflags.Names2Flags(val)
		return value, change, nil
	default:
		return 0, 0, fmt.Errorf("rtnl: flags: unsupported value type %T", v)
	}
}

// LinkSchema is the top-level IFLA_* attribute table.
var LinkSchema = &attr.Schema{
	Name: "link",
	Fields: map[uint16]attr.Field{
		IFLA_ADDRESS:         {Name: "ADDRESS", Kind: attr.KindL2Addr},
		IFLA_BROADCAST:       {Name: "BROADCAST", Kind: attr.KindL2Addr},
		IFLA_IFNAME:          {Name: "IFNAME", Kind: attr.KindASCIIZ},
		IFLA_MTU:             {Name: "MTU", Kind: attr.KindU32},
		IFLA_LINK:            {Name: "LINK", Kind: attr.KindU32},
		IFLA_QDISC:           {Name: "QDISC", Kind: attr.KindASCIIZ},
		IFLA_STATS:           {Name: "STATS", Decode: ifstatsDecode, Encode: ifstatsEncode},
		IFLA_COST:            {Name: "COST", Kind: attr.KindOpaque},
		IFLA_PRIORITY:        {Name: "PRIORITY", Kind: attr.KindOpaque},
		IFLA_MASTER:          {Name: "MASTER", Kind: attr.KindU32},
		IFLA_WIRELESS:        {Name: "WIRELESS", Kind: attr.KindOpaque},
		IFLA_PROTINFO:        {Name: "PROTINFO", Kind: attr.KindOpaque},
		IFLA_TXQLEN:          {Name: "TXQLEN", Kind: attr.KindU32},
		IFLA_MAP:             {Name: "MAP", Decode: ifmapDecode, Encode: ifmapEncode},
		IFLA_WEIGHT:          {Name: "WEIGHT", Kind: attr.KindOpaque},
		IFLA_OPERSTATE:       operStateField,
		IFLA_LINKMODE:        {Name: "LINKMODE", Kind: attr.KindU8},
		IFLA_LINKINFO:        {Name: "LINKINFO", Kind: attr.KindNested, Nested: LinkInfoSchema},
		IFLA_NET_NS_PID:      {Name: "NET_NS_PID", Kind: attr.KindU32},
		IFLA_IFALIAS:         {Name: "IFALIAS", Kind: attr.KindOpaque},
		IFLA_NUM_VF:          {Name: "NUM_VF", Kind: attr.KindU32},
		IFLA_VFINFO_LIST:     {Name: "VFINFO_LIST", Kind: attr.KindOpaque},
		IFLA_STATS64:         {Name: "STATS64", Decode: ifstats64Decode, Encode: ifstats64Encode},
		IFLA_VF_PORTS:        {Name: "VF_PORTS", Kind: attr.KindOpaque},
		IFLA_PORT_SELF:       {Name: "PORT_SELF", Kind: attr.KindOpaque},
		IFLA_AF_SPEC:         {Name: "AF_SPEC", Kind: attr.KindNested, Nested: afSpecSchema},
		IFLA_GROUP:           {Name: "GROUP", Kind: attr.KindU32},
		IFLA_NET_NS_FD:       {Name: "NET_NS_FD", Kind: attr.KindU32, Encode: netnsFDEncode},
		IFLA_EXT_MASK:        {Name: "EXT_MASK", Kind: attr.KindOpaque},
		IFLA_PROMISCUITY:     {Name: "PROMISCUITY", Kind: attr.KindU32},
		IFLA_NUM_TX_QUEUES:   {Name: "NUM_TX_QUEUES", Kind: attr.KindU32},
		IFLA_NUM_RX_QUEUES:   {Name: "NUM_RX_QUEUES", Kind: attr.KindU32},
		IFLA_CARRIER:         {Name: "CARRIER", Kind: attr.KindU8},
		IFLA_PHYS_PORT_ID:    {Name: "PHYS_PORT_ID", Kind: attr.KindOpaque},
		IFLA_CARRIER_CHANGES: {Name: "CARRIER_CHANGES", Kind: attr.KindU32},
	},
}
