// Options schemas for the per-qdisc/per-classifier TCA_OPTIONS and
// TCA_XSTATS dispatch: htb, tbf, sfq (two layout versions),
// u32, fw, ingress, pfifo_fast, plus rate-table synthesis and the police
// action block shared by u32 and fw.
package tc

import (
	"fmt"

	"github.com/m-lab/rtnl-proxy/attr"
	"github.com/m-lab/rtnl-proxy/rate"
)

// TCA_HTB_* attribute indices within an htb OPTIONS container.
const (
	TCA_HTB_UNSPEC uint16 = iota
	TCA_HTB_PARMS
	TCA_HTB_INIT
	TCA_HTB_CTAB
	TCA_HTB_RTAB
)

// TCA_TBF_* attribute indices within a tbf OPTIONS container.
const (
	TCA_TBF_UNSPEC uint16 = iota
	TCA_TBF_PARMS
	TCA_TBF_RTAB
	TCA_TBF_PTAB
)

// TCA_U32_* attribute indices within a u32 OPTIONS container.
const (
	TCA_U32_UNSPEC uint16 = iota
	TCA_U32_CLASSID
	TCA_U32_HASH
	TCA_U32_LINK
	TCA_U32_DIVISOR
	TCA_U32_SEL
	TCA_U32_POLICE
	TCA_U32_ACT
	TCA_U32_INDEV
	TCA_U32_PCNT
	TCA_U32_MARK
)

// TCA_FW_* attribute indices within an fw OPTIONS container.
const (
	TCA_FW_UNSPEC uint16 = iota
	TCA_FW_CLASSID
	TCA_FW_POLICE
	TCA_FW_INDEV
	TCA_FW_ACT
	TCA_FW_MASK
)

// TCA_POLICE_* attribute indices within the shared "police" container u32
// and fw both embed (nla_plus_police.police in the original).
const (
	TCA_POLICE_UNSPEC uint16 = iota
	TCA_POLICE_TBF
	TCA_POLICE_RATE
	TCA_POLICE_PEAKRATE
	TCA_POLICE_AVRATE
	TCA_POLICE_RESULT
)

func sizeOfFields(fields []StructField) int {
	n := 0
	for _, f := range fields {
		n += f.Size
	}
	return n
}

// ratabParams extracts the rate.Params the derived-table builder needs for
// one parameter prefix ("rate", "ceil", or "peak") out of a decoded PARMS
// struct map. mtu lives under the bare "mtu" key when the parameter block
// has one (tbf_parms); htb_parms has none, so MTU is always 0 there and
// rate.Build substitutes DefaultMTU, matching calc_rtab's "mtu or 1600".
func ratabParams(values map[string]int64, prefix string) rate.Params {
	return rate.Params{
		Rate:    uint32(values[prefix]),
		MTU:     int(values["mtu"]),
		MPU:     int(values[prefix+"_mpu"]),
		CellLog: int(values[prefix+"_cell_log"]),
	}
}

// parmsEncodeHook builds the Field.Encode for a PARMS struct that carries
// one or more rtab-derived prefixes. Computing the table sets
// cell_align=-1 and writes back the resolved cell_log into the same
// parameter block before the struct's wire bytes are produced. A
// zero-valued rate/peak/ceil field skips table construction for that
// prefix entirely.
func parmsEncodeHook(name string, fields []StructField, prefixes []string) func(interface{}) ([]byte, error) {
	return func(v interface{}) ([]byte, error) {
		values, ok := v.(map[string]int64)
		if !ok {
			return nil, fmt.Errorf("tc: %s: expected map[string]int64, got %T", name, v)
		}
		for _, prefix := range prefixes {
			if values[prefix] == 0 {
				continue
			}
			psched, err := rate.ReadPsched()
			if err != nil {
				return nil, fmt.Errorf("tc: %s: reading psched: %w", name, err)
			}
			t := rate.Build(psched, ratabParams(values, prefix))
			values[prefix+"_cell_log"] = int64(t.CellLog)
			values[prefix+"_cell_align"] = int64(t.CellAlign)
		}
		return EncodeStruct(values, fields), nil
	}
}

// rtabDispatch builds the RawDispatch for an rtab/ctab/ptab sibling of
// parmsName keyed on prefix ("rate"->rtab, "ceil"->ctab, "peak"->ptab). The
// table is always recomputed fresh from the sibling PARMS rather than
// cached off the encode above, since both are pure functions of the same
// parameter block and psched constants (rate-table construction is deterministic given those inputs) —
// this sidesteps needing PARMS to be encoded before its rtab sibling.
func rtabDispatch(prefix, parmsName string) func(s *attr.Set, value []byte) (func([]byte) (interface{}, error), func(interface{}) ([]byte, error)) {
	return func(s *attr.Set, value []byte) (func([]byte) (interface{}, error), func(interface{}) ([]byte, error)) {
		decode := func(b []byte) (interface{}, error) {
			return rate.Unpack(b)
		}
		encode := func(v interface{}) ([]byte, error) {
			parms := s.Get(parmsName)
			if parms == nil {
				return nil, fmt.Errorf("tc: %s: missing sibling %s", prefix, parmsName)
			}
			values, ok := parms.Value.(map[string]int64)
			if !ok {
				return nil, fmt.Errorf("tc: %s: sibling %s did not decode to a parameter block", prefix, parmsName)
			}
			psched, err := rate.ReadPsched()
			if err != nil {
				return nil, fmt.Errorf("tc: %s: reading psched: %w", prefix, err)
			}
			t := rate.Build(psched, ratabParams(values, prefix))
			return rate.Pack(t), nil
		}
		return decode, encode
	}
}

// htbParmsFields is struct tc_htb_opt (rate and ceil each carry their own
// cell_log/overhead/cell_align/mpu quad, per the kernel uapi layout).
var htbParmsFields = []StructField{
	{Name: "rate_cell_log", Size: 1},
	{Name: "rate___reserved", Size: 1},
	{Name: "rate_overhead", Size: 2},
	{Name: "rate_cell_align", Size: 2, Signed: true},
	{Name: "rate_mpu", Size: 2},
	{Name: "rate", Size: 4},
	{Name: "ceil_cell_log", Size: 1},
	{Name: "ceil___reserved", Size: 1},
	{Name: "ceil_overhead", Size: 2},
	{Name: "ceil_cell_align", Size: 2, Signed: true},
	{Name: "ceil_mpu", Size: 2},
	{Name: "ceil", Size: 4},
	{Name: "buffer", Size: 4},
	{Name: "cbuffer", Size: 4},
	{Name: "quantum", Size: 4},
	{Name: "level", Size: 4},
	{Name: "prio", Size: 4},
}

var htbGlobFields = []StructField{
	{Name: "version", Size: 4},
	{Name: "rate2quantum", Size: 4},
	{Name: "defcls", Size: 4},
	{Name: "debug", Size: 4},
	{Name: "direct_pkts", Size: 4},
}

var htbOptionsSchema = &attr.Schema{
	Name: "htb",
	Fields: map[uint16]attr.Field{
		TCA_HTB_PARMS: {
			Name:   "PARMS",
			Kind:   attr.KindOpaque,
			Decode: structField("HTB_PARMS", htbParmsFields).decode,
			Encode: parmsEncodeHook("HTB_PARMS", htbParmsFields, []string{"rate", "ceil"}),
		},
		TCA_HTB_INIT:  fieldFromStruct("INIT", htbGlobFields),
		TCA_HTB_CTAB:  {Name: "CTAB", Kind: attr.KindRawDispatch, RawDispatch: rtabDispatch("ceil", "PARMS")},
		TCA_HTB_RTAB:  {Name: "RTAB", Kind: attr.KindRawDispatch, RawDispatch: rtabDispatch("rate", "PARMS")},
	},
}

// tbfParmsFields is struct tc_tbf_qopt.
var tbfParmsFields = []StructField{
	{Name: "rate_cell_log", Size: 1},
	{Name: "rate___reserved", Size: 1},
	{Name: "rate_overhead", Size: 2},
	{Name: "rate_cell_align", Size: 2, Signed: true},
	{Name: "rate_mpu", Size: 2},
	{Name: "rate", Size: 4},
	{Name: "peak_cell_log", Size: 1},
	{Name: "peak___reserved", Size: 1},
	{Name: "peak_overhead", Size: 2},
	{Name: "peak_cell_align", Size: 2, Signed: true},
	{Name: "peak_mpu", Size: 2},
	{Name: "peak", Size: 4},
	{Name: "limit", Size: 4},
	{Name: "buffer", Size: 4},
	{Name: "mtu", Size: 4},
}

var tbfOptionsSchema = &attr.Schema{
	Name: "tbf",
	Fields: map[uint16]attr.Field{
		TCA_TBF_PARMS: {
			Name:   "PARMS",
			Kind:   attr.KindOpaque,
			Decode: structField("TBF_PARMS", tbfParmsFields).decode,
			Encode: parmsEncodeHook("TBF_PARMS", tbfParmsFields, []string{"rate", "peak"}),
		},
		TCA_TBF_RTAB: {Name: "RTAB", Kind: attr.KindRawDispatch, RawDispatch: rtabDispatch("rate", "PARMS")},
		TCA_TBF_PTAB: {Name: "PTAB", Kind: attr.KindRawDispatch, RawDispatch: rtabDispatch("peak", "PARMS")},
	},
}

// policeTBFFields is struct tc_police.
var policeTBFFields = []StructField{
	{Name: "index", Size: 4},
	{Name: "action", Size: 4, Signed: true},
	{Name: "limit", Size: 4},
	{Name: "burst", Size: 4},
	{Name: "mtu", Size: 4},
	{Name: "rate_cell_log", Size: 1},
	{Name: "rate___reserved", Size: 1},
	{Name: "rate_overhead", Size: 2},
	{Name: "rate_cell_align", Size: 2, Signed: true},
	{Name: "rate_mpu", Size: 2},
	{Name: "rate", Size: 4},
	{Name: "peak_cell_log", Size: 1},
	{Name: "peak___reserved", Size: 1},
	{Name: "peak_overhead", Size: 2},
	{Name: "peak_cell_align", Size: 2, Signed: true},
	{Name: "peak_mpu", Size: 2},
	{Name: "peak", Size: 4},
	{Name: "refcnt", Size: 4, Signed: true},
	{Name: "bindcnt", Size: 4, Signed: true},
	{Name: "capab", Size: 4},
}

// policeSchema is the TCA_POLICE_* container shared by u32 and fw options
// (nla_plus_police.police in the original).
var policeSchema = &attr.Schema{
	Name: "police",
	Fields: map[uint16]attr.Field{
		TCA_POLICE_TBF:      fieldFromStruct("TBF", policeTBFFields),
		TCA_POLICE_RATE:     {Name: "RATE", Kind: attr.KindOpaque},
		TCA_POLICE_PEAKRATE: {Name: "PEAKRATE", Kind: attr.KindOpaque},
		TCA_POLICE_AVRATE:   {Name: "AVRATE", Kind: attr.KindOpaque},
		TCA_POLICE_RESULT:   {Name: "RESULT", Kind: attr.KindOpaque},
	},
}

// u32SelFields is struct tc_u32_sel's fixed portion. hmask, key_mask and
// key_val are the big-endian selector fields. The
// variable-length tc_u32_key array that follows in the kernel struct
// (nkeys entries) has no attribute of its own and isn't individually
// addressable through these fields — see u32SelDecode/u32SelEncode, which
// carry it as an opaque tail alongside the decoded fixed fields.
var u32SelFields = []StructField{
	{Name: "flags", Size: 1},
	{Name: "offshift", Size: 1},
	{Name: "nkeys", Size: 1},
	{Name: "offmask", Size: 2},
	{Name: "off", Size: 2},
	{Name: "offoff", Size: 2, Signed: true},
	{Name: "hoff", Size: 2, Signed: true},
	{Name: "hmask", Size: 4, BigEndian: true},
	{Name: "key_mask", Size: 4, BigEndian: true},
	{Name: "key_val", Size: 4, BigEndian: true},
	{Name: "key_off", Size: 4, Signed: true},
	{Name: "key_offmask", Size: 4, Signed: true},
}

var u32SelFixedLen = func() int {
	n := 0
	for _, f := range u32SelFields {
		n += f.Size
	}
	return n
}()

// U32Sel is the decoded value of TCA_U32_SEL: the fixed selector fields
// plus the raw bytes of whatever tc_u32_key array followed them on the
// wire (nkeys entries, 16 bytes each) — carried opaquely since no TCA_U32_*
// attribute addresses the keys individually, so a selector with keys still
// round-trips instead of losing its tail.
type U32Sel struct {
	Fields map[string]int64
	Keys   []byte
}

func u32SelDecode(b []byte) (interface{}, error) {
	if len(b) < u32SelFixedLen {
		return nil, fmt.Errorf("tc: u32_sel: need %d bytes, got %d", u32SelFixedLen, len(b))
	}
	fields, err := DecodeStruct(b[:u32SelFixedLen], u32SelFields)
	if err != nil {
		return nil, fmt.Errorf("tc: u32_sel: %w", err)
	}
	return &U32Sel{Fields: fields, Keys: append([]byte(nil), b[u32SelFixedLen:]...)}, nil
}

func u32SelEncode(v interface{}) ([]byte, error) {
	sel, ok := v.(*U32Sel)
	if !ok {
		return nil, fmt.Errorf("tc: u32_sel: expected *U32Sel, got %T", v)
	}
	return append(EncodeStruct(sel.Fields, u32SelFields), sel.Keys...), nil
}

var u32MarkFields = []StructField{
	{Name: "val", Size: 4},
	{Name: "mask", Size: 4},
	{Name: "success", Size: 4},
}

var u32PcntFields = []StructField{
	{Name: "rcnt", Size: 8},
	{Name: "rhit", Size: 8},
	{Name: "kcnts", Size: 8},
}

var u32OptionsSchema = &attr.Schema{
	Name: "u32",
	Fields: map[uint16]attr.Field{
		TCA_U32_CLASSID: {Name: "CLASSID", Kind: attr.KindU32},
		TCA_U32_HASH:    {Name: "HASH", Kind: attr.KindU32},
		TCA_U32_LINK:    {Name: "LINK", Kind: attr.KindOpaque},
		TCA_U32_DIVISOR: {Name: "DIVISOR", Kind: attr.KindU32},
		TCA_U32_SEL:     {Name: "SEL", Kind: attr.KindOpaque, Decode: u32SelDecode, Encode: u32SelEncode},
		TCA_U32_POLICE:  {Name: "POLICE", Kind: attr.KindNested, Nested: policeSchema},
		TCA_U32_ACT:     {Name: "ACT", Kind: attr.KindOpaque},
		TCA_U32_INDEV:   {Name: "INDEV", Kind: attr.KindOpaque},
		TCA_U32_PCNT:    fieldFromStruct("PCNT", u32PcntFields),
		TCA_U32_MARK:    fieldFromStruct("MARK", u32MarkFields),
	},
}

var fwOptionsSchema = &attr.Schema{
	Name: "fw",
	Fields: map[uint16]attr.Field{
		TCA_FW_CLASSID: {Name: "CLASSID", Kind: attr.KindU32},
		TCA_FW_POLICE:  {Name: "POLICE", Kind: attr.KindNested, Nested: policeSchema},
		TCA_FW_INDEV:   {Name: "INDEV", Kind: attr.KindOpaque},
		TCA_FW_ACT:     {Name: "ACT", Kind: attr.KindOpaque},
		TCA_FW_MASK:    {Name: "MASK", Kind: attr.KindOpaque},
	},
}

// ingressOptionsFields is the single-uint32 flat layout of the ingress
// qdisc's OPTIONS value (options_ingress's fmt='I' in the original).
var ingressOptionsFields = []StructField{{Name: "value", Size: 4}}

// pfifoFastOptionsFields is the 20-byte flat layout (signed 4-byte bands count
// followed by 16 per-band priomap entries).
var pfifoFastOptionsFields = append([]StructField{{Name: "bands", Size: 4, Signed: true}}, pfifoFastMarks()...)

func pfifoFastMarks() []StructField {
	fields := make([]StructField, 16)
	for i := range fields {
		fields[i] = StructField{Name: fmt.Sprintf("mark_%02d", i+1), Size: 1}
	}
	return fields
}

var sfqV0Fields = []StructField{
	{Name: "quantum", Size: 4},
	{Name: "perturb_period", Size: 4, Signed: true},
	{Name: "limit", Size: 4},
	{Name: "divisor", Size: 4},
	{Name: "flows", Size: 4},
}

var sfqV1Fields = []StructField{
	{Name: "quantum", Size: 4},
	{Name: "perturb_period", Size: 4, Signed: true},
	{Name: "limit_v0", Size: 4},
	{Name: "divisor", Size: 4},
	{Name: "flows", Size: 4},
	{Name: "depth", Size: 4},
	{Name: "headdrop", Size: 4},
	{Name: "limit_v1", Size: 4},
	{Name: "qth_min", Size: 4},
	{Name: "qth_max", Size: 4},
	{Name: "Wlog", Size: 1},
	{Name: "Plog", Size: 1},
	{Name: "Scell_log", Size: 1},
	{Name: "flags", Size: 1},
	{Name: "max_P", Size: 4},
	{Name: "prob_drop", Size: 4},
	{Name: "forced_drop", Size: 4},
	{Name: "prob_mark", Size: 4},
	{Name: "forced_mark", Size: 4},
	{Name: "prob_mark_head", Size: 4},
	{Name: "forced_mark_head", Size: 4},
}

var sfqV1Size = sizeOfFields(sfqV1Fields)

var (
	ingressOptionsSpec    = structField("INGRESS", ingressOptionsFields)
	pfifoFastOptionsSpec  = structField("PFIFO_FAST", pfifoFastOptionsFields)
	sfqV0Spec             = structField("SFQ_V0", sfqV0Fields)
	sfqV1Spec             = structField("SFQ_V1", sfqV1Fields)
)

// nestedOptionsCodec wraps a TLV container schema (tbf/htb/u32/fw) as the
// decode/encode function pair a RawDispatch field needs, so KIND-dependent
// nested attribute sets and KIND-dependent flat structs share one dispatch
// mechanism (dispatch as data, not a subclass graph).
func nestedOptionsCodec(schema *attr.Schema) (func([]byte) (interface{}, error), func(interface{}) ([]byte, error)) {
	decode := func(b []byte) (interface{}, error) {
		return attr.Decode(b, schema)
	}
	encode := func(v interface{}) ([]byte, error) {
		set, ok := v.(*attr.Set)
		if !ok {
			return nil, fmt.Errorf("tc: options: expected *attr.Set, got %T", v)
		}
		return attr.Encode(set, schema)
	}
	return decode, encode
}

// optionsRawDispatch selects the OPTIONS sub-schema by KIND: OPTIONS is
// either a nested TLV container (tbf, htb, u32, fw) or a flat packed struct
// (ingress, pfifo_fast, sfq — the latter with two layout versions
// distinguished by the attribute's raw value length).
func optionsRawDispatch(s *attr.Set, value []byte) (func([]byte) (interface{}, error), func(interface{}) ([]byte, error)) {
	kind, ok := s.GetString("KIND")
	if !ok {
		return nil, nil
	}
	switch kind {
	case "ingress":
		return ingressOptionsSpec.decode, ingressOptionsSpec.encode
	case "pfifo_fast":
		return pfifoFastOptionsSpec.decode, pfifoFastOptionsSpec.encode
	case "tbf":
		return nestedOptionsCodec(tbfOptionsSchema)
	case "htb":
		return nestedOptionsCodec(htbOptionsSchema)
	case "u32":
		return nestedOptionsCodec(u32OptionsSchema)
	case "fw":
		return nestedOptionsCodec(fwOptionsSchema)
	case "sfq":
		if len(value) >= sfqV1Size {
			return sfqV1Spec.decode, sfqV1Spec.encode
		}
		return sfqV0Spec.decode, sfqV0Spec.encode
	default:
		return nil, nil
	}
}
