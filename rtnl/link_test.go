package rtnl_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/go-test/deep"

	"github.com/m-lab/rtnl-proxy/attr"
	"github.com/m-lab/rtnl-proxy/rtnl"
)

func TestRoundTripEmptyLinkMessage(t *testing.T) {
	buf := make([]byte, rtnl.PayloadLen)
	msg, err := rtnl.Decode(buf)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if msg.Payload != (rtnl.LinkPayload{}) {
		t.Errorf("Payload = %+v, want zero value", msg.Payload)
	}
	if len(msg.Attrs.Attrs) != 0 {
		t.Errorf("got %d attrs, want 0", len(msg.Attrs.Attrs))
	}

	re, err := rtnl.Encode(msg)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if diff := deep.Equal(re, buf); diff != nil {
		t.Errorf("round-trip mismatch: %v", diff)
	}
}

func TestFlagSetEncode(t *testing.T) {
	msg := &rtnl.Message{Attrs: &attr.Set{}}
	if err := msg.SetFlags([]string{"UP", "!PROMISC"}); err != nil {
		t.Fatalf("SetFlags: %v", err)
	}
	if msg.Payload.Flags != 0x1 {
		t.Errorf("Flags = %#x, want 0x1", msg.Payload.Flags)
	}
	if msg.Payload.Change != 0x101 {
		t.Errorf("Change = %#x, want 0x101", msg.Payload.Change)
	}
}

func TestIfnameRoundTrip(t *testing.T) {
	set := &attr.Set{}
	set.Append(attr.Attr{Type: rtnl.IFLA_IFNAME, Name: "IFNAME", Kind: attr.KindASCIIZ, Value: "eth0"})
	msg := &rtnl.Message{Attrs: set}

	encoded, err := rtnl.Encode(msg)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	decoded, err := rtnl.Decode(encoded)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	name, ok := decoded.Attrs.GetString("IFNAME")
	if !ok || name != "eth0" {
		t.Errorf("IFNAME = %q, %v, want eth0, true", name, ok)
	}
}

func TestLinkInfoDispatchVlan(t *testing.T) {
	vlanData := &attr.Set{}
	vlanData.Append(attr.Attr{Type: rtnl.IFLA_VLAN_ID, Name: "VLAN_ID", Kind: attr.KindU16, Value: uint16(100)})

	linkInfo := &attr.Set{}
	linkInfo.Append(attr.Attr{Type: rtnl.IFLA_INFO_KIND, Name: "INFO_KIND", Kind: attr.KindASCIIZ, Value: "vlan"})
	linkInfo.Append(attr.Attr{Type: rtnl.IFLA_INFO_DATA, Name: "INFO_DATA", Kind: attr.KindDispatch, Value: vlanData})

	set := &attr.Set{}
	set.Append(attr.Attr{Type: rtnl.IFLA_LINKINFO, Name: "LINKINFO", Kind: attr.KindNested, Value: linkInfo})
	msg := &rtnl.Message{Attrs: set}

	buf, err := rtnl.Encode(msg)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	decoded, err := rtnl.Decode(buf)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	li := decoded.Attrs.GetChild("LINKINFO")
	if li == nil {
		t.Fatal("LINKINFO did not decode as nested")
	}
	kind, ok := li.GetString("INFO_KIND")
	if !ok || kind != "vlan" {
		t.Fatalf("INFO_KIND = %q, want vlan", kind)
	}
	data := li.GetChild("INFO_DATA")
	if data == nil {
		t.Fatal("INFO_DATA did not dispatch to the vlan schema")
	}
	id, ok := data.Get("VLAN_ID").Value.(uint16)
	if !ok || id != 100 {
		t.Errorf("VLAN_ID = %v, want 100", data.Get("VLAN_ID").Value)
	}
}

func TestStats64RoundTripsAsFlatStruct(t *testing.T) {
	set := &attr.Set{}
	set.Append(attr.Attr{Type: rtnl.IFLA_STATS64, Name: "STATS64", Value: map[string]int64{
		"rx_packets": 100, "tx_packets": 200, "rx_bytes": 30000, "collisions": 0,
	}})
	msg := &rtnl.Message{Attrs: set}

	buf, err := rtnl.Encode(msg)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	// PayloadLen fixed header + one attribute header (4) + 23 flat
	// 8-byte counters (184, already 4-byte aligned) — no nested TLV
	// headers inside the value, unlike a KindNested attribute.
	wantLen := rtnl.PayloadLen + 4 + 23*8
	if len(buf) != wantLen {
		t.Fatalf("encoded message = %d bytes, want %d", len(buf), wantLen)
	}

	decoded, err := rtnl.Decode(buf)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	counters, ok := decoded.Attrs.Get("STATS64").Value.(map[string]int64)
	if !ok {
		t.Fatalf("STATS64 decoded as %T, want map[string]int64", decoded.Attrs.Get("STATS64").Value)
	}
	if counters["rx_packets"] != 100 || counters["tx_packets"] != 200 || counters["rx_bytes"] != 30000 {
		t.Errorf("STATS64 = %+v, want rx_packets=100 tx_packets=200 rx_bytes=30000", counters)
	}
}

// AF_SPEC's AF_INET/AF_INET6 devconf and stats blocks are flat packed
// structs on the wire, not nested attribute lists —
// this exercises that every level round-trips as a flat struct rather than
// being misparsed as TLV headers.
func TestAFSpecRoundTrip(t *testing.T) {
	inet6 := &attr.Set{}
	inet6.Append(attr.Attr{Type: rtnl.IFLA_INET6_FLAGS, Name: "FLAGS", Kind: attr.KindU32, Value: uint32(0x80)})
	inet6.Append(attr.Attr{Type: rtnl.IFLA_INET6_CONF, Name: "CONF", Value: map[string]int64{
		"forwarding": 1, "hop_limit": 64,
	}})
	inet6.Append(attr.Attr{Type: rtnl.IFLA_INET6_STATS, Name: "STATS", Value: map[string]int64{
		"inoctets": 500,
	}})
	inet6.Append(attr.Attr{Type: rtnl.IFLA_INET6_CACHEINFO, Name: "CACHEINFO", Value: map[string]int64{
		"max_reasm_len": 1500, "tstamp": 12345,
	}})
	inet6.Append(attr.Attr{Type: rtnl.IFLA_INET6_ICMP6STATS, Name: "ICMP6STATS", Value: map[string]int64{
		"num": 7, "inerrors": 1,
	}})

	afSpec := &attr.Set{}
	afSpec.Append(attr.Attr{Type: rtnl.AF_INET, Name: "AF_INET", Value: map[string]int64{
		"forwarding": 1, "rp_filter": 2,
	}})
	afSpec.Append(attr.Attr{Type: rtnl.AF_INET6, Name: "AF_INET6", Kind: attr.KindNested, Value: inet6})

	set := &attr.Set{}
	set.Append(attr.Attr{Type: rtnl.IFLA_AF_SPEC, Name: "AF_SPEC", Kind: attr.KindNested, Value: afSpec})
	msg := &rtnl.Message{Attrs: set}

	buf, err := rtnl.Encode(msg)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	decoded, err := rtnl.Decode(buf)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	gotAFSpec := decoded.Attrs.GetChild("AF_SPEC")
	if gotAFSpec == nil {
		t.Fatal("AF_SPEC did not decode as nested")
	}
	ipv4, ok := gotAFSpec.Get("AF_INET").Value.(map[string]int64)
	if !ok {
		t.Fatalf("AF_INET decoded as %T, want map[string]int64", gotAFSpec.Get("AF_INET").Value)
	}
	if ipv4["forwarding"] != 1 || ipv4["rp_filter"] != 2 {
		t.Errorf("AF_INET = %+v, want forwarding=1 rp_filter=2", ipv4)
	}

	gotInet6 := gotAFSpec.GetChild("AF_INET6")
	if gotInet6 == nil {
		t.Fatal("AF_INET6 did not decode as nested")
	}
	flags, ok := gotInet6.Get("FLAGS").Value.(uint32)
	if !ok || flags != 0x80 {
		t.Errorf("AF_INET6.FLAGS = %v, want 0x80", gotInet6.Get("FLAGS").Value)
	}
	conf, ok := gotInet6.Get("CONF").Value.(map[string]int64)
	if !ok || conf["forwarding"] != 1 || conf["hop_limit"] != 64 {
		t.Errorf("AF_INET6.CONF = %+v, want forwarding=1 hop_limit=64", conf)
	}
	stats, ok := gotInet6.Get("STATS").Value.(map[string]int64)
	if !ok || stats["inoctets"] != 500 {
		t.Errorf("AF_INET6.STATS = %+v, want inoctets=500", stats)
	}
	cacheinfo, ok := gotInet6.Get("CACHEINFO").Value.(map[string]int64)
	if !ok || cacheinfo["max_reasm_len"] != 1500 || cacheinfo["tstamp"] != 12345 {
		t.Errorf("AF_INET6.CACHEINFO = %+v, want max_reasm_len=1500 tstamp=12345", cacheinfo)
	}
	icmp6, ok := gotInet6.Get("ICMP6STATS").Value.(map[string]int64)
	if !ok || icmp6["num"] != 7 || icmp6["inerrors"] != 1 {
		t.Errorf("AF_INET6.ICMP6STATS = %+v, want num=7 inerrors=1", icmp6)
	}
}

// VLAN_FLAGS is a flat 2-member struct, not a nested attribute list.
func TestVlanFlagsRoundTrip(t *testing.T) {
	vlanData := &attr.Set{}
	vlanData.Append(attr.Attr{Type: rtnl.IFLA_VLAN_FLAGS, Name: "VLAN_FLAGS", Value: map[string]int64{
		"flags": 1, "mask": 1,
	}})

	linkInfo := &attr.Set{}
	linkInfo.Append(attr.Attr{Type: rtnl.IFLA_INFO_KIND, Name: "INFO_KIND", Kind: attr.KindASCIIZ, Value: "vlan"})
	linkInfo.Append(attr.Attr{Type: rtnl.IFLA_INFO_DATA, Name: "INFO_DATA", Kind: attr.KindDispatch, Value: vlanData})

	set := &attr.Set{}
	set.Append(attr.Attr{Type: rtnl.IFLA_LINKINFO, Name: "LINKINFO", Kind: attr.KindNested, Value: linkInfo})
	msg := &rtnl.Message{Attrs: set}

	buf, err := rtnl.Encode(msg)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	decoded, err := rtnl.Decode(buf)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	data := decoded.Attrs.GetChild("LINKINFO").GetChild("INFO_DATA")
	if data == nil {
		t.Fatal("INFO_DATA did not dispatch to the vlan schema")
	}
	flags, ok := data.Get("VLAN_FLAGS").Value.(map[string]int64)
	if !ok || flags["flags"] != 1 || flags["mask"] != 1 {
		t.Errorf("VLAN_FLAGS = %+v, want flags=1 mask=1", flags)
	}
}

// ARP_IP_TARGET is a fixed 16-entry uint32 array, not a TLV list, so it
// must be carried through as opaque raw bytes rather than decoded (and
// failing to decode) as nested attributes.
func TestBondArpIPTargetIsOpaque(t *testing.T) {
	value := make([]byte, 64) // 16 IPv4 addresses
	for i := range value {
		value[i] = byte(i)
	}

	bondData := &attr.Set{}
	bondData.Append(attr.Attr{Type: rtnl.IFLA_BOND_ARP_IP_TARGET, Name: "ARP_IP_TARGET", Kind: attr.KindOpaque, Value: value})

	linkInfo := &attr.Set{}
	linkInfo.Append(attr.Attr{Type: rtnl.IFLA_INFO_KIND, Name: "INFO_KIND", Kind: attr.KindASCIIZ, Value: "bond"})
	linkInfo.Append(attr.Attr{Type: rtnl.IFLA_INFO_DATA, Name: "INFO_DATA", Kind: attr.KindDispatch, Value: bondData})

	set := &attr.Set{}
	set.Append(attr.Attr{Type: rtnl.IFLA_LINKINFO, Name: "LINKINFO", Kind: attr.KindNested, Value: linkInfo})
	msg := &rtnl.Message{Attrs: set}

	buf, err := rtnl.Encode(msg)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	decoded, err := rtnl.Decode(buf)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	data := decoded.Attrs.GetChild("LINKINFO").GetChild("INFO_DATA")
	if data == nil {
		t.Fatal("INFO_DATA did not dispatch to the bond schema")
	}
	got, ok := data.Get("ARP_IP_TARGET").Value.([]byte)
	if !ok {
		t.Fatalf("ARP_IP_TARGET decoded as %T, want []byte", data.Get("ARP_IP_TARGET").Value)
	}
	if diff := deep.Equal(got, value); diff != nil {
		t.Errorf("ARP_IP_TARGET round-trip mismatch: %v", diff)
	}
}

func TestOperStateEncodeDecode(t *testing.T) {
	set := &attr.Set{}
	set.Append(attr.Attr{Type: rtnl.IFLA_OPERSTATE, Name: "OPERSTATE", Kind: attr.KindU8, Value: "DORMANT"})
	msg := &rtnl.Message{Attrs: set}

	buf, err := rtnl.Encode(msg)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	decoded, err := rtnl.Decode(buf)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	a := decoded.Attrs.Get("OPERSTATE")
	if a == nil {
		t.Fatal("OPERSTATE missing")
	}
	if a.Value.(interface{ String() string }).String() != "DORMANT" {
		t.Errorf("OPERSTATE = %v, want DORMANT", a.Value)
	}
}

func TestNetNSFDStringEncode(t *testing.T) {
	dir := t.TempDir()
	if f, err := os.Create(filepath.Join(dir, "testns")); err != nil {
		t.Fatalf("creating fake netns file: %v", err)
	} else {
		f.Close()
	}
	old := rtnl.DefaultNetnsRunDir
	rtnl.DefaultNetnsRunDir = dir
	t.Cleanup(func() { rtnl.DefaultNetnsRunDir = old })

	encodeOne := func() {
		set := &attr.Set{}
		set.Append(attr.Attr{Type: rtnl.IFLA_NET_NS_FD, Name: "NET_NS_FD", Kind: attr.KindU32, Value: "testns"})
		msg := &rtnl.Message{Attrs: set}
		buf, err := rtnl.Encode(msg)
		if err != nil {
			t.Fatalf("Encode: %v", err)
		}
		decoded, err := rtnl.Decode(buf)
		if err != nil {
			t.Fatalf("Decode: %v", err)
		}
		a := decoded.Attrs.Get("NET_NS_FD")
		if a == nil {
			t.Fatal("NET_NS_FD missing")
		}
		if _, ok := a.Value.(uint32); !ok {
			t.Errorf("NET_NS_FD decoded as %T, want uint32", a.Value)
		}
	}

	// Encoding a namespace name opens the file to read its descriptor
	// number; if that descriptor were never closed, enough iterations
	// would exhaust the process's file descriptor table.
	for i := 0; i < 256; i++ {
		encodeOne()
	}
}
