package rtnl

import (
	"fmt"

	"github.com/m-lab/rtnl-proxy/attr"
	"github.com/m-lab/rtnl-proxy/tc"
)

// AF_* family indices within IFLA_AF_SPEC, in nla_map declaration order.
const (
	AF_UNSPEC uint16 = iota
	AF_UNIX
	AF_INET
	AF_AX25
	AF_IPX
	AF_APPLETALK
	AF_NETROM
	AF_BRIDGE
	AF_ATMPVC
	AF_X25
	AF_INET6
)

// ipv4DevconfFields is struct ipv4_devconf's 27 sysctl knobs, in kernel
// declaration order (include/linux/inetdevice.h).
var ipv4DevconfFields = []string{
	"sysctl", "forwarding", "mc_forwarding", "proxy_arp", "accept_redirects",
	"secure_redirects", "send_redirects", "shared_media", "rp_filter",
	"accept_source_route", "bootp_relay", "log_martians", "tag", "arp_filter",
	"medium_id", "disable_xfrm", "disable_policy", "force_igmp_version",
	"arp_announce", "arp_ignore", "promote_secondaries", "arp_accept",
	"arp_notify", "accept_local", "src_valid_mark", "proxy_arp_pvlan",
	"route_localnet",
}

// structU32Fields builds a []tc.StructField of 4-byte unsigned words, in
// order, for a flat struct like the IPv4/IPv6 devconf blocks — these
// travel on the wire as one packed block,
// not as a nested attribute list, the same convention as IFLA_STATS/IFLA_MAP
// (see rtnl/link.go's ifstatsFields/ifmapFields).
func structU32Fields(names []string) []tc.StructField {
	fields := make([]tc.StructField, len(names))
	for i, n := range names {
		fields[i] = tc.StructField{Name: n, Size: 4}
	}
	return fields
}

// flatStructField builds an attr.Field whose value is a flat packed struct
// (map[string]int64), decoded/encoded via tc.DecodeStruct/EncodeStruct
// rather than attr.KindNested's TLV recursion.
func flatStructField(name string, fields []tc.StructField) attr.Field {
	return attr.Field{
		Name: name,
		Kind: attr.KindOpaque,
		Decode: func(b []byte) (interface{}, error) {
			return tc.DecodeStruct(b, fields)
		},
		Encode: func(v interface{}) ([]byte, error) {
			values, ok := v.(map[string]int64)
			if !ok {
				return nil, fmt.Errorf("rtnl: %s: expected map[string]int64, got %T", name, v)
			}
			return tc.EncodeStruct(values, fields), nil
		},
	}
}

var ipv4DevconfFieldsStruct = structU32Fields(ipv4DevconfFields)
var ipv4DevconfField = flatStructField("AF_INET", ipv4DevconfFieldsStruct)

var afSpecSchema = &attr.Schema{
	Name: "af_spec",
	Fields: map[uint16]attr.Field{
		AF_INET:  ipv4DevconfField,
		AF_INET6: {Name: "AF_INET6", Kind: attr.KindNested, Nested: inet6Schema},
	},
}

// IFLA_INET6_* attribute indices within AF_INET6.
const (
	IFLA_INET6_UNSPEC uint16 = iota
	IFLA_INET6_FLAGS
	IFLA_INET6_CONF
	IFLA_INET6_STATS
	IFLA_INET6_MCAST
	IFLA_INET6_CACHEINFO
	IFLA_INET6_ICMP6STATS
	IFLA_INET6_TOKEN
	IFLA_INET6_ADDR_GEN_MODE
)

// ipv6DevconfFields is struct ipv6_devconf's 30 sysctl knobs
// (include/uapi/linux/ipv6.h, DEVCONF_*).
var ipv6DevconfFields = []string{
	"forwarding", "hop_limit", "mtu", "accept_ra", "accept_redirects",
	"autoconf", "dad_transmits", "router_solicitations",
	"router_solicitation_interval", "router_solicitation_delay",
	"use_tempaddr", "temp_valid_lft", "temp_prefered_lft", "regen_max_retry",
	"max_desync_factor", "max_addresses", "force_mld_version",
	"accept_ra_defrtr", "accept_ra_pinfo", "accept_ra_rtr_pref",
	"router_probe_interval", "accept_ra_rt_info_max_plen", "proxy_ndp",
	"optimistic_dad", "accept_source_route", "mc_forwarding",
	"disable_ipv6", "accept_dad", "force_tllao", "ndisc_notify",
}

var ipv6DevconfField = flatStructField("CONF", structU32Fields(ipv6DevconfFields))

// ipv6StatsFields is struct ipv6_stats's 31 u32 counters.
var ipv6StatsFields = []string{
	"inoctets", "fragcreates", "indiscards", "num", "outoctets",
	"outnoroutes", "inbcastoctets", "outforwdatagrams", "outpkts",
	"reasmtimeout", "inhdrerrors", "reasmreqds", "fragfails", "outmcastpkts",
	"inaddrerrors", "inmcastpkts", "reasmfails", "outdiscards",
	"outbcastoctets", "inmcastoctets", "inpkts", "fragoks", "intoobigerrors",
	"inunknownprotos", "intruncatedpkts", "outbcastpkts", "reasmoks",
	"inbcastpkts", "innoroutes", "indelivers", "outmcastoctets",
}

var ipv6StatsField = flatStructField("STATS", structU32Fields(ipv6StatsFields))

// ipv6CacheInfoFields is struct ifla_cacheinfo's 4 u32 members
// (max_reasm_len, tstamp, reachable_time, retrans_time).
var ipv6CacheInfoField = flatStructField("CACHEINFO", []tc.StructField{
	{Name: "max_reasm_len", Size: 4},
	{Name: "tstamp", Size: 4},
	{Name: "reachable_time", Size: 4},
	{Name: "retrans_time", Size: 4},
})

// icmp6StatsFields is struct icmpv6_mib's 5 u64 counters.
var icmp6StatsField = flatStructField("ICMP6STATS", []tc.StructField{
	{Name: "num", Size: 8},
	{Name: "inerrors", Size: 8},
	{Name: "outmsgs", Size: 8},
	{Name: "outerrors", Size: 8},
	{Name: "inmsgs", Size: 8},
})

var inet6Schema = &attr.Schema{
	Name: "inet6",
	Fields: map[uint16]attr.Field{
		IFLA_INET6_FLAGS:         {Name: "FLAGS", Kind: attr.KindU32},
		IFLA_INET6_CONF:          ipv6DevconfField,
		IFLA_INET6_STATS:         ipv6StatsField,
		IFLA_INET6_MCAST:         {Name: "MCAST", Kind: attr.KindOpaque},
		IFLA_INET6_CACHEINFO:     ipv6CacheInfoField,
		IFLA_INET6_ICMP6STATS:    icmp6StatsField,
		IFLA_INET6_TOKEN:         {Name: "TOKEN", Kind: attr.KindIPv6},
		IFLA_INET6_ADDR_GEN_MODE: {Name: "ADDR_GEN_MODE", Kind: attr.KindU8},
	},
}
