package proxy

import (
	"fmt"
	"log"
	"net"
	"sync/atomic"

	"github.com/m-lab/go/anonymize"
	"github.com/m-lab/rtnl-proxy/attr"
	"github.com/m-lab/rtnl-proxy/backend"
	"github.com/m-lab/rtnl-proxy/proxymetrics"
	"github.com/m-lab/rtnl-proxy/rtnl"
	muuid "github.com/m-lab/uuid"
)

// dumpAnonymizer redacts the one IP address literal the link dump path can
// ever see on the wire — AF_SPEC/AF_INET6's IFLA_INET6_TOKEN — before it
// reaches a log line.
var dumpAnonymizer = anonymize.New(anonymize.Netblock)

// dumpSeq tags successive LinkInfoDump calls with a distinct cookie so log
// lines from one dump rewrite pass can be correlated.
var dumpSeq uint64

// LinkInfoDump rewrites a dump response. Each element of msgs is one
// decodable link message (a fixed payload followed by attributes running
// to the end of that slice); splitting the outer multi-message buffer on
// its NLMSG headers is the caller's job; this codec only knows how to
// decode one link message at a time. The returned bytes are the
// concatenation of the re-encoded messages, in the same order.
func (p *Proxy) LinkInfoDump(msgs [][]byte) (Result, error) {
	tag, err := muuid.FromCookie(atomic.AddUint64(&dumpSeq, 1))
	if err != nil {
		tag = "untagged"
	}
	log.Printf("proxy: linkinfo dump %s: rewriting %d messages", tag, len(msgs))

	out := make([][]byte, 0, len(msgs))
	var total int
	for _, raw := range msgs {
		m, err := rtnl.Decode(raw)
		if err != nil {
			proxymetrics.ErrorCount.WithLabelValues("decode").Inc()
			log.Printf("proxy: linkinfo dump %s: decode: %v", tag, err)
			return Result{}, fmt.Errorf("proxy: linkinfo dump: %w", err)
		}
		p.rewriteDumpEntry(m)
		logToken(tag, m)
		encoded, err := rtnl.Encode(m)
		if err != nil {
			proxymetrics.ErrorCount.WithLabelValues("encode").Inc()
			return Result{}, fmt.Errorf("proxy: linkinfo dump: re-encoding: %w", err)
		}
		out = append(out, encoded)
		total += len(encoded)
	}

	buf := make([]byte, 0, total)
	for _, m := range out {
		buf = append(buf, m...)
	}
	proxymetrics.VerdictCount.WithLabelValues("linkinfo", "forward").Inc()
	return forward(buf), nil
}

// rewriteDumpEntry applies the dump-rewrite steps to one decoded message,
// in place: master-index backfill in ancient mode, INFO_KIND synthesis
// from sysfs, and bond/bridge data enrichment.
func (p *Proxy) rewriteDumpEntry(m *rtnl.Message) {
	ifname, _ := m.Attrs.GetString("IFNAME")

	if p.AncientMode && ifname != "" && m.Attrs.Get("MASTER") == nil {
		if idx, ok := p.lookupMasterIndex(ifname); ok {
			m.Attrs.Append(attr.Attr{
				Type: rtnl.IFLA_MASTER, Name: "MASTER", Kind: attr.KindU32,
				Value: uint32(idx),
			})
		}
	}

	linkinfo := m.Attrs.Get("LINKINFO")
	var infoSet *attr.Set
	if linkinfo != nil {
		infoSet, _ = linkinfo.Value.(*attr.Set)
	}
	kind := ""
	if infoSet != nil {
		kind, _ = infoSet.GetString("INFO_KIND")
	}
	if kind == "" && ifname != "" {
		kind = p.synthesizeKind(ifname)
	}
	if kind == "" {
		return
	}
	if infoSet == nil {
		infoSet = &attr.Set{}
		m.Attrs.Append(attr.Attr{
			Type: rtnl.IFLA_LINKINFO, Name: "LINKINFO", Kind: attr.KindNested,
			Value: infoSet,
		})
	}
	if infoSet.Get("INFO_KIND") == nil {
		infoSet.Append(attr.Attr{
			Type: rtnl.IFLA_INFO_KIND, Name: "INFO_KIND", Kind: attr.KindASCIIZ,
			Value: kind,
		})
	}

	if kind != "bond" && kind != "bridge" {
		return
	}
	if infoSet.Get("INFO_DATA") != nil {
		return
	}
	if data := p.sysfsLinkData(ifname, kind); data != nil {
		infoSet.Append(attr.Attr{
			Type: rtnl.IFLA_INFO_DATA, Name: "INFO_DATA", Kind: attr.KindDispatch,
			Value: data,
		})
	}
}

// logToken logs a message's IPv6 link-local token, if present, anonymized
// so a forwarded dump never leaves an address literal in plain text in the
// proxy's own log output.
func logToken(tag string, m *rtnl.Message) {
	afSpec := m.Attrs.GetChild("AF_SPEC")
	if afSpec == nil {
		return
	}
	inet6 := afSpec.GetChild("AF_INET6")
	if inet6 == nil {
		return
	}
	tokenAttr := inet6.Get("TOKEN")
	if tokenAttr == nil {
		return
	}
	ip, ok := tokenAttr.Value.(net.IP)
	if !ok {
		return
	}
	redacted := append(net.IP(nil), ip...)
	dumpAnonymizer.IP(redacted)
	log.Printf("proxy: linkinfo dump %s: AF_INET6 token %s", tag, redacted)
}

// lookupMasterIndex tries brport/bridge/ifindex then master/ifindex, in
// that order, returning the first one that reads successfully. Older
// kernels don't expose the nested ifindex file at all, only the
// brport/bridge and master entries themselves as symlinks to the master
// device's own /sys/class/net/<name> directory; for those, the symlink
// target's interface name is resolved and its own ifindex file is read
// instead.
func (p *Proxy) lookupMasterIndex(ifname string) (int64, bool) {
	candidates := []string{
		backend.IfacePath(ifname, "brport", "bridge", "ifindex"),
		backend.IfacePath(ifname, "master", "ifindex"),
	}
	for _, path := range candidates {
		if idx, err := p.Host.ReadSysfsInt(path, false); err == nil {
			return idx, true
		}
	}

	symlinks := []string{
		backend.IfacePath(ifname, "brport", "bridge"),
		backend.IfacePath(ifname, "master"),
	}
	for _, path := range symlinks {
		name, err := p.Host.ReadSysfsLink(path)
		if err != nil {
			continue
		}
		if idx, err := p.Host.ReadSysfsInt(backend.IfacePath(name, "ifindex"), false); err == nil {
			return idx, true
		}
	}
	return 0, false
}

func (p *Proxy) synthesizeKind(ifname string) string {
	if p.Host.HasDir(backend.IfacePath(ifname, "bonding")) {
		return "bond"
	}
	if p.Host.HasDir(backend.IfacePath(ifname, "bridge")) {
		return "bridge"
	}
	return ""
}

// sysfsLinkData populates a bond/bridge INFO_DATA set by reading every
// sysfs file corresponding to a known schema attribute. Reads that fail to
// open or parse are silently skipped, per spec; the skip is still counted
// so operators can tell a degraded dump from a healthy one.
func (p *Proxy) sysfsLinkData(ifname, kind string) *attr.Set {
	var schema *attr.Schema
	var known map[string]string
	var dir string
	switch kind {
	case "bond":
		schema, known, dir = rtnl.BondDataSchema, rtnl.KnownSysfsBondAttrs, "bonding"
	case "bridge":
		schema, known, dir = rtnl.BridgeDataSchema, rtnl.KnownSysfsBridgeAttrs, "bridge"
	default:
		return nil
	}

	set := &attr.Set{}
	for idx, field := range schema.Fields {
		file, ok := known[field.Name]
		if !ok {
			continue
		}
		path := backend.IfacePath(ifname, dir, file)
		v, err := p.Host.ReadSysfsInt(path, field.Name == "BOND_MODE")
		if err != nil {
			proxymetrics.SysfsSkipCount.Inc()
			continue
		}
		val, err := sysfsValueForKind(field.Kind, v)
		if err != nil {
			proxymetrics.SysfsSkipCount.Inc()
			continue
		}
		set.Append(attr.Attr{Type: idx, Name: field.Name, Kind: field.Kind, Value: val})
	}
	if len(set.Attrs) == 0 {
		return nil
	}
	return set
}

func sysfsValueForKind(kind attr.Kind, v int64) (interface{}, error) {
	switch kind {
	case attr.KindU8:
		return uint8(v), nil
	case attr.KindU32:
		return uint32(v), nil
	default:
		return nil, fmt.Errorf("proxy: sysfs enrichment: unsupported field kind %v", kind)
	}
}
