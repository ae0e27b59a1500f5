package main

import (
	"fmt"

	"github.com/vishvananda/netlink"

	"github.com/m-lab/rtnl-proxy/attr"
	"github.com/m-lab/rtnl-proxy/rtnl"
)

// netlinkTransport implements proxy.Transport by asking the live kernel,
// via github.com/vishvananda/netlink, for the interface's current name and
// kind. SetLink/DelLink need that record to decide how to route a request
// (e.g. is index 17's current master a bond or a bridge?) before they can
// emulate anything, and vishvananda/netlink already knows how to resolve
// RTM_GETLINK against the running kernel without this repo reimplementing
// a full request/response loop just for the demo binary.
type netlinkTransport struct{}

// GetLink resolves index against the kernel and packages just enough of the
// result — IFNAME, MASTER, and a LINKINFO/INFO_KIND attribute — as an
// rtnl.Message for the proxy package to inspect. It does not round-trip the
// full kernel attribute set: the demo binary only needs what proxy's
// setlink/dellink lookups read.
func (netlinkTransport) GetLink(index int32) (*rtnl.Message, error) {
	link, err := netlink.LinkByIndex(int(index))
	if err != nil {
		return nil, fmt.Errorf("rtnlproxy: netlink transport: link %d: %w", index, err)
	}
	la := link.Attrs()

	m := &rtnl.Message{
		Payload: rtnl.LinkPayload{
			Family: 0,
			Index:  index,
			Flags:  uint32(la.Flags),
		},
		Attrs: &attr.Set{},
	}
	m.Attrs.Append(attr.Attr{Type: rtnl.IFLA_IFNAME, Name: "IFNAME", Kind: attr.KindASCIIZ, Value: la.Name})
	if la.MasterIndex != 0 {
		m.Attrs.Append(attr.Attr{Type: rtnl.IFLA_MASTER, Name: "MASTER", Kind: attr.KindU32, Value: uint32(la.MasterIndex)})
	}

	if kind := linkKind(link); kind != "" {
		info := &attr.Set{}
		info.Append(attr.Attr{Type: rtnl.IFLA_INFO_KIND, Name: "INFO_KIND", Kind: attr.KindASCIIZ, Value: kind})
		m.Attrs.Append(attr.Attr{Type: rtnl.IFLA_LINKINFO, Name: "LINKINFO", Kind: attr.KindNested, Value: info})
	}
	return m, nil
}

// linkKind maps a vishvananda/netlink concrete Link type to the IFLA_INFO_KIND
// string the proxy package dispatches on (proxy.linkKindAndData and the
// bond/bridge/tuntap/ovs-bridge switches in newlink.go/dellink.go/setlink.go).
func linkKind(link netlink.Link) string {
	switch link.(type) {
	case *netlink.Bridge:
		return "bridge"
	case *netlink.Bond:
		return "bond"
	case *netlink.Vlan:
		return "vlan"
	case *netlink.Veth:
		return "veth"
	case *netlink.Tuntap:
		return "tuntap"
	default:
		return ""
	}
}
