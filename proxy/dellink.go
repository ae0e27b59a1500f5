package proxy

import (
	"fmt"

	"github.com/m-lab/rtnl-proxy/backend"
	"github.com/m-lab/rtnl-proxy/proxymetrics"
	"github.com/m-lab/rtnl-proxy/rtnl"
)

// DelLink decodes one link-delete request and re-fetches the interface's
// full record through the transport to learn its kind — a delete request
// commonly carries only the index, not the linkinfo the dispatch needs.
// Open vSwitch and ancient-mode bond/bridge masters are torn down locally;
// everything else is forwarded unchanged.
func (p *Proxy) DelLink(raw []byte) (Result, error) {
	m, err := rtnl.Decode(raw)
	if err != nil {
		proxymetrics.ErrorCount.WithLabelValues("decode").Inc()
		return Result{}, fmt.Errorf("proxy: dellink: %w", err)
	}

	full, err := p.Transport.GetLink(m.Payload.Index)
	if err != nil {
		proxymetrics.ErrorCount.WithLabelValues("transport").Inc()
		return Result{}, fmt.Errorf("proxy: dellink: fetching link %d: %w", m.Payload.Index, err)
	}
	kind, _ := linkKindAndData(full)
	ifname, _ := full.Attrs.GetString("IFNAME")

	switch kind {
	case "ovs-bridge", "openvswitch":
		if err := p.Host.RunCommand("ovs-vsctl", "del-br", ifname); err != nil {
			proxymetrics.VerdictCount.WithLabelValues("dellink", "error").Inc()
			return Result{}, fmt.Errorf("proxy: dellink: ovs-vsctl del-br %s: %w", ifname, err)
		}
		proxymetrics.VerdictCount.WithLabelValues("dellink", "local").Inc()
		return local, nil

	case "bridge":
		if p.AncientMode {
			if err := p.ipLinkDown(ifname); err != nil {
				proxymetrics.VerdictCount.WithLabelValues("dellink", "error").Inc()
				return Result{}, err
			}
			if err := p.Host.RunCommand("brctl", "delbr", ifname); err != nil {
				proxymetrics.VerdictCount.WithLabelValues("dellink", "error").Inc()
				return Result{}, fmt.Errorf("proxy: dellink: brctl delbr %s: %w", ifname, err)
			}
			p.awaitBarrier()
			proxymetrics.VerdictCount.WithLabelValues("dellink", "local").Inc()
			return local, nil
		}

	case "bond":
		if p.AncientMode {
			if err := p.ipLinkDown(ifname); err != nil {
				proxymetrics.VerdictCount.WithLabelValues("dellink", "error").Inc()
				return Result{}, err
			}
			path := backend.ClassNetPath("bonding_masters")
			if err := p.Host.WriteSysfs(path, "-"+ifname); err != nil {
				proxymetrics.VerdictCount.WithLabelValues("dellink", "error").Inc()
				return Result{}, fmt.Errorf("proxy: dellink: bonding_masters -%s: %w", ifname, err)
			}
			p.awaitBarrier()
			proxymetrics.VerdictCount.WithLabelValues("dellink", "local").Inc()
			return local, nil
		}
	}

	proxymetrics.VerdictCount.WithLabelValues("dellink", "forward").Inc()
	return forward(raw), nil
}

func (p *Proxy) ipLinkDown(ifname string) error {
	if err := p.Host.RunCommand("ip", "link", "set", "dev", ifname, "down"); err != nil {
		return fmt.Errorf("proxy: ip link set dev %s down: %w", ifname, err)
	}
	return nil
}
