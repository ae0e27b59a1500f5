package proxy

import (
	"fmt"
	"log"

	"github.com/m-lab/rtnl-proxy/attr"
	"github.com/m-lab/rtnl-proxy/backend"
	"github.com/m-lab/rtnl-proxy/proxymetrics"
	"github.com/m-lab/rtnl-proxy/rtnl"
)

// NewLink decodes one link-create request and dispatches on its linkinfo
// kind: tun/tap devices are created via ioctl, Open vSwitch and
// ancient-mode bond/bridge masters are created locally, and everything
// else is forwarded unchanged.
func (p *Proxy) NewLink(raw []byte) (Result, error) {
	m, err := rtnl.Decode(raw)
	if err != nil {
		proxymetrics.ErrorCount.WithLabelValues("decode").Inc()
		return Result{}, fmt.Errorf("proxy: newlink: %w", err)
	}
	if p.NetnsRunDir != "" {
		h, err := p.resolveNetnsFD(m)
		if err != nil {
			proxymetrics.ErrorCount.WithLabelValues("netns").Inc()
			return Result{}, fmt.Errorf("proxy: newlink: %w", err)
		}
		if h != nil {
			defer h.Close()
			raw, err = rtnl.Encode(m)
			if err != nil {
				return Result{}, fmt.Errorf("proxy: newlink: re-encoding after netns resolution: %w", err)
			}
		}
	}

	kind, data := linkKindAndData(m)
	ifname, _ := m.Attrs.GetString("IFNAME")

	switch kind {
	case "tuntap":
		if err := p.createTunTap(ifname, data); err != nil {
			log.Printf("proxy: newlink: %v", err)
			proxymetrics.VerdictCount.WithLabelValues("newlink", "error").Inc()
			return Result{}, err
		}
		proxymetrics.VerdictCount.WithLabelValues("newlink", "local").Inc()
		return local, nil

	case "ovs-bridge", "openvswitch":
		if err := p.Host.RunCommand("ovs-vsctl", "add-br", ifname); err != nil {
			proxymetrics.VerdictCount.WithLabelValues("newlink", "error").Inc()
			return Result{}, fmt.Errorf("proxy: newlink: ovs-vsctl add-br %s: %w", ifname, err)
		}
		proxymetrics.VerdictCount.WithLabelValues("newlink", "local").Inc()
		return local, nil

	case "bridge":
		if p.AncientMode {
			if err := p.Host.RunCommand("brctl", "addbr", ifname); err != nil {
				proxymetrics.VerdictCount.WithLabelValues("newlink", "error").Inc()
				return Result{}, fmt.Errorf("proxy: newlink: brctl addbr %s: %w", ifname, err)
			}
			p.awaitBarrier()
			proxymetrics.VerdictCount.WithLabelValues("newlink", "local").Inc()
			return local, nil
		}

	case "bond":
		if p.AncientMode {
			path := backend.ClassNetPath("bonding_masters")
			if err := p.Host.WriteSysfs(path, "+"+ifname); err != nil {
				proxymetrics.VerdictCount.WithLabelValues("newlink", "error").Inc()
				return Result{}, fmt.Errorf("proxy: newlink: bonding_masters +%s: %w", ifname, err)
			}
			p.awaitBarrier()
			proxymetrics.VerdictCount.WithLabelValues("newlink", "local").Inc()
			return local, nil
		}
	}

	proxymetrics.VerdictCount.WithLabelValues("newlink", "forward").Inc()
	return forward(raw), nil
}

// createTunTap builds a backend.TunTapRequest from the tuntap_data
// attribute set (if present — a bare request with only IFNAME and the
// tuntap kind is still valid, producing an all-defaults tun device) and
// drives it through the ioctl backend.
func (p *Proxy) createTunTap(ifname string, data *attr.Set) error {
	req := backend.TunTapRequest{Name: ifname, Mode: "tun", Owner: -1, Group: -1}
	if data != nil {
		if mode, ok := data.GetString("MODE"); ok {
			req.Mode = mode
		}
		if uid, ok := data.GetUint32("UID"); ok {
			req.Owner = int(uid)
		}
		if gid, ok := data.GetUint32("GID"); ok {
			req.Group = int(gid)
		}
		if a := data.Get("IFR"); a != nil {
			if ifr, ok := a.Value.(map[string]int64); ok {
				req.NoPI = ifrFlag(ifr, "no_pi")
				req.OneQueue = ifrFlag(ifr, "one_queue")
				req.VnetHdr = ifrFlag(ifr, "vnet_hdr")
				req.MultiQueue = ifrFlag(ifr, "multi_queue")
			}
		}
	}
	h, err := p.Host.CreateTunTap(req)
	if err != nil {
		return fmt.Errorf("tuntap %s: %w", ifname, err)
	}
	defer h.Close()
	return nil
}

func ifrFlag(ifr map[string]int64, name string) bool {
	return ifr[name] != 0
}
