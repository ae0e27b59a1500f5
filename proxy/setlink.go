package proxy

import (
	"fmt"
	"log"
	"syscall"

	"github.com/m-lab/rtnl-proxy/attr"
	"github.com/m-lab/rtnl-proxy/backend"
	"github.com/m-lab/rtnl-proxy/proxymetrics"
	"github.com/m-lab/rtnl-proxy/rtnl"
)

// SetLink decodes one link-modify request. A present bond/bridge data
// container is applied entirely through sysfs writers; otherwise, in
// ancient mode, a MASTER attribute attaches or detaches the interface from
// a bond/bridge; anything else is forwarded unchanged.
func (p *Proxy) SetLink(raw []byte) (Result, error) {
	m, err := rtnl.Decode(raw)
	if err != nil {
		proxymetrics.ErrorCount.WithLabelValues("decode").Inc()
		return Result{}, fmt.Errorf("proxy: setlink: %w", err)
	}

	if p.NetnsRunDir != "" {
		h, err := p.resolveNetnsFD(m)
		if err != nil {
			proxymetrics.ErrorCount.WithLabelValues("netns").Inc()
			return Result{}, fmt.Errorf("proxy: setlink: %w", err)
		}
		if h != nil {
			defer h.Close()
			raw, err = rtnl.Encode(m)
			if err != nil {
				return Result{}, fmt.Errorf("proxy: setlink: re-encoding after netns resolution: %w", err)
			}
		}
	}

	kind, data := linkKindAndData(m)
	if (kind == "bond" || kind == "bridge") && data != nil {
		return p.setLinkData(m, kind, data)
	}

	if masterAttr := m.Attrs.Get("MASTER"); masterAttr != nil && p.AncientMode {
		masterIdx, ok := masterAttr.Value.(uint32)
		if !ok {
			return Result{}, fmt.Errorf("proxy: setlink: MASTER attribute has unexpected type %T", masterAttr.Value)
		}
		return p.setLinkMaster(m.Payload.Index, masterIdx)
	}

	proxymetrics.VerdictCount.WithLabelValues("setlink", "forward").Inc()
	return forward(raw), nil
}

// setLinkData writes every (attribute, value) pair in data to its sysfs
// file, accumulating the last non-zero writer errno exactly as the source
// loop's `code = write(...) or code` does: a later non-zero result always
// replaces the running code, a later zero (success) never clears it.
func (p *Proxy) setLinkData(m *rtnl.Message, kind string, data *attr.Set) (Result, error) {
	ifname, ok := m.Attrs.GetString("IFNAME")
	if !ok {
		full, err := p.Transport.GetLink(m.Payload.Index)
		if err != nil {
			proxymetrics.ErrorCount.WithLabelValues("transport").Inc()
			return Result{}, fmt.Errorf("proxy: setlink: resolving ifname for index %d: %w", m.Payload.Index, err)
		}
		ifname, _ = full.Attrs.GetString("IFNAME")
	}
	dir, known := sysfsDirAndMap(kind)

	var code int
	for _, a := range data.Attrs {
		file, ok := known[a.Name]
		if !ok {
			continue
		}
		path := backend.IfacePath(ifname, dir, file)
		err := p.Host.WriteSysfs(path, fmt.Sprint(a.Value))
		if newCode := errnoOf(err); newCode != 0 {
			code = newCode
			log.Printf("proxy: setlink: writing %s: %v", path, err)
		}
	}
	if code != 0 {
		proxymetrics.VerdictCount.WithLabelValues("setlink", "error").Inc()
		return Result{}, fmt.Errorf("proxy: setlink: %s: %w", ifname, syscall.Errno(code))
	}
	proxymetrics.VerdictCount.WithLabelValues("setlink", "local").Inc()
	return local, nil
}

// setLinkMaster implements the MASTER-attribute attach/detach path:
// masterIdx == 0 detaches the port named by index from its current
// master (discovered via sysfs); any other value attaches it to the
// named master (discovered via the transport).
func (p *Proxy) setLinkMaster(index int32, masterIdx uint32) (Result, error) {
	port, err := p.Transport.GetLink(index)
	if err != nil {
		proxymetrics.ErrorCount.WithLabelValues("transport").Inc()
		return Result{}, fmt.Errorf("proxy: setlink: resolving index %d: %w", index, err)
	}
	portName, _ := port.Attrs.GetString("IFNAME")

	if masterIdx == 0 {
		curIdx, ok := p.lookupMasterIndex(portName)
		if !ok {
			proxymetrics.VerdictCount.WithLabelValues("setlink", "local").Inc()
			return local, nil
		}
		masterKind, masterName, err := p.resolveMaster(int32(curIdx))
		if err != nil {
			return Result{}, err
		}
		if err := p.detachFromMaster(masterKind, masterName, portName); err != nil {
			proxymetrics.VerdictCount.WithLabelValues("setlink", "error").Inc()
			return Result{}, err
		}
		proxymetrics.VerdictCount.WithLabelValues("setlink", "local").Inc()
		return local, nil
	}

	masterKind, masterName, err := p.resolveMaster(int32(masterIdx))
	if err != nil {
		return Result{}, err
	}
	if err := p.attachToMaster(masterKind, masterName, portName); err != nil {
		proxymetrics.VerdictCount.WithLabelValues("setlink", "error").Inc()
		return Result{}, err
	}
	proxymetrics.VerdictCount.WithLabelValues("setlink", "local").Inc()
	return local, nil
}

func (p *Proxy) resolveMaster(index int32) (kind, ifname string, err error) {
	m, err := p.Transport.GetLink(index)
	if err != nil {
		proxymetrics.ErrorCount.WithLabelValues("transport").Inc()
		return "", "", fmt.Errorf("proxy: setlink: resolving master %d: %w", index, err)
	}
	kind, _ = linkKindAndData(m)
	ifname, _ = m.Attrs.GetString("IFNAME")
	return kind, ifname, nil
}

func (p *Proxy) attachToMaster(masterKind, masterName, portName string) error {
	switch masterKind {
	case "bridge":
		if err := p.Host.RunCommand("brctl", "addif", masterName, portName); err != nil {
			return fmt.Errorf("proxy: setlink: brctl addif %s %s: %w", masterName, portName, err)
		}
		return nil
	case "bond":
		path := backend.IfacePath(masterName, "bonding", "slaves")
		if err := p.Host.WriteSysfs(path, "+"+portName); err != nil {
			return fmt.Errorf("proxy: setlink: bonding slaves +%s: %w", portName, err)
		}
		return nil
	default:
		return fmt.Errorf("proxy: setlink: unsupported master kind %q", masterKind)
	}
}

func (p *Proxy) detachFromMaster(masterKind, masterName, portName string) error {
	switch masterKind {
	case "bridge":
		if err := p.Host.RunCommand("brctl", "delif", masterName, portName); err != nil {
			return fmt.Errorf("proxy: setlink: brctl delif %s %s: %w", masterName, portName, err)
		}
		return nil
	case "bond":
		path := backend.IfacePath(masterName, "bonding", "slaves")
		if err := p.Host.WriteSysfs(path, "-"+portName); err != nil {
			return fmt.Errorf("proxy: setlink: bonding slaves -%s: %w", portName, err)
		}
		return nil
	default:
		return fmt.Errorf("proxy: setlink: unsupported master kind %q", masterKind)
	}
}
