package proxy

import (
	"fmt"

	"github.com/m-lab/rtnl-proxy/backend"
	"github.com/m-lab/rtnl-proxy/namespaces"
	"github.com/m-lab/rtnl-proxy/rtnl"
)

// resolveNetnsFD rewrites a NET_NS_FD attribute carrying a namespace name
// (rather than an already-open descriptor) into an opened file descriptor.
// The caller supplies a name, not a number, whenever it wants the interface
// moved into a namespace it only knows by its /var/run/netns entry; this is
// the one place that name gets resolved to a kernel-visible fd. The name is
// checked against namespaces.ListNamed(p.NetnsRunDir) before opening so a
// typo fails with a clear error instead of whatever errno open() produces.
//
// The returned Handle must be closed once the rewritten message has been
// forwarded; a nil Handle and nil error both mean the attribute was absent
// or already numeric, so there is nothing to close.
func (p *Proxy) resolveNetnsFD(m *rtnl.Message) (*backend.Handle, error) {
	a := m.Attrs.Get("NET_NS_FD")
	if a == nil {
		return nil, nil
	}
	name, ok := a.Value.(string)
	if !ok {
		return nil, nil
	}

	names, err := namespaces.ListNamed(p.NetnsRunDir)
	if err != nil {
		return nil, fmt.Errorf("proxy: netns: listing %s: %w", p.NetnsRunDir, err)
	}
	live := false
	for _, n := range names {
		if n == name {
			live = true
			break
		}
	}
	if !live {
		return nil, fmt.Errorf("proxy: netns: %q is not a live named namespace under %s", name, p.NetnsRunDir)
	}

	h, err := backend.OpenNetNS(name)
	if err != nil {
		return nil, fmt.Errorf("proxy: netns: %w", err)
	}
	a.Value = uint32(h.FD)
	return h, nil
}
