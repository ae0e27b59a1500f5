// Package proxy interposes on the four rtnetlink-style link operations a
// control-plane transport would otherwise forward straight to the kernel:
// dump responses, and link create/delete/set requests. Where the kernel
// cannot service a request directly (ancient bonding/bridging, tun/tap,
// Open vSwitch) the proxy emulates it against backend.Host and reports
// back whether the caller still needs to forward the original bytes.
package proxy

import (
	"time"

	"github.com/m-lab/rtnl-proxy/backend"
	"github.com/m-lab/rtnl-proxy/rtnl"
)

// Verdict tells the caller what to do with a Result.
type Verdict int

const (
	// Forward means the request (possibly rewritten) should still be sent
	// on to the kernel over the transport.
	Forward Verdict = iota
	// Local means the proxy fully serviced the request itself; there is
	// nothing left to transmit.
	Local
)

// Result is the outcome of one proxy operation. Data is only meaningful
// when Verdict == Forward.
type Result struct {
	Verdict Verdict
	Data    []byte
}

// Transport is the proxy's only hook into the datagram socket that owns
// the actual control-plane connection. DelLink and SetLink need an
// interface's current kind before they can decide how to handle it, which
// means re-fetching its full record rather than trusting the (often
// kind-free) request they were handed.
type Transport interface {
	GetLink(index int32) (*rtnl.Message, error)
}

// ancientBarrier is the fixed delay following an ancient-mode bond/bridge
// creation or deletion, giving sysfs time to catch up before the verdict
// becomes visible to the caller.
const ancientBarrier = 300 * time.Millisecond

// Proxy implements LinkInfoDump, NewLink, DelLink, and SetLink against an
// injected Host and Transport. AncientMode is a field here rather than a
// package-level flag so a single process can run more than one Proxy (one
// per netns, say) with independent compatibility settings.
type Proxy struct {
	Host        backend.Host
	Transport   Transport
	AncientMode bool
	NetnsRunDir string
}

func (p *Proxy) awaitBarrier() {
	backend.AwaitSysfs(ancientBarrier, nil)
}

func forward(data []byte) Result {
	return Result{Verdict: Forward, Data: data}
}

var local = Result{Verdict: Local}
