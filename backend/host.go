package backend

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/m-lab/rtnl-proxy/proxymetrics"
)

// observeLatency records how long an emulation backend call took, labeled
// by the kind of call, into BackendLatencyHistogram.
func observeLatency(backend string, start time.Time) {
	proxymetrics.BackendLatencyHistogram.With(prometheus.Labels{"backend": backend}).Observe(time.Since(start).Seconds())
}

// Host bundles every host-level primitive the proxy drives a request
// through: sysfs reads/writes, external-tool invocation, and tun/tap
// creation. The proxy depends only on this interface so it never branches
// on whether a given backend is a subprocess or a direct syscall.
type Host interface {
	ReadSysfsInt(path string, second bool) (int64, error)
	WriteSysfs(path, value string) error
	HasDir(path string) bool
	ReadSysfsLink(path string) (string, error)
	RunCommand(name string, args ...string) error
	CreateTunTap(req TunTapRequest) (*Handle, error)
}

// DefaultHost is the production Host, backed by the real filesystem,
// real subprocesses, and real ioctls.
type DefaultHost struct {
	Cmd HostCommand
}

// NewDefaultHost returns a DefaultHost that runs external tools for real.
func NewDefaultHost() *DefaultHost {
	return &DefaultHost{Cmd: ExecHostCommand{}}
}

func (h *DefaultHost) ReadSysfsInt(path string, second bool) (int64, error) {
	defer observeLatency("sysfs_read", time.Now())
	return ReadInt(path, second)
}

func (h *DefaultHost) WriteSysfs(path, value string) error {
	defer observeLatency("sysfs_write", time.Now())
	return WriteString(path, value)
}

func (h *DefaultHost) HasDir(path string) bool {
	defer observeLatency("sysfs_hasdir", time.Now())
	return HasDir(path)
}

func (h *DefaultHost) ReadSysfsLink(path string) (string, error) {
	defer observeLatency("sysfs_readlink", time.Now())
	return ReadLink(path)
}

func (h *DefaultHost) RunCommand(name string, args ...string) error {
	defer observeLatency("command", time.Now())
	return h.Cmd.Run(name, args...)
}

func (h *DefaultHost) CreateTunTap(req TunTapRequest) (*Handle, error) {
	defer observeLatency("tuntap", time.Now())
	return CreateTunTap(req)
}
