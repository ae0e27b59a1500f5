package backend

import (
	"fmt"
	"os"
	"unsafe"

	"golang.org/x/sys/unix"
)

// IFNAMSIZ is the kernel's fixed interface-name buffer size.
const IFNAMSIZ = 16

// IFT_TUN/IFT_TAP select the device mode in the ioctl flags word; the
// remaining bits are optional behavior modifiers.
const (
	IFT_TUN = 0x1
	IFT_TAP = 0x2

	FlagNoPI       = 0x1000
	FlagOneQueue   = 0x2000
	FlagVnetHdr    = 0x4000
	FlagMultiQueue = 0x100
)

// TunTapRequest describes one tun/tap creation call: the interface name,
// mode ("tun" or "tap"), behavior flags, and optional owner/group settings
// (Owner/Group of -1 skip the corresponding ioctl). TUNSETPERSIST is always
// issued on create — without it the device doesn't outlive the creating
// fd, which the caller closes through the Handle CreateTunTap returns.
type TunTapRequest struct {
	Name       string
	Mode       string
	NoPI       bool
	OneQueue   bool
	VnetHdr    bool
	MultiQueue bool
	Owner      int
	Group      int
}

// Flags computes the u16 ioctl flags word combining IFT_TUN/IFT_TAP with
// the requested NO_PI/ONE_QUEUE/VNET_HDR/MULTI_QUEUE bits.
func (r TunTapRequest) Flags() (uint16, error) {
	var f uint16
	switch r.Mode {
	case "tun":
		f = IFT_TUN
	case "tap":
		f = IFT_TAP
	default:
		return 0, fmt.Errorf("backend: tuntap: unknown mode %q", r.Mode)
	}
	if r.NoPI {
		f |= FlagNoPI
	}
	if r.OneQueue {
		f |= FlagOneQueue
	}
	if r.VnetHdr {
		f |= FlagVnetHdr
	}
	if r.MultiQueue {
		f |= FlagMultiQueue
	}
	return f, nil
}

// ifreq builds the TUNSETIFF argument buffer: the interface name NUL-padded
// to IFNAMSIZ bytes followed by the u16 flags word.
func ifreq(name string, flags uint16) ([]byte, error) {
	if len(name) >= IFNAMSIZ {
		return nil, fmt.Errorf("backend: tuntap: interface name %q too long", name)
	}
	buf := make([]byte, IFNAMSIZ+2)
	copy(buf, name)
	buf[IFNAMSIZ] = byte(flags)
	buf[IFNAMSIZ+1] = byte(flags >> 8)
	return buf, nil
}

// CreateTunTap opens /dev/net/tun and drives it through TUNSETIFF, then as
// requested TUNSETOWNER/TUNSETGROUP, then always TUNSETPERSIST. The
// returned Handle owns the opened descriptor; callers must Close it on
// every exit path.
func CreateTunTap(req TunTapRequest) (*Handle, error) {
	if !tuntapSupported {
		return nil, fmt.Errorf("backend: tuntap: unsupported arch")
	}
	flags, err := req.Flags()
	if err != nil {
		return nil, err
	}
	buf, err := ifreq(req.Name, flags)
	if err != nil {
		return nil, err
	}

	f, err := os.OpenFile("/dev/net/tun", os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("backend: tuntap: opening /dev/net/tun: %w", err)
	}
	fd := int(f.Fd())
	handle := NewHandle(fd, f)

	if err := ioctlPtr(fd, tunSetIFF, unsafe.Pointer(&buf[0])); err != nil {
		handle.Close()
		return nil, fmt.Errorf("backend: tuntap: TUNSETIFF: %w", err)
	}
	if req.Owner >= 0 {
		if err := unix.IoctlSetInt(fd, tunSetOwner, req.Owner); err != nil {
			handle.Close()
			return nil, fmt.Errorf("backend: tuntap: TUNSETOWNER: %w", err)
		}
	}
	if req.Group >= 0 {
		if err := unix.IoctlSetInt(fd, tunSetGroup, req.Group); err != nil {
			handle.Close()
			return nil, fmt.Errorf("backend: tuntap: TUNSETGROUP: %w", err)
		}
	}
	if err := unix.IoctlSetInt(fd, tunSetPersist, 1); err != nil {
		handle.Close()
		return nil, fmt.Errorf("backend: tuntap: TUNSETPERSIST: %w", err)
	}
	return handle, nil
}

// ioctlPtr issues an ioctl that takes a pointer argument (TUNSETIFF's
// ifreq-shaped buffer), which unix.IoctlSetInt can't express.
func ioctlPtr(fd int, req uintptr, arg unsafe.Pointer) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), req, uintptr(arg))
	if errno != 0 {
		return errno
	}
	return nil
}
