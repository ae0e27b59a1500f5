package backend

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// sysfsRoot is overridable by tests so they never touch the real
// /sys/class/net on the machine running them.
var sysfsRoot = "/sys/class/net"

// IfacePath builds /sys/class/net/<ifname>/<rest...>, joined by "/".
func IfacePath(ifname string, rest ...string) string {
	parts := append([]string{sysfsRoot, ifname}, rest...)
	return strings.Join(parts, "/")
}

// ClassNetPath builds /sys/class/net/<rest...>, for paths like
// bonding_masters that live directly under the class directory rather
// than under one interface's subdirectory.
func ClassNetPath(rest ...string) string {
	parts := append([]string{sysfsRoot}, rest...)
	return strings.Join(parts, "/")
}

// HasDir reports whether path exists and is a directory — used to detect
// /sys/class/net/<if>/bonding and /bridge when synthesizing a link-info
// kind.
func HasDir(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && fi.IsDir()
}

// ReadInt reads path and parses it as an integer. second selects the
// second whitespace-separated token instead of the first, for the bond
// mode file ("active-backup 1\n" -> 1).
func ReadInt(path string, second bool) (int64, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	fields := strings.Fields(string(b))
	if len(fields) == 0 {
		return 0, fmt.Errorf("backend: %s: empty", path)
	}
	idx := 0
	if second {
		if len(fields) < 2 {
			return 0, fmt.Errorf("backend: %s: expected a second field, got %q", path, string(b))
		}
		idx = 1
	}
	return strconv.ParseInt(fields[idx], 10, 64)
}

// WriteString writes s to path, the sysfs write form set-link attribute
// writers and the bonding_masters "+name"/"-name" protocol both use. It
// returns the error as-is so callers can extract an errno via
// errors.As(*os.PathError).
func WriteString(path, s string) error {
	return os.WriteFile(path, []byte(s), 0644)
}

// ReadLink resolves a symlink under sysfs and returns its final path
// component. It backs the master lookup on kernels that expose
// .../brport/bridge and .../master only as symlinks to the master device's
// own directory: the returned component is the master's interface name,
// whose own ifindex file is then read with ReadInt.
func ReadLink(path string) (string, error) {
	target, err := os.Readlink(path)
	if err != nil {
		return "", err
	}
	parts := strings.Split(target, "/")
	return parts[len(parts)-1], nil
}
