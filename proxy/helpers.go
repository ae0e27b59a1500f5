package proxy

import (
	"errors"
	"os"
	"syscall"

	"github.com/m-lab/rtnl-proxy/attr"
	"github.com/m-lab/rtnl-proxy/rtnl"
)

// linkKindAndData reads a decoded link message's LINKINFO container,
// returning its INFO_KIND string and INFO_DATA child set, if present.
func linkKindAndData(m *rtnl.Message) (kind string, data *attr.Set) {
	linkinfo := m.Attrs.GetChild("LINKINFO")
	if linkinfo == nil {
		return "", nil
	}
	kind, _ = linkinfo.GetString("INFO_KIND")
	return kind, linkinfo.GetChild("INFO_DATA")
}

// sysfsDirAndMap returns the sysfs subdirectory name and the
// attribute-name-to-file map for a bond or bridge data container.
func sysfsDirAndMap(kind string) (dir string, known map[string]string) {
	if kind == "bond" {
		return "bonding", rtnl.KnownSysfsBondAttrs
	}
	return "bridge", rtnl.KnownSysfsBridgeAttrs
}

// errnoOf extracts the underlying syscall.Errno from a sysfs I/O error, or
// 1 if the error doesn't carry one (still "some failure occurred").
func errnoOf(err error) int {
	if err == nil {
		return 0
	}
	var perr *os.PathError
	if errors.As(err, &perr) {
		if errno, ok := perr.Err.(syscall.Errno); ok {
			return int(errno)
		}
	}
	return 1
}
