package backend

import (
	"fmt"

	"github.com/vishvananda/netns"
)

// OpenNetNS opens the named network namespace (conventionally a file under
// /var/run/netns/) and returns its file descriptor wrapped in a Handle the
// caller must Close on every exit path.
func OpenNetNS(name string) (*Handle, error) {
	ns, err := netns.GetFromName(name)
	if err != nil {
		return nil, fmt.Errorf("backend: opening netns %q: %w", name, err)
	}
	return NewHandle(int(ns), ns), nil
}
