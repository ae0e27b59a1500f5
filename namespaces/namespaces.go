// Package namespaces discovers the named network namespaces registered
// under a runtime directory (conventionally /var/run/netns), so callers can
// validate a namespace name before attempting to open it.
package namespaces

import (
	"errors"
	"os"
)

// ErrCantReadProc is the error returned when the requested directory is,
// for whatever reason, currently unreadable.
var ErrCantReadProc = errors.New("Can't read /proc")

// ListNamed lists the named network namespaces registered under runDir
// (conventionally /var/run/netns). It is used to validate a namespace name
// before the caller attempts to open it.
func ListNamed(runDir string) ([]string, error) {
	d, err := os.Open(runDir)
	if err != nil {
		return nil, ErrCantReadProc
	}
	defer d.Close()

	names, err := d.Readdirnames(0)
	if err != nil {
		return nil, ErrCantReadProc
	}
	return names, nil
}
