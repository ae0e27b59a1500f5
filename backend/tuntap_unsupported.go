//go:build !amd64 && !ppc64 && !ppc64le

package backend

// Every other architecture lacks known TUNSET* ioctl numbers in this
// codec's scope; CreateTunTap fails fast with "unsupported arch" rather
// than guessing at numbers that vary by header layout.
const (
	tunSetIFF       = 0
	tunSetPersist   = 0
	tunSetOwner     = 0
	tunSetGroup     = 0
	tuntapSupported = false
)
