//go:build amd64

package backend

// TUNSET* ioctl numbers for x86_64.
const (
	tunSetIFF       = 0x400454ca
	tunSetPersist   = 0x400454cb
	tunSetOwner     = 0x400454cc
	tunSetGroup     = 0x400454ce
	tuntapSupported = true
)
