//go:build ppc64 || ppc64le

package backend

// TUNSET* ioctl numbers for ppc64: same low bytes as amd64 with the top
// byte replaced by 0x80.
const (
	tunSetIFF       = 0x800454ca
	tunSetPersist   = 0x800454cb
	tunSetOwner     = 0x800454cc
	tunSetGroup     = 0x800454ce
	tuntapSupported = true
)
