// Package iflags implements the bidirectional name↔bit conversion for
// interface flags and the seven-value operational-state enumeration.
package iflags

import "strings"

// Flag bit values, from <linux/if.h> (IFF_*).
const (
	UP          uint32 = 0x1
	BROADCAST   uint32 = 0x2
	DEBUG       uint32 = 0x4
	LOOPBACK    uint32 = 0x8
	POINTOPOINT uint32 = 0x10
	NOTRAILERS  uint32 = 0x20
	RUNNING     uint32 = 0x40
	NOARP       uint32 = 0x80
	PROMISC     uint32 = 0x100
	ALLMULTI    uint32 = 0x200
	MASTER      uint32 = 0x400
	SLAVE       uint32 = 0x800
	MULTICAST   uint32 = 0x1000
	PORTSEL     uint32 = 0x2000
	AUTOMEDIA   uint32 = 0x4000
	DYNAMIC     uint32 = 0x8000
	LOWER_UP    uint32 = 0x10000
	DORMANT     uint32 = 0x20000
	ECHO        uint32 = 0x40000
)

// names lists (name, bit) in the canonical declaration order, used both to
// build the name→bit map and to produce deterministic flags2names output.
var names = []struct {
	Name string
	Bit  uint32
}{
	{"UP", UP},
	{"BROADCAST", BROADCAST},
	{"DEBUG", DEBUG},
	{"LOOPBACK", LOOPBACK},
	{"POINTOPOINT", POINTOPOINT},
	{"NOTRAILERS", NOTRAILERS},
	{"RUNNING", RUNNING},
	{"NOARP", NOARP},
	{"PROMISC", PROMISC},
	{"ALLMULTI", ALLMULTI},
	{"MASTER", MASTER},
	{"SLAVE", SLAVE},
	{"MULTICAST", MULTICAST},
	{"PORTSEL", PORTSEL},
	{"AUTOMEDIA", AUTOMEDIA},
	{"DYNAMIC", DYNAMIC},
	{"LOWER_UP", LOWER_UP},
	{"DORMANT", DORMANT},
	{"ECHO", ECHO},
}

var bitByName = func() map[string]uint32 {
	m := make(map[string]uint32, len(names))
	for _, n := range names {
		m[n.Name] = n.Bit
	}
	return m
}()

// Flags2Names returns every known flag name whose bit is set in both v and
// mask, in declaration order. Callers pass 0xffffffff as mask to have every
// bit of v considered.
func Flags2Names(v, mask uint32) []string {
	var ret []string
	for _, n := range names {
		if n.Bit&mask&v == n.Bit {
			ret = append(ret, n.Name)
		}
	}
	return ret
}

// Names2Flags converts a list of flag names (optionally prefixed "!" to
// request clearing that bit) into (value, mask). Every named flag
// contributes to mask; only non-"!" names contribute to value. Unknown
// names are ignored rather than treated as an error, since round-trip
// correctness is only promised for known names.
func Names2Flags(list []string) (value, mask uint32) {
	for _, flag := range list {
		clear := strings.HasPrefix(flag, "!")
		name := flag
		if clear {
			name = flag[1:]
		}
		bit, ok := bitByName[name]
		if !ok {
			continue
		}
		mask |= bit
		if !clear {
			value |= bit
		}
	}
	return value, mask
}

// OperState is the seven-value interface operational-state enumeration
// (RFC 2863 §3.1.6 / IFLA_OPERSTATE), indexed 0..6.
type OperState uint8

const (
	Unknown OperState = iota
	NotPresent
	Down
	LowerLayerDown
	Testing
	Dormant
	Up
)

var operStateNames = [...]string{
	"UNKNOWN",
	"NOTPRESENT",
	"DOWN",
	"LOWERLAYERDOWN",
	"TESTING",
	"DORMANT",
	"UP",
}

// String returns the state's canonical name.
func (s OperState) String() string {
	if int(s) < len(operStateNames) {
		return operStateNames[s]
	}
	return "UNKNOWN"
}

// ParseOperState maps a state name back to its code. ok is false for any
// name outside the fixed seven-value enumeration.
func ParseOperState(name string) (OperState, bool) {
	for i, n := range operStateNames {
		if n == name {
			return OperState(i), true
		}
	}
	return Unknown, false
}
