// Package rate builds the 256-entry transmit-time tables traffic-shaping
// qdiscs (tbf, htb) carry alongside their parameter blocks, and caches the
// one-time /proc/net/psched read those tables are computed from.
package rate

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/m-lab/rtnl-proxy/wire"
)

// LinkLayer selects the cell-rounding rule adjustSize applies.
type LinkLayer int

const (
	Unspec LinkLayer = iota
	Ethernet
	ATM
)

const (
	atmCellSize    = 53
	atmCellPayload = 48

	// TimeUnitsPerSec is TIME_UNITS_PER_SEC from the original tc utility port.
	TimeUnitsPerSec = 1000000

	// DefaultMTU is substituted whenever the caller's mtu is zero.
	DefaultMTU = 1600

	// TableSize is the number of entries in a transmit-time table.
	TableSize = 256
)

// Psched holds the four hex words read from /proc/net/psched and the
// derived tick_in_usec multiplier used by Time2Tick.
type Psched struct {
	T2US       uint64
	US2T       uint64
	ClockRes   uint64
	Wee        uint64
	TickInUsec float64
}

var (
	schedOnce   sync.Once
	schedCached Psched
	schedErr    error
)

// ReadPsched parses /proc/net/psched: four hex words (t2us, us2t, clock_res,
// wee). It is read once per process and cached, since the values are fixed
// for the lifetime of the running kernel.
func ReadPsched() (Psched, error) {
	schedOnce.Do(func() {
		schedCached, schedErr = readPschedFile("/proc/net/psched")
	})
	return schedCached, schedErr
}

func readPschedFile(path string) (Psched, error) {
	f, err := os.Open(path)
	if err != nil {
		return Psched{}, err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	if !sc.Scan() {
		return Psched{}, fmt.Errorf("rate: %s is empty", path)
	}
	fields := strings.Fields(sc.Text())
	if len(fields) < 4 {
		return Psched{}, fmt.Errorf("rate: %s: expected 4 hex words, got %d", path, len(fields))
	}
	words := make([]uint64, 4)
	for i := 0; i < 4; i++ {
		v, err := strconv.ParseUint(fields[i], 16, 64)
		if err != nil {
			return Psched{}, fmt.Errorf("rate: %s: parsing word %d: %w", path, i, err)
		}
		words[i] = v
	}
	p := Psched{T2US: words[0], US2T: words[1], ClockRes: words[2], Wee: words[3]}
	clockFactor := float64(p.ClockRes) / TimeUnitsPerSec
	p.TickInUsec = float64(p.T2US) / float64(p.US2T) * clockFactor
	return p, nil
}

// Time2Tick converts a microsecond duration to kernel scheduler ticks,
// truncating to uint32 as the original tc utility does.
func Time2Tick(p Psched, t float64) uint32 {
	return uint32(t * p.TickInUsec)
}

// CalcXmitTime computes the transmit time, in ticks, for size bytes at the
// given rate (bytes/second).
func CalcXmitTime(p Psched, rate uint32, size int) uint32 {
	return Time2Tick(p, TimeUnitsPerSec*(float64(size)/float64(rate)))
}

// AdjustSize clamps size to at least mpu and, for ATM link layer, rounds up
// to whole 53-byte cells of 48-byte payload.
func AdjustSize(size, mpu int, linklayer LinkLayer) int {
	if size < mpu {
		size = mpu
	}
	if linklayer == ATM {
		cells := size / atmCellPayload
		if size%atmCellPayload > 0 {
			cells++
		}
		size = cells * atmCellSize
	}
	return size
}

// Params is the subset of a shaping parameter block the table builder
// needs: rate in bytes/second, mtu (0 means DefaultMTU), mpu, and an input
// cell_log (0 means "compute it").
type Params struct {
	Rate    uint32
	MTU     int
	MPU     int
	CellLog int
}

// Table is the computed transmit-time table plus the cell_log the caller
// must write back into the parameter block (cell_align
// is always set to -1 after building).
type Table struct {
	Values    [TableSize]uint32
	CellLog   int
	CellAlign int32
}

// Build computes a 256-entry transmit-time table for p using psched's
// derived tick multiplier: if cell_log is zero, pick the smallest value
// such that mtu>>cell_log <= 255; for each bucket i, size =
// (i+1)<<cell_log, adjusted via AdjustSize (always against the Ethernet
// link layer, regardless of the qdisc's actual configured link layer —
// matching kernel tc's own rate-table construction), and table[i] =
// time2tick(1_000_000 * size / rate).
func Build(p Psched, params Params) Table {
	mtu := params.MTU
	if mtu == 0 {
		mtu = DefaultMTU
	}

	cellLog := params.CellLog
	if cellLog == 0 {
		for (mtu >> uint(cellLog)) > 255 {
			cellLog++
		}
	}

	var t Table
	for i := 0; i < TableSize; i++ {
		size := (i + 1) << uint(cellLog)
		size = AdjustSize(size, params.MPU, Ethernet)
		t.Values[i] = CalcXmitTime(p, params.Rate, size)
	}
	t.CellLog = cellLog
	t.CellAlign = -1
	return t
}

// Pack serializes a Table's 256 entries as 1024 bytes of native-order
// uint32s, the wire form of TCA_{TBF,HTB}_{R,C,P}TAB.
func Pack(t Table) []byte {
	out := make([]byte, 0, TableSize*4)
	for _, v := range t.Values {
		out = append(out, wire.PutUint32(v)...)
	}
	return out
}

// Unpack parses a rate table attribute value back into its uint32 entries:
// len(value)/4 of them (256 for a full table). The division by 4 is integer
// division, by construction of the byte-slice indexing below.
func Unpack(value []byte) ([]uint32, error) {
	n := len(value) / 4
	if n*4 != len(value) {
		return nil, fmt.Errorf("rate: table value length %d is not a multiple of 4", len(value))
	}
	out := make([]uint32, n)
	for i := 0; i < n; i++ {
		v, err := wire.Uint32(value[i*4 : i*4+4])
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}
