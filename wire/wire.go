// Package wire encodes and decodes the fixed-width primitives that make up
// netlink-style message payloads and attribute values: scalars, padded
// ASCII strings, link-layer addresses, and IPv6 addresses. It never reads
// or writes past a caller-supplied buffer's declared bound.
package wire

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"net"
	"unsafe"
)

// DecodeError reports a short or otherwise malformed buffer, carrying the
// offset at which the read was attempted and the number of bytes needed.
type DecodeError struct {
	Offset   int
	Expected int
	Got      int
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("wire: short buffer at offset %d: need %d bytes, have %d", e.Offset, e.Expected, e.Got)
}

// Native is the host's native byte order. Traffic-control selector fields
// that are explicitly big-endian (u32 filter selector hmask/key_mask/key_val)
// go through the *BE variants below instead, which always use
// binary.BigEndian.
var Native binary.ByteOrder = nativeEndian()

// nativeEndian probes the host's in-memory byte order, the same trick
// github.com/vishvananda/netlink/nl's NativeEndian() uses.
func nativeEndian() binary.ByteOrder {
	var x uint16 = 1
	if *(*byte)(unsafe.Pointer(&x)) == 1 {
		return binary.LittleEndian
	}
	return binary.BigEndian
}

func need(buf []byte, offset, n int) error {
	if len(buf) < offset+n {
		return &DecodeError{Offset: offset, Expected: n, Got: len(buf) - offset}
	}
	return nil
}

// PutUint8 encodes v at the front of a 1-byte slice.
func PutUint8(v uint8) []byte { return []byte{v} }

// Uint8 decodes a single byte at offset 0.
func Uint8(buf []byte) (uint8, error) {
	if err := need(buf, 0, 1); err != nil {
		return 0, err
	}
	return buf[0], nil
}

// PutUint16 encodes v in native byte order.
func PutUint16(v uint16) []byte {
	b := make([]byte, 2)
	Native.PutUint16(b, v)
	return b
}

// Uint16 decodes a native-order uint16 at offset 0.
func Uint16(buf []byte) (uint16, error) {
	if err := need(buf, 0, 2); err != nil {
		return 0, err
	}
	return Native.Uint16(buf), nil
}

// Uint16BE decodes a big-endian uint16, for the handful of selector fields
// the kernel always stores in network byte order regardless of host order.
func Uint16BE(buf []byte) (uint16, error) {
	if err := need(buf, 0, 2); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(buf), nil
}

// PutUint32 encodes v in native byte order.
func PutUint32(v uint32) []byte {
	b := make([]byte, 4)
	Native.PutUint32(b, v)
	return b
}

// Uint32 decodes a native-order uint32 at offset 0.
func Uint32(buf []byte) (uint32, error) {
	if err := need(buf, 0, 4); err != nil {
		return 0, err
	}
	return Native.Uint32(buf), nil
}

// Uint32BE decodes a big-endian uint32.
func Uint32BE(buf []byte) (uint32, error) {
	if err := need(buf, 0, 4); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(buf), nil
}

// PutUint32BE encodes v in big-endian order.
func PutUint32BE(v uint32) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, v)
	return b
}

// PutUint64 encodes v in native byte order.
func PutUint64(v uint64) []byte {
	b := make([]byte, 8)
	Native.PutUint64(b, v)
	return b
}

// Uint64 decodes a native-order uint64 at offset 0.
func Uint64(buf []byte) (uint64, error) {
	if err := need(buf, 0, 8); err != nil {
		return 0, err
	}
	return Native.Uint64(buf), nil
}

// PutInt8, PutInt16, PutInt32, PutInt64 mirror the unsigned encoders.
func PutInt8(v int8) []byte   { return PutUint8(uint8(v)) }
func PutInt16(v int16) []byte { return PutUint16(uint16(v)) }
func PutInt32(v int32) []byte { return PutUint32(uint32(v)) }
func PutInt64(v int64) []byte { return PutUint64(uint64(v)) }

func Int8(buf []byte) (int8, error) {
	v, err := Uint8(buf)
	return int8(v), err
}

func Int16(buf []byte) (int16, error) {
	v, err := Uint16(buf)
	return int16(v), err
}

func Int32(buf []byte) (int32, error) {
	v, err := Uint32(buf)
	return int32(v), err
}

func Int64(buf []byte) (int64, error) {
	v, err := Uint64(buf)
	return int64(v), err
}

// PutASCIIZ encodes s followed by one NUL terminator.
func PutASCIIZ(s string) []byte {
	b := make([]byte, len(s)+1)
	copy(b, s)
	return b
}

// ASCIIZ decodes a NUL-terminated string, stopping at the first NUL or the
// end of buf, whichever comes first.
func ASCIIZ(buf []byte) string {
	if i := bytes.IndexByte(buf, 0); i >= 0 {
		return string(buf[:i])
	}
	return string(buf)
}

// L2Addr is a 6-byte link-layer (Ethernet MAC) address.
type L2Addr [6]byte

// PutL2Addr encodes a hardware address, zero-padding or truncating to 6 bytes.
func PutL2Addr(hw net.HardwareAddr) []byte {
	b := make([]byte, 6)
	copy(b, hw)
	return b
}

// L2AddrValue decodes a 6-byte link-layer address.
func L2AddrValue(buf []byte) (net.HardwareAddr, error) {
	if err := need(buf, 0, 6); err != nil {
		return nil, err
	}
	hw := make(net.HardwareAddr, 6)
	copy(hw, buf[:6])
	return hw, nil
}

// PutIPv6 encodes a 16-byte IPv6 address.
func PutIPv6(ip net.IP) []byte {
	b := make([]byte, 16)
	copy(b, ip.To16())
	return b
}

// IPv6Value decodes a 16-byte IPv6 address.
func IPv6Value(buf []byte) (net.IP, error) {
	if err := need(buf, 0, 16); err != nil {
		return nil, err
	}
	ip := make(net.IP, 16)
	copy(ip, buf[:16])
	return ip, nil
}
