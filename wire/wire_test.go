package wire_test

import (
	"net"
	"testing"

	"github.com/m-lab/rtnl-proxy/wire"
)

func TestUint32RoundTrip(t *testing.T) {
	b := wire.PutUint32(0xdeadbeef)
	v, err := wire.Uint32(b)
	if err != nil {
		t.Fatalf("Uint32: %v", err)
	}
	if v != 0xdeadbeef {
		t.Errorf("got %x, want %x", v, 0xdeadbeef)
	}
}

func TestUint32BERoundTrip(t *testing.T) {
	b := wire.PutUint32BE(1)
	if b[0] != 0 || b[1] != 0 || b[2] != 0 || b[3] != 1 {
		t.Errorf("PutUint32BE(1) = %v, want big-endian encoding [0 0 0 1]", b)
	}
	v, err := wire.Uint32BE(b)
	if err != nil {
		t.Fatalf("Uint32BE: %v", err)
	}
	if v != 1 {
		t.Errorf("Uint32BE(...) = %d, want 1", v)
	}
}

func TestShortBufferErrors(t *testing.T) {
	if _, err := wire.Uint32([]byte{1, 2}); err == nil {
		t.Error("expected error decoding uint32 from 2-byte buffer")
	}
	if _, err := wire.Uint64([]byte{1, 2, 3}); err == nil {
		t.Error("expected error decoding uint64 from short buffer")
	}
}

func TestASCIIZRoundTrip(t *testing.T) {
	b := wire.PutASCIIZ("eth0")
	if len(b) != 5 || b[4] != 0 {
		t.Fatalf("PutASCIIZ(\"eth0\") = %v, want 5 bytes ending in NUL", b)
	}
	s := wire.ASCIIZ(b)
	if s != "eth0" {
		t.Errorf("ASCIIZ(...) = %q, want %q", s, "eth0")
	}
}

func TestASCIIZWithoutTerminator(t *testing.T) {
	s := wire.ASCIIZ([]byte("noterm"))
	if s != "noterm" {
		t.Errorf("ASCIIZ(no NUL) = %q, want %q", s, "noterm")
	}
}

func TestL2AddrRoundTrip(t *testing.T) {
	hw, _ := net.ParseMAC("00:11:22:33:44:55")
	b := wire.PutL2Addr(hw)
	got, err := wire.L2AddrValue(b)
	if err != nil {
		t.Fatalf("L2AddrValue: %v", err)
	}
	if got.String() != hw.String() {
		t.Errorf("got %v, want %v", got, hw)
	}
}

func TestIPv6RoundTrip(t *testing.T) {
	ip := net.ParseIP("2001:db8::1")
	b := wire.PutIPv6(ip)
	got, err := wire.IPv6Value(b)
	if err != nil {
		t.Fatalf("IPv6Value: %v", err)
	}
	if !got.Equal(ip) {
		t.Errorf("got %v, want %v", got, ip)
	}
}

func TestInt32RoundTripNegative(t *testing.T) {
	b := wire.PutInt32(-1)
	v, err := wire.Int32(b)
	if err != nil {
		t.Fatalf("Int32: %v", err)
	}
	if v != -1 {
		t.Errorf("got %d, want -1", v)
	}
}
