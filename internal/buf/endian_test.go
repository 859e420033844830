package buf

import "testing"

func TestU64LE(t *testing.T) {
	data := []byte{0x01, 0x23, 0x45, 0x67, 0x89, 0xab, 0xcd, 0xef}

	if got := U64LE(data); got != 0xefcdab8967452301 {
		t.Fatalf("U64LE = 0x%x, want 0xefcdab8967452301", got)
	}
	if U64LE(data[:7]) != 0 {
		t.Fatalf("short read should be 0")
	}
}

func TestPutU64LE(t *testing.T) {
	b := make([]byte, 8)
	if !PutU64LE(b, 0x1000|0x20) {
		t.Fatalf("PutU64LE should succeed on an 8-byte slice")
	}
	if b[0] != 0x20 || b[1] != 0x10 {
		t.Fatalf("PutU64LE wrote % x, want little-endian 20 10", b[:2])
	}
	if got := U64LE(b); got != 0x1020 {
		t.Fatalf("round trip = 0x%x, want 0x1020", got)
	}

	short := make([]byte, 4)
	if PutU64LE(short, 1) {
		t.Fatalf("PutU64LE should refuse a short slice")
	}
	if short[0] != 0 {
		t.Fatalf("short slice must be untouched")
	}
}
