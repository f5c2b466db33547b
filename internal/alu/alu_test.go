package alu

import "testing"

// Hand-verified representative and boundary vectors spot-checking the flag
// rules at their edges: carry/overflow crossings, BCD nibble carries, and
// the divide trap conditions.

func TestAddSetsCarryOnOverflow(t *testing.T) {
	var f uint16
	res := Add(&f, 8, 0xFF, 0x01)
	if res != 0x00 {
		t.Fatalf("res = %#x, want 0x00", res)
	}
	if f&CF == 0 {
		t.Fatal("expected CF set")
	}
	if f&ZF == 0 {
		t.Fatal("expected ZF set")
	}
}

func TestAddSignedOverflow(t *testing.T) {
	var f uint16
	res := Add(&f, 8, 0x7F, 0x01) // 127 + 1 overflows signed 8-bit
	if res != 0x80 {
		t.Fatalf("res = %#x, want 0x80", res)
	}
	if f&OF == 0 {
		t.Fatal("expected OF set")
	}
	if f&CF != 0 {
		t.Fatal("expected CF clear")
	}
}

func TestSubBorrow(t *testing.T) {
	var f uint16
	res := Sub(&f, 8, 0x00, 0x01)
	if res != 0xFF {
		t.Fatalf("res = %#x, want 0xFF", res)
	}
	if f&CF == 0 {
		t.Fatal("expected CF (borrow) set")
	}
	if f&SF == 0 {
		t.Fatal("expected SF set")
	}
}

func TestAndClearsOFAndCF(t *testing.T) {
	f := CF | OF
	res := And(&f, 8, 0xFF, 0x0F)
	if res != 0x0F {
		t.Fatalf("res = %#x, want 0x0F", res)
	}
	if f&(CF|OF) != 0 {
		t.Fatal("expected CF and OF cleared by a logical op")
	}
}

func TestShl(t *testing.T) {
	var f uint16
	res := Shl(&f, 8, 0x81, 1)
	if res != 0x02 {
		t.Fatalf("res = %#x, want 0x02", res)
	}
	if f&CF == 0 {
		t.Fatal("expected CF set from the shifted-out top bit")
	}
}

func TestShrByZeroLeavesValueAndFlagsUntouched(t *testing.T) {
	f := CF
	res := Shr(&f, 8, 0x40, 0)
	if res != 0x40 {
		t.Fatalf("res = %#x, want 0x40 unchanged", res)
	}
	if f&CF == 0 {
		t.Fatal("expected count-0 shift to leave flags untouched")
	}
}

func TestSarPreservesSign(t *testing.T) {
	var f uint16
	res := Sar(&f, 8, 0x80, 1)
	if res != 0xC0 {
		t.Fatalf("res = %#x, want 0xC0", res)
	}
}

func TestRolWrapsTopBitToBottom(t *testing.T) {
	var f uint16
	res := Rol(&f, 8, 0x80, 1)
	if res != 0x01 {
		t.Fatalf("res = %#x, want 0x01", res)
	}
	if f&CF == 0 {
		t.Fatal("expected CF set to the rotated-out bit")
	}
}

func TestMul8SetsCarryWhenAHNonzero(t *testing.T) {
	var f uint16
	ax := Mul8(&f, 0x10, 0x10) // 16*16 = 256 = 0x100
	if ax != 0x0100 {
		t.Fatalf("ax = %#x, want 0x0100", ax)
	}
	if f&CF == 0 || f&OF == 0 {
		t.Fatal("expected CF and OF set when AH is nonzero")
	}
}

func TestDiv8TrapsOnDivideByZero(t *testing.T) {
	_, _, trap := Div8(0x0010, 0)
	if !trap {
		t.Fatal("expected divide-by-zero to trap")
	}
}

func TestDiv8TrapsOnQuotientOverflow(t *testing.T) {
	_, _, trap := Div8(0xFF00, 1) // quotient 255*256 way over a byte
	if !trap {
		t.Fatal("expected quotient overflow to trap")
	}
}

func TestDiv8NormalCase(t *testing.T) {
	al, ah, trap := Div8(0x0064, 10) // 100 / 10
	if trap {
		t.Fatal("unexpected trap")
	}
	if al != 10 || ah != 0 {
		t.Fatalf("al=%d ah=%d, want al=10 ah=0", al, ah)
	}
}

func TestDaaKnownVector(t *testing.T) {
	// 0x09 + 0x01 in packed BCD: AL=0x0A before adjust, carries the low
	// nibble into 0x10 and sets AF.
	var f uint16
	al := Daa(&f, 0x0A)
	if al != 0x10 {
		t.Fatalf("al = %#x, want 0x10", al)
	}
	if f&AF == 0 {
		t.Fatal("expected AF set")
	}
}

func TestAaaKnownVector(t *testing.T) {
	var f uint16
	ax := Aaa(&f, 0x000A) // AL=0x0A needs adjusting
	if ax != 0x0100 {
		t.Fatalf("ax = %#x, want 0x0100", ax)
	}
	if f&AF == 0 || f&CF == 0 {
		t.Fatal("expected AF and CF set")
	}
}

func TestAamKnownVector(t *testing.T) {
	var f uint16
	ax := Aam(&f, 0x1F, 10) // 31 = 3*10 + 1
	if ax != 0x0301 {
		t.Fatalf("ax = %#x, want 0x0301", ax)
	}
}

func TestNormalizeForcesFixedBits(t *testing.T) {
	got := Normalize(0xFFFF)
	if got&(1<<3) != 0 || got&(1<<5) != 0 || got&(1<<15) != 0 {
		t.Fatalf("got %#x, expected bits 3/5/15 clear", got)
	}
	if got&(1<<1) == 0 {
		t.Fatal("expected bit 1 forced set")
	}
}
