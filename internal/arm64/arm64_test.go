package arm64

import "testing"

func TestParseMovz(t *testing.T) {
	// 0x52800021 decodes as MOVZ X1,#1 (no shift)
	m, ok := ParseMovz(0x52800021)
	if !ok {
		t.Fatal("expected MOVZ match")
	}
	if m.Rd != X1 || m.Imm16 != 1 || m.HW != Lsl0 {
		t.Fatalf("got %+v", m)
	}
}

func TestParseMovk(t *testing.T) {
	// 0x72A00021 decodes as MOVK X1,#1,LSL 16
	m, ok := ParseMovk(0x72A00021)
	if !ok {
		t.Fatal("expected MOVK match")
	}
	if m.Rd != X1 || m.Imm16 != 1 || m.HW != Lsl16 {
		t.Fatalf("got %+v", m)
	}
}

func TestParseBl(t *testing.T) {
	// 0x94000002 decodes as BL +8
	b, ok := ParseBl(0x94000002)
	if !ok {
		t.Fatal("expected BL match")
	}
	if b.Offset != 8 {
		t.Fatalf("got offset %d", b.Offset)
	}
}

func TestParseAdrp(t *testing.T) {
	// 0x90000001 decodes as ADRP X1,#0
	a, ok := ParseAdrp(0x90000001)
	if !ok {
		t.Fatal("expected ADRP match")
	}
	if a.Rd != X1 || a.ComputeImm() != 0 {
		t.Fatalf("got %+v imm=%d", a, a.ComputeImm())
	}
}

func TestAdrpSignExtension(t *testing.T) {
	// word 0xF0FFFFE0 (immhi=all ones, immlo=11) yields -8192 * 4096
	a, ok := ParseAdrp(0xF0FFFFE0)
	if !ok {
		t.Fatal("expected ADRP match")
	}
	want := int64(-8192) * 4096
	if got := a.ComputeImm(); got != want {
		t.Fatalf("got %d want %d", got, want)
	}
}

func TestParseAddImmediate(t *testing.T) {
	// ADD X0, X0, #0x10
	inst := uint32(0x91004000)
	add, ok := ParseAddImmediate(inst)
	if !ok {
		t.Fatal("expected ADD (immediate) match")
	}
	if add.Immediate() != 0x10 {
		t.Fatalf("got immediate 0x%x", add.Immediate())
	}
}

func TestParseAddImmediateWithShift(t *testing.T) {
	// ADD X0, X0, #1, LSL #12  => effective immediate 0x1000
	inst := uint32(1)<<31 | uint32(0x22)<<23 | uint32(1)<<22 | uint32(1)<<10
	add, ok := ParseAddImmediate(inst)
	if !ok {
		t.Fatal("expected ADD (immediate) match")
	}
	if add.Immediate() != 0x1000 {
		t.Fatalf("got immediate 0x%x", add.Immediate())
	}
}

func TestParseMovn(t *testing.T) {
	// MOVN X1, #0 (64-bit)
	inst := uint32(1)<<31 | uint32(0x25)<<23 | uint32(1)
	m, ok := ParseMovn(inst)
	if !ok {
		t.Fatal("expected MOVN match")
	}
	if m.Rd != X1 || m.Imm16 != 0 {
		t.Fatalf("got %+v", m)
	}
}

func TestParseMadd(t *testing.T) {
	// MADD X0, X1, X2, X3
	inst := uint32(1)<<31 | uint32(0b0011011000)<<21 | uint32(2)<<16 | uint32(3)<<10 | uint32(1)<<5 | 0
	m, ok := ParseMadd(inst)
	if !ok {
		t.Fatal("expected MADD match")
	}
	if m.Rd != X0 || m.Rn != X1 || m.Rm != X2 || m.Ra != X3 {
		t.Fatalf("got %+v", m)
	}
}

func TestNonMatchingInstructionsRejected(t *testing.T) {
	if _, ok := ParseMovz(0xFFFFFFFF); ok {
		t.Fatal("expected non-match")
	}
	if _, ok := ParseBl(0x00000000); ok {
		t.Fatal("expected non-match")
	}
}
