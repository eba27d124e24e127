// Package arm64 decodes a narrow, fixed slice of the AArch64 instruction set
// needed to recover an embedded encryption key from compiled IL2CPP code:
// the wide-immediate move family (MOVZ/MOVK/MOVN), ADRP, ADD (immediate),
// BL, and MADD. It deliberately does not attempt general disassembly.
package arm64

// Register identifies one of the 31 general-purpose registers plus the
// zero register, XZR.
type Register uint8

const (
	X0 Register = iota
	X1
	X2
	X3
	X4
	X5
	X6
	X7
	X8
	X9
	X10
	X11
	X12
	X13
	X14
	X15
	X16
	X17
	X18
	X19
	X20
	X21
	X22
	X23
	X24
	X25
	X26
	X27
	X28
	X29
	X30
	Xzr
)

func registerFromBits(v uint8) (Register, bool) {
	if v > 31 {
		return 0, false
	}
	return Register(v), true
}

// ShiftAmount is the 2-bit `hw` field selecting which 16-bit slice of a
// 32/64-bit register a wide-immediate move instruction targets.
type ShiftAmount uint8

const (
	Lsl0 ShiftAmount = iota
	Lsl16
	Lsl32
	Lsl48
)

// Bits returns the shift amount in actual bits (0, 16, 32, or 48).
func (s ShiftAmount) Bits() uint8 {
	return uint8(s) * 16
}

func shiftFromBits(v uint8) (ShiftAmount, bool) {
	if v > 3 {
		return 0, false
	}
	return ShiftAmount(v), true
}

// Movz is a MOVZ instruction: Rd := imm16 << hw, zeroing the rest.
type Movz struct {
	SF    uint8
	Opc   uint8
	HW    ShiftAmount
	Imm16 uint16
	Rd    Register
}

// ParseMovz decodes inst as MOVZ, returning ok=false if it is not one.
func ParseMovz(inst uint32) (Movz, bool) {
	if (inst>>23)&0xFF != 0xA5 {
		return Movz{}, false
	}
	hw, ok := shiftFromBits(uint8((inst >> 21) & 0x3))
	if !ok {
		return Movz{}, false
	}
	rd, ok := registerFromBits(uint8(inst & 0x1F))
	if !ok {
		return Movz{}, false
	}
	return Movz{
		SF:    uint8((inst >> 31) & 0x1),
		Opc:   uint8((inst >> 29) & 0x3),
		HW:    hw,
		Imm16: uint16((inst >> 5) & 0xFFFF),
		Rd:    rd,
	}, true
}

// Movk is a MOVK instruction: overwrites one 16-bit slice of Rd, leaving
// the rest unchanged.
type Movk struct {
	SF    uint8
	Opc   uint8
	HW    ShiftAmount
	Imm16 uint16
	Rd    Register
}

// ParseMovk decodes inst as MOVK, returning ok=false if it is not one.
func ParseMovk(inst uint32) (Movk, bool) {
	if (inst>>23)&0xFF != 0xE5 {
		return Movk{}, false
	}
	hw, ok := shiftFromBits(uint8((inst >> 21) & 0x3))
	if !ok {
		return Movk{}, false
	}
	rd, ok := registerFromBits(uint8(inst & 0x1F))
	if !ok {
		return Movk{}, false
	}
	return Movk{
		SF:    uint8((inst >> 31) & 0x1),
		Opc:   uint8((inst >> 29) & 0x3),
		HW:    hw,
		Imm16: uint16((inst >> 5) & 0xFFFF),
		Rd:    rd,
	}, true
}

// Movn is a MOVN instruction: Rd := ^(imm16 << hw).
type Movn struct {
	SF    uint8
	Opc   uint8
	HW    ShiftAmount
	Imm16 uint16
	Rd    Register
}

// ParseMovn decodes inst as MOVN, returning ok=false if it is not one.
func ParseMovn(inst uint32) (Movn, bool) {
	sf := uint8((inst >> 31) & 0x1)
	top9 := inst >> 23
	expected := (uint32(sf) << 8) | 0x25
	if top9 != expected {
		return Movn{}, false
	}
	hwVal := uint8((inst >> 21) & 0x3)
	if sf == 0 && (hwVal>>1) == 1 {
		return Movn{}, false
	}
	hw, ok := shiftFromBits(hwVal)
	if !ok {
		return Movn{}, false
	}
	rd, ok := registerFromBits(uint8(inst & 0x1F))
	if !ok {
		return Movn{}, false
	}
	return Movn{
		SF:    sf,
		Opc:   uint8((inst >> 23) & 0xFF),
		HW:    hw,
		Imm16: uint16((inst >> 5) & 0xFFFF),
		Rd:    rd,
	}, true
}

// Bl is a BL (branch-with-link) instruction.
type Bl struct {
	Imm26  int32
	Offset int64 // signed byte offset from the instruction's own address
}

// ParseBl decodes inst as BL, returning ok=false if it is not one.
func ParseBl(inst uint32) (Bl, bool) {
	if (inst>>26)&0x3F != 0b100101 {
		return Bl{}, false
	}
	imm26 := int32(inst & 0x03FFFFFF)
	imm26Signed := (imm26 << 6) >> 6 // sign-extend from 26 to 32 bits
	offset := int64(imm26Signed) << 2
	return Bl{Imm26: imm26Signed, Offset: offset}, true
}

// Adrp is an ADRP (PC-relative page address) instruction.
type Adrp struct {
	ImmLo uint8
	ImmHi uint32
	Rd    Register
}

// ComputeImm returns the signed, page-shifted (<<12) immediate: the byte
// displacement from the instruction's own 4KiB-aligned page.
func (a Adrp) ComputeImm() int64 {
	imm21 := (int64(a.ImmHi) << 2) | int64(a.ImmLo)
	imm33 := imm21 << 12
	const shift = 64 - 33
	return (imm33 << shift) >> shift
}

// ParseAdrp decodes inst as ADRP, returning ok=false if it is not one.
func ParseAdrp(inst uint32) (Adrp, bool) {
	if (inst>>31)&0x1 != 1 {
		return Adrp{}, false
	}
	if (inst>>24)&0x1F != 0b10000 {
		return Adrp{}, false
	}
	rd, ok := registerFromBits(uint8(inst & 0x1F))
	if !ok {
		return Adrp{}, false
	}
	return Adrp{
		ImmLo: uint8((inst >> 29) & 0x3),
		ImmHi: (inst >> 5) & 0x7FFFF,
		Rd:    rd,
	}, true
}

// AddImmediate is an ADD (immediate) instruction.
type AddImmediate struct {
	SF    uint8
	SH    uint8
	Imm12 uint16
	Rn    Register
	Rd    Register
}

// Immediate returns the effective immediate, applying the optional LSL #12.
func (a AddImmediate) Immediate() uint64 {
	if a.SH == 1 {
		return uint64(a.Imm12) << 12
	}
	return uint64(a.Imm12)
}

// ParseAddImmediate decodes inst as ADD (immediate), returning ok=false if
// it is not one (this excludes ADD (shifted register) and other encodings).
func ParseAddImmediate(inst uint32) (AddImmediate, bool) {
	op := uint8((inst >> 23) & 0xFF)
	if op != 0x22 {
		return AddImmediate{}, false
	}
	rn, ok := registerFromBits(uint8((inst >> 5) & 0x1F))
	if !ok {
		return AddImmediate{}, false
	}
	rd, ok := registerFromBits(uint8(inst & 0x1F))
	if !ok {
		return AddImmediate{}, false
	}
	return AddImmediate{
		SF:    uint8((inst >> 31) & 0x1),
		SH:    uint8((inst >> 22) & 0x1),
		Imm12: uint16((inst >> 10) & 0xFFF),
		Rn:    rn,
		Rd:    rd,
	}, true
}

// Madd is a MADD (multiply-add) instruction. Only the discriminant fields
// and operand registers are decoded; the product is not computed here.
type Madd struct {
	SF uint8
	Rm Register
	Ra Register
	Rn Register
	Rd Register
}

// ParseMadd decodes inst as MADD, returning ok=false if it is not one.
func ParseMadd(inst uint32) (Madd, bool) {
	if (inst>>21)&0x3FF != 0b0011011000 {
		return Madd{}, false
	}
	if (inst>>15)&0x1 != 0 {
		return Madd{}, false
	}
	rm, ok := registerFromBits(uint8((inst >> 16) & 0x1F))
	if !ok {
		return Madd{}, false
	}
	ra, ok := registerFromBits(uint8((inst >> 10) & 0x1F))
	if !ok {
		return Madd{}, false
	}
	rn, ok := registerFromBits(uint8((inst >> 5) & 0x1F))
	if !ok {
		return Madd{}, false
	}
	rd, ok := registerFromBits(uint8(inst & 0x1F))
	if !ok {
		return Madd{}, false
	}
	return Madd{
		SF: uint8((inst >> 31) & 0x1),
		Rm: rm,
		Ra: ra,
		Rn: rn,
		Rd: rd,
	}, true
}
