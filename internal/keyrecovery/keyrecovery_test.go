package keyrecovery

import (
	"encoding/binary"
	"testing"

	"github.com/kestrelgs/pb2proto/internal/elfimage"
)

const nopWord = 0xD503201F

func movzWord(hw, imm16, rd uint32) uint32 {
	return (1 << 31) | (0b10 << 29) | (0b100101 << 23) | (hw << 21) | (imm16 << 5) | rd
}

func movkWord(hw, imm16, rd uint32) uint32 {
	return (1 << 31) | (0b11 << 29) | (0b100101 << 23) | (hw << 21) | (imm16 << 5) | rd
}

func blWord(imm26 uint32) uint32 {
	return (0b100101 << 26) | (imm26 & 0x3FFFFFF)
}

func adrpWord(immlo, immhi, rd uint32) uint32 {
	return (1 << 31) | (immlo << 29) | (0b10000 << 24) | (immhi << 5) | rd
}

func addImmWord(sh, imm12, rn, rd uint32) uint32 {
	return (0x22 << 23) | (sh << 22) | (imm12 << 10) | (rn << 5) | rd
}

// assembleELF builds a minimal, valid little-endian AArch64 ELF64 shared
// object: one PT_LOAD segment spanning the whole file (so VA == file
// offset), one executable ".text" section holding instructions at file
// offset 0x2000, and 16 bytes of key material at keyVA.
func assembleELF(instructions []uint32, keyVA uint64, key [16]byte) []byte {
	const (
		textOffset = 0x2000
		shstrOff   = 0x3000
		shOff      = 0x3100
		totalSize  = 0x4000
	)

	buf := make([]byte, totalSize)
	le := binary.LittleEndian

	// e_ident
	copy(buf[0:4], []byte{0x7f, 'E', 'L', 'F'})
	buf[4] = 2 // ELFCLASS64
	buf[5] = 1 // ELFDATA2LSB
	buf[6] = 1 // EV_CURRENT

	le.PutUint16(buf[16:], 3)   // e_type = ET_DYN
	le.PutUint16(buf[18:], 183) // e_machine = EM_AARCH64
	le.PutUint32(buf[20:], 1)   // e_version
	le.PutUint64(buf[32:], 64)  // e_phoff
	le.PutUint64(buf[40:], shOff)
	le.PutUint16(buf[52:], 64) // e_ehsize
	le.PutUint16(buf[54:], 56) // e_phentsize
	le.PutUint16(buf[56:], 1)  // e_phnum
	le.PutUint16(buf[58:], 64) // e_shentsize
	le.PutUint16(buf[60:], 3)  // e_shnum
	le.PutUint16(buf[62:], 2)  // e_shstrndx

	// Program header: single PT_LOAD covering the entire file, VA == offset.
	ph := buf[64:]
	le.PutUint32(ph[0:], 1)         // p_type = PT_LOAD
	le.PutUint32(ph[4:], 5)         // p_flags = PF_X | PF_R
	le.PutUint64(ph[8:], 0)         // p_offset
	le.PutUint64(ph[16:], 0)        // p_vaddr
	le.PutUint64(ph[24:], 0)        // p_paddr
	le.PutUint64(ph[32:], totalSize) // p_filesz
	le.PutUint64(ph[40:], totalSize) // p_memsz
	le.PutUint64(ph[48:], 0x1000)     // p_align

	// .text instructions.
	for i, word := range instructions {
		le.PutUint32(buf[textOffset+i*4:], word)
	}

	// AES key bytes.
	copy(buf[keyVA:], key[:])

	// .shstrtab contents: "\0.text\0.shstrtab\0"
	shstr := buf[shstrOff:]
	copy(shstr[1:], ".text\x00")
	copy(shstr[7:], ".shstrtab\x00")

	// Section header table: NULL, .text, .shstrtab.
	sh := buf[shOff:]

	text := sh[64:128]
	le.PutUint32(text[0:], 1)              // sh_name -> ".text"
	le.PutUint32(text[4:], 1)              // sh_type = SHT_PROGBITS
	le.PutUint64(text[8:], 6)              // sh_flags = SHF_ALLOC | SHF_EXECINSTR
	le.PutUint64(text[16:], textOffset)    // sh_addr
	le.PutUint64(text[24:], textOffset)    // sh_offset
	le.PutUint64(text[32:], uint64(len(instructions)*4)) // sh_size
	le.PutUint64(text[48:], 4)             // sh_addralign

	shstrtab := sh[128:192]
	le.PutUint32(shstrtab[0:], 7)    // sh_name -> ".shstrtab"
	le.PutUint32(shstrtab[4:], 3)    // sh_type = SHT_STRTAB
	le.PutUint64(shstrtab[24:], shstrOff)
	le.PutUint64(shstrtab[32:], 17)
	le.PutUint64(shstrtab[48:], 1)

	return buf
}

// buildFixture assembles a .text stream containing the five-instruction
// key_xor window at index 0, a BL at index 5 jumping to an ADRP/ADD pair
// at index 10.
func buildFixture() (raw []byte, wantKeyVA uint64, wantKey [16]byte) {
	instructions := []uint32{
		movzWord(0, 0x1111, 1), // 0: MOVZ X1, #0x1111
		nopWord,                // 1: unconstrained slot
		movkWord(1, 0x2222, 1), // 2: MOVK X1, #0x2222, LSL 16
		movkWord(2, 0x3333, 1), // 3: MOVK X1, #0x3333, LSL 32
		movkWord(3, 0x4444, 1), // 4: MOVK X1, #0x4444, LSL 48
		blWord(5),              // 5: BL +5 instructions -> index 10
		nopWord, nopWord, nopWord, nopWord, // 6-9: filler
		adrpWord(0, 0, 0),           // 10: ADRP X0, #0
		addImmWord(0, 0x100, 0, 0), // 11: ADD X0, X0, #0x100
	}

	wantKeyVA = 0x2100
	for i := range wantKey {
		wantKey[i] = byte(i)
	}

	return assembleELF(instructions, wantKeyVA, wantKey), wantKeyVA, wantKey
}

func TestRecover(t *testing.T) {
	raw, wantKeyVA, wantKey := buildFixture()

	img, err := elfimage.Load(raw)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	got, err := Recover(img)
	if err != nil {
		t.Fatalf("Recover failed: %v", err)
	}

	wantKeyXor := uint64(0x4444)<<48 | uint64(0x3333)<<32 | uint64(0x2222)<<16 | 0x1111
	if got.KeyXor != wantKeyXor {
		t.Fatalf("KeyXor = 0x%x, want 0x%x", got.KeyXor, wantKeyXor)
	}
	if got.KeyXorInstructionOffset != 0 {
		t.Fatalf("KeyXorInstructionOffset = %d, want 0", got.KeyXorInstructionOffset)
	}
	if got.KeyVA != wantKeyVA {
		t.Fatalf("KeyVA = 0x%x, want 0x%x", got.KeyVA, wantKeyVA)
	}
	if got.AESKey != wantKey {
		t.Fatalf("AESKey = %v, want %v", got.AESKey, wantKey)
	}
}

func TestRecoverMissingKeyXor(t *testing.T) {
	instructions := []uint32{nopWord, nopWord, nopWord, nopWord, nopWord}
	raw := assembleELF(instructions, 0x2100, [16]byte{})

	img, err := elfimage.Load(raw)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if _, err := Recover(img); err != ErrKeyXorNotFound {
		t.Fatalf("got err %v, want ErrKeyXorNotFound", err)
	}
}
