// Package elfimage loads an AArch64 ELF64 shared object for static
// analysis: it parses program/section headers, applies dynamic
// relocations to a working copy, and exposes VA<->file-offset
// translation, pointer-validity queries, and byte-pattern search.
//
// Unlike an emulator's loader, this package never relocates the image to
// a synthetic base address — every VA it deals in is the VA the binary
// itself was compiled and linked against.
package elfimage

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"fmt"
)

// AArch64 relocation types (see the ELF for the ARM 64-bit Architecture spec).
const (
	rAArch64Abs64     = 257
	rAArch64GlobDat   = 1025
	rAArch64JumpSlot  = 1026
	rAArch64Relative  = 1027
)

const pointerSize = 8

// Image is a parsed, relocated ELF64 shared object.
type Image struct {
	file *elf.File

	original []byte // bytes exactly as read from disk
	data     []byte // working copy with dynamic relocations applied

	sections     map[string]sectionRange   // section name -> file-offset range
	instructions map[string][]uint32       // executable section name -> decoded instruction words
	relocByAddend map[int64][]uint64       // addend -> target VAs that relocation wrote it to

	segments []segment
}

type sectionRange struct {
	start, end int
}

type segment struct {
	vaddr, memsz, filesz, offset uint64
	flags                        elf.ProgFlag
}

// Load parses raw ELF bytes, rejecting anything that isn't a 64-bit
// AArch64 image, and applies dynamic relocations to a working copy.
func Load(raw []byte) (*Image, error) {
	f, err := elf.NewFile(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("parse ELF: %w", err)
	}
	if f.Class != elf.ELFCLASS64 {
		return nil, fmt.Errorf("only 64-bit ELF files are supported, got %v", f.Class)
	}
	if f.Machine != elf.EM_AARCH64 {
		return nil, fmt.Errorf("only AArch64 images are supported, got %v", f.Machine)
	}

	img := &Image{
		file:          f,
		original:      raw,
		sections:      make(map[string]sectionRange),
		instructions:  make(map[string][]uint32),
		relocByAddend: make(map[int64][]uint64),
	}

	for _, prog := range f.Progs {
		if prog.Type != elf.PT_LOAD {
			continue
		}
		img.segments = append(img.segments, segment{
			vaddr:  prog.Vaddr,
			memsz:  prog.Memsz,
			filesz: prog.Filesz,
			offset: prog.Off,
			flags:  prog.Flags,
		})
	}

	img.data = append([]byte(nil), raw...)
	if err := img.applyDynamicRelocations(); err != nil {
		return nil, fmt.Errorf("apply relocations: %w", err)
	}

	img.indexSections()
	img.decodeInstructions()

	return img, nil
}

func (img *Image) indexSections() {
	for _, sec := range img.file.Sections {
		start := int(sec.Offset)
		end := start + int(sec.Size)
		img.sections[sec.Name] = sectionRange{start: start, end: end}
	}
}

func (img *Image) decodeInstructions() {
	const wordSize = 4
	for _, sec := range img.file.Sections {
		if sec.Flags&elf.SHF_EXECINSTR == 0 {
			continue
		}
		start := int(sec.Offset)
		end := start + int(sec.Size)
		if end > len(img.data) {
			continue
		}
		section := img.data[start:end]
		words := make([]uint32, 0, len(section)/wordSize)
		for off := 0; off+wordSize <= len(section); off += wordSize {
			words = append(words, binary.LittleEndian.Uint32(section[off:off+wordSize]))
		}
		img.instructions[sec.Name] = words
	}
}

// applyDynamicRelocations writes RELATIVE/GLOB_DAT/JUMP_SLOT/ABS64
// relocations into the working copy, in place, and records each target VA
// under its addend in the reverse lookup table. Any other relocation type
// is a fatal error.
func (img *Image) applyDynamicRelocations() error {
	dynSyms, _ := img.file.DynamicSymbols()

	for _, sec := range img.file.Sections {
		if sec.Type != elf.SHT_RELA {
			continue
		}
		data, err := sec.Data()
		if err != nil {
			continue
		}
		const entrySize = 24
		for i := 0; i+entrySize <= len(data); i += entrySize {
			rOffset := binary.LittleEndian.Uint64(data[i:])
			rInfo := binary.LittleEndian.Uint64(data[i+8:])
			rAddend := int64(binary.LittleEndian.Uint64(data[i+16:]))

			relType := uint32(rInfo & 0xFFFFFFFF)
			symIdx := int(rInfo >> 32)

			fileOffset, ok := img.vaToFileOffset(rOffset)
			if !ok {
				return fmt.Errorf("could not find file offset for relocation at VA 0x%x", rOffset)
			}
			if fileOffset+8 > len(img.data) {
				return fmt.Errorf("relocation target at VA 0x%x overflows image", rOffset)
			}

			img.relocByAddend[rAddend] = append(img.relocByAddend[rAddend], rOffset)

			switch relType {
			case rAArch64Relative:
				binary.LittleEndian.PutUint64(img.data[fileOffset:fileOffset+8], uint64(rAddend))

			case rAArch64GlobDat, rAArch64JumpSlot:
				symAddr, err := resolveSymbol(dynSyms, symIdx)
				if err != nil {
					return err
				}
				binary.LittleEndian.PutUint64(img.data[fileOffset:fileOffset+8], symAddr)

			case rAArch64Abs64:
				symAddr, err := resolveSymbol(dynSyms, symIdx)
				if err != nil {
					return err
				}
				binary.LittleEndian.PutUint64(img.data[fileOffset:fileOffset+8], symAddr+uint64(rAddend))

			default:
				return fmt.Errorf("unhandled relocation type %d at VA 0x%x", relType, rOffset)
			}
		}
	}
	return nil
}

func resolveSymbol(dynSyms []elf.Symbol, symIdx int) (uint64, error) {
	// Go's DynamicSymbols() omits the STN_UNDEF entry at index 0 that raw
	// ELF symbol tables carry, so relocation symbol indices are 1-based
	// relative to this slice.
	arrayIdx := symIdx - 1
	if symIdx == 0 {
		return 0, nil
	}
	if arrayIdx < 0 || arrayIdx >= len(dynSyms) {
		return 0, fmt.Errorf("symbol not found for index %d", symIdx)
	}
	return dynSyms[arrayIdx].Value, nil
}

// FileOffsetToVA translates a file offset to a virtual address using
// PT_LOAD program headers (half-open containment).
func (img *Image) FileOffsetToVA(offset uint64) (uint64, bool) {
	for _, seg := range img.segments {
		segStart := seg.offset
		segEnd := seg.offset + seg.filesz
		if segStart <= offset && offset < segEnd {
			return seg.vaddr + (offset - segStart), true
		}
	}
	return 0, false
}

// VAToFileOffset translates a virtual address to a file offset using
// PT_LOAD program headers (half-open containment: p_vaddr <= VA < p_vaddr+p_filesz).
func (img *Image) VAToFileOffset(va uint64) (int, bool) {
	off, ok := img.vaToFileOffset(va)
	return off, ok
}

func (img *Image) vaToFileOffset(va uint64) (int, bool) {
	for _, seg := range img.segments {
		segStart := seg.vaddr
		segEnd := seg.vaddr + seg.filesz
		if segStart <= va && va < segEnd {
			return int(seg.offset + (va - seg.vaddr)), true
		}
	}
	return 0, false
}

// IsValidPointer reports whether va lies in a loaded segment that is
// executable or writable.
func (img *Image) IsValidPointer(va uint64) bool {
	for _, seg := range img.segments {
		inRange := seg.vaddr <= va && va < seg.vaddr+seg.memsz
		if !inRange {
			continue
		}
		if seg.flags&elf.PF_X != 0 || seg.flags&elf.PF_W != 0 {
			return true
		}
	}
	return false
}

// ReadPointerArray reads up to count little-endian 64-bit pointers
// starting at va, stopping early if va falls outside the image.
func (img *Image) ReadPointerArray(va uint64, count int) []uint64 {
	pointers := make([]uint64, 0, count)
	current := va
	for i := 0; i < count; i++ {
		offset, ok := img.vaToFileOffset(current)
		if !ok || offset+pointerSize > len(img.data) {
			break
		}
		pointers = append(pointers, binary.LittleEndian.Uint64(img.data[offset:offset+pointerSize]))
		current += pointerSize
	}
	return pointers
}

// ReadBytesAtVA reads numBytes bytes starting at va, returning ok=false
// when the read would overflow the image.
func (img *Image) ReadBytesAtVA(va uint64, numBytes int) ([]byte, bool) {
	offset, ok := img.vaToFileOffset(va)
	if !ok {
		return nil, false
	}
	end := offset + numBytes
	if end > len(img.data) {
		return nil, false
	}
	return img.data[offset:end], true
}

// SearchPattern returns the file offsets of every occurrence of pattern
// across all non-empty sections of the relocated image.
func (img *Image) SearchPattern(pattern []byte) []int {
	var results []int
	for _, sec := range img.file.Sections {
		if sec.Size == 0 {
			continue
		}
		start := int(sec.Offset)
		end := start + int(sec.Size)
		if end > len(img.data) {
			continue
		}
		section := img.data[start:end]
		for idx := 0; ; {
			pos := bytes.Index(section[idx:], pattern)
			if pos < 0 {
				break
			}
			results = append(results, start+idx+pos)
			idx += pos + 1
		}
	}
	return results
}

// ReverseRelocations returns every VA that a relocation wrote addend into.
func (img *Image) ReverseRelocations(addend int64) []uint64 {
	return img.relocByAddend[addend]
}

// Instructions returns the decoded instruction words for a named
// executable section (e.g. ".text"), or nil if the section is absent or
// not executable.
func (img *Image) Instructions(section string) []uint32 {
	return img.instructions[section]
}

// SectionRange returns the file-offset [start, end) range of a named
// section.
func (img *Image) SectionRange(name string) (start, end int, ok bool) {
	r, ok := img.sections[name]
	return r.start, r.end, ok
}

// Section returns the raw relocated bytes of a named section.
func (img *Image) Section(name string) ([]byte, bool) {
	r, ok := img.sections[name]
	if !ok || r.end > len(img.data) {
		return nil, false
	}
	return img.data[r.start:r.end], true
}

// Entry returns the ELF entry point VA.
func (img *Image) Entry() uint64 {
	return img.file.Entry
}
