package elfimage

import (
	"debug/elf"
	"testing"
)

func testImage() *Image {
	return &Image{
		data: make([]byte, 0x2000),
		segments: []segment{
			{vaddr: 0x1000, offset: 0x1000, filesz: 0x1000, memsz: 0x1000, flags: elf.PF_X | elf.PF_R},
			{vaddr: 0x4000, offset: 0x2000, filesz: 0, memsz: 0x1000, flags: elf.PF_W | elf.PF_R},
		},
	}
}

func TestFileOffsetVARoundTrip(t *testing.T) {
	img := testImage()
	for off := 0x1000; off < 0x2000; off += 0x100 {
		va, ok := img.FileOffsetToVA(uint64(off))
		if !ok {
			t.Fatalf("offset 0x%x: expected in-range", off)
		}
		back, ok := img.VAToFileOffset(va)
		if !ok || back != off {
			t.Fatalf("round-trip mismatch: off=0x%x va=0x%x back=0x%x", off, va, back)
		}
	}
}

func TestVAToFileOffsetOutOfRange(t *testing.T) {
	img := testImage()
	if _, ok := img.VAToFileOffset(0xFFFF0000); ok {
		t.Fatal("expected out-of-range VA to miss")
	}
}

func TestIsValidPointer(t *testing.T) {
	img := testImage()
	if !img.IsValidPointer(0x1500) {
		t.Fatal("expected executable segment VA to be valid")
	}
	if !img.IsValidPointer(0x4500) {
		t.Fatal("expected writable segment VA to be valid")
	}
	if img.IsValidPointer(0x9000) {
		t.Fatal("expected unmapped VA to be invalid")
	}
}

func TestReadBytesAtVAOverflow(t *testing.T) {
	img := testImage()
	if _, ok := img.ReadBytesAtVA(0x1FF8, 16); ok {
		t.Fatal("expected read overflowing the segment to fail")
	}
	if _, ok := img.ReadBytesAtVA(0x1000, 16); !ok {
		t.Fatal("expected in-bounds read to succeed")
	}
}

func TestReadPointerArrayStopsAtBoundary(t *testing.T) {
	img := testImage()
	ptrs := img.ReadPointerArray(0x1FF0, 10)
	if len(ptrs) != 2 {
		t.Fatalf("expected exactly 2 pointers to fit before the segment end, got %d", len(ptrs))
	}
}

func TestSearchPattern(t *testing.T) {
	img := testImage()
	img.file = &elf.File{}
	img.sections = map[string]sectionRange{".text": {start: 0x1000, end: 0x2000}}
	copy(img.data[0x1100:], []byte("mscorlib.dll\x00"))
	img.file.Sections = append(img.file.Sections, &elf.Section{
		SectionHeader: elf.SectionHeader{Name: ".text", Offset: 0x1000, Size: 0x1000},
	})
	results := img.SearchPattern([]byte("mscorlib.dll\x00"))
	if len(results) != 1 || results[0] != 0x1100 {
		t.Fatalf("got %v", results)
	}
}
