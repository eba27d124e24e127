package metadata

import (
	"bytes"
	"encoding/binary"
	"testing"
)

func TestReadCompressedU32FiveByteForm(t *testing.T) {
	data := []byte{0xF0, 0x01, 0x02, 0x03, 0x04}
	if got := ReadCompressedU32(data, 0); got != 0x01020304 {
		t.Fatalf("got 0x%x want 0x01020304", got)
	}
}

func TestReadCompressedU32OneByteForm(t *testing.T) {
	data := []byte{0x7F}
	if got := ReadCompressedU32(data, 0); got != 127 {
		t.Fatalf("got %d want 127", got)
	}
}

func TestReadCompressedU32TwoByteForm(t *testing.T) {
	data := []byte{0x80, 0x01}
	if got := ReadCompressedU32(data, 0); got != 1 {
		t.Fatalf("got %d want 1", got)
	}
}

func TestReadCompressedU32SentinelMaxMinusOne(t *testing.T) {
	data := []byte{0xFE}
	if got := ReadCompressedU32(data, 0); got != ^uint32(0)-1 {
		t.Fatalf("got %d want u32::MAX-1", got)
	}
}

func TestReadCompressedU32SentinelMax(t *testing.T) {
	data := []byte{0xFF}
	if got := ReadCompressedU32(data, 0); got != ^uint32(0) {
		t.Fatalf("got %d want u32::MAX", got)
	}
}

func TestReadCompressedU32SizeReportsBytesConsumed(t *testing.T) {
	cases := []struct {
		data     []byte
		wantSize int
	}{
		{[]byte{0x7F}, 1},
		{[]byte{0x80, 0x01}, 2},
		{[]byte{0xC0, 0x00, 0x00, 0x00}, 4},
		{[]byte{0xF0, 0x01, 0x02, 0x03, 0x04}, 5},
		{[]byte{0xFE}, 1},
		{[]byte{0xFF}, 1},
	}
	for _, c := range cases {
		_, size := ReadCompressedU32Size(c.data, 0)
		if size != c.wantSize {
			t.Fatalf("data %x: got size %d want %d", c.data, size, c.wantSize)
		}
	}
}

func TestReadCompressedI32SentinelMapsToMinInt32(t *testing.T) {
	data := []byte{0xFF}
	if got := ReadCompressedI32(data, 0); got != -1<<31 {
		t.Fatalf("got %d want math.MinInt32", got)
	}
}

func TestReadCompressedI32ZigZag(t *testing.T) {
	// encoded 0 -> 0, encoded 1 -> -1, encoded 2 -> 1, encoded 3 -> -2
	cases := map[byte]int32{0: 0, 1: -1, 2: 1, 3: -2}
	for enc, want := range cases {
		if got := ReadCompressedI32([]byte{enc}, 0); got != want {
			t.Fatalf("encoded %d: got %d want %d", enc, got, want)
		}
	}
}

// buildHeaderOnlyBlob produces the smallest valid metadata blob: a header
// with magic/version set and every table's offset and size left at zero,
// so each table is empty.
func buildHeaderOnlyBlob(t *testing.T) []byte {
	t.Helper()
	h := Header{Sanity: Magic, Version: SupportedVersion}
	buf := &bytes.Buffer{}
	if err := binary.Write(buf, binary.LittleEndian, &h); err != nil {
		t.Fatalf("encode header: %v", err)
	}
	return buf.Bytes()
}

func TestLoadRejectsBadMagic(t *testing.T) {
	blob := buildHeaderOnlyBlob(t)
	binary.LittleEndian.PutUint32(blob[0:4], 0)

	if _, err := Load(blob); err == nil {
		t.Fatal("expected error for bad sanity value")
	}
}

func TestLoadRejectsUnsupportedVersion(t *testing.T) {
	blob := buildHeaderOnlyBlob(t)
	binary.LittleEndian.PutUint32(blob[4:8], 99)

	if _, err := Load(blob); err == nil {
		t.Fatal("expected error for unsupported version")
	}
}

func TestLoadEmptyTables(t *testing.T) {
	blob := buildHeaderOnlyBlob(t)

	m, err := Load(blob)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(m.TypeDefinitions) != 0 || len(m.Events) != 0 || len(m.Images) != 0 {
		t.Fatalf("expected all tables empty, got %+v", m)
	}
}

func TestStringHeapRoundTrip(t *testing.T) {
	h := Header{Sanity: Magic, Version: SupportedVersion}

	stringData := []byte("Foo\x00Bar.Baz\x00")
	h.StringOffset = int32(binary.Size(h))
	h.StringSize = int32(len(stringData))

	buf := &bytes.Buffer{}
	if err := binary.Write(buf, binary.LittleEndian, &h); err != nil {
		t.Fatalf("encode header: %v", err)
	}
	buf.Write(stringData)

	m, err := Load(buf.Bytes())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if got := m.GetString(0); got != "Foo" {
		t.Fatalf("index 0: got %q want %q", got, "Foo")
	}
	if got := m.GetString(4); got != "Bar.Baz" {
		t.Fatalf("index 4: got %q want %q", got, "Bar.Baz")
	}
}
