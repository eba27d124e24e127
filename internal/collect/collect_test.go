package collect

import (
	"archive/zip"
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func buildZip(t *testing.T, files map[string][]byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, data := range files {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("create entry %s: %v", name, err)
		}
		if _, err := w.Write(data); err != nil {
			t.Fatalf("write entry %s: %v", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close zip writer: %v", err)
	}
	return buf.Bytes()
}

func TestExtractFromAPKsNestedZip(t *testing.T) {
	libBytes := []byte{0x7f, 'E', 'L', 'F', 1, 2, 3}
	mdBytes := []byte{0xaf, 0x1b, 0xb1, 0xfa}

	baseAPK := buildZip(t, map[string][]byte{
		libil2cppEntry: libBytes,
		metadataEntry:  mdBytes,
	})
	apks := buildZip(t, map[string][]byte{
		apkEntryName: baseAPK,
	})

	dir := t.TempDir()
	apksPath := filepath.Join(dir, "bundle.apks")
	if err := os.WriteFile(apksPath, apks, 0o644); err != nil {
		t.Fatalf("write apks fixture: %v", err)
	}

	assets, err := ExtractFromAPKs(apksPath)
	if err != nil {
		t.Fatalf("ExtractFromAPKs() error = %v", err)
	}
	if !bytes.Equal(assets.Libil2cpp, libBytes) {
		t.Errorf("Libil2cpp = %v, want %v", assets.Libil2cpp, libBytes)
	}
	if !bytes.Equal(assets.Metadata, mdBytes) {
		t.Errorf("Metadata = %v, want %v", assets.Metadata, mdBytes)
	}
}

func TestExtractFromAPKsMissingEntry(t *testing.T) {
	apks := buildZip(t, map[string][]byte{
		"unrelated.txt": []byte("nope"),
	})
	dir := t.TempDir()
	apksPath := filepath.Join(dir, "bad.apks")
	if err := os.WriteFile(apksPath, apks, 0o644); err != nil {
		t.Fatalf("write apks fixture: %v", err)
	}

	if _, err := ExtractFromAPKs(apksPath); err == nil {
		t.Error("expected error for apks missing base.apk")
	}
}

func TestCreateAPKsArchiveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	splitsDir := filepath.Join(dir, "splits")
	if err := os.MkdirAll(splitsDir, 0o755); err != nil {
		t.Fatalf("mkdir splits: %v", err)
	}
	want := []byte("split contents")
	if err := os.WriteFile(filepath.Join(splitsDir, "base.apk"), want, 0o644); err != nil {
		t.Fatalf("write split: %v", err)
	}

	out := filepath.Join(dir, "bundle.apks")
	if err := CreateAPKsArchive(splitsDir, out); err != nil {
		t.Fatalf("CreateAPKsArchive() error = %v", err)
	}

	r, err := zip.OpenReader(out)
	if err != nil {
		t.Fatalf("open generated archive: %v", err)
	}
	defer r.Close()

	if len(r.File) != 1 || r.File[0].Name != "base.apk" {
		t.Fatalf("unexpected archive contents: %+v", r.File)
	}
	f, err := r.File[0].Open()
	if err != nil {
		t.Fatalf("open entry: %v", err)
	}
	defer f.Close()
	got := make([]byte, len(want))
	if _, err := f.Read(got); err != nil {
		t.Fatalf("read entry: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Errorf("entry contents = %q, want %q", got, want)
	}
}
