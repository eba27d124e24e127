// Package collect gathers the raw inputs the rest of the pipeline needs
// (libil2cpp.so and global-metadata.dat) from an .apks bundle or directly
// from an attached Android device via adb.
package collect

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

const (
	// apkEntryName is the split APK inside the .apks archive that carries
	// the native libraries and metadata blob.
	apkEntryName = "base.apk"

	libil2cppEntry = "lib/arm64-v8a/libil2cpp.so"
	metadataEntry  = "assets/bin/Data/Managed/Metadata/global-metadata.dat"
)

// ExtractedAssets holds the two files the decrypt/generate operations need.
type ExtractedAssets struct {
	Libil2cpp []byte
	Metadata  []byte
}

// ExtractFromAPKs reads libil2cpp.so and global-metadata.dat out of a
// split-APK bundle (.apks), which is itself a zip containing base.apk,
// which is in turn a zip containing the two asset files.
func ExtractFromAPKs(apksPath string) (ExtractedAssets, error) {
	outer, err := zip.OpenReader(apksPath)
	if err != nil {
		return ExtractedAssets{}, fmt.Errorf("open apks: %w", err)
	}
	defer outer.Close()

	baseAPK, err := readZipEntry(&outer.Reader, apkEntryName)
	if err != nil {
		return ExtractedAssets{}, fmt.Errorf("read %s from apks: %w", apkEntryName, err)
	}

	inner, err := zip.NewReader(bytes.NewReader(baseAPK), int64(len(baseAPK)))
	if err != nil {
		return ExtractedAssets{}, fmt.Errorf("open base.apk: %w", err)
	}

	lib, err := readZipEntry(inner, libil2cppEntry)
	if err != nil {
		return ExtractedAssets{}, fmt.Errorf("read %s from base.apk: %w", libil2cppEntry, err)
	}
	md, err := readZipEntry(inner, metadataEntry)
	if err != nil {
		return ExtractedAssets{}, fmt.Errorf("read %s from base.apk: %w", metadataEntry, err)
	}

	return ExtractedAssets{Libil2cpp: lib, Metadata: md}, nil
}

func readZipEntry(r *zip.Reader, name string) ([]byte, error) {
	f, err := r.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

// CreateAPKsArchive re-packs every file under dir into a zip archive at
// outPath, storing entries uncompressed (the splits it bundles are already
// compressed individually).
func CreateAPKsArchive(dir, outPath string) error {
	out, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("create archive: %w", err)
	}
	defer out.Close()

	zw := zip.NewWriter(out)
	defer zw.Close()

	return filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		hdr := &zip.FileHeader{
			Name:   filepath.ToSlash(rel),
			Method: zip.Store,
		}
		w, err := zw.CreateHeader(hdr)
		if err != nil {
			return err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		_, err = w.Write(data)
		return err
	})
}

// Device describes one attached Android device as reported by `adb devices`.
type Device struct {
	Serial string
	State  string
}

// LoadDevices shells out to `adb devices` and parses its table, skipping
// the header line and any device not in the "device" (ready) state.
func LoadDevices(adbPath string) ([]Device, error) {
	out, err := exec.Command(adbPath, "devices").Output()
	if err != nil {
		return nil, fmt.Errorf("run adb devices: %w", err)
	}

	var devices []Device
	lines := strings.Split(string(out), "\n")
	for i, line := range lines {
		if i == 0 {
			continue // "List of devices attached" header
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		parts := strings.Fields(line)
		if len(parts) < 2 {
			continue
		}
		if parts[1] != "device" {
			continue
		}
		devices = append(devices, Device{Serial: parts[0], State: parts[1]})
	}
	return devices, nil
}

// ExtractFromDevice pulls every installed split of package from the given
// device into workingDir and re-packs them into an .apks archive named
// apksName inside workingDir.
func ExtractFromDevice(adbPath, device, pkg, apksName, workingDir string) (string, error) {
	paths, err := devicePackagePaths(adbPath, device, pkg)
	if err != nil {
		return "", fmt.Errorf("list package paths: %w", err)
	}
	if len(paths) == 0 {
		return "", fmt.Errorf("no installed paths for package %s", pkg)
	}

	splitsDir := filepath.Join(workingDir, "splits")
	if err := os.MkdirAll(splitsDir, 0o755); err != nil {
		return "", fmt.Errorf("create splits dir: %w", err)
	}

	for _, remote := range paths {
		local := filepath.Join(splitsDir, filepath.Base(remote))
		cmd := exec.Command(adbPath, "-s", device, "pull", remote, local)
		if err := cmd.Run(); err != nil {
			return "", fmt.Errorf("pull %s: %w", remote, err)
		}
	}

	apksPath := filepath.Join(workingDir, apksName)
	if err := CreateAPKsArchive(splitsDir, apksPath); err != nil {
		return "", fmt.Errorf("archive splits: %w", err)
	}
	return apksPath, nil
}

// devicePackagePaths runs `adb shell pm path <pkg>` and parses the
// "package:" prefixed lines it prints, one per installed split.
func devicePackagePaths(adbPath, device, pkg string) ([]string, error) {
	out, err := exec.Command(adbPath, "-s", device, "shell", "pm", "path", pkg).Output()
	if err != nil {
		return nil, err
	}

	var paths []string
	for _, line := range strings.Split(string(out), "\n") {
		line = strings.TrimSpace(line)
		if rest, ok := strings.CutPrefix(line, "package:"); ok {
			paths = append(paths, rest)
		}
	}
	return paths, nil
}
