package pipeline

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/edsrzf/mmap-go"
	"github.com/google/uuid"

	"github.com/kestrelgs/pb2proto/internal/collect"
	"github.com/kestrelgs/pb2proto/internal/elfimage"
	"github.com/kestrelgs/pb2proto/internal/il2cpp"
	"github.com/kestrelgs/pb2proto/internal/keyrecovery"
	"github.com/kestrelgs/pb2proto/internal/log"
	"github.com/kestrelgs/pb2proto/internal/metacrypt"
	"github.com/kestrelgs/pb2proto/internal/metadata"
	"github.com/kestrelgs/pb2proto/internal/proto"
	"github.com/kestrelgs/pb2proto/internal/trace"
)

var elfMagic = []byte{0x7f, 'E', 'L', 'F'}

// NewRunID mints a correlation id for a single invocation of DecryptMetadata
// or GenerateProtos, so related log lines across stages can be grepped
// together.
func NewRunID() string {
	return uuid.NewString()
}

// ExtractFromAPKsResult is the outcome of the ExtractFromAPKs operation.
type ExtractFromAPKsResult struct {
	Libil2cpp []byte
	Metadata  []byte
}

// ExtractFromAPKs pulls libil2cpp.so and global-metadata.dat out of a split
// APK bundle.
func ExtractFromAPKs(logger *log.Logger, apksPath string) (ExtractFromAPKsResult, error) {
	logger = resolveLogger(logger).WithStage("extract_from_apks")
	logger.Stage("extract_from_apks")

	assets, err := collect.ExtractFromAPKs(apksPath)
	if err != nil {
		return ExtractFromAPKsResult{}, wrapStage("extract from apks", err)
	}
	return ExtractFromAPKsResult{Libil2cpp: assets.Libil2cpp, Metadata: assets.Metadata}, nil
}

// LoadDevices lists adb devices currently in the "device" (ready) state.
func LoadDevices(logger *log.Logger, adbPath string) ([]collect.Device, error) {
	logger = resolveLogger(logger).WithStage("load_devices")
	logger.Stage("load_devices")

	devices, err := collect.LoadDevices(adbPath)
	if err != nil {
		return nil, wrapStage("load devices", err)
	}
	if len(devices) == 0 {
		return nil, wrapStage("load devices", ErrNoDevices)
	}
	return devices, nil
}

// ExtractFromDeviceResult is the outcome of the ExtractFromDevice operation.
type ExtractFromDeviceResult struct {
	ApksPath string
}

// ExtractFromDevice pulls the given package's installed splits off a
// connected device and repacks them into an .apks archive under workingDir.
func ExtractFromDevice(logger *log.Logger, adbPath, device, pkg, workingDir string) (ExtractFromDeviceResult, error) {
	logger = resolveLogger(logger).WithStage("extract_from_device")
	logger.Stage("extract_from_device")

	apksPath, err := collect.ExtractFromDevice(adbPath, device, pkg, pkg+".apks", workingDir)
	if err != nil {
		return ExtractFromDeviceResult{}, wrapStage("extract from device", err)
	}
	return ExtractFromDeviceResult{ApksPath: apksPath}, nil
}

// DecryptMetadataResult is the outcome of the DecryptMetadata operation.
type DecryptMetadataResult struct {
	Plaintext []byte
	KeyVA     uint64
	KeyXor    uint64
	Events    []*trace.Event
}

// DecryptMetadata recovers the AES key material embedded in libil2cpp's
// instruction stream and uses it to decrypt the global-metadata blob.
func DecryptMetadata(logger *log.Logger, libil2cppPath, encryptedMetadataPath, outputPath string, useMmap bool) (DecryptMetadataResult, error) {
	logger = resolveLogger(logger).WithRun(NewRunID()).WithStage("decrypt_metadata")
	logger.Stage("decrypt_metadata")

	rawELF, closeELF, err := loadELFBytes(libil2cppPath, useMmap)
	if err != nil {
		return DecryptMetadataResult{}, wrapStage("read libil2cpp", err)
	}
	defer closeELF()
	encrypted, err := os.ReadFile(encryptedMetadataPath)
	if err != nil {
		return DecryptMetadataResult{}, wrapStage("read encrypted metadata", err)
	}
	if !bytes.HasPrefix(rawELF, elfMagic) {
		return DecryptMetadataResult{}, wrapStage("validate libil2cpp", ErrNotELF)
	}

	img, err := elfimage.Load(rawELF)
	if err != nil {
		return DecryptMetadataResult{}, wrapStage("parse libil2cpp", err)
	}

	captured, err := keyrecovery.Recover(img)
	if err != nil {
		return DecryptMetadataResult{}, wrapStage("recover key material", fmt.Errorf("%w: %v", ErrKeyNotFound, err))
	}
	logger.KeyFound(captured.KeyXor, captured.KeyVA)
	events := []*trace.Event{
		trace.NewEvent("decrypt_metadata", trace.KeyRecovery, "key_xor", fmt.Sprintf("0x%x @ 0x%x", captured.KeyXor, captured.KeyVA)),
	}

	plaintext, err := metacrypt.DecryptMetadata(encrypted, captured.AESKey, captured.KeyXor)
	if err != nil {
		return DecryptMetadataResult{}, wrapStage("decrypt metadata", err)
	}
	logger.MetadataDecrypted(len(plaintext))
	events = append(events, trace.NewEvent("decrypt_metadata", trace.Decrypt, "global-metadata.dat", fmt.Sprintf("%d bytes", len(plaintext))))

	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return DecryptMetadataResult{}, wrapStage("create output directory", err)
	}
	if err := os.WriteFile(outputPath, plaintext, 0o644); err != nil {
		return DecryptMetadataResult{}, wrapStage("write decrypted metadata", err)
	}

	return DecryptMetadataResult{Plaintext: plaintext, KeyVA: captured.KeyVA, KeyXor: captured.KeyXor, Events: events}, nil
}

// GenerateProtosResult is the outcome of the GenerateProtos operation.
type GenerateProtosResult struct {
	FilesWritten []string
	Events       []*trace.Event
	Schema       *proto.Schema
	Units        []proto.GenUnit
}

// GenerateProtos walks the IL2CPP type system built from libil2cpp.so and
// a (decrypted) global-metadata.dat, and writes one .proto file per
// surviving package into outputDir. Packages whose namespace starts with
// any blacklist entry are skipped entirely.
func GenerateProtos(logger *log.Logger, libil2cppPath, metadataPath, outputDir string, blacklist []string, useMmap bool) (GenerateProtosResult, error) {
	logger = resolveLogger(logger).WithRun(NewRunID()).WithStage("generate_protos")
	logger.Stage("generate_protos")

	rawELF, closeELF, err := loadELFBytes(libil2cppPath, useMmap)
	if err != nil {
		return GenerateProtosResult{}, wrapStage("read libil2cpp", err)
	}
	defer closeELF()
	rawMetadata, err := os.ReadFile(metadataPath)
	if err != nil {
		return GenerateProtosResult{}, wrapStage("read metadata", err)
	}

	img, err := elfimage.Load(rawELF)
	if err != nil {
		return GenerateProtosResult{}, wrapStage("parse libil2cpp", err)
	}
	md, err := metadata.Load(rawMetadata)
	if err != nil {
		return GenerateProtosResult{}, wrapStage("parse metadata", fmt.Errorf("%w: %v", ErrMetadataFormat, err))
	}
	ic, err := il2cpp.Load(img, md)
	if err != nil {
		return GenerateProtosResult{}, wrapStage("load il2cpp type system", err)
	}

	schema, err := proto.BuildSchema(ic, logger)
	if err != nil {
		return GenerateProtosResult{}, wrapStage("generate proto schema", err)
	}
	units, err := schema.BuildUnits()
	if err != nil {
		return GenerateProtosResult{}, wrapStage("render proto units", err)
	}

	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return GenerateProtosResult{}, wrapStage("create output directory", err)
	}

	var written []string
	var events []*trace.Event
	var retained []proto.GenUnit
	for _, u := range units {
		if blacklisted(u.Namespace, blacklist) {
			continue
		}
		file := u.Render()
		path := filepath.Join(outputDir, file.Filename)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return GenerateProtosResult{}, wrapStage("create package directory", err)
		}
		if err := os.WriteFile(path, []byte(file.SourceCode), 0o644); err != nil {
			return GenerateProtosResult{}, wrapStage("write proto file", err)
		}
		logger.FileWritten(path, len(file.SourceCode))
		written = append(written, path)
		retained = append(retained, u)

		e := trace.NewEvent("generate_protos", trace.ProtoWrite, file.Filename, fmt.Sprintf("%d bytes", len(file.SourceCode)))
		e.Annotate("messages", fmt.Sprintf("%d", len(u.Messages)))
		e.Annotate("enums", fmt.Sprintf("%d", len(u.Enums)))
		e.Annotate("services", fmt.Sprintf("%d", len(u.Services)))
		events = append(events, e)
	}

	return GenerateProtosResult{FilesWritten: written, Events: events, Schema: schema, Units: retained}, nil
}

func blacklisted(namespace string, blacklist []string) bool {
	for _, prefix := range blacklist {
		if strings.HasPrefix(namespace, prefix) {
			return true
		}
	}
	return false
}

// loadELFBytes reads path either into the heap or via a read-only mmap,
// returning the bytes and a closer the caller must run once done reading
// them. elfimage.Load never writes through the slice it's given (it copies
// before applying relocations), so a read-only mapping is safe to pass in.
func loadELFBytes(path string, useMmap bool) ([]byte, func() error, error) {
	if !useMmap {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, nil, err
		}
		return raw, func() error { return nil }, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	m, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		f.Close()
		return nil, nil, err
	}
	return []byte(m), func() error {
		defer f.Close()
		return m.Unmap()
	}, nil
}

func resolveLogger(logger *log.Logger) *log.Logger {
	if logger == nil {
		return log.NewNop()
	}
	return logger
}
