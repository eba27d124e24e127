// Package pipeline wires the ELF/key-recovery/metadata/il2cpp/proto
// components into the handful of operations the CLI and TUI expose.
package pipeline

import (
	"errors"
	"fmt"
)

// Distinct sentinel kinds so callers (tests, the CLI boundary) can tell
// input-shape problems apart from structural mismatches found deep inside a
// binary. Each is wrapped with context via fmt.Errorf's %w before it leaves
// this package; only the CLI boundary collapses the chain to a flat string.
var (
	// ErrNotELF means the supplied libil2cpp file does not start with the
	// ELF magic number.
	ErrNotELF = errors.New("not an ELF file")

	// ErrKeyNotFound means the AES key material could not be located in
	// the binary's instruction stream.
	ErrKeyNotFound = errors.New("key material not found")

	// ErrMetadataFormat means the decrypted metadata blob failed its
	// magic/version/table-bounds checks.
	ErrMetadataFormat = errors.New("malformed metadata")

	// ErrPackageNotFound means a requested device package is not
	// installed on the target device.
	ErrPackageNotFound = errors.New("package not found on device")

	// ErrNoDevices means no adb devices are currently attached.
	ErrNoDevices = errors.New("no devices attached")
)

// stageError wraps an underlying error with the pipeline stage it occurred
// in, matching the "Failed to X: {}" context strings the operations this
// package mirrors use throughout.
type stageError struct {
	stage string
	err   error
}

func (e *stageError) Error() string {
	return fmt.Sprintf("%s: %v", e.stage, e.err)
}

func (e *stageError) Unwrap() error {
	return e.err
}

func wrapStage(stage string, err error) error {
	if err == nil {
		return nil
	}
	return &stageError{stage: stage, err: err}
}
