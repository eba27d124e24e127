package pipeline

import (
	"errors"
	"testing"

	"github.com/kestrelgs/pb2proto/internal/log"
)

func TestBlacklisted(t *testing.T) {
	blacklist := []string{"Google.Protobuf", "Internal.Debug"}

	cases := map[string]bool{
		"Google.Protobuf.WellKnownTypes": true,
		"Internal.Debug.Tools":           true,
		"Takasho.Schema.Cards":           false,
	}
	for ns, want := range cases {
		if got := blacklisted(ns, blacklist); got != want {
			t.Errorf("blacklisted(%q) = %v, want %v", ns, got, want)
		}
	}
}

func TestResolveLoggerDefaultsToNop(t *testing.T) {
	if got := resolveLogger(nil); got == nil {
		t.Error("resolveLogger(nil) should never return nil")
	}
	existing := log.NewNop()
	if got := resolveLogger(existing); got != existing {
		t.Error("resolveLogger() should pass through a non-nil logger unchanged")
	}
}

func TestWrapStageNilPassthrough(t *testing.T) {
	if err := wrapStage("some stage", nil); err != nil {
		t.Errorf("wrapStage(stage, nil) = %v, want nil", err)
	}
}

func TestWrapStageUnwraps(t *testing.T) {
	err := wrapStage("recover key material", ErrKeyNotFound)
	if !errors.Is(err, ErrKeyNotFound) {
		t.Errorf("wrapStage() should unwrap to ErrKeyNotFound, got %v", err)
	}
	want := "recover key material: key material not found"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}

func TestNewRunIDIsUnique(t *testing.T) {
	a := NewRunID()
	b := NewRunID()
	if a == b {
		t.Error("NewRunID() should not repeat across calls")
	}
}
