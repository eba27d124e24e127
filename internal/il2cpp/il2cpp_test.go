package il2cpp

import (
	"encoding/binary"
	"testing"
)

func int32p(v int32) *int32 { return &v }
func strp(s string) *string { return &s }

func TestDecodeRuntimeTypeBitfield(t *testing.T) {
	raw := make([]byte, runtimeTypeSize)
	binary.LittleEndian.PutUint64(raw[0:8], 0xdeadbeef)

	// attrs=0x1234, type=TypeClass(18), numMods=3, byref=1, pinned=0, valuetype=1
	var bitfield uint32
	bitfield |= 0x1234
	bitfield |= uint32(TypeClass) << 16
	bitfield |= 3 << 24
	bitfield |= 1 << 29
	bitfield |= 0 << 30
	bitfield |= 1 << 31
	binary.LittleEndian.PutUint32(raw[8:12], bitfield)

	rt := decodeRuntimeType(raw)

	if rt.Data != 0xdeadbeef {
		t.Fatalf("Data = 0x%x, want 0xdeadbeef", rt.Data)
	}
	if rt.Attrs() != 0x1234 {
		t.Errorf("Attrs() = 0x%x, want 0x1234", rt.Attrs())
	}
	if rt.Type() != TypeClass {
		t.Errorf("Type() = %d, want %d", rt.Type(), TypeClass)
	}
	if rt.NumMods() != 3 {
		t.Errorf("NumMods() = %d, want 3", rt.NumMods())
	}
	if !rt.Byref() {
		t.Error("Byref() = false, want true")
	}
	if rt.Pinned() {
		t.Error("Pinned() = true, want false")
	}
	if !rt.ValueType() {
		t.Error("ValueType() = false, want true")
	}
	if uint32(rt.klassIndex()) != 0xdeadbeef {
		t.Errorf("klassIndex() = 0x%x, want 0xdeadbeef", uint32(rt.klassIndex()))
	}
}

func TestTypeByPtr(t *testing.T) {
	c := &Il2Cpp{typeByVA: map[uint64]int{0x1000: 0, 0x2000: 1}}

	if idx, ok := c.TypeByPtr(0x2000); !ok || idx != 1 {
		t.Errorf("TypeByPtr(0x2000) = (%d, %v), want (1, true)", idx, ok)
	}
	if _, ok := c.TypeByPtr(0x3000); ok {
		t.Error("TypeByPtr(0x3000) should miss")
	}
}

func TestComplexTypeStringAndNameStr(t *testing.T) {
	inner := simple(strp("Takasho.Schema"), &Namespace{Simple: "Takasho.Schema"}, "Card", int32p(7))
	ptr := ComplexType{Kind: KindPointer, Inner: &inner}
	arr := ComplexType{Kind: KindArray, Inner: &inner}
	gen := ComplexType{Kind: KindGeneric, Base: &ComplexType{Kind: KindSimple, Name: "RepeatedField"}, Args: []ComplexType{inner}}

	if got := inner.String(); got != "Takasho.Schema.Card" {
		t.Errorf("inner.String() = %q, want %q", got, "Takasho.Schema.Card")
	}
	if got := ptr.String(); got != "Takasho.Schema.Card*" {
		t.Errorf("ptr.String() = %q, want %q", got, "Takasho.Schema.Card*")
	}
	if got := arr.String(); got != "Takasho.Schema.Card[]" {
		t.Errorf("arr.String() = %q, want %q", got, "Takasho.Schema.Card[]")
	}
	if got := gen.String(); got != "RepeatedField<Takasho.Schema.Card>" {
		t.Errorf("gen.String() = %q, want %q", got, "RepeatedField<Takasho.Schema.Card>")
	}

	if got := inner.GetNameStr(false); got != "Card" {
		t.Errorf("GetNameStr(false) = %q, want %q", got, "Card")
	}
	if got := inner.GetNameStr(true); got != "Takasho.Schema.Card" {
		t.Errorf("GetNameStr(true) = %q, want %q", got, "Takasho.Schema.Card")
	}
}

func TestComplexTypeGetRootNamespace(t *testing.T) {
	noNamespace := simple(nil, nil, "Outer", int32p(1))
	if got := noNamespace.GetRootNamespace(); got == nil || *got != "Outer" {
		t.Errorf("GetRootNamespace() for unnamespaced type = %v, want \"Outer\"", got)
	}

	withSimpleNamespace := simple(nil, &Namespace{Simple: "Takasho.Schema"}, "Card", int32p(2))
	if got := withSimpleNamespace.GetRootNamespace(); got == nil || *got != "Takasho.Schema" {
		t.Errorf("GetRootNamespace() = %v, want \"Takasho.Schema\"", got)
	}

	nestedOuter := simple(nil, &Namespace{Simple: "Takasho.Schema"}, "Outer", int32p(3))
	withComplexNamespace := simple(nil, &Namespace{Complex: &nestedOuter}, "Inner", int32p(4))
	if got := withComplexNamespace.GetRootNamespace(); got == nil || *got != "Takasho.Schema" {
		t.Errorf("GetRootNamespace() through complex namespace = %v, want \"Takasho.Schema\"", got)
	}

	ptr := ComplexType{Kind: KindPointer, Inner: &withSimpleNamespace}
	if got := ptr.GetRootNamespace(); got == nil || *got != "Takasho.Schema" {
		t.Errorf("GetRootNamespace() through pointer = %v, want \"Takasho.Schema\"", got)
	}
}

func TestComplexTypeGetTypeIndex(t *testing.T) {
	s := simple(nil, nil, "Card", int32p(42))
	if got := s.GetTypeIndex(); got == nil || *got != 42 {
		t.Errorf("GetTypeIndex() = %v, want 42", got)
	}

	ptr := ComplexType{Kind: KindPointer, Inner: &s}
	if got := ptr.GetTypeIndex(); got == nil || *got != 42 {
		t.Errorf("GetTypeIndex() through pointer = %v, want 42", got)
	}

	gen := ComplexType{Kind: KindGeneric, Base: &ComplexType{Kind: KindSimple, Name: "RepeatedField"}, Args: []ComplexType{s}}
	if got := gen.GetTypeIndex(); got != nil {
		t.Errorf("GetTypeIndex() on generic = %v, want nil", got)
	}
}

func TestArgsNameStrAndModuleName(t *testing.T) {
	a := simple(strp("Takasho.Schema"), nil, "Card", int32p(1))
	b := simple(nil, nil, "int32", nil)

	if got := ArgsNameStr([]ComplexType{a, b}, false); got != "Card, int32" {
		t.Errorf("ArgsNameStr() = %q, want %q", got, "Card, int32")
	}

	if got := ArgsModuleName([]ComplexType{b, a}); got == nil || *got != "Takasho.Schema" {
		t.Errorf("ArgsModuleName() = %v, want \"Takasho.Schema\"", got)
	}
	if got := ArgsModuleName([]ComplexType{b}); got != nil {
		t.Errorf("ArgsModuleName() with no module = %v, want nil", got)
	}
}
