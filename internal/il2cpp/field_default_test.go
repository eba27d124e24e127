package il2cpp

import (
	"encoding/binary"
	"testing"

	"github.com/kestrelgs/pb2proto/internal/metadata"
)

func bitfieldFor(typeEnum TypeEnum) uint32 {
	return uint32(typeEnum) << 16
}

func runtimeTypeRaw(typeEnum TypeEnum) []byte {
	raw := make([]byte, runtimeTypeSize)
	binary.LittleEndian.PutUint32(raw[8:12], bitfieldFor(typeEnum))
	return raw
}

func TestGetFieldDefaultNumeric(t *testing.T) {
	data := make([]byte, 32)
	binary.LittleEndian.PutUint32(data[0:4], 7)               // I4 at offset 0
	data[4] = 1                                                // Boolean at offset 4
	binary.LittleEndian.PutUint64(data[8:16], ^uint64(0))      // U8 at offset 8 (max uint64 -> truncated int32)
	binary.LittleEndian.PutUint16(data[16:18], 300)            // U2 at offset 16

	md := &metadata.Metadata{
		FieldDefaultValues: []metadata.FieldDefaultValue{
			{FieldIndex: 0, TypeIndex: 0, DataIndex: 0},
			{FieldIndex: 1, TypeIndex: 1, DataIndex: 4},
			{FieldIndex: 2, TypeIndex: 2, DataIndex: 8},
			{FieldIndex: 3, TypeIndex: 3, DataIndex: 16},
		},
		FieldAndParameterDefaultValueData: data,
	}

	c := &Il2Cpp{
		Metadata: md,
		Types: []RuntimeType{
			decodeRuntimeType(runtimeTypeRaw(TypeI4)),
			decodeRuntimeType(runtimeTypeRaw(TypeBoolean)),
			decodeRuntimeType(runtimeTypeRaw(TypeU8)),
			decodeRuntimeType(runtimeTypeRaw(TypeU2)),
		},
	}

	if v, err := c.GetFieldDefaultNumeric(0); err != nil || v != 7 {
		t.Errorf("field 0: got (%d, %v), want (7, nil)", v, err)
	}
	if v, err := c.GetFieldDefaultNumeric(1); err != nil || v != 1 {
		t.Errorf("field 1: got (%d, %v), want (1, nil)", v, err)
	}
	if v, err := c.GetFieldDefaultNumeric(2); err != nil || v != -1 {
		t.Errorf("field 2: got (%d, %v), want (-1, nil)", v, err)
	}
	if v, err := c.GetFieldDefaultNumeric(3); err != nil || v != 300 {
		t.Errorf("field 3: got (%d, %v), want (300, nil)", v, err)
	}
	if _, err := c.GetFieldDefaultNumeric(99); err == nil {
		t.Error("expected error for unknown field index")
	}
}

func TestFieldIndices(t *testing.T) {
	td := &metadata.TypeDefinition{FieldStart: 5, FieldCount: 3}
	got := FieldIndices(td)
	want := []int{5, 6, 7}
	if len(got) != len(want) {
		t.Fatalf("FieldIndices() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("FieldIndices()[%d] = %d, want %d", i, got[i], want[i])
		}
	}
}
