// Package metadata parses a decrypted IL2CPP global-metadata blob: a
// magic-guarded, versioned header followed by struct-of-arrays tables whose
// byte offset and byte size are named fields of that header, three heap
// blobs (strings, string literals, default-value data), and a
// variable-length compressed integer encoding used by attribute and
// default-value data.
package metadata

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

const (
	// Magic is the expected header sanity value (int32 -89056337, or
	// 0xFAB11BAF read as an unsigned 32-bit word).
	Magic int32 = -89056337
	// SupportedVersion is the only global-metadata layout this reader understands.
	SupportedVersion int32 = 31
)

// Header mirrors the on-disk Il2CppGlobalMetadataHeader: a magic/version
// pair followed by one (offset, size) pair per table, in table order.
type Header struct {
	Sanity  int32
	Version int32

	StringLiteralOffset, StringLiteralSize                                 int32
	StringLiteralDataOffset, StringLiteralDataSize                         int32
	StringOffset, StringSize                                               int32
	EventsOffset, EventsSize                                               int32
	PropertiesOffset, PropertiesSize                                       int32
	MethodsOffset, MethodsSize                                             int32
	ParameterDefaultValuesOffset, ParameterDefaultValuesSize               int32
	FieldDefaultValuesOffset, FieldDefaultValuesSize                       int32
	FieldAndParameterDefaultValueDataOffset, FieldAndParameterDefaultValueDataSize int32
	FieldMarshaledSizesOffset, FieldMarshaledSizesSize                     int32
	ParametersOffset, ParametersSize                                       int32
	FieldsOffset, FieldsSize                                               int32
	GenericParametersOffset, GenericParametersSize                        int32
	GenericParameterConstraintsOffset, GenericParameterConstraintsSize    int32
	GenericContainersOffset, GenericContainersSize                        int32
	NestedTypesOffset, NestedTypesSize                                    int32
	InterfacesOffset, InterfacesSize                                      int32
	VtableMethodsOffset, VtableMethodsSize                                int32
	InterfaceOffsetsOffset, InterfaceOffsetsSize                          int32
	TypeDefinitionsOffset, TypeDefinitionsSize                            int32
	ImagesOffset, ImagesSize                                              int32
	AssembliesOffset, AssembliesSize                                      int32
	FieldRefsOffset, FieldRefsSize                                        int32
	ReferencedAssembliesOffset, ReferencedAssembliesSize                  int32
	AttributeDataOffset, AttributeDataSize                                int32
	AttributeDataRangeOffset, AttributeDataRangeSize                      int32
	UnresolvedIndirectCallParameterTypesOffset, UnresolvedIndirectCallParameterTypesSize int32
	UnresolvedIndirectCallParameterRangesOffset, UnresolvedIndirectCallParameterRangesSize int32
	WindowsRuntimeTypeNamesOffset, WindowsRuntimeTypeNamesSize            int32
	WindowsRuntimeStringsOffset, WindowsRuntimeStringsSize                int32
	ExportedTypeDefinitionsOffset, ExportedTypeDefinitionsSize            int32
}

// Fixed-size table record layouts, matching IL2CPP's on-disk struct order.

type TypeDefinition struct {
	NameIndex              int32
	NamespaceIndex         int32
	ByvalTypeIndex         int32
	DeclaringTypeIndex     int32
	ParentIndex            int32
	ElementTypeIndex       int32
	GenericContainerIndex  int32
	Flags                  uint32
	FieldStart             int32
	MethodStart            int32
	EventStart             int32
	PropertyStart          int32
	NestedTypesStart       int32
	InterfacesStart        int32
	VtableStart            int32
	InterfaceOffsetsStart  int32
	MethodCount            uint16
	PropertyCount          uint16
	FieldCount             uint16
	EventCount             uint16
	NestedTypeCount        uint16
	VtableCount            uint16
	InterfacesCount        uint16
	InterfaceOffsetsCount  uint16
	Bitfield               uint32
	Token                  uint32
}

// IsEnum reports whether the bitfield's is-enum bit is set (bit 1, the
// second of the packed single-bit type-definition flags).
func (t TypeDefinition) IsEnum() bool {
	return t.Bitfield&(1<<1) != 0
}

type FieldDefinition struct {
	NameIndex int32
	TypeIndex int32
	Token     uint32
}

type MethodDefinition struct {
	NameIndex            int32
	DeclaringType        int32
	ReturnType           int32
	ReturnParameterToken uint32
	ParameterStart       int32
	GenericContainerIndex int32
	Token                uint32
	Flags                uint16
	Iflags               uint16
	Slot                 uint16
	ParameterCount       uint16
}

type ParameterDefinition struct {
	NameIndex int32
	Token     uint32
	TypeIndex int32
}

type EventDefinition struct {
	NameIndex int32
	TypeIndex int32
	Add       int32
	Remove    int32
	Raise     int32
	Token     uint32
}

type PropertyDefinition struct {
	NameIndex int32
	Get       int32
	Set       int32
	Attrs     uint32
	Token     uint32
}

type GenericContainer struct {
	OwnerIndex            int32
	TypeArgc              int32
	IsMethod              int32
	GenericParameterStart int32
}

type GenericParameter struct {
	OwnerIndex       int32
	NameIndex        int32
	ConstraintsStart int16
	ConstraintsCount int16
	Num              uint16
	Flags            uint16
}

type InterfaceOffsetPair struct {
	InterfaceTypeIndex int32
	Offset             int32
}

type FieldRef struct {
	TypeIndex  int32
	FieldIndex int32
}

type FieldDefaultValue struct {
	FieldIndex int32
	TypeIndex  int32
	DataIndex  int32
}

type CustomAttributeDataRange struct {
	Token      uint32
	StartOffset uint32
}

type AssemblyNameDefinition struct {
	NameIndex       int32
	CultureIndex    int32
	PublicKeyIndex  int32
	HashAlg         uint32
	HashLen         int32
	Flags           uint32
	Major           int32
	Minor           int32
	Build           int32
	Revision        int32
	PublicKeyToken  [8]byte
}

type ImageDefinition struct {
	NameIndex             int32
	AssemblyIndex         int32
	TypeStart             int32
	TypeCount             uint32
	ExportedTypeStart     int32
	ExportedTypeCount     uint32
	EntryPointIndex       int32
	Token                 uint32
	CustomAttributeStart  int32
	CustomAttributeCount  uint32
}

type AssemblyDefinition struct {
	ImageIndex               int32
	Token                    uint32
	ReferencedAssemblyStart  int32
	ReferencedAssemblyCount  int32
	Name                     AssemblyNameDefinition
}

// Metadata is a parsed, immutable global-metadata blob: the header, the raw
// table slices it describes, and a cache over the string heap.
type Metadata struct {
	Header Header

	StringLiteral                           []byte
	StringLiteralData                       []byte
	stringData                              []byte
	FieldAndParameterDefaultValueData       []byte
	AttributeData                           []byte
	UnresolvedIndirectCallParameterTypes    []byte
	UnresolvedIndirectCallParameterRanges   []byte
	WindowsRuntimeTypeNames                 []byte
	WindowsRuntimeStrings                   []byte

	Events                       []EventDefinition
	Properties                   []PropertyDefinition
	Methods                      []MethodDefinition
	FieldDefaultValues           []FieldDefaultValue
	Parameters                   []ParameterDefinition
	Fields                       []FieldDefinition
	GenericParameters            []GenericParameter
	GenericParameterConstraints  []int32
	GenericContainers            []GenericContainer
	NestedTypes                  []int32
	Interfaces                   []int32
	VtableMethods                []uint32
	InterfaceOffsets             []InterfaceOffsetPair
	TypeDefinitions              []TypeDefinition
	Images                       []ImageDefinition
	Assemblies                   []AssemblyDefinition
	FieldRefs                    []FieldRef
	ReferencedAssemblies         []int32
	AttributeDataRange           []CustomAttributeDataRange
	ExportedTypeDefinitions      []int32

	cachedStrings             map[int32]string
	fieldDefaultValuesByField map[int32]FieldDefaultValue
}

// Load parses a decrypted global-metadata blob.
func Load(data []byte) (*Metadata, error) {
	if len(data) < 8 {
		return nil, fmt.Errorf("metadata: blob too short for header")
	}

	var h Header
	if err := binary.Read(bytes.NewReader(data), binary.LittleEndian, &h); err != nil {
		return nil, fmt.Errorf("metadata: read header: %w", err)
	}
	if h.Sanity != Magic {
		return nil, fmt.Errorf("metadata: bad sanity value 0x%08X", uint32(h.Sanity))
	}
	if h.Version != SupportedVersion {
		return nil, fmt.Errorf("metadata: unsupported version %d (want %d)", h.Version, SupportedVersion)
	}

	m := &Metadata{Header: h}

	var err error
	if m.StringLiteral, err = rawTable(data, h.StringLiteralOffset, h.StringLiteralSize); err != nil {
		return nil, fmt.Errorf("metadata: stringLiteral: %w", err)
	}
	if m.StringLiteralData, err = rawTable(data, h.StringLiteralDataOffset, h.StringLiteralDataSize); err != nil {
		return nil, fmt.Errorf("metadata: stringLiteralData: %w", err)
	}
	if m.stringData, err = rawTable(data, h.StringOffset, h.StringSize); err != nil {
		return nil, fmt.Errorf("metadata: string: %w", err)
	}
	m.cachedStrings = extractNullTerminatedStrings(m.stringData)

	if m.Events, err = decodeTable[EventDefinition](data, h.EventsOffset, h.EventsSize); err != nil {
		return nil, fmt.Errorf("metadata: events: %w", err)
	}
	if m.Properties, err = decodeTable[PropertyDefinition](data, h.PropertiesOffset, h.PropertiesSize); err != nil {
		return nil, fmt.Errorf("metadata: properties: %w", err)
	}
	if m.Methods, err = decodeTable[MethodDefinition](data, h.MethodsOffset, h.MethodsSize); err != nil {
		return nil, fmt.Errorf("metadata: methods: %w", err)
	}
	if m.FieldDefaultValues, err = decodeTable[FieldDefaultValue](data, h.FieldDefaultValuesOffset, h.FieldDefaultValuesSize); err != nil {
		return nil, fmt.Errorf("metadata: fieldDefaultValues: %w", err)
	}
	if m.FieldAndParameterDefaultValueData, err = rawTable(data, h.FieldAndParameterDefaultValueDataOffset, h.FieldAndParameterDefaultValueDataSize); err != nil {
		return nil, fmt.Errorf("metadata: fieldAndParameterDefaultValueData: %w", err)
	}
	if m.Parameters, err = decodeTable[ParameterDefinition](data, h.ParametersOffset, h.ParametersSize); err != nil {
		return nil, fmt.Errorf("metadata: parameters: %w", err)
	}
	if m.Fields, err = decodeTable[FieldDefinition](data, h.FieldsOffset, h.FieldsSize); err != nil {
		return nil, fmt.Errorf("metadata: fields: %w", err)
	}
	if m.GenericParameters, err = decodeTable[GenericParameter](data, h.GenericParametersOffset, h.GenericParametersSize); err != nil {
		return nil, fmt.Errorf("metadata: genericParameters: %w", err)
	}
	if m.GenericParameterConstraints, err = decodeTable[int32](data, h.GenericParameterConstraintsOffset, h.GenericParameterConstraintsSize); err != nil {
		return nil, fmt.Errorf("metadata: genericParameterConstraints: %w", err)
	}
	if m.GenericContainers, err = decodeTable[GenericContainer](data, h.GenericContainersOffset, h.GenericContainersSize); err != nil {
		return nil, fmt.Errorf("metadata: genericContainers: %w", err)
	}
	if m.NestedTypes, err = decodeTable[int32](data, h.NestedTypesOffset, h.NestedTypesSize); err != nil {
		return nil, fmt.Errorf("metadata: nestedTypes: %w", err)
	}
	if m.Interfaces, err = decodeTable[int32](data, h.InterfacesOffset, h.InterfacesSize); err != nil {
		return nil, fmt.Errorf("metadata: interfaces: %w", err)
	}
	if m.VtableMethods, err = decodeTable[uint32](data, h.VtableMethodsOffset, h.VtableMethodsSize); err != nil {
		return nil, fmt.Errorf("metadata: vtableMethods: %w", err)
	}
	if m.InterfaceOffsets, err = decodeTable[InterfaceOffsetPair](data, h.InterfaceOffsetsOffset, h.InterfaceOffsetsSize); err != nil {
		return nil, fmt.Errorf("metadata: interfaceOffsets: %w", err)
	}
	if m.TypeDefinitions, err = decodeTable[TypeDefinition](data, h.TypeDefinitionsOffset, h.TypeDefinitionsSize); err != nil {
		return nil, fmt.Errorf("metadata: typeDefinitions: %w", err)
	}
	if m.Images, err = decodeTable[ImageDefinition](data, h.ImagesOffset, h.ImagesSize); err != nil {
		return nil, fmt.Errorf("metadata: images: %w", err)
	}
	if m.Assemblies, err = decodeTable[AssemblyDefinition](data, h.AssembliesOffset, h.AssembliesSize); err != nil {
		return nil, fmt.Errorf("metadata: assemblies: %w", err)
	}
	if m.FieldRefs, err = decodeTable[FieldRef](data, h.FieldRefsOffset, h.FieldRefsSize); err != nil {
		return nil, fmt.Errorf("metadata: fieldRefs: %w", err)
	}
	if m.ReferencedAssemblies, err = decodeTable[int32](data, h.ReferencedAssembliesOffset, h.ReferencedAssembliesSize); err != nil {
		return nil, fmt.Errorf("metadata: referencedAssemblies: %w", err)
	}
	if m.AttributeData, err = rawTable(data, h.AttributeDataOffset, h.AttributeDataSize); err != nil {
		return nil, fmt.Errorf("metadata: attributeData: %w", err)
	}
	if m.AttributeDataRange, err = decodeTable[CustomAttributeDataRange](data, h.AttributeDataRangeOffset, h.AttributeDataRangeSize); err != nil {
		return nil, fmt.Errorf("metadata: attributeDataRange: %w", err)
	}
	if m.UnresolvedIndirectCallParameterTypes, err = rawTable(data, h.UnresolvedIndirectCallParameterTypesOffset, h.UnresolvedIndirectCallParameterTypesSize); err != nil {
		return nil, fmt.Errorf("metadata: unresolvedIndirectCallParameterTypes: %w", err)
	}
	if m.UnresolvedIndirectCallParameterRanges, err = rawTable(data, h.UnresolvedIndirectCallParameterRangesOffset, h.UnresolvedIndirectCallParameterRangesSize); err != nil {
		return nil, fmt.Errorf("metadata: unresolvedIndirectCallParameterRanges: %w", err)
	}
	if m.WindowsRuntimeTypeNames, err = rawTable(data, h.WindowsRuntimeTypeNamesOffset, h.WindowsRuntimeTypeNamesSize); err != nil {
		return nil, fmt.Errorf("metadata: windowsRuntimeTypeNames: %w", err)
	}
	if m.WindowsRuntimeStrings, err = rawTable(data, h.WindowsRuntimeStringsOffset, h.WindowsRuntimeStringsSize); err != nil {
		return nil, fmt.Errorf("metadata: windowsRuntimeStrings: %w", err)
	}
	if m.ExportedTypeDefinitions, err = decodeTable[int32](data, h.ExportedTypeDefinitionsOffset, h.ExportedTypeDefinitionsSize); err != nil {
		return nil, fmt.Errorf("metadata: exportedTypeDefinitions: %w", err)
	}

	return m, nil
}

// rawTable slices [offset, offset+size) out of data without interpretation.
func rawTable(data []byte, offset, size int32) ([]byte, error) {
	if size == 0 {
		return nil, nil
	}
	start, end := int(offset), int(offset)+int(size)
	if start < 0 || end > len(data) {
		return nil, fmt.Errorf("table range [%d, %d) out of bounds (blob is %d bytes)", start, end, len(data))
	}
	return data[start:end], nil
}

// decodeTable slices [offset, offset+size) and reinterprets it as a packed
// array of T, failing if size is not a multiple of T's on-disk record size.
func decodeTable[T any](data []byte, offset, size int32) ([]T, error) {
	raw, err := rawTable(data, offset, size)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, nil
	}

	var probe T
	recordSize := binary.Size(probe)
	if recordSize <= 0 {
		return nil, fmt.Errorf("record type has no fixed on-disk size")
	}
	if len(raw)%recordSize != 0 {
		return nil, fmt.Errorf("table size %d is not a multiple of record size %d", len(raw), recordSize)
	}

	out := make([]T, len(raw)/recordSize)
	if err := binary.Read(bytes.NewReader(raw), binary.LittleEndian, &out); err != nil {
		return nil, fmt.Errorf("decode records: %w", err)
	}
	return out, nil
}

// extractNullTerminatedStrings walks the string heap once, recording every
// starting offset and the NUL-terminated string beginning there.
func extractNullTerminatedStrings(data []byte) map[int32]string {
	strings := make(map[int32]string)
	pos := 0
	for pos < len(data) {
		end := bytes.IndexByte(data[pos:], 0)
		if end < 0 {
			break
		}
		strings[int32(pos)] = string(data[pos : pos+end])
		pos += end + 1
	}
	return strings
}

// FieldDefaultValue looks up the default-value record for a field by its
// index into the Fields table, building the lookup map on first use.
func (m *Metadata) FieldDefaultValue(fieldIndex int32) (FieldDefaultValue, bool) {
	if m.fieldDefaultValuesByField == nil {
		idx := make(map[int32]FieldDefaultValue, len(m.FieldDefaultValues))
		for _, fdv := range m.FieldDefaultValues {
			idx[fdv.FieldIndex] = fdv
		}
		m.fieldDefaultValuesByField = idx
	}
	fdv, ok := m.fieldDefaultValuesByField[fieldIndex]
	return fdv, ok
}

// ReadI32 reads a little-endian int32 from the default-value data blob at
// offset.
func (m *Metadata) ReadI32(data []byte, offset int) int32 {
	return int32(binary.LittleEndian.Uint32(data[offset : offset+4]))
}

// ReadU8, ReadU16, ReadU32, ReadI64, and ReadU64 mirror ReadI32 for the
// other fixed-width primitive encodings a default-value blob can carry.
func (m *Metadata) ReadU8(data []byte, offset int) uint8 { return data[offset] }

func (m *Metadata) ReadU16(data []byte, offset int) uint16 {
	return binary.LittleEndian.Uint16(data[offset : offset+2])
}

func (m *Metadata) ReadU32(data []byte, offset int) uint32 {
	return binary.LittleEndian.Uint32(data[offset : offset+4])
}

func (m *Metadata) ReadI64(data []byte, offset int) int64 {
	return int64(binary.LittleEndian.Uint64(data[offset : offset+8]))
}

func (m *Metadata) ReadU64(data []byte, offset int) uint64 {
	return binary.LittleEndian.Uint64(data[offset : offset+8])
}

// GetString resolves a string-heap index, falling back to a bytewise scan
// for indices that don't fall on a cached string boundary.
func (m *Metadata) GetString(index int32) string {
	if s, ok := m.cachedStrings[index]; ok {
		return s
	}
	if index < 0 || int(index) >= len(m.stringData) {
		return ""
	}
	end := bytes.IndexByte(m.stringData[index:], 0)
	if end < 0 {
		end = len(m.stringData) - int(index)
	}
	return string(m.stringData[index : int(index)+end])
}

// ReadCompressedU32 decodes IL2CPP's variable-length unsigned integer
// encoding starting at offset, per the discriminant ranges of the leading
// byte. It does not report how many bytes were consumed; callers that need
// that use ReadCompressedU32Size.
func ReadCompressedU32(data []byte, offset int) uint32 {
	v, _ := readCompressedU32(data, offset)
	return v
}

// ReadCompressedU32Size decodes the same value as ReadCompressedU32 and
// additionally reports how many bytes the encoding consumed.
func ReadCompressedU32Size(data []byte, offset int) (value uint32, size int) {
	return readCompressedU32(data, offset)
}

func readCompressedU32(data []byte, offset int) (uint32, int) {
	first := data[offset]
	switch {
	case first < 0x80:
		return uint32(first), 1
	case first < 0xC0:
		return (uint32(first&0x7F) << 8) | uint32(data[offset+1]), 2
	case first < 0xE0:
		b1, b2, b3 := uint32(data[offset+1]), uint32(data[offset+2]), uint32(data[offset+3])
		return (uint32(first&0x3F) << 24) | (b1 << 16) | (b2 << 8) | b3, 4
	case first == 0xF0:
		b1, b2, b3, b4 := uint32(data[offset+1]), uint32(data[offset+2]), uint32(data[offset+3]), uint32(data[offset+4])
		return (b1 << 24) | (b2 << 16) | (b3 << 8) | b4, 5
	case first == 0xFE:
		return ^uint32(0) - 1, 1
	case first == 0xFF:
		return ^uint32(0), 1
	default:
		panic(fmt.Sprintf("metadata: invalid compressed integer leading byte 0x%02X", first))
	}
}

// ReadCompressedI32 decodes the zig-zag signed variant of the compressed
// integer encoding.
func ReadCompressedI32(data []byte, offset int) int32 {
	encoded := ReadCompressedU32(data, offset)
	if encoded == ^uint32(0) {
		return -1 << 31
	}
	return int32(encoded>>1) ^ -int32(encoded&1)
}
