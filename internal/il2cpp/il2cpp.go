// Package il2cpp reconstructs the runtime IL2CPP type model from a
// relocated ELF image and its decrypted global-metadata: it locates the
// code and metadata registration structures, builds the runtime
// Il2CppType array they point at, and classifies any such type into a
// ComplexType expression (simple, pointer, array, or generic instance).
package il2cpp

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/kestrelgs/pb2proto/internal/elfimage"
	"github.com/kestrelgs/pb2proto/internal/metadata"
)

// TypeEnum mirrors the runtime IL2CPP_TYPE_* discriminant packed into a
// RuntimeType's bitfield.
type TypeEnum uint8

const (
	TypeEnd         TypeEnum = 0
	TypeVoid        TypeEnum = 1
	TypeBoolean     TypeEnum = 2
	TypeChar        TypeEnum = 3
	TypeI1          TypeEnum = 4
	TypeU1          TypeEnum = 5
	TypeI2          TypeEnum = 6
	TypeU2          TypeEnum = 7
	TypeI4          TypeEnum = 8
	TypeU4          TypeEnum = 9
	TypeI8          TypeEnum = 10
	TypeU8          TypeEnum = 11
	TypeR4          TypeEnum = 12
	TypeR8          TypeEnum = 13
	TypeString      TypeEnum = 14
	TypePtr         TypeEnum = 15
	TypeByref       TypeEnum = 16
	TypeValueType   TypeEnum = 17
	TypeClass       TypeEnum = 18
	TypeVar         TypeEnum = 19
	TypeArray       TypeEnum = 20
	TypeGenericInst TypeEnum = 21
	TypeTypedByref  TypeEnum = 22
	TypeI           TypeEnum = 24
	TypeU           TypeEnum = 25
	TypeFnPtr       TypeEnum = 27
	TypeObject      TypeEnum = 28
	TypeSzArray     TypeEnum = 29
	TypeMVar        TypeEnum = 30
	TypeCModReqd    TypeEnum = 31
	TypeCModOpt     TypeEnum = 32
	TypeInternal    TypeEnum = 33
	TypeModifier    TypeEnum = 64
	TypeSentinel    TypeEnum = 65
	TypePinned      TypeEnum = 69
	TypeEnumType    TypeEnum = 85
	TypeIndexType   TypeEnum = 255
)

// primitiveNames gives the canonical CLR keyword spelling for every
// IL2CPP primitive type enum that GetComplexType's default branch needs
// to name directly, rather than resolving through the type-definition
// table.
var primitiveNames = map[TypeEnum]string{
	TypeVoid:       "void",
	TypeBoolean:    "bool",
	TypeChar:       "char",
	TypeI1:         "sbyte",
	TypeU1:         "byte",
	TypeI2:         "short",
	TypeU2:         "ushort",
	TypeI4:         "int",
	TypeU4:         "uint",
	TypeI8:         "long",
	TypeU8:         "ulong",
	TypeR4:         "float",
	TypeR8:         "double",
	TypeString:     "string",
	TypeTypedByref: "TypedReference",
	TypeI:          "IntPtr",
	TypeU:          "UIntPtr",
	TypeObject:     "object",
}

// RuntimeType mirrors the 16-byte runtime Il2CppType record: an 8-byte
// union, interpreted per Type(), followed by a 4-byte packed bitfield and
// 4 bytes of padding.
type RuntimeType struct {
	Data     uint64
	bitfield uint32
}

const runtimeTypeSize = 16

func decodeRuntimeType(raw []byte) RuntimeType {
	return RuntimeType{
		Data:     binary.LittleEndian.Uint64(raw[0:8]),
		bitfield: binary.LittleEndian.Uint32(raw[8:12]),
	}
}

func bitRange(v uint32, offset, width uint) uint32 {
	return (v >> offset) & ((1 << width) - 1)
}

// Attrs returns the packed field attribute flags (bits 0-15).
func (t RuntimeType) Attrs() uint16 { return uint16(bitRange(t.bitfield, 0, 16)) }

// Type returns the IL2CPP_TYPE_* discriminant (bits 16-23).
func (t RuntimeType) Type() TypeEnum { return TypeEnum(bitRange(t.bitfield, 16, 8)) }

// NumMods returns the packed custom-modifier count (bits 24-28).
func (t RuntimeType) NumMods() uint8 { return uint8(bitRange(t.bitfield, 24, 5)) }

// Byref reports the by-reference bit (29).
func (t RuntimeType) Byref() bool { return bitRange(t.bitfield, 29, 1) != 0 }

// Pinned reports the pinned-local bit (30).
func (t RuntimeType) Pinned() bool { return bitRange(t.bitfield, 30, 1) != 0 }

// ValueType reports the value-type bit (31).
func (t RuntimeType) ValueType() bool { return bitRange(t.bitfield, 31, 1) != 0 }

// klassIndex interprets Data as the union's __klassIndex member (CLASS,
// VALUETYPE).
func (t RuntimeType) klassIndex() int32 { return int32(t.Data) }

// genericParameterIndex interprets Data as the union's
// __genericParameterIndex member (VAR, MVAR).
func (t RuntimeType) genericParameterIndex() int32 { return int32(t.Data) }

// Il2Cpp is a resolved runtime type model: the relocated image, its
// decrypted metadata, and the runtime Il2CppType array the metadata
// registration structure points at.
type Il2Cpp struct {
	Image    *elfimage.Image
	Metadata *metadata.Metadata

	Types    []RuntimeType
	typeVAs  []uint64
	typeByVA map[uint64]int
}

// ErrRegistrationNotFound is returned when neither the code nor the
// metadata registration structure can be located in the image.
var ErrRegistrationNotFound = errors.New("il2cpp: could not locate a registration structure")

const pointerSize = 8

// Load locates the code and metadata registration structures inside img
// and builds the runtime type array they describe.
func Load(img *elfimage.Image, md *metadata.Metadata) (*Il2Cpp, error) {
	if _, err := FindCodeRegistration(img, md); err != nil {
		return nil, fmt.Errorf("il2cpp: %w", err)
	}

	typesVA, typesCount, err := FindMetadataRegistration(img, md)
	if err != nil {
		return nil, fmt.Errorf("il2cpp: %w", err)
	}

	typePointers := img.ReadPointerArray(typesVA, int(typesCount))
	types := make([]RuntimeType, 0, len(typePointers))
	typeByVA := make(map[uint64]int, len(typePointers))

	for idx, ptr := range typePointers {
		raw, ok := img.ReadBytesAtVA(ptr, runtimeTypeSize)
		if !ok {
			return nil, fmt.Errorf("il2cpp: type %d: unreadable Il2CppType at VA 0x%x", idx, ptr)
		}
		typeByVA[ptr] = len(types)
		types = append(types, decodeRuntimeType(raw))
	}

	return &Il2Cpp{
		Image:    img,
		Metadata: md,
		Types:    types,
		typeVAs:  typePointers,
		typeByVA: typeByVA,
	}, nil
}

// TypeByPtr resolves a runtime Il2CppType pointer to its index in Types.
func (c *Il2Cpp) TypeByPtr(ptr uint64) (int, bool) {
	idx, ok := c.typeByVA[ptr]
	return idx, ok
}

func saturatingSub(a, b uint64) uint64 {
	if b > a {
		return 0
	}
	return a - b
}

// Layout offsets for Il2CppCodeRegistration on a 64-bit target: a
// monotonically growing sequence of 4-byte counts, each immediately
// followed by an 8-byte pointer that the C compiler pads to an 8-byte
// boundary.
const (
	codeRegistrationSize          = 136
	codeRegistrationModulesCountOff = 120
	codeRegistrationModulesOff      = 128
)

// FindCodeRegistration locates the Il2CppCodeRegistration structure by
// following the relocation chain rooted at the "mscorlib.dll\0" image
// name string: that literal is referenced once from the code-gen module
// table, and that reference is referenced again from the registration's
// codeGenModules field, offset by the index of "mscorlib.dll" within the
// lexicographically sorted image name list.
func FindCodeRegistration(img *elfimage.Image, md *metadata.Metadata) (codeGenModulesCount uint32, err error) {
	mscorlibFileOffsets := img.SearchPattern([]byte("mscorlib.dll\x00"))

	var mscorlibVAs []uint64
	for _, off := range mscorlibFileOffsets {
		if va, ok := img.FileOffsetToVA(uint64(off)); ok {
			mscorlibVAs = append(mscorlibVAs, va)
		}
	}
	if len(mscorlibVAs) == 0 {
		return 0, errors.New("no occurrences of \"mscorlib.dll\" found in image")
	}

	var mscorlibRefs []uint64
	for _, va := range mscorlibVAs {
		mscorlibRefs = append(mscorlibRefs, img.ReverseRelocations(int64(va))...)
	}
	if len(mscorlibRefs) == 0 {
		return 0, errors.New("no references to \"mscorlib.dll\" found")
	}

	var secondLevelRefs []uint64
	for _, ref := range mscorlibRefs {
		secondLevelRefs = append(secondLevelRefs, img.ReverseRelocations(int64(ref))...)
	}
	if len(secondLevelRefs) == 0 {
		return 0, errors.New("no second-level references found")
	}

	imageNames := make([]string, len(md.Images))
	for i, image := range md.Images {
		imageNames[i] = md.GetString(image.NameIndex)
	}
	sortedNames := append([]string(nil), imageNames...)
	sort.Strings(sortedNames)

	mscorlibIdx := sort.SearchStrings(sortedNames, "mscorlib.dll")
	if mscorlibIdx == len(sortedNames) || sortedNames[mscorlibIdx] != "mscorlib.dll" {
		return 0, errors.New("mscorlib.dll not found in metadata images")
	}

	imagesRefStart := uint64(mscorlibIdx) * pointerSize

	var candidateBases []uint64
	for _, ref := range secondLevelRefs {
		base := ref - imagesRefStart
		candidateBases = append(candidateBases, img.ReverseRelocations(int64(base))...)
	}

	totalImageCount := uint32(len(imageNames))
	for _, candidateVA := range candidateBases {
		structStart := saturatingSub(candidateVA, codeRegistrationModulesOff)
		regBytes, ok := img.ReadBytesAtVA(structStart, codeRegistrationSize)
		if !ok {
			continue
		}
		count := binary.LittleEndian.Uint32(regBytes[codeRegistrationModulesCountOff:])
		if count == totalImageCount {
			return count, nil
		}
	}

	return 0, fmt.Errorf("%w: code registration", ErrRegistrationNotFound)
}

// Layout offsets for Il2CppMetadataRegistration on a 64-bit target, under
// the same count-then-padded-pointer rule as the code registration.
const (
	metadataRegistrationSize         = 128
	metadataRegistrationTypesCountOff = 48
	metadataRegistrationTypesOff      = 56
	metadataRegistrationSizesCountOff = 96
	metadataRegistrationSizesOff      = 104
)

// FindMetadataRegistration locates the Il2CppMetadataRegistration
// structure by scanning for the type-definition count (an 8-byte
// little-endian value that equals len(md.TypeDefinitions)) written
// immediately before the typeDefinitionsSizes pointer, then walking back
// by that field's struct offset to the structure base.
func FindMetadataRegistration(img *elfimage.Image, md *metadata.Metadata) (typesVA uint64, typesCount int32, err error) {
	pattern := make([]byte, 8)
	binary.LittleEndian.PutUint64(pattern, uint64(len(md.TypeDefinitions)))

	fieldCountFileOffsets := img.SearchPattern(pattern)

	type candidate struct {
		structStart       uint64
		typesVA           uint64
		typesCount        int32
		sizesVA           uint64
		sizesCount        int32
	}

	var candidates []candidate
	for _, fieldCountOffset := range fieldCountFileOffsets {
		typeCountOffset := uint64(fieldCountOffset) + pointerSize*2
		va, ok := img.FileOffsetToVA(typeCountOffset)
		if !ok {
			continue
		}
		raw, ok := img.ReadBytesAtVA(va, len(pattern))
		if !ok || !bytes.Equal(raw, pattern) {
			continue
		}

		structStart := saturatingSub(va, metadataRegistrationSizesCountOff)
		regBytes, ok := img.ReadBytesAtVA(structStart, metadataRegistrationSize)
		if !ok {
			continue
		}

		candidates = append(candidates, candidate{
			structStart: structStart,
			typesVA:     binary.LittleEndian.Uint64(regBytes[metadataRegistrationTypesOff:]),
			typesCount:  int32(binary.LittleEndian.Uint32(regBytes[metadataRegistrationTypesCountOff:])),
			sizesVA:     binary.LittleEndian.Uint64(regBytes[metadataRegistrationSizesOff:]),
			sizesCount:  int32(binary.LittleEndian.Uint32(regBytes[metadataRegistrationSizesCountOff:])),
		})
	}

	switch len(candidates) {
	case 0:
		return 0, 0, fmt.Errorf("%w: metadata registration", ErrRegistrationNotFound)
	case 1:
		return candidates[0].typesVA, candidates[0].typesCount, nil
	default:
		for _, c := range candidates {
			if !img.IsValidPointer(c.sizesVA) {
				continue
			}
			sizePtrs := img.ReadPointerArray(c.sizesVA, int(c.sizesCount))

			anyInvalid := false
			for _, p := range sizePtrs {
				if !img.IsValidPointer(p) {
					anyInvalid = true
					break
				}
			}
			// Disambiguates between multiple field-count matches: a
			// genuine registration's typeDefinitionsSizes array holds
			// per-module pointers that aren't all resolvable from this
			// image alone, so the tie-break keeps the candidate with at
			// least one unresolvable entry.
			if !anyInvalid {
				continue
			}
			return c.typesVA, c.typesCount, nil
		}
		return 0, 0, fmt.Errorf("%w: metadata registration", ErrRegistrationNotFound)
	}
}

// ComplexTypeKind discriminates the ComplexType expression shapes a
// runtime type can resolve to.
type ComplexTypeKind int

const (
	KindSimple ComplexTypeKind = iota
	KindPointer
	KindArray
	KindGeneric
)

// Namespace is either a plain dotted string or another ComplexType (for
// nested-type namespaces formed from the declaring type's own name).
type Namespace struct {
	Simple  string
	Complex *ComplexType
}

func (n *Namespace) String() string {
	if n == nil {
		return ""
	}
	if n.Complex != nil {
		return n.Complex.String()
	}
	return n.Simple
}

// ComplexType is a reconstructed CLR type expression: a named simple
// type, a pointer or array wrapping an inner type, or a generic
// instantiation of a base type over argument types.
type ComplexType struct {
	Kind ComplexTypeKind

	// Simple
	Module    *string
	Namespace *Namespace
	Name      string
	TypeIndex *int32

	// Pointer, Array
	Inner *ComplexType

	// Generic
	Base *ComplexType
	Args []ComplexType
}

// String renders the type's qualified name, matching the original's
// Display impl: "namespace.Name" for a simple type, "Inner*" for a
// pointer, "Inner[]" for an array, "Base<Args>" for a generic instance.
func (c ComplexType) String() string {
	switch c.Kind {
	case KindSimple:
		if c.Namespace != nil {
			return fmt.Sprintf("%s.%s", c.Namespace.String(), c.Name)
		}
		return c.Name
	case KindPointer:
		return c.Inner.String() + "*"
	case KindArray:
		return c.Inner.String() + "[]"
	case KindGeneric:
		argStrs := make([]string, len(c.Args))
		for i, a := range c.Args {
			argStrs[i] = a.String()
		}
		return fmt.Sprintf("%s<%s>", c.Base.String(), strings.Join(argStrs, ", "))
	default:
		return c.Name
	}
}

func simple(module *string, namespace *Namespace, name string, typeIndex *int32) ComplexType {
	return ComplexType{Kind: KindSimple, Module: module, Namespace: namespace, Name: name, TypeIndex: typeIndex}
}

// GetTypeDef resolves a runtime type to its metadata type-definition
// record, if it names one: CLASS and VALUETYPE resolve directly by klass
// index; GENERICINST resolves through its backing generic class to the
// underlying type's klass index. Any other discriminant has no type
// definition.
func (c *Il2Cpp) GetTypeDef(ty RuntimeType) (*metadata.TypeDefinition, error) {
	switch ty.Type() {
	case TypeClass, TypeValueType:
		idx := ty.klassIndex()
		if idx < 0 || int(idx) >= len(c.Metadata.TypeDefinitions) {
			return nil, fmt.Errorf("il2cpp: klass index %d out of range", idx)
		}
		return &c.Metadata.TypeDefinitions[idx], nil

	case TypeGenericInst:
		inst, err := c.genericInstUnderlyingType(ty)
		if err != nil {
			return nil, err
		}
		idx := inst.klassIndex()
		if idx < 0 || int(idx) >= len(c.Metadata.TypeDefinitions) {
			return nil, fmt.Errorf("il2cpp: klass index %d out of range", idx)
		}
		return &c.Metadata.TypeDefinitions[idx], nil

	default:
		return nil, nil
	}
}

// GetDeclaringType resolves the type's metadata declaringTypeIndex, if
// any, to the enclosing runtime type.
func (c *Il2Cpp) GetDeclaringType(ty RuntimeType) (*RuntimeType, error) {
	td, err := c.GetTypeDef(ty)
	if err != nil {
		return nil, err
	}
	if td == nil || td.DeclaringTypeIndex < 0 {
		return nil, nil
	}
	idx := int(td.DeclaringTypeIndex)
	if idx >= len(c.Types) {
		return nil, fmt.Errorf("il2cpp: declaring type index %d out of range", idx)
	}
	return &c.Types[idx], nil
}

// GetDeclaringChain produces [innermost, ..., outermost] by repeatedly
// following declaringTypeIndex until it is exhausted.
func (c *Il2Cpp) GetDeclaringChain(ty RuntimeType) ([]RuntimeType, error) {
	chain := []RuntimeType{ty}
	current := ty
	for {
		next, err := c.GetDeclaringType(current)
		if err != nil {
			return nil, err
		}
		if next == nil {
			return chain, nil
		}
		chain = append(chain, *next)
		current = *next
	}
}

type genericClass struct {
	typeVA       uint64
	classInstVA  uint64
}

func (c *Il2Cpp) readGenericClass(va uint64) (genericClass, error) {
	// Il2CppGenericClass: type_ (ptr), context.class_inst (ptr),
	// context.method_inst (ptr), cached_class (ptr).
	raw, ok := c.Image.ReadBytesAtVA(va, 32)
	if !ok {
		return genericClass{}, fmt.Errorf("il2cpp: unreadable Il2CppGenericClass at VA 0x%x", va)
	}
	return genericClass{
		typeVA:      binary.LittleEndian.Uint64(raw[0:8]),
		classInstVA: binary.LittleEndian.Uint64(raw[8:16]),
	}, nil
}

type genericInst struct {
	argc uint32
	argv uint64
}

func (c *Il2Cpp) readGenericInst(va uint64) (genericInst, error) {
	// Il2CppGenericInst: type_argc (u32, padded to 8), type_argv (ptr).
	raw, ok := c.Image.ReadBytesAtVA(va, 16)
	if !ok {
		return genericInst{}, fmt.Errorf("il2cpp: unreadable Il2CppGenericInst at VA 0x%x", va)
	}
	return genericInst{
		argc: binary.LittleEndian.Uint32(raw[0:4]),
		argv: binary.LittleEndian.Uint64(raw[8:16]),
	}, nil
}

// genericInstUnderlyingType loads the backing generic class for a
// GENERICINST type and returns the runtime type it instantiates.
func (c *Il2Cpp) genericInstUnderlyingType(ty RuntimeType) (RuntimeType, error) {
	gclass, err := c.readGenericClass(ty.Data)
	if err != nil {
		return RuntimeType{}, err
	}
	raw, ok := c.Image.ReadBytesAtVA(gclass.typeVA, runtimeTypeSize)
	if !ok {
		return RuntimeType{}, fmt.Errorf("il2cpp: unreadable Il2CppType at VA 0x%x", gclass.typeVA)
	}
	return decodeRuntimeType(raw), nil
}

// GetComplexType classifies ty into a ComplexType expression.
func (c *Il2Cpp) GetComplexType(ty RuntimeType) (ComplexType, error) {
	switch ty.Type() {
	case TypeArray, TypeSzArray, TypePtr:
		var innerPtr uint64
		if ty.Type() == TypeArray {
			// Il2CppArrayType: etype is the second pointer-sized field.
			raw, ok := c.Image.ReadBytesAtVA(ty.Data, 16)
			if !ok {
				return ComplexType{}, fmt.Errorf("il2cpp: unreadable Il2CppArrayType at VA 0x%x", ty.Data)
			}
			innerPtr = binary.LittleEndian.Uint64(raw[8:16])
		} else {
			innerPtr = ty.Data
		}

		innerIdx, ok := c.TypeByPtr(innerPtr)
		if !ok {
			return ComplexType{}, fmt.Errorf("il2cpp: unknown inner type for %v at VA 0x%x", ty.Type(), innerPtr)
		}
		inner, err := c.GetComplexType(c.Types[innerIdx])
		if err != nil {
			return ComplexType{}, err
		}
		if ty.Type() == TypePtr {
			return ComplexType{Kind: KindPointer, Inner: &inner}, nil
		}
		return ComplexType{Kind: KindArray, Inner: &inner}, nil

	case TypeVar, TypeMVar:
		idx := ty.genericParameterIndex()
		if idx < 0 || int(idx) >= len(c.Metadata.GenericParameters) {
			return ComplexType{}, fmt.Errorf("il2cpp: generic parameter index %d out of range", idx)
		}
		param := c.Metadata.GenericParameters[idx]
		name := c.Metadata.GetString(param.NameIndex)
		return simple(nil, nil, name, nil), nil

	case TypeClass, TypeValueType:
		idx := ty.klassIndex()
		if idx < 0 || int(idx) >= len(c.Metadata.TypeDefinitions) {
			return ComplexType{}, fmt.Errorf("il2cpp: klass index %d out of range", idx)
		}
		td := &c.Metadata.TypeDefinitions[idx]
		base, err := c.buildSimpleFromTypeDef(ty, td)
		if err != nil {
			return ComplexType{}, err
		}
		return c.wrapGenericContainer(td, base)

	case TypeGenericInst:
		gclass, err := c.readGenericClass(ty.Data)
		if err != nil {
			return ComplexType{}, err
		}
		instRaw, ok := c.Image.ReadBytesAtVA(gclass.typeVA, runtimeTypeSize)
		if !ok {
			return ComplexType{}, fmt.Errorf("il2cpp: unreadable Il2CppType at VA 0x%x", gclass.typeVA)
		}
		inst := decodeRuntimeType(instRaw)
		idx := inst.klassIndex()
		if idx < 0 || int(idx) >= len(c.Metadata.TypeDefinitions) {
			return ComplexType{}, fmt.Errorf("il2cpp: klass index %d out of range", idx)
		}
		td := &c.Metadata.TypeDefinitions[idx]
		base, err := c.buildSimpleFromTypeDef(inst, td)
		if err != nil {
			return ComplexType{}, err
		}

		classInst, err := c.readGenericInst(gclass.classInstVA)
		if err != nil {
			return ComplexType{}, err
		}
		argPtrs := c.Image.ReadPointerArray(classInst.argv, int(classInst.argc))

		args := make([]ComplexType, 0, len(argPtrs))
		for _, ptr := range argPtrs {
			argIdx, ok := c.TypeByPtr(ptr)
			if !ok {
				return ComplexType{}, fmt.Errorf("il2cpp: unknown generic argument type at VA 0x%x", ptr)
			}
			arg, err := c.GetComplexType(c.Types[argIdx])
			if err != nil {
				return ComplexType{}, err
			}
			args = append(args, arg)
		}

		return ComplexType{Kind: KindGeneric, Base: &base, Args: args}, nil

	default:
		if name, ok := primitiveNames[ty.Type()]; ok {
			return simple(nil, nil, name, nil), nil
		}
		return simple(nil, nil, fmt.Sprintf("unknown_%d", ty.Type()), nil), nil
	}
}

func (c *Il2Cpp) buildSimpleFromTypeDef(ty RuntimeType, td *metadata.TypeDefinition) (ComplexType, error) {
	rawName := c.Metadata.GetString(td.NameIndex)
	ns := c.Metadata.GetString(td.NamespaceIndex)

	var module *string
	if ns != "" || td.DeclaringTypeIndex == -1 {
		module = &ns
	} else {
		chain, err := c.GetDeclaringChain(ty)
		if err != nil {
			return ComplexType{}, err
		}
		if len(chain) > 0 {
			outer := chain[len(chain)-1]
			if outerComplex, err := c.GetComplexType(outer); err == nil && outerComplex.Kind == KindSimple && outerComplex.Module != nil {
				module = outerComplex.Module
			}
		}
	}

	baseName := rawName
	if pos := strings.IndexByte(rawName, '`'); pos >= 0 {
		baseName = rawName[:pos]
	}

	var namespace *Namespace
	if td.DeclaringTypeIndex != -1 {
		idx := int(td.DeclaringTypeIndex)
		if idx >= len(c.Types) {
			return ComplexType{}, fmt.Errorf("il2cpp: declaring type index %d out of range", idx)
		}
		declared, err := c.GetComplexType(c.Types[idx])
		if err != nil {
			return ComplexType{}, err
		}
		namespace = &Namespace{Complex: &declared}
	} else if pos := strings.LastIndexByte(baseName, '.'); pos >= 0 {
		namespace = &Namespace{Simple: baseName[:pos]}
	}

	name := baseName
	if pos := strings.LastIndexByte(baseName, '.'); pos >= 0 {
		name = baseName[pos+1:]
	}

	typeIndex := td.ByvalTypeIndex
	return simple(module, namespace, name, &typeIndex), nil
}

func (c *Il2Cpp) wrapGenericContainer(td *metadata.TypeDefinition, base ComplexType) (ComplexType, error) {
	if td.GenericContainerIndex < 0 {
		return base, nil
	}
	idx := int(td.GenericContainerIndex)
	if idx >= len(c.Metadata.GenericContainers) {
		return ComplexType{}, fmt.Errorf("il2cpp: generic container index %d out of range", idx)
	}
	gc := c.Metadata.GenericContainers[idx]

	args := make([]ComplexType, 0, gc.TypeArgc)
	for i := int32(0); i < gc.TypeArgc; i++ {
		paramIdx := int(gc.GenericParameterStart + i)
		if paramIdx < 0 || paramIdx >= len(c.Metadata.GenericParameters) {
			return ComplexType{}, fmt.Errorf("il2cpp: generic parameter index %d out of range", paramIdx)
		}
		param := c.Metadata.GenericParameters[paramIdx]
		name := c.Metadata.GetString(param.NameIndex)
		args = append(args, simple(nil, nil, name, nil))
	}

	return ComplexType{Kind: KindGeneric, Base: &base, Args: args}, nil
}

// HasField reports whether td declares a field named name whose resolved
// type's simple name (or generic base name) equals tyName.
func (c *Il2Cpp) HasField(td *metadata.TypeDefinition, name, tyName string) (bool, error) {
	start := int(td.FieldStart)
	end := start + int(td.FieldCount)
	for i := start; i < end; i++ {
		if i < 0 || i >= len(c.Metadata.Fields) {
			continue
		}
		field := c.Metadata.Fields[i]
		if c.Metadata.GetString(field.NameIndex) != name {
			continue
		}

		idx := int(field.TypeIndex)
		if idx < 0 || idx >= len(c.Types) {
			continue
		}
		ct, err := c.GetComplexType(c.Types[idx])
		if err != nil {
			return false, err
		}
		switch ct.Kind {
		case KindSimple:
			if ct.Name == tyName {
				return true, nil
			}
		case KindGeneric:
			if ct.Base.String() == tyName {
				return true, nil
			}
		}
	}
	return false, nil
}

// FieldIndices returns the [FieldStart, FieldStart+FieldCount) range a type
// definition owns in the metadata field table.
func FieldIndices(td *metadata.TypeDefinition) []int {
	start := int(td.FieldStart)
	end := start + int(td.FieldCount)
	indices := make([]int, 0, end-start)
	for i := start; i < end; i++ {
		indices = append(indices, i)
	}
	return indices
}

// GetRootNamespace returns the outermost namespace string reachable by
// unwrapping Pointer/Array/Generic layers and following a Simple type's own
// (possibly Complex) Namespace chain; for a Simple type with no namespace it
// falls back to the type's own Name.
func (c ComplexType) GetRootNamespace() *string {
	switch c.Kind {
	case KindSimple:
		if c.Namespace == nil {
			return &c.Name
		}
		if c.Namespace.Complex != nil {
			return c.Namespace.Complex.GetRootNamespace()
		}
		return &c.Namespace.Simple
	case KindPointer, KindArray:
		return c.Inner.GetRootNamespace()
	case KindGeneric:
		return c.Base.GetRootNamespace()
	default:
		return nil
	}
}

// GetNameStr renders the type's name, qualified with its namespace when
// withNamespace is set.
func (c ComplexType) GetNameStr(withNamespace bool) string {
	switch c.Kind {
	case KindSimple:
		if withNamespace && c.Namespace != nil {
			return fmt.Sprintf("%s.%s", c.Namespace.String(), c.Name)
		}
		return c.Name
	case KindPointer:
		return c.Inner.GetNameStr(withNamespace) + "*"
	case KindArray:
		return c.Inner.GetNameStr(withNamespace) + "[]"
	case KindGeneric:
		argStrs := make([]string, len(c.Args))
		for i, a := range c.Args {
			argStrs[i] = a.GetNameStr(withNamespace)
		}
		return fmt.Sprintf("%s<%s>", c.Base.GetNameStr(withNamespace), strings.Join(argStrs, ", "))
	default:
		return c.Name
	}
}

// GetTypeIndex returns a Simple type's cross-package type index, unwrapping
// Pointer/Array layers. Generic instances have no single type index of
// their own (only their arguments do).
func (c ComplexType) GetTypeIndex() *int32 {
	switch c.Kind {
	case KindSimple:
		return c.TypeIndex
	case KindPointer, KindArray:
		return c.Inner.GetTypeIndex()
	default:
		return nil
	}
}

// ArgsNameStr joins a generic instance's argument types, each rendered by
// GetNameStr, with ", " — matching the original's ComplexTypeArgs Display.
func ArgsNameStr(args []ComplexType, withNamespace bool) string {
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = a.GetNameStr(withNamespace)
	}
	return strings.Join(parts, ", ")
}

// ArgsModuleName returns the first argument's module name, if any of the
// generic instance's arguments is a Simple type naming one.
func ArgsModuleName(args []ComplexType) *string {
	for _, a := range args {
		if a.Kind == KindSimple && a.Module != nil {
			return a.Module
		}
	}
	return nil
}

// GetFieldDefaultNumeric reads a field's compile-time constant value
// (an `XFieldNumber` tag or an enum variant's value) as a 32-bit integer.
// IL2CPP stores these as fixed-width primitives in the default-value data
// blob, keyed by the associated Il2CppType's discriminant; decoding
// non-numeric default values (strings, byte arrays, nested type
// references) is out of scope here since nothing this tool emits needs
// them.
func (c *Il2Cpp) GetFieldDefaultNumeric(fieldIndex int32) (int32, error) {
	fdv, ok := c.Metadata.FieldDefaultValue(fieldIndex)
	if !ok {
		return 0, fmt.Errorf("il2cpp: no default value for field index %d", fieldIndex)
	}
	if int(fdv.TypeIndex) < 0 || int(fdv.TypeIndex) >= len(c.Types) {
		return 0, fmt.Errorf("il2cpp: default value type index %d out of range", fdv.TypeIndex)
	}
	ty := c.Types[fdv.TypeIndex]
	data := c.Metadata.FieldAndParameterDefaultValueData
	offset := int(fdv.DataIndex)

	switch ty.Type() {
	case TypeBoolean, TypeU1:
		return int32(c.Metadata.ReadU8(data, offset)), nil
	case TypeI1:
		return int32(int8(c.Metadata.ReadU8(data, offset))), nil
	case TypeChar, TypeU2:
		return int32(c.Metadata.ReadU16(data, offset)), nil
	case TypeI2:
		return int32(int16(c.Metadata.ReadU16(data, offset))), nil
	case TypeU4:
		return int32(c.Metadata.ReadU32(data, offset)), nil
	case TypeI4:
		return c.Metadata.ReadI32(data, offset), nil
	case TypeU8:
		return int32(c.Metadata.ReadU64(data, offset)), nil
	case TypeI8:
		return int32(c.Metadata.ReadI64(data, offset)), nil
	default:
		return 0, fmt.Errorf("il2cpp: unsupported default value type %d for field index %d", ty.Type(), fieldIndex)
	}
}
