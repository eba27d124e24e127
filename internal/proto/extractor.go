package proto

import (
	"fmt"
	"strings"

	"github.com/kestrelgs/pb2proto/internal/il2cpp"
	"github.com/kestrelgs/pb2proto/internal/log"
	"github.com/kestrelgs/pb2proto/internal/metadata"
)

// netToProto maps a CLR scalar type name to the proto3 keyword it
// round-trips to; anything absent from this table is a user message/enum
// type carried through by name and cross-package type index instead.
var netToProto = map[string]string{
	"int":        "int32",
	"Int32":      "int32",
	"long":       "int64",
	"Int64":      "int64",
	"ulong":      "uint64",
	"UInt64":     "fixed64",
	"uint":       "fixed32",
	"UInt32":     "fixed32",
	"Single":     "float",
	"Boolean":    "bool",
	"Double":     "double",
	"String":     "string",
	"ByteString": "bytes",
}

// protoEntry is a nested type awaiting re-parenting: exactly one of Enum or
// Message is set.
type protoEntry struct {
	Enum    *Enum
	Message *Message
}

// GenerateSchema walks every image's type-definition range, classifies each
// type as a service, enum, or message, re-parents deeply-nested types, and
// returns the rendered .proto unit for every retained package.
func GenerateSchema(ic *il2cpp.Il2Cpp, logger *log.Logger) ([]GenUnit, error) {
	schema, err := BuildSchema(ic, logger)
	if err != nil {
		return nil, err
	}
	return schema.BuildUnits()
}

// BuildSchema runs the same classification and re-parenting passes as
// GenerateSchema but stops short of rendering, returning the sealed Schema
// itself so callers (the optional descriptor-validation pass) can walk the
// typed package graph instead of re-parsing rendered .proto text.
func BuildSchema(ic *il2cpp.Il2Cpp, logger *log.Logger) (*Schema, error) {
	if logger == nil {
		logger = log.NewNop()
	}

	schema := NewSchema()
	nestedTypesMap := make(map[int32][]protoEntry)
	oneofCases := make(map[int32][]Enum)

	for i := range ic.Metadata.Images {
		if err := processImage(&ic.Metadata.Images[i], ic, schema, nestedTypesMap, oneofCases, logger); err != nil {
			return nil, err
		}
	}

	if err := processNestedTypes(ic, nestedTypesMap); err != nil {
		return nil, err
	}
	integrateNestedTypesIntoPackages(schema, nestedTypesMap)

	schema.Seal()
	for _, pkg := range schema.Packages {
		logger.PackageSealed(pkg.Name, len(pkg.MessageGroups), len(pkg.Enums), len(pkg.Services))
	}

	return schema, nil
}

func processImage(
	image *metadata.ImageDefinition,
	ic *il2cpp.Il2Cpp,
	schema *Schema,
	nestedTypesMap map[int32][]protoEntry,
	oneofCases map[int32][]Enum,
	logger *log.Logger,
) error {
	md := ic.Metadata
	typeStart := int(image.TypeStart)
	typeEnd := typeStart + int(image.TypeCount)
	if typeStart < 0 || typeEnd > len(md.TypeDefinitions) {
		return fmt.Errorf("proto: image type range [%d,%d) out of bounds", typeStart, typeEnd)
	}

	for i := typeStart; i < typeEnd; i++ {
		td := &md.TypeDefinitions[i]
		namespace := md.GetString(td.NamespaceIndex)
		pkg := schema.Get(namespace)

		isService, err := ic.HasField(td, "__ServiceName", "string")
		if err != nil {
			return err
		}

		switch {
		case isService:
			if err := processService(td, ic, pkg, logger); err != nil {
				return err
			}
		case td.IsEnum():
			if err := processEnum(td, ic, pkg, nestedTypesMap, oneofCases); err != nil {
				return err
			}
		default:
			isMessage, err := ic.HasField(td, "_parser", "MessageParser")
			if err != nil {
				return err
			}
			if isMessage {
				if err := processMessage(td, ic, pkg, nestedTypesMap, oneofCases); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func processService(td *metadata.TypeDefinition, ic *il2cpp.Il2Cpp, pkg *Package, logger *log.Logger) error {
	md := ic.Metadata
	serviceName := md.GetString(td.NameIndex)
	expectedClientName := serviceName + "Client"

	var clientTd *metadata.TypeDefinition
	for i := range md.TypeDefinitions {
		candidate := &md.TypeDefinitions[i]
		if candidate.DeclaringTypeIndex == td.ByvalTypeIndex && md.GetString(candidate.NameIndex) == expectedClientName {
			clientTd = candidate
			break
		}
	}
	if clientTd == nil {
		return fmt.Errorf("proto: could not find client type for service %s", serviceName)
	}

	service := NewService(serviceName, td.ByvalTypeIndex)

	for _, fieldIdx := range il2cpp.FieldIndices(td) {
		field := md.Fields[fieldIdx]
		fieldName := md.GetString(field.NameIndex)
		if !strings.HasPrefix(fieldName, "__Method_") {
			continue
		}
		rpcName := strings.TrimPrefix(fieldName, "__Method_")

		if int(field.TypeIndex) < 0 || int(field.TypeIndex) >= len(ic.Types) {
			return fmt.Errorf("proto: service method field type index %d out of range", field.TypeIndex)
		}
		ct, err := ic.GetComplexType(ic.Types[field.TypeIndex])
		if err != nil {
			return err
		}
		if ct.Kind != il2cpp.KindGeneric {
			logger.Sugar().Warnf("unexpected method field type for %s.%s: %v", serviceName, rpcName, ct)
			continue
		}
		if ct.Base.String() != "Method" {
			logger.Sugar().Warnf("unexpected base type in service method %s.%s: %s", serviceName, rpcName, ct.Base)
		}
		if len(ct.Args) < 2 {
			logger.Sugar().Warnf("service method %s.%s does not have two type arguments", serviceName, rpcName)
			continue
		}

		requestType, responseType := ct.Args[0], ct.Args[1]
		clientStreaming, serverStreaming, err := getRPCStreamingInfo(clientTd, rpcName, ic)
		if err != nil {
			return err
		}

		method := NewServiceMethod(
			rpcName,
			requestType.GetRootNamespace(),
			requestType.GetNameStr(true),
			requestType.GetTypeIndex(),
			responseType.GetRootNamespace(),
			responseType.GetNameStr(true),
			responseType.GetTypeIndex(),
			clientStreaming,
			serverStreaming,
		)
		service.AddMethod(method)
	}

	pkg.AddService(service)
	return nil
}

func getRPCStreamingInfo(clientTd *metadata.TypeDefinition, rpcName string, ic *il2cpp.Il2Cpp) (clientStreaming, serverStreaming bool, err error) {
	md := ic.Metadata
	start := int(clientTd.MethodStart)
	end := start + int(clientTd.MethodCount)
	if start < 0 || end > len(md.Methods) {
		return false, false, fmt.Errorf("proto: client method range [%d,%d) out of bounds", start, end)
	}

	for i := start; i < end; i++ {
		method := md.Methods[i]
		if md.GetString(method.NameIndex) != rpcName {
			continue
		}
		if int(method.ReturnType) < 0 || int(method.ReturnType) >= len(ic.Types) {
			return false, false, fmt.Errorf("proto: method return type index %d out of range", method.ReturnType)
		}
		ct, err := ic.GetComplexType(ic.Types[method.ReturnType])
		if err != nil {
			return false, false, err
		}
		if ct.Kind != il2cpp.KindGeneric {
			return false, false, nil
		}
		switch ct.Base.String() {
		case "AsyncDuplexStreamingCall":
			return true, true, nil
		case "AsyncClientStreamingCall":
			return true, false, nil
		case "AsyncServerStreamingCall":
			return false, true, nil
		default:
			return false, false, nil
		}
	}
	return false, false, nil
}

func processEnum(
	td *metadata.TypeDefinition,
	ic *il2cpp.Il2Cpp,
	pkg *Package,
	nestedTypesMap map[int32][]protoEntry,
	oneofCases map[int32][]Enum,
) error {
	enumType, err := parseEnumType(ic, td)
	if err != nil {
		return err
	}

	switch {
	case strings.HasSuffix(enumType.Name, "OneofCase"):
		oneofCases[td.DeclaringTypeIndex] = append(oneofCases[td.DeclaringTypeIndex], enumType)
	case td.DeclaringTypeIndex >= 0:
		nestedTypesMap[td.DeclaringTypeIndex] = append(nestedTypesMap[td.DeclaringTypeIndex], protoEntry{Enum: &enumType})
	default:
		pkg.AddEnum(enumType)
	}
	return nil
}

func parseEnumType(ic *il2cpp.Il2Cpp, td *metadata.TypeDefinition) (Enum, error) {
	typeName := ic.Metadata.GetString(td.NameIndex)
	newEnum := NewEnum(typeName, td.ByvalTypeIndex)

	indices := il2cpp.FieldIndices(td)
	skip := 1
	if len(indices) < skip {
		skip = len(indices)
	}
	for _, j := range indices[skip:] {
		field := ic.Metadata.Fields[j]
		elementName := ic.Metadata.GetString(field.NameIndex)
		elementValue, err := ic.GetFieldDefaultNumeric(int32(j))
		if err != nil {
			return Enum{}, err
		}
		newEnum.AddVariant(elementName, elementValue)
	}
	return newEnum, nil
}

func processMessage(
	td *metadata.TypeDefinition,
	ic *il2cpp.Il2Cpp,
	pkg *Package,
	nestedTypesMap map[int32][]protoEntry,
	oneofCases map[int32][]Enum,
) error {
	md := ic.Metadata
	messageName := md.GetString(td.NameIndex)
	newMessage := NewMessage(messageName, td.ByvalTypeIndex)

	oneofFieldMap := make(map[string]*OneOf)
	var oneofFields []*OneOf
	if entries, ok := oneofCases[td.ByvalTypeIndex]; ok {
		delete(oneofCases, td.ByvalTypeIndex)
		for _, oneofEnum := range entries {
			oneofName := strings.ToLower(strings.TrimSuffix(oneofEnum.Name, "OneofCase"))
			oo := NewOneOf(oneofName)
			ptr := &oo
			oneofFields = append(oneofFields, ptr)
			for variantName := range oneofEnum.Variants {
				oneofFieldMap[variantName] = ptr
			}
		}
	}

	methodStart := int(td.MethodStart)
	methodEnd := methodStart + int(td.MethodCount)
	if methodStart < 0 || methodEnd > len(md.Methods) {
		return fmt.Errorf("proto: message method range [%d,%d) out of bounds", methodStart, methodEnd)
	}
	methods := md.Methods[methodStart:methodEnd]

	for _, fieldIdx := range il2cpp.FieldIndices(td) {
		field := md.Fields[fieldIdx]
		fieldName := md.GetString(field.NameIndex)
		if !strings.HasSuffix(fieldName, "FieldNumber") {
			continue
		}
		protoFieldName := strings.TrimSuffix(fieldName, "FieldNumber")
		protoFieldNumber, err := ic.GetFieldDefaultNumeric(int32(fieldIdx))
		if err != nil {
			return err
		}
		getterName := "get_" + protoFieldName

		var method *metadata.MethodDefinition
		for i := range methods {
			if md.GetString(methods[i].NameIndex) == getterName {
				method = &methods[i]
				break
			}
		}
		if method == nil {
			continue
		}

		if int(method.ReturnType) < 0 || int(method.ReturnType) >= len(ic.Types) {
			return fmt.Errorf("proto: field getter return type index %d out of range", method.ReturnType)
		}
		ct, err := ic.GetComplexType(ic.Types[method.ReturnType])
		if err != nil {
			return err
		}

		addField := func(f Field) {
			if oo, ok := oneofFieldMap[protoFieldName]; ok {
				oo.AddField(f)
			} else {
				newMessage.AddField(f)
			}
		}

		switch ct.Kind {
		case il2cpp.KindSimple:
			var simpleName string
			if ct.Namespace != nil {
				simpleName = fmt.Sprintf("%s.%s", ct.Namespace.String(), ct.Name)
			} else {
				simpleName = ct.Name
			}
			module, typeIndex := ct.Module, ct.TypeIndex
			typeName := simpleName
			if protoName, ok := netToProto[simpleName]; ok {
				module, typeIndex = nil, nil
				typeName = protoName
			}
			addField(NewField(module, protoFieldName, typeName, typeIndex, protoFieldNumber, nil))

		case il2cpp.KindGeneric:
			baseName := ct.Base.String()
			if baseName == "MapField" {
				if len(ct.Args) < 2 {
					return fmt.Errorf("proto: MapField %s does not have key/value type arguments", protoFieldName)
				}
				keyArg, valueArg := ct.Args[0], ct.Args[1]
				newMessage.AddMapField(NewMapField(
					keyArg.String(), keyArg.GetTypeIndex(),
					valueArg.String(), valueArg.GetTypeIndex(),
					protoFieldName, protoFieldNumber,
				))
				continue
			}

			var cardinality Cardinality
			switch baseName {
			case "Nullable":
				cardinality = CardinalityOptional
			case "RepeatedField":
				cardinality = CardinalityRepeated
			default:
				return fmt.Errorf("proto: unsupported cardinality base %q<%s> on field %s", baseName, il2cpp.ArgsNameStr(ct.Args, true), protoFieldName)
			}

			moduleName := il2cpp.ArgsModuleName(ct.Args)
			innerType := il2cpp.ArgsNameStr(ct.Args, true)
			var fieldTypeIndex *int32
			if len(ct.Args) > 0 {
				fieldTypeIndex = ct.Args[0].GetTypeIndex()
			}
			typeName := innerType
			if protoName, ok := netToProto[innerType]; ok {
				moduleName, fieldTypeIndex = nil, nil
				typeName = protoName
			}
			addField(NewField(moduleName, protoFieldName, typeName, fieldTypeIndex, protoFieldNumber, &cardinality))

		default:
			return fmt.Errorf("proto: unsupported complex type kind %d for field %s", ct.Kind, protoFieldName)
		}
	}

	for _, oo := range oneofFields {
		newMessage.AddOneOf(*oo)
	}

	if td.DeclaringTypeIndex >= 0 {
		nestedTypesMap[td.DeclaringTypeIndex] = append(nestedTypesMap[td.DeclaringTypeIndex], protoEntry{Message: newMessage})
	} else {
		pkg.AddMessage(newMessage)
	}
	return nil
}

// processNestedTypes re-parents deeply-nested types: a nested type whose
// declaring chain has length > 1 needs intermediate messages synthesized
// along the chain before it can attach to its immediate parent.
func processNestedTypes(ic *il2cpp.Il2Cpp, nestedTypesMap map[int32][]protoEntry) error {
	tyIndexes := make([]int32, 0, len(nestedTypesMap))
	for idx := range nestedTypesMap {
		tyIndexes = append(tyIndexes, idx)
	}

	for _, tyIdx := range tyIndexes {
		if tyIdx < 0 || int(tyIdx) >= len(ic.Types) {
			continue
		}
		firstParentTy := ic.Types[tyIdx]
		tyChain, err := ic.GetDeclaringChain(firstParentTy)
		if err != nil {
			return err
		}
		if len(tyChain) == 1 {
			continue
		}

		newTargetTy := tyChain[len(tyChain)-1]
		tyChain = tyChain[:len(tyChain)-1]
		newTargetTd, err := ic.GetTypeDef(newTargetTy)
		if err != nil {
			return err
		}
		if newTargetTd == nil {
			return fmt.Errorf("proto: no type definition for nested-type chain target")
		}

		var built *Message
		for _, ty := range tyChain {
			td, err := ic.GetTypeDef(ty)
			if err != nil {
				return err
			}
			if td == nil {
				return fmt.Errorf("proto: no type definition along nested-type chain")
			}
			tyName, err := ic.GetComplexType(ty)
			if err != nil {
				return err
			}
			tyMessage := NewMessage(tyName.GetNameStr(false), td.ByvalTypeIndex)

			if built != nil {
				tyMessage.NestedMessages = append(tyMessage.NestedMessages, built)
			} else if entries, ok := nestedTypesMap[tyIdx]; ok {
				delete(nestedTypesMap, tyIdx)
				for _, entry := range entries {
					if entry.Enum != nil {
						tyMessage.NestedEnums = append(tyMessage.NestedEnums, *entry.Enum)
					}
					if entry.Message != nil {
						tyMessage.NestedMessages = append(tyMessage.NestedMessages, entry.Message)
					}
				}
			}
			built = tyMessage
		}

		target := nestedTypesMap[newTargetTd.ByvalTypeIndex]
		merged := false
		for _, entry := range target {
			if entry.Message != nil && entry.Message.TypeIndex == built.TypeIndex {
				entry.Message.Merge(built)
				merged = true
				break
			}
		}
		if !merged {
			nestedTypesMap[newTargetTd.ByvalTypeIndex] = append(target, protoEntry{Message: built})
		}
	}
	return nil
}

// integrateNestedTypesIntoPackages attaches every remaining nested-type
// entry to its already-discovered top-level parent message.
func integrateNestedTypesIntoPackages(schema *Schema, nestedTypesMap map[int32][]protoEntry) {
	for _, pkg := range schema.Packages {
		for _, msg := range pkg.Messages() {
			entries, ok := nestedTypesMap[msg.TypeIndex]
			if !ok {
				continue
			}
			delete(nestedTypesMap, msg.TypeIndex)
			for _, entry := range entries {
				if entry.Enum != nil {
					msg.NestedEnums = append(msg.NestedEnums, *entry.Enum)
				}
				if entry.Message != nil {
					msg.NestedMessages = append(msg.NestedMessages, entry.Message)
				}
			}
		}
	}
}
