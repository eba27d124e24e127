// Package validate runs a generated proto schema through
// google.golang.org/protobuf's own descriptor builder, catching anything a
// downstream protoc invocation would reject (undefined field types,
// duplicate tags, broken imports) before the schema is considered final.
package validate

import (
	"fmt"
	"sort"
	"strings"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoregistry"
	"google.golang.org/protobuf/types/descriptorpb"

	pb2proto "github.com/kestrelgs/pb2proto/internal/proto"
)

var scalarTypes = map[string]descriptorpb.FieldDescriptorProto_Type{
	"int32":   descriptorpb.FieldDescriptorProto_TYPE_INT32,
	"int64":   descriptorpb.FieldDescriptorProto_TYPE_INT64,
	"uint32":  descriptorpb.FieldDescriptorProto_TYPE_UINT32,
	"uint64":  descriptorpb.FieldDescriptorProto_TYPE_UINT64,
	"fixed64": descriptorpb.FieldDescriptorProto_TYPE_FIXED64,
	"fixed32": descriptorpb.FieldDescriptorProto_TYPE_FIXED32,
	"float":   descriptorpb.FieldDescriptorProto_TYPE_FLOAT,
	"bool":    descriptorpb.FieldDescriptorProto_TYPE_BOOL,
	"double":  descriptorpb.FieldDescriptorProto_TYPE_DOUBLE,
	"string":  descriptorpb.FieldDescriptorProto_TYPE_STRING,
	"bytes":   descriptorpb.FieldDescriptorProto_TYPE_BYTES,
}

const wellKnownImportPrefix = "google/protobuf/"

// Schema builds a minimal FileDescriptorProto for every retained package
// named in units and registers them with protodesc.NewFile in import
// dependency order. It returns human-readable issues: one per package that
// failed to build or register, one per well-known import that caused a
// package to be skipped, and one per structural problem in a package's
// services. It returns a non-nil error only when the packages' imports form
// a cycle and cannot be ordered.
//
// Packages whose unit imports a google/protobuf/*.proto well-known type are
// skipped with a noted reason: the well-known file descriptors are only
// registered in protoregistry.GlobalFiles when their typed Go package is
// imported somewhere in the binary, and this tool has no reason to import
// them just to validate someone else's schema.
func Schema(schema *pb2proto.Schema, units []pb2proto.GenUnit) ([]string, error) {
	// A package's reference to its own file is not an import (Render drops
	// it too), so it is removed before ordering and descriptor building.
	byNamespace := make(map[string]pb2proto.GenUnit, len(units))
	ownless := make([]pb2proto.GenUnit, 0, len(units))
	for _, u := range units {
		imports := make(map[string]struct{}, len(u.Imports))
		for imp := range u.Imports {
			if strings.TrimSuffix(imp, ".proto") != u.Namespace {
				imports[imp] = struct{}{}
			}
		}
		u.Imports = imports
		byNamespace[u.Namespace] = u
		ownless = append(ownless, u)
	}

	order, skipped, err := topoOrder(ownless)
	if err != nil {
		return nil, fmt.Errorf("order packages: %w", err)
	}

	files := new(protoregistry.Files)
	var issues []string
	issues = append(issues, skipped...)

	for _, ns := range order {
		pkg, ok := schema.Packages[ns]
		if !ok {
			continue
		}
		unit := byNamespace[ns]

		fdp := buildFileDescriptor(pkg, unit)
		file, err := protodesc.NewFile(fdp, files)
		if err != nil {
			issues = append(issues, fmt.Sprintf("%s: %v", ns, err))
			continue
		}
		if _, err := files.RegisterFile(file); err != nil {
			issues = append(issues, fmt.Sprintf("%s: register: %v", ns, err))
		}

		issues = append(issues, checkServicesStructurally(pkg)...)
	}

	return issues, nil
}

// topoOrder returns retained package namespaces in dependency order
// (imports before importers), plus a skip note for every package that
// depends on a well-known-types import this validator can't resolve.
func topoOrder(units []pb2proto.GenUnit) (order []string, skipped []string, err error) {
	byNamespace := make(map[string]pb2proto.GenUnit, len(units))
	for _, u := range units {
		byNamespace[u.Namespace] = u
	}

	skip := make(map[string]bool)
	for _, u := range units {
		for imp := range u.Imports {
			if strings.HasPrefix(imp, wellKnownImportPrefix) {
				skip[u.Namespace] = true
				skipped = append(skipped, fmt.Sprintf("%s: skipped (imports well-known type %s)", u.Namespace, imp))
			}
		}
	}
	sort.Strings(skipped)

	visited := make(map[string]bool)
	visiting := make(map[string]bool)
	var visit func(ns string) error
	visit = func(ns string) error {
		if visited[ns] || skip[ns] {
			return nil
		}
		if visiting[ns] {
			return fmt.Errorf("import cycle involving %s", ns)
		}
		u, ok := byNamespace[ns]
		if !ok {
			return nil
		}
		visiting[ns] = true
		imports := make([]string, 0, len(u.Imports))
		for imp := range u.Imports {
			imports = append(imports, imp)
		}
		sort.Strings(imports)
		for _, imp := range imports {
			if strings.HasPrefix(imp, wellKnownImportPrefix) {
				continue
			}
			depNS := strings.TrimSuffix(imp, ".proto")
			if err := visit(depNS); err != nil {
				return err
			}
		}
		visiting[ns] = false
		visited[ns] = true
		order = append(order, ns)
		return nil
	}

	names := make([]string, 0, len(units))
	for _, u := range units {
		names = append(names, u.Namespace)
	}
	sort.Strings(names)
	for _, ns := range names {
		if err := visit(ns); err != nil {
			return nil, skipped, err
		}
	}
	return order, skipped, nil
}

// checkServicesStructurally validates a package's services without
// building any ServiceDescriptorProto: every service needs a name, and
// every method needs a name plus a named request and response type. This
// is deliberately not round-tripped through protodesc — a service whose
// method types happen to collide with another package's names would
// otherwise force full cross-package type resolution for no benefit, per
// the documented scope of the validation pass.
func checkServicesStructurally(pkg *pb2proto.Package) []string {
	var issues []string
	for _, svc := range pkg.Services {
		if svc.Name == "" {
			issues = append(issues, fmt.Sprintf("%s: service has no name", pkg.Name))
		}
		for _, m := range svc.Methods {
			if m.Name == "" {
				issues = append(issues, fmt.Sprintf("%s.%s: method has no name", pkg.Name, svc.Name))
			}
			if m.InputType == "" {
				issues = append(issues, fmt.Sprintf("%s.%s.%s: missing request type", pkg.Name, svc.Name, m.Name))
			}
			if m.OutputType == "" {
				issues = append(issues, fmt.Sprintf("%s.%s.%s: missing response type", pkg.Name, svc.Name, m.Name))
			}
		}
	}
	return issues
}

func buildFileDescriptor(pkg *pb2proto.Package, unit pb2proto.GenUnit) *descriptorpb.FileDescriptorProto {
	syntax := "proto3"
	fdp := &descriptorpb.FileDescriptorProto{
		Name:    proto.String(pkg.Name + ".proto"),
		Package: proto.String(pkg.Name),
		Syntax:  &syntax,
	}

	deps := make([]string, 0, len(unit.Imports))
	for imp := range unit.Imports {
		if strings.HasPrefix(imp, wellKnownImportPrefix) {
			continue
		}
		deps = append(deps, imp)
	}
	sort.Strings(deps)
	fdp.Dependency = deps

	localEnums := make(map[string]bool)
	for _, en := range pkg.Enums {
		localEnums[en.Name] = true
	}

	for _, en := range pkg.Enums {
		fdp.EnumType = append(fdp.EnumType, buildEnumDescriptor(en))
	}
	for _, group := range pkg.MessageGroups {
		for _, msg := range group.Messages {
			fullName := "." + pkg.Name + "." + msg.Name
			fdp.MessageType = append(fdp.MessageType, buildMessageDescriptor(msg, fullName, pkg.Name, localEnums))
		}
	}

	return fdp
}

// buildEnumDescriptor orders values by tag, matching Enum.FmtPretty's
// rendering order; proto3 also requires the first declared value's number
// to be zero, which this preserves whenever the schema itself has a zero
// tag (IL2CPP enums always do).
func buildEnumDescriptor(e pb2proto.Enum) *descriptorpb.EnumDescriptorProto {
	edp := &descriptorpb.EnumDescriptorProto{Name: proto.String(e.Name)}
	variants := make([]pb2proto.EnumVariant, 0, len(e.Variants))
	for _, v := range e.Variants {
		variants = append(variants, v)
	}
	sort.Slice(variants, func(i, j int) bool { return variants[i].Tag < variants[j].Tag })
	for _, v := range variants {
		edp.Value = append(edp.Value, &descriptorpb.EnumValueDescriptorProto{
			Name:   proto.String(v.Name),
			Number: proto.Int32(v.Tag),
		})
	}
	return edp
}

// buildMessageDescriptor builds m's descriptor. fullName is m's own fully
// qualified name (e.g. ".MyPkg.Outer.Inner"), used to qualify any map-entry
// messages synthesized for m's map fields.
func buildMessageDescriptor(m *pb2proto.Message, fullName, packageName string, localEnums map[string]bool) *descriptorpb.DescriptorProto {
	dp := &descriptorpb.DescriptorProto{Name: proto.String(m.Name)}

	for i, o := range m.OneOfs {
		dp.OneofDecl = append(dp.OneofDecl, &descriptorpb.OneofDescriptorProto{Name: proto.String(o.Name)})
		for _, f := range o.Fields {
			fd := buildFieldDescriptor(f, packageName, localEnums)
			fd.OneofIndex = proto.Int32(int32(i))
			dp.Field = append(dp.Field, fd)
		}
	}
	for _, f := range m.Fields {
		dp.Field = append(dp.Field, buildFieldDescriptor(f, packageName, localEnums))
	}
	for _, mf := range m.MapFields {
		field, entry := buildMapFieldDescriptor(mf, fullName, packageName, localEnums)
		dp.Field = append(dp.Field, field)
		dp.NestedType = append(dp.NestedType, entry)
	}
	for _, en := range m.NestedEnums {
		dp.EnumType = append(dp.EnumType, buildEnumDescriptor(en))
	}
	for _, nested := range m.NestedMessages {
		dp.NestedType = append(dp.NestedType, buildMessageDescriptor(nested, fullName+"."+nested.Name, packageName, localEnums))
	}

	return dp
}

func buildFieldDescriptor(f pb2proto.Field, packageName string, localEnums map[string]bool) *descriptorpb.FieldDescriptorProto {
	fd := &descriptorpb.FieldDescriptorProto{
		Name:   proto.String(strings.ToLower(f.Name)),
		Number: proto.Int32(f.Tag),
		Label:  labelFor(f.Cardinality),
	}

	if scalar, ok := scalarTypes[f.Type]; ok {
		fd.Type = scalar.Enum()
		return fd
	}

	namespace := f.Namespace
	if namespace == "" {
		namespace = packageName
	}
	fd.TypeName = proto.String("." + namespace + "." + f.Type)
	if localEnums[f.Type] {
		fd.Type = descriptorpb.FieldDescriptorProto_TYPE_ENUM.Enum()
	} else {
		fd.Type = descriptorpb.FieldDescriptorProto_TYPE_MESSAGE.Enum()
	}
	return fd
}

// buildMapFieldDescriptor represents a map<K, V> field the way protoc
// itself does: a repeated message field pointing at a synthesized
// "<Name>Entry" nested map-entry message carrying the key/value fields,
// marked with the map_entry option. MapField carries no namespace for a
// message/enum-typed value (unlike Field), so a non-scalar value type is
// always resolved against the containing package.
func buildMapFieldDescriptor(mf pb2proto.MapField, enclosingFullName, packageName string, localEnums map[string]bool) (*descriptorpb.FieldDescriptorProto, *descriptorpb.DescriptorProto) {
	entryName := strings.ToUpper(mf.Name[:1]) + mf.Name[1:] + "Entry"

	entry := &descriptorpb.DescriptorProto{
		Name: proto.String(entryName),
		Field: []*descriptorpb.FieldDescriptorProto{
			scalarOrRefField("key", 1, mf.KeyType, packageName, localEnums),
			scalarOrRefField("value", 2, mf.ValueType, packageName, localEnums),
		},
		Options: &descriptorpb.MessageOptions{MapEntry: proto.Bool(true)},
	}

	field := &descriptorpb.FieldDescriptorProto{
		Name:     proto.String(strings.ToLower(mf.Name)),
		Number:   proto.Int32(mf.Tag),
		Label:    descriptorpb.FieldDescriptorProto_LABEL_REPEATED.Enum(),
		Type:     descriptorpb.FieldDescriptorProto_TYPE_MESSAGE.Enum(),
		TypeName: proto.String(enclosingFullName + "." + entryName),
	}
	return field, entry
}

// scalarOrRefField builds a map entry's key or value field descriptor from
// a bare type name (no namespace info available for map key/value types).
func scalarOrRefField(name string, number int32, typeName, packageName string, localEnums map[string]bool) *descriptorpb.FieldDescriptorProto {
	fd := &descriptorpb.FieldDescriptorProto{
		Name:   proto.String(name),
		Number: proto.Int32(number),
		Label:  descriptorpb.FieldDescriptorProto_LABEL_OPTIONAL.Enum(),
	}
	if scalar, ok := scalarTypes[typeName]; ok {
		fd.Type = scalar.Enum()
		return fd
	}
	fd.TypeName = proto.String("." + packageName + "." + typeName)
	if localEnums[typeName] {
		fd.Type = descriptorpb.FieldDescriptorProto_TYPE_ENUM.Enum()
	} else {
		fd.Type = descriptorpb.FieldDescriptorProto_TYPE_MESSAGE.Enum()
	}
	return fd
}

func labelFor(c pb2proto.Cardinality) *descriptorpb.FieldDescriptorProto_Label {
	if c == pb2proto.CardinalityRepeated {
		return descriptorpb.FieldDescriptorProto_LABEL_REPEATED.Enum()
	}
	return descriptorpb.FieldDescriptorProto_LABEL_OPTIONAL.Enum()
}
