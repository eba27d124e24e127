package proto

import (
	"fmt"
	"sort"
	"strings"
)

// GenUnit is one package's complete, unrendered .proto contents: pre-
// rendered enum/message/service bodies plus the set of other files this
// package's bodies import.
type GenUnit struct {
	Namespace      string
	HeaderComments []string
	Imports        map[string]struct{}
	Messages       []string
	Enums          []string
	Services       []string
}

// Render produces the final .proto source: syntax/csharp_namespace/package
// header, sorted deduplicated imports with any self-import filtered, then
// enum bodies, message-group bodies, and service bodies in that order.
func (u GenUnit) Render() GenFile {
	var b strings.Builder
	fmt.Fprintln(&b, `syntax = "proto3";`)
	fmt.Fprintf(&b, "option csharp_namespace = %q;\n", u.Namespace)
	fmt.Fprintf(&b, "package %s;\n", u.Namespace)
	b.WriteByte('\n')

	imports := make([]string, 0, len(u.Imports))
	for imp := range u.Imports {
		if strings.TrimSuffix(imp, ".proto") == u.Namespace {
			continue
		}
		imports = append(imports, imp)
	}
	sort.Strings(imports)
	for _, imp := range imports {
		fmt.Fprintf(&b, "import %q;\n", imp)
	}
	b.WriteByte('\n')

	for _, en := range u.Enums {
		b.WriteString(en)
		b.WriteByte('\n')
	}
	for _, msg := range u.Messages {
		b.WriteString(msg)
		b.WriteByte('\n')
	}
	for _, svc := range u.Services {
		b.WriteString(svc)
		b.WriteByte('\n')
	}

	return GenFile{Filename: u.Namespace + ".proto", SourceCode: b.String()}
}

// Schema is the whole discovered schema: every package keyed by name, plus
// the type-index -> owning-file map built once every package is sealed.
type Schema struct {
	Packages map[string]*Package

	typeFileMapping map[int32]string
}

func NewSchema() *Schema {
	return &Schema{Packages: make(map[string]*Package)}
}

// Get returns the named package, creating an empty one on first reference.
func (s *Schema) Get(packageName string) *Package {
	if p, ok := s.Packages[packageName]; ok {
		return p
	}
	p := NewPackage(packageName, nil)
	s.Packages[packageName] = p
	return p
}

func buildMessageFileMappings(mapping map[int32]string, filename string, msg *Message) {
	for _, en := range msg.NestedEnums {
		mapping[en.TypeIndex] = filename
	}
	for _, nested := range msg.NestedMessages {
		buildMessageFileMappings(mapping, filename, nested)
	}
	mapping[msg.TypeIndex] = filename
}

func buildPackageFileMappings(mapping map[int32]string, pkg *Package) {
	for _, en := range pkg.Enums {
		mapping[en.TypeIndex] = fmt.Sprintf("%s.%s", pkg.Name, en.Name)
	}
	for _, group := range pkg.MessageGroups {
		primary := group.GetPrimary()
		filepath := fmt.Sprintf("%s.%s", pkg.Name, primary.Name)
		for _, msg := range group.Messages {
			buildMessageFileMappings(mapping, filepath, msg)
		}
	}
	for _, svc := range pkg.Services {
		mapping[svc.TypeIndex] = fmt.Sprintf("%s.%s", pkg.Name, svc.Name)
	}
}

// Seal freezes every package (partitioning messages into groups and
// computing used/contained type sets) and then builds the schema-wide
// type-index -> owning-file map from the sealed results.
func (s *Schema) Seal() {
	for _, pkg := range s.Packages {
		pkg.Seal()
	}
	s.typeFileMapping = make(map[int32]string)
	for _, pkg := range s.Packages {
		buildPackageFileMappings(s.typeFileMapping, pkg)
	}
}

// allUsedTypes is the union of every package's used-type set, the
// reachability frontier dead-package elimination filters against.
func (s *Schema) allUsedTypes() map[int32]struct{} {
	all := make(map[int32]struct{})
	for _, pkg := range s.Packages {
		for idx := range pkg.UsedTypes {
			all[idx] = struct{}{}
		}
	}
	return all
}

func disjoint(a, b map[int32]struct{}) bool {
	for idx := range a {
		if _, ok := b[idx]; ok {
			return false
		}
	}
	return true
}

// BuildUnits renders every retained package into a GenUnit. A package is
// retained (and its symbols resolvable by other retained packages) iff it
// is non-empty and either names a package kept unconditionally
// ("Takasho.Schema." prefix or exactly "Google.Rpc") or is not itself a
// "Google.*" package and its contained types intersect the schema-wide
// used-type set.
func (s *Schema) BuildUnits() ([]GenUnit, error) {
	allUsed := s.allUsedTypes()

	var units []GenUnit
	for _, pkg := range s.Packages {
		keepAlways := strings.HasPrefix(pkg.Name, "Takasho.Schema.") || pkg.Name == "Google.Rpc"
		retain := keepAlways || (!strings.HasPrefix(pkg.Name, "Google.") && !disjoint(pkg.ContainedTypes, allUsed))
		if !retain || pkg.IsEmpty() {
			continue
		}

		unit := GenUnit{
			Namespace:      pkg.Name,
			HeaderComments: pkg.HeaderComments,
			Imports:        make(map[string]struct{}),
		}

		for _, en := range pkg.Enums {
			unit.Enums = append(unit.Enums, en.FmtPretty(0))
		}

		for _, group := range pkg.MessageGroups {
			unit.Messages = append(unit.Messages, group.FmtPretty(0, pkg.Name))

			contained := group.GetContainedTypes()
			for idx := range group.GetUsedTypes() {
				if _, ok := contained[idx]; ok {
					continue
				}
				filename, err := s.getFormattedFilename(idx)
				if err != nil {
					return nil, err
				}
				unit.Imports[filename] = struct{}{}
			}
		}

		for _, svc := range pkg.Services {
			unit.Services = append(unit.Services, svc.FmtPretty(0))

			for _, idx := range svc.GetUsedTypes() {
				filename, err := s.getFormattedFilename(idx)
				if err != nil {
					return nil, err
				}
				unit.Imports[filename] = struct{}{}
			}
		}

		units = append(units, unit)
	}

	return units, nil
}

func (s *Schema) getFormattedFilename(typeIndex int32) (string, error) {
	ns, ok := s.typeFileMapping[typeIndex]
	if !ok {
		return "", fmt.Errorf("proto: missing type index in schema mapping for %d", typeIndex)
	}
	return remapBuiltinFilenames(ns), nil
}

// remapBuiltinFilenames rewrites the CLR Google.Protobuf.WellKnownTypes
// namespace to the standard google/protobuf/*.proto import path; every
// other namespace resolves to its owning package's own .proto file.
func remapBuiltinFilenames(namespace string) string {
	const wktPrefix = "Google.Protobuf.WellKnownTypes."
	if strings.HasPrefix(namespace, wktPrefix) {
		remaining := strings.TrimPrefix(namespace, wktPrefix)
		segs := strings.Split(remaining, ".")
		last := strings.ToLower(segs[len(segs)-1])
		return fmt.Sprintf("google/protobuf/%s.proto", last)
	}
	return formatPackageFilename(namespace)
}
