package proto

import (
	"fmt"
	"io"
	"sort"
	"strings"
)

// DefaultIndentSize is the fixed per-nesting-level indentation step used by
// every renderer below.
const DefaultIndentSize = 2

// GenFile is one rendered .proto source file.
type GenFile struct {
	Filename   string
	SourceCode string
}

// NewGenFile renders a complete file: header (syntax, package, sorted
// deduplicated imports with any self-import filtered) followed by content.
func NewGenFile(filename, packageName string, headerComments []string, imports map[string]struct{}, content string) GenFile {
	var b strings.Builder
	writeHeader(&b, packageName, headerComments, imports)
	fmt.Fprintln(&b, content)
	return GenFile{Filename: filename, SourceCode: b.String()}
}

func writeHeader(b *strings.Builder, packageName string, headerComments []string, imports map[string]struct{}) {
	for _, comment := range headerComments {
		fmt.Fprintf(b, "// %s\n", comment)
	}
	if len(headerComments) > 0 {
		b.WriteByte('\n')
	}

	fmt.Fprintln(b, `syntax = "proto3";`)
	b.WriteByte('\n')

	fmt.Fprintf(b, "package %s;\n", formatPackageName(packageName))
	b.WriteByte('\n')

	if len(imports) > 0 {
		sorted := make([]string, 0, len(imports))
		for imp := range imports {
			if strings.TrimSuffix(imp, ".proto") == packageName {
				continue
			}
			sorted = append(sorted, imp)
		}
		sort.Strings(sorted)
		for _, imp := range sorted {
			fmt.Fprintf(b, "import %q;\n", imp)
		}
		b.WriteByte('\n')
	}
}

// formatPackageName passes the CLR namespace through unchanged: it is used
// verbatim as both the proto package and the csharp_namespace option.
func formatPackageName(packageName string) string {
	return packageName
}

// formatPackageFilename derives a package's default .proto filename by
// dropping its last dotted segment (the type name) and appending the
// extension, e.g. "Foo.Bar.Baz" -> "Foo.Bar.proto".
func formatPackageFilename(packageName string) string {
	parts := strings.Split(packageName, ".")
	if len(parts) > 0 {
		parts = parts[:len(parts)-1]
	}
	return strings.Join(parts, ".") + ".proto"
}

// WriteEntryFile writes an aggregate entry-point .proto that publicly
// re-exports every file in publicImports under namespace.
func WriteEntryFile(w io.Writer, namespace string, publicImports []string) error {
	if _, err := fmt.Fprintln(w, "syntax = \"proto3\";\n"); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "package %s;\n\n", namespace); err != nil {
		return err
	}
	for _, imp := range publicImports {
		if _, err := fmt.Fprintf(w, "import public %q;\n", imp); err != nil {
			return err
		}
	}
	return nil
}

func indentStr(n int) string { return strings.Repeat(" ", n) }

// FmtPretty renders a field declaration. withNamespace qualifies the type
// with its (remapped) package when set.
func (f Field) FmtPretty(indent int, withNamespace bool) string {
	typeStr := f.Type
	if withNamespace {
		typeStr = fmt.Sprintf("%s.%s", formatPackageName(f.Namespace), f.Type)
	}
	if f.Cardinality == CardinalitySingle {
		return fmt.Sprintf("%s%s %s = %d;\n", indentStr(indent), typeStr, ToSnakeCase(f.Name), f.Tag)
	}
	return fmt.Sprintf("%s%s %s %s = %d;\n", indentStr(indent), f.Cardinality, typeStr, ToSnakeCase(f.Name), f.Tag)
}

// FmtPretty renders a `map<key, value> name = tag;` declaration.
func (m MapField) FmtPretty(indent int) string {
	return fmt.Sprintf("%smap<%s, %s> %s = %d;\n", indentStr(indent), m.KeyType, m.ValueType, ToSnakeCase(m.Name), m.Tag)
}

// FmtPretty renders a `oneof name { ... }` block, fields sorted by tag.
func (o OneOf) FmtPretty(indent int, currentNamespace string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%soneof %s {\n", indentStr(indent), ToSnakeCase(o.Name))

	sorted := append([]Field(nil), o.Fields...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Tag < sorted[j].Tag })
	for _, field := range sorted {
		withNamespace := field.Namespace != "" && field.Namespace != currentNamespace
		b.WriteString(field.FmtPretty(indent+DefaultIndentSize, withNamespace))
	}
	fmt.Fprintf(&b, "%s}\n", indentStr(indent))
	return b.String()
}

// FmtPretty renders an `enum Name { ... }` block, variants sorted by tag.
func (e Enum) FmtPretty(indent int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%senum %s {\n", indentStr(indent), e.Name)

	variants := make([]EnumVariant, 0, len(e.Variants))
	for _, v := range e.Variants {
		variants = append(variants, v)
	}
	sort.Slice(variants, func(i, j int) bool { return variants[i].Tag < variants[j].Tag })
	for _, v := range variants {
		b.WriteString(v.FmtPretty(indent + DefaultIndentSize))
	}
	fmt.Fprintf(&b, "%s}\n", indentStr(indent))
	return b.String()
}

// FmtPretty renders one `NAME = tag;` enum variant line.
func (v EnumVariant) FmtPretty(indent int) string {
	return fmt.Sprintf("%s%s = %d;\n", indentStr(indent), ToShoutySnakeCase(v.Name), v.Tag)
}

// FmtPretty renders a `message Name { ... }` block: nested enums, nested
// messages, fields sorted by tag, oneofs, then map fields sorted by tag.
func (m *Message) FmtPretty(indent int, currentNamespace string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%smessage %s {\n", indentStr(indent), m.Name)

	for _, en := range m.NestedEnums {
		b.WriteString(en.FmtPretty(indent + DefaultIndentSize))
	}
	for _, nested := range m.NestedMessages {
		b.WriteString(nested.FmtPretty(indent+DefaultIndentSize, currentNamespace))
	}

	sortedFields := append([]Field(nil), m.Fields...)
	sort.Slice(sortedFields, func(i, j int) bool { return sortedFields[i].Tag < sortedFields[j].Tag })
	for _, field := range sortedFields {
		withNamespace := field.Namespace != "" && field.Namespace != currentNamespace
		b.WriteString(field.FmtPretty(indent+DefaultIndentSize, withNamespace))
	}

	for _, oneof := range m.OneOfs {
		b.WriteString(oneof.FmtPretty(indent+DefaultIndentSize, currentNamespace))
	}

	sortedMaps := append([]MapField(nil), m.MapFields...)
	sort.Slice(sortedMaps, func(i, j int) bool { return sortedMaps[i].Tag < sortedMaps[j].Tag })
	for _, mf := range sortedMaps {
		b.WriteString(mf.FmtPretty(indent + DefaultIndentSize))
	}

	fmt.Fprintf(&b, "%s}\n", indentStr(indent))
	return b.String()
}

// FmtPretty renders every message in the group, in g.Messages order,
// separated by blank lines — protobuf requires mutually-recursive messages
// to share a file, but each still gets its own `message` block.
func (g MessageGroup) FmtPretty(indent int, currentNamespace string) string {
	var b strings.Builder
	for _, m := range g.Messages {
		b.WriteString(m.FmtPretty(indent, currentNamespace))
		b.WriteByte('\n')
	}
	return b.String()
}

// FmtPretty renders a `service Name { ... }` block.
func (s Service) FmtPretty(indent int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%sservice %s {\n", indentStr(indent), s.Name)
	for _, m := range s.Methods {
		b.WriteString(m.FmtPretty(indent + DefaultIndentSize))
	}
	fmt.Fprintf(&b, "%s}\n", indentStr(indent))
	return b.String()
}

// FmtPretty renders one `rpc Name (stream? In) returns (stream? Out);` line.
func (m ServiceMethod) FmtPretty(indent int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%srpc %s (", indentStr(indent), ToUpperCamelCase(m.Name))
	if m.ClientStreaming {
		b.WriteString("stream ")
	}
	fmt.Fprintf(&b, "%s) returns (", m.InputType)
	if m.ServerStreaming {
		b.WriteString("stream ")
	}
	fmt.Fprintf(&b, "%s);\n", m.OutputType)
	return b.String()
}
