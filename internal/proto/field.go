// Package proto reconstructs a Protocol Buffer schema from the classified
// IL2CPP type model: it groups types into packages, partitions
// mutually-recursive messages into message groups, and renders proto3 text.
package proto

import "fmt"

// Cardinality is a field's repetition modifier.
type Cardinality int

const (
	CardinalitySingle Cardinality = iota
	CardinalityOptional
	CardinalityRepeated
)

// String renders the keyword that precedes a field's type, matching the
// original's Display impl: "optional", "repeated", or nothing for Single.
func (c Cardinality) String() string {
	switch c {
	case CardinalityOptional:
		return "optional"
	case CardinalityRepeated:
		return "repeated"
	default:
		return ""
	}
}

// Field is a scalar or message-typed message field.
type Field struct {
	Namespace   string
	Name        string
	Type        string
	TypeIndex   *int32
	Tag         int32
	Cardinality Cardinality
}

// NewField builds a field and remaps its namespace if it names a well-known
// type. namespace and cardinality are optional; a nil cardinality defaults
// to Single.
func NewField(namespace *string, name, fieldType string, typeIndex *int32, tag int32, cardinality *Cardinality) Field {
	f := Field{
		Name:      name,
		Type:      fieldType,
		TypeIndex: typeIndex,
		Tag:       tag,
	}
	if namespace != nil {
		f.Namespace = *namespace
	}
	if cardinality != nil {
		f.Cardinality = *cardinality
	}
	return f.remapWellKnown()
}

func (f Field) remapWellKnown() Field {
	if f.Namespace == "Google.Protobuf.WellKnownTypes" {
		f.Namespace = "google.protobuf"
	}
	return f
}

func (f Field) String() string {
	if f.Namespace != "" {
		return fmt.Sprintf("%s.%s", f.Namespace, f.Type)
	}
	return f.Type
}
