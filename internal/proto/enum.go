package proto

import "fmt"

// EnumVariant is one named, numbered value of an Enum.
type EnumVariant struct {
	Name string
	Tag  int32
}

// Enum is a protobuf enum: a set of variants, each prefixed with the enum's
// own name to avoid proto3's shared enclosing-scope namespace.
type Enum struct {
	Name      string
	Variants  map[string]EnumVariant
	TypeIndex int32
}

func NewEnum(name string, typeIndex int32) Enum {
	return Enum{
		Name:      name,
		Variants:  make(map[string]EnumVariant),
		TypeIndex: typeIndex,
	}
}

// AddVariant records a variant, prefixing its rendered name with the enum's
// own name keyed by the CLR-level variant name.
func (e *Enum) AddVariant(name string, number int32) {
	e.Variants[name] = EnumVariant{Name: fmt.Sprintf("%s_%s", e.Name, name), Tag: number}
}
