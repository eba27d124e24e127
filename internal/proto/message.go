package proto

// Message is a protobuf message: flat fields, oneofs, map fields, and any
// nested messages/enums attached by re-parenting (see extractor.go).
type Message struct {
	Name           string
	Fields         []Field
	OneOfs         []OneOf
	MapFields      []MapField
	NestedMessages []*Message
	NestedEnums    []Enum
	TypeIndex      int32
}

func NewMessage(name string, typeIndex int32) *Message {
	return &Message{Name: name, TypeIndex: typeIndex}
}

// Merge absorbs other's fields into m, matching and recursively merging
// nested messages by type index instead of duplicating them.
func (m *Message) Merge(other *Message) {
	m.Fields = append(m.Fields, other.Fields...)
	m.OneOfs = append(m.OneOfs, other.OneOfs...)
	m.MapFields = append(m.MapFields, other.MapFields...)
	m.NestedEnums = append(m.NestedEnums, other.NestedEnums...)

	for _, nested := range other.NestedMessages {
		var existing *Message
		for _, candidate := range m.NestedMessages {
			if candidate.TypeIndex == nested.TypeIndex {
				existing = candidate
				break
			}
		}
		if existing != nil {
			existing.Merge(nested)
		} else {
			m.NestedMessages = append(m.NestedMessages, nested)
		}
	}
}

func (m *Message) AddField(f Field)       { m.Fields = append(m.Fields, f) }
func (m *Message) AddOneOf(o OneOf)       { m.OneOfs = append(m.OneOfs, o) }
func (m *Message) AddMapField(mf MapField) { m.MapFields = append(m.MapFields, mf) }

// GetContainedTypes returns the type indices m declares: itself, its nested
// enums, and recursively its nested messages.
func (m *Message) GetContainedTypes() []int32 {
	contained := []int32{m.TypeIndex}
	for _, en := range m.NestedEnums {
		contained = append(contained, en.TypeIndex)
	}
	for _, nested := range m.NestedMessages {
		contained = append(contained, nested.GetContainedTypes()...)
	}
	return contained
}

// GetUsedTypes returns the type indices m references: field, oneof-field,
// and map key/value types, plus recursively the same for nested messages,
// plus nested enum type indices.
func (m *Message) GetUsedTypes() []int32 {
	var used []int32
	for _, f := range m.Fields {
		if f.TypeIndex != nil {
			used = append(used, *f.TypeIndex)
		}
	}
	for _, o := range m.OneOfs {
		for _, f := range o.Fields {
			if f.TypeIndex != nil {
				used = append(used, *f.TypeIndex)
			}
		}
	}
	for _, mf := range m.MapFields {
		if mf.KeyTypeIndex != nil {
			used = append(used, *mf.KeyTypeIndex)
		}
		if mf.ValueTypeIndex != nil {
			used = append(used, *mf.ValueTypeIndex)
		}
	}
	for _, nested := range m.NestedMessages {
		used = append(used, nested.GetUsedTypes()...)
	}
	for _, en := range m.NestedEnums {
		used = append(used, en.TypeIndex)
	}
	return used
}
