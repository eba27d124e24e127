package proto

// OneOf is a set of mutually-exclusive fields sharing one wire slot.
type OneOf struct {
	Name   string
	Fields []Field
}

func NewOneOf(name string) OneOf {
	return OneOf{Name: name}
}

// AddField appends field to the oneof, forcing its cardinality to Single:
// oneof members can't themselves be optional or repeated.
func (o *OneOf) AddField(field Field) {
	field.Cardinality = CardinalitySingle
	o.Fields = append(o.Fields, field)
}
