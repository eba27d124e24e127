package proto

// MapField is a `map<key, value>` message field.
type MapField struct {
	Name           string
	KeyType        string
	KeyTypeIndex   *int32
	ValueType      string
	ValueTypeIndex *int32
	Tag            int32
}

func NewMapField(keyType string, keyTypeIndex *int32, valueType string, valueTypeIndex *int32, name string, tag int32) MapField {
	return MapField{
		Name:           name,
		KeyType:        keyType,
		KeyTypeIndex:   keyTypeIndex,
		ValueType:      valueType,
		ValueTypeIndex: valueTypeIndex,
		Tag:            tag,
	}
}
