// Package trace provides types for narrating pipeline stage progress.
package trace

import "time"

// Tag represents a pipeline-stage event category.
// Tags are stored without # prefix; the prefix is added on rendering.
type Tag string

// Standard tags for pipeline stage events.
const (
	ELFLoad      Tag = "elf-load"
	Relocation   Tag = "relocation"
	KeyRecovery  Tag = "key-recovery"
	Decrypt      Tag = "decrypt"
	MetadataRead Tag = "metadata-read"
	TypeModel    Tag = "type-model"
	SchemaBuild  Tag = "schema-build"
	ProtoWrite   Tag = "proto-write"
	Service      Tag = "service"
	Enum         Tag = "enum"
	Message      Tag = "message"
	OneOf        Tag = "oneof"
	MapField     Tag = "map-field"
	Warning      Tag = "warning"
)

// Tags is an ordered set of event categories; the zeroth entry drives
// PrimaryTag/narrate() rendering, later entries are informational only.
type Tags []Tag

// Has reports whether tag is already present in t.
func (t Tags) Has(tag Tag) bool {
	for _, x := range t {
		if x == tag {
			return true
		}
	}
	return false
}

// Add appends tag, deduplicating against what's already in t.
func (t *Tags) Add(tag Tag) {
	if !t.Has(tag) {
		*t = append(*t, tag)
	}
}

// Strings renders every tag with its display '#' prefix.
func (t Tags) Strings() []string {
	out := make([]string, len(t))
	for i, tag := range t {
		out[i] = "#" + string(tag)
	}
	return out
}

// Raw renders every tag without the '#' prefix.
func (t Tags) Raw() []string {
	out := make([]string, len(t))
	for i, tag := range t {
		out[i] = string(tag)
	}
	return out
}

// Primary returns t's first (driving) tag, or "" if t is empty.
func (t Tags) Primary() Tag {
	if len(t) > 0 {
		return t[0]
	}
	return ""
}

// Annotations is the free-form key/value sidecar carried on every Event
// (package name, byte counts, message/enum/service tallies, ...).
type Annotations map[string]string

// Set stores v under k, overwriting any prior value.
func (a Annotations) Set(k, v string) {
	a[k] = v
}

// Get looks up k, returning "" when absent.
func (a Annotations) Get(k string) string {
	return a[k]
}

// Has reports whether k has been set.
func (a Annotations) Has(k string) bool {
	_, ok := a[k]
	return ok
}

// Event represents one pipeline-stage milestone with rich metadata, used by
// the CLI's outputWriter to narrate progress through components A-H without
// the pipeline package itself depending on any presentation concern.
type Event struct {
	Stage       string      // pipeline stage name ("decrypt_metadata", "generate_protos", ...)
	Tags        Tags        // multiple hashtags, first is primary
	Name        string      // subject of the event (a package name, a file path, ...)
	Detail      string      // additional detail ("23 messages", "1234 bytes", ...)
	Annotations Annotations // key-value metadata
	Timestamp   time.Time   // when the event occurred
}

// NewEvent creates a new stage event with the given parameters.
func NewEvent(stage string, category Tag, name, detail string) *Event {
	return &Event{
		Stage:       stage,
		Tags:        Tags{category},
		Name:        name,
		Detail:      detail,
		Annotations: make(Annotations),
		Timestamp:   time.Now(),
	}
}

// AddTag adds a tag to the event.
func (e *Event) AddTag(tag Tag) {
	e.Tags.Add(tag)
}

// Annotate sets an annotation on the event.
func (e *Event) Annotate(k, v string) {
	if e.Annotations == nil {
		e.Annotations = make(Annotations)
	}
	e.Annotations.Set(k, v)
}

// PrimaryTag returns the primary (first) tag with # prefix.
func (e *Event) PrimaryTag() string {
	if len(e.Tags) > 0 {
		return "#" + string(e.Tags[0])
	}
	return ""
}

// Enricher enriches stage events based on their primary tag and name.
type Enricher func(e *Event)

// DefaultEnricher adds a secondary tag for the schema-builder's three
// recovered shapes: a schema-build event named "service", "enum" or
// "message" gains the Service, Enum or Message tag.
func DefaultEnricher(e *Event) {
	if len(e.Tags) == 0 {
		return
	}

	switch e.Tags[0] {
	case SchemaBuild:
		switch e.Name {
		case "service":
			e.AddTag(Service)
		case "enum":
			e.AddTag(Enum)
		case "message":
			e.AddTag(Message)
		}
	}
}
