package proto

// Package is one CLR namespace's accumulated schema contents. It starts
// mutable during discovery and is frozen by Seal, which partitions its
// messages into MessageGroups and computes the derived type-index sets
// used for dead-package elimination and import resolution.
type Package struct {
	sealed bool

	Name            string
	HeaderComments  []string
	Enums           []Enum
	messages        []*Message
	MessageGroups   []MessageGroup
	Services        []Service
	UsedTypes       map[int32]struct{}
	ContainedTypes  map[int32]struct{}
}

func NewPackage(name string, headerComments []string) *Package {
	return &Package{Name: name, HeaderComments: headerComments}
}

func (p *Package) AddEnum(e Enum) {
	if p.sealed {
		panic("proto: cannot add enum to sealed package")
	}
	p.Enums = append(p.Enums, e)
}

func (p *Package) AddMessage(m *Message) {
	if p.sealed {
		panic("proto: cannot add message to sealed package")
	}
	p.messages = append(p.messages, m)
}

func (p *Package) AddService(s Service) {
	if p.sealed {
		panic("proto: cannot add service to sealed package")
	}
	p.Services = append(p.Services, s)
}

// Messages returns the package's not-yet-grouped messages. Panics if
// called after Seal, mirroring the sealed-state invariant of Rust's
// `messages()`/`messages_mut()`.
func (p *Package) Messages() []*Message {
	if p.sealed {
		panic("proto: cannot access messages of sealed package")
	}
	return p.messages
}

func (p *Package) IsEmpty() bool {
	return len(p.Enums) == 0 && len(p.messages) == 0 && len(p.MessageGroups) == 0 && len(p.Services) == 0
}

// Seal partitions the package's messages into MessageGroups via
// messagesToMessageGroups and computes UsedTypes/ContainedTypes. After Seal,
// Messages/AddEnum/AddMessage/AddService must not be called.
func (p *Package) Seal() {
	p.sealed = true
	p.MessageGroups = messagesToMessageGroups(p.messages)
	p.messages = nil
	p.storeTypes()
}

func (p *Package) storeTypes() {
	p.UsedTypes = make(map[int32]struct{})
	p.ContainedTypes = make(map[int32]struct{})

	for _, en := range p.Enums {
		p.ContainedTypes[en.TypeIndex] = struct{}{}
	}
	for _, group := range p.MessageGroups {
		for idx := range group.GetContainedTypes() {
			p.ContainedTypes[idx] = struct{}{}
		}
		for idx := range group.GetUsedTypes() {
			p.UsedTypes[idx] = struct{}{}
		}
	}
	for _, svc := range p.Services {
		p.ContainedTypes[svc.TypeIndex] = struct{}{}
		for _, idx := range svc.GetUsedTypes() {
			p.UsedTypes[idx] = struct{}{}
		}
	}
}
