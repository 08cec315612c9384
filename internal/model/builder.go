package model

// Decl describes a member to add to a Builder.
type Decl struct {
	Kind Kind
	Name string
	// Scope is a namespace prefix written in the declaration itself, such as
	// "Red::" for `class Red::Green`.
	Scope       string
	Span        Span
	Line        int
	ClassLevel  bool
	Receiver    string
	Params      string
	Doc         string
	Superclass  string
	Includes    []string
	ReturnTypes []string
}

// Builder assembles a Forest. Members must be added parent first; the parent
// link and namespace of a member are fixed by Add and never change.
type Builder struct {
	f *Forest
}

// NewBuilder starts a forest for path whose source text is length bytes long.
func NewBuilder(path string, length int) *Builder {
	f := &Forest{path: path, length: length}
	f.members = append(f.members, Member{
		Kind:   KindRoot,
		Name:   "root",
		Path:   path,
		span:   Span{End: length},
		id:     0,
		parent: NoID,
	})
	return &Builder{f: f}
}

// Root returns the id of the root member.
func (b *Builder) Root() ID { return 0 }

// Add appends a member under parent and returns its id.
func (b *Builder) Add(parent ID, d Decl) ID {
	if parent < 0 || int(parent) >= len(b.f.members) {
		parent = 0
	}
	id := ID(len(b.f.members))
	m := Member{
		Kind:        d.Kind,
		Name:        d.Name,
		Path:        b.f.path,
		Line:        d.Line,
		ClassLevel:  d.ClassLevel,
		Receiver:    d.Receiver,
		Params:      d.Params,
		Doc:         d.Doc,
		Superclass:  d.Superclass,
		Includes:    d.Includes,
		ReturnTypes: d.ReturnTypes,
		span:        d.Span,
		id:          id,
		parent:      parent,
	}

	container := b.container(parent)
	switch d.Kind {
	case KindModule, KindClass:
		if container != nil {
			m.namespace = container.namespace + container.Name + "::"
		}
		m.namespace += d.Scope
	case KindMethod:
		m.owner = ownerOf(container, d.Receiver)
		if m.owner != "" {
			m.namespace = m.owner + "::"
		}
	default:
		m.namespace = b.f.members[parent].namespace
		if p := b.f.members[parent]; p.IsContainer() {
			m.namespace = p.namespace + p.Name + "::"
		}
	}

	b.f.members = append(b.f.members, m)
	b.f.members[parent].children = append(b.f.members[parent].children, id)
	return id
}

// Include records a module mixed into the container with the given id.
func (b *Builder) Include(id ID, module string) {
	if id <= 0 || int(id) >= len(b.f.members) {
		return
	}
	m := &b.f.members[id]
	for _, existing := range m.Includes {
		if existing == module {
			return
		}
	}
	m.Includes = append(m.Includes, module)
}

// Lookup returns a member added so far. The pointer is only valid until the
// next Add.
func (b *Builder) Lookup(id ID) *Member {
	if id < 0 || int(id) >= len(b.f.members) {
		return nil
	}
	return &b.f.members[id]
}

// Build freezes the forest, links members to it and memoizes member paths.
// The builder must not be used afterwards.
func (b *Builder) Build() *Forest {
	f := b.f
	b.f = nil
	f.generation = generations.Add(1)
	for i := range f.members {
		m := &f.members[i]
		m.forest = f
		if i == 0 {
			continue
		}
		p := &f.members[m.parent]
		if p.Kind == KindRoot {
			m.path = []*Member{m}
			continue
		}
		// Parents always precede their children in the arena.
		path := make([]*Member, 0, len(p.path)+1)
		path = append(path, p.path...)
		m.path = append(path, m)
	}
	return f
}

func (b *Builder) container(id ID) *Member {
	for id != NoID {
		m := &b.f.members[id]
		if m.IsContainer() {
			return m
		}
		id = m.parent
	}
	return nil
}

// ownerOf picks the container a method is declared on. An explicit constant
// receiver that differs from the enclosing container wins.
func ownerOf(container *Member, receiver string) string {
	var enclosing string
	if container != nil {
		enclosing = container.namespace + container.Name
	}
	switch {
	case receiver == "" || receiver == "self":
		return enclosing
	case container != nil && (receiver == container.Name || receiver == enclosing):
		return enclosing
	default:
		return receiver
	}
}
