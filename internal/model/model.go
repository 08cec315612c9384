// Package model defines the structural member tree shared by the extractor,
// the symbol cache and the completion resolver.
package model

import (
	"errors"
	"fmt"
	"strings"
)

// Kind identifies the variant of a Member.
type Kind uint8

const (
	KindRoot Kind = iota
	KindModule
	KindClass
	KindMethod
	// KindCall is a block call such as `describe Foo do`. It only appears in
	// outlines and is never indexed.
	KindCall
	// KindKeyword is a language keyword offered by completion. Keywords never
	// belong to a forest.
	KindKeyword
)

func (k Kind) String() string {
	switch k {
	case KindRoot:
		return "root"
	case KindModule:
		return "module"
	case KindClass:
		return "class"
	case KindMethod:
		return "method"
	case KindCall:
		return "call"
	case KindKeyword:
		return "keyword"
	default:
		return "unknown"
	}
}

// ID indexes a member inside its forest's arena.
type ID int32

// NoID is the parent of a root member.
const NoID ID = -1

// ErrStaleForest is returned when offsets are read from a forest that has been
// replaced in or removed from the cache.
var ErrStaleForest = errors.New("stale forest")

// Span holds half-open byte offsets into the text a forest was extracted from.
// Outer is the start of the defining keyword, Start the start of the name.
type Span struct {
	Outer int
	Start int
	End   int
}

// Member is one node of the structural tree. The exported fields describe the
// declaration; tree links and offsets are fixed when the member is added to a
// Builder and are read through methods.
type Member struct {
	Kind       Kind
	Name       string
	Path       string
	Line       int // 1-indexed, as of extraction
	ClassLevel bool
	Receiver   string
	Params     string
	Doc        string

	// Containers only.
	Superclass string
	Includes   []string

	// Methods only.
	ReturnTypes []string

	namespace string
	owner     string
	span      Span
	id        ID
	parent    ID
	children  []ID
	path      []*Member
	forest    *Forest
}

// NewKeyword returns a free-standing keyword member for completion lists.
func NewKeyword(name string) *Member {
	return &Member{Kind: KindKeyword, Name: name, id: NoID, parent: NoID}
}

// ID returns the member's arena index.
func (m *Member) ID() ID { return m.id }

// Forest returns the forest the member belongs to, or nil for keywords.
func (m *Member) Forest() *Forest { return m.forest }

// Namespace returns the colon-delimited prefix assigned when the member was
// added, e.g. "Blue::Red::".
func (m *Member) Namespace() string { return m.namespace }

// FullName returns the namespace followed by the short name.
func (m *Member) FullName() string { return m.namespace + m.Name }

// Owner returns the full name of the container a method is declared on, or ""
// for top-level methods and non-methods.
func (m *Member) Owner() string { return m.owner }

// DisplayName renders methods in ri notation (Owner#name, Owner.name) and
// everything else by full name.
func (m *Member) DisplayName() string {
	if m.Kind != KindMethod || m.owner == "" {
		return m.FullName()
	}
	if m.ClassLevel {
		return m.owner + "." + m.Name
	}
	return m.owner + "#" + m.Name
}

func (m *Member) String() string { return m.FullName() }

// IsContainer reports whether the member can declare methods.
func (m *Member) IsContainer() bool {
	return m.Kind == KindModule || m.Kind == KindClass
}

// HasParameters reports whether the method declares a non-empty parameter list.
func (m *Member) HasParameters() bool {
	p := strings.TrimSpace(m.Params)
	p = strings.TrimSuffix(strings.TrimPrefix(p, "("), ")")
	return strings.TrimSpace(p) != ""
}

// Equal compares source identity: short name and start offset. A root member
// is only equal to itself.
func (m *Member) Equal(o *Member) bool {
	if m == nil || o == nil {
		return m == o
	}
	if m.Kind == KindRoot || o.Kind == KindRoot {
		return m == o
	}
	return m.Name == o.Name && m.span.Start == o.span.Start
}

// Span returns the member's offsets. It fails with ErrStaleForest once the
// owning forest has been retired.
func (m *Member) Span() (Span, error) {
	if m.forest != nil && m.forest.Retired() {
		return Span{}, fmt.Errorf("%s in %s (generation %d): %w",
			m.FullName(), m.forest.path, m.forest.generation, ErrStaleForest)
	}
	return m.span, nil
}

// Parent returns the parent member, or nil for the root and keywords.
func (m *Member) Parent() *Member {
	if m.forest == nil || m.parent == NoID {
		return nil
	}
	return &m.forest.members[m.parent]
}

// HasParent reports whether the member has a parent other than the root.
func (m *Member) HasParent() bool {
	p := m.Parent()
	return p != nil && p.Kind != KindRoot
}

// HasChildren reports whether the member has child members.
func (m *Member) HasChildren() bool { return len(m.children) > 0 }

// Children returns the child members in source order.
func (m *Member) Children() []*Member {
	if len(m.children) == 0 {
		return nil
	}
	out := make([]*Member, len(m.children))
	for i, id := range m.children {
		out[i] = &m.forest.members[id]
	}
	return out
}

// MemberPath returns the chain from the top-most non-root ancestor down to the
// member itself. The root's path is just the root.
func (m *Member) MemberPath() []*Member {
	if m.path == nil {
		return []*Member{m}
	}
	return m.path
}

// Container returns the nearest enclosing module or class.
func (m *Member) Container() *Member {
	for p := m.Parent(); p != nil; p = p.Parent() {
		if p.IsContainer() {
			return p
		}
	}
	return nil
}
