package model

import (
	"sync/atomic"
)

var generations atomic.Uint64

// Forest is the member tree extracted from one source unit. Members live in a
// flat arena; parent and child links are arena indices. A forest is immutable
// once built and is replaced wholesale on re-extraction.
type Forest struct {
	path       string
	generation uint64
	length     int
	members    []Member
	retired    atomic.Bool
}

// Path returns the source unit the forest was extracted from.
func (f *Forest) Path() string { return f.path }

// Generation returns the process-wide sequence number assigned at build time.
func (f *Forest) Generation() uint64 { return f.generation }

// Length returns the byte length of the text the forest was extracted from.
func (f *Forest) Length() int { return f.length }

// Retire marks the forest as replaced. Offsets read afterwards are reported
// as stale.
func (f *Forest) Retire() { f.retired.Store(true) }

// Retired reports whether Retire has been called.
func (f *Forest) Retired() bool { return f.retired.Load() }

// Root returns the synthetic top-level member.
func (f *Forest) Root() *Member { return &f.members[0] }

// Member returns the member with the given id, or nil when out of range.
func (f *Forest) Member(id ID) *Member {
	if id < 0 || int(id) >= len(f.members) {
		return nil
	}
	return &f.members[id]
}

// Members returns the top-level members.
func (f *Forest) Members() []*Member { return f.Root().Children() }

// Len returns the number of members excluding the root.
func (f *Forest) Len() int { return len(f.members) - 1 }

// Walk visits members below the root in preorder. Returning false from fn
// skips the member's children.
func (f *Forest) Walk(fn func(m *Member) bool) {
	var visit func(id ID)
	visit = func(id ID) {
		m := &f.members[id]
		if !fn(m) {
			return
		}
		for _, c := range m.children {
			visit(c)
		}
	}
	for _, c := range f.members[0].children {
		visit(c)
	}
}

// All returns every member below the root in preorder.
func (f *Forest) All() []*Member {
	out := make([]*Member, 0, f.Len())
	f.Walk(func(m *Member) bool {
		out = append(out, m)
		return true
	})
	return out
}

// MemberAt returns the deepest member whose outer..end range contains offset,
// or nil when the offset lies outside every member.
func (f *Forest) MemberAt(offset int) *Member {
	var found *Member
	f.Walk(func(m *Member) bool {
		if offset < m.span.Outer || offset >= m.span.End {
			return false
		}
		found = m
		return true
	})
	return found
}

// Methods returns every method in the forest in preorder.
func (f *Forest) Methods() []*Member {
	var out []*Member
	f.Walk(func(m *Member) bool {
		if m.Kind == KindMethod {
			out = append(out, m)
		}
		return true
	})
	return out
}

// Containers returns every module and class in the forest in preorder.
func (f *Forest) Containers() []*Member {
	var out []*Member
	f.Walk(func(m *Member) bool {
		if m.IsContainer() {
			out = append(out, m)
		}
		return true
	})
	return out
}
