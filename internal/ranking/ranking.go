// Package ranking orders completion candidates for display.
package ranking

import (
	"sort"
	"strings"

	"github.com/phobologic/rubysense/internal/model"
)

// DefaultThreshold is the candidate count above which universal methods are
// pushed to the end of the list.
const DefaultThreshold = 20

// DefaultUniversal names the containers whose methods every object has.
var DefaultUniversal = []string{"Object", "Kernel", "BasicObject"}

// Options control Sort.
type Options struct {
	// Accepted is the short name last accepted in this completion context.
	// Candidates with that name sort first.
	Accepted string
	// Threshold is the list size above which universal methods move to the
	// end. Zero means DefaultThreshold; negative disables the push-down.
	Threshold int
	// Universal overrides DefaultUniversal when non-nil.
	Universal []string
}

// Less orders members by short name, full name, path and then by position in
// the file. Position uses the line and the arena ID so retired forests still
// order deterministically.
func Less(a, b *model.Member) bool {
	if a.Name != b.Name {
		return a.Name < b.Name
	}
	if fa, fb := a.FullName(), b.FullName(); fa != fb {
		return fa < fb
	}
	if a.Path != b.Path {
		return a.Path < b.Path
	}
	if a.Line != b.Line {
		return a.Line < b.Line
	}
	return a.ID() < b.ID()
}

// SortByName sorts members in place by Less.
func SortByName(members []*model.Member) {
	sort.SliceStable(members, func(i, j int) bool {
		return Less(members[i], members[j])
	})
}

// Sort orders candidates in place: the accepted name first, then by Less.
// When more than the threshold remain, members owned by a universal container
// move to the end keeping their relative order.
func Sort(members []*model.Member, opts Options) {
	sort.SliceStable(members, func(i, j int) bool {
		ai, aj := opts.Accepted != "" && members[i].Name == opts.Accepted,
			opts.Accepted != "" && members[j].Name == opts.Accepted
		if ai != aj {
			return ai
		}
		return Less(members[i], members[j])
	})

	threshold := opts.Threshold
	if threshold == 0 {
		threshold = DefaultThreshold
	}
	if threshold < 0 || len(members) <= threshold {
		return
	}
	universal := opts.Universal
	if universal == nil {
		universal = DefaultUniversal
	}
	set := make(map[string]bool, len(universal))
	for _, u := range universal {
		set[u] = true
	}
	sort.SliceStable(members, func(i, j int) bool {
		return !isUniversal(members[i], set) && isUniversal(members[j], set)
	})
}

func isUniversal(m *model.Member, set map[string]bool) bool {
	return m.Kind == model.KindMethod && set[m.Owner()]
}

// FilterPrefix returns the members whose short name starts with prefix.
// Matching is case-sensitive. An empty prefix keeps everything.
func FilterPrefix(members []*model.Member, prefix string) []*model.Member {
	if prefix == "" {
		return members
	}
	var out []*model.Member
	for _, m := range members {
		if strings.HasPrefix(m.Name, prefix) {
			out = append(out, m)
		}
	}
	return out
}

// Dedup drops repeated members keeping the first occurrence.
func Dedup(members []*model.Member) []*model.Member {
	seen := make(map[*model.Member]struct{}, len(members))
	out := members[:0:0]
	for _, m := range members {
		if _, ok := seen[m]; ok {
			continue
		}
		seen[m] = struct{}{}
		out = append(out, m)
	}
	return out
}

// Top returns at most n members. If n is <= 0 or >= len(members), all
// members are returned.
func Top(members []*model.Member, n int) []*model.Member {
	if n <= 0 || n >= len(members) {
		return members
	}
	return members[:n]
}
