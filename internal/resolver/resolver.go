// Package resolver turns a classified completion request into a ranked list
// of candidate members drawn from the symbol cache.
package resolver

import (
	"github.com/rs/zerolog/log"

	"github.com/phobologic/rubysense/internal/analyzer"
	"github.com/phobologic/rubysense/internal/cache"
	"github.com/phobologic/rubysense/internal/model"
	"github.com/phobologic/rubysense/internal/ranking"
)

// maxAncestorDepth bounds superclass and include chains. Cycles are also
// cut by a seen set; the bound covers long hand-written hierarchies.
const maxAncestorDepth = 16

// DefaultKeywords are offered for bare identifiers.
var DefaultKeywords = []string{
	"BEGIN", "END", "alias", "and", "begin", "break", "case", "class", "def",
	"defined?", "do", "else", "elsif", "end", "ensure", "false", "for", "if",
	"in", "module", "next", "nil", "not", "or", "redo", "rescue", "retry",
	"return", "self", "super", "then", "true", "undef", "unless", "until",
	"when", "while", "yield",
}

// Options configure a Resolver. Zero values select defaults.
type Options struct {
	// Threshold is passed to ranking.Sort.
	Threshold int
	// MaxCandidates truncates results; zero keeps everything.
	MaxCandidates int
	// Universal names the containers every object responds to.
	Universal []string
	// Keywords overrides DefaultKeywords when non-nil.
	Keywords []string
}

// Resolver answers completion requests against a cache.
type Resolver struct {
	cache    *cache.Cache
	opts     Options
	keywords []*model.Member
}

// New returns a resolver reading from c.
func New(c *cache.Cache, opts Options) *Resolver {
	if opts.Universal == nil {
		opts.Universal = ranking.DefaultUniversal
	}
	words := opts.Keywords
	if words == nil {
		words = DefaultKeywords
	}
	kw := make([]*model.Member, len(words))
	for i, w := range words {
		kw[i] = model.NewKeyword(w)
	}
	return &Resolver{cache: c, opts: opts, keywords: kw}
}

// HasCompletion reports whether req would produce at least one candidate.
func (r *Resolver) HasCompletion(req *analyzer.Request, s Session) bool {
	return len(r.Resolve(req, s)) > 0
}

// Resolve returns the ranked candidates for req.
func (r *Resolver) Resolve(req *analyzer.Request, s Session) []*model.Member {
	if req == nil || !req.Completable() {
		return nil
	}
	branch, candidates := r.candidates(req, s)
	candidates = ranking.FilterPrefix(candidates, req.Partial)
	candidates = ranking.Dedup(candidates)
	ranking.Sort(candidates, ranking.Options{
		Accepted:  s.Accepted(req),
		Threshold: r.opts.Threshold,
		Universal: r.opts.Universal,
	})
	candidates = ranking.Top(candidates, r.opts.MaxCandidates)
	log.Debug().
		Str("path", req.Path).
		Str("branch", branch).
		Str("receiver", req.Receiver).
		Str("partial", req.Partial).
		Int("candidates", len(candidates)).
		Msg("resolver: resolved")
	return candidates
}

func (r *Resolver) candidates(req *analyzer.Request, s Session) (string, []*model.Member) {
	switch {
	case s.chained(req):
		var out []*model.Member
		for _, t := range s.ReturnTypes() {
			out = append(out, r.typeMembers(t)...)
		}
		return "chain", out
	case req.ContainerName != "":
		if req.ReceiverIsClass {
			return "class", r.classReceiver(req)
		}
		return "container", r.typeMembers(req.ContainerName)
	case req.DotCompletion && req.Receiver == "self":
		container, classLevel := r.enclosing(req)
		if container == nil {
			return "self", r.universal()
		}
		if classLevel {
			return "self", r.classMembers(container.FullName())
		}
		return "self", r.instanceMembers(container.FullName())
	case req.DotCompletion:
		observed := analyzer.MethodsInvokedOn(req.Text(), req.Receiver)
		if len(observed) == 0 {
			return "duck", r.universal()
		}
		var out []*model.Member
		for _, t := range DuckTypes(r.cache, observed) {
			out = append(out, r.instanceMembers(t)...)
		}
		return "duck", out
	case req.Bare:
		return "bare", r.bare(req)
	}
	return "none", nil
}

// DuckTypes returns the full names of the containers whose instances define
// every one of the observed method names. The result shrinks as observations
// grow.
func DuckTypes(c *cache.Cache, observed []string) []string {
	if len(observed) == 0 {
		return nil
	}
	types := c.InstanceContainerNames(observed[0])
	for _, name := range observed[1:] {
		if len(types) == 0 {
			break
		}
		has := make(map[string]bool)
		for _, t := range c.InstanceContainerNames(name) {
			has[t] = true
		}
		kept := types[:0]
		for _, t := range types {
			if has[t] {
				kept = append(kept, t)
			}
		}
		types = kept
	}
	return types
}

// typeMembers returns the instance members of a named type, degrading to
// the universal set when the name is unknown.
func (r *Resolver) typeMembers(name string) []*model.Member {
	if !r.known(name) {
		return r.universal()
	}
	return r.instanceMembers(name)
}

func (r *Resolver) known(name string) bool {
	return r.cache.Container(name) != nil || len(r.cache.LookupMembersOf(name)) > 0
}

// instanceMembers returns instance methods of name and its ancestors plus
// the universal set.
func (r *Resolver) instanceMembers(name string) []*model.Member {
	out := r.ancestorMethods(name, false, map[string]bool{}, 0)
	return append(out, r.universal()...)
}

// classMembers returns class-level methods of name and its superclasses plus
// the instance methods of Class.
func (r *Resolver) classMembers(name string) []*model.Member {
	out := r.ancestorMethods(name, true, map[string]bool{}, 0)
	return append(out, r.instanceMembers("Class")...)
}

func (r *Resolver) classReceiver(req *analyzer.Request) []*model.Member {
	name := req.ContainerName
	if decl := r.cache.Container(name); decl != nil {
		name = decl.FullName()
	}
	var out []*model.Member
	if r.known(name) {
		out = r.classMembers(name)
	} else {
		out = r.universal()
	}
	if req.ClassNameCandidate {
		out = append(out, r.cache.ContainersWithPrefix(name+"::"+req.Partial)...)
	}
	return out
}

// ancestorMethods walks the superclass and include chain. Includes only
// contribute instance methods.
func (r *Resolver) ancestorMethods(name string, classLevel bool, seen map[string]bool, depth int) []*model.Member {
	full := name
	if decl := r.cache.Container(name); decl != nil {
		full = decl.FullName()
	}
	if seen[full] || depth > maxAncestorDepth {
		return nil
	}
	seen[full] = true

	var out []*model.Member
	for _, m := range r.cache.LookupMembersOf(full) {
		if m.ClassLevel == classLevel {
			out = append(out, m)
		}
	}
	for _, decl := range r.cache.Declarations(full) {
		if decl.Superclass != "" {
			out = append(out, r.ancestorMethods(decl.Superclass, classLevel, seen, depth+1)...)
		}
		if classLevel {
			continue
		}
		for _, inc := range decl.Includes {
			out = append(out, r.ancestorMethods(inc, false, seen, depth+1)...)
		}
	}
	return out
}

func (r *Resolver) universal() []*model.Member {
	seen := map[string]bool{}
	var out []*model.Member
	for _, u := range r.opts.Universal {
		out = append(out, r.ancestorMethods(u, false, seen, 0)...)
	}
	return out
}

// enclosing finds the container around the caret and whether code there runs
// at class level. Offsets are only trusted while the cached forest matches
// the buffer length.
func (r *Resolver) enclosing(req *analyzer.Request) (*model.Member, bool) {
	forest := r.cache.Forest(req.Path)
	if forest == nil || forest.Length() != req.BufferLength {
		return nil, false
	}
	m := forest.MemberAt(req.Caret)
	if m == nil {
		return nil, false
	}
	if m.IsContainer() {
		return m, true
	}
	var method *model.Member
	for p := m; p != nil && p.Kind != model.KindRoot; p = p.Parent() {
		if p.Kind == model.KindMethod {
			method = p
			break
		}
	}
	container := m.Container()
	if container == nil {
		return nil, false
	}
	return container, method == nil || method.ClassLevel
}

func (r *Resolver) bare(req *analyzer.Request) []*model.Member {
	if req.ClassNameCandidate {
		return r.cache.ContainersWithPrefix(req.Partial)
	}
	var out []*model.Member
	container, classLevel := r.enclosing(req)
	switch {
	case container == nil:
		out = r.universal()
	case classLevel:
		out = r.classMembers(container.FullName())
	default:
		out = r.instanceMembers(container.FullName())
	}
	if forest := r.cache.Forest(req.Path); forest != nil {
		for _, m := range forest.Members() {
			if m.Kind == model.KindMethod {
				out = append(out, m)
			}
		}
	}
	return append(out, r.keywords...)
}
