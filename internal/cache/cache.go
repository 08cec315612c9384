// Package cache maintains the cross-file symbol indices used by completion.
// Every index is built from the forests handed to Update and is replaced per
// source path, so a path's contribution can always be retracted completely.
package cache

import (
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/phobologic/rubysense/internal/model"
	"github.com/phobologic/rubysense/internal/ranking"
)

type memberSet map[*model.Member]struct{}

func (s memberSet) sorted() []*model.Member {
	out := make([]*model.Member, 0, len(s))
	for m := range s {
		out = append(out, m)
	}
	Sort(out)
	return out
}

// Cache is the symbol cache. It is safe for concurrent use; a single RWMutex
// guards all indices so a path's contribution is swapped atomically.
type Cache struct {
	mu      sync.RWMutex
	forests map[string]*model.Forest

	// method short name -> method members
	nameToMethods map[string]memberSet
	// method short name -> owner full name -> number of methods
	methodNameToContainers map[string]map[string]int
	// method short name -> owner full name -> number of instance methods
	instanceNameToContainers map[string]map[string]int
	// owner full name -> method members
	ownerToMethods map[string]memberSet
	// owner short name -> method members
	ownerShortToMethods map[string]memberSet
	// container full name -> declarations (reopened classes have several)
	containers map[string]memberSet
	// container short name -> full name -> number of declarations
	shortNames map[string]map[string]int
}

// New returns an empty cache.
func New() *Cache {
	c := &Cache{}
	c.reset()
	return c
}

func (c *Cache) reset() {
	c.forests = make(map[string]*model.Forest)
	c.nameToMethods = make(map[string]memberSet)
	c.methodNameToContainers = make(map[string]map[string]int)
	c.instanceNameToContainers = make(map[string]map[string]int)
	c.ownerToMethods = make(map[string]memberSet)
	c.ownerShortToMethods = make(map[string]memberSet)
	c.containers = make(map[string]memberSet)
	c.shortNames = make(map[string]map[string]int)
}

// Update replaces the contribution of path with forest. A nil forest only
// retracts. The previous forest, if any, is retired.
func (c *Cache) Update(path string, forest *model.Forest) {
	c.mu.Lock()
	defer c.mu.Unlock()

	old := c.forests[path]
	if old != nil && old == forest {
		return
	}
	c.retract(path)
	if forest == nil {
		return
	}
	c.forests[path] = forest
	methods, containers := 0, 0
	forest.Walk(func(m *model.Member) bool {
		switch m.Kind {
		case model.KindMethod:
			c.insertMethod(m)
			methods++
		case model.KindModule, model.KindClass:
			c.insertContainer(m)
			containers++
		case model.KindCall:
			// Outline only; methods inside blocks are still indexed.
		case model.KindRoot, model.KindKeyword:
		}
		return true
	})
	log.Debug().
		Str("path", path).
		Uint64("generation", forest.Generation()).
		Int("methods", methods).
		Int("containers", containers).
		Msg("cache: updated")
}

// Apply updates path from an extraction. A failed extraction leaves the last
// known good contribution in place and reports false.
func (c *Cache) Apply(path string, ex model.Extraction) bool {
	if ex.Failed() {
		log.Debug().Str("path", path).Int("problems", len(ex.Problems)).Msg("cache: keeping last good forest")
		return false
	}
	c.Update(path, ex.Forest)
	return true
}

// Remove retracts every contribution of path. Unknown paths are a no-op.
func (c *Cache) Remove(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.retract(path)
}

// Clear empties the cache, retiring every forest.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, f := range c.forests {
		f.Retire()
	}
	c.reset()
}

func (c *Cache) retract(path string) {
	old, ok := c.forests[path]
	if !ok {
		return
	}
	delete(c.forests, path)
	old.Walk(func(m *model.Member) bool {
		switch m.Kind {
		case model.KindMethod:
			c.removeMethod(m)
		case model.KindModule, model.KindClass:
			c.removeContainer(m)
		case model.KindRoot, model.KindCall, model.KindKeyword:
		}
		return true
	})
	old.Retire()
	log.Debug().Str("path", path).Uint64("generation", old.Generation()).Msg("cache: retracted")
}

func (c *Cache) insertMethod(m *model.Member) {
	addMember(c.nameToMethods, m.Name, m)
	owner := m.Owner()
	if owner == "" {
		return
	}
	addCount(c.methodNameToContainers, m.Name, owner)
	if !m.ClassLevel {
		addCount(c.instanceNameToContainers, m.Name, owner)
	}
	addMember(c.ownerToMethods, owner, m)
	if short := shortName(owner); short != owner {
		addMember(c.ownerShortToMethods, short, m)
	}
}

func (c *Cache) removeMethod(m *model.Member) {
	removeMember(c.nameToMethods, m.Name, m)
	owner := m.Owner()
	if owner == "" {
		return
	}
	removeCount(c.methodNameToContainers, m.Name, owner)
	if !m.ClassLevel {
		removeCount(c.instanceNameToContainers, m.Name, owner)
	}
	removeMember(c.ownerToMethods, owner, m)
	if short := shortName(owner); short != owner {
		removeMember(c.ownerShortToMethods, short, m)
	}
}

func (c *Cache) insertContainer(m *model.Member) {
	full := m.FullName()
	addMember(c.containers, full, m)
	addCount(c.shortNames, m.Name, full)
}

func (c *Cache) removeContainer(m *model.Member) {
	full := m.FullName()
	removeMember(c.containers, full, m)
	removeCount(c.shortNames, m.Name, full)
}

// LookupMethods returns every method with the given short name.
func (c *Cache) LookupMethods(name string) []*model.Member {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.nameToMethods[name].sorted()
}

// LookupContainers returns the containers that define a method with the given
// short name, one declaration per container. Owners that are never declared
// as a module or class are skipped.
func (c *Cache) LookupContainers(methodName string) []*model.Member {
	c.mu.RLock()
	defer c.mu.RUnlock()
	owners := c.methodNameToContainers[methodName]
	out := make([]*model.Member, 0, len(owners))
	for owner := range owners {
		if decl := c.declaration(owner); decl != nil {
			out = append(out, decl)
		}
	}
	Sort(out)
	return out
}

// InstanceContainerNames returns the full names of every owner, declared or
// not, with an instance method named methodName, sorted.
func (c *Cache) InstanceContainerNames(methodName string) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return sortedKeys(c.instanceNameToContainers[methodName])
}

func sortedKeys(m map[string]int) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// LookupMembersOf returns the methods declared on the named container. The
// name is matched as a full name first and as a short name otherwise.
func (c *Cache) LookupMembersOf(containerName string) []*model.Member {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if set, ok := c.ownerToMethods[containerName]; ok {
		return set.sorted()
	}
	return c.ownerShortToMethods[containerName].sorted()
}

// Container resolves a container name to one declaration: by full name first,
// then by short name. Ambiguous short names resolve to the smallest full name.
func (c *Cache) Container(name string) *model.Member {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if decl := c.declaration(name); decl != nil {
		return decl
	}
	fulls := c.shortNames[name]
	if len(fulls) == 0 {
		return nil
	}
	names := make([]string, 0, len(fulls))
	for full := range fulls {
		names = append(names, full)
	}
	sort.Strings(names)
	return c.declaration(names[0])
}

// Declarations returns every declaration of the container with the given
// full name, one per reopening.
func (c *Cache) Declarations(fullName string) []*model.Member {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.containers[fullName].sorted()
}

// ContainersWithPrefix returns one declaration per container whose full or
// short name starts with prefix.
func (c *Cache) ContainersWithPrefix(prefix string) []*model.Member {
	c.mu.RLock()
	defer c.mu.RUnlock()
	seen := make(map[string]bool)
	var out []*model.Member
	add := func(full string) {
		if seen[full] {
			return
		}
		seen[full] = true
		if decl := c.declaration(full); decl != nil {
			out = append(out, decl)
		}
	}
	for full := range c.containers {
		if strings.HasPrefix(full, prefix) {
			add(full)
		}
	}
	for short, fulls := range c.shortNames {
		if !strings.HasPrefix(short, prefix) {
			continue
		}
		for full := range fulls {
			add(full)
		}
	}
	Sort(out)
	return out
}

// declaration returns the first declaration of a full container name.
// Callers hold the lock.
func (c *Cache) declaration(full string) *model.Member {
	set := c.containers[full]
	var first *model.Member
	for m := range set {
		if first == nil || less(m, first) {
			first = m
		}
	}
	return first
}

// Forest returns the current forest for path, or nil.
func (c *Cache) Forest(path string) *model.Forest {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.forests[path]
}

// Paths returns every path with a contribution, sorted.
func (c *Cache) Paths() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.forests))
	for p := range c.forests {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Stats summarizes the cache contents.
type Stats struct {
	Paths       int
	Methods     int
	MethodNames int
	Containers  int
}

// Stats returns current index sizes.
func (c *Cache) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s := Stats{
		Paths:       len(c.forests),
		MethodNames: len(c.nameToMethods),
		Containers:  len(c.containers),
	}
	for _, set := range c.nameToMethods {
		s.Methods += len(set)
	}
	return s
}

// Sort orders members by short name, full name, path and start offset.
func Sort(members []*model.Member) { ranking.SortByName(members) }

func less(a, b *model.Member) bool { return ranking.Less(a, b) }

func shortName(full string) string {
	if i := strings.LastIndex(full, "::"); i >= 0 {
		return full[i+2:]
	}
	return full
}

func addMember(index map[string]memberSet, key string, m *model.Member) {
	set, ok := index[key]
	if !ok {
		set = make(memberSet)
		index[key] = set
	}
	set[m] = struct{}{}
}

func removeMember(index map[string]memberSet, key string, m *model.Member) {
	set, ok := index[key]
	if !ok {
		return
	}
	delete(set, m)
	if len(set) == 0 {
		delete(index, key)
	}
}

func addCount(index map[string]map[string]int, key, value string) {
	counts, ok := index[key]
	if !ok {
		counts = make(map[string]int)
		index[key] = counts
	}
	counts[value]++
}

func removeCount(index map[string]map[string]int, key, value string) {
	counts, ok := index[key]
	if !ok {
		return
	}
	counts[value]--
	if counts[value] <= 0 {
		delete(counts, value)
	}
	if len(counts) == 0 {
		delete(index, key)
	}
}
