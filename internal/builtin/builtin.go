// Package builtin provides the Ruby core types as a member forest so that
// completion has something to offer for literals and unknown receivers.
package builtin

import (
	_ "embed"
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/phobologic/rubysense/internal/model"
)

// Path is the pseudo source path of the core forest in the cache.
const Path = "builtin:core"

//go:embed core.toml
var coreTOML string

// Type is one core class or module.
type Type struct {
	Name            string            `toml:"name"`
	Kind            string            `toml:"kind"`
	Superclass      string            `toml:"superclass"`
	Includes        []string          `toml:"includes"`
	InstanceMethods []string          `toml:"instance_methods"`
	ClassMethods    []string          `toml:"class_methods"`
	Returns         map[string]string `toml:"returns"`
}

type table struct {
	Types []Type `toml:"type"`
}

// Types decodes the embedded core table.
func Types() ([]Type, error) {
	var t table
	md, err := toml.Decode(coreTOML, &t)
	if err != nil {
		return nil, fmt.Errorf("decoding core types: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("decoding core types: unknown keys %v", undecoded)
	}
	return t.Types, nil
}

// Load builds the core forest. Members get distinct synthetic offsets so
// that identity comparisons do not conflate methods of different types.
func Load() (*model.Forest, error) {
	types, err := Types()
	if err != nil {
		return nil, err
	}
	return Build(types)
}

// Build turns a type table into a forest rooted at Path.
func Build(types []Type) (*model.Forest, error) {
	size := 0
	for _, t := range types {
		size += 1 + len(t.InstanceMethods) + len(t.ClassMethods)
	}
	b := model.NewBuilder(Path, size)
	offset := 0
	next := func() model.Span {
		s := model.Span{Outer: offset, Start: offset, End: offset + 1}
		offset++
		return s
	}

	seen := make(map[string]bool, len(types))
	for _, t := range types {
		if t.Name == "" {
			return nil, fmt.Errorf("core type without a name")
		}
		if seen[t.Name] {
			return nil, fmt.Errorf("core type %s declared twice", t.Name)
		}
		seen[t.Name] = true

		kind := model.KindClass
		switch t.Kind {
		case "module":
			kind = model.KindModule
		case "class", "":
		default:
			return nil, fmt.Errorf("core type %s: unknown kind %q", t.Name, t.Kind)
		}
		id := b.Add(b.Root(), model.Decl{
			Kind:       kind,
			Name:       t.Name,
			Span:       next(),
			Superclass: t.Superclass,
			Includes:   t.Includes,
		})
		for _, entry := range t.InstanceMethods {
			b.Add(id, methodDecl(entry, false, t.Returns, next()))
		}
		for _, entry := range t.ClassMethods {
			b.Add(id, methodDecl(entry, true, t.Returns, next()))
		}
	}
	return b.Build(), nil
}

// methodDecl parses "name" or "name(params)".
func methodDecl(entry string, classLevel bool, returns map[string]string, span model.Span) model.Decl {
	name, params := entry, ""
	if i := strings.Index(entry, "("); i > 0 {
		name, params = entry[:i], entry[i:]
	}
	d := model.Decl{
		Kind:       model.KindMethod,
		Name:       name,
		Span:       span,
		ClassLevel: classLevel,
		Params:     params,
	}
	if classLevel {
		d.Receiver = "self"
	}
	if r, ok := returns[name]; ok && !classLevel {
		d.ReturnTypes = []string{r}
	}
	return d
}
