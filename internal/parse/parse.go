// Package parse extracts the structural member tree of Ruby source using
// tree-sitter.
package parse

import (
	"context"
	"fmt"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/phobologic/rubysense/internal/lang"
	"github.com/phobologic/rubysense/internal/model"
)

// maxProblems caps the syntax problems reported for one unit.
const maxProblems = 20

// specCalls are block calls kept as outline members.
var specCalls = map[string]bool{
	"describe":        true,
	"context":         true,
	"it":              true,
	"specify":         true,
	"shared_examples": true,
	"shared_context":  true,
	"feature":         true,
	"scenario":        true,
}

// ExtractError reports why a unit could not be extracted.
type ExtractError struct {
	Path     string
	Problems []model.Problem
}

func (e *ExtractError) Error() string {
	if len(e.Problems) == 0 {
		return fmt.Sprintf("%s: extraction failed", e.Path)
	}
	msgs := make([]string, len(e.Problems))
	for i, p := range e.Problems {
		msgs[i] = p.String()
	}
	return fmt.Sprintf("%s: %s", e.Path, strings.Join(msgs, "; "))
}

// Err returns an *ExtractError for a failed extraction, or nil.
func Err(path string, ex model.Extraction) error {
	if !ex.Failed() {
		return nil
	}
	return &ExtractError{Path: path, Problems: ex.Errors()}
}

// Extract parses src and returns its member forest, or the problems that
// prevented one. Syntax errors anywhere in the unit fail the extraction.
func Extract(ctx context.Context, path string, src []byte) model.Extraction {
	parser := lang.Ruby().NewParser()
	defer parser.Close()

	tree, err := parser.ParseCtx(ctx, nil, src)
	if err != nil {
		return model.Extraction{Problems: []model.Problem{{
			Severity: model.SeverityError,
			Line:     1,
			Message:  fmt.Sprintf("parsing: %v", err),
		}}}
	}
	defer tree.Close()

	root := tree.RootNode()
	if root.HasError() {
		return model.Extraction{Problems: syntaxProblems(root, src)}
	}

	e := &extractor{
		src:     src,
		b:       model.NewBuilder(path, len(src)),
		defined: make(map[string]int),
	}
	e.visit(e.b.Root(), namedChildren(root), false)
	return model.Extraction{Forest: e.b.Build(), Problems: e.problems}
}

func syntaxProblems(root *sitter.Node, src []byte) []model.Problem {
	var problems []model.Problem
	var walk func(n *sitter.Node)
	walk = func(n *sitter.Node) {
		if len(problems) >= maxProblems {
			return
		}
		line := int(n.StartPoint().Row) + 1
		switch {
		case n.IsMissing():
			problems = append(problems, model.Problem{
				Severity: model.SeverityError,
				Line:     line,
				Message:  fmt.Sprintf("missing %q", n.Type()),
			})
			return
		case n.Type() == "ERROR":
			problems = append(problems, model.Problem{
				Severity: model.SeverityError,
				Line:     line,
				Message:  fmt.Sprintf("syntax error near %q", snippet(lang.NodeText(n, src))),
			})
			return
		case !n.HasError():
			return
		}
		for i := 0; i < int(n.ChildCount()); i++ {
			walk(n.Child(i))
		}
	}
	walk(root)
	if len(problems) == 0 {
		problems = append(problems, model.Problem{
			Severity: model.SeverityError,
			Line:     1,
			Message:  "syntax error",
		})
	}
	return problems
}

func snippet(s string) string {
	s = lang.CollapseWhitespace(s)
	if len(s) > 30 {
		s = s[:30] + "..."
	}
	return s
}

type extractor struct {
	src      []byte
	b        *model.Builder
	problems []model.Problem
	// defined counts method definitions per owner and name.
	defined map[string]int
}

func (e *extractor) visit(parent model.ID, nodes []*sitter.Node, classLevel bool) {
	for _, n := range nodes {
		switch n.Type() {
		case "class", "module":
			e.container(parent, n)
		case "method", "singleton_method":
			e.method(parent, n, classLevel)
		case "singleton_class":
			// class << self
			if v := n.ChildByFieldName("value"); v == nil || lang.NodeText(v, e.src) == "self" {
				e.visit(parent, lang.RubyBody(n), true)
			}
		case "call":
			e.call(parent, n, classLevel)
		case "if", "unless", "if_modifier", "unless_modifier",
			"then", "else", "elsif", "begin", "rescue", "ensure", "parenthesized_statements":
			e.visit(parent, branches(n), classLevel)
		}
	}
}

// branches returns the statements of a conditional or begin node, leaving
// out its condition.
func branches(n *sitter.Node) []*sitter.Node {
	cond := n.ChildByFieldName("condition")
	out := make([]*sitter.Node, 0, n.NamedChildCount())
	for _, child := range namedChildren(n) {
		if cond != nil && child.StartByte() == cond.StartByte() && child.EndByte() == cond.EndByte() {
			continue
		}
		out = append(out, child)
	}
	return out
}

func (e *extractor) container(parent model.ID, n *sitter.Node) {
	nameNode := lang.RubyContainerNode(n)
	if nameNode == nil {
		return
	}
	name, scope := lang.RubyContainerName(n, e.src)
	d := model.Decl{
		Kind:  model.KindModule,
		Name:  name,
		Scope: scope,
		Span: model.Span{
			Outer: int(n.StartByte()),
			Start: int(nameNode.EndByte()) - len(name),
			End:   int(n.EndByte()),
		},
		Line: int(nameNode.StartPoint().Row) + 1,
		Doc:  lang.RubyDocComment(n, e.src),
	}
	if n.Type() == "class" {
		d.Kind = model.KindClass
		d.Superclass = lang.RubySuperclass(n, e.src)
	}
	id := e.b.Add(parent, d)
	e.visit(id, lang.RubyBody(n), false)
}

func (e *extractor) method(parent model.ID, n *sitter.Node, classLevel bool) {
	nameNode := lang.RubyMethodName(n)
	if nameNode == nil {
		return
	}
	name := lang.NodeText(nameNode, e.src)
	receiver := lang.RubyMethodReceiver(n, e.src)
	switch {
	case receiver == "self":
		classLevel = true
	case receiver != "" && !isConstant(receiver):
		// def obj.name defines a singleton on a local object.
		receiver = ""
		classLevel = true
	case receiver != "":
		classLevel = true
	case classLevel:
		receiver = "self"
	}

	d := model.Decl{
		Kind:       model.KindMethod,
		Name:       name,
		Span:       model.Span{Outer: int(n.StartByte()), Start: int(nameNode.StartByte()), End: int(n.EndByte())},
		Line:       int(nameNode.StartPoint().Row) + 1,
		ClassLevel: classLevel,
		Receiver:   receiver,
		Params:     lang.RubyMethodParams(n, e.src),
		Doc:        lang.RubyDocComment(n, e.src),
	}
	if t := e.returnType(lang.RubyBody(n), parent, classLevel); t != "" {
		d.ReturnTypes = []string{t}
	}
	e.add(parent, d)
}

// add records a method and warns when the same owner already defines it.
func (e *extractor) add(parent model.ID, d model.Decl) {
	id := e.b.Add(parent, d)
	m := e.b.Lookup(id)
	key := fmt.Sprintf("%s %t %s", m.Owner(), m.ClassLevel, m.Name)
	e.defined[key]++
	if e.defined[key] > 1 {
		e.problems = append(e.problems, model.Problem{
			Severity: model.SeverityWarning,
			Line:     d.Line,
			Message:  fmt.Sprintf("method %s redefined", m.DisplayName()),
		})
	}
}

func (e *extractor) call(parent model.ID, n *sitter.Node, classLevel bool) {
	c := lang.RubyCallParts(n, e.src)
	if c.Receiver != nil && c.Method != "describe" {
		return
	}
	switch c.Method {
	case "include", "prepend":
		if !e.isContainer(parent) {
			return
		}
		for _, arg := range c.Arguments {
			if t := arg.Type(); t == "constant" || t == "scope_resolution" {
				e.b.Include(parent, strings.TrimPrefix(lang.NodeText(arg, e.src), "::"))
			}
		}
	case "attr_reader", "attr_writer", "attr_accessor":
		if !e.isContainer(parent) {
			return
		}
		e.attributes(parent, c, classLevel)
	default:
		if specCalls[c.Method] && c.Block != nil {
			e.specBlock(parent, n, c)
			return
		}
		if c.Receiver == nil {
			// private def red, memoize def total, private attr_reader :hue
			e.visit(parent, definitions(c.Arguments), classLevel)
		}
	}
}

// definitions keeps the arguments of a decorator call that define methods.
func definitions(args []*sitter.Node) []*sitter.Node {
	var out []*sitter.Node
	for _, arg := range args {
		switch arg.Type() {
		case "method", "singleton_method", "call":
			out = append(out, arg)
		}
	}
	return out
}

func (e *extractor) attributes(parent model.ID, c lang.RubyCall, classLevel bool) {
	reader := c.Method != "attr_writer"
	writer := c.Method != "attr_reader"
	var receiver string
	if classLevel {
		receiver = "self"
	}
	for _, arg := range c.Arguments {
		if t := arg.Type(); t != "simple_symbol" && t != "delimited_symbol" && t != "string" {
			continue
		}
		name := lang.RubySymbolName(arg, e.src)
		if name == "" {
			continue
		}
		span := model.Span{Outer: int(arg.StartByte()), Start: int(arg.StartByte()), End: int(arg.EndByte())}
		line := int(arg.StartPoint().Row) + 1
		if reader {
			e.add(parent, model.Decl{
				Kind: model.KindMethod, Name: name, Span: span, Line: line,
				ClassLevel: classLevel, Receiver: receiver,
			})
		}
		if writer {
			e.add(parent, model.Decl{
				Kind: model.KindMethod, Name: name + "=", Span: span, Line: line,
				ClassLevel: classLevel, Receiver: receiver, Params: "(value)",
			})
		}
	}
}

func (e *extractor) specBlock(parent model.ID, n *sitter.Node, c lang.RubyCall) {
	name := c.Method
	if len(c.Arguments) > 0 {
		name += " " + snippet(lang.NodeText(c.Arguments[0], e.src))
	}
	id := e.b.Add(parent, model.Decl{
		Kind: model.KindCall,
		Name: name,
		Span: model.Span{Outer: int(n.StartByte()), Start: int(n.StartByte()), End: int(n.EndByte())},
		Line: int(n.StartPoint().Row) + 1,
	})
	e.visit(id, lang.RubyBody(c.Block), false)
}

// returnType infers the class of the last expression in a method body.
func (e *extractor) returnType(body []*sitter.Node, parent model.ID, classLevel bool) string {
	var last *sitter.Node
	for i := len(body) - 1; i >= 0; i-- {
		if body[i].Type() != "comment" {
			last = body[i]
			break
		}
	}
	if last == nil {
		return ""
	}
	if last.Type() == "return" && last.NamedChildCount() > 0 {
		last = last.NamedChild(0)
		if last.Type() == "argument_list" {
			if last.NamedChildCount() != 1 {
				return ""
			}
			last = last.NamedChild(0)
		}
	}
	if t := lang.RubyLiteralType(last); t != "" {
		return t
	}
	switch last.Type() {
	case "call":
		c := lang.RubyCallParts(last, e.src)
		if c.Method == "new" && c.Receiver != nil {
			if t := c.Receiver.Type(); t == "constant" || t == "scope_resolution" {
				return strings.TrimPrefix(lang.NodeText(c.Receiver, e.src), "::")
			}
		}
	case "self":
		if classLevel {
			return ""
		}
		if m := e.b.Lookup(parent); m != nil && m.IsContainer() {
			return m.FullName()
		}
	}
	return ""
}

func (e *extractor) isContainer(id model.ID) bool {
	m := e.b.Lookup(id)
	return m != nil && m.IsContainer()
}

func isConstant(s string) bool {
	return s != "" && s[0] >= 'A' && s[0] <= 'Z'
}

func namedChildren(n *sitter.Node) []*sitter.Node {
	out := make([]*sitter.Node, 0, n.NamedChildCount())
	for i := 0; i < int(n.NamedChildCount()); i++ {
		out = append(out, n.NamedChild(i))
	}
	return out
}
