package lang

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/ruby"
)

func init() {
	Languages["ruby"] = &Language{
		Name:       "ruby",
		Extensions: []string{".rb", ".rake", ".gemspec", ".ru"},
		FileNames:  []string{"Rakefile", "Gemfile", "Guardfile", "Capfile"},
		lang:       ruby.GetLanguage(),
	}
}

// Ruby returns the registered Ruby language.
func Ruby() *Language { return Languages["ruby"] }

// literalTypes maps literal node types to the core class they evaluate to.
var literalTypes = map[string]string{
	"array":            "Array",
	"string_array":     "Array",
	"symbol_array":     "Array",
	"string":           "String",
	"chained_string":   "String",
	"subshell":         "String",
	"hash":             "Hash",
	"integer":          "Integer",
	"float":            "Float",
	"rational":         "Rational",
	"complex":          "Complex",
	"simple_symbol":    "Symbol",
	"delimited_symbol": "Symbol",
	"hash_key_symbol":  "Symbol",
	"regex":            "Regexp",
	"range":            "Range",
	"true":             "TrueClass",
	"false":            "FalseClass",
	"nil":              "NilClass",
	"lambda":           "Proc",
}

// RubyContainerNode returns the name node of a class or module node.
func RubyContainerNode(node *sitter.Node) *sitter.Node {
	if n := node.ChildByFieldName("name"); n != nil {
		return n
	}
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		if child.Type() == "constant" || child.Type() == "scope_resolution" {
			return child
		}
	}
	return nil
}

// RubyContainerName returns the short name of a class or module node and the
// namespace prefix written into the declaration: `class A::B::C` yields
// ("C", "A::B::").
func RubyContainerName(node *sitter.Node, source []byte) (name, scope string) {
	n := RubyContainerNode(node)
	if n == nil {
		return "", ""
	}
	text := strings.TrimPrefix(NodeText(n, source), "::")
	if i := strings.LastIndex(text, "::"); i >= 0 {
		return text[i+2:], text[:i+2]
	}
	return text, ""
}

// RubySuperclass returns the superclass expression of a class node, or "".
func RubySuperclass(node *sitter.Node, source []byte) string {
	sc := node.ChildByFieldName("superclass")
	if sc == nil {
		for i := 0; i < int(node.NamedChildCount()); i++ {
			if child := node.NamedChild(i); child.Type() == "superclass" {
				sc = child
				break
			}
		}
	}
	if sc == nil {
		return ""
	}
	for i := 0; i < int(sc.NamedChildCount()); i++ {
		child := sc.NamedChild(i)
		if child.Type() == "constant" || child.Type() == "scope_resolution" {
			return strings.TrimPrefix(NodeText(child, source), "::")
		}
	}
	return ""
}

// RubyMethodName returns the name node of a method or singleton_method.
func RubyMethodName(node *sitter.Node) *sitter.Node {
	if n := node.ChildByFieldName("name"); n != nil {
		return n
	}
	// def self.name: the name is the last identifier-like child before the
	// parameters.
	var found *sitter.Node
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		switch child.Type() {
		case "identifier", "constant", "setter", "operator":
			found = child
		case "method_parameters", "body_statement":
			return found
		}
	}
	return found
}

// RubyMethodReceiver returns the receiver text of `def recv.name`, or "" for
// an instance method.
func RubyMethodReceiver(node *sitter.Node, source []byte) string {
	if node.Type() != "singleton_method" {
		return ""
	}
	if obj := node.ChildByFieldName("object"); obj != nil {
		return NodeText(obj, source)
	}
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		switch child.Type() {
		case "self", "identifier", "constant":
			return NodeText(child, source)
		}
	}
	return ""
}

// RubyMethodParams returns the parameter list collapsed onto one line, or "".
func RubyMethodParams(node *sitter.Node, source []byte) string {
	p := node.ChildByFieldName("parameters")
	if p == nil {
		for i := 0; i < int(node.NamedChildCount()); i++ {
			if child := node.NamedChild(i); child.Type() == "method_parameters" {
				p = child
				break
			}
		}
	}
	if p == nil {
		return ""
	}
	params := CollapseWhitespace(NodeText(p, source))
	if !strings.HasPrefix(params, "(") {
		params = "(" + params + ")"
	}
	return params
}

// RubyBody returns the statements of a class, module, method or block node.
// Grammar versions differ on whether statements sit under a body_statement
// child; both shapes are handled.
func RubyBody(node *sitter.Node) []*sitter.Node {
	if node == nil {
		return nil
	}
	skip := make([]*sitter.Node, 0, 4)
	for _, field := range []string{"name", "parameters", "superclass", "object", "value"} {
		if n := node.ChildByFieldName(field); n != nil {
			skip = append(skip, n)
		}
	}
	var out []*sitter.Node
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		switch child.Type() {
		case "body_statement", "block_body":
			return namedChildren(child)
		case "method_parameters", "block_parameters", "superclass":
			continue
		}
		if containsNode(skip, child) {
			continue
		}
		out = append(out, child)
	}
	return out
}

// RubyCall holds the parts of a method call node.
type RubyCall struct {
	Receiver  *sitter.Node
	Method    string
	Arguments []*sitter.Node
	Block     *sitter.Node
}

// RubyCallParts splits a call node. Bare identifiers with arguments, such as
// `include Foo`, are calls without a receiver.
func RubyCallParts(node *sitter.Node, source []byte) RubyCall {
	var c RubyCall
	c.Receiver = node.ChildByFieldName("receiver")
	if m := node.ChildByFieldName("method"); m != nil {
		c.Method = NodeText(m, source)
	}
	if args := node.ChildByFieldName("arguments"); args != nil {
		c.Arguments = namedChildren(args)
	}
	c.Block = node.ChildByFieldName("block")
	if c.Method != "" {
		return c
	}
	// Older grammars expose calls positionally.
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		switch child.Type() {
		case "identifier", "constant":
			if c.Method == "" {
				c.Method = NodeText(child, source)
			}
		case "argument_list":
			c.Arguments = namedChildren(child)
		case "do_block", "block":
			c.Block = child
		}
	}
	return c
}

// RubyLiteralType returns the core class of a literal expression node, or ""
// when the node is not a literal.
func RubyLiteralType(node *sitter.Node) string {
	return literalTypes[node.Type()]
}

// RubySymbolName returns the name of a symbol literal without its colon.
func RubySymbolName(node *sitter.Node, source []byte) string {
	text := NodeText(node, source)
	text = strings.TrimPrefix(text, ":")
	text = strings.TrimSuffix(text, ":")
	return strings.Trim(text, `"'`)
}

// RubyDocComment returns the text of the contiguous `#` comment lines
// directly above node, without the comment markers.
func RubyDocComment(node *sitter.Node, source []byte) string {
	lineStart := int(node.StartByte())
	for lineStart > 0 && source[lineStart-1] != '\n' {
		lineStart--
	}
	var lines []string
	end := lineStart - 1
	for end > 0 {
		start := end
		for start > 0 && source[start-1] != '\n' {
			start--
		}
		line := strings.TrimSpace(string(source[start:end]))
		if !strings.HasPrefix(line, "#") {
			break
		}
		lines = append(lines, strings.TrimSpace(strings.TrimLeft(line, "#")))
		end = start - 1
	}
	for i, j := 0, len(lines)-1; i < j; i, j = i+1, j-1 {
		lines[i], lines[j] = lines[j], lines[i]
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

func namedChildren(node *sitter.Node) []*sitter.Node {
	out := make([]*sitter.Node, 0, node.NamedChildCount())
	for i := 0; i < int(node.NamedChildCount()); i++ {
		out = append(out, node.NamedChild(i))
	}
	return out
}

func containsNode(nodes []*sitter.Node, n *sitter.Node) bool {
	for _, c := range nodes {
		if c.StartByte() == n.StartByte() && c.EndByte() == n.EndByte() && c.Type() == n.Type() {
			return true
		}
	}
	return false
}
