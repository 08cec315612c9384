package analyzer

import (
	"regexp"
	"strconv"
	"strings"
)

// maxAliasDepth bounds how many `a = b` hops AssignedType follows.
const maxAliasDepth = 3

// Point is a receiver/delimiter/partial triple found at the end of a line.
type Point struct {
	Receiver  string
	Delimiter string
	Partial   string
	// Literal is set when the receiver is a literal expression rather than a
	// name.
	Literal bool
}

var (
	// Receiver tokens: optional sigil, word chars, optional ::segments.
	insertionRe = regexp.MustCompile(`((?:@@|@|\$)?\w+(?:::\w+)*)(\.|::|#)(\w*[?!]?)$`)

	// Literal receivers. Each pattern is anchored at the end of the line and
	// captures (prefix, literal, partial). The prefix rejects index and call
	// expressions such as foo[1].
	literalRes = []*regexp.Regexp{
		regexp.MustCompile(`(^|[^\w.\])"'])(-?\d[\d_]*(?:\.\d[\d_]*)?(?:[eE][+-]?\d+)?)\.([A-Za-z_]\w*[?!]?|)$`),
		regexp.MustCompile(`(^|[^\w:])(:(?:[A-Za-z_]\w*[?!=]?|"[^"]*"))\.(\w*[?!]?)$`),
		regexp.MustCompile(`(^|[^\w\])])("(?:[^"\\]|\\.)*"|'(?:[^'\\]|\\.)*')\.(\w*[?!]?)$`),
		regexp.MustCompile(`(^|[^\w\])])(\[[^\[\]]*\])\.(\w*[?!]?)$`),
		regexp.MustCompile(`(^|[^\w\])])(\{[^{}]*\})\.(\w*[?!]?)$`),
		regexp.MustCompile(`(^|[^\w\])])(/(?:[^/\\\n]|\\.)+/[imxo]*)\.(\w*[?!]?)$`),
		regexp.MustCompile(`(^|[^\w\])])(%[A-Za-z]?(?:\([^()]*\)|\[[^\[\]]*\]|\{[^{}]*\}|<[^<>]*>|\|[^|]*\||![^!]*!))\.(\w*[?!]?)$`),
		regexp.MustCompile(`(^|[^\w\])])(\(\s*-?[\w.]+?\s*\.\.\.?\s*-?[\w.]*\s*\))\.(\w*[?!]?)$`),
	}

	classNameRe          = regexp.MustCompile(`^[A-Z]\w*(?:::[A-Z]\w*)*$`)
	classNameCandidateRe = regexp.MustCompile(`^(?:[A-Z]\w*(?:::)?)+:?$`)
	barePartialRe        = regexp.MustCompile(`(?:^|[^\w.:#@$])([A-Za-z_]\w*[?!]?)$`)
	newRe                = regexp.MustCompile(`^:{0,2}([A-Z]\w*(?:::[A-Z]\w*)*)(?:\.|::)new\b`)
	localNameRe          = regexp.MustCompile(`^[a-z_]\w*$`)
	rangeRe              = regexp.MustCompile(`^\(.*[^.]\.\.\.?[^.].*\)$`)
)

// InsertionPoint finds a receiver followed by `.`, `::` or `#` and an
// optional partial method name at the end of line.
func InsertionPoint(line string) (Point, bool) {
	for _, re := range literalRes {
		if m := re.FindStringSubmatch(line); m != nil {
			return Point{Receiver: m[2], Delimiter: ".", Partial: m[3], Literal: true}, true
		}
	}
	m := insertionRe.FindStringSubmatch(line)
	if m == nil {
		return Point{}, false
	}
	// A float being typed, such as 3.1, is not a method call.
	if c := m[1][0]; c >= '0' && c <= '9' {
		return Point{}, false
	}
	return Point{Receiver: m[1], Delimiter: m[2], Partial: m[3]}, true
}

// LiteralType maps literal text to the core class it evaluates to, or ""
// when the text is not a recognized literal.
func LiteralType(text string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return ""
	}
	switch text {
	case "true":
		return "TrueClass"
	case "false":
		return "FalseClass"
	case "nil":
		return "NilClass"
	}
	switch text[0] {
	case '[':
		return "Array"
	case '"', '\'', '`':
		return "String"
	case '{':
		return "Hash"
	case '/':
		return "Regexp"
	case ':':
		if len(text) > 1 && text[1] != ':' {
			return "Symbol"
		}
		return ""
	case '%':
		return percentLiteralType(text)
	case '(':
		if rangeRe.MatchString(text) {
			return "Range"
		}
		return ""
	case '-', '+', '0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
		return numericType(text)
	}
	return ""
}

// percentLiteralType classifies %w(), %i[], %r{}, ... by the character
// following the percent sign.
func percentLiteralType(text string) string {
	if len(text) < 2 {
		return ""
	}
	switch text[1] {
	case 'w', 'W', 'i', 'I':
		return "Array"
	case 'r':
		return "Regexp"
	case 's':
		return "Symbol"
	case 'q', 'Q', 'x', '(', '[', '{', '<', '|', '!':
		return "String"
	}
	return ""
}

func numericType(text string) string {
	clean := strings.ReplaceAll(text, "_", "")
	if _, err := strconv.ParseInt(clean, 0, 64); err == nil {
		return "Integer"
	}
	if _, err := strconv.ParseFloat(clean, 64); err == nil {
		return "Float"
	}
	return ""
}

// IsClassName reports whether a receiver names a constant such as Foo or
// Foo::Bar.
func IsClassName(receiver string) bool {
	return classNameRe.MatchString(receiver)
}

// IsClassNameCandidate reports whether a bare partial looks like the start of
// a constant reference.
func IsClassNameCandidate(partial string) bool {
	return classNameCandidateRe.MatchString(partial)
}

// BarePartial returns the identifier fragment at the end of a line that has
// no receiver. A blank line is a statement start with an empty partial.
func BarePartial(line string) (string, bool) {
	if strings.TrimSpace(line) == "" {
		return "", true
	}
	m := barePartialRe.FindStringSubmatch(line)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// AssignedType scans text for the most recent assignment to name and infers
// the class of its right-hand side: `Const.new`, a literal, or another local
// name followed up to a fixed depth.
func AssignedType(text, name string) string {
	return assignedType(text, name, maxAliasDepth)
}

func assignedType(text, name string, depth int) string {
	if depth <= 0 || name == "" {
		return ""
	}
	re := regexp.MustCompile(`(?m)(?:^|[^\w@$.])` + regexp.QuoteMeta(name) + `[ \t]*=[ \t]*([^=~>\s].*)$`)
	matches := re.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return ""
	}
	rhs := strings.TrimSpace(stripTrailingComment(matches[len(matches)-1][1]))
	if m := newRe.FindStringSubmatch(rhs); m != nil {
		return m[1]
	}
	if t := LiteralType(rhs); t != "" {
		return t
	}
	if localNameRe.MatchString(rhs) && rhs != name {
		return assignedType(text, rhs, depth-1)
	}
	return ""
}

// stripTrailingComment drops a ` # comment` tail and statement separators.
func stripTrailingComment(s string) string {
	if i := strings.Index(s, " #"); i >= 0 {
		s = s[:i]
	}
	if i := strings.Index(s, ";"); i >= 0 {
		s = s[:i]
	}
	return s
}

// MethodsInvokedOn returns the distinct method names called on receiver via
// `.` or `#`, in order of first appearance.
func MethodsInvokedOn(text, receiver string) []string {
	if receiver == "" {
		return nil
	}
	re := regexp.MustCompile(`(?:^|[^\w@$:.])` + regexp.QuoteMeta(receiver) + `(?:\.|#)(\w+[?!]?)`)
	seen := make(map[string]bool)
	var out []string
	for _, m := range re.FindAllStringSubmatch(text, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			out = append(out, m[1])
		}
	}
	return out
}
