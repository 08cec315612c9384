package resolver

import (
	"strings"

	"github.com/phobologic/rubysense/internal/analyzer"
	"github.com/phobologic/rubysense/internal/model"
)

// operatorStart lists the first characters of operator method names.
const operatorStart = "=<>%*-+/|~&^!"

// Insertion is the edit that accepting a candidate produces. The caller
// deletes Replace bytes before the caret, inserts Text and then moves the
// caret by CaretAdjust relative to the end of Text.
type Insertion struct {
	Text        string
	Replace     int
	CaretAdjust int
	// AppendDot reports whether a trailing dot may follow the insertion,
	// which continues the completion session.
	AppendDot bool
}

// insertionFor builds the edit for m without regard to the trigger key.
func insertionFor(req *analyzer.Request, m *model.Member) Insertion {
	ins := Insertion{Text: m.Name, Replace: len(req.Partial), AppendDot: true}
	name := m.Name
	switch {
	case m.Kind == model.KindMethod && name == "each":
		ins.Text = "each do ||"
		ins.CaretAdjust = -1
	case strings.HasPrefix(name, "[") && req.DotCompletion:
		// foo.[] becomes foo[]
		ins.Replace += len(req.Delimiter)
		ins.CaretAdjust = -1
		ins.AppendDot = false
	case m.Kind == model.KindMethod && name != "" && strings.ContainsRune(operatorStart, rune(name[0])) && req.DotCompletion:
		// foo.+ becomes foo + _
		ins.Replace += len(req.Delimiter)
		ins.Text = " " + name + " "
		ins.AppendDot = false
	case m.Kind == model.KindMethod && m.HasParameters():
		ins.Text = name + "()"
		ins.CaretAdjust = -1
	}
	if m.Kind == model.KindMethod && m.HasParameters() {
		ins.AppendDot = false
	}
	return ins
}

// Accept returns the edit for accepting m with the given trigger key and
// the session that follows. The accepted name is always remembered; the
// method's return types are remembered only when a dot trigger chains into
// another completion.
func Accept(req *analyzer.Request, m *model.Member, trigger rune, s Session) (Insertion, Session) {
	ins := insertionFor(req, m)
	next := s.withAccepted(req, m)

	switch trigger {
	case '.':
		if ins.AppendDot {
			ins.Text += "."
			if types := returnTypes(m); len(types) > 0 {
				next = next.withChain(m.Name, types)
			}
		}
	case ' ':
		if !m.HasParameters() && ins.AppendDot {
			ins.Text += " "
		}
	}
	return ins, next
}

// returnTypes resolves "self" to the method's owner.
func returnTypes(m *model.Member) []string {
	var out []string
	for _, t := range m.ReturnTypes {
		if t == "self" {
			if m.Owner() == "" {
				continue
			}
			t = m.Owner()
		}
		out = append(out, t)
	}
	return out
}
