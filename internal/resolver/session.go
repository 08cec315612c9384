package resolver

import (
	"unicode"

	"github.com/phobologic/rubysense/internal/analyzer"
	"github.com/phobologic/rubysense/internal/model"
)

// Session is the short-lived state that straddles completion requests: the
// name last accepted per completion context and the return types of the
// last accepted method, used to chain `a.b.c`. The zero value is an empty
// session. Sessions are values; every transition returns a new one.
type Session struct {
	accepted      map[string]string
	returnTypes   []string
	chainReceiver string
}

// Accepted returns the name last accepted for the request's context.
func (s Session) Accepted(req *analyzer.Request) string {
	return s.accepted[contextKey(req)]
}

// ReturnTypes returns the remembered return types, if any.
func (s Session) ReturnTypes() []string { return s.returnTypes }

// chained reports whether the remembered return types apply to req.
func (s Session) chained(req *analyzer.Request) bool {
	return len(s.returnTypes) > 0 && s.chainReceiver != "" &&
		req.DotCompletion && req.Receiver == s.chainReceiver
}

// Keystroke returns the session after the user typed r. Any character that
// cannot continue an insertion point ends the session.
func (s Session) Keystroke(r rune) Session {
	if continues(r) {
		return s
	}
	return Session{}
}

func continues(r rune) bool {
	switch r {
	case '.', ':', '#', '?', '!', '@', '$', '_', '\b':
		return true
	}
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

func (s Session) withAccepted(req *analyzer.Request, m *model.Member) Session {
	next := Session{accepted: make(map[string]string, len(s.accepted)+1)}
	for k, v := range s.accepted {
		next.accepted[k] = v
	}
	next.accepted[contextKey(req)] = m.Name
	return next
}

func (s Session) withChain(receiver string, types []string) Session {
	s.chainReceiver = receiver
	s.returnTypes = append([]string(nil), types...)
	return s
}

// contextKey identifies the completion context a memo applies to: the
// inferred container, else the receiver text, else bare completion.
func contextKey(req *analyzer.Request) string {
	switch {
	case req.ContainerName != "":
		return req.ContainerName
	case req.Receiver != "":
		return req.Receiver
	}
	return ""
}
