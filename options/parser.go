package options

import (
	"fmt"
	"regexp"
	"strings"
)

var numberRegex = regexp.MustCompile(`^[+-]?[0-9]+(\.[0-9]+)?$`)

// ParseError reports the first unparseable character of a configuration
type ParseError struct {
	Input  string // Raw input that failed to parse
	Offset int    // 0-based byte offset of the offending character
	Reason string
	Path   string // Set when the input was read from a file
}

func (e *ParseError) Error() string {
	line, col := e.position()
	if e.Path != "" {
		return fmt.Sprintf("%s:%d:%d: %s", e.Path, line, col, e.Reason)
	}
	return fmt.Sprintf("parse error at offset %d: %s", e.Offset, e.Reason)
}

// position returns the 1-based line and column of the offset
func (e *ParseError) position() (int, int) {
	before := e.Input[:min(e.Offset, len(e.Input))]
	line := strings.Count(before, "\n") + 1
	col := e.Offset - (strings.LastIndex(before, "\n") + 1) + 1
	return line, col
}

// Caret renders the offending input line with a caret under the failing character
func (e *ParseError) Caret() string {
	offset := min(e.Offset, len(e.Input))
	start := strings.LastIndex(e.Input[:offset], "\n") + 1
	end := len(e.Input)
	if i := strings.IndexByte(e.Input[offset:], '\n'); i != -1 {
		end = offset + i
	}
	line := strings.TrimRight(e.Input[start:end], "\r")
	return fmt.Sprintf("INPUT: %s\nPOS  : %s^", line, strings.Repeat(" ", offset-start))
}

type parser struct {
	input string
	pos   int
}

// Parse turns a raw option string into a Set. On failure the error is a *ParseError.
func Parse(raw string) (*Set, error) {
	p := &parser{input: raw}
	return p.parse()
}

func (p *parser) parse() (*Set, error) {
	set := NewSet()
	var cur *Directive
	for {
		p.skipSpace()
		if p.pos >= len(p.input) {
			break
		}

		c := p.input[p.pos]
		switch {
		case c == '-' && p.pos+1 < len(p.input) && isNameStart(p.input[p.pos+1]):
			if cur != nil {
				set.add(*cur)
			}
			name, err := p.name()
			if err != nil {
				return nil, err
			}
			cur = &Directive{Name: name}
		case cur == nil && c == '-':
			return nil, p.errorAt(p.pos+1, "expected an option name after '-'")
		case cur == nil:
			return nil, p.errorAt(p.pos, "expected an option starting with '-'")
		case c == '"':
			v, err := p.quoted()
			if err != nil {
				return nil, err
			}
			cur.Values = append(cur.Values, v)
		default:
			v, err := p.word()
			if err != nil {
				return nil, err
			}
			cur.Values = append(cur.Values, v)
		}
	}
	if cur != nil {
		set.add(*cur)
	}
	return set, nil
}

func (p *parser) errorAt(offset int, reason string) *ParseError {
	return &ParseError{Input: p.input, Offset: offset, Reason: reason}
}

func (p *parser) skipSpace() {
	for p.pos < len(p.input) && isSpace(p.input[p.pos]) {
		p.pos++
	}
}

// name consumes "-name" with an optional trailing ':'
func (p *parser) name() (string, error) {
	p.pos++ // '-'
	start := p.pos
	for p.pos < len(p.input) && isNameChar(p.input[p.pos]) {
		p.pos++
	}
	name := p.input[start:p.pos]
	if p.pos < len(p.input) && p.input[p.pos] == ':' {
		p.pos++
	}
	if p.pos < len(p.input) && !isSpace(p.input[p.pos]) {
		return "", p.errorAt(p.pos, fmt.Sprintf("unexpected character %q in option name", p.input[p.pos]))
	}
	return name, nil
}

func (p *parser) quoted() (Value, error) {
	open := p.pos
	p.pos++
	var b strings.Builder
	for {
		if p.pos >= len(p.input) {
			return Value{}, p.errorAt(open, "unterminated quoted string")
		}
		c := p.input[p.pos]
		if c == '\\' && p.pos+1 < len(p.input) && (p.input[p.pos+1] == '"' || p.input[p.pos+1] == '\\') {
			b.WriteByte(p.input[p.pos+1])
			p.pos += 2
			continue
		}
		p.pos++
		if c == '"' {
			break
		}
		b.WriteByte(c)
	}
	if p.pos < len(p.input) && !isSpace(p.input[p.pos]) {
		return Value{}, p.errorAt(p.pos, "expected whitespace after quoted string")
	}
	return Value{Kind: QuotedString, Text: b.String()}, nil
}

func (p *parser) word() (Value, error) {
	start := p.pos
	for p.pos < len(p.input) && !isSpace(p.input[p.pos]) {
		if p.input[p.pos] == '"' {
			return Value{}, p.errorAt(p.pos, "unexpected quote inside value")
		}
		p.pos++
	}
	text := p.input[start:p.pos]
	if numberRegex.MatchString(text) {
		return Value{Kind: Number, Text: text}, nil
	}
	return Value{Kind: String, Text: text}, nil
}

func isSpace(c byte) bool {
	switch c {
	case ' ', '\t', '\n', '\r', '\v', '\f':
		return true
	}
	return false
}

func isNameStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isNameChar(c byte) bool {
	return isNameStart(c) || (c >= '0' && c <= '9')
}

// Quote renders s as a single value token. Words that Parse would split or
// reject are wrapped in quotes with '"' and '\' escaped.
func Quote(s string) string {
	if s != "" && !strings.ContainsAny(s, "\"\\ \t\n\r\v\f") {
		return s
	}
	var b strings.Builder
	b.Grow(len(s) + 2)
	b.WriteByte('"')
	for i := 0; i < len(s); i++ {
		if s[i] == '"' || s[i] == '\\' {
			b.WriteByte('\\')
		}
		b.WriteByte(s[i])
	}
	b.WriteByte('"')
	return b.String()
}

// JoinArgs rebuilds a configuration from command line arguments the shell has
// already split, so each argument stays one token.
func JoinArgs(args []string) string {
	quoted := make([]string, len(args))
	for i, a := range args {
		quoted[i] = Quote(a)
	}
	return strings.Join(quoted, " ")
}
