package codec

import (
	"fmt"
	"strings"
)

// ParseType parses a CQL type string such as "map<text, frozen<list<int>>>".
// frozen<> is accepted and dropped since it does not change the encoding.
func ParseType(s string) (Type, error) {
	p := &typeParser{input: s}
	t, err := p.parse()
	if err != nil {
		return Type{}, err
	}
	p.skipSpace()
	if p.pos != len(p.input) {
		return Type{}, fmt.Errorf("invalid type %q: unexpected %q at %d", s, p.input[p.pos:], p.pos)
	}
	return t, nil
}

type typeParser struct {
	input string
	pos   int
}

func (p *typeParser) parse() (Type, error) {
	p.skipSpace()
	name := p.ident()
	if name == "" {
		return Type{}, p.errorf("expected type name")
	}

	if strings.EqualFold(name, "frozen") {
		if err := p.expect('<'); err != nil {
			return Type{}, err
		}
		inner, err := p.parse()
		if err != nil {
			return Type{}, err
		}
		return inner, p.expect('>')
	}

	kind, ok := ParseKind(name)
	if !ok {
		return Type{}, p.errorf("unknown type %q", name)
	}

	switch kind {
	case KindList, KindSet:
		if err := p.expect('<'); err != nil {
			return Type{}, err
		}
		elem, err := p.parse()
		if err != nil {
			return Type{}, err
		}
		if err := p.expect('>'); err != nil {
			return Type{}, err
		}
		if kind == KindList {
			return ListOf(elem), nil
		}
		return SetOf(elem), nil

	case KindMap:
		if err := p.expect('<'); err != nil {
			return Type{}, err
		}
		key, err := p.parse()
		if err != nil {
			return Type{}, err
		}
		if err := p.expect(','); err != nil {
			return Type{}, err
		}
		value, err := p.parse()
		if err != nil {
			return Type{}, err
		}
		if err := p.expect('>'); err != nil {
			return Type{}, err
		}
		return MapOf(key, value), nil
	}

	return Native(kind), nil
}

func (p *typeParser) ident() string {
	start := p.pos
	for p.pos < len(p.input) {
		c := p.input[p.pos]
		if !(c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c == '_') {
			break
		}
		p.pos++
	}
	return p.input[start:p.pos]
}

func (p *typeParser) expect(c byte) error {
	p.skipSpace()
	if p.pos >= len(p.input) || p.input[p.pos] != c {
		return p.errorf("expected %q", c)
	}
	p.pos++
	return nil
}

func (p *typeParser) skipSpace() {
	for p.pos < len(p.input) && (p.input[p.pos] == ' ' || p.input[p.pos] == '\t') {
		p.pos++
	}
}

func (p *typeParser) errorf(format string, args ...any) error {
	return fmt.Errorf("invalid type %q at %d: %s", p.input, p.pos, fmt.Sprintf(format, args...))
}
