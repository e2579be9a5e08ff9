package config

import "fmt"

// dispenser is a token cursor, grounded on Caddy's config/parse.Dispenser:
// directive handlers pull tokens one at a time rather than the parser
// handing them a pre-split argument list.
type dispenser struct {
	tokens []token
	cursor int
}

func newDispenser(tokens []token) *dispenser {
	return &dispenser{tokens: tokens, cursor: -1}
}

// Next loads the next token. It returns false at EOF.
func (d *dispenser) Next() bool {
	if d.cursor >= len(d.tokens)-1 {
		d.cursor = len(d.tokens)
		return false
	}
	d.cursor++
	return true
}

// NextArg is the same as Next: it loads the next token whatever it is,
// including a ';', '{' or '}' delimiter. Newlines are not tokens, so a
// directive's arguments end only at one of those delimiters.
func (d *dispenser) NextArg() bool {
	return d.Next()
}

// Val returns the text of the currently loaded token.
func (d *dispenser) Val() string {
	if d.cursor < 0 || d.cursor >= len(d.tokens) {
		return ""
	}
	return d.tokens[d.cursor].text
}

// Line returns the source line of the currently loaded token.
func (d *dispenser) Line() int {
	if d.cursor < 0 || d.cursor >= len(d.tokens) {
		return 0
	}
	return d.tokens[d.cursor].line
}

// RemainingArgs collects tokens up to (not including) the next ';',
// '{', '}', or EOF, leaving the cursor sitting on that delimiter so
// NextBlock can tell a directive terminator from a block opener.
func (d *dispenser) RemainingArgs() []string {
	var args []string
	for d.Next() {
		v := d.Val()
		if v == ";" || v == "{" || v == "}" {
			return args
		}
		args = append(args, v)
	}
	return args
}

// NextBlock expects the current token to be the '{' that opened the
// block, the ';' that ended the previous directive inside it, or the
// '}' that closed a nested block inside it, then returns true once per
// directive inside the block, false when the block's own '}' is
// reached.
func (d *dispenser) NextBlock() bool {
	switch d.Val() {
	case "{", ";":
	case "}":
		// A '}' that closed a nested block follows a delimiter; a '}'
		// that RemainingArgs stopped on closes the current block.
		if d.cursor == 0 {
			return false
		}
		switch d.tokens[d.cursor-1].text {
		case ";", "{", "}":
		default:
			return false
		}
	default:
		return false
	}
	if !d.Next() {
		return false
	}
	if d.Val() == "}" {
		return false
	}
	return true
}

// ArgErr builds a standard "wrong number of arguments" error for the
// directive currently loaded.
func (d *dispenser) ArgErr() error {
	return fmt.Errorf("line %d: wrong argument count for '%s'", d.Line(), d.Val())
}

// Errf builds a parse error annotated with the current source line.
func (d *dispenser) Errf(format string, args ...any) error {
	return fmt.Errorf("line %d: %s", d.Line(), fmt.Sprintf(format, args...))
}
