package pdf

import (
	"bytes"
	"strconv"
)

type tokenType int

const (
	tokDictOpen   tokenType = iota // '<<'
	tokDictClose                   // '>>'
	tokArrayOpen                   // '['
	tokArrayClose                  // ']'
	tokName                        // /Name
	tokString                      // literal or hex string
	tokNumber                      // int64 or float64
	tokKeyword                     // obj, endobj, stream, R, true, false, null, ...
	tokEOF
)

type token struct {
	kind tokenType
	val  interface{}
	pos  int
}

// lexer tokenizes PDF object syntax over an in-memory buffer.
type lexer struct {
	data []byte
	pos  int
}

func newLexer(data []byte) *lexer {
	return &lexer{data: data}
}

func (l *lexer) next() token {
	l.skipWSAndComments()
	if l.pos >= len(l.data) {
		return token{kind: tokEOF, pos: l.pos}
	}
	start := l.pos
	c := l.data[l.pos]
	switch c {
	case '<':
		if l.peek(1) == '<' {
			l.pos += 2
			return token{kind: tokDictOpen, pos: start}
		}
		return l.scanHexString()
	case '>':
		if l.peek(1) == '>' {
			l.pos += 2
			return token{kind: tokDictClose, pos: start}
		}
		l.pos++
		return token{kind: tokKeyword, val: ">", pos: start}
	case '[':
		l.pos++
		return token{kind: tokArrayOpen, pos: start}
	case ']':
		l.pos++
		return token{kind: tokArrayClose, pos: start}
	case '(':
		return l.scanLiteralString()
	case '/':
		return l.scanName()
	case '{', '}':
		l.pos++
		return token{kind: tokKeyword, val: string(c), pos: start}
	}
	if isNumberStart(c) {
		return l.scanNumber()
	}
	return l.scanKeyword()
}

func (l *lexer) peek(n int) byte {
	if l.pos+n >= len(l.data) {
		return 0
	}
	return l.data[l.pos+n]
}

func (l *lexer) skipWSAndComments() {
	for l.pos < len(l.data) {
		c := l.data[l.pos]
		if isWhitespace(c) {
			l.pos++
			continue
		}
		if c == '%' {
			for l.pos < len(l.data) && !isEOL(l.data[l.pos]) {
				l.pos++
			}
			continue
		}
		return
	}
}

func (l *lexer) scanName() token {
	start := l.pos
	l.pos++ // skip '/'
	var out bytes.Buffer
	for l.pos < len(l.data) {
		c := l.data[l.pos]
		if isDelimiter(c) {
			break
		}
		if c == '#' && l.pos+2 < len(l.data) {
			a, okA := fromHex(l.data[l.pos+1])
			b, okB := fromHex(l.data[l.pos+2])
			if okA && okB {
				out.WriteByte((a << 4) | b)
				l.pos += 3
				continue
			}
		}
		out.WriteByte(c)
		l.pos++
	}
	return token{kind: tokName, val: Name(out.String()), pos: start}
}

func (l *lexer) scanLiteralString() token {
	start := l.pos
	l.pos++ // skip '('
	var buf bytes.Buffer
	depth := 1
	for l.pos < len(l.data) {
		c := l.data[l.pos]
		if c == '\\' {
			l.pos++
			if l.pos >= len(l.data) {
				break
			}
			esc := l.data[l.pos]
			// line continuation
			if esc == '\r' {
				l.pos++
				if l.pos < len(l.data) && l.data[l.pos] == '\n' {
					l.pos++
				}
				continue
			}
			if esc == '\n' {
				l.pos++
				continue
			}
			// octal escape, up to three digits
			if esc >= '0' && esc <= '7' {
				val := int(esc - '0')
				l.pos++
				for k := 0; k < 2 && l.pos < len(l.data); k++ {
					d := l.data[l.pos]
					if d < '0' || d > '7' {
						break
					}
					val = (val << 3) + int(d-'0')
					l.pos++
				}
				buf.WriteByte(byte(val))
				continue
			}
			buf.WriteByte(translateEscape(esc))
			l.pos++
			continue
		}
		if c == '(' {
			depth++
			buf.WriteByte(c)
			l.pos++
			continue
		}
		if c == ')' {
			depth--
			if depth == 0 {
				l.pos++
				break
			}
			buf.WriteByte(c)
			l.pos++
			continue
		}
		buf.WriteByte(c)
		l.pos++
	}
	return token{kind: tokString, val: String(buf.Bytes()), pos: start}
}

func (l *lexer) scanHexString() token {
	start := l.pos
	l.pos++ // skip '<'
	var nibbles []byte
	for l.pos < len(l.data) {
		c := l.data[l.pos]
		if c == '>' {
			l.pos++
			break
		}
		if isWhitespace(c) {
			l.pos++
			continue
		}
		nibbles = append(nibbles, c)
		l.pos++
	}
	if len(nibbles)%2 == 1 {
		nibbles = append(nibbles, '0')
	}
	out := make([]byte, 0, len(nibbles)/2)
	for i := 0; i < len(nibbles); i += 2 {
		a, _ := fromHex(nibbles[i])
		b, _ := fromHex(nibbles[i+1])
		out = append(out, (a<<4)|b)
	}
	return token{kind: tokString, val: String(out), pos: start}
}

func (l *lexer) scanNumber() token {
	start := l.pos
	var buf bytes.Buffer
	for l.pos < len(l.data) {
		c := l.data[l.pos]
		if c == '+' || c == '-' || c == '.' || (c >= '0' && c <= '9') {
			buf.WriteByte(c)
			l.pos++
			continue
		}
		break
	}
	s := buf.String()
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return token{kind: tokNumber, val: i, pos: start}
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return token{kind: tokKeyword, val: s, pos: start}
	}
	return token{kind: tokNumber, val: f, pos: start}
}

func (l *lexer) scanKeyword() token {
	start := l.pos
	var buf bytes.Buffer
	for l.pos < len(l.data) {
		c := l.data[l.pos]
		if isDelimiter(c) {
			break
		}
		buf.WriteByte(c)
		l.pos++
	}
	if buf.Len() == 0 {
		// lone delimiter byte we don't otherwise handle
		l.pos++
		return token{kind: tokKeyword, val: string(l.data[start]), pos: start}
	}
	kw := buf.String()
	switch kw {
	case "true":
		return token{kind: tokKeyword, val: "true", pos: start}
	case "false":
		return token{kind: tokKeyword, val: "false", pos: start}
	case "null":
		return token{kind: tokKeyword, val: "null", pos: start}
	}
	return token{kind: tokKeyword, val: kw, pos: start}
}

// whitespace per PDF spec: null, tab, LF, FF, CR, space
func isWhitespace(c byte) bool {
	return c == 0x00 || c == 0x09 || c == 0x0A || c == 0x0C || c == 0x0D || c == 0x20
}

func isEOL(c byte) bool { return c == '\r' || c == '\n' }

func isDelimiter(c byte) bool {
	switch c {
	case '(', ')', '<', '>', '[', ']', '{', '}', '/', '%':
		return true
	default:
		return isWhitespace(c)
	}
}

func isNumberStart(c byte) bool {
	return c == '+' || c == '-' || c == '.' || (c >= '0' && c <= '9')
}

func fromHex(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	}
	return 0, false
}

func translateEscape(c byte) byte {
	switch c {
	case 'n':
		return '\n'
	case 'r':
		return '\r'
	case 't':
		return '\t'
	case 'b':
		return '\b'
	case 'f':
		return '\f'
	default:
		return c
	}
}
