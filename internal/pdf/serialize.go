package pdf

import (
	"bytes"
	"fmt"
	"strconv"
)

// serializePrimitive writes one object in PDF syntax. Dictionary keys
// come out sorted so serialization is deterministic.
func serializePrimitive(buf *bytes.Buffer, obj Object) {
	switch v := obj.(type) {
	case nil:
		buf.WriteString("null")
	case bool:
		if v {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case int64:
		buf.WriteString(strconv.FormatInt(v, 10))
	case int:
		buf.WriteString(strconv.Itoa(v))
	case float64:
		buf.WriteString(formatReal(v))
	case Name:
		buf.WriteByte('/')
		buf.WriteString(escapeName(v))
	case String:
		writeLiteralString(buf, v)
	case Ref:
		fmt.Fprintf(buf, "%d %d R", v.Num, v.Gen)
	case Array:
		buf.WriteByte('[')
		for i, item := range v {
			if i > 0 {
				buf.WriteByte(' ')
			}
			serializePrimitive(buf, item)
		}
		buf.WriteByte(']')
	case Dict:
		buf.WriteString("<<")
		for _, key := range v.SortedKeys() {
			buf.WriteString(" /")
			buf.WriteString(escapeName(key))
			buf.WriteByte(' ')
			serializePrimitive(buf, v[key])
		}
		buf.WriteString(" >>")
	case *Stream:
		serializePrimitive(buf, v.Dict)
		buf.WriteString("\nstream\n")
		buf.Write(v.Raw)
		buf.WriteString("\nendstream")
	default:
		buf.WriteString("null")
	}
}

// formatReal renders a float without exponent notation, which PDF
// syntax does not allow.
func formatReal(v float64) string {
	s := strconv.FormatFloat(v, 'f', 6, 64)
	s = trimTrailingZeros(s)
	return s
}

func trimTrailingZeros(s string) string {
	if !bytes.ContainsRune([]byte(s), '.') {
		return s
	}
	i := len(s)
	for i > 0 && s[i-1] == '0' {
		i--
	}
	if i > 0 && s[i-1] == '.' {
		i--
	}
	return s[:i]
}

func escapeName(n Name) string {
	var out bytes.Buffer
	for i := 0; i < len(n); i++ {
		c := n[i]
		if c < 0x21 || c > 0x7E || c == '#' || isDelimiter(c) {
			fmt.Fprintf(&out, "#%02X", c)
			continue
		}
		out.WriteByte(c)
	}
	return out.String()
}

// writeLiteralString emits a 7-bit clean literal string, octal-escaping
// binary bytes.
func writeLiteralString(buf *bytes.Buffer, s String) {
	buf.WriteByte('(')
	for _, c := range s {
		switch c {
		case '(', ')', '\\':
			buf.WriteByte('\\')
			buf.WriteByte(c)
		case '\n':
			buf.WriteString(`\n`)
		case '\r':
			buf.WriteString(`\r`)
		case '\t':
			buf.WriteString(`\t`)
		default:
			if c < 0x20 || c > 0x7E {
				fmt.Fprintf(buf, `\%03o`, c)
			} else {
				buf.WriteByte(c)
			}
		}
	}
	buf.WriteByte(')')
}
