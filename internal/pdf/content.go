package pdf

import (
	"bytes"
	"fmt"
)

// Op is one content stream operation: its operands followed by the
// operator. Inline images keep their parameter dict and raw payload.
type Op struct {
	Operands   []Object
	Operator   string
	InlineDict Dict
	InlineData []byte
}

// ParseContent tokenizes a decoded content stream into operations.
// Operands left dangling at the end of the stream are dropped.
func ParseContent(data []byte) ([]Op, error) {
	tr := &tokenReader{lx: newLexer(data)}
	var ops []Op
	var operands []Object
	for {
		tok := tr.next()
		switch tok.kind {
		case tokEOF:
			return ops, nil
		case tokNumber:
			operands = append(operands, tok.val)
		case tokString:
			operands = append(operands, tok.val.(String))
		case tokName:
			operands = append(operands, tok.val.(Name))
		case tokArrayOpen:
			arr, err := parseArray(tr)
			if err != nil {
				return nil, err
			}
			operands = append(operands, arr)
		case tokDictOpen:
			dict, err := parseDict(tr)
			if err != nil {
				return nil, err
			}
			operands = append(operands, dict)
		case tokArrayClose, tokDictClose:
			return nil, fmt.Errorf("unbalanced close at %d", tok.pos)
		case tokKeyword:
			kw := tok.val.(string)
			switch kw {
			case "true":
				operands = append(operands, true)
			case "false":
				operands = append(operands, false)
			case "null":
				operands = append(operands, nil)
			case "BI":
				op, err := parseInlineImage(tr)
				if err != nil {
					return nil, err
				}
				ops = append(ops, op)
				operands = nil
			default:
				ops = append(ops, Op{Operands: operands, Operator: kw})
				operands = nil
			}
		}
	}
}

// parseInlineImage reads the BI parameter pairs, then the raw payload
// between ID and EI.
func parseInlineImage(tr *tokenReader) (Op, error) {
	dict := make(Dict)
	for {
		tok := tr.next()
		if tok.kind == tokKeyword && tok.val == "ID" {
			break
		}
		if tok.kind == tokEOF {
			return Op{}, fmt.Errorf("unterminated inline image parameters")
		}
		if tok.kind != tokName {
			return Op{}, fmt.Errorf("expected name in inline image parameters at %d", tok.pos)
		}
		val, err := parseValue(tr)
		if err != nil {
			return Op{}, err
		}
		dict[tok.val.(Name)] = val
	}

	data := tr.lx.data
	pos := tr.lx.pos
	// single whitespace separates ID from the payload
	if pos < len(data) && isWhitespace(data[pos]) {
		pos++
	}
	dataStart := pos
	for pos+1 < len(data) {
		if data[pos] == 'E' && data[pos+1] == 'I' &&
			pos > dataStart && isWhitespace(data[pos-1]) &&
			(pos+2 >= len(data) || isDelimiter(data[pos+2])) {
			end := pos
			for end > dataStart && isWhitespace(data[end-1]) {
				end--
			}
			payload := append([]byte(nil), data[dataStart:end]...)
			tr.lx.pos = pos + 2
			tr.buf = tr.buf[:0]
			return Op{Operator: "BI", InlineDict: dict, InlineData: payload}, nil
		}
		pos++
	}
	return Op{}, fmt.Errorf("unterminated inline image")
}

// SerializeContent writes operations back into content stream bytes.
func SerializeContent(ops []Op) []byte {
	var buf bytes.Buffer
	for _, op := range ops {
		if op.Operator == "BI" {
			buf.WriteString("BI")
			for _, key := range op.InlineDict.SortedKeys() {
				buf.WriteString(" /")
				buf.WriteString(escapeName(key))
				buf.WriteByte(' ')
				serializePrimitive(&buf, op.InlineDict[key])
			}
			buf.WriteString(" ID\n")
			buf.Write(op.InlineData)
			buf.WriteString("\nEI\n")
			continue
		}
		for _, operand := range op.Operands {
			serializePrimitive(&buf, operand)
			buf.WriteByte(' ')
		}
		buf.WriteString(op.Operator)
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}
