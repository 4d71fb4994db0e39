package pdf

import "fmt"

// Matrix is a PDF transformation matrix [a b c d e f] in row-vector
// convention: x' = a*x + c*y + e, y' = b*x + d*y + f.
type Matrix [6]float64

// Identity returns the identity matrix.
func Identity() Matrix { return Matrix{1, 0, 0, 1, 0, 0} }

// Mul returns m multiplied by n, applying m first.
func (m Matrix) Mul(n Matrix) Matrix {
	return Matrix{
		m[0]*n[0] + m[1]*n[2],
		m[0]*n[1] + m[1]*n[3],
		m[2]*n[0] + m[3]*n[2],
		m[2]*n[1] + m[3]*n[3],
		m[4]*n[0] + m[5]*n[2] + n[4],
		m[4]*n[1] + m[5]*n[3] + n[5],
	}
}

// Apply transforms a point.
func (m Matrix) Apply(x, y float64) (float64, float64) {
	return m[0]*x + m[2]*y + m[4], m[1]*x + m[3]*y + m[5]
}

func translation(tx, ty float64) Matrix { return Matrix{1, 0, 0, 1, tx, ty} }

// transformRect maps all four corners and returns their bounding box,
// so rotated content still yields an axis-aligned rect.
func transformRect(m Matrix, x0, y0, x1, y1 float64) Rect {
	var xs, ys [4]float64
	xs[0], ys[0] = m.Apply(x0, y0)
	xs[1], ys[1] = m.Apply(x1, y0)
	xs[2], ys[2] = m.Apply(x0, y1)
	xs[3], ys[3] = m.Apply(x1, y1)
	r := Rect{X0: xs[0], Y0: ys[0], X1: xs[0], Y1: ys[0]}
	for i := 1; i < 4; i++ {
		r.X0 = min(r.X0, xs[i])
		r.Y0 = min(r.Y0, ys[i])
		r.X1 = max(r.X1, xs[i])
		r.Y1 = max(r.Y1, ys[i])
	}
	return r
}

// GlyphRef locates one shown glyph inside a traced stream. Element is
// the operand index inside a TJ array, or -1 when the glyph belongs to
// a plain string operand. Shift is the TJ adjustment that reproduces
// this glyph's pen displacement, so an editor can take the glyph out
// without moving the rest of the line.
type GlyphRef struct {
	OpIndex int
	Element int
	ByteOff int
	ByteLen int
	Code    int
	Shift   float64
	Rect    Rect
	Text    string
}

// PathRef locates a painted path: the construction ops starting at
// Start through the painting op at OpIndex. Rect bounds every anchor
// and control point in device space.
type PathRef struct {
	OpIndex int
	Start   int
	Rect    Rect
}

// ImageRef locates an image placement. Name is empty for inline
// images. M is the CTM at the placement, mapping the unit square onto
// the device rect. XRef points at the image XObject when the resource
// entry is indirect.
type ImageRef struct {
	OpIndex int
	Name    Name
	XRef    *Ref
	Rect    Rect
	M       Matrix
	Inline  bool
}

// TracedStream is one content stream together with everything shown by
// it. Form is nil for the page's own content.
type TracedStream struct {
	Form   *Ref
	Ops    []Op
	Glyphs []GlyphRef
	Paths  []PathRef
	Images []ImageRef
}

// PageTrace collects the page content stream and every form XObject
// reachable from it. Streams[0] is always the page content.
type PageTrace struct {
	Streams []*TracedStream
}

const (
	defaultGlyphWidth = 500.0
	maxFormDepth      = 8
)

// fontInfo carries the metrics needed to place and re-space glyphs.
// Type0 fonts are assumed to use two byte Identity encoded codes.
type fontInfo struct {
	baseFont  string
	type0     bool
	firstChar int
	widths    []float64
	cidWidths map[int]float64
	defaultW  float64
	ascent    float64
	descent   float64
}

// width returns the glyph width in thousandths of text space.
func (f *fontInfo) width(code int) float64 {
	if f == nil {
		return defaultGlyphWidth
	}
	if f.type0 {
		if w, ok := f.cidWidths[code]; ok {
			return w
		}
		return f.defaultW
	}
	idx := code - f.firstChar
	if idx >= 0 && idx < len(f.widths) && f.widths[idx] > 0 {
		return f.widths[idx]
	}
	return f.defaultW
}

type textState struct {
	font    *fontInfo
	size    float64
	charSp  float64
	wordSp  float64
	scale   float64
	leading float64
	rise    float64
	tm      Matrix
	tlm     Matrix
}

func (s *textState) translateLine(tx, ty float64) {
	s.tlm = translation(tx, ty).Mul(s.tlm)
	s.tm = s.tlm
}

func (s *textState) ascentSize() float64 {
	a := 800.0
	if s.font != nil {
		a = s.font.ascent
	}
	return a / 1000 * s.size
}

func (s *textState) descentSize() float64 {
	d := -200.0
	if s.font != nil {
		d = s.font.descent
	}
	return d / 1000 * s.size
}

type pathAccum struct {
	start int
	rect  Rect
	any   bool
}

func (p *pathAccum) point(ctm Matrix, i int, x, y float64) {
	if p.start < 0 {
		p.start = i
	}
	dx, dy := ctm.Apply(x, y)
	if !p.any {
		p.rect = Rect{X0: dx, Y0: dy, X1: dx, Y1: dy}
		p.any = true
		return
	}
	p.rect.X0 = min(p.rect.X0, dx)
	p.rect.Y0 = min(p.rect.Y0, dy)
	p.rect.X1 = max(p.rect.X1, dx)
	p.rect.Y1 = max(p.rect.Y1, dy)
}

func (p *pathAccum) reset() {
	p.start = -1
	p.any = false
}

type tracer struct {
	doc   *Document
	trace *PageTrace
	forms map[Ref]*TracedStream
	stack map[Ref]bool
	fonts map[Ref]*fontInfo
}

// TracePage parses the page content and walks it, recording every
// glyph, painted path and image with device-space coordinates. Form
// XObjects are traced into their own streams so they can be edited in
// place; a form placed twice contributes one stream with glyph rects
// from both placements.
func TracePage(doc *Document, page Page) (*PageTrace, error) {
	content, err := doc.PageContent(page)
	if err != nil {
		return nil, err
	}
	ops, err := ParseContent(content)
	if err != nil {
		return nil, fmt.Errorf("page %s content: %w", page.Ref, err)
	}
	t := &tracer{
		doc:   doc,
		trace: &PageTrace{},
		forms: make(map[Ref]*TracedStream),
		stack: make(map[Ref]bool),
		fonts: make(map[Ref]*fontInfo),
	}
	ts := &TracedStream{Ops: ops}
	t.trace.Streams = append(t.trace.Streams, ts)
	t.run(ts, page.Resources, Identity(), 0)
	return t.trace, nil
}

func (t *tracer) run(ts *TracedStream, res Dict, base Matrix, depth int) {
	ctm := base
	var saved []Matrix
	text := textState{scale: 100, tm: Identity(), tlm: Identity()}
	path := pathAccum{start: -1}

	for i, op := range ts.Ops {
		switch op.Operator {
		case "q":
			saved = append(saved, ctm)
		case "Q":
			if len(saved) > 0 {
				ctm = saved[len(saved)-1]
				saved = saved[:len(saved)-1]
			}
		case "cm":
			if len(op.Operands) == 6 {
				ctm = operandMatrix(op.Operands).Mul(ctm)
			}

		case "BT":
			text.tm = Identity()
			text.tlm = Identity()
		case "Tc":
			text.charSp = operandFloat(op.Operands, 0)
		case "Tw":
			text.wordSp = operandFloat(op.Operands, 0)
		case "Tz":
			text.scale = operandFloat(op.Operands, 0)
		case "TL":
			text.leading = operandFloat(op.Operands, 0)
		case "Ts":
			text.rise = operandFloat(op.Operands, 0)
		case "Tf":
			if len(op.Operands) == 2 {
				if name, ok := op.Operands[0].(Name); ok {
					text.font = t.resolveFont(res, name)
				}
				text.size = operandFloat(op.Operands, 1)
			}
		case "Td":
			text.translateLine(operandFloat(op.Operands, 0), operandFloat(op.Operands, 1))
		case "TD":
			ty := operandFloat(op.Operands, 1)
			text.leading = -ty
			text.translateLine(operandFloat(op.Operands, 0), ty)
		case "Tm":
			if len(op.Operands) == 6 {
				text.tm = operandMatrix(op.Operands)
				text.tlm = text.tm
			}
		case "T*":
			text.translateLine(0, -text.leading)

		case "Tj":
			if len(op.Operands) == 1 {
				t.showString(ts, &text, ctm, i, -1, op.Operands[0])
			}
		case "'":
			if len(op.Operands) == 1 {
				text.translateLine(0, -text.leading)
				t.showString(ts, &text, ctm, i, -1, op.Operands[0])
			}
		case "\"":
			if len(op.Operands) == 3 {
				text.wordSp = operandFloat(op.Operands, 0)
				text.charSp = operandFloat(op.Operands, 1)
				text.translateLine(0, -text.leading)
				t.showString(ts, &text, ctm, i, -1, op.Operands[2])
			}
		case "TJ":
			if len(op.Operands) != 1 {
				break
			}
			arr, ok := op.Operands[0].(Array)
			if !ok {
				break
			}
			for el, item := range arr {
				if n, ok := ToFloat(item); ok {
					shift := -n / 1000 * text.size * text.scale / 100
					text.tm = translation(shift, 0).Mul(text.tm)
					continue
				}
				t.showString(ts, &text, ctm, i, el, item)
			}

		case "m", "l":
			path.point(ctm, i, operandFloat(op.Operands, 0), operandFloat(op.Operands, 1))
		case "c":
			path.point(ctm, i, operandFloat(op.Operands, 0), operandFloat(op.Operands, 1))
			path.point(ctm, i, operandFloat(op.Operands, 2), operandFloat(op.Operands, 3))
			path.point(ctm, i, operandFloat(op.Operands, 4), operandFloat(op.Operands, 5))
		case "v", "y":
			path.point(ctm, i, operandFloat(op.Operands, 0), operandFloat(op.Operands, 1))
			path.point(ctm, i, operandFloat(op.Operands, 2), operandFloat(op.Operands, 3))
		case "re":
			x := operandFloat(op.Operands, 0)
			y := operandFloat(op.Operands, 1)
			path.point(ctm, i, x, y)
			path.point(ctm, i, x+operandFloat(op.Operands, 2), y+operandFloat(op.Operands, 3))
		case "f", "F", "f*", "B", "B*", "b", "b*", "S", "s":
			if path.any {
				ts.Paths = append(ts.Paths, PathRef{OpIndex: i, Start: path.start, Rect: path.rect})
			}
			path.reset()
		case "n":
			path.reset()

		case "BI":
			ts.Images = append(ts.Images, ImageRef{OpIndex: i, Rect: transformRect(ctm, 0, 0, 1, 1), M: ctm, Inline: true})
		case "Do":
			if len(op.Operands) == 1 {
				if name, ok := op.Operands[0].(Name); ok {
					t.placeXObject(ts, res, ctm, i, name, depth)
				}
			}
		}
	}
}

// showString walks the string glyph by glyph. Simple fonts consume one
// byte per code, Type0 fonts two.
func (t *tracer) showString(ts *TracedStream, text *textState, ctm Matrix, opIdx, element int, operand Object) {
	str, ok := operand.(String)
	if !ok {
		return
	}
	codeLen := 1
	if text.font != nil && text.font.type0 {
		codeLen = 2
	}
	th := text.scale / 100
	for off := 0; off+codeLen <= len(str); off += codeLen {
		code := int(str[off])
		if codeLen == 2 {
			code = code<<8 | int(str[off+1])
		}
		w := text.font.width(code)
		isSpace := codeLen == 1 && code == 32
		adv := (w/1000)*text.size + text.charSp
		if isSpace {
			adv += text.wordSp
		}
		adv *= th

		m := text.tm.Mul(ctm)
		ts.Glyphs = append(ts.Glyphs, GlyphRef{
			OpIndex: opIdx,
			Element: element,
			ByteOff: off,
			ByteLen: codeLen,
			Code:    code,
			Shift:   replacementShift(w, text, isSpace),
			Rect:    transformRect(m, 0, text.rise+text.descentSize(), adv, text.rise+text.ascentSize()),
			Text:    glyphText(code, codeLen),
		})

		text.tm = translation(adv, 0).Mul(text.tm)
	}
}

// replacementShift converts a glyph displacement into the equivalent
// TJ adjustment, folding char and word spacing in so the line does not
// drift when the glyph is dropped.
func replacementShift(w float64, s *textState, isSpace bool) float64 {
	if s.size == 0 {
		return 0
	}
	extra := s.charSp
	if isSpace {
		extra += s.wordSp
	}
	return -(w + extra*1000/s.size)
}

func glyphText(code, codeLen int) string {
	if codeLen != 1 || code < 0x20 || code > 0x7e {
		return ""
	}
	return string(rune(code))
}

// placeXObject records image placements and descends into form
// XObjects with the form matrix folded into the CTM.
func (t *tracer) placeXObject(ts *TracedStream, res Dict, ctm Matrix, opIdx int, name Name, depth int) {
	if res == nil {
		return
	}
	xobjs, ok := t.doc.DerefDict(res["XObject"])
	if !ok {
		return
	}
	obj, ok := xobjs[name]
	if !ok {
		return
	}
	stream, ok := t.doc.DerefStream(obj)
	if !ok {
		return
	}
	sub, _ := t.doc.Deref(stream.Dict["Subtype"]).(Name)
	switch sub {
	case "Image":
		img := ImageRef{OpIndex: opIdx, Name: name, Rect: transformRect(ctm, 0, 0, 1, 1), M: ctm}
		if ref, isRef := obj.(Ref); isRef {
			img.XRef = &ref
		}
		ts.Images = append(ts.Images, img)
	case "Form":
		ref, isRef := obj.(Ref)
		if !isRef || depth >= maxFormDepth || t.stack[ref] {
			return
		}
		inner := ctm
		if arr, ok := t.doc.DerefArray(stream.Dict["Matrix"]); ok && len(arr) == 6 {
			var fm Matrix
			for i := range fm {
				fm[i], _ = ToFloat(t.doc.Deref(arr[i]))
			}
			inner = fm.Mul(ctm)
		}
		fres := res
		if r, ok := t.doc.DerefDict(stream.Dict["Resources"]); ok {
			fres = r
		}
		fs, seen := t.forms[ref]
		if !seen {
			data, err := t.doc.DecodeStream(stream)
			if err != nil {
				return
			}
			ops, err := ParseContent(data)
			if err != nil {
				return
			}
			formRef := ref
			fs = &TracedStream{Form: &formRef, Ops: ops}
			t.forms[ref] = fs
			t.trace.Streams = append(t.trace.Streams, fs)
		}
		t.stack[ref] = true
		t.run(fs, fres, inner, depth+1)
		delete(t.stack, ref)
	}
}

func (t *tracer) resolveFont(res Dict, name Name) *fontInfo {
	if res == nil {
		return nil
	}
	fonts, ok := t.doc.DerefDict(res["Font"])
	if !ok {
		return nil
	}
	obj, ok := fonts[name]
	if !ok {
		return nil
	}
	ref, isRef := obj.(Ref)
	if isRef {
		if f, cached := t.fonts[ref]; cached {
			return f
		}
	}
	f := t.parseFont(obj)
	if isRef {
		t.fonts[ref] = f
	}
	return f
}

func (t *tracer) parseFont(obj Object) *fontInfo {
	dict, ok := t.doc.DerefDict(obj)
	if !ok {
		return nil
	}
	f := &fontInfo{defaultW: defaultGlyphWidth, ascent: 800, descent: -200}
	if bf, ok := t.doc.Deref(dict["BaseFont"]).(Name); ok {
		f.baseFont = string(bf)
	}
	if sub, _ := t.doc.Deref(dict["Subtype"]).(Name); sub == "Type0" {
		f.type0 = true
		f.defaultW = 1000
		f.cidWidths = make(map[int]float64)
		if desc, ok := t.doc.DerefArray(dict["DescendantFonts"]); ok && len(desc) > 0 {
			if dd, ok := t.doc.DerefDict(desc[0]); ok {
				if dw, ok := ToFloat(t.doc.Deref(dd["DW"])); ok {
					f.defaultW = dw
				}
				if warr, ok := t.doc.DerefArray(dd["W"]); ok {
					t.parseCIDWidths(warr, f.cidWidths)
				}
				t.applyDescriptor(dd, f)
			}
		}
		return f
	}
	if first, ok := t.doc.DerefInt(dict["FirstChar"]); ok {
		f.firstChar = first
	}
	if warr, ok := t.doc.DerefArray(dict["Widths"]); ok {
		f.widths = make([]float64, len(warr))
		for i, w := range warr {
			if v, ok := ToFloat(t.doc.Deref(w)); ok {
				f.widths[i] = v
			}
		}
	}
	t.applyDescriptor(dict, f)
	return f
}

func (t *tracer) applyDescriptor(dict Dict, f *fontInfo) {
	fd, ok := t.doc.DerefDict(dict["FontDescriptor"])
	if !ok {
		return
	}
	if v, ok := ToFloat(t.doc.Deref(fd["MissingWidth"])); ok && v > 0 {
		f.defaultW = v
	}
	if v, ok := ToFloat(t.doc.Deref(fd["Ascent"])); ok && v != 0 {
		f.ascent = v
	}
	if v, ok := ToFloat(t.doc.Deref(fd["Descent"])); ok && v != 0 {
		f.descent = v
	}
}

// parseCIDWidths reads a /W array, where entries are either
// "c [w1 w2 ...]" runs or "cFirst cLast w" ranges.
func (t *tracer) parseCIDWidths(arr Array, out map[int]float64) {
	i := 0
	for i < len(arr) {
		first, ok := ToInt(t.doc.Deref(arr[i]))
		if !ok {
			return
		}
		i++
		if i >= len(arr) {
			return
		}
		switch v := t.doc.Deref(arr[i]).(type) {
		case Array:
			for j, w := range v {
				if f, ok := ToFloat(t.doc.Deref(w)); ok {
					out[first+j] = f
				}
			}
			i++
		default:
			last, ok := ToInt(v)
			if !ok {
				return
			}
			i++
			if i >= len(arr) {
				return
			}
			w, ok := ToFloat(t.doc.Deref(arr[i]))
			if !ok {
				return
			}
			i++
			if last < first || last-first > 1<<16 {
				return
			}
			for c := first; c <= last; c++ {
				out[c] = w
			}
		}
	}
}

func operandFloat(operands []Object, i int) float64 {
	if i < len(operands) {
		if f, ok := ToFloat(operands[i]); ok {
			return f
		}
	}
	return 0
}

func operandMatrix(operands []Object) Matrix {
	var m Matrix
	for i := range m {
		m[i] = operandFloat(operands, i)
	}
	return m
}
