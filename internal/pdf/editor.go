package pdf

import (
	"fmt"
	"math"
	"sort"
)

// RedactArea is one rectangle to cover on a page, in unrotated user
// space points. Permanent areas also remove the content shown under
// them; temporary areas only draw a translucent overlay.
type RedactArea struct {
	Rect      Rect
	Permanent bool
	Fill      [3]float64
	Alpha     float64
}

// EditReport summarizes what a page edit removed.
type EditReport struct {
	GlyphsRemoved int
	PathsRemoved  int
	ImagesBlacked int
	ImagesDropped int
	InlineDropped int
}

const pathTol = 0.5

// RedactPage applies the areas to one page. Content under permanent
// areas is removed from the page stream and from any form XObject it
// reaches, then the covers are painted on top. When nothing had to be
// removed the original content streams are kept byte for byte and the
// covers go into appended streams.
func RedactPage(doc *Document, page Page, areas []RedactArea) (EditReport, error) {
	var report EditReport
	if len(areas) == 0 {
		return report, nil
	}
	var permanent []Rect
	for _, a := range areas {
		if a.Permanent {
			permanent = append(permanent, a.Rect)
		}
	}

	trace, err := TracePage(doc, page)
	if err != nil {
		return report, err
	}

	pageOps := trace.Streams[0].Ops
	pageChanged := false
	for _, ts := range trace.Streams {
		ops, changed := redactStream(doc, ts, permanent, &report)
		if ts.Form == nil {
			pageOps = ops
			pageChanged = changed
			continue
		}
		if changed {
			replaceFormContent(doc, *ts.Form, ops)
		}
	}

	covers := coverOps(doc, page, areas)
	if pageChanged {
		ops := make([]Op, 0, len(pageOps)+len(covers)+2)
		ops = append(ops, Op{Operator: "q"})
		ops = append(ops, pageOps...)
		ops = append(ops, Op{Operator: "Q"})
		ops = append(ops, covers...)
		page.Dict["Contents"] = doc.AddObject(newFlateStream(SerializeContent(ops)))
	} else {
		appendPageContent(doc, page, covers)
	}
	return report, nil
}

// redactStream rewrites one traced stream so nothing under a permanent
// area survives. The returned flag reports whether the operations
// actually changed.
func redactStream(doc *Document, ts *TracedStream, permanent []Rect, report *EditReport) ([]Op, bool) {
	if len(permanent) == 0 {
		return ts.Ops, false
	}

	glyphHits := make(map[int][]GlyphRef)
	for _, g := range ts.Glyphs {
		if intersectsAny(g.Rect, permanent) {
			glyphHits[g.OpIndex] = append(glyphHits[g.OpIndex], g)
		}
	}

	drop := make(map[int]bool)
	for _, p := range ts.Paths {
		if !containedInAny(p.Rect, permanent) || !pathRangeRemovable(ts.Ops, p.Start, p.OpIndex) {
			continue
		}
		for i := p.Start; i <= p.OpIndex; i++ {
			drop[i] = true
		}
		report.PathsRemoved++
	}

	type pendingImage struct {
		ref     Ref
		ops     []int
		regions []Rect
	}
	pending := make(map[Ref]*pendingImage)
	for _, img := range ts.Images {
		if !intersectsAny(img.Rect, permanent) {
			continue
		}
		if img.Inline {
			drop[img.OpIndex] = true
			report.InlineDropped++
			continue
		}
		if img.XRef == nil {
			drop[img.OpIndex] = true
			report.ImagesDropped++
			continue
		}
		regions, ok := imageRegions(img, permanent)
		if !ok {
			drop[img.OpIndex] = true
			report.ImagesDropped++
			continue
		}
		p := pending[*img.XRef]
		if p == nil {
			p = &pendingImage{ref: *img.XRef}
			pending[*img.XRef] = p
		}
		p.ops = append(p.ops, img.OpIndex)
		p.regions = append(p.regions, regions...)
	}
	for _, p := range pending {
		if err := doc.BlackoutImage(p.ref, p.regions); err != nil {
			for _, op := range p.ops {
				drop[op] = true
			}
			report.ImagesDropped += len(p.ops)
			continue
		}
		report.ImagesBlacked++
	}

	if len(glyphHits) == 0 && len(drop) == 0 {
		return ts.Ops, false
	}

	out := make([]Op, 0, len(ts.Ops))
	for i, op := range ts.Ops {
		if drop[i] {
			continue
		}
		hits := glyphHits[i]
		if len(hits) == 0 {
			out = append(out, op)
			continue
		}
		rewritten, removed := rewriteTextOp(op, hits)
		out = append(out, rewritten...)
		report.GlyphsRemoved += removed
	}
	return out, true
}

// rewriteTextOp splices the hit glyphs out of a text showing op,
// standing each one in with its TJ adjustment so the rest of the line
// does not move. The ' and " operators are expanded into their
// primitive forms first.
func rewriteTextOp(op Op, hits []GlyphRef) ([]Op, int) {
	switch op.Operator {
	case "Tj":
		arr, n := spliceString(op.Operands[0], -1, hits)
		return []Op{{Operands: []Object{arr}, Operator: "TJ"}}, n
	case "'":
		arr, n := spliceString(op.Operands[0], -1, hits)
		return []Op{{Operator: "T*"}, {Operands: []Object{arr}, Operator: "TJ"}}, n
	case "\"":
		arr, n := spliceString(op.Operands[2], -1, hits)
		return []Op{
			{Operands: []Object{op.Operands[0]}, Operator: "Tw"},
			{Operands: []Object{op.Operands[1]}, Operator: "Tc"},
			{Operator: "T*"},
			{Operands: []Object{arr}, Operator: "TJ"},
		}, n
	case "TJ":
		src, ok := op.Operands[0].(Array)
		if !ok {
			return []Op{op}, 0
		}
		var out Array
		total := 0
		for el, item := range src {
			str, isStr := item.(String)
			if !isStr {
				out = append(out, item)
				continue
			}
			spliced, n := spliceString(str, el, hits)
			out = append(out, spliced...)
			total += n
		}
		return []Op{{Operands: []Object{out}, Operator: "TJ"}}, total
	}
	return []Op{op}, 0
}

// spliceString cuts the hit glyph codes out of one string operand and
// returns the TJ elements that replace it. Adjacent removals collapse
// into a single adjustment. Hits seen twice, as happens when a form is
// placed more than once, count once.
func spliceString(operand Object, element int, hits []GlyphRef) (Array, int) {
	str, ok := operand.(String)
	if !ok {
		return Array{operand}, 0
	}
	var mine []GlyphRef
	for _, h := range hits {
		if h.Element == element {
			mine = append(mine, h)
		}
	}
	if len(mine) == 0 {
		return Array{str}, 0
	}
	sort.Slice(mine, func(i, j int) bool { return mine[i].ByteOff < mine[j].ByteOff })

	var out Array
	removed := 0
	prev := 0
	shift := 0.0
	haveShift := false
	lastOff := -1
	flush := func() {
		if haveShift {
			out = append(out, shift)
			shift = 0
			haveShift = false
		}
	}
	for _, h := range mine {
		if h.ByteOff == lastOff {
			continue
		}
		lastOff = h.ByteOff
		if h.ByteOff > prev {
			flush()
			out = append(out, String(append([]byte(nil), str[prev:h.ByteOff]...)))
		}
		shift += h.Shift
		haveShift = true
		prev = h.ByteOff + h.ByteLen
		removed++
	}
	flush()
	if prev < len(str) {
		out = append(out, String(append([]byte(nil), str[prev:]...)))
	}
	return out, removed
}

var pathOps = map[string]bool{
	"m": true, "l": true, "c": true, "v": true, "y": true, "re": true, "h": true,
}

// pathRangeRemovable rejects ranges that carry clip or state ops, so
// dropping the path cannot change how later content renders.
func pathRangeRemovable(ops []Op, start, end int) bool {
	for i := start; i < end; i++ {
		if !pathOps[ops[i].Operator] {
			return false
		}
	}
	return true
}

// imageRegions inverts the placement into image unit space. Only axis
// aligned placements can be inverted; anything else reports false and
// the caller drops the placement instead.
func imageRegions(img ImageRef, permanent []Rect) ([]Rect, bool) {
	const eps = 1e-9
	m := img.M
	if math.Abs(m[1]) > eps || math.Abs(m[2]) > eps || math.Abs(m[0]) < eps || math.Abs(m[3]) < eps {
		return nil, false
	}
	var regions []Rect
	for _, p := range permanent {
		if !img.Rect.Intersects(p) {
			continue
		}
		ov := intersectRect(img.Rect, p)
		u0 := (ov.X0 - m[4]) / m[0]
		u1 := (ov.X1 - m[4]) / m[0]
		v0 := (ov.Y0 - m[5]) / m[3]
		v1 := (ov.Y1 - m[5]) / m[3]
		if u0 > u1 {
			u0, u1 = u1, u0
		}
		if v0 > v1 {
			v0, v1 = v1, v0
		}
		regions = append(regions, Rect{
			X0: clamp01(u0), Y0: clamp01(v0),
			X1: clamp01(u1), Y1: clamp01(v1),
		})
	}
	return regions, true
}

// coverOps builds the fills drawn over the areas, opaque ones first.
func coverOps(doc *Document, page Page, areas []RedactArea) []Op {
	gsNames := make(map[float64]Name)
	for _, a := range areas {
		if a.Permanent {
			continue
		}
		if _, ok := gsNames[a.Alpha]; !ok {
			gsNames[a.Alpha] = addAlphaState(doc, page, a.Alpha)
		}
	}
	var ops []Op
	for _, a := range areas {
		if a.Permanent {
			ops = append(ops, fillOps(a, "")...)
		}
	}
	for _, a := range areas {
		if !a.Permanent {
			ops = append(ops, fillOps(a, gsNames[a.Alpha])...)
		}
	}
	return ops
}

func fillOps(a RedactArea, gs Name) []Op {
	ops := []Op{{Operator: "q"}}
	if gs != "" {
		ops = append(ops, Op{Operands: []Object{gs}, Operator: "gs"})
	}
	return append(ops,
		Op{Operands: []Object{a.Fill[0], a.Fill[1], a.Fill[2]}, Operator: "rg"},
		Op{Operands: []Object{a.Rect.X0, a.Rect.Y0, a.Rect.Width(), a.Rect.Height()}, Operator: "re"},
		Op{Operator: "f"},
		Op{Operator: "Q"},
	)
}

// addAlphaState registers a transparency ExtGState on the page and
// returns its resource name.
func addAlphaState(doc *Document, page Page, alpha float64) Name {
	res := pageResources(doc, page)
	ext := make(Dict)
	if cur, ok := doc.DerefDict(res["ExtGState"]); ok {
		ext = cur.Clone()
	}
	name := Name(fmt.Sprintf("GSa%d", len(ext)))
	for ext[name] != nil {
		name += "x"
	}
	ext[name] = doc.AddObject(Dict{"Type": Name("ExtGState"), "ca": alpha, "CA": alpha})
	res["ExtGState"] = ext
	return name
}

// pageResources returns a resources dictionary owned by this page,
// cloning an inherited or shared one on first use so sibling pages are
// not affected.
func pageResources(doc *Document, page Page) Dict {
	if d, ok := page.Dict["Resources"].(Dict); ok {
		return d
	}
	var res Dict
	if cur, ok := doc.DerefDict(page.Dict["Resources"]); ok {
		res = cur.Clone()
	} else if page.Resources != nil {
		res = page.Resources.Clone()
	} else {
		res = make(Dict)
	}
	page.Dict["Resources"] = res
	return res
}

// appendPageContent keeps the original content streams untouched,
// bracketing them with a balanced q/Q pair before painting the covers.
func appendPageContent(doc *Document, page Page, covers []Op) {
	if len(covers) == 0 {
		return
	}
	pre := doc.AddObject(newFlateStream([]byte("q\n")))
	post := doc.AddObject(newFlateStream(append([]byte("Q\n"), SerializeContent(covers)...)))
	arr := Array{pre}
	for _, ref := range page.Contents {
		arr = append(arr, ref)
	}
	arr = append(arr, post)
	page.Dict["Contents"] = arr
}

// replaceFormContent swaps a form XObject's payload for the edited
// operations, keeping its other dictionary entries.
func replaceFormContent(doc *Document, ref Ref, ops []Op) {
	stream, ok := doc.DerefStream(ref)
	if !ok {
		return
	}
	enc := FlateEncode(SerializeContent(ops))
	dict := stream.Dict.Clone()
	dict["Filter"] = Name("FlateDecode")
	dict["Length"] = int64(len(enc))
	delete(dict, "DecodeParms")
	doc.SetObject(ref, &Stream{Dict: dict, Raw: enc})
}

func newFlateStream(data []byte) *Stream {
	enc := FlateEncode(data)
	return &Stream{
		Dict: Dict{"Filter": Name("FlateDecode"), "Length": int64(len(enc))},
		Raw:  enc,
	}
}

func intersectsAny(r Rect, areas []Rect) bool {
	for _, a := range areas {
		if r.Intersects(a) {
			return true
		}
	}
	return false
}

func containedInAny(r Rect, areas []Rect) bool {
	for _, a := range areas {
		if r.X0 >= a.X0-pathTol && r.Y0 >= a.Y0-pathTol && r.X1 <= a.X1+pathTol && r.Y1 <= a.Y1+pathTol {
			return true
		}
	}
	return false
}

func intersectRect(a, b Rect) Rect {
	return Rect{
		X0: max(a.X0, b.X0), Y0: max(a.Y0, b.Y0),
		X1: min(a.X1, b.X1), Y1: min(a.Y1, b.Y1),
	}
}

func clamp01(v float64) float64 {
	return min(max(v, 0), 1)
}
