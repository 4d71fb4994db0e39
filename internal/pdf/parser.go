package pdf

import (
	"bytes"
	"errors"
	"fmt"
)

// ErrNotPDF marks input without a PDF header.
var ErrNotPDF = errors.New("not a pdf")

// Document is a parsed PDF file: every indirect object plus the trailer.
// The parser scans the whole body instead of trusting the xref table, so
// files with stale or damaged tables still load.
type Document struct {
	objects map[Ref]Object
	trailer Dict
	raw     []byte
	maxNum  int
}

// Parse reads a complete PDF file from memory.
func Parse(data []byte) (*Document, error) {
	idx := bytes.Index(data, []byte("%PDF-"))
	if idx < 0 || idx > 1024 {
		return nil, ErrNotPDF
	}

	doc := &Document{
		objects: make(map[Ref]Object),
		raw:     data,
	}
	if err := doc.scanBody(data); err != nil {
		return nil, err
	}
	if len(doc.objects) == 0 {
		return nil, fmt.Errorf("no objects found")
	}
	if err := doc.inflateObjectStreams(); err != nil {
		return nil, err
	}
	doc.resolveTrailer(data)
	if doc.trailer == nil {
		return nil, fmt.Errorf("no trailer or catalog found")
	}
	return doc, nil
}

// scanBody walks the file collecting every "N G obj ... endobj" span.
// Stream payloads are captured raw and skipped, so binary data cannot
// produce phantom objects.
func (d *Document) scanBody(data []byte) error {
	pos := 0
	for {
		objPos, num, gen, bodyStart := findNextObject(data, pos)
		if objPos < 0 {
			break
		}
		obj, end, err := d.parseIndirect(data, bodyStart)
		if err != nil {
			// tolerate one broken object, resume after its header
			pos = bodyStart
			continue
		}
		ref := Ref{Num: num, Gen: gen}
		if _, exists := d.objects[ref]; !exists {
			d.objects[ref] = obj
		}
		if num > d.maxNum {
			d.maxNum = num
		}
		pos = end
	}
	return nil
}

// findNextObject locates the next "N G obj" header at or after pos.
// Returns the header offset, object number, generation and the offset
// just past the obj keyword.
func findNextObject(data []byte, pos int) (int, int, int, int) {
	for {
		idx := bytes.Index(data[pos:], []byte("obj"))
		if idx < 0 {
			return -1, 0, 0, 0
		}
		at := pos + idx
		after := at + 3
		// keyword boundary on both sides
		if after < len(data) && !isDelimiter(data[after]) {
			pos = after
			continue
		}
		num, gen, start, ok := scanHeaderBackwards(data, at)
		if !ok {
			pos = after
			continue
		}
		return start, num, gen, after
	}
}

// scanHeaderBackwards reads "N G" immediately before an obj keyword.
func scanHeaderBackwards(data []byte, objAt int) (num, gen, start int, ok bool) {
	i := objAt - 1
	for i >= 0 && isWhitespace(data[i]) {
		i--
	}
	genEnd := i
	for i >= 0 && data[i] >= '0' && data[i] <= '9' {
		i--
	}
	if i == genEnd {
		return 0, 0, 0, false
	}
	gen = atoi(data[i+1 : genEnd+1])
	for i >= 0 && isWhitespace(data[i]) {
		i--
	}
	numEnd := i
	for i >= 0 && data[i] >= '0' && data[i] <= '9' {
		i--
	}
	if i == numEnd {
		return 0, 0, 0, false
	}
	num = atoi(data[i+1 : numEnd+1])
	// the number must start a token
	if i >= 0 && !isDelimiter(data[i]) {
		return 0, 0, 0, false
	}
	if num <= 0 {
		return 0, 0, 0, false
	}
	return num, gen, i + 1, true
}

func atoi(b []byte) int {
	n := 0
	for _, c := range b {
		n = n*10 + int(c-'0')
	}
	return n
}

// parseIndirect parses one object body starting right after the obj
// keyword, returning the object and the offset at which scanning should
// resume.
func (d *Document) parseIndirect(data []byte, bodyStart int) (Object, int, error) {
	lx := newLexer(data)
	lx.pos = bodyStart
	tr := &tokenReader{lx: lx}

	obj, err := parseValue(tr)
	if err != nil {
		return nil, 0, err
	}

	tok := tr.next()
	if tok.kind == tokKeyword && tok.val == "stream" {
		dict, ok := obj.(Dict)
		if !ok {
			return nil, 0, fmt.Errorf("stream keyword without dictionary")
		}
		raw, end, err := captureStream(data, lx.pos, d.streamLength(dict))
		if err != nil {
			return nil, 0, err
		}
		lx.pos = end
		tr.buf = tr.buf[:0]
		// consume trailing endobj when present
		if tok := tr.next(); !(tok.kind == tokKeyword && tok.val == "endobj") {
			tr.unread(tok)
		}
		return &Stream{Dict: dict, Raw: raw}, lx.pos, nil
	}
	if !(tok.kind == tokKeyword && tok.val == "endobj") {
		tr.unread(tok)
	}
	return obj, lx.pos, nil
}

// streamLength resolves /Length when it is a direct integer or an
// already-parsed indirect object. Unknown lengths return -1 and the
// capture falls back to scanning for endstream.
func (d *Document) streamLength(dict Dict) int {
	switch v := dict["Length"].(type) {
	case int64:
		return int(v)
	case Ref:
		if obj, ok := d.objects[v]; ok {
			if n, ok := ToInt(obj); ok {
				return n
			}
		}
	}
	return -1
}

// captureStream grabs raw stream bytes starting at pos (right after the
// stream keyword) and returns them with the offset past endstream.
func captureStream(data []byte, pos int, length int) ([]byte, int, error) {
	// mandatory EOL after the stream keyword
	if pos < len(data) && data[pos] == '\r' {
		pos++
	}
	if pos < len(data) && data[pos] == '\n' {
		pos++
	}
	dataStart := pos

	if length >= 0 && dataStart+length <= len(data) {
		end := dataStart + length
		rest := data[end:]
		idx := bytes.Index(rest, []byte("endstream"))
		// declared length is only trusted when endstream follows closely
		if idx >= 0 && idx <= 2 {
			payload := append([]byte(nil), data[dataStart:end]...)
			return payload, end + idx + len("endstream"), nil
		}
	}

	// scan for a plausible endstream marker
	search := dataStart
	for {
		idx := bytes.Index(data[search:], []byte("endstream"))
		if idx < 0 {
			return nil, 0, fmt.Errorf("unterminated stream")
		}
		at := search + idx
		after := at + len("endstream")
		prevOK := at == dataStart || isWhitespace(data[at-1])
		followOK := after >= len(data) || isDelimiter(data[after])
		if prevOK && followOK {
			end := at
			// trim the EOL that belongs to the marker, not the data
			if end > dataStart && data[end-1] == '\n' {
				end--
			}
			if end > dataStart && data[end-1] == '\r' {
				end--
			}
			payload := append([]byte(nil), data[dataStart:end]...)
			return payload, after, nil
		}
		search = after
	}
}

type tokenReader struct {
	lx  *lexer
	buf []token
}

func (r *tokenReader) next() token {
	if l := len(r.buf); l > 0 {
		t := r.buf[l-1]
		r.buf = r.buf[:l-1]
		return t
	}
	return r.lx.next()
}

func (r *tokenReader) unread(tok token) {
	r.buf = append(r.buf, tok)
}

// parseValue reads one object value. References ("N G R") are assembled
// here with two-token lookahead.
func parseValue(tr *tokenReader) (Object, error) {
	tok := tr.next()
	switch tok.kind {
	case tokEOF:
		return nil, fmt.Errorf("unexpected end of input")
	case tokName:
		return tok.val.(Name), nil
	case tokString:
		return tok.val.(String), nil
	case tokNumber:
		if i, ok := tok.val.(int64); ok && i >= 0 {
			second := tr.next()
			if g, ok := second.val.(int64); second.kind == tokNumber && ok && g >= 0 {
				third := tr.next()
				if third.kind == tokKeyword && third.val == "R" {
					return Ref{Num: int(i), Gen: int(g)}, nil
				}
				tr.unread(third)
			}
			tr.unread(second)
		}
		return tok.val, nil
	case tokArrayOpen:
		return parseArray(tr)
	case tokDictOpen:
		return parseDict(tr)
	case tokKeyword:
		switch tok.val {
		case "true":
			return true, nil
		case "false":
			return false, nil
		case "null":
			return nil, nil
		}
		return nil, fmt.Errorf("unexpected keyword %q", tok.val)
	}
	return nil, fmt.Errorf("unexpected token at %d", tok.pos)
}

func parseArray(tr *tokenReader) (Object, error) {
	var arr Array
	for {
		tok := tr.next()
		if tok.kind == tokArrayClose {
			return arr, nil
		}
		if tok.kind == tokEOF {
			return nil, fmt.Errorf("unterminated array")
		}
		tr.unread(tok)
		item, err := parseValue(tr)
		if err != nil {
			return nil, err
		}
		arr = append(arr, item)
	}
}

func parseDict(tr *tokenReader) (Object, error) {
	dict := make(Dict)
	for {
		tok := tr.next()
		if tok.kind == tokDictClose {
			return dict, nil
		}
		if tok.kind == tokEOF {
			return nil, fmt.Errorf("unterminated dictionary")
		}
		if tok.kind != tokName {
			return nil, fmt.Errorf("expected name key in dictionary at %d", tok.pos)
		}
		val, err := parseValue(tr)
		if err != nil {
			return nil, err
		}
		dict[tok.val.(Name)] = val
	}
}

// parseObjectBytes parses a single direct object from a byte slice,
// used for objects embedded in object streams.
func parseObjectBytes(data []byte) (Object, error) {
	tr := &tokenReader{lx: newLexer(data)}
	return parseValue(tr)
}

// inflateObjectStreams expands /Type /ObjStm containers so compressed
// objects become addressable like any other.
func (d *Document) inflateObjectStreams() error {
	inflated := make(map[Ref]Object)
	for ref, obj := range d.objects {
		stream, ok := obj.(*Stream)
		if !ok {
			continue
		}
		if typ, _ := stream.Dict["Type"].(Name); typ != "ObjStm" {
			continue
		}
		objects, err := d.decodeObjectStream(stream)
		if err != nil {
			return fmt.Errorf("object stream %d: %w", ref.Num, err)
		}
		for num, embedded := range objects {
			inflated[Ref{Num: num}] = embedded
			if num > d.maxNum {
				d.maxNum = num
			}
		}
	}
	for ref, obj := range inflated {
		if _, exists := d.objects[ref]; !exists {
			d.objects[ref] = obj
		}
	}
	return nil
}

func (d *Document) decodeObjectStream(stream *Stream) (map[int]Object, error) {
	data, err := d.DecodeStream(stream)
	if err != nil {
		return nil, err
	}
	n, ok := ToInt(stream.Dict["N"])
	if !ok || n < 0 {
		return nil, fmt.Errorf("invalid object count")
	}
	first, ok := ToInt(stream.Dict["First"])
	if !ok || first < 0 || first > len(data) {
		return nil, fmt.Errorf("invalid First offset")
	}

	type entry struct{ num, off int }
	entries := make([]entry, 0, n)
	reader := bytes.NewReader(data[:first])
	for i := 0; i < n; i++ {
		var objNum, offset int
		if _, err := fmt.Fscan(reader, &objNum, &offset); err != nil {
			return nil, fmt.Errorf("parse objstm header: %w", err)
		}
		entries = append(entries, entry{num: objNum, off: offset})
	}

	objects := make(map[int]Object, len(entries))
	for i, ent := range entries {
		start := first + ent.off
		if start > len(data) {
			return nil, fmt.Errorf("objstm offset out of range")
		}
		end := len(data)
		if i+1 < len(entries) {
			end = first + entries[i+1].off
			if end > len(data) {
				end = len(data)
			}
		}
		obj, err := parseObjectBytes(data[start:end])
		if err != nil {
			return nil, fmt.Errorf("parse objstm object %d: %w", ent.num, err)
		}
		objects[ent.num] = obj
	}
	return objects, nil
}

// resolveTrailer finds the document trailer: the last classic trailer
// dictionary with a /Root, else an xref stream dictionary, else a
// synthesized trailer pointing at any /Type /Catalog object.
func (d *Document) resolveTrailer(data []byte) {
	pos := 0
	for {
		idx := bytes.Index(data[pos:], []byte("trailer"))
		if idx < 0 {
			break
		}
		at := pos + idx
		after := at + len("trailer")
		pos = after
		if at > 0 && !isDelimiter(data[at-1]) {
			continue
		}
		if after < len(data) && !isDelimiter(data[after]) {
			continue
		}
		lx := newLexer(data)
		lx.pos = after
		tr := &tokenReader{lx: lx}
		tok := tr.next()
		if tok.kind != tokDictOpen {
			continue
		}
		obj, err := parseDict(tr)
		if err != nil {
			continue
		}
		dict := obj.(Dict)
		if _, ok := dict["Root"]; ok {
			d.trailer = dict
		}
	}
	if d.trailer != nil {
		return
	}
	// xref stream dictionaries double as trailers
	for _, obj := range d.objects {
		if stream, ok := obj.(*Stream); ok {
			if typ, _ := stream.Dict["Type"].(Name); typ == "XRef" {
				if _, ok := stream.Dict["Root"]; ok {
					d.trailer = stream.Dict
					return
				}
			}
		}
	}
	// last resort: point at a catalog found in the body
	for ref, obj := range d.objects {
		if dict, ok := d.DerefDict(obj); ok {
			if typ, _ := dict["Type"].(Name); typ == "Catalog" {
				d.trailer = Dict{"Root": ref}
				return
			}
		}
	}
}

// Object returns the indirect object for ref.
func (d *Document) Object(ref Ref) (Object, bool) {
	obj, ok := d.objects[ref]
	return obj, ok
}

// SetObject replaces or registers an indirect object.
func (d *Document) SetObject(ref Ref, obj Object) {
	d.objects[ref] = obj
	if ref.Num > d.maxNum {
		d.maxNum = ref.Num
	}
}

// AddObject registers obj under a fresh object number.
func (d *Document) AddObject(obj Object) Ref {
	d.maxNum++
	ref := Ref{Num: d.maxNum}
	d.objects[ref] = obj
	return ref
}

// RemoveObject drops an indirect object.
func (d *Document) RemoveObject(ref Ref) {
	delete(d.objects, ref)
}

// Trailer returns the resolved trailer dictionary.
func (d *Document) Trailer() Dict { return d.trailer }

// IsEncrypted reports whether the file carries an /Encrypt dictionary.
func (d *Document) IsEncrypted() bool {
	if d.trailer == nil {
		return false
	}
	_, ok := d.trailer["Encrypt"]
	return ok
}

// Deref resolves indirect references, following chains with a depth cap.
func (d *Document) Deref(obj Object) Object {
	for i := 0; i < 32; i++ {
		ref, ok := obj.(Ref)
		if !ok {
			return obj
		}
		next, ok := d.objects[ref]
		if !ok {
			return nil
		}
		obj = next
	}
	return nil
}

// DerefDict resolves obj to a dictionary, unwrapping streams.
func (d *Document) DerefDict(obj Object) (Dict, bool) {
	switch v := d.Deref(obj).(type) {
	case Dict:
		return v, true
	case *Stream:
		return v.Dict, true
	}
	return nil, false
}

// DerefArray resolves obj to an array.
func (d *Document) DerefArray(obj Object) (Array, bool) {
	arr, ok := d.Deref(obj).(Array)
	return arr, ok
}

// DerefStream resolves obj to a stream.
func (d *Document) DerefStream(obj Object) (*Stream, bool) {
	s, ok := d.Deref(obj).(*Stream)
	return s, ok
}

// DerefInt resolves obj to an integer.
func (d *Document) DerefInt(obj Object) (int, bool) {
	return ToInt(d.Deref(obj))
}

// Catalog returns the document catalog.
func (d *Document) Catalog() (Dict, bool) {
	if d.trailer == nil {
		return nil, false
	}
	return d.DerefDict(d.trailer["Root"])
}

// Page is a leaf of the page tree with inherited attributes resolved.
type Page struct {
	Ref       Ref
	Dict      Dict
	MediaBox  Rect
	Rotate    int
	Resources Dict
	Contents  []Ref
}

// Pages walks the page tree in document order. When the tree is broken
// it falls back to collecting /Type /Page objects by number.
func (d *Document) Pages() ([]Page, error) {
	catalog, ok := d.Catalog()
	if !ok {
		return nil, fmt.Errorf("no catalog")
	}

	letterBox := Rect{X1: 612, Y1: 792}
	var pages []Page
	visited := make(map[Ref]bool)

	var walk func(obj Object, inherited Page)
	walk = func(obj Object, inherited Page) {
		ref, isRef := obj.(Ref)
		if isRef {
			if visited[ref] {
				return
			}
			visited[ref] = true
		}
		node, ok := d.DerefDict(obj)
		if !ok {
			return
		}
		cur := inherited
		if isRef {
			cur.Ref = ref
		}
		if box, ok := d.DerefArray(node["MediaBox"]); ok {
			if r, ok := RectFromArray(box); ok {
				cur.MediaBox = r
			}
		}
		if rot, ok := d.DerefInt(node["Rotate"]); ok {
			cur.Rotate = ((rot % 360) + 360) % 360
		}
		if res, ok := d.DerefDict(node["Resources"]); ok {
			cur.Resources = res
		}

		typ, _ := node["Type"].(Name)
		if typ == "Page" || (typ != "Pages" && node["Kids"] == nil && node["Contents"] != nil) {
			cur.Dict = node
			if cur.MediaBox.Empty() {
				cur.MediaBox = letterBox
			}
			cur.Contents = d.contentRefs(node["Contents"])
			pages = append(pages, cur)
			return
		}
		if kids, ok := d.DerefArray(node["Kids"]); ok {
			for _, kid := range kids {
				walk(kid, cur)
			}
		}
	}
	walk(catalog["Pages"], Page{})

	if len(pages) == 0 {
		pages = d.pagesByScan(letterBox)
	}
	if len(pages) == 0 {
		return nil, fmt.Errorf("no pages")
	}
	return pages, nil
}

// pagesByScan collects page dictionaries by object number when the page
// tree cannot be walked.
func (d *Document) pagesByScan(fallbackBox Rect) []Page {
	var refs []Ref
	for ref, obj := range d.objects {
		if dict, ok := obj.(Dict); ok {
			if typ, _ := dict["Type"].(Name); typ == "Page" {
				refs = append(refs, ref)
			}
		}
	}
	sortRefs(refs)
	var pages []Page
	for _, ref := range refs {
		dict := d.objects[ref].(Dict)
		page := Page{Ref: ref, Dict: dict, MediaBox: fallbackBox}
		if box, ok := d.DerefArray(dict["MediaBox"]); ok {
			if r, ok := RectFromArray(box); ok {
				page.MediaBox = r
			}
		}
		if res, ok := d.DerefDict(dict["Resources"]); ok {
			page.Resources = res
		}
		page.Contents = d.contentRefs(dict["Contents"])
		pages = append(pages, page)
	}
	return pages
}

func sortRefs(refs []Ref) {
	for i := 1; i < len(refs); i++ {
		for j := i; j > 0 && refs[j].Num < refs[j-1].Num; j-- {
			refs[j], refs[j-1] = refs[j-1], refs[j]
		}
	}
}

// contentRefs normalizes /Contents to an ordered list of stream refs.
func (d *Document) contentRefs(obj Object) []Ref {
	switch v := obj.(type) {
	case Ref:
		if arr, ok := d.Deref(v).(Array); ok {
			return d.arrayRefs(arr)
		}
		return []Ref{v}
	case Array:
		return d.arrayRefs(v)
	}
	return nil
}

func (d *Document) arrayRefs(arr Array) []Ref {
	var refs []Ref
	for _, item := range arr {
		if ref, ok := item.(Ref); ok {
			refs = append(refs, ref)
		}
	}
	return refs
}

// PageContent concatenates and decodes a page's content streams.
// Multiple streams are joined with a newline, as the spec requires them
// to be treated as one stream.
func (d *Document) PageContent(page Page) ([]byte, error) {
	var out bytes.Buffer
	for _, ref := range page.Contents {
		stream, ok := d.DerefStream(ref)
		if !ok {
			continue
		}
		data, err := d.DecodeStream(stream)
		if err != nil {
			return nil, fmt.Errorf("content stream %d: %w", ref.Num, err)
		}
		if out.Len() > 0 {
			out.WriteByte('\n')
		}
		out.Write(data)
	}
	return out.Bytes(), nil
}
