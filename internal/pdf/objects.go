package pdf

import (
	"fmt"
	"sort"
)

// Object is any value parsed from a PDF body: nil, bool, int64, float64,
// Name, String, Ref, Dict, Array or *Stream.
type Object interface{}

// Name is a PDF name without the leading slash.
type Name string

// String holds the decoded bytes of a literal or hex string.
type String []byte

// Ref is an indirect object reference.
type Ref struct {
	Num int
	Gen int
}

// Dict is a PDF dictionary.
type Dict map[Name]Object

// Array is a PDF array.
type Array []Object

// Stream is a stream object: its dictionary plus the raw encoded bytes.
type Stream struct {
	Dict Dict
	Raw  []byte
}

func (r Ref) String() string { return fmt.Sprintf("%d %d R", r.Num, r.Gen) }

// SortedKeys returns the dictionary keys in a stable order.
func (d Dict) SortedKeys() []Name {
	keys := make([]Name, 0, len(d))
	for k := range d {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// Clone returns a shallow copy of the dictionary.
func (d Dict) Clone() Dict {
	out := make(Dict, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}

// ToInt converts a numeric object to int.
func ToInt(obj Object) (int, bool) {
	switch v := obj.(type) {
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	}
	return 0, false
}

// ToFloat converts a numeric object to float64.
func ToFloat(obj Object) (float64, bool) {
	switch v := obj.(type) {
	case int64:
		return float64(v), true
	case float64:
		return v, true
	}
	return 0, false
}

// Rect is an axis-aligned rectangle in PDF point space, origin bottom-left.
type Rect struct {
	X0, Y0, X1, Y1 float64
}

func (r Rect) Width() float64  { return r.X1 - r.X0 }
func (r Rect) Height() float64 { return r.Y1 - r.Y0 }

func (r Rect) Empty() bool { return r.X1 <= r.X0 || r.Y1 <= r.Y0 }

func (r Rect) Intersects(o Rect) bool {
	return r.X0 < o.X1 && o.X0 < r.X1 && r.Y0 < o.Y1 && o.Y0 < r.Y1
}

// Contains reports whether the point lies inside the rectangle.
func (r Rect) Contains(x, y float64) bool {
	return x >= r.X0 && x <= r.X1 && y >= r.Y0 && y <= r.Y1
}

// Union expands the rectangle to cover o.
func (r Rect) Union(o Rect) Rect {
	if r.Empty() {
		return o
	}
	if o.Empty() {
		return r
	}
	return Rect{
		X0: min(r.X0, o.X0),
		Y0: min(r.Y0, o.Y0),
		X1: max(r.X1, o.X1),
		Y1: max(r.Y1, o.Y1),
	}
}

// RectFromArray reads a /MediaBox style 4-number array, normalizing
// swapped corners.
func RectFromArray(arr Array) (Rect, bool) {
	if len(arr) != 4 {
		return Rect{}, false
	}
	var v [4]float64
	for i, obj := range arr {
		f, ok := ToFloat(obj)
		if !ok {
			return Rect{}, false
		}
		v[i] = f
	}
	r := Rect{X0: v[0], Y0: v[1], X1: v[2], Y1: v[3]}
	if r.X0 > r.X1 {
		r.X0, r.X1 = r.X1, r.X0
	}
	if r.Y0 > r.Y1 {
		r.Y0, r.Y1 = r.Y1, r.Y0
	}
	return r, true
}
