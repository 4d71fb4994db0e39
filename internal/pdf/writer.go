package pdf

import (
	"bytes"
	"fmt"
	"sort"
)

// Write serializes the document as a fresh file with a classic cross
// reference table. Only objects reachable from the trailer are
// written, so anything an edit unlinked, removed text streams
// included, is gone from the output rather than lurking unreferenced.
func (d *Document) Write() ([]byte, error) {
	if d.trailer == nil {
		return nil, fmt.Errorf("no trailer")
	}
	reach := d.reachable()
	if len(reach) == 0 {
		return nil, fmt.Errorf("no reachable objects")
	}

	byNum := make(map[int]Ref, len(reach))
	maxNum := 0
	for ref := range reach {
		if cur, ok := byNum[ref.Num]; !ok || ref.Gen > cur.Gen {
			byNum[ref.Num] = ref
		}
		if ref.Num > maxNum {
			maxNum = ref.Num
		}
	}
	nums := make([]int, 0, len(byNum))
	for num := range byNum {
		nums = append(nums, num)
	}
	sort.Ints(nums)

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.7\n")
	buf.Write([]byte{'%', 0xe2, 0xe3, 0xcf, 0xd3, '\n'})

	offsets := make(map[int]int, len(nums))
	for _, num := range nums {
		ref := byNum[num]
		obj := d.objects[ref]
		if s, ok := obj.(*Stream); ok {
			s.Dict["Length"] = int64(len(s.Raw))
		}
		offsets[num] = buf.Len()
		fmt.Fprintf(&buf, "%d %d obj\n", ref.Num, ref.Gen)
		serializePrimitive(&buf, obj)
		buf.WriteString("\nendobj\n")
	}

	xrefPos := buf.Len()
	size := maxNum + 1
	fmt.Fprintf(&buf, "xref\n0 %d\n", size)
	buf.WriteString("0000000000 65535 f \n")
	for num := 1; num < size; num++ {
		if off, ok := offsets[num]; ok {
			fmt.Fprintf(&buf, "%010d %05d n \n", off, byNum[num].Gen)
		} else {
			buf.WriteString("0000000000 65535 f \n")
		}
	}

	trailer := d.writeTrailer(size)
	buf.WriteString("trailer\n")
	serializePrimitive(&buf, trailer)
	fmt.Fprintf(&buf, "\nstartxref\n%d\n%%%%EOF\n", xrefPos)
	return buf.Bytes(), nil
}

// writeTrailer keeps only the keys that make sense in a rewritten
// file. Cross reference stream leftovers and the previous file's
// layout keys are dropped.
func (d *Document) writeTrailer(size int) Dict {
	out := make(Dict)
	for _, key := range []Name{"Root", "Info", "ID"} {
		if v, ok := d.trailer[key]; ok {
			out[key] = v
		}
	}
	out["Size"] = int64(size)
	return out
}

// reachable walks the object graph from the trailer.
func (d *Document) reachable() map[Ref]bool {
	seen := make(map[Ref]bool)
	var stack []Object
	for _, key := range []Name{"Root", "Info"} {
		if v, ok := d.trailer[key]; ok {
			stack = append(stack, v)
		}
	}
	for len(stack) > 0 {
		obj := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		switch v := obj.(type) {
		case Ref:
			if seen[v] {
				continue
			}
			if target, ok := d.objects[v]; ok {
				seen[v] = true
				stack = append(stack, target)
			}
		case Dict:
			for _, item := range v {
				stack = append(stack, item)
			}
		case Array:
			for _, item := range v {
				stack = append(stack, item)
			}
		case *Stream:
			for _, item := range v.Dict {
				stack = append(stack, item)
			}
		}
	}
	return seen
}
