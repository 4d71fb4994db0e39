package pdf

import (
	"bytes"
	"fmt"
	"image"
	"image/draw"
	"image/jpeg"
	"math"
)

// BlackoutImage zeroes the pixels under the given unit-space regions,
// origin bottom left, in the referenced image XObject. JPEG data is
// decoded and re-encoded; flate or raw sample data is rewritten in
// place. An error means the encoding cannot be rewritten and the
// caller has to drop the placement instead.
func (d *Document) BlackoutImage(ref Ref, regions []Rect) error {
	stream, ok := d.DerefStream(ref)
	if !ok {
		return fmt.Errorf("image %s: not a stream", ref)
	}
	w, _ := d.DerefInt(stream.Dict["Width"])
	h, _ := d.DerefInt(stream.Dict["Height"])
	if w <= 0 || h <= 0 {
		return fmt.Errorf("image %s: bad dimensions", ref)
	}

	filters := d.StreamFilters(stream)
	if len(filters) == 1 && filters[0] == "DCTDecode" {
		return d.blackoutJPEG(ref, stream, regions)
	}
	return d.blackoutSamples(ref, stream, w, h, regions)
}

func (d *Document) blackoutJPEG(ref Ref, stream *Stream, regions []Rect) error {
	img, err := jpeg.Decode(bytes.NewReader(stream.Raw))
	if err != nil {
		return fmt.Errorf("image %s: %w", ref, err)
	}

	var canvas draw.Image
	switch v := img.(type) {
	case *image.Gray:
		canvas = v
	case *image.RGBA:
		canvas = v
	default:
		b := img.Bounds()
		rgba := image.NewRGBA(b)
		draw.Draw(rgba, b, img, b.Min, draw.Src)
		canvas = rgba
	}
	bounds := canvas.Bounds()
	for _, r := range pixelRects(regions, bounds.Dx(), bounds.Dy()) {
		draw.Draw(canvas, r.Add(bounds.Min), image.Black, image.Point{}, draw.Src)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, canvas, &jpeg.Options{Quality: 85}); err != nil {
		return fmt.Errorf("image %s: %w", ref, err)
	}

	dict := stream.Dict.Clone()
	dict["Filter"] = Name("DCTDecode")
	dict["Length"] = int64(buf.Len())
	dict["BitsPerComponent"] = int64(8)
	if _, gray := canvas.(*image.Gray); gray {
		dict["ColorSpace"] = Name("DeviceGray")
	} else {
		dict["ColorSpace"] = Name("DeviceRGB")
	}
	delete(dict, "DecodeParms")
	delete(dict, "DP")
	delete(dict, "Decode")
	d.SetObject(ref, &Stream{Dict: dict, Raw: buf.Bytes()})
	return nil
}

func (d *Document) blackoutSamples(ref Ref, stream *Stream, w, h int, regions []Rect) error {
	for _, f := range d.StreamFilters(stream) {
		switch f {
		case "FlateDecode", "Fl":
		default:
			return fmt.Errorf("image %s: %w", ref, ErrUnsupportedFilter)
		}
	}
	data, err := d.DecodeStream(stream)
	if err != nil {
		return fmt.Errorf("image %s: %w", ref, err)
	}

	bpc, ok := d.DerefInt(stream.Dict["BitsPerComponent"])
	if !ok {
		bpc = 8
		if mask, _ := d.Deref(stream.Dict["ImageMask"]).(bool); mask {
			bpc = 1
		}
	}
	comps := d.colorComponents(stream.Dict["ColorSpace"])
	rowLen := (w*comps*bpc + 7) / 8
	if rowLen <= 0 || len(data) < rowLen*h {
		return fmt.Errorf("image %s: sample data short", ref)
	}

	// partial bytes at the edges are zeroed whole, which can only
	// widen the blacked region
	for _, r := range pixelRects(regions, w, h) {
		byteStart := r.Min.X * comps * bpc / 8
		byteEnd := min((r.Max.X*comps*bpc+7)/8, rowLen)
		for y := r.Min.Y; y < r.Max.Y; y++ {
			row := data[y*rowLen : y*rowLen+rowLen]
			for i := byteStart; i < byteEnd; i++ {
				row[i] = 0
			}
		}
	}

	enc := FlateEncode(data)
	dict := stream.Dict.Clone()
	dict["Filter"] = Name("FlateDecode")
	dict["Length"] = int64(len(enc))
	delete(dict, "DecodeParms")
	delete(dict, "DP")
	d.SetObject(ref, &Stream{Dict: dict, Raw: enc})
	return nil
}

// pixelRects converts unit-space regions to pixel bounds with the row
// order flipped, rounding outward.
func pixelRects(regions []Rect, w, h int) []image.Rectangle {
	var out []image.Rectangle
	for _, r := range regions {
		x0 := int(math.Floor(r.X0 * float64(w)))
		x1 := int(math.Ceil(r.X1 * float64(w)))
		y0 := int(math.Floor((1 - r.Y1) * float64(h)))
		y1 := int(math.Ceil((1 - r.Y0) * float64(h)))
		rect := image.Rect(
			min(max(x0, 0), w), min(max(y0, 0), h),
			min(max(x1, 0), w), min(max(y1, 0), h),
		)
		if rect.Dx() > 0 && rect.Dy() > 0 {
			out = append(out, rect)
		}
	}
	return out
}

func (d *Document) colorComponents(cs Object) int {
	switch v := d.Deref(cs).(type) {
	case Name:
		switch v {
		case "DeviceRGB", "CalRGB", "Lab":
			return 3
		case "DeviceCMYK":
			return 4
		}
		return 1
	case Array:
		if len(v) == 0 {
			return 1
		}
		name, _ := d.Deref(v[0]).(Name)
		switch name {
		case "ICCBased":
			if len(v) > 1 {
				if s, ok := d.DerefStream(v[1]); ok {
					if n, ok := d.DerefInt(s.Dict["N"]); ok {
						return n
					}
				}
			}
			return 3
		case "CalRGB", "Lab":
			return 3
		case "DeviceN":
			if len(v) > 1 {
				if arr, ok := d.DerefArray(v[1]); ok {
					return len(arr)
				}
			}
		}
	}
	return 1
}
