package pdf

import (
	"bytes"
	"compress/flate"
	"compress/zlib"
	"encoding/ascii85"
	"errors"
	"fmt"
	"io"
)

// ErrUnsupportedFilter marks stream codecs the reader cannot decode.
var ErrUnsupportedFilter = errors.New("unsupported filter")

// maxDecodedSize caps filter output to keep a hostile stream from
// exhausting memory.
const maxDecodedSize = 256 << 20

// DecodeStream applies the stream's filter chain to its raw bytes.
func (d *Document) DecodeStream(s *Stream) ([]byte, error) {
	filters := d.filterNames(s.Dict["Filter"])
	parms := d.filterParms(s.Dict["DecodeParms"], len(filters))

	data := s.Raw
	for i, name := range filters {
		var err error
		data, err = d.applyFilter(name, data, parms[i])
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		if len(data) > maxDecodedSize {
			return nil, fmt.Errorf("%s: decoded stream too large", name)
		}
	}
	return data, nil
}

// StreamFilters returns the stream's filter chain names.
func (d *Document) StreamFilters(s *Stream) []Name {
	return d.filterNames(s.Dict["Filter"])
}

func (d *Document) filterNames(obj Object) []Name {
	switch v := d.Deref(obj).(type) {
	case Name:
		return []Name{v}
	case Array:
		var names []Name
		for _, item := range v {
			if n, ok := d.Deref(item).(Name); ok {
				names = append(names, n)
			}
		}
		return names
	}
	return nil
}

func (d *Document) filterParms(obj Object, n int) []Dict {
	parms := make([]Dict, n)
	switch v := d.Deref(obj).(type) {
	case Dict:
		if n > 0 {
			parms[0] = v
		}
	case Array:
		for i := 0; i < n && i < len(v); i++ {
			if dict, ok := d.DerefDict(v[i]); ok {
				parms[i] = dict
			}
		}
	}
	return parms
}

func (d *Document) applyFilter(name Name, data []byte, parms Dict) ([]byte, error) {
	switch name {
	case "FlateDecode", "Fl":
		out, err := flateDecode(data)
		if err != nil {
			return nil, err
		}
		return d.applyPredictor(out, parms)
	case "ASCIIHexDecode", "AHx":
		return asciiHexDecode(data)
	case "ASCII85Decode", "A85":
		return ascii85Decode(data)
	case "RunLengthDecode", "RL":
		return runLengthDecode(data)
	}
	return nil, ErrUnsupportedFilter
}

// flateDecode handles both zlib-wrapped and bare deflate payloads;
// files in the wild carry both.
func flateDecode(data []byte) ([]byte, error) {
	zr, err := zlib.NewReader(bytes.NewReader(data))
	if err == nil {
		out, err := readAllLimited(zr)
		zr.Close()
		if err == nil {
			return out, nil
		}
	}
	fr := flate.NewReader(bytes.NewReader(data))
	defer fr.Close()
	out, err := readAllLimited(fr)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func readAllLimited(r io.Reader) ([]byte, error) {
	out, err := io.ReadAll(io.LimitReader(r, maxDecodedSize+1))
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		return nil, err
	}
	if len(out) > maxDecodedSize {
		return nil, errors.New("decoded stream too large")
	}
	return out, nil
}

// FlateEncode compresses data for stream storage.
func FlateEncode(data []byte) []byte {
	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	zw.Write(data)
	zw.Close()
	return buf.Bytes()
}

func asciiHexDecode(data []byte) ([]byte, error) {
	if idx := bytes.IndexByte(data, '>'); idx >= 0 {
		data = data[:idx]
	}
	var nibbles []byte
	for _, c := range data {
		if isWhitespace(c) {
			continue
		}
		if _, ok := fromHex(c); !ok {
			return nil, fmt.Errorf("invalid hex digit %q", c)
		}
		nibbles = append(nibbles, c)
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
	return out, nil
}

func ascii85Decode(data []byte) ([]byte, error) {
	data = bytes.TrimSpace(data)
	data = bytes.TrimPrefix(data, []byte("<~"))
	if idx := bytes.Index(data, []byte("~>")); idx >= 0 {
		data = data[:idx]
	}
	out, err := readAllLimited(ascii85.NewDecoder(bytes.NewReader(data)))
	if err != nil {
		return nil, err
	}
	return out, nil
}

func runLengthDecode(data []byte) ([]byte, error) {
	var out bytes.Buffer
	for i := 0; i < len(data); {
		n := int(data[i])
		i++
		if n == 128 {
			break
		}
		if n < 128 {
			end := i + n + 1
			if end > len(data) {
				return nil, errors.New("truncated run length data")
			}
			out.Write(data[i:end])
			i = end
			continue
		}
		if i >= len(data) {
			return nil, errors.New("truncated run length data")
		}
		out.Write(bytes.Repeat(data[i:i+1], 257-n))
		i++
	}
	return out.Bytes(), nil
}

// applyPredictor undoes PNG and TIFF predictors on flate output.
func (d *Document) applyPredictor(data []byte, parms Dict) ([]byte, error) {
	if parms == nil {
		return data, nil
	}
	predictor, ok := d.DerefInt(parms["Predictor"])
	if !ok || predictor <= 1 {
		return data, nil
	}
	colors := 1
	if v, ok := d.DerefInt(parms["Colors"]); ok && v > 0 {
		colors = v
	}
	bpc := 8
	if v, ok := d.DerefInt(parms["BitsPerComponent"]); ok && v > 0 {
		bpc = v
	}
	columns := 1
	if v, ok := d.DerefInt(parms["Columns"]); ok && v > 0 {
		columns = v
	}
	rowLen := (colors*bpc*columns + 7) / 8
	bpp := (colors*bpc + 7) / 8
	if bpp < 1 {
		bpp = 1
	}

	if predictor == 2 {
		return tiffPredictor(data, rowLen, bpp)
	}
	if predictor >= 10 {
		return pngPredictor(data, rowLen, bpp)
	}
	return nil, fmt.Errorf("unknown predictor %d", predictor)
}

func tiffPredictor(data []byte, rowLen, bpp int) ([]byte, error) {
	if rowLen <= 0 {
		return data, nil
	}
	out := append([]byte(nil), data...)
	for row := 0; row+rowLen <= len(out); row += rowLen {
		for i := bpp; i < rowLen; i++ {
			out[row+i] += out[row+i-bpp]
		}
	}
	return out, nil
}

func pngPredictor(data []byte, rowLen, bpp int) ([]byte, error) {
	if rowLen <= 0 {
		return data, nil
	}
	stride := rowLen + 1
	rows := len(data) / stride
	out := make([]byte, 0, rows*rowLen)
	prev := make([]byte, rowLen)
	row := make([]byte, rowLen)
	for r := 0; r < rows; r++ {
		ft := data[r*stride]
		copy(row, data[r*stride+1:(r+1)*stride])
		switch ft {
		case 0: // None
		case 1: // Sub
			for i := bpp; i < rowLen; i++ {
				row[i] += row[i-bpp]
			}
		case 2: // Up
			for i := 0; i < rowLen; i++ {
				row[i] += prev[i]
			}
		case 3: // Average
			for i := 0; i < rowLen; i++ {
				left := 0
				if i >= bpp {
					left = int(row[i-bpp])
				}
				row[i] += byte((left + int(prev[i])) / 2)
			}
		case 4: // Paeth
			for i := 0; i < rowLen; i++ {
				left, upLeft := 0, 0
				if i >= bpp {
					left = int(row[i-bpp])
					upLeft = int(prev[i-bpp])
				}
				row[i] += paeth(left, int(prev[i]), upLeft)
			}
		default:
			return nil, fmt.Errorf("unknown png filter %d", ft)
		}
		out = append(out, row...)
		copy(prev, row)
	}
	return out, nil
}

func paeth(a, b, c int) byte {
	p := a + b - c
	pa, pb, pc := abs(p-a), abs(p-b), abs(p-c)
	if pa <= pb && pa <= pc {
		return byte(a)
	}
	if pb <= pc {
		return byte(b)
	}
	return byte(c)
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
