// Package capture turns a camera frame into the encoded still that goes into a report.
package capture

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/jpeg"
	"math"
	"strings"

	"golang.org/x/image/draw"
)

const (
	MIMEJPEG = "image/jpeg"

	// DefaultQuality matches what browsers use for canvas.toDataURL("image/jpeg").
	DefaultQuality = 92
)

// Options tunes encoding. The zero value encodes at DefaultQuality without scaling.
type Options struct {
	Quality int
	// MaxDimension bounds the longer side after cropping. Zero disables scaling.
	MaxDimension int
}

// Encoded is a still image ready to upload.
type Encoded struct {
	MIME   string `json:"mime"`
	Data   []byte `json:"-"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// DataURL renders the image the way the backend expects photos in JSON bodies.
func (e Encoded) DataURL() string {
	return "data:" + e.MIME + ";base64," + base64.StdEncoding.EncodeToString(e.Data)
}

func (e Encoded) Empty() bool {
	return len(e.Data) == 0
}

// ParseDataURL is the inverse of DataURL. Only base64 payloads are accepted.
func ParseDataURL(s string) (mime string, data []byte, err error) {
	rest, ok := strings.CutPrefix(s, "data:")
	if !ok {
		return "", nil, fmt.Errorf("not a data URL")
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return "", nil, fmt.Errorf("data URL has no payload")
	}
	mime, ok = strings.CutSuffix(meta, ";base64")
	if !ok {
		return "", nil, fmt.Errorf("data URL is not base64 encoded")
	}
	data, err = base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, fmt.Errorf("failed to decode data URL: %w", err)
	}
	return mime, data, nil
}

// CropRect returns the centered region of bounds that a digital zoom of the given
// factor shows. Factors <= 1 (and NaN) return bounds unchanged.
func CropRect(bounds image.Rectangle, zoom float64) image.Rectangle {
	if !(zoom > 1) || math.IsInf(zoom, 0) {
		return bounds
	}
	w, h := bounds.Dx(), bounds.Dy()
	cw := int(math.Round(float64(w) / zoom))
	ch := int(math.Round(float64(h) / zoom))
	if cw < 1 {
		cw = 1
	}
	if ch < 1 {
		ch = 1
	}
	x0 := bounds.Min.X + (w-cw)/2
	y0 := bounds.Min.Y + (h-ch)/2
	return image.Rect(x0, y0, x0+cw, y0+ch)
}

// Frame crops src by zoom, optionally downscales, and encodes it as JPEG.
// It keeps no state between calls.
func Frame(src image.Image, zoom float64, opts Options) (Encoded, error) {
	if src == nil {
		return Encoded{}, fmt.Errorf("no frame to capture")
	}
	b := src.Bounds()
	if b.Empty() {
		return Encoded{}, fmt.Errorf("frame has no pixels")
	}

	crop := CropRect(b, zoom)
	dst := image.NewRGBA(image.Rect(0, 0, crop.Dx(), crop.Dy()))
	draw.Draw(dst, dst.Bounds(), src, crop.Min, draw.Src)

	out := image.Image(dst)
	if w, h, scaled := fitWithin(crop.Dx(), crop.Dy(), opts.MaxDimension); scaled {
		small := image.NewRGBA(image.Rect(0, 0, w, h))
		draw.ApproxBiLinear.Scale(small, small.Bounds(), dst, dst.Bounds(), draw.Src, nil)
		out = small
	}

	quality := opts.Quality
	if quality <= 0 || quality > 100 {
		quality = DefaultQuality
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, out, &jpeg.Options{Quality: quality}); err != nil {
		return Encoded{}, fmt.Errorf("failed to encode frame: %w", err)
	}

	return Encoded{
		MIME:   MIMEJPEG,
		Data:   buf.Bytes(),
		Width:  out.Bounds().Dx(),
		Height: out.Bounds().Dy(),
	}, nil
}

// fitWithin scales (w, h) so the longer side is max, preserving aspect ratio.
func fitWithin(w, h, max int) (int, int, bool) {
	if max <= 0 || (w <= max && h <= max) {
		return w, h, false
	}
	scale := float64(max) / float64(w)
	if s := float64(max) / float64(h); s < scale {
		scale = s
	}
	nw := int(float64(w) * scale)
	nh := int(float64(h) * scale)
	if nw < 1 {
		nw = 1
	}
	if nh < 1 {
		nh = 1
	}
	return nw, nh, true
}
