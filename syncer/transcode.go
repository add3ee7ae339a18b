package syncer

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"path/filepath"
	"strings"

	"golang.org/x/image/draw"
)

// Default transcode parameters.
const (
	DefaultMaxDimension = 2048
	DefaultQuality      = 85
)

// Transcoder produces the cloud-optimized representation of an original.
type Transcoder interface {
	Transcode(data []byte, ext string) ([]byte, error)
}

// ImageTranscoder bounds the longest edge and re-encodes in the input format.
type ImageTranscoder struct {
	// MaxDimension bounds the longest edge in pixels (default 2048).
	MaxDimension int
	// Quality is the JPEG quality, 1..100 (default 85).
	Quality int
}

// Transcode decodes data, downsizes it when larger than MaxDimension and
// re-encodes it. PNG stays PNG; everything else is written as JPEG.
func (t ImageTranscoder) Transcode(data []byte, ext string) ([]byte, error) {
	if len(data) == 0 {
		return nil, errors.New("empty image")
	}
	maxDim := t.MaxDimension
	if maxDim <= 0 {
		maxDim = DefaultMaxDimension
	}
	quality := t.Quality
	if quality <= 0 || quality > 100 {
		quality = DefaultQuality
	}

	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}

	img := resize(src, maxDim)

	var out bytes.Buffer
	if strings.EqualFold(ext, ".png") {
		enc := png.Encoder{CompressionLevel: png.BestCompression}
		if err := enc.Encode(&out, img); err != nil {
			return nil, fmt.Errorf("encode png: %w", err)
		}
		return out.Bytes(), nil
	}
	if err := jpeg.Encode(&out, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return out.Bytes(), nil
}

// resize scales img so its longest edge is at most maxDim, keeping aspect.
func resize(img image.Image, maxDim int) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= maxDim && h <= maxDim {
		return img
	}

	var nw, nh int
	if w >= h {
		nw, nh = maxDim, max(1, h*maxDim/w)
	} else {
		nw, nh = max(1, w*maxDim/h), maxDim
	}

	dst := image.NewRGBA(image.Rect(0, 0, nw, nh))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}

// contentTypeOf maps a media extension to its MIME type.
func contentTypeOf(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".png":
		return "image/png"
	default:
		return "image/jpeg"
	}
}
