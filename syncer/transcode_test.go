package syncer

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"
)

func testImage(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			img.Set(x, y, color.RGBA{uint8(x), uint8(y), 128, 255})
		}
	}
	return img
}

func TestImageTranscoder_DownsizesJPEG(t *testing.T) {
	var src bytes.Buffer
	if err := jpeg.Encode(&src, testImage(400, 200), &jpeg.Options{Quality: 100}); err != nil {
		t.Fatal(err)
	}

	out, err := ImageTranscoder{MaxDimension: 100, Quality: 70}.Transcode(src.Bytes(), ".jpg")
	if err != nil {
		t.Fatalf("Transcode: %v", err)
	}
	cfg, format, err := image.DecodeConfig(bytes.NewReader(out))
	if err != nil {
		t.Fatal(err)
	}
	if format != "jpeg" || cfg.Width != 100 || cfg.Height != 50 {
		t.Errorf("got %s %dx%d, want jpeg 100x50", format, cfg.Width, cfg.Height)
	}
}

func TestImageTranscoder_KeepsSmallImageSize(t *testing.T) {
	var src bytes.Buffer
	if err := png.Encode(&src, testImage(30, 60)); err != nil {
		t.Fatal(err)
	}

	out, err := ImageTranscoder{MaxDimension: 100}.Transcode(src.Bytes(), ".PNG")
	if err != nil {
		t.Fatalf("Transcode: %v", err)
	}
	cfg, format, err := image.DecodeConfig(bytes.NewReader(out))
	if err != nil {
		t.Fatal(err)
	}
	if format != "png" || cfg.Width != 30 || cfg.Height != 60 {
		t.Errorf("got %s %dx%d, want png 30x60", format, cfg.Width, cfg.Height)
	}
}

func TestImageTranscoder_RejectsGarbage(t *testing.T) {
	if _, err := (ImageTranscoder{}).Transcode([]byte("not an image"), ".jpg"); err == nil {
		t.Error("expected decode error")
	}
	if _, err := (ImageTranscoder{}).Transcode(nil, ".jpg"); err == nil {
		t.Error("expected error for empty input")
	}
}

func TestContentTypeOf(t *testing.T) {
	if got := contentTypeOf("a.PNG"); got != "image/png" {
		t.Errorf("got %s", got)
	}
	if got := contentTypeOf("a.jpeg"); got != "image/jpeg" {
		t.Errorf("got %s", got)
	}
}
