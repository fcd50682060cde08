package qr

import (
	"fmt"
	"image"

	"golang.org/x/image/draw"
)

// PixelBuffer is a raw RGBA frame, 4 bytes per pixel, row-major
type PixelBuffer struct {
	Width  int
	Height int
	Pix    []byte
}

// Validate checks that dimensions and sample count agree
func (b PixelBuffer) Validate() error {
	if b.Width <= 0 || b.Height <= 0 {
		return fmt.Errorf("invalid dimensions %dx%d", b.Width, b.Height)
	}
	if want := b.Width * b.Height * 4; len(b.Pix) != want {
		return fmt.Errorf("pixel data is %d bytes, want %d for %dx%d", len(b.Pix), want, b.Width, b.Height)
	}
	return nil
}

// Image wraps the buffer as an image without copying
func (b PixelBuffer) Image() *image.RGBA {
	return &image.RGBA{
		Pix:    b.Pix,
		Stride: b.Width * 4,
		Rect:   image.Rect(0, 0, b.Width, b.Height),
	}
}

// FromImage reduces any image to a PixelBuffer
func FromImage(img image.Image) PixelBuffer {
	bounds := img.Bounds()
	rgba, ok := img.(*image.RGBA)
	if !ok || bounds.Min != (image.Point{}) || rgba.Stride != bounds.Dx()*4 {
		rgba = image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
		draw.Draw(rgba, rgba.Bounds(), img, bounds.Min, draw.Src)
	}
	return PixelBuffer{
		Width:  bounds.Dx(),
		Height: bounds.Dy(),
		Pix:    rgba.Pix,
	}
}
