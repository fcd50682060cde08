package qr

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"  // Register GIF decoder
	_ "image/jpeg" // Register JPEG decoder
	_ "image/png"  // Register PNG decoder
	"strings"

	"github.com/gen2brain/go-fitz"
	"github.com/gen2brain/heic"
)

// ErrUnsupportedFormat is returned when the bytes are not an image or PDF
var ErrUnsupportedFormat = errors.New("unsupported image format")

// LoadImage decodes PNG, JPEG, GIF, HEIC/HEIF and the first page of a PDF.
// mimeType may be empty; the content is sniffed as well.
func LoadImage(data []byte, mimeType string) (image.Image, error) {
	mimeType = strings.ToLower(strings.TrimSpace(mimeType))

	switch {
	case mimeType == "application/pdf" || bytes.HasPrefix(data, []byte("%PDF-")):
		return renderPDF(data)
	case IsHEIC(data) || isHEICMimeType(mimeType):
		img, err := heic.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("decoding HEIC/HEIF image: %w", err)
		}
		return img, nil
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		if errors.Is(err, image.ErrFormat) {
			return nil, fmt.Errorf("%w (supported: JPEG, PNG, GIF, HEIC, HEIF, PDF)", ErrUnsupportedFormat)
		}
		return nil, fmt.Errorf("decoding image: %w", err)
	}
	return img, nil
}

// Load decodes data and reduces it to a PixelBuffer
func Load(data []byte, mimeType string) (PixelBuffer, error) {
	img, err := LoadImage(data, mimeType)
	if err != nil {
		return PixelBuffer{}, err
	}
	return FromImage(img), nil
}

// renderPDF rasterizes the first page; printed receipts are single page
func renderPDF(data []byte) (image.Image, error) {
	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return nil, fmt.Errorf("opening PDF: %w", err)
	}
	defer doc.Close()

	if doc.NumPage() == 0 {
		return nil, fmt.Errorf("PDF has no pages")
	}
	img, err := doc.Image(0)
	if err != nil {
		return nil, fmt.Errorf("rendering PDF page: %w", err)
	}
	return img, nil
}

// IsHEIC checks the ftyp box for HEIC-family brands
func IsHEIC(data []byte) bool {
	if len(data) < 12 || string(data[4:8]) != "ftyp" {
		return false
	}
	switch string(data[8:12]) {
	case "heic", "heix", "heif", "mif1", "msf1":
		return true
	}
	return false
}

func isHEICMimeType(mimeType string) bool {
	return strings.Contains(mimeType, "heic") || strings.Contains(mimeType, "heif")
}
