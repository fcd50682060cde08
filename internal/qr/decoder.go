// Package qr locates and decodes a single QR code in a raster image.
package qr

import (
	"fmt"
	"image"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/qrcode"
	"github.com/sirupsen/logrus"
	"golang.org/x/image/draw"

	"github.com/rezonia/nfce-processor/internal/model"
)

var logger = logrus.WithField("component", "qr")

// DefaultMaxDimension bounds the frame size handed to the detector
const DefaultMaxDimension = 1600

// Decoder finds one QR code in a frame and returns its text payload
type Decoder struct {
	maxDimension int
}

// Option configures a Decoder
type Option func(*Decoder)

// WithMaxDimension sets the largest side before frames are downscaled.
// Zero disables scaling.
func WithMaxDimension(px int) Option {
	return func(d *Decoder) {
		d.maxDimension = px
	}
}

// NewDecoder creates a decoder
func NewDecoder(opts ...Option) *Decoder {
	d := &Decoder{maxDimension: DefaultMaxDimension}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Decode returns the raw text of the QR code in buf. Every failure,
// including a malformed buffer, is reported as model.ErrQRNotFound.
func (d *Decoder) Decode(buf PixelBuffer) (string, error) {
	if err := buf.Validate(); err != nil {
		return "", fmt.Errorf("%w: %v", model.ErrQRNotFound, err)
	}
	return d.DecodeImage(buf.Image())
}

// DecodeImage is Decode for an already decoded image
func (d *Decoder) DecodeImage(img image.Image) (string, error) {
	if scaled, ok := d.downscale(img); ok {
		if text, err := decode(scaled); err == nil {
			return text, nil
		}
		logger.Debug("decode at reduced size failed, retrying at full size")
	}

	text, err := decode(img)
	if err != nil {
		return "", fmt.Errorf("%w: %v", model.ErrQRNotFound, err)
	}
	return text, nil
}

func (d *Decoder) downscale(img image.Image) (image.Image, bool) {
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	if d.maxDimension <= 0 || (width <= d.maxDimension && height <= d.maxDimension) {
		return nil, false
	}

	var newWidth, newHeight int
	if width > height {
		newWidth = d.maxDimension
		newHeight = int(float64(height) * float64(d.maxDimension) / float64(width))
	} else {
		newHeight = d.maxDimension
		newWidth = int(float64(width) * float64(d.maxDimension) / float64(height))
	}
	if newWidth < 1 || newHeight < 1 {
		return nil, false
	}

	dst := image.NewRGBA(image.Rect(0, 0, newWidth, newHeight))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, draw.Over, nil)
	return dst, true
}

func decode(img image.Image) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("detector panic: %v", r)
		}
	}()

	bmp, err := gozxing.NewBinaryBitmapFromImage(img)
	if err != nil {
		return "", err
	}
	hints := map[gozxing.DecodeHintType]interface{}{
		gozxing.DecodeHintType_TRY_HARDER: true,
	}
	result, err := qrcode.NewQRCodeReader().Decode(bmp, hints)
	if err != nil {
		return "", err
	}
	return result.GetText(), nil
}
