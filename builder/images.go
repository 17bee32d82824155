package builder

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"

	"github.com/wudi/tagpdf/ir/semantic"
)

// FromJPEG wraps JPEG data as a DCTDecode image without re-encoding.
func FromJPEG(data []byte) (*semantic.Image, error) {
	cfg, err := jpeg.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("jpeg: %w", err)
	}
	img := &semantic.Image{
		Subtype:          "Image",
		Width:            cfg.Width,
		Height:           cfg.Height,
		BitsPerComponent: 8,
		Data:             append([]byte(nil), data...),
		Filter:           "DCTDecode",
	}
	switch cfg.ColorModel {
	case color.GrayModel:
		img.ColorSpace = "DeviceGray"
	case color.CMYKModel:
		// Adobe CMYK JPEGs store inverted components.
		img.ColorSpace = "DeviceCMYK"
		img.Decode = []float64{1, 0, 1, 0, 1, 0, 1, 0}
	default:
		img.ColorSpace = "DeviceRGB"
	}
	return img, nil
}

// FromImage converts a decoded image to an RGB image. Transparency becomes a
// soft mask.
func FromImage(src image.Image) *semantic.Image {
	bounds := src.Bounds()
	w, h := bounds.Dx(), bounds.Dy()

	nrgba := image.NewNRGBA(image.Rect(0, 0, w, h))
	draw.Draw(nrgba, nrgba.Bounds(), src, bounds.Min, draw.Src)

	pixels := make([]byte, 0, w*h*3)
	alpha := make([]byte, 0, w*h)
	hasAlpha := false
	for i := 0; i < w*h; i++ {
		offset := i * 4
		pixels = append(pixels, nrgba.Pix[offset], nrgba.Pix[offset+1], nrgba.Pix[offset+2])
		a := nrgba.Pix[offset+3]
		alpha = append(alpha, a)
		if a < 255 {
			hasAlpha = true
		}
	}

	img := &semantic.Image{
		Subtype:          "Image",
		Width:            w,
		Height:           h,
		ColorSpace:       "DeviceRGB",
		BitsPerComponent: 8,
		Data:             pixels,
	}
	if hasAlpha {
		img.SMask = &semantic.Image{
			Subtype:          "Image",
			Width:            w,
			Height:           h,
			ColorSpace:       "DeviceGray",
			BitsPerComponent: 8,
			Data:             alpha,
		}
	}
	return img
}
