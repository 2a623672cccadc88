package model

import (
	"image"
	"image/draw"

	"github.com/nfnt/resize"
)

// CropSquare returns the largest centred square of img.
func CropSquare(img image.Image) image.Image {
	b := img.Bounds()
	side := min(b.Dx(), b.Dy())
	x0 := b.Min.X + (b.Dx()-side)/2
	y0 := b.Min.Y + (b.Dy()-side)/2
	r := image.Rect(x0, y0, x0+side, y0+side)

	if b.Dx() == b.Dy() {
		return img
	}
	if s, ok := img.(interface {
		SubImage(image.Rectangle) image.Image
	}); ok {
		return s.SubImage(r)
	}
	dst := image.NewRGBA(image.Rect(0, 0, side, side))
	draw.Draw(dst, dst.Bounds(), img, r.Min, draw.Src)
	return dst
}

// Preprocess converts an image to the flat float tensor the model expects:
// centre crop, Lanczos resize to ImageSize, then normalise into the
// configured layout.
func Preprocess(img image.Image, m Metadata) []float32 {
	size := uint(m.ImageSize)
	resized := resize.Resize(size, size, CropSquare(img), resize.Lanczos3)

	bounds := resized.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	plane := width * height
	data := make([]float32, 3*plane)

	scale, offset := float32(1.0/65535.0), float32(0)
	if m.Normalize == NormalizeSymmetric {
		scale, offset = 2.0/65535.0, -1
	}

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			r, g, b, _ := resized.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
			rv := float32(r)*scale + offset
			gv := float32(g)*scale + offset
			bv := float32(b)*scale + offset

			px := y*width + x
			if m.Layout == LayoutNHWC {
				data[3*px] = rv
				data[3*px+1] = gv
				data[3*px+2] = bv
				continue
			}
			data[px] = rv
			data[plane+px] = gv
			data[2*plane+px] = bv
		}
	}
	return data
}
