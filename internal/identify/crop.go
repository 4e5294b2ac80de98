package identify

import (
	"image"
	"image/draw"
)

type subImager interface {
	SubImage(image.Rectangle) image.Image
}

// Crop extracts a region of an image without copying when the underlying
// type supports sub-imaging. The region is clamped to the image bounds.
func Crop(img image.Image, r image.Rectangle) image.Image {
	r = r.Intersect(img.Bounds())
	if r.Empty() {
		return image.NewRGBA(image.Rectangle{})
	}
	if si, ok := img.(subImager); ok {
		return si.SubImage(r)
	}
	dst := image.NewRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
	draw.Draw(dst, dst.Bounds(), img, r.Min, draw.Src)
	return dst
}
